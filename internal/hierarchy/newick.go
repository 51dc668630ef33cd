package hierarchy

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/23skdu/qemistree/internal/core"
)

const newickSpecial = "()[]':;, \t\n"

// Newick serializes t with branch lengths. Names containing Newick
// punctuation are single-quoted; underscores are written as-is.
func (t *Tree) Newick() string {
	var b strings.Builder
	if t != nil && t.Root != nil {
		writeNode(&b, t.Root, true)
	}
	b.WriteByte(';')
	return b.String()
}

// WriteNewick writes t followed by a newline.
func (t *Tree) WriteNewick(w io.Writer) error {
	_, err := io.WriteString(w, t.Newick()+"\n")
	return err
}

func writeNode(b *strings.Builder, n *Node, root bool) {
	if !n.IsLeaf() {
		b.WriteByte('(')
		for i, c := range n.Children {
			if i > 0 {
				b.WriteByte(',')
			}
			writeNode(b, c, false)
		}
		b.WriteByte(')')
	}
	b.WriteString(quoteName(n.Name))
	if !root {
		b.WriteByte(':')
		b.WriteString(strconv.FormatFloat(n.Length, 'g', -1, 64))
	}
}

func quoteName(name string) string {
	if name == "" || !strings.ContainsAny(name, newickSpecial) {
		return name
	}
	return "'" + strings.ReplaceAll(name, "'", "''") + "'"
}

// ParseNewick reads one tree. Bracketed comments are ignored and missing
// branch lengths read as zero.
func ParseNewick(s string) (*Tree, error) {
	p := &newickParser{src: s}
	p.skip()
	if p.done() {
		return nil, core.NewEmptyInputError("newick", "no tree")
	}
	root, err := p.node()
	if err != nil {
		return nil, err
	}
	p.skip()
	if p.done() || p.src[p.pos] != ';' {
		return nil, p.errorf("expected ';'")
	}
	p.pos++
	p.skip()
	if !p.done() {
		return nil, p.errorf("unexpected trailing input")
	}
	return &Tree{Root: root}, nil
}

// ReadNewick reads a whole stream with ParseNewick.
func ReadNewick(r io.Reader) (*Tree, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return ParseNewick(string(data))
}

type newickParser struct {
	src string
	pos int
}

func (p *newickParser) done() bool { return p.pos >= len(p.src) }

func (p *newickParser) errorf(format string, args ...any) error {
	return core.NewInvalidArgumentError("newick", fmt.Sprintf("offset %d: ", p.pos)+fmt.Sprintf(format, args...))
}

// skip consumes whitespace and [comments].
func (p *newickParser) skip() {
	for !p.done() {
		switch c := p.src[p.pos]; {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			p.pos++
		case c == '[':
			end := strings.IndexByte(p.src[p.pos:], ']')
			if end < 0 {
				p.pos = len(p.src)
				return
			}
			p.pos += end + 1
		default:
			return
		}
	}
}

func (p *newickParser) node() (*Node, error) {
	n := &Node{}
	p.skip()
	if !p.done() && p.src[p.pos] == '(' {
		p.pos++
		for {
			child, err := p.node()
			if err != nil {
				return nil, err
			}
			n.Children = append(n.Children, child)
			p.skip()
			if p.done() {
				return nil, p.errorf("unterminated subtree")
			}
			c := p.src[p.pos]
			p.pos++
			if c == ')' {
				break
			}
			if c != ',' {
				return nil, p.errorf("unexpected %q", c)
			}
		}
	}
	name, err := p.name()
	if err != nil {
		return nil, err
	}
	n.Name = name
	p.skip()
	if !p.done() && p.src[p.pos] == ':' {
		p.pos++
		p.skip()
		start := p.pos
		for !p.done() && !strings.ContainsRune(newickSpecial, rune(p.src[p.pos])) {
			p.pos++
		}
		v, err := strconv.ParseFloat(p.src[start:p.pos], 64)
		if err != nil {
			return nil, p.errorf("bad branch length %q", p.src[start:p.pos])
		}
		n.Length = v
	}
	return n, nil
}

func (p *newickParser) name() (string, error) {
	p.skip()
	if p.done() {
		return "", nil
	}
	if p.src[p.pos] == '\'' {
		var b strings.Builder
		p.pos++
		for {
			if p.done() {
				return "", p.errorf("unterminated quoted name")
			}
			c := p.src[p.pos]
			p.pos++
			if c == '\'' {
				if !p.done() && p.src[p.pos] == '\'' {
					b.WriteByte('\'')
					p.pos++
					continue
				}
				return b.String(), nil
			}
			b.WriteByte(c)
		}
	}
	start := p.pos
	for !p.done() && !strings.ContainsRune(newickSpecial, rune(p.src[p.pos])) {
		p.pos++
	}
	return p.src[start:p.pos], nil
}
