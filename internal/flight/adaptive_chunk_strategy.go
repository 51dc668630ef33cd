package flight

// Default DoGet chunk bounds in rows. Merged tables are small next to the
// vector batches Flight usually carries, so chunks start small.
const (
	DefaultMinChunkRows = 256
	DefaultMaxChunkRows = 8192
	DefaultChunkGrowth  = 2.0
)

// ChunkStrategy yields successive chunk sizes for one stream.
type ChunkStrategy interface {
	NextChunkSize() int
	Reset()
}

// AdaptiveChunkStrategy starts with small chunks so the first rows reach
// the client quickly, then grows them geometrically up to maxSize.
// A strategy belongs to a single stream.
type AdaptiveChunkStrategy struct {
	minSize      int
	maxSize      int
	growthFactor float64
	currentSize  int
}

// NewAdaptiveChunkStrategy normalizes its bounds: sizes below one become
// one, maxSize is at least minSize and a growth factor below one is
// treated as constant sizing.
func NewAdaptiveChunkStrategy(minSize, maxSize int, growthFactor float64) *AdaptiveChunkStrategy {
	if minSize < 1 {
		minSize = 1
	}
	if maxSize < minSize {
		maxSize = minSize
	}
	if growthFactor < 1 {
		growthFactor = 1
	}
	return &AdaptiveChunkStrategy{
		minSize:      minSize,
		maxSize:      maxSize,
		growthFactor: growthFactor,
		currentSize:  minSize,
	}
}

// NextChunkSize returns the current size and advances the strategy.
func (s *AdaptiveChunkStrategy) NextChunkSize() int {
	current := s.currentSize
	next := int(float64(current) * s.growthFactor)
	if next > s.maxSize {
		next = s.maxSize
	}
	s.currentSize = next
	return current
}

// CurrentSize returns the next size without advancing.
func (s *AdaptiveChunkStrategy) CurrentSize() int { return s.currentSize }

// Reset goes back to the minimum size.
func (s *AdaptiveChunkStrategy) Reset() { s.currentSize = s.minSize }

// Chunks splits total rows into [offset, end) ranges sized by strategy.
func Chunks(total int, strategy ChunkStrategy) [][2]int {
	var out [][2]int
	for off := 0; off < total; {
		end := off + strategy.NextChunkSize()
		if end > total {
			end = total
		}
		out = append(out, [2]int{off, end})
		off = end
	}
	return out
}
