// Package errors carries operation context for failures outside the
// pipeline's own taxonomy: reading run directories and tables, querying
// snapshots, loading configuration.
package errors

import (
	"errors"
	"fmt"
	"runtime"
	"sort"
	"strings"
)

// ErrorType categorizes a StructuredError.
type ErrorType string

const (
	ErrorTypeStorage       ErrorType = "storage"
	ErrorTypeParse         ErrorType = "parse"
	ErrorTypeQuery         ErrorType = "query"
	ErrorTypeConfiguration ErrorType = "configuration"
)

// StructuredError records which operation failed on which input.
type StructuredError struct {
	Type      ErrorType
	Operation string
	Message   string
	Cause     error
	Context   map[string]interface{}
	Stack     []uintptr
}

func (e *StructuredError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s: %s", e.Type, e.Operation, e.Message)
	if len(e.Context) > 0 {
		keys := make([]string, 0, len(e.Context))
		for k := range e.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString(" (")
		for i, k := range keys {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%s=%v", k, e.Context[k])
		}
		b.WriteString(")")
	}
	if e.Cause != nil {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}
	return b.String()
}

func (e *StructuredError) Unwrap() error {
	return e.Cause
}

// New creates a structured error without a cause.
func New(errType ErrorType, operation, message string) *StructuredError {
	return &StructuredError{
		Type:      errType,
		Operation: operation,
		Message:   message,
		Context:   make(map[string]interface{}),
		Stack:     captureStack(),
	}
}

// Wrap attaches operation context to err. The caller must check err for nil
// first: a nil *StructuredError stored in an error interface is not a nil
// error.
func Wrap(err error, errType ErrorType, operation, message string) *StructuredError {
	if err == nil {
		return nil
	}
	e := New(errType, operation, message)
	e.Cause = err
	return e
}

// WithContext adds a key to the error context, e.g. the offending path or
// line.
func (e *StructuredError) WithContext(key string, value interface{}) *StructuredError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// IsType reports whether any StructuredError in err's chain has type t.
func IsType(err error, t ErrorType) bool {
	var se *StructuredError
	for err != nil {
		if !errors.As(err, &se) {
			return false
		}
		if se.Type == t {
			return true
		}
		err = se.Cause
	}
	return false
}

func captureStack() []uintptr {
	const depth = 32
	var pcs [depth]uintptr
	n := runtime.Callers(3, pcs[:])
	return pcs[:n]
}

func NewParseError(operation, message string) *StructuredError {
	return New(ErrorTypeParse, operation, message)
}

func WrapStorageError(err error, operation, message string) *StructuredError {
	return Wrap(err, ErrorTypeStorage, operation, message)
}

func WrapParseError(err error, operation, message string) *StructuredError {
	return Wrap(err, ErrorTypeParse, operation, message)
}

func WrapQueryError(err error, operation, message string) *StructuredError {
	return Wrap(err, ErrorTypeQuery, operation, message)
}

func WrapConfigurationError(err error, operation, message string) *StructuredError {
	return Wrap(err, ErrorTypeConfiguration, operation, message)
}
