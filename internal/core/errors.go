package core

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Sentinel categories. Every typed error below reports one of these from Is,
// so callers can branch with errors.Is and still pull details with errors.As.
var (
	ErrEmptyInput              = errors.New("empty input")
	ErrCorrespondence          = errors.New("inputs do not correspond")
	ErrUnmatchedFeatures       = errors.New("unmatched features")
	ErrOverlapConflict         = errors.New("overlapping sample conflict")
	ErrInsufficientAnnotations = errors.New("insufficient annotations")
	ErrInvalidArgument         = errors.New("invalid argument")
)

// EmptyInputError indicates a stage produced or received no usable rows.
type EmptyInputError struct {
	Stage  string
	Detail string
}

func (e *EmptyInputError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: empty input: %s", e.Stage, e.Detail)
	}
	return fmt.Sprintf("%s: empty input", e.Stage)
}

func (e *EmptyInputError) Is(target error) bool { return target == ErrEmptyInput }

// NewEmptyInputError creates an empty input error.
func NewEmptyInputError(stage, detail string) error {
	return &EmptyInputError{Stage: stage, Detail: detail}
}

// CorrespondenceError reports parallel per-experiment lists of unequal length.
type CorrespondenceError struct {
	Lists map[string]int
}

func (e *CorrespondenceError) Error() string {
	names := make([]string, 0, len(e.Lists))
	for name := range e.Lists {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = fmt.Sprintf("%s=%d", name, e.Lists[name])
	}
	return fmt.Sprintf("inputs should have a one-to-one correspondence: %s", strings.Join(parts, ", "))
}

func (e *CorrespondenceError) Is(target error) bool { return target == ErrCorrespondence }

// CheckCorrespondence returns a CorrespondenceError unless every named list
// has the same length.
func CheckCorrespondence(lists map[string]int) error {
	first := -1
	for _, n := range lists {
		if first == -1 {
			first = n
			continue
		}
		if n != first {
			return &CorrespondenceError{Lists: lists}
		}
	}
	return nil
}

// UnmatchedFeaturesError lists fingerprint identifiers missing from an
// abundance table.
type UnmatchedFeaturesError struct {
	IDs []string
}

func (e *UnmatchedFeaturesError) Error() string {
	return "the following fingerprints were not found in the feature table: " + strings.Join(e.IDs, ", ")
}

func (e *UnmatchedFeaturesError) Is(target error) bool { return target == ErrUnmatchedFeatures }

// OverlapConflictError reports one cell that two tables disagree on.
type OverlapConflictError struct {
	Feature string
	Sample  string
	Values  [2]float64
}

func (e *OverlapConflictError) Error() string {
	return fmt.Sprintf("conflicting values for feature %s in sample %s: %g != %g",
		e.Feature, e.Sample, e.Values[0], e.Values[1])
}

func (e *OverlapConflictError) Is(target error) bool { return target == ErrOverlapConflict }

// InsufficientAnnotationsError is returned when pruning would leave fewer
// than Required leaves.
type InsufficientAnnotationsError struct {
	Column   string
	Found    int
	Required int
}

func (e *InsufficientAnnotationsError) Error() string {
	return fmt.Sprintf("tree pruning aborted: %d annotated tips for %q, need at least %d",
		e.Found, e.Column, e.Required)
}

func (e *InsufficientAnnotationsError) Is(target error) bool {
	return target == ErrInsufficientAnnotations
}

// InvalidArgumentError indicates invalid input.
type InvalidArgumentError struct {
	Field   string
	Message string
}

func (e *InvalidArgumentError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("invalid argument for %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("invalid argument: %s", e.Message)
}

func (e *InvalidArgumentError) Is(target error) bool { return target == ErrInvalidArgument }

func NewInvalidArgumentError(field, message string) error {
	return &InvalidArgumentError{Field: field, Message: message}
}
