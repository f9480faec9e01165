package security

import (
	"fmt"
	"unicode/utf8"
)

// Validation limits.
const (
	// MaxQueryLength bounds the q parameter in characters.
	MaxQueryLength = 1000

	// MaxSize bounds the size parameter before clamping.
	MaxSize = 10000
)

// ValidationError represents a field validation error.
type ValidationError struct {
	Field      string
	Value      interface{}
	Constraint string
}

func (e *ValidationError) Error() string {
	if e.Value != nil {
		return fmt.Sprintf("validation failed for %s: %s (got: %v)", e.Field, e.Constraint, e.Value)
	}
	return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Constraint)
}

// ValidateQuery validates a search query string.
// Requirements: required, at most MaxQueryLength characters, valid UTF-8.
func ValidateQuery(query string) error {
	if query == "" {
		return &ValidationError{Field: "q", Constraint: "required"}
	}

	if !utf8.ValidString(query) {
		return &ValidationError{Field: "q", Constraint: "must be valid UTF-8"}
	}

	if length := utf8.RuneCountInString(query); length > MaxQueryLength {
		return &ValidationError{
			Field:      "q",
			Value:      length,
			Constraint: fmt.Sprintf("maximum length is %d characters", MaxQueryLength),
		}
	}

	return nil
}

// ValidateSize validates a result size.
// Requirements: 1-MaxSize.
func ValidateSize(size int) error {
	if size < 1 {
		return &ValidationError{Field: "size", Value: size, Constraint: "size must be positive"}
	}
	if size > MaxSize {
		return &ValidationError{
			Field:      "size",
			Value:      size,
			Constraint: fmt.Sprintf("maximum value is %d", MaxSize),
		}
	}
	return nil
}
