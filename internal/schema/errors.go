package schema

import (
	"errors"
	"regexp"
	"strings"
	"time"
)

// ErrValidation is the sentinel every *ValidationError unwraps to.
var ErrValidation = errors.New("validation error")

// FieldError describes one invalid field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError collects every field problem found in one entity.
type ValidationError struct {
	Errors []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return ErrValidation.Error()
	}
	parts := make([]string, 0, len(e.Errors))
	for _, fe := range e.Errors {
		parts = append(parts, fe.Field+": "+fe.Message)
	}
	return strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// NewValidationError returns a validation error for a single field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Errors: []FieldError{{Field: field, Message: message}}}
}

// Add records a field problem.
func (e *ValidationError) Add(field, message string) {
	e.Errors = append(e.Errors, FieldError{Field: field, Message: message})
}

// Err returns e when it holds any field errors, nil otherwise.
func (e *ValidationError) Err() error {
	if len(e.Errors) == 0 {
		return nil
	}
	return e
}

// DateLayout is the stored form of calendar dates.
const DateLayout = "2006-01-02"

var colorPattern = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

func (e *ValidationError) required(field, value string) {
	if strings.TrimSpace(value) == "" {
		e.Add(field, "is required")
	}
}

func (e *ValidationError) maxLen(field, value string, n int) {
	if len(value) > n {
		e.Add(field, "is too long")
	}
}

func (e *ValidationError) color(field, value string) {
	if !colorPattern.MatchString(value) {
		e.Add(field, "must be a #rrggbb color")
	}
}

func (e *ValidationError) date(field, value string, required bool) {
	if value == "" {
		if required {
			e.Add(field, "is required")
		}
		return
	}
	if _, err := time.Parse(DateLayout, value); err != nil {
		e.Add(field, "must be a YYYY-MM-DD date")
	}
}

func (e *ValidationError) uniqueIDs(field string, ids []string) {
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if id == "" {
			e.Add(field, "contains an empty id")
			return
		}
		if seen[id] {
			e.Add(field, "contains duplicate id "+id)
			return
		}
		seen[id] = true
	}
}

// ParseDate parses a stored date.
func ParseDate(s string) (time.Time, error) {
	return time.Parse(DateLayout, s)
}
