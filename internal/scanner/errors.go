package scanner

import (
	"errors"
	"strings"
)

var ErrMalformed = errors.New("malformed scan payload")
var ErrDuplicate = errors.New("duplicate scan")

// FieldError names the field a validation rule failed on.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e FieldError) Error() string { return e.Field + ": " + e.Message }

type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		msgs = append(msgs, f.Message)
	}
	return "invalid scan: " + strings.Join(msgs, "; ")
}
