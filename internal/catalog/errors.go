package catalog

import (
	"errors"
	"fmt"
	"strings"
)

var ErrDuplicateCodeConflict = errors.New("code already defined with an incompatible definition")

type ErrorKind string

const (
	KindRequired        ErrorKind = "Required"
	KindNotANumber      ErrorKind = "NotANumber"
	KindOutOfRange      ErrorKind = "OutOfRange"
	KindInvalidOption   ErrorKind = "InvalidOption"
	KindPatternMismatch ErrorKind = "PatternMismatch"
	KindNotABoolean     ErrorKind = "NotABoolean"
	KindInvalidText     ErrorKind = "InvalidText"
)

// FieldError is the validation failure of a single parameter value.
type FieldError struct {
	Code    string    `json:"code"`
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.Code, e.Kind, e.Message)
}

// ValidationErrors collects every invalid field of one request.
type ValidationErrors struct {
	Fields []FieldError `json:"fields"`
}

func (e *ValidationErrors) Error() string {
	parts := make([]string, len(e.Fields))
	for i := range e.Fields {
		parts[i] = e.Fields[i].Error()
	}
	return "invalid parameters: " + strings.Join(parts, "; ")
}

// Map returns code -> message, the shape the HTTP layer renders.
func (e *ValidationErrors) Map() map[string]string {
	m := make(map[string]string, len(e.Fields))
	for _, f := range e.Fields {
		m[f.Code] = f.Message
	}
	return m
}

// DefinitionError rejects a parameter definition before it reaches the store.
type DefinitionError struct {
	Code   string
	Reason string
}

func (e *DefinitionError) Error() string {
	return fmt.Sprintf("parameter %q: %s", e.Code, e.Reason)
}
