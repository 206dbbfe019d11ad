package formula

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrSyntax                  = errors.New("syntax error")
	ErrUndefinedReference      = errors.New("undefined reference")
	ErrCyclicFormulaDependency = errors.New("cyclic formula dependency")
	ErrDivisionByZero          = errors.New("division by zero")
	ErrDomain                  = errors.New("domain error")
	ErrType                    = errors.New("type error")
	ErrDuplicateDefinition     = errors.New("duplicate definition")
)

// Error is the structured failure of compiling or evaluating a formula.
// Kind is one of the sentinel errors above and is what errors.Is matches.
type Error struct {
	Kind    error
	Formula string
	Pos     int
	Msg     string
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Formula != "" {
		fmt.Fprintf(&b, "formula %q: ", e.Formula)
	}
	b.WriteString(e.Kind.Error())
	if e.Msg != "" {
		b.WriteString(": ")
		b.WriteString(e.Msg)
	}
	if e.Pos >= 0 {
		fmt.Fprintf(&b, " (at offset %d)", e.Pos)
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Kind }

func newError(kind error, pos int, format string, args ...any) *Error {
	return &Error{Kind: kind, Pos: pos, Msg: fmt.Sprintf(format, args...)}
}

// withFormula attaches the formula code to a structured error.
func withFormula(err error, code string) error {
	var fe *Error
	if errors.As(err, &fe) && fe.Formula == "" {
		fe.Formula = code
	}
	return err
}

// Kind returns a short machine-readable name for err, or "" when err is not
// a formula error.
func Kind(err error) string {
	switch {
	case errors.Is(err, ErrSyntax):
		return "SyntaxError"
	case errors.Is(err, ErrUndefinedReference):
		return "UndefinedReference"
	case errors.Is(err, ErrCyclicFormulaDependency):
		return "CyclicFormulaDependency"
	case errors.Is(err, ErrDivisionByZero):
		return "DivisionByZero"
	case errors.Is(err, ErrDomain):
		return "DomainError"
	case errors.Is(err, ErrType):
		return "TypeError"
	case errors.Is(err, ErrDuplicateDefinition):
		return "DuplicateDefinition"
	}
	return ""
}
