package glsl

import "fmt"

// ErrorKind categorizes front-end errors.
type ErrorKind uint8

const (
	// ErrPreprocess indicates a preprocessing failure (bad directive,
	// forbidden include, unbalanced conditional).
	ErrPreprocess ErrorKind = iota

	// ErrParse indicates malformed source for the dialect grammar.
	ErrParse

	// ErrLink indicates an unresolved cross-reference after a successful
	// parse: unknown type, undeclared identifier, missing entry point.
	ErrLink

	// ErrLower indicates the linked shader uses a construct the IR
	// generator does not support.
	ErrLower
)

// String returns a human-readable kind name.
func (k ErrorKind) String() string {
	switch k {
	case ErrPreprocess:
		return "preprocess error"
	case ErrParse:
		return "parse error"
	case ErrLink:
		return "link error"
	case ErrLower:
		return "lowering error"
	}
	return "error"
}

// Error is a front-end diagnostic with an optional source position.
type Error struct {
	Kind    ErrorKind
	Message string
	Line    int
	Column  int
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s at %d:%d: %s", e.Kind, e.Line, e.Column, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func sprintf(format string, args ...any) string {
	return fmt.Sprintf(format, args...)
}
