package lysine

import (
	"fmt"

	"github.com/ctcl-bregis/lysine/lexer"
)

// ErrorKind describes the type of error.
type ErrorKind int

const (
	// Parsing
	ErrSyntax ErrorKind = iota

	// Construction (template-set resolution)
	ErrTemplateNotFound
	ErrCircularExtend
	ErrMissingParent
	ErrMissingMacroFile

	// Rendering
	ErrUndefinedVariable
	ErrInvalidOperation
	ErrUnknownFilter
	ErrUnknownTester
	ErrUnknownFunction
	ErrUnknownMacro
	ErrUnknownBlock
	ErrInvalidArgument
	ErrRecursionLimit
	ErrWriteFailure

	// Wrapped filter/tester/function failures
	ErrCapability
)

func (k ErrorKind) String() string {
	switch k {
	case ErrSyntax:
		return "syntax error"
	case ErrTemplateNotFound:
		return "template not found"
	case ErrCircularExtend:
		return "circular extends"
	case ErrMissingParent:
		return "missing parent"
	case ErrMissingMacroFile:
		return "missing macro file"
	case ErrUndefinedVariable:
		return "undefined variable"
	case ErrInvalidOperation:
		return "invalid operation"
	case ErrUnknownFilter:
		return "unknown filter"
	case ErrUnknownTester:
		return "unknown tester"
	case ErrUnknownFunction:
		return "unknown function"
	case ErrUnknownMacro:
		return "unknown macro"
	case ErrUnknownBlock:
		return "unknown block"
	case ErrInvalidArgument:
		return "invalid argument"
	case ErrRecursionLimit:
		return "recursion limit exceeded"
	case ErrWriteFailure:
		return "write failure"
	case ErrCapability:
		return "capability error"
	default:
		return "error"
	}
}

// Error represents an error raised while loading, resolving or rendering
// templates.
type Error struct {
	Kind     ErrorKind
	Message  string
	Span     *lexer.Span
	Template string
	cause    error
}

func (e *Error) Error() string {
	msg := e.Message
	if e.cause != nil {
		msg = fmt.Sprintf("%s: %s", msg, e.cause)
	}
	if e.Template != "" && e.Span != nil {
		return fmt.Sprintf("%s: %s (in %s, line %d)", e.Kind, msg, e.Template, e.Span.StartLine)
	}
	if e.Template != "" {
		return fmt.Sprintf("%s: %s (in %s)", e.Kind, msg, e.Template)
	}
	if e.Span != nil {
		return fmt.Sprintf("%s: %s (line %d)", e.Kind, msg, e.Span.StartLine)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

// Unwrap returns the wrapped cause, if any.
func (e *Error) Unwrap() error {
	return e.cause
}

// NewError creates a new error.
func NewError(kind ErrorKind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// WithSpan attaches source location to an error.
func (e *Error) WithSpan(span lexer.Span) *Error {
	e.Span = &span
	return e
}

// WithTemplate attaches the template name to an error. An already attached
// name wins, so the innermost template is reported.
func (e *Error) WithTemplate(name string) *Error {
	if e.Template == "" {
		e.Template = name
	}
	return e
}

// WithSource attaches the underlying cause to an error.
func (e *Error) WithSource(err error) *Error {
	e.cause = err
	return e
}
