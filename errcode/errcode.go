package errcode

// Code is a stable, caller-facing error identifier.
// It is a string newtype, comparable, allocation-free, and implements error.
type Code string

func (c Code) Error() string { return string(c) }

// Canonical codes (short, stable).
//
// Config errors indicate a bug in a static hardware description and are
// raised at descriptor construction time. Validation errors are rejected
// caller input, reported before any bus I/O. Codec errors come from
// decoding raw device bytes. Transport errors pass through from the bus
// layer unchanged.
const (
	OK          Code = "ok"
	Config      Code = "config_error"
	Validation  Code = "invalid_params"
	Codec       Code = "codec_error"
	Transport   Code = "transport_error"
	Unsupported Code = "unsupported"
	NoSuchField Code = "no_such_field"
	Timeout     Code = "timeout"

	Error Code = "error" // generic fallback
)

// E keeps a code together with context and a cause.
type E struct {
	C   Code
	Op  string
	Msg string
	Err error
}

func (e *E) Error() string {
	s := string(e.C)
	if e.Op != "" {
		s = e.Op + ": " + s
	}
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}
func (e *E) Unwrap() error { return e.Err }
func (e *E) Code() Code    { return e.C }

// New builds an *E with a code, operation and message.
func New(c Code, op, msg string) *E { return &E{C: c, Op: op, Msg: msg} }

// Wrap attaches a code and operation to a cause.
func Wrap(c Code, op string, err error) *E { return &E{C: c, Op: op, Err: err} }

// Of extracts a Code from an error, defaulting to Error.
func Of(err error) Code {
	if err == nil {
		return OK
	}
	if c, ok := err.(Code); ok {
		return c
	}
	type coder interface{ Code() Code }
	if x, ok := err.(coder); ok {
		return x.Code()
	}
	return Error
}

// Is reports whether err carries the given code.
func Is(err error, c Code) bool { return Of(err) == c }
