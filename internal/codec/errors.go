package codec

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformed is matched by every decode failure.
	ErrMalformed = errors.New("codec: malformed payload")

	// ErrEncodeFailed is returned when a message cannot be serialised
	// (NaN coordinates, invalid overflow JSON, nil message).
	ErrEncodeFailed = errors.New("codec: encoding failed")

	// ErrUnknownKind is returned when a topic is bound to an unsupported kind.
	ErrUnknownKind = errors.New("codec: unknown record kind")
)

// Field-level decode causes.
var (
	errEmptyPayload = errors.New("empty payload")
	errNotObject    = errors.New("payload is not a JSON object")
	errTrailingData = errors.New("unexpected data after JSON object")
	errNotString    = errors.New("expected string")
	errNotUint      = errors.New("expected non-negative integer")
	errNotNumber    = errors.New("expected number")
	errNotFlag      = errors.New("expected 0, 1, true or false")
	errNodeKind     = errors.New("expected ANCHOR or TAG")
	errDeviceID     = errors.New("expected string or non-negative integer")
	errPosition     = errors.New("expected object with numeric x, y and z")
)

// MalformedError describes a payload that could not be decoded.
type MalformedError struct {
	// Raw is the payload as received.
	Raw []byte

	// Offset is the byte offset in Raw where decoding failed.
	Offset int64

	// Field is the top-level key being decoded, empty for syntax errors
	// outside a value.
	Field string

	// Err is the underlying cause.
	Err error
}

func (e *MalformedError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("codec: malformed payload at offset %d (field %q): %v", e.Offset, e.Field, e.Err)
	}
	return fmt.Sprintf("codec: malformed payload at offset %d: %v", e.Offset, e.Err)
}

// Is reports ErrMalformed as a match so callers can use errors.Is.
func (e *MalformedError) Is(target error) bool {
	return target == ErrMalformed
}

func (e *MalformedError) Unwrap() error {
	return e.Err
}

func malformed(raw []byte, offset int64, field string, err error) *MalformedError {
	return &MalformedError{
		Raw:    raw,
		Offset: offset,
		Field:  field,
		Err:    err,
	}
}
