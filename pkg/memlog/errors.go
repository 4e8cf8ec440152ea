package memlog

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

var (
	// ErrInvalidUTF8 is the cause of a DecodeError for a text field whose
	// bytes are not valid UTF-8.
	ErrInvalidUTF8 = errors.New("string field contains invalid UTF-8")

	// ErrFrameTooLarge is the cause of a DecodeError for a delimited frame
	// whose length prefix exceeds MaxDelimitedSize.
	ErrFrameTooLarge = errors.New("delimited frame exceeds maximum size")
)

// DecodeError is returned for any malformed input: truncated buffers, bad
// varints, length prefixes running past the end of the buffer, invalid field
// numbers and invalid UTF-8 in text fields. No record is returned with it.
type DecodeError struct {
	// Offset is the byte offset at which the malformed element starts.
	Offset int
	// Field is the field number being read, or 0 if the tag itself was bad.
	Field protowire.Number
	Err   error
}

func (e *DecodeError) Error() string {
	if e.Field != 0 {
		return fmt.Sprintf("memlog: decode field %d at offset %d: %v", e.Field, e.Offset, e.Err)
	}
	return fmt.Sprintf("memlog: decode at offset %d: %v", e.Offset, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

func parseError(off int, num protowire.Number, n int) *DecodeError {
	return &DecodeError{Offset: off, Field: num, Err: protowire.ParseError(n)}
}
