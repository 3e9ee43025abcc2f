package wire

import (
	"errors"
	"fmt"
)

// ErrMalformed matches every *MalformedError via errors.Is.
var ErrMalformed = errors.New("wire: malformed frame")

// errIncomplete reports that the buffer ends inside a frame.
var errIncomplete = errors.New("wire: incomplete frame")

// ErrorKind classifies why a frame was skipped.
type ErrorKind int

const (
	MalformedOversize ErrorKind = iota + 1
	MalformedLength
	MalformedDelimiter
	MalformedCommand
	MalformedPCM
)

func (k ErrorKind) String() string {
	switch k {
	case MalformedOversize:
		return "oversize"
	case MalformedLength:
		return "length"
	case MalformedDelimiter:
		return "delimiter"
	case MalformedCommand:
		return "command"
	case MalformedPCM:
		return "pcm"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// MalformedError describes a frame that was skipped. Offset is relative to
// the start of the buffer passed to the parser and Length is the number of
// bytes the frame declared (or occupied, for delimiter errors).
type MalformedError struct {
	Kind   ErrorKind
	Offset int
	Length int
	Reason string
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("wire: malformed %s frame at offset %d (%d bytes): %s", e.Kind, e.Offset, e.Length, e.Reason)
}

func (e *MalformedError) Unwrap() error {
	return ErrMalformed
}
