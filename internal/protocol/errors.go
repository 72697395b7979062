package protocol

import (
	"errors"
	"fmt"
)

var (
	// ErrShortFrame indicates a frame too short for the requested field.
	ErrShortFrame = errors.New("short frame")

	// ErrUnknownProfile is returned by LookupProfile for an unregistered name.
	ErrUnknownProfile = errors.New("unknown protocol profile")
)

// DecodeError reports a field that could not be read from a frame.
type DecodeError struct {
	Offset int // Offset of the int16 field
	Length int // Length of the frame
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s: int16 at offset %d needs %d bytes, frame has %d", ErrShortFrame, e.Offset, e.Offset+2, e.Length)
}

// Unwrap lets errors.Is match ErrShortFrame.
func (e *DecodeError) Unwrap() error {
	return ErrShortFrame
}
