package protocol

import (
	"fmt"
	"io"
)

// Framing selects how individual fields are delimited on a byte stream.
type Framing string

const (
	FramingLine   Framing = "line"
	FramingLength Framing = "length"
	FramingCBOR   Framing = "cbor"
)

// DefaultMaxFrameSize bounds a single field, which in practice means a
// single file's content.
const DefaultMaxFrameSize = 16 << 20

// Framer reads and writes one field at a time. Writes are buffered until
// Flush.
type Framer interface {
	ReadFrame() (string, error)
	WriteFrame(frame string) error
	Flush() error
}

func ParseFraming(s string) (Framing, error) {
	switch Framing(s) {
	case FramingLine, FramingLength, FramingCBOR:
		return Framing(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFraming, s)
	}
}

// NewFramer builds a framer of the given kind over rw. maxFrameSize <= 0
// means DefaultMaxFrameSize.
func NewFramer(framing Framing, rw io.ReadWriter, maxFrameSize int) (Framer, error) {
	if maxFrameSize <= 0 {
		maxFrameSize = DefaultMaxFrameSize
	}
	switch framing {
	case FramingLine:
		return newLineFramer(rw, maxFrameSize), nil
	case FramingLength:
		return newLengthFramer(rw, maxFrameSize), nil
	case FramingCBOR:
		return newCBORFramer(rw, maxFrameSize), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFraming, framing)
	}
}
