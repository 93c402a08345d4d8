package protocol

import "errors"

var (
	ErrInvalidMode     = errors.New("invalid mode")
	ErrInvalidFilePath = errors.New("invalid file path")

	// Framing errors end the connection; the stream cannot be resynchronised.
	ErrFrameTooLarge      = errors.New("frame exceeds maximum size")
	ErrUnknownFraming     = errors.New("unknown framing")
	ErrMalformedFrame     = errors.New("malformed frame")
	ErrUnexpectedResponse = errors.New("unexpected response")
)
