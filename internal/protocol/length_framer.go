package protocol

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"
)

// lengthFramer prefixes every field with its byte length as a big-endian
// uint32.
type lengthFramer struct {
	r            *bufio.Reader
	w            *bufio.Writer
	maxFrameSize int
}

func newLengthFramer(rw io.ReadWriter, maxFrameSize int) *lengthFramer {
	return &lengthFramer{
		r:            bufio.NewReader(rw),
		w:            bufio.NewWriter(rw),
		maxFrameSize: maxFrameSize,
	}
}

func (f *lengthFramer) ReadFrame() (string, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(f.r, hdr[:]); err != nil {
		return "", err
	}
	n := binary.BigEndian.Uint32(hdr[:])
	if uint64(n) > uint64(f.maxFrameSize) {
		return "", ErrFrameTooLarge
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(f.r, buf); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return "", err
	}
	if !utf8.Valid(buf) {
		return "", fmt.Errorf("%w: field is not valid UTF-8", ErrMalformedFrame)
	}
	return string(buf), nil
}

func (f *lengthFramer) WriteFrame(frame string) error {
	if len(frame) > f.maxFrameSize {
		return ErrFrameTooLarge
	}
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(frame)))
	if _, err := f.w.Write(hdr[:]); err != nil {
		return err
	}
	_, err := f.w.WriteString(frame)
	return err
}

func (f *lengthFramer) Flush() error {
	return f.w.Flush()
}
