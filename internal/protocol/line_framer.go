package protocol

import (
	"bufio"
	"errors"
	"io"
	"strings"
)

var (
	lineEscaper   = strings.NewReplacer("\\", "\\\\", "\n", "\\n", "\r", "\\r")
	lineUnescaper = strings.NewReplacer("\\\\", "\\", "\\n", "\n", "\\r", "\r")
)

// lineFramer carries one field per LF-terminated line. Backslash, LF and CR
// inside a field are escaped so multi-line file content survives the trip.
type lineFramer struct {
	scanner      *bufio.Scanner
	w            *bufio.Writer
	maxFrameSize int
}

func newLineFramer(rw io.ReadWriter, maxFrameSize int) *lineFramer {
	// Escaping can double a field, plus the terminator.
	maxLine := 2*maxFrameSize + 2
	scanner := bufio.NewScanner(rw)
	scanner.Buffer(make([]byte, 0, min(4096, maxLine)), maxLine)
	return &lineFramer{
		scanner:      scanner,
		w:            bufio.NewWriter(rw),
		maxFrameSize: maxFrameSize,
	}
}

func (f *lineFramer) ReadFrame() (string, error) {
	if !f.scanner.Scan() {
		err := f.scanner.Err()
		if err == nil {
			return "", io.EOF
		}
		if errors.Is(err, bufio.ErrTooLong) {
			return "", ErrFrameTooLarge
		}
		return "", err
	}
	line := strings.TrimSuffix(f.scanner.Text(), "\r")
	frame := lineUnescaper.Replace(line)
	if len(frame) > f.maxFrameSize {
		return "", ErrFrameTooLarge
	}
	return frame, nil
}

func (f *lineFramer) WriteFrame(frame string) error {
	if len(frame) > f.maxFrameSize {
		return ErrFrameTooLarge
	}
	if _, err := f.w.WriteString(lineEscaper.Replace(frame)); err != nil {
		return err
	}
	return f.w.WriteByte('\n')
}

func (f *lineFramer) Flush() error {
	return f.w.Flush()
}
