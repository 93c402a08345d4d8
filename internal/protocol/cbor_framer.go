package protocol

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
)

var (
	cborEncMode cbor.EncMode
	cborDecMode cbor.DecMode
)

func init() {
	var err error
	cborEncMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("protocol: CBOR encoder initialization failed: " + err.Error())
	}
	cborDecMode, err = cbor.DecOptions{
		UTF8: cbor.UTF8RejectInvalid,
	}.DecMode()
	if err != nil {
		panic("protocol: CBOR decoder initialization failed: " + err.Error())
	}
}

// cborFramer sends each field as one definite-length CBOR text string.
// The item head is inspected before the payload is read, so an oversized
// field is rejected without buffering it.
type cborFramer struct {
	r            *bufio.Reader
	enc          *cbor.Encoder
	w            *bufio.Writer
	maxFrameSize int
}

func newCBORFramer(rw io.ReadWriter, maxFrameSize int) *cborFramer {
	w := bufio.NewWriter(rw)
	return &cborFramer{
		r:            bufio.NewReader(rw),
		enc:          cborEncMode.NewEncoder(w),
		w:            w,
		maxFrameSize: maxFrameSize,
	}
}

const cborMajorText = 3

// readHead peeks the head of the next item and returns its size and the
// declared payload length.
func (f *cborFramer) readHead() (int, uint64, error) {
	b, err := f.r.Peek(1)
	if err != nil {
		return 0, 0, err
	}
	major, info := b[0]>>5, b[0]&0x1f
	if major != cborMajorText {
		return 0, 0, fmt.Errorf("%w: cbor major type %d, want text string", ErrMalformedFrame, major)
	}
	if info < 24 {
		return 1, uint64(info), nil
	}
	if info > 27 {
		return 0, 0, fmt.Errorf("%w: indefinite or reserved cbor length", ErrMalformedFrame)
	}

	headLen := 1 + 1<<(info-24)
	head, err := f.r.Peek(headLen)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return 0, 0, io.ErrUnexpectedEOF
		}
		return 0, 0, err
	}
	arg := head[1:]
	switch len(arg) {
	case 1:
		return headLen, uint64(arg[0]), nil
	case 2:
		return headLen, uint64(binary.BigEndian.Uint16(arg)), nil
	case 4:
		return headLen, uint64(binary.BigEndian.Uint32(arg)), nil
	default:
		return headLen, binary.BigEndian.Uint64(arg), nil
	}
}

func (f *cborFramer) ReadFrame() (string, error) {
	headLen, n, err := f.readHead()
	if err != nil {
		return "", err
	}
	if n > uint64(f.maxFrameSize) {
		return "", ErrFrameTooLarge
	}

	item := make([]byte, headLen+int(n))
	if _, err := io.ReadFull(f.r, item); err != nil {
		if errors.Is(err, io.EOF) {
			return "", io.ErrUnexpectedEOF
		}
		return "", err
	}

	var frame string
	if err := cborDecMode.Unmarshal(item, &frame); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	return frame, nil
}

func (f *cborFramer) WriteFrame(frame string) error {
	if len(frame) > f.maxFrameSize {
		return ErrFrameTooLarge
	}
	return f.enc.Encode(frame)
}

func (f *cborFramer) Flush() error {
	return f.w.Flush()
}
