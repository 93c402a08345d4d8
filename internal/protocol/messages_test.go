package protocol

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var allFramings = []Framing{FramingLine, FramingLength, FramingCBOR}

// readerOnly lets a fixed input stand in for a connection.
type readerOnly struct{ io.Reader }

func (readerOnly) Write(p []byte) (int, error) { return len(p), nil }

func TestRequestRoundTrip(t *testing.T) {
	requests := []Request{
		{Command: CmdOpen, Path: "notes.txt", Mode: "READ_WRITE"},
		{Command: CmdRead, Path: "notes.txt"},
		{Command: CmdWrite, Path: "notes.txt", Content: "line one\nline two\r\n\\ backslash"},
		{Command: CmdClose, Path: "notes.txt", Mode: "READ_WRITE", Content: ""},
	}

	for _, framing := range allFramings {
		t.Run(string(framing), func(t *testing.T) {
			var buf bytes.Buffer
			w, err := NewFramer(framing, &buf, 0)
			require.NoError(t, err)
			for _, req := range requests {
				require.NoError(t, WriteRequest(w, req))
			}

			r, err := NewFramer(framing, &buf, 0)
			require.NoError(t, err)
			for _, want := range requests {
				got, err := ReadRequest(r)
				require.NoError(t, err)
				assert.Equal(t, want, got)
			}

			_, err = ReadRequest(r)
			assert.ErrorIs(t, err, io.EOF)
		})
	}
}

func TestReadRequest_UnknownCommandConsumesOneFrame(t *testing.T) {
	r, err := NewFramer(FramingLine, readerOnly{strings.NewReader("DELETE\nREAD\nnotes.txt\n")}, 0)
	require.NoError(t, err)

	req, err := ReadRequest(r)
	require.NoError(t, err)
	assert.Equal(t, "DELETE", req.Command)
	assert.False(t, req.Known())

	req, err = ReadRequest(r)
	require.NoError(t, err)
	assert.Equal(t, Request{Command: CmdRead, Path: "notes.txt"}, req)
}

func TestReadRequest_TruncatedRequest(t *testing.T) {
	r, err := NewFramer(FramingLine, readerOnly{strings.NewReader("OPEN\nnotes.txt\n")}, 0)
	require.NoError(t, err)

	_, err = ReadRequest(r)
	assert.ErrorIs(t, err, io.EOF)
}

func TestResponseRoundTrip(t *testing.T) {
	tests := []struct {
		command string
		resp    Response
	}{
		{CmdOpen, OK("hello\nworld")},
		{CmdOpen, Error(CodeFileAlreadyLocked)},
		{CmdRead, OK("")},
		{CmdWrite, OK()},
		{CmdClose, Error(CodeModeMismatchOnClose)},
	}

	for _, framing := range allFramings {
		t.Run(string(framing), func(t *testing.T) {
			var buf bytes.Buffer
			f, err := NewFramer(framing, &buf, 0)
			require.NoError(t, err)
			for _, tt := range tests {
				require.NoError(t, WriteResponse(f, tt.resp))
			}
			for _, tt := range tests {
				got, err := ReadResponse(f, tt.command)
				require.NoError(t, err)
				assert.Equal(t, tt.resp, got)
			}
		})
	}
}

func TestResponseCode(t *testing.T) {
	code, ok := Error(CodeInvalidMode).Code()
	assert.True(t, ok)
	assert.Equal(t, CodeInvalidMode, code)

	_, ok = OK("ERROR:looks like an error").Code()
	assert.False(t, ok)
}

func TestRequestFromFrames(t *testing.T) {
	assert.Equal(t,
		Request{Command: CmdClose, Path: "a", Mode: "WRITE_ONLY", Content: "x"},
		RequestFromFrames([]string{"CLOSE", "a", "WRITE_ONLY", "x"}))

	assert.True(t, RequestFromFrames([]string{"OPEN", "a"}).Malformed)
	assert.True(t, RequestFromFrames(nil).Malformed)

	unknown := RequestFromFrames([]string{"PING", "extra"})
	assert.False(t, unknown.Malformed)
	assert.False(t, unknown.Known())
}

func TestFrameSizeLimit(t *testing.T) {
	for _, framing := range allFramings {
		t.Run(string(framing), func(t *testing.T) {
			var buf bytes.Buffer
			big, err := NewFramer(framing, &buf, 1024)
			require.NoError(t, err)
			require.NoError(t, big.WriteFrame(strings.Repeat("a", 100)))
			require.NoError(t, big.Flush())

			small, err := NewFramer(framing, &buf, 10)
			require.NoError(t, err)
			_, err = small.ReadFrame()
			assert.True(t, errors.Is(err, ErrFrameTooLarge), "got %v", err)

			assert.ErrorIs(t, small.WriteFrame(strings.Repeat("b", 11)), ErrFrameTooLarge)
		})
	}
}

func TestLineFramer_AcceptsCRLF(t *testing.T) {
	f, err := NewFramer(FramingLine, readerOnly{strings.NewReader("READ\r\nnotes.txt\r\n")}, 0)
	require.NoError(t, err)

	req, err := ReadRequest(f)
	require.NoError(t, err)
	assert.Equal(t, Request{Command: CmdRead, Path: "notes.txt"}, req)
}

func TestParseFraming(t *testing.T) {
	for _, framing := range allFramings {
		got, err := ParseFraming(string(framing))
		require.NoError(t, err)
		assert.Equal(t, framing, got)
	}
	_, err := ParseFraming("xml")
	assert.ErrorIs(t, err, ErrUnknownFraming)
}

// countingReader serves a head followed by an endless run of filler bytes.
type countingReader struct {
	head []byte
	read int
}

func (c *countingReader) Read(p []byte) (int, error) {
	n := 0
	for n < len(p) {
		if c.read < len(c.head) {
			p[n] = c.head[c.read]
		} else {
			p[n] = 'a'
		}
		n++
		c.read++
	}
	return n, nil
}

func TestCBORFramer_RejectsOversizedHeadBeforeReadingPayload(t *testing.T) {
	// Text string head declaring a 4 GiB payload.
	src := &countingReader{head: []byte{0x7b, 0, 0, 0, 1, 0, 0, 0, 0}}
	f, err := NewFramer(FramingCBOR, readerOnly{src}, 1024)
	require.NoError(t, err)

	_, err = f.ReadFrame()
	assert.ErrorIs(t, err, ErrFrameTooLarge)
	assert.LessOrEqual(t, src.read, 8192, "payload was buffered before the size check")
}

func TestCBORFramer_MalformedItems(t *testing.T) {
	tests := []struct {
		name  string
		input []byte
		want  error
	}{
		{"byte string", []byte{0x43, 'a', 'b', 'c'}, ErrMalformedFrame},
		{"indefinite text", []byte{0x7f, 0x61, 'a', 0xff}, ErrMalformedFrame},
		{"invalid utf8", []byte{0x62, 0xff, 0xfe}, ErrMalformedFrame},
		{"truncated head", []byte{0x79, 0x00}, io.ErrUnexpectedEOF},
		{"truncated payload", []byte{0x65, 'a', 'b'}, io.ErrUnexpectedEOF},
		{"empty stream", nil, io.EOF},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := NewFramer(FramingCBOR, readerOnly{bytes.NewReader(tt.input)}, 1024)
			require.NoError(t, err)
			_, err = f.ReadFrame()
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestCBORFramer_HeadLengths(t *testing.T) {
	for _, size := range []int{0, 23, 24, 255, 256, 70000} {
		var buf bytes.Buffer
		f, err := NewFramer(FramingCBOR, &buf, 1<<20)
		require.NoError(t, err)
		want := strings.Repeat("z", size)
		require.NoError(t, f.WriteFrame(want))
		require.NoError(t, f.Flush())

		got, err := f.ReadFrame()
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}
