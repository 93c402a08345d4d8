package grpccomm

import (
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/tomoyay1622/Distributed-File-System/internal/communication"
	"github.com/tomoyay1622/Distributed-File-System/internal/log_service"
	"github.com/tomoyay1622/Distributed-File-System/internal/protocol"
)

type recordingSession struct {
	id string

	mu     sync.Mutex
	seen   []protocol.Request
	closed bool
}

func (s *recordingSession) ID() string { return s.id }

// blockPath makes Handle wait until its context ends.
const blockPath = "block"

func (s *recordingSession) Handle(ctx context.Context, req protocol.Request) protocol.Response {
	s.mu.Lock()
	s.seen = append(s.seen, req)
	s.mu.Unlock()
	if req.Path == blockPath {
		<-ctx.Done()
		return protocol.OK()
	}
	if req.Malformed || !req.Known() {
		return protocol.Error(protocol.CodeInvalidCommand)
	}
	if req.Command == protocol.CmdRead {
		return protocol.OK("content of " + req.Path)
	}
	return protocol.OK()
}

func (s *recordingSession) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

func (s *recordingSession) seenCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.seen)
}

func (s *recordingSession) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func startServer(t *testing.T) (*GRPCCommunicator, func() []*recordingSession) {
	t.Helper()
	var mu sync.Mutex
	var sessions []*recordingSession

	ls := log_service.NewWriterLogService(io.Discard, "test")
	comm := NewGRPCCommunicator("127.0.0.1:0", protocol.DefaultMaxFrameSize, ls)
	require.NoError(t, comm.Start(func(remote string) communication.Session {
		mu.Lock()
		defer mu.Unlock()
		s := &recordingSession{id: remote}
		sessions = append(sessions, s)
		return s
	}))
	t.Cleanup(func() { comm.Stop() })

	return comm, func() []*recordingSession {
		mu.Lock()
		defer mu.Unlock()
		return append([]*recordingSession(nil), sessions...)
	}
}

func TestGRPCCommunicator_RoundTrip(t *testing.T) {
	comm, sessions := startServer(t)
	ctx := context.Background()

	stream, err := Dial(ctx, comm.Address(), protocol.DefaultMaxFrameSize)
	require.NoError(t, err)
	defer stream.Close()

	resp, err := stream.RoundTrip(ctx, protocol.Request{Command: protocol.CmdOpen, Path: "a.txt", Mode: "READ_ONLY"})
	require.NoError(t, err)
	assert.Equal(t, []string{"OK"}, resp.Fields)

	resp, err = stream.RoundTrip(ctx, protocol.Request{Command: protocol.CmdRead, Path: "a.txt"})
	require.NoError(t, err)
	assert.Equal(t, "content of a.txt", resp.Content())

	resp, err = stream.RoundTrip(ctx, protocol.Request{Command: "STAT"})
	require.NoError(t, err)
	code, isErr := resp.Code()
	require.True(t, isErr)
	assert.Equal(t, protocol.CodeInvalidCommand, code)

	all := sessions()
	require.Len(t, all, 1)
	assert.NotEmpty(t, all[0].ID())
}

func TestGRPCCommunicator_CloseEndsSession(t *testing.T) {
	comm, sessions := startServer(t)
	ctx := context.Background()

	stream, err := Dial(ctx, comm.Address(), protocol.DefaultMaxFrameSize)
	require.NoError(t, err)
	_, err = stream.RoundTrip(ctx, protocol.Request{Command: protocol.CmdRead, Path: "x"})
	require.NoError(t, err)
	require.NoError(t, stream.Close())

	assert.Eventually(t, func() bool {
		all := sessions()
		return len(all) == 1 && all[0].isClosed()
	}, 2*time.Second, 10*time.Millisecond)
}

func TestGRPCCommunicator_StopEndsStreams(t *testing.T) {
	comm, sessions := startServer(t)
	ctx := context.Background()

	stream, err := Dial(ctx, comm.Address(), protocol.DefaultMaxFrameSize)
	require.NoError(t, err)
	defer stream.Close()
	_, err = stream.RoundTrip(ctx, protocol.Request{Command: protocol.CmdRead, Path: "x"})
	require.NoError(t, err)

	require.NoError(t, comm.Stop())
	require.NoError(t, comm.Stop())
	assert.NoError(t, comm.Wait())
	assert.True(t, sessions()[0].isClosed())

	_, err = stream.RoundTrip(ctx, protocol.Request{Command: protocol.CmdRead, Path: "x"})
	assert.Error(t, err)
}

func TestDecodeRequest(t *testing.T) {
	list, err := structpb.NewList([]any{"WRITE", "a.txt", "line1\nline2"})
	require.NoError(t, err)
	assert.Equal(t, protocol.Request{Command: "WRITE", Path: "a.txt", Content: "line1\nline2"}, decodeRequest(list))

	short, err := structpb.NewList([]any{"WRITE", "a.txt"})
	require.NoError(t, err)
	assert.True(t, decodeRequest(short).Malformed)

	mixed, err := structpb.NewList([]any{"READ", 42.0})
	require.NoError(t, err)
	assert.True(t, decodeRequest(mixed).Malformed)

	_, err = decodeFields(mixed)
	assert.ErrorIs(t, err, protocol.ErrMalformedFrame)
}

func TestGRPCCommunicator_CarriesFieldsAboveGRPCDefaultLimit(t *testing.T) {
	comm, sessions := startServer(t)
	ctx := context.Background()

	stream, err := Dial(ctx, comm.Address(), protocol.DefaultMaxFrameSize)
	require.NoError(t, err)
	defer stream.Close()

	big := strings.Repeat("w", 5<<20)
	resp, err := stream.RoundTrip(ctx, protocol.Request{Command: protocol.CmdWrite, Path: "a.txt", Content: big})
	require.NoError(t, err)
	assert.Equal(t, []string{"OK"}, resp.Fields)

	resp, err = stream.RoundTrip(ctx, protocol.Request{Command: protocol.CmdRead, Path: big})
	require.NoError(t, err)
	assert.Len(t, resp.Content(), len("content of ")+len(big))

	all := sessions()
	require.Len(t, all, 1)
	assert.Equal(t, 2, all[0].seenCount())
	assert.False(t, all[0].isClosed())
}

func TestGRPCCommunicator_CancelledRoundTripBreaksStream(t *testing.T) {
	comm, sessions := startServer(t)

	stream, err := Dial(context.Background(), comm.Address(), protocol.DefaultMaxFrameSize)
	require.NoError(t, err)
	defer stream.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err = stream.RoundTrip(ctx, protocol.Request{Command: protocol.CmdRead, Path: blockPath})
	require.ErrorIs(t, err, context.DeadlineExceeded)

	_, err = stream.RoundTrip(context.Background(), protocol.Request{Command: protocol.CmdRead, Path: "x"})
	assert.ErrorIs(t, err, ErrStreamBroken)

	assert.Eventually(t, func() bool {
		all := sessions()
		return len(all) == 1 && all[0].isClosed()
	}, 2*time.Second, 10*time.Millisecond)
}
