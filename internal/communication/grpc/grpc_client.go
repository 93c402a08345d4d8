package grpccomm

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/tomoyay1622/Distributed-File-System/internal/communication"
	"github.com/tomoyay1622/Distributed-File-System/internal/protocol"
)

var ErrStreamBroken = errors.New("session stream is broken")

// SessionStream is the client end of one session stream. Requests are sent
// one at a time and each waits for its response.
type SessionStream struct {
	conn   *grpc.ClientConn
	stream grpc.ClientStream
	cancel context.CancelFunc

	mu     sync.Mutex
	broken error
	closed bool
}

// Dial connects to addr and opens a session stream whose messages may carry
// fields of up to maxFrameSize bytes. The session lives until Close.
func Dial(ctx context.Context, addr string, maxFrameSize int) (*SessionStream, error) {
	if maxFrameSize <= 0 {
		maxFrameSize = protocol.DefaultMaxFrameSize
	}
	limit := messageLimit(maxFrameSize)
	conn, err := grpc.NewClient(addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(
			grpc.MaxCallRecvMsgSize(limit),
			grpc.MaxCallSendMsgSize(limit),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", communication.ErrConnectionFailed, addr, err)
	}

	streamCtx, cancel := context.WithCancel(context.Background())
	stop := context.AfterFunc(ctx, cancel)
	stream, err := conn.NewStream(streamCtx, &fileAccessServiceDesc.Streams[0], sessionMethod)
	stop()
	if err != nil {
		cancel()
		conn.Close()
		return nil, fmt.Errorf("%w: %s: %v", communication.ErrStreamFailed, addr, err)
	}

	return &SessionStream{conn: conn, stream: stream, cancel: cancel}, nil
}

// RoundTrip sends req and waits for its response. If ctx ends first the
// stream is cancelled, which ends the server-side session and releases its
// claims; the stream cannot be used afterwards.
func (s *SessionStream) RoundTrip(ctx context.Context, req protocol.Request) (protocol.Response, error) {
	if err := ctx.Err(); err != nil {
		return protocol.Response{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.broken != nil {
		return protocol.Response{}, fmt.Errorf("%w: %v", ErrStreamBroken, s.broken)
	}

	stop := context.AfterFunc(ctx, s.cancel)
	defer stop()

	resp, err := s.roundTrip(req)
	if err != nil {
		if ctx.Err() != nil {
			err = fmt.Errorf("%w: %v", ctx.Err(), err)
		}
		s.broken = err
		s.cancel()
		return protocol.Response{}, err
	}
	return resp, nil
}

func (s *SessionStream) roundTrip(req protocol.Request) (protocol.Response, error) {
	if err := s.stream.SendMsg(encodeFields(req.Frames())); err != nil {
		return protocol.Response{}, err
	}
	in := &structpb.ListValue{}
	if err := s.stream.RecvMsg(in); err != nil {
		return protocol.Response{}, err
	}
	fields, err := decodeFields(in)
	if err != nil {
		return protocol.Response{}, err
	}
	if len(fields) == 0 {
		return protocol.Response{}, fmt.Errorf("%w: empty response", protocol.ErrUnexpectedResponse)
	}
	return protocol.Response{Fields: fields}, nil
}

// Close ends the stream, which ends the server-side session.
func (s *SessionStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.broken == nil {
		s.stream.CloseSend()
	}
	s.broken = ErrStreamBroken
	s.cancel()
	return s.conn.Close()
}
