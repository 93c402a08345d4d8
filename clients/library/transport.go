package dfslib

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/tomoyay1622/Distributed-File-System/internal/communication"
	grpccomm "github.com/tomoyay1622/Distributed-File-System/internal/communication/grpc"
	"github.com/tomoyay1622/Distributed-File-System/internal/protocol"
)

type tcpTransport struct {
	conn   net.Conn
	framer protocol.Framer

	mu     sync.Mutex
	broken error
}

func newTCPTransport(ctx context.Context, addr string, framing protocol.Framing) (*tcpTransport, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", communication.ErrConnectionFailed, addr, err)
	}
	framer, err := protocol.NewFramer(framing, conn, protocol.DefaultMaxFrameSize)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return &tcpTransport{conn: conn, framer: framer}, nil
}

// RoundTrip writes req and reads its response. A failed write or read leaves
// the stream at an unknown frame boundary, so the connection is closed and
// every later call fails with ErrTransportBroken.
func (t *tcpTransport) RoundTrip(ctx context.Context, req protocol.Request) (protocol.Response, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.broken != nil {
		return protocol.Response{}, fmt.Errorf("%w: %v", ErrTransportBroken, t.broken)
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Time{}
	}
	if err := t.conn.SetDeadline(deadline); err != nil {
		return protocol.Response{}, err
	}
	stop := context.AfterFunc(ctx, func() {
		t.conn.SetDeadline(time.Unix(1, 0))
	})
	defer stop()

	if err := protocol.WriteRequest(t.framer, req); err != nil {
		return protocol.Response{}, t.fail(ctxErr(ctx, err))
	}
	resp, err := protocol.ReadResponse(t.framer, req.Command)
	if err != nil {
		return protocol.Response{}, t.fail(ctxErr(ctx, err))
	}
	return resp, nil
}

func (t *tcpTransport) fail(err error) error {
	t.broken = err
	t.conn.Close()
	return err
}

func (t *tcpTransport) Close() error {
	return t.conn.Close()
}

// ctxErr prefers the context's error when the context caused the failure.
func ctxErr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return fmt.Errorf("%w: %v", ctx.Err(), err)
	}
	return err
}

// DialTCP connects over the byte-stream protocol with the given framing.
func DialTCP(ctx context.Context, addr string, framing protocol.Framing) (*Client, error) {
	t, err := newTCPTransport(ctx, addr, framing)
	if err != nil {
		return nil, err
	}
	return NewClient(addr, t), nil
}

// DialGRPC connects over the gRPC session stream.
func DialGRPC(ctx context.Context, addr string) (*Client, error) {
	s, err := grpccomm.Dial(ctx, addr, protocol.DefaultMaxFrameSize)
	if err != nil {
		return nil, err
	}
	return NewClient(addr, s), nil
}
