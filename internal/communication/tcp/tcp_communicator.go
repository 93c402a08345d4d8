package tcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/tomoyay1622/Distributed-File-System/internal/communication"
	"github.com/tomoyay1622/Distributed-File-System/internal/log_service"
	"github.com/tomoyay1622/Distributed-File-System/internal/protocol"
)

// TCPCommunicator serves the byte-stream protocol. Every accepted connection
// gets its own goroutine and its own session.
type TCPCommunicator struct {
	listenAddress string
	framing       protocol.Framing
	maxFrameSize  int
	ls            log_service.LogService

	mu       sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}
	stopped  bool
	ctx      context.Context
	cancel   context.CancelFunc

	handlers  sync.WaitGroup
	done      chan struct{}
	acceptErr error
}

func NewTCPCommunicator(addr string, framing protocol.Framing, maxFrameSize int, ls log_service.LogService) *TCPCommunicator {
	return &TCPCommunicator{
		listenAddress: addr,
		framing:       framing,
		maxFrameSize:  maxFrameSize,
		ls:            ls,
		conns:         make(map[net.Conn]struct{}),
		done:          make(chan struct{}),
	}
}

// Address returns the bound address once started, so ":0" resolves to the
// real port.
func (c *TCPCommunicator) Address() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.listener != nil {
		return c.listener.Addr().String()
	}
	return c.listenAddress
}

func (c *TCPCommunicator) Start(factory communication.SessionFactory) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.listener != nil {
		return communication.ErrAlreadyStarted
	}

	c.ls.Info(log_service.LogEvent{
		Message:  "Starting TCP communicator",
		Metadata: map[string]any{"address": c.listenAddress, "framing": c.framing},
	})

	lis, err := net.Listen("tcp", c.listenAddress)
	if err != nil {
		c.ls.Error(log_service.LogEvent{
			Message:  "Failed to listen on address",
			Metadata: map[string]any{"address": c.listenAddress, "error": err.Error()},
		})
		return fmt.Errorf("%w: %s: %v", communication.ErrListenFailed, c.listenAddress, err)
	}
	c.listener = lis
	c.ctx, c.cancel = context.WithCancel(context.Background())

	c.ls.Info(log_service.LogEvent{
		Message:  "TCP communicator started successfully",
		Metadata: map[string]any{"address": lis.Addr().String()},
	})

	go c.acceptLoop(lis, factory)
	return nil
}

func (c *TCPCommunicator) acceptLoop(lis net.Listener, factory communication.SessionFactory) {
	defer close(c.done)
	for {
		conn, err := lis.Accept()
		if err != nil {
			c.mu.Lock()
			stopped := c.stopped
			c.mu.Unlock()
			if !stopped {
				c.ls.Error(log_service.LogEvent{
					Message:  "Accept failed",
					Metadata: map[string]any{"address": c.listenAddress, "error": err.Error()},
				})
				c.acceptErr = fmt.Errorf("%w: %v", communication.ErrAcceptFailed, err)
			}
			// Live connections are left to Stop, which closes and drains them.
			return
		}

		if !c.track(conn) {
			conn.Close()
			continue
		}
		c.handlers.Add(1)
		go func() {
			defer c.handlers.Done()
			defer c.untrack(conn)
			c.serve(conn, factory(conn.RemoteAddr().String()))
		}()
	}
}

func (c *TCPCommunicator) track(conn net.Conn) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return false
	}
	c.conns[conn] = struct{}{}
	return true
}

func (c *TCPCommunicator) untrack(conn net.Conn) {
	c.mu.Lock()
	delete(c.conns, conn)
	c.mu.Unlock()
	conn.Close()
}

// serve runs one connection's command stream until it ends. The session's
// claims are released before the socket is closed.
func (c *TCPCommunicator) serve(conn net.Conn, sess communication.Session) {
	defer sess.Close()

	remote := conn.RemoteAddr().String()
	c.ls.Info(log_service.LogEvent{
		Message:  "Client connected",
		Metadata: map[string]any{"session": sess.ID(), "remote": remote},
	})

	framer, err := protocol.NewFramer(c.framing, conn, c.maxFrameSize)
	if err != nil {
		c.ls.Error(log_service.LogEvent{
			Message:  "Failed to create framer",
			Metadata: map[string]any{"session": sess.ID(), "error": err.Error()},
		})
		return
	}

	for {
		req, err := protocol.ReadRequest(framer)
		if err != nil {
			c.logStreamEnd(sess, remote, err)
			return
		}

		resp := sess.Handle(c.ctx, req)
		if err := protocol.WriteResponse(framer, resp); err != nil {
			c.logStreamEnd(sess, remote, err)
			return
		}
	}
}

func (c *TCPCommunicator) logStreamEnd(sess communication.Session, remote string, err error) {
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		c.ls.Info(log_service.LogEvent{
			Message:  "Client disconnected",
			Metadata: map[string]any{"session": sess.ID(), "remote": remote},
		})
		return
	}
	c.ls.Warn(log_service.LogEvent{
		Message:  "Connection ended abnormally",
		Metadata: map[string]any{"session": sess.ID(), "remote": remote, "error": err.Error()},
	})
}

func (c *TCPCommunicator) Wait() error {
	c.mu.Lock()
	started := c.listener != nil
	c.mu.Unlock()
	if !started {
		return communication.ErrNotStarted
	}
	<-c.done
	return c.acceptErr
}

func (c *TCPCommunicator) Stop() error {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		c.ls.Debug(log_service.LogEvent{
			Message:  "TCP communicator already stopped, skipping",
			Metadata: map[string]any{"address": c.listenAddress},
		})
		return nil
	}
	c.stopped = true
	lis := c.listener
	for conn := range c.conns {
		conn.Close()
	}
	if c.cancel != nil {
		c.cancel()
	}
	c.mu.Unlock()

	c.ls.Info(log_service.LogEvent{
		Message:  "Stopping TCP communicator",
		Metadata: map[string]any{"address": c.listenAddress},
	})

	if lis == nil {
		return nil
	}
	err := lis.Close()
	<-c.done
	c.handlers.Wait()

	c.ls.Info(log_service.LogEvent{
		Message:  "TCP communicator stopped successfully",
		Metadata: map[string]any{"address": c.listenAddress},
	})
	if err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}

var _ communication.Communicator = (*TCPCommunicator)(nil)
