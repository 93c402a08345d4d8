package grpccomm

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/peer"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/tomoyay1622/Distributed-File-System/internal/communication"
	"github.com/tomoyay1622/Distributed-File-System/internal/log_service"
	"github.com/tomoyay1622/Distributed-File-System/internal/protocol"
)

// GRPCCommunicator serves the protocol over a bidirectional gRPC stream. One
// stream is one session; each message carries a whole request or response as
// a list of strings.
type GRPCCommunicator struct {
	listenAddress string
	maxFrameSize  int
	grpcServer    *grpc.Server
	ls            log_service.LogService

	mu       sync.Mutex
	listener net.Listener
	factory  communication.SessionFactory
	stopped  bool

	done     chan struct{}
	serveErr error
}

// NewGRPCCommunicator builds a communicator whose messages may carry fields of
// up to maxFrameSize bytes. maxFrameSize <= 0 means DefaultMaxFrameSize.
func NewGRPCCommunicator(addr string, maxFrameSize int, ls log_service.LogService) *GRPCCommunicator {
	if maxFrameSize <= 0 {
		maxFrameSize = protocol.DefaultMaxFrameSize
	}
	return &GRPCCommunicator{
		listenAddress: addr,
		maxFrameSize:  maxFrameSize,
		ls:            ls,
		done:          make(chan struct{}),
	}
}

func (c *GRPCCommunicator) Address() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.listener != nil {
		return c.listener.Addr().String()
	}
	return c.listenAddress
}

func (c *GRPCCommunicator) Start(factory communication.SessionFactory) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.listener != nil {
		return communication.ErrAlreadyStarted
	}

	c.ls.Info(log_service.LogEvent{
		Message:  "Starting GRPC communicator",
		Metadata: map[string]any{"address": c.listenAddress},
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
	c.factory = factory
	limit := messageLimit(c.maxFrameSize)
	c.grpcServer = grpc.NewServer(
		// Stop must not return before every session has released its claims.
		grpc.WaitForHandlers(true),
		grpc.MaxRecvMsgSize(limit),
		grpc.MaxSendMsgSize(limit),
	)
	c.grpcServer.RegisterService(&fileAccessServiceDesc, &fileAccessHandler{comm: c})

	c.ls.Info(log_service.LogEvent{
		Message:  "GRPC communicator started successfully",
		Metadata: map[string]any{"address": lis.Addr().String()},
	})

	go func() {
		defer close(c.done)
		if err := c.grpcServer.Serve(lis); err != nil {
			c.ls.Error(log_service.LogEvent{
				Message:  "GRPC server error",
				Metadata: map[string]any{"address": c.listenAddress, "error": err.Error()},
			})
			c.serveErr = fmt.Errorf("%w: %v", communication.ErrAcceptFailed, err)
		}
	}()
	return nil
}

func (c *GRPCCommunicator) Wait() error {
	c.mu.Lock()
	started := c.listener != nil
	c.mu.Unlock()
	if !started {
		return communication.ErrNotStarted
	}
	<-c.done
	return c.serveErr
}

// Stop tears down every open stream. GracefulStop is not used since a
// session stream only ends when its client disconnects.
func (c *GRPCCommunicator) Stop() error {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		c.ls.Debug(log_service.LogEvent{
			Message:  "GRPC communicator already stopped, skipping",
			Metadata: map[string]any{"address": c.listenAddress},
		})
		return nil
	}
	c.stopped = true
	srv := c.grpcServer
	c.mu.Unlock()

	c.ls.Info(log_service.LogEvent{
		Message:  "Stopping GRPC communicator",
		Metadata: map[string]any{"address": c.listenAddress},
	})

	if srv != nil {
		srv.Stop()
		<-c.done
	}

	c.ls.Info(log_service.LogEvent{
		Message:  "GRPC communicator stopped successfully",
		Metadata: map[string]any{"address": c.listenAddress},
	})
	return nil
}

type fileAccessServer interface {
	Session(stream grpc.ServerStream) error
}

type fileAccessHandler struct {
	comm *GRPCCommunicator
}

func (h *fileAccessHandler) Session(stream grpc.ServerStream) error {
	c := h.comm
	remote := "unknown"
	if p, ok := peer.FromContext(stream.Context()); ok && p.Addr != nil {
		remote = p.Addr.String()
	}

	sess := c.factory(remote)
	defer sess.Close()

	c.ls.Info(log_service.LogEvent{
		Message:  "Client stream opened",
		Metadata: map[string]any{"session": sess.ID(), "remote": remote},
	})

	for {
		in := &structpb.ListValue{}
		if err := stream.RecvMsg(in); err != nil {
			if errors.Is(err, io.EOF) {
				c.ls.Info(log_service.LogEvent{
					Message:  "Client stream closed",
					Metadata: map[string]any{"session": sess.ID(), "remote": remote},
				})
				return nil
			}
			c.ls.Warn(log_service.LogEvent{
				Message:  "Client stream ended abnormally",
				Metadata: map[string]any{"session": sess.ID(), "remote": remote, "error": err.Error()},
			})
			return err
		}

		req := decodeRequest(in)
		resp := sess.Handle(stream.Context(), req)
		if err := stream.SendMsg(encodeFields(resp.Fields)); err != nil {
			c.ls.Warn(log_service.LogEvent{
				Message:  "Failed to send response",
				Metadata: map[string]any{"session": sess.ID(), "remote": remote, "error": err.Error()},
			})
			return err
		}
	}
}

func sessionStreamHandler(srv any, stream grpc.ServerStream) error {
	return srv.(fileAccessServer).Session(stream)
}

// maxFieldsPerMessage is the field count of the largest request, CLOSE.
const maxFieldsPerMessage = 4

// messageLimit bounds one gRPC message: every field at the frame limit plus
// the protobuf envelope around each.
func messageLimit(maxFrameSize int) int {
	return maxFieldsPerMessage*(maxFrameSize+16) + 64
}

const (
	serviceName       = "dfs.FileAccess"
	sessionStreamName = "Session"
	sessionMethod     = "/" + serviceName + "/" + sessionStreamName
)

var fileAccessServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*fileAccessServer)(nil),
	Streams: []grpc.StreamDesc{
		{
			StreamName:    sessionStreamName,
			Handler:       sessionStreamHandler,
			ServerStreams: true,
			ClientStreams: true,
		},
	},
	Metadata: "dfs/file_access.proto",
}

// decodeRequest turns a list of string values into a request. A list holding
// anything other than strings is malformed.
func decodeRequest(in *structpb.ListValue) protocol.Request {
	frames := make([]string, 0, len(in.GetValues()))
	for _, v := range in.GetValues() {
		s, ok := v.GetKind().(*structpb.Value_StringValue)
		if !ok {
			return protocol.Request{Malformed: true}
		}
		frames = append(frames, s.StringValue)
	}
	return protocol.RequestFromFrames(frames)
}

func encodeFields(fields []string) *structpb.ListValue {
	out := &structpb.ListValue{Values: make([]*structpb.Value, 0, len(fields))}
	for _, f := range fields {
		out.Values = append(out.Values, structpb.NewStringValue(f))
	}
	return out
}

func decodeFields(in *structpb.ListValue) ([]string, error) {
	fields := make([]string, 0, len(in.GetValues()))
	for _, v := range in.GetValues() {
		s, ok := v.GetKind().(*structpb.Value_StringValue)
		if !ok {
			return nil, fmt.Errorf("%w: non-string field", protocol.ErrMalformedFrame)
		}
		fields = append(fields, s.StringValue)
	}
	return fields, nil
}

var _ communication.Communicator = (*GRPCCommunicator)(nil)
