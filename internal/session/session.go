package session

import (
	"context"
	"errors"
	"sync"

	"github.com/tomoyay1622/Distributed-File-System/internal/access_table"
	"github.com/tomoyay1622/Distributed-File-System/internal/log_service"
	"github.com/tomoyay1622/Distributed-File-System/internal/protocol"
)

// Session is the server side of one client connection. It remembers which
// paths it has opened and in which mode, and turns each request into exactly
// one access table operation.
//
// A Session is driven by a single goroutine; only Close may be called from
// elsewhere.
type Session struct {
	id     string
	remote string
	table  access_table.AccessTable
	ls     log_service.LogService

	mu     sync.Mutex
	claims map[string]protocol.Mode
	closed bool

	closeOnce sync.Once
}

func NewSession(id string, remote string, table access_table.AccessTable, ls log_service.LogService) *Session {
	return &Session{
		id:     id,
		remote: remote,
		table:  table,
		ls:     ls,
		claims: make(map[string]protocol.Mode),
	}
}

func (s *Session) ID() string {
	return s.id
}

// Claims returns a copy of the paths this session currently holds.
func (s *Session) Claims() map[string]protocol.Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]protocol.Mode, len(s.claims))
	for p, m := range s.claims {
		out[p] = m
	}
	return out
}

// Handle executes one request and returns the response to send back.
func (s *Session) Handle(ctx context.Context, req protocol.Request) protocol.Response {
	if req.Malformed || !req.Known() {
		s.ls.Warn(log_service.LogEvent{
			Message:  "Invalid command",
			Metadata: map[string]any{"session": s.id, "remote": s.remote, "command": req.Command},
		})
		return protocol.Error(protocol.CodeInvalidCommand)
	}

	var resp protocol.Response
	switch req.Command {
	case protocol.CmdOpen:
		resp = s.open(req)
	case protocol.CmdRead:
		resp = s.read(req)
	case protocol.CmdWrite:
		resp = s.write(req)
	case protocol.CmdClose:
		resp = s.close(req)
	}

	if code, isErr := resp.Code(); isErr {
		s.ls.Info(log_service.LogEvent{
			Message:  "Request rejected",
			Metadata: map[string]any{"session": s.id, "command": req.Command, "path": req.Path, "code": code},
		})
	} else {
		s.ls.Debug(log_service.LogEvent{
			Message:  "Request handled",
			Metadata: map[string]any{"session": s.id, "command": req.Command, "path": req.Path},
		})
	}
	return resp
}

func (s *Session) open(req protocol.Request) protocol.Response {
	mode, err := protocol.ParseMode(req.Mode)
	if err != nil {
		return protocol.Error(protocol.CodeInvalidMode)
	}
	path, err := protocol.CleanPath(req.Path)
	if err != nil {
		return protocol.Error(protocol.CodeInvalidFilePath)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return protocol.Error(protocol.CodeFileNotOpen)
	}
	if held, ok := s.claims[path]; ok && held != mode {
		return protocol.Error(protocol.CodeAlreadyOpenInDifferentMode)
	}

	content, err := s.table.Acquire(path, mode, s.id)
	if err != nil {
		return protocol.Error(codeFor(err))
	}
	s.claims[path] = mode
	return protocol.OK(string(content))
}

func (s *Session) read(req protocol.Request) protocol.Response {
	path, err := protocol.CleanPath(req.Path)
	if err != nil {
		return protocol.Error(protocol.CodeInvalidFilePath)
	}

	s.mu.Lock()
	held, ok := s.claims[path]
	s.mu.Unlock()
	if !ok {
		return protocol.Error(protocol.CodeFileNotOpen)
	}
	if !held.ReadCapable() {
		return protocol.Error(protocol.CodeIncorrectModeForRead)
	}

	content, err := s.table.Read(path, s.id)
	if err != nil {
		return protocol.Error(codeFor(err))
	}
	return protocol.OK(string(content))
}

func (s *Session) write(req protocol.Request) protocol.Response {
	path, err := protocol.CleanPath(req.Path)
	if err != nil {
		return protocol.Error(protocol.CodeInvalidFilePath)
	}

	s.mu.Lock()
	held, ok := s.claims[path]
	s.mu.Unlock()
	if !ok {
		return protocol.Error(protocol.CodeFileNotOpen)
	}
	if !held.WriteCapable() {
		return protocol.Error(protocol.CodeIncorrectModeForWrite)
	}

	if err := s.table.Update(path, s.id, []byte(req.Content)); err != nil {
		return protocol.Error(codeFor(err))
	}
	return protocol.OK()
}

func (s *Session) close(req protocol.Request) protocol.Response {
	path, err := protocol.CleanPath(req.Path)
	if err != nil {
		return protocol.Error(protocol.CodeInvalidFilePath)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	held, ok := s.claims[path]
	if !ok {
		return protocol.Error(protocol.CodeFileNotOpen)
	}
	mode, err := protocol.ParseMode(req.Mode)
	if err != nil {
		return protocol.Error(protocol.CodeInvalidMode)
	}
	if mode != held {
		return protocol.Error(protocol.CodeModeMismatchOnClose)
	}

	var final []byte
	if held.WriteCapable() {
		final = []byte(req.Content)
	}
	if err := s.table.Release(path, s.id, held, final); err != nil {
		return protocol.Error(codeFor(err))
	}
	delete(s.claims, path)
	return protocol.OK()
}

// Close releases every claim the session still holds without flushing
// anything. It runs once no matter how many transports call it.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		claims := s.claims
		s.claims = make(map[string]protocol.Mode)
		s.closed = true
		s.mu.Unlock()

		if len(claims) > 0 {
			s.ls.Info(log_service.LogEvent{
				Message:  "Releasing claims of ended session",
				Metadata: map[string]any{"session": s.id, "remote": s.remote, "claims": len(claims)},
			})
		}
		s.table.ForceReleaseAll(s.id, claims)
	})
}

// codeFor maps access table errors onto wire error codes.
func codeFor(err error) protocol.ErrorCode {
	switch {
	case errors.Is(err, access_table.ErrFileAlreadyLocked):
		return protocol.CodeFileAlreadyLocked
	case errors.Is(err, access_table.ErrAlreadyOpenInDifferentMode):
		return protocol.CodeAlreadyOpenInDifferentMode
	case errors.Is(err, access_table.ErrFileNotOpen):
		return protocol.CodeFileNotOpen
	case errors.Is(err, access_table.ErrNotReadCapable):
		return protocol.CodeIncorrectModeForRead
	case errors.Is(err, access_table.ErrNotWriteCapable):
		return protocol.CodeIncorrectModeForWrite
	case errors.Is(err, access_table.ErrModeMismatch):
		return protocol.CodeModeMismatchOnClose
	case errors.Is(err, access_table.ErrLoadFailed):
		return protocol.CodeFailedToReadFile
	case errors.Is(err, access_table.ErrStoreFailed):
		return protocol.CodeFailedToWriteFile
	default:
		return protocol.CodeFailedToReadFile
	}
}
