package server

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/tomoyay1622/Distributed-File-System/internal/access_table"
	"github.com/tomoyay1622/Distributed-File-System/internal/communication"
	"github.com/tomoyay1622/Distributed-File-System/internal/log_service"
	"github.com/tomoyay1622/Distributed-File-System/internal/session"
)

type DefaultServer struct {
	comms []communication.Communicator
	table access_table.AccessTable
	ls    log_service.LogService

	mu      sync.Mutex
	started []communication.Communicator
}

func NewDefaultServer(table access_table.AccessTable, ls log_service.LogService, comms ...communication.Communicator) *DefaultServer {
	return &DefaultServer{
		comms: comms,
		table: table,
		ls:    ls,
	}
}

// newSession mints a session for every accepted connection.
func (s *DefaultServer) newSession(remote string) communication.Session {
	return session.NewSession(uuid.NewString(), remote, s.table, s.ls)
}

// Start starts every communicator. If one fails to bind, the ones already
// started are stopped again.
func (s *DefaultServer) Start() error {
	if len(s.comms) == 0 {
		return ErrNoCommunicators
	}
	s.ls.Info(log_service.LogEvent{
		Message:  "Starting server",
		Metadata: map[string]any{"communicators": len(s.comms)},
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.comms {
		if err := c.Start(s.newSession); err != nil {
			for _, started := range s.started {
				started.Stop()
			}
			s.started = nil
			return fmt.Errorf("%w: %w", ErrServerStartFailed, err)
		}
		s.started = append(s.started, c)
		s.ls.Info(log_service.LogEvent{
			Message:  "Listening",
			Metadata: map[string]any{"address": c.Address()},
		})
	}
	return nil
}

func (s *DefaultServer) Stop() error {
	s.mu.Lock()
	started := s.started
	s.started = nil
	s.mu.Unlock()

	s.ls.Info(log_service.LogEvent{Message: "Stopping server"})

	var errs []error
	for _, c := range started {
		if err := c.Stop(); err != nil {
			s.ls.Error(log_service.LogEvent{
				Message:  "Failed to stop communicator",
				Metadata: map[string]any{"address": c.Address(), "error": err.Error()},
			})
			errs = append(errs, err)
		}
	}

	s.logOpenRecords()
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrServerStopFailed, errors.Join(errs...))
	}
	return nil
}

func (s *DefaultServer) Run(ctx context.Context) error {
	if err := s.Start(); err != nil {
		return err
	}

	s.mu.Lock()
	started := append([]communication.Communicator(nil), s.started...)
	s.mu.Unlock()

	failed := make(chan error, len(started))
	for _, c := range started {
		go func() {
			if err := c.Wait(); err != nil {
				failed <- err
			}
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
		s.ls.Info(log_service.LogEvent{Message: "Shutdown requested"})
	case runErr = <-failed:
		s.ls.Error(log_service.LogEvent{
			Message:  "Listener failed, shutting down",
			Metadata: map[string]any{"error": runErr.Error()},
		})
	}

	if err := s.Stop(); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

// logOpenRecords reports anything still held after the listeners are gone,
// which should be nothing once every session has been closed.
func (s *DefaultServer) logOpenRecords() {
	for _, rec := range s.table.Snapshot() {
		s.ls.Warn(log_service.LogEvent{
			Message: "File still held at shutdown",
			Metadata: map[string]any{
				"path":    rec.Path,
				"mode":    rec.Mode,
				"holders": rec.Holders,
				"dirty":   rec.Dirty,
			},
		})
	}
}

// Addresses returns the bound address of every started communicator.
func (s *DefaultServer) Addresses() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.started))
	for _, c := range s.started {
		out = append(out, c.Address())
	}
	return out
}

var _ Server = (*DefaultServer)(nil)
