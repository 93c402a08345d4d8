package communication

import (
	"context"

	"github.com/tomoyay1622/Distributed-File-System/internal/protocol"
)

// Session is what a communicator drives for each connection. Requests on one
// connection are handed to Handle strictly in order; Close is called exactly
// when the connection ends, however it ends.
type Session interface {
	ID() string
	Handle(ctx context.Context, req protocol.Request) protocol.Response
	Close()
}

// SessionFactory creates the session for a newly accepted connection.
type SessionFactory func(remote string) Session

type Communicator interface {
	// Start binds the listener and begins accepting in the background.
	Start(factory SessionFactory) error
	// Wait blocks until the accept loop ends. It returns nil after Stop and
	// the accept error otherwise.
	Wait() error
	// Stop closes the listener and every live connection, and returns once
	// their sessions are closed. It must be called after Wait reports an error.
	Stop() error
	Address() string
}
