package communication

import "errors"

var (
	// Server startup/shutdown errors
	ErrListenFailed   = errors.New("failed to listen on address")
	ErrAcceptFailed   = errors.New("failed to accept connection")
	ErrNotStarted     = errors.New("communicator not started")
	ErrAlreadyStarted = errors.New("communicator already started")

	// Client connection errors
	ErrConnectionFailed = errors.New("failed to connect to server")
	ErrStreamFailed     = errors.New("failed to open stream")
)
