package server

import "context"

// Server owns the listeners and the access table they share.
type Server interface {
	Start() error
	Stop() error
	// Run starts the server and blocks until ctx is done or a listener
	// fails, then stops it.
	Run(ctx context.Context) error
}
