package server

import "errors"

var (
	// Server lifecycle errors
	ErrServerStartFailed = errors.New("failed to start server")
	ErrServerStopFailed  = errors.New("failed to stop server")
	ErrNoCommunicators   = errors.New("no communicators configured")
)
