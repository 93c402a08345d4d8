package dfslib

import (
	"context"
	"sync"

	"github.com/tomoyay1622/Distributed-File-System/internal/protocol"
)

// Transport carries one request to the server and returns its response. A
// transport is one server-side session: dropping it releases every claim.
type Transport interface {
	RoundTrip(ctx context.Context, req protocol.Request) (protocol.Response, error)
	Close() error
}

// OpenFile is one entry in the client-side table of claims.
type OpenFile struct {
	Path string
	Mode protocol.Mode
}

// Client holds the state of one connection to the file server.
//
// TableMu protects OpenFiles. Requests are serialized by the transport, so a
// Client may be shared between goroutines.
type Client struct {
	ServerAddr string
	Transport  Transport

	OpenFiles map[string]*OpenFile
	TableMu   sync.RWMutex
}
