package dfslib

import (
	"errors"
	"fmt"

	"github.com/tomoyay1622/Distributed-File-System/internal/protocol"
)

var (
	ErrClientClosed    = errors.New("client is closed")
	ErrTransportBroken = errors.New("connection is out of sync and was closed")
)

// ResponseError is an ERROR:<code> reply from the server.
type ResponseError struct {
	Op   string
	Path string
	Code protocol.ErrorCode
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("%s %q failed: %s", e.Op, e.Path, e.Code)
}

// IsCode reports whether err carries the given server error code.
func IsCode(err error, code protocol.ErrorCode) bool {
	var re *ResponseError
	return errors.As(err, &re) && re.Code == code
}
