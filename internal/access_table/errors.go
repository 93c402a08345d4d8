package access_table

import "errors"

var (
	// Contention
	ErrFileAlreadyLocked          = errors.New("file already locked")
	ErrAlreadyOpenInDifferentMode = errors.New("file already open in a different mode")

	// Claim validation
	ErrFileNotOpen     = errors.New("file not open")
	ErrNotReadCapable  = errors.New("file not open in a read-capable mode")
	ErrNotWriteCapable = errors.New("file not open in a write-capable mode")
	ErrModeMismatch    = errors.New("mode does not match the open claim")

	// Storage
	ErrLoadFailed  = errors.New("failed to load file content")
	ErrStoreFailed = errors.New("failed to flush file content")
)
