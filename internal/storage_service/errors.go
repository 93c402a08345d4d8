package storage_service

import "errors"

var (
	ErrFileNotFound = errors.New("file not found")
	ErrLoadFailed   = errors.New("failed to load file")
	ErrStoreFailed  = errors.New("failed to store file")
)
