package storage_service

// StorageService persists whole-file content beneath a single sandbox root.
// Paths are sandbox-relative and already canonical.
type StorageService interface {
	// Load returns ErrFileNotFound when nothing is stored at path.
	Load(path string) ([]byte, error)
	// Store replaces the file at path, creating parent directories.
	Store(path string, data []byte) error
}
