package access_table

import "github.com/tomoyay1622/Distributed-File-System/internal/protocol"

// AccessTable is the process-wide record of which sessions hold which files.
// Every method is one atomic step with respect to a single path; no lock is
// held between calls.
type AccessTable interface {
	// Acquire grants sessionID a claim on path under mode and returns the
	// record's current content.
	Acquire(path string, mode protocol.Mode, sessionID string) ([]byte, error)
	// Read returns the cached content to any holder.
	Read(path string, sessionID string) ([]byte, error)
	// Update replaces the cached content. Only a write-capable holder may
	// call it; nothing is persisted until Release.
	Update(path string, sessionID string, content []byte) error
	// Release drops sessionID's claim. For write-capable claims the final
	// content (nil means the cached content) is flushed to storage first
	// when it differs from what is persisted.
	Release(path string, sessionID string, mode protocol.Mode, finalContent []byte) error
	// ForceReleaseAll drops every listed claim without flushing.
	ForceReleaseAll(sessionID string, claims map[string]protocol.Mode)
	// Snapshot returns a sorted point-in-time copy of every record.
	Snapshot() []RecordInfo
}

// RecordInfo describes one access record.
type RecordInfo struct {
	Path    string
	Mode    protocol.Mode
	Holders []string
	Dirty   bool
	Size    int
}
