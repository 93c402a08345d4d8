package access_table

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/zeebo/blake3"
	"golang.org/x/exp/maps"

	"github.com/tomoyay1622/Distributed-File-System/internal/log_service"
	"github.com/tomoyay1622/Distributed-File-System/internal/protocol"
	"github.com/tomoyay1622/Distributed-File-System/internal/storage_service"
)

// accessRecord is the state of one open path. All fields below mu are
// guarded by it.
type accessRecord struct {
	path string

	mu      sync.Mutex
	loaded  bool
	removed bool
	holders map[string]protocol.Mode
	content []byte
	dirty   bool

	// onDisk is false until the file exists in storage; persisted is the
	// digest of what storage holds.
	onDisk    bool
	persisted [32]byte
}

// mode returns the record's mode: the writer's mode when one holds it,
// READ_ONLY when only readers do.
func (r *accessRecord) mode() protocol.Mode {
	if len(r.holders) == 0 {
		return ""
	}
	for _, m := range r.holders {
		if m.WriteCapable() {
			return m
		}
	}
	return protocol.ReadOnly
}

type InMemoryAccessTable struct {
	mu      sync.RWMutex
	records map[string]*accessRecord

	storage storage_service.StorageService
	ls      log_service.LogService
}

func NewInMemoryAccessTable(storage storage_service.StorageService, ls log_service.LogService) *InMemoryAccessTable {
	return &InMemoryAccessTable{
		records: make(map[string]*accessRecord),
		storage: storage,
		ls:      ls,
	}
}

// lockRecord returns the live record for path with its mutex held, creating
// one when create is set. A record that was unlinked while we waited for its
// mutex is skipped and the lookup retried. The table mutex is never held
// while waiting on a record mutex.
func (t *InMemoryAccessTable) lockRecord(path string, create bool) *accessRecord {
	for {
		t.mu.Lock()
		rec, ok := t.records[path]
		if !ok {
			if !create {
				t.mu.Unlock()
				return nil
			}
			rec = &accessRecord{
				path:    path,
				holders: make(map[string]protocol.Mode),
			}
			t.records[path] = rec
		}
		t.mu.Unlock()

		rec.mu.Lock()
		if !rec.removed {
			return rec
		}
		rec.mu.Unlock()
	}
}

// unlink removes rec from the table. Caller holds rec.mu.
func (t *InMemoryAccessTable) unlink(rec *accessRecord) {
	rec.removed = true
	t.mu.Lock()
	if t.records[rec.path] == rec {
		delete(t.records, rec.path)
	}
	t.mu.Unlock()
}

// load fills a fresh record from storage. Caller holds rec.mu.
func (t *InMemoryAccessTable) load(rec *accessRecord) error {
	data, err := t.storage.Load(rec.path)
	switch {
	case err == nil:
		rec.onDisk = true
	case errors.Is(err, storage_service.ErrFileNotFound):
		data = []byte{}
	default:
		return fmt.Errorf("%w: %v", ErrLoadFailed, err)
	}
	rec.content = data
	rec.persisted = blake3.Sum256(data)
	rec.loaded = true
	return nil
}

func (t *InMemoryAccessTable) Acquire(path string, mode protocol.Mode, sessionID string) ([]byte, error) {
	rec := t.lockRecord(path, true)
	defer rec.mu.Unlock()

	if !rec.loaded {
		if err := t.load(rec); err != nil {
			t.unlink(rec)
			t.ls.Error(log_service.LogEvent{
				Message:  "Failed to load file for open",
				Metadata: map[string]any{"path": path, "session": sessionID, "error": err.Error()},
			})
			return nil, err
		}
	}

	if held, ok := rec.holders[sessionID]; ok {
		if held != mode {
			return nil, ErrAlreadyOpenInDifferentMode
		}
		return cloneBytes(rec.content), nil
	}

	current := rec.mode()
	switch {
	case current == "":
	case current.WriteCapable():
		return nil, ErrFileAlreadyLocked
	case mode.WriteCapable():
		return nil, ErrFileAlreadyLocked
	}

	rec.holders[sessionID] = mode
	t.ls.Debug(log_service.LogEvent{
		Message:  "Access granted",
		Metadata: map[string]any{"path": path, "session": sessionID, "mode": mode, "holders": len(rec.holders)},
	})
	return cloneBytes(rec.content), nil
}

func (t *InMemoryAccessTable) Read(path string, sessionID string) ([]byte, error) {
	rec := t.lockRecord(path, false)
	if rec == nil {
		return nil, ErrFileNotOpen
	}
	defer rec.mu.Unlock()

	held, ok := rec.holders[sessionID]
	if !ok {
		return nil, ErrFileNotOpen
	}
	if !held.ReadCapable() {
		return nil, ErrNotReadCapable
	}
	return cloneBytes(rec.content), nil
}

func (t *InMemoryAccessTable) Update(path string, sessionID string, content []byte) error {
	rec := t.lockRecord(path, false)
	if rec == nil {
		return ErrFileNotOpen
	}
	defer rec.mu.Unlock()

	held, ok := rec.holders[sessionID]
	if !ok {
		return ErrFileNotOpen
	}
	if !held.WriteCapable() {
		return ErrNotWriteCapable
	}

	rec.content = cloneBytes(content)
	rec.dirty = blake3.Sum256(rec.content) != rec.persisted || !rec.onDisk
	return nil
}

func (t *InMemoryAccessTable) Release(path string, sessionID string, mode protocol.Mode, finalContent []byte) error {
	rec := t.lockRecord(path, false)
	if rec == nil {
		return ErrFileNotOpen
	}
	defer rec.mu.Unlock()

	held, ok := rec.holders[sessionID]
	if !ok {
		return ErrFileNotOpen
	}
	if held != mode {
		return ErrModeMismatch
	}

	if held.WriteCapable() {
		if finalContent != nil {
			rec.content = cloneBytes(finalContent)
		}
		digest := blake3.Sum256(rec.content)
		if !rec.onDisk || digest != rec.persisted {
			// The holder stays on failure so the client can retry CLOSE.
			if err := t.storage.Store(path, rec.content); err != nil {
				rec.dirty = true
				return fmt.Errorf("%w: %v", ErrStoreFailed, err)
			}
			rec.onDisk = true
			rec.persisted = digest
			t.ls.Info(log_service.LogEvent{
				Message:  "Flushed file on close",
				Metadata: map[string]any{"path": path, "session": sessionID, "bytes": len(rec.content)},
			})
		}
		rec.dirty = false
	}

	t.dropHolder(rec, sessionID)
	return nil
}

func (t *InMemoryAccessTable) ForceReleaseAll(sessionID string, claims map[string]protocol.Mode) {
	for path := range claims {
		rec := t.lockRecord(path, false)
		if rec == nil {
			continue
		}
		if _, ok := rec.holders[sessionID]; ok {
			if rec.dirty {
				t.ls.Warn(log_service.LogEvent{
					Message:  "Discarding unflushed content of disconnected session",
					Metadata: map[string]any{"path": path, "session": sessionID},
				})
			}
			t.dropHolder(rec, sessionID)
		}
		rec.mu.Unlock()
	}
}

// dropHolder removes sessionID and unlinks the record once nobody holds it.
// A writer is always the only holder, so whatever it left unflushed goes
// with the record. Caller holds rec.mu.
func (t *InMemoryAccessTable) dropHolder(rec *accessRecord, sessionID string) {
	delete(rec.holders, sessionID)
	if len(rec.holders) == 0 {
		t.unlink(rec)
	}
	t.ls.Debug(log_service.LogEvent{
		Message:  "Access released",
		Metadata: map[string]any{"path": rec.path, "session": sessionID, "holders": len(rec.holders)},
	})
}

func (t *InMemoryAccessTable) Snapshot() []RecordInfo {
	t.mu.RLock()
	recs := maps.Values(t.records)
	t.mu.RUnlock()

	infos := make([]RecordInfo, 0, len(recs))
	for _, rec := range recs {
		rec.mu.Lock()
		if !rec.removed && len(rec.holders) > 0 {
			holders := maps.Keys(rec.holders)
			sort.Strings(holders)
			infos = append(infos, RecordInfo{
				Path:    rec.path,
				Mode:    rec.mode(),
				Holders: holders,
				Dirty:   rec.dirty,
				Size:    len(rec.content),
			})
		}
		rec.mu.Unlock()
	}

	sort.Slice(infos, func(i, j int) bool { return infos[i].Path < infos[j].Path })
	return infos
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

var _ AccessTable = (*InMemoryAccessTable)(nil)
