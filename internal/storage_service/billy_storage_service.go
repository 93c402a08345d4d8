package storage_service

import (
	"errors"
	"fmt"
	"os"
	"path"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/google/uuid"

	"github.com/tomoyay1622/Distributed-File-System/internal/log_service"
)

const (
	filePerm  = 0o644
	dirPerm   = 0o755
	tmpPrefix = ".dfs-tmp-"
)

// BillyStorageService stores files on a go-billy filesystem.
type BillyStorageService struct {
	fs billy.Filesystem
	ls log_service.LogService
}

func NewBillyStorageService(fs billy.Filesystem, ls log_service.LogService) *BillyStorageService {
	return &BillyStorageService{
		fs: fs,
		ls: ls,
	}
}

// NewLocalDiscStorageService roots storage at root on the local disk. The
// bound OS filesystem refuses to resolve any path outside root, including
// through symlinks.
func NewLocalDiscStorageService(root string, ls log_service.LogService) (*BillyStorageService, error) {
	if err := os.MkdirAll(root, dirPerm); err != nil {
		return nil, fmt.Errorf("creating storage root %s: %w", root, err)
	}
	return NewBillyStorageService(osfs.New(root, osfs.WithBoundOS()), ls), nil
}

func NewInMemoryStorageService(ls log_service.LogService) *BillyStorageService {
	return NewBillyStorageService(memfs.New(), ls)
}

func (s *BillyStorageService) Load(p string) ([]byte, error) {
	data, err := util.ReadFile(s.fs, p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrFileNotFound
		}
		s.ls.Error(log_service.LogEvent{
			Message:  "Failed to load file",
			Metadata: map[string]any{"path": p, "error": err.Error()},
		})
		return nil, fmt.Errorf("%w: %s: %v", ErrLoadFailed, p, err)
	}

	s.ls.Debug(log_service.LogEvent{
		Message:  "Loaded file",
		Metadata: map[string]any{"path": p, "bytes": len(data)},
	})
	return data, nil
}

// Store writes data to a temp file next to the target and renames it into
// place, so readers of the disk never see a half-written file.
func (s *BillyStorageService) Store(p string, data []byte) error {
	if err := s.store(p, data); err != nil {
		s.ls.Error(log_service.LogEvent{
			Message:  "Failed to store file",
			Metadata: map[string]any{"path": p, "error": err.Error()},
		})
		return fmt.Errorf("%w: %s: %v", ErrStoreFailed, p, err)
	}

	s.ls.Debug(log_service.LogEvent{
		Message:  "Stored file",
		Metadata: map[string]any{"path": p, "bytes": len(data)},
	})
	return nil
}

func (s *BillyStorageService) store(p string, data []byte) error {
	dir := path.Dir(p)
	if err := s.fs.MkdirAll(dir, dirPerm); err != nil {
		return err
	}

	tmpName := path.Join(dir, tmpPrefix+uuid.NewString())
	tmp, err := s.fs.OpenFile(tmpName, os.O_WRONLY|os.O_CREATE|os.O_EXCL, filePerm)
	if err != nil {
		return err
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		s.fs.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		s.fs.Remove(tmpName)
		return err
	}
	if err := s.fs.Rename(tmpName, p); err != nil {
		s.fs.Remove(tmpName)
		return err
	}
	return nil
}

var _ StorageService = (*BillyStorageService)(nil)
