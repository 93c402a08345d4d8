package localdisc

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/tomoyay1622/Distributed-File-System/internal/log_service"
)

// LocalDiscLogService appends log lines to <logDir>/<nodeID>.log. When echo
// is non-nil every line is written there as well.
type LocalDiscLogService struct {
	*log_service.WriterLogService
	logDir string
	file   *os.File
}

func NewLocalDiscLogService(logDir string, nodeID string, echo io.Writer, minLogLevel ...string) (*LocalDiscLogService, error) {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	filePath := filepath.Join(logDir, fmt.Sprintf("%s.log", nodeID))
	file, err := os.OpenFile(filePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	var w io.Writer = file
	if echo != nil {
		w = io.MultiWriter(file, echo)
	}

	return &LocalDiscLogService{
		WriterLogService: log_service.NewWriterLogService(w, nodeID, minLogLevel...),
		logDir:           logDir,
		file:             file,
	}, nil
}

func (ls *LocalDiscLogService) Close() error {
	return ls.file.Close()
}

var _ log_service.LogService = (*LocalDiscLogService)(nil)
