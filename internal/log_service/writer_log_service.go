package log_service

import (
	"fmt"
	"io"
	"log"
	"sort"
	"strings"
	"sync"
	"time"
)

// WriterLogService writes one formatted line per event to an io.Writer.
type WriterLogService struct {
	nodeID        string
	mu            sync.Mutex
	logger        *log.Logger
	minLevel      int
	filterEnabled bool
}

func NewWriterLogService(w io.Writer, nodeID string, minLogLevel ...string) *WriterLogService {
	service := &WriterLogService{
		nodeID:        nodeID,
		logger:        log.New(w, "", 0),
		filterEnabled: true,
		minLevel:      DebugLevelValue,
	}

	if len(minLogLevel) > 0 && minLogLevel[0] != "" {
		service.SetMinLogLevel(minLogLevel[0])
	}

	return service
}

func (ls *WriterLogService) SetMinLogLevel(level string) {
	ls.mu.Lock()
	defer ls.mu.Unlock()

	ls.minLevel = GetLevelValue(level)
	ls.filterEnabled = true
}

func (ls *WriterLogService) DisableFiltering() {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	ls.filterEnabled = false
}

func (ls *WriterLogService) shouldLog(level string) bool {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	if !ls.filterEnabled {
		return true
	}
	return GetLevelValue(level) >= ls.minLevel
}

// FormatLog renders an event as "ts [node] LEVEL: message k=v ...". Metadata
// keys are sorted so lines are stable.
func FormatLog(level string, event LogEvent) string {
	ts := event.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	keys := make([]string, 0, len(event.Metadata))
	for k := range event.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var meta strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&meta, " %s=%v", k, event.Metadata[k])
	}

	return fmt.Sprintf("%s [%s] %s: %s%s", ts.Format(time.RFC3339), event.NodeID, level, event.Message, meta.String())
}

func (ls *WriterLogService) log(level string, event LogEvent) {
	if !ls.shouldLog(level) {
		return
	}

	event.NodeID = ls.nodeID
	line := FormatLog(level, event)

	ls.mu.Lock()
	defer ls.mu.Unlock()
	ls.logger.Println(line)
}

func (ls *WriterLogService) Debug(event LogEvent) {
	ls.log(DebugLevel, event)
}

func (ls *WriterLogService) Info(event LogEvent) {
	ls.log(InfoLevel, event)
}

func (ls *WriterLogService) Warn(event LogEvent) {
	ls.log(WarnLevel, event)
}

func (ls *WriterLogService) Error(event LogEvent) {
	ls.log(ErrorLevel, event)
}

var _ LogService = (*WriterLogService)(nil)
