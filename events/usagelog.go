package events

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
)

// UsageLogger writes one JSON line per event into a daily file, mirroring
// original_source/proxy/mc_proxy.py's UsageLogger (a new file per day
// rather than a single ever-growing log, and no rotation library since
// the original doesn't use one either).
type UsageLogger struct {
	dir string
	log *zap.Logger

	mu          sync.Mutex
	currentDay  string
	currentFile *os.File
}

func NewUsageLogger(dir string, log *zap.Logger) *UsageLogger {
	return &UsageLogger{dir: dir, log: log}
}

type usageRecord struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	ServerID  string `json:"server_id,omitempty"`
	Player    string `json:"player,omitempty"`
	Error     string `json:"error,omitempty"`
}

func (u *UsageLogger) Notify(evt Event) {
	rec := usageRecord{
		Timestamp: evt.Timestamp.UTC().Format(time.RFC3339),
		Event:     string(evt.Type),
		ServerID:  evt.ServerID,
		Player:    evt.Player,
	}
	if evt.Err != nil {
		rec.Error = evt.Err.Error()
	}

	line, err := json.Marshal(rec)
	if err != nil {
		u.log.Warn("failed to marshal usage record", zap.Error(err))
		return
	}

	u.mu.Lock()
	defer u.mu.Unlock()

	f, err := u.fileForToday()
	if err != nil {
		u.log.Warn("failed to open usage log file", zap.Error(err))
		return
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		u.log.Warn("failed to write usage record", zap.Error(err))
	}
}

func (u *UsageLogger) fileForToday() (*os.File, error) {
	day := time.Now().UTC().Format("2006-01-02")
	if day == u.currentDay && u.currentFile != nil {
		return u.currentFile, nil
	}
	if u.currentFile != nil {
		u.currentFile.Close()
	}

	if err := os.MkdirAll(u.dir, 0o755); err != nil {
		return nil, err
	}
	path := filepath.Join(u.dir, fmt.Sprintf("usage-%s.jsonl", day))
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	u.currentDay = day
	u.currentFile = f
	return f, nil
}

func (u *UsageLogger) Close() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.currentFile != nil {
		return u.currentFile.Close()
	}
	return nil
}
