package logging

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const (
	defaultRetentionWeeks = 4
	defaultMaxFileSize    = 100 * 1024 * 1024
	filePrefix            = "emr-"
)

// RotatingLogger is an io.Writer that starts a new file every ISO week and
// whenever the current file would grow past maxFileSize. Files older than the
// retention period are removed once a day.
type RotatingLogger struct {
	logDir      string
	retention   time.Duration
	maxFileSize int64

	mu          sync.Mutex
	current     *os.File
	currentWeek string
	currentSize int64
	sequence    int

	now         func() time.Time
	cancel      context.CancelFunc
	cleanupDone chan struct{}
}

// OpenRotatingLogger creates logDir if needed, opens the file for the current
// week and starts the daily cleanup goroutine
func OpenRotatingLogger(logDir string, retentionWeeks int, maxFileSize int64) (*RotatingLogger, error) {
	if retentionWeeks <= 0 {
		retentionWeeks = defaultRetentionWeeks
	}
	if maxFileSize <= 0 {
		maxFileSize = defaultMaxFileSize
	}
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	rl := &RotatingLogger{
		logDir:      logDir,
		retention:   time.Duration(retentionWeeks) * 7 * 24 * time.Hour,
		maxFileSize: maxFileSize,
		now:         time.Now,
		cancel:      cancel,
		cleanupDone: make(chan struct{}),
	}

	rl.mu.Lock()
	err := rl.rotate(weekKey(rl.now()))
	rl.mu.Unlock()
	if err != nil {
		cancel()
		return nil, err
	}

	go rl.cleanupLoop(ctx)
	return rl, nil
}

// weekKey returns the ISO week as YYYY-Www
func weekKey(t time.Time) string {
	year, week := t.ISOWeek()
	return fmt.Sprintf("%d-W%02d", year, week)
}

func (rl *RotatingLogger) fileName(week string, seq int) string {
	if seq == 0 {
		return fmt.Sprintf("%s%s.log", filePrefix, week)
	}
	return fmt.Sprintf("%s%s_%02d.log", filePrefix, week, seq)
}

// rotate opens the first file of week that still has room. Caller holds mu.
func (rl *RotatingLogger) rotate(week string) error {
	if rl.current != nil {
		if err := rl.current.Close(); err != nil {
			slog.Warn("Failed to close log file during rotation", "error", err)
		}
		rl.current = nil
	}

	seq := 0
	if week == rl.currentWeek {
		seq = rl.sequence + 1
	}

	for {
		path := filepath.Join(rl.logDir, rl.fileName(week, seq))
		info, err := os.Stat(path)
		if err != nil || info.Size() < rl.maxFileSize {
			file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
			if err != nil {
				return fmt.Errorf("failed to open log file %s: %w", path, err)
			}
			rl.current = file
			rl.currentWeek = week
			rl.sequence = seq
			rl.currentSize = 0
			if info != nil {
				rl.currentSize = info.Size()
			}
			return nil
		}
		seq++
	}
}

// Write implements io.Writer
func (rl *RotatingLogger) Write(p []byte) (int, error) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	week := weekKey(rl.now())
	if week != rl.currentWeek {
		rl.sequence = 0
		rl.currentWeek = ""
		if err := rl.rotate(week); err != nil {
			return 0, err
		}
	} else if rl.currentSize > 0 && rl.currentSize+int64(len(p)) > rl.maxFileSize {
		if err := rl.rotate(week); err != nil {
			return 0, err
		}
	}

	if rl.current == nil {
		return 0, fmt.Errorf("no log file available")
	}

	n, err := rl.current.Write(p)
	rl.currentSize += int64(n)
	return n, err
}

// CurrentFile returns the path of the file being written
func (rl *RotatingLogger) CurrentFile() string {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if rl.current == nil {
		return ""
	}
	return rl.current.Name()
}

func (rl *RotatingLogger) cleanupLoop(ctx context.Context) {
	defer close(rl.cleanupDone)

	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := rl.cleanupOldLogs(); err != nil {
				slog.Warn("Failed to clean up old logs", "error", err)
			}
		}
	}
}

// cleanupOldLogs removes log files last modified before the retention cutoff
func (rl *RotatingLogger) cleanupOldLogs() (int, error) {
	entries, err := os.ReadDir(rl.logDir)
	if err != nil {
		return 0, fmt.Errorf("failed to read log directory: %w", err)
	}

	cutoff := rl.now().Add(-rl.retention)
	current := rl.CurrentFile()
	deleted := 0

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, ".log") {
			continue
		}
		path := filepath.Join(rl.logDir, name)
		if path == current {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(path); err == nil {
				deleted++
			}
		}
	}

	return deleted, nil
}

// Close stops the cleanup goroutine and closes the current file
func (rl *RotatingLogger) Close() error {
	rl.cancel()

	select {
	case <-rl.cleanupDone:
	case <-time.After(5 * time.Second):
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	if rl.current == nil {
		return nil
	}
	err := rl.current.Close()
	rl.current = nil
	return err
}
