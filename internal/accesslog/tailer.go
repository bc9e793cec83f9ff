package accesslog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pterm/pterm"
)

// Tailer follows the access log, tracking its read position and detecting
// truncation or replacement of the file.
type Tailer struct {
	path         string
	pollInterval time.Duration
	logger       *pterm.Logger

	mu       sync.Mutex
	position int64
	inode    int64
	partial  string // Bytes after the last newline, completed by a later write
}

// NewTailer creates a tailer. With fromStart false only lines written after
// creation are returned.
func NewTailer(path string, fromStart bool, logger *pterm.Logger) *Tailer {
	t := &Tailer{
		path:         path,
		pollInterval: time.Second,
		logger:       logger,
	}

	if !fromStart {
		if file, err := os.Open(path); err == nil {
			if stat, err := file.Stat(); err == nil {
				t.position = stat.Size()
			}
			t.inode, _ = getFileInode(file)
			file.Close()
		}
	}
	return t
}

// SetPollInterval changes how often Follow checks the file without an event
func (t *Tailer) SetPollInterval(interval time.Duration) {
	if interval > 0 {
		t.pollInterval = interval
	}
}

// ReadNew returns entries appended since the previous call
func (t *Tailer) ReadNew() ([]Entry, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	file, err := os.Open(t.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open access log %s: %w", t.path, err)
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat access log %s: %w", t.path, err)
	}

	currentInode, err := getFileInode(file)
	if err != nil {
		currentInode = 0
	}

	// File replaced (rotation by rename or delete+create)
	if t.inode != 0 && currentInode != 0 && currentInode != t.inode {
		t.logger.Info("Access log replaced, reading from start",
			t.logger.Args("path", t.path, "old_inode", t.inode, "new_inode", currentInode))
		t.position = 0
		t.partial = ""
	}
	if currentInode != 0 {
		t.inode = currentInode
	}

	// File truncated
	if stat.Size() < t.position {
		t.logger.Info("Access log truncated, reading from start",
			t.logger.Args("path", t.path, "old_size", t.position, "new_size", stat.Size()))
		t.position = 0
		t.partial = ""
	}

	if stat.Size() == t.position {
		return nil, nil
	}

	if _, err := file.Seek(t.position, io.SeekStart); err != nil {
		return nil, fmt.Errorf("failed to seek in access log: %w", err)
	}

	data, err := io.ReadAll(io.LimitReader(file, stat.Size()-t.position))
	if err != nil {
		return nil, fmt.Errorf("failed to read access log: %w", err)
	}
	t.position += int64(len(data))

	chunk := t.partial + string(data)
	lastNewline := strings.LastIndexByte(chunk, '\n')
	if lastNewline < 0 {
		t.partial = chunk
		return nil, nil
	}
	t.partial = chunk[lastNewline+1:]

	entries := []Entry{}
	for _, line := range strings.Split(chunk[:lastNewline], "\n") {
		if entry, ok := ParseLine(line); ok {
			entries = append(entries, entry)
		}
	}

	t.logger.Trace("Read new access log entries",
		t.logger.Args("path", t.path, "count", len(entries), "position", t.position))
	return entries, nil
}

// Follow calls fn for each new entry until ctx is done. File system events
// trigger reads; a poll ticker covers missed events.
func (t *Tailer) Follow(ctx context.Context, fn func(Entry) error) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory so creation and rotation of the file are seen
	dir := filepath.Dir(t.path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	target := filepath.Clean(t.path)
	ticker := time.NewTicker(t.pollInterval)
	defer ticker.Stop()

	deliver := func() error {
		entries, err := t.ReadNew()
		if err != nil {
			t.logger.Warn("Failed to read access log", t.logger.Args("path", t.path, "error", err))
			return nil
		}
		for _, entry := range entries {
			if err := fn(entry); err != nil {
				return err
			}
		}
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				if err := deliver(); err != nil {
					return err
				}
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			t.logger.Warn("File watcher error", t.logger.Args("path", t.path, "error", err))

		case <-ticker.C:
			if err := deliver(); err != nil {
				return err
			}
		}
	}
}

// getFileInode returns the inode (Unix) or file index (Windows) via reflection
// on stat.Sys(), or 0 when neither is available.
func getFileInode(file *os.File) (int64, error) {
	stat, err := file.Stat()
	if err != nil {
		return 0, err
	}

	sys := stat.Sys()
	if sys == nil {
		return 0, nil
	}

	v := reflect.ValueOf(sys)
	if v.Kind() == reflect.Ptr {
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return 0, nil
	}

	if inoField := v.FieldByName("Ino"); inoField.IsValid() && inoField.CanUint() {
		return int64(inoField.Uint()), nil
	}

	if highField := v.FieldByName("FileIndexHigh"); highField.IsValid() && highField.CanUint() {
		low := uint64(0)
		if lowField := v.FieldByName("FileIndexLow"); lowField.IsValid() && lowField.CanUint() {
			low = lowField.Uint()
		}
		return int64((highField.Uint() << 32) | low), nil
	}

	return 0, nil
}
