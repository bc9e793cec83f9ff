package accesslog

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// LogWriter appends one complete line to the access log
type LogWriter interface {
	Append(line string) error
}

// FileWriter appends to a file. Each line goes out in a single write under a
// mutex so concurrent records never interleave partial lines.
type FileWriter struct {
	mu   sync.Mutex
	file *os.File
	path string
}

// NewFileWriter opens (creating if needed) the log file in append mode
func NewFileWriter(path string) (*FileWriter, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create log directory %s: %w", dir, err)
		}
	}

	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open access log %s: %w", path, err)
	}
	return &FileWriter{file: file, path: path}, nil
}

// Path returns the file location
func (w *FileWriter) Path() string {
	return w.path
}

// Append writes line, adding the trailing newline if missing
func (w *FileWriter) Append(line string) error {
	if !strings.HasSuffix(line, "\n") {
		line += "\n"
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return os.ErrClosed
	}
	if _, err := w.file.WriteString(line); err != nil {
		return fmt.Errorf("failed to append to access log: %w", err)
	}
	return nil
}

// Close flushes and closes the file
func (w *FileWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}

// MemoryWriter keeps lines in memory
type MemoryWriter struct {
	mu    sync.Mutex
	lines []string
}

func NewMemoryWriter() *MemoryWriter {
	return &MemoryWriter{}
}

func (w *MemoryWriter) Append(line string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.lines = append(w.lines, line)
	return nil
}

// Lines returns a copy of everything appended so far
func (w *MemoryWriter) Lines() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.lines...)
}
