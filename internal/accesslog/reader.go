package accesslog

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// Entry is one parsed access log line
type Entry struct {
	Timestamp string `json:"timestamp"`
	Message   string `json:"message"`
}

// ParseLine splits a line on the first separator. ok is false for lines
// without both parts.
func ParseLine(line string) (Entry, bool) {
	line = strings.TrimSpace(line)
	timestamp, message, found := strings.Cut(line, Separator)
	if !found {
		return Entry{}, false
	}
	return Entry{Timestamp: timestamp, Message: message}, true
}

// ReadEntries parses every well-formed line of r in order
func ReadEntries(r io.Reader) ([]Entry, error) {
	entries := []Entry{}

	reader := bufio.NewReader(r)
	for {
		line, err := reader.ReadString('\n')
		if line != "" {
			if entry, ok := ParseLine(line); ok {
				entries = append(entries, entry)
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read access log: %w", err)
		}
	}

	return entries, nil
}

// ReadFile parses the access log at path. A missing file reads as empty.
func ReadFile(path string) ([]Entry, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []Entry{}, nil
		}
		return nil, fmt.Errorf("failed to open access log %s: %w", path, err)
	}
	defer file.Close()

	return ReadEntries(file)
}
