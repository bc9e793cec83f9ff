package accesslog

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pterm/pterm"
)

func testLogger() *pterm.Logger {
	return pterm.DefaultLogger.WithLevel(pterm.LogLevelTrace)
}

func sampleRecord() *Record {
	return &Record{
		Timestamp:      time.Date(2025, 5, 15, 12, 6, 30, 0, time.Local),
		ClientIP:       "203.0.113.5",
		Method:         "GET",
		URL:            "http://example.com/api?q=1",
		UserAgent:      "Mozilla/5.0",
		Device:         "Other ( )",
		OS:             "Other ",
		Browser:        "Other ",
		Country:        "US",
		City:           "Columbus",
		Latitude:       "39.96",
		Longitude:      "-83.00",
		AcceptLanguage: "en-US",
		Referer:        None,
		Origin:         None,
		ProcessingTime: 123456 * time.Microsecond,
	}
}

func TestRecord_Line(t *testing.T) {
	now := time.Date(2025, 5, 15, 12, 6, 31, 0, time.Local)
	line := sampleRecord().Line(now)

	expected := "2025-05-15 12:06:31 - Timestamp: 2025-05-15 12:06:30, Client IP: 203.0.113.5, Method: GET, " +
		"URL: http://example.com/api?q=1, User-Agent: Mozilla/5.0, Device: Other ( ), OS: Other , Browser: Other , " +
		"Country: US, City: Columbus, Latitude: 39.96, Longitude: -83.00, Accept-Language: en-US, " +
		"Referer: None, Origin: None, Processing Time: 0.123s\n"

	if line != expected {
		t.Errorf("Unexpected line:\n got: %q\nwant: %q", line, expected)
	}
}

func TestRecord_FieldOrder(t *testing.T) {
	var keys []string
	for _, f := range sampleRecord().Fields() {
		keys = append(keys, f.Key)
	}

	expected := []string{
		"Timestamp", "Client IP", "Method", "URL", "User-Agent", "Device", "OS", "Browser",
		"Country", "City", "Latitude", "Longitude", "Accept-Language", "Referer", "Origin", "Processing Time",
	}
	if !reflect.DeepEqual(keys, expected) {
		t.Errorf("Expected field order %v, got %v", expected, keys)
	}
}

func TestRecord_NewlinesStayOnOneLine(t *testing.T) {
	rec := sampleRecord()
	rec.UserAgent = "evil\r\nline"

	line := rec.Line(time.Now())
	if strings.Count(line, "\n") != 1 || !strings.HasSuffix(line, "\n") {
		t.Errorf("Expected a single newline-terminated line, got %q", line)
	}
}

func TestParseLine(t *testing.T) {
	tests := []struct {
		name string
		line string
		ok   bool
		want Entry
	}{
		{
			name: "well formed",
			line: "2025-05-15 12:06:31 - Client IP: 1.2.3.4\n",
			ok:   true,
			want: Entry{Timestamp: "2025-05-15 12:06:31", Message: "Client IP: 1.2.3.4"},
		},
		{
			name: "separator inside message",
			line: "2025-05-15 12:06:31 - User-Agent: a - b",
			ok:   true,
			want: Entry{Timestamp: "2025-05-15 12:06:31", Message: "User-Agent: a - b"},
		},
		{name: "no separator", line: "garbage line", ok: false},
		{name: "blank", line: "   \n", ok: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := ParseLine(tc.line)
			if ok != tc.ok {
				t.Fatalf("Expected ok=%v, got %v", tc.ok, ok)
			}
			if ok && got != tc.want {
				t.Errorf("Expected %+v, got %+v", tc.want, got)
			}
		})
	}
}

func TestReadFile_MissingAndEmpty(t *testing.T) {
	dir := t.TempDir()

	entries, err := ReadFile(filepath.Join(dir, "missing.log"))
	if err != nil {
		t.Fatalf("Unexpected error for missing file: %v", err)
	}
	if entries == nil || len(entries) != 0 {
		t.Errorf("Expected empty non-nil slice, got %#v", entries)
	}

	empty := filepath.Join(dir, "empty.log")
	if err := os.WriteFile(empty, nil, 0o644); err != nil {
		t.Fatalf("Failed to create file: %v", err)
	}
	entries, err = ReadFile(empty)
	if err != nil {
		t.Fatalf("Unexpected error for empty file: %v", err)
	}
	if entries == nil || len(entries) != 0 {
		t.Errorf("Expected empty non-nil slice, got %#v", entries)
	}
}

func TestReadFile_SkipsMalformedAndIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "access.log")
	content := "2025-05-15 12:00:00 - first\nnot a record\n\n2025-05-15 12:00:01 - second\n2025-05-15 12:00:02 - no trailing newline"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}

	first, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	second, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}

	if len(first) != 3 {
		t.Fatalf("Expected 3 entries, got %d: %+v", len(first), first)
	}
	if first[0].Message != "first" || first[1].Message != "second" || first[2].Message != "no trailing newline" {
		t.Errorf("Unexpected entries or order: %+v", first)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("Expected identical reads, got %+v and %+v", first, second)
	}
}

func TestFileWriter_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "access.log")
	writer, err := NewFileWriter(path)
	if err != nil {
		t.Fatalf("NewFileWriter failed: %v", err)
	}

	rec := sampleRecord()
	now := time.Date(2025, 5, 15, 12, 6, 31, 0, time.Local)
	if err := writer.Append(rec.Line(now)); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	entries, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("Expected 1 entry, got %d", len(entries))
	}
	if entries[0].Timestamp != "2025-05-15 12:06:31" {
		t.Errorf("Expected timestamp '2025-05-15 12:06:31', got '%s'", entries[0].Timestamp)
	}

	var parts []string
	for _, f := range rec.Fields() {
		parts = append(parts, f.Key+": "+f.Value)
	}
	if entries[0].Message != strings.Join(parts, ", ") {
		t.Errorf("Round-trip mismatch:\n got: %s\nwant: %s", entries[0].Message, strings.Join(parts, ", "))
	}

	if err := writer.Append("late"); !errors.Is(err, os.ErrClosed) {
		t.Errorf("Expected os.ErrClosed after Close, got %v", err)
	}
}

func TestFileWriter_ConcurrentAppendsKeepWholeLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "access.log")
	writer, err := NewFileWriter(path)
	if err != nil {
		t.Fatalf("NewFileWriter failed: %v", err)
	}
	defer writer.Close()

	const goroutines, perGoroutine = 8, 50
	payload := strings.Repeat("x", 2048)

	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < perGoroutine; i++ {
				_ = writer.Append(fmt.Sprintf("2025-05-15 12:00:00 - g=%d i=%d %s", g, i, payload))
			}
		}(g)
	}
	wg.Wait()

	entries, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if len(entries) != goroutines*perGoroutine {
		t.Fatalf("Expected %d entries, got %d", goroutines*perGoroutine, len(entries))
	}
	for _, e := range entries {
		if !strings.HasSuffix(e.Message, payload) {
			t.Fatalf("Found interleaved line: %.80s", e.Message)
		}
	}
}

type failingWriter struct{}

func (failingWriter) Append(string) error { return errors.New("disk full") }

func TestEmitter_WritesEveryRecordOnce(t *testing.T) {
	mem := NewMemoryWriter()
	emitter := NewEmitter(mem, 4, testLogger())

	for i := 0; i < 100; i++ {
		rec := sampleRecord()
		rec.URL = fmt.Sprintf("http://example.com/%d", i)
		emitter.Emit(rec)
	}
	emitter.Close()

	lines := mem.Lines()
	if len(lines) != 100 {
		t.Fatalf("Expected 100 lines, got %d", len(lines))
	}
	for i, line := range lines {
		if !strings.Contains(line, fmt.Sprintf("URL: http://example.com/%d,", i)) {
			t.Errorf("Line %d out of order: %s", i, line)
		}
	}
	if stats := emitter.Stats(); stats.Written != 100 || stats.Failed != 0 {
		t.Errorf("Unexpected stats: %+v", stats)
	}

	// After Close records are still written, synchronously
	emitter.Emit(sampleRecord())
	if len(mem.Lines()) != 101 {
		t.Errorf("Expected 101 lines after late emit, got %d", len(mem.Lines()))
	}
}

func TestEmitter_WriteFailureIsAbsorbed(t *testing.T) {
	emitter := NewEmitter(failingWriter{}, 1, testLogger())
	emitter.Emit(sampleRecord())
	emitter.Close()

	if stats := emitter.Stats(); stats.Failed != 1 || stats.Written != 0 {
		t.Errorf("Unexpected stats: %+v", stats)
	}
}

func TestTailer_ReadNew(t *testing.T) {
	path := filepath.Join(t.TempDir(), "access.log")
	if err := os.WriteFile(path, []byte("2025-05-15 12:00:00 - old\n"), 0o644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}

	tailer := NewTailer(path, false, testLogger())
	if entries, _ := tailer.ReadNew(); len(entries) != 0 {
		t.Errorf("Expected no entries before new writes, got %+v", entries)
	}

	appendTo(t, path, "2025-05-15 12:00:01 - new\n2025-05-15 12:00:02 - par")
	entries, err := tailer.ReadNew()
	if err != nil {
		t.Fatalf("ReadNew failed: %v", err)
	}
	if len(entries) != 1 || entries[0].Message != "new" {
		t.Fatalf("Expected only the complete line, got %+v", entries)
	}

	appendTo(t, path, "tial\n")
	entries, _ = tailer.ReadNew()
	if len(entries) != 1 || entries[0].Message != "partial" {
		t.Fatalf("Expected completed partial line, got %+v", entries)
	}

	// Truncation restarts from the beginning
	if err := os.WriteFile(path, []byte("2025-05-15 13:00:00 - fresh\n"), 0o644); err != nil {
		t.Fatalf("Failed to truncate file: %v", err)
	}
	entries, _ = tailer.ReadNew()
	if len(entries) != 1 || entries[0].Message != "fresh" {
		t.Fatalf("Expected entry after truncation, got %+v", entries)
	}
}

func TestTailer_Follow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "access.log")
	tailer := NewTailer(path, true, testLogger())
	tailer.SetPollInterval(50 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	received := make(chan Entry, 4)
	done := make(chan error, 1)
	go func() {
		done <- tailer.Follow(ctx, func(e Entry) error {
			received <- e
			return nil
		})
	}()

	// File does not exist when following starts
	time.Sleep(100 * time.Millisecond)
	appendTo(t, path, "2025-05-15 12:00:00 - hello\n")

	select {
	case e := <-received:
		if e.Message != "hello" {
			t.Errorf("Expected message 'hello', got '%s'", e.Message)
		}
	case <-ctx.Done():
		t.Fatal("Timed out waiting for followed entry")
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Follow returned error: %v", err)
	}
}

func appendTo(t *testing.T, path, content string) {
	t.Helper()
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("Failed to open file: %v", err)
	}
	defer file.Close()
	if _, err := file.WriteString(content); err != nil {
		t.Fatalf("Failed to append: %v", err)
	}
}
