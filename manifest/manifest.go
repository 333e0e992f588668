// Package manifest keeps an append-only record of the files an export wrote.
package manifest

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// FileName is the name of the manifest inside an export directory.
const FileName = "manifest.jsonl"

// Entry describes one exported message.
type Entry struct {
	RunID      string    `json:"run_id"`
	Folder     string    `json:"folder"`
	Path       string    `json:"path"`
	Subject    string    `json:"subject"`
	Received   time.Time `json:"received"`
	ExportedAt time.Time `json:"exported_at"`
}

type Recorder interface {
	Record(entry Entry) error
	Snapshot() Snapshot
}

type Snapshot struct {
	RunID    string
	Recorded int
}

type MemoryRecorder struct {
	mu      sync.RWMutex
	runID   string
	entries []Entry
}

func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{runID: uuid.NewString()}
}

func (m *MemoryRecorder) Record(entry Entry) error {
	if entry.Path == "" {
		return nil
	}
	if entry.RunID == "" {
		entry.RunID = m.runID
	}

	m.mu.Lock()
	m.entries = append(m.entries, entry)
	m.mu.Unlock()
	return nil
}

// Entries returns a copy of everything recorded so far.
func (m *MemoryRecorder) Entries() []Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Entry(nil), m.entries...)
}

func (m *MemoryRecorder) Snapshot() Snapshot {
	m.mu.RLock()
	count := len(m.entries)
	m.mu.RUnlock()
	return Snapshot{RunID: m.runID, Recorded: count}
}

// FileRecorder appends entries as JSON lines to FileName inside a directory.
type FileRecorder struct {
	*MemoryRecorder
	path    string
	writer  *bufio.Writer
	file    *os.File
	writeMu sync.Mutex
}

func NewFileRecorder(dir string) (*FileRecorder, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("manifest directory is empty")
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create manifest directory: %w", err)
	}

	path := filepath.Join(dir, FileName)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open manifest for append: %w", err)
	}

	return &FileRecorder{
		MemoryRecorder: NewMemoryRecorder(),
		path:           path,
		file:           file,
		writer:         bufio.NewWriterSize(file, 64*1024),
	}, nil
}

// Path is the manifest file location.
func (f *FileRecorder) Path() string {
	return f.path
}

func (f *FileRecorder) Record(entry Entry) error {
	if entry.Path == "" {
		return nil
	}
	if entry.RunID == "" {
		entry.RunID = f.runID
	}
	if err := f.MemoryRecorder.Record(entry); err != nil {
		return err
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode manifest entry: %w", err)
	}

	f.writeMu.Lock()
	defer f.writeMu.Unlock()

	if _, err := f.writer.Write(data); err != nil {
		return fmt.Errorf("write manifest entry: %w", err)
	}
	if err := f.writer.WriteByte('\n'); err != nil {
		return fmt.Errorf("write newline: %w", err)
	}

	return nil
}

// Flush writes any buffered data to the underlying file.
func (f *FileRecorder) Flush() error {
	f.writeMu.Lock()
	defer f.writeMu.Unlock()

	if err := f.writer.Flush(); err != nil {
		return fmt.Errorf("flush manifest: %w", err)
	}
	if err := f.file.Sync(); err != nil {
		return fmt.Errorf("sync manifest: %w", err)
	}
	return nil
}

// Close flushes and closes the manifest file.
func (f *FileRecorder) Close() error {
	f.writeMu.Lock()
	defer f.writeMu.Unlock()

	var firstErr error
	if err := f.writer.Flush(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("flush manifest: %w", err)
	}
	if err := f.file.Sync(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("sync manifest: %w", err)
	}
	if err := f.file.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("close manifest: %w", err)
	}

	return firstErr
}

// Read loads all entries of the manifest in dir. A missing manifest yields no entries.
func Read(dir string) ([]Entry, error) {
	file, err := os.Open(filepath.Join(dir, FileName))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open manifest: %w", err)
	}
	defer file.Close()

	var entries []Entry
	scanner := bufio.NewScanner(file)
	for line := 1; scanner.Scan(); line++ {
		text := scanner.Bytes()
		if len(text) == 0 {
			continue
		}

		var entry Entry
		if err := json.Unmarshal(text, &entry); err != nil {
			return nil, fmt.Errorf("parse manifest line %d: %w", line, err)
		}
		entries = append(entries, entry)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	return entries, nil
}
