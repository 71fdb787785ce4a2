// Package file persists the audit trail on the local filesystem.
//
// Two layouts share one record shape (audit.Record):
//   - FormatArray writes a single JSON array and rewrites it atomically on
//     every append. Simple to inspect, but each write costs O(n).
//   - FormatLines writes one JSON record per line and appends in place.
//
// Every Append is fsynced before it returns.
package file

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	audit "opgate/pkg/platform/audit"
)

// Format selects the on-disk layout.
type Format string

const (
	FormatArray Format = "array"
	FormatLines Format = "lines"
)

// ParseFormat validates a layout name from configuration.
func ParseFormat(s string) (Format, error) {
	switch f := Format(s); f {
	case FormatArray, FormatLines:
		return f, nil
	}
	return "", fmt.Errorf("unknown audit file format %q", s)
}

const filePerm fs.FileMode = 0o600

// maxLineSize bounds a single JSONL record.
const maxLineSize = 1 << 20

// Store is a file-backed audit.Store.
type Store struct {
	mu     sync.Mutex
	path   string
	format Format

	// cached holds the decoded array for FormatArray so appends do not
	// re-read the file. Nil until the first Load or Append.
	cached []audit.Record

	// torn is set when Load found an unterminated final line in a FormatLines
	// file; the next append cuts the file back to validSize first.
	torn      bool
	validSize int64
}

// Option configures a Store.
type Option func(*Store)

// WithFormat selects the on-disk layout. Defaults to FormatArray.
func WithFormat(f Format) Option {
	return func(s *Store) {
		s.format = f
	}
}

// New returns a store writing to path. The file is created on first append.
func New(path string, opts ...Option) *Store {
	s := &Store{path: path, format: FormatArray}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// Append writes entry and syncs it to disk before returning.
func (s *Store) Append(_ context.Context, entry audit.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.format == FormatLines {
		return s.appendLine(entry)
	}
	return s.appendArray(entry)
}

// Load reads every record. A missing file is an empty trail.
func (s *Store) Load(_ context.Context) ([]audit.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		records []audit.Record
		err     error
	)
	if s.format == FormatLines {
		records, err = s.readLines()
	} else {
		records, err = s.readArray()
		if err == nil {
			s.cached = records
		}
	}
	if err != nil {
		return nil, err
	}

	entries := make([]audit.Entry, 0, len(records))
	for _, r := range records {
		e, err := audit.FromRecord(r)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", s.path, err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func (s *Store) appendArray(entry audit.Entry) error {
	if s.cached == nil {
		records, err := s.readArray()
		if err != nil {
			return err
		}
		s.cached = records
	}

	next := make([]audit.Record, len(s.cached), len(s.cached)+1)
	copy(next, s.cached)
	next = append(next, audit.ToRecord(entry))

	data, err := json.MarshalIndent(next, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal audit array: %w", err)
	}
	if err := writeAtomic(s.path, data); err != nil {
		return err
	}
	s.cached = next
	return nil
}

func (s *Store) appendLine(entry audit.Entry) error {
	line, err := audit.MarshalEntry(entry)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create audit directory: %w", err)
	}

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, filePerm)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	if s.torn {
		if err := f.Truncate(s.validSize); err != nil {
			_ = f.Close()
			return fmt.Errorf("drop torn audit line: %w", err)
		}
		s.torn = false
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("stat audit log: %w", err)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		// Cut a partial line so the file stays loadable.
		_ = f.Truncate(info.Size())
		_ = f.Close()
		return fmt.Errorf("write audit log: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("sync audit log: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close audit log: %w", err)
	}
	return nil
}

func (s *Store) readArray() ([]audit.Record, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return []audit.Record{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read audit file: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return []audit.Record{}, nil
	}

	var records []audit.Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parse audit file %s: %w", s.path, err)
	}
	if records == nil {
		records = []audit.Record{}
	}
	return records, nil
}

// readLines decodes one record per line. Every append ends its record with a
// newline, so an unterminated final line is a write that never completed; it
// is skipped and removed by the next append.
func (s *Store) readLines() ([]audit.Record, error) {
	f, err := os.Open(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return []audit.Record{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	defer f.Close()

	records := []audit.Record{}
	reader := bufio.NewReader(f)
	var offset int64
	for lineNo := 1; ; lineNo++ {
		raw, err := reader.ReadBytes('\n')
		if errors.Is(err, io.EOF) {
			if len(bytes.TrimSpace(raw)) > 0 {
				s.torn, s.validSize = true, offset
			}
			return records, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read audit log: %w", err)
		}
		offset += int64(len(raw))
		if len(raw) > maxLineSize {
			return nil, fmt.Errorf("%s line %d exceeds %d bytes", s.path, lineNo, maxLineSize)
		}

		line := bytes.TrimSpace(raw)
		if len(line) == 0 {
			continue
		}
		var r audit.Record
		if err := json.Unmarshal(line, &r); err != nil {
			return nil, fmt.Errorf("parse %s line %d: %w", s.path, lineNo, err)
		}
		records = append(records, r)
	}
}

// writeAtomic replaces path with data via a synced temp file and rename, so a
// crash leaves either the old or the new array, never a torn one.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create audit directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp audit file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("write temp audit file: %w", err)
	}
	if err := tmp.Chmod(filePerm); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("chmod temp audit file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("sync temp audit file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close temp audit file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return fmt.Errorf("replace audit file: %w", err)
	}

	// Persist the rename itself. Not every platform allows syncing a directory.
	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		_ = d.Close()
	}
	return nil
}
