// Package authoredlog is the durable sidecar for human-authored metadata
// — document frontmatter overrides, manually declared relationships,
// and annotations — the one piece of cv's state that is never
// regenerated from code and therefore survives a graph clear().
// Append-only JSON-lines on disk, grounded on the Aureuma-si paas_*_store.go
// bufio.Scanner line-record pattern; last-write-wins merge into an
// in-memory map on load, one entry per (kind, path) key.
package authoredlog

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/contextvault/cv/internal/cverr"
	"github.com/contextvault/cv/internal/logging"
	"github.com/contextvault/cv/internal/types"
)

// Log is the process-wide authored metadata store for one repo. Lazy
// load on first access; in-memory map of key -> latest entry; append
// new/changed entries to disk, never rewriting history.
type Log struct {
	mu      sync.RWMutex
	path    string
	entries map[string]types.AuthoredEntry
	loaded  bool
}

// New returns a Log backed by <root>/.cv/authored.jsonl. The file is
// not read until the first call that reads or appends entries.
func New(root string) *Log {
	return &Log{
		path:    filepath.Join(root, ".cv", "authored.jsonl"),
		entries: make(map[string]types.AuthoredEntry),
	}
}

func key(kind types.AuthoredEntryKind, path string) string {
	return string(kind) + "\x00" + path
}

func (l *Log) ensureLoaded() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.loaded {
		return nil
	}
	l.loaded = true

	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return cverr.Wrap(cverr.KindIO, "authoredlog.load", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var entry types.AuthoredEntry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			logging.Warnf(logging.CategoryAuthored, "authoredlog: skipping malformed line %d: %v", lineNo, err)
			continue
		}
		k := key(entry.Kind, entry.Path)
		if existing, ok := l.entries[k]; !ok || entry.UpdatedAt.After(existing.UpdatedAt) {
			l.entries[k] = entry
		}
	}
	if err := scanner.Err(); err != nil {
		return cverr.Wrap(cverr.KindIO, "authoredlog.load", err)
	}
	logging.Infof(logging.CategoryAuthored, "authoredlog: loaded %d entries from %s", len(l.entries), l.path)
	return nil
}

// Append adds a new authored entry (or a newer revision of an existing
// one) and persists it to disk immediately. ID is generated if empty.
func (l *Log) Append(entry types.AuthoredEntry) (types.AuthoredEntry, error) {
	if err := l.ensureLoaded(); err != nil {
		return entry, err
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	k := key(entry.Kind, entry.Path)
	if existing, ok := l.entries[k]; ok && !entry.UpdatedAt.After(existing.UpdatedAt) {
		return existing, nil // stale write, keep the newer entry
	}
	l.entries[k] = entry

	if err := l.appendToDisk(entry); err != nil {
		return entry, err
	}
	return entry, nil
}

func (l *Log) appendToDisk(entry types.AuthoredEntry) error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return cverr.Wrap(cverr.KindIO, "authoredlog.append", err)
	}
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return cverr.Wrap(cverr.KindIO, "authoredlog.append", err)
	}
	defer f.Close()

	data, err := json.Marshal(entry)
	if err != nil {
		return cverr.Wrap(cverr.KindIO, "authoredlog.append", err)
	}
	if _, err := f.Write(append(data, '\n')); err != nil {
		return cverr.Wrap(cverr.KindIO, "authoredlog.append", err)
	}
	return nil
}

// Get returns the current entry for (kind, path), if any.
func (l *Log) Get(kind types.AuthoredEntryKind, path string) (types.AuthoredEntry, bool, error) {
	if err := l.ensureLoaded(); err != nil {
		return types.AuthoredEntry{}, false, err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	e, ok := l.entries[key(kind, path)]
	return e, ok, nil
}

// List returns every current entry, optionally filtered by kind ("" = all).
func (l *Log) List(kind types.AuthoredEntryKind) ([]types.AuthoredEntry, error) {
	if err := l.ensureLoaded(); err != nil {
		return nil, err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]types.AuthoredEntry, 0, len(l.entries))
	for _, e := range l.entries {
		if kind != "" && e.Kind != kind {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// ForPath returns every authored entry touching path, across kinds —
// used by the Context Manifold's requirements dimension.
func (l *Log) ForPath(path string) ([]types.AuthoredEntry, error) {
	if err := l.ensureLoaded(); err != nil {
		return nil, err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []types.AuthoredEntry
	for _, e := range l.entries {
		if e.Path == path {
			out = append(out, e)
		}
	}
	return out, nil
}

// ImportResult reports the outcome of importing a previously exported bundle.
type ImportResult struct {
	Imported int
	Updated  int
	Skipped  int
}

// Import merges entries from another repo's exported bundle. Entries
// whose updated_at is newer than the local copy (or absent locally)
// are accepted; stale entries are skipped without error, per spec.md's
// "0 imported, 0 updated, N skipped" idempotent-reimport requirement.
func (l *Log) Import(entries []types.AuthoredEntry) (ImportResult, error) {
	if err := l.ensureLoaded(); err != nil {
		return ImportResult{}, err
	}
	var res ImportResult
	for _, entry := range entries {
		l.mu.RLock()
		existing, ok := l.entries[key(entry.Kind, entry.Path)]
		l.mu.RUnlock()

		if !ok {
			if _, err := l.Append(entry); err != nil {
				return res, err
			}
			res.Imported++
			continue
		}
		if entry.UpdatedAt.After(existing.UpdatedAt) {
			if _, err := l.Append(entry); err != nil {
				return res, err
			}
			res.Updated++
			continue
		}
		res.Skipped++
	}
	return res, nil
}
