// Package deltasync computes the four-way delta between the working tree
// and the last-synced state, and drives the worker pool that feeds parsed
// files to the graph, vector and embedding layers.
package deltasync

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/contextvault/cv/internal/cverr"
	"github.com/contextvault/cv/internal/logging"
	"github.com/contextvault/cv/internal/types"
)

// Ledger is the persisted record of every tracked path's last-synced
// content hash. Grounded on the teacher's world.FileCache, generalized
// from os.FileInfo mtime/size comparison to the content-hash comparison
// spec.md §4.2 requires (mtime is unreliable across git checkouts).
type Ledger struct {
	mu      sync.RWMutex
	path    string
	Entries map[string]types.LedgerEntry `json:"entries"`
	dirty   bool
}

// NewLedger loads (or initializes) the ledger at <root>/.cv/ledger.json.
func NewLedger(root string) *Ledger {
	l := &Ledger{
		path:    filepath.Join(root, ".cv", "ledger.json"),
		Entries: make(map[string]types.LedgerEntry),
	}
	l.load()
	return l
}

func (l *Ledger) load() {
	data, err := os.ReadFile(l.path)
	if err != nil {
		if !os.IsNotExist(err) {
			logging.Warnf(logging.CategorySync, "ledger: failed to read %s: %v", l.path, err)
		}
		return
	}
	if err := json.Unmarshal(data, &l.Entries); err != nil {
		logging.Warnf(logging.CategorySync, "ledger: corrupt ledger, starting fresh: %v", err)
		l.Entries = make(map[string]types.LedgerEntry)
	}
}

// Get returns the recorded entry for path, if any.
func (l *Ledger) Get(path string) (types.LedgerEntry, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	e, ok := l.Entries[path]
	return e, ok
}

// Set records path's new entry and marks the ledger dirty.
func (l *Ledger) Set(path string, entry types.LedgerEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Entries[path] = entry
	l.dirty = true
}

// Delete removes path from the ledger.
func (l *Ledger) Delete(path string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.Entries[path]; ok {
		delete(l.Entries, path)
		l.dirty = true
	}
}

// Paths returns every path currently tracked in the ledger.
func (l *Ledger) Paths() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]string, 0, len(l.Entries))
	for p := range l.Entries {
		out = append(out, p)
	}
	return out
}

// Save persists the ledger atomically (temp file + rename) so a crash
// mid-write never corrupts the previous, valid ledger.
func (l *Ledger) Save() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.dirty {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return cverr.Wrap(cverr.KindIO, "Ledger.Save", err)
	}
	data, err := json.MarshalIndent(l.Entries, "", "  ")
	if err != nil {
		return cverr.Wrap(cverr.KindIO, "Ledger.Save", err)
	}
	tmp := l.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return cverr.Wrap(cverr.KindIO, "Ledger.Save", err)
	}
	if err := os.Rename(tmp, l.path); err != nil {
		return cverr.Wrap(cverr.KindIO, "Ledger.Save", fmt.Errorf("rename %s: %w", tmp, err))
	}
	l.dirty = false
	return nil
}
