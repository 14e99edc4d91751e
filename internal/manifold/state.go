// Package manifold assembles query-relevant context across nine
// independent dimensions (structural, semantic, temporal, requirements,
// summary, navigational, session, intent, impact), each scored against
// the query and rendered within a byte budget. Grounded on the
// teacher's parallel-fact-source pattern (internal/world's scanners
// each contributing independently to one fact base) generalized into a
// scored, weighted, budget-rendered assembly the teacher's world
// package never had to do.
package manifold

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/contextvault/cv/internal/cverr"
)

// DimensionState is the lightweight persisted state record for one
// dimension: counts, pointers into the stores, and a freshness stamp.
type DimensionState struct {
	Counts      map[string]int `json:"counts,omitempty"`
	Pointers    []string       `json:"pointers,omitempty"`
	LastUpdated time.Time      `json:"last_updated"`
}

// ManifoldState is the full per-repo manifold state, persisted as
// .cv/manifold/state.json per spec.md §6.
type ManifoldState struct {
	Dimensions map[string]DimensionState `json:"dimensions"`
}

// stateStore is a mutex-guarded accessor for one repo's manifold state file.
type stateStore struct {
	mu   sync.RWMutex
	path string
}

func newStateStore(root string) *stateStore {
	return &stateStore{path: filepath.Join(root, ".cv", "manifold", "state.json")}
}

// Load reads the manifold state, reporting (nil, false, nil) if the
// state file is missing — the manifold's documented fallback trigger.
func (s *stateStore) Load() (*ManifoldState, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, cverr.Wrap(cverr.KindIO, "manifold.Load", err)
	}
	var st ManifoldState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, false, cverr.Wrap(cverr.KindIO, "manifold.Load", err)
	}
	return &st, true, nil
}

// Save persists the manifold state.
func (s *stateStore) Save(st *ManifoldState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return cverr.Wrap(cverr.KindIO, "manifold.Save", err)
	}
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return cverr.Wrap(cverr.KindIO, "manifold.Save", err)
	}
	if err := os.WriteFile(s.path, data, 0644); err != nil {
		return cverr.Wrap(cverr.KindIO, "manifold.Save", err)
	}
	return nil
}

// DefaultWeights are spec.md §4.7's base weights, keyed by dimension name.
func DefaultWeights() map[string]float64 {
	return map[string]float64{
		"semantic":     0.25,
		"structural":   0.20,
		"summary":      0.15,
		"session":      0.10,
		"temporal":     0.10,
		"navigational": 0.05,
		"requirements": 0.05,
		"intent":       0.05,
		"impact":       0.05,
	}
}
