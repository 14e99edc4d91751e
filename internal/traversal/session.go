// Package traversal maintains a stateful position in the codebase graph
// (repo -> module -> file -> symbol) per session, with in/out/lateral/
// jump/stay navigation and per-session history. Sessions persist as
// JSON sidecar files under .cv/sessions/<id>.json and expire by
// inactivity, grounded on the teacher's internal/store/local_session.go
// (mutex-guarded in-memory state plus durable JSON) re-keyed from a
// chat-session concept to a pure codebase-navigation position.
package traversal

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/contextvault/cv/internal/cverr"
	"github.com/contextvault/cv/internal/logging"
)

// Depth levels for Position.Depth, per spec.md's "depth ∈ 0..3".
const (
	DepthRepo   = 0
	DepthModule = 1
	DepthFile   = 2
	DepthSymbol = 3
)

// Position identifies a single point in the codebase the session is
// currently looking at.
type Position struct {
	Module    string    `json:"module,omitempty"`
	File      string    `json:"file,omitempty"`
	Symbol    string    `json:"symbol,omitempty"`
	Depth     int       `json:"depth"`
	Timestamp time.Time `json:"timestamp"`
}

// Session is one navigation session's persisted state.
type Session struct {
	ID           string     `json:"id"`
	Position     Position   `json:"position"`
	History      []Position `json:"history"`
	CreatedAt    time.Time  `json:"created_at"`
	LastActivity time.Time  `json:"last_activity"`
}

func (s *Session) expired(ttl time.Duration) bool {
	return time.Since(s.LastActivity) > ttl
}

// store is the mutex-guarded, lazily-hydrated session table for one repo.
type store struct {
	mu       sync.Mutex
	dir      string
	sessions map[string]*Session
	ttl      time.Duration
}

func newStore(root string, ttl time.Duration) *store {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &store{
		dir:      filepath.Join(root, ".cv", "sessions"),
		sessions: make(map[string]*Session),
		ttl:      ttl,
	}
}

func (s *store) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}

// create starts a brand new session positioned at the repo root.
func (s *store) create() (*Session, error) {
	now := time.Now()
	sess := &Session{
		ID:           uuid.NewString(),
		Position:     Position{Depth: DepthRepo, Timestamp: now},
		CreatedAt:    now,
		LastActivity: now,
	}
	s.mu.Lock()
	s.sessions[sess.ID] = sess
	s.mu.Unlock()
	if err := s.persist(sess); err != nil {
		return nil, err
	}
	logging.Infof(logging.CategoryTraversal, "traversal: created session %s", sess.ID)
	return sess, nil
}

// get returns a live session by id, loading it from disk on first
// access and rejecting it if it has expired by inactivity.
func (s *store) get(id string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.sessions[id]; ok {
		if sess.expired(s.ttl) {
			delete(s.sessions, id)
			return nil, cverr.New(cverr.KindValidation, "traversal.get", "session expired: "+id)
		}
		return sess, nil
	}

	data, err := os.ReadFile(s.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, cverr.New(cverr.KindValidation, "traversal.get", "no such session: "+id)
		}
		return nil, cverr.Wrap(cverr.KindIO, "traversal.get", err)
	}
	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, cverr.Wrap(cverr.KindIO, "traversal.get", err)
	}
	if sess.expired(s.ttl) {
		return nil, cverr.New(cverr.KindValidation, "traversal.get", "session expired: "+id)
	}
	s.sessions[id] = &sess
	return &sess, nil
}

func (s *store) persist(sess *Session) error {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return cverr.Wrap(cverr.KindIO, "traversal.persist", err)
	}
	data, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return cverr.Wrap(cverr.KindIO, "traversal.persist", err)
	}
	if err := os.WriteFile(s.path(sess.ID), data, 0644); err != nil {
		return cverr.Wrap(cverr.KindIO, "traversal.persist", err)
	}
	return nil
}

// save touches LastActivity and writes the session back to disk.
func (s *store) save(sess *Session) error {
	sess.LastActivity = time.Now()
	s.mu.Lock()
	s.sessions[sess.ID] = sess
	s.mu.Unlock()
	return s.persist(sess)
}

// sweepExpired drops expired sessions from the in-memory table (their
// JSON files are left on disk; a future Load simply rejects them).
func (s *store) sweepExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, sess := range s.sessions {
		if sess.expired(s.ttl) {
			delete(s.sessions, id)
			n++
		}
	}
	return n
}

// active counts live, non-expired in-memory sessions, for the Context
// Manifold's navigational dimension.
func (s *store) active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, sess := range s.sessions {
		if !sess.expired(s.ttl) {
			n++
		}
	}
	return n
}
