package deltasync

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/contextvault/cv/internal/cverr"
	"github.com/contextvault/cv/internal/logging"
)

// commitCursor is the persisted "last commit synced into the graph" mark,
// the commit-ingestion analogue of the Ledger's per-path content hash —
// same temp-file-then-rename atomicity, same lazy-load-on-first-use shape.
type commitCursor struct {
	path    string
	LastSHA string `json:"last_sha"`
	dirty   bool
}

func newCommitCursor(root string) *commitCursor {
	c := &commitCursor{path: filepath.Join(root, ".cv", "commit_cursor.json")}
	c.load()
	return c
}

func (c *commitCursor) load() {
	data, err := os.ReadFile(c.path)
	if err != nil {
		if !os.IsNotExist(err) {
			logging.Warnf(logging.CategorySync, "commit cursor: failed to read %s: %v", c.path, err)
		}
		return
	}
	if err := json.Unmarshal(data, c); err != nil {
		logging.Warnf(logging.CategorySync, "commit cursor: corrupt cursor, restarting from the initial backfill: %v", err)
		c.LastSHA = ""
	}
}

func (c *commitCursor) set(sha string) {
	if sha == c.LastSHA {
		return
	}
	c.LastSHA = sha
	c.dirty = true
}

func (c *commitCursor) save() error {
	if !c.dirty {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return cverr.Wrap(cverr.KindIO, "commitCursor.save", err)
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return cverr.Wrap(cverr.KindIO, "commitCursor.save", err)
	}
	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return cverr.Wrap(cverr.KindIO, "commitCursor.save", err)
	}
	if err := os.Rename(tmp, c.path); err != nil {
		return cverr.Wrap(cverr.KindIO, "commitCursor.save", err)
	}
	c.dirty = false
	return nil
}
