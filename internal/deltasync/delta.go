package deltasync

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/contextvault/cv/internal/config"
	"github.com/contextvault/cv/internal/parser"
)

// ChangeKind classifies one path's status in a four-way delta.
type ChangeKind string

const (
	ChangeAdded     ChangeKind = "added"
	ChangeModified  ChangeKind = "modified"
	ChangeUnchanged ChangeKind = "unchanged"
	ChangeDeleted   ChangeKind = "deleted"
)

// Change is one path's delta entry, computed by content hash against the
// ledger (not mtime, which git checkouts make unreliable).
type Change struct {
	Path string
	Kind ChangeKind
	Size int64
}

// Delta is the full four-way classification of a walk against the ledger.
type Delta struct {
	Added     []Change
	Modified  []Change
	Unchanged []Change
	Deleted   []Change
}

// computeDelta walks root applying sync.ExcludePatterns, hashes every
// surviving file's content, and classifies it against the ledger. Paths
// recorded in the ledger but absent from the walk are reported deleted.
func computeDelta(root string, cfg *config.SyncConfig, ledger *Ledger) (*Delta, map[string][]byte, error) {
	seen := make(map[string]bool)
	contents := make(map[string][]byte)
	delta := &Delta{}

	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return relErr
		}
		if rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if matchesAny(cfg.ExcludePatterns, rel+"/") || matchesAny(cfg.ExcludePatterns, rel) {
				return filepath.SkipDir
			}
			return nil
		}
		if matchesAny(cfg.ExcludePatterns, rel) {
			return nil
		}

		info, infoErr := d.Info()
		if infoErr != nil {
			return infoErr
		}
		if info.Size() > maxFileSize(cfg) {
			return nil
		}

		content, readErr := os.ReadFile(path)
		if readErr != nil {
			return nil // unreadable file: skip, don't abort the whole sync
		}

		seen[rel] = true
		hash := parser.ContentHash(content)
		prior, existed := ledger.Get(rel)

		switch {
		case !existed:
			delta.Added = append(delta.Added, Change{Path: rel, Kind: ChangeAdded, Size: info.Size()})
		case prior.ContentHash != hash:
			delta.Modified = append(delta.Modified, Change{Path: rel, Kind: ChangeModified, Size: info.Size()})
		default:
			delta.Unchanged = append(delta.Unchanged, Change{Path: rel, Kind: ChangeUnchanged, Size: info.Size()})
		}
		contents[rel] = content
		return nil
	})
	if walkErr != nil {
		return nil, nil, walkErr
	}

	for _, p := range ledger.Paths() {
		if !seen[p] {
			delta.Deleted = append(delta.Deleted, Change{Path: p, Kind: ChangeDeleted})
		}
	}
	return delta, contents, nil
}

func maxFileSize(cfg *config.SyncConfig) int64 {
	if cfg.MaxFileSizeBytes > 0 {
		return cfg.MaxFileSizeBytes
	}
	return parser.DefaultMaxFileSize
}

func matchesAny(patterns []string, rel string) bool {
	for _, pat := range patterns {
		pat = strings.TrimSuffix(pat, "/**")
		if rel == pat || strings.HasPrefix(rel, pat+"/") {
			return true
		}
		if matched, _ := filepath.Match(pat, rel); matched {
			return true
		}
	}
	return false
}

// ledgerTypeOf classifies a path as "code" or "document" for the ledger's
// Type field, matching the Sync/Docs split in spec.md §4.2.
func ledgerTypeOf(path string, docs *config.DocsConfig) string {
	if docs.Enabled && matchesAny(docs.Patterns, path) {
		return "document"
	}
	return "code"
}
