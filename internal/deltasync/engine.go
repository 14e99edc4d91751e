package deltasync

import (
	"context"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/contextvault/cv/internal/config"
	"github.com/contextvault/cv/internal/cverr"
	"github.com/contextvault/cv/internal/logging"
	"github.com/contextvault/cv/internal/parser"
	"github.com/contextvault/cv/internal/types"
)

// Sink receives the parsed output of one changed file. The engine defines
// this interface rather than depending on graph/vectorstore/embedcache
// concretely, so those packages can each implement the slice they own
// without an import cycle; cmd/cv wires the concrete multi-sink.
type Sink interface {
	// force, when true, re-embeds every chunk even if its text already
	// has a cache hit (ModeForce; spec.md §4.2).
	UpsertFile(ctx context.Context, repoID string, file types.File, pf *parser.ParsedFile, force bool) error
	UpsertDocument(ctx context.Context, repoID string, doc *parser.ParsedDocument, force bool) error
	DeleteFile(ctx context.Context, repoID string, path string) error
	// UpsertCommits ingests each commit as a graph Commit node plus a
	// MODIFIES edge per file it touched (spec.md §3's Commit/MODIFIES
	// records).
	UpsertCommits(ctx context.Context, repoID string, records []CommitRecord) error
}

// Mode selects how Sync walks the tree.
type Mode string

const (
	ModeFull        Mode = "full"        // ignore the ledger, re-sync everything
	ModeIncremental Mode = "incremental" // ledger-driven delta (default)
	ModeForce       Mode = "force"       // ledger-driven delta, but re-embed unchanged chunks too
)

// SyncStats summarizes one Sync call, returned to the Tool Dispatcher's
// sync tool and logged at info level.
type SyncStats struct {
	Added     int
	Modified  int
	Unchanged int
	Deleted   int
	Errored   int
	Duration  time.Duration
}

// Engine drives the delta-sync loop: walk, hash, diff against the
// ledger, parse changed files through a worker pool, and push results to
// Sink — deletes always ordered before adds/modifies for the same path,
// per spec.md §4.2's ordering guarantee.
type Engine struct {
	root         string
	repoID       string
	cfg          *config.Config
	ledger       *Ledger
	commitCursor *commitCursor
	parser       parser.Parser
	sink         Sink
}

// NewEngine builds an Engine rooted at root for repoID, using the given
// parser and Sink. Loads (or creates) the ledger under root/.cv.
func NewEngine(root, repoID string, cfg *config.Config, p parser.Parser, sink Sink) *Engine {
	return &Engine{
		root:         root,
		repoID:       repoID,
		cfg:          cfg,
		ledger:       NewLedger(root),
		commitCursor: newCommitCursor(root),
		parser:       p,
		sink:         sink,
	}
}

// Sync walks the tree, computes the delta against the ledger, and applies
// it through a bounded worker pool. In ModeFull the ledger is discarded
// first so every tracked file is treated as added.
func (e *Engine) Sync(ctx context.Context, mode Mode) (*SyncStats, error) {
	start := time.Now()
	timer := logging.StartTimer(logging.CategorySync, "Sync:"+string(mode))
	defer timer.Stop()

	if mode == ModeFull {
		e.ledger = NewLedger(e.root)
		for _, p := range e.ledger.Paths() {
			e.ledger.Delete(p)
		}
	}

	delta, contents, err := computeDelta(e.root, &e.cfg.Sync, e.ledger)
	if err != nil {
		return nil, cverr.Wrap(cverr.KindIO, "Engine.Sync", err)
	}

	force := mode == ModeForce
	stats := &SyncStats{
		Unchanged: len(delta.Unchanged),
	}
	if force {
		// Unchanged chunks still bypass the embedding cache this tick,
		// but the delta classification (and ledger hash) is untouched.
		stats.Unchanged = 0
	}

	// Deletes first: a path that was deleted and re-added in the same
	// sync (rename-through-recreate) must never race an add with a
	// stale delete landing after it.
	for _, c := range delta.Deleted {
		if err := e.sink.DeleteFile(ctx, e.repoID, c.Path); err != nil {
			logging.Errorf(logging.CategorySync, "delete %s: %v", c.Path, err)
			stats.Errored++
			continue
		}
		e.ledger.Delete(c.Path)
		stats.Deleted++
	}

	toProcess := append(append([]Change{}, delta.Added...), delta.Modified...)
	if force {
		toProcess = append(toProcess, delta.Unchanged...)
	}
	parallelism := e.cfg.Sync.Parallelism
	if parallelism <= 0 {
		parallelism = runtime.NumCPU()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallelism)

	var addedCount, modifiedCount, unchangedForcedCount, erroredCount int
	resultsCh := make(chan error, len(toProcess))

	for _, c := range toProcess {
		c := c
		content := contents[c.Path]
		g.Go(func() error {
			err := e.processOne(gctx, c, content, force)
			resultsCh <- err
			return nil // never abort the whole group on a single file's error
		})
	}
	_ = g.Wait()
	close(resultsCh)

	idx := 0
	for err := range resultsCh {
		c := toProcess[idx]
		idx++
		if err != nil {
			logging.Errorf(logging.CategorySync, "process %s: %v", c.Path, err)
			erroredCount++
			continue
		}
		switch c.Kind {
		case ChangeAdded:
			addedCount++
		case ChangeUnchanged:
			unchangedForcedCount++
		default:
			modifiedCount++
		}
	}

	stats.Added = addedCount
	stats.Modified = modifiedCount
	stats.Unchanged += unchangedForcedCount
	stats.Errored += erroredCount

	if saveErr := e.ledger.Save(); saveErr != nil {
		logging.Errorf(logging.CategorySync, "ledger save: %v", saveErr)
	}
	e.syncCommits(ctx)
	stats.Duration = time.Since(start)
	logging.Infof(logging.CategorySync, "sync complete: +%d ~%d -%d =%d err=%d in %v",
		stats.Added, stats.Modified, stats.Deleted, stats.Unchanged, stats.Errored, stats.Duration)
	return stats, nil
}

// syncCommits ingests any commits landed since the last tick into the
// graph via Sink.UpsertCommits, independent of mode and the file ledger.
// Best-effort: a failure here never fails the whole Sync call, matching
// how processOne errors are logged and skipped rather than propagated.
func (e *Engine) syncCommits(ctx context.Context) {
	if !isGitRepo(ctx, e.root) {
		return
	}
	head := headSHA(ctx, e.root)
	if head == "" || head == e.commitCursor.LastSHA {
		return
	}
	records, err := loadCommitRecords(ctx, e.root, e.commitCursor.LastSHA)
	if err != nil {
		logging.Errorf(logging.CategorySync, "commit sync: load commits: %v", err)
		return
	}
	if len(records) > 0 {
		if err := e.sink.UpsertCommits(ctx, e.repoID, records); err != nil {
			logging.Errorf(logging.CategorySync, "commit sync: upsert %d commits: %v", len(records), err)
			return
		}
	}
	e.commitCursor.set(head)
	if err := e.commitCursor.save(); err != nil {
		logging.Errorf(logging.CategorySync, "commit cursor save: %v", err)
	}
}

func (e *Engine) processOne(ctx context.Context, c Change, content []byte, force bool) error {
	docs := &e.cfg.Docs
	if docs.Enabled && e.isDocPath(c.Path) {
		doc, err := e.parser.ParseDocument(ctx, c.Path, content)
		if err != nil {
			return err
		}
		if err := e.sink.UpsertDocument(ctx, e.repoID, doc, force); err != nil {
			return err
		}
	} else {
		pf, err := e.parser.ParseSource(ctx, c.Path, content, maxFileSize(&e.cfg.Sync))
		if err != nil {
			return err
		}
		if pf == nil {
			// Precheck rejected the file (binary or oversized); still
			// ledger it so it isn't re-scanned every sync.
			e.ledger.Set(c.Path, types.LedgerEntry{
				ContentHash:  parser.ContentHash(content),
				Size:         c.Size,
				Type:         "code",
				LastSyncedAt: time.Now(),
			})
			return nil
		}
		file := types.File{
			Path:         c.Path,
			Language:     pf.Language,
			Size:         c.Size,
			LinesOfCode:  countLines(content),
			LastModified: time.Now(),
		}
		if err := e.sink.UpsertFile(ctx, e.repoID, file, pf, force); err != nil {
			return err
		}
	}

	e.ledger.Set(c.Path, types.LedgerEntry{
		ContentHash:  parser.ContentHash(content),
		Size:         c.Size,
		Type:         ledgerTypeOf(c.Path, docs),
		LastSyncedAt: time.Now(),
	})
	return nil
}

func (e *Engine) isDocPath(path string) bool {
	svc, ok := e.parser.(*parser.Service)
	if ok {
		return svc.IsDocument(path, e.cfg.Docs.Patterns)
	}
	return matchesAny(e.cfg.Docs.Patterns, path)
}

func countLines(content []byte) int {
	if len(content) == 0 {
		return 0
	}
	n := 1
	for _, b := range content {
		if b == '\n' {
			n++
		}
	}
	return n
}
