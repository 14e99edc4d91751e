// Command cv is the code-intelligence layer's entrypoint: it autostarts
// the backing services, runs delta-sync ticks, and serves the tool-call
// protocol over stdio, grounded on ternarybob-quaero's cmd/quaero-mcp/main.go
// wiring shape (load config, build collaborators, ServeStdio).
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mark3labs/mcp-go/server"

	"github.com/contextvault/cv/internal/aiclient"
	"github.com/contextvault/cv/internal/authoredlog"
	"github.com/contextvault/cv/internal/config"
	"github.com/contextvault/cv/internal/deltasync"
	"github.com/contextvault/cv/internal/dispatcher"
	"github.com/contextvault/cv/internal/embedcache"
	"github.com/contextvault/cv/internal/embedding"
	"github.com/contextvault/cv/internal/graph"
	"github.com/contextvault/cv/internal/logging"
	"github.com/contextvault/cv/internal/manifold"
	"github.com/contextvault/cv/internal/parser"
	"github.com/contextvault/cv/internal/summarizer"
	"github.com/contextvault/cv/internal/supervisor"
	"github.com/contextvault/cv/internal/traversal"
	"github.com/contextvault/cv/internal/vectorstore"
)

const version = "0.1.0"

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: cv <init|sync|serve> [root]")
		os.Exit(1)
	}

	root, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(os.Stderr, "cv: %v\n", err)
		os.Exit(1)
	}
	if len(os.Args) > 2 {
		root = os.Args[2]
	}

	switch os.Args[1] {
	case "init":
		exitOn(runInit(root))
	case "sync":
		exitOn(runSync(root))
	case "serve":
		exitOn(runServe(root))
	default:
		fmt.Fprintf(os.Stderr, "cv: unknown command %q\n", os.Args[1])
		os.Exit(1)
	}
}

func exitOn(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "cv: %v\n", err)
	os.Exit(1)
}

// runInit seeds .cv/ with a default config and manifest, without
// starting any backend — mirrors the teacher's lazy-init philosophy
// (state directories are created on first write, not eagerly).
func runInit(root string) error {
	cfg := config.DefaultConfig()
	if err := cfg.Save(root); err != nil {
		return err
	}
	repoIdentity(root)
	fmt.Fprintf(os.Stdout, "initialized .cv/ under %s\n", root)
	return nil
}

type wiring struct {
	cfg      *config.Config
	sup      *supervisor.Supervisor
	g        graph.Store
	vs       vectorstore.Store
	embed    embedding.Engine
	gen      aiclient.Generator
	cache    *embedcache.Cache
	sum      *summarizer.Engine
	sync     *deltasync.Engine
	trav     *traversal.Engine
	manifold *manifold.Engine
	authored *authoredlog.Log
	repoID   string
	closeFns []func() error
}

func (w *wiring) Close() {
	for i := len(w.closeFns) - 1; i >= 0; i-- {
		if err := w.closeFns[i](); err != nil {
			logging.Warnf(logging.CategoryBoot, "cv: shutdown: %v", err)
		}
	}
}

// buildWiring autostarts the infra backends and assembles every core
// service, per spec.md's dependency order (Parser -> Embedding Cache ->
// {Graph, Vector} -> Summarizer -> Delta-Sync -> Traversal -> Manifold).
func buildWiring(ctx context.Context, root string) (*wiring, error) {
	cfg, err := config.Load(root)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logging.Configure(logging.NewDevelopment(cfg.Logging.DebugMode), cfg.Logging.DebugMode)

	repoID := repoIdentity(root)
	w := &wiring{cfg: cfg, repoID: repoID}

	sup, err := supervisor.New()
	if err != nil {
		return nil, fmt.Errorf("supervisor: %w", err)
	}
	w.sup = sup
	w.closeFns = append(w.closeFns, sup.Close)

	graphStatus, err := sup.Ensure(ctx, supervisor.BackendGraph)
	if err != nil {
		return nil, fmt.Errorf("ensure graph backend: %w", err)
	}
	vecStatus, err := sup.Ensure(ctx, supervisor.BackendVector)
	if err != nil {
		return nil, fmt.Errorf("ensure vector backend: %w", err)
	}
	if cfg.Embedding.Provider == "ollama" {
		embStatus, err := sup.Ensure(ctx, supervisor.BackendEmbedding)
		if err != nil {
			return nil, fmt.Errorf("ensure embedding backend: %w", err)
		}
		cfg.Embedding.URL = embStatus.URL
	}
	cfg.Graph.URL = graphStatus.URL
	cfg.Vector.URL = vecStatus.URL

	g, err := graph.NewRedisStore(ctx, cfg.Graph.URL)
	if err != nil {
		return nil, fmt.Errorf("graph store: %w", err)
	}
	w.g = g
	w.closeFns = append(w.closeFns, g.Close)

	vs, err := vectorstore.NewQdrantStore(cfg.Vector.URL)
	if err != nil {
		return nil, fmt.Errorf("vector store: %w", err)
	}
	w.vs = vs
	w.closeFns = append(w.closeFns, vs.Close)

	embed, err := embedding.NewEngine(cfg.Embedding)
	if err != nil {
		return nil, fmt.Errorf("embedding engine: %w", err)
	}
	w.embed = embed

	gen, err := aiclient.NewGenerator(cfg.AI)
	if err != nil {
		return nil, fmt.Errorf("ai generator: %w", err)
	}
	w.gen = gen

	cache, err := embedcache.Open(filepath.Join(root, ".cv", "cache", "embeddings"))
	if err != nil {
		return nil, fmt.Errorf("embedding cache: %w", err)
	}
	w.cache = cache
	w.closeFns = append(w.closeFns, cache.Close)

	w.sum = summarizer.NewEngine(repoID, vs, embed, gen)

	p := parser.NewService()
	sink := &multiSink{repoID: repoID, g: g, vs: vs, embed: embed, cache: cache, sum: w.sum}
	w.sync = deltasync.NewEngine(root, repoID, cfg, p, sink)

	w.trav = traversal.NewEngine(root, repoID, g, vs, cfg.Traversal.SessionExpiry)

	w.manifold = manifold.NewEngine(manifold.Deps{
		RepoID:   repoID,
		Root:     root,
		Graph:    g,
		Vector:   vs,
		Embed:    embed,
		Sessions: w.trav,
	})

	w.authored = authoredlog.New(root)

	return w, nil
}

func runSync(root string) error {
	ctx := context.Background()
	w, err := buildWiring(ctx, root)
	if err != nil {
		return err
	}
	defer w.Close()

	stats, err := w.sync.Sync(ctx, deltasync.ModeIncremental)
	if err != nil {
		return fmt.Errorf("sync: %w", err)
	}
	if err := w.sum.Rollup(ctx, w.g); err != nil {
		logging.Warnf(logging.CategorySummary, "cv: rollup: %v", err)
	}
	if err := w.manifold.Refresh(ctx, nil); err != nil {
		logging.Warnf(logging.CategoryManifold, "cv: manifold refresh: %v", err)
	}
	fmt.Fprintf(os.Stdout, "added=%d modified=%d deleted=%d unchanged=%d errors=%d\n",
		stats.Added, stats.Modified, stats.Deleted, stats.Unchanged, stats.Errored)
	return nil
}

func runServe(root string) error {
	ctx := context.Background()
	w, err := buildWiring(ctx, root)
	if err != nil {
		return err
	}
	defer w.Close()

	svc := &dispatcher.Services{
		RepoID:     w.repoID,
		Graph:      w.g,
		Vector:     w.vs,
		Embed:      w.embed,
		Gen:        w.gen,
		Sync:       w.sync,
		Traversal:  w.trav,
		Manifold:   w.manifold,
		Summarizer: w.sum,
		Docs:       &docSearcher{repoID: w.repoID, vs: w.vs, embed: w.embed},
	}

	sched, err := supervisor.NewScheduler(w.sup, w.fullResync, w.cfg.Supervisor.HealthCheckSpec, w.cfg.Supervisor.ResyncSpec)
	if err != nil {
		return fmt.Errorf("supervisor scheduler: %w", err)
	}
	sched.Start()
	defer sched.Stop()

	mcpServer := dispatcher.New(svc, version)
	return server.ServeStdio(mcpServer)
}

// fullResync runs a full delta-sync pass followed by a summary rollup,
// the unit of work the Infra Supervisor's nightly cron entry triggers.
func (w *wiring) fullResync(ctx context.Context) error {
	if _, err := w.sync.Sync(ctx, deltasync.ModeFull); err != nil {
		return err
	}
	return w.sum.Rollup(ctx, w.g)
}

// manifest is the on-disk shape of .cv/manifest.json (spec.md §6):
// repoId is the isolation key and, once written, is authoritative.
type manifest struct {
	Repository struct {
		ID        string `json:"id"`
		CreatedAt string `json:"created_at"`
	} `json:"repository"`
}

// repoIdentity loads the persisted repoId or mints and persists a fresh
// one derived from the root's absolute path.
func repoIdentity(root string) string {
	manifestPath := filepath.Join(root, ".cv", "manifest.json")
	if data, err := os.ReadFile(manifestPath); err == nil {
		var m manifest
		if err := json.Unmarshal(data, &m); err == nil && m.Repository.ID != "" {
			return m.Repository.ID
		}
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		abs = root
	}
	id := filepath.Base(abs)

	var m manifest
	m.Repository.ID = id
	m.Repository.CreatedAt = time.Now().UTC().Format(time.RFC3339)
	if data, err := json.MarshalIndent(m, "", "  "); err == nil {
		_ = os.MkdirAll(filepath.Join(root, ".cv"), 0755)
		_ = os.WriteFile(manifestPath, data, 0644)
	}
	return id
}
