// Package embedcache is the content-addressed embedding cache sitting
// in front of internal/embedding: every text/model pair is embedded at
// most once and the vector is reused across files, chunks, and repos
// that happen to share content. Generalizes the teacher's
// StoreVectorWithEmbedding/initVecIndex sqlite-vec backfill flow
// (internal/store/embedded_store.go, init_vec.go, vec_compat.go) into a
// standalone get/set/evict cache keyed by sha256(text, model).
package embedcache

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/binary"
	"encoding/hex"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/contextvault/cv/internal/cverr"
	"github.com/contextvault/cv/internal/logging"
)

const schema = `
CREATE TABLE IF NOT EXISTS embed_cache (
	key           TEXT PRIMARY KEY,
	model         TEXT NOT NULL,
	dims          INTEGER NOT NULL,
	vector        BLOB NOT NULL,
	byte_size     INTEGER NOT NULL,
	created_at    INTEGER NOT NULL,
	last_used_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_embed_cache_last_used ON embed_cache(last_used_at);
`

// Stats reports cumulative cache activity since the process started.
type Stats struct {
	Hits        int64
	Misses      int64
	BytesStored int64
	Entries     int64
}

// Cache is a sqlite-backed content-addressed store of text->vector.
// Safe for concurrent use; GetOrCompute deduplicates concurrent
// requests for the same key via an in-flight map so two workers
// embedding the same chunk never both hit the embedding engine.
type Cache struct {
	db *sql.DB

	mu       sync.Mutex
	inFlight map[string]chan struct{}
	inFlightResult map[string]result

	statsMu sync.Mutex
	stats   Stats
}

type result struct {
	vector []float32
	err    error
}

// Open creates/opens the sqlite database at path and ensures schema.
func Open(path string) (*Cache, error) {
	db, err := sql.Open(driverName, path)
	if err != nil {
		return nil, cverr.Wrap(cverr.KindIO, "embedcache.Open", err)
	}
	db.SetMaxOpenConns(1) // sqlite: serialize writers, avoid SQLITE_BUSY
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, cverr.Wrap(cverr.KindIO, "embedcache.Open", err)
	}
	return &Cache{
		db:             db,
		inFlight:       make(map[string]chan struct{}),
		inFlightResult: make(map[string]result),
	}, nil
}

// Close releases the underlying database handle.
func (c *Cache) Close() error {
	return c.db.Close()
}

// Key derives the content-addressed cache key for text embedded under
// model: sha256(normalize(text) ⨁ model), hex-encoded. Normalization
// trims surrounding whitespace and collapses line endings so
// byte-identical content under different provenance still hits.
func Key(text, model string) string {
	norm := normalize(text)
	h := sha256.New()
	h.Write([]byte(norm))
	h.Write([]byte{0})
	h.Write([]byte(model))
	return hex.EncodeToString(h.Sum(nil))
}

func normalize(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return strings.TrimSpace(text)
}

// GetBatch looks up every key, returning a map of only the keys found.
// Hit/miss counters are updated for every requested key.
func (c *Cache) GetBatch(ctx context.Context, keys []string) (map[string][]float32, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	out := make(map[string][]float32, len(keys))

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(keys)), ",")
	args := make([]any, len(keys))
	for i, k := range keys {
		args[i] = k
	}
	rows, err := c.db.QueryContext(ctx, "SELECT key, dims, vector FROM embed_cache WHERE key IN ("+placeholders+")", args...)
	if err != nil {
		return nil, cverr.Wrap(cverr.KindIO, "embedcache.GetBatch", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var dims int
		var blob []byte
		if err := rows.Scan(&key, &dims, &blob); err != nil {
			return nil, cverr.Wrap(cverr.KindIO, "embedcache.GetBatch", err)
		}
		out[key] = decodeVector(blob, dims)
	}
	if err := rows.Err(); err != nil {
		return nil, cverr.Wrap(cverr.KindIO, "embedcache.GetBatch", err)
	}

	now := time.Now().Unix()
	if len(out) > 0 {
		hitKeys := make([]any, 0, len(out))
		ph := make([]string, 0, len(out))
		for k := range out {
			hitKeys = append(hitKeys, k)
			ph = append(ph, "?")
		}
		args := append([]any{now}, hitKeys...)
		if _, err := c.db.ExecContext(ctx, "UPDATE embed_cache SET last_used_at = ? WHERE key IN ("+strings.Join(ph, ",")+")", args...); err != nil {
			logging.Warnf(logging.CategoryEmbedding, "embedcache: failed to bump last_used_at: %v", err)
		}
	}

	c.statsMu.Lock()
	c.stats.Hits += int64(len(out))
	c.stats.Misses += int64(len(keys) - len(out))
	c.statsMu.Unlock()

	return out, nil
}

// entryToSet is one vector to persist via SetBatch.
type entryToSet struct {
	Key    string
	Model  string
	Vector []float32
}

// SetBatch upserts vectors for keys, inside a single transaction.
func (c *Cache) SetBatch(ctx context.Context, entries map[string][]float32, model string) error {
	if len(entries) == 0 {
		return nil
	}
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return cverr.Wrap(cverr.KindIO, "embedcache.SetBatch", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO embed_cache (key, model, dims, vector, byte_size, created_at, last_used_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET vector=excluded.vector, dims=excluded.dims,
			byte_size=excluded.byte_size, last_used_at=excluded.last_used_at
	`)
	if err != nil {
		return cverr.Wrap(cverr.KindIO, "embedcache.SetBatch", err)
	}
	defer stmt.Close()

	now := time.Now().Unix()
	var addedBytes int64
	for key, vec := range entries {
		blob := encodeVector(vec)
		if _, err := stmt.ExecContext(ctx, key, model, len(vec), blob, len(blob), now, now); err != nil {
			return cverr.Wrap(cverr.KindIO, "embedcache.SetBatch", err)
		}
		addedBytes += int64(len(blob))
	}
	if err := tx.Commit(); err != nil {
		return cverr.Wrap(cverr.KindIO, "embedcache.SetBatch", err)
	}

	c.statsMu.Lock()
	c.stats.BytesStored += addedBytes
	c.stats.Entries += int64(len(entries))
	c.statsMu.Unlock()
	return nil
}

// EvictLRU deletes least-recently-used entries until the table's total
// byte size is at or below targetBytes. Returns the number evicted.
func (c *Cache) EvictLRU(ctx context.Context, targetBytes int64) (int, error) {
	var total int64
	if err := c.db.QueryRowContext(ctx, "SELECT COALESCE(SUM(byte_size), 0) FROM embed_cache").Scan(&total); err != nil {
		return 0, cverr.Wrap(cverr.KindIO, "embedcache.EvictLRU", err)
	}
	if total <= targetBytes {
		return 0, nil
	}

	rows, err := c.db.QueryContext(ctx, "SELECT key, byte_size FROM embed_cache ORDER BY last_used_at ASC")
	if err != nil {
		return 0, cverr.Wrap(cverr.KindIO, "embedcache.EvictLRU", err)
	}
	var toDelete []string
	for rows.Next() && total > targetBytes {
		var key string
		var size int64
		if err := rows.Scan(&key, &size); err != nil {
			rows.Close()
			return 0, cverr.Wrap(cverr.KindIO, "embedcache.EvictLRU", err)
		}
		toDelete = append(toDelete, key)
		total -= size
	}
	rows.Close()

	if len(toDelete) == 0 {
		return 0, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(toDelete)), ",")
	args := make([]any, len(toDelete))
	for i, k := range toDelete {
		args[i] = k
	}
	if _, err := c.db.ExecContext(ctx, "DELETE FROM embed_cache WHERE key IN ("+placeholders+")", args...); err != nil {
		return 0, cverr.Wrap(cverr.KindIO, "embedcache.EvictLRU", err)
	}
	logging.Infof(logging.CategoryEmbedding, "embedcache: evicted %d entries to reach target %d bytes", len(toDelete), targetBytes)
	return len(toDelete), nil
}

// Stats returns a snapshot of cumulative hit/miss/byte counters.
func (c *Cache) Stats() Stats {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	return c.stats
}

// Computer embeds a batch of texts not present in the cache. It is the
// seam GetOrCompute calls into, normally internal/embedding.Engine.EmbedBatch.
type Computer func(ctx context.Context, texts []string) ([][]float32, error)

// GetOrCompute resolves vectors for texts under model, serving cache
// hits directly and routing misses through compute. Concurrent callers
// requesting the same key block on the first caller's in-flight
// request instead of issuing duplicate embed calls.
func (c *Cache) GetOrCompute(ctx context.Context, texts []string, model string, compute Computer) ([][]float32, error) {
	return c.getOrCompute(ctx, texts, model, compute, false)
}

// GetOrComputeForce behaves like GetOrCompute but treats every text as a
// cache miss, re-embedding and overwriting the cached vector even when
// the text's content hash already has one (spec.md §4.2 ModeForce).
func (c *Cache) GetOrComputeForce(ctx context.Context, texts []string, model string, compute Computer) ([][]float32, error) {
	return c.getOrCompute(ctx, texts, model, compute, true)
}

func (c *Cache) getOrCompute(ctx context.Context, texts []string, model string, compute Computer, force bool) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	keys := make([]string, len(texts))
	for i, t := range texts {
		keys[i] = Key(t, model)
	}

	cached := map[string][]float32{}
	if !force {
		var err error
		cached, err = c.GetBatch(ctx, dedupe(keys))
		if err != nil {
			return nil, err
		}
	}

	out := make([][]float32, len(texts))
	var missTexts []string
	var missKeys []string
	waitChans := make(map[int]chan struct{})

	for i, key := range keys {
		if v, ok := cached[key]; ok {
			out[i] = v
			continue
		}

		c.mu.Lock()
		if ch, inflight := c.inFlight[key]; inflight {
			waitChans[i] = ch
			c.mu.Unlock()
			continue
		}
		ch := make(chan struct{})
		c.inFlight[key] = ch
		c.mu.Unlock()

		missTexts = append(missTexts, texts[i])
		missKeys = append(missKeys, key)
	}

	var computeErr error
	if len(missTexts) > 0 {
		vectors, err := compute(ctx, missTexts)
		computeErr = err

		toStore := make(map[string][]float32, len(missKeys))
		for j, key := range missKeys {
			var vec []float32
			var r result
			if err == nil && j < len(vectors) {
				vec = vectors[j]
				r = result{vector: vec}
				toStore[key] = vec
			} else {
				r = result{err: err}
			}

			c.mu.Lock()
			c.inFlightResult[key] = r
			ch := c.inFlight[key]
			delete(c.inFlight, key)
			c.mu.Unlock()
			close(ch)
		}

		if len(toStore) > 0 {
			if setErr := c.SetBatch(ctx, toStore, model); setErr != nil {
				logging.Warnf(logging.CategoryEmbedding, "embedcache: SetBatch after compute failed: %v", setErr)
			}
		}

		for j, key := range missKeys {
			idx := indexOfKey(keys, key)
			if idx >= 0 && j < len(vectors) && computeErr == nil {
				out[idx] = vectors[j]
			}
		}
	}

	for i, ch := range waitChans {
		<-ch
		c.mu.Lock()
		r := c.inFlightResult[keys[i]]
		c.mu.Unlock()
		if r.err != nil {
			return nil, r.err
		}
		out[i] = r.vector
	}

	if computeErr != nil {
		return nil, cverr.Wrap(cverr.KindEmbedding, "embedcache.GetOrCompute", computeErr)
	}
	return out, nil
}

func indexOfKey(keys []string, key string) int {
	for i, k := range keys {
		if k == key {
			return i
		}
	}
	return -1
}

func dedupe(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(blob []byte, dims int) []float32 {
	if dims <= 0 || len(blob) < dims*4 {
		dims = len(blob) / 4
	}
	out := make([]float32, dims)
	for i := 0; i < dims; i++ {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return out
}
