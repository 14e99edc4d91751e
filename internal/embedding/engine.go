// Package embedding generates vector embeddings for code chunks,
// docstrings, commits, and document sections. Two backends are
// supported: a local Ollama server (default, embeddinggemma) and
// Google's GenAI API (gemini-embedding-001), selected by
// config.EmbeddingConfig.Provider. Adapted from the teacher's
// internal/embedding package, generalized from a hand-rolled Config
// type to the config.EmbeddingConfig cv already loads per repo.
package embedding

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/contextvault/cv/internal/config"
	"github.com/contextvault/cv/internal/cverr"
	"github.com/contextvault/cv/internal/logging"
)

// Engine generates vector embeddings for text.
type Engine interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Name() string
}

// HealthChecker is an optional interface embedding engines may implement
// so the supervisor can verify availability before a batch sync.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// NewEngine builds the embedding engine named by cfg.Provider.
func NewEngine(cfg config.EmbeddingConfig) (Engine, error) {
	timer := logging.StartTimer(logging.CategoryEmbedding, "NewEngine")
	defer timer.Stop()

	logging.Infof(logging.CategoryEmbedding, "creating embedding engine provider=%s model=%s", cfg.Provider, cfg.Model)

	var engine Engine
	var err error

	switch cfg.Provider {
	case "", "ollama":
		engine, err = NewOllamaEngine(cfg.URL, cfg.Model)
	case "genai":
		engine, err = NewGenAIEngine(cfg.APIKey, cfg.Model, "SEMANTIC_SIMILARITY")
	default:
		return nil, cverr.New(cverr.KindConfig, "embedding.NewEngine",
			fmt.Sprintf("unsupported embedding provider %q (use ollama or genai)", cfg.Provider))
	}
	if err != nil {
		return nil, cverr.Wrap(cverr.KindEmbedding, "embedding.NewEngine", err)
	}

	logging.Infof(logging.CategoryEmbedding, "embedding engine ready: name=%s dimensions=%d", engine.Name(), engine.Dimensions())
	return engine, nil
}

// CosineSimilarity returns the cosine similarity between two vectors of
// equal length, in [-1, 1].
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, cverr.New(cverr.KindEmbedding, "CosineSimilarity",
			fmt.Sprintf("vector length mismatch: %d != %d", len(a), len(b)))
	}

	var dotProduct, aMagnitude, bMagnitude float64
	for i := 0; i < len(a); i++ {
		dotProduct += float64(a[i]) * float64(b[i])
		aMagnitude += float64(a[i]) * float64(a[i])
		bMagnitude += float64(b[i]) * float64(b[i])
	}

	if aMagnitude == 0 || bMagnitude == 0 {
		return 0, nil
	}
	return dotProduct / (math.Sqrt(aMagnitude) * math.Sqrt(bMagnitude)), nil
}

// SimilarityResult is one scored entry from FindTopK.
type SimilarityResult struct {
	Index      int
	Similarity float64
}

// FindTopK ranks corpus by cosine similarity to query and returns the
// top k. Entries with mismatched dimensions are skipped rather than
// failing the whole search.
func FindTopK(query []float32, corpus [][]float32, k int) ([]SimilarityResult, error) {
	timer := logging.StartTimer(logging.CategoryEmbedding, "FindTopK")
	defer timer.Stop()

	if k <= 0 {
		k = 10
	}

	results := make([]SimilarityResult, 0, len(corpus))
	skipped := 0
	for i, vec := range corpus {
		sim, err := CosineSimilarity(query, vec)
		if err != nil {
			skipped++
			continue
		}
		results = append(results, SimilarityResult{Index: i, Similarity: sim})
	}
	if skipped > 0 {
		logging.Warnf(logging.CategoryEmbedding, "FindTopK: skipped %d vectors of mismatched dimension", skipped)
	}

	sortStart := time.Now()
	for i := 0; i < len(results) && i < k; i++ {
		for j := i + 1; j < len(results); j++ {
			if results[j].Similarity > results[i].Similarity {
				results[i], results[j] = results[j], results[i]
			}
		}
	}
	logging.Debugf(logging.CategoryEmbedding, "FindTopK: sorted %d results in %v", len(results), time.Since(sortStart))

	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}
