package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/contextvault/cv/internal/cverr"
	"github.com/contextvault/cv/internal/logging"
)

// OllamaEngine generates embeddings using a local Ollama server. Default
// model is embeddinggemma (768 dimensions).
type OllamaEngine struct {
	endpoint string
	model    string
	client   *http.Client
}

// NewOllamaEngine builds an Ollama-backed engine, defaulting endpoint and
// model when unset.
func NewOllamaEngine(endpoint, model string) (*OllamaEngine, error) {
	if endpoint == "" {
		endpoint = "http://localhost:11434"
	}
	if model == "" {
		model = "embeddinggemma"
	}
	return &OllamaEngine{
		endpoint: endpoint,
		model:    model,
		client:   &http.Client{Timeout: 30 * time.Second},
	}, nil
}

func (e *OllamaEngine) Embed(ctx context.Context, text string) ([]float32, error) {
	timer := logging.StartTimer(logging.CategoryEmbedding, "Ollama.Embed")
	defer timer.Stop()

	body, err := json.Marshal(ollamaEmbedRequest{Model: e.model, Prompt: text})
	if err != nil {
		return nil, cverr.Wrap(cverr.KindEmbedding, "Ollama.Embed", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, cverr.Wrap(cverr.KindEmbedding, "Ollama.Embed", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, cverr.Wrap(cverr.KindEmbedding, "Ollama.Embed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, cverr.New(cverr.KindEmbedding, "Ollama.Embed",
			"ollama returned status "+resp.Status+": "+string(b))
	}

	var result ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, cverr.Wrap(cverr.KindEmbedding, "Ollama.Embed", err)
	}
	return result.Embedding, nil
}

// EmbedBatch calls Embed sequentially; Ollama has no native batch API.
func (e *OllamaEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		emb, err := e.Embed(ctx, text)
		if err != nil {
			return nil, cverr.Wrap(cverr.KindEmbedding, "Ollama.EmbedBatch", err)
		}
		embeddings[i] = emb
	}
	return embeddings, nil
}

func (e *OllamaEngine) Dimensions() int { return 768 }
func (e *OllamaEngine) Name() string    { return "ollama:" + e.model }

type ollamaEmbedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaEmbedResponse struct {
	Embedding []float32 `json:"embedding"`
}
