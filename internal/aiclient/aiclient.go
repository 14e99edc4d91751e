// Package aiclient is the text-generation counterpart to
// internal/embedding: a small Ollama/GenAI dual-backend client used by
// the Hierarchical Summarizer (symbol/file/directory/repo summaries).
// Shaped after
// internal/embedding's NewEngine/OllamaEngine/GenAIEngine split so the
// two ambient AI concerns (embedding, generation) look the same.
package aiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"google.golang.org/genai"

	"github.com/contextvault/cv/internal/config"
	"github.com/contextvault/cv/internal/cverr"
)

// Generator produces text completions for prompts.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
	Name() string
}

// NewGenerator builds a Generator from cfg.Provider ("ollama" or "genai").
func NewGenerator(cfg config.AIConfig) (Generator, error) {
	switch cfg.Provider {
	case "", "ollama":
		return NewOllamaGenerator(cfg.Model), nil
	case "genai":
		return NewGenAIGenerator(cfg.APIKey, cfg.Model)
	default:
		return nil, cverr.New(cverr.KindConfig, "aiclient.NewGenerator", "unsupported AI provider: "+cfg.Provider)
	}
}

// OllamaGenerator calls a local Ollama server's /api/generate endpoint.
type OllamaGenerator struct {
	endpoint string
	model    string
	client   *http.Client
}

// NewOllamaGenerator builds an Ollama-backed text generator.
func NewOllamaGenerator(model string) *OllamaGenerator {
	if model == "" {
		model = "qwen2.5-coder"
	}
	return &OllamaGenerator{
		endpoint: "http://localhost:11434",
		model:    model,
		client:   &http.Client{Timeout: 60 * time.Second},
	}
}

type ollamaGenerateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type ollamaGenerateResponse struct {
	Response string `json:"response"`
}

func (g *OllamaGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(ollamaGenerateRequest{Model: g.model, Prompt: prompt, Stream: false})
	if err != nil {
		return "", cverr.Wrap(cverr.KindEmbedding, "Ollama.Generate", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", cverr.Wrap(cverr.KindEmbedding, "Ollama.Generate", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return "", cverr.Wrap(cverr.KindEmbedding, "Ollama.Generate", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return "", cverr.New(cverr.KindEmbedding, "Ollama.Generate", "ollama returned "+resp.Status+": "+string(b))
	}
	var result ollamaGenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", cverr.Wrap(cverr.KindEmbedding, "Ollama.Generate", err)
	}
	return result.Response, nil
}

func (g *OllamaGenerator) Name() string { return "ollama:" + g.model }

// GenAIGenerator calls Google's Gemini API for text generation.
type GenAIGenerator struct {
	client *genai.Client
	model  string
}

// NewGenAIGenerator builds a GenAI-backed text generator. apiKey is required.
func NewGenAIGenerator(apiKey, model string) (*GenAIGenerator, error) {
	if apiKey == "" {
		return nil, cverr.New(cverr.KindConfig, "NewGenAIGenerator", "GenAI API key is required")
	}
	if model == "" {
		model = "gemini-2.0-flash"
	}
	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, cverr.Wrap(cverr.KindEmbedding, "NewGenAIGenerator", err)
	}
	return &GenAIGenerator{client: client, model: model}, nil
}

func (g *GenAIGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	result, err := g.client.Models.GenerateContent(ctx, g.model,
		[]*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}, nil)
	if err != nil {
		return "", cverr.Wrap(cverr.KindEmbedding, "GenAI.Generate", err)
	}
	return result.Text(), nil
}

func (g *GenAIGenerator) Name() string { return "genai:" + g.model }
