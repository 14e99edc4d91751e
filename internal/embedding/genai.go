package embedding

import (
	"context"
	"time"

	"google.golang.org/genai"

	"github.com/contextvault/cv/internal/cverr"
	"github.com/contextvault/cv/internal/logging"
)

// maxBatchSize caps a single GenAI EmbedContent call; the API rejects
// batches over 100 items with a 400.
const maxBatchSize = 100

// genaiDimensions is the output size requested from gemini-embedding-001.
const genaiDimensions = 3072

func int32Ptr(i int32) *int32 { return &i }

// GenAIEngine generates embeddings via Google's Gemini API.
type GenAIEngine struct {
	client   *genai.Client
	model    string
	taskType string
}

// NewGenAIEngine builds a GenAI-backed engine. apiKey is required.
func NewGenAIEngine(apiKey, model, taskType string) (*GenAIEngine, error) {
	if apiKey == "" {
		return nil, cverr.New(cverr.KindConfig, "NewGenAIEngine", "GenAI API key is required")
	}
	if model == "" {
		model = "gemini-embedding-001"
	}
	if taskType == "" {
		taskType = "SEMANTIC_SIMILARITY"
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, cverr.Wrap(cverr.KindEmbedding, "NewGenAIEngine", err)
	}

	return &GenAIEngine{client: client, model: model, taskType: taskType}, nil
}

func (e *GenAIEngine) Embed(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := e.embedBatchChunk(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(embeddings) == 0 {
		return nil, cverr.New(cverr.KindEmbedding, "GenAI.Embed", "no embeddings returned")
	}
	return embeddings[0], nil
}

// EmbedBatch chunks texts into groups of maxBatchSize and calls the
// native batch EmbedContent API for each chunk.
func (e *GenAIEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	timer := logging.StartTimer(logging.CategoryEmbedding, "GenAI.EmbedBatch")
	defer timer.Stop()

	if len(texts) == 0 {
		return nil, nil
	}
	if len(texts) <= maxBatchSize {
		return e.embedBatchChunk(ctx, texts)
	}

	numBatches := (len(texts) + maxBatchSize - 1) / maxBatchSize
	all := make([][]float32, 0, len(texts))
	for i := 0; i < numBatches; i++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		start := i * maxBatchSize
		end := start + maxBatchSize
		if end > len(texts) {
			end = len(texts)
		}
		chunk, err := e.embedBatchChunk(ctx, texts[start:end])
		if err != nil {
			return nil, cverr.Wrap(cverr.KindEmbedding, "GenAI.EmbedBatch", err)
		}
		all = append(all, chunk...)
	}
	return all, nil
}

func (e *GenAIEngine) embedBatchChunk(ctx context.Context, texts []string) ([][]float32, error) {
	contents := make([]*genai.Content, len(texts))
	for i, text := range texts {
		contents[i] = genai.NewContentFromText(text, genai.RoleUser)
	}

	apiStart := time.Now()
	result, err := e.client.Models.EmbedContent(ctx, e.model, contents, &genai.EmbedContentConfig{
		TaskType:             e.taskType,
		OutputDimensionality: int32Ptr(genaiDimensions),
	})
	logging.Debugf(logging.CategoryEmbedding, "GenAI.embedBatchChunk: %d texts in %v", len(texts), time.Since(apiStart))
	if err != nil {
		return nil, cverr.Wrap(cverr.KindEmbedding, "GenAI.embedBatchChunk", err)
	}

	embeddings := make([][]float32, len(result.Embeddings))
	for i, emb := range result.Embeddings {
		embeddings[i] = emb.Values
	}
	return embeddings, nil
}

func (e *GenAIEngine) Dimensions() int { return genaiDimensions }
func (e *GenAIEngine) Name() string    { return "genai:" + e.model }
func (e *GenAIEngine) Close() error    { return nil }
