package vectorstore

import (
	"context"
	"fmt"

	"github.com/healthbridge-ai/healthbridge/pkg/ai"
)

// EmbeddingWrapper binds an embedding service to a model and converts to the
// float32 vectors the store works with.
type EmbeddingWrapper struct {
	service ai.Embedding
	model   string
}

func NewEmbeddingWrapper(service ai.Embedding, model string) (*EmbeddingWrapper, error) {
	if service == nil {
		return nil, fmt.Errorf("embedding service cannot be nil")
	}
	if model == "" {
		return nil, fmt.Errorf("model cannot be empty")
	}
	return &EmbeddingWrapper{service: service, model: model}, nil
}

// Embedding returns a single embedding as a float32 slice.
func (w *EmbeddingWrapper) Embedding(ctx context.Context, input string) ([]float32, error) {
	embedding, err := w.service.Embedding(ctx, input, w.model)
	if err != nil {
		return nil, err
	}
	return convertToFloat32(embedding), nil
}

// Embeddings returns multiple embeddings as float32 slices.
func (w *EmbeddingWrapper) Embeddings(ctx context.Context, inputs []string) ([][]float32, error) {
	embeddings, err := w.service.Embeddings(ctx, inputs, w.model)
	if err != nil {
		return nil, err
	}
	result := make([][]float32, len(embeddings))
	for i, embedding := range embeddings {
		result[i] = convertToFloat32(embedding)
	}
	return result, nil
}

func convertToFloat32(vector []float64) []float32 {
	if len(vector) == 0 {
		return nil
	}
	result := make([]float32, len(vector))
	for i, v := range vector {
		result[i] = float32(v)
	}
	return result
}
