package ai

import (
	"context"

	"github.com/openai/openai-go"
)

// Completion is the completion surface consumed by the extractor and the
// agent pipeline. Implementations must honor ctx deadlines.
type Completion interface {
	Completions(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion, model string) (openai.ChatCompletionMessage, error)
}

// Embedding produces fixed-length vectors for text.
type Embedding interface {
	Embedding(ctx context.Context, input string, model string) ([]float64, error)
	Embeddings(ctx context.Context, inputs []string, model string) ([][]float64, error)
}
