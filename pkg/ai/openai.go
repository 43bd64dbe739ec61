package ai

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
)

const (
	defaultCallTimeout = 25 * time.Second
	maxRetries         = 1
)

var (
	_ Completion = (*Service)(nil)
	_ Embedding  = (*Service)(nil)
)

type Service struct {
	client      *openai.Client
	logger      *log.Logger
	callTimeout time.Duration
}

func NewOpenAIService(logger *log.Logger, apiKey string, baseUrl string) *Service {
	client := openai.NewClient(
		option.WithAPIKey(apiKey),
		option.WithBaseURL(baseUrl),
	)
	return &Service{
		client:      &client,
		logger:      logger,
		callTimeout: defaultCallTimeout,
	}
}

// Completions runs a chat completion with a per-call deadline and one retry
// on transient failure.
func (s *Service) Completions(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion, model string) (openai.ChatCompletionMessage, error) {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, s.callTimeout)
		completion, err := s.client.Chat.Completions.New(callCtx, openai.ChatCompletionNewParams{
			Messages:    messages,
			Model:       model,
			Temperature: param.Opt[float64]{Value: 0.2},
		})
		cancel()
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				return openai.ChatCompletionMessage{}, ctx.Err()
			}
			s.logger.Warn("Completion call failed", "attempt", attempt, "error", err)
			continue
		}
		if len(completion.Choices) == 0 {
			lastErr = fmt.Errorf("completions API returned no choices")
			continue
		}
		return completion.Choices[0].Message, nil
	}
	return openai.ChatCompletionMessage{}, lastErr
}

func (s *Service) Embedding(ctx context.Context, input string, model string) ([]float64, error) {
	embeddings, err := s.Embeddings(ctx, []string{input}, model)
	if err != nil {
		return nil, err
	}
	if len(embeddings) == 0 {
		return nil, fmt.Errorf("embeddings API returned no data")
	}
	return embeddings[0], nil
}

func (s *Service) Embeddings(ctx context.Context, inputs []string, model string) ([][]float64, error) {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, s.callTimeout)
		resp, err := s.client.Embeddings.New(callCtx, openai.EmbeddingNewParams{
			Model: model,
			Input: openai.EmbeddingNewParamsInputUnion{
				OfArrayOfStrings: inputs,
			},
		})
		cancel()
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			s.logger.Warn("Embeddings call failed", "attempt", attempt, "error", err)
			continue
		}
		var embeddings [][]float64
		for _, item := range resp.Data {
			embeddings = append(embeddings, item.Embedding)
		}
		return embeddings, nil
	}
	return nil, lastErr
}
