package retrieval

import (
	"context"
	"hash/fnv"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/healthbridge-ai/healthbridge/pkg/vectorstore"
)

// wordHashEmbedder maps each word to a bucket, so texts sharing words get
// close vectors. Deterministic and dependency-free.
type wordHashEmbedder struct{}

const embedderDims = 32

func (wordHashEmbedder) Embedding(_ context.Context, input, _ string) ([]float64, error) {
	vec := make([]float64, embedderDims)
	for _, w := range strings.Fields(strings.ToLower(input)) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(stemWord(strings.Trim(w, ".,!?"))))
		vec[h.Sum32()%embedderDims]++
	}
	return vec, nil
}

func (e wordHashEmbedder) Embeddings(ctx context.Context, inputs []string, model string) ([][]float64, error) {
	out := make([][]float64, len(inputs))
	for i, in := range inputs {
		v, _ := e.Embedding(ctx, in, model)
		out[i] = v
	}
	return out, nil
}

func newTestRetriever(t *testing.T) (*Retriever, *vectorstore.MemoryStore, *vectorstore.EmbeddingWrapper) {
	t.Helper()
	store := vectorstore.NewMemoryStore()
	embedder, err := vectorstore.NewEmbeddingWrapper(wordHashEmbedder{}, "test-model")
	require.NoError(t, err)
	retriever := NewRetriever(store, embedder, NewCritic(0.6), log.New(io.Discard))
	return retriever, store, embedder
}

func seedGuidelines(t *testing.T, store *vectorstore.MemoryStore, embedder *vectorstore.EmbeddingWrapper, texts []string) {
	t.Helper()
	ctx := context.Background()
	vectors, err := embedder.Embeddings(ctx, texts)
	require.NoError(t, err)
	docs := make([]vectorstore.Document, len(texts))
	for i, text := range texts {
		docs[i] = vectorstore.Document{
			ID:        "doc-" + strings.Fields(text)[0],
			Namespace: GuidelineNamespace,
			Text:      text,
			Metadata:  map[string]string{"docId": "who_test"},
			CreatedAt: time.Now(),
		}
	}
	require.NoError(t, store.Upsert(ctx, docs, vectors))
}

func TestRetrieveAcceptsRelevantSet(t *testing.T) {
	retriever, store, embedder := newTestRetriever(t)
	seedGuidelines(t, store, embedder, []string{
		"Reducing salt intake lowers blood pressure in adults with hypertension.",
		"Regular walking lowers blood pressure and improves heart health.",
	})

	candidates, err := retriever.Retrieve(context.Background(), "how to lower blood pressure", 5, 2)
	require.NoError(t, err)
	require.NotEmpty(t, candidates)
	for _, c := range candidates {
		assert.Equal(t, RelevanceAccepted, c.Relevance)
	}
}

func TestRetrieveNeverEmptyOnNonEmptyIndex(t *testing.T) {
	retriever, store, embedder := newTestRetriever(t)
	seedGuidelines(t, store, embedder, []string{
		"Influenza vaccines are updated annually to match circulating strains.",
	})

	candidates, err := retriever.Retrieve(context.Background(), "how to lower blood pressure", 5, 2)
	// Best-effort: flagged exhausted but still carrying the top-scoring set.
	assert.ErrorIs(t, err, ErrRetrievalExhausted)
	assert.NotEmpty(t, candidates)
}

func TestRetrieveEmptyIndexIsFlaggedNotFatal(t *testing.T) {
	retriever, _, _ := newTestRetriever(t)

	candidates, err := retriever.Retrieve(context.Background(), "anything at all", 5, 1)
	assert.ErrorIs(t, err, ErrRetrievalExhausted)
	assert.Empty(t, candidates)
}

func TestRewriteQueryIsDeterministic(t *testing.T) {
	q := "diet for diabetes"
	assert.Equal(t, q, rewriteQuery(q, 0))
	first := rewriteQuery(q, 1)
	assert.Equal(t, first, rewriteQuery(q, 1))
	assert.NotEqual(t, first, rewriteQuery(q, 2))
	assert.Contains(t, first, q)
}

func TestIndexerChunksAndStores(t *testing.T) {
	_, store, embedder := newTestRetriever(t)
	indexer := NewIndexer(store, embedder, log.New(io.Discard))

	para := strings.Repeat("Adults should limit salt to five grams per day. ", 20)
	text := para + "\n\n" + strings.Repeat("Walking thirty minutes daily lowers cardiovascular risk. ", 20)

	n, err := indexer.IndexGuideline(context.Background(), text, "hypertension", "diet", "WHO")
	require.NoError(t, err)
	assert.Greater(t, n, 0)

	count, err := store.Count(context.Background(), vectorstore.Filter{Namespace: GuidelineNamespace})
	require.NoError(t, err)
	assert.Equal(t, n, count)
}

func TestChunkerBreaksAtBoundaries(t *testing.T) {
	chunker := NewChunker()
	chunker.ChunkSize = 200
	chunker.ChunkOverlap = 20
	chunker.MinChunkSize = 50

	text := strings.Repeat("A sentence about healthy eating habits and daily movement. ", 30)
	chunks := chunker.ChunkText(text, "doc1", map[string]string{"topic": "diet"})

	require.Greater(t, len(chunks), 1)
	for _, c := range chunks {
		assert.LessOrEqual(t, len(c.Content), chunker.ChunkSize+1)
		assert.GreaterOrEqual(t, len(c.Content), chunker.MinChunkSize)
		assert.Equal(t, "diet", c.Metadata["topic"])
		assert.Equal(t, "doc1", c.Metadata["docId"])
	}
	assert.NotEqual(t, chunks[0].ID, chunks[1].ID)
}
