package memory

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

// wordHashEmbedder buckets words into a fixed-size vector so texts sharing
// words embed close together. Deterministic and dependency-free.
type wordHashEmbedder struct{}

const embedderDims = 32

func (wordHashEmbedder) Embedding(_ context.Context, input, _ string) ([]float64, error) {
	vec := make([]float64, embedderDims)
	for _, w := range strings.Fields(strings.ToLower(input)) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(strings.Trim(w, ".,!?")))
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

func newTestService(t *testing.T) (*Service, *vectorstore.MemoryStore) {
	t.Helper()
	store := vectorstore.NewMemoryStore()
	embedder, err := vectorstore.NewEmbeddingWrapper(wordHashEmbedder{}, "test-model")
	require.NoError(t, err)
	return NewService(store, embedder, log.New(io.Discard)), store
}

func activeCount(t *testing.T, store *vectorstore.MemoryStore, userID string, typ RecordType) int {
	t.Helper()
	count, err := store.Count(context.Background(), vectorstore.Filter{
		Namespace: Namespace,
		UserID:    userID,
		Type:      string(typ),
	})
	require.NoError(t, err)
	return count
}

func TestRecallAfterWrite(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	written, err := svc.Write(ctx, "u1", TypeProfile, "user is 45 years old and walks daily")
	require.NoError(t, err)
	require.NotEmpty(t, written.ID)

	records, err := svc.Recall(ctx, "u1", TypeProfile, "user is 45 years old and walks daily", 5)
	require.NoError(t, err)
	require.NotEmpty(t, records)
	assert.Equal(t, written.ID, records[0].ID)
	assert.Equal(t, "user is 45 years old and walks daily", records[0].Text)
	assert.Equal(t, TypeProfile, records[0].Type)
}

func TestWriteSupersedesNearDuplicate(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	first, err := svc.Write(ctx, "u1", TypeConstraint, "works night shifts at the hospital")
	require.NoError(t, err)
	second, err := svc.Write(ctx, "u1", TypeConstraint, "works night shifts at the hospital")
	require.NoError(t, err)

	// Same fact keeps the same identity and never duplicates.
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, activeCount(t, store, "u1", TypeConstraint))
}

func TestWriteKeepsDistinctFacts(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	_, err := svc.Write(ctx, "u1", TypeOutcome, "blood pressure reading was 150 over 95")
	require.NoError(t, err)
	_, err = svc.Write(ctx, "u1", TypeOutcome, "skipped the evening walk three times")
	require.NoError(t, err)

	assert.Equal(t, 2, activeCount(t, store, "u1", TypeOutcome))
}

func TestDedupScopedByUserAndType(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	text := "prefers vegetarian meals on weekdays"
	_, err := svc.Write(ctx, "u1", TypeProfile, text)
	require.NoError(t, err)
	_, err = svc.Write(ctx, "u1", TypeConversation, text)
	require.NoError(t, err)
	_, err = svc.Write(ctx, "u2", TypeProfile, text)
	require.NoError(t, err)

	assert.Equal(t, 1, activeCount(t, store, "u1", TypeProfile))
	assert.Equal(t, 1, activeCount(t, store, "u1", TypeConversation))
	assert.Equal(t, 1, activeCount(t, store, "u2", TypeProfile))
}

func TestRecallFiltersByType(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Write(ctx, "u1", TypeHabitPlan, "walk twenty minutes after lunch")
	require.NoError(t, err)
	_, err = svc.Write(ctx, "u1", TypeOutcome, "walk completed four days this week")
	require.NoError(t, err)

	records, err := svc.Recall(ctx, "u1", TypeHabitPlan, "walk after lunch", 5)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, TypeHabitPlan, records[0].Type)
}

func TestExpiredRecordsNeverSurface(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	// Backdate the write so its TTL has already elapsed.
	svc.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	_, err := svc.Write(ctx, "u1", TypeConversation, "mentioned feeling dizzy this morning", WithTTL(time.Hour))
	require.NoError(t, err)
	svc.now = time.Now

	records, err := svc.Recall(ctx, "u1", TypeConversation, "feeling dizzy", 5)
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.Equal(t, 0, activeCount(t, store, "u1", TypeConversation))
}

func TestRecentOrdersNewestFirst(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	for i, text := range []string{
		"started the morning stretching routine",
		"reported better sleep after cutting caffeine",
		"asked about low sodium recipes",
	} {
		offset := time.Duration(i) * time.Minute
		svc.now = func() time.Time { return base.Add(offset) }
		_, err := svc.Write(ctx, "u1", TypeConversation, text)
		require.NoError(t, err)
	}
	svc.now = time.Now

	records, err := svc.Recent(ctx, "u1", TypeConversation, 2)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "asked about low sodium recipes", records[0].Text)
	assert.Equal(t, "reported better sleep after cutting caffeine", records[1].Text)
}
