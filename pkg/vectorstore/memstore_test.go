package vectorstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedDocs(t *testing.T, s *MemoryStore) {
	t.Helper()
	docs := []Document{
		{ID: "a", Namespace: "guidelines", Text: "salt"},
		{ID: "b", Namespace: "guidelines", Text: "walking"},
		{ID: "c", Namespace: "memories", UserID: "u1", Type: "profile", Text: "age 45"},
	}
	vectors := [][]float32{
		{1, 0, 0},
		{0, 1, 0},
		{0, 0, 1},
	}
	require.NoError(t, s.Upsert(context.Background(), docs, vectors))
}

func TestSearchOrdersByDistanceWithinNamespace(t *testing.T) {
	store := NewMemoryStore()
	seedDocs(t, store)

	hits, err := store.Search(context.Background(), []float32{1, 0.1, 0}, 10, Filter{Namespace: "guidelines"})
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "a", hits[0].Document.ID)
	assert.Equal(t, "b", hits[1].Document.ID)
	assert.Less(t, hits[0].Distance, hits[1].Distance)
}

func TestSearchFilterIsolatesUsers(t *testing.T) {
	store := NewMemoryStore()
	seedDocs(t, store)

	hits, err := store.Search(context.Background(), []float32{0, 0, 1}, 10, Filter{Namespace: "memories", UserID: "u2"})
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestUpsertOverwritesByID(t *testing.T) {
	store := NewMemoryStore()
	seedDocs(t, store)

	err := store.Upsert(context.Background(),
		[]Document{{ID: "a", Namespace: "guidelines", Text: "sodium"}},
		[][]float32{{1, 0, 0}})
	require.NoError(t, err)

	count, err := store.Count(context.Background(), Filter{Namespace: "guidelines"})
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	docs, err := store.List(context.Background(), Filter{Namespace: "guidelines"}, 0)
	require.NoError(t, err)
	texts := map[string]string{}
	for _, d := range docs {
		texts[d.ID] = d.Text
	}
	assert.Equal(t, "sodium", texts["a"])
}

func TestUpsertRejectsVectorCountMismatch(t *testing.T) {
	store := NewMemoryStore()
	err := store.Upsert(context.Background(),
		[]Document{{ID: "a"}, {ID: "b"}},
		[][]float32{{1}})
	assert.ErrorIs(t, err, ErrVectorCountMismatch)
}

func TestExpiredDocumentsAreInvisible(t *testing.T) {
	store := NewMemoryStore()
	past := time.Now().Add(-time.Minute)
	require.NoError(t, store.Upsert(context.Background(),
		[]Document{{ID: "gone", Namespace: "memories", ExpiresAt: &past}},
		[][]float32{{1, 0}}))

	hits, err := store.Search(context.Background(), []float32{1, 0}, 5, Filter{Namespace: "memories"})
	require.NoError(t, err)
	assert.Empty(t, hits)

	count, err := store.Count(context.Background(), Filter{Namespace: "memories"})
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestDeleteRemovesDocuments(t *testing.T) {
	store := NewMemoryStore()
	seedDocs(t, store)

	require.NoError(t, store.Delete(context.Background(), []string{"a", "b"}))
	count, err := store.Count(context.Background(), Filter{Namespace: "guidelines"})
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestCosineDistanceDegenerateVectors(t *testing.T) {
	assert.Equal(t, 1.0, CosineDistance(nil, []float32{1}))
	assert.Equal(t, 1.0, CosineDistance([]float32{1, 0}, []float32{1}))
	assert.Equal(t, 1.0, CosineDistance([]float32{0, 0}, []float32{0, 0}))
	assert.InDelta(t, 0.0, CosineDistance([]float32{1, 2}, []float32{2, 4}), 1e-9)
	assert.InDelta(t, 2.0, CosineDistance([]float32{1, 0}, []float32{-1, 0}), 1e-9)
}
