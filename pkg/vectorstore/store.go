package vectorstore

import (
	"context"
	"math"
	"time"
)

// Document is one embedded text chunk with its routing metadata. Namespace
// partitions corpora (guidelines vs user memories); UserID and Type are
// empty for shared corpora.
type Document struct {
	ID        string
	Namespace string
	UserID    string
	Type      string
	Text      string
	Metadata  map[string]string
	CreatedAt time.Time
	ExpiresAt *time.Time
}

// Expired reports whether the document's TTL has elapsed at now.
func (d Document) Expired(now time.Time) bool {
	return d.ExpiresAt != nil && now.After(*d.ExpiresAt)
}

// Filter narrows search and list operations. Zero values match everything.
type Filter struct {
	Namespace string
	UserID    string
	Type      string
}

func (f Filter) matches(d Document) bool {
	if f.Namespace != "" && d.Namespace != f.Namespace {
		return false
	}
	if f.UserID != "" && d.UserID != f.UserID {
		return false
	}
	if f.Type != "" && d.Type != f.Type {
		return false
	}
	return true
}

// Candidate is a search hit. Distance is cosine distance, lower is closer.
type Candidate struct {
	Document Document
	Distance float64
}

// Store is an opaque nearest-neighbor index over embedded documents.
// Implementations are safe for concurrent use; individual operations are
// atomic at the record level.
type Store interface {
	Upsert(ctx context.Context, docs []Document, vectors [][]float32) error
	Search(ctx context.Context, vector []float32, k int, filter Filter) ([]Candidate, error)
	Delete(ctx context.Context, ids []string) error
	List(ctx context.Context, filter Filter, limit int) ([]Document, error)
	Count(ctx context.Context, filter Filter) (int, error)
}

// CosineDistance returns 1 - cosine similarity. Mismatched or zero-length
// vectors are treated as maximally distant.
func CosineDistance(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 1.0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 1.0
	}
	return 1.0 - dot/(math.Sqrt(normA)*math.Sqrt(normB))
}
