// Package memory is the long-term user memory layer. Records are embedded
// and stored in the vector store under a dedicated namespace; writes
// deduplicate by embedding similarity so the same fact restated across
// sessions supersedes the old record instead of piling up copies.
package memory

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/healthbridge-ai/healthbridge/pkg/vectorstore"
)

// Namespace partitions user memories from the guideline corpus inside the
// shared vector store.
const Namespace = "memories"

// DedupThreshold is the maximum cosine distance at which two records of the
// same (user, type) are considered the same fact. A write landing inside the
// threshold supersedes the existing record rather than inserting a new one.
const DedupThreshold = 0.35

// dedupCandidates is how many nearest neighbors a write inspects. Checking
// more than one catches the case where several older near-duplicates slipped
// in before the threshold was enforced.
const dedupCandidates = 3

// RecordType classifies what a memory is about.
type RecordType string

const (
	TypeProfile      RecordType = "profile"
	TypeConstraint   RecordType = "constraint"
	TypeHabitPlan    RecordType = "habit_plan"
	TypeOutcome      RecordType = "outcome"
	TypeConversation RecordType = "conversation"
)

// Record is one stored user-scoped fact.
type Record struct {
	ID        string     `json:"id"`
	UserID    string     `json:"userId"`
	Type      RecordType `json:"type"`
	Text      string     `json:"text"`
	CreatedAt time.Time  `json:"createdAt"`
	// Distance is populated on recall results; lower is closer.
	Distance float64 `json:"distance,omitempty"`
}

// WriteOption customizes a single write.
type WriteOption func(*writeConfig)

type writeConfig struct {
	ttl       time.Duration
	sessionID string
	source    string
}

// WithTTL expires the record after d. Zero means no expiry.
func WithTTL(d time.Duration) WriteOption {
	return func(c *writeConfig) { c.ttl = d }
}

// WithSessionID tags the record with the session it came from.
func WithSessionID(id string) WriteOption {
	return func(c *writeConfig) { c.sessionID = id }
}

// WithSource records which component produced the memory.
func WithSource(source string) WriteOption {
	return func(c *writeConfig) { c.source = source }
}

// Service reads and writes user memories over the vector store.
type Service struct {
	store    vectorstore.Store
	embedder *vectorstore.EmbeddingWrapper
	logger   *log.Logger
	now      func() time.Time
}

func NewService(store vectorstore.Store, embedder *vectorstore.EmbeddingWrapper, logger *log.Logger) *Service {
	return &Service{
		store:    store,
		embedder: embedder,
		logger:   logger,
		now:      time.Now,
	}
}

// Write stores text as a memory for the user, superseding any existing
// same-type record whose embedding lies within the dedup threshold. The
// superseded record's ID is reused so the fact keeps a stable identity; any
// further near-duplicates are removed. Store or embedder unavailability is
// the only fatal path.
func (s *Service) Write(ctx context.Context, userID string, typ RecordType, text string, opts ...WriteOption) (Record, error) {
	var cfg writeConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	vector, err := s.embedder.Embedding(ctx, text)
	if err != nil {
		return Record{}, errors.Wrap(err, "embedding memory text")
	}

	id := uuid.New().String()
	filter := vectorstore.Filter{Namespace: Namespace, UserID: userID, Type: string(typ)}
	existing, err := s.store.Search(ctx, vector, dedupCandidates, filter)
	if err != nil {
		// Dedup is best-effort; a failed check degrades to a plain insert.
		s.logger.Warn("memory dedup check failed, inserting anyway", "user", userID, "type", typ, "error", err)
	} else {
		var stale []string
		for _, cand := range existing {
			if cand.Distance < DedupThreshold {
				stale = append(stale, cand.Document.ID)
			}
		}
		if len(stale) > 0 {
			// Closest duplicate keeps its identity; extras are pruned.
			id = stale[0]
			if len(stale) > 1 {
				if err := s.store.Delete(ctx, stale[1:]); err != nil {
					return Record{}, errors.Wrap(err, "pruning duplicate memories")
				}
			}
			s.logger.Debug("superseding existing memory", "user", userID, "type", typ, "id", id)
		}
	}

	now := s.now()
	doc := vectorstore.Document{
		ID:        id,
		Namespace: Namespace,
		UserID:    userID,
		Type:      string(typ),
		Text:      text,
		CreatedAt: now,
		Metadata:  map[string]string{},
	}
	if cfg.sessionID != "" {
		doc.Metadata["sessionId"] = cfg.sessionID
	}
	if cfg.source != "" {
		doc.Metadata["source"] = cfg.source
	}
	if cfg.ttl > 0 {
		expires := now.Add(cfg.ttl)
		doc.ExpiresAt = &expires
	}

	if err := s.store.Upsert(ctx, []vectorstore.Document{doc}, [][]float32{vector}); err != nil {
		return Record{}, errors.Wrap(err, "storing memory")
	}
	return recordFromDocument(doc, 0), nil
}

// Recall returns up to k memories for the user most similar to query,
// optionally restricted to a single record type. Expired records never
// surface.
func (s *Service) Recall(ctx context.Context, userID string, typ RecordType, query string, k int) ([]Record, error) {
	if k <= 0 {
		k = 5
	}
	vector, err := s.embedder.Embedding(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, "embedding recall query")
	}

	filter := vectorstore.Filter{Namespace: Namespace, UserID: userID, Type: string(typ)}
	candidates, err := s.store.Search(ctx, vector, k, filter)
	if err != nil {
		return nil, errors.Wrap(err, "searching memories")
	}

	records := make([]Record, 0, len(candidates))
	for _, cand := range candidates {
		records = append(records, recordFromDocument(cand.Document, cand.Distance))
	}
	return records, nil
}

// Recent returns the user's newest memories, newest first, optionally
// restricted to a single record type.
func (s *Service) Recent(ctx context.Context, userID string, typ RecordType, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 10
	}
	filter := vectorstore.Filter{Namespace: Namespace, UserID: userID, Type: string(typ)}
	docs, err := s.store.List(ctx, filter, limit)
	if err != nil {
		return nil, errors.Wrap(err, "listing memories")
	}

	records := make([]Record, 0, len(docs))
	for _, doc := range docs {
		records = append(records, recordFromDocument(doc, 0))
	}
	return records, nil
}

// Forget removes a memory by ID.
func (s *Service) Forget(ctx context.Context, id string) error {
	return errors.Wrap(s.store.Delete(ctx, []string{id}), "deleting memory")
}

func recordFromDocument(doc vectorstore.Document, distance float64) Record {
	return Record{
		ID:        doc.ID,
		UserID:    doc.UserID,
		Type:      RecordType(doc.Type),
		Text:      doc.Text,
		CreatedAt: doc.CreatedAt,
		Distance:  distance,
	}
}
