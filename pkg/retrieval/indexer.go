package retrieval

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/pkg/errors"

	"github.com/healthbridge-ai/healthbridge/pkg/helpers"
	"github.com/healthbridge-ai/healthbridge/pkg/vectorstore"
)

const indexBatchSize = 32

// Indexer chunks guideline documents and writes them into the vector store
// under the guidelines namespace.
type Indexer struct {
	store    vectorstore.Store
	embedder *vectorstore.EmbeddingWrapper
	chunker  *Chunker
	logger   *log.Logger
}

func NewIndexer(store vectorstore.Store, embedder *vectorstore.EmbeddingWrapper, logger *log.Logger) *Indexer {
	return &Indexer{store: store, embedder: embedder, chunker: NewChunker(), logger: logger}
}

// IndexGuideline chunks and indexes one guideline document. condition and
// topic become chunk metadata used for filtered retrieval.
func (i *Indexer) IndexGuideline(ctx context.Context, text, condition, topic, source string) (int, error) {
	docID := fmt.Sprintf("%s_%s_%s", strings.ToLower(source), condition, topic)
	chunks := i.chunker.ChunkText(text, docID, map[string]string{
		"condition": condition,
		"topic":     topic,
		"source":    source,
	})
	if len(chunks) == 0 {
		return 0, nil
	}

	indexed := 0
	for _, batch := range helpers.Batch(chunks, indexBatchSize) {
		texts := make([]string, len(batch))
		for j, c := range batch {
			texts[j] = c.Content
		}
		vectors, err := i.embedder.Embeddings(ctx, texts)
		if err != nil {
			return indexed, errors.Wrap(err, "embedding guideline chunks")
		}

		docs := make([]vectorstore.Document, len(batch))
		for j, c := range batch {
			docs[j] = vectorstore.Document{
				ID:        c.ID,
				Namespace: GuidelineNamespace,
				Type:      topic,
				Text:      c.Content,
				Metadata:  c.Metadata,
				CreatedAt: time.Now(),
			}
		}
		if err := i.store.Upsert(ctx, docs, vectors); err != nil {
			return indexed, errors.Wrap(err, "upserting guideline chunks")
		}
		indexed += len(batch)
	}

	i.logger.Info("indexed guideline", "docId", docID, "chunks", indexed)
	return indexed, nil
}
