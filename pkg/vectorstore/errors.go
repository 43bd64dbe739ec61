package vectorstore

import "errors"

var (
	// ErrVectorCountMismatch is returned when Upsert receives a different
	// number of vectors than documents.
	ErrVectorCountMismatch = errors.New("vectorstore: document/vector count mismatch")

	// ErrUnavailable indicates the backing index could not be reached after
	// retry. This is the only vector store error callers treat as fatal.
	ErrUnavailable = errors.New("vectorstore: backend unavailable")
)
