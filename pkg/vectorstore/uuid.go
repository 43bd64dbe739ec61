package vectorstore

import (
	"github.com/go-openapi/strfmt"
	"github.com/google/uuid"
)

// toUUID maps an arbitrary record id onto a stable Weaviate object UUID.
// Ids that already parse as UUIDs pass through unchanged so upserts stay
// idempotent across backends.
func toUUID(id string) strfmt.UUID {
	if parsed, err := uuid.Parse(id); err == nil {
		return strfmt.UUID(parsed.String())
	}
	return strfmt.UUID(uuid.NewSHA1(uuid.NameSpaceOID, []byte(id)).String())
}
