package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/pkg/errors"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"
)

const (
	className         = "BridgeChunk"
	textProperty      = "text"
	namespaceProperty = "namespace"
	userProperty      = "userId"
	typeProperty      = "chunkType"
	metadataProperty  = "metadataJson"
	timestampProperty = "createdAt"
	expiryProperty    = "expiresAt"
)

// WeaviateStore implements Store over a Weaviate instance. Vectors are
// provided by the caller; the class is created with vectorizer "none".
type WeaviateStore struct {
	client *weaviate.Client
	logger *log.Logger
}

var _ Store = (*WeaviateStore)(nil)

func NewWeaviateStore(host, scheme string, logger *log.Logger) (*WeaviateStore, error) {
	client, err := weaviate.NewClient(weaviate.Config{
		Host:   host,
		Scheme: scheme,
	})
	if err != nil {
		return nil, errors.Wrap(err, "creating weaviate client")
	}

	store := &WeaviateStore{client: client, logger: logger}
	if err := store.ensureSchema(context.Background()); err != nil {
		store.logger.Warn("Failed to ensure schema during setup, will retry on first operation", "error", err)
	}
	return store, nil
}

func (s *WeaviateStore) ensureSchema(ctx context.Context) error {
	exists, err := s.client.Schema().ClassExistenceChecker().WithClassName(className).Do(ctx)
	if err != nil {
		return errors.Wrapf(err, "checking class existence for %q", className)
	}
	if exists {
		return nil
	}

	classObj := &models.Class{
		Class: className,
		Properties: []*models.Property{
			{Name: textProperty, DataType: []string{"text"}},
			{Name: namespaceProperty, DataType: []string{"text"}},
			{Name: userProperty, DataType: []string{"text"}},
			{Name: typeProperty, DataType: []string{"text"}},
			{Name: metadataProperty, DataType: []string{"text"}},
			{Name: timestampProperty, DataType: []string{"date"}},
			{Name: expiryProperty, DataType: []string{"date"}},
		},
		Vectorizer: "none",
	}

	if err := s.client.Schema().ClassCreator().WithClass(classObj).Do(ctx); err != nil {
		existsAfter, checkErr := s.client.Schema().ClassExistenceChecker().WithClassName(className).Do(ctx)
		if checkErr == nil && existsAfter {
			s.logger.Info("Class was created concurrently, proceeding", "class", className)
			return nil
		}
		return errors.Wrapf(err, "creating class %q", className)
	}
	s.logger.Info("Created class", "class", className)
	return nil
}

func (s *WeaviateStore) Upsert(ctx context.Context, docs []Document, vectors [][]float32) error {
	if len(docs) != len(vectors) {
		return ErrVectorCountMismatch
	}
	if len(docs) == 0 {
		return nil
	}
	if err := s.ensureSchema(ctx); err != nil {
		return err
	}

	batcher := s.client.Batch().ObjectsBatcher()
	for i, doc := range docs {
		metaJSON := []byte("{}")
		if doc.Metadata != nil {
			var err error
			if metaJSON, err = json.Marshal(doc.Metadata); err != nil {
				return errors.Wrap(err, "marshaling chunk metadata")
			}
		}
		createdAt := doc.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now()
		}
		props := map[string]interface{}{
			textProperty:      doc.Text,
			namespaceProperty: doc.Namespace,
			userProperty:      doc.UserID,
			typeProperty:      doc.Type,
			metadataProperty:  string(metaJSON),
			timestampProperty: createdAt.Format(time.RFC3339),
		}
		if doc.ExpiresAt != nil {
			props[expiryProperty] = doc.ExpiresAt.Format(time.RFC3339)
		}
		batcher = batcher.WithObjects(&models.Object{
			Class:      className,
			ID:         toUUID(doc.ID),
			Properties: props,
			Vector:     vectors[i],
		})
	}

	resp, err := batcher.Do(ctx)
	if err != nil {
		return errors.Wrap(ErrUnavailable, err.Error())
	}
	for _, obj := range resp {
		if obj.Result != nil && obj.Result.Errors != nil && len(obj.Result.Errors.Error) > 0 {
			return fmt.Errorf("batch insert of %s failed: %s", obj.ID, obj.Result.Errors.Error[0].Message)
		}
	}
	return nil
}

func (s *WeaviateStore) buildWhere(filter Filter) *filters.WhereBuilder {
	var parts []*filters.WhereBuilder
	if filter.Namespace != "" {
		parts = append(parts, filters.Where().
			WithPath([]string{namespaceProperty}).
			WithOperator(filters.Equal).
			WithValueText(filter.Namespace))
	}
	if filter.UserID != "" {
		parts = append(parts, filters.Where().
			WithPath([]string{userProperty}).
			WithOperator(filters.Equal).
			WithValueText(filter.UserID))
	}
	if filter.Type != "" {
		parts = append(parts, filters.Where().
			WithPath([]string{typeProperty}).
			WithOperator(filters.Equal).
			WithValueText(filter.Type))
	}
	switch len(parts) {
	case 0:
		return nil
	case 1:
		return parts[0]
	default:
		return filters.Where().WithOperator(filters.And).WithOperands(parts)
	}
}

func (s *WeaviateStore) queryFields() []graphql.Field {
	return []graphql.Field{
		{Name: textProperty},
		{Name: namespaceProperty},
		{Name: userProperty},
		{Name: typeProperty},
		{Name: metadataProperty},
		{Name: timestampProperty},
		{Name: expiryProperty},
		{
			Name: "_additional",
			Fields: []graphql.Field{
				{Name: "id"},
				{Name: "distance"},
			},
		},
	}
}

func (s *WeaviateStore) Search(ctx context.Context, vector []float32, k int, filter Filter) ([]Candidate, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}

	nearVector := s.client.GraphQL().NearVectorArgBuilder().WithVector(vector)
	queryBuilder := s.client.GraphQL().Get().
		WithClassName(className).
		WithNearVector(nearVector).
		WithLimit(k).
		WithFields(s.queryFields()...)
	if where := s.buildWhere(filter); where != nil {
		queryBuilder = queryBuilder.WithWhere(where)
	}

	resp, err := queryBuilder.Do(ctx)
	if err != nil {
		return nil, errors.Wrap(ErrUnavailable, err.Error())
	}
	if len(resp.Errors) > 0 {
		return nil, fmt.Errorf("graphql query errors: %v", resp.Errors[0].Message)
	}

	now := time.Now()
	var candidates []Candidate
	for _, item := range s.classData(resp.Data) {
		doc, distance, ok := s.parseObject(item)
		if !ok || doc.Expired(now) {
			continue
		}
		candidates = append(candidates, Candidate{Document: doc, Distance: distance})
	}
	return candidates, nil
}

func (s *WeaviateStore) List(ctx context.Context, filter Filter, limit int) ([]Document, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}

	queryBuilder := s.client.GraphQL().Get().
		WithClassName(className).
		WithLimit(limit).
		WithFields(s.queryFields()...)
	if where := s.buildWhere(filter); where != nil {
		queryBuilder = queryBuilder.WithWhere(where)
	}

	resp, err := queryBuilder.Do(ctx)
	if err != nil {
		return nil, errors.Wrap(ErrUnavailable, err.Error())
	}
	if len(resp.Errors) > 0 {
		return nil, fmt.Errorf("graphql query errors: %v", resp.Errors[0].Message)
	}

	now := time.Now()
	var docs []Document
	for _, item := range s.classData(resp.Data) {
		doc, _, ok := s.parseObject(item)
		if !ok || doc.Expired(now) {
			continue
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func (s *WeaviateStore) Count(ctx context.Context, filter Filter) (int, error) {
	docs, err := s.List(ctx, filter, 10000)
	if err != nil {
		return 0, err
	}
	return len(docs), nil
}

func (s *WeaviateStore) Delete(ctx context.Context, ids []string) error {
	for _, id := range ids {
		err := s.client.Data().Deleter().
			WithClassName(className).
			WithID(string(toUUID(id))).
			Do(ctx)
		if err != nil {
			return errors.Wrapf(err, "deleting object %s", id)
		}
	}
	return nil
}

func (s *WeaviateStore) classData(data map[string]models.JSONObject) []interface{} {
	get, ok := data["Get"].(map[string]interface{})
	if !ok {
		return nil
	}
	classData, ok := get[className].([]interface{})
	if !ok {
		return nil
	}
	return classData
}

func (s *WeaviateStore) parseObject(item interface{}) (Document, float64, bool) {
	obj, ok := item.(map[string]interface{})
	if !ok {
		s.logger.Warn("Retrieved item is not a map, skipping")
		return Document{}, 0, false
	}

	doc := Document{}
	doc.Text, _ = obj[textProperty].(string)
	doc.Namespace, _ = obj[namespaceProperty].(string)
	doc.UserID, _ = obj[userProperty].(string)
	doc.Type, _ = obj[typeProperty].(string)

	if metaJSON, ok := obj[metadataProperty].(string); ok && metaJSON != "" {
		if err := json.Unmarshal([]byte(metaJSON), &doc.Metadata); err != nil {
			s.logger.Warn("Failed to unmarshal chunk metadata", "error", err)
		}
	}
	if ts, ok := obj[timestampProperty].(string); ok {
		if parsed, err := time.Parse(time.RFC3339, ts); err == nil {
			doc.CreatedAt = parsed
		}
	}
	if ts, ok := obj[expiryProperty].(string); ok && ts != "" {
		if parsed, err := time.Parse(time.RFC3339, ts); err == nil {
			doc.ExpiresAt = &parsed
		}
	}

	distance := 0.0
	if additional, ok := obj["_additional"].(map[string]interface{}); ok {
		if id, ok := additional["id"].(string); ok {
			doc.ID = id
		}
		if d, ok := additional["distance"].(float64); ok {
			distance = d
		}
	}
	return doc, distance, true
}
