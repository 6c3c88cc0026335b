package weaviate

import (
	"context"
	"fmt"
	"strconv"

	"github.com/go-openapi/strfmt"
	"github.com/google/uuid"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"

	"prepbot/internal/document"
	"prepbot/internal/vector"
)

// chunkNamespace seeds the deterministic object ids, so re-adding a chunk id overwrites its object.
var chunkNamespace = uuid.MustParse("6f1d5c1e-2a4b-4c8e-9d3f-7b5a1e0c9f42")

// Weaviate distance names.
const (
	DistanceL2     = "l2-squared"
	DistanceCosine = "cosine"
)

type Index struct {
	client    *weaviate.Client
	className string
	distance  string
}

func NewIndex(client *weaviate.Client, className, distance string) *Index {
	if distance == "" {
		distance = DistanceL2
	}
	return &Index{client: client, className: className, distance: distance}
}

func ObjectID(chunkID string) strfmt.UUID {
	return strfmt.UUID(uuid.NewSHA1(chunkNamespace, []byte(chunkID)).String())
}

func (s *Index) EnsureSchema(ctx context.Context) error {
	return vector.EnsureSchema(ctx, s, s.className)
}

func (s *Index) ClassExists(ctx context.Context, className string) (bool, error) {
	return s.client.Schema().ClassExistenceChecker().WithClassName(className).Do(ctx)
}

func (s *Index) CreateClass(ctx context.Context, class *models.Class) error {
	if class.VectorIndexConfig == nil {
		class.VectorIndexConfig = map[string]interface{}{"distance": s.distance}
	}
	return s.client.Schema().ClassCreator().WithClass(class).Do(ctx)
}

func (s *Index) GetClass(ctx context.Context, className string) (*models.Class, error) {
	return s.client.Schema().ClassGetter().WithClassName(className).Do(ctx)
}

func (s *Index) AddProperty(ctx context.Context, className string, property *models.Property) error {
	return s.client.Schema().PropertyCreator().WithClassName(className).WithProperty(property).Do(ctx)
}

func (s *Index) Add(ctx context.Context, ids []string, vectors [][]float32, documents []string, metadatas []document.Metadata) error {
	if err := vector.CheckAligned(ids, vectors, documents, metadatas); err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}

	objects := make([]*models.Object, len(ids))
	for i, id := range ids {
		objects[i] = &models.Object{
			Class: s.className,
			ID:    ObjectID(id),
			Properties: map[string]interface{}{
				"chunkId":   id,
				"content":   documents[i],
				"source":    metadatas[i].Source,
				"pageSlide": metadatas[i].PageSlide,
				"type":      string(metadatas[i].Type),
			},
			Vector: vectors[i],
		}
	}

	resp, err := s.client.Batch().ObjectsBatcher().WithObjects(objects...).Do(ctx)
	if err != nil {
		return fmt.Errorf("batch add: %w", err)
	}
	for _, r := range resp {
		if r.Result != nil && r.Result.Errors != nil && len(r.Result.Errors.Error) > 0 {
			return fmt.Errorf("batch add %s: %s", r.ID, r.Result.Errors.Error[0].Message)
		}
	}
	return nil
}

func (s *Index) Query(ctx context.Context, v []float32, k int) ([]document.RetrievedChunk, error) {
	if k <= 0 {
		return nil, nil
	}

	nearVector := s.client.GraphQL().NearVectorArgBuilder().WithVector(v)

	fields := []graphql.Field{
		{Name: "chunkId"},
		{Name: "content"},
		{Name: "source"},
		{Name: "pageSlide"},
		{Name: "type"},
		{Name: "_additional", Fields: []graphql.Field{{Name: "distance"}}},
	}

	res, err := s.client.GraphQL().Get().
		WithClassName(s.className).
		WithNearVector(nearVector).
		WithLimit(k).
		WithFields(fields...).
		Do(ctx)
	if err != nil {
		return nil, err
	}
	if len(res.Errors) > 0 {
		return nil, fmt.Errorf("graphql error: %v", res.Errors[0].Message)
	}

	var results []document.RetrievedChunk
	data, ok := res.Data["Get"].(map[string]interface{})
	if !ok {
		return results, nil
	}
	rows, ok := data[s.className].([]interface{})
	if !ok {
		return results, nil
	}

	for _, row := range rows {
		props, ok := row.(map[string]interface{})
		if !ok {
			continue
		}
		chunk := document.RetrievedChunk{}
		chunk.ID, _ = props["chunkId"].(string)
		chunk.Document, _ = props["content"].(string)
		chunk.Metadata.Source, _ = props["source"].(string)
		chunk.Metadata.PageSlide, _ = props["pageSlide"].(string)
		if t, ok := props["type"].(string); ok {
			chunk.Metadata.Type = document.ChunkType(t)
		}
		chunk.Metadata.Embedded = true
		chunk.Metadata.SavedToDB = true

		if additional, ok := props["_additional"].(map[string]interface{}); ok {
			switch d := additional["distance"].(type) {
			case float64:
				chunk.Distance = d
			case string:
				// some server versions send it quoted
				chunk.Distance, _ = strconv.ParseFloat(d, 64)
			}
		}
		results = append(results, chunk)
	}
	return results, nil
}

func (s *Index) Count(ctx context.Context) (int, error) {
	res, err := s.client.GraphQL().Aggregate().
		WithClassName(s.className).
		WithFields(graphql.Field{Name: "meta", Fields: []graphql.Field{{Name: "count"}}}).
		Do(ctx)
	if err != nil {
		return 0, err
	}
	if len(res.Errors) > 0 {
		return 0, fmt.Errorf("graphql error: %v", res.Errors[0].Message)
	}

	if data, ok := res.Data["Aggregate"].(map[string]interface{}); ok {
		if rows, ok := data[s.className].([]interface{}); ok && len(rows) > 0 {
			if row, ok := rows[0].(map[string]interface{}); ok {
				if meta, ok := row["meta"].(map[string]interface{}); ok {
					if count, ok := meta["count"].(float64); ok {
						return int(count), nil
					}
				}
			}
		}
	}
	return 0, nil
}
