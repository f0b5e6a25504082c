// Package qdrantvec provides a Qdrant-backed vector store over gRPC.
// Qdrant point ids must be UUIDs or integers, so record ids are mapped to
// deterministic name-based UUIDs and the original id is kept in the payload.
package qdrantvec

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"

	"github.com/reelpick/reel/pkg/vector"
)

// idField is the payload field holding the record's original id.
const idField = "_id"

// Store implements vector.Store using a Qdrant server.
type Store struct {
	client *qdrant.Client
	logger *zap.Logger
}

// Config holds configuration for the Qdrant store.
type Config struct {
	// Host is the Qdrant gRPC host. Defaults to "localhost".
	Host string

	// Port is the Qdrant gRPC port. Defaults to 6334.
	Port int
}

// NewStore connects to the Qdrant server.
func NewStore(c Config, logger *zap.Logger) (*Store, error) {
	host := c.Host
	if host == "" {
		host = "localhost"
	}
	port := c.Port
	if port == 0 {
		port = 6334
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host: host,
		Port: port,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: connecting to qdrant: %v", vector.ErrConnection, err)
	}

	logger.Info("connected to qdrant",
		zap.String("host", host),
		zap.Int("port", port),
	)

	return &Store{client: client, logger: logger}, nil
}

// Collection opens the named collection. The Qdrant collection itself is
// created lazily at the first upsert, once the embedding dimension is known.
func (s *Store) Collection(ctx context.Context, name string) (vector.Collection, error) {
	coll := &Collection{store: s, name: name}

	exists, err := s.client.CollectionExists(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("%w: checking collection %s: %v", vector.ErrConnection, name, err)
	}
	if exists {
		info, err := s.client.GetCollectionInfo(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("%w: describing collection %s: %v", vector.ErrStore, name, err)
		}
		if params := info.GetConfig().GetParams().GetVectorsConfig().GetParams(); params != nil {
			coll.dim = int(params.GetSize())
		}
	}

	return coll, nil
}

// Close releases the gRPC connection.
func (s *Store) Close() error {
	return s.client.Close()
}

// Collection is one named Qdrant collection.
type Collection struct {
	store *Store
	name  string

	// dim is the embedding dimension, 0 until the collection is created.
	dim int
}

// Name returns the collection's name.
func (c *Collection) Name() string {
	return c.name
}

// pointID derives the deterministic Qdrant point id for a record id.
func pointID(id string) *qdrant.PointId {
	return qdrant.NewID(uuid.NewSHA1(uuid.NameSpaceOID, []byte(id)).String())
}

// ensure creates the Qdrant collection for the given dimension if needed.
func (c *Collection) ensure(ctx context.Context, dim int) error {
	if c.dim != 0 {
		return nil
	}

	err := c.store.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: c.name,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dim),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("%w: creating collection %s: %v", vector.ErrStore, c.name, err)
	}

	c.dim = dim
	return nil
}

// Upsert inserts or replaces records by ID.
func (c *Collection) Upsert(ctx context.Context, docs []vector.Document) error {
	if len(docs) == 0 {
		return nil
	}

	for _, doc := range docs {
		if err := vector.ValidateMetadata(doc.Metadata); err != nil {
			return fmt.Errorf("doc %s: %w", doc.ID, err)
		}
	}

	if err := c.ensure(ctx, len(docs[0].Embedding)); err != nil {
		return err
	}

	points := make([]*qdrant.PointStruct, len(docs))
	for i, doc := range docs {
		if len(doc.Embedding) != c.dim {
			return fmt.Errorf("%w: doc %s has dimension %d, collection %s expects %d",
				vector.ErrDimensionMismatch, doc.ID, len(doc.Embedding), c.name, c.dim)
		}

		payload := toPayload(doc.Metadata)
		payload[idField] = qdrant.NewValueString(doc.ID)

		points[i] = &qdrant.PointStruct{
			Id:      pointID(doc.ID),
			Vectors: qdrant.NewVectors(doc.Embedding...),
			Payload: payload,
		}
	}

	_, err := c.store.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: c.name,
		Points:         points,
		Wait:           qdrant.PtrOf(true),
	})
	if err != nil {
		return fmt.Errorf("%w: upserting points: %v", vector.ErrStore, err)
	}

	c.store.logger.Debug("upserted records to qdrant",
		zap.String("collection", c.name),
		zap.Int("count", len(docs)),
	)

	return nil
}

// Get performs point lookups, preserving input order with nil entries for
// missing IDs.
func (c *Collection) Get(ctx context.Context, ids []string) ([]*vector.Document, error) {
	results := make([]*vector.Document, len(ids))
	if len(ids) == 0 || c.dim == 0 {
		return results, nil
	}

	pointIDs := make([]*qdrant.PointId, len(ids))
	for i, id := range ids {
		pointIDs[i] = pointID(id)
	}

	resp, err := c.store.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: c.name,
		Ids:            pointIDs,
		WithVectors:    qdrant.NewWithVectors(true),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: getting points: %v", vector.ErrStore, err)
	}

	byID := make(map[string]*vector.Document, len(resp))
	for _, point := range resp {
		doc := pointToDocument(point.Payload, point.Vectors)
		byID[doc.ID] = &doc
	}

	for i, id := range ids {
		results[i] = byID[id]
	}

	return results, nil
}

// GetByFilter returns every record whose metadata field equals value,
// scrolling through the collection page by page.
func (c *Collection) GetByFilter(ctx context.Context, field, value string) ([]vector.Document, error) {
	if c.dim == 0 {
		return nil, nil
	}

	filter := &qdrant.Filter{
		Must: []*qdrant.Condition{qdrant.NewMatch(field, value)},
	}

	const pageLimit uint32 = 100
	var docs []vector.Document
	var offset *qdrant.PointId

	for {
		resp, err := c.store.client.Scroll(ctx, &qdrant.ScrollPoints{
			CollectionName: c.name,
			Filter:         filter,
			Limit:          qdrant.PtrOf(pageLimit),
			Offset:         offset,
			WithVectors:    qdrant.NewWithVectors(true),
			WithPayload:    qdrant.NewWithPayload(true),
		})
		if err != nil {
			return nil, fmt.Errorf("%w: scrolling points: %v", vector.ErrStore, err)
		}

		if len(resp) == 0 {
			break
		}

		for _, point := range resp {
			docs = append(docs, pointToDocument(point.Payload, point.Vectors))
			offset = point.Id
		}

		if len(resp) < int(pageLimit) {
			break
		}
	}

	return docs, nil
}

// Query returns up to topK nearest records under cosine distance, ordered by
// ascending distance with ties broken by ascending ID.
func (c *Collection) Query(ctx context.Context, embedding []float32, topK int) ([]vector.QueryResult, error) {
	if topK <= 0 {
		topK = 10
	}
	if c.dim == 0 {
		return nil, nil
	}
	if len(embedding) != c.dim {
		return nil, fmt.Errorf("%w: query has dimension %d, collection %s expects %d",
			vector.ErrDimensionMismatch, len(embedding), c.name, c.dim)
	}

	resp, err := c.store.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: c.name,
		Query:          qdrant.NewQuery(embedding...),
		Limit:          qdrant.PtrOf(uint64(topK)),
		WithVectors:    qdrant.NewWithVectors(false),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: querying points: %v", vector.ErrStore, err)
	}

	results := make([]vector.QueryResult, 0, len(resp))
	for _, scored := range resp {
		doc := pointToDocument(scored.Payload, nil)

		// Qdrant reports cosine similarity; flip to a distance so ordering
		// semantics match the other backends.
		distance := 1.0 - scored.Score
		results = append(results, vector.QueryResult{
			Document: doc,
			Distance: distance,
			Score:    float32(1.0 / (1.0 + float64(distance))),
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Distance != results[j].Distance {
			return results[i].Distance < results[j].Distance
		}
		return results[i].ID < results[j].ID
	})

	return results, nil
}

// Clear removes every record by deleting the Qdrant collection; it is
// recreated by the next upsert.
func (c *Collection) Clear(ctx context.Context) error {
	if c.dim == 0 {
		return nil
	}

	if err := c.store.client.DeleteCollection(ctx, c.name); err != nil {
		return fmt.Errorf("%w: deleting collection %s: %v", vector.ErrStore, c.name, err)
	}
	c.dim = 0

	c.store.logger.Info("cleared qdrant collection", zap.String("collection", c.name))
	return nil
}

// Count returns the number of records in the collection.
func (c *Collection) Count(ctx context.Context) (int, error) {
	if c.dim == 0 {
		return 0, nil
	}

	n, err := c.store.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: c.name,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, fmt.Errorf("%w: counting points: %v", vector.ErrStore, err)
	}

	return int(n), nil
}

// pointToDocument converts a Qdrant payload and vectors into a Document.
func pointToDocument(payload map[string]*qdrant.Value, vectors *qdrant.VectorsOutput) vector.Document {
	doc := vector.Document{Metadata: make(map[string]any, len(payload))}

	for k, v := range payload {
		if k == idField {
			doc.ID = v.GetStringValue()
			continue
		}
		doc.Metadata[k] = fromValue(v)
	}

	if vectors != nil {
		doc.Embedding = vectors.GetVector().GetData()
	}

	return doc
}

// toPayload converts metadata to a Qdrant payload.
func toPayload(m map[string]any) map[string]*qdrant.Value {
	payload := make(map[string]*qdrant.Value, len(m)+1)
	for k, v := range m {
		payload[k] = toValue(v)
	}
	return payload
}

// toValue converts a round-trip-safe metadata value to a *qdrant.Value.
func toValue(v any) *qdrant.Value {
	switch val := v.(type) {
	case string:
		return qdrant.NewValueString(val)
	case float64:
		return qdrant.NewValueDouble(val)
	case float32:
		return qdrant.NewValueDouble(float64(val))
	case int:
		return qdrant.NewValueInt(int64(val))
	case int64:
		return qdrant.NewValueInt(val)
	default:
		return qdrant.NewValueString(fmt.Sprintf("%v", val))
	}
}

// fromValue converts a *qdrant.Value back to a metadata value.
func fromValue(v *qdrant.Value) any {
	switch v.Kind.(type) {
	case *qdrant.Value_StringValue:
		return v.GetStringValue()
	case *qdrant.Value_DoubleValue:
		return v.GetDoubleValue()
	case *qdrant.Value_IntegerValue:
		return float64(v.GetIntegerValue())
	case *qdrant.Value_BoolValue:
		return v.GetBoolValue()
	default:
		return nil
	}
}

// Ensure the qdrant types satisfy the store interfaces.
var (
	_ vector.Store      = (*Store)(nil)
	_ vector.Collection = (*Collection)(nil)
)
