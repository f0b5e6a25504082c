// Package chroma provides a Chroma vector database store implementation.
// This is the same store the recommender's original deployment used; the
// driver speaks Chroma's REST v2 API.
package chroma

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/reelpick/reel/pkg/vector"
)

const defaultTenantPath = "/api/v2/tenants/default_tenant/databases/default_database"

// Store implements vector.Store using Chroma's REST API.
type Store struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// Config holds configuration for the Chroma store.
type Config struct {
	// URL is the Chroma server URL (e.g., "http://localhost:8000").
	URL string
}

// NewStore creates a new Chroma-backed vector store.
func NewStore(c Config, logger *zap.Logger) (*Store, error) {
	if c.URL == "" {
		return nil, fmt.Errorf("chroma URL is required")
	}

	return &Store{
		baseURL: c.URL,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		logger: logger,
	}, nil
}

// Collection opens (or creates) the named Chroma collection.
func (s *Store) Collection(ctx context.Context, name string) (vector.Collection, error) {
	id, err := s.getOrCreateCollection(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("getting or creating collection %q: %w", name, err)
	}

	s.logger.Info("connected to Chroma collection",
		zap.String("url", s.baseURL),
		zap.String("collection", name),
		zap.String("collection_id", id),
	)

	return &Collection{store: s, name: name, id: id}, nil
}

// Close releases resources held by the store.
func (s *Store) Close() error {
	// HTTP client doesn't require explicit cleanup
	return nil
}

func (s *Store) collectionsURL() string {
	return s.baseURL + defaultTenantPath + "/collections"
}

// getOrCreateCollection gets an existing collection's id or creates a new one.
func (s *Store) getOrCreateCollection(ctx context.Context, name string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.collectionsURL()+"/"+name, nil)
	if err != nil {
		return "", fmt.Errorf("creating get request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", vector.ErrConnection, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		var collection chromaCollection
		if err := json.NewDecoder(resp.Body).Decode(&collection); err != nil {
			return "", fmt.Errorf("decoding collection response: %w", err)
		}
		return collection.ID, nil
	}

	// Collection doesn't exist, create it
	createBody := map[string]string{"name": name}
	jsonBody, err := json.Marshal(createBody)
	if err != nil {
		return "", fmt.Errorf("marshaling create request: %w", err)
	}

	req, err = http.NewRequestWithContext(ctx, http.MethodPost, s.collectionsURL(), bytes.NewReader(jsonBody))
	if err != nil {
		return "", fmt.Errorf("creating create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err = s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", vector.ErrConnection, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("%w: creating collection: status %d: %s", vector.ErrStore, resp.StatusCode, string(body))
	}

	var collection chromaCollection
	if err := json.NewDecoder(resp.Body).Decode(&collection); err != nil {
		return "", fmt.Errorf("decoding create response: %w", err)
	}

	return collection.ID, nil
}

// Collection is one named Chroma collection.
type Collection struct {
	store *Store
	name  string
	id    string

	// dim is the embedding dimension pinned by the first successful upsert
	// through this handle. Chroma also enforces this server-side; tracking
	// it here lets wrong-length batches fail before any network write.
	dim int
}

// Name returns the collection's name.
func (c *Collection) Name() string {
	return c.name
}

func (c *Collection) url(suffix string) string {
	return c.store.collectionsURL() + "/" + c.id + suffix
}

// post sends a JSON body to the collection sub-endpoint and decodes the
// response into out when out is non-nil.
func (c *Collection) post(ctx context.Context, suffix string, body, out any) error {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url(suffix), bytes.NewReader(jsonBody))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.store.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", vector.ErrConnection, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%w: chroma returned status %d: %s", vector.ErrStore, resp.StatusCode, string(respBody))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}

	return nil
}

// Upsert inserts or replaces records by ID.
func (c *Collection) Upsert(ctx context.Context, docs []vector.Document) error {
	if len(docs) == 0 {
		return nil
	}

	req := chromaUpsertRequest{
		IDs:        make([]string, len(docs)),
		Embeddings: make([][]float32, len(docs)),
		Metadatas:  make([]map[string]any, len(docs)),
	}

	for i, doc := range docs {
		if err := vector.ValidateMetadata(doc.Metadata); err != nil {
			return fmt.Errorf("doc %s: %w", doc.ID, err)
		}

		if c.dim == 0 {
			c.dim = len(doc.Embedding)
		}
		if len(doc.Embedding) != c.dim {
			return fmt.Errorf("%w: doc %s has dimension %d, collection %s expects %d",
				vector.ErrDimensionMismatch, doc.ID, len(doc.Embedding), c.name, c.dim)
		}

		req.IDs[i] = doc.ID
		req.Embeddings[i] = doc.Embedding
		req.Metadatas[i] = doc.Metadata
	}

	if err := c.post(ctx, "/upsert", req, nil); err != nil {
		return err
	}

	c.store.logger.Debug("upserted records to chroma",
		zap.String("collection", c.name),
		zap.Int("count", len(docs)),
	)

	return nil
}

// Get performs point lookups, preserving input order with nil entries for
// missing IDs.
func (c *Collection) Get(ctx context.Context, ids []string) ([]*vector.Document, error) {
	results := make([]*vector.Document, len(ids))
	if len(ids) == 0 {
		return results, nil
	}

	var resp chromaGetResponse
	err := c.post(ctx, "/get", chromaGetRequest{
		IDs:     ids,
		Include: []string{"metadatas", "embeddings"},
	}, &resp)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]*vector.Document, len(resp.IDs))
	for i, id := range resp.IDs {
		doc := &vector.Document{ID: id}
		if i < len(resp.Embeddings) {
			doc.Embedding = resp.Embeddings[i]
		}
		if i < len(resp.Metadatas) {
			doc.Metadata = resp.Metadatas[i]
		}
		byID[id] = doc
	}

	for i, id := range ids {
		results[i] = byID[id]
	}

	return results, nil
}

// GetByFilter returns every record whose metadata field equals value.
func (c *Collection) GetByFilter(ctx context.Context, field, value string) ([]vector.Document, error) {
	var resp chromaGetResponse
	err := c.post(ctx, "/get", chromaGetRequest{
		Where:   map[string]any{field: value},
		Include: []string{"metadatas", "embeddings"},
	}, &resp)
	if err != nil {
		return nil, err
	}

	docs := make([]vector.Document, 0, len(resp.IDs))
	for i, id := range resp.IDs {
		doc := vector.Document{ID: id}
		if i < len(resp.Embeddings) {
			doc.Embedding = resp.Embeddings[i]
		}
		if i < len(resp.Metadatas) {
			doc.Metadata = resp.Metadatas[i]
		}
		docs = append(docs, doc)
	}

	return docs, nil
}

// Query returns up to topK nearest records, ordered by ascending distance
// with ties broken by ascending ID.
func (c *Collection) Query(ctx context.Context, embedding []float32, topK int) ([]vector.QueryResult, error) {
	if topK <= 0 {
		topK = 10
	}

	var resp chromaQueryResponse
	err := c.post(ctx, "/query", chromaQueryRequest{
		QueryEmbeddings: [][]float32{embedding},
		NResults:        topK,
		Include:         []string{"metadatas", "distances"},
	}, &resp)
	if err != nil {
		return nil, err
	}

	if len(resp.IDs) == 0 {
		return nil, nil
	}

	results := make([]vector.QueryResult, 0, len(resp.IDs[0]))
	for i, id := range resp.IDs[0] {
		r := vector.QueryResult{Document: vector.Document{ID: id}}
		if len(resp.Distances) > 0 && i < len(resp.Distances[0]) {
			r.Distance = resp.Distances[0][i]
			r.Score = float32(1.0 / (1.0 + float64(r.Distance)))
		}
		if len(resp.Metadatas) > 0 && i < len(resp.Metadatas[0]) {
			r.Metadata = resp.Metadatas[0][i]
		}
		results = append(results, r)
	}

	// Chroma orders by distance but makes no promise about equal-distance
	// ordering; re-sort for the deterministic id tie-break.
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Distance != results[j].Distance {
			return results[i].Distance < results[j].Distance
		}
		return results[i].ID < results[j].ID
	})

	return results, nil
}

// Clear removes every record by deleting and recreating the collection.
func (c *Collection) Clear(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.store.collectionsURL()+"/"+c.name, nil)
	if err != nil {
		return fmt.Errorf("creating delete request: %w", err)
	}

	resp, err := c.store.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", vector.ErrConnection, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNotFound {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%w: deleting collection: status %d: %s", vector.ErrStore, resp.StatusCode, string(body))
	}

	id, err := c.store.getOrCreateCollection(ctx, c.name)
	if err != nil {
		return fmt.Errorf("recreating collection %q: %w", c.name, err)
	}
	c.id = id
	c.dim = 0

	c.store.logger.Info("cleared chroma collection", zap.String("collection", c.name))
	return nil
}

// Count returns the number of records in the collection.
func (c *Collection) Count(ctx context.Context) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url("/count"), nil)
	if err != nil {
		return 0, fmt.Errorf("creating count request: %w", err)
	}

	resp, err := c.store.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", vector.ErrConnection, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return 0, fmt.Errorf("%w: counting: status %d: %s", vector.ErrStore, resp.StatusCode, string(body))
	}

	var count chromaCountResponse
	if err := json.NewDecoder(resp.Body).Decode(&count); err != nil {
		return 0, fmt.Errorf("decoding count response: %w", err)
	}

	return int(count), nil
}

// Ensure the chroma types satisfy the store interfaces.
var (
	_ vector.Store      = (*Store)(nil)
	_ vector.Collection = (*Collection)(nil)
)
