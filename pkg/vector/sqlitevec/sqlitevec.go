// Package sqlitevec provides a SQLite-backed vector store using sqlite-vec.
// One database file holds any number of named collections; each collection
// pairs a document table (doc_id, metadata JSON) with a vec0 virtual table
// holding the embeddings for KNN queries.
package sqlitevec

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strings"
	"sync"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/reelpick/reel/pkg/vector"
)

// Store implements vector.Store backed by a single SQLite database.
type Store struct {
	db     *sql.DB
	logger *zap.Logger

	// mu serializes writes. SQLite allows one writer at a time; funneling
	// upserts and clears through a single lock keeps per-id upserts atomic
	// and last-write-wins without busy-retry loops.
	mu sync.Mutex
}

// Config holds configuration for the SQLite vector store.
type Config struct {
	// DBPath is the path to the SQLite database file.
	// Use ":memory:" for an in-memory database.
	DBPath string
}

var collectionName = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]*$`)

// NewStore opens (or creates) the SQLite database at c.DBPath and prepares
// the collection registry.
func NewStore(c Config, logger *zap.Logger) (*Store, error) {
	// enable connections to have the sqlite-vec extension
	sqlite_vec.Auto()

	if c.DBPath == "" {
		return nil, fmt.Errorf("database path is required")
	}

	db, err := sql.Open("sqlite3", c.DBPath)
	if err != nil {
		return nil, fmt.Errorf("%w: opening database: %v", vector.ErrConnection, err)
	}

	// A single connection keeps ":memory:" databases coherent (each pooled
	// connection would otherwise see its own empty database) and matches
	// SQLite's one-writer model.
	db.SetMaxOpenConns(1)

	// Verify sqlite-vec is loaded
	var vecVersion string
	if err := db.QueryRow("SELECT vec_version()").Scan(&vecVersion); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: sqlite-vec not available: %v", vector.ErrConnection, err)
	}

	// Registry of collections and their pinned embedding dimensions.
	// A dimension of 0 means no record has been upserted yet.
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS collections (
			name TEXT PRIMARY KEY,
			dimension INTEGER NOT NULL DEFAULT 0
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: creating collections table: %v", vector.ErrStore, err)
	}

	logger.Info("sqlite-vec store initialized",
		zap.String("db_path", c.DBPath),
		zap.String("vec_version", vecVersion),
	)

	return &Store{
		db:     db,
		logger: logger,
	}, nil
}

// Collection opens the named collection, creating its document table and
// registry row on first use. Idempotent.
func (s *Store) Collection(ctx context.Context, name string) (vector.Collection, error) {
	if !collectionName.MatchString(name) {
		return nil, fmt.Errorf("invalid collection name %q", name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO collections(name, dimension) VALUES (?, 0)`, name,
	); err != nil {
		return nil, fmt.Errorf("%w: registering collection %s: %v", vector.ErrStore, name, err)
	}

	createDocs := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS docs_%s (
			rowid INTEGER PRIMARY KEY AUTOINCREMENT,
			doc_id TEXT NOT NULL UNIQUE,
			metadata TEXT NOT NULL DEFAULT '{}'
		)
	`, name)
	if _, err := s.db.ExecContext(ctx, createDocs); err != nil {
		return nil, fmt.Errorf("%w: creating documents table for %s: %v", vector.ErrStore, name, err)
	}

	return &Collection{store: s, name: name}, nil
}

// Close releases resources held by the store.
func (s *Store) Close() error {
	return s.db.Close()
}

// Collection is one named collection inside a Store.
type Collection struct {
	store *Store
	name  string
}

// Name returns the collection's name.
func (c *Collection) Name() string {
	return c.name
}

func (c *Collection) docsTable() string {
	return "docs_" + c.name
}

func (c *Collection) vecTable() string {
	return "vec_" + c.name
}

// serializeFloat32 converts a float32 slice to a little-endian byte slice
// suitable for sqlite-vec BLOB format.
func serializeFloat32(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// deserializeFloat32 converts a little-endian byte slice back to a float32 slice.
func deserializeFloat32(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("invalid embedding blob length %d: must be divisible by 4", len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v, nil
}

// dimension reads the collection's pinned dimension (0 = not pinned yet).
func (c *Collection) dimension(ctx context.Context, q interface {
	QueryRowContext(context.Context, string, ...any) *sql.Row
}) (int, error) {
	var dim int
	err := q.QueryRowContext(ctx,
		`SELECT dimension FROM collections WHERE name = ?`, c.name,
	).Scan(&dim)
	if err != nil {
		return 0, fmt.Errorf("%w: reading dimension for %s: %v", vector.ErrStore, c.name, err)
	}
	return dim, nil
}

// pinDimension creates the vec0 table for the given dimension and records it.
// Cosine distance matches the normalized text embeddings stored here.
func (c *Collection) pinDimension(ctx context.Context, tx *sql.Tx, dim int) error {
	createVec := fmt.Sprintf(
		`CREATE VIRTUAL TABLE IF NOT EXISTS %s USING vec0(embedding float[%d] distance_metric=cosine)`,
		c.vecTable(), dim,
	)
	if _, err := tx.ExecContext(ctx, createVec); err != nil {
		return fmt.Errorf("%w: creating vec0 table for %s: %v", vector.ErrStore, c.name, err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE collections SET dimension = ? WHERE name = ?`, dim, c.name,
	); err != nil {
		return fmt.Errorf("%w: pinning dimension for %s: %v", vector.ErrStore, c.name, err)
	}

	return nil
}

// Upsert inserts or replaces records by ID. The whole batch commits in one
// transaction, so a record's embedding and metadata become visible together.
func (c *Collection) Upsert(ctx context.Context, docs []vector.Document) error {
	if len(docs) == 0 {
		return nil
	}

	for _, doc := range docs {
		if err := vector.ValidateMetadata(doc.Metadata); err != nil {
			return fmt.Errorf("doc %s: %w", doc.ID, err)
		}
	}

	c.store.mu.Lock()
	defer c.store.mu.Unlock()

	tx, err := c.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: beginning transaction: %v", vector.ErrStore, err)
	}
	defer tx.Rollback()

	dim, err := c.dimension(ctx, tx)
	if err != nil {
		return err
	}

	for _, doc := range docs {
		if dim == 0 {
			if err := c.pinDimension(ctx, tx, len(doc.Embedding)); err != nil {
				return err
			}
			dim = len(doc.Embedding)
		}

		if len(doc.Embedding) != dim {
			return fmt.Errorf("%w: doc %s has dimension %d, collection %s expects %d",
				vector.ErrDimensionMismatch, doc.ID, len(doc.Embedding), c.name, dim)
		}

		metaJSON, err := json.Marshal(doc.Metadata)
		if err != nil {
			return fmt.Errorf("marshaling metadata for doc %s: %w", doc.ID, err)
		}

		embBlob := serializeFloat32(doc.Embedding)

		// Check if the record already exists
		var existingRowID int64
		err = tx.QueryRowContext(ctx,
			fmt.Sprintf(`SELECT rowid FROM %s WHERE doc_id = ?`, c.docsTable()), doc.ID,
		).Scan(&existingRowID)

		switch err {
		case nil:
			// Record exists — replace metadata and embedding
			if _, err := tx.ExecContext(ctx,
				fmt.Sprintf(`UPDATE %s SET metadata = ? WHERE rowid = ?`, c.docsTable()),
				string(metaJSON), existingRowID,
			); err != nil {
				return fmt.Errorf("%w: updating doc %s: %v", vector.ErrStore, doc.ID, err)
			}

			// vec0 does not support UPDATE, so replace via DELETE + INSERT
			if _, err := tx.ExecContext(ctx,
				fmt.Sprintf(`DELETE FROM %s WHERE rowid = ?`, c.vecTable()), existingRowID,
			); err != nil {
				return fmt.Errorf("%w: deleting old embedding for doc %s: %v", vector.ErrStore, doc.ID, err)
			}

			if _, err := tx.ExecContext(ctx,
				fmt.Sprintf(`INSERT INTO %s(rowid, embedding) VALUES (?, ?)`, c.vecTable()),
				existingRowID, embBlob,
			); err != nil {
				return fmt.Errorf("%w: re-inserting embedding for doc %s: %v", vector.ErrStore, doc.ID, err)
			}
		case sql.ErrNoRows:
			// New record — insert into the documents table first to get the rowid
			result, err := tx.ExecContext(ctx,
				fmt.Sprintf(`INSERT INTO %s(doc_id, metadata) VALUES (?, ?)`, c.docsTable()),
				doc.ID, string(metaJSON),
			)
			if err != nil {
				return fmt.Errorf("%w: inserting doc %s: %v", vector.ErrStore, doc.ID, err)
			}

			rowID, err := result.LastInsertId()
			if err != nil {
				return fmt.Errorf("%w: getting rowid for doc %s: %v", vector.ErrStore, doc.ID, err)
			}

			if _, err := tx.ExecContext(ctx,
				fmt.Sprintf(`INSERT INTO %s(rowid, embedding) VALUES (?, ?)`, c.vecTable()),
				rowID, embBlob,
			); err != nil {
				return fmt.Errorf("%w: inserting embedding for doc %s: %v", vector.ErrStore, doc.ID, err)
			}
		default:
			return fmt.Errorf("%w: checking for existing doc %s: %v", vector.ErrStore, doc.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: committing transaction: %v", vector.ErrStore, err)
	}

	c.store.logger.Debug("upserted records",
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

	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}

	query := fmt.Sprintf(`
		SELECT doc_id, metadata, rowid
		FROM %s
		WHERE doc_id IN (%s)
	`, c.docsTable(), strings.Join(placeholders, ","))

	rows, err := c.store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: querying documents: %v", vector.ErrStore, err)
	}
	defer rows.Close()

	// Collect first so the cursor is closed before issuing the per-row
	// embedding lookups (SQLite uses a single connection).
	type docRow struct {
		docID string
		meta  string
		rowID int64
	}
	var docRows []docRow

	for rows.Next() {
		var dr docRow
		if err := rows.Scan(&dr.docID, &dr.meta, &dr.rowID); err != nil {
			return nil, fmt.Errorf("%w: scanning document: %v", vector.ErrStore, err)
		}
		docRows = append(docRows, dr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating documents: %v", vector.ErrStore, err)
	}
	rows.Close()

	byID := make(map[string]*vector.Document, len(docRows))
	for _, dr := range docRows {
		doc := &vector.Document{ID: dr.docID}

		if err := json.Unmarshal([]byte(dr.meta), &doc.Metadata); err != nil {
			return nil, fmt.Errorf("parsing metadata for doc %s: %w", dr.docID, err)
		}

		var embBlob []byte
		err := c.store.db.QueryRowContext(ctx,
			fmt.Sprintf(`SELECT embedding FROM %s WHERE rowid = ?`, c.vecTable()), dr.rowID,
		).Scan(&embBlob)
		if err == nil && len(embBlob) > 0 {
			doc.Embedding, _ = deserializeFloat32(embBlob)
		}

		byID[dr.docID] = doc
	}

	for i, id := range ids {
		results[i] = byID[id]
	}

	return results, nil
}

// GetByFilter returns every record whose metadata field equals value,
// in insertion order.
func (c *Collection) GetByFilter(ctx context.Context, field, value string) ([]vector.Document, error) {
	query := fmt.Sprintf(`
		SELECT doc_id, metadata
		FROM %s
		WHERE json_extract(metadata, '$.' || ?) = ?
		ORDER BY rowid
	`, c.docsTable())

	rows, err := c.store.db.QueryContext(ctx, query, field, value)
	if err != nil {
		return nil, fmt.Errorf("%w: filtering documents: %v", vector.ErrStore, err)
	}
	defer rows.Close()

	var docs []vector.Document
	for rows.Next() {
		var doc vector.Document
		var meta string
		if err := rows.Scan(&doc.ID, &meta); err != nil {
			return nil, fmt.Errorf("%w: scanning document: %v", vector.ErrStore, err)
		}
		if err := json.Unmarshal([]byte(meta), &doc.Metadata); err != nil {
			return nil, fmt.Errorf("parsing metadata for doc %s: %w", doc.ID, err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating documents: %v", vector.ErrStore, err)
	}

	return docs, nil
}

// Query returns up to topK nearest records under cosine distance, ordered by
// ascending distance with ties broken by ascending doc_id.
func (c *Collection) Query(ctx context.Context, embedding []float32, topK int) ([]vector.QueryResult, error) {
	if topK <= 0 {
		topK = 10
	}

	dim, err := c.dimension(ctx, c.store.db)
	if err != nil {
		return nil, err
	}
	if dim == 0 {
		// Nothing was ever upserted; no vec0 table exists yet.
		return nil, nil
	}
	if len(embedding) != dim {
		return nil, fmt.Errorf("%w: query has dimension %d, collection %s expects %d",
			vector.ErrDimensionMismatch, len(embedding), c.name, dim)
	}

	query := fmt.Sprintf(`
		SELECT d.doc_id, d.metadata, ve.distance
		FROM %s ve
		INNER JOIN %s d ON d.rowid = ve.rowid
		WHERE ve.embedding MATCH ?
			AND ve.k = ?
		ORDER BY ve.distance, d.doc_id
	`, c.vecTable(), c.docsTable())

	rows, err := c.store.db.QueryContext(ctx, query, serializeFloat32(embedding), topK)
	if err != nil {
		return nil, fmt.Errorf("%w: querying vectors: %v", vector.ErrStore, err)
	}
	defer rows.Close()

	var results []vector.QueryResult
	for rows.Next() {
		var docID, meta string
		var distance float64
		if err := rows.Scan(&docID, &meta, &distance); err != nil {
			return nil, fmt.Errorf("%w: scanning query result: %v", vector.ErrStore, err)
		}

		doc := vector.Document{ID: docID}
		if err := json.Unmarshal([]byte(meta), &doc.Metadata); err != nil {
			return nil, fmt.Errorf("parsing metadata for doc %s: %w", docID, err)
		}

		results = append(results, vector.QueryResult{
			Document: doc,
			Distance: float32(distance),
			// Lower distance = higher similarity
			Score: float32(1.0 / (1.0 + distance)),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating query results: %v", vector.ErrStore, err)
	}

	c.store.logger.Debug("queried collection",
		zap.String("collection", c.name),
		zap.Int("results", len(results)),
	)

	return results, nil
}

// Clear removes every record and unpins the collection's dimension so the
// next upsert after a rebuild may use a different embedding model.
func (c *Collection) Clear(ctx context.Context) error {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()

	tx, err := c.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: beginning transaction: %v", vector.ErrStore, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM %s`, c.docsTable()),
	); err != nil {
		return fmt.Errorf("%w: clearing documents for %s: %v", vector.ErrStore, c.name, err)
	}

	if _, err := tx.ExecContext(ctx,
		fmt.Sprintf(`DROP TABLE IF EXISTS %s`, c.vecTable()),
	); err != nil {
		return fmt.Errorf("%w: dropping vec0 table for %s: %v", vector.ErrStore, c.name, err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE collections SET dimension = 0 WHERE name = ?`, c.name,
	); err != nil {
		return fmt.Errorf("%w: resetting dimension for %s: %v", vector.ErrStore, c.name, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: committing transaction: %v", vector.ErrStore, err)
	}

	c.store.logger.Info("cleared collection", zap.String("collection", c.name))
	return nil
}

// Count returns the number of records in the collection.
func (c *Collection) Count(ctx context.Context) (int, error) {
	var n int
	err := c.store.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT COUNT(*) FROM %s`, c.docsTable()),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("%w: counting documents: %v", vector.ErrStore, err)
	}
	return n, nil
}
