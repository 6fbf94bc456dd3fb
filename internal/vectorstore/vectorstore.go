package vectorstore

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/lodestone-kb/lodestone/internal/kberr"
	"github.com/lodestone-kb/lodestone/internal/store"
	"github.com/lodestone-kb/lodestone/pkg/types"
)

// VectorStore keeps one dimension-typed table per entity class. Tables are
// created lazily at first write, with the dimension of the first vector
// written; the declared dimension is recorded in the vector_tables meta
// table and enforced on every subsequent write.
type VectorStore struct {
	db     *sql.DB
	logger *slog.Logger

	// Serializes table creation and destructive rebuilds.
	mu         sync.Mutex
	dimensions map[types.EntityClass]int
}

// New creates a vector store over db, which it shares with the content
// store. The vector_tables meta table is created on open; class tables are
// not.
func New(db *sql.DB, logger *slog.Logger) (*VectorStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS vector_tables (
			class TEXT PRIMARY KEY,
			dimension INTEGER NOT NULL,
			created_at TIMESTAMP NOT NULL
		)
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to create vector meta table: %w", err)
	}

	vs := &VectorStore{
		db:         db,
		logger:     logger.With("component", "vectorstore"),
		dimensions: make(map[types.EntityClass]int),
	}
	if err := vs.loadDimensions(context.Background()); err != nil {
		return nil, err
	}
	return vs, nil
}

func (vs *VectorStore) loadDimensions(ctx context.Context) error {
	rows, err := vs.db.QueryContext(ctx, `SELECT class, dimension FROM vector_tables`)
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var class string
		var dim int
		if err := rows.Scan(&class, &dim); err != nil {
			return err
		}
		vs.dimensions[types.EntityClass(class)] = dim
	}
	return rows.Err()
}

func tableName(class types.EntityClass) string {
	return "vectors_" + string(class)
}

// Dimension returns the declared dimension of a class's table. ok is false
// when the table does not exist yet.
func (vs *VectorStore) Dimension(class types.EntityClass) (int, bool) {
	vs.mu.Lock()
	defer vs.mu.Unlock()
	dim, ok := vs.dimensions[class]
	return dim, ok
}

// Upsert writes one chunk vector keyed by (resourceID, chunkIndex). The
// class table is created on first write with dimension len(vector). A write
// whose dimension differs from the declared one triggers a destructive
// rebuild: the table is dropped, recreated with the new dimension, and the
// write retried exactly once. Existing rows of the old dimension are lost
// and their resources become stale until reindexed.
func (vs *VectorStore) Upsert(ctx context.Context, class types.EntityClass, resourceID string, chunkIndex int, text string, vector []float32) error {
	if len(vector) == 0 {
		return kberr.New(kberr.KindValidation, "cannot store empty vector")
	}

	if err := vs.ensureTable(ctx, class, len(vector)); err != nil {
		return err
	}

	err := vs.write(ctx, class, resourceID, chunkIndex, text, vector)
	if err == nil {
		return nil
	}
	if kberr.KindOf(err) != kberr.KindSchemaMismatch {
		return err
	}

	vs.logger.Warn("vector dimension changed, rebuilding table",
		"class", class, "new_dimension", len(vector))
	if rebuildErr := vs.rebuild(ctx, class, len(vector)); rebuildErr != nil {
		return rebuildErr
	}
	return vs.write(ctx, class, resourceID, chunkIndex, text, vector)
}

// ensureTable creates the class table when absent, declaring dimension dim.
func (vs *VectorStore) ensureTable(ctx context.Context, class types.EntityClass, dim int) error {
	vs.mu.Lock()
	defer vs.mu.Unlock()

	if _, ok := vs.dimensions[class]; ok {
		return nil
	}
	return vs.createTableLocked(ctx, class, dim)
}

func (vs *VectorStore) createTableLocked(ctx context.Context, class types.EntityClass, dim int) error {
	table := tableName(class)
	_, err := vs.db.ExecContext(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			resource_id TEXT NOT NULL,
			chunk_index INTEGER NOT NULL,
			content TEXT NOT NULL,
			vector BLOB NOT NULL,
			PRIMARY KEY (resource_id, chunk_index)
		)
	`, table))
	if err != nil {
		return fmt.Errorf("failed to create vector table %s: %w", table, err)
	}

	_, err = vs.db.ExecContext(ctx, `
		INSERT INTO vector_tables (class, dimension, created_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(class) DO UPDATE SET dimension = excluded.dimension
	`, string(class), dim)
	if err != nil {
		return fmt.Errorf("failed to record vector table dimension: %w", err)
	}

	vs.dimensions[class] = dim
	vs.logger.Info("vector table created", "class", class, "dimension", dim)
	return nil
}

// rebuild drops and recreates a class table with a new dimension. All rows
// are lost; callers are expected to reindex.
func (vs *VectorStore) rebuild(ctx context.Context, class types.EntityClass, dim int) error {
	vs.mu.Lock()
	defer vs.mu.Unlock()

	if _, err := vs.db.ExecContext(ctx, "DROP TABLE IF EXISTS "+tableName(class)); err != nil {
		return fmt.Errorf("failed to drop vector table: %w", err)
	}
	delete(vs.dimensions, class)
	return vs.createTableLocked(ctx, class, dim)
}

func (vs *VectorStore) write(ctx context.Context, class types.EntityClass, resourceID string, chunkIndex int, text string, vector []float32) error {
	vs.mu.Lock()
	declared, ok := vs.dimensions[class]
	vs.mu.Unlock()
	if ok && declared != len(vector) {
		return kberr.Newf(kberr.KindSchemaMismatch,
			"vector dimension %d does not match table %s dimension %d",
			len(vector), tableName(class), declared)
	}

	_, err := vs.db.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (resource_id, chunk_index, content, vector)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(resource_id, chunk_index) DO UPDATE SET
			content = excluded.content,
			vector = excluded.vector
	`, tableName(class)), resourceID, chunkIndex, text, serializeVector(vector))
	if err != nil {
		return fmt.Errorf("failed to write vector: %w", err)
	}
	return nil
}

// DeleteByResource removes every vector a resource contributed to a class.
// A class whose table was never created is a no-op.
func (vs *VectorStore) DeleteByResource(ctx context.Context, class types.EntityClass, resourceID string) error {
	if _, ok := vs.Dimension(class); !ok {
		return nil
	}
	_, err := vs.db.ExecContext(ctx,
		"DELETE FROM "+tableName(class)+" WHERE resource_id = ?", resourceID)
	return err
}

// Search returns the nearest chunks to queryVector in a class, scored by
// cosine similarity and filtered by minScore. An absent table or a query of
// the wrong dimension returns no results rather than an error: both mean
// "nothing indexed at this dimension yet".
func (vs *VectorStore) Search(ctx context.Context, class types.EntityClass, queryVector []float32, limit int, minScore float64) ([]types.ScoredRow, error) {
	declared, ok := vs.Dimension(class)
	if !ok || declared != len(queryVector) {
		return []types.ScoredRow{}, nil
	}
	if limit <= 0 {
		limit = 20
	}

	if store.VectorExtensionAvailable {
		return vs.searchNative(ctx, class, queryVector, limit, minScore)
	}
	return vs.searchFallback(ctx, class, queryVector, limit, minScore)
}

// searchNative pushes the distance computation into SQLite via the
// sqlite-vec extension. vec_distance_cosine returns distance in [0, 2];
// similarity is 1 - distance.
func (vs *VectorStore) searchNative(ctx context.Context, class types.EntityClass, queryVector []float32, limit int, minScore float64) ([]types.ScoredRow, error) {
	blob := serializeVector(queryVector)
	query := fmt.Sprintf(`
		SELECT resource_id, chunk_index, 1.0 - vec_distance_cosine(vector, ?) AS similarity
		FROM %s
		WHERE (1.0 - vec_distance_cosine(vector, ?)) >= ?
		ORDER BY similarity DESC
		LIMIT ?
	`, tableName(class))

	rows, err := vs.db.QueryContext(ctx, query, blob, blob, minScore, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	results := make([]types.ScoredRow, 0, limit)
	for rows.Next() {
		row := types.ScoredRow{Class: class}
		if err := rows.Scan(&row.ResourceID, &row.ChunkIndex, &row.Score); err != nil {
			return nil, err
		}
		results = append(results, row)
	}
	return results, rows.Err()
}

// searchFallback scans the class table and computes cosine similarity in
// Go. Fine for local-first corpus sizes.
func (vs *VectorStore) searchFallback(ctx context.Context, class types.EntityClass, queryVector []float32, limit int, minScore float64) ([]types.ScoredRow, error) {
	rows, err := vs.db.QueryContext(ctx,
		"SELECT resource_id, chunk_index, vector FROM "+tableName(class))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	candidates := make([]types.ScoredRow, 0)
	for rows.Next() {
		var resourceID string
		var chunkIndex int
		var blob []byte
		if err := rows.Scan(&resourceID, &chunkIndex, &blob); err != nil {
			return nil, err
		}

		vector := deserializeVector(blob)
		if len(vector) != len(queryVector) {
			continue
		}

		score := cosineSimilarity(queryVector, vector)
		if score < minScore {
			continue
		}
		candidates = append(candidates, types.ScoredRow{
			ResourceID: resourceID,
			ChunkIndex: chunkIndex,
			Class:      class,
			Score:      score,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return candidates, nil
}

// Stats reports each class table's declared dimension and row count.
func (vs *VectorStore) Stats(ctx context.Context) (map[types.EntityClass]types.VectorTableInfo, error) {
	vs.mu.Lock()
	classes := make(map[types.EntityClass]int, len(vs.dimensions))
	for class, dim := range vs.dimensions {
		classes[class] = dim
	}
	vs.mu.Unlock()

	stats := make(map[types.EntityClass]types.VectorTableInfo, len(classes))
	for class, dim := range classes {
		var count int
		err := vs.db.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM "+tableName(class)).Scan(&count)
		if err != nil {
			return nil, err
		}
		stats[class] = types.VectorTableInfo{Dimension: dim, Rows: count}
	}
	return stats, nil
}
