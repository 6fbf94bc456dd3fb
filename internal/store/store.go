package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lodestone-kb/lodestone/pkg/types"
)

var (
	// ErrNotFound is returned when a requested entity doesn't exist
	ErrNotFound = errors.New("not found")
)

// Store is the content store: resources, annotations, artifacts, and the
// full-text index over resource text. Every read and write that can touch
// the FTS index goes through the corruption guard.
type Store struct {
	db     *sql.DB
	logger *slog.Logger

	// Prepared statement cache, invalidated on corruption repair.
	mu    sync.Mutex
	stmts map[string]*sql.Stmt
}

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// SQLite benefits from a single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// Open opens (or creates) the content store at dbPath and applies pending
// migrations.
func Open(dbPath string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &Store{
		db:     db,
		logger: logger.With("component", "store"),
		stmts:  make(map[string]*sql.Stmt),
	}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	s.invalidateStatements()
	return s.db.Close()
}

// DB exposes the underlying handle so the vector store can share the single
// writer connection.
func (s *Store) DB() *sql.DB {
	return s.db
}

// stmt returns a cached prepared statement for query, preparing it on first
// use.
func (s *Store) stmt(ctx context.Context, query string) (*sql.Stmt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if st, ok := s.stmts[query]; ok {
		return st, nil
	}
	st, err := s.db.PrepareContext(ctx, query)
	if err != nil {
		return nil, err
	}
	s.stmts[query] = st
	return st, nil
}

// invalidateStatements closes and drops all cached prepared statements.
// Called by the corruption guard before a repair cycle: statements prepared
// against a corrupted index can keep failing after the index is rebuilt.
func (s *Store) invalidateStatements() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, st := range s.stmts {
		_ = st.Close()
	}
	s.stmts = make(map[string]*sql.Stmt)
}

// Resource operations

// SaveResource inserts or replaces a resource row. The FTS triggers fire on
// this write, so it runs under the corruption guard.
func (s *Store) SaveResource(ctx context.Context, res *types.Resource) error {
	_, err := withRepair(ctx, s, func() (struct{}, error) {
		return struct{}{}, s.saveResource(ctx, res)
	})
	return err
}

func (s *Store) saveResource(ctx context.Context, res *types.Resource) error {
	metadata, err := json.Marshal(res.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}

	var content any
	if res.Content != nil {
		content = *res.Content
	}

	now := time.Now()
	query := `
		INSERT INTO resources (id, collection_id, type, title, content, metadata, content_hash, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			collection_id = excluded.collection_id,
			type = excluded.type,
			title = excluded.title,
			content = excluded.content,
			metadata = excluded.metadata,
			content_hash = excluded.content_hash,
			updated_at = excluded.updated_at
	`
	_, err = s.db.ExecContext(ctx, query,
		res.ID, res.CollectionID, string(res.Type), res.Title, content,
		string(metadata), res.ContentHash[:], now, now)
	if err != nil {
		return fmt.Errorf("failed to save resource: %w", err)
	}
	res.UpdatedAt = now
	if res.CreatedAt.IsZero() {
		res.CreatedAt = now
	}
	return nil
}

// GetResource loads a resource by id. Returns ErrNotFound when absent.
func (s *Store) GetResource(ctx context.Context, id string) (*types.Resource, error) {
	return withRepair(ctx, s, func() (*types.Resource, error) {
		return s.getResource(ctx, id)
	})
}

const getResourceQuery = `
	SELECT id, collection_id, type, title, content, metadata, content_hash, created_at, updated_at
	FROM resources
	WHERE id = ?
`

func (s *Store) getResource(ctx context.Context, id string) (*types.Resource, error) {
	st, err := s.stmt(ctx, getResourceQuery)
	if err != nil {
		return nil, err
	}
	return scanResource(st.QueryRowContext(ctx, id))
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanResource(row rowScanner) (*types.Resource, error) {
	var res types.Resource
	var typ string
	var content sql.NullString
	var metadata string
	var hash []byte

	err := row.Scan(&res.ID, &res.CollectionID, &typ, &res.Title,
		&content, &metadata, &hash, &res.CreatedAt, &res.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	res.Type = types.ResourceType(typ)
	if content.Valid {
		c := content.String
		res.Content = &c
	}
	copy(res.ContentHash[:], hash)
	if metadata != "" {
		if err := json.Unmarshal([]byte(metadata), &res.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode metadata: %w", err)
		}
	}
	return &res, nil
}

// DeleteResource removes a resource. Annotations, artifacts, and index
// state go with it via foreign key cascade; the FTS delete trigger fires on
// the row removal.
func (s *Store) DeleteResource(ctx context.Context, id string) error {
	_, err := withRepair(ctx, s, func() (struct{}, error) {
		_, execErr := s.db.ExecContext(ctx, `DELETE FROM resources WHERE id = ?`, id)
		return struct{}{}, execErr
	})
	return err
}

// ListResourceIDs returns every resource id, ordered by last update.
func (s *Store) ListResourceIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM resources ORDER BY updated_at`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Annotation operations

// SaveAnnotation inserts or replaces an annotation row.
func (s *Store) SaveAnnotation(ctx context.Context, a *types.Annotation) error {
	now := time.Now()
	query := `
		INSERT INTO annotations (id, resource_id, content, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			content = excluded.content,
			updated_at = excluded.updated_at
	`
	_, err := s.db.ExecContext(ctx, query, a.ID, a.ResourceID, a.Content, now, now)
	if err != nil {
		return fmt.Errorf("failed to save annotation: %w", err)
	}
	a.UpdatedAt = now
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	return nil
}

// GetAnnotation loads an annotation by id.
func (s *Store) GetAnnotation(ctx context.Context, id string) (*types.Annotation, error) {
	var a types.Annotation
	err := s.db.QueryRowContext(ctx,
		`SELECT id, resource_id, content, created_at, updated_at FROM annotations WHERE id = ?`, id).
		Scan(&a.ID, &a.ResourceID, &a.Content, &a.CreatedAt, &a.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// ListAnnotationsByResource returns a resource's annotations in creation
// order.
func (s *Store) ListAnnotationsByResource(ctx context.Context, resourceID string) ([]*types.Annotation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, resource_id, content, created_at, updated_at FROM annotations WHERE resource_id = ? ORDER BY created_at`,
		resourceID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	annotations := make([]*types.Annotation, 0)
	for rows.Next() {
		var a types.Annotation
		if err := rows.Scan(&a.ID, &a.ResourceID, &a.Content, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		annotations = append(annotations, &a)
	}
	return annotations, rows.Err()
}

// Artifact operations

// SaveArtifact inserts or replaces a generated artifact row.
func (s *Store) SaveArtifact(ctx context.Context, art *types.Artifact) error {
	query := `
		INSERT INTO artifacts (id, resource_id, title, content, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			content = excluded.content
	`
	now := time.Now()
	_, err := s.db.ExecContext(ctx, query, art.ID, art.ResourceID, art.Title, art.Content, now)
	if err != nil {
		return fmt.Errorf("failed to save artifact: %w", err)
	}
	if art.CreatedAt.IsZero() {
		art.CreatedAt = now
	}
	return nil
}

// Index state operations

// IndexedHash returns the content hash recorded at the resource's last
// successful indexing. ok is false when the resource was never indexed.
func (s *Store) IndexedHash(ctx context.Context, resourceID string) (hash [32]byte, ok bool, err error) {
	var blob []byte
	err = s.db.QueryRowContext(ctx,
		`SELECT content_hash FROM index_state WHERE resource_id = ?`, resourceID).Scan(&blob)
	if err == sql.ErrNoRows {
		return hash, false, nil
	}
	if err != nil {
		return hash, false, err
	}
	copy(hash[:], blob)
	return hash, true, nil
}

// SetIndexedHash records the hash of the content that was just indexed.
func (s *Store) SetIndexedHash(ctx context.Context, resourceID string, hash [32]byte) error {
	query := `
		INSERT INTO index_state (resource_id, content_hash, indexed_at)
		VALUES (?, ?, ?)
		ON CONFLICT(resource_id) DO UPDATE SET
			content_hash = excluded.content_hash,
			indexed_at = excluded.indexed_at
	`
	_, err := s.db.ExecContext(ctx, query, resourceID, hash[:], time.Now())
	return err
}

// ClearIndexedHash forgets a resource's index state so the next scheduling
// decision treats it as never indexed.
func (s *Store) ClearIndexedHash(ctx context.Context, resourceID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM index_state WHERE resource_id = ?`, resourceID)
	return err
}

// Stats returns row counts for the status surface.
func (s *Store) Stats(ctx context.Context) (*types.IndexStats, error) {
	stats := &types.IndexStats{
		VectorTables: make(map[types.EntityClass]types.VectorTableInfo),
	}

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM resources`).Scan(&stats.Resources); err != nil {
		return nil, err
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM annotations`).Scan(&stats.Annotations); err != nil {
		return nil, err
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM artifacts`).Scan(&stats.Artifacts); err != nil {
		return nil, err
	}
	return stats, nil
}
