package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"math"
	"strings"
	"unicode"

	"github.com/lodestone-kb/lodestone/pkg/types"
)

// SearchKeyword runs full-text search over resource titles and content.
// The query is sanitized for FTS5 first; a query that sanitizes to nothing
// returns no results rather than matching everything. Runs under the
// corruption guard.
func (s *Store) SearchKeyword(ctx context.Context, query string, opts types.SearchOptions) ([]types.ResourceResult, error) {
	sanitized := SanitizeMatchQuery(query)
	if sanitized == "" {
		return []types.ResourceResult{}, nil
	}

	return withRepair(ctx, s, func() ([]types.ResourceResult, error) {
		return s.searchKeyword(ctx, sanitized, opts)
	})
}

func (s *Store) searchKeyword(ctx context.Context, match string, opts types.SearchOptions) ([]types.ResourceResult, error) {
	// rank is the FTS5 built-in BM25 relevance column; lower is better.
	sqlQuery := `
		SELECT r.id, r.collection_id, r.type, r.title, r.content, r.metadata,
		       r.content_hash, r.created_at, r.updated_at,
		       snippet(resources_fts, 1, '[', ']', '…', 12) AS snip,
		       rank
		FROM resources_fts
		JOIN resources r ON r.rowid = resources_fts.rowid
		WHERE resources_fts MATCH ?
	`
	args := []any{match}

	if len(opts.Types) > 0 {
		sqlQuery += " AND r.type IN (" + placeholders(len(opts.Types)) + ")"
		for _, t := range opts.Types {
			args = append(args, string(t))
		}
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}
	sqlQuery += " ORDER BY rank LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	results := make([]types.ResourceResult, 0)
	for rows.Next() {
		var res types.Resource
		var typ, metadata, snip string
		var content sql.NullString
		var hash []byte
		var rank float64

		err := rows.Scan(&res.ID, &res.CollectionID, &typ, &res.Title,
			&content, &metadata, &hash, &res.CreatedAt, &res.UpdatedAt,
			&snip, &rank)
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
				return nil, err
			}
		}

		// BM25 rank is negative, lower is better. Normalize into (0, 1].
		score := 1.0 / (1.0 + math.Abs(rank)/50.0)
		if opts.MinScore > 0 && score < opts.MinScore {
			continue
		}

		results = append(results, types.ResourceResult{
			Resource:   &res,
			Provenance: types.ProvenanceKeyword,
			Score:      score,
			Snippet:    snip,
		})
	}
	return results, rows.Err()
}

// SearchAnnotationsSubstring runs case-insensitive substring search over
// annotation content. Annotations have no full-text index; LIKE matching is
// the keyword path for this secondary store.
func (s *Store) SearchAnnotationsSubstring(ctx context.Context, query string, limit int) ([]types.AnnotationResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []types.AnnotationResult{}, nil
	}
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, resource_id, content, created_at, updated_at
		FROM annotations
		WHERE content LIKE ? ESCAPE '\'
		ORDER BY updated_at DESC
		LIMIT ?
	`, likePattern(query), limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	results := make([]types.AnnotationResult, 0)
	for rows.Next() {
		var a types.Annotation
		if err := rows.Scan(&a.ID, &a.ResourceID, &a.Content, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		results = append(results, types.AnnotationResult{
			Annotation: &a,
			Provenance: types.ProvenanceSubstring,
		})
	}
	return results, rows.Err()
}

// SearchArtifactsSubstring runs case-insensitive substring search over
// artifact titles and content.
func (s *Store) SearchArtifactsSubstring(ctx context.Context, query string, limit int) ([]types.ArtifactResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []types.ArtifactResult{}, nil
	}
	if limit <= 0 {
		limit = 20
	}

	pattern := likePattern(query)
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, resource_id, title, content, created_at
		FROM artifacts
		WHERE title LIKE ? ESCAPE '\' OR content LIKE ? ESCAPE '\'
		ORDER BY created_at DESC
		LIMIT ?
	`, pattern, pattern, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	results := make([]types.ArtifactResult, 0)
	for rows.Next() {
		var art types.Artifact
		if err := rows.Scan(&art.ID, &art.ResourceID, &art.Title, &art.Content, &art.CreatedAt); err != nil {
			return nil, err
		}
		results = append(results, types.ArtifactResult{
			Artifact:   &art,
			Provenance: types.ProvenanceSubstring,
		})
	}
	return results, rows.Err()
}

// likePattern escapes LIKE wildcards in query and wraps it for substring
// matching.
func likePattern(query string) string {
	escaped := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(query)
	return "%" + escaped + "%"
}

// placeholders returns n comma-separated SQL placeholders.
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

// SanitizeMatchQuery prepares raw user input for an FTS5 MATCH expression.
// Characters with meaning to the FTS5 query syntax (quotes, operators,
// parentheses, column filters) are treated as separators; each surviving
// term is quoted individually so it is matched literally. Returns "" when
// nothing survives, which callers must treat as "match nothing".
func SanitizeMatchQuery(query string) string {
	terms := strings.FieldsFunc(query, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	if len(terms) == 0 {
		return ""
	}

	var b strings.Builder
	for i, term := range terms {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteByte('"')
		b.WriteString(term)
		b.WriteByte('"')
	}
	return b.String()
}
