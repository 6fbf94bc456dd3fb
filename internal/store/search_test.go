package store

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lodestone-kb/lodestone/pkg/types"
)

func TestSanitizeMatchQuery(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain terms", "quick fox", `"quick" "fox"`},
		{"quotes stripped", `"quick" fox`, `"quick" "fox"`},
		{"operators stripped", "quick -fox OR*", `"quick" "fox" "OR"`},
		{"slashes and colons", "a/b c:d", `"a" "b" "c" "d"`},
		{"only operators", `- " * ( )`, ""},
		{"empty", "", ""},
		{"unicode terms kept", "café naïve", `"café" "naïve"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeMatchQuery(tt.input))
		})
	}
}

func TestSearchKeyword(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	fox := testResource("The quick brown fox jumps over the lazy dog")
	require.NoError(t, s.SaveResource(ctx, fox))

	cat := testResource("A sleepy cat sits on the warm windowsill")
	require.NoError(t, s.SaveResource(ctx, cat))

	results, err := s.SearchKeyword(ctx, "quick fox", types.SearchOptions{Limit: 10})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, fox.ID, results[0].Resource.ID)
	assert.Equal(t, types.ProvenanceKeyword, results[0].Provenance)
	assert.Greater(t, results[0].Score, 0.0)
	assert.NotEmpty(t, results[0].Snippet)
}

func TestSearchKeywordSpecialCharacters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	res := testResource("notes about the fox-hunt schedule")
	require.NoError(t, s.SaveResource(ctx, res))

	// Operator-significant characters must never raise a syntax error.
	for _, query := range []string{`"fox`, `fox -hunt`, `fox/hunt`, `fox NEAR( hunt`} {
		results, err := s.SearchKeyword(ctx, query, types.SearchOptions{Limit: 10})
		require.NoError(t, err, "query %q should not error", query)
		assert.NotEmpty(t, results, "query %q should still match by terms", query)
	}
}

func TestSearchKeywordEmptyAfterSanitize(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	res := testResource("anything at all")
	require.NoError(t, s.SaveResource(ctx, res))

	results, err := s.SearchKeyword(ctx, `- " * ( )`, types.SearchOptions{Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, results, "fully sanitized query must match nothing, not everything")
}

func TestSearchKeywordTypeFilter(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	note := testResource("shared term alpha")
	note.Type = types.ResourceNote
	require.NoError(t, s.SaveResource(ctx, note))

	doc := testResource("shared term alpha")
	doc.Type = types.ResourceDocument
	require.NoError(t, s.SaveResource(ctx, doc))

	results, err := s.SearchKeyword(ctx, "alpha", types.SearchOptions{
		Limit: 10,
		Types: []types.ResourceType{types.ResourceDocument},
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, doc.ID, results[0].Resource.ID)
}

func TestSearchKeywordReflectsUpdates(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	res := testResource("original wording here")
	require.NoError(t, s.SaveResource(ctx, res))

	replacement := "completely different phrasing now"
	res.Content = &replacement
	res.ComputeContentHash()
	require.NoError(t, s.SaveResource(ctx, res))

	stale, err := s.SearchKeyword(ctx, "original wording", types.SearchOptions{Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, stale)

	fresh, err := s.SearchKeyword(ctx, "different phrasing", types.SearchOptions{Limit: 10})
	require.NoError(t, err)
	require.Len(t, fresh, 1)
	assert.Equal(t, res.ID, fresh[0].Resource.ID)
}

func TestSearchAnnotationsSubstring(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	res := testResource("parent resource")
	require.NoError(t, s.SaveResource(ctx, res))

	ann := &types.Annotation{ID: uuid.NewString(), ResourceID: res.ID, Content: "remember the deadline on Friday"}
	require.NoError(t, s.SaveAnnotation(ctx, ann))

	results, err := s.SearchAnnotationsSubstring(ctx, "deadline", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, ann.ID, results[0].Annotation.ID)
	assert.Equal(t, types.ProvenanceSubstring, results[0].Provenance)

	none, err := s.SearchAnnotationsSubstring(ctx, "nonexistent", 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSearchArtifactsSubstring(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	res := testResource("parent resource")
	require.NoError(t, s.SaveResource(ctx, res))

	art := &types.Artifact{ID: uuid.NewString(), ResourceID: res.ID, Title: "meeting summary", Content: "key points"}
	require.NoError(t, s.SaveArtifact(ctx, art))

	byTitle, err := s.SearchArtifactsSubstring(ctx, "summary", 10)
	require.NoError(t, err)
	require.Len(t, byTitle, 1)
	assert.Equal(t, art.ID, byTitle[0].Artifact.ID)

	byContent, err := s.SearchArtifactsSubstring(ctx, "key points", 10)
	require.NoError(t, err)
	assert.Len(t, byContent, 1)
}

func TestSearchSubstringEscapesWildcards(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	res := testResource("parent resource")
	require.NoError(t, s.SaveResource(ctx, res))

	ann := &types.Annotation{ID: uuid.NewString(), ResourceID: res.ID, Content: "plain text"}
	require.NoError(t, s.SaveAnnotation(ctx, ann))

	// A bare % must not match everything.
	results, err := s.SearchAnnotationsSubstring(ctx, "%", 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}
