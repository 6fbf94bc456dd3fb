package types

import (
	"crypto/sha256"
	"time"
)

// ResourceType tags the origin of a resource's content.
type ResourceType string

const (
	ResourceNote       ResourceType = "note"
	ResourceDocument   ResourceType = "document"
	ResourcePage       ResourceType = "page"
	ResourceTranscript ResourceType = "transcript"
)

// Resource is a unit of stored knowledge: a note, an imported document, a
// scraped page, or a transcript. Content is nil for resources whose text has
// not been extracted yet.
type Resource struct {
	ID           string
	CollectionID string
	Type         ResourceType
	Title        string
	Content      *string
	Metadata     map[string]any
	ContentHash  [32]byte
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Text returns the resource content, or "" when content is nil.
func (r *Resource) Text() string {
	if r.Content == nil {
		return ""
	}
	return *r.Content
}

// ComputeContentHash recomputes ContentHash from the current content.
func (r *Resource) ComputeContentHash() {
	r.ContentHash = sha256.Sum256([]byte(r.Text()))
}

// Annotation is a child entity attached to a resource (a highlight, comment,
// or margin note). Annotations are indexed in their own vector class and are
// always resolved through their parent resource.
type Annotation struct {
	ID         string
	ResourceID string
	Content    string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Artifact is generated output derived from a resource (a summary, an
// outline, a slide deck). Artifacts live in a secondary store without a
// full-text index; keyword search over them is substring matching.
type Artifact struct {
	ID         string
	ResourceID string
	Title      string
	Content    string
	CreatedAt  time.Time
}

// EntityClass names a vector table family. Each class gets its own
// dimension-typed table in the vector store.
type EntityClass string

const (
	ClassResourceChunk   EntityClass = "resource_chunk"
	ClassAnnotationChunk EntityClass = "annotation_chunk"
)

// Chunk is a bounded segment of an entity's text, the unit of embedding.
// Chunks are ephemeral: they are recreated whenever the parent's content
// hash changes and are never addressed directly by callers.
type Chunk struct {
	ResourceID string
	Index      int
	Text       string
	Vector     []float32
	Class      EntityClass
}

// Provenance records which search path produced a result.
type Provenance string

const (
	ProvenanceKeyword   Provenance = "keyword"
	ProvenanceSemantic  Provenance = "semantic"
	ProvenanceSubstring Provenance = "substring"
)

// SearchOptions bound a search call.
type SearchOptions struct {
	Limit    int
	MinScore float64
	Types    []ResourceType
}

// ResourceResult is a resource matched by search, tagged with how it was
// found. Score is FTS rank-derived for keyword hits and cosine similarity
// for semantic hits; scores are comparable within a provenance bucket only.
type ResourceResult struct {
	Resource   *Resource
	Provenance Provenance
	Score      float64
	Snippet    string
}

// AnnotationResult is an annotation matched by search. Its parent resource
// is always included in the same response so results stay navigable.
type AnnotationResult struct {
	Annotation *Annotation
	Provenance Provenance
	Score      float64
}

// ArtifactResult is a generated artifact matched by substring search.
type ArtifactResult struct {
	Artifact   *Artifact
	Provenance Provenance
}

// SearchResponse groups results by entity kind. Ordering inside each slice
// is store-native per provenance bucket; cross-bucket re-ranking is the
// caller's concern.
type SearchResponse struct {
	Resources   []ResourceResult
	Annotations []AnnotationResult
	Artifacts   []ArtifactResult
}

// ScoredResource is a semantic-similarity neighbor of a resource.
type ScoredResource struct {
	Resource *Resource
	Score    float64
}

// ScoredRow is a raw nearest-neighbor hit from the vector store, bypassing
// keyword fusion and parent enrichment.
type ScoredRow struct {
	ResourceID string
	ChunkIndex int
	Class      EntityClass
	Score      float64
}

// IndexStats summarizes the state of the index.
type IndexStats struct {
	Resources    int
	Annotations  int
	Artifacts    int
	VectorTables map[EntityClass]VectorTableInfo
}

// VectorTableInfo describes one dimension-typed vector table.
type VectorTableInfo struct {
	Dimension int
	Rows      int
}
