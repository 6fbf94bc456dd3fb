// Package scheduler runs background indexing: chunking, embedding, and
// vector writes happen on a bounded worker pool after the primary write has
// already committed. A scheduled job is tracked by an explicit Job handle
// with a completion channel. Repeat runs are cheap — each job compares the
// resource's content hash against the recorded index state and skips
// unchanged content — and an unavailable embedding provider ends a job
// cleanly rather than failing it.
package scheduler
