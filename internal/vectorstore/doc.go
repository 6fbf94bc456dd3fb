// Package vectorstore persists chunk embeddings in dimension-typed SQLite
// tables, one per entity class. A class table is created lazily at the first
// write and permanently declares that vector's dimension; a later write with
// a different dimension triggers a destructive rebuild — drop, recreate at
// the new dimension, retry the write once — after which the affected
// resources are stale until reindexed. Search is cosine similarity, pushed
// into SQLite when the sqlite-vec extension is compiled in and computed in
// Go otherwise.
package vectorstore
