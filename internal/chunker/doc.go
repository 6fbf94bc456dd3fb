// Package chunker divides resource text into bounded, overlapping segments
// for embedding.
//
// Chunking is deterministic and order-preserving: re-running the chunker on
// unchanged text yields byte-identical chunks, which lets the indexing
// pipeline skip re-embedding by hash comparison. Overlap between adjacent
// chunks is a tunable that keeps meaning from being lost at chunk edges; it
// is not part of the contract.
//
//	c := chunker.New(1000, 100)
//	for i, seg := range c.Split(text) {
//	    // seg is chunk i, at most 1000 runes
//	}
package chunker
