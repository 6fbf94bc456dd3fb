// Package types defines the shared data model of the knowledge base core:
// resources and their child entities, chunks, entity classes for the vector
// store, and the provenance-tagged search result shapes.
//
// These types carry no behavior beyond hashing helpers; persistence and
// search semantics live in the internal packages.
package types
