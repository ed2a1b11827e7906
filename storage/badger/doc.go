// Package badger provides the BadgerDB-backed implementation of the storage
// repositories.
//
// Records are serialized with mus-go and stored under string prefixes per
// record type. Composite index keys use BigEndian encoding so lexicographic
// key order matches numeric and chronological order. All repositories share
// one Backend; BadgerDB's serializable snapshot isolation surfaces write
// races as ErrConflict, which callers resolve by retrying.
package badger
