// Package ledger defines the append-only, hash-chained journal of everything
// that happens to an identity anchor.
//
// Entries are immutable once written. Each anchor's entries form a singly
// linked hash chain ordered by insertion: the first entry links to the
// GenesisHash sentinel, every later entry links to its predecessor's hash,
// and each hash covers the entry content plus that link. Any verifier can
// replay the entries and recompute the chain without trusting storage.
//
// The package defines the entry model, event types and payloads, and the
// hashing and verification rules. Persistence and per-anchor append
// linearization live in the storage layer.
package ledger
