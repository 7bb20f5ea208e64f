// Package sqlite provides the SQLite-backed reference implementation of the
// engine's storage interfaces.
//
// Ledger appends are linearized per anchor inside a single transaction
// (sequence allocation, previous-hash read, insert). Anchor and DNA rows
// carry a version column; updates are compare-and-swap and report
// storage.ErrVersionConflict when a concurrent writer won.
package sqlite
