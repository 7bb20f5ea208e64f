// Package domain defines the identity engine's core records: anchors,
// session bindings, DNA profiles, exposure records and the append-only
// assessment artifacts. Types here are plain values with constructors and
// normalization helpers; persistence and orchestration live elsewhere.
package domain
