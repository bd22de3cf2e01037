// Package storage is the persistent grant store: a namespaced, encrypted
// key-value store holding permission grants, cached manifests and cached
// version records.
//
// Values are msgpack-encoded, then sealed per namespace with either
// XChaCha20-Poly1305 (HKDF-derived per-namespace keys) or age. The sealed
// bytes live in a Backend: one file per key, or Redis. Entries that are
// missing, undecryptable or undecodable read as absent.
//
// Read-modify-write operations on one appId are serialized.
package storage
