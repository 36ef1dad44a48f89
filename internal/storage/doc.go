// Package storage is the persistence layer behind the asset and schedule
// registries.
//
// It exposes a small keyspaced KV store (Get/Put/Delete/List) plus a per-id
// locking primitive (KeyMutex) so registries can serialize mutation per
// entity while different ids proceed concurrently. The default driver keeps
// everything in process memory; the sqlite driver provides a durable
// drop-in behind the same interface.
package storage
