package storage

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrClosed is returned by operations on a closed store.
	ErrClosed = errors.New("store closed")
)

// Keyspaces used by clipflow's registries.
const (
	KeyspaceAssets    = "assets"
	KeyspaceSchedules = "schedules"
)

// Config configures storage.
//
// Driver values:
//   - "" or "memory": process-memory store
//   - "sqlite" / "sqlite3": SQLite database file at Path
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Store is the persistence API used by the registries.
//
// Values are opaque encoded records (the registries use JSON). List returns
// values in insertion (creation) order, which is what gives schedule listing
// its stable pagination order.
//
// Store implementations serialize individual operations, but callers that
// need a read-modify-write cycle must hold the per-id lock (see KeyMutex)
// across the cycle.
type Store interface {
	Get(ctx context.Context, keyspace, id string) (value []byte, ok bool, err error)
	Put(ctx context.Context, keyspace, id string, value []byte) error
	// Delete reports whether a record existed.
	Delete(ctx context.Context, keyspace, id string) (bool, error)
	List(ctx context.Context, keyspace string) ([][]byte, error)
	Close() error
}
