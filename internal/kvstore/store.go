package kvstore

import (
	"context"
	"errors"
)

// ErrClosed is returned by every operation on a closed store.
var ErrClosed = errors.New("kvstore: store is closed")

// Store is the shared key-value keyspace.
//
// Plain writes through Set are last-writer-wins. Keys that several writers
// mutate concurrently must only be written inside WithOptimisticTransaction.
type Store interface {
	// Get returns the value of key. ok is false when the key does not exist.
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	// Set writes key unconditionally.
	Set(ctx context.Context, key, value string) error
	// Delete removes the given keys. Missing keys are ignored.
	Delete(ctx context.Context, keys ...string) error
	// ScanPrefix calls fn for every key starting with prefix. Iteration stops
	// at the first error returned by fn. fn may delete the key it is given.
	ScanPrefix(ctx context.Context, prefix string, fn func(key string) error) error
	// HSet writes fields into the hash at key.
	HSet(ctx context.Context, key string, fields map[string]string) error
	// HGetAll returns all fields of the hash at key, empty when missing.
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	// WithOptimisticTransaction watches watchKey, runs body, and commits the
	// writes body queued atomically iff watchKey was not modified by anyone
	// else since the watch began. conflicted reports a lost race; nothing was
	// written in that case. An error from body aborts without committing and
	// is returned as is.
	WithOptimisticTransaction(ctx context.Context, watchKey string, body func(tx Tx) error) (conflicted bool, err error)
	// Ping checks connectivity.
	Ping(ctx context.Context) error
	// Close releases the store.
	Close() error
}

// Tx is the view of the store inside an optimistic transaction.
type Tx interface {
	// Get reads the current value immediately.
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	// Set queues a write that is applied only if the transaction commits.
	Set(key, value string)
}

type pendingWrite struct {
	key   string
	value string
}
