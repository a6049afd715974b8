// Package storage persists wallet records — tracked assets and the
// transaction ledger — in a local key-value store. The domain stores in
// internal/ledger and internal/txledger layer their prefix schemes on top of
// the DB interface; nothing above this package knows which backend is in use.
package storage

import "errors"

// ErrKeyNotFound is returned by Get when no record exists under the key.
var ErrKeyNotFound = errors.New("key not found")

// DB is the key-value surface the wallet stores are written against.
// The badger backend backs real sessions; the in-memory backend backs tests.
type DB interface {
	Get(key []byte) ([]byte, error)
	Put(key, value []byte) error
	Delete(key []byte) error
	Has(key []byte) (bool, error)
	// ForEach iterates over all keys with the given prefix.
	// The callback receives a copy of the key and value.
	// Return a non-nil error from fn to stop iteration early.
	ForEach(prefix []byte, fn func(key, value []byte) error) error
	Close() error
}
