// Package storage provides database abstractions.
package storage

import "errors"

// ErrNotFound is returned by Get when the key does not exist.
var ErrNotFound = errors.New("key not found")

// DB is the interface for key-value storage.
//
// Iteration order is ascending lexicographic over raw key bytes; the
// marketplace price index depends on this.
type DB interface {
	Get(key []byte) ([]byte, error)
	Put(key, value []byte) error
	Delete(key []byte) error
	Has(key []byte) (bool, error)
	// ForEach iterates over all keys with the given prefix, in key order.
	// The callback receives a copy of the key and value.
	// Return a non-nil error from fn to stop iteration early.
	ForEach(prefix []byte, fn func(key, value []byte) error) error
	// ForEachFrom iterates like ForEach but starts at the first key >= start
	// (start must itself carry the prefix).
	ForEachFrom(prefix, start []byte, fn func(key, value []byte) error) error
	Close() error
}

// Stop is a sentinel returned from iteration callbacks to end iteration
// early without surfacing an error to the caller.
var Stop = errors.New("stop iteration")

// IsStop reports whether an iteration error is the Stop sentinel.
func IsStop(err error) bool {
	return errors.Is(err, Stop)
}
