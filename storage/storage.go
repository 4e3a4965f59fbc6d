// This is free and unencumbered software released into the public domain.
//
// Anyone is free to copy, modify, publish, use, compile, sell, or
// distribute this software, either in source code form or as a compiled
// binary, for any purpose, commercial or non-commercial, and by any
// means.
//
// In jurisdictions that recognize copyright laws, the author or authors
// of this software dedicate any and all copyright interest in the
// software to the public domain. We make this dedication for the benefit
// of the public at large and to the detriment of our heirs and
// successors. We intend this dedication to be an overt act of
// relinquishment in perpetuity of all present and future rights to this
// software under copyright law.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND,
// EXPRESS OR IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF
// MERCHANTABILITY, FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT.
// IN NO EVENT SHALL THE AUTHORS BE LIABLE FOR ANY CLAIM, DAMAGES OR
// OTHER LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE,
// ARISING FROM, OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR
// OTHER DEALINGS IN THE SOFTWARE.
//
// For more information, please refer to <https://unlicense.org>

// Package storage defines the ordered key-value backend contract the tree
// engine is written against: four logical column families, prefixed
// contexts, raw ordered iteration, deferred multi-context write batches and
// transactions. Implementations must provide atomic batch commit.
package storage

import "errors"

// Column selects one of the four logical column families.
type Column uint8

const (
	// ColData holds tree node rows.
	ColData Column = iota
	// ColAux holds user auxiliary data.
	ColAux
	// ColRoots holds the per-subtree root key pointer.
	ColRoots
	// ColMeta holds database-wide metadata.
	ColMeta

	numColumns = 4
)

// PrefixSize is the size of a subtree namespace prefix.
const PrefixSize = 32

// Prefix is a 32-byte namespace applied to every key of one subtree,
// derived from the subtree's path hash.
type Prefix = [PrefixSize]byte

// ErrNotFound is returned by Context.Get when the key has no value.
var ErrNotFound = errors.New("storage: key not found")

// Storage is a physical ordered key-value store partitioned into column
// families and namespaces.
type Storage interface {
	// NewTransaction starts a transaction. Reads under the transaction
	// observe a consistent snapshot plus the transaction's own writes;
	// writes are buffered until Commit.
	NewTransaction() (Transaction, error)

	// Context returns a prefixed view. A nil tx reads and writes the base
	// store directly.
	Context(prefix Prefix, tx Transaction) Context

	// BatchContext returns a prefixed view whose writes are deferred into
	// batch while reads go to the base store (or the transaction when tx
	// is non-nil).
	BatchContext(prefix Prefix, batch *Batch, tx Transaction) Context

	// CommitBatch applies every deferred write in batch atomically. When
	// tx is non-nil the writes land in the transaction's buffer instead
	// of the base store.
	CommitBatch(batch *Batch, tx Transaction) error

	// Flush forces buffered data to stable storage.
	Flush() error

	// Close releases the store.
	Close() error
}

// Transaction is a consistent read-your-writes scope over a Storage.
type Transaction interface {
	// Commit atomically publishes the transaction's writes.
	Commit() error
	// Rollback discards the transaction's writes.
	Rollback() error
}

// Context is a view of one subtree's namespace within a column-family
// partitioned store.
type Context interface {
	// Get returns the value for key, or ErrNotFound.
	Get(col Column, key []byte) ([]byte, error)
	// Put writes key to value.
	Put(col Column, key, value []byte) error
	// Delete removes key. Deleting an absent key is not an error.
	Delete(col Column, key []byte) error
	// RawIterator returns a cursor over this namespace of col, ordered by
	// key ascending.
	RawIterator(col Column) RawIterator
	// Prefix returns the namespace of this context.
	Prefix() Prefix
}

// RawIterator is a bidirectional cursor over one namespace of one column
// family. It starts unpositioned; any Seek* call positions it.
type RawIterator interface {
	SeekToFirst()
	SeekToLast()
	// Seek positions at the first key >= key.
	Seek(key []byte)
	Next()
	Prev()
	// Valid reports whether the cursor is on an entry.
	Valid() bool
	// Key returns the current un-prefixed key. Only valid while Valid.
	Key() []byte
	// Value returns the current value. Only valid while Valid.
	Value() []byte
	Close()
}
