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

package storage

import (
	"bytes"
	"errors"
	"sort"
	"sync"
)

// MemoryStorage is a Storage kept entirely in memory. It is the backend of
// choice for tests and ephemeral databases.
type MemoryStorage struct {
	mu   sync.RWMutex
	cols [numColumns]map[string][]byte
}

// NewMemoryStorage returns an empty in-memory store.
func NewMemoryStorage() *MemoryStorage {
	s := &MemoryStorage{}
	for i := range s.cols {
		s.cols[i] = make(map[string][]byte)
	}
	return s
}

// memTransaction buffers writes in an overlay until commit. A nil value in
// the overlay marks a deletion. No snapshot is taken when the transaction
// starts: reads see the overlay over the live base store, so writes
// committed outside the transaction are visible to it.
type memTransaction struct {
	storage *MemoryStorage
	mu      sync.Mutex
	overlay [numColumns]map[string][]byte
	done    bool
}

var errTransactionDone = errors.New("storage: transaction already finished")

// NewTransaction implements Storage.
func (s *MemoryStorage) NewTransaction() (Transaction, error) {
	tx := &memTransaction{storage: s}
	for i := range tx.overlay {
		tx.overlay[i] = make(map[string][]byte)
	}
	return tx, nil
}

func (tx *memTransaction) Commit() error {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.done {
		return errTransactionDone
	}
	tx.storage.mu.Lock()
	for col, overlay := range tx.overlay {
		for k, v := range overlay {
			if v == nil {
				delete(tx.storage.cols[col], k)
			} else {
				tx.storage.cols[col][k] = v
			}
		}
	}
	tx.storage.mu.Unlock()
	tx.done = true
	return nil
}

func (tx *memTransaction) Rollback() error {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.done {
		return errTransactionDone
	}
	for i := range tx.overlay {
		tx.overlay[i] = make(map[string][]byte)
	}
	return nil
}

// Context implements Storage.
func (s *MemoryStorage) Context(prefix Prefix, tx Transaction) Context {
	return &memContext{storage: s, prefix: prefix, tx: asMemTx(tx)}
}

// BatchContext implements Storage.
func (s *MemoryStorage) BatchContext(prefix Prefix, batch *Batch, tx Transaction) Context {
	return &memContext{storage: s, prefix: prefix, tx: asMemTx(tx), batch: batch}
}

func asMemTx(tx Transaction) *memTransaction {
	if tx == nil {
		return nil
	}
	return tx.(*memTransaction)
}

// CommitBatch implements Storage.
func (s *MemoryStorage) CommitBatch(batch *Batch, tx Transaction) error {
	if batch == nil {
		return nil
	}
	if mtx := asMemTx(tx); mtx != nil {
		mtx.mu.Lock()
		defer mtx.mu.Unlock()
		if mtx.done {
			return errTransactionDone
		}
		for _, op := range batch.Ops() {
			k := string(op.Prefix[:]) + string(op.Key)
			if op.Deletion {
				mtx.overlay[op.Col][k] = nil
			} else {
				mtx.overlay[op.Col][k] = op.Value
			}
		}
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, op := range batch.Ops() {
		k := string(op.Prefix[:]) + string(op.Key)
		if op.Deletion {
			delete(s.cols[op.Col], k)
		} else {
			s.cols[op.Col][k] = op.Value
		}
	}
	return nil
}

// Flush implements Storage.
func (s *MemoryStorage) Flush() error { return nil }

// Close implements Storage.
func (s *MemoryStorage) Close() error { return nil }

type memContext struct {
	storage *MemoryStorage
	prefix  Prefix
	tx      *memTransaction
	batch   *Batch
}

func (c *memContext) fullKey(key []byte) string {
	return string(c.prefix[:]) + string(key)
}

func (c *memContext) Get(col Column, key []byte) ([]byte, error) {
	k := c.fullKey(key)
	if c.tx != nil {
		c.tx.mu.Lock()
		v, ok := c.tx.overlay[col][k]
		c.tx.mu.Unlock()
		if ok {
			if v == nil {
				return nil, ErrNotFound
			}
			return v, nil
		}
	}
	c.storage.mu.RLock()
	v, ok := c.storage.cols[col][k]
	c.storage.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return v, nil
}

func (c *memContext) Put(col Column, key, value []byte) error {
	cp := append([]byte(nil), value...)
	if c.batch != nil {
		c.batch.Put(col, c.prefix, append([]byte(nil), key...), cp)
		return nil
	}
	k := c.fullKey(key)
	if c.tx != nil {
		c.tx.mu.Lock()
		defer c.tx.mu.Unlock()
		if c.tx.done {
			return errTransactionDone
		}
		c.tx.overlay[col][k] = cp
		return nil
	}
	c.storage.mu.Lock()
	c.storage.cols[col][k] = cp
	c.storage.mu.Unlock()
	return nil
}

func (c *memContext) Delete(col Column, key []byte) error {
	if c.batch != nil {
		c.batch.Delete(col, c.prefix, append([]byte(nil), key...))
		return nil
	}
	k := c.fullKey(key)
	if c.tx != nil {
		c.tx.mu.Lock()
		defer c.tx.mu.Unlock()
		if c.tx.done {
			return errTransactionDone
		}
		c.tx.overlay[col][k] = nil
		return nil
	}
	c.storage.mu.Lock()
	delete(c.storage.cols[col], k)
	c.storage.mu.Unlock()
	return nil
}

func (c *memContext) Prefix() Prefix {
	return c.prefix
}

// RawIterator implements Context. The iterator works over a snapshot of the
// namespace taken at creation time, merged with the transaction overlay.
func (c *memContext) RawIterator(col Column) RawIterator {
	merged := make(map[string][]byte)
	c.storage.mu.RLock()
	for k, v := range c.storage.cols[col] {
		if len(k) >= PrefixSize && k[:PrefixSize] == string(c.prefix[:]) {
			merged[k[PrefixSize:]] = v
		}
	}
	c.storage.mu.RUnlock()
	if c.tx != nil {
		c.tx.mu.Lock()
		for k, v := range c.tx.overlay[col] {
			if len(k) >= PrefixSize && k[:PrefixSize] == string(c.prefix[:]) {
				if v == nil {
					delete(merged, k[PrefixSize:])
				} else {
					merged[k[PrefixSize:]] = v
				}
			}
		}
		c.tx.mu.Unlock()
	}
	it := &memIterator{}
	for k := range merged {
		it.keys = append(it.keys, k)
	}
	sort.Strings(it.keys)
	it.values = make([][]byte, len(it.keys))
	for i, k := range it.keys {
		it.values[i] = merged[k]
	}
	it.pos = -1
	return it
}

type memIterator struct {
	keys   []string
	values [][]byte
	pos    int
}

func (it *memIterator) SeekToFirst() {
	if len(it.keys) == 0 {
		it.pos = -1
		return
	}
	it.pos = 0
}

func (it *memIterator) SeekToLast() {
	it.pos = len(it.keys) - 1
}

func (it *memIterator) Seek(key []byte) {
	it.pos = sort.Search(len(it.keys), func(i int) bool {
		return bytes.Compare([]byte(it.keys[i]), key) >= 0
	})
	if it.pos >= len(it.keys) {
		it.pos = -1
	}
}

func (it *memIterator) Next() {
	if it.pos < 0 {
		return
	}
	it.pos++
	if it.pos >= len(it.keys) {
		it.pos = -1
	}
}

func (it *memIterator) Prev() {
	it.pos--
}

func (it *memIterator) Valid() bool {
	return it.pos >= 0 && it.pos < len(it.keys)
}

func (it *memIterator) Key() []byte {
	return []byte(it.keys[it.pos])
}

func (it *memIterator) Value() []byte {
	return it.values[it.pos]
}

func (it *memIterator) Close() {}
