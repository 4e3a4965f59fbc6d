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

// Package leveldbstorage implements the storage contract over a LevelDB
// database. Column families are emulated with a one-byte key namespace;
// physical keys are column ∥ prefix ∥ key, so one subtree's rows are
// contiguous in the keyspace and raw iteration over a namespace is a plain
// range scan.
package leveldbstorage

import (
	"errors"

	"github.com/syndtr/goleveldb/leveldb"
	ldberrors "github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/iterator"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/grovedb/grovedb/storage"
)

// LevelDBStorage is a storage.Storage backed by a goleveldb database.
type LevelDBStorage struct {
	db *leveldb.DB
}

// Open opens (creating if needed) a LevelDB database at path.
func Open(path string) (*LevelDBStorage, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, err
	}
	return &LevelDBStorage{db: db}, nil
}

type ldbTransaction struct {
	tx *leveldb.Transaction
}

func (t *ldbTransaction) Commit() error {
	return t.tx.Commit()
}

func (t *ldbTransaction) Rollback() error {
	t.tx.Discard()
	return nil
}

// NewTransaction implements storage.Storage. LevelDB transactions are
// exclusive: only one may be live at a time.
func (s *LevelDBStorage) NewTransaction() (storage.Transaction, error) {
	tx, err := s.db.OpenTransaction()
	if err != nil {
		return nil, err
	}
	return &ldbTransaction{tx: tx}, nil
}

// Context implements storage.Storage.
func (s *LevelDBStorage) Context(prefix storage.Prefix, tx storage.Transaction) storage.Context {
	return &ldbContext{storage: s, prefix: prefix, tx: asLdbTx(tx)}
}

// BatchContext implements storage.Storage.
func (s *LevelDBStorage) BatchContext(prefix storage.Prefix, batch *storage.Batch, tx storage.Transaction) storage.Context {
	return &ldbContext{storage: s, prefix: prefix, tx: asLdbTx(tx), batch: batch}
}

func asLdbTx(tx storage.Transaction) *ldbTransaction {
	if tx == nil {
		return nil
	}
	return tx.(*ldbTransaction)
}

// CommitBatch implements storage.Storage.
func (s *LevelDBStorage) CommitBatch(batch *storage.Batch, tx storage.Transaction) error {
	if batch == nil || batch.Len() == 0 {
		return nil
	}
	ldbBatch := new(leveldb.Batch)
	for _, op := range batch.Ops() {
		k := physicalKey(op.Col, op.Prefix, op.Key)
		if op.Deletion {
			ldbBatch.Delete(k)
		} else {
			ldbBatch.Put(k, op.Value)
		}
	}
	if ltx := asLdbTx(tx); ltx != nil {
		return ltx.tx.Write(ldbBatch, nil)
	}
	return s.db.Write(ldbBatch, nil)
}

// Flush implements storage.Storage. LevelDB persists through its WAL on
// every write, so there is no extra buffering to force out.
func (s *LevelDBStorage) Flush() error { return nil }

// Close implements storage.Storage.
func (s *LevelDBStorage) Close() error {
	return s.db.Close()
}

func physicalKey(col storage.Column, prefix storage.Prefix, key []byte) []byte {
	out := make([]byte, 0, 1+storage.PrefixSize+len(key))
	out = append(out, byte(col))
	out = append(out, prefix[:]...)
	return append(out, key...)
}

type ldbContext struct {
	storage *LevelDBStorage
	prefix  storage.Prefix
	tx      *ldbTransaction
	batch   *storage.Batch
}

func (c *ldbContext) Get(col storage.Column, key []byte) ([]byte, error) {
	k := physicalKey(col, c.prefix, key)
	var (
		v   []byte
		err error
	)
	if c.tx != nil {
		v, err = c.tx.tx.Get(k, nil)
	} else {
		v, err = c.storage.db.Get(k, nil)
	}
	if errors.Is(err, ldberrors.ErrNotFound) {
		return nil, storage.ErrNotFound
	}
	return v, err
}

func (c *ldbContext) Put(col storage.Column, key, value []byte) error {
	if c.batch != nil {
		c.batch.Put(col, c.prefix, append([]byte(nil), key...), append([]byte(nil), value...))
		return nil
	}
	k := physicalKey(col, c.prefix, key)
	if c.tx != nil {
		return c.tx.tx.Put(k, value, nil)
	}
	return c.storage.db.Put(k, value, nil)
}

func (c *ldbContext) Delete(col storage.Column, key []byte) error {
	if c.batch != nil {
		c.batch.Delete(col, c.prefix, append([]byte(nil), key...))
		return nil
	}
	k := physicalKey(col, c.prefix, key)
	if c.tx != nil {
		return c.tx.tx.Delete(k, nil)
	}
	return c.storage.db.Delete(k, nil)
}

func (c *ldbContext) Prefix() storage.Prefix {
	return c.prefix
}

func (c *ldbContext) RawIterator(col storage.Column) storage.RawIterator {
	rng := util.BytesPrefix(physicalKey(col, c.prefix, nil))
	var it iterator.Iterator
	if c.tx != nil {
		it = c.tx.tx.NewIterator(rng, nil)
	} else {
		it = c.storage.db.NewIterator(rng, nil)
	}
	return &ldbIterator{it: it, skip: 1 + storage.PrefixSize, rngStart: rng.Start}
}

type ldbIterator struct {
	it       iterator.Iterator
	skip     int
	rngStart []byte
	valid    bool
}

func (it *ldbIterator) SeekToFirst() { it.valid = it.it.First() }
func (it *ldbIterator) SeekToLast()  { it.valid = it.it.Last() }

func (it *ldbIterator) Seek(key []byte) {
	full := append(append([]byte(nil), it.rngStart...), key...)
	it.valid = it.it.Seek(full)
}

func (it *ldbIterator) Next() { it.valid = it.it.Next() }
func (it *ldbIterator) Prev() { it.valid = it.it.Prev() }

func (it *ldbIterator) Valid() bool { return it.valid }

func (it *ldbIterator) Key() []byte {
	k := it.it.Key()
	if len(k) < it.skip {
		return nil
	}
	return append([]byte(nil), k[it.skip:]...)
}

func (it *ldbIterator) Value() []byte {
	return append([]byte(nil), it.it.Value()...)
}

func (it *ldbIterator) Close() {
	it.it.Release()
}
