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

// Package grovedb implements a hierarchical authenticated key-value
// store: a forest of balanced authenticated trees where an element naming
// a nested subtree carries that subtree's root hash as its value hash.
// One root commitment authenticates every (path, key, element) triple, and
// every operation reports byte-exact storage costs before it commits.
package grovedb

import (
	"errors"

	"go.uber.org/zap"

	"github.com/grovedb/grovedb/costs"
	"github.com/grovedb/grovedb/merk"
	"github.com/grovedb/grovedb/pathlib"
	"github.com/grovedb/grovedb/storage"
	"github.com/grovedb/grovedb/storage/leveldbstorage"
)

// GroveDB is the database handle. It is a thin stateless layer over the
// storage backend; all per-operation state lives in transactions and merk
// caches.
type GroveDB struct {
	storage storage.Storage
	log     *zap.Logger

	// SectionedRemoval, when set, distributes removed bytes over epochs
	// based on the removed element's flags. Unset means plain counts.
	SectionedRemoval func(flags []byte, removed uint32) costs.StorageRemovedBytes
}

// Open opens (creating if needed) a persistent database at path.
func Open(path string, logger *zap.Logger) (*GroveDB, error) {
	s, err := leveldbstorage.Open(path)
	if err != nil {
		return nil, wrapError(ErrBackend, "opening backend", err)
	}
	return NewWithStorage(s, logger), nil
}

// NewWithStorage wraps an existing backend.
func NewWithStorage(s storage.Storage, logger *zap.Logger) *GroveDB {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GroveDB{storage: s, log: logger}
}

// NewMemory returns an ephemeral in-memory database.
func NewMemory() *GroveDB {
	return NewWithStorage(storage.NewMemoryStorage(), nil)
}

// Close releases the backend.
func (db *GroveDB) Close() error {
	return db.storage.Close()
}

// Flush forces buffered backend data out.
func (db *GroveDB) Flush() error {
	return db.storage.Flush()
}

// Transaction scopes a group of mutations; commit publishes them
// atomically, rollback discards them.
type Transaction struct {
	tx storage.Transaction
}

// StartTransaction begins a transaction.
func (db *GroveDB) StartTransaction() (*Transaction, error) {
	tx, err := db.storage.NewTransaction()
	if err != nil {
		return nil, wrapError(ErrBackend, "starting transaction", err)
	}
	return &Transaction{tx: tx}, nil
}

// Commit publishes the transaction.
func (t *Transaction) Commit() error {
	return t.tx.Commit()
}

// Rollback discards the transaction.
func (t *Transaction) Rollback() error {
	return t.tx.Rollback()
}

func storageTx(tx *Transaction) storage.Transaction {
	if tx == nil {
		return nil
	}
	return tx.tx
}

// merkOptions builds the element-aware accounting configuration.
func (db *GroveDB) merkOptions(baseRootFree bool) *merk.Options {
	opts := &merk.Options{
		ValueCost:             elementValueCost,
		BaseRootStorageIsFree: baseRootFree,
	}
	opts.SectionedRemoval = func(value []byte, removed uint32) costs.StorageRemovedBytes {
		if db.SectionedRemoval == nil {
			return costs.BasicStorageRemoval(removed)
		}
		var flags []byte
		if e, err := ParseElement(value); err == nil {
			flags = e.Flags
		}
		return db.SectionedRemoval(flags, removed)
	}
	return opts
}

// openMerk opens the subtree at path. When batch is non-nil, writes are
// deferred into it.
func (db *GroveDB) openMerk(path [][]byte, tx *Transaction, batch *storage.Batch, baseRootFree bool, cost *costs.OperationCost) (*merk.Merk, error) {
	prefix := pathlib.HashSegments(path)
	var ctx storage.Context
	if batch != nil {
		ctx = db.storage.BatchContext(prefix, batch, storageTx(tx))
	} else {
		ctx = db.storage.Context(prefix, storageTx(tx))
	}
	m, err := merk.Open(ctx, false, db.merkOptions(baseRootFree), cost)
	if err != nil {
		return nil, wrapError(ErrCorruptedData, "opening subtree", err)
	}
	return m, nil
}

// RootHash returns the commitment over the whole forest: the root
// subtree's root hash.
func (db *GroveDB) RootHash(tx *Transaction) (merk.Hash, *costs.OperationCost, error) {
	cost := &costs.OperationCost{}
	m, err := db.openMerk(nil, tx, nil, true, cost)
	if err != nil {
		return merk.NullHash, cost, err
	}
	return m.RootHash(), cost, nil
}

// merkCache holds the subtrees one operation has opened, keyed by path
// prefix, so hash propagation reuses them instead of re-reading.
type merkCache struct {
	db    *GroveDB
	tx    *Transaction
	batch *storage.Batch
	merks map[storage.Prefix]*merk.Merk
	// baseRootFree is carried into every opened subtree's accounting.
	baseRootFree bool
}

func newMerkCache(db *GroveDB, tx *Transaction, batch *storage.Batch) *merkCache {
	return &merkCache{db: db, tx: tx, batch: batch, merks: make(map[storage.Prefix]*merk.Merk), baseRootFree: true}
}

func (c *merkCache) get(path [][]byte, cost *costs.OperationCost) (*merk.Merk, error) {
	prefix := pathlib.HashSegments(path)
	if m, ok := c.merks[prefix]; ok {
		return m, nil
	}
	m, err := c.db.openMerk(path, c.tx, c.batch, c.baseRootFree, cost)
	if err != nil {
		return nil, err
	}
	c.merks[prefix] = m
	return m, nil
}

// pendingTreeFn lets the batch executor declare subtrees an earlier batch op
// will create, so descending into them does not fail.
type pendingTreeFn func(path [][]byte, key []byte) (*Element, bool)

// getVerified walks from the forest root down to path, checking every
// layer is a subtree element and learning the target's sum-ness. Missing
// layers surface as path errors unless pending reports them as created by
// the current batch.
func (c *merkCache) getVerified(path [][]byte, pending pendingTreeFn, cost *costs.OperationCost) (*merk.Merk, error) {
	m, err := c.get(nil, cost)
	if err != nil {
		return nil, err
	}
	for i := 0; i < len(path); i++ {
		var elem *Element
		raw, err := m.Get(path[i], cost)
		switch {
		case err == nil:
			if elem, err = ParseElement(raw); err != nil {
				return nil, err
			}
		case errors.Is(err, merk.ErrKeyNotFound):
			if pending != nil {
				if pendingElem, ok := pending(path[:i], path[i]); ok {
					elem = pendingElem
					break
				}
			}
			kind := ErrPathNotFound
			if i < len(path)-1 {
				kind = ErrPathParentLayerNotFound
			}
			return nil, newErrorf(kind, "subtree does not exist at %s", pathString(path[:i+1]))
		default:
			return nil, wrapError(ErrBackend, "reading parent layer", err)
		}
		if !elem.IsTree() {
			return nil, newErrorf(ErrInvalidParentLayerPath, "element at %s is not a subtree", pathString(path[:i+1]))
		}
		m, err = c.get(path[:i+1], cost)
		if err != nil {
			return nil, err
		}
		m.SetIsSum(elem.Type == SumTreeElement)
	}
	return m, nil
}

// propagateChanges walks from a mutated subtree to the forest root,
// re-inserting each child's root hash into its parent element.
func (db *GroveDB) propagateChanges(cache *merkCache, path [][]byte, cost *costs.OperationCost) error {
	for len(path) > 0 {
		child, err := cache.get(path, cost)
		if err != nil {
			return err
		}
		parentPath := path[:len(path)-1]
		segment := path[len(path)-1]
		parent, err := cache.get(parentPath, cost)
		if err != nil {
			return err
		}
		raw, err := parent.Get(segment, cost)
		if err != nil {
			if errors.Is(err, merk.ErrKeyNotFound) {
				return newErrorf(ErrCorruptedPath, "parent layer has no element for %x", segment)
			}
			return wrapError(ErrBackend, "reading parent element", err)
		}
		elem, err := ParseElement(raw)
		if err != nil {
			return err
		}
		if !elem.IsTree() {
			return newErrorf(ErrInvalidParentLayerPath, "element at %x is not a subtree", segment)
		}
		op, err := layeredOpForChild(elem, segment, child, cost)
		if err != nil {
			return err
		}
		if err := parent.Apply(merk.Batch{op}, nil, cost); err != nil {
			return mapMerkError(err)
		}
		path = parentPath
	}
	return nil
}

// layeredOpForChild rebuilds a parent's subtree element from the child's
// committed state.
func layeredOpForChild(elem *Element, key []byte, child *merk.Merk, cost *costs.OperationCost) (merk.Op, error) {
	elem.RootKey = child.RootKey()
	op := merk.Op{Type: merk.OpPutLayered, Key: key}
	if elem.Type == SumTreeElement {
		elem.Sum = child.RootSum()
		op.Sum = elem.Sum
		op.LayeredHash = merk.SumTreeValueHash(child.RootHash(), elem.Sum, cost)
	} else {
		op.LayeredHash = child.RootHash()
	}
	op.Value = elem.Serialize()
	op.ValueCost = elem.CostSize()
	return op, nil
}

func mapMerkError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, merk.ErrSumOverflow):
		return wrapError(ErrOverflow, "sum tree aggregation", err)
	case errors.Is(err, merk.ErrBatchUnsorted):
		return wrapError(ErrInvalidInput, "merk batch", err)
	case errors.Is(err, merk.ErrDeleteNonExistent):
		return wrapError(ErrPathKeyNotFound, "deleting missing key", err)
	case errors.Is(err, merk.ErrInvalidNodeEncoding):
		return wrapError(ErrCorruptedData, "node row", err)
	default:
		return wrapError(ErrBackend, "merk operation", err)
	}
}

// PutAux stores user auxiliary data under the root namespace.
func (db *GroveDB) PutAux(key, value []byte, tx *Transaction) (*costs.OperationCost, error) {
	cost := &costs.OperationCost{}
	m, err := db.openMerk(nil, tx, nil, true, cost)
	if err != nil {
		return cost, err
	}
	if err := m.Apply(nil, []merk.AuxOp{{Key: key, Value: value}}, cost); err != nil {
		return cost, mapMerkError(err)
	}
	return cost, nil
}

// GetAux reads user auxiliary data.
func (db *GroveDB) GetAux(key []byte, tx *Transaction) ([]byte, *costs.OperationCost, error) {
	cost := &costs.OperationCost{}
	m, err := db.openMerk(nil, tx, nil, true, cost)
	if err != nil {
		return nil, cost, err
	}
	v, err := m.GetAux(key, cost)
	if errors.Is(err, merk.ErrKeyNotFound) {
		return nil, cost, newErrorf(ErrPathKeyNotFound, "no aux value for %x", key)
	}
	if err != nil {
		return nil, cost, wrapError(ErrBackend, "reading aux", err)
	}
	return v, cost, nil
}

// DeleteAux removes user auxiliary data.
func (db *GroveDB) DeleteAux(key []byte, tx *Transaction) (*costs.OperationCost, error) {
	cost := &costs.OperationCost{}
	m, err := db.openMerk(nil, tx, nil, true, cost)
	if err != nil {
		return cost, err
	}
	if err := m.Apply(nil, []merk.AuxOp{{Key: key, Deletion: true}}, cost); err != nil {
		return cost, mapMerkError(err)
	}
	return cost, nil
}
