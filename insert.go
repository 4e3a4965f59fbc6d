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

package grovedb

import (
	"errors"

	"go.uber.org/zap"

	"github.com/grovedb/grovedb/costs"
	"github.com/grovedb/grovedb/merk"
	"github.com/grovedb/grovedb/storage"
)

// InsertOptions configures element insertion.
type InsertOptions struct {
	// ValidateInsertionDoesNotOverride fails the insert when the key is
	// already occupied.
	ValidateInsertionDoesNotOverride bool
	// ValidateInsertionDoesNotOverrideTree fails the insert when the key
	// already holds a subtree element, whatever the new element is.
	ValidateInsertionDoesNotOverrideTree bool
	// BaseRootStorageIsFree exempts root pointer rows from accounting.
	BaseRootStorageIsFree bool
}

// DefaultInsertOptions protects existing subtrees but allows plain
// overwrites.
func DefaultInsertOptions() *InsertOptions {
	return &InsertOptions{
		ValidateInsertionDoesNotOverride:     false,
		ValidateInsertionDoesNotOverrideTree: true,
		BaseRootStorageIsFree:                true,
	}
}

// Insert stores element at (path, key) and propagates the hash change up
// to the forest root. The whole write set commits atomically.
func (db *GroveDB) Insert(path [][]byte, key []byte, element *Element, opts *InsertOptions, tx *Transaction) (*costs.OperationCost, error) {
	cost := &costs.OperationCost{}
	if opts == nil {
		opts = DefaultInsertOptions()
	}
	batch := storage.NewBatch()
	cache := newMerkCache(db, tx, batch)
	cache.baseRootFree = opts.BaseRootStorageIsFree
	m, err := cache.getVerified(path, nil, cost)
	if err != nil {
		return cost, err
	}
	if err := db.insertIntoMerk(m, path, key, element, opts, tx, cost); err != nil {
		return cost, err
	}
	if err := db.propagateChanges(cache, path, cost); err != nil {
		return cost, err
	}
	if err := db.storage.CommitBatch(batch, storageTx(tx)); err != nil {
		return cost, wrapError(ErrBackend, "committing batch", err)
	}
	db.log.Debug("inserted element",
		zap.Int("path_len", len(path)),
		zap.Binary("key", key),
		zap.Uint32("added_bytes", cost.StorageCost.AddedBytes))
	return cost, nil
}

// InsertIfNotExists stores element only when the key is vacant, reporting
// whether it did.
func (db *GroveDB) InsertIfNotExists(path [][]byte, key []byte, element *Element, tx *Transaction) (bool, *costs.OperationCost, error) {
	cost := &costs.OperationCost{}
	_, err := db.getRaw(path, key, tx, cost)
	if err == nil {
		return false, cost, nil
	}
	if kind := KindOf(err); kind != ErrPathKeyNotFound && kind != ErrPathNotFound {
		return false, cost, err
	}
	insertCost, err := db.Insert(path, key, element, nil, tx)
	cost.Add(insertCost)
	return err == nil, cost, err
}

// insertIntoMerk validates and applies one element write on an open
// subtree.
func (db *GroveDB) insertIntoMerk(m *merk.Merk, path [][]byte, key []byte, element *Element, opts *InsertOptions, tx *Transaction, cost *costs.OperationCost) error {
	if element.Type == SumItemElement && !m.IsSum() {
		return newErrorf(ErrInvalidInput, "sum item at %x requires a sum tree", key)
	}
	if opts.ValidateInsertionDoesNotOverride || opts.ValidateInsertionDoesNotOverrideTree {
		raw, err := m.Get(key, cost)
		switch {
		case err == nil:
			if opts.ValidateInsertionDoesNotOverride {
				return newErrorf(ErrInvalidInput, "key %x already occupied", key)
			}
			prev, err := ParseElement(raw)
			if err != nil {
				return err
			}
			if prev.IsTree() && opts.ValidateInsertionDoesNotOverrideTree {
				return newErrorf(ErrInvalidInput, "inserting over a subtree element at %x", key)
			}
		case errors.Is(err, merk.ErrKeyNotFound):
		default:
			return wrapError(ErrBackend, "reading previous element", err)
		}
	}
	op, err := db.merkOpForElement(path, key, element, nil, tx, cost)
	if err != nil {
		return err
	}
	if err := m.Apply(merk.Batch{op}, nil, cost); err != nil {
		return mapMerkError(err)
	}
	return nil
}

// childState is a subtree's committed identity, used when a batch already
// processed the child and the parent op must fold it in.
type childState struct {
	path    [][]byte
	rootKey []byte
	hash    merk.Hash
	sum     int64
	isSum   bool
}

// merkOpForElement lowers an element write to a tree operation. For
// references the target's value hash is resolved and folded in; for
// subtree elements the child's root hash becomes the value hash.
func (db *GroveDB) merkOpForElement(path [][]byte, key []byte, element *Element, child *childState, tx *Transaction, cost *costs.OperationCost) (merk.Op, error) {
	op := merk.Op{Key: key}
	switch element.Type {
	case ItemElement:
		op.Type = merk.OpPut
	case SumItemElement:
		op.Type = merk.OpPutSum
		op.Sum = element.Sum
	case ReferenceElement:
		qualified, err := element.Ref.Resolve(path, key)
		if err != nil {
			return op, err
		}
		if len(qualified) == 0 {
			return op, newError(ErrCorruptedPath, "empty reference path")
		}
		refPath := qualified[:len(qualified)-1]
		refKey := qualified[len(qualified)-1]
		refMerk, err := db.openMerk(refPath, tx, nil, true, cost)
		if err != nil {
			return op, err
		}
		vh, err := refMerk.GetValueHash(refKey, cost)
		switch {
		case err == nil:
			op.Type = merk.OpPutCombinedRef
			op.RefValueHash = vh
		case errors.Is(err, merk.ErrKeyNotFound):
			// The target may be created later (or be this very
			// element); store the reference with a plain value
			// hash and let resolution happen at read time.
			op.Type = merk.OpPut
		default:
			return op, wrapError(ErrBackend, "resolving reference target", err)
		}
	case TreeElement:
		op.Type = merk.OpPutLayered
		if child != nil {
			element.RootKey = child.rootKey
			op.LayeredHash = child.hash
		} else {
			element.RootKey = nil
			op.LayeredHash = merk.NullHash
		}
	case SumTreeElement:
		op.Type = merk.OpPutLayered
		if child != nil {
			element.RootKey = child.rootKey
			element.Sum = child.sum
			op.Sum = child.sum
			op.LayeredHash = merk.SumTreeValueHash(child.hash, child.sum, cost)
		} else {
			element.RootKey = nil
			element.Sum = 0
			op.LayeredHash = merk.SumTreeValueHash(merk.NullHash, 0, cost)
		}
	default:
		return op, newErrorf(ErrCorruptedData, "unknown element type %d", element.Type)
	}
	op.Value = element.Serialize()
	op.ValueCost = element.CostSize()
	return op, nil
}
