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
	"bytes"

	"go.uber.org/zap"

	"github.com/grovedb/grovedb/costs"
	"github.com/grovedb/grovedb/merk"
	"github.com/grovedb/grovedb/pathlib"
	"github.com/grovedb/grovedb/storage"
)

// DeleteOptions configures element deletion.
type DeleteOptions struct {
	// AllowDeletingNonEmptyTrees permits deleting a subtree element whose
	// subtree still has rows; they are cleared recursively.
	AllowDeletingNonEmptyTrees bool
	// DeletingNonEmptyTreesReturnsError selects between an error and a
	// silent false when a non-empty subtree deletion is refused.
	DeletingNonEmptyTreesReturnsError bool
	// BaseRootStorageIsFree exempts root pointer rows from accounting.
	BaseRootStorageIsFree bool
}

// DefaultDeleteOptions refuses non-empty subtree deletion with an error.
func DefaultDeleteOptions() *DeleteOptions {
	return &DeleteOptions{
		AllowDeletingNonEmptyTrees:        false,
		DeletingNonEmptyTreesReturnsError: true,
		BaseRootStorageIsFree:             true,
	}
}

// Delete removes the element at (path, key) and propagates the hash
// change to the forest root.
func (db *GroveDB) Delete(path [][]byte, key []byte, opts *DeleteOptions, tx *Transaction) (*costs.OperationCost, error) {
	cost := &costs.OperationCost{}
	if opts == nil {
		opts = DefaultDeleteOptions()
	}
	_, err := db.deleteInternal(path, key, opts, tx, cost)
	return cost, err
}

// DeleteIfEmptyTree deletes the subtree element at (path, key) only when
// its subtree is empty, reporting whether it did.
func (db *GroveDB) DeleteIfEmptyTree(path [][]byte, key []byte, tx *Transaction) (bool, *costs.OperationCost, error) {
	cost := &costs.OperationCost{}
	opts := &DeleteOptions{
		AllowDeletingNonEmptyTrees:        false,
		DeletingNonEmptyTreesReturnsError: false,
		BaseRootStorageIsFree:             true,
	}
	deleted, err := db.deleteInternal(path, key, opts, tx, cost)
	return deleted, cost, err
}

func (db *GroveDB) deleteInternal(path [][]byte, key []byte, opts *DeleteOptions, tx *Transaction, cost *costs.OperationCost) (bool, error) {
	element, err := db.getRaw(path, key, tx, cost)
	if err != nil {
		return false, err
	}
	batch := storage.NewBatch()
	cache := newMerkCache(db, tx, batch)
	cache.baseRootFree = opts.BaseRootStorageIsFree
	m, err := cache.getVerified(path, nil, cost)
	if err != nil {
		return false, err
	}

	opType := merk.OpDelete
	if element.IsTree() {
		opType = merk.OpDeleteLayered
		subPath := appendPath(path, key)
		sub, err := db.openMerk(subPath, tx, nil, true, cost)
		if err != nil {
			return false, err
		}
		if !sub.IsEmpty() {
			if !opts.AllowDeletingNonEmptyTrees {
				if opts.DeletingNonEmptyTreesReturnsError {
					return false, newError(ErrDeletingNonEmptyTree,
						"deleting a non empty subtree without options allowing it")
				}
				return false, nil
			}
			subtrees, err := db.findSubtrees(subPath, tx, cost)
			if err != nil {
				return false, err
			}
			for i := len(subtrees) - 1; i >= 0; i-- {
				inner, err := cache.get(subtrees[i], cost)
				if err != nil {
					return false, err
				}
				if err := inner.Clear(cost); err != nil {
					return false, wrapError(ErrCorruptedData, "clearing subtree rows", err)
				}
			}
		}
	}

	if err := m.Apply(merk.Batch{{Type: opType, Key: key}}, nil, cost); err != nil {
		return false, mapMerkError(err)
	}
	if err := db.propagateChanges(cache, path, cost); err != nil {
		return false, err
	}
	if err := db.storage.CommitBatch(batch, storageTx(tx)); err != nil {
		return false, wrapError(ErrBackend, "committing batch", err)
	}
	db.log.Debug("deleted element",
		zap.Int("path_len", len(path)),
		zap.Binary("key", key),
		zap.Uint32("removed_bytes", cost.StorageCost.RemovedBytes.TotalRemovedBytes()))
	return true, nil
}

// findSubtrees enumerates path and every descendant subtree path,
// breadth-first. Derived paths share their parents' segments; only the
// newly discovered keys are copied.
func (db *GroveDB) findSubtrees(path [][]byte, tx *Transaction, cost *costs.OperationCost) ([][][]byte, error) {
	root := pathlib.NewSubtreePath(copySegments(path))
	queue := []*pathlib.SubtreePath{root}
	result := [][][]byte{root.ToSlice()}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		ctx := db.storage.Context(current.Hash(), storageTx(tx))
		m, err := merk.Open(ctx, false, db.merkOptions(true), cost)
		if err != nil {
			return nil, wrapError(ErrCorruptedData, "opening subtree", err)
		}
		var walkErr error
		err = m.Iterate(func(key, value []byte, _ *merk.TreeNode) (bool, error) {
			elem, err := ParseElement(value)
			if err != nil {
				walkErr = err
				return false, nil
			}
			if elem.IsTree() {
				sub := current.Child(append([]byte(nil), key...))
				queue = append(queue, sub)
				result = append(result, sub.ToSlice())
			}
			return true, nil
		}, cost)
		if walkErr != nil {
			return nil, walkErr
		}
		if err != nil {
			return nil, wrapError(ErrBackend, "iterating subtree", err)
		}
	}
	return result, nil
}

// DeleteUpTreeWhileEmpty deletes the element at (path, key), then keeps
// deleting the hosting subtree at each ancestor level while it is empty,
// stopping at stopHeight (path length) when given. Returns the number of
// levels deleted.
func (db *GroveDB) DeleteUpTreeWhileEmpty(path [][]byte, key []byte, stopHeight *uint16, validate bool, tx *Transaction) (uint16, *costs.OperationCost, error) {
	cost := &costs.OperationCost{}
	var current []GroveDBOp
	ops, err := db.addDeleteUpTreeOps(path, key, stopHeight, validate, &current, tx, cost)
	if err != nil {
		return 0, cost, err
	}
	if ops == nil {
		if stopHeight != nil {
			return 0, cost, newErrorf(ErrDeleteUpTreeStopHeightMoreThanInitialPathSize,
				"stop height %d more than path size of %d", *stopHeight, len(path))
		}
		return 0, cost, newError(ErrCorruptedCodeExecution,
			"stop height not set, but still not deleting element")
	}
	batchCost, err := db.ApplyBatch(ops, tx)
	cost.Add(batchCost)
	if err != nil {
		return 0, cost, err
	}
	return uint16(len(ops)), cost, nil
}

// DeleteOperationsForDeleteUpTreeWhileEmpty plans the batch a
// delete-up-tree would run, without executing it.
func (db *GroveDB) DeleteOperationsForDeleteUpTreeWhileEmpty(path [][]byte, key []byte, stopHeight *uint16, validate bool, current []GroveDBOp, tx *Transaction) ([]GroveDBOp, *costs.OperationCost, error) {
	cost := &costs.OperationCost{}
	ops, err := db.addDeleteUpTreeOps(path, key, stopHeight, validate, &current, tx, cost)
	return ops, cost, err
}

func (db *GroveDB) addDeleteUpTreeOps(path [][]byte, key []byte, stopHeight *uint16, validate bool, current *[]GroveDBOp, tx *Transaction, cost *costs.OperationCost) ([]GroveDBOp, error) {
	if stopHeight != nil && int(*stopHeight) == len(path) {
		return nil, nil
	}
	if validate {
		if err := db.checkSubtreeExists(path, tx, cost, ErrPathNotFound); err != nil {
			return nil, err
		}
	}
	opts := &DeleteOptions{
		AllowDeletingNonEmptyTrees:        false,
		DeletingNonEmptyTreesReturnsError: false,
		BaseRootStorageIsFree:             true,
	}
	op, err := db.deleteOperationForDeleteInternal(path, key, opts, validate, *current, tx, cost)
	if err != nil {
		return nil, err
	}
	if op == nil {
		return nil, nil
	}
	ops := []GroveDBOp{*op}
	if len(path) > 0 {
		*current = append(*current, *op)
		upper, err := db.addDeleteUpTreeOps(path[:len(path)-1], path[len(path)-1], stopHeight, validate, current, tx, cost)
		if err != nil {
			return nil, err
		}
		ops = append(ops, upper...)
	}
	return ops, nil
}

// deleteOperationForDeleteInternal produces the batch op deleting (path,
// key), honoring pending operations of the surrounding batch, or nil when
// the options say to skip.
func (db *GroveDB) deleteOperationForDeleteInternal(path [][]byte, key []byte, opts *DeleteOptions, validate bool, current []GroveDBOp, tx *Transaction, cost *costs.OperationCost) (*GroveDBOp, error) {
	if len(path) == 0 {
		// The root subtree itself hosts the forest's top level; its
		// leaves are deleted through the regular delete entry point,
		// not through up-tree planning.
		return nil, newError(ErrInvalidPath, "root tree leaves currently cannot be deleted")
	}
	if validate {
		if err := db.checkSubtreeExists(path, tx, cost, ErrPathNotFound); err != nil {
			return nil, err
		}
	}
	element, err := db.getRaw(path, key, tx, cost)
	if err != nil {
		return nil, err
	}
	if !element.IsTree() {
		op := DeleteOp(path, key)
		return &op, nil
	}

	subPath := appendPath(path, key)
	batchDeleted := make(map[string]struct{})
	anyPendingInsert := false
	for i := range current {
		if !pathsEqual(current[i].Path, subPath) {
			continue
		}
		switch current[i].Op {
		case GroveOpDelete, GroveOpDeleteTree:
			batchDeleted[string(current[i].Key)] = struct{}{}
		default:
			anyPendingInsert = true
		}
	}
	sub, err := db.openMerk(subPath, tx, nil, true, cost)
	if err != nil {
		return nil, err
	}
	isEmpty, err := sub.IsEmptyExcept(batchDeleted, cost)
	if err != nil {
		return nil, wrapError(ErrBackend, "checking subtree emptiness", err)
	}
	isEmpty = isEmpty && !anyPendingInsert

	switch {
	case !opts.AllowDeletingNonEmptyTrees && !isEmpty:
		if opts.DeletingNonEmptyTreesReturnsError {
			return nil, newError(ErrDeletingNonEmptyTree,
				"delete operation for a non empty tree, but options not allowing this")
		}
		return nil, nil
	case isEmpty:
		op := DeleteTreeOp(path, key)
		return &op, nil
	default:
		return nil, newError(ErrNotSupported,
			"deletion operation for non empty tree not currently supported in batches")
	}
}

// WorstCaseDeletionCost is an upper bound on deleting a key with values up
// to maxElementSize, without touching state.
func (db *GroveDB) WorstCaseDeletionCost(path [][]byte, key []byte, maxElementSize uint32) *costs.OperationCost {
	layers := uint32(len(path)) + 1
	keyFootprint := merk.KeyCost(key) + merk.ParentHookCost(key)
	return &costs.OperationCost{
		// Two subtree opens (lookup and mutation) per layer, each a
		// context seek, a root pointer seek and a node fetch.
		SeekCount:          6 * layers,
		StorageLoadedBytes: 2 * (keyFootprint + maxElementSize) * layers,
		StorageCost: costs.StorageCost{
			RemovedBytes: costs.BasicStorageRemoval(keyFootprint + maxElementSize),
		},
		HashNodeCalls: 2 * layers,
	}
}

func appendPath(path [][]byte, key []byte) [][]byte {
	out := make([][]byte, 0, len(path)+1)
	out = append(out, path...)
	return append(out, key)
}

func pathsEqual(a, b [][]byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !bytes.Equal(a[i], b[i]) {
			return false
		}
	}
	return true
}
