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
	"errors"
	"sort"

	"go.uber.org/zap"

	"github.com/grovedb/grovedb/costs"
	"github.com/grovedb/grovedb/merk"
	"github.com/grovedb/grovedb/storage"
)

// GroveOpType enumerates batch operations.
type GroveOpType uint8

const (
	// GroveOpInsert stores an element, overwriting plain values.
	GroveOpInsert GroveOpType = iota
	// GroveOpReplace stores an element that must already exist.
	GroveOpReplace
	// GroveOpPatch replaces an element in place, keeping its variant.
	GroveOpPatch
	// GroveOpInsertIfNotExists stores an element only when vacant.
	GroveOpInsertIfNotExists
	// GroveOpDelete removes an element.
	GroveOpDelete
	// GroveOpDeleteTree removes a subtree element.
	GroveOpDeleteTree
)

// GroveDBOp is one heterogeneous batch operation.
type GroveDBOp struct {
	Path    [][]byte
	Key     []byte
	Op      GroveOpType
	Element *Element
}

// InsertOp builds an insert operation.
func InsertOp(path [][]byte, key []byte, element *Element) GroveDBOp {
	return GroveDBOp{Path: copySegments(path), Key: append([]byte(nil), key...), Op: GroveOpInsert, Element: element}
}

// ReplaceOp builds a replace operation.
func ReplaceOp(path [][]byte, key []byte, element *Element) GroveDBOp {
	return GroveDBOp{Path: copySegments(path), Key: append([]byte(nil), key...), Op: GroveOpReplace, Element: element}
}

// PatchOp builds a patch operation.
func PatchOp(path [][]byte, key []byte, element *Element) GroveDBOp {
	return GroveDBOp{Path: copySegments(path), Key: append([]byte(nil), key...), Op: GroveOpPatch, Element: element}
}

// InsertIfNotExistsOp builds a conditional insert operation.
func InsertIfNotExistsOp(path [][]byte, key []byte, element *Element) GroveDBOp {
	return GroveDBOp{Path: copySegments(path), Key: append([]byte(nil), key...), Op: GroveOpInsertIfNotExists, Element: element}
}

// DeleteOp builds a delete operation.
func DeleteOp(path [][]byte, key []byte) GroveDBOp {
	return GroveDBOp{Path: copySegments(path), Key: append([]byte(nil), key...), Op: GroveOpDelete}
}

// DeleteTreeOp builds a subtree delete operation.
func DeleteTreeOp(path [][]byte, key []byte) GroveDBOp {
	return GroveDBOp{Path: copySegments(path), Key: append([]byte(nil), key...), Op: GroveOpDeleteTree}
}

// batchGroup is the per-subtree operation list of one batch.
type batchGroup struct {
	path [][]byte
	ops  map[string]*GroveDBOp
}

// ApplyBatch validates, orders and executes a heterogeneous batch:
// per-subtree operation lists apply deepest-first so child root hashes are
// final before parents consume them, and the whole write set commits
// atomically. A failed batch leaves no trace.
func (db *GroveDB) ApplyBatch(ops []GroveDBOp, tx *Transaction) (*costs.OperationCost, error) {
	cost := &costs.OperationCost{}
	if len(ops) == 0 {
		return cost, nil
	}

	groups := make(map[string]*batchGroup)
	for i := range ops {
		op := ops[i]
		fp := fingerprint(op.Path)
		g, ok := groups[fp]
		if !ok {
			g = &batchGroup{path: op.Path, ops: make(map[string]*GroveDBOp)}
			groups[fp] = g
		}
		if _, dup := g.ops[string(op.Key)]; dup {
			return cost, newErrorf(ErrInvalidInput, "duplicate batch operation for key %x", op.Key)
		}
		g.ops[string(op.Key)] = &ops[i]
	}

	// Pending subtree creations let sibling ops descend into trees that
	// do not exist yet.
	pending := func(path [][]byte, key []byte) (*Element, bool) {
		g, ok := groups[fingerprint(path)]
		if !ok {
			return nil, false
		}
		op, ok := g.ops[string(key)]
		if !ok || op.Element == nil || !op.Element.IsTree() {
			return nil, false
		}
		switch op.Op {
		case GroveOpInsert, GroveOpReplace, GroveOpInsertIfNotExists, GroveOpPatch:
			return op.Element, true
		default:
			return nil, false
		}
	}

	// Deletions pending per subtree path, consulted by tree-emptiness
	// checks.
	deletedByPath := make(map[string]map[string]struct{})
	insertsByPath := make(map[string]bool)
	for fp, g := range groups {
		for key, op := range g.ops {
			switch op.Op {
			case GroveOpDelete, GroveOpDeleteTree:
				set, ok := deletedByPath[fp]
				if !ok {
					set = make(map[string]struct{})
					deletedByPath[fp] = set
				}
				set[key] = struct{}{}
			default:
				insertsByPath[fp] = true
			}
		}
	}

	// Worklist ordered deepest-first; propagation may add shallower
	// groups for subtrees the batch itself does not touch.
	byDepth := make(map[int][]*batchGroup)
	maxDepth := 0
	for _, g := range groups {
		d := len(g.path)
		byDepth[d] = append(byDepth[d], g)
		if d > maxDepth {
			maxDepth = d
		}
	}

	batch := storage.NewBatch()
	cache := newMerkCache(db, tx, batch)
	childStates := make(map[string]*childState)

	scheduled := func(path [][]byte) bool {
		_, ok := groups[fingerprint(path)]
		return ok
	}

	for depth := maxDepth; depth >= 0; depth-- {
		layer := byDepth[depth]
		// Deterministic order within one depth.
		sort.Slice(layer, func(i, j int) bool {
			return comparePaths(layer[i].path, layer[j].path) < 0
		})
		for _, g := range layer {
			if err := db.applyBatchGroup(g, cache, pending, deletedByPath, insertsByPath, childStates, tx, cost); err != nil {
				return cost, err
			}
			if depth == 0 {
				continue
			}
			parentPath := g.path[:len(g.path)-1]
			parentFp := fingerprint(parentPath)
			if scheduled(parentPath) {
				continue
			}
			// Schedule an empty group so the parent folds this
			// child's new root in.
			pg := &batchGroup{path: parentPath, ops: make(map[string]*GroveDBOp)}
			groups[parentFp] = pg
			byDepth[depth-1] = append(byDepth[depth-1], pg)
		}
	}

	if err := db.storage.CommitBatch(batch, storageTx(tx)); err != nil {
		return cost, wrapError(ErrBackend, "committing batch", err)
	}
	db.log.Debug("applied batch",
		zap.Int("ops", len(ops)),
		zap.Uint32("added_bytes", cost.StorageCost.AddedBytes),
		zap.Uint32("removed_bytes", cost.StorageCost.RemovedBytes.TotalRemovedBytes()))
	return cost, nil
}

// applyBatchGroup lowers one subtree's grove ops to a sorted tree batch
// and applies it, folding in the committed states of children processed
// earlier.
func (db *GroveDB) applyBatchGroup(
	g *batchGroup,
	cache *merkCache,
	pending pendingTreeFn,
	deletedByPath map[string]map[string]struct{},
	insertsByPath map[string]bool,
	childStates map[string]*childState,
	tx *Transaction,
	cost *costs.OperationCost,
) error {
	m, err := cache.getVerified(g.path, pending, cost)
	if err != nil {
		return err
	}

	// Keys with ops in this group, plus keys needing propagation-only
	// updates from child subtrees processed earlier.
	keys := make([]string, 0, len(g.ops))
	for key := range g.ops {
		keys = append(keys, key)
	}
	propagated := make(map[string]*childState)
	for key, state := range pendingChildFolds(g.path, childStates) {
		if _, has := g.ops[key]; !has {
			keys = append(keys, key)
		}
		propagated[key] = state
	}
	sort.Strings(keys)

	var treeBatch merk.Batch
	for _, key := range keys {
		gop, hasOp := g.ops[key]
		child := propagated[key]
		if !hasOp {
			// Propagation-only: refresh the stored subtree element.
			raw, err := m.Get([]byte(key), cost)
			if err != nil {
				if errors.Is(err, merk.ErrKeyNotFound) {
					return newErrorf(ErrCorruptedPath, "parent layer has no element for %x", key)
				}
				return wrapError(ErrBackend, "reading parent element", err)
			}
			elem, err := ParseElement(raw)
			if err != nil {
				return err
			}
			if !elem.IsTree() {
				return newErrorf(ErrInvalidParentLayerPath, "element at %x is not a subtree", key)
			}
			op, err := db.merkOpForElement(g.path, []byte(key), elem, child, tx, cost)
			if err != nil {
				return err
			}
			treeBatch = append(treeBatch, op)
			continue
		}

		switch gop.Op {
		case GroveOpInsert, GroveOpReplace, GroveOpPatch, GroveOpInsertIfNotExists:
			if gop.Element.Type == SumItemElement && !m.IsSum() {
				return newErrorf(ErrInvalidInput, "sum item at %x requires a sum tree", gop.Key)
			}
			exists := true
			raw, err := m.Get(gop.Key, cost)
			if errors.Is(err, merk.ErrKeyNotFound) {
				exists = false
			} else if err != nil {
				return wrapError(ErrBackend, "reading previous element", err)
			}
			if gop.Op == GroveOpInsertIfNotExists && exists {
				continue
			}
			if (gop.Op == GroveOpReplace || gop.Op == GroveOpPatch) && !exists {
				return newErrorf(ErrPathKeyNotFound, "replace of missing key %x", gop.Key)
			}
			if exists {
				prev, err := ParseElement(raw)
				if err != nil {
					return err
				}
				if prev.IsTree() {
					return newErrorf(ErrInvalidInput, "inserting over a subtree element at %x", gop.Key)
				}
				if gop.Op == GroveOpPatch && prev.Type != gop.Element.Type {
					return newErrorf(ErrInvalidInput, "patch changes element variant at %x", gop.Key)
				}
			}
			op, err := db.merkOpForElement(g.path, gop.Key, gop.Element, child, tx, cost)
			if err != nil {
				return err
			}
			treeBatch = append(treeBatch, op)

		case GroveOpDelete, GroveOpDeleteTree:
			element, err := db.getRaw(g.path, gop.Key, tx, cost)
			if err != nil {
				return err
			}
			opType := merk.OpDelete
			if element.IsTree() {
				opType = merk.OpDeleteLayered
				subPath := appendPath(g.path, gop.Key)
				subFp := fingerprint(subPath)
				sub, err := db.openMerk(subPath, tx, nil, true, cost)
				if err != nil {
					return err
				}
				isEmpty, err := sub.IsEmptyExcept(deletedByPath[subFp], cost)
				if err != nil {
					return wrapError(ErrBackend, "checking subtree emptiness", err)
				}
				if insertsByPath[subFp] {
					isEmpty = false
				}
				if !isEmpty {
					return newError(ErrDeletingNonEmptyTree,
						"batch deletion of a non empty subtree is not allowed")
				}
			} else if gop.Op == GroveOpDeleteTree {
				return newErrorf(ErrInvalidInput, "tree delete of a non-tree element at %x", gop.Key)
			}
			treeBatch = append(treeBatch, merk.Op{Type: opType, Key: gop.Key})
		}
	}

	if err := merk.ValidateBatch(treeBatch); err != nil {
		return mapMerkError(err)
	}
	if err := m.Apply(treeBatch, nil, cost); err != nil {
		return mapMerkError(err)
	}
	childStates[fingerprint(g.path)] = &childState{
		path:    g.path,
		rootKey: m.RootKey(),
		hash:    m.RootHash(),
		sum:     m.RootSum(),
		isSum:   m.IsSum(),
	}
	return nil
}

// pendingChildFolds collects the already-processed children directly
// below path, keyed by their element key in path's subtree.
func pendingChildFolds(path [][]byte, childStates map[string]*childState) map[string]*childState {
	out := make(map[string]*childState)
	for _, state := range childStates {
		childPath := state.path
		if len(childPath) != len(path)+1 || !pathsEqual(childPath[:len(childPath)-1], path) {
			continue
		}
		out[string(childPath[len(childPath)-1])] = state
	}
	return out
}

func comparePaths(a, b [][]byte) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if c := bytes.Compare(a[i], b[i]); c != 0 {
			return c
		}
	}
	return len(a) - len(b)
}
