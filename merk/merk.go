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

package merk

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/grovedb/grovedb/costs"
	"github.com/grovedb/grovedb/storage"
)

// rootKeyKey is the roots-column row holding this tree's root node key.
var rootKeyKey = []byte("r")

// Merk is one authenticated tree bound to a prefixed storage context.
type Merk struct {
	ctx   storage.Context
	opts  *Options
	isSum bool
	tree  *TreeNode

	// storedRootKey mirrors the persisted root pointer row.
	storedRootKey []byte
}

// Open binds a tree to its storage context and loads the root node, if
// any.
func Open(ctx storage.Context, isSum bool, opts *Options, cost *costs.OperationCost) (*Merk, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	m := &Merk{ctx: ctx, opts: opts, isSum: isSum}
	// Placing the prefixed context and looking up the root pointer are
	// each one backend seek.
	cost.SeekCount += 2
	rootKey, err := ctx.Get(storage.ColRoots, rootKeyKey)
	if errors.Is(err, storage.ErrNotFound) {
		return m, nil
	}
	if err != nil {
		return nil, err
	}
	root, err := m.fetchNode(rootKey, cost)
	if err != nil {
		return nil, err
	}
	m.tree = root
	// The stored root's feature type is authoritative for sum-ness.
	m.isSum = root.feature.Kind == SummedMerkNode
	m.storedRootKey = append([]byte(nil), rootKey...)
	return m, nil
}

// fetchNode reads and decodes one node row, accounting the seek, the
// loaded footprint and the integrity hash.
func (m *Merk) fetchNode(key []byte, cost *costs.OperationCost) (*TreeNode, error) {
	cost.SeekCount++
	row, err := m.ctx.Get(storage.ColData, key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: missing node row %x", ErrInvalidNodeEncoding, key)
	}
	if err != nil {
		return nil, err
	}
	n, err := DecodeNode(key, row)
	if err != nil {
		return nil, err
	}
	n.oldValueCost = m.opts.valueCost(n.value)
	cost.StorageLoadedBytes += LoadedCost(key, n.oldValueCost)
	n.hash = hashNode(n.kvHash, n.left.Hash(), n.right.Hash(), cost)
	return n, nil
}

// fetch implements fetcher.
func (m *Merk) fetch(link *Link, cost *costs.OperationCost) (*TreeNode, error) {
	return m.fetchNode(link.key, cost)
}

// IsSum reports whether this is a sum tree.
func (m *Merk) IsSum() bool { return m.isSum }

// SetIsSum declares an empty tree's sum-ness ahead of its first write. A
// loaded root's feature type takes precedence.
func (m *Merk) SetIsSum(isSum bool) {
	if m.tree == nil {
		m.isSum = isSum
	}
}

// RootHash returns the tree's commitment: the root node hash, or the zero
// hash for an empty tree.
func (m *Merk) RootHash() Hash {
	if m.tree == nil {
		return NullHash
	}
	return m.tree.hash
}

// RootKey returns the root node's key, or nil for an empty tree.
func (m *Merk) RootKey() []byte {
	if m.tree == nil {
		return nil
	}
	return m.tree.key
}

// RootSum returns the aggregate of a sum tree.
func (m *Merk) RootSum() int64 {
	if m.tree == nil {
		return 0
	}
	return m.tree.feature.Sum
}

// IsEmpty reports whether the tree has no nodes.
func (m *Merk) IsEmpty() bool {
	return m.tree == nil
}

// IsEmptyExcept reports whether the tree would be empty once every key in
// except is removed. Used when an outer batch holds pending deletions for
// this tree.
func (m *Merk) IsEmptyExcept(except map[string]struct{}, cost *costs.OperationCost) (bool, error) {
	if m.tree == nil {
		return true, nil
	}
	if len(except) == 0 {
		return false, nil
	}
	cost.SeekCount++
	it := m.ctx.RawIterator(storage.ColData)
	defer it.Close()
	for it.SeekToFirst(); it.Valid(); it.Next() {
		if _, ok := except[string(it.Key())]; !ok {
			return false, nil
		}
	}
	return true, nil
}

// getNode walks from the root to key, loading pruned links on the way.
func (m *Merk) getNode(key []byte, cost *costs.OperationCost) (*TreeNode, error) {
	n := m.tree
	for n != nil {
		switch c := bytes.Compare(key, n.key); {
		case c == 0:
			return n, nil
		case c < 0:
			l := n.left
			if l == nil {
				return nil, ErrKeyNotFound
			}
			child, err := m.loadLink(l, cost)
			if err != nil {
				return nil, err
			}
			n = child
		default:
			l := n.right
			if l == nil {
				return nil, ErrKeyNotFound
			}
			child, err := m.loadLink(l, cost)
			if err != nil {
				return nil, err
			}
			n = child
		}
	}
	return nil, ErrKeyNotFound
}

func (m *Merk) loadLink(l *Link, cost *costs.OperationCost) (*TreeNode, error) {
	if l.tree != nil {
		return l.tree, nil
	}
	tree, err := m.fetchNode(l.key, cost)
	if err != nil {
		return nil, err
	}
	l.tree = tree
	return tree, nil
}

// Get returns the value stored under key, or ErrKeyNotFound.
func (m *Merk) Get(key []byte, cost *costs.OperationCost) ([]byte, error) {
	n, err := m.getNode(key, cost)
	if err != nil {
		return nil, err
	}
	return n.value, nil
}

// GetValueHash returns the value hash stored under key.
func (m *Merk) GetValueHash(key []byte, cost *costs.OperationCost) (Hash, error) {
	n, err := m.getNode(key, cost)
	if err != nil {
		return NullHash, err
	}
	return n.valueHash, nil
}

// GetFeature returns the feature type stored under key.
func (m *Merk) GetFeature(key []byte, cost *costs.OperationCost) (Feature, error) {
	n, err := m.getNode(key, cost)
	if err != nil {
		return Feature{}, err
	}
	return n.feature, nil
}

// Has reports whether key is present.
func (m *Merk) Has(key []byte, cost *costs.OperationCost) (bool, error) {
	_, err := m.getNode(key, cost)
	if errors.Is(err, ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Apply runs a sorted, de-duplicated batch against the tree and commits
// the result: node hashes are finalized, rows written, the root pointer
// updated and every storage delta accounted.
func (m *Merk) Apply(batch Batch, aux []AuxOp, cost *costs.OperationCost) error {
	if err := ValidateBatch(batch); err != nil {
		return err
	}
	a := &applier{src: m, opts: m.opts, cost: cost, isSum: m.isSum}
	newTree, err := a.applyTo(m.tree, batch)
	if err != nil {
		return err
	}
	m.tree = newTree
	if err := commitNode(m.tree, &contextCommitter{ctx: m.ctx}, m.isSum, cost); err != nil {
		return err
	}
	for _, key := range a.deleted {
		if err := m.ctx.Delete(storage.ColData, key); err != nil {
			return err
		}
	}
	if err := m.updateRootPointer(cost); err != nil {
		return err
	}
	return m.applyAux(aux, cost)
}

func rootPointerCost(rootKey []byte) uint32 {
	return storage.PrefixSize + 1 + varintLen(storage.PrefixSize+1) +
		uint32(len(rootKey)) + varintLen(uint64(len(rootKey)))
}

// updateRootPointer persists the root pointer row when the root key
// changed. The row is exempt from storage accounting unless the tree was
// opened with BaseRootStorageIsFree disabled.
func (m *Merk) updateRootPointer(cost *costs.OperationCost) error {
	newKey := m.RootKey()
	if bytes.Equal(newKey, m.storedRootKey) {
		return nil
	}
	free := m.opts == nil || m.opts.BaseRootStorageIsFree
	switch {
	case newKey == nil:
		if err := m.ctx.Delete(storage.ColRoots, rootKeyKey); err != nil {
			return err
		}
		if !free {
			removal := costs.BasicStorageRemoval(rootPointerCost(m.storedRootKey))
			cost.StorageCost.RemovedBytes = cost.StorageCost.RemovedBytes.Add(removal)
		}
	case m.storedRootKey == nil:
		if err := m.ctx.Put(storage.ColRoots, rootKeyKey, newKey); err != nil {
			return err
		}
		if !free {
			cost.StorageCost.AddedBytes += rootPointerCost(newKey)
		}
	default:
		if err := m.ctx.Put(storage.ColRoots, rootKeyKey, newKey); err != nil {
			return err
		}
		if !free {
			oldCost := rootPointerCost(m.storedRootKey)
			newCost := rootPointerCost(newKey)
			if newCost > oldCost {
				cost.StorageCost.ReplacedBytes += newCost
				cost.StorageCost.AddedBytes += newCost - oldCost
			} else {
				cost.StorageCost.ReplacedBytes += oldCost
				if oldCost > newCost {
					removal := costs.BasicStorageRemoval(oldCost - newCost)
					cost.StorageCost.RemovedBytes = cost.StorageCost.RemovedBytes.Add(removal)
				}
			}
		}
	}
	if newKey == nil {
		m.storedRootKey = nil
	} else {
		m.storedRootKey = append([]byte(nil), newKey...)
	}
	return nil
}

func auxValueCost(key, value []byte) uint32 {
	return KeyCost(key) + uint32(len(value)) + varintLen(uint64(len(value)))
}

func (m *Merk) applyAux(aux []AuxOp, cost *costs.OperationCost) error {
	for _, op := range aux {
		if op.Deletion {
			cost.SeekCount++
			old, err := m.ctx.Get(storage.ColAux, op.Key)
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			cost.StorageLoadedBytes += uint32(len(op.Key) + len(old))
			removal := costs.BasicStorageRemoval(auxValueCost(op.Key, old))
			cost.StorageCost.RemovedBytes = cost.StorageCost.RemovedBytes.Add(removal)
			if err := m.ctx.Delete(storage.ColAux, op.Key); err != nil {
				return err
			}
			continue
		}
		cost.SeekCount++
		old, err := m.ctx.Get(storage.ColAux, op.Key)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			cost.StorageCost.AddedBytes += auxValueCost(op.Key, op.Value)
		case err != nil:
			return err
		default:
			cost.StorageLoadedBytes += uint32(len(op.Key) + len(old))
			oldCost := auxValueCost(op.Key, old)
			newCost := auxValueCost(op.Key, op.Value)
			if newCost > oldCost {
				cost.StorageCost.ReplacedBytes += newCost
				cost.StorageCost.AddedBytes += newCost - oldCost
			} else {
				cost.StorageCost.ReplacedBytes += oldCost
				if oldCost > newCost {
					removal := costs.BasicStorageRemoval(oldCost - newCost)
					cost.StorageCost.RemovedBytes = cost.StorageCost.RemovedBytes.Add(removal)
				}
			}
		}
		if err := m.ctx.Put(storage.ColAux, op.Key, op.Value); err != nil {
			return err
		}
	}
	return nil
}

// GetAux reads a value from the auxiliary column family.
func (m *Merk) GetAux(key []byte, cost *costs.OperationCost) ([]byte, error) {
	cost.SeekCount++
	v, err := m.ctx.Get(storage.ColAux, key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, err
	}
	cost.StorageLoadedBytes += uint32(len(key) + len(v))
	return v, nil
}

// Clear removes every node row of this tree and resets the root pointer,
// accounting the freed storage.
func (m *Merk) Clear(cost *costs.OperationCost) error {
	cost.SeekCount++
	it := m.ctx.RawIterator(storage.ColData)
	var keys [][]byte
	for it.SeekToFirst(); it.Valid(); it.Next() {
		key := it.Key()
		node, err := DecodeNode(key, it.Value())
		if err != nil {
			it.Close()
			return err
		}
		vc := m.opts.valueCost(node.value)
		cost.StorageLoadedBytes += LoadedCost(key, vc)
		removal := m.opts.removal(node.value, KeyCost(key)+vc+ParentHookCost(key))
		cost.StorageCost.RemovedBytes = cost.StorageCost.RemovedBytes.Add(removal)
		keys = append(keys, key)
	}
	it.Close()
	for _, key := range keys {
		if err := m.ctx.Delete(storage.ColData, key); err != nil {
			return err
		}
	}
	if m.storedRootKey != nil {
		if err := m.ctx.Delete(storage.ColRoots, rootKeyKey); err != nil {
			return err
		}
	}
	m.tree = nil
	m.storedRootKey = nil
	return nil
}

// Iterate walks the tree in key order, loading pruned links on demand.
// Iteration stops when fn returns false.
func (m *Merk) Iterate(fn func(key, value []byte, node *TreeNode) (bool, error), cost *costs.OperationCost) error {
	_, err := m.iterateNode(m.tree, fn, cost)
	return err
}

func (m *Merk) iterateNode(n *TreeNode, fn func(key, value []byte, node *TreeNode) (bool, error), cost *costs.OperationCost) (bool, error) {
	if n == nil {
		return true, nil
	}
	if n.left != nil {
		left, err := m.loadLink(n.left, cost)
		if err != nil {
			return false, err
		}
		cont, err := m.iterateNode(left, fn, cost)
		if err != nil || !cont {
			return cont, err
		}
	}
	cont, err := fn(n.key, n.value, n)
	if err != nil || !cont {
		return cont, err
	}
	if n.right != nil {
		right, err := m.loadLink(n.right, cost)
		if err != nil {
			return false, err
		}
		return m.iterateNode(right, fn, cost)
	}
	return true, nil
}

// ValueHash exposes the value hashing primitive to the composition layer.
func ValueHash(value []byte, cost *costs.OperationCost) Hash {
	return hashValue(value, cost)
}

// SumTreeValueHash folds a nested sum tree's root hash and aggregate into
// the value hash its parent element carries.
func SumTreeValueHash(root Hash, sum int64, cost *costs.OperationCost) Hash {
	return hashLayered(root, sum, cost)
}
