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
	"sort"

	"github.com/grovedb/grovedb/costs"
)

// fetcher resolves pruned links into loaded nodes.
type fetcher interface {
	fetch(link *Link, cost *costs.OperationCost) (*TreeNode, error)
}

// panicSource is a fetcher for fully loaded trees; reaching it means the
// walker followed a link that should have been in memory.
type panicSource struct{}

func (panicSource) fetch(*Link, *costs.OperationCost) (*TreeNode, error) {
	panic("merk: fetch on fully loaded tree")
}

// applier threads one batch application through the tree.
type applier struct {
	src     fetcher
	opts    *Options
	cost    *costs.OperationCost
	isSum   bool
	deleted [][]byte
}

func (a *applier) load(l *Link) (*TreeNode, error) {
	if l == nil {
		return nil, nil
	}
	if l.tree != nil {
		return l.tree, nil
	}
	tree, err := a.src.fetch(l, a.cost)
	if err != nil {
		return nil, err
	}
	l.tree = tree
	return tree, nil
}

// applyTo transforms the subtree rooted at node with a sorted batch,
// returning the new subtree root.
func (a *applier) applyTo(node *TreeNode, batch Batch) (*TreeNode, error) {
	if len(batch) == 0 {
		return node, nil
	}
	if node == nil {
		return a.build(batch)
	}
	return a.apply(node, batch)
}

// build constructs a balanced subtree from scratch: the middle operation
// becomes the root, the halves become its children.
func (a *applier) build(batch Batch) (*TreeNode, error) {
	if len(batch) == 0 {
		return nil, nil
	}
	mid := len(batch) / 2
	op := batch[mid]
	if op.isDelete() {
		return nil, ErrDeleteNonExistent
	}
	node, err := a.newNode(&op)
	if err != nil {
		return nil, err
	}
	left, err := a.build(batch[:mid])
	if err != nil {
		return nil, err
	}
	right, err := a.build(batch[mid+1:])
	if err != nil {
		return nil, err
	}
	node.attach(true, left)
	node.attach(false, right)
	return node, nil
}

func (a *applier) newNode(op *Op) (*TreeNode, error) {
	valueHash, ownSum, feature, err := a.opValueHash(op)
	if err != nil {
		return nil, err
	}
	vc := op.ValueCost
	if vc == 0 {
		vc = a.opts.valueCost(op.Value)
	}
	a.cost.StorageCost.AddedBytes += KeyCost(op.Key) + vc + ParentHookCost(op.Key)
	if a.isSum {
		feature.Kind = SummedMerkNode
	}
	n := NewTreeNode(op.Key, op.Value, valueHash, feature, ownSum)
	n.oldValueCost = vc
	return n, nil
}

func (a *applier) opValueHash(op *Op) (Hash, int64, Feature, error) {
	switch op.Type {
	case OpPut:
		return hashValue(op.Value, a.cost), 0, BasicFeature(), nil
	case OpPutCombinedRef:
		vh := combineHash(hashValue(op.Value, a.cost), op.RefValueHash, a.cost)
		return vh, 0, BasicFeature(), nil
	case OpPutLayered:
		return op.LayeredHash, op.Sum, BasicFeature(), nil
	case OpPutSum:
		return hashValue(op.Value, a.cost), op.Sum, SummedFeature(op.Sum), nil
	default:
		return NullHash, 0, BasicFeature(), ErrDeleteNonExistent
	}
}

// apply dispatches a batch against a loaded node.
func (a *applier) apply(node *TreeNode, batch Batch) (*TreeNode, error) {
	idx := sort.Search(len(batch), func(i int) bool {
		return bytes.Compare(batch[i].Key, node.key) >= 0
	})
	found := idx < len(batch) && bytes.Equal(batch[idx].Key, node.key)

	if found && batch[idx].isDelete() {
		a.accountRemoval(node)
		merged, err := a.remove(node)
		if err != nil {
			return nil, err
		}
		rest := make(Batch, 0, len(batch)-1)
		rest = append(rest, batch[:idx]...)
		rest = append(rest, batch[idx+1:]...)
		return a.applyTo(merged, rest)
	}

	if found {
		if err := a.putValue(node, &batch[idx]); err != nil {
			return nil, err
		}
	}

	leftBatch := batch[:idx]
	rightBatch := batch[idx:]
	if found {
		rightBatch = batch[idx+1:]
	}

	if len(leftBatch) > 0 {
		left, err := a.load(node.left)
		if err != nil {
			return nil, err
		}
		newLeft, err := a.applyTo(left, leftBatch)
		if err != nil {
			return nil, err
		}
		node.attach(true, newLeft)
	}
	if len(rightBatch) > 0 {
		right, err := a.load(node.right)
		if err != nil {
			return nil, err
		}
		newRight, err := a.applyTo(right, rightBatch)
		if err != nil {
			return nil, err
		}
		node.attach(false, newRight)
	}
	return a.balance(node)
}

// putValue replaces a loaded node's value in place.
func (a *applier) putValue(node *TreeNode, op *Op) error {
	valueHash, ownSum, feature, err := a.opValueHash(op)
	if err != nil {
		return err
	}
	newCost := op.ValueCost
	if newCost == 0 {
		newCost = a.opts.valueCost(op.Value)
	}
	oldCost := node.oldValueCost
	if newCost > oldCost {
		a.cost.StorageCost.ReplacedBytes += newCost
		a.cost.StorageCost.AddedBytes += newCost - oldCost
	} else {
		a.cost.StorageCost.ReplacedBytes += oldCost
		if oldCost > newCost {
			removal := a.opts.removal(node.value, oldCost-newCost)
			a.cost.StorageCost.RemovedBytes = a.cost.StorageCost.RemovedBytes.Add(removal)
		}
	}
	node.value = op.Value
	node.valueHash = valueHash
	node.ownSum = ownSum
	if feature.Kind == SummedMerkNode || a.isSum {
		node.feature.Kind = SummedMerkNode
	}
	node.oldValueCost = newCost
	node.kvDirty = true
	node.markDirty()
	return nil
}

func (a *applier) accountRemoval(node *TreeNode) {
	removed := KeyCost(node.key) + node.oldValueCost + ParentHookCost(node.key)
	removal := a.opts.removal(node.value, removed)
	a.cost.StorageCost.RemovedBytes = a.cost.StorageCost.RemovedBytes.Add(removal)
	a.deleted = append(a.deleted, node.key)
}

// remove detaches a loaded node from the tree, merging its children. With
// two children, the in-order neighbour from the taller side is promoted
// into the hole.
func (a *applier) remove(node *TreeNode) (*TreeNode, error) {
	hasLeft := node.left != nil
	hasRight := node.right != nil

	switch {
	case hasLeft && hasRight:
		promoteLeft := node.childHeight(true) > node.childHeight(false)
		child, err := a.load(node.Link(promoteLeft))
		if err != nil {
			return nil, err
		}
		edge, rest, err := a.removeEdge(child, !promoteLeft)
		if err != nil {
			return nil, err
		}
		edge.attach(promoteLeft, rest)
		other, err := a.load(node.Link(!promoteLeft))
		if err != nil {
			return nil, err
		}
		edge.attach(!promoteLeft, other)
		return a.balance(edge)
	case hasLeft:
		return a.load(node.left)
	case hasRight:
		return a.load(node.right)
	default:
		return nil, nil
	}
}

// removeEdge walks towards one side of a subtree and detaches the edge
// node, returning it along with the remaining subtree.
func (a *applier) removeEdge(node *TreeNode, towardLeft bool) (edge, rest *TreeNode, err error) {
	if node.Link(towardLeft) == nil {
		rest, err = a.load(node.Link(!towardLeft))
		if err != nil {
			return nil, nil, err
		}
		node.setLink(!towardLeft, nil)
		node.markDirty()
		return node, rest, nil
	}
	child, err := a.load(node.Link(towardLeft))
	if err != nil {
		return nil, nil, err
	}
	edge, newChild, err := a.removeEdge(child, towardLeft)
	if err != nil {
		return nil, nil, err
	}
	node.attach(towardLeft, newChild)
	rest, err = a.balance(node)
	if err != nil {
		return nil, nil, err
	}
	return edge, rest, nil
}

// balance restores the AVL invariant at node after its children changed.
// Children are assumed internally balanced.
func (a *applier) balance(node *TreeNode) (*TreeNode, error) {
	for {
		bf := node.balanceFactor()
		if bf >= -1 && bf <= 1 {
			return node, nil
		}
		heavyLeft := bf < 0
		child, err := a.load(node.Link(heavyLeft))
		if err != nil {
			return nil, err
		}
		// Double rotation when the heavy child leans the other way.
		childBF := child.balanceFactor()
		if (heavyLeft && childBF > 0) || (!heavyLeft && childBF < 0) {
			if _, err := a.load(child.Link(!heavyLeft)); err != nil {
				return nil, err
			}
			rotated := child.rotate(heavyLeft)
			node.attach(heavyLeft, rotated)
		}
		if _, err := a.load(node.Link(heavyLeft)); err != nil {
			return nil, err
		}
		node = node.rotate(!heavyLeft)
		// The demoted node may still be uneven after a deep merge;
		// rebalance it before the next round.
		demoted, err := a.load(node.Link(!heavyLeft))
		if err != nil {
			return nil, err
		}
		balanced, err := a.balance(demoted)
		if err != nil {
			return nil, err
		}
		if balanced != demoted {
			node.attach(!heavyLeft, balanced)
		}
	}
}
