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

// Package merk implements one balanced authenticated tree: an AVL tree
// whose every node commits to its key, value and children through a chain
// of Blake2b digests, stored as rows of an ordered key-value backend. A
// tree has a single root hash; a batch of sorted operations transforms one
// committed state into the next while reporting byte-exact storage costs.
package merk

import (
	"errors"

	"github.com/grovedb/grovedb/costs"
)

var (
	// ErrKeyNotFound is returned when a lookup misses.
	ErrKeyNotFound = errors.New("merk: key not found")
	// ErrDeleteNonExistent is returned when a batch deletes an absent key.
	ErrDeleteNonExistent = errors.New("merk: trying to delete non-existent key")
	// ErrBatchUnsorted is returned when a batch is not in ascending key
	// order or contains duplicate keys.
	ErrBatchUnsorted = errors.New("merk: batch keys must be unique and ascending")
	// ErrSumOverflow is returned when a sum tree aggregate leaves the
	// signed 64-bit range.
	ErrSumOverflow = errors.New("merk: sum tree aggregation overflow")
	// ErrInvalidNodeEncoding is returned when a stored node row cannot be
	// decoded.
	ErrInvalidNodeEncoding = errors.New("merk: invalid node encoding")
)

// Link is a parent's reference to a child subtree. The child may be loaded
// in memory or pruned, in which case only its key, hash, heights and sum
// survive here.
type Link struct {
	key          []byte
	hash         Hash
	childHeights [2]uint8
	sum          int64
	// tree is the in-memory child; nil when pruned.
	tree *TreeNode
	// pending marks a child modified since the last commit; its hash
	// field is stale until then.
	pending bool
}

// height of the linked subtree.
func (l *Link) height() uint8 {
	if l == nil {
		return 0
	}
	if l.tree != nil {
		return l.tree.height()
	}
	return 1 + maxU8(l.childHeights[0], l.childHeights[1])
}

// Hash returns the child's committed hash. Must not be called on a pending
// link.
func (l *Link) Hash() Hash {
	if l == nil {
		return NullHash
	}
	return l.hash
}

// Key returns the child's key.
func (l *Link) Key() []byte {
	return l.key
}

// Sum returns the child subtree's aggregate.
func (l *Link) Sum() int64 {
	if l == nil {
		return 0
	}
	return l.sum
}

func maxU8(a, b uint8) uint8 {
	if a > b {
		return a
	}
	return b
}

// TreeNode is one node of the tree.
type TreeNode struct {
	key       []byte
	value     []byte
	feature   Feature
	ownSum    int64
	valueHash Hash
	kvHash    Hash
	hash      Hash
	left      *Link
	right     *Link

	// dirty means the node hash must be recomputed before use.
	dirty bool
	// kvDirty means the kv hash must be recomputed too.
	kvDirty bool
	// persisted means a row for this key exists in storage.
	persisted bool
	// oldValueCost is the accounted footprint of the stored value, used
	// when the value is replaced or removed.
	oldValueCost uint32
}

// NewTreeNode builds a fresh, uncommitted node.
func NewTreeNode(key, value []byte, valueHash Hash, feature Feature, ownSum int64) *TreeNode {
	return &TreeNode{
		key:       key,
		value:     value,
		feature:   feature,
		ownSum:    ownSum,
		valueHash: valueHash,
		dirty:     true,
		kvDirty:   true,
	}
}

// Key returns the node's key.
func (n *TreeNode) Key() []byte { return n.key }

// Value returns the node's value bytes.
func (n *TreeNode) Value() []byte { return n.value }

// ValueHash returns the node's value hash.
func (n *TreeNode) ValueHash() Hash { return n.valueHash }

// KVHash returns the node's kv hash.
func (n *TreeNode) KVHash() Hash { return n.kvHash }

// NodeHash returns the committed node hash.
func (n *TreeNode) NodeHash() Hash { return n.hash }

// Feature returns the node's feature type.
func (n *TreeNode) Feature() Feature { return n.feature }

// Link returns the left or right child link.
func (n *TreeNode) Link(left bool) *Link {
	if left {
		return n.left
	}
	return n.right
}

func (n *TreeNode) setLink(left bool, l *Link) {
	if left {
		n.left = l
	} else {
		n.right = l
	}
}

func (n *TreeNode) childHeight(left bool) uint8 {
	return n.Link(left).height()
}

// height is 1 plus the taller child's height.
func (n *TreeNode) height() uint8 {
	return 1 + maxU8(n.childHeight(true), n.childHeight(false))
}

// Height exposes the node's height.
func (n *TreeNode) Height() uint8 { return n.height() }

// balanceFactor is right height minus left height.
func (n *TreeNode) balanceFactor() int {
	return int(n.childHeight(false)) - int(n.childHeight(true))
}

// markDirty invalidates the node hash.
func (n *TreeNode) markDirty() {
	n.dirty = true
}

// attach links a subtree (may be nil) as the left or right child.
func (n *TreeNode) attach(left bool, child *TreeNode) {
	if child == nil {
		n.setLink(left, nil)
		n.markDirty()
		return
	}
	n.setLink(left, &Link{
		key:          child.key,
		childHeights: [2]uint8{child.childHeight(true), child.childHeight(false)},
		sum:          child.feature.Sum,
		tree:         child,
		pending:      true,
	})
	n.markDirty()
}

// refreshLink re-derives a link's metadata from its loaded child. Called on
// commit once the child's hash is final.
func (n *TreeNode) refreshLink(left bool) {
	l := n.Link(left)
	if l == nil || l.tree == nil {
		return
	}
	l.key = l.tree.key
	l.hash = l.tree.hash
	l.childHeights = [2]uint8{l.tree.childHeight(true), l.tree.childHeight(false)}
	l.sum = l.tree.feature.Sum
	l.pending = false
}

// rotate performs a single rotation towards the given side: the opposite
// child is promoted over the node. The opposite child must be loaded.
func (n *TreeNode) rotate(left bool) *TreeNode {
	child := n.Link(!left).tree
	grandchild := child.Link(left)
	if grandchild != nil && grandchild.tree != nil {
		n.attach(!left, grandchild.tree)
	} else if grandchild != nil {
		n.setLink(!left, grandchild)
		n.markDirty()
	} else {
		n.setLink(!left, nil)
		n.markDirty()
	}
	child.attach(left, n)
	return child
}

// walkLeftEdge descends loaded left links, returning the depth of the
// leftmost loaded node. Used by in-memory tests.
func (n *TreeNode) walkLeftEdge() int {
	depth := 1
	for l := n.left; l != nil && l.tree != nil; l = l.tree.left {
		depth++
	}
	return depth
}

// recomputeHashes rebuilds the kv hash (when stale) and node hash from the
// links. Children hashes must already be final.
func (n *TreeNode) recomputeHashes(cost *costs.OperationCost) {
	if n.kvDirty {
		n.kvHash = hashKV(n.key, n.valueHash, cost)
		n.kvDirty = false
	}
	n.hash = hashNode(n.kvHash, n.left.Hash(), n.right.Hash(), cost)
	n.dirty = false
}
