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
	"github.com/grovedb/grovedb/costs"

	"github.com/grovedb/grovedb/storage"
)

// Committer decides what happens to each finalized node of a freshly
// applied tree.
type Committer interface {
	// Write is called once per modified node, children first, after the
	// node's hashes are final.
	Write(n *TreeNode) error
	// Prune reports whether to drop the node's left and right in-memory
	// children after writing.
	Prune(n *TreeNode) (left, right bool)
}

// NoopCommit finalizes hashes without writing anywhere and keeps the whole
// tree in memory.
type NoopCommit struct{}

// Write implements Committer.
func (NoopCommit) Write(*TreeNode) error { return nil }

// Prune implements Committer.
func (NoopCommit) Prune(*TreeNode) (bool, bool) { return false, false }

// contextCommitter writes node rows into a storage context and prunes
// committed children.
type contextCommitter struct {
	ctx storage.Context
}

func (c *contextCommitter) Write(n *TreeNode) error {
	return c.ctx.Put(storage.ColData, n.key, EncodeNode(n))
}

func (c *contextCommitter) Prune(*TreeNode) (bool, bool) { return true, true }

func checkedAdd(a, b int64) (int64, bool) {
	sum := a + b
	if (b > 0 && sum < a) || (b < 0 && sum > a) {
		return 0, false
	}
	return sum, true
}

// commitNode finalizes a node bottom-up: aggregates sums, refreshes links,
// recomputes hashes, hands the row to the committer and optionally prunes.
func commitNode(n *TreeNode, c Committer, isSum bool, cost *costs.OperationCost) error {
	if n == nil || !n.dirty {
		return nil
	}
	for _, left := range []bool{true, false} {
		l := n.Link(left)
		if l == nil || l.tree == nil {
			continue
		}
		if err := commitNode(l.tree, c, isSum, cost); err != nil {
			return err
		}
		n.refreshLink(left)
	}
	if isSum {
		sum, ok := checkedAdd(n.ownSum, n.left.Sum())
		if ok {
			sum, ok = checkedAdd(sum, n.right.Sum())
		}
		if !ok {
			return ErrSumOverflow
		}
		n.feature = SummedFeature(sum)
	}
	n.recomputeHashes(cost)
	if err := c.Write(n); err != nil {
		return err
	}
	n.persisted = true
	pruneLeft, pruneRight := c.Prune(n)
	if pruneLeft && n.left != nil {
		n.left.tree = nil
	}
	if pruneRight && n.right != nil {
		n.right.tree = nil
	}
	return nil
}
