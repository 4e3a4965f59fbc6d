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
	"math"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/grovedb/grovedb/costs"
	"github.com/grovedb/grovedb/storage"
)

// MinTrunkHeight is the minimum number of layers a trunk is guaranteed to
// have before the tree is split into multiple chunks. A tree shorter than
// double this height ships as one leaf chunk.
const MinTrunkHeight = 5

var (
	// ErrChunkLeafAbridged is returned when a leaf chunk contains
	// abridged nodes.
	ErrChunkLeafAbridged = errors.New("merk: leaf chunks must contain full subtree")
	// ErrChunkHeightProof is returned when a trunk's height proof
	// contains abridged nodes.
	ErrChunkHeightProof = errors.New("merk: height proof must only contain kv and kvhash nodes")
	// ErrChunkTrunkShape is returned when a trunk's node layout does not
	// match its height.
	ErrChunkTrunkShape = errors.New("merk: malformed trunk chunk")
)

type chunker struct {
	m    *Merk
	cost *costs.OperationCost
}

func (c *chunker) load(l *Link) (*TreeNode, error) {
	if l == nil {
		return nil, nil
	}
	if c.m != nil {
		return c.m.loadLink(l, c.cost)
	}
	if l.tree == nil {
		return nil, ErrInvalidNodeEncoding
	}
	return l.tree, nil
}

// CreateTrunkProof walks the tree and produces the top chunk. The boolean
// reports whether leaf chunks follow: false means the proof carries the
// entire tree.
func (m *Merk) CreateTrunkProof(cost *costs.OperationCost) ([]ProofOp, bool, error) {
	if m.tree == nil {
		return nil, false, nil
	}
	c := &chunker{m: m, cost: cost}
	return c.createTrunkProof(m.tree)
}

func (c *chunker) createTrunkProof(root *TreeNode) ([]ProofOp, bool, error) {
	var proof []ProofOp
	trunkHeight, err := c.heightProof(&proof, root, 1)
	if err != nil {
		return nil, false, err
	}
	if trunkHeight < MinTrunkHeight {
		proof = nil
		if err := c.trunk(&proof, root, math.MaxInt, true); err != nil {
			return nil, false, err
		}
		return proof, false, nil
	}
	if err := c.trunk(&proof, root, trunkHeight, true); err != nil {
		return nil, false, err
	}
	return proof, true, nil
}

// heightProof walks the left edge pushing kv hashes of everything below
// the trunk, plus the hashes of their right siblings. The result doubles
// as a proof of the tree's height.
func (c *chunker) heightProof(proof *[]ProofOp, n *TreeNode, depth int) (int, error) {
	left, err := c.load(n.left)
	if err != nil {
		return 0, err
	}
	var trunkHeight int
	if left != nil {
		trunkHeight, err = c.heightProof(proof, left, depth+1)
		if err != nil {
			return 0, err
		}
	} else {
		trunkHeight = depth / 2
	}
	if depth > trunkHeight {
		*proof = append(*proof, ProofOp{Op: OpPush, Node: &ProofNode{Type: NodeKVHash, Hash: n.kvHash}})
		if left != nil {
			*proof = append(*proof, ProofOp{Op: OpParent})
		}
		if n.right != nil {
			*proof = append(*proof, ProofOp{Op: OpPush, Node: &ProofNode{Type: NodeHash, Hash: n.right.Hash()}})
			*proof = append(*proof, ProofOp{Op: OpChild})
		}
	}
	return trunkHeight, nil
}

// trunk pushes full nodes down to the remaining depth, abridging
// out-of-trunk children as hashes. The leftmost path is left to the height
// proof already on the stack.
func (c *chunker) trunk(proof *[]ProofOp, n *TreeNode, remainingDepth int, leftmost bool) error {
	if remainingDepth == 0 {
		if leftmost {
			return nil
		}
		*proof = append(*proof, ProofOp{Op: OpPush, Node: &ProofNode{Type: NodeHash, Hash: n.hash}})
		return nil
	}
	hasLeft := n.left != nil
	if hasLeft {
		left, err := c.load(n.left)
		if err != nil {
			return err
		}
		if err := c.trunk(proof, left, remainingDepth-1, leftmost); err != nil {
			return err
		}
	}
	*proof = append(*proof, ProofOp{Op: OpPush, Node: &ProofNode{
		Type:      NodeKVValueHashFeatureType,
		Key:       n.key,
		Value:     n.value,
		ValueHash: n.valueHash,
		Feature:   n.feature,
	}})
	if hasLeft {
		*proof = append(*proof, ProofOp{Op: OpParent})
	}
	if n.right != nil {
		right, err := c.load(n.right)
		if err != nil {
			return err
		}
		if err := c.trunk(proof, right, remainingDepth-1, false); err != nil {
			return err
		}
		*proof = append(*proof, ProofOp{Op: OpChild})
	}
	return nil
}

// getNextChunk builds a leaf chunk from a raw row iterator, stopping at
// endKey (exclusive; nil means drain the iterator).
func getNextChunk(it storage.RawIterator, endKey []byte, opts *Options, cost *costs.OperationCost) ([]ProofOp, error) {
	var chunk []ProofOp
	var stack [][]byte
	cost.SeekCount++
	for it.Valid() {
		key := it.Key()
		if endKey != nil && bytes.Compare(key, endKey) >= 0 {
			break
		}
		node, err := DecodeNode(key, it.Value())
		if err != nil {
			return nil, err
		}
		cost.StorageLoadedBytes += LoadedCost(key, opts.valueCost(node.value))
		chunk = append(chunk, ProofOp{Op: OpPush, Node: &ProofNode{
			Type:      NodeKVValueHashFeatureType,
			Key:       node.key,
			Value:     node.value,
			ValueHash: node.valueHash,
			Feature:   node.feature,
		}})
		if node.left != nil {
			chunk = append(chunk, ProofOp{Op: OpParent})
		}
		if node.right != nil {
			stack = append(stack, node.right.key)
		} else {
			for len(stack) > 0 {
				top := stack[len(stack)-1]
				if bytes.Compare(key, top) < 0 {
					break
				}
				stack = stack[:len(stack)-1]
				chunk = append(chunk, ProofOp{Op: OpChild})
			}
		}
		it.Next()
	}
	return chunk, nil
}

func isKVFamily(t ProofNodeType) bool {
	switch t {
	case NodeKV, NodeKVValueHash, NodeKVRefValueHash, NodeKVValueHashFeatureType:
		return true
	default:
		return false
	}
}

// VerifyLeafChunk executes a leaf chunk, requiring full nodes throughout
// and the expected subtree hash.
func VerifyLeafChunk(ops []ProofOp, expectedHash Hash, cost *costs.OperationCost) (*ProofTree, error) {
	tree, err := ExecuteProof(ops, func(n *ProofNode) error {
		if !isKVFamily(n.Type) {
			return ErrChunkLeafAbridged
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if tree.Hash(cost) != expectedHash {
		return nil, ErrProofHashMismatch
	}
	return tree, nil
}

// VerifyTrunkChunk executes a trunk chunk, checks its height proof and
// shape, and returns the reconstructed tree along with the proven height.
func VerifyTrunkChunk(ops []ProofOp, cost *costs.OperationCost) (*ProofTree, int, error) {
	kvOnly := true
	tree, err := ExecuteProof(ops, func(n *ProofNode) error {
		kvOnly = kvOnly && isKVFamily(n.Type)
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	height, err := verifyHeightProof(tree)
	if err != nil {
		return nil, 0, err
	}
	trunkHeight := height / 2
	if trunkHeight < MinTrunkHeight {
		if !kvOnly {
			return nil, 0, ErrChunkLeafAbridged
		}
	} else {
		if err := verifyCompleteness(tree, trunkHeight, true); err != nil {
			return nil, 0, err
		}
	}
	return tree, height, nil
}

// verifyHeightProof checks the leftmost path contains no opaque hashes and
// returns its length.
func verifyHeightProof(t *ProofTree) (int, error) {
	child := t.Child(true)
	if child == nil {
		return 1, nil
	}
	if child.Node.Type == NodeHash {
		return 0, ErrChunkHeightProof
	}
	below, err := verifyHeightProof(child)
	if err != nil {
		return 0, err
	}
	return below + 1, nil
}

// verifyCompleteness checks the trunk reveals full nodes down to its
// height, with hashes at the bottom except on the leftmost path, which
// must end in a kv hash.
func verifyCompleteness(t *ProofTree, remainingDepth int, leftmost bool) error {
	if remainingDepth > 0 {
		if !isKVFamily(t.Node.Type) {
			return ErrChunkTrunkShape
		}
		if child := t.Child(true); child != nil {
			if err := verifyCompleteness(child, remainingDepth-1, leftmost); err != nil {
				return err
			}
		}
		if child := t.Child(false); child != nil {
			if err := verifyCompleteness(child, remainingDepth-1, false); err != nil {
				return err
			}
		}
		return nil
	}
	if !leftmost {
		if t.Node.Type != NodeHash {
			return ErrChunkTrunkShape
		}
		return nil
	}
	if t.Node.Type != NodeKVHash {
		return ErrChunkTrunkShape
	}
	return nil
}

// chunkRegion is one abridged part of a trunk: a key interval plus the
// hash its leaf chunk must reproduce.
type chunkRegion struct {
	lo, hi []byte
	hash   Hash
}

// ChunkProducer cuts one tree into a trunk chunk plus one leaf chunk per
// abridged region, for state sync.
type ChunkProducer struct {
	m       *Merk
	trunk   []ProofOp
	regions []chunkRegion
}

// NewChunkProducer builds the trunk and indexes the abridged regions.
func NewChunkProducer(m *Merk, cost *costs.OperationCost) (*ChunkProducer, error) {
	trunk, hasMore, err := m.CreateTrunkProof(cost)
	if err != nil {
		return nil, err
	}
	p := &ChunkProducer{m: m, trunk: trunk}
	if !hasMore {
		return p, nil
	}
	tree, err := ExecuteProof(trunk, nil)
	if err != nil {
		return nil, err
	}
	tree.Hash(cost)
	p.collectRegions(tree, nil, nil, cost)
	return p, nil
}

func (p *ChunkProducer) collectRegions(t *ProofTree, lo, hi []byte, cost *costs.OperationCost) {
	switch t.Node.Type {
	case NodeHash:
		p.regions = append(p.regions, chunkRegion{lo: lo, hi: hi, hash: t.Node.Hash})
	case NodeKVHash:
		// The height-proof chain: one region covering its whole span.
		p.regions = append(p.regions, chunkRegion{lo: lo, hi: hi, hash: t.Hash(cost)})
	default:
		if t.Left != nil {
			p.collectRegions(t.Left, lo, t.Node.Key, cost)
		}
		if t.Right != nil {
			p.collectRegions(t.Right, t.Node.Key, hi, cost)
		}
	}
}

// Len returns the number of chunks: the trunk plus one per abridged
// region.
func (p *ChunkProducer) Len() int {
	return 1 + len(p.regions)
}

// Chunk returns chunk i. Chunk 0 is the trunk; the rest are leaf chunks
// in left-to-right order.
func (p *ChunkProducer) Chunk(i int, cost *costs.OperationCost) ([]ProofOp, error) {
	if i == 0 {
		return p.trunk, nil
	}
	if i < 1 || i > len(p.regions) {
		return nil, errors.New("merk: chunk index out of range")
	}
	r := p.regions[i-1]
	it := p.m.ctx.RawIterator(storage.ColData)
	defer it.Close()
	if r.lo == nil {
		it.SeekToFirst()
	} else {
		it.Seek(r.lo)
		if it.Valid() && bytes.Equal(it.Key(), r.lo) {
			it.Next()
		}
	}
	return getNextChunk(it, r.hi, p.m.opts, cost)
}

// ExpectedHash returns the hash leaf chunk i must verify against.
func (p *ChunkProducer) ExpectedHash(i int) (Hash, error) {
	if i < 1 || i > len(p.regions) {
		return NullHash, errors.New("merk: chunk index out of range")
	}
	return p.regions[i-1].hash, nil
}

// AllChunks produces every chunk concurrently.
func (p *ChunkProducer) AllChunks(cost *costs.OperationCost) ([][]ProofOp, error) {
	out := make([][]ProofOp, p.Len())
	var mu sync.Mutex
	var g errgroup.Group
	for i := 0; i < p.Len(); i++ {
		i := i
		g.Go(func() error {
			var chunkCost costs.OperationCost
			chunk, err := p.Chunk(i, &chunkCost)
			if err != nil {
				return err
			}
			mu.Lock()
			out[i] = chunk
			cost.Add(&chunkCost)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
