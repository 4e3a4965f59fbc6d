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

	"github.com/grovedb/grovedb/costs"
)

// ProofTree is a partial tree reconstructed from a proof stream.
type ProofTree struct {
	Node  *ProofNode
	Left  *ProofTree
	Right *ProofTree

	hash     Hash
	hashDone bool
}

// Child returns the left or right subtree.
func (t *ProofTree) Child(left bool) *ProofTree {
	if left {
		return t.Left
	}
	return t.Right
}

// Hash computes (and caches) the subtree's commitment.
func (t *ProofTree) Hash(cost *costs.OperationCost) Hash {
	if t.hashDone {
		return t.hash
	}
	var left, right Hash
	if t.Left != nil {
		left = t.Left.Hash(cost)
	}
	if t.Right != nil {
		right = t.Right.Hash(cost)
	}
	switch t.Node.Type {
	case NodeHash:
		t.hash = t.Node.Hash
	case NodeKVHash:
		t.hash = hashNode(t.Node.Hash, left, right, cost)
	case NodeKV:
		vh := hashValue(t.Node.Value, cost)
		kv := hashKV(t.Node.Key, vh, cost)
		t.hash = hashNode(kv, left, right, cost)
	default:
		kv := hashKV(t.Node.Key, t.Node.ValueHash, cost)
		t.hash = hashNode(kv, left, right, cost)
	}
	t.hashDone = true
	return t.hash
}

// VisitNodes walks the tree in order, calling fn on every node.
func (t *ProofTree) VisitNodes(fn func(*ProofNode)) {
	if t == nil {
		return
	}
	t.Left.VisitNodes(fn)
	fn(t.Node)
	t.Right.VisitNodes(fn)
}

// ExecuteProof runs the opcode stream through the stack machine,
// reconstructing the proof tree. The visit callback observes every pushed
// node and may reject it.
func ExecuteProof(ops []ProofOp, visit func(*ProofNode) error) (*ProofTree, error) {
	var stack []*ProofTree
	pop := func() (*ProofTree, bool) {
		if len(stack) == 0 {
			return nil, false
		}
		t := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		return t, true
	}
	for i := range ops {
		switch ops[i].Op {
		case OpPush:
			if ops[i].Node == nil {
				return nil, ErrProofMalformed
			}
			if visit != nil {
				if err := visit(ops[i].Node); err != nil {
					return nil, err
				}
			}
			stack = append(stack, &ProofTree{Node: ops[i].Node})
		case OpParent:
			parent, ok1 := pop()
			child, ok2 := pop()
			if !ok1 || !ok2 || parent.Left != nil {
				return nil, ErrProofMalformed
			}
			parent.Left = child
			stack = append(stack, parent)
		case OpChild:
			child, ok1 := pop()
			parent, ok2 := pop()
			if !ok1 || !ok2 || parent.Right != nil {
				return nil, ErrProofMalformed
			}
			parent.Right = child
			stack = append(stack, parent)
		default:
			return nil, ErrProofMalformed
		}
	}
	if len(stack) != 1 {
		return nil, ErrProofMalformed
	}
	return stack[0], nil
}

// ProvedKeyValue is one query result carried by a verified proof.
type ProvedKeyValue struct {
	Key       []byte
	Value     []byte
	ValueHash Hash
	Feature   Feature
}

// VerifyQueryProof executes a proof against the expected root hash and
// extracts the results the query selects. It fails when the proof hides
// any part of the keyspace the query touches.
func VerifyQueryProof(ops []ProofOp, expectedHash Hash, query *Query, cost *costs.OperationCost) ([]ProvedKeyValue, error) {
	if len(ops) == 0 {
		if expectedHash == NullHash {
			return nil, nil
		}
		return nil, ErrProofHashMismatch
	}
	tree, err := ExecuteProof(ops, nil)
	if err != nil {
		return nil, err
	}
	if tree.Hash(cost) != expectedHash {
		return nil, ErrProofHashMismatch
	}

	// Flatten the in-order node sequence; keys must be strictly
	// ascending across revealed nodes, and abridged gaps must not cover
	// anything the query selects.
	type slot struct {
		node *ProofNode
	}
	var sequence []slot
	tree.VisitNodes(func(n *ProofNode) {
		sequence = append(sequence, slot{node: n})
	})

	var results []ProvedKeyValue
	var lastKey []byte
	haveLast := false
	for i, s := range sequence {
		n := s.node
		switch n.Type {
		case NodeHash, NodeKVHash:
			// Opaque gap: bounded by the neighbouring revealed
			// keys. Nothing the query selects may fall inside.
			var lo, hi []byte
			if haveLast {
				lo = lastKey
			}
			for j := i + 1; j < len(sequence); j++ {
				if revealsKey(sequence[j].node.Type) {
					hi = sequence[j].node.Key
					break
				}
			}
			for _, item := range query.items {
				if item.overlapsOpenInterval(lo, hi) {
					return nil, ErrProofIncomplete
				}
			}
		default:
			if haveLast && bytes.Compare(lastKey, n.Key) >= 0 {
				return nil, ErrProofMalformed
			}
			lastKey = n.Key
			haveLast = true
			if query.Matches(n.Key) {
				if n.Type == NodeKVDigest {
					return nil, ErrProofIncomplete
				}
				vh := n.ValueHash
				if n.Type == NodeKV {
					vh = hashValue(n.Value, cost)
				}
				results = append(results, ProvedKeyValue{
					Key:       n.Key,
					Value:     n.Value,
					ValueHash: vh,
					Feature:   n.Feature,
				})
			}
		}
	}
	return results, nil
}

func revealsKey(t ProofNodeType) bool {
	switch t {
	case NodeKV, NodeKVValueHash, NodeKVDigest, NodeKVRefValueHash, NodeKVValueHashFeatureType:
		return true
	default:
		return false
	}
}
