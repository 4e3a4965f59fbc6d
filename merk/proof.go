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
	"sort"

	"github.com/grovedb/grovedb/costs"
)

// QueryItemType enumerates the shapes a query item can take.
type QueryItemType uint8

const (
	// QueryKey selects one exact key.
	QueryKey QueryItemType = iota
	// QueryRange selects start <= k < end.
	QueryRange
	// QueryRangeInclusive selects start <= k <= end.
	QueryRangeInclusive
	// QueryRangeFull selects every key.
	QueryRangeFull
	// QueryRangeAfter selects k > start.
	QueryRangeAfter
	// QueryRangeFrom selects k >= start.
	QueryRangeFrom
	// QueryRangeTo selects k < end.
	QueryRangeTo
	// QueryRangeToInclusive selects k <= end.
	QueryRangeToInclusive
)

// QueryItem is one key or key range of a query.
type QueryItem struct {
	Type  QueryItemType
	Key   []byte
	Start []byte
	End   []byte
}

// NewQueryKey selects the exact key k.
func NewQueryKey(k []byte) QueryItem {
	return QueryItem{Type: QueryKey, Key: k}
}

// NewQueryRange selects start <= k < end.
func NewQueryRange(start, end []byte) QueryItem {
	return QueryItem{Type: QueryRange, Start: start, End: end}
}

// NewQueryRangeInclusive selects start <= k <= end.
func NewQueryRangeInclusive(start, end []byte) QueryItem {
	return QueryItem{Type: QueryRangeInclusive, Start: start, End: end}
}

// NewQueryRangeFull selects everything.
func NewQueryRangeFull() QueryItem {
	return QueryItem{Type: QueryRangeFull}
}

// NewQueryRangeAfter selects k > start.
func NewQueryRangeAfter(start []byte) QueryItem {
	return QueryItem{Type: QueryRangeAfter, Start: start}
}

// NewQueryRangeFrom selects k >= start.
func NewQueryRangeFrom(start []byte) QueryItem {
	return QueryItem{Type: QueryRangeFrom, Start: start}
}

// NewQueryRangeTo selects k < end.
func NewQueryRangeTo(end []byte) QueryItem {
	return QueryItem{Type: QueryRangeTo, End: end}
}

// NewQueryRangeToInclusive selects k <= end.
func NewQueryRangeToInclusive(end []byte) QueryItem {
	return QueryItem{Type: QueryRangeToInclusive, End: end}
}

// Matches reports whether the item selects key.
func (q *QueryItem) Matches(key []byte) bool {
	switch q.Type {
	case QueryKey:
		return bytes.Equal(q.Key, key)
	case QueryRange:
		return bytes.Compare(q.Start, key) <= 0 && bytes.Compare(key, q.End) < 0
	case QueryRangeInclusive:
		return bytes.Compare(q.Start, key) <= 0 && bytes.Compare(key, q.End) <= 0
	case QueryRangeFull:
		return true
	case QueryRangeAfter:
		return bytes.Compare(key, q.Start) > 0
	case QueryRangeFrom:
		return bytes.Compare(key, q.Start) >= 0
	case QueryRangeTo:
		return bytes.Compare(key, q.End) < 0
	case QueryRangeToInclusive:
		return bytes.Compare(key, q.End) <= 0
	default:
		return false
	}
}

// overlapsLeftOf reports whether the item can select any key < bound.
func (q *QueryItem) overlapsLeftOf(bound []byte) bool {
	switch q.Type {
	case QueryKey:
		return bytes.Compare(q.Key, bound) < 0
	case QueryRange, QueryRangeInclusive, QueryRangeFrom:
		return bytes.Compare(q.Start, bound) < 0
	case QueryRangeFull, QueryRangeTo, QueryRangeToInclusive:
		return true
	case QueryRangeAfter:
		// Anything strictly above Start; overlaps below bound when
		// Start+ε < bound, i.e. Start < bound (ε keys exist between).
		return bytes.Compare(q.Start, bound) < 0
	default:
		return false
	}
}

// overlapsRightOf reports whether the item can select any key > bound.
func (q *QueryItem) overlapsRightOf(bound []byte) bool {
	switch q.Type {
	case QueryKey:
		return bytes.Compare(q.Key, bound) > 0
	case QueryRange:
		return bytes.Compare(q.End, bound) > 0
	case QueryRangeInclusive:
		return bytes.Compare(q.End, bound) > 0
	case QueryRangeFull, QueryRangeAfter, QueryRangeFrom:
		return true
	case QueryRangeTo:
		return bytes.Compare(bound, q.End) < 0
	case QueryRangeToInclusive:
		return bytes.Compare(bound, q.End) < 0
	default:
		return false
	}
}

// overlapsOpenInterval reports whether the item can select any key in the
// open interval (lo, hi). A nil bound is unbounded on that side.
func (q *QueryItem) overlapsOpenInterval(lo, hi []byte) bool {
	if lo != nil && !q.overlapsRightOf(lo) {
		return false
	}
	if hi != nil && !q.overlapsLeftOf(hi) {
		return false
	}
	return true
}

func (q *QueryItem) lowerBound() []byte {
	switch q.Type {
	case QueryKey:
		return q.Key
	case QueryRange, QueryRangeInclusive, QueryRangeAfter, QueryRangeFrom:
		return q.Start
	default:
		return nil
	}
}

// Query is a set of query items kept sorted by lower bound.
type Query struct {
	items []QueryItem
}

// NewQuery returns an empty query.
func NewQuery() *Query {
	return &Query{}
}

// Insert adds an item to the query.
func (q *Query) Insert(item QueryItem) *Query {
	q.items = append(q.items, item)
	sort.SliceStable(q.items, func(i, j int) bool {
		return bytes.Compare(q.items[i].lowerBound(), q.items[j].lowerBound()) < 0
	})
	return q
}

// InsertKey adds an exact key item.
func (q *Query) InsertKey(key []byte) *Query {
	return q.Insert(NewQueryKey(key))
}

// Items returns the query's items.
func (q *Query) Items() []QueryItem {
	return q.items
}

// Matches reports whether any item selects key.
func (q *Query) Matches(key []byte) bool {
	for i := range q.items {
		if q.items[i].Matches(key) {
			return true
		}
	}
	return false
}

// ProofOpTag enumerates the opcodes of a proof stream.
type ProofOpTag uint8

const (
	// OpPush pushes a node onto the verification stack.
	OpPush ProofOpTag = 0x01
	// OpParent pops a parent then a child, attaching the child on the
	// left.
	OpParent ProofOpTag = 0x10
	// OpChild pops a child then a parent, attaching the child on the
	// right.
	OpChild ProofOpTag = 0x11
)

// ProofNodeType enumerates how much of a node a proof reveals.
type ProofNodeType uint8

const (
	// NodeHash abridges a whole subtree to its hash.
	NodeHash ProofNodeType = 0x01
	// NodeKVHash abridges a node to its kv hash.
	NodeKVHash ProofNodeType = 0x02
	// NodeKV reveals key and value.
	NodeKV ProofNodeType = 0x03
	// NodeKVValueHash reveals key, value and value hash.
	NodeKVValueHash ProofNodeType = 0x04
	// NodeKVDigest reveals key and value hash.
	NodeKVDigest ProofNodeType = 0x05
	// NodeKVRefValueHash reveals a reference's key, resolved value and
	// value hash.
	NodeKVRefValueHash ProofNodeType = 0x06
	// NodeKVValueHashFeatureType additionally reveals the feature type.
	NodeKVValueHashFeatureType ProofNodeType = 0x07
)

// ProofNode is one node revealed by a proof.
type ProofNode struct {
	Type      ProofNodeType
	Key       []byte
	Value     []byte
	Hash      Hash
	ValueHash Hash
	Feature   Feature
}

// ProofOp is one opcode of a proof stream.
type ProofOp struct {
	Op   ProofOpTag
	Node *ProofNode
}

var (
	// ErrProofMalformed is returned when a proof stream cannot be
	// executed.
	ErrProofMalformed = errors.New("merk: malformed proof")
	// ErrProofHashMismatch is returned when a proof does not hash to the
	// expected commitment.
	ErrProofHashMismatch = errors.New("merk: proof hash mismatch")
	// ErrProofIncomplete is returned when a proof hides keys the query
	// selects.
	ErrProofIncomplete = errors.New("merk: proof does not cover query")
)

// Prove builds the opcode stream authenticating every key the query
// selects, plus absence evidence for selected keys that are not present.
func (m *Merk) Prove(query *Query, cost *costs.OperationCost) ([]ProofOp, error) {
	if m.tree == nil {
		return nil, nil
	}
	p := &prover{m: m, cost: cost}
	return p.proveNode(m.tree, query.items)
}

type prover struct {
	m    *Merk
	cost *costs.OperationCost
}

func (p *prover) proveNode(n *TreeNode, items []QueryItem) ([]ProofOp, error) {
	var leftItems, rightItems []QueryItem
	matched := false
	for i := range items {
		if items[i].Matches(n.key) {
			matched = true
		}
		if items[i].overlapsLeftOf(n.key) {
			leftItems = append(leftItems, items[i])
		}
		if items[i].overlapsRightOf(n.key) {
			rightItems = append(rightItems, items[i])
		}
	}

	var ops []ProofOp

	hasLeft := false
	if len(leftItems) > 0 && n.left != nil {
		left, err := p.m.loadLink(n.left, p.cost)
		if err != nil {
			return nil, err
		}
		leftOps, err := p.proveNode(left, leftItems)
		if err != nil {
			return nil, err
		}
		ops = append(ops, leftOps...)
		hasLeft = true
	} else if n.left != nil {
		ops = append(ops, ProofOp{Op: OpPush, Node: &ProofNode{Type: NodeHash, Hash: n.left.Hash()}})
		hasLeft = true
	}

	self := &ProofNode{Key: n.key, ValueHash: n.valueHash}
	if matched {
		self.Type = NodeKVValueHashFeatureType
		self.Value = n.value
		self.Feature = n.feature
	} else {
		self.Type = NodeKVDigest
	}
	ops = append(ops, ProofOp{Op: OpPush, Node: self})
	if hasLeft {
		ops = append(ops, ProofOp{Op: OpParent})
	}

	if len(rightItems) > 0 && n.right != nil {
		right, err := p.m.loadLink(n.right, p.cost)
		if err != nil {
			return nil, err
		}
		rightOps, err := p.proveNode(right, rightItems)
		if err != nil {
			return nil, err
		}
		ops = append(ops, rightOps...)
		ops = append(ops, ProofOp{Op: OpChild})
	} else if n.right != nil {
		ops = append(ops, ProofOp{Op: OpPush, Node: &ProofNode{Type: NodeHash, Hash: n.right.Hash()}})
		ops = append(ops, ProofOp{Op: OpChild})
	}
	return ops, nil
}
