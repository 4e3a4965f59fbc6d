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
	"encoding/binary"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/grovedb/grovedb/costs"
	"github.com/grovedb/grovedb/storage"
)

func newTestMerk(t *testing.T) *Merk {
	t.Helper()
	s := storage.NewMemoryStorage()
	ctx := s.Context(storage.Prefix{}, nil)
	m, err := Open(ctx, false, nil, &costs.OperationCost{})
	require.NoError(t, err)
	return m
}

func reopen(t *testing.T, m *Merk) *Merk {
	t.Helper()
	m2, err := Open(m.ctx, false, nil, &costs.OperationCost{})
	require.NoError(t, err)
	return m2
}

func seqKey(i uint64) []byte {
	var k [8]byte
	binary.BigEndian.PutUint64(k[:], i)
	return k[:]
}

// makeBatchSeq builds sorted put operations for keys [from, to).
func makeBatchSeq(from, to uint64) Batch {
	var batch Batch
	for i := from; i < to; i++ {
		batch = append(batch, Op{Type: OpPut, Key: seqKey(i), Value: []byte("x")})
	}
	return batch
}

// checkBalance walks the whole tree verifying the AVL invariant and link
// height caches, returning the subtree height.
func checkBalance(t *testing.T, m *Merk, n *TreeNode) int {
	t.Helper()
	if n == nil {
		return 0
	}
	var heights [2]int
	for i, left := range []bool{true, false} {
		l := n.Link(left)
		if l == nil {
			continue
		}
		cached := l.height()
		child, err := m.loadLink(l, &costs.OperationCost{})
		require.NoError(t, err)
		heights[i] = checkBalance(t, m, child)
		require.Equal(t, uint8(heights[i]), cached, "link height cache for %x", child.key)
	}
	diff := heights[0] - heights[1]
	require.LessOrEqual(t, diff, 1, "left-heavy violation at %x", n.key)
	require.GreaterOrEqual(t, diff, -1, "right-heavy violation at %x", n.key)
	if heights[0] > heights[1] {
		return heights[0] + 1
	}
	return heights[1] + 1
}

func TestApplyAndGet(t *testing.T) {
	m := newTestMerk(t)
	cost := &costs.OperationCost{}
	require.NoError(t, m.Apply(makeBatchSeq(0, 10), nil, cost))

	for i := uint64(0); i < 10; i++ {
		v, err := m.Get(seqKey(i), &costs.OperationCost{})
		require.NoError(t, err)
		require.Equal(t, []byte("x"), v)
	}
	_, err := m.Get(seqKey(10), &costs.OperationCost{})
	require.ErrorIs(t, err, ErrKeyNotFound)
	checkBalance(t, m, m.tree)
}

func TestEmptyTreeRootHashIsNull(t *testing.T) {
	m := newTestMerk(t)
	require.Equal(t, NullHash, m.RootHash())
	require.True(t, m.IsEmpty())
	require.Nil(t, m.RootKey())
}

func TestRootHashChangesAndRecovers(t *testing.T) {
	m := newTestMerk(t)
	require.NoError(t, m.Apply(Batch{{Type: OpPut, Key: []byte("a"), Value: []byte("1")}}, nil, &costs.OperationCost{}))
	h1 := m.RootHash()
	require.NotEqual(t, NullHash, h1)

	require.NoError(t, m.Apply(Batch{{Type: OpPut, Key: []byte("b"), Value: []byte("2")}}, nil, &costs.OperationCost{}))
	h2 := m.RootHash()
	require.NotEqual(t, h1, h2)

	require.NoError(t, m.Apply(Batch{{Type: OpDelete, Key: []byte("b")}}, nil, &costs.OperationCost{}))
	require.Equal(t, h1, m.RootHash(), "insert then delete must restore the root hash")

	require.NoError(t, m.Apply(Batch{{Type: OpDelete, Key: []byte("a")}}, nil, &costs.OperationCost{}))
	require.Equal(t, NullHash, m.RootHash())
}

func TestBatchMustBeSortedAndUnique(t *testing.T) {
	m := newTestMerk(t)
	err := m.Apply(Batch{
		{Type: OpPut, Key: []byte("b"), Value: []byte("1")},
		{Type: OpPut, Key: []byte("a"), Value: []byte("2")},
	}, nil, &costs.OperationCost{})
	require.ErrorIs(t, err, ErrBatchUnsorted)

	err = m.Apply(Batch{
		{Type: OpPut, Key: []byte("a"), Value: []byte("1")},
		{Type: OpPut, Key: []byte("a"), Value: []byte("2")},
	}, nil, &costs.OperationCost{})
	require.ErrorIs(t, err, ErrBatchUnsorted)
}

func TestDeleteNonExistentKeyFails(t *testing.T) {
	m := newTestMerk(t)
	require.NoError(t, m.Apply(makeBatchSeq(0, 4), nil, &costs.OperationCost{}))
	err := m.Apply(Batch{{Type: OpDelete, Key: []byte("nope")}}, nil, &costs.OperationCost{})
	require.ErrorIs(t, err, ErrDeleteNonExistent)
}

func TestBalanceAfterSequentialInserts(t *testing.T) {
	m := newTestMerk(t)
	// One key per batch, ascending: the worst case for balancing.
	for i := uint64(0); i < 64; i++ {
		require.NoError(t, m.Apply(Batch{{Type: OpPut, Key: seqKey(i), Value: []byte("v")}}, nil, &costs.OperationCost{}))
	}
	h := checkBalance(t, m, m.tree)
	require.LessOrEqual(t, h, 9, "64 keys must stay within AVL height bounds")

	// And descending into the same tree.
	for i := uint64(200); i > 150; i-- {
		require.NoError(t, m.Apply(Batch{{Type: OpPut, Key: seqKey(i), Value: []byte("v")}}, nil, &costs.OperationCost{}))
	}
	checkBalance(t, m, m.tree)
}

func TestBalanceAfterDeletions(t *testing.T) {
	m := newTestMerk(t)
	require.NoError(t, m.Apply(makeBatchSeq(0, 50), nil, &costs.OperationCost{}))
	// Delete every other key in one batch.
	var batch Batch
	for i := uint64(0); i < 50; i += 2 {
		batch = append(batch, Op{Type: OpDelete, Key: seqKey(i)})
	}
	require.NoError(t, m.Apply(batch, nil, &costs.OperationCost{}))
	checkBalance(t, m, m.tree)
	for i := uint64(0); i < 50; i++ {
		_, err := m.Get(seqKey(i), &costs.OperationCost{})
		if i%2 == 0 {
			require.ErrorIs(t, err, ErrKeyNotFound)
		} else {
			require.NoError(t, err)
		}
	}
}

func TestPersistenceRoundtrip(t *testing.T) {
	m := newTestMerk(t)
	require.NoError(t, m.Apply(makeBatchSeq(0, 20), nil, &costs.OperationCost{}))
	want := m.RootHash()
	wantKey := m.RootKey()

	m2 := reopen(t, m)
	require.Equal(t, want, m2.RootHash())
	require.Equal(t, wantKey, m2.RootKey())
	for i := uint64(0); i < 20; i++ {
		v, err := m2.Get(seqKey(i), &costs.OperationCost{})
		require.NoError(t, err)
		require.Equal(t, []byte("x"), v)
	}
	checkBalance(t, m2, m2.tree)
}

func TestUpdateInPlaceKeepsDeterministicHash(t *testing.T) {
	m := newTestMerk(t)
	require.NoError(t, m.Apply(makeBatchSeq(0, 5), nil, &costs.OperationCost{}))
	require.NoError(t, m.Apply(Batch{{Type: OpPut, Key: seqKey(2), Value: []byte("updated")}}, nil, &costs.OperationCost{}))
	h := m.RootHash()

	v, err := m.Get(seqKey(2), &costs.OperationCost{})
	require.NoError(t, err)
	require.Equal(t, []byte("updated"), v)

	// The same logical content built by a second instance hashes the
	// same.
	m2 := newTestMerk(t)
	batch := makeBatchSeq(0, 5)
	batch[2].Value = []byte("updated")
	require.NoError(t, m2.Apply(batch, nil, &costs.OperationCost{}))
	require.Equal(t, h, m2.RootHash())
}

func TestInsertCostFormula(t *testing.T) {
	m := newTestMerk(t)
	cost := &costs.OperationCost{}
	key := []byte("key1")
	value := []byte("cat")
	require.NoError(t, m.Apply(Batch{{Type: OpPut, Key: key, Value: value}}, nil, cost))

	want := KeyCost(key) + BasicValueCost(value) + ParentHookCost(key)
	require.Equal(t, want, cost.StorageCost.AddedBytes)
	require.Equal(t, uint32(0), cost.StorageCost.ReplacedBytes)

	// Replacing with a longer value: replaced covers the larger side,
	// added only the growth.
	cost2 := &costs.OperationCost{}
	longer := []byte("catfish")
	require.NoError(t, m.Apply(Batch{{Type: OpPut, Key: key, Value: longer}}, nil, cost2))
	require.Equal(t, BasicValueCost(longer), cost2.StorageCost.ReplacedBytes)
	require.Equal(t, BasicValueCost(longer)-BasicValueCost(value), cost2.StorageCost.AddedBytes)

	// Deleting returns every accounted byte.
	cost3 := &costs.OperationCost{}
	require.NoError(t, m.Apply(Batch{{Type: OpDelete, Key: key}}, nil, cost3))
	wantRemoved := KeyCost(key) + BasicValueCost(longer) + ParentHookCost(key)
	require.Equal(t, wantRemoved, cost3.StorageCost.RemovedBytes.TotalRemovedBytes())
}

func TestFetchAccounting(t *testing.T) {
	m := newTestMerk(t)
	require.NoError(t, m.Apply(Batch{{Type: OpPut, Key: []byte("key1"), Value: []byte("cat")}}, nil, &costs.OperationCost{}))

	cost := &costs.OperationCost{}
	m2, err := Open(m.ctx, false, nil, cost)
	require.NoError(t, err)
	require.False(t, m2.IsEmpty())
	// Context placement, root pointer lookup, root node fetch.
	require.Equal(t, uint32(3), cost.SeekCount)
	require.Equal(t, LoadedCost([]byte("key1"), BasicValueCost([]byte("cat"))), cost.StorageLoadedBytes)
	require.Equal(t, uint32(1), cost.HashNodeCalls)
}

func TestIsEmptyExcept(t *testing.T) {
	m := newTestMerk(t)
	require.NoError(t, m.Apply(Batch{
		{Type: OpPut, Key: []byte("a"), Value: []byte("1")},
		{Type: OpPut, Key: []byte("b"), Value: []byte("2")},
	}, nil, &costs.OperationCost{}))

	empty, err := m.IsEmptyExcept(map[string]struct{}{"a": {}, "b": {}}, &costs.OperationCost{})
	require.NoError(t, err)
	require.True(t, empty)

	empty, err = m.IsEmptyExcept(map[string]struct{}{"a": {}}, &costs.OperationCost{})
	require.NoError(t, err)
	require.False(t, empty)
}

func TestClearRemovesEverything(t *testing.T) {
	m := newTestMerk(t)
	require.NoError(t, m.Apply(makeBatchSeq(0, 12), nil, &costs.OperationCost{}))
	cost := &costs.OperationCost{}
	require.NoError(t, m.Clear(cost))
	require.True(t, m.IsEmpty())
	require.NotZero(t, cost.StorageCost.RemovedBytes.TotalRemovedBytes())

	m2 := reopen(t, m)
	require.True(t, m2.IsEmpty())
	require.Equal(t, NullHash, m2.RootHash())
}

func TestAuxRoundtrip(t *testing.T) {
	m := newTestMerk(t)
	cost := &costs.OperationCost{}
	require.NoError(t, m.Apply(nil, []AuxOp{{Key: []byte("meta"), Value: []byte("v1")}}, cost))
	require.NotZero(t, cost.StorageCost.AddedBytes)

	v, err := m.GetAux([]byte("meta"), &costs.OperationCost{})
	require.NoError(t, err)
	require.Equal(t, []byte("v1"), v)

	require.NoError(t, m.Apply(nil, []AuxOp{{Key: []byte("meta"), Deletion: true}}, &costs.OperationCost{}))
	_, err = m.GetAux([]byte("meta"), &costs.OperationCost{})
	require.ErrorIs(t, err, ErrKeyNotFound)
}

func TestSumTreeAggregation(t *testing.T) {
	s := storage.NewMemoryStorage()
	m, err := Open(s.Context(storage.Prefix{}, nil), true, nil, &costs.OperationCost{})
	require.NoError(t, err)

	var batch Batch
	for i, sum := range []int64{5, -2, 40} {
		batch = append(batch, Op{Type: OpPutSum, Key: []byte(fmt.Sprintf("k%d", i)), Value: []byte("v"), Sum: sum})
	}
	require.NoError(t, m.Apply(batch, nil, &costs.OperationCost{}))
	require.Equal(t, int64(43), m.RootSum())

	// The aggregate survives a reload and rides in the root feature.
	m2, err := Open(s.Context(storage.Prefix{}, nil), false, nil, &costs.OperationCost{})
	require.NoError(t, err)
	require.True(t, m2.IsSum())
	require.Equal(t, int64(43), m2.RootSum())

	// Removing a summand adjusts the aggregate.
	require.NoError(t, m2.Apply(Batch{{Type: OpDelete, Key: []byte("k1")}}, nil, &costs.OperationCost{}))
	require.Equal(t, int64(45), m2.RootSum())
}

func TestSumTreeOverflowIsFatal(t *testing.T) {
	s := storage.NewMemoryStorage()
	m, err := Open(s.Context(storage.Prefix{}, nil), true, nil, &costs.OperationCost{})
	require.NoError(t, err)

	err = m.Apply(Batch{
		{Type: OpPutSum, Key: []byte("a"), Value: []byte("v"), Sum: math.MaxInt64},
		{Type: OpPutSum, Key: []byte("b"), Value: []byte("v"), Sum: 1},
	}, nil, &costs.OperationCost{})
	require.ErrorIs(t, err, ErrSumOverflow)
}

func TestLayeredPutUsesSuppliedValueHash(t *testing.T) {
	m := newTestMerk(t)
	var layered Hash
	layered[0] = 0xaa
	require.NoError(t, m.Apply(Batch{{Type: OpPutLayered, Key: []byte("sub"), Value: []byte("tree-elem"), LayeredHash: layered}}, nil, &costs.OperationCost{}))

	vh, err := m.GetValueHash([]byte("sub"), &costs.OperationCost{})
	require.NoError(t, err)
	require.Equal(t, layered, vh)

	// A reloaded tree carries the same value hash: it is stored, not
	// recomputed from the value bytes.
	m2 := reopen(t, m)
	vh2, err := m2.GetValueHash([]byte("sub"), &costs.OperationCost{})
	require.NoError(t, err)
	require.Equal(t, layered, vh2)
}

func TestCombinedRefHashDiffersFromPlain(t *testing.T) {
	m := newTestMerk(t)
	var refVH Hash
	refVH[5] = 7
	require.NoError(t, m.Apply(Batch{{Type: OpPutCombinedRef, Key: []byte("r"), Value: []byte("refbody"), RefValueHash: refVH}}, nil, &costs.OperationCost{}))
	got, err := m.GetValueHash([]byte("r"), &costs.OperationCost{})
	require.NoError(t, err)

	plain := hashValue([]byte("refbody"), &costs.OperationCost{})
	require.NotEqual(t, plain, got)
	require.Equal(t, combineHash(plain, refVH, &costs.OperationCost{}), got)
}
