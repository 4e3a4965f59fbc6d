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
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBatchInsertsAcrossSubtrees(t *testing.T) {
	db := makeTestDB(t)
	_, err := db.ApplyBatch([]GroveDBOp{
		InsertOp(path(testLeaf), []byte("k1"), NewItem([]byte("v1"))),
		InsertOp(path(anotherTestLeaf), []byte("k2"), NewItem([]byte("v2"))),
	}, nil)
	require.NoError(t, err)

	e1, _, err := db.Get(path(testLeaf), []byte("k1"), nil)
	require.NoError(t, err)
	require.Equal(t, []byte("v1"), e1.Value)
	e2, _, err := db.Get(path(anotherTestLeaf), []byte("k2"), nil)
	require.NoError(t, err)
	require.Equal(t, []byte("v2"), e2.Value)
}

// A batch may create a subtree and fill it in one go: the child group runs
// first and the parent op folds the finished child root in.
func TestBatchCreatesParentAndChildTogether(t *testing.T) {
	db := makeEmptyDB(t)
	_, err := db.ApplyBatch([]GroveDBOp{
		InsertOp(nil, []byte("tree"), EmptyTree()),
		InsertOp(path([]byte("tree")), []byte("k"), NewItem([]byte("v"))),
	}, nil)
	require.NoError(t, err)

	elem, _, err := db.Get(path([]byte("tree")), []byte("k"), nil)
	require.NoError(t, err)
	require.Equal(t, []byte("v"), elem.Value)

	// The parent element authenticates the child.
	parent, err := db.openMerk(nil, nil, nil, true, newCost())
	require.NoError(t, err)
	vh, err := parent.GetValueHash([]byte("tree"), newCost())
	require.NoError(t, err)
	child, err := db.openMerk(path([]byte("tree")), nil, nil, true, newCost())
	require.NoError(t, err)
	require.Equal(t, child.RootHash(), vh)
}

// A single-op batch is indistinguishable from the direct call: same root
// hash, same storage cost.
func TestSingleOpBatchEqualsDirectInsert(t *testing.T) {
	ops := []GroveDBOp{
		InsertOp(path(testLeaf), []byte("a"), NewItem([]byte("1"))),
		InsertOp(path(testLeaf), []byte("b"), NewItem([]byte("2"))),
		InsertOp(path(anotherTestLeaf), []byte("c"), NewItem([]byte("3"))),
	}

	batchDB := makeTestDB(t)
	seqDB := makeTestDB(t)
	for _, op := range ops {
		batchCost, err := batchDB.ApplyBatch([]GroveDBOp{op}, nil)
		require.NoError(t, err)
		directCost, err := seqDB.Insert(op.Path, op.Key, op.Element, nil, nil)
		require.NoError(t, err)
		require.True(t, directCost.StorageCost.Equal(batchCost.StorageCost),
			"direct %+v != batch %+v", directCost.StorageCost, batchCost.StorageCost)

		batchHash, _, err := batchDB.RootHash(nil)
		require.NoError(t, err)
		directHash, _, err := seqDB.RootHash(nil)
		require.NoError(t, err)
		require.Equal(t, directHash, batchHash)
	}
}

func TestBatchOrderInsensitiveWithinSubtree(t *testing.T) {
	build := func(ops []GroveDBOp) [32]byte {
		db := makeTestDB(t)
		_, err := db.ApplyBatch(ops, nil)
		require.NoError(t, err)
		h, _, err := db.RootHash(nil)
		require.NoError(t, err)
		return h
	}

	forward := []GroveDBOp{
		InsertOp(path(testLeaf), []byte("a"), NewItem([]byte("1"))),
		InsertOp(path(testLeaf), []byte("b"), NewItem([]byte("2"))),
		InsertOp(path(testLeaf), []byte("c"), NewItem([]byte("3"))),
	}
	backward := []GroveDBOp{forward[2], forward[0], forward[1]}
	require.Equal(t, build(forward), build(backward))
}

func TestBatchRejectsDuplicates(t *testing.T) {
	db := makeTestDB(t)
	_, err := db.ApplyBatch([]GroveDBOp{
		InsertOp(path(testLeaf), []byte("k"), NewItem([]byte("1"))),
		InsertOp(path(testLeaf), []byte("k"), NewItem([]byte("2"))),
	}, nil)
	require.Equal(t, ErrInvalidInput, KindOf(err))
}

func TestBatchReplaceRequiresExistence(t *testing.T) {
	db := makeTestDB(t)
	_, err := db.ApplyBatch([]GroveDBOp{
		ReplaceOp(path(testLeaf), []byte("missing"), NewItem([]byte("v"))),
	}, nil)
	require.Equal(t, ErrPathKeyNotFound, KindOf(err))

	_, err = db.Insert(path(testLeaf), []byte("k"), NewItem([]byte("old")), nil, nil)
	require.NoError(t, err)
	_, err = db.ApplyBatch([]GroveDBOp{
		ReplaceOp(path(testLeaf), []byte("k"), NewItem([]byte("new"))),
	}, nil)
	require.NoError(t, err)
	elem, _, err := db.Get(path(testLeaf), []byte("k"), nil)
	require.NoError(t, err)
	require.Equal(t, []byte("new"), elem.Value)
}

func TestBatchPatchKeepsVariant(t *testing.T) {
	db := makeTestDB(t)
	_, err := db.Insert(path(testLeaf), []byte("k"), NewItem([]byte("old")), nil, nil)
	require.NoError(t, err)

	_, err = db.ApplyBatch([]GroveDBOp{
		PatchOp(path(testLeaf), []byte("k"), EmptyTree()),
	}, nil)
	require.Equal(t, ErrInvalidInput, KindOf(err))

	_, err = db.ApplyBatch([]GroveDBOp{
		PatchOp(path(testLeaf), []byte("k"), NewItem([]byte("patched"))),
	}, nil)
	require.NoError(t, err)
	elem, _, err := db.Get(path(testLeaf), []byte("k"), nil)
	require.NoError(t, err)
	require.Equal(t, []byte("patched"), elem.Value)
}

func TestBatchInsertIfNotExistsOp(t *testing.T) {
	db := makeTestDB(t)
	_, err := db.Insert(path(testLeaf), []byte("k"), NewItem([]byte("kept")), nil, nil)
	require.NoError(t, err)

	_, err = db.ApplyBatch([]GroveDBOp{
		InsertIfNotExistsOp(path(testLeaf), []byte("k"), NewItem([]byte("ignored"))),
		InsertIfNotExistsOp(path(testLeaf), []byte("fresh"), NewItem([]byte("stored"))),
	}, nil)
	require.NoError(t, err)

	elem, _, err := db.Get(path(testLeaf), []byte("k"), nil)
	require.NoError(t, err)
	require.Equal(t, []byte("kept"), elem.Value)
	elem, _, err = db.Get(path(testLeaf), []byte("fresh"), nil)
	require.NoError(t, err)
	require.Equal(t, []byte("stored"), elem.Value)
}

func TestBatchIntoMissingPathFails(t *testing.T) {
	db := makeTestDB(t)
	_, err := db.ApplyBatch([]GroveDBOp{
		InsertOp(path([]byte("nope")), []byte("k"), NewItem([]byte("v"))),
	}, nil)
	require.Equal(t, ErrPathNotFound, KindOf(err))
}

func TestBatchDeleteOfNonEmptyTreeFails(t *testing.T) {
	db := makeTestDB(t)
	_, err := db.Insert(path(testLeaf), []byte("sub"), EmptyTree(), nil, nil)
	require.NoError(t, err)
	_, err = db.Insert(path(testLeaf, []byte("sub")), []byte("k"), NewItem([]byte("v")), nil, nil)
	require.NoError(t, err)

	_, err = db.ApplyBatch([]GroveDBOp{
		DeleteTreeOp(path(testLeaf), []byte("sub")),
	}, nil)
	require.Equal(t, ErrDeletingNonEmptyTree, KindOf(err))

	// Deleting the content in the same batch makes it legal.
	_, err = db.ApplyBatch([]GroveDBOp{
		DeleteOp(path(testLeaf, []byte("sub")), []byte("k")),
		DeleteTreeOp(path(testLeaf), []byte("sub")),
	}, nil)
	require.NoError(t, err)
	_, _, err = db.GetRaw(path(testLeaf), []byte("sub"), nil)
	require.Equal(t, ErrPathKeyNotFound, KindOf(err))
}

func TestBatchFailureLeavesNoTrace(t *testing.T) {
	db := makeTestDB(t)
	before, _, err := db.RootHash(nil)
	require.NoError(t, err)

	_, err = db.ApplyBatch([]GroveDBOp{
		InsertOp(path(testLeaf), []byte("good"), NewItem([]byte("v"))),
		DeleteOp(path(anotherTestLeaf), []byte("missing")),
	}, nil)
	require.Error(t, err)

	after, _, err := db.RootHash(nil)
	require.NoError(t, err)
	require.Equal(t, before, after)
	_, _, err = db.Get(path(testLeaf), []byte("good"), nil)
	require.Equal(t, ErrPathKeyNotFound, KindOf(err))
}
