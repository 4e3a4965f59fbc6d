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

func TestDeleteNonEmptyTreeRefusedByDefault(t *testing.T) {
	db := makeTestDB(t)
	_, err := db.Insert(path(testLeaf), []byte("sub"), EmptyTree(), nil, nil)
	require.NoError(t, err)
	_, err = db.Insert(path(testLeaf, []byte("sub")), []byte("k"), NewItem([]byte("v")), nil, nil)
	require.NoError(t, err)

	_, err = db.Delete(path(testLeaf), []byte("sub"), nil, nil)
	require.Equal(t, ErrDeletingNonEmptyTree, KindOf(err))

	// Silent variant answers false instead.
	deleted, _, err := db.DeleteIfEmptyTree(path(testLeaf), []byte("sub"), nil)
	require.NoError(t, err)
	require.False(t, deleted)

	// The subtree is untouched.
	_, _, err = db.Get(path(testLeaf, []byte("sub")), []byte("k"), nil)
	require.NoError(t, err)
}

func TestDeleteEmptyTree(t *testing.T) {
	db := makeTestDB(t)
	_, err := db.Insert(path(testLeaf), []byte("sub"), EmptyTree(), nil, nil)
	require.NoError(t, err)

	deleted, _, err := db.DeleteIfEmptyTree(path(testLeaf), []byte("sub"), nil)
	require.NoError(t, err)
	require.True(t, deleted)

	_, _, err = db.GetRaw(path(testLeaf), []byte("sub"), nil)
	require.Equal(t, ErrPathKeyNotFound, KindOf(err))
}

func TestRecursiveSubtreeDeletion(t *testing.T) {
	db := makeTestDB(t)
	_, err := db.Insert(path(testLeaf), []byte("a"), EmptyTree(), nil, nil)
	require.NoError(t, err)
	_, err = db.Insert(path(testLeaf, []byte("a")), []byte("b"), EmptyTree(), nil, nil)
	require.NoError(t, err)
	_, err = db.Insert(path(testLeaf, []byte("a"), []byte("b")), []byte("k"), NewItem([]byte("deep")), nil, nil)
	require.NoError(t, err)
	_, err = db.Insert(path(testLeaf, []byte("a")), []byte("k2"), NewItem([]byte("shallow")), nil, nil)
	require.NoError(t, err)

	opts := &DeleteOptions{
		AllowDeletingNonEmptyTrees:        true,
		DeletingNonEmptyTreesReturnsError: true,
		BaseRootStorageIsFree:             true,
	}
	cost, err := db.Delete(path(testLeaf), []byte("a"), opts, nil)
	require.NoError(t, err)
	require.NotZero(t, cost.StorageCost.RemovedBytes.TotalRemovedBytes())

	_, _, err = db.GetRaw(path(testLeaf), []byte("a"), nil)
	require.Equal(t, ErrPathKeyNotFound, KindOf(err))
	_, _, err = db.Get(path(testLeaf, []byte("a"), []byte("b")), []byte("k"), nil)
	require.Error(t, err)

	// The sibling top-level subtree still works.
	_, err = db.Insert(path(anotherTestLeaf), []byte("x"), NewItem([]byte("ok")), nil, nil)
	require.NoError(t, err)
}

func TestRecursiveSubtreeDeletionWithTransaction(t *testing.T) {
	db := makeTestDB(t)
	_, err := db.Insert(path(testLeaf), []byte("a"), EmptyTree(), nil, nil)
	require.NoError(t, err)
	_, err = db.Insert(path(testLeaf, []byte("a")), []byte("k"), NewItem([]byte("v")), nil, nil)
	require.NoError(t, err)

	tx, err := db.StartTransaction()
	require.NoError(t, err)
	opts := &DeleteOptions{
		AllowDeletingNonEmptyTrees:        true,
		DeletingNonEmptyTreesReturnsError: true,
		BaseRootStorageIsFree:             true,
	}
	_, err = db.Delete(path(testLeaf), []byte("a"), opts, tx)
	require.NoError(t, err)

	// Gone inside the transaction, still present outside.
	_, _, err = db.GetRaw(path(testLeaf), []byte("a"), tx)
	require.Equal(t, ErrPathKeyNotFound, KindOf(err))
	_, _, err = db.GetRaw(path(testLeaf), []byte("a"), nil)
	require.NoError(t, err)

	require.NoError(t, tx.Commit())
	_, _, err = db.GetRaw(path(testLeaf), []byte("a"), nil)
	require.Equal(t, ErrPathKeyNotFound, KindOf(err))
}

// Two levels collapse: the item's subtree empties and is deleted, but the
// level above survives because a sibling subtree still has content.
func TestDeleteUpTreeWhileEmpty(t *testing.T) {
	db := makeTestDB(t)
	l1 := []byte("level1-A")
	l2a := []byte("level2-A")
	l2b := []byte("level2-B")

	_, err := db.Insert(path(testLeaf), l1, EmptyTree(), nil, nil)
	require.NoError(t, err)
	_, err = db.Insert(path(testLeaf, l1), l2a, EmptyTree(), nil, nil)
	require.NoError(t, err)
	_, err = db.Insert(path(testLeaf, l1), l2b, EmptyTree(), nil, nil)
	require.NoError(t, err)
	_, err = db.Insert(path(testLeaf, l1, l2a), []byte("level3-A"), NewItem([]byte("value")), nil, nil)
	require.NoError(t, err)
	_, err = db.Insert(path(testLeaf, l1, l2b), []byte("keep"), NewItem([]byte("here")), nil, nil)
	require.NoError(t, err)

	stop := uint16(0)
	levels, _, err := db.DeleteUpTreeWhileEmpty(path(testLeaf, l1, l2a), []byte("level3-A"), &stop, true, nil)
	require.NoError(t, err)
	require.Equal(t, uint16(2), levels)

	// level2-A collapsed with its item; level1-A survives thanks to
	// level2-B.
	_, _, err = db.GetRaw(path(testLeaf, l1), l2a, nil)
	require.Equal(t, ErrPathKeyNotFound, KindOf(err))
	elem, _, err := db.GetRaw(path(testLeaf), l1, nil)
	require.NoError(t, err)
	require.Equal(t, TreeElement, elem.Type)
	item, _, err := db.Get(path(testLeaf, l1, l2b), []byte("keep"), nil)
	require.NoError(t, err)
	require.Equal(t, []byte("here"), item.Value)
}

func TestDeleteUpTreeStopHeightValidation(t *testing.T) {
	db := makeTestDB(t)
	_, err := db.Insert(path(testLeaf), []byte("sub"), EmptyTree(), nil, nil)
	require.NoError(t, err)
	_, err = db.Insert(path(testLeaf, []byte("sub")), []byte("k"), NewItem([]byte("v")), nil, nil)
	require.NoError(t, err)

	// A stop height equal to the path length means nothing to do.
	stop := uint16(2)
	_, _, err = db.DeleteUpTreeWhileEmpty(path(testLeaf, []byte("sub")), []byte("k"), &stop, true, nil)
	require.Equal(t, ErrDeleteUpTreeStopHeightMoreThanInitialPathSize, KindOf(err))
}

func TestDeleteMissingKey(t *testing.T) {
	db := makeTestDB(t)
	_, err := db.Delete(path(testLeaf), []byte("ghost"), nil, nil)
	require.Equal(t, ErrPathKeyNotFound, KindOf(err))
}

func TestFindSubtrees(t *testing.T) {
	db := makeTestDB(t)
	_, err := db.Insert(path(testLeaf), []byte("a"), EmptyTree(), nil, nil)
	require.NoError(t, err)
	_, err = db.Insert(path(testLeaf, []byte("a")), []byte("b"), EmptyTree(), nil, nil)
	require.NoError(t, err)
	_, err = db.Insert(path(testLeaf, []byte("a")), []byte("item"), NewItem([]byte("v")), nil, nil)
	require.NoError(t, err)

	found, err := db.findSubtrees(path(testLeaf, []byte("a")), nil, newCost())
	require.NoError(t, err)
	require.Len(t, found, 2)
	require.Equal(t, path(testLeaf, []byte("a")), found[0])
	require.Equal(t, path(testLeaf, []byte("a"), []byte("b")), found[1])
}
