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

	"github.com/grovedb/grovedb/costs"
)

// Deleting an empty tree returns exactly the bytes its insertion added:
//
//	key:    32 prefix + 4 key + 1 length byte            = 37
//	value:  1 flags option + 1 variant + 1 root key
//	        + 32 node hash + 2 value length reservation  = 37
//	hook:   4 key + 32 hash + 1 key length + 2 heights   = 39
func TestEmptyTreeDeletionCost(t *testing.T) {
	db := makeEmptyDB(t)

	insertCost, err := db.Insert(nil, []byte("key1"), EmptyTree(), nil, nil)
	require.NoError(t, err)
	require.Equal(t, uint32(113), insertCost.StorageCost.AddedBytes)

	tx, err := db.StartTransaction()
	require.NoError(t, err)
	deleteCost, err := db.Delete(nil, []byte("key1"), nil, tx)
	require.NoError(t, err)

	require.Equal(t, costs.BasicStorageRemoval(113), deleteCost.StorageCost.RemovedBytes)
	require.Equal(t, insertCost.StorageCost.AddedBytes, deleteCost.StorageCost.RemovedBytes.TotalRemovedBytes())
}

// Deleting a 3-byte item: key 37, value 71 (1 flags option + 1 variant +
// 1 length + 3 payload + 32 value hash + 32 node hash + 1 value length),
// hook 39.
func TestItemDeletionCost(t *testing.T) {
	db := makeEmptyDB(t)

	insertCost, err := db.Insert(nil, []byte("key1"), NewItem([]byte("cat")), nil, nil)
	require.NoError(t, err)
	require.Equal(t, uint32(147), insertCost.StorageCost.AddedBytes)

	tx, err := db.StartTransaction()
	require.NoError(t, err)
	deleteCost, err := db.Delete(nil, []byte("key1"), nil, tx)
	require.NoError(t, err)

	want := &costs.OperationCost{
		SeekCount:          6,
		StorageLoadedBytes: 152,
		StorageCost: costs.StorageCost{
			RemovedBytes: costs.BasicStorageRemoval(147),
		},
		HashNodeCalls: 2,
	}
	require.True(t, want.Equal(deleteCost), "delete cost %+v", deleteCost)
}

// Flags ride inside the value footprint: "dog" adds one length byte plus
// three payload bytes on top of the 113 of a bare empty tree.
func TestFlaggedTreeDeletionCost(t *testing.T) {
	db := makeEmptyDB(t)

	insertCost, err := db.Insert(nil, []byte("key1"), EmptyTreeWithFlags([]byte("dog")), nil, nil)
	require.NoError(t, err)
	require.Equal(t, uint32(117), insertCost.StorageCost.AddedBytes)

	deleteCost, err := db.Delete(nil, []byte("key1"), nil, nil)
	require.NoError(t, err)
	require.Equal(t, costs.BasicStorageRemoval(117), deleteCost.StorageCost.RemovedBytes)
}

func TestFlaggedItemDeletionCost(t *testing.T) {
	db := makeEmptyDB(t)

	insertCost, err := db.Insert(nil, []byte("key1"), NewItemWithFlags([]byte("cat"), []byte("apple")), nil, nil)
	require.NoError(t, err)

	deleteCost, err := db.Delete(nil, []byte("key1"), nil, nil)
	require.NoError(t, err)
	require.Equal(t, insertCost.StorageCost.AddedBytes, deleteCost.StorageCost.RemovedBytes.TotalRemovedBytes())
}

// Single-op batches must meter exactly like the direct calls, with and
// without a transaction.
func TestBatchDeletionCostsMatchNonBatch(t *testing.T) {
	cases := []struct {
		name    string
		element *Element
		op      func(key []byte) GroveDBOp
	}{
		{"tree", EmptyTree(), func(key []byte) GroveDBOp { return DeleteTreeOp(nil, key) }},
		{"item", NewItem([]byte("cat")), func(key []byte) GroveDBOp { return DeleteOp(nil, key) }},
		{"tree with flags", EmptyTreeWithFlags([]byte("dog")), func(key []byte) GroveDBOp { return DeleteTreeOp(nil, key) }},
		{"item with flags", NewItemWithFlags([]byte("cat"), []byte("apple")), func(key []byte) GroveDBOp { return DeleteOp(nil, key) }},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name+" on transaction", func(t *testing.T) {
			db := makeEmptyDB(t)
			insertCost, err := db.Insert(nil, []byte("key1"), tc.element, nil, nil)
			require.NoError(t, err)

			tx, err := db.StartTransaction()
			require.NoError(t, err)
			nonBatchCost, err := db.Delete(nil, []byte("key1"), nil, tx)
			require.NoError(t, err)
			require.Equal(t, insertCost.StorageCost.AddedBytes,
				nonBatchCost.StorageCost.RemovedBytes.TotalRemovedBytes())

			require.NoError(t, tx.Rollback())
			batchCost, err := db.ApplyBatch([]GroveDBOp{tc.op([]byte("key1"))}, tx)
			require.NoError(t, err)
			require.True(t, nonBatchCost.StorageCost.Equal(batchCost.StorageCost),
				"non-batch %+v != batch %+v", nonBatchCost.StorageCost, batchCost.StorageCost)
		})

		t.Run(tc.name+" without transaction", func(t *testing.T) {
			db := makeEmptyDB(t)
			_, err := db.Insert(nil, []byte("key1"), tc.element, nil, nil)
			require.NoError(t, err)
			nonBatchCost, err := db.Delete(nil, []byte("key1"), nil, nil)
			require.NoError(t, err)

			db2 := makeEmptyDB(t)
			_, err = db2.Insert(nil, []byte("key1"), tc.element, nil, nil)
			require.NoError(t, err)
			batchCost, err := db2.ApplyBatch([]GroveDBOp{tc.op([]byte("key1"))}, nil)
			require.NoError(t, err)
			require.True(t, nonBatchCost.StorageCost.Equal(batchCost.StorageCost),
				"non-batch %+v != batch %+v", nonBatchCost.StorageCost, batchCost.StorageCost)
		})
	}
}
