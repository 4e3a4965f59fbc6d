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
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/grovedb/grovedb/costs"
)

func TestNodeEncodingRoundtrip(t *testing.T) {
	cost := &costs.OperationCost{}
	n := NewTreeNode([]byte("node-key"), []byte("node-value"), hashValue([]byte("node-value"), cost), BasicFeature(), 0)
	n.kvHash = hashKV(n.key, n.valueHash, cost)

	var leftHash, rightHash Hash
	leftHash[0] = 1
	rightHash[0] = 2
	n.left = &Link{key: []byte("aa"), hash: leftHash, childHeights: [2]uint8{1, 2}}
	n.right = &Link{key: []byte("zz"), hash: rightHash, childHeights: [2]uint8{0, 0}}

	row := EncodeNode(n)
	decoded, err := DecodeNode([]byte("node-key"), row)
	require.NoError(t, err)

	require.Equal(t, n.key, decoded.key)
	require.Equal(t, n.value, decoded.value)
	require.Equal(t, n.valueHash, decoded.valueHash)
	require.Equal(t, n.kvHash, decoded.kvHash)
	require.True(t, decoded.persisted)
	require.Equal(t, []byte("aa"), decoded.left.key)
	require.Equal(t, leftHash, decoded.left.hash)
	require.Equal(t, [2]uint8{1, 2}, decoded.left.childHeights)
	require.Equal(t, []byte("zz"), decoded.right.key)
}

func TestNodeEncodingNoChildren(t *testing.T) {
	n := NewTreeNode([]byte("k"), []byte("v"), Hash{}, BasicFeature(), 0)
	row := EncodeNode(n)
	decoded, err := DecodeNode([]byte("k"), row)
	require.NoError(t, err)
	require.Nil(t, decoded.left)
	require.Nil(t, decoded.right)
}

func TestSummedNodeEncodingCarriesSums(t *testing.T) {
	n := NewTreeNode([]byte("k"), []byte("v"), Hash{}, SummedFeature(100), 60)
	n.left = &Link{key: []byte("a"), childHeights: [2]uint8{0, 0}, sum: 30}
	n.right = &Link{key: []byte("z"), childHeights: [2]uint8{0, 0}, sum: 10}

	row := EncodeNode(n)
	decoded, err := DecodeNode([]byte("k"), row)
	require.NoError(t, err)
	require.Equal(t, SummedMerkNode, decoded.feature.Kind)
	require.Equal(t, int64(100), decoded.feature.Sum)
	require.Equal(t, int64(30), decoded.left.sum)
	require.Equal(t, int64(10), decoded.right.sum)
	// The node's own contribution is the aggregate minus the children.
	require.Equal(t, int64(60), decoded.ownSum)
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := DecodeNode([]byte("k"), []byte{0xff, 0x01})
	require.ErrorIs(t, err, ErrInvalidNodeEncoding)

	_, err = DecodeNode([]byte("k"), nil)
	require.ErrorIs(t, err, ErrInvalidNodeEncoding)

	// Truncated in the middle of the value hash.
	n := NewTreeNode([]byte("k"), []byte("v"), Hash{}, BasicFeature(), 0)
	row := EncodeNode(n)
	_, err = DecodeNode([]byte("k"), row[:len(row)-40])
	require.ErrorIs(t, err, ErrInvalidNodeEncoding)

	// Trailing junk is rejected too.
	_, err = DecodeNode([]byte("k"), append(row, 0x00))
	require.ErrorIs(t, err, ErrInvalidNodeEncoding)
}

func TestFeatureEncodedSize(t *testing.T) {
	require.Equal(t, 1, BasicFeature().encodedSize())
	require.Equal(t, 9, SummedFeature(-5).encodedSize())
}
