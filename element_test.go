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

func TestElementSerializationRoundtrip(t *testing.T) {
	elements := []*Element{
		NewItem([]byte("payload")),
		NewItem(nil),
		NewItemWithFlags([]byte("x"), []byte("epoch-3")),
		EmptyTree(),
		EmptyTreeWithFlags([]byte("f")),
		NewTree([]byte("rootkey")),
		NewSumItem(-77),
		NewSumItem(0),
		EmptySumTree(),
		{Type: SumTreeElement, RootKey: []byte("rk"), Sum: 1234567},
		NewReference(NewAbsoluteReference(path([]byte("p"), []byte("k")))),
	}
	for _, e := range elements {
		decoded, err := ParseElement(e.Serialize())
		require.NoError(t, err)
		if e.Value == nil {
			// Zero-length payloads decode as empty, not nil.
			decoded.Value = e.Value
		}
		require.Equal(t, e, decoded)
	}
}

// Byte-exact wire layout: flags option, variant tag, then the body.
func TestElementWireFormat(t *testing.T) {
	require.Equal(t,
		[]byte{0x00, 0x00, 0x03, 'c', 'a', 't'},
		NewItem([]byte("cat")).Serialize())

	require.Equal(t,
		[]byte{0x00, 0x02, 0x00},
		EmptyTree().Serialize())

	require.Equal(t,
		[]byte{0x01, 0x03, 'd', 'o', 'g', 0x02, 0x00},
		EmptyTreeWithFlags([]byte("dog")).Serialize())

	require.Equal(t,
		[]byte{0x00, 0x03, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x05},
		NewSumItem(5).Serialize())

	require.Equal(t,
		[]byte{0x00, 0x02, 0x01, 0x02, 'r', 'k'},
		NewTree([]byte("rk")).Serialize())
}

// The accounted value footprints behind the golden operation costs.
func TestElementCostSizes(t *testing.T) {
	require.Equal(t, uint32(37), EmptyTree().CostSize())
	require.Equal(t, uint32(71), NewItem([]byte("cat")).CostSize())
	require.Equal(t, uint32(41), EmptyTreeWithFlags([]byte("dog")).CostSize())
	require.Equal(t, uint32(45), EmptySumTree().CostSize())
}

func TestParseElementRejectsGarbage(t *testing.T) {
	cases := [][]byte{
		nil,
		{0x02},
		{0x00},
		{0x00, 0x09},
		{0x00, 0x00, 0x05, 'a'},
		append(NewItem([]byte("v")).Serialize(), 0x00),
	}
	for _, data := range cases {
		_, err := ParseElement(data)
		require.Error(t, err, "input %x", data)
		require.Equal(t, ErrCorruptedData, KindOf(err))
	}
}
