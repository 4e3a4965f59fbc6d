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

package pathlib

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func segs(ss ...string) [][]byte {
	out := make([][]byte, len(ss))
	for i, s := range ss {
		out[i] = []byte(s)
	}
	return out
}

func TestHashesAreEqualAcrossDerivations(t *testing.T) {
	base := NewSubtreePath(segs("one", "two", "three", "four", "five"))
	want := base.Hash()

	// Built segment by segment from the root.
	derived := RootPath().
		Child([]byte("one")).
		Child([]byte("two")).
		Child([]byte("three")).
		Child([]byte("four")).
		Child([]byte("five"))
	require.Equal(t, want, derived.Hash())

	// Derived as the parent of a longer slice.
	tooLong := NewSubtreePath(segs("one", "two", "three", "four", "five", "six"))
	parent, segment, ok := tooLong.Parent()
	require.True(t, ok)
	require.Equal(t, []byte("six"), segment)
	require.Equal(t, want, parent.Hash())

	// Mixed: sliced base plus derived children.
	mixed := NewSubtreePath(segs("one", "two")).
		Child([]byte("three")).
		Child([]byte("four")).
		Child([]byte("five"))
	require.Equal(t, want, mixed.Hash())

	require.True(t, derived.Equal(mixed))
}

func TestParentOfRoot(t *testing.T) {
	_, _, ok := RootPath().Parent()
	require.False(t, ok)
	require.True(t, RootPath().IsRoot())
}

func TestReverseIterationOrder(t *testing.T) {
	p := NewSubtreePath(segs("a", "b")).Child([]byte("c"))
	var got []string
	p.ReverseEach(func(s []byte) bool {
		got = append(got, string(s))
		return true
	})
	require.Equal(t, []string{"c", "b", "a"}, got)
}

func TestToSliceAndLen(t *testing.T) {
	p := NewSubtreePath(segs("x")).Child([]byte("y")).Child([]byte("z"))
	require.Equal(t, 3, p.Len())
	require.Equal(t, segs("x", "y", "z"), p.ToSlice())
}

func TestDistinctPathsHashDifferently(t *testing.T) {
	a := NewSubtreePath(segs("ab", "c"))
	b := NewSubtreePath(segs("a", "bc"))
	require.NotEqual(t, a.Hash(), b.Hash())

	root := RootPath()
	require.NotEqual(t, root.Hash(), a.Hash())
}

func TestHashSegmentsMatchesPathHash(t *testing.T) {
	p := NewSubtreePath(segs("k1", "k2"))
	require.Equal(t, p.Hash(), HashSegments(segs("k1", "k2")))
}
