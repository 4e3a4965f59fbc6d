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

// Package pathlib provides a cheap hierarchical path to a subtree. Paths
// derived from a slice and paths assembled segment by segment are
// interchangeable: they compare equal and hash identically whenever the
// logical segment sequence matches.
package pathlib

import (
	"bytes"
	"encoding/binary"

	"golang.org/x/crypto/blake2b"
)

// HashSize is the size of a path hash in bytes.
const HashSize = 32

// SubtreePath points at one subtree in the hierarchy. The zero value is the
// root path. Derivation never copies existing segments: a child path holds a
// pointer to its base, a parent path re-slices the base slice.
type SubtreePath struct {
	// parent is the derivation base; nil means segments holds the whole path.
	parent *SubtreePath
	// segments is the base slice when parent is nil.
	segments [][]byte
	// relative is the single appended segment when parent is non-nil.
	relative []byte
}

// NewSubtreePath builds a path over the given segment slice. The slice is
// retained, not copied.
func NewSubtreePath(segments [][]byte) *SubtreePath {
	return &SubtreePath{segments: segments}
}

// RootPath returns the path of the root subtree.
func RootPath() *SubtreePath {
	return &SubtreePath{}
}

// Child derives the path one level deeper. The segment is retained, not
// copied.
func (p *SubtreePath) Child(segment []byte) *SubtreePath {
	return &SubtreePath{parent: p, relative: segment}
}

// Parent derives the path one level up, also returning the segment that was
// chopped off. Returns ok=false on the root path.
func (p *SubtreePath) Parent() (parent *SubtreePath, segment []byte, ok bool) {
	if p.parent != nil {
		return p.parent, p.relative, true
	}
	if len(p.segments) == 0 {
		return nil, nil, false
	}
	n := len(p.segments)
	return &SubtreePath{segments: p.segments[:n-1]}, p.segments[n-1], true
}

// Len returns the number of segments.
func (p *SubtreePath) Len() int {
	n := 0
	for q := p; q != nil; q = q.parent {
		if q.parent == nil {
			n += len(q.segments)
		} else {
			n++
		}
	}
	return n
}

// IsRoot reports whether the path has no segments.
func (p *SubtreePath) IsRoot() bool {
	return p.Len() == 0
}

// ReverseEach calls fn for every segment from the deepest to the
// shallowest. Iteration stops early when fn returns false.
func (p *SubtreePath) ReverseEach(fn func(segment []byte) bool) {
	for q := p; q != nil; q = q.parent {
		if q.parent != nil {
			if !fn(q.relative) {
				return
			}
			continue
		}
		for i := len(q.segments) - 1; i >= 0; i-- {
			if !fn(q.segments[i]) {
				return
			}
		}
	}
}

// ToSlice collects the segments into a freshly allocated slice ordered from
// the shallowest to the deepest.
func (p *SubtreePath) ToSlice() [][]byte {
	out := make([][]byte, p.Len())
	i := len(out)
	p.ReverseEach(func(segment []byte) bool {
		i--
		out[i] = segment
		return true
	})
	return out
}

// Equal reports whether two paths have the same segment sequence,
// regardless of how either was derived.
func (p *SubtreePath) Equal(other *SubtreePath) bool {
	a, b := p.ToSlice(), other.ToSlice()
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !bytes.Equal(a[i], b[i]) {
			return false
		}
	}
	return true
}

// Hash returns the 32-byte identity of the path: a Blake2b-256 digest over
// the length-prefixed segments in order, shallowest first. It doubles as
// the storage prefix of the subtree the path points at.
func (p *SubtreePath) Hash() [HashSize]byte {
	return HashSegments(p.ToSlice())
}

// HashSegments hashes an explicit segment slice the same way Hash does.
func HashSegments(segments [][]byte) [HashSize]byte {
	h, err := blake2b.New256(nil)
	if err != nil {
		panic(err)
	}
	var lenBuf [binary.MaxVarintLen64]byte
	for _, segment := range segments {
		n := binary.PutUvarint(lenBuf[:], uint64(len(segment)))
		h.Write(lenBuf[:n])
		h.Write(segment)
	}
	var out [HashSize]byte
	copy(out[:], h.Sum(nil))
	return out
}
