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
	"bytes"
	"encoding/binary"
)

// MaxReferenceHops bounds the number of indirections reference resolution
// will follow.
const MaxReferenceHops = 10

// ReferencePathType enumerates how a reference names its target.
type ReferencePathType uint8

const (
	// AbsolutePath stores the full qualified target path.
	AbsolutePath ReferencePathType = 0
	// UpstreamRootHeight keeps the first N segments of the referrer's
	// path and appends a tail.
	UpstreamRootHeight ReferencePathType = 1
	// UpstreamFromElementHeight discards the last N segments of the
	// referrer's path and appends a tail.
	UpstreamFromElementHeight ReferencePathType = 2
	// CousinReference swaps the referrer's last path segment, keeping
	// the same key.
	CousinReference ReferencePathType = 3
	// SiblingReference targets another key in the referrer's subtree.
	SiblingReference ReferencePathType = 4
)

// ReferencePath is a symbolic pointer to another element, materialized
// against the referring element's own location.
type ReferencePath struct {
	Type ReferencePathType
	// Segments is the qualified target path for AbsolutePath, or the
	// appended tail for the upstream variants.
	Segments [][]byte
	// N is the segment count kept or discarded by the upstream variants.
	N uint8
	// Key is the target key for cousin and sibling references.
	Key []byte
}

// NewAbsoluteReference points at a fully qualified path: subtree segments
// plus the target key as the last element.
func NewAbsoluteReference(qualified [][]byte) *ReferencePath {
	return &ReferencePath{Type: AbsolutePath, Segments: qualified}
}

// NewUpstreamRootHeightReference keeps the first n segments of the
// referrer's path and appends tail (the last tail element is the target
// key).
func NewUpstreamRootHeightReference(n uint8, tail [][]byte) *ReferencePath {
	return &ReferencePath{Type: UpstreamRootHeight, N: n, Segments: tail}
}

// NewUpstreamFromElementHeightReference discards the last n segments of
// the referrer's path and appends tail.
func NewUpstreamFromElementHeightReference(n uint8, tail [][]byte) *ReferencePath {
	return &ReferencePath{Type: UpstreamFromElementHeight, N: n, Segments: tail}
}

// NewCousinReference swaps the referrer's last path segment for newParent,
// keeping the same key.
func NewCousinReference(newParent []byte) *ReferencePath {
	return &ReferencePath{Type: CousinReference, Key: newParent}
}

// NewSiblingReference targets another key in the referrer's own subtree.
func NewSiblingReference(key []byte) *ReferencePath {
	return &ReferencePath{Type: SiblingReference, Key: key}
}

func (r *ReferencePath) encode(buf *bytes.Buffer) {
	buf.WriteByte(byte(r.Type))
	switch r.Type {
	case AbsolutePath:
		encodeSegments(buf, r.Segments)
	case UpstreamRootHeight, UpstreamFromElementHeight:
		buf.WriteByte(r.N)
		encodeSegments(buf, r.Segments)
	case CousinReference, SiblingReference:
		writeVarBytes(buf, r.Key)
	}
}

func encodeSegments(buf *bytes.Buffer, segments [][]byte) {
	var lenBuf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(lenBuf[:], uint64(len(segments)))
	buf.Write(lenBuf[:n])
	for _, s := range segments {
		writeVarBytes(buf, s)
	}
}

func decodeSegments(r *bytes.Reader) ([][]byte, error) {
	count, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, newError(ErrCorruptedData, "reference segment count truncated")
	}
	if count > uint64(r.Len()) {
		return nil, newError(ErrCorruptedData, "reference segment count implausible")
	}
	segments := make([][]byte, 0, count)
	for i := uint64(0); i < count; i++ {
		s, err := readVarBytes(r)
		if err != nil {
			return nil, newError(ErrCorruptedData, "reference segment truncated")
		}
		segments = append(segments, s)
	}
	return segments, nil
}

func decodeReferencePath(r *bytes.Reader) (*ReferencePath, error) {
	typ, err := r.ReadByte()
	if err != nil {
		return nil, newError(ErrCorruptedData, "reference type truncated")
	}
	ref := &ReferencePath{Type: ReferencePathType(typ)}
	switch ref.Type {
	case AbsolutePath:
		if ref.Segments, err = decodeSegments(r); err != nil {
			return nil, err
		}
	case UpstreamRootHeight, UpstreamFromElementHeight:
		if ref.N, err = r.ReadByte(); err != nil {
			return nil, newError(ErrCorruptedData, "reference height truncated")
		}
		if ref.Segments, err = decodeSegments(r); err != nil {
			return nil, err
		}
	case CousinReference, SiblingReference:
		if ref.Key, err = readVarBytes(r); err != nil {
			return nil, newError(ErrCorruptedData, "reference key truncated")
		}
	default:
		return nil, newErrorf(ErrCorruptedData, "unknown reference type %d", typ)
	}
	return ref, nil
}

// Resolve materializes the reference into a fully qualified absolute path
// (subtree segments plus target key), given the referring element's own
// path and key.
func (r *ReferencePath) Resolve(ownPath [][]byte, ownKey []byte) ([][]byte, error) {
	switch r.Type {
	case AbsolutePath:
		if len(r.Segments) == 0 {
			return nil, newError(ErrCorruptedPath, "empty reference path")
		}
		return copySegments(r.Segments), nil
	case UpstreamRootHeight:
		if int(r.N) > len(ownPath) {
			return nil, newErrorf(ErrInvalidInput, "reference keeps %d segments of a %d segment path", r.N, len(ownPath))
		}
		out := copySegments(ownPath[:r.N])
		return append(out, copySegments(r.Segments)...), nil
	case UpstreamFromElementHeight:
		if int(r.N) > len(ownPath) {
			return nil, newErrorf(ErrInvalidInput, "reference discards %d segments of a %d segment path", r.N, len(ownPath))
		}
		out := copySegments(ownPath[:len(ownPath)-int(r.N)])
		return append(out, copySegments(r.Segments)...), nil
	case CousinReference:
		if len(ownPath) == 0 {
			return nil, newError(ErrInvalidInput, "cousin reference requires a parent layer")
		}
		out := copySegments(ownPath[:len(ownPath)-1])
		out = append(out, append([]byte(nil), r.Key...))
		return append(out, append([]byte(nil), ownKey...)), nil
	case SiblingReference:
		out := copySegments(ownPath)
		return append(out, append([]byte(nil), r.Key...)), nil
	default:
		return nil, newErrorf(ErrCorruptedData, "unknown reference type %d", r.Type)
	}
}

func copySegments(segments [][]byte) [][]byte {
	out := make([][]byte, len(segments))
	for i, s := range segments {
		out[i] = append([]byte(nil), s...)
	}
	return out
}
