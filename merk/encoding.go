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
	"encoding/binary"
	"io"
)

// Node row layout:
//
//	feature ∥ varint(len value) ∥ value ∥ value_hash ∥ kv_hash ∥ left ∥ right
//	feature := 0x00 | 0x01 ∥ sum(i64 BE)
//	link    := 0x00 | 0x01 ∥ key_len(u8) ∥ key ∥ hash ∥ child_heights(2)
//	           [∥ sum(i64 BE) in summed trees]
//
// The node's own key is the row key and is not repeated in the value.

func encodeFeature(buf *bytes.Buffer, f Feature) {
	if f.Kind == SummedMerkNode {
		buf.WriteByte(byte(SummedMerkNode))
		var sum [8]byte
		binary.BigEndian.PutUint64(sum[:], uint64(f.Sum))
		buf.Write(sum[:])
		return
	}
	buf.WriteByte(byte(BasicMerkNode))
}

func decodeFeature(r *bytes.Reader) (Feature, error) {
	kind, err := r.ReadByte()
	if err != nil {
		return Feature{}, ErrInvalidNodeEncoding
	}
	switch FeatureKind(kind) {
	case BasicMerkNode:
		return BasicFeature(), nil
	case SummedMerkNode:
		var sum [8]byte
		if _, err := io.ReadFull(r, sum[:]); err != nil {
			return Feature{}, ErrInvalidNodeEncoding
		}
		return SummedFeature(int64(binary.BigEndian.Uint64(sum[:]))), nil
	default:
		return Feature{}, ErrInvalidNodeEncoding
	}
}

func encodeLink(buf *bytes.Buffer, l *Link, summed bool) {
	if l == nil {
		buf.WriteByte(0)
		return
	}
	buf.WriteByte(1)
	buf.WriteByte(uint8(len(l.key)))
	buf.Write(l.key)
	buf.Write(l.hash[:])
	buf.WriteByte(l.childHeights[0])
	buf.WriteByte(l.childHeights[1])
	if summed {
		var sum [8]byte
		binary.BigEndian.PutUint64(sum[:], uint64(l.sum))
		buf.Write(sum[:])
	}
}

func decodeLink(r *bytes.Reader, summed bool) (*Link, error) {
	present, err := r.ReadByte()
	if err != nil {
		return nil, ErrInvalidNodeEncoding
	}
	if present == 0 {
		return nil, nil
	}
	keyLen, err := r.ReadByte()
	if err != nil {
		return nil, ErrInvalidNodeEncoding
	}
	l := &Link{key: make([]byte, keyLen)}
	if _, err := io.ReadFull(r, l.key); err != nil {
		return nil, ErrInvalidNodeEncoding
	}
	if _, err := io.ReadFull(r, l.hash[:]); err != nil {
		return nil, ErrInvalidNodeEncoding
	}
	var heights [2]byte
	if _, err := io.ReadFull(r, heights[:]); err != nil {
		return nil, ErrInvalidNodeEncoding
	}
	l.childHeights = [2]uint8{heights[0], heights[1]}
	if summed {
		var sum [8]byte
		if _, err := io.ReadFull(r, sum[:]); err != nil {
			return nil, ErrInvalidNodeEncoding
		}
		l.sum = int64(binary.BigEndian.Uint64(sum[:]))
	}
	return l, nil
}

// EncodeNode serializes a node into a storage row.
func EncodeNode(n *TreeNode) []byte {
	var buf bytes.Buffer
	encodeFeature(&buf, n.feature)
	var lenBuf [binary.MaxVarintLen64]byte
	c := binary.PutUvarint(lenBuf[:], uint64(len(n.value)))
	buf.Write(lenBuf[:c])
	buf.Write(n.value)
	buf.Write(n.valueHash[:])
	buf.Write(n.kvHash[:])
	summed := n.feature.Kind == SummedMerkNode
	encodeLink(&buf, n.left, summed)
	encodeLink(&buf, n.right, summed)
	return buf.Bytes()
}

// DecodeNode parses a storage row into a node keyed by key. The node hash
// is not part of the row; callers recompute it from the kv hash and links.
func DecodeNode(key, row []byte) (*TreeNode, error) {
	r := bytes.NewReader(row)
	feature, err := decodeFeature(r)
	if err != nil {
		return nil, err
	}
	valueLen, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, ErrInvalidNodeEncoding
	}
	value := make([]byte, valueLen)
	if _, err := io.ReadFull(r, value); err != nil {
		return nil, ErrInvalidNodeEncoding
	}
	n := &TreeNode{
		key:       append([]byte(nil), key...),
		value:     value,
		feature:   feature,
		persisted: true,
	}
	if _, err := io.ReadFull(r, n.valueHash[:]); err != nil {
		return nil, ErrInvalidNodeEncoding
	}
	if _, err := io.ReadFull(r, n.kvHash[:]); err != nil {
		return nil, ErrInvalidNodeEncoding
	}
	summed := feature.Kind == SummedMerkNode
	if n.left, err = decodeLink(r, summed); err != nil {
		return nil, err
	}
	if n.right, err = decodeLink(r, summed); err != nil {
		return nil, err
	}
	if r.Len() != 0 {
		return nil, ErrInvalidNodeEncoding
	}
	n.ownSum = feature.Sum - n.left.Sum() - n.right.Sum()
	return n, nil
}

func varintLen(n uint64) uint32 {
	var buf [binary.MaxVarintLen64]byte
	return uint32(binary.PutUvarint(buf[:], n))
}
