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
	"io"

	"github.com/grovedb/grovedb/merk"
)

// ElementType tags the variants an element can take.
type ElementType uint8

const (
	// ItemElement holds an opaque payload.
	ItemElement ElementType = 0
	// ReferenceElement is a symbolic pointer to another element.
	ReferenceElement ElementType = 1
	// TreeElement names a nested subtree.
	TreeElement ElementType = 2
	// SumItemElement holds a signed 64-bit summand.
	SumItemElement ElementType = 3
	// SumTreeElement names a nested sum tree.
	SumTreeElement ElementType = 4
)

// Element is the logical value stored at a (path, key) pair.
type Element struct {
	Type ElementType
	// Value is the payload of an Item.
	Value []byte
	// Ref is the target of a Reference.
	Ref *ReferencePath
	// MaxHops is an optional hop count carried in the reference's
	// encoding. Zero means unset. Reference resolution does not consult
	// it and always allows up to MaxReferenceHops.
	MaxHops uint8
	// RootKey is the nested tree's root node key; nil for an empty tree.
	RootKey []byte
	// Sum is the summand of a SumItem or the aggregate of a SumTree.
	Sum int64
	// Flags is an opaque blob interpreted by callers.
	Flags []byte
}

// NewItem returns an Item element.
func NewItem(value []byte) *Element {
	return &Element{Type: ItemElement, Value: value}
}

// NewItemWithFlags returns an Item element with flags.
func NewItemWithFlags(value, flags []byte) *Element {
	return &Element{Type: ItemElement, Value: value, Flags: flags}
}

// NewReference returns a Reference element.
func NewReference(ref *ReferencePath) *Element {
	return &Element{Type: ReferenceElement, Ref: ref}
}

// NewReferenceWithHops returns a Reference element with a hop bound.
func NewReferenceWithHops(ref *ReferencePath, maxHops uint8) *Element {
	return &Element{Type: ReferenceElement, Ref: ref, MaxHops: maxHops}
}

// EmptyTree returns a Tree element naming an empty subtree.
func EmptyTree() *Element {
	return &Element{Type: TreeElement}
}

// EmptyTreeWithFlags returns a flagged Tree element naming an empty
// subtree.
func EmptyTreeWithFlags(flags []byte) *Element {
	return &Element{Type: TreeElement, Flags: flags}
}

// NewTree returns a Tree element with a known root key.
func NewTree(rootKey []byte) *Element {
	return &Element{Type: TreeElement, RootKey: rootKey}
}

// NewSumItem returns a SumItem element.
func NewSumItem(sum int64) *Element {
	return &Element{Type: SumItemElement, Sum: sum}
}

// EmptySumTree returns a SumTree element naming an empty subtree.
func EmptySumTree() *Element {
	return &Element{Type: SumTreeElement}
}

// IsTree reports whether the element names a nested subtree.
func (e *Element) IsTree() bool {
	return e.Type == TreeElement || e.Type == SumTreeElement
}

func writeVarBytes(buf *bytes.Buffer, b []byte) {
	var lenBuf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(lenBuf[:], uint64(len(b)))
	buf.Write(lenBuf[:n])
	buf.Write(b)
}

func readVarBytes(r *bytes.Reader) ([]byte, error) {
	n, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, err
	}
	if n > uint64(r.Len()) {
		return nil, io.ErrUnexpectedEOF
	}
	out := make([]byte, n)
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Serialize encodes the element into its canonical byte form.
func (e *Element) Serialize() []byte {
	var buf bytes.Buffer
	if len(e.Flags) > 0 {
		buf.WriteByte(1)
		writeVarBytes(&buf, e.Flags)
	} else {
		buf.WriteByte(0)
	}
	buf.WriteByte(byte(e.Type))
	switch e.Type {
	case ItemElement:
		writeVarBytes(&buf, e.Value)
	case ReferenceElement:
		e.Ref.encode(&buf)
		if e.MaxHops > 0 {
			buf.WriteByte(1)
			buf.WriteByte(e.MaxHops)
		} else {
			buf.WriteByte(0)
		}
	case TreeElement:
		encodeRootKeyOpt(&buf, e.RootKey)
	case SumItemElement:
		var sum [8]byte
		binary.BigEndian.PutUint64(sum[:], uint64(e.Sum))
		buf.Write(sum[:])
	case SumTreeElement:
		encodeRootKeyOpt(&buf, e.RootKey)
		var sum [8]byte
		binary.BigEndian.PutUint64(sum[:], uint64(e.Sum))
		buf.Write(sum[:])
	}
	return buf.Bytes()
}

func encodeRootKeyOpt(buf *bytes.Buffer, rootKey []byte) {
	if rootKey == nil {
		buf.WriteByte(0)
		return
	}
	buf.WriteByte(1)
	writeVarBytes(buf, rootKey)
}

func decodeRootKeyOpt(r *bytes.Reader) ([]byte, error) {
	present, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	if present == 0 {
		return nil, nil
	}
	return readVarBytes(r)
}

// ParseElement decodes an element from its canonical byte form.
func ParseElement(data []byte) (*Element, error) {
	r := bytes.NewReader(data)
	flagged, err := r.ReadByte()
	if err != nil {
		return nil, newError(ErrCorruptedData, "element too short")
	}
	e := &Element{}
	if flagged == 1 {
		if e.Flags, err = readVarBytes(r); err != nil {
			return nil, newError(ErrCorruptedData, "element flags truncated")
		}
	} else if flagged != 0 {
		return nil, newError(ErrCorruptedData, "element flags tag invalid")
	}
	tag, err := r.ReadByte()
	if err != nil {
		return nil, newError(ErrCorruptedData, "element tag missing")
	}
	e.Type = ElementType(tag)
	switch e.Type {
	case ItemElement:
		if e.Value, err = readVarBytes(r); err != nil {
			return nil, newError(ErrCorruptedData, "item payload truncated")
		}
	case ReferenceElement:
		if e.Ref, err = decodeReferencePath(r); err != nil {
			return nil, err
		}
		present, err := r.ReadByte()
		if err != nil {
			return nil, newError(ErrCorruptedData, "reference hop option truncated")
		}
		if present == 1 {
			if e.MaxHops, err = r.ReadByte(); err != nil {
				return nil, newError(ErrCorruptedData, "reference hops truncated")
			}
		}
	case TreeElement:
		if e.RootKey, err = decodeRootKeyOpt(r); err != nil {
			return nil, newError(ErrCorruptedData, "tree root key truncated")
		}
	case SumItemElement:
		var sum [8]byte
		if _, err := io.ReadFull(r, sum[:]); err != nil {
			return nil, newError(ErrCorruptedData, "sum item truncated")
		}
		e.Sum = int64(binary.BigEndian.Uint64(sum[:]))
	case SumTreeElement:
		if e.RootKey, err = decodeRootKeyOpt(r); err != nil {
			return nil, newError(ErrCorruptedData, "sum tree root key truncated")
		}
		var sum [8]byte
		if _, err := io.ReadFull(r, sum[:]); err != nil {
			return nil, newError(ErrCorruptedData, "sum tree sum truncated")
		}
		e.Sum = int64(binary.BigEndian.Uint64(sum[:]))
	default:
		return nil, newErrorf(ErrCorruptedData, "unknown element tag %d", tag)
	}
	if r.Len() != 0 {
		return nil, newError(ErrCorruptedData, "element has trailing bytes")
	}
	return e, nil
}

func varintSize(n uint64) uint32 {
	var buf [binary.MaxVarintLen64]byte
	return uint32(binary.PutUvarint(buf[:], n))
}

// treeValueSizeReservation is the fixed length-byte allowance of tree
// element values, sized for a body of up to 98 plus a root key of up to
// 256 bytes.
const treeValueSizeReservation = 2

// CostSize is the accounted storage footprint of the element's node value:
// for items, sum items and references, the serialized bytes plus the value
// hash and node hash slots and the value length bytes; for trees and sum
// trees, the serialized bytes plus one hash slot and the fixed
// treeValueSizeReservation in place of the length bytes. Costs are a function of the element alone, so fees
// can be charged before anything is written.
func (e *Element) CostSize() uint32 {
	flagsCost := uint32(1)
	if len(e.Flags) > 0 {
		flagsCost += varintSize(uint64(len(e.Flags))) + uint32(len(e.Flags))
	}
	rootKeyOpt := uint32(1)
	if e.RootKey != nil {
		rootKeyOpt += varintSize(uint64(len(e.RootKey))) + uint32(len(e.RootKey))
	}
	switch e.Type {
	case ItemElement:
		body := flagsCost + 1 + varintSize(uint64(len(e.Value))) + uint32(len(e.Value)) + 2*merk.HashSize
		return body + varintSize(uint64(body))
	case SumItemElement:
		body := flagsCost + 1 + 8 + 2*merk.HashSize
		return body + varintSize(uint64(body))
	case ReferenceElement:
		var buf bytes.Buffer
		e.Ref.encode(&buf)
		refLen := uint32(buf.Len()) + 1
		if e.MaxHops > 0 {
			refLen++
		}
		body := flagsCost + 1 + refLen + 2*merk.HashSize
		return body + varintSize(uint64(body))
	case TreeElement:
		return flagsCost + 1 + rootKeyOpt + merk.HashSize + treeValueSizeReservation
	case SumTreeElement:
		return flagsCost + 1 + rootKeyOpt + 8 + merk.HashSize + treeValueSizeReservation
	default:
		return 0
	}
}

// elementValueCost is the merk-facing cost function: it decodes node
// values as elements so trees and items are accounted by their own
// formulas.
func elementValueCost(value []byte) uint32 {
	e, err := ParseElement(value)
	if err != nil {
		return merk.BasicValueCost(value)
	}
	return e.CostSize()
}
