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

func writeBytes(buf *bytes.Buffer, b []byte) {
	var lenBuf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(lenBuf[:], uint64(len(b)))
	buf.Write(lenBuf[:n])
	buf.Write(b)
}

func readBytes(r *bytes.Reader) ([]byte, error) {
	n, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, ErrProofMalformed
	}
	if n > uint64(r.Len()) {
		return nil, ErrProofMalformed
	}
	out := make([]byte, n)
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, ErrProofMalformed
	}
	return out, nil
}

// EncodeProofOps serializes a proof stream.
func EncodeProofOps(ops []ProofOp) []byte {
	var buf bytes.Buffer
	for i := range ops {
		buf.WriteByte(byte(ops[i].Op))
		if ops[i].Op != OpPush {
			continue
		}
		n := ops[i].Node
		buf.WriteByte(byte(n.Type))
		switch n.Type {
		case NodeHash:
			buf.Write(n.Hash[:])
		case NodeKVHash:
			buf.Write(n.Hash[:])
		case NodeKV:
			writeBytes(&buf, n.Key)
			writeBytes(&buf, n.Value)
		case NodeKVValueHash, NodeKVRefValueHash:
			writeBytes(&buf, n.Key)
			writeBytes(&buf, n.Value)
			buf.Write(n.ValueHash[:])
		case NodeKVDigest:
			writeBytes(&buf, n.Key)
			buf.Write(n.ValueHash[:])
		case NodeKVValueHashFeatureType:
			writeBytes(&buf, n.Key)
			writeBytes(&buf, n.Value)
			buf.Write(n.ValueHash[:])
			encodeFeature(&buf, n.Feature)
		}
	}
	return buf.Bytes()
}

// DecodeProofOps parses a serialized proof stream.
func DecodeProofOps(data []byte) ([]ProofOp, error) {
	r := bytes.NewReader(data)
	var ops []ProofOp
	for r.Len() > 0 {
		tag, _ := r.ReadByte()
		switch ProofOpTag(tag) {
		case OpParent, OpChild:
			ops = append(ops, ProofOp{Op: ProofOpTag(tag)})
			continue
		case OpPush:
		default:
			return nil, ErrProofMalformed
		}
		typ, err := r.ReadByte()
		if err != nil {
			return nil, ErrProofMalformed
		}
		n := &ProofNode{Type: ProofNodeType(typ)}
		switch n.Type {
		case NodeHash, NodeKVHash:
			if _, err := io.ReadFull(r, n.Hash[:]); err != nil {
				return nil, ErrProofMalformed
			}
		case NodeKV:
			if n.Key, err = readBytes(r); err != nil {
				return nil, err
			}
			if n.Value, err = readBytes(r); err != nil {
				return nil, err
			}
		case NodeKVValueHash, NodeKVRefValueHash:
			if n.Key, err = readBytes(r); err != nil {
				return nil, err
			}
			if n.Value, err = readBytes(r); err != nil {
				return nil, err
			}
			if _, err := io.ReadFull(r, n.ValueHash[:]); err != nil {
				return nil, ErrProofMalformed
			}
		case NodeKVDigest:
			if n.Key, err = readBytes(r); err != nil {
				return nil, err
			}
			if _, err := io.ReadFull(r, n.ValueHash[:]); err != nil {
				return nil, ErrProofMalformed
			}
		case NodeKVValueHashFeatureType:
			if n.Key, err = readBytes(r); err != nil {
				return nil, err
			}
			if n.Value, err = readBytes(r); err != nil {
				return nil, err
			}
			if _, err := io.ReadFull(r, n.ValueHash[:]); err != nil {
				return nil, ErrProofMalformed
			}
			if n.Feature, err = decodeFeature(r); err != nil {
				return nil, ErrProofMalformed
			}
		default:
			return nil, ErrProofMalformed
		}
		ops = append(ops, ProofOp{Op: OpPush, Node: n})
	}
	return ops, nil
}
