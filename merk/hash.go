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
	"encoding/binary"

	"golang.org/x/crypto/blake2b"

	"github.com/grovedb/grovedb/costs"
)

// HashSize is the size of all digests used by the tree.
const HashSize = 32

// Hash is a 32-byte Blake2b-256 digest.
type Hash = [HashSize]byte

// NullHash is the hash of an empty (sub)tree.
var NullHash = Hash{}

func hashValue(value []byte, cost *costs.OperationCost) Hash {
	cost.HashNodeCalls++
	return blake2b.Sum256(value)
}

// hashKV binds a key to a value hash: H(len(key) ∥ key ∥ len(vh) ∥ vh) with
// varint lengths.
func hashKV(key []byte, valueHash Hash, cost *costs.OperationCost) Hash {
	cost.HashNodeCalls++
	h, _ := blake2b.New256(nil)
	var lenBuf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(lenBuf[:], uint64(len(key)))
	h.Write(lenBuf[:n])
	h.Write(key)
	n = binary.PutUvarint(lenBuf[:], uint64(HashSize))
	h.Write(lenBuf[:n])
	h.Write(valueHash[:])
	var out Hash
	copy(out[:], h.Sum(nil))
	return out
}

// hashNode combines a node's kv hash with its child hashes. Absent children
// contribute NullHash.
func hashNode(kvHash, left, right Hash, cost *costs.OperationCost) Hash {
	cost.HashNodeCalls++
	h, _ := blake2b.New256(nil)
	h.Write(kvHash[:])
	h.Write(left[:])
	h.Write(right[:])
	var out Hash
	copy(out[:], h.Sum(nil))
	return out
}

// combineHash folds two digests into one. Used for reference elements,
// whose node value hash commits to both the stored bytes and the referenced
// value.
func combineHash(a, b Hash, cost *costs.OperationCost) Hash {
	cost.HashNodeCalls++
	h, _ := blake2b.New256(nil)
	h.Write(a[:])
	h.Write(b[:])
	var out Hash
	copy(out[:], h.Sum(nil))
	return out
}

// hashLayered folds a nested subtree root and a sum accumulator into a
// value hash for sum tree elements.
func hashLayered(root Hash, sum int64, cost *costs.OperationCost) Hash {
	cost.HashNodeCalls++
	h, _ := blake2b.New256(nil)
	h.Write(root[:])
	var sumBuf [8]byte
	binary.BigEndian.PutUint64(sumBuf[:], uint64(sum))
	h.Write(sumBuf[:])
	var out Hash
	copy(out[:], h.Sum(nil))
	return out
}
