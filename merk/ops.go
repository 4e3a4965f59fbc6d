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

	"github.com/grovedb/grovedb/costs"
	"github.com/grovedb/grovedb/storage"
)

// OpType enumerates batch operations.
type OpType uint8

const (
	// OpPut inserts or replaces a plain value.
	OpPut OpType = iota
	// OpPutCombinedRef inserts a reference value; the node's value hash
	// commits to both the stored bytes and the referenced value hash.
	OpPutCombinedRef
	// OpPutLayered inserts a value whose hash is supplied by the caller,
	// used for elements naming nested subtrees.
	OpPutLayered
	// OpPutSum inserts a value contributing to the tree's sum aggregate.
	OpPutSum
	// OpDelete removes a key.
	OpDelete
	// OpDeleteLayered removes a key holding a nested-subtree element.
	OpDeleteLayered
)

// Op is one operation of a batch.
type Op struct {
	Type  OpType
	Key   []byte
	Value []byte
	// RefValueHash is the referenced value hash for OpPutCombinedRef.
	RefValueHash Hash
	// LayeredHash is the externally supplied value hash for OpPutLayered.
	LayeredHash Hash
	// Sum is the node's own contribution to a sum tree aggregate.
	Sum int64
	// ValueCost overrides the accounted value footprint; zero means use
	// the tree's value cost function.
	ValueCost uint32
}

func (o *Op) isDelete() bool {
	return o.Type == OpDelete || o.Type == OpDeleteLayered
}

// Batch is a list of operations sorted ascending by unique key.
type Batch []Op

// ValidateBatch checks the ascending-unique-keys precondition.
func ValidateBatch(batch Batch) error {
	for i := 1; i < len(batch); i++ {
		if bytes.Compare(batch[i-1].Key, batch[i].Key) >= 0 {
			return ErrBatchUnsorted
		}
	}
	return nil
}

// AuxOp is a write to the auxiliary column family, applied alongside a
// batch.
type AuxOp struct {
	Key      []byte
	Value    []byte
	Deletion bool
}

// Options configures how a tree accounts and commits.
type Options struct {
	// ValueCost computes the accounted footprint of a stored value. The
	// composition layer installs an element-aware function here; the
	// default treats every value as a plain item.
	ValueCost func(value []byte) uint32
	// SectionedRemoval converts removed bytes into a removal record,
	// letting callers distribute refunds over epochs. The default is a
	// basic count.
	SectionedRemoval func(value []byte, removed uint32) costs.StorageRemovedBytes
	// BaseRootStorageIsFree exempts the root key pointer row from
	// storage accounting. Defaults to true.
	BaseRootStorageIsFree bool
}

// DefaultOptions returns the standalone-tree configuration.
func DefaultOptions() *Options {
	return &Options{
		ValueCost:             BasicValueCost,
		SectionedRemoval:      func(_ []byte, removed uint32) costs.StorageRemovedBytes { return costs.BasicStorageRemoval(removed) },
		BaseRootStorageIsFree: true,
	}
}

func (o *Options) valueCost(value []byte) uint32 {
	if o != nil && o.ValueCost != nil {
		return o.ValueCost(value)
	}
	return BasicValueCost(value)
}

func (o *Options) removal(value []byte, removed uint32) costs.StorageRemovedBytes {
	if o != nil && o.SectionedRemoval != nil {
		return o.SectionedRemoval(value, removed)
	}
	return costs.BasicStorageRemoval(removed)
}

// KeyCost is the accounted footprint of a node row key: the namespace
// prefix, the key bytes and the length byte(s) of the prefixed key.
func KeyCost(key []byte) uint32 {
	return storage.PrefixSize + uint32(len(key)) + varintLen(uint64(storage.PrefixSize+len(key)))
}

// ParentHookCost is the overhead a node adds to its parent: the child key,
// the child hash, the key length byte and two child heights.
func ParentHookCost(key []byte) uint32 {
	return uint32(len(key)) + HashSize + 1 + 2
}

// BasicValueCost is the accounted footprint of a plain item value: option
// tag, variant tag, length-prefixed bytes, value hash, node hash, and the
// length of the whole.
func BasicValueCost(value []byte) uint32 {
	body := 1 + 1 + varintLen(uint64(len(value))) + uint32(len(value)) + 2*HashSize
	return body + varintLen(uint64(body))
}

// LoadedCost is the accounted footprint of reading one node row: the
// un-prefixed key footprint plus the value footprint.
func LoadedCost(key []byte, valueCost uint32) uint32 {
	return uint32(len(key)) + varintLen(uint64(storage.PrefixSize+len(key))) + valueCost
}
