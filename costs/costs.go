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

// Package costs implements the deterministic resource accounting that
// accompanies every database operation. Costs form an additive commutative
// monoid: the cost of a compound operation is the sum of the costs of its
// parts, independent of evaluation order. Byte counts are normative; two
// implementations executing the same operation against the same state must
// agree on every field.
package costs

// RemovalKind discriminates the representations of removed storage bytes.
type RemovalKind uint8

const (
	// NoRemoval means the operation freed no storage.
	NoRemoval RemovalKind = iota
	// BasicRemoval is a plain byte count.
	BasicRemoval
	// SectionedRemoval distributes removed bytes over caller-defined
	// epochs. The engine treats epoch ids as opaque; it only sums the
	// per-epoch counts when aggregating.
	SectionedRemoval
)

// StorageRemovedBytes is a sum type over the removal kinds.
type StorageRemovedBytes struct {
	Kind     RemovalKind
	Bytes    uint32
	Sections map[uint16]uint32
}

// NoStorageRemoval returns the identity removal.
func NoStorageRemoval() StorageRemovedBytes {
	return StorageRemovedBytes{Kind: NoRemoval}
}

// BasicStorageRemoval returns a plain removal of n bytes.
func BasicStorageRemoval(n uint32) StorageRemovedBytes {
	return StorageRemovedBytes{Kind: BasicRemoval, Bytes: n}
}

// SectionedStorageRemoval returns a removal distributed over epochs.
func SectionedStorageRemoval(sections map[uint16]uint32) StorageRemovedBytes {
	return StorageRemovedBytes{Kind: SectionedRemoval, Sections: sections}
}

// TotalRemovedBytes sums the removal regardless of kind.
func (r StorageRemovedBytes) TotalRemovedBytes() uint32 {
	switch r.Kind {
	case BasicRemoval:
		return r.Bytes
	case SectionedRemoval:
		var total uint32
		for _, n := range r.Sections {
			total += n
		}
		return total
	default:
		return 0
	}
}

// Add combines two removals. Basic counts merge by addition; sectioned
// counts merge per epoch. Mixing a basic and a sectioned removal folds the
// basic count into epoch 0.
func (r StorageRemovedBytes) Add(other StorageRemovedBytes) StorageRemovedBytes {
	switch {
	case other.Kind == NoRemoval:
		return r
	case r.Kind == NoRemoval:
		return other
	case r.Kind == BasicRemoval && other.Kind == BasicRemoval:
		return BasicStorageRemoval(r.Bytes + other.Bytes)
	default:
		sections := make(map[uint16]uint32)
		for epoch, n := range r.Sections {
			sections[epoch] += n
		}
		for epoch, n := range other.Sections {
			sections[epoch] += n
		}
		if r.Kind == BasicRemoval {
			sections[0] += r.Bytes
		}
		if other.Kind == BasicRemoval {
			sections[0] += other.Bytes
		}
		return SectionedStorageRemoval(sections)
	}
}

// Equal reports whether two removals are identical, including the epoch
// distribution for sectioned removals.
func (r StorageRemovedBytes) Equal(other StorageRemovedBytes) bool {
	if r.Kind != other.Kind || r.Bytes != other.Bytes {
		return false
	}
	if len(r.Sections) != len(other.Sections) {
		return false
	}
	for epoch, n := range r.Sections {
		if other.Sections[epoch] != n {
			return false
		}
	}
	return true
}

// StorageCost tracks the byte-exact storage deltas of an operation.
type StorageCost struct {
	// AddedBytes is storage newly occupied.
	AddedBytes uint32
	// ReplacedBytes is storage rewritten in place.
	ReplacedBytes uint32
	// RemovedBytes is storage freed.
	RemovedBytes StorageRemovedBytes
}

// Add accumulates another storage cost into the receiver.
func (s *StorageCost) Add(other StorageCost) {
	s.AddedBytes += other.AddedBytes
	s.ReplacedBytes += other.ReplacedBytes
	s.RemovedBytes = s.RemovedBytes.Add(other.RemovedBytes)
}

// Equal reports whether two storage costs are identical.
func (s StorageCost) Equal(other StorageCost) bool {
	return s.AddedBytes == other.AddedBytes &&
		s.ReplacedBytes == other.ReplacedBytes &&
		s.RemovedBytes.Equal(other.RemovedBytes)
}

// OperationCost is the full resource record of one operation.
type OperationCost struct {
	// SeekCount is the number of backend lookups or cursor placements.
	SeekCount uint32
	// StorageLoadedBytes is the accounted footprint of data read from
	// the backend.
	StorageLoadedBytes uint32
	// StorageCost is the storage delta of the operation.
	StorageCost StorageCost
	// HashNodeCalls is the number of hash function invocations.
	HashNodeCalls uint32
}

// Add accumulates another operation cost into the receiver.
func (c *OperationCost) Add(other *OperationCost) {
	c.SeekCount += other.SeekCount
	c.StorageLoadedBytes += other.StorageLoadedBytes
	c.StorageCost.Add(other.StorageCost)
	c.HashNodeCalls += other.HashNodeCalls
}

// Equal reports whether two operation costs are identical.
func (c *OperationCost) Equal(other *OperationCost) bool {
	return c.SeekCount == other.SeekCount &&
		c.StorageLoadedBytes == other.StorageLoadedBytes &&
		c.StorageCost.Equal(other.StorageCost) &&
		c.HashNodeCalls == other.HashNodeCalls
}
