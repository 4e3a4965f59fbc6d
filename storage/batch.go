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

package storage

// BatchOp is one deferred write.
type BatchOp struct {
	Col      Column
	Prefix   Prefix
	Key      []byte
	Value    []byte
	Deletion bool
}

// Batch accumulates writes across any number of contexts and column
// families for a single atomic commit. The zero value is ready to use. A
// later write to the same (column, prefix, key) supersedes an earlier one.
type Batch struct {
	ops   []BatchOp
	index map[batchKey]int
}

type batchKey struct {
	col    Column
	prefix Prefix
	key    string
}

// NewBatch returns an empty batch.
func NewBatch() *Batch {
	return &Batch{index: make(map[batchKey]int)}
}

func (b *Batch) set(op BatchOp) {
	if b.index == nil {
		b.index = make(map[batchKey]int)
	}
	k := batchKey{op.Col, op.Prefix, string(op.Key)}
	if i, ok := b.index[k]; ok {
		b.ops[i] = op
		return
	}
	b.index[k] = len(b.ops)
	b.ops = append(b.ops, op)
}

// Put defers a write of value under (col, prefix, key).
func (b *Batch) Put(col Column, prefix Prefix, key, value []byte) {
	b.set(BatchOp{Col: col, Prefix: prefix, Key: key, Value: value})
}

// Delete defers a removal of (col, prefix, key).
func (b *Batch) Delete(col Column, prefix Prefix, key []byte) {
	b.set(BatchOp{Col: col, Prefix: prefix, Key: key, Deletion: true})
}

// Len returns the number of pending writes.
func (b *Batch) Len() int {
	return len(b.ops)
}

// Ops returns the pending writes in insertion order with supersessions
// already collapsed.
func (b *Batch) Ops() []BatchOp {
	return b.ops
}

// Lookup returns the pending write for (col, prefix, key), if any. Batch
// contexts do not consult it: their reads go to the committed store or the
// transaction, not to the batch's own writes.
func (b *Batch) Lookup(col Column, prefix Prefix, key []byte) (BatchOp, bool) {
	if b.index == nil {
		return BatchOp{}, false
	}
	i, ok := b.index[batchKey{col, prefix, string(key)}]
	if !ok {
		return BatchOp{}, false
	}
	return b.ops[i], true
}
