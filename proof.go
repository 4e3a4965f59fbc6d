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

	"github.com/grovedb/grovedb/costs"
	"github.com/grovedb/grovedb/merk"
)

// LayerProof authenticates one step of a path: a proof over one subtree.
type LayerProof struct {
	// Ops is the serialized opcode stream.
	Ops []byte
	// ChildRoot carries the nested root hash for sum tree layers, whose
	// element value hash also folds the aggregate in.
	ChildRoot *merk.Hash
}

// Proof authenticates a path query against the forest root: one layer per
// path segment, then the query layer.
type Proof struct {
	Layers []LayerProof
}

// ProveQuery builds a proof for the path query against the current
// committed state.
func (db *GroveDB) ProveQuery(pq *PathQuery, tx *Transaction) (*Proof, *costs.OperationCost, error) {
	cost := &costs.OperationCost{}
	proof := &Proof{}
	for i := 0; i <= len(pq.Path); i++ {
		m, err := db.openMerk(pq.Path[:i], tx, nil, true, cost)
		if err != nil {
			return nil, cost, err
		}
		var query *merk.Query
		last := i == len(pq.Path)
		if last {
			query = pq.Query.Query
		} else {
			query = merk.NewQuery().InsertKey(pq.Path[i])
		}
		ops, err := m.Prove(query, cost)
		if err != nil {
			return nil, cost, wrapError(ErrBackend, "generating layer proof", err)
		}
		layer := LayerProof{Ops: merk.EncodeProofOps(ops)}
		if !last {
			raw, merr := m.Get(pq.Path[i], cost)
			if merr != nil {
				return nil, cost, newErrorf(ErrPathNotFound, "subtree does not exist at %s", pathString(pq.Path[:i+1]))
			}
			elem, err := ParseElement(raw)
			if err != nil {
				return nil, cost, err
			}
			if !elem.IsTree() {
				return nil, cost, newErrorf(ErrInvalidPath, "element at %s is not a subtree", pathString(pq.Path[:i+1]))
			}
			if elem.Type == SumTreeElement {
				child, err := db.openMerk(pq.Path[:i+1], tx, nil, true, cost)
				if err != nil {
					return nil, cost, err
				}
				root := child.RootHash()
				layer.ChildRoot = &root
			}
		}
		proof.Layers = append(proof.Layers, layer)
	}
	return proof, cost, nil
}

// ProvedResult is one query result carried by a verified proof.
type ProvedResult struct {
	Key     []byte
	Element *Element
}

// VerifyQuery checks a proof against the forest root commitment and
// returns the results the query selects. The zero commitment verifies an
// empty forest.
func VerifyQuery(proof *Proof, rootHash merk.Hash, pq *PathQuery) ([]ProvedResult, *costs.OperationCost, error) {
	cost := &costs.OperationCost{}
	if len(proof.Layers) != len(pq.Path)+1 {
		return nil, cost, newErrorf(ErrInvalidInput, "proof has %d layers for a %d segment path", len(proof.Layers), len(pq.Path))
	}
	expected := rootHash
	for i := 0; i < len(pq.Path); i++ {
		ops, err := merk.DecodeProofOps(proof.Layers[i].Ops)
		if err != nil {
			return nil, cost, wrapError(ErrInvalidInput, "layer proof", err)
		}
		query := merk.NewQuery().InsertKey(pq.Path[i])
		results, err := merk.VerifyQueryProof(ops, expected, query, cost)
		if err != nil {
			return nil, cost, wrapError(ErrInvalidInput, "layer proof", err)
		}
		if len(results) != 1 || !bytes.Equal(results[0].Key, pq.Path[i]) {
			return nil, cost, newErrorf(ErrInvalidInput, "layer proof does not reveal %x", pq.Path[i])
		}
		elem, err := ParseElement(results[0].Value)
		if err != nil {
			return nil, cost, err
		}
		switch elem.Type {
		case TreeElement:
			expected = results[0].ValueHash
		case SumTreeElement:
			childRoot := proof.Layers[i].ChildRoot
			if childRoot == nil {
				return nil, cost, newError(ErrInvalidInput, "sum tree layer missing child root")
			}
			if merk.SumTreeValueHash(*childRoot, elem.Sum, cost) != results[0].ValueHash {
				return nil, cost, newError(ErrInvalidInput, "sum tree layer child root mismatch")
			}
			expected = *childRoot
		default:
			return nil, cost, newErrorf(ErrInvalidPath, "element at %x is not a subtree", pq.Path[i])
		}
	}
	ops, err := merk.DecodeProofOps(proof.Layers[len(pq.Path)].Ops)
	if err != nil {
		return nil, cost, wrapError(ErrInvalidInput, "query proof", err)
	}
	results, err := merk.VerifyQueryProof(ops, expected, pq.Query.Query, cost)
	if err != nil {
		return nil, cost, wrapError(ErrInvalidInput, "query proof", err)
	}
	out := make([]ProvedResult, 0, len(results))
	for _, r := range results {
		elem, err := ParseElement(r.Value)
		if err != nil {
			return nil, cost, err
		}
		// Plain values must hash to the proved value hash; layered and
		// reference values carry hashes of their own.
		if elem.Type == ItemElement || elem.Type == SumItemElement {
			if merk.ValueHash(r.Value, cost) != r.ValueHash {
				return nil, cost, newErrorf(ErrInvalidInput, "result value for %x does not match its hash", r.Key)
			}
		}
		out = append(out, ProvedResult{Key: r.Key, Element: elem})
	}
	return out, cost, nil
}
