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
	"errors"
	"fmt"

	"github.com/grovedb/grovedb/costs"
	"github.com/grovedb/grovedb/merk"
	"github.com/grovedb/grovedb/pathlib"
)

// Get returns the element at (path, key), following references to their
// terminal element.
func (db *GroveDB) Get(path [][]byte, key []byte, tx *Transaction) (*Element, *costs.OperationCost, error) {
	cost := &costs.OperationCost{}
	elem, err := db.getRaw(path, key, tx, cost)
	if err != nil {
		return nil, cost, err
	}
	if elem.Type != ReferenceElement {
		return elem, cost, nil
	}
	qualified, err := elem.Ref.Resolve(path, key)
	if err != nil {
		return nil, cost, err
	}
	elem, err = db.followReference(qualified, tx, cost)
	return elem, cost, err
}

// GetRaw returns the element at (path, key) without following references.
func (db *GroveDB) GetRaw(path [][]byte, key []byte, tx *Transaction) (*Element, *costs.OperationCost, error) {
	cost := &costs.OperationCost{}
	elem, err := db.getRaw(path, key, tx, cost)
	return elem, cost, err
}

func (db *GroveDB) getRaw(path [][]byte, key []byte, tx *Transaction, cost *costs.OperationCost) (*Element, error) {
	m, err := db.openMerk(path, tx, nil, true, cost)
	if err != nil {
		return nil, err
	}
	raw, err := m.Get(key, cost)
	if errors.Is(err, merk.ErrKeyNotFound) {
		if m.IsEmpty() && len(path) > 0 {
			// An empty subtree here may mean the whole path is
			// bogus; report the more precise failure.
			if err := db.checkSubtreeExists(path, tx, cost, ErrPathNotFound); err != nil {
				return nil, err
			}
		}
		return nil, newErrorf(ErrPathKeyNotFound, "key %x not found under %s", key, pathString(path))
	}
	if err != nil {
		return nil, wrapError(ErrBackend, "reading element", err)
	}
	return ParseElement(raw)
}

// followReference chases a qualified path through at most MaxReferenceHops
// indirections, rejecting cycles.
func (db *GroveDB) followReference(qualified [][]byte, tx *Transaction, cost *costs.OperationCost) (*Element, error) {
	hopsLeft := MaxReferenceHops
	visited := make(map[string]struct{})
	for hopsLeft > 0 {
		fp := fingerprint(qualified)
		if _, seen := visited[fp]; seen {
			return nil, newError(ErrCyclicReference, "reference cycle detected")
		}
		visited[fp] = struct{}{}
		if len(qualified) == 0 {
			return nil, newError(ErrCorruptedPath, "empty reference path")
		}
		refPath := qualified[:len(qualified)-1]
		refKey := qualified[len(qualified)-1]
		elem, err := db.getRaw(refPath, refKey, tx, cost)
		if err != nil {
			return nil, corruptReferenceError(err)
		}
		if elem.Type != ReferenceElement {
			return elem, nil
		}
		qualified, err = elem.Ref.Resolve(refPath, refKey)
		if err != nil {
			return nil, err
		}
		hopsLeft--
	}
	return nil, newError(ErrReferenceLimit, "reference hop limit exceeded")
}

// corruptReferenceError upgrades lookup failures met while following a
// reference: a dangling reference is a corruption, not a miss.
func corruptReferenceError(err error) error {
	var e *Error
	if !asError(err, &e) {
		return err
	}
	switch e.Kind {
	case ErrPathParentLayerNotFound:
		return wrapError(ErrCorruptedReferencePathParentLayerNotFound, e.Msg, err)
	case ErrPathKeyNotFound:
		return wrapError(ErrCorruptedReferencePathKeyNotFound, e.Msg, err)
	case ErrPathNotFound:
		return wrapError(ErrCorruptedReferencePathNotFound, e.Msg, err)
	default:
		return err
	}
}

// Has reports whether (path, key) resolves to an element, following
// references.
func (db *GroveDB) Has(path [][]byte, key []byte, tx *Transaction) (bool, *costs.OperationCost, error) {
	elem, cost, err := db.Get(path, key, tx)
	if err != nil {
		if kind := KindOf(err); kind == ErrPathKeyNotFound || kind == ErrPathNotFound {
			return false, cost, nil
		}
		return false, cost, err
	}
	return elem != nil, cost, nil
}

// HasRaw reports whether (path, key) holds an element, without following
// references.
func (db *GroveDB) HasRaw(path [][]byte, key []byte, tx *Transaction) (bool, *costs.OperationCost, error) {
	cost := &costs.OperationCost{}
	_, err := db.getRaw(path, key, tx, cost)
	if err != nil {
		if kind := KindOf(err); kind == ErrPathKeyNotFound || kind == ErrPathNotFound {
			return false, cost, nil
		}
		return false, cost, err
	}
	return true, cost, nil
}

// checkSubtreeExists verifies the element addressed by path exists and is
// a subtree, reporting notFoundKind at the final layer.
func (db *GroveDB) checkSubtreeExists(path [][]byte, tx *Transaction, cost *costs.OperationCost, notFoundKind ErrorKind) error {
	if len(path) == 0 {
		return nil
	}
	parent := path[:len(path)-1]
	key := path[len(path)-1]
	m, err := db.openMerk(parent, tx, nil, true, cost)
	if err != nil {
		return err
	}
	raw, err := m.Get(key, cost)
	if errors.Is(err, merk.ErrKeyNotFound) {
		if m.IsEmpty() && len(parent) > 0 {
			if err := db.checkSubtreeExists(parent, tx, cost, ErrPathParentLayerNotFound); err != nil {
				return err
			}
		}
		return newErrorf(notFoundKind, "subtree does not exist at %s", pathString(path))
	}
	if err != nil {
		return wrapError(ErrBackend, "reading parent layer", err)
	}
	elem, err := ParseElement(raw)
	if err != nil {
		return err
	}
	if !elem.IsTree() {
		return newErrorf(ErrInvalidParentLayerPath, "element at %s is not a subtree", pathString(path))
	}
	return nil
}

// CheckSubtreeExistsPathNotFound verifies path names an existing subtree,
// reporting a path-not-found failure otherwise.
func (db *GroveDB) CheckSubtreeExistsPathNotFound(path [][]byte, tx *Transaction) (*costs.OperationCost, error) {
	cost := &costs.OperationCost{}
	return cost, db.checkSubtreeExists(path, tx, cost, ErrPathNotFound)
}

// CheckSubtreeExistsInvalidPath verifies path names an existing subtree,
// reporting an invalid-path failure otherwise.
func (db *GroveDB) CheckSubtreeExistsInvalidPath(path [][]byte, tx *Transaction) (*costs.OperationCost, error) {
	cost := &costs.OperationCost{}
	return cost, db.checkSubtreeExists(path, tx, cost, ErrInvalidPath)
}

func fingerprint(path [][]byte) string {
	h := pathlib.HashSegments(path)
	return string(h[:])
}

func pathString(path [][]byte) string {
	if len(path) == 0 {
		return "[]"
	}
	out := "["
	for i, s := range path {
		if i > 0 {
			out += ", "
		}
		out += fmt.Sprintf("%x", s)
	}
	return out + "]"
}
