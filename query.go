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
	"github.com/grovedb/grovedb/costs"
	"github.com/grovedb/grovedb/merk"
)

// SizedQuery bounds a query with an optional limit and offset.
type SizedQuery struct {
	Query  *merk.Query
	Limit  *uint16
	Offset *uint16
}

// NewSizedQuery wraps a query without bounds.
func NewSizedQuery(q *merk.Query) SizedQuery {
	return SizedQuery{Query: q}
}

// PathQuery addresses a query at one subtree of the forest.
type PathQuery struct {
	Path  [][]byte
	Query SizedQuery
}

// NewPathQuery builds an unbounded path query.
func NewPathQuery(path [][]byte, q *merk.Query) *PathQuery {
	return &PathQuery{Path: copySegments(path), Query: NewSizedQuery(q)}
}

// QueryResult is one matched entry.
type QueryResult struct {
	Key     []byte
	Element *Element
}

// GetPathQuery runs a query against the addressed subtree, resolving
// references in the results and honoring offset and limit.
func (db *GroveDB) GetPathQuery(pq *PathQuery, tx *Transaction) ([]QueryResult, *costs.OperationCost, error) {
	cost := &costs.OperationCost{}
	m, err := db.openMerk(pq.Path, tx, nil, true, cost)
	if err != nil {
		return nil, cost, err
	}
	if m.IsEmpty() && len(pq.Path) > 0 {
		if err := db.checkSubtreeExists(pq.Path, tx, cost, ErrPathNotFound); err != nil {
			return nil, cost, err
		}
	}

	var (
		results []QueryResult
		skip    uint16
		limit   = ^uint16(0)
	)
	if pq.Query.Offset != nil {
		skip = *pq.Query.Offset
	}
	if pq.Query.Limit != nil {
		limit = *pq.Query.Limit
	}
	var walkErr error
	err = m.Iterate(func(key, value []byte, _ *merk.TreeNode) (bool, error) {
		if limit == 0 {
			return false, nil
		}
		if !pq.Query.Query.Matches(key) {
			return true, nil
		}
		if skip > 0 {
			skip--
			return true, nil
		}
		elem, err := ParseElement(value)
		if err != nil {
			walkErr = err
			return false, nil
		}
		if elem.Type == ReferenceElement {
			qualified, err := elem.Ref.Resolve(pq.Path, key)
			if err != nil {
				walkErr = err
				return false, nil
			}
			if elem, err = db.followReference(qualified, tx, cost); err != nil {
				walkErr = err
				return false, nil
			}
		}
		results = append(results, QueryResult{Key: append([]byte(nil), key...), Element: elem})
		limit--
		return true, nil
	}, cost)
	if walkErr != nil {
		return nil, cost, walkErr
	}
	if err != nil {
		return nil, cost, wrapError(ErrBackend, "iterating subtree", err)
	}
	return results, cost, nil
}
