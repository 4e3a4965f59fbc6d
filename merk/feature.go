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

// FeatureKind distinguishes plain nodes from nodes of a summed tree.
type FeatureKind uint8

const (
	// BasicMerkNode is a node of a plain tree.
	BasicMerkNode FeatureKind = 0
	// SummedMerkNode is a node of a sum tree; it carries the aggregated
	// sum of its whole subtree.
	SummedMerkNode FeatureKind = 1
)

// Feature is a node's feature type: the kind plus the subtree sum for
// summed nodes.
type Feature struct {
	Kind FeatureKind
	Sum  int64
}

// BasicFeature is the feature of a plain tree node.
func BasicFeature() Feature {
	return Feature{Kind: BasicMerkNode}
}

// SummedFeature is the feature of a sum tree node with the given aggregate.
func SummedFeature(sum int64) Feature {
	return Feature{Kind: SummedMerkNode, Sum: sum}
}

// encodedSize is 1 for basic nodes, 9 for summed (tag plus big-endian sum).
func (f Feature) encodedSize() int {
	if f.Kind == SummedMerkNode {
		return 9
	}
	return 1
}
