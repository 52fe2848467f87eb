// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package hierarchy

// IndexStats contains statistics about a hierarchy index.
type IndexStats struct {
	// TotalNodes is the number of indexed descendants.
	TotalNodes int

	// MaxDepth is the deepest indexed depth.
	MaxDepth int

	// DistinctNames is the number of distinct node names.
	DistinctNames int
}

// Index provides O(1) lookups of the descendants of one root by name and
// by depth.
//
// The index maintains:
//   - byName: name → nodes, in tree pre-order
//   - byDepth: depth → nodes, in tree pre-order
//   - depthOf: node → depth relative to the root
//
// Thread Safety:
//
//	Not safe for concurrent use. An index belongs to one resolution pass.
//
// Ownership:
//
//	The index stores pointers to nodes but does NOT own them. Nodes added
//	after construction (fabricated scaffolding) must be registered with Add.
type Index struct {
	root    *Node
	byName  map[string][]*Node
	byDepth map[int][]*Node
	depthOf map[*Node]int
	seq     map[*Node]int
}

// NewIndex indexes every descendant of root.
//
// Example:
//
//	idx := NewIndex(targetRoot)
//	leaves := idx.ByName("End")
func NewIndex(root *Node) *Index {
	idx := &Index{
		root:    root,
		byName:  make(map[string][]*Node),
		byDepth: make(map[int][]*Node),
		depthOf: make(map[*Node]int),
		seq:     make(map[*Node]int),
	}
	Walk(root, func(n *Node, depth int) {
		idx.addLocked(n, depth)
	})
	return idx
}

// Root returns the indexed root.
func (idx *Index) Root() *Node {
	return idx.root
}

// Add registers a node created after the index was built.
//
// Outputs:
//
//	bool - False if n is already indexed or is not under the root.
func (idx *Index) Add(n *Node) bool {
	if _, exists := idx.depthOf[n]; exists {
		return false
	}
	depth, ok := Depth(idx.root, n)
	if !ok || depth == 0 {
		return false
	}
	idx.addLocked(n, depth)
	return true
}

func (idx *Index) addLocked(n *Node, depth int) {
	idx.byName[n.Name] = append(idx.byName[n.Name], n)
	idx.byDepth[depth] = append(idx.byDepth[depth], n)
	idx.depthOf[n] = depth
	idx.seq[n] = len(idx.seq)
}

// ByName returns a copy of the nodes named name, in tree order.
func (idx *Index) ByName(name string) []*Node {
	return copyNodes(idx.byName[name])
}

// AtDepth returns a copy of the nodes at depth, in tree order.
func (idx *Index) AtDepth(depth int) []*Node {
	return copyNodes(idx.byDepth[depth])
}

// DepthOf returns the indexed depth of n.
func (idx *Index) DepthOf(n *Node) (int, bool) {
	d, ok := idx.depthOf[n]
	return d, ok
}

// Position returns the registration order of n, used as the final
// deterministic tie-break when ranking candidates.
func (idx *Index) Position(n *Node) int {
	if p, ok := idx.seq[n]; ok {
		return p
	}
	return len(idx.seq)
}

// Len returns the number of indexed nodes.
func (idx *Index) Len() int {
	return len(idx.seq)
}

// Stats returns statistics about the index.
func (idx *Index) Stats() IndexStats {
	maxDepth := 0
	for d := range idx.byDepth {
		if d > maxDepth {
			maxDepth = d
		}
	}
	return IndexStats{
		TotalNodes:    len(idx.seq),
		MaxDepth:      maxDepth,
		DistinctNames: len(idx.byName),
	}
}

func copyNodes(src []*Node) []*Node {
	if len(src) == 0 {
		return nil
	}
	out := make([]*Node, len(src))
	copy(out, src)
	return out
}
