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

import (
	"fmt"
	"strings"
)

// PathSeparator joins path segments in their string form.
const PathSeparator = "/"

// Path is the ordered sequence of names from an (exclusive) root to an
// (inclusive) node. The empty path denotes the root itself.
type Path []string

// String renders the path as slash-delimited names.
func (p Path) String() string {
	return strings.Join(p, PathSeparator)
}

// Leaf returns the last segment, or "" for the empty path.
func (p Path) Leaf() string {
	if len(p) == 0 {
		return ""
	}
	return p[len(p)-1]
}

// ParsePath splits a slash-delimited path. Empty segments are dropped, so
// "", "/" and "//" all parse to the empty (root) path.
func ParsePath(s string) Path {
	parts := strings.Split(s, PathSeparator)
	out := make(Path, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// PathOf computes node's path relative to root.
//
// Description:
//
//	Walks node.Parent until root is reached. O(depth).
//
// Outputs:
//
//	Path - The names from root (exclusive) to node (inclusive). Non-nil and
//	       empty when node == root.
//	bool - False if root is never reached, i.e. node is not under root.
func PathOf(root, node *Node) (Path, bool) {
	if root == nil || node == nil {
		return nil, false
	}
	var reversed []string
	for cur := node; cur != nil; cur = cur.Parent {
		if cur == root {
			path := make(Path, len(reversed))
			for i, name := range reversed {
				path[len(reversed)-1-i] = name
			}
			return path, true
		}
		reversed = append(reversed, cur.Name)
	}
	return nil, false
}

// Resolve walks children of root by exact name for each path segment.
//
// Outputs:
//
//	*Node - The node at path; root for the empty path.
//	bool - False at the first missing segment.
func Resolve(root *Node, path Path) (*Node, bool) {
	if root == nil {
		return nil, false
	}
	cur := root
	for _, seg := range path {
		cur = cur.FindChild(seg)
		if cur == nil {
			return nil, false
		}
	}
	return cur, true
}

// Depth returns len(PathOf(root, node)).
func Depth(root, node *Node) (int, bool) {
	path, ok := PathOf(root, node)
	if !ok {
		return 0, false
	}
	return len(path), true
}

// Chain returns the nodes from root (exclusive) to node (inclusive), in
// the same order as PathOf.
func Chain(root, node *Node) ([]*Node, bool) {
	if root == nil || node == nil {
		return nil, false
	}
	var reversed []*Node
	for cur := node; cur != nil; cur = cur.Parent {
		if cur == root {
			chain := make([]*Node, len(reversed))
			for i, n := range reversed {
				chain[len(reversed)-1-i] = n
			}
			return chain, true
		}
		reversed = append(reversed, cur)
	}
	return nil, false
}

// Walk visits every descendant of root in pre-order, passing its depth
// relative to root. The root itself is not visited.
func Walk(root *Node, fn func(node *Node, depth int)) {
	if root == nil {
		return
	}
	var visit func(n *Node, depth int)
	visit = func(n *Node, depth int) {
		for _, c := range n.Children {
			fn(c, depth)
			visit(c, depth+1)
		}
	}
	visit(root, 1)
}

// Descendants returns every node under root in pre-order.
func Descendants(root *Node) []*Node {
	var out []*Node
	Walk(root, func(n *Node, _ int) {
		out = append(out, n)
	})
	return out
}

// FromPaths builds a tree from slash-delimited paths. Intermediate nodes
// are created on demand and existing children are reused by name, so
// FromPaths("Armature", "Hips/Spine", "Hips/Spine/Chest") yields a single
// Hips/Spine/Chest chain under a root named Armature.
func FromPaths(rootName string, paths ...string) *Node {
	root := NewNode(rootName)
	for _, p := range paths {
		cur := root
		for _, seg := range ParsePath(p) {
			next := cur.FindChild(seg)
			if next == nil {
				next = cur.NewChild(seg)
			}
			cur = next
		}
	}
	return root
}

// MustResolve is Resolve for known-good paths; it panics on a miss.
func MustResolve(root *Node, path string) *Node {
	n, ok := Resolve(root, ParsePath(path))
	if !ok {
		panic(fmt.Sprintf("hierarchy: path %q not found under %q", path, root.Name))
	}
	return n
}
