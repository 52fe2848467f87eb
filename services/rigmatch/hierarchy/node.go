// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package hierarchy models rig hierarchies as strict trees of named nodes and
// provides the path utilities every matching strategy is built on.
//
// A hierarchy has exactly one designated root per resolution call. Paths are
// expressed relative to that root: the root itself has the empty path, and a
// node that is not a descendant of the root has no path at all.
package hierarchy

import (
	"errors"
	"fmt"
)

// Sentinel errors for hierarchy operations.
var (
	// ErrNilNode is returned when a required node argument is nil.
	ErrNilNode = errors.New("node must not be nil")

	// ErrEmptyName is returned when a node would be created without a name.
	ErrEmptyName = errors.New("node name must not be empty")

	// ErrNotDescendant is returned when a node is not under the given root.
	ErrNotDescendant = errors.New("node is not a descendant of root")
)

// Transform is the local positional payload of a node.
//
// Description:
//
//	The resolver never interprets these values. They are copied verbatim from
//	a source node onto a fabricated target node.
type Transform struct {
	// Position is the local translation (x, y, z).
	Position [3]float64 `json:"position" yaml:"position"`

	// Rotation is the local rotation quaternion (x, y, z, w).
	Rotation [4]float64 `json:"rotation" yaml:"rotation"`

	// Scale is the local scale (x, y, z).
	Scale [3]float64 `json:"scale" yaml:"scale"`
}

// IdentityTransform returns the transform of an unmoved, unscaled node.
func IdentityTransform() Transform {
	return Transform{
		Rotation: [4]float64{0, 0, 0, 1},
		Scale:    [3]float64{1, 1, 1},
	}
}

// Component is an opaque attachable carried by a node (a physics bone, a
// constraint, a particle system, ...). Only the transfer driver looks inside.
type Component struct {
	// Kind identifies the attachable type, e.g. "PhysBone".
	Kind string `json:"kind" yaml:"kind"`

	// Properties holds the attachable's serialized fields.
	Properties map[string]any `json:"properties,omitempty" yaml:"properties,omitempty"`
}

// Clone returns a deep copy of the component.
func (c Component) Clone() Component {
	return Component{
		Kind:       c.Kind,
		Properties: cloneMap(c.Properties),
	}
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}

// Node is a position in a hierarchy.
//
// Description:
//
//	A node has a name, at most one parent and an ordered list of children.
//	Sibling names are not required to be unique; name lookups return the
//	first matching child in order, so paths through duplicated sibling names
//	always resolve to the earliest sibling.
//
// Thread Safety:
//
//	Not safe for concurrent mutation. Resolution passes are sequential.
type Node struct {
	// Name is the node's name as authored.
	Name string

	// Parent is the enclosing node, nil for a tree root.
	Parent *Node

	// Children are the ordered child nodes.
	Children []*Node

	// Transform is the local positional payload.
	Transform Transform

	// Components are the attachables carried by this node.
	Components []Component

	// Fabricated marks nodes created by Fabricate rather than authored.
	Fabricated bool
}

// NewNode creates a detached node with an identity transform.
func NewNode(name string) *Node {
	return &Node{
		Name:      name,
		Transform: IdentityTransform(),
	}
}

// AddChild appends child to n's children and sets its parent.
//
// Description:
//
//	If child is already attached elsewhere it is detached from its previous
//	parent first, keeping the tree free of shared nodes.
//
// Outputs:
//
//	*Node - The child, for chaining.
func (n *Node) AddChild(child *Node) *Node {
	if child.Parent != nil {
		child.Parent.removeChild(child)
	}
	child.Parent = n
	n.Children = append(n.Children, child)
	return child
}

// NewChild creates a child with the given name under n.
func (n *Node) NewChild(name string) *Node {
	return n.AddChild(NewNode(name))
}

// FindChild returns the first child whose name equals name exactly.
func (n *Node) FindChild(name string) *Node {
	for _, c := range n.Children {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// IsAncestorOf reports whether n is a strict ancestor of other.
func (n *Node) IsAncestorOf(other *Node) bool {
	if other == nil {
		return false
	}
	for cur := other.Parent; cur != nil; cur = cur.Parent {
		if cur == n {
			return true
		}
	}
	return false
}

// String returns the node name.
func (n *Node) String() string {
	if n == nil {
		return "<nil>"
	}
	return n.Name
}

func (n *Node) removeChild(child *Node) {
	for i, c := range n.Children {
		if c == child {
			n.Children = append(n.Children[:i], n.Children[i+1:]...)
			return
		}
	}
}

// Validate checks that the tree under root has non-empty names and no
// node reachable twice.
func Validate(root *Node) error {
	if root == nil {
		return ErrNilNode
	}
	seen := make(map[*Node]struct{})
	var visit func(n *Node, path Path) error
	visit = func(n *Node, path Path) error {
		if _, ok := seen[n]; ok {
			return fmt.Errorf("node %q reachable twice at %s", n.Name, path)
		}
		seen[n] = struct{}{}
		for _, c := range n.Children {
			childPath := append(append(Path{}, path...), c.Name)
			if c.Name == "" {
				return fmt.Errorf("%w: child of %q at %s", ErrEmptyName, n.Name, path)
			}
			if c.Parent != n {
				return fmt.Errorf("node %q has inconsistent parent at %s", c.Name, childPath)
			}
			if err := visit(c, childPath); err != nil {
				return err
			}
		}
		return nil
	}
	return visit(root, Path{})
}
