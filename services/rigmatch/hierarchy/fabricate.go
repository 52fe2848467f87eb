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

import "fmt"

// Fabricate ensures that source's path relative to sourceRoot exists under
// targetRoot, creating every missing segment.
//
// Description:
//
//	Walks the source chain segment by segment. Existing target children are
//	reused by exact name; each missing segment is created as a new node
//	named after the corresponding source node, with that source node's
//	transform copied verbatim and Fabricated set.
//
// Inputs:
//
//	targetRoot - Root to fabricate under. Must not be nil.
//	sourceRoot - Root that source's path is relative to. Must not be nil.
//	source - The node whose path is mirrored. Must be under sourceRoot.
//
// Outputs:
//
//	*Node - The target node at the mirrored path (targetRoot for the root).
//	[]*Node - The nodes created, parents before children. Empty if the
//	          whole path already existed.
//	error - Non-nil if an argument is nil, source is not under sourceRoot,
//	        or a segment has an empty name.
func Fabricate(targetRoot, sourceRoot, source *Node) (*Node, []*Node, error) {
	if targetRoot == nil || sourceRoot == nil || source == nil {
		return nil, nil, ErrNilNode
	}
	chain, ok := Chain(sourceRoot, source)
	if !ok {
		return nil, nil, fmt.Errorf("%w: %q", ErrNotDescendant, source.Name)
	}
	for _, src := range chain {
		if src.Name == "" {
			return nil, nil, ErrEmptyName
		}
	}

	var created []*Node
	cur := targetRoot
	for _, src := range chain {
		next := cur.FindChild(src.Name)
		if next == nil {
			next = NewNode(src.Name)
			next.Transform = src.Transform
			next.Fabricated = true
			cur.AddChild(next)
			created = append(created, next)
		}
		cur = next
	}
	return cur, created, nil
}
