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
	"errors"
	"testing"
)

func TestIndex_ByNameAndDepth(t *testing.T) {
	root := FromPaths("Armature",
		"Hips/Spine/End",
		"Hips/Tail/Tail1/End",
	)
	idx := NewIndex(root)

	ends := idx.ByName("End")
	if len(ends) != 2 {
		t.Fatalf("expected 2 End nodes, got %d", len(ends))
	}
	if d, _ := idx.DepthOf(ends[0]); d != 3 {
		t.Errorf("first End depth = %d, want 3", d)
	}
	if d, _ := idx.DepthOf(ends[1]); d != 4 {
		t.Errorf("second End depth = %d, want 4", d)
	}

	atTwo := idx.AtDepth(2)
	if len(atTwo) != 2 || atTwo[0].Name != "Spine" || atTwo[1].Name != "Tail" {
		t.Errorf("AtDepth(2) = %v", atTwo)
	}

	stats := idx.Stats()
	if stats.TotalNodes != 6 || stats.MaxDepth != 4 {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func TestIndex_ReturnsCopies(t *testing.T) {
	root := FromPaths("R", "A", "B")
	idx := NewIndex(root)

	got := idx.AtDepth(1)
	got[0] = nil

	if idx.AtDepth(1)[0] == nil {
		t.Error("mutating a returned slice must not affect the index")
	}
}

func TestIndex_AddFabricated(t *testing.T) {
	target := FromPaths("T", "Hips")
	source := FromPaths("S", "Hips/Spine/Chest")
	idx := NewIndex(target)

	leaf, created, err := Fabricate(target, source, MustResolve(source, "Hips/Spine/Chest"))
	if err != nil {
		t.Fatalf("Fabricate: %v", err)
	}
	for _, n := range created {
		if !idx.Add(n) {
			t.Errorf("Add(%q) should register a new node", n.Name)
		}
	}
	if idx.Add(leaf) {
		t.Error("second Add of the same node should be a no-op")
	}
	if idx.Add(NewNode("Detached")) {
		t.Error("detached nodes must not be indexed")
	}
	if got := idx.ByName("Chest"); len(got) != 1 || got[0] != leaf {
		t.Errorf("ByName(Chest) = %v", got)
	}
	if idx.Position(leaf) != 2 {
		t.Errorf("Position(leaf) = %d, want 2", idx.Position(leaf))
	}
}

func TestFabricate_CopiesSourceTransforms(t *testing.T) {
	source := FromPaths("S", "Hips/Spine/Chest")
	spine := MustResolve(source, "Hips/Spine")
	spine.Transform.Position = [3]float64{0, 0.1, 0}
	chest := MustResolve(source, "Hips/Spine/Chest")
	chest.Transform.Position = [3]float64{0, 0.2, 0.01}

	target := FromPaths("T", "Hips")
	hips := MustResolve(target, "Hips")
	hips.Transform.Position = [3]float64{9, 9, 9}

	leaf, created, err := Fabricate(target, source, chest)
	if err != nil {
		t.Fatalf("Fabricate: %v", err)
	}
	if len(created) != 2 {
		t.Fatalf("expected 2 created nodes, got %d", len(created))
	}
	if created[0].Name != "Spine" || created[1] != leaf {
		t.Errorf("created = %v, leaf = %v", created, leaf)
	}
	if leaf.Transform.Position != chest.Transform.Position {
		t.Errorf("leaf transform not copied: %v", leaf.Transform.Position)
	}
	if created[0].Transform.Position != spine.Transform.Position {
		t.Errorf("intermediate transform not copied: %v", created[0].Transform.Position)
	}
	if hips.Transform.Position != [3]float64{9, 9, 9} {
		t.Error("existing target nodes must not be touched")
	}
	if !leaf.Fabricated || hips.Fabricated {
		t.Error("Fabricated flag should only be set on created nodes")
	}
	if p, _ := PathOf(target, leaf); p.String() != "Hips/Spine/Chest" {
		t.Errorf("leaf path = %q", p)
	}
}

func TestFabricate_Errors(t *testing.T) {
	source := FromPaths("S", "Hips")
	other := FromPaths("O", "Hips")

	if _, _, err := Fabricate(nil, source, MustResolve(source, "Hips")); !errors.Is(err, ErrNilNode) {
		t.Errorf("expected ErrNilNode, got %v", err)
	}
	if _, _, err := Fabricate(NewNode("T"), source, MustResolve(other, "Hips")); !errors.Is(err, ErrNotDescendant) {
		t.Errorf("expected ErrNotDescendant, got %v", err)
	}
}

func TestFabricate_RootMapsToRoot(t *testing.T) {
	source := FromPaths("S", "Hips")
	target := NewNode("T")

	leaf, created, err := Fabricate(target, source, source)
	if err != nil {
		t.Fatalf("Fabricate: %v", err)
	}
	if leaf != target || len(created) != 0 {
		t.Errorf("expected target root and nothing created, got %v %v", leaf, created)
	}
}
