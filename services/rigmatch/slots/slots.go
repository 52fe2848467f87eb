// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package slots matches a material slot to a material by name.
package slots

import (
	"math"

	"github.com/AleutianAI/rigmatch/services/rigmatch/naming"
	"github.com/AleutianAI/rigmatch/services/rigmatch/similarity"
)

// MinScore is the score a non-exact match must reach.
const MinScore = 85

// ExactScore is the score of identical normalized names.
const ExactScore = 100

// Slot is a material slot on a mesh.
type Slot struct {
	Name  string `json:"name" yaml:"name"`
	Index int    `json:"index" yaml:"index"`
}

// Material is a candidate material. Its position in the candidate list is
// its slot index.
type Material struct {
	Name string `json:"name" yaml:"name"`
}

// Result is a successful match.
type Result struct {
	Material Material `json:"material"`
	Index    int      `json:"index"`
	Score    int      `json:"score"`
	Rule     string   `json:"rule"`
}

// Rules that produced a match.
const (
	RuleSameSlot = "same_slot"
	RuleExact    = "exact"
	RuleNearest  = "nearest"
)

// Score returns round(100 × name similarity).
func Score(a, b string) int {
	return int(math.Round(ExactScore * similarity.NameSimilarity(a, b)))
}

// Match picks the material for slot.
//
// Description:
//
//	1. The material at the slot's own index, when it scores at least
//	   MinScore.
//	2. Otherwise the first material scoring ExactScore.
//	3. Otherwise, among materials scoring at least MinScore, the one with
//	   the smallest edit distance between normalized names; ties go to the
//	   higher score, then the lower index.
//
// Outputs:
//
//	Result - The chosen material with its index, score and rule.
//	bool - False when nothing qualified.
func Match(slot Slot, materials []Material) (Result, bool) {
	scores := make([]int, len(materials))
	for i, m := range materials {
		scores[i] = Score(slot.Name, m.Name)
	}

	if i := slot.Index; i >= 0 && i < len(materials) && scores[i] >= MinScore {
		return Result{Material: materials[i], Index: i, Score: scores[i], Rule: RuleSameSlot}, true
	}

	for i, s := range scores {
		if s == ExactScore {
			return Result{Material: materials[i], Index: i, Score: s, Rule: RuleExact}, true
		}
	}

	slotName := naming.Normalize(slot.Name)
	best, bestDist := -1, 0
	for i, s := range scores {
		if s < MinScore {
			continue
		}
		dist := similarity.EditDistance(slotName, naming.Normalize(materials[i].Name))
		if best < 0 || dist < bestDist || (dist == bestDist && s > scores[best]) {
			best, bestDist = i, dist
		}
	}
	if best < 0 {
		return Result{}, false
	}
	return Result{Material: materials[best], Index: best, Score: scores[best], Rule: RuleNearest}, true
}
