// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package similarity

import (
	"strings"
	"unicode/utf8"

	"github.com/AleutianAI/rigmatch/services/rigmatch/naming"
)

// Weights of the blended name similarity. They sum to 1.
const (
	WeightLCS       = 0.6
	WeightVariant   = 0.2
	WeightContains  = 0.1
	WeightEdit      = 0.08
	WeightFirstRune = 0.02
)

// NameScorer computes the blended name similarity against a variant table.
//
// # Thread Safety
//
// Safe for concurrent use; the variant table is immutable.
type NameScorer struct {
	variants *naming.Variants
}

// NewNameScorer creates a scorer. A nil table disables the variant term.
func NewNameScorer(variants *naming.Variants) *NameScorer {
	return &NameScorer{variants: variants}
}

// Score returns a similarity in [0, 1] for two raw names.
//
// # Description
//
//	Names are normalized first. Identical normalized names score 1 and an
//	empty side scores 0. Otherwise the score blends the longest common
//	substring ratio, a shared variant concept, containment, normalized
//	edit similarity and an equal first rune.
func (s *NameScorer) Score(a, b string) float64 {
	na, nb := naming.Normalize(a), naming.Normalize(b)
	if na == "" || nb == "" {
		return 0
	}
	if na == nb {
		return 1
	}

	score := WeightLCS * LCSRatio(na, nb)
	if s.variants.Related(a, b) {
		score += WeightVariant
	}
	if strings.Contains(na, nb) || strings.Contains(nb, na) {
		score += WeightContains
	}
	score += WeightEdit * EditSimilarity(na, nb)

	fa, _ := utf8.DecodeRuneInString(na)
	fb, _ := utf8.DecodeRuneInString(nb)
	if fa == fb {
		score += WeightFirstRune
	}
	return min(max(score, 0), 1)
}

// NameSimilarity scores two raw names with the embedded variant table.
func NameSimilarity(a, b string) float64 {
	return NewNameScorer(naming.DefaultVariants()).Score(a, b)
}
