// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package match

import (
	"context"

	"github.com/AleutianAI/rigmatch/services/rigmatch/hierarchy"
)

// Confidences of the exact-name strategy.
const (
	ExactNameUniqueConfidence    = 0.85
	ExactNameAmbiguousConfidence = 0.6
)

// ExactPath resolves the source's relative path verbatim under the target
// root. The exclusion set does not apply: a node already at the source's
// path, fabricated or not, is the correspondence.
type ExactPath struct{}

// Name implements Strategy.
func (ExactPath) Name() string { return StrategyExactPath }

// Match implements Strategy. Confidence is always 1.
func (ExactPath) Match(_ context.Context, q Query) (*Result, bool) {
	path, ok := hierarchy.PathOf(q.SourceRoot, q.Source)
	if !ok {
		return nil, false
	}
	target, ok := hierarchy.Resolve(q.TargetRoot, path)
	if !ok {
		return nil, false
	}
	return &Result{Target: target, Confidence: 1, Strategy: StrategyExactPath}, true
}

// ExactNameAtDepth finds target nodes with the source's exact name at the
// source's depth.
//
// One match yields confidence 0.85. Several yield confidence 0.6 with every
// match as a candidate, in tree order.
type ExactNameAtDepth struct{}

// Name implements Strategy.
func (ExactNameAtDepth) Name() string { return StrategyExactName }

// Match implements Strategy.
func (ExactNameAtDepth) Match(_ context.Context, q Query) (*Result, bool) {
	depth, ok := hierarchy.Depth(q.SourceRoot, q.Source)
	if !ok || depth == 0 {
		return nil, false
	}

	idx := q.index()
	var matches []*hierarchy.Node
	for _, n := range idx.ByName(q.Source.Name) {
		if q.Excluded.Contains(n) {
			continue
		}
		if d, _ := idx.DepthOf(n); d == depth {
			matches = append(matches, n)
		}
	}

	switch len(matches) {
	case 0:
		return nil, false
	case 1:
		return &Result{
			Target:     matches[0],
			Confidence: ExactNameUniqueConfidence,
			Strategy:   StrategyExactName,
		}, true
	}

	candidates := make([]Candidate, len(matches))
	for i, n := range matches {
		candidates[i] = Candidate{Node: n, Score: ExactNameAmbiguousConfidence}
	}
	return &Result{
		Target:     matches[0],
		Confidence: ExactNameAmbiguousConfidence,
		Strategy:   StrategyExactName,
		Candidates: candidates,
	}, true
}
