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
	"sort"
	"unicode/utf8"

	"github.com/AleutianAI/rigmatch/services/rigmatch/hierarchy"
	"github.com/AleutianAI/rigmatch/services/rigmatch/naming"
	"github.com/AleutianAI/rigmatch/services/rigmatch/similarity"
)

const (
	// DefaultFuzzyMinScore is the score a candidate must exceed.
	DefaultFuzzyMinScore = 0.65

	// DefaultPrefixGate is the prefix similarity a candidate must reach
	// before its path is scored.
	DefaultPrefixGate = 0.5

	// DefaultMaxCandidates caps the ranked candidate list.
	DefaultMaxCandidates = 5

	prefixWeight = 0.8
	pathWeight   = 0.2

	// fuzzyCheckInterval is how often ranking checks for cancellation.
	fuzzyCheckInterval = 256
)

// FuzzyOption configures a FuzzyName strategy.
type FuzzyOption func(*FuzzyName)

// WithMinScore sets the score a candidate must exceed.
func WithMinScore(score float64) FuzzyOption {
	return func(f *FuzzyName) { f.minScore = score }
}

// WithPrefixGate sets the prefix similarity gate.
func WithPrefixGate(gate float64) FuzzyOption {
	return func(f *FuzzyName) { f.prefixGate = gate }
}

// WithMaxCandidates caps the candidate list. Values below 1 are ignored.
func WithMaxCandidates(n int) FuzzyOption {
	return func(f *FuzzyName) {
		if n > 0 {
			f.maxCandidates = n
		}
	}
}

// FuzzyName ranks target nodes at the source's depth by subject prefix and
// path similarity.
//
// # Description
//
//	Candidates must sit at exactly the source's depth, must not carry a
//	conflicting side marker and must reach the prefix gate. The final score
//	is 0.8 × prefix similarity + 0.2 × path similarity; only scores above
//	the minimum are kept. Ranking is by score, then longest common
//	substring of the full normalized names, then path similarity, then
//	tree order. The best candidates up to the cap are returned.
//
// # Thread Safety
//
// Safe for concurrent use; configuration is immutable.
type FuzzyName struct {
	minScore      float64
	prefixGate    float64
	maxCandidates int
}

// NewFuzzyName creates a fuzzy strategy with defaults overridden by opts.
func NewFuzzyName(opts ...FuzzyOption) *FuzzyName {
	f := &FuzzyName{
		minScore:      DefaultFuzzyMinScore,
		prefixGate:    DefaultPrefixGate,
		maxCandidates: DefaultMaxCandidates,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Name implements Strategy.
func (f *FuzzyName) Name() string { return StrategyFuzzyName }

type scoredCandidate struct {
	node     *hierarchy.Node
	score    float64
	nameLCS  int
	pathSim  float64
	position int
}

// Match implements Strategy.
func (f *FuzzyName) Match(ctx context.Context, q Query) (*Result, bool) {
	sourcePath, ok := hierarchy.PathOf(q.SourceRoot, q.Source)
	if !ok || len(sourcePath) == 0 {
		return nil, false
	}
	depth := len(sourcePath)
	src := naming.Analyze(q.Source.Name)

	idx := q.index()
	var scored []scoredCandidate
	for i, cand := range idx.AtDepth(depth) {
		if i%fuzzyCheckInterval == 0 && ctx.Err() != nil {
			return nil, false
		}
		if q.Excluded.Contains(cand) {
			continue
		}
		tgt := naming.Analyze(cand.Name)
		if src.Side.Conflicts(tgt.Side) {
			continue
		}
		prefixSim := PrefixSimilarity(src, tgt)
		if prefixSim < f.prefixGate {
			continue
		}
		targetPath, ok := hierarchy.PathOf(q.TargetRoot, cand)
		if !ok {
			continue
		}
		pathSim := PathSimilarity(sourcePath, targetPath)
		score := prefixWeight*prefixSim + pathWeight*pathSim
		if score <= f.minScore {
			continue
		}
		scored = append(scored, scoredCandidate{
			node:     cand,
			score:    score,
			nameLCS:  similarity.LongestCommonSubstring(src.Normalized, tgt.Normalized),
			pathSim:  pathSim,
			position: idx.Position(cand),
		})
	}
	if len(scored) == 0 {
		return nil, false
	}

	sort.SliceStable(scored, func(i, j int) bool {
		a, b := scored[i], scored[j]
		if a.score != b.score {
			return a.score > b.score
		}
		if a.nameLCS != b.nameLCS {
			return a.nameLCS > b.nameLCS
		}
		if a.pathSim != b.pathSim {
			return a.pathSim > b.pathSim
		}
		return a.position < b.position
	})

	if len(scored) > f.maxCandidates {
		scored = scored[:f.maxCandidates]
	}
	candidates := make([]Candidate, len(scored))
	for i, s := range scored {
		candidates[i] = Candidate{Node: s.node, Score: s.score}
	}
	return &Result{
		Target:     scored[0].node,
		Confidence: scored[0].score,
		Strategy:   StrategyFuzzyName,
		Candidates: candidates,
	}, true
}

// PrefixSimilarity scores two analyzed names by their subject prefixes.
//
// # Description
//
//	Base is 1 for equal prefixes, otherwise the leading common run over
//	the longer prefix. Bonuses: +0.3 for equal pure names, +0.2 × the
//	fraction of shared numeric suffixes, +0.05 for an equal detected side
//	and +0.05 when one prefix starts with the whole other. Clamped to 1.
func PrefixSimilarity(a, b naming.Name) float64 {
	if a.Prefix == "" || b.Prefix == "" {
		return 0
	}

	la := utf8.RuneCountInString(a.Prefix)
	lb := utf8.RuneCountInString(b.Prefix)
	run := similarity.LeadingRun(a.Prefix, b.Prefix)

	var score float64
	if a.Prefix == b.Prefix {
		score = 1
	} else {
		score = float64(run) / float64(max(la, lb))
		if run == min(la, lb) {
			score += 0.05
		}
	}
	if a.Pure != "" && a.Pure == b.Pure {
		score += 0.3
	}
	score += 0.2 * sharedSuffixFraction(a.Numbers, b.Numbers)
	if a.Side != naming.SideNone && a.Side == b.Side {
		score += 0.05
	}
	return min(score, 1)
}

// sharedSuffixFraction compares numeric tokens aligned from the end and
// returns matches over the longer list.
func sharedSuffixFraction(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	shared := 0
	for i := 1; i <= min(len(a), len(b)); i++ {
		if a[len(a)-i] == b[len(b)-i] {
			shared++
		}
	}
	return float64(shared) / float64(max(len(a), len(b)))
}

// PathSimilarity scores two relative paths.
//
// # Description
//
//	Half depth agreement, 1 - |Δdepth| / max depth, and half a weighted
//	segment score. Segments are aligned from the leaf and the leaf carries
//	the largest weight. A segment scores 1 on an equal normalized name,
//	otherwise half its longest-common-substring ratio, reduced to 30% when
//	the segments carry conflicting sides.
func PathSimilarity(a, b hierarchy.Path) float64 {
	da, db := len(a), len(b)
	deepest := max(da, db)
	if deepest == 0 {
		return 1
	}
	depthScore := 1 - float64(abs(da-db))/float64(deepest)

	n := min(da, db)
	if n == 0 {
		return 0.5 * depthScore
	}
	var num, den float64
	for i := 0; i < n; i++ {
		w := float64(n - i)
		den += w
		num += w * segmentSimilarity(a[da-1-i], b[db-1-i])
	}
	return 0.5*depthScore + 0.5*(num/den)
}

func segmentSimilarity(a, b string) float64 {
	na, nb := naming.Normalize(a), naming.Normalize(b)
	if na == nb {
		return 1
	}
	score := 0.5 * similarity.LCSRatio(na, nb)
	if naming.DetectSide(a).Conflicts(naming.DetectSide(b)) {
		score *= 0.3
	}
	return score
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
