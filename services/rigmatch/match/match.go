// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package match implements the strategies that locate a target node
// corresponding to a source node.
//
// Strategies are tried in priority order by the resolver. Each either
// declines or returns a Result with a confidence in [0, 1] and, when it
// found several plausible targets, the ranked candidate list.
package match

import (
	"context"

	"github.com/AleutianAI/rigmatch/services/rigmatch/hierarchy"
)

// Strategy names, reported on results and in metrics.
const (
	StrategyExactPath = "exact_path"
	StrategyExactName = "exact_name_at_depth"
	StrategyFuzzyName = "fuzzy_name"
)

// Candidate is one ranked target.
type Candidate struct {
	Node  *hierarchy.Node
	Score float64
}

// Result is the outcome of a strategy that found something.
//
// Invariants:
//
//	Target is never nil. When Candidates is non-empty, Candidates[0].Node
//	is Target and the list is ordered best first.
type Result struct {
	Target     *hierarchy.Node
	Confidence float64
	Strategy   string
	Candidates []Candidate
}

// Ambiguous reports whether the result needs a decision: more than one
// candidate and a confidence below safe.
func (r *Result) Ambiguous(safe float64) bool {
	return len(r.Candidates) > 1 && r.Confidence < safe
}

// Query is the input to a strategy.
type Query struct {
	// Source is the node to find a correspondence for.
	Source *hierarchy.Node

	// SourceRoot is the root Source is declared under.
	SourceRoot *hierarchy.Node

	// TargetRoot is the root to search.
	TargetRoot *hierarchy.Node

	// Index indexes TargetRoot. Built on demand when nil.
	Index *hierarchy.Index

	// Excluded nodes are never returned.
	Excluded ExclusionSet
}

func (q *Query) index() *hierarchy.Index {
	if q.Index == nil {
		q.Index = hierarchy.NewIndex(q.TargetRoot)
	}
	return q.Index
}

// Strategy locates a target for a query.
type Strategy interface {
	// Name identifies the strategy on results.
	Name() string

	// Match returns a result, or false when the strategy found nothing.
	Match(ctx context.Context, q Query) (*Result, bool)
}

// ExclusionSet holds nodes strategies must never return, such as scaffolding
// fabricated earlier in the same batch. A nil set excludes nothing.
type ExclusionSet map[*hierarchy.Node]struct{}

// Add excludes n.
func (e ExclusionSet) Add(n *hierarchy.Node) {
	e[n] = struct{}{}
}

// Contains reports whether n is excluded.
func (e ExclusionSet) Contains(n *hierarchy.Node) bool {
	_, ok := e[n]
	return ok
}

// Chain is an ordered list of strategies, highest priority first.
type Chain []Strategy

// DefaultChain returns exact path, exact name at depth, then fuzzy name.
func DefaultChain(opts ...FuzzyOption) Chain {
	return Chain{
		ExactPath{},
		ExactNameAtDepth{},
		NewFuzzyName(opts...),
	}
}

// Names returns the strategy names in order.
func (c Chain) Names() []string {
	names := make([]string, len(c))
	for i, s := range c {
		names[i] = s.Name()
	}
	return names
}
