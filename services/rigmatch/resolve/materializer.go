// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package resolve

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/rigmatch/services/rigmatch/hierarchy"
	"github.com/AleutianAI/rigmatch/services/rigmatch/match"
)

// Outcome classifies a resolution.
type Outcome string

const (
	OutcomeMatched    Outcome = "matched"
	OutcomeFabricated Outcome = "fabricated"
	OutcomeSkipped    Outcome = "skipped"
	OutcomeNotFound   Outcome = "not_found"
	OutcomeStopped    Outcome = "stopped"
)

// Strategy labels for resolutions not produced by a match strategy.
const (
	StrategyCache      = "cache"
	StrategyRoot       = "root"
	StrategyDirectPath = "direct_path"
	StrategyFabricated = "fabricated"
	StrategyDecision   = "decision"
)

// Resolution is the result of resolving one source node.
type Resolution struct {
	Source *hierarchy.Node

	// Target is nil unless Outcome is matched or fabricated.
	Target *hierarchy.Node

	Outcome    Outcome
	Strategy   string
	Confidence float64

	// CacheHit is set when the correspondence cache answered.
	CacheHit bool

	// Escalated is set when a decision settled an ambiguous result.
	Escalated bool

	// DecisionReused is set when the decision came from the batch cache.
	DecisionReused bool

	// Decision is the applied decision when Escalated.
	Decision Decision

	// Candidates are the ranked options of an ambiguous result.
	Candidates []match.Candidate
}

// Resolved reports whether a target was produced.
func (r Resolution) Resolved() bool {
	return r.Target != nil && (r.Outcome == OutcomeMatched || r.Outcome == OutcomeFabricated)
}

type cacheEntry struct {
	target     *hierarchy.Node
	strategy   string
	confidence float64
	outcome    Outcome
}

// MaterializerStats counts work done by one materializer.
type MaterializerStats struct {
	CacheHits    int
	CacheMisses  int
	StrategyRuns int
	Escalations  int
	Fabricated   int
}

// Materializer resolves source nodes under one source root to nodes under
// one target root, caching every correspondence it produces.
//
// Thread Safety: Not safe for concurrent use.
type Materializer struct {
	batch      *Batch
	generation uint64
	sourceRoot *hierarchy.Node
	targetRoot *hierarchy.Node
	index      *hierarchy.Index
	cache      map[*hierarchy.Node]cacheEntry
	stats      MaterializerStats
}

// SourceRoot returns the declared source root.
func (m *Materializer) SourceRoot() *hierarchy.Node { return m.sourceRoot }

// TargetRoot returns the target root.
func (m *Materializer) TargetRoot() *hierarchy.Node { return m.targetRoot }

// Stats returns a snapshot of the counters.
func (m *Materializer) Stats() MaterializerStats { return m.stats }

// Lookup returns the cached correspondence for source, if any.
func (m *Materializer) Lookup(source *hierarchy.Node) (*hierarchy.Node, bool) {
	m.syncGeneration()
	e, ok := m.cache[source]
	return e.target, ok
}

// Resolve finds or creates the target node corresponding to source.
//
// Description:
//
//	In order: a stopped batch returns ErrStopped; the correspondence cache
//	answers repeated calls; the source root maps to the target root; the
//	source's relative path is tried verbatim; then the strategy chain runs
//	in priority order and the first unambiguous result wins. An ambiguous
//	result reuses a remembered decision for this source node or asks the
//	decider. When nothing matched and createIfMissing is set, the missing
//	path is fabricated under the target root.
//
// Inputs:
//
//	ctx - Context for tracing and cancellation of the decider.
//	source - A node under the materializer's source root.
//	createIfMissing - Fabricate when no strategy matched.
//
// Outputs:
//
//	Resolution - Always populated with Source and Outcome.
//	error - ErrStopped, ErrInvalidNode, ErrInvalidDecision,
//	        ErrDecisionFailed or a *FabricationError. Not-found and
//	        skipped results are not errors.
func (m *Materializer) Resolve(ctx context.Context, source *hierarchy.Node, createIfMissing bool) (Resolution, error) {
	ctx, span := m.batch.tracer.Start(ctx, "resolve.Materializer.Resolve",
		trace.WithAttributes(
			attribute.String("batch_id", m.batch.id),
			attribute.String("source", nodeName(source)),
			attribute.Bool("create_if_missing", createIfMissing),
		),
	)
	defer span.End()

	res, err := m.resolve(ctx, source, createIfMissing)

	span.SetAttributes(
		attribute.String("outcome", string(res.Outcome)),
		attribute.String("strategy", res.Strategy),
		attribute.Float64("confidence", res.Confidence),
		attribute.Bool("cache_hit", res.CacheHit),
		attribute.Bool("escalated", res.Escalated),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "resolution failed")
	}
	if !res.CacheHit {
		resolutionsTotal.WithLabelValues(string(res.Outcome), res.Strategy).Inc()
	}
	return res, err
}

func (m *Materializer) resolve(ctx context.Context, source *hierarchy.Node, createIfMissing bool) (Resolution, error) {
	res := Resolution{Source: source, Outcome: OutcomeNotFound}
	if source == nil {
		return res, fmt.Errorf("%w: nil source", ErrInvalidNode)
	}
	m.syncGeneration()

	if m.batch.stopped {
		res.Outcome = OutcomeStopped
		return res, ErrStopped
	}

	if e, ok := m.cache[source]; ok {
		m.stats.CacheHits++
		res.Target = e.target
		res.Outcome = e.outcome
		res.Strategy = StrategyCache
		res.Confidence = e.confidence
		res.CacheHit = true
		return res, nil
	}
	m.stats.CacheMisses++

	path, ok := hierarchy.PathOf(m.sourceRoot, source)
	if !ok {
		return res, fmt.Errorf("%w: %q is not under source root %q", ErrInvalidNode, source.Name, m.sourceRoot.Name)
	}
	if len(path) == 0 {
		return m.accept(res, m.targetRoot, StrategyRoot, 1), nil
	}
	if target, ok := hierarchy.Resolve(m.targetRoot, path); ok {
		return m.accept(res, target, StrategyDirectPath, 1), nil
	}

	q := match.Query{
		Source:     source,
		SourceRoot: m.sourceRoot,
		TargetRoot: m.targetRoot,
		Index:      m.index,
		Excluded:   m.batch.excluded,
	}
	m.stats.StrategyRuns++
	for _, s := range m.batch.chain {
		result, ok := s.Match(ctx, q)
		if !ok {
			continue
		}
		if !result.Ambiguous(m.batch.safeConfidence) {
			acceptedConfidence.Observe(result.Confidence)
			return m.accept(res, result.Target, result.Strategy, result.Confidence), nil
		}
		return m.escalate(ctx, res, path, result)
	}

	if createIfMissing {
		return m.fabricate(res, path)
	}
	return res, nil
}

// escalate settles an ambiguous result with a remembered decision, the
// decider, or the top candidate when no decider is configured.
func (m *Materializer) escalate(ctx context.Context, res Resolution, path hierarchy.Path, result *match.Result) (Resolution, error) {
	res.Candidates = result.Candidates
	res.Strategy = result.Strategy
	res.Confidence = result.Confidence

	if d, ok := m.batch.decisions.Get(res.Source); ok && decisionFits(d, result) {
		recordEscalation(d, true)
		res.DecisionReused = true
		return m.apply(res, path, result, d)
	}

	if m.batch.decider == nil {
		return m.accept(res, result.Target, result.Strategy, result.Confidence), nil
	}

	ctx, span := m.batch.tracer.Start(ctx, "resolve.Materializer.escalate",
		trace.WithAttributes(
			attribute.String("strategy", result.Strategy),
			attribute.Int("candidates", len(result.Candidates)),
			attribute.Float64("confidence", result.Confidence),
		),
	)
	defer span.End()

	m.stats.Escalations++
	d, err := m.batch.decider.Decide(ctx, m.escalation(res.Source, path, result))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "decider failed")
		return res, fmt.Errorf("%w: %v", ErrDecisionFailed, err)
	}
	if !decisionFits(d, result) {
		err := fmt.Errorf("%w: %s with %d candidates", ErrInvalidDecision, d, len(result.Candidates))
		span.RecordError(err)
		return res, err
	}
	span.SetAttributes(attribute.String("decision", d.String()))
	recordEscalation(d, false)

	if d.Remember {
		m.batch.decisions.Put(res.Source, d)
	}
	return m.apply(res, path, result, d)
}

func (m *Materializer) apply(res Resolution, path hierarchy.Path, result *match.Result, d Decision) (Resolution, error) {
	res.Escalated = true
	res.Decision = d

	switch d.Kind {
	case DecisionSelect:
		c := result.Candidates[d.Index]
		return m.accept(res, c.Node, result.Strategy, c.Score), nil
	case DecisionCreateNew:
		return m.fabricate(res, path)
	case DecisionSkip:
		res.Outcome = OutcomeSkipped
		res.Strategy = StrategyDecision
		return res, nil
	case DecisionStop:
		m.batch.stopped = true
		res.Outcome = OutcomeStopped
		res.Strategy = StrategyDecision
		return res, ErrStopped
	default:
		return res, fmt.Errorf("%w: unknown kind %d", ErrInvalidDecision, int(d.Kind))
	}
}

func (m *Materializer) accept(res Resolution, target *hierarchy.Node, strategy string, confidence float64) Resolution {
	res.Target = target
	res.Outcome = OutcomeMatched
	res.Strategy = strategy
	res.Confidence = confidence
	m.cache[res.Source] = cacheEntry{
		target:     target,
		strategy:   strategy,
		confidence: confidence,
		outcome:    OutcomeMatched,
	}
	return res
}

func (m *Materializer) fabricate(res Resolution, path hierarchy.Path) (Resolution, error) {
	leaf, created, err := hierarchy.Fabricate(m.targetRoot, m.sourceRoot, res.Source)
	if err != nil {
		res.Outcome = OutcomeNotFound
		return res, &FabricationError{Path: path, Err: err}
	}
	for _, n := range created {
		m.batch.excluded.Add(n)
		m.index.Add(n)
	}
	m.stats.Fabricated += len(created)
	fabricatedNodesTotal.Add(float64(len(created)))

	res.Target = leaf
	res.Outcome = OutcomeFabricated
	res.Strategy = StrategyFabricated
	res.Confidence = 0
	m.cache[res.Source] = cacheEntry{
		target:   leaf,
		strategy: StrategyFabricated,
		outcome:  OutcomeFabricated,
	}
	return res, nil
}

func (m *Materializer) escalation(source *hierarchy.Node, path hierarchy.Path, result *match.Result) Escalation {
	candidates := make([]EscalationCandidate, len(result.Candidates))
	for i, c := range result.Candidates {
		p, _ := hierarchy.PathOf(m.targetRoot, c.Node)
		candidates[i] = EscalationCandidate{Node: c.Node, Path: p, Score: c.Score}
	}
	return Escalation{
		BatchID:    m.batch.id,
		Source:     source,
		SourcePath: path,
		TargetRoot: m.targetRoot,
		Strategy:   result.Strategy,
		Confidence: result.Confidence,
		Candidates: candidates,
	}
}

// syncGeneration drops the correspondence cache after a batch Reset.
func (m *Materializer) syncGeneration() {
	if m.generation != m.batch.generation {
		m.generation = m.batch.generation
		clear(m.cache)
	}
}

// decisionFits reports whether d can be applied to result. A remembered
// selection made against a longer candidate list does not fit a shorter
// one.
func decisionFits(d Decision, result *match.Result) bool {
	switch d.Kind {
	case DecisionSelect:
		return d.Index >= 0 && d.Index < len(result.Candidates)
	case DecisionCreateNew, DecisionSkip, DecisionStop:
		return true
	default:
		return false
	}
}

func nodeName(n *hierarchy.Node) string {
	if n == nil {
		return ""
	}
	return n.Name
}
