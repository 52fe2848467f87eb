// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package resolve maps source nodes to target nodes across trees.
//
// A Batch spans one multi-target operation: it owns the decisions made for
// ambiguous results, the set of nodes fabricated so far and the stop flag.
// Each (source root, target root) pair gets a Materializer with its own
// correspondence cache and target index.
//
// The package does not log. Callers receive structured Resolutions; metrics
// and trace spans are recorded here.
package resolve

import (
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/rigmatch/services/rigmatch/config"
	"github.com/AleutianAI/rigmatch/services/rigmatch/hierarchy"
	"github.com/AleutianAI/rigmatch/services/rigmatch/match"
)

// BatchOption configures a Batch.
type BatchOption func(*Batch)

// WithDecider sets the decider for ambiguous results. Without one the top
// candidate is accepted as a best effort.
func WithDecider(d Decider) BatchOption {
	return func(b *Batch) { b.decider = d }
}

// WithChain replaces the strategy chain.
func WithChain(chain match.Chain) BatchOption {
	return func(b *Batch) { b.chain = chain }
}

// WithSafeConfidence sets the confidence at or above which a
// multi-candidate result is accepted without a decision.
func WithSafeConfidence(c float64) BatchOption {
	return func(b *Batch) { b.safeConfidence = c }
}

// WithTracerProvider records spans with tp instead of the global provider.
func WithTracerProvider(tp trace.TracerProvider) BatchOption {
	return func(b *Batch) { b.tracer = tp.Tracer(tracerName) }
}

// WithConfig applies thresholds and, for automated policies, the decider.
//
// An interactive policy leaves the decider unset; front ends that can
// prompt install theirs with WithDecider after this option.
func WithConfig(cfg *config.ResolverConfig) BatchOption {
	return func(b *Batch) {
		if cfg == nil {
			return
		}
		b.safeConfidence = cfg.SafeConfidence
		b.chain = match.DefaultChain(
			match.WithMinScore(cfg.FuzzyMinScore),
			match.WithPrefixGate(cfg.PrefixGate),
			match.WithMaxCandidates(cfg.MaxCandidates),
		)
		if p, err := ParsePolicy(cfg.DecisionPolicy); err == nil {
			b.decider = p
		}
	}
}

// Batch is the scope of one multi-target operation.
//
// Thread Safety: Not safe for concurrent use. Resolve target roots one at a
// time; decisions made for one root are reused by the next.
type Batch struct {
	id             string
	generation     uint64
	decisions      *DecisionCache
	excluded       match.ExclusionSet
	stopped        bool
	decider        Decider
	chain          match.Chain
	safeConfidence float64
	tracer         trace.Tracer
}

// NewBatch creates a batch with a fresh ID and the default chain.
func NewBatch(opts ...BatchOption) *Batch {
	b := &Batch{
		id:             uuid.NewString(),
		decisions:      newDecisionCache(),
		excluded:       make(match.ExclusionSet),
		chain:          match.DefaultChain(),
		safeConfidence: config.DefaultSafeConfidence,
		tracer:         defaultTracer,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// ID returns the batch ID. It changes on Reset.
func (b *Batch) ID() string { return b.id }

// Stopped reports whether a Stop decision was made.
func (b *Batch) Stopped() bool { return b.stopped }

// Stop marks the batch stopped, as a Stop decision would.
func (b *Batch) Stop() { b.stopped = true }

// Decisions returns the batch decision cache.
func (b *Batch) Decisions() *DecisionCache { return b.decisions }

// IsExcluded reports whether n was fabricated in this batch.
func (b *Batch) IsExcluded(n *hierarchy.Node) bool { return b.excluded.Contains(n) }

// Reset clears decisions, exclusions, the stop flag and every
// materializer's correspondence cache, and assigns a new ID.
func (b *Batch) Reset() {
	b.id = uuid.NewString()
	b.generation++
	b.decisions.clear()
	b.excluded = make(match.ExclusionSet)
	b.stopped = false
}

// Materializer creates the resolver for one (source root, target root)
// pair.
func (b *Batch) Materializer(sourceRoot, targetRoot *hierarchy.Node) (*Materializer, error) {
	if sourceRoot == nil || targetRoot == nil {
		return nil, fmt.Errorf("%w: nil root", ErrInvalidNode)
	}
	return &Materializer{
		batch:      b,
		generation: b.generation,
		sourceRoot: sourceRoot,
		targetRoot: targetRoot,
		index:      hierarchy.NewIndex(targetRoot),
		cache:      make(map[*hierarchy.Node]cacheEntry),
	}, nil
}
