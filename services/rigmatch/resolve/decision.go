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

	"github.com/AleutianAI/rigmatch/services/rigmatch/hierarchy"
)

// DecisionKind enumerates how an ambiguous result is settled.
type DecisionKind int

const (
	// DecisionSelect picks the candidate at Decision.Index.
	DecisionSelect DecisionKind = iota + 1
	// DecisionCreateNew fabricates the source path instead of matching.
	DecisionCreateNew
	// DecisionSkip leaves the source node unresolved.
	DecisionSkip
	// DecisionStop aborts the rest of the batch.
	DecisionStop
)

// String returns the kind's wire name.
func (k DecisionKind) String() string {
	switch k {
	case DecisionSelect:
		return "select"
	case DecisionCreateNew:
		return "create_new"
	case DecisionSkip:
		return "skip"
	case DecisionStop:
		return "stop"
	default:
		return fmt.Sprintf("DecisionKind(%d)", int(k))
	}
}

// Decision settles one escalation.
type Decision struct {
	Kind DecisionKind

	// Index is the chosen candidate for DecisionSelect.
	Index int

	// Remember stores the decision for this source node for the rest of the
	// batch, so other target roots reuse it without asking again.
	Remember bool
}

// SelectCandidate picks candidate i.
func SelectCandidate(i int) Decision { return Decision{Kind: DecisionSelect, Index: i} }

// CreateNew fabricates the source path.
func CreateNew() Decision { return Decision{Kind: DecisionCreateNew} }

// Skip leaves the node unresolved.
func Skip() Decision { return Decision{Kind: DecisionSkip} }

// Stop aborts the batch.
func Stop() Decision { return Decision{Kind: DecisionStop} }

// Remembered returns a copy of d with Remember set.
func (d Decision) Remembered() Decision {
	d.Remember = true
	return d
}

// String renders the decision for logs.
func (d Decision) String() string {
	if d.Kind == DecisionSelect {
		return fmt.Sprintf("select[%d]", d.Index)
	}
	return d.Kind.String()
}

// EscalationCandidate is one option presented to a Decider.
type EscalationCandidate struct {
	Node  *hierarchy.Node
	Path  hierarchy.Path
	Score float64
}

// Escalation is the context handed to a Decider.
type Escalation struct {
	BatchID    string
	Source     *hierarchy.Node
	SourcePath hierarchy.Path
	TargetRoot *hierarchy.Node
	Strategy   string
	Confidence float64
	Candidates []EscalationCandidate
}

// Decider settles ambiguous results.
//
// Implementations may prompt a person or apply a fixed policy. An error
// aborts the current resolution with ErrDecisionFailed; it does not stop the
// batch.
type Decider interface {
	Decide(ctx context.Context, esc Escalation) (Decision, error)
}

// DeciderFunc adapts a function to Decider.
type DeciderFunc func(ctx context.Context, esc Escalation) (Decision, error)

// Decide implements Decider.
func (f DeciderFunc) Decide(ctx context.Context, esc Escalation) (Decision, error) {
	return f(ctx, esc)
}

// DecisionCache remembers decisions per source node for one batch.
//
// Thread Safety: Not safe for concurrent use; owned by a Batch.
type DecisionCache struct {
	entries map[*hierarchy.Node]Decision
}

func newDecisionCache() *DecisionCache {
	return &DecisionCache{entries: make(map[*hierarchy.Node]Decision)}
}

// Get returns the remembered decision for source.
func (c *DecisionCache) Get(source *hierarchy.Node) (Decision, bool) {
	d, ok := c.entries[source]
	return d, ok
}

// Put remembers d for source.
func (c *DecisionCache) Put(source *hierarchy.Node, d Decision) {
	c.entries[source] = d
}

// Len returns the number of remembered decisions.
func (c *DecisionCache) Len() int {
	return len(c.entries)
}

func (c *DecisionCache) clear() {
	clear(c.entries)
}
