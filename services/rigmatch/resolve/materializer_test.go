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
	"errors"
	"testing"

	"github.com/AleutianAI/rigmatch/services/rigmatch/hierarchy"
	"github.com/AleutianAI/rigmatch/services/rigmatch/match"
)

// recordingDecider returns scripted decisions and records every escalation.
type recordingDecider struct {
	decisions []Decision
	err       error
	calls     []Escalation
}

func (d *recordingDecider) Decide(_ context.Context, esc Escalation) (Decision, error) {
	d.calls = append(d.calls, esc)
	if d.err != nil {
		return Decision{}, d.err
	}
	i := min(len(d.calls)-1, len(d.decisions)-1)
	return d.decisions[i], nil
}

func hairTarget(name string) *hierarchy.Node {
	return hierarchy.FromPaths(name,
		"Head/HairFront1",
		"Head/HairFront2",
		"Head/HairFront3",
	)
}

func mustMaterializer(t *testing.T, b *Batch, source, target *hierarchy.Node) *Materializer {
	t.Helper()
	m, err := b.Materializer(source, target)
	if err != nil {
		t.Fatalf("Materializer: %v", err)
	}
	return m
}

func TestResolve_IdempotentCacheHit(t *testing.T) {
	source := hierarchy.FromPaths("S", "Hips/Spine/Breast_L")
	target := hierarchy.FromPaths("T", "Hips/Spine/Breasts_L")
	m := mustMaterializer(t, NewBatch(), source, target)
	breast := hierarchy.MustResolve(source, "Hips/Spine/Breast_L")

	first, err := m.Resolve(context.Background(), breast, false)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if first.Outcome != OutcomeMatched || first.Strategy != match.StrategyFuzzyName {
		t.Fatalf("first = %s via %s", first.Outcome, first.Strategy)
	}

	second, err := m.Resolve(context.Background(), breast, false)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !second.CacheHit || second.Target != first.Target {
		t.Errorf("second call should be a cache hit for the same target, got %+v", second)
	}
	if second.Confidence != first.Confidence {
		t.Errorf("cached confidence %v, want %v", second.Confidence, first.Confidence)
	}
	if st := m.Stats(); st.StrategyRuns != 1 || st.CacheHits != 1 {
		t.Errorf("stats = %+v, want one strategy run and one hit", st)
	}
	if got, ok := m.Lookup(breast); !ok || got != first.Target {
		t.Error("Lookup should return the cached target")
	}
}

func TestResolve_RootAndDirectPath(t *testing.T) {
	source := hierarchy.FromPaths("S", "Hips/Spine")
	target := hierarchy.FromPaths("T", "Hips/Spine")
	m := mustMaterializer(t, NewBatch(), source, target)

	res, err := m.Resolve(context.Background(), source, false)
	if err != nil || res.Target != target || res.Strategy != StrategyRoot {
		t.Errorf("root should map to root, got %+v, %v", res, err)
	}

	res, err = m.Resolve(context.Background(), hierarchy.MustResolve(source, "Hips/Spine"), false)
	if err != nil || res.Strategy != StrategyDirectPath || res.Confidence != 1 {
		t.Errorf("expected direct path @1, got %+v, %v", res, err)
	}
	if m.Stats().StrategyRuns != 0 {
		t.Error("the fast paths must not run strategies")
	}
}

func TestResolve_PriorityOrdering(t *testing.T) {
	source := hierarchy.FromPaths("S", "Head/Eye.L")
	target := hierarchy.FromPaths("T", "Head/EyeExtra.L", "Face/Eye.L")
	m := mustMaterializer(t, NewBatch(), source, target)

	res, err := m.Resolve(context.Background(), hierarchy.MustResolve(source, "Head/Eye.L"), false)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Strategy != match.StrategyExactName {
		t.Errorf("strategy = %s, want exact name", res.Strategy)
	}
	if res.Target != hierarchy.MustResolve(target, "Face/Eye.L") {
		t.Errorf("target = %v", res.Target)
	}
}

func TestResolve_AmbiguousCreateNewThenExcluded(t *testing.T) {
	source := hierarchy.FromPaths("S", "Head/Hair_Front")
	target := hierarchy.FromPaths("T", "Head/HairFront1", "Head/HairFront2", "Head/HairFront3")
	decider := &recordingDecider{decisions: []Decision{CreateNew(), SelectCandidate(1)}}
	batch := NewBatch(WithDecider(decider))
	m := mustMaterializer(t, batch, source, target)

	res, err := m.Resolve(context.Background(), hierarchy.MustResolve(source, "Head/Hair_Front"), true)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(decider.calls) != 1 || len(decider.calls[0].Candidates) != 3 {
		t.Fatalf("expected one escalation with 3 candidates, got %d calls", len(decider.calls))
	}
	esc := decider.calls[0]
	if esc.BatchID != batch.ID() || esc.SourcePath.String() != "Head/Hair_Front" {
		t.Errorf("escalation context = %+v", esc)
	}
	if esc.Candidates[0].Path.String() != "Head/HairFront1" {
		t.Errorf("candidate path = %q", esc.Candidates[0].Path)
	}

	if res.Outcome != OutcomeFabricated || !res.Escalated {
		t.Fatalf("outcome = %s escalated=%v", res.Outcome, res.Escalated)
	}
	fabricated := res.Target
	if p, _ := hierarchy.PathOf(target, fabricated); p.String() != "Head/Hair_Front" {
		t.Errorf("fabricated at %q", p)
	}
	if !fabricated.Fabricated || !batch.IsExcluded(fabricated) {
		t.Error("fabricated node should be flagged and excluded")
	}

	// A different source rig whose node would otherwise match the
	// fabricated node exactly must not be resolved onto it.
	other := hierarchy.FromPaths("S2", "Head/HairFront")
	m2 := mustMaterializer(t, batch, other, target)
	res2, err := m2.Resolve(context.Background(), hierarchy.MustResolve(other, "Head/HairFront"), false)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res2.Target == fabricated {
		t.Fatal("fabricated nodes must be excluded from matching")
	}
	if res2.Target.Name != "HairFront2" {
		t.Errorf("target = %s, want the selected HairFront2", res2.Target.Name)
	}
}

func TestResolve_StopIsSticky(t *testing.T) {
	source := hierarchy.FromPaths("S", "Head/Hair_Front", "Hips")
	decider := &recordingDecider{decisions: []Decision{Stop()}}
	batch := NewBatch(WithDecider(decider))
	m := mustMaterializer(t, batch, source, hairTarget("T"))

	res, err := m.Resolve(context.Background(), hierarchy.MustResolve(source, "Head/Hair_Front"), true)
	if !errors.Is(err, ErrStopped) || res.Outcome != OutcomeStopped {
		t.Fatalf("expected stop, got %s %v", res.Outcome, err)
	}
	if !batch.Stopped() {
		t.Fatal("batch should be stopped")
	}

	// Even a trivially resolvable node is refused, on any materializer.
	m2 := mustMaterializer(t, batch, source, hierarchy.FromPaths("T2", "Hips"))
	res, err = m2.Resolve(context.Background(), hierarchy.MustResolve(source, "Hips"), true)
	if !errors.Is(err, ErrStopped) || res.Outcome != OutcomeStopped {
		t.Errorf("expected sticky stop, got %s %v", res.Outcome, err)
	}
	if len(decider.calls) != 1 {
		t.Errorf("stop must not re-escalate, got %d calls", len(decider.calls))
	}
}

func TestResolve_DecisionReusedAcrossTargetRoots(t *testing.T) {
	source := hierarchy.FromPaths("S", "Head/Hair_Front")
	hair := hierarchy.MustResolve(source, "Head/Hair_Front")
	decider := &recordingDecider{decisions: []Decision{SelectCandidate(2).Remembered()}}
	batch := NewBatch(WithDecider(decider))

	var picked []string
	for _, name := range []string{"T1", "T2"} {
		target := hairTarget(name)
		m := mustMaterializer(t, batch, source, target)
		res, err := m.Resolve(context.Background(), hair, true)
		if err != nil {
			t.Fatalf("%s: Resolve: %v", name, err)
		}
		p, _ := hierarchy.PathOf(target, res.Target)
		picked = append(picked, p.String())
		if name == "T2" && !res.DecisionReused {
			t.Error("second target root should reuse the remembered decision")
		}
	}

	if len(decider.calls) != 1 {
		t.Errorf("decider called %d times, want 1", len(decider.calls))
	}
	for _, p := range picked {
		if p != "Head/HairFront3" {
			t.Errorf("picked %q, want Head/HairFront3", p)
		}
	}
	if batch.Decisions().Len() != 1 {
		t.Errorf("decision cache size = %d", batch.Decisions().Len())
	}
}

func TestResolve_RememberedSelectionOutOfRangeEscalatesAgain(t *testing.T) {
	source := hierarchy.FromPaths("S", "Head/Hair_Front")
	hair := hierarchy.MustResolve(source, "Head/Hair_Front")
	decider := &recordingDecider{decisions: []Decision{
		SelectCandidate(2).Remembered(),
		SelectCandidate(0),
	}}
	batch := NewBatch(WithDecider(decider))

	m1 := mustMaterializer(t, batch, source, hairTarget("T1"))
	if _, err := m1.Resolve(context.Background(), hair, true); err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	small := hierarchy.FromPaths("T2", "Head/HairFront1", "Head/HairFront2")
	m2 := mustMaterializer(t, batch, source, small)
	res, err := m2.Resolve(context.Background(), hair, true)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(decider.calls) != 2 {
		t.Fatalf("expected a second escalation, got %d calls", len(decider.calls))
	}
	if res.DecisionReused || res.Target.Name != "HairFront1" {
		t.Errorf("got %s reused=%v", res.Target.Name, res.DecisionReused)
	}
}

func TestResolve_DeciderErrors(t *testing.T) {
	source := hierarchy.FromPaths("S", "Head/Hair_Front")
	hair := hierarchy.MustResolve(source, "Head/Hair_Front")

	tests := []struct {
		name    string
		decider *recordingDecider
		want    error
	}{
		{"out of range", &recordingDecider{decisions: []Decision{SelectCandidate(7)}}, ErrInvalidDecision},
		{"zero decision", &recordingDecider{decisions: []Decision{{}}}, ErrInvalidDecision},
		{"decider error", &recordingDecider{err: errors.New("prompt closed")}, ErrDecisionFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			batch := NewBatch(WithDecider(tt.decider))
			m := mustMaterializer(t, batch, source, hairTarget("T"))
			_, err := m.Resolve(context.Background(), hair, true)
			if !errors.Is(err, tt.want) {
				t.Errorf("got %v, want %v", err, tt.want)
			}
			if batch.Stopped() {
				t.Error("a failed decision must not stop the batch")
			}
		})
	}
}

func TestResolve_NoDeciderTakesTopCandidate(t *testing.T) {
	source := hierarchy.FromPaths("S", "Head/Hair_Front")
	target := hairTarget("T")
	m := mustMaterializer(t, NewBatch(), source, target)

	res, err := m.Resolve(context.Background(), hierarchy.MustResolve(source, "Head/Hair_Front"), true)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Target != hierarchy.MustResolve(target, "Head/HairFront1") || res.Escalated {
		t.Errorf("expected best-effort HairFront1, got %v escalated=%v", res.Target, res.Escalated)
	}
	if len(res.Candidates) != 3 {
		t.Errorf("candidates should still be reported, got %d", len(res.Candidates))
	}
}

func TestResolve_SkipPolicy(t *testing.T) {
	source := hierarchy.FromPaths("S", "Head/Hair_Front")
	batch := NewBatch(WithDecider(PolicySkip))
	m := mustMaterializer(t, batch, source, hairTarget("T"))

	res, err := m.Resolve(context.Background(), hierarchy.MustResolve(source, "Head/Hair_Front"), true)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Outcome != OutcomeSkipped || res.Target != nil || res.Resolved() {
		t.Errorf("expected skipped, got %+v", res)
	}
}

func TestResolve_NotFoundAndFabricate(t *testing.T) {
	source := hierarchy.FromPaths("S", "Hips/Wing_L/WingTip_L")
	target := hierarchy.FromPaths("T", "Hips")
	wingTip := hierarchy.MustResolve(source, "Hips/Wing_L/WingTip_L")

	m := mustMaterializer(t, NewBatch(), source, target)
	res, err := m.Resolve(context.Background(), wingTip, false)
	if err != nil || res.Outcome != OutcomeNotFound || res.Target != nil {
		t.Fatalf("expected not found, got %+v, %v", res, err)
	}

	res, err = m.Resolve(context.Background(), wingTip, true)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Outcome != OutcomeFabricated {
		t.Fatalf("outcome = %s", res.Outcome)
	}
	if p, _ := hierarchy.PathOf(target, res.Target); p.String() != "Hips/Wing_L/WingTip_L" {
		t.Errorf("fabricated at %q", p)
	}
	if m.Stats().Fabricated != 2 {
		t.Errorf("fabricated %d nodes, want 2", m.Stats().Fabricated)
	}

	// The intermediate node now resolves through the direct path.
	res, err = m.Resolve(context.Background(), hierarchy.MustResolve(source, "Hips/Wing_L"), false)
	if err != nil || res.Strategy != StrategyDirectPath || !res.Target.Fabricated {
		t.Errorf("expected direct path onto fabricated Wing_L, got %+v, %v", res, err)
	}
}

func TestResolve_InvalidNodes(t *testing.T) {
	source := hierarchy.FromPaths("S", "Hips")
	m := mustMaterializer(t, NewBatch(), source, hierarchy.FromPaths("T", "Hips"))

	if _, err := m.Resolve(context.Background(), nil, false); !errors.Is(err, ErrInvalidNode) {
		t.Errorf("nil source: %v", err)
	}
	stranger := hierarchy.FromPaths("X", "Hips")
	if _, err := m.Resolve(context.Background(), hierarchy.MustResolve(stranger, "Hips"), false); !errors.Is(err, ErrInvalidNode) {
		t.Errorf("foreign source: %v", err)
	}
	if _, err := NewBatch().Materializer(nil, source); !errors.Is(err, ErrInvalidNode) {
		t.Errorf("nil root: %v", err)
	}
}

func TestResolve_FabricationFailure(t *testing.T) {
	source := hierarchy.NewNode("S")
	leaf := source.NewChild("").NewChild("Leaf")
	m := mustMaterializer(t, NewBatch(), source, hierarchy.NewNode("T"))

	_, err := m.Resolve(context.Background(), leaf, true)
	if !errors.Is(err, ErrFabricationFailed) || !errors.Is(err, hierarchy.ErrEmptyName) {
		t.Fatalf("expected fabrication failure wrapping ErrEmptyName, got %v", err)
	}
	var fe *FabricationError
	if !errors.As(err, &fe) || fe.Path.Leaf() != "Leaf" {
		t.Errorf("expected *FabricationError for the leaf path, got %#v", err)
	}
}

func TestBatch_Reset(t *testing.T) {
	source := hierarchy.FromPaths("S", "Head/Hair_Front", "Hips")
	batch := NewBatch(WithDecider(PolicyStop))
	target := hairTarget("T")
	target.NewChild("Hips")
	m := mustMaterializer(t, batch, source, target)
	hips := hierarchy.MustResolve(source, "Hips")

	if _, err := m.Resolve(context.Background(), hips, false); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if _, err := m.Resolve(context.Background(), hierarchy.MustResolve(source, "Head/Hair_Front"), true); !errors.Is(err, ErrStopped) {
		t.Fatalf("expected stop, got %v", err)
	}
	oldID := batch.ID()

	batch.Reset()

	if batch.Stopped() || batch.ID() == oldID || batch.Decisions().Len() != 0 {
		t.Errorf("reset left state behind: stopped=%v id=%s decisions=%d", batch.Stopped(), batch.ID(), batch.Decisions().Len())
	}
	res, err := m.Resolve(context.Background(), hips, false)
	if err != nil {
		t.Fatalf("Resolve after reset: %v", err)
	}
	if res.CacheHit {
		t.Error("reset should clear correspondence caches")
	}
}

func TestParsePolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    Policy
		wantErr bool
	}{
		{"first", PolicyFirst, false},
		{" Create ", PolicyCreate, false},
		{"skip", PolicySkip, false},
		{"stop", PolicyStop, false},
		{"interactive", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParsePolicy(tt.in)
			if (err != nil) != tt.wantErr || got != tt.want {
				t.Errorf("ParsePolicy(%q) = %q, %v", tt.in, got, err)
			}
		})
	}
}

func TestPolicy_DecisionsAreRemembered(t *testing.T) {
	for _, p := range []Policy{PolicyFirst, PolicyCreate, PolicySkip, PolicyStop} {
		d, err := p.Decide(context.Background(), Escalation{})
		if err != nil || !d.Remember {
			t.Errorf("%s: decision %v remember=%v err=%v", p, d, d.Remember, err)
		}
	}
}
