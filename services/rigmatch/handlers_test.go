// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package rigmatch

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/rigmatch/services/rigmatch/hierarchy"
	"github.com/AleutianAI/rigmatch/services/rigmatch/journal"
	"github.com/AleutianAI/rigmatch/services/rigmatch/resolve"
	"github.com/AleutianAI/rigmatch/services/rigmatch/slots"
	"github.com/AleutianAI/rigmatch/services/rigmatch/transfer"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// setupTestRouter mounts handlers the way cmd/rigmatch does, without rate
// limiting.
func setupTestRouter(h *Handlers) *gin.Engine {
	return NewRouter(h, RouterConfig{ServiceName: "rigmatch-test"})
}

func serializable(name string, paths ...string) hierarchy.SerializableRig {
	return *hierarchy.ToSerializable(&hierarchy.Rig{Name: name, Root: hierarchy.FromPaths(name, paths...)})
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("unmarshal %q: %v", w.Body.String(), err)
	}
	return v
}

func TestHandleHealth(t *testing.T) {
	router := setupTestRouter(NewHandlers(WithLogger(quietLogger())))

	req := httptest.NewRequest(http.MethodGet, "/v1/rigmatch/health", nil)
	req.Header.Set(RequestIDHeader, "req-123")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if got := w.Header().Get(RequestIDHeader); got != "req-123" {
		t.Errorf("request id = %q, want echo of req-123", got)
	}
	resp := decode[HealthResponse](t, w)
	if resp.Status != "healthy" || resp.Journal || resp.DecisionPolicy != "first" || resp.SafeConfidence != 0.97 {
		t.Errorf("health = %+v", resp)
	}
}

func TestHandleResolve_FuzzyMatch(t *testing.T) {
	router := setupTestRouter(NewHandlers(WithLogger(quietLogger())))

	w := doJSON(t, router, http.MethodPost, "/v1/rigmatch/resolve", ResolveRequest{
		Source: serializable("Source", "Hips/Spine/Breast_L"),
		Target: serializable("Avatar", "Hips/Spine/Breasts_L"),
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	resp := decode[ResolveResponse](t, w)
	if resp.BatchID == "" || resp.Stopped {
		t.Errorf("batch = %q stopped = %v", resp.BatchID, resp.Stopped)
	}
	if len(resp.Resolutions) != 3 {
		t.Fatalf("got %d resolutions", len(resp.Resolutions))
	}
	breast := resp.Resolutions[2]
	if breast.SourcePath != "Hips/Spine/Breast_L" || breast.TargetPath != "Hips/Spine/Breasts_L" {
		t.Errorf("breast = %+v", breast)
	}
	if breast.Outcome != resolve.OutcomeMatched || breast.Strategy != "fuzzy_name" {
		t.Errorf("breast = %+v", breast)
	}
	if resp.Stats.StrategyRuns != 1 {
		t.Errorf("stats = %+v", resp.Stats)
	}
}

func TestHandleResolve_Policies(t *testing.T) {
	router := setupTestRouter(NewHandlers(WithLogger(quietLogger())))
	source := serializable("Source", "Head/Hair_Front")
	target := serializable("Avatar", "Head/HairFront1", "Head/HairFront2", "Head/HairFront3")

	t.Run("skip", func(t *testing.T) {
		w := doJSON(t, router, http.MethodPost, "/v1/rigmatch/resolve",
			ResolveRequest{Source: source, Target: target, Policy: "skip"})
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d: %s", w.Code, w.Body.String())
		}
		resp := decode[ResolveResponse](t, w)
		hair := resp.Resolutions[len(resp.Resolutions)-1]
		if hair.Outcome != resolve.OutcomeSkipped || !hair.Escalated || hair.Decision != "skip" {
			t.Errorf("hair = %+v", hair)
		}
		if len(hair.Candidates) != 3 || hair.Candidates[0].Path != "Head/HairFront1" {
			t.Errorf("candidates = %+v", hair.Candidates)
		}
	})

	t.Run("stop", func(t *testing.T) {
		w := doJSON(t, router, http.MethodPost, "/v1/rigmatch/resolve",
			ResolveRequest{Source: source, Target: target, Policy: "stop"})
		resp := decode[ResolveResponse](t, w)
		if !resp.Stopped {
			t.Fatal("expected a stopped batch")
		}
		if last := resp.Resolutions[len(resp.Resolutions)-1]; last.Outcome != resolve.OutcomeStopped {
			t.Errorf("last = %+v", last)
		}
	})

	t.Run("create returns the fabricated target", func(t *testing.T) {
		w := doJSON(t, router, http.MethodPost, "/v1/rigmatch/resolve",
			ResolveRequest{Source: source, Target: target, Policy: "create", IncludeTarget: true})
		resp := decode[ResolveResponse](t, w)
		if resp.Target == nil {
			t.Fatal("target rig missing")
		}
		rig, err := hierarchy.FromSerializable(resp.Target)
		if err != nil {
			t.Fatalf("FromSerializable: %v", err)
		}
		if _, ok := hierarchy.Resolve(rig.Root, hierarchy.ParsePath("Head/Hair_Front")); !ok {
			t.Error("fabricated Head/Hair_Front missing from returned target")
		}
	})
}

func TestHandleResolve_BadRequests(t *testing.T) {
	router := setupTestRouter(NewHandlers(WithLogger(quietLogger())))
	valid := serializable("Rig", "Hips")

	tests := []struct {
		name     string
		body     any
		wantCode string
	}{
		{"malformed json", "{", CodeInvalidRequest},
		{"empty rigs", "{}", CodeInvalidRig},
		{"interactive policy", ResolveRequest{Source: valid, Target: valid, Policy: "interactive"}, CodeInvalidPolicy},
		{"unknown policy", ResolveRequest{Source: valid, Target: valid, Policy: "coinflip"}, CodeInvalidPolicy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(t, router, http.MethodPost, "/v1/rigmatch/resolve", tt.body)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d", w.Code)
			}
			if resp := decode[ErrorResponse](t, w); resp.Code != tt.wantCode {
				t.Errorf("code = %s, want %s (%s)", resp.Code, tt.wantCode, resp.Error)
			}
		})
	}
}

func TestHandleTransfer_JournaledBatch(t *testing.T) {
	store, err := journal.OpenInMemory(quietLogger())
	if err != nil {
		t.Fatalf("OpenInMemory: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	router := setupTestRouter(NewHandlers(WithLogger(quietLogger()), WithStore(store)))

	source := &hierarchy.Rig{Name: "Source", Root: hierarchy.FromPaths("Source", "Hips/Spine/Breast_L")}
	hierarchy.MustResolve(source.Root, "Hips/Spine/Breast_L").Components = []hierarchy.Component{
		{Kind: "PhysBone", Properties: map[string]any{"pull": 0.2}},
	}

	w := doJSON(t, router, http.MethodPost, "/v1/rigmatch/transfer", TransferRequest{
		Source:         *hierarchy.ToSerializable(source),
		Targets:        []hierarchy.SerializableRig{serializable("Avatar", "Hips/Spine/Breasts_L")},
		IncludeTargets: true,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	resp := decode[TransferResponse](t, w)
	if resp.Report.Summary.Copied != 1 || len(resp.Targets) != 1 {
		t.Fatalf("report = %+v", resp.Report)
	}
	avatar, err := hierarchy.FromSerializable(resp.Targets[0])
	if err != nil {
		t.Fatalf("FromSerializable: %v", err)
	}
	if n := hierarchy.MustResolve(avatar.Root, "Hips/Spine/Breasts_L"); len(n.Components) != 1 {
		t.Errorf("components = %+v", n.Components)
	}

	w = doJSON(t, router, http.MethodGet, "/v1/rigmatch/batches/"+resp.Report.BatchID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get batch status = %d", w.Code)
	}
	if got := decode[transfer.Report](t, w); got.BatchID != resp.Report.BatchID || len(got.Entries) != 1 {
		t.Errorf("stored report = %+v", got)
	}

	w = doJSON(t, router, http.MethodGet, "/v1/rigmatch/batches?limit=5", nil)
	if list := decode[BatchListResponse](t, w); len(list.Batches) != 1 {
		t.Errorf("batches = %+v", list.Batches)
	}

	w = doJSON(t, router, http.MethodGet, "/v1/rigmatch/batches/unknown", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown batch status = %d", w.Code)
	}
}

func TestHandleTransfer_RequiresTargets(t *testing.T) {
	router := setupTestRouter(NewHandlers(WithLogger(quietLogger())))

	w := doJSON(t, router, http.MethodPost, "/v1/rigmatch/transfer", TransferRequest{
		Source: serializable("Source", "Hips"),
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d", w.Code)
	}
}

func TestHandleBatches_NoJournal(t *testing.T) {
	router := setupTestRouter(NewHandlers(WithLogger(quietLogger())))

	for _, path := range []string{"/v1/rigmatch/batches", "/v1/rigmatch/batches/abc"} {
		w := doJSON(t, router, http.MethodGet, path, nil)
		if w.Code != http.StatusServiceUnavailable {
			t.Errorf("%s: status = %d", path, w.Code)
		}
		if resp := decode[ErrorResponse](t, w); resp.Code != CodeJournalDisabled {
			t.Errorf("%s: code = %s", path, resp.Code)
		}
	}
}

func TestHandleSlotMatch(t *testing.T) {
	router := setupTestRouter(NewHandlers(WithLogger(quietLogger())))

	w := doJSON(t, router, http.MethodPost, "/v1/rigmatch/slots/match", SlotMatchRequest{
		Slot:      slots.Slot{Name: "Hair_Main", Index: 0},
		Materials: []slots.Material{{Name: "Body"}, {Name: "Hair_Mainss"}, {Name: "Hair_Mains"}},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	resp := decode[SlotMatchResponse](t, w)
	if !resp.Matched || resp.Result.Index != 2 || resp.Result.Rule != slots.RuleNearest {
		t.Errorf("resp = %+v", resp)
	}

	w = doJSON(t, router, http.MethodPost, "/v1/rigmatch/slots/match", SlotMatchRequest{
		Slot:      slots.Slot{Name: "Skin"},
		Materials: []slots.Material{{Name: "Face"}},
	})
	if resp := decode[SlotMatchResponse](t, w); resp.Matched || resp.Result != nil {
		t.Errorf("resp = %+v", resp)
	}

	w = doJSON(t, router, http.MethodPost, "/v1/rigmatch/slots/match", SlotMatchRequest{})
	if w.Code != http.StatusBadRequest {
		t.Errorf("empty slot status = %d", w.Code)
	}
}

func TestHandlers_SetConfig(t *testing.T) {
	h := NewHandlers(WithLogger(quietLogger()))
	cfg := *h.Config()
	cfg.DecisionPolicy = "skip"
	h.SetConfig(&cfg)

	router := setupTestRouter(h)
	w := doJSON(t, router, http.MethodGet, "/v1/rigmatch/health", nil)
	if resp := decode[HealthResponse](t, w); resp.DecisionPolicy != "skip" {
		t.Errorf("policy = %s", resp.DecisionPolicy)
	}
}

func TestRouter_RateLimitAndMetrics(t *testing.T) {
	router := NewRouter(NewHandlers(WithLogger(quietLogger())), RouterConfig{RateLimit: 0.001, Burst: 1})

	if w := doJSON(t, router, http.MethodGet, "/v1/rigmatch/health", nil); w.Code != http.StatusOK {
		t.Fatalf("first request status = %d", w.Code)
	}
	w := doJSON(t, router, http.MethodGet, "/v1/rigmatch/health", nil)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("second request status = %d", w.Code)
	}
	if resp := decode[ErrorResponse](t, w); resp.Code != CodeRateLimited {
		t.Errorf("code = %s", resp.Code)
	}

	w = doJSON(t, router, http.MethodGet, "/metrics", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "go_goroutines") {
		t.Errorf("metrics status = %d", w.Code)
	}
}
