// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package rigmatch exposes the correspondence resolver, the component
// transfer driver and the material slot matcher over HTTP.
package rigmatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync/atomic"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/rigmatch/services/rigmatch/config"
	"github.com/AleutianAI/rigmatch/services/rigmatch/hierarchy"
	"github.com/AleutianAI/rigmatch/services/rigmatch/journal"
	"github.com/AleutianAI/rigmatch/services/rigmatch/resolve"
	"github.com/AleutianAI/rigmatch/services/rigmatch/slots"
	"github.com/AleutianAI/rigmatch/services/rigmatch/transfer"
)

// BatchStore is the journal used by the batch endpoints.
type BatchStore interface {
	transfer.Journal
	Load(ctx context.Context, batchID string) (*transfer.Report, error)
	List(ctx context.Context, limit int) ([]*journal.Metadata, error)
}

// HandlerOption configures Handlers.
type HandlerOption func(*Handlers)

// WithStore enables journaling and the batch endpoints.
func WithStore(s BatchStore) HandlerOption {
	return func(h *Handlers) { h.store = s }
}

// WithConfig sets the initial resolver configuration.
func WithConfig(cfg *config.ResolverConfig) HandlerOption {
	return func(h *Handlers) {
		if cfg != nil {
			h.cfg.Store(cfg)
		}
	}
}

// WithLogger sets the base logger.
func WithLogger(l *slog.Logger) HandlerOption {
	return func(h *Handlers) {
		if l != nil {
			h.logger = l
		}
	}
}

// Handlers serves the rigmatch HTTP API.
//
// Thread Safety: Safe for concurrent use. Every request gets its own
// resolver batch; the configuration is swapped atomically.
type Handlers struct {
	cfg    atomic.Pointer[config.ResolverConfig]
	store  BatchStore
	logger *slog.Logger
}

// NewHandlers creates handlers using config.Default() unless WithConfig is
// given.
func NewHandlers(opts ...HandlerOption) *Handlers {
	h := &Handlers{logger: slog.Default()}
	h.cfg.Store(config.Default())
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// SetConfig replaces the resolver configuration for subsequent requests.
func (h *Handlers) SetConfig(cfg *config.ResolverConfig) {
	if cfg != nil {
		h.cfg.Store(cfg)
	}
}

// Config returns the active resolver configuration.
func (h *Handlers) Config() *config.ResolverConfig {
	return h.cfg.Load()
}

// HandleResolve handles POST /v1/rigmatch/resolve.
//
// Description:
//
//	Resolves every node of the source rig against the target rig in one
//	batch and reports each resolution. Ambiguous results are settled by
//	an automated policy.
//
// Request Body:
//
//	ResolveRequest
//
// Response:
//
//	200 OK: ResolveResponse
//	400 Bad Request: Malformed body, invalid rig or policy
func (h *Handlers) HandleResolve(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := h.logger.With("request_id", requestID, "handler", "HandleResolve")

	var req ResolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, CodeInvalidRequest, err)
		return
	}
	source, err := hierarchy.FromSerializable(&req.Source)
	if err != nil {
		badRequest(c, CodeInvalidRig, fmt.Errorf("source: %w", err))
		return
	}
	target, err := hierarchy.FromSerializable(&req.Target)
	if err != nil {
		badRequest(c, CodeInvalidRig, fmt.Errorf("target: %w", err))
		return
	}

	cfg := h.Config()
	batchOpts, err := policyOptions(cfg, req.Policy)
	if err != nil {
		badRequest(c, CodeInvalidPolicy, err)
		return
	}
	create := cfg.CreateIfMissing
	if req.CreateIfMissing != nil {
		create = *req.CreateIfMissing
	}

	batch := resolve.NewBatch(batchOpts...)
	m, err := batch.Materializer(source.Root, target.Root)
	if err != nil {
		badRequest(c, CodeInvalidRig, err)
		return
	}

	resp := ResolveResponse{BatchID: batch.ID()}
	for _, n := range hierarchy.Descendants(source.Root) {
		res, err := m.Resolve(c.Request.Context(), n, create)
		if errors.Is(err, resolve.ErrStopped) {
			resp.Stopped = true
			resp.Resolutions = append(resp.Resolutions, nodeResolution(m, res, nil))
			break
		}
		if ctxErr := c.Request.Context().Err(); ctxErr != nil {
			logger.Warn("resolve request cancelled", slog.String("error", ctxErr.Error()))
			return
		}
		resp.Resolutions = append(resp.Resolutions, nodeResolution(m, res, err))
	}
	resp.Stats = m.Stats()
	if req.IncludeTarget {
		resp.Target = hierarchy.ToSerializable(target)
	}

	logger.Info("resolve completed",
		slog.String("batch_id", batch.ID()),
		slog.Int("nodes", len(resp.Resolutions)),
		slog.Int("escalations", resp.Stats.Escalations),
		slog.Int("fabricated", resp.Stats.Fabricated),
		slog.Bool("stopped", resp.Stopped),
	)
	c.JSON(http.StatusOK, resp)
}

// HandleTransfer handles POST /v1/rigmatch/transfer.
//
// Description:
//
//	Runs the component-transfer driver from the source rig onto every
//	target rig. The report is journaled when a store is configured.
//
// Response:
//
//	200 OK: TransferResponse
//	400 Bad Request: Malformed body, invalid rig or policy
//	500 Internal Server Error: The run was cancelled or failed
func (h *Handlers) HandleTransfer(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := h.logger.With("request_id", requestID, "handler", "HandleTransfer")

	var req TransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, CodeInvalidRequest, err)
		return
	}
	source, err := hierarchy.FromSerializable(&req.Source)
	if err != nil {
		badRequest(c, CodeInvalidRig, fmt.Errorf("source: %w", err))
		return
	}
	targets := make([]*hierarchy.Rig, 0, len(req.Targets))
	for i := range req.Targets {
		t, err := hierarchy.FromSerializable(&req.Targets[i])
		if err != nil {
			badRequest(c, CodeInvalidRig, fmt.Errorf("target %d: %w", i, err))
			return
		}
		targets = append(targets, t)
	}

	cfg := h.Config()
	batchOpts, err := policyOptions(cfg, req.Policy)
	if err != nil {
		badRequest(c, CodeInvalidPolicy, err)
		return
	}
	create := cfg.CreateIfMissing
	if req.CreateIfMissing != nil {
		create = *req.CreateIfMissing
	}

	driverOpts := []transfer.Option{
		transfer.WithLogger(logger),
		transfer.WithBatchOptions(batchOpts...),
	}
	if h.store != nil {
		driverOpts = append(driverOpts, transfer.WithJournal(h.store))
	}

	report, err := transfer.NewDriver(driverOpts...).Run(c.Request.Context(), transfer.Request{
		Source:          source,
		Targets:         targets,
		CreateIfMissing: create,
	})
	if err != nil {
		logger.Error("transfer failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error(), Code: CodeInternal})
		return
	}

	resp := TransferResponse{Report: report}
	if req.IncludeTargets {
		for _, t := range targets {
			resp.Targets = append(resp.Targets, hierarchy.ToSerializable(t))
		}
	}
	c.JSON(http.StatusOK, resp)
}

// HandleSlotMatch handles POST /v1/rigmatch/slots/match.
func (h *Handlers) HandleSlotMatch(c *gin.Context) {
	var req SlotMatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, CodeInvalidRequest, err)
		return
	}
	if req.Slot.Name == "" {
		badRequest(c, CodeInvalidRequest, errors.New("slot name is required"))
		return
	}

	res, ok := slots.Match(req.Slot, req.Materials)
	resp := SlotMatchResponse{Matched: ok}
	if ok {
		resp.Result = &res
	}
	c.JSON(http.StatusOK, resp)
}

// HandleGetBatch handles GET /v1/rigmatch/batches/:id.
//
// Response:
//
//	200 OK: transfer.Report
//	404 Not Found: Unknown batch ID
//	503 Service Unavailable: No journal configured
func (h *Handlers) HandleGetBatch(c *gin.Context) {
	if !h.requireStore(c) {
		return
	}
	id := c.Param("id")
	report, err := h.store.Load(c.Request.Context(), id)
	if errors.Is(err, journal.ErrNotFound) {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error(), Code: CodeNotFound})
		return
	}
	if err != nil {
		h.logger.Error("loading batch failed",
			slog.String("request_id", getOrCreateRequestID(c)),
			slog.String("batch_id", id),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error(), Code: CodeInternal})
		return
	}
	c.JSON(http.StatusOK, report)
}

// HandleListBatches handles GET /v1/rigmatch/batches?limit=N.
func (h *Handlers) HandleListBatches(c *gin.Context) {
	if !h.requireStore(c) {
		return
	}
	limit := 20
	if s := c.Query("limit"); s != "" {
		if parsed, err := strconv.Atoi(s); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	batches, err := h.store.List(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error(), Code: CodeInternal})
		return
	}
	if batches == nil {
		batches = []*journal.Metadata{}
	}
	c.JSON(http.StatusOK, BatchListResponse{Batches: batches})
}

// HandleHealth handles GET /v1/rigmatch/health.
func (h *Handlers) HandleHealth(c *gin.Context) {
	cfg := h.Config()
	c.JSON(http.StatusOK, HealthResponse{
		Status:         "healthy",
		Journal:        h.store != nil,
		DecisionPolicy: cfg.DecisionPolicy,
		SafeConfidence: cfg.SafeConfidence,
	})
}

func (h *Handlers) requireStore(c *gin.Context) bool {
	if h.store != nil {
		return true
	}
	c.JSON(http.StatusServiceUnavailable, ErrorResponse{
		Error: "batch journal is not configured",
		Code:  CodeJournalDisabled,
	})
	return false
}

// policyOptions builds batch options for cfg with an optional policy
// override. Interactive policies cannot be served over HTTP.
func policyOptions(cfg *config.ResolverConfig, override string) ([]resolve.BatchOption, error) {
	name := cfg.DecisionPolicy
	if override != "" {
		name = override
	}
	p, err := resolve.ParsePolicy(name)
	if err != nil {
		return nil, err
	}
	return []resolve.BatchOption{resolve.WithConfig(cfg), resolve.WithDecider(p)}, nil
}

func nodeResolution(m *resolve.Materializer, res resolve.Resolution, err error) NodeResolution {
	nr := NodeResolution{
		Outcome:    res.Outcome,
		Strategy:   res.Strategy,
		Confidence: res.Confidence,
		Escalated:  res.Escalated,
	}
	if p, ok := hierarchy.PathOf(m.SourceRoot(), res.Source); ok {
		nr.SourcePath = p.String()
	}
	if res.Target != nil {
		if p, ok := hierarchy.PathOf(m.TargetRoot(), res.Target); ok {
			nr.TargetPath = p.String()
		}
	}
	if res.Escalated {
		nr.Decision = res.Decision.String()
	}
	for _, cand := range res.Candidates {
		p, _ := hierarchy.PathOf(m.TargetRoot(), cand.Node)
		nr.Candidates = append(nr.Candidates, CandidateInfo{Path: p.String(), Score: cand.Score})
	}
	if err != nil {
		nr.Error = err.Error()
	}
	return nr
}

func badRequest(c *gin.Context, code string, err error) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: code})
}
