// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package transfer copies components from a source rig onto any number of
// target rigs, resolving each source node's counterpart with the resolver.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/rigmatch/services/rigmatch/hierarchy"
	"github.com/AleutianAI/rigmatch/services/rigmatch/resolve"
)

var (
	entriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rigmatch",
		Subsystem: "transfer",
		Name:      "entries_total",
		Help:      "Transfer entries by outcome",
	}, []string{"outcome"})

	runDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "rigmatch",
		Subsystem: "transfer",
		Name:      "run_duration_seconds",
		Help:      "Duration of transfer batch runs",
		Buckets:   prometheus.DefBuckets,
	})
)

var driverTracer = otel.Tracer("aleutian.rigmatch.transfer")

// ErrInvalidRequest is returned for requests without a source or targets.
var ErrInvalidRequest = errors.New("invalid transfer request")

// Journal persists completed reports.
type Journal interface {
	Save(ctx context.Context, report *Report) error
}

// Request names the rigs of one batch.
type Request struct {
	Source  *hierarchy.Rig
	Targets []*hierarchy.Rig

	// CreateIfMissing fabricates target nodes that have no counterpart.
	CreateIfMissing bool
}

// Option configures a Driver.
type Option func(*Driver)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(d *Driver) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithCopier replaces the ComponentCopier.
func WithCopier(c Copier) Option {
	return func(d *Driver) { d.copier = c }
}

// WithJournal saves every report to j.
func WithJournal(j Journal) Option {
	return func(d *Driver) { d.journal = j }
}

// WithBatchOptions configures the resolver batch created per run.
func WithBatchOptions(opts ...resolve.BatchOption) Option {
	return func(d *Driver) { d.batchOpts = append(d.batchOpts, opts...) }
}

// Driver runs component-transfer batches.
//
// Thread Safety: Safe for concurrent Run calls on distinct target rigs.
// Each run gets its own resolver batch.
type Driver struct {
	logger    *slog.Logger
	copier    Copier
	journal   Journal
	batchOpts []resolve.BatchOption
}

// NewDriver creates a driver.
func NewDriver(opts ...Option) *Driver {
	d := &Driver{
		logger: slog.Default(),
		copier: ComponentCopier{},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run transfers every component of the source rig onto each target rig.
//
// Description:
//
//	Target rigs are processed in order so decisions remembered for one are
//	reused by the next. Within a target, source nodes carrying components
//	are visited in pre-order. Each node is resolved once and each of its
//	components copied. Resolution and copy failures are recorded on the
//	entry and the run continues; a Stop decision ends the run with
//	Report.Stopped set.
//
// Inputs:
//
//	ctx - Cancels the run between nodes.
//	req - Source and target rigs.
//
// Outputs:
//
//	*Report - Every entry produced, also on cancellation.
//	error - ErrInvalidRequest, or ctx.Err() when cancelled.
func (d *Driver) Run(ctx context.Context, req Request) (*Report, error) {
	if req.Source == nil || req.Source.Root == nil || len(req.Targets) == 0 {
		return nil, fmt.Errorf("%w: source and at least one target are required", ErrInvalidRequest)
	}
	for i, t := range req.Targets {
		if t == nil || t.Root == nil {
			return nil, fmt.Errorf("%w: target %d has no root", ErrInvalidRequest, i)
		}
	}

	batch := resolve.NewBatch(d.batchOpts...)
	ctx, span := driverTracer.Start(ctx, "transfer.Driver.Run",
		trace.WithAttributes(
			attribute.String("batch_id", batch.ID()),
			attribute.String("source", req.Source.Name),
			attribute.Int("targets", len(req.Targets)),
		),
	)
	defer span.End()

	report := &Report{
		BatchID:   batch.ID(),
		Source:    req.Source.Name,
		StartedAt: time.Now().UTC(),
	}
	for _, t := range req.Targets {
		report.Targets = append(report.Targets, t.Name)
	}

	logger := d.logger.With(slog.String("batch_id", batch.ID()))
	logger.Info("transfer started",
		slog.String("source", req.Source.Name),
		slog.Int("targets", len(req.Targets)),
	)

	sources := componentNodes(req.Source.Root)
	runErr := d.runTargets(ctx, logger, batch, req, sources, report)

	report.FinishedAt = time.Now().UTC()
	runDuration.Observe(report.Duration().Seconds())
	span.SetAttributes(
		attribute.Int("entries", len(report.Entries)),
		attribute.Bool("stopped", report.Stopped),
	)
	if runErr != nil {
		span.RecordError(runErr)
		span.SetStatus(codes.Error, "transfer interrupted")
	}

	logger.Info("transfer finished",
		slog.Int("matched", report.Summary.Matched),
		slog.Int("fabricated", report.Summary.Fabricated),
		slog.Int("skipped", report.Summary.Skipped),
		slog.Int("not_found", report.Summary.NotFound),
		slog.Int("failed", report.Summary.Failed),
		slog.Bool("stopped", report.Stopped),
		slog.Duration("duration", report.Duration()),
	)

	if d.journal != nil {
		if err := d.journal.Save(context.WithoutCancel(ctx), report); err != nil {
			logger.Warn("saving transfer report failed", slog.String("error", err.Error()))
		}
	}
	return report, runErr
}

func (d *Driver) runTargets(ctx context.Context, logger *slog.Logger, batch *resolve.Batch, req Request, sources []*hierarchy.Node, report *Report) error {
	for _, target := range req.Targets {
		m, err := batch.Materializer(req.Source.Root, target.Root)
		if err != nil {
			return err
		}
		for _, src := range sources {
			if err := ctx.Err(); err != nil {
				return err
			}
			stop := d.transferNode(ctx, logger, m, target.Name, src, req.CreateIfMissing, report)
			if stop {
				report.Stopped = true
				logger.Warn("transfer stopped by decision",
					slog.String("target", target.Name),
					slog.String("source_node", src.Name),
				)
				return nil
			}
		}
	}
	return nil
}

// transferNode resolves src and copies each of its components. It reports
// whether the batch was stopped.
func (d *Driver) transferNode(ctx context.Context, logger *slog.Logger, m *resolve.Materializer, targetName string, src *hierarchy.Node, create bool, report *Report) bool {
	sourcePath, _ := hierarchy.PathOf(m.SourceRoot(), src)
	res, err := m.Resolve(ctx, src, create)

	base := Entry{
		Target:     targetName,
		SourcePath: sourcePath.String(),
		Outcome:    res.Outcome,
		Strategy:   res.Strategy,
		Confidence: res.Confidence,
		Escalated:  res.Escalated,
	}
	if res.Escalated {
		base.Decision = res.Decision.String()
	}
	if res.Target != nil {
		tp, _ := hierarchy.PathOf(m.TargetRoot(), res.Target)
		base.TargetPath = tp.String()
	}

	stopped := errors.Is(err, resolve.ErrStopped)
	if err != nil && !stopped {
		base.Error = err.Error()
		logger.Warn("resolution failed",
			slog.String("target", targetName),
			slog.String("source_path", base.SourcePath),
			slog.String("error", err.Error()),
		)
	}

	for _, c := range src.Components {
		e := base
		e.Component = c.Kind
		if e.Error == "" && res.Resolved() {
			if cerr := d.copier.Copy(ctx, src, res.Target, c); cerr != nil {
				e.Error = fmt.Sprintf("copy %s: %v", c.Kind, cerr)
			} else {
				e.Copied = true
			}
		}
		report.Add(e)
		entriesTotal.WithLabelValues(entryLabel(e)).Inc()

		logger.Debug("component transferred",
			slog.String("target", targetName),
			slog.String("source_path", e.SourcePath),
			slog.String("target_path", e.TargetPath),
			slog.String("component", e.Component),
			slog.String("outcome", string(e.Outcome)),
			slog.String("strategy", e.Strategy),
			slog.Float64("confidence", e.Confidence),
			slog.Bool("copied", e.Copied),
		)
	}
	return stopped
}

func entryLabel(e Entry) string {
	if e.Error != "" {
		return "failed"
	}
	return string(e.Outcome)
}

// componentNodes returns the root and its descendants that carry
// components, in pre-order.
func componentNodes(root *hierarchy.Node) []*hierarchy.Node {
	var out []*hierarchy.Node
	if len(root.Components) > 0 {
		out = append(out, root)
	}
	hierarchy.Walk(root, func(n *hierarchy.Node, _ int) {
		if len(n.Components) > 0 {
			out = append(out, n)
		}
	})
	return out
}
