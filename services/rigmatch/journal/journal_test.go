// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package journal

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/rigmatch/services/rigmatch/hierarchy"
	"github.com/AleutianAI/rigmatch/services/rigmatch/resolve"
	"github.com/AleutianAI/rigmatch/services/rigmatch/transfer"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenInMemory(testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testReport(id string, finished time.Time) *transfer.Report {
	r := &transfer.Report{
		BatchID:    id,
		Source:     "Source",
		Targets:    []string{"Avatar"},
		StartedAt:  finished.Add(-time.Second),
		FinishedAt: finished,
	}
	r.Add(transfer.Entry{
		Target:     "Avatar",
		SourcePath: "Hips/Spine/Breast_L",
		TargetPath: "Hips/Spine/Breasts_L",
		Component:  "PhysBone",
		Outcome:    resolve.OutcomeMatched,
		Strategy:   "fuzzy_name",
		Confidence: 0.96875,
		Copied:     true,
	})
	return r
}

func TestNewStore_Validation(t *testing.T) {
	_, err := NewStore(nil, testLogger())
	assert.Error(t, err)

	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = NewStore(db, nil)
	assert.Error(t, err)

	s, err := NewStore(db, testLogger())
	require.NoError(t, err)
	assert.NoError(t, s.Close(), "closing a borrowed db is a no-op")
	assert.False(t, db.IsClosed())
}

func TestStore_SaveAndLoad(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	finished := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	report := testReport("batch-1", finished)

	meta, err := s.Record(ctx, report)
	require.NoError(t, err)
	assert.Equal(t, "batch-1", meta.BatchID)
	assert.Equal(t, 1, meta.EntryCount)
	assert.Equal(t, 1, meta.Summary.Matched)
	assert.Positive(t, meta.CompressedSize)
	assert.Len(t, meta.ContentHash, 64)

	loaded, err := s.Load(ctx, "batch-1")
	require.NoError(t, err)
	assert.Equal(t, report.Source, loaded.Source)
	assert.True(t, loaded.FinishedAt.Equal(finished))
	require.Len(t, loaded.Entries, 1)
	assert.Equal(t, report.Entries[0], loaded.Entries[0])
	assert.Equal(t, report.Summary, loaded.Summary)
}

func TestStore_SaveRejectsBadInput(t *testing.T) {
	s := newTestStore(t)
	//nolint:staticcheck // nil ctx is part of the contract under test
	assert.Error(t, s.Save(nil, testReport("x", time.Now())))
	assert.Error(t, s.Save(context.Background(), nil))
	assert.Error(t, s.Save(context.Background(), &transfer.Report{}))
}

func TestStore_LoadMissing(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Load(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.Latest(context.Background())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_Latest(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, s.Save(ctx, testReport("first", now)))
	require.NoError(t, s.Save(ctx, testReport("second", now.Add(time.Minute))))

	latest, err := s.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, "second", latest.BatchID)
}

func TestStore_ListNewestFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"b", "c", "a"} {
		require.NoError(t, s.Save(ctx, testReport(id, base.Add(time.Duration(i)*time.Hour))))
	}

	all, err := s.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"a", "c", "b"}, []string{all[0].BatchID, all[1].BatchID, all[2].BatchID})

	limited, err := s.List(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestStore_Delete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()
	require.NoError(t, s.Save(ctx, testReport("keep", now)))
	require.NoError(t, s.Save(ctx, testReport("drop", now.Add(time.Second))))

	require.NoError(t, s.Delete(ctx, "drop"))

	_, err := s.Load(ctx, "drop")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.Latest(ctx)
	assert.ErrorIs(t, err, ErrNotFound, "latest pointer should be dropped with its batch")

	list, err := s.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "keep", list[0].BatchID)

	assert.ErrorIs(t, s.Delete(ctx, "drop"), ErrNotFound)
}

func TestStore_JournalsDriverRuns(t *testing.T) {
	s := newTestStore(t)

	source := &hierarchy.Rig{Name: "Source", Root: hierarchy.FromPaths("Source", "Hips/Spine")}
	hierarchy.MustResolve(source.Root, "Hips/Spine").Components = []hierarchy.Component{{Kind: "PhysBone"}}
	target := &hierarchy.Rig{Name: "Avatar", Root: hierarchy.FromPaths("Avatar", "Hips/Spine")}

	d := transfer.NewDriver(transfer.WithLogger(testLogger()), transfer.WithJournal(s))
	report, err := d.Run(context.Background(), transfer.Request{Source: source, Targets: []*hierarchy.Rig{target}})
	require.NoError(t, err)

	stored, err := s.Latest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, report.BatchID, stored.BatchID)
	assert.Equal(t, 1, stored.Summary.Copied)
}

func TestOpen_Persists(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, err := Open(dir, testLogger())
	require.NoError(t, err)
	require.NoError(t, s.Save(ctx, testReport("durable", time.Now().UTC())))
	require.NoError(t, s.Close())

	s, err = Open(dir, testLogger())
	require.NoError(t, err)
	defer s.Close()
	r, err := s.Load(ctx, "durable")
	require.NoError(t, err)
	assert.Equal(t, "durable", r.BatchID)

	_, err = Open("", testLogger())
	assert.Error(t, err)
}
