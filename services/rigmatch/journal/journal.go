// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package journal persists transfer reports in BadgerDB so past batches can
// be inspected after the process exits.
package journal

import (
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/rigmatch/services/rigmatch/transfer"
)

// BadgerDB keys for batch reports.
const (
	KeyPrefix        = "rigmatch:batch:"
	keySuffixReport  = ":report"
	keySuffixMeta    = ":meta"
	keyLatest        = KeyPrefix + "latest"
	defaultListLimit = 100
)

// ErrNotFound is returned when no report exists for a batch ID.
var ErrNotFound = errors.New("batch report not found")

// Metadata summarizes a stored report without its entries.
type Metadata struct {
	BatchID    string           `json:"batch_id"`
	Source     string           `json:"source"`
	Targets    []string         `json:"targets"`
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt time.Time        `json:"finished_at"`
	Stopped    bool             `json:"stopped"`
	Summary    transfer.Summary `json:"summary"`
	EntryCount int              `json:"entry_count"`

	// CompressedSize is the size of the gzip-compressed report in bytes.
	CompressedSize int64 `json:"compressed_size"`

	// ContentHash is the SHA256 of the compressed report.
	ContentHash string `json:"content_hash"`
}

// Store keeps transfer reports in BadgerDB.
//
// Key Schema:
//
//	rigmatch:batch:{batchID}:report → gzip(JSON(transfer.Report))
//	rigmatch:batch:{batchID}:meta   → JSON(Metadata)
//	rigmatch:batch:latest           → batchID
//
// Thread Safety:
//
//	Safe for concurrent use. BadgerDB handles its own concurrency control.
type Store struct {
	db     *badger.DB
	logger *slog.Logger
	owned  bool
}

// NewStore wraps an opened BadgerDB. The caller keeps ownership of db.
func NewStore(db *badger.DB, logger *slog.Logger) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("badger db must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}
	return &Store{db: db, logger: logger}, nil
}

// Open opens (or creates) a journal in dir. Close releases it.
func Open(dir string, logger *slog.Logger) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("journal directory must not be empty")
	}
	return open(badger.DefaultOptions(dir), logger)
}

// OpenInMemory opens a journal that lives only as long as the process.
func OpenInMemory(logger *slog.Logger) (*Store, error) {
	return open(badger.DefaultOptions("").WithInMemory(true), logger)
}

func open(opts badger.Options, logger *slog.Logger) (*Store, error) {
	db, err := badger.Open(opts.WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("opening journal: %w", err)
	}
	s, err := NewStore(db, logger)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	s.owned = true
	return s, nil
}

// Close closes the database if the store opened it.
func (s *Store) Close() error {
	if !s.owned {
		return nil
	}
	return s.db.Close()
}

// Save stores report and moves the latest pointer to it. Saving a report
// with an existing batch ID overwrites it.
func (s *Store) Save(ctx context.Context, report *transfer.Report) error {
	_, err := s.Record(ctx, report)
	return err
}

// Record is Save returning the stored metadata.
func (s *Store) Record(ctx context.Context, report *transfer.Report) (*Metadata, error) {
	if ctx == nil {
		return nil, fmt.Errorf("ctx must not be nil")
	}
	if report == nil {
		return nil, fmt.Errorf("report must not be nil")
	}
	if report.BatchID == "" {
		return nil, fmt.Errorf("report batch ID must not be empty")
	}

	jsonData, err := json.Marshal(report)
	if err != nil {
		return nil, fmt.Errorf("marshaling report: %w", err)
	}
	var compressed bytes.Buffer
	gw := gzip.NewWriter(&compressed)
	if _, err := gw.Write(jsonData); err != nil {
		return nil, fmt.Errorf("compressing report: %w", err)
	}
	if err := gw.Close(); err != nil {
		return nil, fmt.Errorf("closing gzip writer: %w", err)
	}
	data := compressed.Bytes()
	sum := sha256.Sum256(data)

	meta := &Metadata{
		BatchID:        report.BatchID,
		Source:         report.Source,
		Targets:        report.Targets,
		StartedAt:      report.StartedAt,
		FinishedAt:     report.FinishedAt,
		Stopped:        report.Stopped,
		Summary:        report.Summary,
		EntryCount:     len(report.Entries),
		CompressedSize: int64(len(data)),
		ContentHash:    hex.EncodeToString(sum[:]),
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("marshaling metadata: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(reportKey(report.BatchID), data); err != nil {
			return fmt.Errorf("storing report: %w", err)
		}
		if err := txn.Set(metaKey(report.BatchID), metaJSON); err != nil {
			return fmt.Errorf("storing metadata: %w", err)
		}
		if err := txn.Set([]byte(keyLatest), []byte(report.BatchID)); err != nil {
			return fmt.Errorf("updating latest pointer: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("writing report to badger: %w", err)
	}

	s.logger.Info("batch report saved",
		slog.String("batch_id", report.BatchID),
		slog.Int("entries", meta.EntryCount),
		slog.Int64("compressed_size", meta.CompressedSize),
	)
	return meta, nil
}

// Load returns the report of a batch.
//
// Outputs:
//
//	*transfer.Report - The stored report.
//	error - Wraps ErrNotFound when the batch is unknown.
func (s *Store) Load(ctx context.Context, batchID string) (*transfer.Report, error) {
	if ctx == nil {
		return nil, fmt.Errorf("ctx must not be nil")
	}
	if batchID == "" {
		return nil, fmt.Errorf("batch ID must not be empty")
	}

	var compressed []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(reportKey(batchID))
		if err != nil {
			return err
		}
		compressed, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, batchID)
	}
	if err != nil {
		return nil, fmt.Errorf("reading report %s: %w", batchID, err)
	}

	gr, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, fmt.Errorf("decompressing report %s: %w", batchID, err)
	}
	defer gr.Close()
	jsonData, err := io.ReadAll(gr)
	if err != nil {
		return nil, fmt.Errorf("decompressing report %s: %w", batchID, err)
	}

	var report transfer.Report
	if err := json.Unmarshal(jsonData, &report); err != nil {
		return nil, fmt.Errorf("unmarshaling report %s: %w", batchID, err)
	}
	return &report, nil
}

// Latest returns the most recently saved report.
func (s *Store) Latest(ctx context.Context) (*transfer.Report, error) {
	if ctx == nil {
		return nil, fmt.Errorf("ctx must not be nil")
	}

	var batchID string
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyLatest))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			batchID = string(val)
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: no batches recorded", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("reading latest pointer: %w", err)
	}
	return s.Load(ctx, batchID)
}

// List returns metadata of stored batches, newest first. A limit <= 0
// defaults to 100.
func (s *Store) List(ctx context.Context, limit int) ([]*Metadata, error) {
	if ctx == nil {
		return nil, fmt.Errorf("ctx must not be nil")
	}
	if limit <= 0 {
		limit = defaultListLimit
	}

	var results []*Metadata
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(KeyPrefix)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(opts.Prefix); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			key := string(item.Key())
			if !strings.HasSuffix(key, keySuffixMeta) {
				continue
			}

			var meta Metadata
			err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &meta)
			})
			if err != nil {
				s.logger.Warn("skipping corrupt metadata", slog.String("key", key), slog.Any("error", err))
				continue
			}
			results = append(results, &meta)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing batches: %w", err)
	}

	slices.SortStableFunc(results, func(a, b *Metadata) int {
		return b.FinishedAt.Compare(a.FinishedAt)
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// Delete removes a batch. The latest pointer is dropped when it names the
// deleted batch.
func (s *Store) Delete(ctx context.Context, batchID string) error {
	if ctx == nil {
		return fmt.Errorf("ctx must not be nil")
	}
	if batchID == "" {
		return fmt.Errorf("batch ID must not be empty")
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(metaKey(batchID)); err != nil {
			return err
		}
		if err := txn.Delete(reportKey(batchID)); err != nil {
			return fmt.Errorf("deleting report: %w", err)
		}
		if err := txn.Delete(metaKey(batchID)); err != nil {
			return fmt.Errorf("deleting metadata: %w", err)
		}

		item, err := txn.Get([]byte(keyLatest))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		var latest string
		_ = item.Value(func(val []byte) error {
			latest = string(val)
			return nil
		})
		if latest == batchID {
			if err := txn.Delete([]byte(keyLatest)); err != nil {
				return fmt.Errorf("deleting latest pointer: %w", err)
			}
		}
		return nil
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return fmt.Errorf("%w: %s", ErrNotFound, batchID)
	}
	if err != nil {
		return fmt.Errorf("deleting batch %s: %w", batchID, err)
	}

	s.logger.Info("batch report deleted", slog.String("batch_id", batchID))
	return nil
}

func reportKey(batchID string) []byte {
	return []byte(KeyPrefix + batchID + keySuffixReport)
}

func metaKey(batchID string) []byte {
	return []byte(KeyPrefix + batchID + keySuffixMeta)
}
