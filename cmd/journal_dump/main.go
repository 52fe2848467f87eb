// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// journal_dump inspects a rigmatch batch journal.
//
// The journal stores one gzip-compressed report per transfer batch in
// BadgerDB. This tool opens it read-only and prints the recorded batches,
// newest first, with their outcome counts. With --batch it prints every
// entry of one report.
//
// Usage:
//
//	journal_dump [--path /path/to/journal] [--limit 20] [--batch ID]
//
// If --path is not given, reads RIGMATCH_JOURNAL_DIR from the environment,
// falling back to ~/.rigmatch/journal/.
//
// Exit codes:
//
//	0 - success (including an empty journal)
//	1 - error opening or reading the database
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	dgbadger "github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/rigmatch/services/rigmatch/journal"
	"github.com/AleutianAI/rigmatch/services/rigmatch/transfer"
)

func main() {
	pathFlag := flag.String("path", "", "Path to the journal BadgerDB directory (overrides RIGMATCH_JOURNAL_DIR)")
	limitFlag := flag.Int("limit", 20, "Maximum number of batches to list")
	batchFlag := flag.String("batch", "", "Print every entry of this batch")
	flag.Parse()

	dbPath := *pathFlag
	if dbPath == "" {
		dbPath = os.Getenv("RIGMATCH_JOURNAL_DIR")
	}
	if dbPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			fatalf("cannot resolve home directory: %v", err)
		}
		dbPath = filepath.Join(home, ".rigmatch", "journal")
	}

	fmt.Printf("Journal path: %s\n", dbPath)

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		fmt.Println("Journal directory does not exist. Run `rigmatch transfer --journal` to record a batch.")
		os.Exit(0)
	}

	db, err := dgbadger.Open(dgbadger.DefaultOptions(dbPath).
		WithLogger(nil).
		WithReadOnly(true))
	if err != nil {
		fatalf("open BadgerDB at %s: %v", dbPath, err)
	}
	defer func() { _ = db.Close() }()

	store, err := journal.NewStore(db, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		fatalf("%v", err)
	}

	ctx := context.Background()
	if *batchFlag != "" {
		report, err := store.Load(ctx, *batchFlag)
		if errors.Is(err, journal.ErrNotFound) {
			fmt.Printf("\nNo batch %s in the journal.\n", *batchFlag)
			os.Exit(0)
		}
		if err != nil {
			fatalf("load batch: %v", err)
		}
		printReport(os.Stdout, report)
		return
	}

	batches, err := store.List(ctx, *limitFlag)
	if err != nil {
		fatalf("read BadgerDB: %v", err)
	}
	if len(batches) == 0 {
		fmt.Println("\nNo batches recorded.")
		os.Exit(0)
	}
	printBatches(os.Stdout, batches)
	fmt.Printf("Summary: %d batch%s, journal path: %s\n", len(batches), plural(len(batches), "", "es"), dbPath)
}

func printBatches(w io.Writer, batches []*journal.Metadata) {
	fmt.Fprintf(w, "\nFound %d batch%s:\n", len(batches), plural(len(batches), "", "es"))
	fmt.Fprintln(w, strings.Repeat("─", 80))

	for i, m := range batches {
		fmt.Fprintf(w, "\n[%d] Batch:    %s\n", i+1, m.BatchID)
		fmt.Fprintf(w, "    Source:   %s -> %s\n", m.Source, strings.Join(m.Targets, ", "))
		fmt.Fprintf(w, "    Finished: %s (%s)\n",
			m.FinishedAt.Format("2006-01-02 15:04:05 MST"),
			m.FinishedAt.Sub(m.StartedAt).Round(time.Millisecond))
		fmt.Fprintf(w, "    Entries:  %d, %s compressed, sha256 %s\n",
			m.EntryCount, formatBytes(m.CompressedSize), shortHash(m.ContentHash))
		fmt.Fprintf(w, "    Outcomes: %s\n", formatSummary(m.Summary))
		if m.Stopped {
			fmt.Fprintln(w, "    STOPPED by decision")
		}
	}
	fmt.Fprintf(w, "\n%s\n", strings.Repeat("─", 80))
}

func printReport(w io.Writer, r *transfer.Report) {
	fmt.Fprintf(w, "\nBatch %s: %s -> %s\n", r.BatchID, r.Source, strings.Join(r.Targets, ", "))
	fmt.Fprintln(w, strings.Repeat("─", 80))

	width := 0
	for _, e := range r.Entries {
		width = max(width, len(e.SourcePath))
	}
	for _, e := range r.Entries {
		target := e.TargetPath
		if target == "" {
			target = "-"
		}
		line := fmt.Sprintf("%-12s %-*s -> %-*s %-10s %-12s %.2f", e.Target, width, e.SourcePath, width, target, e.Outcome, e.Strategy, e.Confidence)
		if e.Decision != "" {
			line += " decision=" + e.Decision
		}
		if e.Error != "" {
			line += " ERROR: " + e.Error
		}
		fmt.Fprintln(w, line)
	}

	fmt.Fprintln(w, strings.Repeat("─", 80))
	fmt.Fprintf(w, "Outcomes: %s\n", formatSummary(r.Summary))
}

func formatSummary(s transfer.Summary) string {
	return fmt.Sprintf("matched=%d fabricated=%d skipped=%d not_found=%d stopped=%d failed=%d copied=%d",
		s.Matched, s.Fabricated, s.Skipped, s.NotFound, s.Stopped, s.Failed, s.Copied)
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}

// formatBytes formats a byte count as a human-readable string.
func formatBytes(n int64) string {
	switch {
	case n >= 1024*1024:
		return fmt.Sprintf("%.1f MB", float64(n)/1024/1024)
	case n >= 1024:
		return fmt.Sprintf("%.1f KB", float64(n)/1024)
	default:
		return fmt.Sprintf("%d bytes", n)
	}
}

func plural(n int, singular, pluralSuffix string) string {
	if n == 1 {
		return singular
	}
	return pluralSuffix
}

// fatalf prints to stderr and exits 1.
func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "journal_dump: "+format+"\n", args...)
	os.Exit(1)
}
