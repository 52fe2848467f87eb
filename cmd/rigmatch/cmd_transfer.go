// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/rigmatch/services/rigmatch/journal"
	"github.com/AleutianAI/rigmatch/services/rigmatch/resolve"
	"github.com/AleutianAI/rigmatch/services/rigmatch/transfer"
)

var (
	transferPolicy   string
	transferJournal  string
	transferOutDir   string
	transferNoCreate bool
	transferVerbose  bool
)

var transferCmd = &cobra.Command{
	Use:   "transfer SOURCE TARGET...",
	Short: "Copy components from a source rig onto target rigs",
	Long: `Transfer resolves every component-bearing node of SOURCE in each TARGET
and copies its components across. Decisions marked "apply to remaining
targets" are reused for every later target in the batch.

With --journal the batch report is recorded in a badger journal that
"rigmatch serve --journal" and journal-dump can read back.`,
	Args: cobra.MinimumNArgs(2),
	RunE: runTransfer,
}

func init() {
	transferCmd.Flags().StringVar(&transferPolicy, "policy", "", "Decision policy: first, create, skip, stop, interactive (config default if empty)")
	transferCmd.Flags().StringVar(&transferJournal, "journal", "", "Record the batch report in this journal directory")
	transferCmd.Flags().StringVar(&transferOutDir, "out-dir", "", "Write the updated target rigs into this directory")
	transferCmd.Flags().BoolVar(&transferNoCreate, "no-create", false, "Do not fabricate missing target nodes")
	transferCmd.Flags().BoolVarP(&transferVerbose, "verbose", "v", false, "Print every entry")
}

func runTransfer(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	rigs, err := loadRigs(ctx, args)
	if err != nil {
		return err
	}

	policy := transferPolicy
	if policy == "" {
		policy = cfg.DecisionPolicy
	}
	decider, err := chooseDecider(policy)
	if err != nil {
		return err
	}

	opts := []transfer.Option{
		transfer.WithLogger(slog.Default()),
		transfer.WithBatchOptions(resolve.WithConfig(cfg), resolve.WithDecider(decider)),
	}
	if transferJournal != "" {
		store, err := journal.Open(transferJournal, slog.Default())
		if err != nil {
			return err
		}
		defer store.Close()
		opts = append(opts, transfer.WithJournal(store))
	}

	report, err := transfer.NewDriver(opts...).Run(ctx, transfer.Request{
		Source:          rigs[0],
		Targets:         rigs[1:],
		CreateIfMissing: cfg.CreateIfMissing && !transferNoCreate,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		if err := writeJSON(out, report); err != nil {
			return err
		}
	} else {
		if transferVerbose {
			for _, e := range report.Entries {
				fmt.Fprintf(out, "%s %s\n",
					mutedStyle.Render(e.Target+":"+e.Component),
					resolutionLine(e.SourcePath, e.TargetPath, e.Outcome, e.Strategy, e.Confidence, e.Error))
			}
		}
		printSummary(out, report)
	}

	if transferOutDir != "" {
		if err := saveRigs(transferOutDir, rigs[1:], args[1:]); err != nil {
			return err
		}
	}
	return nil
}
