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
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/rigmatch/services/rigmatch/config"
	"github.com/AleutianAI/rigmatch/services/rigmatch/hierarchy"
	"github.com/AleutianAI/rigmatch/services/rigmatch/resolve"
)

var (
	resolvePolicy   string
	resolveNoCreate bool
	resolveOut      string
)

var resolveCmd = &cobra.Command{
	Use:   "resolve SOURCE TARGET",
	Short: "Resolve every source node against a target rig",
	Long: `Resolve maps each node of the SOURCE rig to its counterpart in the TARGET rig
and prints one line per node. Ambiguous matches are decided by --policy;
"interactive" prompts when stdin is a terminal.`,
	Args: cobra.ExactArgs(2),
	RunE: runResolve,
}

func init() {
	resolveCmd.Flags().StringVar(&resolvePolicy, "policy", "", "Decision policy: first, create, skip, stop, interactive (config default if empty)")
	resolveCmd.Flags().BoolVar(&resolveNoCreate, "no-create", false, "Do not fabricate missing target nodes")
	resolveCmd.Flags().StringVarP(&resolveOut, "out", "o", "", "Write the (possibly extended) target rig to this file")
}

// resolvedNode is the JSON form of one resolution.
type resolvedNode struct {
	SourcePath string          `json:"source_path"`
	TargetPath string          `json:"target_path,omitempty"`
	Outcome    resolve.Outcome `json:"outcome"`
	Strategy   string          `json:"strategy,omitempty"`
	Confidence float64         `json:"confidence"`
	Decision   string          `json:"decision,omitempty"`
	Error      string          `json:"error,omitempty"`
}

func runResolve(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	rigs, err := loadRigs(ctx, args)
	if err != nil {
		return err
	}
	source, target := rigs[0], rigs[1]

	batch, err := newBatch(cfg, resolvePolicy)
	if err != nil {
		return err
	}
	create := cfg.CreateIfMissing && !resolveNoCreate

	nodes, err := resolveAll(cmd, batch, source, target, create)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		if err := writeJSON(out, nodes); err != nil {
			return err
		}
	} else {
		printResolutions(out, nodes)
	}

	if resolveOut != "" {
		if err := hierarchy.SaveRigFile(resolveOut, target); err != nil {
			return err
		}
	}
	return nil
}

// newBatch builds a batch for cfg with an optional policy override.
func newBatch(cfg *config.ResolverConfig, policy string) (*resolve.Batch, error) {
	if policy == "" {
		policy = cfg.DecisionPolicy
	}
	decider, err := chooseDecider(policy)
	if err != nil {
		return nil, err
	}
	return resolve.NewBatch(resolve.WithConfig(cfg), resolve.WithDecider(decider)), nil
}

func resolveAll(cmd *cobra.Command, batch *resolve.Batch, source, target *hierarchy.Rig, create bool) ([]resolvedNode, error) {
	m, err := batch.Materializer(source.Root, target.Root)
	if err != nil {
		return nil, err
	}
	var nodes []resolvedNode
	for _, n := range hierarchy.Descendants(source.Root) {
		res, err := m.Resolve(cmd.Context(), n, create)
		if ctxErr := cmd.Context().Err(); ctxErr != nil {
			return nodes, ctxErr
		}
		sp, _ := hierarchy.PathOf(source.Root, n)
		rn := resolvedNode{
			SourcePath: sp.String(),
			Outcome:    res.Outcome,
			Strategy:   res.Strategy,
			Confidence: res.Confidence,
		}
		if res.Target != nil {
			tp, _ := hierarchy.PathOf(target.Root, res.Target)
			rn.TargetPath = tp.String()
		}
		if res.Escalated {
			rn.Decision = res.Decision.String()
		}
		if err != nil && !errors.Is(err, resolve.ErrStopped) {
			rn.Error = err.Error()
		}
		nodes = append(nodes, rn)
		if errors.Is(err, resolve.ErrStopped) {
			break
		}
	}
	return nodes, nil
}

func printResolutions(w io.Writer, nodes []resolvedNode) {
	for _, n := range nodes {
		fmt.Fprintln(w, resolutionLine(n.SourcePath, n.TargetPath, n.Outcome, n.Strategy, n.Confidence, n.Error))
	}
}
