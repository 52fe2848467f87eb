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
	"context"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/rigmatch/services/rigmatch/hierarchy"
)

// rigLoadConcurrency caps parallel rig file decoding.
const rigLoadConcurrency = 8

// loadRigs decodes rig files in parallel, preserving argument order.
func loadRigs(ctx context.Context, paths []string) ([]*hierarchy.Rig, error) {
	rigs := make([]*hierarchy.Rig, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(rigLoadConcurrency)

	for i, p := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rig, err := hierarchy.LoadRigFile(p)
			if err != nil {
				return err
			}
			if err := hierarchy.Validate(rig.Root); err != nil {
				return fmt.Errorf("%s: %w", p, err)
			}
			rigs[i] = rig
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return rigs, nil
}

// saveRigs writes each rig to dir under its source file name.
func saveRigs(dir string, rigs []*hierarchy.Rig, paths []string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	for i, rig := range rigs {
		out := filepath.Join(dir, filepath.Base(paths[i]))
		if err := hierarchy.SaveRigFile(out, rig); err != nil {
			return fmt.Errorf("%s: %w", out, err)
		}
	}
	return nil
}
