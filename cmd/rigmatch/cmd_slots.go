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

	"github.com/spf13/cobra"

	"github.com/AleutianAI/rigmatch/services/rigmatch/slots"
)

var errNoMaterial = errors.New("no material matched")

var slotIndex int

var slotsCmd = &cobra.Command{
	Use:   "slots SLOT MATERIAL...",
	Short: "Pick the material for a slot",
	Long: `Slots matches a material slot name against the candidate materials, which
are given in slot order. Exits non-zero when no material qualifies.`,
	Args: cobra.MinimumNArgs(2),
	RunE: runSlots,
}

func init() {
	slotsCmd.Flags().IntVar(&slotIndex, "index", -1, "The slot's own index (-1 for none)")
}

func runSlots(cmd *cobra.Command, args []string) error {
	materials := make([]slots.Material, 0, len(args)-1)
	for _, name := range args[1:] {
		materials = append(materials, slots.Material{Name: name})
	}

	res, ok := slots.Match(slots.Slot{Name: args[0], Index: slotIndex}, materials)
	if !ok {
		return fmt.Errorf("%w for slot %q", errNoMaterial, args[0])
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		return writeJSON(out, res)
	}
	fmt.Fprintf(out, "%s -> %s  %s\n", args[0], boldStyle.Render(res.Material.Name),
		passStyle.Render(fmt.Sprintf("[%s #%d score %d]", res.Rule, res.Index, res.Score)))
	return nil
}
