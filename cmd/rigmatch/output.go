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
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/AleutianAI/rigmatch/services/rigmatch/resolve"
	"github.com/AleutianAI/rigmatch/services/rigmatch/transfer"
)

// Styles for output
var (
	passStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{
		Light: "#86b300",
		Dark:  "#c2d94c",
	})
	warnStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{
		Light: "#f2ae49",
		Dark:  "#ffb454",
	})
	failStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{
		Light: "#f07171",
		Dark:  "#f07178",
	})
	mutedStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{
		Light: "#828c99",
		Dark:  "#6c7680",
	})
	boldStyle = lipgloss.NewStyle().Bold(true)
)

func outcomeStyle(o resolve.Outcome) lipgloss.Style {
	switch o {
	case resolve.OutcomeMatched:
		return passStyle
	case resolve.OutcomeFabricated, resolve.OutcomeSkipped:
		return warnStyle
	default:
		return failStyle
	}
}

// resolutionLine renders one resolution as
// "source -> target  [outcome strategy 0.97]".
func resolutionLine(sourcePath, targetPath string, outcome resolve.Outcome, strategy string, confidence float64, errText string) string {
	if targetPath == "" {
		targetPath = "-"
	}
	tag := fmt.Sprintf("[%s", outcome)
	if strategy != "" {
		tag += " " + strategy
	}
	tag += fmt.Sprintf(" %.2f]", confidence)

	line := fmt.Sprintf("%s -> %s  %s", sourcePath, boldStyle.Render(targetPath), outcomeStyle(outcome).Render(tag))
	if errText != "" {
		line += "  " + failStyle.Render(errText)
	}
	return line
}

func printSummary(w io.Writer, r *transfer.Report) {
	s := r.Summary
	fmt.Fprintf(w, "%s %s\n", boldStyle.Render("Batch"), mutedStyle.Render(r.BatchID))
	fmt.Fprintf(w, "  %s  %s  %s  %s  %s\n",
		passStyle.Render(fmt.Sprintf("matched %d", s.Matched)),
		warnStyle.Render(fmt.Sprintf("fabricated %d", s.Fabricated)),
		warnStyle.Render(fmt.Sprintf("skipped %d", s.Skipped)),
		failStyle.Render(fmt.Sprintf("not found %d", s.NotFound)),
		failStyle.Render(fmt.Sprintf("failed %d", s.Failed)),
	)
	fmt.Fprintf(w, "  copied %d components in %s\n", s.Copied, r.Duration().Round(time.Millisecond))
	if r.Stopped {
		fmt.Fprintln(w, failStyle.Render("  batch stopped by decision"))
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
