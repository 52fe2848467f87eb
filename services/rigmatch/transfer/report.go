// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package transfer

import (
	"time"

	"github.com/AleutianAI/rigmatch/services/rigmatch/resolve"
)

// Entry records one component of one source node against one target rig.
type Entry struct {
	// Target is the target rig name.
	Target string `json:"target"`

	// SourcePath is the source node's path under the source root.
	SourcePath string `json:"source_path"`

	// TargetPath is the resolved node's path under the target root. Empty
	// when nothing was resolved.
	TargetPath string `json:"target_path,omitempty"`

	// Component is the component kind.
	Component string `json:"component"`

	Outcome    resolve.Outcome `json:"outcome"`
	Strategy   string          `json:"strategy,omitempty"`
	Confidence float64         `json:"confidence"`
	Escalated  bool            `json:"escalated,omitempty"`
	Decision   string          `json:"decision,omitempty"`

	// Copied is set when the component was written to the target.
	Copied bool `json:"copied"`

	// Error describes a resolution or copy failure.
	Error string `json:"error,omitempty"`
}

// Summary counts entries by outcome.
type Summary struct {
	Matched    int `json:"matched"`
	Fabricated int `json:"fabricated"`
	Skipped    int `json:"skipped"`
	NotFound   int `json:"not_found"`
	Stopped    int `json:"stopped"`
	Failed     int `json:"failed"`
	Copied     int `json:"copied"`
}

// Report is the result of one batch run.
type Report struct {
	BatchID    string    `json:"batch_id"`
	Source     string    `json:"source"`
	Targets    []string  `json:"targets"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	// Stopped is set when a Stop decision aborted the batch.
	Stopped bool `json:"stopped"`

	Entries []Entry `json:"entries"`
	Summary Summary `json:"summary"`
}

// Add appends e and updates the summary.
func (r *Report) Add(e Entry) {
	r.Entries = append(r.Entries, e)
	switch {
	case e.Error != "":
		r.Summary.Failed++
	case e.Outcome == resolve.OutcomeMatched:
		r.Summary.Matched++
	case e.Outcome == resolve.OutcomeFabricated:
		r.Summary.Fabricated++
	case e.Outcome == resolve.OutcomeSkipped:
		r.Summary.Skipped++
	case e.Outcome == resolve.OutcomeNotFound:
		r.Summary.NotFound++
	case e.Outcome == resolve.OutcomeStopped:
		r.Summary.Stopped++
	}
	if e.Copied {
		r.Summary.Copied++
	}
}

// Duration returns how long the run took.
func (r *Report) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
