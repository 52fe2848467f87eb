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
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/mattn/go-isatty"

	"github.com/AleutianAI/rigmatch/services/rigmatch/config"
	"github.com/AleutianAI/rigmatch/services/rigmatch/resolve"
)

// Choice values offered by the prompt.
const (
	choiceSelectPrefix = "select:"
	choiceCreate       = "create"
	choiceSkip         = "skip"
	choiceStop         = "stop"
)

// stdinIsTerminal reports whether prompts can be shown.
var stdinIsTerminal = func() bool {
	fd := os.Stdin.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// chooseDecider returns the decider for a policy name. The interactive
// policy prompts when stdin is a terminal and falls back to "first"
// otherwise.
func chooseDecider(policy string) (resolve.Decider, error) {
	if strings.EqualFold(policy, config.PolicyInteractive) {
		if stdinIsTerminal() {
			return promptDecider{}, nil
		}
		slog.Warn("stdin is not a terminal, deciding ambiguous matches with the first candidate")
		return resolve.PolicyFirst, nil
	}
	return resolve.ParsePolicy(policy)
}

// promptDecider asks on the terminal.
type promptDecider struct{}

// Decide implements resolve.Decider.
func (promptDecider) Decide(ctx context.Context, esc resolve.Escalation) (resolve.Decision, error) {
	var (
		choice   string
		remember bool
	)
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title(fmt.Sprintf("Match for %s", esc.SourcePath)).
				Description(fmt.Sprintf("%s was ambiguous (confidence %.2f)", esc.Strategy, esc.Confidence)).
				Options(escalationOptions(esc)...).
				Value(&choice),
			huh.NewConfirm().
				Title("Apply to the remaining targets in this batch?").
				Affirmative("Yes").
				Negative("No").
				Value(&remember),
		),
	)

	if err := form.RunWithContext(ctx); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return resolve.Stop(), nil
		}
		return resolve.Decision{}, err
	}
	return decisionFromChoice(choice, remember)
}

// escalationOptions lists the candidates followed by the fixed choices.
func escalationOptions(esc resolve.Escalation) []huh.Option[string] {
	opts := make([]huh.Option[string], 0, len(esc.Candidates)+3)
	for i, c := range esc.Candidates {
		label := fmt.Sprintf("%s (%.2f)", c.Path, c.Score)
		opts = append(opts, huh.NewOption(label, choiceSelectPrefix+strconv.Itoa(i)))
	}
	return append(opts,
		huh.NewOption("Create a new node", choiceCreate),
		huh.NewOption("Skip this node", choiceSkip),
		huh.NewOption("Stop the batch", choiceStop),
	)
}

// decisionFromChoice maps a prompt value to a decision.
func decisionFromChoice(choice string, remember bool) (resolve.Decision, error) {
	var d resolve.Decision
	switch {
	case strings.HasPrefix(choice, choiceSelectPrefix):
		i, err := strconv.Atoi(strings.TrimPrefix(choice, choiceSelectPrefix))
		if err != nil || i < 0 {
			return resolve.Decision{}, fmt.Errorf("invalid candidate choice %q", choice)
		}
		d = resolve.SelectCandidate(i)
	case choice == choiceCreate:
		d = resolve.CreateNew()
	case choice == choiceSkip:
		d = resolve.Skip()
	case choice == choiceStop:
		d = resolve.Stop()
	default:
		return resolve.Decision{}, fmt.Errorf("unknown choice %q", choice)
	}
	if remember {
		d = d.Remembered()
	}
	return d, nil
}
