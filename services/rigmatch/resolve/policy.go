// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package resolve

import (
	"context"
	"fmt"
	"strings"

	"github.com/AleutianAI/rigmatch/services/rigmatch/config"
)

// Policy is an automated decider.
type Policy string

// Policies. Every policy decision is remembered for the batch.
const (
	PolicyFirst  Policy = config.PolicyFirst
	PolicyCreate Policy = config.PolicyCreate
	PolicySkip   Policy = config.PolicySkip
	PolicyStop   Policy = config.PolicyStop
)

// ParsePolicy maps a policy name to a Policy.
func ParsePolicy(name string) (Policy, error) {
	switch p := Policy(strings.ToLower(strings.TrimSpace(name))); p {
	case PolicyFirst, PolicyCreate, PolicySkip, PolicyStop:
		return p, nil
	default:
		return "", fmt.Errorf("unknown decision policy %q", name)
	}
}

// Decide implements Decider.
func (p Policy) Decide(_ context.Context, _ Escalation) (Decision, error) {
	switch p {
	case PolicyFirst:
		return SelectCandidate(0).Remembered(), nil
	case PolicyCreate:
		return CreateNew().Remembered(), nil
	case PolicySkip:
		return Skip().Remembered(), nil
	case PolicyStop:
		return Stop().Remembered(), nil
	default:
		return Decision{}, fmt.Errorf("unknown decision policy %q", string(p))
	}
}
