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
	"errors"
	"fmt"

	"github.com/AleutianAI/rigmatch/services/rigmatch/hierarchy"
)

// Sentinel errors. Not-found and ambiguous results are outcomes, not errors.
var (
	// ErrStopped is returned for every resolution after a Stop decision.
	// It is terminal for the batch until Reset.
	ErrStopped = errors.New("batch stopped by decision")

	// ErrFabricationFailed is wrapped by *FabricationError.
	ErrFabricationFailed = errors.New("fabrication failed")

	// ErrInvalidNode is returned for nil nodes and sources outside the
	// declared source root.
	ErrInvalidNode = errors.New("invalid node")

	// ErrInvalidDecision is returned when a decider selects a candidate
	// index that does not exist.
	ErrInvalidDecision = errors.New("invalid decision")

	// ErrDecisionFailed wraps errors returned by a Decider.
	ErrDecisionFailed = errors.New("decision failed")
)

// FabricationError reports the source path that could not be fabricated.
type FabricationError struct {
	Path hierarchy.Path
	Err  error
}

// Error implements error.
func (e *FabricationError) Error() string {
	return fmt.Sprintf("%v for %q: %v", ErrFabricationFailed, e.Path.String(), e.Err)
}

// Unwrap exposes both ErrFabricationFailed and the cause to errors.Is.
func (e *FabricationError) Unwrap() []error {
	return []error{ErrFabricationFailed, e.Err}
}
