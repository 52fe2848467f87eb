// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package rigmatch

import (
	"github.com/AleutianAI/rigmatch/services/rigmatch/hierarchy"
	"github.com/AleutianAI/rigmatch/services/rigmatch/journal"
	"github.com/AleutianAI/rigmatch/services/rigmatch/resolve"
	"github.com/AleutianAI/rigmatch/services/rigmatch/slots"
	"github.com/AleutianAI/rigmatch/services/rigmatch/transfer"
)

// Error codes returned in ErrorResponse.Code.
const (
	CodeInvalidRequest  = "INVALID_REQUEST"
	CodeInvalidRig      = "INVALID_RIG"
	CodeInvalidPolicy   = "INVALID_POLICY"
	CodeNotFound        = "NOT_FOUND"
	CodeJournalDisabled = "JOURNAL_DISABLED"
	CodeRateLimited     = "RATE_LIMITED"
	CodeInternal        = "INTERNAL_ERROR"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// ResolveRequest is the body of POST /v1/rigmatch/resolve.
type ResolveRequest struct {
	// Source is the rig whose nodes are resolved.
	Source hierarchy.SerializableRig `json:"source"`

	// Target is the rig searched for counterparts.
	Target hierarchy.SerializableRig `json:"target"`

	// Policy decides ambiguous results. Defaults to the configured policy;
	// "interactive" is rejected.
	Policy string `json:"policy,omitempty"`

	// CreateIfMissing overrides the configured fabrication setting.
	CreateIfMissing *bool `json:"create_if_missing,omitempty"`

	// IncludeTarget returns the target rig after fabrication.
	IncludeTarget bool `json:"include_target,omitempty"`
}

// CandidateInfo is one ranked option of an ambiguous result.
type CandidateInfo struct {
	Path  string  `json:"path"`
	Score float64 `json:"score"`
}

// NodeResolution is the outcome for one source node.
type NodeResolution struct {
	SourcePath string          `json:"source_path"`
	TargetPath string          `json:"target_path,omitempty"`
	Outcome    resolve.Outcome `json:"outcome"`
	Strategy   string          `json:"strategy,omitempty"`
	Confidence float64         `json:"confidence"`
	Escalated  bool            `json:"escalated,omitempty"`
	Decision   string          `json:"decision,omitempty"`
	Candidates []CandidateInfo `json:"candidates,omitempty"`
	Error      string          `json:"error,omitempty"`
}

// ResolveResponse is the body of a successful resolve call.
type ResolveResponse struct {
	BatchID     string                     `json:"batch_id"`
	Stopped     bool                       `json:"stopped"`
	Resolutions []NodeResolution           `json:"resolutions"`
	Stats       resolve.MaterializerStats  `json:"stats"`
	Target      *hierarchy.SerializableRig `json:"target,omitempty"`
}

// TransferRequest is the body of POST /v1/rigmatch/transfer.
type TransferRequest struct {
	Source  hierarchy.SerializableRig   `json:"source"`
	Targets []hierarchy.SerializableRig `json:"targets" binding:"required,min=1"`

	Policy          string `json:"policy,omitempty"`
	CreateIfMissing *bool  `json:"create_if_missing,omitempty"`

	// IncludeTargets returns the modified target rigs.
	IncludeTargets bool `json:"include_targets,omitempty"`
}

// TransferResponse is the body of a completed transfer.
type TransferResponse struct {
	Report  *transfer.Report             `json:"report"`
	Targets []*hierarchy.SerializableRig `json:"targets,omitempty"`
}

// SlotMatchRequest is the body of POST /v1/rigmatch/slots/match.
type SlotMatchRequest struct {
	Slot      slots.Slot       `json:"slot"`
	Materials []slots.Material `json:"materials"`
}

// SlotMatchResponse reports the chosen material, if any.
type SlotMatchResponse struct {
	Matched bool          `json:"matched"`
	Result  *slots.Result `json:"result,omitempty"`
}

// BatchListResponse lists journaled batches, newest first.
type BatchListResponse struct {
	Batches []*journal.Metadata `json:"batches"`
}

// HealthResponse is the body of GET /v1/rigmatch/health.
type HealthResponse struct {
	Status         string  `json:"status"`
	Journal        bool    `json:"journal"`
	DecisionPolicy string  `json:"decision_policy"`
	SafeConfidence float64 `json:"safe_confidence"`
}
