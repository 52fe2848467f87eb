// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads resolver settings from embedded defaults or a YAML
// file.
package config

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// Embedded Default Resolver Configuration
// =============================================================================

//go:embed resolver.yaml
var defaultResolverYAML []byte

// MaxYAMLFileSize bounds config files read from disk.
const MaxYAMLFileSize = 1 << 20

// Decision policy names. PolicyInteractive is only honored by front ends
// that can prompt.
const (
	PolicyFirst       = "first"
	PolicyCreate      = "create"
	PolicySkip        = "skip"
	PolicyStop        = "stop"
	PolicyInteractive = "interactive"
)

// Defaults applied to zero-valued fields.
const (
	DefaultSafeConfidence = 0.97
	DefaultMaxCandidates  = 5
	DefaultFuzzyMinScore  = 0.65
	DefaultPrefixGate     = 0.5
	DefaultDecisionPolicy = PolicyFirst
)

// ErrInvalidConfig is returned when a configuration fails validation.
var ErrInvalidConfig = errors.New("invalid resolver config")

var configTracer = otel.Tracer("aleutian.rigmatch.config")

// =============================================================================
// Resolver Configuration Types
// =============================================================================

// ResolverConfig tunes correspondence resolution.
//
// Description:
//
//	Thresholds for accepting fuzzy and multi-candidate results, the cap on
//	candidates offered for a decision, the automated decision policy and
//	whether missing nodes are fabricated.
//
// Thread Safety: Immutable after loading; safe for concurrent use.
type ResolverConfig struct {
	// SafeConfidence is the confidence at or above which a multi-candidate
	// result is accepted without a decision.
	SafeConfidence float64 `yaml:"safe_confidence" json:"safe_confidence" validate:"gt=0,lte=1"`

	// MaxCandidates caps the ranked fuzzy candidate list.
	MaxCandidates int `yaml:"max_candidates" json:"max_candidates" validate:"gte=1,lte=50"`

	// FuzzyMinScore is the score a fuzzy candidate must exceed.
	FuzzyMinScore float64 `yaml:"fuzzy_min_score" json:"fuzzy_min_score" validate:"gte=0,lt=1"`

	// PrefixGate is the prefix similarity a fuzzy candidate must reach.
	PrefixGate float64 `yaml:"prefix_gate" json:"prefix_gate" validate:"gte=0,lte=1"`

	// DecisionPolicy decides ambiguous results without a prompt.
	DecisionPolicy string `yaml:"decision_policy" json:"decision_policy" validate:"oneof=first create skip stop interactive"`

	// CreateIfMissing fabricates missing target nodes.
	CreateIfMissing bool `yaml:"create_if_missing" json:"create_if_missing"`
}

// =============================================================================
// Singleton Resolver Config
// =============================================================================

var (
	resolverConfigMu      sync.RWMutex
	resolverConfigOnce    sync.Once
	cachedResolverConfig  *ResolverConfig
	resolverConfigLoadErr error

	validate = validator.New(validator.WithRequiredStructEnabled())
)

// GetResolverConfig returns the cached embedded configuration.
//
// Description:
//
//	Loads the embedded defaults on first call and caches them.
//
// Inputs:
//
//	ctx - Context for tracing. Must not be nil.
//
// Outputs:
//
//	*ResolverConfig - The loaded configuration. Never nil on success.
//	error - Non-nil if loading or validation failed.
//
// Thread Safety: Safe for concurrent use via sync.Once.
func GetResolverConfig(ctx context.Context) (*ResolverConfig, error) {
	if ctx == nil {
		return nil, fmt.Errorf("GetResolverConfig: ctx must not be nil")
	}

	resolverConfigMu.RLock()
	if cachedResolverConfig != nil || resolverConfigLoadErr != nil {
		cfg, err := cachedResolverConfig, resolverConfigLoadErr
		resolverConfigMu.RUnlock()
		return cfg, err
	}
	resolverConfigMu.RUnlock()

	resolverConfigMu.Lock()
	defer resolverConfigMu.Unlock()

	resolverConfigOnce.Do(func() {
		cachedResolverConfig, resolverConfigLoadErr = LoadResolverConfig(ctx, defaultResolverYAML)
	})
	return cachedResolverConfig, resolverConfigLoadErr
}

// ResetResolverConfig clears the cached config for testing.
//
// Thread Safety: Safe for concurrent use.
func ResetResolverConfig() {
	resolverConfigMu.Lock()
	defer resolverConfigMu.Unlock()
	cachedResolverConfig = nil
	resolverConfigLoadErr = nil
	resolverConfigOnce = sync.Once{}
}

// LoadResolverConfig parses, defaults and validates a ResolverConfig.
//
// Description:
//
//	The YAML is decoded over Default(), so a file may override only what
//	it needs. Fields present in the file are taken as written, zeros
//	included; omitted fields keep their defaults.
//
// Inputs:
//
//	ctx - Context for tracing.
//	data - Raw YAML bytes.
//
// Outputs:
//
//	*ResolverConfig - The validated configuration.
//	error - Non-nil if parsing or validation fails. Validation failures
//	        wrap ErrInvalidConfig.
func LoadResolverConfig(ctx context.Context, data []byte) (*ResolverConfig, error) {
	_, span := configTracer.Start(ctx, "config.LoadResolverConfig")
	defer span.End()

	if len(data) == 0 {
		return nil, fmt.Errorf("LoadResolverConfig: empty YAML data")
	}
	if len(data) > MaxYAMLFileSize {
		return nil, fmt.Errorf("LoadResolverConfig: YAML data exceeds maximum size (%d > %d)", len(data), MaxYAMLFileSize)
	}

	cfg := *Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("LoadResolverConfig: parsing YAML: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("LoadResolverConfig: %w", err)
	}

	span.SetAttributes(
		attribute.Float64("safe_confidence", cfg.SafeConfidence),
		attribute.Int("max_candidates", cfg.MaxCandidates),
		attribute.String("decision_policy", cfg.DecisionPolicy),
		attribute.Bool("create_if_missing", cfg.CreateIfMissing),
	)

	slog.Info("resolver config loaded",
		slog.Float64("safe_confidence", cfg.SafeConfidence),
		slog.Int("max_candidates", cfg.MaxCandidates),
		slog.String("decision_policy", cfg.DecisionPolicy),
	)
	return &cfg, nil
}

// LoadResolverConfigFile reads a config file from disk.
func LoadResolverConfigFile(ctx context.Context, path string) (*ResolverConfig, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("LoadResolverConfigFile: %w", err)
	}
	if info.Size() > MaxYAMLFileSize {
		return nil, fmt.Errorf("LoadResolverConfigFile: %s exceeds maximum size (%d > %d)", path, info.Size(), MaxYAMLFileSize)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("LoadResolverConfigFile: %w", err)
	}
	return LoadResolverConfig(ctx, data)
}

// Validate checks field ranges and the policy name.
func (c *ResolverConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// Default returns the package defaults without reading any YAML.
func Default() *ResolverConfig {
	return &ResolverConfig{
		SafeConfidence:  DefaultSafeConfidence,
		MaxCandidates:   DefaultMaxCandidates,
		FuzzyMinScore:   DefaultFuzzyMinScore,
		PrefixGate:      DefaultPrefixGate,
		DecisionPolicy:  DefaultDecisionPolicy,
		CreateIfMissing: true,
	}
}
