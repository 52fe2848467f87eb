// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package naming

import (
	_ "embed"
	"fmt"
	"log/slog"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed variants.yaml
var defaultVariantsYAML []byte

// Variants maps a canonical concept to the words rigs use for it.
//
// # Thread Safety
//
// Safe for concurrent use after construction (immutable).
type Variants struct {
	groups map[string][]string
	lookup map[string][]string
}

// NewVariants builds a variant table from concept groups.
func NewVariants(groups map[string][]string) *Variants {
	v := &Variants{
		groups: groups,
		lookup: make(map[string][]string),
	}
	for concept, words := range groups {
		v.lookup[concept] = appendUnique(v.lookup[concept], concept)
		for _, w := range words {
			v.lookup[w] = appendUnique(v.lookup[w], concept)
		}
	}
	return v
}

// Len returns the number of concepts.
func (v *Variants) Len() int {
	if v == nil {
		return 0
	}
	return len(v.groups)
}

// Concepts returns the concepts a word belongs to.
func (v *Variants) Concepts(word string) []string {
	if v == nil {
		return nil
	}
	return v.lookup[word]
}

// Related reports whether two raw names share a concept.
//
// # Description
//
//	Each name contributes its tokens plus its normalized form without
//	digits, so both "UpperArm" and "upperarm" reach the upperarm concept.
//	The names are related when any term of a and any term of b belong to
//	the same concept.
func (v *Variants) Related(a, b string) bool {
	if v == nil {
		return false
	}
	conceptsA := make(map[string]struct{})
	for _, term := range variantTerms(a) {
		for _, c := range v.lookup[term] {
			conceptsA[c] = struct{}{}
		}
	}
	if len(conceptsA) == 0 {
		return false
	}
	for _, term := range variantTerms(b) {
		for _, c := range v.lookup[term] {
			if _, ok := conceptsA[c]; ok {
				return true
			}
		}
	}
	return false
}

func variantTerms(raw string) []string {
	terms := Tokenize(raw)
	joined := Analyze(raw).Pure
	if joined != "" {
		terms = append(terms, joined)
	}
	return terms
}

func appendUnique(list []string, s string) []string {
	for _, existing := range list {
		if existing == s {
			return list
		}
	}
	return append(list, s)
}

var (
	cachedVariants *Variants
	variantsOnce   sync.Once
	variantsErr    error
)

// LoadVariants loads and caches the embedded variant table.
//
// # Outputs
//
//   - *Variants: The loaded table. Never nil on success.
//   - error: Non-nil if YAML parsing fails.
//
// # Thread Safety
//
// Safe for concurrent use (uses sync.Once internally).
func LoadVariants() (*Variants, error) {
	variantsOnce.Do(func() {
		var raw map[string][]string
		if err := yaml.Unmarshal(defaultVariantsYAML, &raw); err != nil {
			variantsErr = fmt.Errorf("parsing variants.yaml: %w", err)
			return
		}
		cachedVariants = NewVariants(raw)
		slog.Debug("rigmatch: name variants loaded",
			slog.Int("concept_count", len(raw)),
		)
	})
	return cachedVariants, variantsErr
}

// DefaultVariants returns the embedded table, or an empty one when it fails
// to load. Similarity scoring still works without it.
func DefaultVariants() *Variants {
	v, err := LoadVariants()
	if err != nil {
		slog.Warn("rigmatch: name variants failed to load, continuing without them",
			slog.String("error", err.Error()),
		)
		return NewVariants(nil)
	}
	return v
}
