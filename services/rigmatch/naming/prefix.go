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

import "strings"

// descriptors are trailing words that qualify a bone without naming it.
var descriptors = map[string]struct{}{
	"root":  {},
	"base":  {},
	"end":   {},
	"tip":   {},
	"bone":  {},
	"jnt":   {},
	"joint": {},
	"def":   {},
	"ctrl":  {},
	"grp":   {},
	"null":  {},
	"dummy": {},
}

// Name is the analyzed form of a raw node name.
//
// Fields:
//
//	Raw        - the name as authored.
//	Normalized - Normalize(Raw).
//	Tokens     - Tokenize(Raw).
//	Prefix     - subject prefix; side markers, trailing descriptors and
//	             trailing indices removed.
//	Pure       - Prefix without any digits.
//	Side       - detected side marker.
//	Numbers    - every digit token, zero-padded, in order.
type Name struct {
	Raw        string
	Normalized string
	Tokens     []string
	Prefix     string
	Pure       string
	Side       Side
	Numbers    []string
}

// Analyze computes every derived form of a raw name.
//
// Example:
//
//	Analyze("Breasts_L")  // Prefix "breast", Side left
//	Analyze("Hair_001")   // Prefix "hair", Numbers [001]
//	Analyze("HairRoot02") // Prefix "hair", Numbers [002]
func Analyze(raw string) Name {
	n := Name{
		Raw:        raw,
		Normalized: Normalize(raw),
		Tokens:     Tokenize(raw),
		Side:       DetectSide(raw),
	}
	for _, tok := range n.Tokens {
		if isDigits(tok) {
			n.Numbers = append(n.Numbers, PadDigits(tok))
		}
	}

	subject := subjectTokens(n.Tokens, n.Side != SideNone)
	n.Prefix = PadDigits(strings.Join(subject, ""))

	var pure strings.Builder
	for _, tok := range subject {
		if !isDigits(tok) {
			pure.WriteString(tok)
		}
	}
	n.Pure = pure.String()
	return n
}

// SubjectPrefix returns the subject prefix of a raw name.
func SubjectPrefix(raw string) string {
	return Analyze(raw).Prefix
}

// subjectTokens drops side tokens anywhere and trailing descriptors or
// indices, always keeping at least one token. A plural last word is
// singularized when the name carried a side marker ("Breasts_L").
func subjectTokens(tokens []string, sided bool) []string {
	kept := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if isSideToken(tok) && len(tokens) > 1 {
			continue
		}
		kept = append(kept, tok)
	}
	if len(kept) == 0 {
		return tokens
	}

	for len(kept) > 1 {
		last := kept[len(kept)-1]
		if _, ok := descriptors[last]; ok || isDigits(last) {
			kept = kept[:len(kept)-1]
			continue
		}
		break
	}

	if sided {
		last := kept[len(kept)-1]
		if isPlural(last) {
			kept[len(kept)-1] = last[:len(last)-1]
		}
	}
	return kept
}

// isPlural reports whether a word looks like an English "-s" plural.
// Latin singulars such as pelvis and radius are not.
func isPlural(word string) bool {
	if len(word) <= 3 || !strings.HasSuffix(word, "s") {
		return false
	}
	for _, suffix := range []string{"ss", "is", "us"} {
		if strings.HasSuffix(word, suffix) {
			return false
		}
	}
	return true
}
