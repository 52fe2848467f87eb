// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package naming normalizes rig node names for comparison: case and
// punctuation folding, numeric index padding, side marker detection and
// subject prefix extraction.
package naming

import (
	"regexp"
	"strings"
	"unicode"
)

// NumericWidth is the width digit runs are zero-padded to, so "1" and
// "001" compare equal.
const NumericWidth = 3

var digitRunRe = regexp.MustCompile(`[0-9]+`)

// PadDigits zero-pads every digit run in s to NumericWidth digits. Longer
// runs are left unchanged.
func PadDigits(s string) string {
	return digitRunRe.ReplaceAllStringFunc(s, func(d string) string {
		if len(d) >= NumericWidth {
			return d
		}
		return strings.Repeat("0", NumericWidth-len(d)) + d
	})
}

// Normalize lower-cases name, pads digit runs and strips everything that is
// not a letter or digit.
//
// Padding happens before punctuation is removed so separate indices stay
// separate: "Hair_1_2" normalizes to "hair001002".
func Normalize(name string) string {
	padded := PadDigits(strings.ToLower(name))
	var b strings.Builder
	b.Grow(len(padded))
	for _, r := range padded {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Tokenize splits a name into lower-cased words.
//
// Boundaries are non-alphanumeric runes (dropped), lower→upper camelCase
// transitions, the last capital of an acronym followed by a lowercase
// letter ("HEADTop" → head, top) and letter↔digit transitions.
//
// Example:
//
//	Tokenize("J_Bip_L_UpperArm") // [j bip l upper arm]
//	Tokenize("Hair001")          // [hair 001]
func Tokenize(name string) []string {
	runes := []rune(name)
	var tokens []string
	var cur []rune

	flush := func() {
		if len(cur) > 0 {
			tokens = append(tokens, strings.ToLower(string(cur)))
			cur = cur[:0]
		}
	}

	for i, r := range runes {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			flush()
			continue
		}
		if len(cur) > 0 {
			prev := cur[len(cur)-1]
			switch {
			case unicode.IsDigit(r) != unicode.IsDigit(prev):
				flush()
			case unicode.IsUpper(r) && unicode.IsLower(prev):
				flush()
			case unicode.IsUpper(r) && unicode.IsUpper(prev) &&
				i+1 < len(runes) && unicode.IsLower(runes[i+1]):
				flush()
			}
		}
		cur = append(cur, r)
	}
	flush()
	return tokens
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
