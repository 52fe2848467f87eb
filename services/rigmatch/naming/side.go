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
	"regexp"
	"strings"
	"unicode"
)

// Side is a left/right designation detected on a name.
type Side int

const (
	// SideNone means no side marker was detected.
	SideNone Side = iota
	// SideLeft marks left-hand nodes.
	SideLeft
	// SideRight marks right-hand nodes.
	SideRight
)

// String returns "none", "left" or "right".
func (s Side) String() string {
	switch s {
	case SideLeft:
		return "left"
	case SideRight:
		return "right"
	default:
		return "none"
	}
}

// Conflicts reports whether both sides are detected and differ.
func (s Side) Conflicts(other Side) bool {
	return s != SideNone && other != SideNone && s != other
}

// sidePattern is one regex family; group 1 captures the marker. When
// wordStart is set the marker must also begin a word in the raw name.
type sidePattern struct {
	re         *regexp.Regexp
	normalized bool
	wordStart  bool
}

// sidePatterns are tried in order; the first hit wins.
var sidePatterns = []sidePattern{
	// Single letter adjacent to a delimiter: Arm_L, Eye.L, L_Hand, Foot_R2.
	{re: regexp.MustCompile(`(?:^|[_.\-\s:|])([LlRr])(?:$|[_.\-\s:|0-9])`)},
	// Whole words after a delimiter or digit: Left_Arm, arm_left, mixamorig:RightHand.
	{re: regexp.MustCompile(`(?:^|[^A-Za-z])([Ll]eft|[Rr]ight|LEFT|RIGHT)`)},
	// Capitalized words on a camelCase boundary: ArmLeft, BreastLeftRoot.
	{re: regexp.MustCompile(`(?:^|[^A-Z])(Left|Right)`)},
	// Trailing capital letter after lowercase: UpperArmL, HandR01.
	{re: regexp.MustCompile(`[a-z]([LR])(?:$|[_.\-\s0-9])`)},
	// Normalized compounds that survive prefix extraction: breastleftroot001.
	{re: regexp.MustCompile(`(left|right)(?:root|base)(?:[0-9]{3})*$`), normalized: true},
	{re: regexp.MustCompile(`(left|right)(?:[0-9]{3})*$`), normalized: true, wordStart: true},
	{re: regexp.MustCompile(`^(left|right)`), normalized: true},
}

// DetectSide detects a side marker on a raw name.
//
// Description:
//
//	Checks the raw form for delimiter-adjacent single letters and
//	left/right words starting at a delimiter or camelCase boundary, then
//	the normalized form for a leading left/right or a trailing one
//	followed by root/base and digits. A bare trailing left/right in the
//	normalized form only counts when it starts a word in the raw name, so
//	"Upright", "Cleft" and "EyeBright" carry no side.
func DetectSide(name string) Side {
	normalized := Normalize(name)
	for _, p := range sidePatterns {
		subject := name
		if p.normalized {
			subject = normalized
		}
		m := p.re.FindStringSubmatch(subject)
		if m == nil {
			continue
		}
		if p.wordStart && !startsWord(name, m[1]) {
			continue
		}
		return sideOf(m[1])
	}
	return SideNone
}

// startsWord reports whether word occurs in name, case-insensitively, at
// the start of the name, after a non-letter or on a lower→upper boundary.
func startsWord(name, word string) bool {
	lower := strings.ToLower(name)
	if len(lower) != len(name) {
		name = lower
	}
	for off := 0; ; {
		i := strings.Index(lower[off:], word)
		if i < 0 {
			return false
		}
		i += off
		if i == 0 {
			return true
		}
		prev, cur := rune(name[i-1]), rune(name[i])
		if !unicode.IsLetter(prev) || (unicode.IsUpper(cur) && unicode.IsLower(prev)) {
			return true
		}
		off = i + 1
	}
}

func sideOf(marker string) Side {
	switch strings.ToLower(marker) {
	case "l", "left":
		return SideLeft
	case "r", "right":
		return SideRight
	default:
		return SideNone
	}
}

func isSideToken(token string) bool {
	return sideOf(token) != SideNone
}
