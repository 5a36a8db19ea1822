// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package screen

import (
	"strings"

	"github.com/Thermoquad/aquastat/pkg/jandy"
)

// LineMatch tests that a line starts with Text, case-insensitively, over
// Width columns. Width 0 means len(Text). Short lines compare as if
// padded with spaces.
type LineMatch struct {
	Line  int    `yaml:"line"`
	Text  string `yaml:"text"`
	Width int    `yaml:"width,omitempty"`
}

// Match evaluates the predicate against a line set
func (m LineMatch) Match(lines *[jandy.SCREEN_LINES]string) bool {
	if m.Line < 0 || m.Line >= jandy.SCREEN_LINES {
		return false
	}
	return PrefixFold(lines[m.Line], m.Text, m.Width)
}

// HighlightCond restricts a rule by whether a line is selected
type HighlightCond int

const (
	HIGHLIGHT_ANY HighlightCond = iota
	HIGHLIGHT_NONE
	HIGHLIGHT_SET
)

// Rule maps a set of line predicates to a menu. All must hold, and at
// least one of Any when Any is non-empty.
type Rule struct {
	Menu      MenuID
	All       []LineMatch
	Any       []LineMatch
	Highlight HighlightCond
}

func (r Rule) matches(lines *[jandy.SCREEN_LINES]string, highlight int) bool {
	switch r.Highlight {
	case HIGHLIGHT_NONE:
		if highlight >= 0 {
			return false
		}
	case HIGHLIGHT_SET:
		if highlight < 0 {
			return false
		}
	}
	for _, m := range r.All {
		if !m.Match(lines) {
			return false
		}
	}
	if len(r.Any) == 0 {
		return len(r.All) > 0
	}
	for _, m := range r.Any {
		if m.Match(lines) {
			return true
		}
	}
	return false
}

// Catalog is an ordered rule list; the first matching rule wins
type Catalog []Rule

// Classify returns the first matching menu, or MENU_UNKNOWN
func (c Catalog) Classify(lines *[jandy.SCREEN_LINES]string, highlight int) MenuID {
	for _, r := range c {
		if r.matches(lines, highlight) {
			return r.Menu
		}
	}
	return MENU_UNKNOWN
}

func line(n int, text string) LineMatch {
	return LineMatch{Line: n, Text: text}
}

// DefaultCatalog returns the screen headers shown by PDA and AquaPalm
// remotes. Order matters: several screens share a header and are told
// apart by a second line.
func DefaultCatalog() Catalog {
	homeMarkers := []LineMatch{line(4, "POOL MODE"), line(9, "EQUIPMENT ON/OFF")}

	return Catalog{
		{Menu: MENU_HOME, All: []LineMatch{line(1, "AIR  ")}},
		{Menu: MENU_EQUIPMENT_STATUS, All: []LineMatch{line(0, "EQUIPMENT STATUS")}},
		{Menu: MENU_EQUIPMENT_CONTROL, All: []LineMatch{line(0, "   EQUIPMENT    ")}},
		{Menu: MENU_MAIN, All: []LineMatch{line(0, "   MAIN MENU    ")}},
		{Menu: MENU_BUILDING_HOME, Any: homeMarkers, Highlight: HIGHLIGHT_NONE},
		{Menu: MENU_HOME, Any: homeMarkers, Highlight: HIGHLIGHT_SET},
		{Menu: MENU_SET_TEMP, All: []LineMatch{line(0, "    SET TEMP    ")}},
		{Menu: MENU_SET_TIME, All: []LineMatch{line(0, "    SET TIME    ")}},
		{Menu: MENU_AQUAPURE, All: []LineMatch{line(0, "  SET AquaPure  ")}},
		{Menu: MENU_SPA_HEAT, All: []LineMatch{line(0, "    SPA HEAT    ")}},
		{Menu: MENU_POOL_HEAT, All: []LineMatch{line(0, "   POOL HEAT    ")}},
		{Menu: MENU_SYSTEM_SETUP, All: []LineMatch{line(0, "  SYSTEM SETUP  ")}},
		{Menu: MENU_FREEZE_PROTECT, All: []LineMatch{line(6, "Use ARROW KEYS  "), line(0, " FREEZE PROTECT ")}},
		{Menu: MENU_FREEZE_PROTECT_DEVICES, All: []LineMatch{line(1, "    DEVICES     "), line(0, " FREEZE PROTECT ")}},
		{Menu: MENU_FW_VERSION, Any: []LineMatch{line(3, "Firmware Version"), line(1, "    AquaPalm"), line(1, " PDA-P")}},
		{Menu: MENU_AUX_LABEL, All: []LineMatch{line(0, "   LABEL AUX    ")}},
		{Menu: MENU_AUX_LABEL_DEVICE, All: []LineMatch{line(0, "   LABEL AUX"), line(2, "  CURRENT LABEL ")}},
	}
}

// PrefixFold reports whether the first width columns of s equal those of
// prefix, ignoring case. width 0 means len(prefix). Both sides are padded
// with spaces to width.
func PrefixFold(s, prefix string, width int) bool {
	if width <= 0 {
		width = len(prefix)
	}
	return strings.EqualFold(pad(s, width), pad(prefix, width))
}

// PrefixExact is PrefixFold with case-sensitive comparison
func PrefixExact(s, prefix string, width int) bool {
	if width <= 0 {
		width = len(prefix)
	}
	return pad(s, width) == pad(prefix, width)
}

// ContainsFold reports a case-insensitive substring match
func ContainsFold(s, sub string) bool {
	return strings.Contains(strings.ToUpper(s), strings.ToUpper(sub))
}

// pad truncates or space-fills s to exactly n bytes
func pad(s string, n int) string {
	if len(s) >= n {
		return s[:n]
	}
	return s + strings.Repeat(" ", n-len(s))
}

// IsBlank reports a line with no visible characters
func IsBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
