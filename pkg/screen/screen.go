// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package screen reconstructs the panel's character display from partial
// update frames and lets navigation code block until it changes.
package screen

import (
	"strings"
	"sync"

	"github.com/Thermoquad/aquastat/pkg/jandy"
)

// EventKind identifies the update that produced a screen change
type EventKind int

const (
	EVENT_CLEAR EventKind = iota
	EVENT_LINE
	EVENT_SHIFT
	EVENT_HIGHLIGHT
	EVENT_HIGHLIGHT_CHARS
	EVENT_STATUS
	EVENT_MESSAGE
)

func (k EventKind) String() string {
	switch k {
	case EVENT_CLEAR:
		return "CLEAR"
	case EVENT_LINE:
		return "LINE"
	case EVENT_SHIFT:
		return "SHIFT"
	case EVENT_HIGHLIGHT:
		return "HIGHLIGHT"
	case EVENT_HIGHLIGHT_CHARS:
		return "HIGHLIGHT_CHARS"
	case EVENT_STATUS:
		return "STATUS"
	case EVENT_MESSAGE:
		return "MESSAGE"
	default:
		return "UNKNOWN"
	}
}

// EventMask selects a set of event kinds
type EventMask uint32

// Mask builds an EventMask from kinds
func Mask(kinds ...EventKind) EventMask {
	var m EventMask
	for _, k := range kinds {
		m |= 1 << uint(k)
	}
	return m
}

// Has reports whether kind is in the mask
func (m EventMask) Has(kind EventKind) bool {
	return m&(1<<uint(kind)) != 0
}

// Event is one applied update
type Event struct {
	Seq  uint64
	Kind EventKind
	Text string // EVENT_MESSAGE only
}

const eventRing = 64

// Screen is the virtual display. All methods are safe for concurrent use.
type Screen struct {
	mu        sync.Mutex
	lines     [jandy.SCREEN_LINES]string
	highlight int
	hlStart   int
	hlEnd     int
	message   string // keypad: last single-line display message
	catalog   Catalog

	seq     uint64
	events  [eventRing]Event
	changed chan struct{}
}

// New creates a blank screen using catalog for classification
func New(catalog Catalog) *Screen {
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	return &Screen{
		highlight: -1,
		hlStart:   -1,
		hlEnd:     -1,
		catalog:   catalog,
		changed:   make(chan struct{}),
	}
}

// publish records an event and wakes every waiter. Caller holds mu.
func (s *Screen) publish(kind EventKind) {
	s.seq++
	s.events[s.seq%eventRing] = Event{Seq: s.seq, Kind: kind}
	close(s.changed)
	s.changed = make(chan struct{})
}

// ApplyClear blanks every line and drops the selection
func (s *Screen) ApplyClear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.lines {
		s.lines[i] = ""
	}
	s.highlight = -1
	s.hlStart, s.hlEnd = -1, -1
	s.publish(EVENT_CLEAR)
}

// ApplyLineUpdate replaces one line. Text stops at the first NUL and is
// cut to the display width. Out of range indices are ignored.
func (s *Screen) ApplyLineUpdate(index int, text string) {
	if index < 0 || index >= jandy.SCREEN_LINES {
		return
	}
	if i := strings.IndexByte(text, 0); i >= 0 {
		text = text[:i]
	}
	if len(text) > jandy.SCREEN_WIDTH {
		text = text[:jandy.SCREEN_WIDTH]
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines[index] = text
	s.publish(EVENT_LINE)
}

// ApplyShift scrolls lines inside [first, last] by delta. A negative delta
// moves content up. The vacated lines keep their old text until the panel
// rewrites them.
func (s *Screen) ApplyShift(first, last, delta int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if first < 0 {
		first = 0
	}
	if last >= jandy.SCREEN_LINES {
		last = jandy.SCREEN_LINES - 1
	}
	if delta < 0 {
		for i := first - delta; i <= last; i++ {
			s.lines[i+delta] = s.lines[i]
		}
	} else if delta > 0 {
		for i := last - delta; i >= first; i-- {
			s.lines[i+delta] = s.lines[i]
		}
	}
	s.publish(EVENT_SHIFT)
}

// ApplyLegacyShift is the range-less shift older firmware sends: lines
// 2..9 move up one.
func (s *Screen) ApplyLegacyShift() {
	s.ApplyShift(1, jandy.SCREEN_LINES-1, -1)
}

// ApplyHighlight selects a line. Any index outside the display clears the
// selection; panels send 0xFF when switching cursor modes.
func (s *Screen) ApplyHighlight(index int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setHighlight(index)
	s.hlStart, s.hlEnd = -1, -1
	s.publish(EVENT_HIGHLIGHT)
}

// ApplyHighlightChars selects a line and a column range within it
func (s *Screen) ApplyHighlightChars(index, start, end int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setHighlight(index)
	if s.highlight >= 0 {
		s.hlStart, s.hlEnd = start, end
	} else {
		s.hlStart, s.hlEnd = -1, -1
	}
	s.publish(EVENT_HIGHLIGHT_CHARS)
}

func (s *Screen) setHighlight(index int) {
	if index < 0 || index >= jandy.SCREEN_LINES {
		s.highlight = -1
		return
	}
	s.highlight = index
}

// ApplyMessage stores the keypad's current display message
func (s *Screen) ApplyMessage(text string) {
	if i := strings.IndexByte(text, 0); i >= 0 {
		text = text[:i]
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.message = strings.TrimRight(text, " ")
	s.publish(EVENT_MESSAGE)
	s.events[s.seq%eventRing].Text = s.message
}

// NoteStatus wakes waiters at the end of a panel update cycle without
// changing the display.
func (s *Screen) NoteStatus() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.publish(EVENT_STATUS)
}

// Line returns one line, or "" when out of range
func (s *Screen) Line(index int) string {
	if index < 0 || index >= jandy.SCREEN_LINES {
		return ""
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lines[index]
}

// HighlightIndex returns the selected line, or -1. A selection that points
// at a blank line is reported as -1.
func (s *Screen) HighlightIndex() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.effectiveHighlight()
}

func (s *Screen) effectiveHighlight() int {
	if s.highlight < 0 || IsBlank(s.lines[s.highlight]) {
		return -1
	}
	return s.highlight
}

// HighlightedLine returns the text of the selected line, or ""
func (s *Screen) HighlightedLine() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if h := s.effectiveHighlight(); h >= 0 {
		return s.lines[h]
	}
	return ""
}

// HighlightedChars returns the column range set by the last
// highlight-chars update, or -1, -1.
func (s *Screen) HighlightedChars() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hlStart, s.hlEnd
}

// Message returns the keypad's last display message
func (s *Screen) Message() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.message
}

// Classify names the current screen. It depends only on the current lines
// and selection.
func (s *Screen) Classify() MenuID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.catalog.Classify(&s.lines, s.effectiveHighlight())
}

// FindLineIndex returns the first line starting with needle, or -1.
// maxChars limits the comparison width; 0 compares len(needle) columns.
func (s *Screen) FindLineIndex(needle string, caseInsensitive bool, maxChars int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return findLine(&s.lines, needle, caseInsensitive, maxChars)
}

func findLine(lines *[jandy.SCREEN_LINES]string, needle string, caseInsensitive bool, maxChars int) int {
	for i, l := range lines {
		if caseInsensitive {
			if PrefixFold(l, needle, maxChars) {
				return i
			}
		} else if PrefixExact(l, needle, maxChars) {
			return i
		}
	}
	return -1
}

// Seq returns the number of events applied so far
func (s *Screen) Seq() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq
}

// View returns a consistent copy of the display
func (s *Screen) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view()
}

func (s *Screen) view() View {
	return View{
		Lines:     s.lines,
		Highlight: s.effectiveHighlight(),
		Message:   s.message,
		Seq:       s.seq,
		catalog:   s.catalog,
	}
}

// View is an immutable copy of the display used by wait predicates
type View struct {
	Lines     [jandy.SCREEN_LINES]string
	Highlight int
	Message   string
	Seq       uint64

	catalog Catalog
}

// Menu classifies the view
func (v *View) Menu() MenuID {
	return v.catalog.Classify(&v.Lines, v.Highlight)
}

// HighlightedLine returns the selected line text, or ""
func (v *View) HighlightedLine() string {
	if v.Highlight < 0 {
		return ""
	}
	return v.Lines[v.Highlight]
}

// FindLineIndex is Screen.FindLineIndex on the copy
func (v *View) FindLineIndex(needle string, caseInsensitive bool, maxChars int) int {
	return findLine(&v.Lines, needle, caseInsensitive, maxChars)
}

// LineContains reports a case-insensitive substring match on one line
func (v *View) LineContains(index int, text string) bool {
	if index < 0 || index >= jandy.SCREEN_LINES {
		return false
	}
	return ContainsFold(v.Lines[index], text)
}

// String renders the display as a bordered block, marking the selection
func (v *View) String() string {
	var sb strings.Builder
	sb.WriteString("+" + strings.Repeat("-", jandy.SCREEN_WIDTH) + "+\n")
	for i, l := range v.Lines {
		mark := "|"
		if i == v.Highlight {
			mark = ">"
		}
		sb.WriteString(mark + pad(l, jandy.SCREEN_WIDTH) + "|\n")
	}
	sb.WriteString("+" + strings.Repeat("-", jandy.SCREEN_WIDTH) + "+\n")
	return sb.String()
}
