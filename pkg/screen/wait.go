// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package screen

import (
	"context"
	"time"
)

// Check is evaluated against the display after every batch of events.
// events holds the updates applied since the previous call; it is nil on
// the first call, which sees the display as it was when the wait began.
type Check func(v *View, events []Event) bool

// Wait blocks until check returns true. It gives up, returning false, when
// maxEvents updates have been observed without success, when timeout
// elapses, or when ctx ends. maxEvents 0 means no event budget and
// timeout 0 means no deadline.
func (s *Screen) Wait(ctx context.Context, timeout time.Duration, maxEvents int, check Check) bool {
	seen := 0
	return s.wait(ctx, timeout, func(v *View, events []Event) (bool, bool) {
		if check(v, events) {
			return true, true
		}
		seen += len(events)
		return false, maxEvents > 0 && seen >= maxEvents
	})
}

// step returns ok when the wait succeeded and stop when it should end
// without success.
type step func(v *View, events []Event) (ok bool, stop bool)

func (s *Screen) wait(ctx context.Context, timeout time.Duration, fn step) bool {
	return s.waitFrom(ctx, timeout, 0, false, fn)
}

// waitFrom runs fn until it finishes. With replay set the first call gets
// the retained events after seq instead of nil.
func (s *Screen) waitFrom(ctx context.Context, timeout time.Duration, seq uint64, replay bool, fn step) bool {
	var deadline <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	s.mu.Lock()
	v := s.view()
	var first []Event
	if replay {
		first = s.eventsSince(seq)
	}
	last := s.seq
	s.mu.Unlock()

	if ok, stop := fn(&v, first); ok || stop {
		return ok
	}

	for {
		s.mu.Lock()
		ch := s.changed
		if s.seq != last {
			// Events landed between the previous check and now
			ch = closedChan
		}
		s.mu.Unlock()

		select {
		case <-ch:
		case <-deadline:
			return false
		case <-ctx.Done():
			return false
		}

		s.mu.Lock()
		v = s.view()
		events := s.eventsSince(last)
		last = s.seq
		s.mu.Unlock()

		if ok, stop := fn(&v, events); ok || stop {
			return ok
		}
	}
}

var closedChan = func() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()

// eventsSince returns the retained events after seq. Caller holds mu.
func (s *Screen) eventsSince(seq uint64) []Event {
	if seq >= s.seq {
		return []Event{}
	}
	from := seq + 1
	if s.seq >= eventRing && from <= s.seq-eventRing {
		from = s.seq - eventRing + 1
	}
	out := make([]Event, 0, s.seq-from+1)
	for i := from; i <= s.seq; i++ {
		out = append(out, s.events[i%eventRing])
	}
	return out
}

// WaitForCondition waits up to maxWakeups screen updates for pred to hold
func (s *Screen) WaitForCondition(ctx context.Context, pred func(v *View) bool, maxWakeups int) bool {
	return s.Wait(ctx, 0, maxWakeups, func(v *View, _ []Event) bool {
		return pred(v)
	})
}

// WaitForEvent waits up to maxEvents updates for one of the kinds in mask
func (s *Screen) WaitForEvent(ctx context.Context, mask EventMask, maxEvents int) bool {
	return s.Wait(ctx, 0, maxEvents, func(_ *View, events []Event) bool {
		for _, e := range events {
			if mask.Has(e.Kind) {
				return true
			}
		}
		return false
	})
}

// WaitForHighlightIndex waits until line target is selected
func (s *Screen) WaitForHighlightIndex(ctx context.Context, target int, timeout time.Duration) bool {
	return s.Wait(ctx, timeout, 0, func(v *View, _ []Event) bool {
		return v.Highlight == target
	})
}

// WaitForHighlightIndexEvents is WaitForHighlightIndex bounded by updates
// instead of time.
func (s *Screen) WaitForHighlightIndexEvents(ctx context.Context, target int, maxEvents int) bool {
	return s.Wait(ctx, 0, maxEvents, func(v *View, _ []Event) bool {
		return v.Highlight == target
	})
}

// WaitForHighlightChange waits until the selection moves away from the
// line selected when the wait began.
func (s *Screen) WaitForHighlightChange(ctx context.Context, timeout time.Duration) bool {
	start := -2
	return s.Wait(ctx, timeout, 0, func(v *View, events []Event) bool {
		if events == nil {
			start = v.Highlight
			return false
		}
		return v.Highlight != start
	})
}

// WaitForAnyUpdate waits for the next event of any kind
func (s *Screen) WaitForAnyUpdate(ctx context.Context, timeout time.Duration) bool {
	return s.Wait(ctx, timeout, 0, func(_ *View, events []Event) bool {
		return len(events) > 0
	})
}

// WaitForMenu waits up to maxEvents updates for the screen to classify as menu
func (s *Screen) WaitForMenu(ctx context.Context, menu MenuID, maxEvents int) bool {
	return s.Wait(ctx, 0, maxEvents, func(v *View, _ []Event) bool {
		return v.Menu() == menu
	})
}

// WaitForMessage waits up to maxMessages keypad messages for one matching
// pattern (see MessageMatches). An empty pattern just counts messages.
func (s *Screen) WaitForMessage(ctx context.Context, pattern string, maxMessages int) bool {
	return s.WaitForEitherMessage(ctx, pattern, "", maxMessages)
}

// WaitForEitherMessage is WaitForMessage with two alternative patterns
func (s *Screen) WaitForEitherMessage(ctx context.Context, a, b string, maxMessages int) bool {
	match := func(msg string) bool {
		if a == "" && b == "" {
			return false
		}
		return (a != "" && MessageMatches(msg, a)) || (b != "" && MessageMatches(msg, b))
	}

	count := 0
	return s.wait(ctx, 0, func(v *View, events []Event) (bool, bool) {
		if match(v.Message) {
			return true, false
		}
		for _, e := range events {
			if e.Kind == EVENT_MESSAGE {
				count++
			}
		}
		if count >= maxMessages {
			// With no pattern the wait only counts messages
			return a == "" && b == "", true
		}
		return false, false
	})
}

// WaitSince is Wait for callers that took seq (see Seq) before acting. The
// first check sees every retained event after seq, so updates that landed
// before the call are not lost. They count against maxEvents.
func (s *Screen) WaitSince(ctx context.Context, seq uint64, timeout time.Duration, maxEvents int, check Check) bool {
	seen := 0
	return s.waitFrom(ctx, timeout, seq, true, func(v *View, events []Event) (bool, bool) {
		if check(v, events) {
			return true, true
		}
		seen += len(events)
		return false, maxEvents > 0 && seen >= maxEvents
	})
}

// WaitForEventSince is WaitForEvent counting from seq
func (s *Screen) WaitForEventSince(ctx context.Context, seq uint64, mask EventMask, maxEvents int) bool {
	return s.WaitSince(ctx, seq, 0, maxEvents, func(_ *View, events []Event) bool {
		for _, e := range events {
			if mask.Has(e.Kind) {
				return true
			}
		}
		return false
	})
}

// WaitForMessageSince waits for a keypad message newer than seq that
// matches pattern. The message on display at seq never counts. An empty
// pattern succeeds once maxMessages new messages have arrived.
func (s *Screen) WaitForMessageSince(ctx context.Context, seq uint64, pattern string, maxMessages int) bool {
	count := 0
	return s.waitFrom(ctx, 0, seq, true, func(v *View, events []Event) (bool, bool) {
		fresh := 0
		for _, e := range events {
			if e.Kind == EVENT_MESSAGE {
				fresh++
			}
		}
		count += fresh
		if pattern == "" {
			return count >= maxMessages, false
		}
		if fresh > 0 && MessageMatches(v.Message, pattern) {
			return true, true
		}
		return false, count >= maxMessages
	})
}

// NextMessages waits up to quiet for keypad messages newer than seq. It
// returns their text, oldest first, with the sequence number to pass to
// the next call. No text means the display stayed quiet. quiet must be
// positive.
func (s *Screen) NextMessages(ctx context.Context, seq uint64, quiet time.Duration) ([]string, uint64) {
	var out []string
	s.waitFrom(ctx, quiet, seq, true, func(_ *View, events []Event) (bool, bool) {
		for _, e := range events {
			seq = e.Seq
			if e.Kind == EVENT_MESSAGE {
				out = append(out, e.Text)
			}
		}
		return len(out) > 0, false
	})
	return out, seq
}

// MessageMatches reports whether a keypad message contains pattern,
// ignoring case. A leading '^' anchors the pattern at the start.
func MessageMatches(message, pattern string) bool {
	if len(pattern) > 0 && pattern[0] == '^' {
		return PrefixFold(message, pattern[1:], 0)
	}
	return ContainsFold(message, pattern)
}
