// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package arbiter decides which key code goes out in the next reply to the
// panel. Navigation code hands keys over one at a time through a single
// slot; UI button presses go through a small FIFO.
package arbiter

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Thermoquad/aquastat/pkg/errcode"
	"github.com/Thermoquad/aquastat/pkg/jandy"
)

// QUEUE_SIZE is the FIFO capacity
const QUEUE_SIZE = 20

type pending struct {
	code  uint8
	taken chan struct{}
}

// Arbiter owns the programming slot and the FIFO
type Arbiter struct {
	mu   sync.Mutex
	slot *pending
	free chan struct{} // closed when the slot empties
	fifo []uint8

	// Keypad panels reject two keys in consecutive replies
	alternate      bool
	lastWasCommand bool

	log logrus.FieldLogger
}

// New creates an arbiter. alternate enforces an empty reply after every
// key, which keypad-mode panels require.
func New(alternate bool, log logrus.FieldLogger) *Arbiter {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Arbiter{
		free:      make(chan struct{}),
		fifo:      make([]uint8, 0, QUEUE_SIZE),
		alternate: alternate,
		log:       log.WithField("component", "arbiter"),
	}
}

// Enqueue appends a fire-and-forget key. It returns false and drops the key
// when the FIFO is full.
func (a *Arbiter) Enqueue(code uint8) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.fifo) >= QUEUE_SIZE {
		a.log.WithField("key", code).Error("Command queue overflow")
		return false
	}
	a.fifo = append(a.fifo, code)
	return true
}

// SendAndConfirm places code in the slot and blocks until the poll loop
// takes it. The slot is empty again when it returns, whatever the outcome.
// A slot still held by an earlier send is waited out within the same
// timeout.
func (a *Arbiter) SendAndConfirm(ctx context.Context, code uint8, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var p *pending
	for p == nil {
		a.mu.Lock()
		if a.slot == nil {
			p = &pending{code: code, taken: make(chan struct{})}
			a.slot = p
			a.mu.Unlock()
			break
		}
		free := a.free
		a.mu.Unlock()

		select {
		case <-free:
		case <-timer.C:
			return errcode.New(errcode.LinkTimeout, "send", "slot busy")
		case <-ctx.Done():
			return errcode.Wrap(errcode.Cancelled, "send", ctx.Err())
		}
	}

	select {
	case <-p.taken:
		return nil
	case <-timer.C:
		if a.abandon(p) {
			a.log.WithField("key", code).Warn("Key was not picked up by the panel")
			return errcode.New(errcode.LinkTimeout, "send", "no ack")
		}
		return nil
	case <-ctx.Done():
		if a.abandon(p) {
			return errcode.Wrap(errcode.Cancelled, "send", ctx.Err())
		}
		return nil
	}
}

// abandon clears p from the slot. It returns false when the poll loop took
// p first, in which case the send succeeded.
func (a *Arbiter) abandon(p *pending) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.slot != p {
		return false
	}
	a.clearSlot()
	return true
}

// clearSlot empties the slot and wakes senders waiting for it. Caller holds mu.
func (a *Arbiter) clearSlot() {
	a.slot = nil
	close(a.free)
	a.free = make(chan struct{})
}

// NextCommandToSend is called by the poll loop for each reply. The slot
// wins over the FIFO. With alternation on, a reply carrying a key is always
// followed by an empty one.
func (a *Arbiter) NextCommandToSend() (uint8, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.alternate && a.lastWasCommand {
		a.lastWasCommand = false
		return jandy.KEY_NONE, false
	}

	if a.slot != nil {
		p := a.slot
		a.clearSlot()
		close(p.taken)
		a.lastWasCommand = true
		return p.code, true
	}

	if len(a.fifo) > 0 {
		code := a.fifo[0]
		copy(a.fifo, a.fifo[1:])
		a.fifo = a.fifo[:len(a.fifo)-1]
		a.lastWasCommand = true
		return code, true
	}

	a.lastWasCommand = false
	return jandy.KEY_NONE, false
}

// Pending reports whether the slot holds a key
func (a *Arbiter) Pending() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.slot != nil
}

// QueueLen returns the number of queued fire-and-forget keys
func (a *Arbiter) QueueLen() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.fifo)
}
