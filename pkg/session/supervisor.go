// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package session admits one menu-navigation operation at a time.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Thermoquad/aquastat/pkg/errcode"
)

// Info describes the active session, or the last one when Active is false
type Info struct {
	Kind    Kind
	Owner   uint64
	Started time.Time
	Elapsed time.Duration
	Active  bool
}

// Supervisor holds the single active-session slot
type Supervisor struct {
	mu       sync.Mutex
	active   *Lease
	released chan struct{} // closed and replaced on every release
	nextID   uint64

	last         Info
	lastFinished time.Time

	log logrus.FieldLogger
}

// Lease is proof of holding the session. Release must be called exactly
// once; extra calls are ignored.
type Lease struct {
	sup     *Supervisor
	kind    Kind
	owner   uint64
	started time.Time
	once    sync.Once
}

// NewSupervisor creates an idle supervisor
func NewSupervisor(log logrus.FieldLogger) *Supervisor {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Supervisor{
		released: make(chan struct{}),
		log:      log.WithField("component", "session"),
	}
}

// Acquire blocks until the slot is free and claims it for kind. It fails
// with errcode.Busy when timeout passes first, and errcode.Cancelled when
// ctx ends. A failed Acquire holds nothing.
func (s *Supervisor) Acquire(ctx context.Context, kind Kind, timeout time.Duration) (*Lease, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	waited := false
	for {
		s.mu.Lock()
		if s.active == nil {
			s.nextID++
			l := &Lease{sup: s, kind: kind, owner: s.nextID, started: time.Now()}
			s.active = l
			s.mu.Unlock()
			s.log.WithFields(logrus.Fields{"kind": kind, "owner": l.owner}).Debug("Session started")
			return l, nil
		}
		if !waited {
			s.log.WithFields(logrus.Fields{"kind": kind, "holder": s.active.kind}).Debug("Waiting for session")
			waited = true
		}
		ch := s.released
		s.mu.Unlock()

		select {
		case <-ch:
		case <-timer.C:
			s.log.WithField("kind", kind).Warn("Timed out waiting for another operation to finish")
			return nil, errcode.New(errcode.Busy, kind.String(), "panel busy")
		case <-ctx.Done():
			return nil, errcode.Wrap(errcode.Cancelled, kind.String(), ctx.Err())
		}
	}
}

// Release frees the slot and wakes every waiter; one of them wins it.
func (l *Lease) Release() {
	l.once.Do(func() {
		s := l.sup
		elapsed := time.Since(l.started)

		s.mu.Lock()
		if s.active == l {
			s.active = nil
		}
		s.last = Info{Kind: l.kind, Owner: l.owner, Started: l.started, Elapsed: elapsed}
		s.lastFinished = time.Now()
		close(s.released)
		s.released = make(chan struct{})
		s.mu.Unlock()

		s.log.WithFields(logrus.Fields{"kind": l.kind, "elapsed": elapsed.Round(time.Millisecond)}).Debug("Session finished")
	})
}

// Kind returns the operation the lease was taken for
func (l *Lease) Kind() Kind {
	return l.kind
}

// Owner returns the lease's unique id
func (l *Lease) Owner() uint64 {
	return l.owner
}

// Current describes the active session. When none is active it reports
// the last finished one with Active false.
func (s *Supervisor) Current() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil {
		return s.last
	}
	return Info{
		Kind:    s.active.kind,
		Owner:   s.active.owner,
		Started: s.active.started,
		Elapsed: time.Since(s.active.started),
		Active:  true,
	}
}

// Active reports whether a session is held
func (s *Supervisor) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active != nil
}

// IdleFor returns how long ago the last session finished. It is zero
// while a session is active and when none has run yet.
func (s *Supervisor) IdleFor() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active != nil || s.lastFinished.IsZero() {
		return 0
	}
	return time.Since(s.lastFinished)
}

// LastFinished returns when the last session ended
func (s *Supervisor) LastFinished() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastFinished
}
