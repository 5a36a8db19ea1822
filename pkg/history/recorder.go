// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package history

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Thermoquad/aquastat/pkg/state"
)

// Recorder writes state changes to a store
type Recorder struct {
	store     *Store
	st        *state.State
	withTemps bool
	now       func() time.Time
	log       logrus.FieldLogger
}

// NewRecorder creates a recorder. withTemps also records temperature
// readings.
func NewRecorder(store *Store, st *state.State, withTemps bool, log logrus.FieldLogger) *Recorder {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Recorder{
		store:     store,
		st:        st,
		withTemps: withTemps,
		now:       time.Now,
		log:       log.WithField("component", "history"),
	}
}

// Run records until ctx ends. Changes already present when Run starts
// are not recorded; the first snapshot is the baseline.
func (r *Recorder) Run(ctx context.Context) error {
	changes, cancel := r.st.Subscribe()
	defer cancel()

	prev := r.st.Snapshot()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-changes:
			cur := r.st.Snapshot()
			if _, err := r.record(ctx, prev, cur); err != nil {
				r.log.WithError(err).Error("Failed to record history")
			}
			prev = cur
		}
	}
}

// record writes the difference between prev and cur, if any
func (r *Recorder) record(ctx context.Context, prev, cur state.Data) (int, error) {
	at := r.now()
	events := Diff(prev, cur, at, r.withTemps)
	if len(events) == 0 {
		return 0, nil
	}
	if err := r.store.Record(ctx, events, NewSnapshot(cur, at)); err != nil {
		return 0, err
	}
	for _, e := range events {
		r.log.WithFields(logrus.Fields{"point": e.Point, "from": e.Previous, "to": e.New}).Debug("Recorded")
	}
	return len(events), nil
}
