// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package habridge mirrors device states into an HA-bridge so voice
// assistants report what the panel shows.
package habridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Thermoquad/aquastat/pkg/devices"
	"github.com/Thermoquad/aquastat/pkg/state"
)

// RESYNC_INTERVAL is how often every state is pushed again
const RESYNC_INTERVAL = 60 * time.Second

// Options configure a Bridge
type Options struct {
	Server string // host[:port]
	User   string
	Client *http.Client
	Resync time.Duration
}

// Bridge pushes LED changes of devices that have a hab id
type Bridge struct {
	opts Options
	st   *state.State
	last map[int]devices.LEDState
	log  logrus.FieldLogger
}

// New creates a bridge. Nothing is sent until Run or Push.
func New(st *state.State, opts Options, log logrus.FieldLogger) *Bridge {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if opts.Client == nil {
		opts.Client = &http.Client{Timeout: 5 * time.Second}
	}
	if opts.Resync <= 0 {
		opts.Resync = RESYNC_INTERVAL
	}
	return &Bridge{
		opts: opts,
		st:   st,
		last: make(map[int]devices.LEDState),
		log:  log.WithField("component", "habridge"),
	}
}

// Run pushes on every state change and resends everything each resync
// interval. It returns when ctx ends.
func (b *Bridge) Run(ctx context.Context) error {
	changes, cancel := b.st.Subscribe()
	defer cancel()

	ticker := time.NewTicker(b.opts.Resync)
	defer ticker.Stop()

	b.Push(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			b.log.Debug("Forcing resync")
			b.Resync()
			b.Push(ctx)
		case <-changes:
			b.Push(ctx)
		}
	}
}

// Resync forgets what was sent so the next Push sends every device
func (b *Bridge) Resync() {
	clear(b.last)
}

// Push sends each device whose LED differs from what was last sent and
// returns how many updates succeeded. Failed updates are retried on the
// next push.
func (b *Bridge) Push(ctx context.Context) int {
	snap := b.st.Snapshot()
	sent := 0
	for _, d := range snap.Devices {
		if d.HabID == "" {
			continue
		}
		if prev, ok := b.last[d.Index]; ok && prev == d.LED {
			continue
		}
		if err := b.put(ctx, d.HabID, d.LED != devices.LED_OFF); err != nil {
			b.log.WithError(err).WithField("device", d.Name).Error("Bridge update failed")
			continue
		}
		b.last[d.Index] = d.LED
		sent++
	}
	return sent
}

func (b *Bridge) put(ctx context.Context, habID string, on bool) error {
	u := url.URL{
		Scheme: "http",
		Host:   b.opts.Server,
		Path:   fmt.Sprintf("/api/%s/lights/%s/bridgeupdatestate", b.opts.User, habID),
	}
	body, err := json.Marshal(struct {
		On bool `json:"on"`
	}{on})
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, u.String(), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.opts.Client.Do(req)
	if err != nil {
		return fmt.Errorf("put %s: %w", u.Path, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("put %s: %s", u.Path, resp.Status)
	}
	b.log.WithFields(logrus.Fields{"hab_id": habID, "on": on}).Debug("Bridge updated")
	return nil
}
