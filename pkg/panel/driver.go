// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package panel

import (
	"context"
	"io"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/Thermoquad/aquastat/pkg/arbiter"
	"github.com/Thermoquad/aquastat/pkg/devices"
	"github.com/Thermoquad/aquastat/pkg/jandy"
	"github.com/Thermoquad/aquastat/pkg/navigator"
	"github.com/Thermoquad/aquastat/pkg/projector"
	"github.com/Thermoquad/aquastat/pkg/screen"
	"github.com/Thermoquad/aquastat/pkg/session"
	"github.com/Thermoquad/aquastat/pkg/state"
)

// Options describe one emulated remote
type Options struct {
	Mode     navigator.Mode
	DeviceID uint8

	SleepMode         bool
	UsePanelAuxLabels bool

	Timing navigator.Timing
	Light  navigator.LightTiming

	// Nil values use the built-in tables
	Devices devices.Table
	Catalog screen.Catalog
	Paths   map[screen.MenuID]navigator.MenuPath
}

// DefaultDeviceID returns the first remote address for mode
func DefaultDeviceID(mode navigator.Mode) uint8 {
	if mode == navigator.MODE_PDA {
		return jandy.DEV_PDA_MIN
	}
	return jandy.DEV_KEYPAD_MIN
}

// Driver owns every part of one emulated remote
type Driver struct {
	Screen     *screen.Screen
	State      *state.State
	Arbiter    *arbiter.Arbiter
	Supervisor *session.Supervisor
	Projector  *projector.Projector
	Engine     *navigator.Engine
	Handler    *Handler

	opts Options
	log  logrus.FieldLogger

	mu   sync.Mutex
	link *Link
}

// NewDriver assembles a driver. Nothing runs until Run is called.
func NewDriver(opts Options, log logrus.FieldLogger) *Driver {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if opts.DeviceID == 0 {
		opts.DeviceID = DefaultDeviceID(opts.Mode)
	}
	if opts.Devices == nil {
		opts.Devices = devices.Default()
	}
	if opts.Catalog == nil {
		opts.Catalog = screen.DefaultCatalog()
	}

	d := &Driver{
		Screen:     screen.New(opts.Catalog),
		State:      state.New(opts.Devices),
		Arbiter:    arbiter.New(opts.Mode == navigator.MODE_KEYPAD, log),
		Supervisor: session.NewSupervisor(log),
		opts:       opts,
		log:        log.WithField("component", "driver"),
	}
	d.State.Update(func(data *state.Data) {
		if opts.Mode == navigator.MODE_KEYPAD {
			data.Panel = state.PANEL_KEYPAD
		}
	})
	d.Projector = projector.New(d.State, d.Screen, projector.Options{UsePanelAuxLabels: opts.UsePanelAuxLabels}, log)
	d.Engine = navigator.New(d.Arbiter, d.Screen, d.State, d.Supervisor, navigator.Options{
		Mode:   opts.Mode,
		Timing: opts.Timing,
		Light:  opts.Light,
		Paths:  opts.Paths,
	}, log)
	d.Handler = NewHandler(d.Screen, d.State, d.Projector, d.Engine, d.Supervisor, HandlerOptions{
		Mode:          opts.Mode,
		SleepMode:     opts.SleepMode,
		ReadAuxLabels: opts.UsePanelAuxLabels,
	}, log)
	return d
}

// Run services conn until it fails or ctx ends. Run may be called again
// with a new connection after a failure; screen and state carry over.
func (d *Driver) Run(ctx context.Context, conn io.ReadWriter) error {
	link := NewLink(conn, d.Handler, d.Arbiter, d.opts.DeviceID, d.opts.Mode, d.log)
	d.mu.Lock()
	d.link = link
	d.mu.Unlock()
	d.log.WithFields(logrus.Fields{
		"mode":   d.opts.Mode,
		"device": jandy.FormatDevice(d.opts.DeviceID),
	}).Info("Emulating remote")
	return link.Run(ctx)
}

// Submit starts an operation
func (d *Driver) Submit(req navigator.Request) *navigator.Task {
	return d.Engine.Submit(req)
}

// Do runs an operation and waits for it
func (d *Driver) Do(ctx context.Context, req navigator.Request) error {
	return d.Engine.Do(ctx, req)
}

// Stats renders the current link's frame counters
func (d *Driver) Stats() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.link == nil {
		return ""
	}
	return d.link.Stats()
}

// Close stops running operations
func (d *Driver) Close() {
	d.Engine.Close()
}
