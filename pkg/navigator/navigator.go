// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package navigator runs panel operations by pressing keys and watching the
// display. Every operation holds the session for its whole run and leaves
// the panel at a known menu depth when it fails.
package navigator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/Thermoquad/aquastat/pkg/arbiter"
	"github.com/Thermoquad/aquastat/pkg/devices"
	"github.com/Thermoquad/aquastat/pkg/errcode"
	"github.com/Thermoquad/aquastat/pkg/jandy"
	"github.com/Thermoquad/aquastat/pkg/screen"
	"github.com/Thermoquad/aquastat/pkg/session"
	"github.com/Thermoquad/aquastat/pkg/state"
)

// Mode selects which remote the engine drives
type Mode int

const (
	MODE_KEYPAD Mode = iota
	MODE_PDA
)

func (m Mode) String() string {
	if m == MODE_PDA {
		return "pda"
	}
	return "keypad"
}

// ParseMode accepts "pda" and "keypad", ignoring case
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pda":
		return MODE_PDA, nil
	case "keypad", "rs", "":
		return MODE_KEYPAD, nil
	}
	return MODE_KEYPAD, fmt.Errorf("unknown panel mode %q", s)
}

// Timing bounds the waits an operation may make
type Timing struct {
	SessionTimeout   time.Duration // waiting for another operation
	AckTimeout       time.Duration // waiting for a key to be taken
	OperationTimeout time.Duration // whole operation
	MessageQuiet     time.Duration // keypad display silent this long ends a read
	NumericMaxSteps  int
	SubMenuTries     int
	MenuTries        int
}

// DefaultTiming returns the bounds used with real panels
func DefaultTiming() Timing {
	return Timing{
		SessionTimeout:   30 * time.Second,
		AckTimeout:       5 * time.Second,
		OperationTimeout: 3 * time.Minute,
		MessageQuiet:     3 * time.Second,
		NumericMaxSteps:  100,
		SubMenuTries:     25,
		MenuTries:        3,
	}
}

// Options configure an Engine
type Options struct {
	Mode   Mode
	Timing Timing
	Light  LightTiming

	// Paths overrides the PDA menu paths; nil uses DefaultMenuPaths
	Paths map[screen.MenuID]MenuPath
}

// Request describes one operation
type Request struct {
	Kind   session.Kind
	Device string // device name for on/off and light requests
	On     bool
	Value  int       // setpoint, percent or light mode
	Key    uint8     // SEND_KEY
	Time   time.Time // SET_TIME, zero means now
	Light  *LightTiming
}

// Task is the handle for a submitted request
type Task struct {
	kind    session.Kind
	done    chan struct{}
	started time.Time

	mu       sync.Mutex
	err      error
	finished time.Time
}

func newTask(kind session.Kind) *Task {
	return &Task{kind: kind, done: make(chan struct{}), started: time.Now()}
}

func (t *Task) finish(err error) {
	t.mu.Lock()
	t.err = err
	t.finished = time.Now()
	t.mu.Unlock()
	close(t.done)
}

// Kind returns the requested operation
func (t *Task) Kind() session.Kind { return t.kind }

// Done is closed when the operation has ended
func (t *Task) Done() <-chan struct{} { return t.done }

// Started returns when the request was submitted
func (t *Task) Started() time.Time { return t.started }

// Finished returns when the operation ended, or zero while it runs
func (t *Task) Finished() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.finished
}

// Err returns the outcome once Done is closed, nil before
func (t *Task) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// Wait blocks until the operation ends or ctx does
func (t *Task) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return t.Err()
	case <-ctx.Done():
		return errcode.Wrap(errcode.Cancelled, t.kind.String(), ctx.Err())
	}
}

type operation func(ctx context.Context, req Request) error

// Engine runs operations against one panel
type Engine struct {
	arb *arbiter.Arbiter
	scr *screen.Screen
	st  *state.State
	sup *session.Supervisor

	mode   Mode
	timing Timing
	light  LightTiming
	paths  map[screen.MenuID]MenuPath
	ops    map[session.Kind]operation

	// swapped in tests
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	group  singleflight.Group
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	log logrus.FieldLogger
}

// New creates an engine
func New(arb *arbiter.Arbiter, scr *screen.Screen, st *state.State, sup *session.Supervisor, opts Options, log logrus.FieldLogger) *Engine {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if opts.Timing == (Timing{}) {
		opts.Timing = DefaultTiming()
	}
	if opts.Timing.MessageQuiet <= 0 {
		opts.Timing.MessageQuiet = DefaultTiming().MessageQuiet
	}
	if opts.Light == (LightTiming{}) {
		opts.Light = DefaultLightTiming()
	}
	if opts.Paths == nil {
		opts.Paths = DefaultMenuPaths()
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		arb:    arb,
		scr:    scr,
		st:     st,
		sup:    sup,
		mode:   opts.Mode,
		timing: opts.Timing,
		light:  opts.Light,
		paths:  opts.Paths,
		now:    time.Now,
		sleep:  sleepCtx,
		ctx:    ctx,
		cancel: cancel,
		log:    log.WithField("component", "navigator"),
	}
	if e.mode == MODE_PDA {
		e.ops = e.pdaOperations()
	} else {
		e.ops = e.keypadOperations()
	}
	return e
}

// Mode returns the remote the engine drives
func (e *Engine) Mode() Mode { return e.mode }

// Supports reports whether kind can run in the engine's mode
func (e *Engine) Supports(kind session.Kind) bool {
	if kind == session.KIND_SEND_KEY {
		return true
	}
	_, ok := e.ops[kind]
	return ok
}

// shared lists reads whose concurrent duplicates share one run
var shared = map[session.Kind]bool{
	session.KIND_GET_HEATER_TEMPS:        true,
	session.KIND_GET_FREEZE_PROTECT_TEMP: true,
	session.KIND_DEVICE_STATUS:           true,
}

// CompletedTask returns a handle for a request that ended without running
func CompletedTask(kind session.Kind, err error) *Task {
	t := newTask(kind)
	t.finish(err)
	return t
}

// Submit starts req in its own goroutine and returns its handle. Requests
// that cannot run are finished immediately with the reason.
func (e *Engine) Submit(req Request) *Task {
	if err := e.ctx.Err(); err != nil {
		return CompletedTask(req.Kind, errcode.Wrap(errcode.Cancelled, req.Kind.String(), err))
	}

	if req.Kind == session.KIND_SEND_KEY {
		// Single keys skip the session and go through the FIFO
		if !e.arb.Enqueue(req.Key) {
			return CompletedTask(req.Kind, errcode.New(errcode.Busy, req.Kind.String(), "command queue full"))
		}
		return CompletedTask(req.Kind, nil)
	}

	op, ok := e.ops[req.Kind]
	if !ok {
		return CompletedTask(req.Kind, errcode.New(errcode.Unsupported, req.Kind.String(), "not available in "+e.mode.String()+" mode"))
	}

	t := newTask(req.Kind)

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		if shared[req.Kind] {
			res := <-e.group.DoChan(req.Kind.String(), func() (interface{}, error) {
				return nil, e.run(req, op)
			})
			t.finish(res.Err)
			return
		}
		t.finish(e.run(req, op))
	}()
	return t
}

// Do submits req and waits for it
func (e *Engine) Do(ctx context.Context, req Request) error {
	return e.Submit(req).Wait(ctx)
}

// Close cancels running operations and waits for their goroutines
func (e *Engine) Close() {
	e.cancel()
	e.wg.Wait()
}

// run is the single path every operation takes: acquire, run, cancel on
// failure, release.
func (e *Engine) run(req Request, op operation) (err error) {
	ctx, cancel := context.WithTimeout(e.ctx, e.timing.OperationTimeout)
	defer cancel()

	name := req.Kind.String()
	log := e.log.WithField("op", name)

	lease, err := e.sup.Acquire(ctx, req.Kind, e.timing.SessionTimeout)
	if err != nil {
		log.WithError(err).Warn("Operation not started")
		return err
	}
	defer lease.Release()

	defer func() {
		if r := recover(); r != nil {
			err = errcode.New(errcode.Error, name, fmt.Sprint(r))
		}
		if err == nil {
			log.Debug("Operation complete")
			return
		}
		if ctx.Err() != nil && errcode.Of(err) == errcode.Error {
			err = errcode.Wrap(errcode.Cancelled, name, ctx.Err())
		}
		log.WithError(err).Error("Operation failed")
		e.cancelMenu()
	}()

	log.Info("Operation started")
	return op(ctx, req)
}

// cancelMenu backs the panel out of whatever the failed operation left
// open. It uses its own deadline since the operation's may be spent.
func (e *Engine) cancelMenu() {
	ctx, cancel := context.WithTimeout(context.Background(), e.timing.AckTimeout)
	defer cancel()

	key := uint8(jandy.KEY_CANCEL)
	if e.mode == MODE_PDA {
		key = jandy.KEY_PDA_BACK
	}
	if err := e.arb.SendAndConfirm(ctx, key, e.timing.AckTimeout); err != nil {
		e.log.WithError(err).Warn("Cancel key was not taken")
	}
}

// send presses one key and waits until the poll loop has taken it
func (e *Engine) send(ctx context.Context, key uint8) error {
	return e.arb.SendAndConfirm(ctx, key, e.timing.AckTimeout)
}

// notFound builds the failure for a screen that never showed what was expected
func notFound(op, format string, args ...interface{}) error {
	return errcode.New(errcode.NotFound, op, fmt.Sprintf(format, args...))
}

// ctxErr maps an ended context to Cancelled, nil otherwise
func ctxErr(ctx context.Context, op string) error {
	if err := ctx.Err(); err != nil {
		return errcode.Wrap(errcode.Cancelled, op, err)
	}
	return nil
}

// device resolves a request's device name
func (e *Engine) device(op, name string) (devices.Device, error) {
	d, ok := e.st.Snapshot().Devices.ByName(name)
	if !ok {
		return devices.Device{}, errcode.New(errcode.InvalidArgument, op, fmt.Sprintf("unknown device %q", name))
	}
	return d, nil
}

// clamp applies Clamp to the current state and logs the outcome
func (e *Engine) clamp(sp Setpoint, value int) int {
	d := e.st.Snapshot()
	out, changed := Clamp(sp, value, &d)
	if changed {
		e.log.WithFields(logrus.Fields{"setpoint": sp, "requested": value, "using": out}).Warn("Setpoint outside range")
	} else {
		e.log.WithFields(logrus.Fields{"setpoint": sp, "value": out}).Info("Setting setpoint")
	}
	return out
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
