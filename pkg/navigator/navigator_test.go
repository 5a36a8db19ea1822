// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package navigator

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Thermoquad/aquastat/pkg/arbiter"
	"github.com/Thermoquad/aquastat/pkg/devices"
	"github.com/Thermoquad/aquastat/pkg/errcode"
	"github.com/Thermoquad/aquastat/pkg/jandy"
	"github.com/Thermoquad/aquastat/pkg/projector"
	"github.com/Thermoquad/aquastat/pkg/screen"
	"github.com/Thermoquad/aquastat/pkg/session"
	"github.com/Thermoquad/aquastat/pkg/state"
)

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func testTiming() Timing {
	t := DefaultTiming()
	t.SessionTimeout = 5 * time.Second
	t.AckTimeout = 200 * time.Millisecond
	t.OperationTimeout = 5 * time.Second
	t.MessageQuiet = 300 * time.Millisecond
	return t
}

// rig wires an engine to a screen and state with no panel attached
type rig struct {
	arb  *arbiter.Arbiter
	scr  *screen.Screen
	st   *state.State
	sup  *session.Supervisor
	proj *projector.Projector
	eng  *Engine
}

func newRig(t *testing.T, mode Mode, timing Timing) *rig {
	t.Helper()
	log := quietLogger()
	r := &rig{
		arb: arbiter.New(mode == MODE_KEYPAD, log),
		scr: screen.New(screen.DefaultCatalog()),
		st:  state.New(devices.Default()),
		sup: session.NewSupervisor(log),
	}
	r.proj = projector.New(r.st, r.scr, projector.Options{UsePanelAuxLabels: true}, log)
	r.eng = New(r.arb, r.scr, r.st, r.sup, Options{Mode: mode, Timing: timing}, log)
	t.Cleanup(r.eng.Close)
	return r
}

// poller stands in for the serial poll loop. It hands each taken key to
// handle and reports an idle status cycle otherwise.
type poller struct {
	r      *rig
	handle func(code uint8)
	idle   func()

	mu   sync.Mutex
	keys []uint8

	once sync.Once
	stop chan struct{}
	done chan struct{}
}

func (r *rig) startPoller(t *testing.T, handle func(uint8), idle func()) *poller {
	p := &poller{
		r:      r,
		handle: handle,
		idle:   idle,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go p.loop()
	t.Cleanup(p.Stop)
	return p
}

func (p *poller) loop() {
	defer close(p.done)
	tick := time.NewTicker(time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case <-p.stop:
			return
		case <-tick.C:
		}
		if code, ok := p.r.arb.NextCommandToSend(); ok {
			p.mu.Lock()
			p.keys = append(p.keys, code)
			p.mu.Unlock()
			if p.handle != nil {
				p.handle(code)
			}
			continue
		}
		if p.idle != nil {
			p.idle()
		}
		p.r.scr.NoteStatus()
	}
}

func (p *poller) Stop() {
	p.once.Do(func() { close(p.stop) })
	<-p.done
}

func (p *poller) Keys() []uint8 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]uint8(nil), p.keys...)
}

func (p *poller) Count(code uint8) int {
	n := 0
	for _, k := range p.Keys() {
		if k == code {
			n++
		}
	}
	return n
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func do(t *testing.T, r *rig, req Request) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return r.eng.Do(ctx, req)
}

// ============================================================
// Engine Tests
// ============================================================

func TestSubmit_SendKeyUsesFIFO(t *testing.T) {
	r := newRig(t, MODE_KEYPAD, testTiming())

	if err := do(t, r, Request{Kind: session.KIND_SEND_KEY, Key: jandy.KEY_AUX1}); err != nil {
		t.Fatalf("SEND_KEY error = %v", err)
	}
	if r.arb.QueueLen() != 1 {
		t.Errorf("QueueLen() = %d, want 1", r.arb.QueueLen())
	}
	if r.sup.Active() {
		t.Error("SEND_KEY should not hold a session")
	}

	for r.arb.QueueLen() < arbiter.QUEUE_SIZE {
		r.arb.Enqueue(jandy.KEY_AUX2)
	}
	err := do(t, r, Request{Kind: session.KIND_SEND_KEY, Key: jandy.KEY_AUX3})
	if errcode.Of(err) != errcode.Busy {
		t.Errorf("full queue error = %v, want Busy", err)
	}
}

func TestSubmit_Unsupported(t *testing.T) {
	tests := []struct {
		mode Mode
		kind session.Kind
	}{
		{MODE_KEYPAD, session.KIND_DEVICE_STATUS},
		{MODE_KEYPAD, session.KIND_PDA_INIT},
		{MODE_KEYPAD, session.KIND_GET_AUX_LABELS},
		{MODE_PDA, session.KIND_SET_TIME},
		{MODE_PDA, session.KIND_SET_LIGHT_COLOR_MODE},
		{MODE_PDA, session.KIND_GET_DIAGNOSTICS},
		{MODE_PDA, session.KIND_GET_PROGRAMS},
	}

	for _, tt := range tests {
		t.Run(tt.mode.String()+"/"+tt.kind.String(), func(t *testing.T) {
			r := newRig(t, tt.mode, testTiming())
			if r.eng.Supports(tt.kind) {
				t.Errorf("Supports(%s) = true", tt.kind)
			}
			task := r.eng.Submit(Request{Kind: tt.kind})
			select {
			case <-task.Done():
			default:
				t.Fatal("unsupported request should finish immediately")
			}
			if errcode.Of(task.Err()) != errcode.Unsupported {
				t.Errorf("Err() = %v, want Unsupported", task.Err())
			}
		})
	}
}

func TestRun_NoPollerIsLinkTimeout(t *testing.T) {
	timing := testTiming()
	timing.AckTimeout = 30 * time.Millisecond
	r := newRig(t, MODE_KEYPAD, timing)

	err := do(t, r, Request{Kind: session.KIND_SET_POOL_HEATER_TEMP, Value: 84})
	if errcode.Of(err) != errcode.LinkTimeout {
		t.Fatalf("error = %v, want LinkTimeout", err)
	}
	if r.sup.Active() {
		t.Error("session still held after failure")
	}
	if r.arb.Pending() {
		t.Error("slot still holds a key")
	}
}

func TestRun_FailureSendsCancel(t *testing.T) {
	timing := testTiming()
	timing.MenuTries = 1
	timing.OperationTimeout = 150 * time.Millisecond
	r := newRig(t, MODE_KEYPAD, timing)
	p := r.startPoller(t, nil, nil)

	err := do(t, r, Request{Kind: session.KIND_SET_POOL_HEATER_TEMP, Value: 84})
	if errcode.Of(err) != errcode.Cancelled {
		t.Fatalf("error = %v, want Cancelled", err)
	}

	keys := p.Keys()
	if len(keys) < 2 || keys[0] != jandy.KEY_MENU || keys[len(keys)-1] != jandy.KEY_CANCEL {
		t.Errorf("keys = %X, want MENU first and CANCEL last", keys)
	}
	if r.sup.Active() {
		t.Error("session still held after failure")
	}
}

func TestRun_UnknownDevice(t *testing.T) {
	r := newRig(t, MODE_KEYPAD, testTiming())
	r.startPoller(t, nil, nil)

	err := do(t, r, Request{Kind: session.KIND_DEVICE_ON_OFF, Device: "hot_tub", On: true})
	if errcode.Of(err) != errcode.InvalidArgument {
		t.Errorf("error = %v, want InvalidArgument", err)
	}
}

func TestClose_RejectsNewRequests(t *testing.T) {
	r := newRig(t, MODE_KEYPAD, testTiming())
	r.eng.Close()

	task := r.eng.Submit(Request{Kind: session.KIND_GET_HEATER_TEMPS})
	if errcode.Of(task.Err()) != errcode.Cancelled {
		t.Errorf("Err() = %v, want Cancelled", task.Err())
	}
}

func TestTask_Wait(t *testing.T) {
	task := newTask(session.KIND_GET_HEATER_TEMPS)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := task.Wait(ctx); errcode.Of(err) != errcode.Cancelled {
		t.Errorf("Wait() on unfinished task = %v, want Cancelled", err)
	}

	task.finish(nil)
	if err := task.Wait(context.Background()); err != nil {
		t.Errorf("Wait() = %v, want nil", err)
	}
	if task.Finished().Before(task.Started()) {
		t.Error("Finished() before Started()")
	}
}

func TestParseMode(t *testing.T) {
	for _, s := range []string{"keypad", "PDA", " pda "} {
		if _, err := ParseMode(s); err != nil {
			t.Errorf("ParseMode(%q) error = %v", s, err)
		}
	}
	if _, err := ParseMode("onetouch"); err == nil {
		t.Error("ParseMode(onetouch) should fail")
	}
}
