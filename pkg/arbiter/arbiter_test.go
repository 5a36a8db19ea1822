// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package arbiter

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Thermoquad/aquastat/pkg/errcode"
	"github.com/Thermoquad/aquastat/pkg/jandy"
)

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// pollUntil drains the arbiter like a poll loop until a key appears
func pollUntil(t *testing.T, a *Arbiter, timeout time.Duration) uint8 {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if code, ok := a.NextCommandToSend(); ok {
			return code
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("no key offered")
	return 0
}

// ============================================================
// FIFO Tests
// ============================================================

func TestEnqueue_Overflow(t *testing.T) {
	a := New(false, quietLogger())
	for i := 0; i < QUEUE_SIZE; i++ {
		if !a.Enqueue(uint8(i)) {
			t.Fatalf("Enqueue(%d) failed before capacity", i)
		}
	}
	if a.Enqueue(0xFF) {
		t.Error("Enqueue() past capacity should return false")
	}
	if a.QueueLen() != QUEUE_SIZE {
		t.Errorf("QueueLen() = %d, want %d", a.QueueLen(), QUEUE_SIZE)
	}

	// Order is preserved and the dropped key never shows up
	for i := 0; i < QUEUE_SIZE; i++ {
		code, ok := a.NextCommandToSend()
		if !ok || code != uint8(i) {
			t.Fatalf("NextCommandToSend() = %d, %v, want %d", code, ok, i)
		}
	}
	if _, ok := a.NextCommandToSend(); ok {
		t.Error("FIFO should be empty")
	}
}

// ============================================================
// Slot Tests
// ============================================================

func TestSendAndConfirm_Acked(t *testing.T) {
	a := New(false, quietLogger())
	a.Enqueue(jandy.KEY_AUX1)

	errc := make(chan error, 1)
	go func() {
		errc <- a.SendAndConfirm(context.Background(), jandy.KEY_MENU, time.Second)
	}()

	for !a.Pending() {
		time.Sleep(time.Millisecond)
	}
	if code := pollUntil(t, a, time.Second); code != jandy.KEY_MENU {
		t.Errorf("slot should win over FIFO, got 0x%02X", code)
	}
	if err := <-errc; err != nil {
		t.Errorf("SendAndConfirm() = %v", err)
	}
	if code := pollUntil(t, a, time.Second); code != jandy.KEY_AUX1 {
		t.Errorf("FIFO key should follow, got 0x%02X", code)
	}
}

func TestSendAndConfirm_TimeoutClearsSlot(t *testing.T) {
	a := New(false, quietLogger())

	start := time.Now()
	err := a.SendAndConfirm(context.Background(), jandy.KEY_ENTER, 20*time.Millisecond)
	if errcode.Of(err) != errcode.LinkTimeout {
		t.Errorf("SendAndConfirm() = %v, want link_timeout", err)
	}
	if time.Since(start) < 20*time.Millisecond {
		t.Error("SendAndConfirm() returned before its timeout")
	}
	if a.Pending() {
		t.Error("slot must be empty after a timeout")
	}
	if _, ok := a.NextCommandToSend(); ok {
		t.Error("a timed out key must never be sent")
	}

	// The next send is not blocked by the abandoned one
	go func() {
		for {
			if _, ok := a.NextCommandToSend(); ok {
				return
			}
			time.Sleep(time.Millisecond)
		}
	}()
	if err := a.SendAndConfirm(context.Background(), jandy.KEY_CANCEL, time.Second); err != nil {
		t.Errorf("follow-up SendAndConfirm() = %v", err)
	}
}

func TestSendAndConfirm_Cancelled(t *testing.T) {
	a := New(false, quietLogger())
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(5 * time.Millisecond)
		cancel()
	}()
	err := a.SendAndConfirm(ctx, jandy.KEY_ENTER, time.Second)
	if errcode.Of(err) != errcode.Cancelled {
		t.Errorf("SendAndConfirm() = %v, want cancelled", err)
	}
	if a.Pending() {
		t.Error("slot must be empty after cancel")
	}
}

func TestSendAndConfirm_SecondSenderWaits(t *testing.T) {
	a := New(false, quietLogger())
	errs := make(chan error, 2)
	for _, code := range []uint8{jandy.KEY_LEFT, jandy.KEY_RIGHT} {
		go func(code uint8) {
			errs <- a.SendAndConfirm(context.Background(), code, time.Second)
		}(code)
	}

	got := map[uint8]bool{}
	for len(got) < 2 {
		got[pollUntil(t, a, time.Second)] = true
	}
	for i := 0; i < 2; i++ {
		if err := <-errs; err != nil {
			t.Errorf("SendAndConfirm() = %v", err)
		}
	}
	if !got[jandy.KEY_LEFT] || !got[jandy.KEY_RIGHT] {
		t.Errorf("both keys should be sent, got %v", got)
	}
}

// ============================================================
// Alternation Tests
// ============================================================

func TestNextCommandToSend_Alternation(t *testing.T) {
	tests := []struct {
		name      string
		alternate bool
		want      []bool
	}{
		{"keypad inserts gaps", true, []bool{true, false, true, false, true, false}},
		{"pda sends back to back", false, []bool{true, true, true, false}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := New(tt.alternate, quietLogger())
			a.Enqueue(jandy.KEY_AUX1)
			a.Enqueue(jandy.KEY_AUX2)
			a.Enqueue(jandy.KEY_AUX3)
			for i, want := range tt.want {
				if _, ok := a.NextCommandToSend(); ok != want {
					t.Errorf("poll %d: got key=%v, want %v", i, ok, want)
				}
			}
		})
	}
}
