// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package session

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Thermoquad/aquastat/pkg/errcode"
)

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestAcquire_Release(t *testing.T) {
	s := NewSupervisor(quietLogger())
	l, err := s.Acquire(context.Background(), KIND_GET_PROGRAMS, time.Second)
	if err != nil {
		t.Fatalf("Acquire() = %v", err)
	}

	info := s.Current()
	if !info.Active || info.Kind != KIND_GET_PROGRAMS || info.Owner != l.Owner() {
		t.Errorf("Current() = %+v", info)
	}
	if s.IdleFor() != 0 {
		t.Error("IdleFor() should be zero while active")
	}

	l.Release()
	l.Release()

	info = s.Current()
	if info.Active || info.Kind != KIND_GET_PROGRAMS {
		t.Errorf("Current() after release = %+v", info)
	}
	if s.LastFinished().IsZero() {
		t.Error("LastFinished() should be set")
	}
}

func TestAcquire_TimeoutIsBusy(t *testing.T) {
	s := NewSupervisor(quietLogger())
	l, _ := s.Acquire(context.Background(), KIND_SET_TIME, time.Second)
	defer l.Release()

	_, err := s.Acquire(context.Background(), KIND_SET_SWG_PERCENT, 20*time.Millisecond)
	if errcode.Of(err) != errcode.Busy {
		t.Errorf("Acquire() = %v, want busy", err)
	}
	if info := s.Current(); info.Kind != KIND_SET_TIME {
		t.Errorf("timed out waiter must not take the slot: %+v", info)
	}
}

func TestAcquire_Cancelled(t *testing.T) {
	s := NewSupervisor(quietLogger())
	l, _ := s.Acquire(context.Background(), KIND_SET_TIME, time.Second)
	defer l.Release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.Acquire(ctx, KIND_GET_PROGRAMS, time.Second); errcode.Of(err) != errcode.Cancelled {
		t.Errorf("Acquire() = %v, want cancelled", err)
	}
}

func TestAcquire_WaiterRunsAfterRelease(t *testing.T) {
	s := NewSupervisor(quietLogger())
	first, _ := s.Acquire(context.Background(), KIND_GET_FREEZE_PROTECT_TEMP, time.Second)

	got := make(chan *Lease)
	go func() {
		l, err := s.Acquire(context.Background(), KIND_SET_SPA_HEATER_TEMP, time.Second)
		if err != nil {
			close(got)
			return
		}
		got <- l
	}()

	time.Sleep(20 * time.Millisecond)
	select {
	case <-got:
		t.Fatal("second acquire must wait for release")
	default:
	}

	first.Release()
	select {
	case l, ok := <-got:
		if !ok {
			t.Fatal("second acquire failed")
		}
		if l.Kind() != KIND_SET_SPA_HEATER_TEMP {
			t.Errorf("Kind() = %v", l.Kind())
		}
		l.Release()
	case <-time.After(time.Second):
		t.Fatal("second acquire never woke")
	}
}

func TestAcquire_ExactlyOneActive(t *testing.T) {
	s := NewSupervisor(quietLogger())
	const N = 16
	var active, maxActive, granted int32
	var wg sync.WaitGroup

	for i := 0; i < N; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l, err := s.Acquire(context.Background(), KIND_DEVICE_ON_OFF, 2*time.Second)
			if err != nil {
				return
			}
			atomic.AddInt32(&granted, 1)
			n := atomic.AddInt32(&active, 1)
			for {
				m := atomic.LoadInt32(&maxActive)
				if n <= m || atomic.CompareAndSwapInt32(&maxActive, m, n) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			atomic.AddInt32(&active, -1)
			l.Release()
		}()
	}
	wg.Wait()

	if maxActive != 1 {
		t.Errorf("max concurrent sessions = %d, want 1", maxActive)
	}
	if granted != N {
		t.Errorf("granted = %d, want %d", granted, N)
	}
}

func TestParseKind(t *testing.T) {
	for _, k := range Kinds() {
		got, err := ParseKind(k.String())
		if err != nil || got != k {
			t.Errorf("ParseKind(%s) = %v, %v", k, got, err)
		}
	}
	if k, err := ParseKind("Set-Pool-Heater-Temp"); err != nil || k != KIND_SET_POOL_HEATER_TEMP {
		t.Errorf("ParseKind() with dashes = %v, %v", k, err)
	}
	if _, err := ParseKind("none"); err == nil {
		t.Error("ParseKind(none) should fail")
	}
}
