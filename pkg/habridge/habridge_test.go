// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package habridge

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Thermoquad/aquastat/pkg/devices"
	"github.com/Thermoquad/aquastat/pkg/state"
)

type put struct {
	path string
	body string
}

type recorder struct {
	mu   sync.Mutex
	puts []put
	fail bool
}

func (r *recorder) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	body, _ := io.ReadAll(req.Body)
	r.mu.Lock()
	defer r.mu.Unlock()
	if req.Method != http.MethodPut {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if r.fail {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	r.puts = append(r.puts, put{req.URL.Path, string(body)})
}

func (r *recorder) setFail(fail bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fail = fail
}

func (r *recorder) take() []put {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.puts
	r.puts = nil
	return out
}

func setup(t *testing.T) (*Bridge, *state.State, *recorder) {
	t.Helper()
	rec := &recorder{}
	srv := httptest.NewServer(rec)
	t.Cleanup(srv.Close)

	table := devices.Default()
	table[devices.PUMP].HabID = "1"
	table[devices.AUX1].HabID = "7"
	st := state.New(table)

	log := logrus.New()
	log.SetOutput(io.Discard)
	b := New(st, Options{Server: strings.TrimPrefix(srv.URL, "http://"), User: "aqua"}, log)
	return b, st, rec
}

func TestPush_OnlyChanges(t *testing.T) {
	b, st, rec := setup(t)
	ctx := context.Background()

	st.SetLED(devices.PUMP, devices.LED_ON)
	if n := b.Push(ctx); n != 2 {
		t.Fatalf("first Push() = %d, want 2", n)
	}
	puts := rec.take()
	want := map[string]string{
		"/api/aqua/lights/1/bridgeupdatestate": `{"on":true}`,
		"/api/aqua/lights/7/bridgeupdatestate": `{"on":false}`,
	}
	for _, p := range puts {
		if want[p.path] != p.body {
			t.Errorf("PUT %s = %s, want %s", p.path, p.body, want[p.path])
		}
	}

	if n := b.Push(ctx); n != 0 {
		t.Errorf("Push() without changes = %d, want 0", n)
	}

	st.SetLED(devices.AUX1, devices.LED_FLASH)
	b.Push(ctx)
	puts = rec.take()
	if len(puts) != 1 || puts[0].path != "/api/aqua/lights/7/bridgeupdatestate" || puts[0].body != `{"on":true}` {
		t.Errorf("after flash puts = %+v", puts)
	}
}

func TestResync_SendsEverything(t *testing.T) {
	b, _, rec := setup(t)
	ctx := context.Background()

	b.Push(ctx)
	rec.take()
	b.Resync()
	if n := b.Push(ctx); n != 2 {
		t.Errorf("Push() after Resync() = %d, want 2", n)
	}
}

func TestPush_RetriesFailures(t *testing.T) {
	b, _, rec := setup(t)
	ctx := context.Background()

	rec.setFail(true)
	if n := b.Push(ctx); n != 0 {
		t.Errorf("Push() against failing server = %d, want 0", n)
	}
	rec.setFail(false)
	if n := b.Push(ctx); n != 2 {
		t.Errorf("Push() after recovery = %d, want 2", n)
	}
}

func TestRun_PushesChanges(t *testing.T) {
	b, st, rec := setup(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	// Initial push covers both bridged devices
	deadline := time.Now().Add(2 * time.Second)
	for n := 0; n < 2 && time.Now().Before(deadline); {
		n += len(rec.take())
		time.Sleep(5 * time.Millisecond)
	}

	st.SetLED(devices.PUMP, devices.LED_ON)
	var got []put
	for time.Now().Before(deadline) {
		if got = rec.take(); len(got) > 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if len(got) != 1 || got[0].body != `{"on":true}` {
		t.Errorf("Run() puts = %+v, want pump on", got)
	}

	cancel()
	if err := <-done; err != context.Canceled {
		t.Errorf("Run() = %v, want context.Canceled", err)
	}
}
