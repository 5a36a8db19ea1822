// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package navigator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Thermoquad/aquastat/pkg/devices"
	"github.com/Thermoquad/aquastat/pkg/errcode"
	"github.com/Thermoquad/aquastat/pkg/jandy"
	"github.com/Thermoquad/aquastat/pkg/session"
)

// kpItem is one entry of the simulated keypad menu
type kpItem struct {
	name     string
	children []kpItem
	field    string // key into keypadSim.vals
	review   func() []string
	enter    func() // runs under the sim lock
}

// kpField describes how a numeric field is shown and confirmed
type kpField struct {
	format  string
	step    int
	confirm string
	next    string // field opened by ENTER instead of confirming; "hour" lists hours
}

var kpFields = map[string]kpField{
	"pool":   {format: "POOL HEAT %d`F", step: 1, confirm: "POOL TEMP IS SET TO %d"},
	"spa":    {format: "SPA HEAT %d`F", step: 1, confirm: "SPA TEMP IS SET TO %d"},
	"freeze": {format: "FRZ %d`F", step: 1, confirm: "FREEZE PROTECTION IS SET TO %d"},
	"swg":    {format: "POOL SP %d%%", step: SWG_STEP, confirm: "POOL SP SET TO %d%%"},
	"year":   {format: "YEAR %d", step: 1, next: "month"},
	"month":  {format: "MONTH %d", step: 1, next: "day"},
	"day":    {format: "DAY %d", step: 1, next: "hour"},
	"minute": {format: "MINUTE %d", step: 1, confirm: "MINUTE SET TO %d"},
}

// keypadSim answers keys the way a one-line keypad display does. Most
// keys leave one new message; review entries show several at once.
type keypadSim struct {
	r *rig

	mu        sync.Mutex
	vals      map[string]int
	list      []kpItem
	cursor    int
	field     string
	value     int
	reviewing bool

	// gate, when set, holds the first MENU press until it is closed
	gate     chan struct{}
	menuSeen chan struct{}
}

func newKeypadSim(r *rig) *keypadSim {
	return &keypadSim{
		r: r,
		vals: map[string]int{
			"pool": 80, "spa": 100, "freeze": 38, "swg": 20,
			"year": 2020, "month": 1, "day": 1, "hour": 0, "minute": 0,
		},
		menuSeen: make(chan struct{}, 1),
	}
}

func (s *keypadSim) menu() []kpItem {
	return []kpItem{
		{name: "HELP"},
		{name: "PROGRAM"},
		{name: "SET TEMP", children: []kpItem{
			{name: "SET POOL TEMP", field: "pool"},
			{name: "SET SPA TEMP", field: "spa"},
		}},
		{name: "SET TIME", enter: func() { s.edit("year") }},
		{name: "REVIEW", children: []kpItem{
			{name: "TEMP SET", review: func() []string {
				return []string{
					fmt.Sprintf("POOL TEMP IS SET TO %d", s.vals["pool"]),
					fmt.Sprintf("SPA TEMP IS SET TO %d", s.vals["spa"]),
					"MAINTAIN TEMP IS OFF",
				}
			}},
			{name: "FRZ PROTECT", review: func() []string {
				return []string{fmt.Sprintf("FREEZE PROTECTION IS SET TO %d", s.vals["freeze"])}
			}},
			{name: "PROGRAMS", enter: func() {
				s.list, s.reviewing = nil, true
				s.show(MSG_REVIEW_PROMPT)
			}},
		}},
		{name: "SYSTEM SETUP", children: []kpItem{
			{name: "LABEL AUX"},
			{name: "FRZ PROTECT", children: []kpItem{
				{name: "TEMP SETTING", field: "freeze"},
			}},
			{name: "DIAGNOSTICS", review: func() []string {
				return []string{"RS-6 COMBO REV T.2", "CPU OK", "BATTERY OK"}
			}},
		}},
		{name: "SET AQUAPURE", children: []kpItem{
			{name: "SET POOL SP", field: "swg"},
		}},
	}
}

func (s *keypadSim) show(text string) {
	s.r.scr.ApplyMessage(text)
	s.r.proj.OnKeypadMessage(text)
}

// edit opens the numeric field name
func (s *keypadSim) edit(name string) {
	s.list, s.field, s.value = nil, name, s.vals[name]
	s.show(fmt.Sprintf(kpFields[name].format, s.value))
}

// hours lists the SET TIME hour entries, midnight first
func (s *keypadSim) hours() {
	s.field, s.list, s.cursor = "", nil, 0
	for h := 0; h < 24; h++ {
		h := h
		s.list = append(s.list, kpItem{name: hourItem(h), enter: func() {
			s.vals["hour"] = h
			s.edit("minute")
		}})
	}
	s.show(s.list[0].name)
}

// store saves the edited field and shows what the panel shows next
func (s *keypadSim) store() {
	f := kpFields[s.field]
	s.vals[s.field] = s.value
	s.field = ""
	switch f.next {
	case "":
		s.show(fmt.Sprintf(f.confirm, s.value))
	case "hour":
		s.hours()
	default:
		s.edit(f.next)
	}
}

// program is the review line for one button
func (s *keypadSim) program(code uint8) string {
	dev, _ := s.r.st.Snapshot().Devices.ByKey(code)
	if code == jandy.KEY_PUMP {
		return dev.Label + " TURNS ON 8:00A"
	}
	return dev.Label + " NOT SET"
}

func (s *keypadSim) handle(code uint8) {
	if code == jandy.KEY_MENU && s.gate != nil {
		s.menuSeen <- struct{}{}
		<-s.gate
		s.gate = nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.reviewing && code != jandy.KEY_ENTER && code != jandy.KEY_MENU {
		for _, k := range programKeys {
			if k == code {
				s.show(s.program(code))
				s.show(MSG_REVIEW_PROMPT)
				return
			}
		}
	}

	switch code {
	case jandy.KEY_MENU:
		s.list, s.cursor, s.field, s.reviewing = s.menu(), -1, "", false
		s.show(MSG_MENU_READY)

	case jandy.KEY_RIGHT, jandy.KEY_LEFT:
		delta := 1
		if code == jandy.KEY_LEFT {
			delta = -1
		}
		if s.field != "" {
			s.value += delta * kpFields[s.field].step
			s.show(fmt.Sprintf(kpFields[s.field].format, s.value))
			return
		}
		if len(s.list) == 0 {
			return
		}
		s.cursor = (s.cursor + delta + len(s.list)) % len(s.list)
		s.show(s.list[s.cursor].name)

	case jandy.KEY_ENTER:
		if s.reviewing {
			s.reviewing = false
			s.show("")
			return
		}
		if s.field != "" {
			s.store()
			return
		}
		if s.cursor < 0 || s.cursor >= len(s.list) {
			return
		}
		it := s.list[s.cursor]
		switch {
		case it.enter != nil:
			it.enter()
		case len(it.children) > 0:
			s.list, s.cursor = it.children, 0
			s.show(it.children[0].name)
		case it.field != "":
			s.edit(it.field)
		case it.review != nil:
			s.list = nil
			for _, line := range it.review() {
				s.show(line)
			}
		}

	case jandy.KEY_CANCEL:
		s.list, s.field, s.reviewing = nil, "", false
		s.show("")

	default:
		dev, ok := s.r.st.Snapshot().Devices.ByKey(code)
		if !ok {
			return
		}
		led := devices.LED_ON
		if s.r.st.LED(dev.Index).IsOn() {
			led = devices.LED_OFF
		}
		s.r.st.SetLED(dev.Index, led)
	}
}

// val reads one stored panel value
func (s *keypadSim) val(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.vals[name]
}

func (s *keypadSim) setpoints() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.vals["pool"], s.vals["spa"]
}

func newKeypadRig(t *testing.T) (*rig, *keypadSim, *poller) {
	r := newRig(t, MODE_KEYPAD, testTiming())
	sim := newKeypadSim(r)
	p := r.startPoller(t, sim.handle, nil)
	return r, sim, p
}

// ============================================================
// Keypad Operation Tests
// ============================================================

func TestKeypad_SetPoolHeater(t *testing.T) {
	r, sim, p := newKeypadRig(t)

	if err := do(t, r, Request{Kind: session.KIND_SET_POOL_HEATER_TEMP, Value: 84}); err != nil {
		t.Fatalf("set pool heater error = %v", err)
	}

	if pool, _ := sim.setpoints(); pool != 84 {
		t.Errorf("panel pool setpoint = %d, want 84", pool)
	}
	if got := r.st.Snapshot().PoolSetpoint; got != 84 {
		t.Errorf("state PoolSetpoint = %d, want 84", got)
	}
	if n := p.Count(jandy.KEY_MENU); n != 1 {
		t.Errorf("MENU pressed %d times, want 1", n)
	}
	if r.sup.Active() {
		t.Error("session still held")
	}
}

func TestKeypad_SetSpaHeaterClamped(t *testing.T) {
	r, sim, _ := newKeypadRig(t)

	if err := do(t, r, Request{Kind: session.KIND_SET_SPA_HEATER_TEMP, Value: 150}); err != nil {
		t.Fatalf("set spa heater error = %v", err)
	}
	if _, spa := sim.setpoints(); spa != HEATER_MAX_F-1 {
		t.Errorf("panel spa setpoint = %d, want %d", spa, HEATER_MAX_F-1)
	}
}

func TestKeypad_SetFreezeProtect(t *testing.T) {
	r, sim, _ := newKeypadRig(t)

	if err := do(t, r, Request{Kind: session.KIND_SET_FREEZE_PROTECT_TEMP, Value: 40}); err != nil {
		t.Fatalf("set freeze error = %v", err)
	}
	if freeze := sim.val("freeze"); freeze != 40 {
		t.Errorf("panel freeze setpoint = %d, want 40", freeze)
	}
	if r.sup.Active() {
		t.Error("session still held")
	}
}

func TestKeypad_SetSWGRounded(t *testing.T) {
	r, sim, p := newKeypadRig(t)
	r.st.SetLED(devices.SPA, devices.LED_OFF)

	if err := do(t, r, Request{Kind: session.KIND_SET_SWG_PERCENT, Value: 42}); err != nil {
		t.Fatalf("set swg error = %v", err)
	}
	if swg := sim.val("swg"); swg != 40 {
		t.Errorf("panel swg = %d, want 40", swg)
	}
	// 20 to 40 in steps of five
	if n := p.Count(jandy.KEY_LEFT); n != 0 {
		t.Errorf("LEFT pressed %d times, want 0", n)
	}
}

func TestKeypad_SetTime(t *testing.T) {
	r, sim, _ := newKeypadRig(t)

	at := time.Date(2026, time.October, 17, 15, 42, 0, 0, time.Local)
	if err := do(t, r, Request{Kind: session.KIND_SET_TIME, Time: at}); err != nil {
		t.Fatalf("set time error = %v", err)
	}
	want := map[string]int{"year": 2026, "month": 10, "day": 17, "hour": 15, "minute": 42}
	for field, v := range want {
		if got := sim.val(field); got != v {
			t.Errorf("panel %s = %d, want %d", field, got, v)
		}
	}
}

func TestKeypad_GetDiagnostics(t *testing.T) {
	r, _, _ := newKeypadRig(t)

	start := time.Now()
	if err := do(t, r, Request{Kind: session.KIND_GET_DIAGNOSTICS}); err != nil {
		t.Fatalf("diagnostics error = %v", err)
	}
	// The lines arrive together with the ENTER reply, then the panel goes quiet
	got := r.st.Snapshot().Diagnostics
	want := []string{"RS-6 COMBO REV T.2", "CPU OK", "BATTERY OK"}
	if len(got) != len(want) {
		t.Fatalf("Diagnostics = %q, want %q", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Diagnostics[%d] = %q, want %q", i, got[i], want[i])
		}
	}
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Errorf("diagnostics took %v, want the quiet period to end it", elapsed)
	}
	if r.sup.Active() {
		t.Error("session still held")
	}
}

func TestKeypad_GetPrograms(t *testing.T) {
	r, _, p := newKeypadRig(t)
	r.st.SetLED(devices.PUMP, devices.LED_OFF)

	if err := do(t, r, Request{Kind: session.KIND_GET_PROGRAMS}); err != nil {
		t.Fatalf("programs error = %v", err)
	}
	programs := r.st.Snapshot().Programs
	if len(programs) != len(programKeys) {
		t.Fatalf("Programs = %q, want %d entries", programs, len(programKeys))
	}
	if programs[0] != "Filter Pump TURNS ON 8:00A" {
		t.Errorf("Programs[0] = %q", programs[0])
	}
	for _, line := range programs[1:] {
		if !strings.HasSuffix(line, MSG_PROGRAM_NONE) {
			t.Errorf("program %q, want NOT SET", line)
		}
	}
	for _, key := range programKeys {
		if n := p.Count(key); n != 1 {
			t.Errorf("key 0x%02X pressed %d times, want 1", key, n)
		}
	}
	// Reviewing never toggles equipment
	if got := r.st.LED(devices.PUMP); got != devices.LED_OFF {
		t.Errorf("pump LED = %s, want OFF", got)
	}
}

func TestKeypad_SubMenuQuietPanel(t *testing.T) {
	timing := testTiming()
	timing.SubMenuTries = 3
	r := newRig(t, MODE_KEYPAD, timing)
	// A panel that opens the menu and then ignores every other key
	r.startPoller(t, func(code uint8) {
		if code == jandy.KEY_MENU {
			r.scr.ApplyMessage(MSG_MENU_READY)
		}
	}, nil)

	start := time.Now()
	err := do(t, r, Request{Kind: session.KIND_GET_DIAGNOSTICS})
	if errcode.Of(err) != errcode.NotFound {
		t.Errorf("error = %v, want NotFound", err)
	}
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Errorf("gave up after %v, want the quiet period per key", elapsed)
	}
}

func TestKeypad_NumericFieldStepBound(t *testing.T) {
	timing := testTiming()
	timing.NumericMaxSteps = 4
	r := newRig(t, MODE_KEYPAD, timing)
	sim := newKeypadSim(r)
	p := r.startPoller(t, sim.handle, nil)

	err := do(t, r, Request{Kind: session.KIND_SET_POOL_HEATER_TEMP, Value: 90})
	if errcode.Of(err) != errcode.NotFound {
		t.Errorf("error = %v, want NotFound", err)
	}
	// three RIGHTs reach SET TEMP, then four steps on the field
	if n := p.Count(jandy.KEY_RIGHT); n != 7 {
		t.Errorf("RIGHT pressed %d times, want 7", n)
	}
	if pool, _ := sim.setpoints(); pool != 80 {
		t.Errorf("panel pool setpoint = %d, want 80 unchanged", pool)
	}
}

func TestKeypad_GetHeaterTemps(t *testing.T) {
	r, _, _ := newKeypadRig(t)

	if err := do(t, r, Request{Kind: session.KIND_GET_HEATER_TEMPS}); err != nil {
		t.Fatalf("get heater temps error = %v", err)
	}
	d := r.st.Snapshot()
	if d.PoolSetpoint != 80 || d.SpaSetpoint != 100 {
		t.Errorf("setpoints = %d/%d, want 80/100", d.PoolSetpoint, d.SpaSetpoint)
	}
}

func TestKeypad_ConcurrentOperations(t *testing.T) {
	r, sim, _ := newKeypadRig(t)

	freeze := r.eng.Submit(Request{Kind: session.KIND_GET_FREEZE_PROTECT_TEMP})
	spa := r.eng.Submit(Request{Kind: session.KIND_SET_SPA_HEATER_TEMP, Value: 102})

	for name, task := range map[string]*Task{"freeze": freeze, "spa": spa} {
		select {
		case <-task.Done():
		case <-time.After(10 * time.Second):
			t.Fatalf("%s did not finish", name)
		}
		if err := task.Err(); err != nil {
			t.Errorf("%s error = %v", name, err)
		}
	}

	if got := r.st.Snapshot().FreezeSetpoint; got != 38 {
		t.Errorf("FreezeSetpoint = %d, want 38", got)
	}
	if _, got := sim.setpoints(); got != 102 {
		t.Errorf("panel spa setpoint = %d, want 102", got)
	}
	if r.sup.Active() {
		t.Error("session still held")
	}
}

func TestKeypad_SharedReads(t *testing.T) {
	r := newRig(t, MODE_KEYPAD, testTiming())
	sim := newKeypadSim(r)
	sim.gate = make(chan struct{})
	p := r.startPoller(t, sim.handle, nil)

	first := r.eng.Submit(Request{Kind: session.KIND_GET_HEATER_TEMPS})
	select {
	case <-sim.menuSeen:
	case <-time.After(2 * time.Second):
		t.Fatal("first read never pressed MENU")
	}
	second := r.eng.Submit(Request{Kind: session.KIND_GET_HEATER_TEMPS})
	time.Sleep(50 * time.Millisecond)
	close(sim.gate)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, task := range []*Task{first, second} {
		if err := task.Wait(ctx); err != nil {
			t.Fatalf("read error = %v", err)
		}
	}
	if n := p.Count(jandy.KEY_MENU); n != 1 {
		t.Errorf("MENU pressed %d times, want 1 shared run", n)
	}
}

func TestKeypad_DeviceOnOffIdempotent(t *testing.T) {
	r, _, p := newKeypadRig(t)
	r.st.SetLED(devices.PUMP, devices.LED_OFF)

	if err := do(t, r, Request{Kind: session.KIND_DEVICE_ON_OFF, Device: "pump", On: true}); err != nil {
		t.Fatalf("pump on error = %v", err)
	}
	eventually(t, "pump LED on", func() bool { return r.st.LED(devices.PUMP) == devices.LED_ON })

	if err := do(t, r, Request{Kind: session.KIND_DEVICE_ON_OFF, Device: "pump", On: true}); err != nil {
		t.Fatalf("second pump on error = %v", err)
	}
	if n := p.Count(jandy.KEY_PUMP); n != 1 {
		t.Errorf("PUMP pressed %d times, want 1", n)
	}

	// Enabled heaters count as on
	r.st.SetLED(devices.POOL_HEAT, devices.LED_ENABLE)
	if err := do(t, r, Request{Kind: session.KIND_DEVICE_ON_OFF, Device: "pool_heater", On: true}); err != nil {
		t.Fatalf("heater on error = %v", err)
	}
	if n := p.Count(jandy.KEY_POOL_HTR); n != 0 {
		t.Errorf("POOL_HTR pressed %d times, want 0", n)
	}
}

func TestKeypad_LightModeWithPause(t *testing.T) {
	r, _, p := newKeypadRig(t)
	r.eng.sleep = func(context.Context, time.Duration) error { return nil }
	r.st.SetLED(devices.AUX1, devices.LED_OFF)

	lt := LightTiming{InitialOn: time.Millisecond, InitialOff: time.Millisecond, Pause: time.Millisecond}
	err := do(t, r, Request{Kind: session.KIND_SET_LIGHT_COLOR_MODE, Device: "aux1", Value: 3, Light: &lt})
	if err != nil {
		t.Fatalf("light mode error = %v", err)
	}
	// on, reset, then 2*3-1 pulses
	if n := p.Count(jandy.KEY_AUX1); n != 7 {
		t.Errorf("AUX1 pressed %d times, want 7", n)
	}
}

func TestKeypad_LightOff(t *testing.T) {
	r, _, p := newKeypadRig(t)
	r.st.SetLED(devices.AUX2, devices.LED_OFF)

	if err := do(t, r, Request{Kind: session.KIND_SET_LIGHT_COLOR_MODE, Device: "aux2", Value: 0}); err != nil {
		t.Fatalf("light off error = %v", err)
	}
	if n := p.Count(jandy.KEY_AUX2); n != 0 {
		t.Errorf("AUX2 pressed %d times for a light already off", n)
	}
}

func TestKeypad_NumericFieldNotShown(t *testing.T) {
	timing := testTiming()
	timing.OperationTimeout = time.Second
	r := newRig(t, MODE_KEYPAD, timing)
	// A panel that opens the menu but never lists anything
	r.startPoller(t, func(code uint8) {
		if code == jandy.KEY_MENU {
			r.scr.ApplyMessage(MSG_MENU_READY)
		} else if code == jandy.KEY_RIGHT {
			r.scr.ApplyMessage("HELP")
		}
	}, nil)

	err := do(t, r, Request{Kind: session.KIND_SET_POOL_HEATER_TEMP, Value: 84})
	if errcode.Of(err) != errcode.NotFound {
		t.Errorf("error = %v, want NotFound", err)
	}
}
