// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package navigator

import (
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/Thermoquad/aquastat/pkg/devices"
	"github.com/Thermoquad/aquastat/pkg/errcode"
	"github.com/Thermoquad/aquastat/pkg/jandy"
	"github.com/Thermoquad/aquastat/pkg/screen"
	"github.com/Thermoquad/aquastat/pkg/session"
	"github.com/Thermoquad/aquastat/pkg/state"
)

// pdaSim is a small PDA remote: a few menus with a selection bar, editable
// setpoints and an equipment list.
type pdaSim struct {
	r *rig

	mu      sync.Mutex
	cur     string
	cursor  int
	editing bool
	pool    int
	spa     int
	freeze  int
	swgPool int
	swgSpa  int
	on      map[string]bool
	boot    int // idle polls before the firmware page gives way to HOME

	labels     [7]string // panel names of AUX1..AUX7
	aux        int       // AUX number on the label page
	noAquaPure bool      // SET AquaPure leads nowhere
}

var pdaParents = map[string]string{
	"main":      "home",
	"equipment": "home",
	"settemp":   "main",
	"setup":     "main",
	"freeze":    "setup",
	"aquapure":  "main",
	"labelaux":  "setup",
	"auxdev":    "labelaux",
}

var pdaEquipment = []string{"FILTER PUMP", "SPA", "POOL HEAT", "SPA HEAT", "AUX1"}

func newPDASim(r *rig, start string) *pdaSim {
	s := &pdaSim{
		r: r, pool: 80, spa: 100, freeze: 38, swgPool: 20, swgSpa: 30,
		on: map[string]bool{}, boot: 20,
		labels: [7]string{"POOL LIGHT", "SPA LIGHT", "WATERFALL", "BLOWER", "CLEANER", "", "HEATER PUMP"},
	}
	s.show(start)
	return s
}

// render returns the lines of a page and its selectable range
func (s *pdaSim) render(name string) (lines [jandy.SCREEN_LINES]string, first, last int) {
	switch name {
	case "fw":
		lines[1] = " PDA-P4 Only"
		lines[3] = "Firmware Version"
		lines[5] = "REV T.2"
		return lines, -1, -1
	case "home":
		lines[1] = "AIR         POOL"
		lines[7] = "EQUIPMENT ON/OFF"
		lines[8] = "MENU"
		return lines, 7, 8
	case "main":
		lines[0] = "   MAIN MENU    "
		lines[1] = "SET TEMP"
		lines[2] = "SET TIME"
		lines[3] = "SET AquaPure"
		lines[4] = "SYSTEM SETUP"
		return lines, 1, 4
	case "settemp":
		lines[0] = "    SET TEMP    "
		lines[2] = fmt.Sprintf("POOL HEAT %3d`F", s.pool)
		lines[3] = fmt.Sprintf("SPA HEAT  %3d`F", s.spa)
		return lines, 2, 3
	case "setup":
		lines[0] = "  SYSTEM SETUP  "
		lines[1] = "FREEZE PROTECT"
		lines[2] = "LABEL AUX"
		return lines, 1, 2
	case "freeze":
		lines[0] = " FREEZE PROTECT "
		lines[2] = fmt.Sprintf("TEMP      %2d`F", s.freeze)
		lines[6] = "Use ARROW KEYS  "
		return lines, 2, 2
	case "aquapure":
		lines[0] = "  SET AquaPure  "
		lines[2] = fmt.Sprintf("SET POOL TO: %d%%", s.swgPool)
		lines[3] = fmt.Sprintf("SET SPA TO:  %d%%", s.swgSpa)
		return lines, 2, 3
	case "labelaux":
		lines[0] = "   LABEL AUX    "
		for i := range s.labels {
			lines[i+1] = fmt.Sprintf("AUX%d", i+1)
		}
		return lines, 1, len(s.labels)
	case "auxdev":
		lines[0] = fmt.Sprintf("   LABEL AUX%d", s.aux)
		lines[2] = "  CURRENT LABEL "
		lines[3] = s.labels[s.aux-1]
		lines[5] = "  NEW LABEL"
		return lines, 5, 5
	case "equipment":
		lines[0] = "   EQUIPMENT    "
		for i, label := range pdaEquipment {
			mark := "OFF"
			if s.on[label] {
				mark = "ON"
			}
			lines[i+1] = fmt.Sprintf("%-13s%3s", label, mark)
		}
		lines[len(pdaEquipment)+1] = "ALL OFF"
		return lines, 1, len(pdaEquipment) + 1
	}
	return lines, -1, -1
}

// show clears and paints a page the way the panel does, then selects
// its first item
func (s *pdaSim) show(name string) {
	s.cur, s.editing = name, false
	lines, first, _ := s.render(name)
	s.cursor = first

	s.r.scr.ApplyClear()
	for i, l := range lines {
		s.r.scr.ApplyLineUpdate(i, l)
	}
	for i, l := range lines {
		if l != "" {
			s.r.proj.OnLine(uint8(i), l)
		}
	}
	if first >= 0 {
		s.r.scr.ApplyHighlight(first)
	}
}

func (s *pdaSim) repaint(index int) {
	lines, _, _ := s.render(s.cur)
	s.r.scr.ApplyLineUpdate(index, lines[index])
	s.r.proj.OnLine(uint8(index), lines[index])
}

func (s *pdaSim) idle() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cur == "fw" {
		if s.boot--; s.boot <= 0 {
			s.show("home")
		}
	}
}

func (s *pdaSim) handle(code uint8) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lines, first, last := s.render(s.cur)
	selected := ""
	if s.cursor >= 0 {
		selected = strings.TrimSpace(lines[s.cursor])
	}

	switch code {
	case jandy.KEY_PDA_UP, jandy.KEY_PDA_DOWN:
		delta := 1
		if code == jandy.KEY_PDA_UP {
			delta = -1
		}
		if s.editing {
			switch s.cur {
			case "settemp":
				if strings.HasPrefix(selected, "POOL") {
					s.pool -= delta
				} else {
					s.spa -= delta
				}
			case "freeze":
				s.freeze -= delta
			case "aquapure":
				if strings.HasPrefix(selected, "SET POOL") {
					s.swgPool -= delta * SWG_STEP
				} else {
					s.swgSpa -= delta * SWG_STEP
				}
			}
			s.repaint(s.cursor)
			return
		}
		if first < 0 {
			return
		}
		s.cursor += delta
		if s.cursor < first {
			s.cursor = first
		} else if s.cursor > last {
			s.cursor = last
		}
		s.r.scr.ApplyHighlight(s.cursor)

	case jandy.KEY_PDA_SELECT:
		if s.editing {
			s.editing = false
			s.repaint(s.cursor)
			return
		}
		switch s.cur {
		case "home":
			if selected == "MENU" {
				s.show("main")
			} else {
				s.show("equipment")
			}
		case "main":
			switch selected {
			case "SET TEMP":
				s.show("settemp")
			case "SYSTEM SETUP":
				s.show("setup")
			case "SET AquaPure":
				if !s.noAquaPure {
					s.show("aquapure")
				}
			}
		case "setup":
			switch selected {
			case "FREEZE PROTECT":
				s.show("freeze")
			case "LABEL AUX":
				s.show("labelaux")
			}
		case "labelaux":
			s.aux = s.cursor
			s.show("auxdev")
		case "settemp", "freeze", "aquapure":
			s.editing = true
		case "equipment":
			label := strings.TrimSpace(lines[s.cursor][:13])
			if label != "ALL OFF" {
				s.on[label] = !s.on[label]
				s.repaint(s.cursor)
			}
		}

	case jandy.KEY_PDA_BACK:
		if s.editing {
			s.editing = false
			return
		}
		if parent, ok := pdaParents[s.cur]; ok {
			s.show(parent)
		} else {
			s.show(s.cur)
		}
	}
}

func (s *pdaSim) values() (pool, spa, freeze int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pool, s.spa, s.freeze
}

func (s *pdaSim) swg() (pool, spa int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.swgPool, s.swgSpa
}

func (s *pdaSim) isOn(label string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.on[label]
}

func newPDARig(t *testing.T, start string) (*rig, *pdaSim, *poller) {
	r := newRig(t, MODE_PDA, testTiming())
	sim := newPDASim(r, start)
	p := r.startPoller(t, sim.handle, sim.idle)
	return r, sim, p
}

// ============================================================
// PDA Operation Tests
// ============================================================

func TestPDA_SetPoolHeater(t *testing.T) {
	r, sim, _ := newPDARig(t, "home")

	if err := do(t, r, Request{Kind: session.KIND_SET_POOL_HEATER_TEMP, Value: 84}); err != nil {
		t.Fatalf("set pool heater error = %v", err)
	}
	if pool, _, _ := sim.values(); pool != 84 {
		t.Errorf("panel pool setpoint = %d, want 84", pool)
	}
	eventually(t, "state pool setpoint", func() bool { return r.st.Snapshot().PoolSetpoint == 84 })
}

func TestPDA_SetSpaHeaterFromDeepMenu(t *testing.T) {
	r, sim, p := newPDARig(t, "freeze")

	if err := do(t, r, Request{Kind: session.KIND_SET_SPA_HEATER_TEMP, Value: 97}); err != nil {
		t.Fatalf("set spa heater error = %v", err)
	}
	if _, spa, _ := sim.values(); spa != 97 {
		t.Errorf("panel spa setpoint = %d, want 97", spa)
	}
	if p.Count(jandy.KEY_PDA_BACK) < 3 {
		t.Errorf("BACK pressed %d times, want at least 3 to reach HOME", p.Count(jandy.KEY_PDA_BACK))
	}
}

func TestPDA_SetSetpointAlreadyEqual(t *testing.T) {
	r, _, p := newPDARig(t, "home")
	r.st.Update(func(d *state.Data) { d.PoolSetpoint = 80 })

	if err := do(t, r, Request{Kind: session.KIND_SET_POOL_HEATER_TEMP, Value: 80}); err != nil {
		t.Fatalf("set pool heater error = %v", err)
	}
	if keys := p.Keys(); len(keys) != 0 {
		t.Errorf("keys = %X, want none", keys)
	}
}

func TestPDA_SetFreeze(t *testing.T) {
	r, sim, _ := newPDARig(t, "home")

	if err := do(t, r, Request{Kind: session.KIND_SET_FREEZE_PROTECT_TEMP, Value: 50}); err != nil {
		t.Fatalf("set freeze error = %v", err)
	}
	if _, _, freeze := sim.values(); freeze != FREEZE_MAX_F {
		t.Errorf("panel freeze setpoint = %d, want %d", freeze, FREEZE_MAX_F)
	}
}

func TestPDA_DeviceOnOff(t *testing.T) {
	r, sim, p := newPDARig(t, "home")

	if err := do(t, r, Request{Kind: session.KIND_DEVICE_ON_OFF, Device: "spa", On: true}); err != nil {
		t.Fatalf("spa on error = %v", err)
	}
	if !sim.isOn("SPA") || sim.isOn("SPA HEAT") {
		t.Error("wrong equipment row toggled")
	}
	eventually(t, "spa LED on", func() bool { return r.st.LED(devices.SPA) == devices.LED_ON })

	selects := p.Count(jandy.KEY_PDA_SELECT)
	if err := do(t, r, Request{Kind: session.KIND_DEVICE_ON_OFF, Device: "spa", On: true}); err != nil {
		t.Fatalf("second spa on error = %v", err)
	}
	if p.Count(jandy.KEY_PDA_SELECT) != selects {
		t.Error("device already on was toggled again")
	}
}

func TestPDA_DeviceStatus(t *testing.T) {
	r, _, _ := newPDARig(t, "home")
	r.st.SetLED(devices.PUMP, devices.LED_UNKNOWN)

	if err := do(t, r, Request{Kind: session.KIND_DEVICE_STATUS}); err != nil {
		t.Fatalf("device status error = %v", err)
	}
	if got := r.st.LED(devices.PUMP); got != devices.LED_OFF {
		t.Errorf("pump LED = %s, want OFF", got)
	}
	if m := r.scr.Classify(); m != screen.MENU_HOME {
		t.Errorf("ended on %s, want HOME", m)
	}
}

func TestPDA_Init(t *testing.T) {
	r, _, _ := newPDARig(t, "fw")

	if err := do(t, r, Request{Kind: session.KIND_PDA_INIT}); err != nil {
		t.Fatalf("init error = %v", err)
	}
	d := r.st.Snapshot()
	if d.Panel != state.PANEL_PDA {
		t.Errorf("Panel = %s, want PDA", d.Panel)
	}
	if d.Version != "PDA-P4 Only REV T.2" {
		t.Errorf("Version = %q", d.Version)
	}
	if d.PoolSetpoint != 80 || d.SpaSetpoint != 100 || d.FreezeSetpoint != 38 {
		t.Errorf("setpoints = %d/%d/%d, want 80/100/38", d.PoolSetpoint, d.SpaSetpoint, d.FreezeSetpoint)
	}
	if m := r.scr.Classify(); m != screen.MENU_HOME {
		t.Errorf("ended on %s, want HOME", m)
	}
}

func TestPDA_AquaPalmHasNoFreezeMenu(t *testing.T) {
	r, _, _ := newPDARig(t, "home")
	r.st.Update(func(d *state.Data) { d.Panel = state.PANEL_AQUAPALM })

	for _, kind := range []session.Kind{session.KIND_GET_FREEZE_PROTECT_TEMP, session.KIND_SET_FREEZE_PROTECT_TEMP} {
		err := do(t, r, Request{Kind: kind, Value: 38})
		if errcode.Of(err) != errcode.Unsupported {
			t.Errorf("%s error = %v, want Unsupported", kind, err)
		}
	}
}

func TestPDA_MissingItemIsNotFound(t *testing.T) {
	r, sim, _ := newPDARig(t, "home")
	sim.mu.Lock()
	sim.noAquaPure = true
	sim.mu.Unlock()

	err := do(t, r, Request{Kind: session.KIND_SET_SWG_PERCENT, Value: 50})
	if errcode.Of(err) != errcode.NotFound {
		t.Errorf("error = %v, want NotFound", err)
	}
	if r.sup.Active() {
		t.Error("session still held")
	}
}

func TestPDA_SetSWG(t *testing.T) {
	r, sim, p := newPDARig(t, "home")
	r.st.SetLED(devices.SPA, devices.LED_OFF)

	if err := do(t, r, Request{Kind: session.KIND_SET_SWG_PERCENT, Value: 43}); err != nil {
		t.Fatalf("set swg error = %v", err)
	}
	if pool, spa := sim.swg(); pool != 45 || spa != 30 {
		t.Errorf("panel swg = %d/%d, want 45/30", pool, spa)
	}
	// 20 to 45 in steps of five
	if n := p.Count(jandy.KEY_PDA_UP); n != 5 {
		t.Errorf("UP pressed %d times, want 5", n)
	}
	eventually(t, "state swg percent", func() bool { return r.st.Snapshot().SWGPercent == 45 })
}

func TestPDA_SetSWGSpaRunning(t *testing.T) {
	r, sim, _ := newPDARig(t, "home")
	r.st.SetLED(devices.SPA, devices.LED_ON)

	if err := do(t, r, Request{Kind: session.KIND_SET_SWG_PERCENT, Value: 20}); err != nil {
		t.Fatalf("set swg error = %v", err)
	}
	if pool, spa := sim.swg(); pool != 20 || spa != 20 {
		t.Errorf("panel swg = %d/%d, want 20/20", pool, spa)
	}
}

func TestPDA_GetAuxLabels(t *testing.T) {
	r, _, p := newPDARig(t, "home")

	if err := do(t, r, Request{Kind: session.KIND_GET_AUX_LABELS}); err != nil {
		t.Fatalf("aux labels error = %v", err)
	}
	d := r.st.Snapshot()
	want := map[int]string{
		devices.AUX1: "POOL LIGHT",
		devices.AUX3: "WATERFALL",
		devices.AUX7: "HEATER PUMP",
	}
	for idx, label := range want {
		if got := d.Devices[idx].MenuLabel; got != label {
			t.Errorf("device %d MenuLabel = %q, want %q", idx, got, label)
		}
	}
	// A blank panel label keeps the configured one
	if got, def := d.Devices[devices.AUX6].MenuLabel, devices.Default()[devices.AUX6].MenuLabel; got != def {
		t.Errorf("AUX6 MenuLabel = %q, want %q", got, def)
	}
	if n := p.Count(jandy.KEY_PDA_BACK); n < 7 {
		t.Errorf("BACK pressed %d times, want at least 7", n)
	}
	if m := r.scr.Classify(); m != screen.MENU_HOME {
		t.Errorf("ended on %s, want HOME", m)
	}
}

func TestDefaultMenuPaths(t *testing.T) {
	paths := DefaultMenuPaths()
	for _, m := range []screen.MenuID{screen.MENU_FREEZE_PROTECT, screen.MENU_AUX_LABEL, screen.MENU_SYSTEM_SETUP} {
		if !paths[m].PDAOnly {
			t.Errorf("%s should be PDA only", m)
		}
	}
	setTemp := paths[screen.MENU_SET_TEMP].Steps
	if len(setTemp) != 2 || setTemp[1].AnyKeyText == "" {
		t.Errorf("SET_TEMP steps = %+v", setTemp)
	}
}
