// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package navigator

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/Thermoquad/aquastat/pkg/devices"
	"github.com/Thermoquad/aquastat/pkg/errcode"
	"github.com/Thermoquad/aquastat/pkg/jandy"
	"github.com/Thermoquad/aquastat/pkg/screen"
	"github.com/Thermoquad/aquastat/pkg/session"
	"github.com/Thermoquad/aquastat/pkg/state"
)

// PDA traversal bounds, in screen updates unless noted
const (
	PDA_SETTLE_UPDATES   = 50
	PDA_BACK_TRIES       = 5 // BACK presses while heading home
	PDA_CLEAR_UPDATES    = 10
	PDA_REPAINT_UPDATES  = 15
	PDA_ANYKEY_UPDATES   = 20
	PDA_PAGE_TRIES       = 20 // DOWN presses while paging a list
	PDA_HIGHLIGHT_WAIT   = 10
	PDA_FIELD_TRIES      = 10
	PDA_DEVICE_LIST_MAX  = 18
	PDA_LABEL_WIDTH      = 13
	PDA_FIELD_LABEL_SIZE = 8
)

// PDA_MORE_MARKER on the last line means the list continues below
const PDA_MORE_MARKER = "   ^^ MORE"

// MenuStep selects one item on the way to a menu
type MenuStep struct {
	Item string `yaml:"item"`

	// Some panels show a "press ANY key" page after the item. When Text
	// appears on Line, SELECT is pressed to get past it.
	AnyKeyText string `yaml:"any_key_text,omitempty"`
	AnyKeyLine int    `yaml:"any_key_line,omitempty"`
}

// MenuPath is how to reach a menu from HOME
type MenuPath struct {
	Steps []MenuStep `yaml:"steps"`

	// PDAOnly paths do not exist on AquaPalm remotes
	PDAOnly bool `yaml:"pda_only,omitempty"`
}

func steps(items ...string) []MenuStep {
	out := make([]MenuStep, len(items))
	for i, it := range items {
		out[i] = MenuStep{Item: it}
	}
	return out
}

// DefaultMenuPaths returns the menu paths of PDA and AquaPalm firmware
func DefaultMenuPaths() map[screen.MenuID]MenuPath {
	return map[screen.MenuID]MenuPath{
		screen.MENU_EQUIPMENT_CONTROL: {Steps: steps("EQUIPMENT ON/OFF")},
		screen.MENU_SET_TEMP: {Steps: []MenuStep{
			{Item: "MENU"},
			{Item: "SET TEMP", AnyKeyText: "press ANY key", AnyKeyLine: 8},
		}},
		screen.MENU_SET_TIME:       {Steps: steps("MENU", "SET TIME")},
		screen.MENU_AQUAPURE:       {Steps: steps("MENU", "SET AquaPure")},
		screen.MENU_PALM_OPTIONS:   {Steps: steps("MENU", "PALM OPTIONS")},
		screen.MENU_SYSTEM_SETUP:   {Steps: steps("MENU", "SYSTEM SETUP"), PDAOnly: true},
		screen.MENU_FREEZE_PROTECT: {Steps: steps("MENU", "SYSTEM SETUP", "FREEZE PROTECT"), PDAOnly: true},
		screen.MENU_AUX_LABEL:      {Steps: steps("MENU", "SYSTEM SETUP", "LABEL AUX"), PDAOnly: true},
	}
}

func (e *Engine) pdaOperations() map[session.Kind]operation {
	return map[session.Kind]operation{
		session.KIND_SET_POOL_HEATER_TEMP:    func(ctx context.Context, r Request) error { return e.pdaSetHeater(ctx, true, r.Value) },
		session.KIND_SET_SPA_HEATER_TEMP:     func(ctx context.Context, r Request) error { return e.pdaSetHeater(ctx, false, r.Value) },
		session.KIND_SET_FREEZE_PROTECT_TEMP: e.pdaSetFreeze,
		session.KIND_SET_SWG_PERCENT:         e.pdaSetSWG,
		session.KIND_GET_HEATER_TEMPS:        e.pdaGetHeaterTemps,
		session.KIND_GET_FREEZE_PROTECT_TEMP: e.pdaGetFreeze,
		session.KIND_GET_AUX_LABELS:          e.pdaGetAuxLabels,
		session.KIND_DEVICE_ON_OFF:           e.pdaDeviceOnOff,
		session.KIND_DEVICE_STATUS:           e.pdaDeviceStatus,
		session.KIND_PDA_INIT:                e.pdaInit,
		session.KIND_PDA_WAKE_INIT:           e.pdaWakeInit,
	}
}

func (e *Engine) aquaPalm() bool {
	return e.st.Snapshot().Panel == state.PANEL_AQUAPALM
}

// ============================================================================
// Primitives
// ============================================================================

// pdaNextMenu waits for the clear and repaint that follow a menu change
func (e *Engine) pdaNextMenu(ctx context.Context, seq uint64) bool {
	cleared := false
	return e.scr.WaitSince(ctx, seq, 0, PDA_CLEAR_UPDATES+PDA_REPAINT_UPDATES, func(_ *screen.View, events []screen.Event) bool {
		for _, ev := range events {
			switch ev.Kind {
			case screen.EVENT_CLEAR:
				cleared = true
			case screen.EVENT_HIGHLIGHT, screen.EVENT_HIGHLIGHT_CHARS:
				if cleared {
					return true
				}
			}
		}
		return false
	})
}

// pdaPassAnyKey handles the optional "press ANY key" page after step
func (e *Engine) pdaPassAnyKey(ctx context.Context, seq uint64, step MenuStep) error {
	anyKey := false
	cleared := false
	e.scr.WaitSince(ctx, seq, 0, PDA_CLEAR_UPDATES+PDA_ANYKEY_UPDATES, func(v *screen.View, events []screen.Event) bool {
		for _, ev := range events {
			switch ev.Kind {
			case screen.EVENT_CLEAR:
				cleared = true
			case screen.EVENT_HIGHLIGHT, screen.EVENT_HIGHLIGHT_CHARS:
				if cleared && v.Highlight >= 0 {
					return true
				}
			}
		}
		if cleared && v.LineContains(step.AnyKeyLine, step.AnyKeyText) {
			anyKey = true
			return true
		}
		return false
	})
	if !anyKey {
		return nil
	}

	e.log.WithField("text", step.AnyKeyText).Debug("Passing notice page")
	seq = e.scr.Seq()
	if err := e.send(ctx, jandy.KEY_PDA_SELECT); err != nil {
		return err
	}
	e.pdaNextMenu(ctx, seq)
	return nil
}

// pdaMove presses UP or DOWN to walk the selection from line from to line to
func (e *Engine) pdaMove(ctx context.Context, from, to int) error {
	key, n := uint8(jandy.KEY_PDA_DOWN), to-from
	if n < 0 {
		key, n = jandy.KEY_PDA_UP, -n
	}
	for ; n > 0; n-- {
		if err := e.send(ctx, key); err != nil {
			return err
		}
	}
	return nil
}

// pdaFindItem selects the line starting with text, paging down when the
// list continues. width > 0 compares that many columns ignoring case.
func (e *Engine) pdaFindItem(ctx context.Context, text string, width int) error {
	find := func(v *screen.View) int { return v.FindLineIndex(text, width > 0, width) }

	v := e.scr.View()
	index := find(&v)
	if index < 0 {
		if !screen.PrefixFold(v.Lines[jandy.SCREEN_LINES-1], PDA_MORE_MARKER, len(PDA_MORE_MARKER)) {
			return notFound("find", "menu item %q not shown", text)
		}
		for j := 0; j < PDA_PAGE_TRIES && index < 0; j++ {
			seq := e.scr.Seq()
			if err := e.send(ctx, jandy.KEY_PDA_DOWN); err != nil {
				return err
			}
			e.scr.WaitForEventSince(ctx, seq, screen.Mask(screen.EVENT_HIGHLIGHT), 2)
			v = e.scr.View()
			index = find(&v)
		}
		if index < 0 {
			return notFound("find", "menu item %q not on any page", text)
		}
	}

	if err := e.pdaMove(ctx, e.scr.HighlightIndex(), index); err != nil {
		return err
	}
	if !e.scr.WaitForHighlightIndexEvents(ctx, index, PDA_HIGHLIGHT_WAIT) {
		return notFound("find", "selection never reached %q", text)
	}
	return nil
}

// pdaSelectItem finds and selects one item, then waits for the next menu
func (e *Engine) pdaSelectItem(ctx context.Context, step MenuStep) error {
	if err := e.pdaFindItem(ctx, step.Item, 0); err != nil {
		return err
	}
	seq := e.scr.Seq()
	if err := e.send(ctx, jandy.KEY_PDA_SELECT); err != nil {
		return err
	}
	e.log.WithField("item", step.Item).Debug("Selected menu item")
	if step.AnyKeyText != "" {
		return e.pdaPassAnyKey(ctx, seq, step)
	}
	e.pdaNextMenu(ctx, seq)
	return nil
}

// pdaGoto backs out to HOME, unless target is on the way, then follows
// the menu path to target
func (e *Engine) pdaGoto(ctx context.Context, target screen.MenuID) error {
	op := "goto " + target.String()

	settled := e.scr.WaitForCondition(ctx, func(v *screen.View) bool {
		m := v.Menu()
		return m != screen.MENU_FW_VERSION && m != screen.MENU_BUILDING_HOME
	}, PDA_SETTLE_UPDATES)
	if !settled {
		if err := ctxErr(ctx, op); err != nil {
			return err
		}
		return notFound(op, "panel is still starting up")
	}

	for i := 0; ; i++ {
		m := e.scr.Classify()
		if m == target || m == screen.MENU_HOME {
			break
		}
		if i >= PDA_BACK_TRIES {
			return notFound(op, "could not get back to HOME from %s", m)
		}
		seq := e.scr.Seq()
		if m == screen.MENU_BUILDING_HOME {
			e.scr.WaitForEventSince(ctx, seq, screen.Mask(screen.EVENT_HIGHLIGHT), PDA_REPAINT_UPDATES)
			continue
		}
		if err := e.send(ctx, jandy.KEY_PDA_BACK); err != nil {
			return err
		}
		e.pdaNextMenu(ctx, seq)
		if err := ctxErr(ctx, op); err != nil {
			return err
		}
	}

	if e.scr.Classify() == target {
		return nil
	}

	path, ok := e.paths[target]
	if !ok {
		return errcode.New(errcode.Unsupported, op, "no menu path")
	}
	if path.PDAOnly && e.aquaPalm() {
		return errcode.New(errcode.Unsupported, op, "AquaPalm has no such menu")
	}
	for _, step := range path.Steps {
		if err := e.pdaSelectItem(ctx, step); err != nil {
			return err
		}
	}

	if m := e.scr.Classify(); m != target {
		return notFound(op, "ended on %s", m)
	}
	e.log.WithField("menu", target).Debug("Reached menu")
	return nil
}

// pdaNumericField selects the field starting with label and steps it from
// current to target
func (e *Engine) pdaNumericField(ctx context.Context, label string, current, target, step int) error {
	for i := 0; !screen.PrefixFold(strings.TrimLeft(e.scr.HighlightedLine(), " "), label, PDA_FIELD_LABEL_SIZE); i++ {
		if i >= PDA_FIELD_TRIES {
			return notFound("numeric", "field %q not found", label)
		}
		seq := e.scr.Seq()
		if err := e.send(ctx, jandy.KEY_PDA_DOWN); err != nil {
			return err
		}
		e.scr.WaitForEventSince(ctx, seq, screen.Mask(screen.EVENT_HIGHLIGHT), 2)
	}

	if err := e.send(ctx, jandy.KEY_PDA_SELECT); err != nil {
		return err
	}

	log := e.log.WithFields(logrus.Fields{"field": label, "from": current, "to": target})
	if target == current {
		log.Info("Value already set")
		return e.send(ctx, jandy.KEY_PDA_BACK)
	}

	key, diff := uint8(jandy.KEY_PDA_UP), target-current
	if diff < 0 {
		key, diff = jandy.KEY_PDA_DOWN, -diff
	}
	presses := (diff + step - 1) / step
	log.WithField("presses", presses).Debug("Stepping value")
	for ; presses > 0; presses-- {
		if err := e.send(ctx, key); err != nil {
			return err
		}
	}
	return e.send(ctx, jandy.KEY_PDA_SELECT)
}

// pdaLoopDevices scrolls the equipment list to its end so every row is
// seen by the projector
func (e *Engine) pdaLoopDevices(ctx context.Context) error {
	if err := e.pdaGoto(ctx, screen.MENU_EQUIPMENT_CONTROL); err != nil {
		return err
	}
	for i := 0; i < PDA_DEVICE_LIST_MAX && e.scr.FindLineIndex("ALL OFF", false, 0) < 0; i++ {
		seq := e.scr.Seq()
		if err := e.send(ctx, jandy.KEY_PDA_DOWN); err != nil {
			return err
		}
		e.scr.WaitSince(ctx, seq, 0, 1, func(_ *screen.View, events []screen.Event) bool {
			return len(events) > 0
		})
	}
	return nil
}

// ============================================================================
// Operations
// ============================================================================

func (e *Engine) pdaSetHeater(ctx context.Context, pool bool, value int) error {
	d := e.st.Snapshot()
	sp, label, current := SETPOINT_SPA, "SPA HEAT", d.SpaSetpoint
	if pool {
		sp, label, current = SETPOINT_POOL, "POOL HEAT", d.PoolSetpoint
	}
	if d.SingleDevice {
		label = "TEMP2"
		if pool {
			label = "TEMP1"
		}
	}
	value = e.clamp(sp, value)
	if value == current {
		e.log.WithFields(logrus.Fields{"field": label, "value": value}).Info("Setpoint already set")
		return nil
	}

	if err := e.pdaGoto(ctx, screen.MENU_SET_TEMP); err != nil {
		return err
	}
	// Entering SET TEMP refreshes the stored setpoints
	if pool {
		current = e.st.Snapshot().PoolSetpoint
	} else {
		current = e.st.Snapshot().SpaSetpoint
	}
	if current == state.TEMP_UNKNOWN {
		return notFound("heater", "%s setpoint not shown", label)
	}
	return e.pdaNumericField(ctx, label, current, value, 1)
}

func (e *Engine) pdaSetFreeze(ctx context.Context, r Request) error {
	value := e.clamp(SETPOINT_FREEZE, r.Value)
	if err := e.pdaGoto(ctx, screen.MENU_FREEZE_PROTECT); err != nil {
		return err
	}
	current := e.st.Snapshot().FreezeSetpoint
	if current == state.TEMP_UNKNOWN {
		return notFound("freeze", "freeze setpoint not shown")
	}
	return e.pdaNumericField(ctx, "TEMP", current, value, 1)
}

func (e *Engine) pdaSetSWG(ctx context.Context, r Request) error {
	value := e.clamp(SETPOINT_SWG, r.Value)
	if err := e.pdaGoto(ctx, screen.MENU_AQUAPURE); err != nil {
		return err
	}
	label := "SET POOL"
	if e.st.LED(devices.SPA) != devices.LED_OFF {
		label = "SET SPA"
	}
	current := e.st.Snapshot().SWGPercent
	if current == state.TEMP_UNKNOWN {
		return notFound("swg", "salt generator percent not shown")
	}
	return e.pdaNumericField(ctx, label, current, value, SWG_STEP)
}

func (e *Engine) pdaGetHeaterTemps(ctx context.Context, _ Request) error {
	if err := e.pdaGoto(ctx, screen.MENU_SET_TEMP); err != nil {
		return err
	}
	return e.pdaGoto(ctx, screen.MENU_HOME)
}

func (e *Engine) pdaGetFreeze(ctx context.Context, _ Request) error {
	if e.aquaPalm() {
		return errcode.New(errcode.Unsupported, "freeze", "AquaPalm has no freeze protect menu")
	}
	if err := e.pdaGoto(ctx, screen.MENU_FREEZE_PROTECT); err != nil {
		return err
	}
	return e.pdaGoto(ctx, screen.MENU_HOME)
}

func (e *Engine) pdaDeviceOnOff(ctx context.Context, r Request) error {
	dev, err := e.device("device_on_off", r.Device)
	if err != nil {
		return err
	}

	label := dev.MenuLabel
	if e.st.Snapshot().SingleDevice {
		switch dev.Index {
		case devices.POOL_HEAT:
			label = "TEMP1"
		case devices.SPA_HEAT:
			label = "TEMP2"
		}
	}

	if err := e.pdaGoto(ctx, screen.MENU_EQUIPMENT_CONTROL); err != nil {
		return err
	}
	// Padding keeps "SPA" from matching "SPA HEAT"
	if err := e.pdaFindItem(ctx, devices.PaddedMenuLabel(label, PDA_LABEL_WIDTH), PDA_LABEL_WIDTH); err != nil {
		return err
	}

	log := e.log.WithFields(logrus.Fields{"device": dev.Name, "on": r.On})
	if e.st.LED(dev.Index).IsOn() == r.On {
		log.Info("Device already in requested state")
		return nil
	}
	log.Info("Toggling device")
	return e.send(ctx, jandy.KEY_PDA_SELECT)
}

func (e *Engine) pdaDeviceStatus(ctx context.Context, _ Request) error {
	if err := e.pdaLoopDevices(ctx); err != nil {
		return err
	}
	return e.pdaGoto(ctx, screen.MENU_HOME)
}

func (e *Engine) pdaWakeInit(ctx context.Context, _ Request) error {
	return e.pdaLoopDevices(ctx)
}

// pdaInit records the firmware shown at power up, then reads setpoints
func (e *Engine) pdaInit(ctx context.Context, _ Request) error {
	v := e.scr.View()
	if v.Menu() == screen.MENU_FW_VERSION {
		panel := state.PANEL_PDA
		if strings.Contains(v.Lines[1], "AquaPalm") {
			panel = state.PANEL_AQUAPALM
		}
		version := strings.TrimSpace(strings.TrimSpace(v.Lines[1]) + " " + strings.TrimSpace(v.Lines[5]))
		e.st.Update(func(d *state.Data) {
			d.Panel = panel
			d.Version = version
		})
		e.log.WithFields(logrus.Fields{"panel": panel, "version": version}).Info("Panel identified")
	}

	if err := e.pdaGoto(ctx, screen.MENU_SET_TEMP); err != nil {
		e.log.WithError(err).Error("Could not read heater setpoints")
	}
	if !e.aquaPalm() {
		if err := e.pdaGoto(ctx, screen.MENU_FREEZE_PROTECT); err != nil {
			e.log.WithError(err).Error("Could not read freeze protect setpoint")
		}
	}
	return e.pdaGoto(ctx, screen.MENU_HOME)
}

func (e *Engine) pdaGetAuxLabels(ctx context.Context, _ Request) error {
	if err := e.pdaGoto(ctx, screen.MENU_AUX_LABEL); err != nil {
		return err
	}
	for i := 1; i <= devices.AUX7-devices.AUX1+1; i++ {
		if err := e.pdaSelectItem(ctx, MenuStep{Item: fmt.Sprintf("AUX%d", i)}); err != nil {
			return err
		}
		seq := e.scr.Seq()
		if err := e.send(ctx, jandy.KEY_PDA_BACK); err != nil {
			return err
		}
		e.pdaNextMenu(ctx, seq)
	}
	return e.pdaGoto(ctx, screen.MENU_HOME)
}
