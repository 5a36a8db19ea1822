// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package navigator

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/Thermoquad/aquastat/pkg/devices"
	"github.com/Thermoquad/aquastat/pkg/jandy"
	"github.com/Thermoquad/aquastat/pkg/screen"
	"github.com/Thermoquad/aquastat/pkg/session"
	"github.com/Thermoquad/aquastat/pkg/state"
)

// Keypad display phrases
const (
	MSG_MENU_READY     = "PRESS ENTER* TO SELECT"
	MSG_MUST_BE_SET    = "MUST BE SET"
	MSG_POOL_SET       = "POOL TEMP IS SET TO"
	MSG_SPA_SET        = "SPA TEMP IS SET TO"
	MSG_FREEZE_SET     = "FREEZE PROTECTION IS SET TO"
	MSG_MAINTAIN       = "MAINTAIN TEMP IS"
	MSG_SET_TO         = "SET TO"
	MSG_REVIEW_PROMPT  = "SELECT DEVICE TO REVIEW or PRESS ENTER TO END"
	MSG_PROGRAM_NONE   = "NOT SET"
	MSG_PROGRAM_TURNS  = "TURNS ON"
	DIAGNOSTIC_LINES   = 8
	REVIEW_WAIT        = 7
	REVIEW_FINAL_WAIT  = 6
	HEATER_REVIEW_WAIT = 5
	FREEZE_REVIEW_WAIT = 6
)

// programKeys are the buttons whose programs can be reviewed. AUX6 and
// AUX7 end the review mode on the panel.
var programKeys = []uint8{
	jandy.KEY_PUMP, jandy.KEY_SPA,
	jandy.KEY_AUX1, jandy.KEY_AUX2, jandy.KEY_AUX3, jandy.KEY_AUX4, jandy.KEY_AUX5,
}

func (e *Engine) keypadOperations() map[session.Kind]operation {
	return map[session.Kind]operation{
		session.KIND_SET_POOL_HEATER_TEMP:    func(ctx context.Context, r Request) error { return e.rsSetHeater(ctx, true, r.Value) },
		session.KIND_SET_SPA_HEATER_TEMP:     func(ctx context.Context, r Request) error { return e.rsSetHeater(ctx, false, r.Value) },
		session.KIND_SET_FREEZE_PROTECT_TEMP: e.rsSetFreeze,
		session.KIND_SET_SWG_PERCENT:         e.rsSetSWG,
		session.KIND_SET_TIME:                e.rsSetTime,
		session.KIND_SET_LIGHT_COLOR_MODE:    e.setLightMode,
		session.KIND_GET_HEATER_TEMPS:        e.rsGetHeaterTemps,
		session.KIND_GET_FREEZE_PROTECT_TEMP: e.rsGetFreeze,
		session.KIND_GET_DIAGNOSTICS:         e.rsGetDiagnostics,
		session.KIND_GET_PROGRAMS:            e.rsGetPrograms,
		session.KIND_DEVICE_ON_OFF:           e.rsDeviceOnOff,
	}
}

// ============================================================================
// Primitives
// ============================================================================

// rsSelectMenuItem opens the panel menu and walks to item
func (e *Engine) rsSelectMenuItem(ctx context.Context, item string) error {
	for try := 0; try < e.timing.MenuTries; try++ {
		seq := e.scr.Seq()
		if err := e.send(ctx, jandy.KEY_MENU); err != nil {
			return err
		}
		if e.scr.WaitForMessageSince(ctx, seq, MSG_MENU_READY, 3) {
			return e.rsSelectSubMenuItem(ctx, item)
		}
		if err := ctxErr(ctx, "menu"); err != nil {
			return err
		}
		e.log.WithField("try", try+1).Debug("Menu did not open")
	}
	return notFound("menu", "panel menu did not open")
}

// rsSelectSubMenuItem presses RIGHT until the display names item, then ENTER
func (e *Engine) rsSelectSubMenuItem(ctx context.Context, item string) error {
	_, err := e.rsEnterSubMenuItem(ctx, item)
	return err
}

// rsEnterSubMenuItem is rsSelectSubMenuItem returning the screen sequence
// taken just before ENTER, so callers can read every message it produced.
func (e *Engine) rsEnterSubMenuItem(ctx context.Context, item string) (uint64, error) {
	for i := 0; !strings.Contains(e.scr.Message(), item); i++ {
		if i >= e.timing.SubMenuTries {
			return 0, notFound("menu", "item %q not found", item)
		}
		seq := e.scr.Seq()
		if err := e.send(ctx, jandy.KEY_RIGHT); err != nil {
			return 0, err
		}
		e.scr.NextMessages(ctx, seq, e.timing.MessageQuiet)
		if err := ctxErr(ctx, "menu"); err != nil {
			return 0, err
		}
	}
	e.log.WithField("item", item).Debug("Found menu item")

	seq := e.scr.Seq()
	if err := e.send(ctx, jandy.KEY_ENTER); err != nil {
		return 0, err
	}
	e.scr.NextMessages(ctx, seq, e.timing.MessageQuiet)
	return seq, nil
}

// rsNumericField steps the field named label to target. The value shown
// is the first number after the label.
func (e *Engine) rsNumericField(ctx context.Context, label string, target, step int) error {
	pattern := "^" + label
	if !e.scr.WaitForMessage(ctx, pattern, 3) {
		return notFound("numeric", "field %q not shown", label)
	}

	for i := 0; ; i++ {
		if i >= e.timing.NumericMaxSteps {
			return notFound("numeric", "%s never reached %d", label, target)
		}
		msg := e.scr.Message()
		cur, ok := fieldValue(msg, label)
		if !ok {
			return notFound("numeric", "no value in %q", msg)
		}
		e.log.WithFields(logrus.Fields{"field": label, "current": cur, "target": target}).Debug("Numeric field")

		key := uint8(jandy.KEY_ENTER)
		switch {
		case target > cur:
			key = jandy.KEY_RIGHT
		case target < cur:
			key = jandy.KEY_LEFT
		}

		seq := e.scr.Seq()
		if err := e.send(ctx, key); err != nil {
			return err
		}
		if key == jandy.KEY_ENTER {
			return nil
		}
		if !e.scr.WaitForMessageSince(ctx, seq, pattern, 3) {
			return notFound("numeric", "field %q stopped updating", label)
		}
	}
}

// fieldValue parses the first unsigned integer after label in msg
func fieldValue(msg, label string) (int, bool) {
	if len(msg) < len(label) {
		return 0, false
	}
	s := msg[len(label):]
	i := strings.IndexAny(s, "0123456789")
	if i < 0 {
		return 0, false
	}
	n := 0
	for ; i < len(s) && s[i] >= '0' && s[i] <= '9'; i++ {
		n = n*10 + int(s[i]-'0')
	}
	return n, true
}

// confirm waits for a closing phrase. The panel often skips it, so a miss
// is only logged.
func (e *Engine) confirm(ctx context.Context, phrase string, max int) {
	if !e.scr.WaitForMessage(ctx, phrase, max) {
		e.log.WithField("phrase", phrase).Debug("Confirmation not seen")
	}
}

// ============================================================================
// Operations
// ============================================================================

func (e *Engine) rsSetHeater(ctx context.Context, pool bool, value int) error {
	single := e.st.Snapshot().SingleDevice
	sp, field, item, done := SETPOINT_SPA, "SPA", "SET SPA TEMP", MSG_SPA_SET
	if pool {
		sp, field, item, done = SETPOINT_POOL, "POOL", "SET POOL TEMP", MSG_POOL_SET
	}
	if single {
		field = "TEMP2"
		if pool {
			field = "TEMP1"
		}
		item = "SET " + field
	}
	value = e.clamp(sp, value)

	if err := e.rsSelectMenuItem(ctx, "SET TEMP"); err != nil {
		return err
	}
	if err := e.rsSelectSubMenuItem(ctx, item); err != nil {
		return err
	}

	if single {
		// "TEMP1 MUST BE SET HIGHER THAN TEMP2" has to be stepped past
		e.scr.WaitForMessage(ctx, MSG_MUST_BE_SET, 5)
		if err := e.send(ctx, jandy.KEY_LEFT); err != nil {
			return err
		}
		e.scr.WaitForCondition(ctx, func(v *screen.View) bool {
			return !screen.ContainsFold(v.Message, MSG_MUST_BE_SET)
		}, 5)
	}

	if err := e.rsNumericField(ctx, field, value, 1); err != nil {
		return err
	}
	e.confirm(ctx, done, 3)
	return nil
}

func (e *Engine) rsSetFreeze(ctx context.Context, r Request) error {
	value := e.clamp(SETPOINT_FREEZE, r.Value)
	if err := e.rsSelectMenuItem(ctx, "SYSTEM SETUP"); err != nil {
		return err
	}
	for _, item := range []string{"FRZ PROTECT", "TEMP SETTING"} {
		if err := e.rsSelectSubMenuItem(ctx, item); err != nil {
			return err
		}
	}
	if err := e.rsNumericField(ctx, "FRZ", value, 1); err != nil {
		return err
	}
	e.confirm(ctx, MSG_FREEZE_SET, 3)
	return nil
}

func (e *Engine) rsSetSWG(ctx context.Context, r Request) error {
	value := e.clamp(SETPOINT_SWG, r.Value)
	if err := e.rsSelectMenuItem(ctx, "SET AQUAPURE"); err != nil {
		return err
	}

	field := "POOL SP"
	if e.st.LED(devices.SPA) != devices.LED_OFF {
		field = "SPA SP"
	}
	if err := e.rsSelectSubMenuItem(ctx, "SET "+field); err != nil {
		return err
	}
	if err := e.rsNumericField(ctx, field, value, SWG_STEP); err != nil {
		return err
	}
	e.confirm(ctx, MSG_SET_TO, 1)
	return nil
}

// hourItem names the SET TIME menu entry for a 24 hour clock hour
func hourItem(h int) string {
	switch {
	case h == 0:
		return "HOUR 12 AM"
	case h < 12:
		return fmt.Sprintf("HOUR %d AM", h)
	case h == 12:
		return "HOUR 12 PM"
	default:
		return fmt.Sprintf("HOUR %d PM", h-12)
	}
}

func (e *Engine) rsSetTime(ctx context.Context, r Request) error {
	t := r.Time
	if t.IsZero() {
		t = e.now()
	}
	e.log.WithField("time", t.Format("2006-01-02 15:04")).Info("Setting panel clock")

	if err := e.rsSelectMenuItem(ctx, "SET TIME"); err != nil {
		return err
	}
	fields := []struct {
		label string
		value int
	}{
		{"YEAR", t.Year()},
		{"MONTH", int(t.Month())},
		{"DAY", t.Day()},
	}
	for _, f := range fields {
		if err := e.rsNumericField(ctx, f.label, f.value, 1); err != nil {
			return err
		}
	}
	if !e.scr.WaitForMessage(ctx, "^HOUR", 3) {
		return notFound("time", "hour list not shown")
	}
	if err := e.rsSelectSubMenuItem(ctx, hourItem(t.Hour())); err != nil {
		return err
	}
	if err := e.rsNumericField(ctx, "MINUTE", t.Minute(), 1); err != nil {
		return err
	}
	return e.send(ctx, jandy.KEY_ENTER)
}

func (e *Engine) rsReview(ctx context.Context, item, until string, max int) error {
	if err := e.rsSelectMenuItem(ctx, "REVIEW"); err != nil {
		return err
	}
	if err := e.rsSelectSubMenuItem(ctx, item); err != nil {
		return err
	}
	if !e.scr.WaitForMessage(ctx, until, max) {
		return notFound("review", "%q not shown", until)
	}
	return nil
}

func (e *Engine) rsGetHeaterTemps(ctx context.Context, _ Request) error {
	// POOL and SPA lines come first; MAINTAIN ends the list
	return e.rsReview(ctx, "TEMP SET", MSG_MAINTAIN, HEATER_REVIEW_WAIT)
}

func (e *Engine) rsGetFreeze(ctx context.Context, _ Request) error {
	return e.rsReview(ctx, "FRZ PROTECT", MSG_FREEZE_SET, FREEZE_REVIEW_WAIT)
}

// capture records up to n messages newer than seq. It stops early once
// the display has been quiet for MessageQuiet.
func (e *Engine) capture(ctx context.Context, seq uint64, n int) []string {
	out, _ := e.captureUntil(ctx, seq, "", "", n)
	return out
}

// captureUntil records up to max messages newer than seq, stopping at the
// first that matches a or b. Empty patterns never match.
func (e *Engine) captureUntil(ctx context.Context, seq uint64, a, b string, max int) ([]string, bool) {
	var out []string
	for len(out) < max {
		var msgs []string
		msgs, seq = e.scr.NextMessages(ctx, seq, e.timing.MessageQuiet)
		if len(msgs) == 0 {
			return out, false
		}
		for _, msg := range msgs {
			out = append(out, strings.TrimSpace(msg))
			if (a != "" && screen.MessageMatches(msg, a)) || (b != "" && screen.MessageMatches(msg, b)) {
				return out, true
			}
			if len(out) == max {
				break
			}
		}
	}
	return out, false
}

func (e *Engine) rsGetDiagnostics(ctx context.Context, _ Request) error {
	if err := e.rsSelectMenuItem(ctx, "SYSTEM SETUP"); err != nil {
		return err
	}
	seq, err := e.rsEnterSubMenuItem(ctx, "DIAGNOSTICS")
	if err != nil {
		return err
	}
	lines := e.capture(ctx, seq, DIAGNOSTIC_LINES)
	if len(lines) == 0 {
		return notFound("diagnostics", "no diagnostics shown")
	}
	e.st.Update(func(d *state.Data) { d.Diagnostics = lines })
	return nil
}

func (e *Engine) rsGetPrograms(ctx context.Context, _ Request) error {
	if err := e.rsSelectMenuItem(ctx, "REVIEW"); err != nil {
		return err
	}
	if err := e.rsSelectSubMenuItem(ctx, "PROGRAMS"); err != nil {
		return err
	}

	var programs []string
	for _, key := range programKeys {
		if !e.scr.WaitForMessage(ctx, MSG_REVIEW_PROMPT, REVIEW_WAIT) {
			return notFound("programs", "review prompt not shown")
		}
		seq := e.scr.Seq()
		if err := e.send(ctx, key); err != nil {
			return err
		}
		lines, ok := e.captureUntil(ctx, seq, MSG_PROGRAM_NONE, MSG_PROGRAM_TURNS, REVIEW_WAIT)
		programs = append(programs, lines...)
		if !ok {
			return notFound("programs", "no program shown for key 0x%02X", key)
		}
	}
	e.st.Update(func(d *state.Data) { d.Programs = programs })

	if !e.scr.WaitForMessage(ctx, MSG_REVIEW_PROMPT, REVIEW_FINAL_WAIT) {
		return notFound("programs", "review did not return to the prompt")
	}
	return e.send(ctx, jandy.KEY_ENTER)
}

func (e *Engine) rsDeviceOnOff(ctx context.Context, r Request) error {
	dev, err := e.device("device_on_off", r.Device)
	if err != nil {
		return err
	}
	if e.st.LED(dev.Index).IsOn() == r.On {
		e.log.WithField("device", dev.Name).Info("Device already in requested state")
		return nil
	}
	return e.send(ctx, dev.Key)
}
