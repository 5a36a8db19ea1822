// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package projector

import (
	"github.com/sirupsen/logrus"

	"github.com/Thermoquad/aquastat/pkg/devices"
	"github.com/Thermoquad/aquastat/pkg/state"
)

// STATUS_LED_BYTES is the size of the keypad status LED bitmap
const STATUS_LED_BYTES = 5

// messageField binds a keypad display phrase to the value that follows it.
// Longer phrases come first so "POOL TEMP IS SET TO" is not read as a
// water temperature.
type messageField struct {
	phrase string
	apply  func(d *state.Data, n int)
}

var messageFields = []messageField{
	{"FREEZE PROTECTION IS SET TO", func(d *state.Data, n int) { d.FreezeSetpoint = n }},
	{"POOL TEMP IS SET TO", func(d *state.Data, n int) { d.PoolSetpoint = n }},
	{"SPA TEMP IS SET TO", func(d *state.Data, n int) { d.SpaSetpoint = n }},
	{"AIR TEMP", func(d *state.Data, n int) { d.AirTemp = n }},
	{"POOL TEMP", func(d *state.Data, n int) { d.PoolTemp = n }},
	{"SPA TEMP", func(d *state.Data, n int) { d.SpaTemp = n }},
	{"AQUAPURE", func(d *state.Data, n int) { d.SWGPercent = n; d.SWGStatus = devices.LED_ON }},
	{"SALT", func(d *state.Data, n int) { d.SWGPPM = n }},
}

// OnKeypadMessage reads values out of a rotating keypad display message
func (p *Projector) OnKeypadMessage(text string) {
	p.st.NoteDisplayLine(text)
	p.st.Update(func(d *state.Data) {
		for _, f := range messageFields {
			if n, ok := intAfter(text, f.phrase); ok {
				f.apply(d, n)
				p.log.WithFields(logrus.Fields{"field": f.phrase, "value": n}).Trace("Keypad message")
				return
			}
		}
	})
}

// statusLED decodes one LED from the bitmap. Numbers are 1-based and each
// LED takes two bits: the low bit means on, the high bit means flashing.
// ok is false when the bitmap does not reach LED n.
func statusLED(bitmap []byte, n int) (devices.LEDState, bool) {
	if n < 1 {
		return devices.LED_UNKNOWN, false
	}
	bit := (n - 1) * 2
	if bit/8 >= len(bitmap) {
		return devices.LED_UNKNOWN, false
	}
	b := bitmap[bit/8] >> uint(bit%8)
	switch {
	case b&0x02 != 0:
		return devices.LED_FLASH, true
	case b&0x01 != 0:
		return devices.LED_ON, true
	default:
		return devices.LED_OFF, true
	}
}

// OnKeypadStatus applies the LED bitmap carried by a keypad STATUS packet.
// A heater shows ENABLE as its own LED off with the next LED lit.
func (p *Projector) OnKeypadStatus(bitmap []byte) {
	if len(bitmap) < STATUS_LED_BYTES {
		p.log.WithField("len", len(bitmap)).Debug("Short keypad status")
		return
	}
	p.st.Update(func(d *state.Data) {
		for i := range d.Devices {
			dev := &d.Devices[i]
			if dev.StatusLED == 0 {
				continue
			}
			led, ok := statusLED(bitmap, dev.StatusLED)
			if !ok {
				continue
			}
			if dev.IsHeater() && led == devices.LED_OFF {
				if next, _ := statusLED(bitmap, dev.StatusLED+1); next == devices.LED_ON {
					led = devices.LED_ENABLE
				}
			}
			dev.LED = led
		}
	})
}
