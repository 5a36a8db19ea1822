// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package projector turns classified screens into device states, setpoints
// and telemetry.
package projector

import (
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/Thermoquad/aquastat/pkg/devices"
	"github.com/Thermoquad/aquastat/pkg/jandy"
	"github.com/Thermoquad/aquastat/pkg/screen"
	"github.com/Thermoquad/aquastat/pkg/state"
)

// MAX_PUMP_NUMBER is the highest pump number accepted in a pump title
const MAX_PUMP_NUMBER = state.MAX_PUMPS

// Options tune what the projector trusts from the panel
type Options struct {
	// UsePanelAuxLabels copies AUX names read from the label screens into
	// the device table.
	UsePanelAuxLabels bool
}

// Projector writes what the screen shows into state
type Projector struct {
	st   *state.State
	scr  *screen.Screen
	opts Options
	log  logrus.FieldLogger
}

// New creates a projector over a screen and state
func New(st *state.State, scr *screen.Screen, opts Options, log logrus.FieldLogger) *Projector {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Projector{
		st:   st,
		scr:  scr,
		opts: opts,
		log:  log.WithField("component", "projector"),
	}
}

// OnStatus runs when the panel finishes an update cycle
func (p *Projector) OnStatus() {
	v := p.scr.View()
	p.st.NoteDisplayLine("")

	switch v.Menu() {
	case screen.MENU_EQUIPMENT_STATUS:
		p.equipmentStatus(&v)
	case screen.MENU_FREEZE_PROTECT_DEVICES:
		p.freezeDevices(&v)
	}
}

// equipmentStatus applies one complete equipment status page. Devices
// named on the page are on. When the page is known to be complete (last
// row blank) every other device that is not FLASH is off. Both happen in
// one update so readers never see a device flip off and back on.
func (p *Projector) equipmentStatus(v *screen.View) {
	complete := screen.IsBlank(v.Lines[jandy.SCREEN_LINES-1])
	if !complete {
		p.log.Debug("Equipment status may be truncated")
	}

	p.st.Update(func(d *state.Data) {
		var seen uint32

		if d.FreezeProtect == devices.LED_ON {
			d.FreezeProtect = devices.LED_ENABLE
		}
		if d.SWGStatus == devices.LED_ON {
			d.SWGStatus = devices.LED_OFF
		}

		pump := 0
		for i := 1; i < jandy.SCREEN_LINES; i++ {
			line := v.Lines[i]
			if screen.IsBlank(line) {
				continue
			}
			if idx, ok := p.statusItem(d, line, &pump); ok {
				seen |= 1 << uint(idx)
			}
		}

		if !complete {
			return
		}
		for i := range d.Devices {
			if seen&(1<<uint(i)) != 0 || d.Devices[i].LED == devices.LED_FLASH {
				continue
			}
			if d.Devices[i].LED != devices.LED_OFF {
				p.log.WithField("device", d.Devices[i].Name).Debug("Not listed, now off")
			}
			d.Devices[i].LED = devices.LED_OFF
		}
	})
}

// statusItem parses one equipment status row and returns the device it
// names, if any. pump tracks the record that RPM/Watts/GPM rows belong to.
func (p *Projector) statusItem(d *state.Data, line string, pump *int) (int, bool) {
	switch {
	case screen.ContainsFold(line, "CHECK AquaPure"):
		p.log.Debug("CHECK AquaPure")
		return 0, false
	case screen.ContainsFold(line, "FREEZE PROTECT"):
		d.FreezeProtect = devices.LED_ON
		return 0, false
	}

	if n, ok := intAfter(line, "AquaPure"); ok {
		d.SWGPercent = n
		d.SWGStatus = devices.LED_ON
		return 0, false
	}
	if n, ok := intAfter(line, "SALT"); ok {
		d.SWGPPM = n
		d.SWGStatus = devices.LED_ON
		return 0, false
	}
	if n, ok := intAfter(line, "RPM:"); ok {
		d.Pumps[*pump].RPM = n
		return 0, false
	}
	if n, ok := intAfter(line, "Watts:"); ok {
		d.Pumps[*pump].Watts = n
		return 0, false
	}
	if n, ok := intAfter(line, "GPM:"); ok {
		d.Pumps[*pump].GPM = n
		return 0, false
	}

	label := strings.TrimSpace(line)
	switch {
	case strings.EqualFold(label, "POOL HEAT ENA"):
		d.Devices[devices.POOL_HEAT].LED = devices.LED_ENABLE
		return devices.POOL_HEAT, true
	case strings.EqualFold(label, "SPA HEAT ENA"):
		d.Devices[devices.SPA_HEAT].LED = devices.LED_ENABLE
		return devices.SPA_HEAT, true
	}

	if idx, ok := d.Devices.FindMenuLabel(label); ok {
		if d.Devices[idx].LED != devices.LED_FLASH {
			d.Devices[idx].LED = devices.LED_ON
		}
		return idx, true
	}

	if name, n, ok := pumpHeader(line); ok {
		*pump = n - 1
		d.Pumps[*pump].Index = n
		d.Pumps[*pump].Name = name
		return 0, false
	}

	p.log.WithField("line", label).Debug("Unrecognised equipment status row")
	return 0, false
}

// freezeDevices marks freeze protection enabled when any device row on
// the freeze protect device list is ticked
func (p *Projector) freezeDevices(v *screen.View) {
	for i := 1; i < jandy.SCREEN_LINES; i++ {
		if lastChar(v.Lines[i]) == 'X' {
			p.st.Update(func(d *state.Data) {
				if d.FreezeProtect == devices.LED_OFF {
					d.FreezeProtect = devices.LED_ENABLE
				}
			})
			return
		}
	}
}

// OnLine runs after a long message updated the screen. lineID is the raw
// line byte, which also carries the temperature and time rows.
func (p *Projector) OnLine(lineID uint8, text string) {
	p.st.NoteDisplayLine(text)

	switch lineID {
	case jandy.LINE_TEMPERATURE:
		p.temperatureLine(text)
		return
	case jandy.LINE_TIME:
		p.timeLine(text)
		return
	}

	menu := p.scr.Classify()
	switch menu {
	case screen.MENU_EQUIPMENT_CONTROL:
		p.equipmentControl(text)
	case screen.MENU_HOME, screen.MENU_BUILDING_HOME:
		p.home(text)
	case screen.MENU_SET_TEMP:
		p.setTemp(text)
	case screen.MENU_SPA_HEAT:
		p.heatScreen(text, devices.SPA_HEAT)
	case screen.MENU_POOL_HEAT:
		p.heatScreen(text, devices.POOL_HEAT)
	case screen.MENU_FREEZE_PROTECT:
		if screen.PrefixFold(text, "TEMP      ", 10) {
			p.st.Update(func(d *state.Data) { d.FreezeSetpoint = atoiAt(text, 10) })
		}
	case screen.MENU_AQUAPURE:
		p.aquapure(text)
	case screen.MENU_AUX_LABEL_DEVICE:
		p.auxLabel()
	default:
		p.unknown(text)
	}
	p.log.WithFields(logrus.Fields{"menu": menu, "line": text}).Trace("Line")
}

func (p *Projector) temperatureLine(text string) {
	header := p.scr.Line(1)
	p.st.Update(func(d *state.Data) {
		d.Units = state.UNITS_F
		if screen.ContainsFold(header, "AIR") {
			d.AirTemp = atoi(text)
		}
		switch {
		case screen.ContainsFold(header, "SPA"):
			d.SpaTemp = atoiAt(text, 4)
			d.PoolTemp = state.TEMP_UNKNOWN
		case screen.ContainsFold(header, "POOL"), screen.ContainsFold(header, "WATER"):
			d.PoolTemp = atoiAt(text, 7)
			d.SpaTemp = state.TEMP_UNKNOWN
		default:
			d.PoolTemp = state.TEMP_UNKNOWN
			d.SpaTemp = state.TEMP_UNKNOWN
		}
	})
}

// timeLine reads "     SAT 8:46AM " style rows
func (p *Projector) timeLine(text string) {
	width := 7
	if lastChar(text) == ' ' {
		width = 6
	}
	p.st.Update(func(d *state.Data) {
		d.Time = strings.TrimSpace(field(text, 9, 9+width))
		d.Date = strings.TrimSpace(field(text, 5, 8))
	})
}

// equipmentControl reads "FILTER PUMP  OFF" rows
func (p *Projector) equipmentControl(text string) {
	label := strings.TrimSpace(field(text, 0, jandy.SCREEN_WIDTH-4))
	led := ledFromMarker(lastChar(text))

	p.st.Update(func(d *state.Data) {
		if idx, ok := d.Devices.FindMenuLabel(label); ok {
			d.Devices[idx].LED = led
		}
		if d.Devices[devices.PUMP].LED == devices.LED_OFF {
			d.SWGStatus = devices.LED_OFF
		}
		if d.SingleDevice {
			switch {
			case strings.EqualFold(label, "TEMP1"):
				d.Devices[devices.POOL_HEAT].LED = led
			case strings.EqualFold(label, "TEMP2"):
				d.Devices[devices.SPA_HEAT].LED = led
			}
		}
	})
}

func (p *Projector) home(text string) {
	c := lastChar(text)
	p.st.Update(func(d *state.Data) {
		dev := d.Devices
		switch {
		case screen.ContainsFold(text, "POOL MODE"):
			// Pool mode off says nothing about the pump; spa mode may run it
			if c == 'N' {
				dev[devices.PUMP].LED = devices.LED_ON
			} else if c == '*' {
				dev[devices.PUMP].LED = devices.LED_FLASH
			}
		case screen.ContainsFold(text, "POOL HEATER"):
			dev[devices.POOL_HEAT].LED = ledFromMarker(c)
		case screen.ContainsFold(text, "SPA MODE"):
			switch c {
			case 'N':
				dev[devices.PUMP].LED = devices.LED_ON
				dev[devices.SPA].LED = devices.LED_ON
			case '*':
				dev[devices.PUMP].LED = devices.LED_FLASH
				dev[devices.SPA].LED = devices.LED_ON
			default:
				dev[devices.SPA].LED = devices.LED_OFF
			}
		case screen.ContainsFold(text, "SPA HEATER"):
			dev[devices.SPA_HEAT].LED = ledFromMarker(c)
		}
	})
}

func (p *Projector) setTemp(text string) {
	p.st.Update(func(d *state.Data) {
		switch {
		case screen.ContainsFold(text, "POOL HEAT"):
			d.PoolSetpoint = atoiAt(text, 10)
		case screen.ContainsFold(text, "SPA HEAT"):
			d.SpaSetpoint = atoiAt(text, 10)
		case screen.ContainsFold(text, "TEMP1"):
			p.singleDevice(d)
			d.PoolSetpoint = atoiAt(text, 10)
		case screen.ContainsFold(text, "TEMP2"):
			p.singleDevice(d)
			d.SpaSetpoint = atoiAt(text, 10)
		}
	})
}

func (p *Projector) singleDevice(d *state.Data) {
	if !d.SingleDevice {
		d.SingleDevice = true
		p.log.Info("Panel is in pool or spa only mode")
	}
}

func (p *Projector) heatScreen(text string, heater int) {
	p.st.Update(func(d *state.Data) {
		switch {
		case screen.PrefixFold(text, "    ENABLED     ", 16):
			d.Devices[heater].LED = devices.LED_ENABLE
		case screen.PrefixFold(text, "  SET TO", 8):
			if heater == devices.SPA_HEAT {
				d.SpaSetpoint = atoiAt(text, 8)
			} else {
				d.PoolSetpoint = atoiAt(text, 8)
			}
		}
	})
}

// aquapure reads the setpoint for whichever body is running
func (p *Projector) aquapure(text string) {
	p.st.Update(func(d *state.Data) {
		if d.Devices[devices.SPA].LED != devices.LED_OFF {
			if screen.PrefixFold(text, "SET SPA TO:", 11) {
				d.SWGPercent = atoiAt(text, 13)
			}
		} else if screen.PrefixFold(text, "SET POOL TO:", 12) {
			d.SWGPercent = atoiAt(text, 13)
		}
	})
}

// auxLabel copies a panel AUX name once the label screen is complete
func (p *Projector) auxLabel() {
	if !p.opts.UsePanelAuxLabels {
		return
	}
	v := p.scr.View()
	if screen.IsBlank(v.Lines[3]) ||
		!screen.PrefixFold(v.Lines[2], "  CURRENT LABEL ", 16) ||
		!screen.PrefixFold(v.Lines[0], "   LABEL AUX", 12) {
		return
	}

	n := atoiAt(v.Lines[0], 12)
	if n < 1 || n > devices.AUX7-devices.AUX1+1 {
		p.log.WithField("line", v.Lines[0]).Error("Could not read AUX number")
		return
	}
	label := strings.TrimSpace(v.Lines[3])
	p.st.Update(func(d *state.Data) {
		d.Devices[devices.AUX1+n-1].MenuLabel = label
	})
	p.log.WithFields(logrus.Fields{"aux": n, "label": label}).Info("Panel AUX label")
}

// unknown logs rows that look like a device state outside a known menu.
// After a toggle the panel clears and shows a single row like this.
func (p *Projector) unknown(text string) {
	switch lastChar(text) {
	case 'N', 'F', 'A', '*':
	default:
		return
	}
	table := p.st.Snapshot().Devices
	if idx, ok := table.MatchMenuLabel(field(text, 0, jandy.SCREEN_WIDTH-4)); ok {
		p.log.WithFields(logrus.Fields{"device": table[idx].Name, "line": text}).Debug("Status row outside a known menu")
	}
}
