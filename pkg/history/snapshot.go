// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package history

import (
	"strconv"
	"time"

	"github.com/Thermoquad/aquastat/pkg/devices"
	"github.com/Thermoquad/aquastat/pkg/state"
)

// Snapshot is the stored form of the state. Integer keys keep the blobs
// small.
type Snapshot struct {
	Taken     int64             `cbor:"1,keyasint"` // unix nanoseconds
	LEDs      map[string]string `cbor:"2,keyasint"`
	Setpoints map[string]int    `cbor:"3,keyasint"`
	Temps     map[string]int    `cbor:"4,keyasint"`
	Panel     string            `cbor:"5,keyasint,omitempty"`
	Version   string            `cbor:"6,keyasint,omitempty"`
}

// NewSnapshot captures d at time at. Unknown values are left out.
func NewSnapshot(d state.Data, at time.Time) Snapshot {
	snap := Snapshot{
		Taken:     at.UnixNano(),
		LEDs:      make(map[string]string),
		Setpoints: make(map[string]int),
		Temps:     make(map[string]int),
		Panel:     d.Panel.String(),
		Version:   d.Version,
	}
	for _, dev := range d.Devices {
		snap.LEDs[dev.Name] = dev.LED.String()
	}
	snap.LEDs["freeze_protect"] = d.FreezeProtect.String()
	snap.LEDs["swg"] = d.SWGStatus.String()

	for name, v := range setpoints(d) {
		if v != state.TEMP_UNKNOWN {
			snap.Setpoints[name] = v
		}
	}
	for name, v := range temperatures(d) {
		if v != state.TEMP_UNKNOWN {
			snap.Temps[name] = v
		}
	}
	return snap
}

func setpoints(d state.Data) map[string]int {
	return map[string]int{
		"pool_setpoint":   d.PoolSetpoint,
		"spa_setpoint":    d.SpaSetpoint,
		"freeze_setpoint": d.FreezeSetpoint,
		"swg_percent":     d.SWGPercent,
	}
}

func temperatures(d state.Data) map[string]int {
	return map[string]int{
		"air_temp":  d.AirTemp,
		"pool_temp": d.PoolTemp,
		"spa_temp":  d.SpaTemp,
	}
}

// Diff lists what changed between two states. Temperatures are recorded
// only when withTemps is set since they move constantly.
func Diff(prev, cur state.Data, at time.Time, withTemps bool) []Event {
	var out []Event
	add := func(kind, point, from, to string) {
		if from != to {
			out = append(out, Event{Timestamp: at, Point: point, Previous: from, New: to, Kind: kind})
		}
	}

	for i := range cur.Devices {
		from := devices.LED_UNKNOWN
		if i < len(prev.Devices) {
			from = prev.Devices[i].LED
		}
		add(KIND_LED, cur.Devices[i].Name, from.String(), cur.Devices[i].LED.String())
	}
	add(KIND_LED, "freeze_protect", prev.FreezeProtect.String(), cur.FreezeProtect.String())
	add(KIND_LED, "swg", prev.SWGStatus.String(), cur.SWGStatus.String())

	before := setpoints(prev)
	for name, v := range setpoints(cur) {
		add(KIND_SETPOINT, name, value(before[name]), value(v))
	}
	if withTemps {
		before := temperatures(prev)
		for name, v := range temperatures(cur) {
			add(KIND_TEMPERATURE, name, value(before[name]), value(v))
		}
	}
	return out
}

func value(v int) string {
	if v == state.TEMP_UNKNOWN {
		return ""
	}
	return strconv.Itoa(v)
}
