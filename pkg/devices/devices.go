// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package devices holds the table of controllable panel equipment.
package devices

import (
	"fmt"
	"strings"

	"github.com/Thermoquad/aquastat/pkg/jandy"
)

// LEDState is the panel's indicator state for a device
type LEDState int

const (
	LED_OFF LEDState = iota
	LED_ON
	LED_ENABLE // heater enabled but not firing
	LED_FLASH  // transitioning; only an explicit observation clears it
	LED_UNKNOWN
)

func (s LEDState) String() string {
	switch s {
	case LED_OFF:
		return "OFF"
	case LED_ON:
		return "ON"
	case LED_ENABLE:
		return "ENABLE"
	case LED_FLASH:
		return "FLASH"
	default:
		return "UNKNOWN"
	}
}

// ParseLEDState accepts the names produced by String, case-insensitively
func ParseLEDState(s string) (LEDState, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "OFF", "0", "FALSE":
		return LED_OFF, nil
	case "ON", "1", "TRUE":
		return LED_ON, nil
	case "ENABLE", "ENABLED":
		return LED_ENABLE, nil
	case "FLASH":
		return LED_FLASH, nil
	case "UNKNOWN":
		return LED_UNKNOWN, nil
	}
	return LED_UNKNOWN, fmt.Errorf("invalid LED state %q", s)
}

// IsOn reports whether the state counts as running for on/off requests
func (s LEDState) IsOn() bool {
	return s == LED_ON || s == LED_ENABLE || s == LED_FLASH
}

// Device indices. The order matches the panel's button layout.
const (
	PUMP = iota
	SPA
	AUX1
	AUX2
	AUX3
	AUX4
	AUX5
	AUX6
	AUX7
	POOL_HEAT
	SPA_HEAT
	SOLAR_HEAT

	COUNT
)

// Device is one controllable piece of equipment
type Device struct {
	Index int
	Name  string // stable id used by APIs and topics
	Label string // display label

	// MenuLabel is matched against panel menu rows. It can differ from
	// Label in abbreviation and padding.
	MenuLabel string

	Key   uint8 // keypad code that toggles the device
	HabID string
	LED   LEDState

	// StatusLED is the 1-based position of the device's indicator in the
	// keypad status bitmap, 0 when it has none.
	StatusLED int
}

// IsHeater reports whether the device is one of the heater slots
func (d Device) IsHeater() bool {
	return d.Index == POOL_HEAT || d.Index == SPA_HEAT || d.Index == SOLAR_HEAT
}

// Table is the ordered device list, indexed by the constants above
type Table []Device

// Default returns the standard table for a combo pool/spa panel
func Default() Table {
	return Table{
		{Index: PUMP, Name: "pump", Label: "Filter Pump", MenuLabel: "FILTER PUMP", Key: jandy.KEY_PUMP, StatusLED: 7},
		{Index: SPA, Name: "spa", Label: "Spa Mode", MenuLabel: "SPA", Key: jandy.KEY_SPA, StatusLED: 6},
		{Index: AUX1, Name: "aux1", Label: "Aux 1", MenuLabel: "AUX1", Key: jandy.KEY_AUX1, StatusLED: 25},
		{Index: AUX2, Name: "aux2", Label: "Aux 2", MenuLabel: "AUX2", Key: jandy.KEY_AUX2, StatusLED: 26},
		{Index: AUX3, Name: "aux3", Label: "Aux 3", MenuLabel: "AUX3", Key: jandy.KEY_AUX3, StatusLED: 27},
		{Index: AUX4, Name: "aux4", Label: "Aux 4", MenuLabel: "AUX4", Key: jandy.KEY_AUX4, StatusLED: 28},
		{Index: AUX5, Name: "aux5", Label: "Aux 5", MenuLabel: "AUX5", Key: jandy.KEY_AUX5, StatusLED: 29},
		{Index: AUX6, Name: "aux6", Label: "Aux 6", MenuLabel: "AUX6", Key: jandy.KEY_AUX6, StatusLED: 30},
		{Index: AUX7, Name: "aux7", Label: "Aux 7", MenuLabel: "AUX7", Key: jandy.KEY_AUX7, StatusLED: 31},
		{Index: POOL_HEAT, Name: "pool_heater", Label: "Heat Pool", MenuLabel: "POOL HEAT", Key: jandy.KEY_POOL_HTR, StatusLED: 15},
		{Index: SPA_HEAT, Name: "spa_heater", Label: "Heat Spa", MenuLabel: "SPA HEAT", Key: jandy.KEY_SPA_HTR, StatusLED: 17},
		{Index: SOLAR_HEAT, Name: "solar_heater", Label: "Solar Heat", MenuLabel: "SOLAR HEAT", Key: jandy.KEY_SOLAR_HTR, StatusLED: 19},
	}
}

// FindMenuLabel returns the device whose menu label equals label after
// trimming, ignoring case
func (t Table) FindMenuLabel(label string) (int, bool) {
	label = strings.TrimSpace(label)
	if label == "" {
		return -1, false
	}
	for i, d := range t {
		if strings.EqualFold(strings.TrimSpace(d.MenuLabel), label) {
			return i, true
		}
	}
	return -1, false
}

// Clone returns a deep copy
func (t Table) Clone() Table {
	out := make(Table, len(t))
	copy(out, t)
	return out
}

// ByName finds a device by its stable name, case-insensitively
func (t Table) ByName(name string) (Device, bool) {
	for _, d := range t {
		if strings.EqualFold(d.Name, name) {
			return d, true
		}
	}
	return Device{}, false
}

// ByKey finds the device toggled by a keypad code
func (t Table) ByKey(key uint8) (Device, bool) {
	for _, d := range t {
		if d.Key == key {
			return d, true
		}
	}
	return Device{}, false
}

// MatchMenuLabel returns the index of the device whose menu label names the
// row text. The row matches when, after trimming, it equals the label or
// starts with the label followed by a space (case-insensitive). Longer labels
// win so "SPA HEAT" is not taken for "SPA".
func (t Table) MatchMenuLabel(row string) (int, bool) {
	row = strings.ToUpper(strings.TrimSpace(row))
	best, bestLen := -1, 0
	for i, d := range t {
		label := strings.ToUpper(strings.TrimSpace(d.MenuLabel))
		if label == "" || len(label) <= bestLen {
			continue
		}
		if row == label || strings.HasPrefix(row, label+" ") {
			best, bestLen = i, len(label)
		}
	}
	return best, best >= 0
}

// PaddedMenuLabel returns the label formatted the way the equipment list
// prints it: left-aligned in width columns.
func PaddedMenuLabel(label string, width int) string {
	if len(label) >= width {
		return label[:width]
	}
	return label + strings.Repeat(" ", width-len(label))
}
