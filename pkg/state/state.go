// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package state holds the process-wide view of the panel: devices,
// setpoints and telemetry. Every field is guarded by one mutex.
package state

import (
	"reflect"
	"sync"
	"time"

	"github.com/Thermoquad/aquastat/pkg/devices"
)

// TEMP_UNKNOWN marks a temperature or setpoint that has not been read
const TEMP_UNKNOWN = -999

// MAX_PUMPS is the number of variable speed pump records kept
const MAX_PUMPS = 4

// Units is the temperature scale reported by the panel
type Units int

const (
	UNITS_UNKNOWN Units = iota
	UNITS_F
	UNITS_C
)

func (u Units) String() string {
	switch u {
	case UNITS_F:
		return "F"
	case UNITS_C:
		return "C"
	default:
		return "?"
	}
}

// PanelType distinguishes remote models on the PDA bus
type PanelType int

const (
	PANEL_UNKNOWN PanelType = iota
	PANEL_PDA
	PANEL_AQUAPALM
	PANEL_KEYPAD
)

func (p PanelType) String() string {
	switch p {
	case PANEL_PDA:
		return "PDA"
	case PANEL_AQUAPALM:
		return "AquaPalm"
	case PANEL_KEYPAD:
		return "Keypad"
	default:
		return "unknown"
	}
}

// Pump is one variable speed pump telemetry record
type Pump struct {
	Index int // panel's pump number, 0 when unused
	Name  string
	RPM   int
	Watts int
	GPM   int
}

// Data is the aggregate. Snapshot returns a copy of it.
type Data struct {
	Devices devices.Table

	PoolSetpoint   int
	SpaSetpoint    int
	FreezeSetpoint int
	SWGPercent     int
	SWGPPM         int
	SWGStatus      devices.LEDState
	FreezeProtect  devices.LEDState

	AirTemp  int
	PoolTemp int
	SpaTemp  int
	Units    Units

	// SingleDevice is set when the panel shows TEMP1/TEMP2 instead of
	// separate pool and spa heater fields.
	SingleDevice bool

	LastDisplayLine string
	LastPacketType  uint8
	LastPacketAt    time.Time

	Pumps [MAX_PUMPS]Pump

	OpenViewers int

	Time    string
	Date    string
	Version string
	Panel   PanelType

	Diagnostics []string
	Programs    []string
}

func (d *Data) clone() Data {
	out := *d
	out.Devices = d.Devices.Clone()
	out.Diagnostics = append([]string(nil), d.Diagnostics...)
	out.Programs = append([]string(nil), d.Programs...)
	return out
}

// State guards Data and notifies subscribers when it changes
type State struct {
	mu      sync.Mutex
	data    Data
	version uint64
	subs    map[chan struct{}]struct{}
}

// New creates state with every temperature unknown
func New(table devices.Table) *State {
	return &State{
		data: Data{
			Devices:        table.Clone(),
			PoolSetpoint:   TEMP_UNKNOWN,
			SpaSetpoint:    TEMP_UNKNOWN,
			FreezeSetpoint: TEMP_UNKNOWN,
			SWGPercent:     TEMP_UNKNOWN,
			SWGPPM:         TEMP_UNKNOWN,
			SWGStatus:      devices.LED_OFF,
			FreezeProtect:  devices.LED_OFF,
			AirTemp:        TEMP_UNKNOWN,
			PoolTemp:       TEMP_UNKNOWN,
			SpaTemp:        TEMP_UNKNOWN,
		},
		subs: make(map[chan struct{}]struct{}),
	}
}

// Snapshot returns a consistent copy of all fields
func (s *State) Snapshot() Data {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.clone()
}

// Version increases every time an Update changes something
func (s *State) Version() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

// Update applies fn under the lock. Subscribers are woken only when fn
// changed a field. Returns true when something changed. The frame
// bookkeeping fields set by NotePacket and NoteDisplayLine never count.
func (s *State) Update(fn func(d *Data)) bool {
	s.mu.Lock()
	before := s.data.clone()
	fn(&s.data)
	before.LastDisplayLine = s.data.LastDisplayLine
	before.LastPacketType = s.data.LastPacketType
	before.LastPacketAt = s.data.LastPacketAt
	changed := !reflect.DeepEqual(before, s.data)
	if changed {
		s.version++
		for ch := range s.subs {
			select {
			case ch <- struct{}{}:
			default:
			}
		}
	}
	s.mu.Unlock()
	return changed
}

// Subscribe returns a channel that receives a token after changes. Tokens
// coalesce; a slow reader sees one token for many changes.
func (s *State) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	s.mu.Lock()
	s.subs[ch] = struct{}{}
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, ch)
			s.mu.Unlock()
		})
	}
}

// LED returns one device's state
func (s *State) LED(index int) devices.LEDState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 0 || index >= len(s.data.Devices) {
		return devices.LED_UNKNOWN
	}
	return s.data.Devices[index].LED
}

// Device returns a copy of one device record
func (s *State) Device(index int) (devices.Device, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 0 || index >= len(s.data.Devices) {
		return devices.Device{}, false
	}
	return s.data.Devices[index], true
}

// SetLED sets one device's state
func (s *State) SetLED(index int, led devices.LEDState) {
	s.Update(func(d *Data) {
		if index >= 0 && index < len(d.Devices) {
			d.Devices[index].LED = led
		}
	})
}

// NoteViewer adjusts the open viewer count by delta
func (s *State) NoteViewer(delta int) {
	s.Update(func(d *Data) {
		d.OpenViewers += delta
		if d.OpenViewers < 0 {
			d.OpenViewers = 0
		}
	})
}

// OpenViewers returns the number of connected live viewers
func (s *State) OpenViewers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.OpenViewers
}

// NoteDisplayLine records the most recent display text without waking
// subscribers
func (s *State) NoteDisplayLine(text string) {
	s.mu.Lock()
	s.data.LastDisplayLine = text
	s.mu.Unlock()
}

// NotePacket records the type of the last received frame without waking
// subscribers. It runs once per frame.
func (s *State) NotePacket(cmd uint8) {
	s.mu.Lock()
	s.data.LastPacketType = cmd
	s.data.LastPacketAt = time.Now()
	s.mu.Unlock()
}
