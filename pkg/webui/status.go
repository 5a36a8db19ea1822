// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package webui

import (
	"github.com/Thermoquad/aquastat/pkg/screen"
	"github.com/Thermoquad/aquastat/pkg/session"
	"github.com/Thermoquad/aquastat/pkg/state"
)

// Status is the JSON document sent to viewers. Unknown numbers are null.
type Status struct {
	Devices []DeviceStatus `json:"devices"`

	PoolSetpoint   *int   `json:"pool_setpoint"`
	SpaSetpoint    *int   `json:"spa_setpoint"`
	FreezeSetpoint *int   `json:"freeze_setpoint"`
	SWGPercent     *int   `json:"swg_percent"`
	SWGPPM         *int   `json:"swg_ppm"`
	SWG            string `json:"swg"`
	FreezeProtect  string `json:"freeze_protect"`

	AirTemp  *int   `json:"air_temp"`
	PoolTemp *int   `json:"pool_temp"`
	SpaTemp  *int   `json:"spa_temp"`
	Units    string `json:"units"`

	Pumps []PumpStatus `json:"pumps,omitempty"`

	Panel   string `json:"panel"`
	Version string `json:"version,omitempty"`
	Time    string `json:"time,omitempty"`
	Date    string `json:"date,omitempty"`

	Screen  ScreenStatus  `json:"screen"`
	Session SessionStatus `json:"session"`

	OpenViewers int `json:"open_viewers"`
}

type DeviceStatus struct {
	Name  string `json:"name"`
	Label string `json:"label"`
	LED   string `json:"led"`
}

type PumpStatus struct {
	Index int    `json:"index"`
	Name  string `json:"name"`
	RPM   int    `json:"rpm"`
	Watts int    `json:"watts"`
	GPM   int    `json:"gpm"`
}

type ScreenStatus struct {
	Lines     []string `json:"lines"`
	Highlight int      `json:"highlight"`
	Menu      string   `json:"menu"`
	Message   string   `json:"message,omitempty"`
}

type SessionStatus struct {
	Active bool   `json:"active"`
	Kind   string `json:"kind"`
}

func known(v int) *int {
	if v == state.TEMP_UNKNOWN {
		return nil
	}
	return &v
}

// NewStatus builds the viewer document
func NewStatus(d state.Data, v screen.View, cur session.Info) Status {
	s := Status{
		PoolSetpoint:   known(d.PoolSetpoint),
		SpaSetpoint:    known(d.SpaSetpoint),
		FreezeSetpoint: known(d.FreezeSetpoint),
		SWGPercent:     known(d.SWGPercent),
		SWGPPM:         known(d.SWGPPM),
		SWG:            d.SWGStatus.String(),
		FreezeProtect:  d.FreezeProtect.String(),
		AirTemp:        known(d.AirTemp),
		PoolTemp:       known(d.PoolTemp),
		SpaTemp:        known(d.SpaTemp),
		Units:          d.Units.String(),
		Panel:          d.Panel.String(),
		Version:        d.Version,
		Time:           d.Time,
		Date:           d.Date,
		Screen: ScreenStatus{
			Lines:     v.Lines[:],
			Highlight: v.Highlight,
			Menu:      v.Menu().String(),
			Message:   v.Message,
		},
		Session:     SessionStatus{Active: cur.Active, Kind: cur.Kind.String()},
		OpenViewers: d.OpenViewers,
	}
	for _, dev := range d.Devices {
		s.Devices = append(s.Devices, DeviceStatus{Name: dev.Name, Label: dev.Label, LED: dev.LED.String()})
	}
	for _, p := range d.Pumps {
		if p.Index != 0 {
			s.Pumps = append(s.Pumps, PumpStatus{Index: p.Index, Name: p.Name, RPM: p.RPM, Watts: p.Watts, GPM: p.GPM})
		}
	}
	return s
}
