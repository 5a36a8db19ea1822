// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package config

import (
	"strings"

	"github.com/Thermoquad/aquastat/pkg/devices"
	"github.com/Thermoquad/aquastat/pkg/navigator"
	"github.com/Thermoquad/aquastat/pkg/panel"
	"github.com/Thermoquad/aquastat/pkg/screen"
)

// DriverOptions converts the panel, timing, devices and menus sections.
// The config must have passed Validate.
func (c *Config) DriverOptions() panel.Options {
	mode, _ := navigator.ParseMode(c.Panel.Mode)

	return panel.Options{
		Mode:              mode,
		DeviceID:          c.Panel.DeviceID,
		SleepMode:         c.Panel.SleepMode,
		UsePanelAuxLabels: c.Panel.UsePanelAuxLabels,
		Timing: navigator.Timing{
			SessionTimeout:   c.Timing.SessionTimeout,
			AckTimeout:       c.Timing.AckTimeout,
			OperationTimeout: c.Timing.OperationTimeout,
			MessageQuiet:     c.Timing.MessageQuiet,
			NumericMaxSteps:  c.Timing.NumericMaxSteps,
			SubMenuTries:     c.Timing.SubMenuTries,
			MenuTries:        c.Timing.MenuTries,
		},
		Light: navigator.LightTiming{
			InitialOn:  c.Timing.LightInitialOn,
			InitialOff: c.Timing.LightInitialOff,
			Pause:      c.Timing.LightPause,
		},
		Devices: c.DeviceTable(),
		Catalog: c.Catalog(),
		Paths:   c.MenuPaths(),
	}
}

// DeviceTable is the built-in table with the configured label overrides
func (c *Config) DeviceTable() devices.Table {
	table := devices.Default()
	for _, o := range c.Devices {
		for i := range table {
			if !strings.EqualFold(table[i].Name, o.Name) {
				continue
			}
			if o.Label != "" {
				table[i].Label = o.Label
			}
			if o.MenuLabel != "" {
				table[i].MenuLabel = o.MenuLabel
			}
			if o.HabID != "" {
				table[i].HabID = o.HabID
			}
		}
	}
	return table
}

// Catalog puts the configured rules ahead of the built-in ones
func (c *Config) Catalog() screen.Catalog {
	var cat screen.Catalog
	for _, r := range c.Menus.Rules {
		menu, err := screen.ParseMenuID(r.Menu)
		if err != nil {
			continue
		}
		hl, _ := parseHighlight(r.Highlight)
		cat = append(cat, screen.Rule{
			Menu:      menu,
			All:       r.All,
			Any:       r.Any,
			Highlight: hl,
		})
	}
	return append(cat, screen.DefaultCatalog()...)
}

// MenuPaths is the built-in PDA path table with configured replacements
func (c *Config) MenuPaths() map[screen.MenuID]navigator.MenuPath {
	paths := navigator.DefaultMenuPaths()
	for name, p := range c.Menus.Paths {
		menu, err := screen.ParseMenuID(name)
		if err != nil {
			continue
		}
		paths[menu] = p
	}
	return paths
}
