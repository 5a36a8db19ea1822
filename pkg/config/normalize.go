// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package config

import (
	"strings"

	"github.com/Thermoquad/aquastat/pkg/navigator"
)

// normalize fills unset values with defaults. It runs before Validate so
// validation sees the effective configuration.
func (c *Config) normalize() {
	c.Panel.Mode = strings.ToLower(strings.TrimSpace(c.Panel.Mode))
	if c.Panel.Mode == "" {
		c.Panel.Mode = "pda"
	}

	t := navigator.DefaultTiming()
	setDuration(&c.Timing.SessionTimeout, t.SessionTimeout)
	setDuration(&c.Timing.AckTimeout, t.AckTimeout)
	setDuration(&c.Timing.OperationTimeout, t.OperationTimeout)
	setDuration(&c.Timing.MessageQuiet, t.MessageQuiet)
	setInt(&c.Timing.NumericMaxSteps, t.NumericMaxSteps)
	setInt(&c.Timing.SubMenuTries, t.SubMenuTries)
	setInt(&c.Timing.MenuTries, t.MenuTries)

	// LightPause stays 0 unless set: 0 means follow the LED
	l := navigator.DefaultLightTiming()
	setDuration(&c.Timing.LightInitialOn, l.InitialOn)
	setDuration(&c.Timing.LightInitialOff, l.InitialOff)

	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = "aquastat"
	}
	c.MQTT.Prefix = strings.Trim(c.MQTT.Prefix, "/")
	if c.MQTT.Prefix == "" {
		c.MQTT.Prefix = "aquastat"
	}

	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

func setDuration[T ~int64](v *T, def T) {
	if *v == 0 {
		*v = def
	}
}

func setInt(v *int, def int) {
	if *v == 0 {
		*v = def
	}
}
