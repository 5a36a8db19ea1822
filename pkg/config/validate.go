// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/Thermoquad/aquastat/pkg/devices"
	"github.com/Thermoquad/aquastat/pkg/jandy"
	"github.com/Thermoquad/aquastat/pkg/navigator"
	"github.com/Thermoquad/aquastat/pkg/screen"
)

// Validate checks the configuration and reports every problem found,
// each prefixed with its field path. It does not modify c.
func (c *Config) Validate() error {
	var errs []error
	fail := func(path, format string, args ...any) {
		errs = append(errs, fmt.Errorf("%s: %s", path, fmt.Sprintf(format, args...)))
	}

	mode, err := navigator.ParseMode(c.Panel.Mode)
	if err != nil {
		fail("panel.mode", "must be pda or keypad, got %q", c.Panel.Mode)
	}
	if id := c.Panel.DeviceID; id != 0 && err == nil {
		lo, hi := uint8(jandy.DEV_KEYPAD_MIN), uint8(jandy.DEV_KEYPAD_MAX)
		if mode == navigator.MODE_PDA {
			lo, hi = jandy.DEV_PDA_MIN, jandy.DEV_PDA_MAX
		}
		if id < lo || id > hi {
			fail("panel.device_id", "0x%02X outside 0x%02X-0x%02X for %s", id, lo, hi, mode)
		}
	}

	if c.Timing.SessionTimeout < 0 || c.Timing.AckTimeout < 0 || c.Timing.OperationTimeout < 0 || c.Timing.MessageQuiet < 0 {
		fail("timing", "timeouts must be positive")
	}
	if c.Timing.NumericMaxSteps < 0 || c.Timing.SubMenuTries < 0 || c.Timing.MenuTries < 0 {
		fail("timing", "step and try limits must be positive")
	}
	if c.Timing.LightPause < 0 {
		fail("timing.light_pause", "must not be negative")
	}

	table := devices.Default()
	seen := make(map[string]bool)
	for i, d := range c.Devices {
		path := fmt.Sprintf("devices[%d]", i)
		if _, ok := table.ByName(d.Name); !ok {
			fail(path+".name", "unknown device %q", d.Name)
			continue
		}
		key := strings.ToLower(d.Name)
		if seen[key] {
			fail(path+".name", "%q listed twice", d.Name)
		}
		seen[key] = true
		if len(d.MenuLabel) > jandy.SCREEN_WIDTH {
			fail(path+".menu_label", "longer than %d characters", jandy.SCREEN_WIDTH)
		}
	}

	for i, r := range c.Menus.Rules {
		path := fmt.Sprintf("menus.rules[%d]", i)
		if _, err := screen.ParseMenuID(r.Menu); err != nil {
			fail(path+".menu", "%v", err)
		}
		if _, err := parseHighlight(r.Highlight); err != nil {
			fail(path+".highlight", "%v", err)
		}
		if len(r.All) == 0 && len(r.Any) == 0 {
			fail(path, "needs at least one line match")
		}
		for j, m := range append(append([]screen.LineMatch(nil), r.All...), r.Any...) {
			if m.Line < 0 || m.Line >= jandy.SCREEN_LINES {
				fail(fmt.Sprintf("%s.match[%d].line", path, j), "must be 0-%d", jandy.SCREEN_LINES-1)
			}
		}
	}

	for name, p := range c.Menus.Paths {
		path := "menus.paths." + name
		if _, err := screen.ParseMenuID(name); err != nil {
			fail(path, "%v", err)
		}
		for j, s := range p.Steps {
			if s.Item == "" {
				fail(fmt.Sprintf("%s.steps[%d].item", path, j), "must not be empty")
			}
		}
	}

	if c.MQTT.Broker != "" && !strings.Contains(c.MQTT.Broker, "://") {
		fail("mqtt.broker", "needs a scheme such as tcp://, got %q", c.MQTT.Broker)
	}
	if c.HABridge.Server != "" && c.HABridge.User == "" {
		fail("habridge.user", "required when habridge.server is set")
	}

	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		fail("log.level", "%v", err)
	}

	return errors.Join(errs...)
}

func parseHighlight(s string) (screen.HighlightCond, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "any":
		return screen.HIGHLIGHT_ANY, nil
	case "none":
		return screen.HIGHLIGHT_NONE, nil
	case "set":
		return screen.HIGHLIGHT_SET, nil
	}
	return screen.HIGHLIGHT_ANY, fmt.Errorf("must be any, none or set, got %q", s)
}
