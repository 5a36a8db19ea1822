// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package navigator

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Thermoquad/aquastat/pkg/devices"
	"github.com/Thermoquad/aquastat/pkg/errcode"
	"github.com/Thermoquad/aquastat/pkg/screen"
)

// LightTiming controls color light programming. The light's own timer
// decides when the next press counts, so these are real delays.
type LightTiming struct {
	InitialOn  time.Duration // on time before the reset when the light starts off
	InitialOff time.Duration // off time that resets the light's program
	Pause      time.Duration // between pulses; 0 waits for the LED instead
}

// DefaultLightTiming suits Jandy and Pentair color lights
func DefaultLightTiming() LightTiming {
	return LightTiming{
		InitialOn:  15 * time.Second,
		InitialOff: 12 * time.Second,
	}
}

// LED_WAIT_UPDATES bounds each wait for the button LED in pulse mode
const LED_WAIT_UPDATES = 2

// setLightMode selects color program r.Value on the light behind r.Device
// by cycling its button. Mode 0 just turns the light off.
func (e *Engine) setLightMode(ctx context.Context, r Request) error {
	dev, err := e.device("light", r.Device)
	if err != nil {
		return err
	}
	lt := e.light
	if r.Light != nil {
		lt = *r.Light
	}
	log := e.log.WithFields(logrus.Fields{"device": dev.Name, "mode": r.Value})

	press := func() error { return e.send(ctx, dev.Key) }
	pause := func(d time.Duration) error {
		if err := e.sleep(ctx, d); err != nil {
			return errcode.Wrap(errcode.Cancelled, "light", err)
		}
		return nil
	}

	if r.Value <= 0 {
		if e.st.LED(dev.Index) == devices.LED_ON {
			return press()
		}
		return nil
	}

	if e.st.LED(dev.Index) != devices.LED_ON {
		log.Info("Light is off, turning on before reset")
		if err := press(); err != nil {
			return err
		}
		if err := pause(lt.InitialOn); err != nil {
			return err
		}
	}

	log.Info("Resetting light program")
	if err := press(); err != nil {
		return err
	}
	if err := pause(lt.InitialOff); err != nil {
		return err
	}

	if lt.Pause > 0 {
		// Every press toggles; the light ends on after 2*mode-1 presses
		for i := 1; i < r.Value*2; i++ {
			if err := press(); err != nil {
				return err
			}
			if err := pause(lt.Pause); err != nil {
				return err
			}
		}
		return nil
	}

	for i := 1; i < r.Value; i++ {
		if err := press(); err != nil {
			return err
		}
		e.waitLED(ctx, dev.Index, devices.LED_ON)
		if err := press(); err != nil {
			return err
		}
		e.waitLED(ctx, dev.Index, devices.LED_OFF)
	}
	return press()
}

// waitLED waits a couple of updates for a device LED to reach want
func (e *Engine) waitLED(ctx context.Context, index int, want devices.LEDState) bool {
	return e.scr.WaitForCondition(ctx, func(*screen.View) bool {
		return e.st.LED(index) == want
	}, LED_WAIT_UPDATES)
}
