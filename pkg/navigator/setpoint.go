// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package navigator

import (
	"fmt"

	"github.com/Thermoquad/aquastat/pkg/state"
)

// Panel limits
const (
	HEATER_MAX_F = 104
	HEATER_MIN_F = 36
	HEATER_MAX_C = 40
	HEATER_MIN_C = 0

	FREEZE_MAX_F = 42
	FREEZE_MIN_F = 34
	FREEZE_MAX_C = 5
	FREEZE_MIN_C = 1

	SWG_MAX  = 100
	SWG_MIN  = 0
	SWG_STEP = 5
)

// Setpoint names a value Clamp knows the limits of
type Setpoint int

const (
	SETPOINT_POOL Setpoint = iota
	SETPOINT_SPA
	SETPOINT_FREEZE
	SETPOINT_SWG
)

func (s Setpoint) String() string {
	switch s {
	case SETPOINT_POOL:
		return "pool heater"
	case SETPOINT_SPA:
		return "spa heater"
	case SETPOINT_FREEZE:
		return "freeze protect"
	case SETPOINT_SWG:
		return "salt water generator"
	default:
		return fmt.Sprintf("setpoint(%d)", int(s))
	}
}

// Clamp moves value into the legal range for sp given the panel's units
// and mode. It reports whether the value changed.
//
// With pool and spa sharing one heater (single device mode) the panel
// keeps TEMP1 above TEMP2, so the pool minimum sits one degree above the
// spa setpoint and the spa maximum one degree below the pool setpoint.
// Salt generator percentages snap to the nearest multiple of five.
func Clamp(sp Setpoint, value int, d *state.Data) (int, bool) {
	celsius := d.Units == state.UNITS_C
	lo, hi := 0, 0

	switch sp {
	case SETPOINT_POOL:
		lo, hi = HEATER_MIN_F, HEATER_MAX_F
		if celsius {
			lo, hi = HEATER_MIN_C, HEATER_MAX_C
		}
		if !d.SingleDevice {
			lo--
		} else if d.SpaSetpoint != state.TEMP_UNKNOWN && lo <= d.SpaSetpoint {
			lo = d.SpaSetpoint + 1
		}
	case SETPOINT_SPA:
		lo, hi = HEATER_MIN_F, HEATER_MAX_F
		if celsius {
			lo, hi = HEATER_MIN_C, HEATER_MAX_C
		}
		if !d.SingleDevice {
			hi--
		} else if d.PoolSetpoint != state.TEMP_UNKNOWN && hi >= d.PoolSetpoint {
			hi = d.PoolSetpoint - 1
		}
	case SETPOINT_FREEZE:
		lo, hi = FREEZE_MIN_F, FREEZE_MAX_F
		if celsius {
			lo, hi = FREEZE_MIN_C, FREEZE_MAX_C
		}
	case SETPOINT_SWG:
		lo, hi = SWG_MIN, SWG_MAX
	default:
		return value, false
	}

	out := value
	if out > hi {
		out = hi
	} else if out < lo {
		out = lo
	}
	if sp == SETPOINT_SWG {
		out = (out + SWG_STEP/2) / SWG_STEP * SWG_STEP
	}
	return out, out != value
}
