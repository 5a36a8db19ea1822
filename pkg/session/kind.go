// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package session

import (
	"fmt"
	"strings"
)

// Kind is the operation a session was opened for
type Kind int

const (
	KIND_NONE Kind = iota
	KIND_SEND_KEY
	KIND_SET_POOL_HEATER_TEMP
	KIND_SET_SPA_HEATER_TEMP
	KIND_SET_FREEZE_PROTECT_TEMP
	KIND_SET_SWG_PERCENT
	KIND_SET_TIME
	KIND_SET_LIGHT_COLOR_MODE
	KIND_GET_HEATER_TEMPS
	KIND_GET_FREEZE_PROTECT_TEMP
	KIND_GET_DIAGNOSTICS
	KIND_GET_PROGRAMS
	KIND_GET_AUX_LABELS
	KIND_DEVICE_ON_OFF
	KIND_DEVICE_STATUS
	KIND_PDA_INIT
	KIND_PDA_WAKE_INIT
)

var kindNames = []string{
	KIND_NONE:                    "none",
	KIND_SEND_KEY:                "send_key",
	KIND_SET_POOL_HEATER_TEMP:    "set_pool_heater_temp",
	KIND_SET_SPA_HEATER_TEMP:     "set_spa_heater_temp",
	KIND_SET_FREEZE_PROTECT_TEMP: "set_freeze_protect_temp",
	KIND_SET_SWG_PERCENT:         "set_swg_percent",
	KIND_SET_TIME:                "set_time",
	KIND_SET_LIGHT_COLOR_MODE:    "set_light_color_mode",
	KIND_GET_HEATER_TEMPS:        "get_heater_temps",
	KIND_GET_FREEZE_PROTECT_TEMP: "get_freeze_protect_temp",
	KIND_GET_DIAGNOSTICS:         "get_diagnostics",
	KIND_GET_PROGRAMS:            "get_programs",
	KIND_GET_AUX_LABELS:          "get_aux_labels",
	KIND_DEVICE_ON_OFF:           "device_on_off",
	KIND_DEVICE_STATUS:           "device_status",
	KIND_PDA_INIT:                "pda_init",
	KIND_PDA_WAKE_INIT:           "pda_wake_init",
}

func (k Kind) String() string {
	if k >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ParseKind accepts the names produced by String. Dashes and case are
// ignored so "set-pool-heater-temp" works on a command line.
func ParseKind(s string) (Kind, error) {
	s = strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), "-", "_"))
	for k, name := range kindNames {
		if name == s && Kind(k) != KIND_NONE {
			return Kind(k), nil
		}
	}
	return KIND_NONE, fmt.Errorf("unknown operation %q", s)
}

// Kinds lists every requestable operation
func Kinds() []Kind {
	out := make([]Kind, 0, len(kindNames)-1)
	for k := range kindNames {
		if Kind(k) != KIND_NONE {
			out = append(out, Kind(k))
		}
	}
	return out
}
