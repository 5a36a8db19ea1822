// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package screen

import (
	"fmt"
	"strings"
)

// MenuID names a classified screen
type MenuID int

const (
	MENU_UNKNOWN MenuID = iota
	MENU_HOME
	MENU_BUILDING_HOME
	MENU_MAIN
	MENU_EQUIPMENT_STATUS
	MENU_EQUIPMENT_CONTROL
	MENU_SET_TEMP
	MENU_SET_TIME
	MENU_AQUAPURE
	MENU_SPA_HEAT
	MENU_POOL_HEAT
	MENU_SYSTEM_SETUP
	MENU_FREEZE_PROTECT
	MENU_FREEZE_PROTECT_DEVICES
	MENU_FW_VERSION
	MENU_AUX_LABEL
	MENU_AUX_LABEL_DEVICE
	MENU_DIAGNOSTICS
	MENU_PROGRAM
	MENU_VSP
	MENU_SETTINGS
	MENU_PALM_OPTIONS
)

var menuNames = map[MenuID]string{
	MENU_UNKNOWN:                "UNKNOWN",
	MENU_HOME:                   "HOME",
	MENU_BUILDING_HOME:          "BUILDING_HOME",
	MENU_MAIN:                   "MAIN",
	MENU_EQUIPMENT_STATUS:       "EQUIPMENT_STATUS",
	MENU_EQUIPMENT_CONTROL:      "EQUIPMENT_CONTROL",
	MENU_SET_TEMP:               "SET_TEMP",
	MENU_SET_TIME:               "SET_TIME",
	MENU_AQUAPURE:               "AQUAPURE",
	MENU_SPA_HEAT:               "SPA_HEAT",
	MENU_POOL_HEAT:              "POOL_HEAT",
	MENU_SYSTEM_SETUP:           "SYSTEM_SETUP",
	MENU_FREEZE_PROTECT:         "FREEZE_PROTECT",
	MENU_FREEZE_PROTECT_DEVICES: "FREEZE_PROTECT_DEVICES",
	MENU_FW_VERSION:             "FW_VERSION",
	MENU_AUX_LABEL:              "AUX_LABEL",
	MENU_AUX_LABEL_DEVICE:       "AUX_LABEL_DEVICE",
	MENU_DIAGNOSTICS:            "DIAGNOSTICS",
	MENU_PROGRAM:                "PROGRAM",
	MENU_VSP:                    "VSP",
	MENU_SETTINGS:               "SETTINGS",
	MENU_PALM_OPTIONS:           "PALM_OPTIONS",
}

func (m MenuID) String() string {
	if name, ok := menuNames[m]; ok {
		return name
	}
	return fmt.Sprintf("MENU(%d)", int(m))
}

// ParseMenuID accepts the names produced by String, case-insensitively
func ParseMenuID(s string) (MenuID, error) {
	for id, name := range menuNames {
		if strings.EqualFold(name, strings.TrimSpace(s)) {
			return id, nil
		}
	}
	return MENU_UNKNOWN, fmt.Errorf("unknown menu %q", s)
}

// IsHome reports either form of the home screen
func (m MenuID) IsHome() bool {
	return m == MENU_HOME || m == MENU_BUILDING_HOME
}
