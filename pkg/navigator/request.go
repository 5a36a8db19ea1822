// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package navigator

import (
	"strconv"
	"strings"
	"time"

	"github.com/Thermoquad/aquastat/pkg/errcode"
	"github.com/Thermoquad/aquastat/pkg/jandy"
	"github.com/Thermoquad/aquastat/pkg/session"
)

// Short names accepted besides the full operation names
var requestAliases = map[string]session.Kind{
	"pool_heater":     session.KIND_SET_POOL_HEATER_TEMP,
	"pool_setpoint":   session.KIND_SET_POOL_HEATER_TEMP,
	"spa_heater":      session.KIND_SET_SPA_HEATER_TEMP,
	"spa_setpoint":    session.KIND_SET_SPA_HEATER_TEMP,
	"freeze":          session.KIND_SET_FREEZE_PROTECT_TEMP,
	"freeze_setpoint": session.KIND_SET_FREEZE_PROTECT_TEMP,
	"swg":             session.KIND_SET_SWG_PERCENT,
	"swg_percent":     session.KIND_SET_SWG_PERCENT,
	"time":            session.KIND_SET_TIME,
	"light":           session.KIND_SET_LIGHT_COLOR_MODE,
	"key":             session.KIND_SEND_KEY,
	"temps":           session.KIND_GET_HEATER_TEMPS,
	"status":          session.KIND_DEVICE_STATUS,
}

// TIME_LAYOUT is the format accepted for SET_TIME arguments
const TIME_LAYOUT = "2006-01-02 15:04"

// ParseRequest builds a request from an operation name and its arguments
// as typed by a person or carried in a topic: "pool_heater 84",
// "aux1 on", "light aux2 5", "key menu". An unknown name is taken as a
// device name to switch.
func ParseRequest(op string, args ...string) (Request, error) {
	name := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(op), "-", "_"))

	// Heater names double as setpoint aliases; on/off means the device
	if name == "pool_heater" || name == "spa_heater" {
		if _, isSwitch := ParseOnOff(firstArg(args)); isSwitch {
			return deviceRequest(name, args)
		}
	}

	kind, ok := requestAliases[name]
	if !ok {
		k, err := session.ParseKind(name)
		if err != nil {
			if name == "" {
				return Request{}, errcode.New(errcode.InvalidArgument, "request", "empty operation")
			}
			return deviceRequest(name, args)
		}
		kind = k
	}

	req := Request{Kind: kind}
	switch kind {
	case session.KIND_SET_POOL_HEATER_TEMP, session.KIND_SET_SPA_HEATER_TEMP,
		session.KIND_SET_FREEZE_PROTECT_TEMP, session.KIND_SET_SWG_PERCENT:
		v, err := intArg(kind, args, 0)
		if err != nil {
			return Request{}, err
		}
		req.Value = v

	case session.KIND_SET_TIME:
		if len(args) > 0 && args[0] != "now" {
			t, err := time.ParseInLocation(TIME_LAYOUT, strings.Join(args, " "), time.Local)
			if err != nil {
				return Request{}, errcode.New(errcode.InvalidArgument, kind.String(), "time must look like "+TIME_LAYOUT)
			}
			req.Time = t
		}

	case session.KIND_SET_LIGHT_COLOR_MODE:
		if len(args) < 2 {
			return Request{}, errcode.New(errcode.InvalidArgument, kind.String(), "needs a device and a mode")
		}
		req.Device = args[0]
		v, err := intArg(kind, args, 1)
		if err != nil {
			return Request{}, err
		}
		req.Value = v

	case session.KIND_SEND_KEY:
		if len(args) < 1 {
			return Request{}, errcode.New(errcode.InvalidArgument, kind.String(), "needs a key")
		}
		key, ok := ParseKey(args[0])
		if !ok {
			return Request{}, errcode.New(errcode.InvalidArgument, kind.String(), "unknown key "+strconv.Quote(args[0]))
		}
		req.Key = key

	case session.KIND_DEVICE_ON_OFF:
		return deviceRequest(firstArg(args), args[min(1, len(args)):])
	}
	return req, nil
}

func deviceRequest(device string, args []string) (Request, error) {
	if device == "" || len(args) < 1 {
		return Request{}, errcode.New(errcode.InvalidArgument, "device_on_off", "needs a device and on or off")
	}
	on, ok := ParseOnOff(args[0])
	if !ok {
		return Request{}, errcode.New(errcode.InvalidArgument, "device_on_off", "state must be on or off, got "+strconv.Quote(args[0]))
	}
	return Request{Kind: session.KIND_DEVICE_ON_OFF, Device: device, On: on}, nil
}

func intArg(kind session.Kind, args []string, i int) (int, error) {
	if i >= len(args) {
		return 0, errcode.New(errcode.InvalidArgument, kind.String(), "missing value")
	}
	v, err := strconv.Atoi(strings.TrimSpace(args[i]))
	if err != nil {
		return 0, errcode.New(errcode.InvalidArgument, kind.String(), "value must be a whole number, got "+strconv.Quote(args[i]))
	}
	return v, nil
}

func firstArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}

// ParseOnOff accepts on/off, 1/0 and true/false
func ParseOnOff(s string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "on", "1", "true":
		return true, true
	case "off", "0", "false":
		return false, true
	}
	return false, false
}

// ParseKey accepts a key name as printed by the formatter, for either
// remote, or a number such as 0x09
func ParseKey(s string) (uint8, bool) {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseUint(s, 0, 8); err == nil {
		return uint8(n), true
	}
	for code := 0; code < 0x20; code++ {
		for _, pda := range []bool{false, true} {
			if strings.EqualFold(jandy.FormatKey(uint8(code), pda), s) {
				return uint8(code), true
			}
		}
	}
	return 0, false
}
