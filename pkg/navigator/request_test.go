// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package navigator

import (
	"testing"
	"time"

	"github.com/Thermoquad/aquastat/pkg/errcode"
	"github.com/Thermoquad/aquastat/pkg/jandy"
	"github.com/Thermoquad/aquastat/pkg/session"
)

func TestParseRequest(t *testing.T) {
	tests := []struct {
		op   string
		args []string
		want Request
	}{
		{"pool-heater", []string{"84"}, Request{Kind: session.KIND_SET_POOL_HEATER_TEMP, Value: 84}},
		{"set_spa_heater_temp", []string{"101"}, Request{Kind: session.KIND_SET_SPA_HEATER_TEMP, Value: 101}},
		{"freeze_setpoint", []string{"38"}, Request{Kind: session.KIND_SET_FREEZE_PROTECT_TEMP, Value: 38}},
		{"swg", []string{"45"}, Request{Kind: session.KIND_SET_SWG_PERCENT, Value: 45}},
		{"aux1", []string{"on"}, Request{Kind: session.KIND_DEVICE_ON_OFF, Device: "aux1", On: true}},
		{"spa_heater", []string{"off"}, Request{Kind: session.KIND_DEVICE_ON_OFF, Device: "spa_heater"}},
		{"device_on_off", []string{"pump", "0"}, Request{Kind: session.KIND_DEVICE_ON_OFF, Device: "pump"}},
		{"light", []string{"aux2", "5"}, Request{Kind: session.KIND_SET_LIGHT_COLOR_MODE, Device: "aux2", Value: 5}},
		{"key", []string{"menu"}, Request{Kind: session.KIND_SEND_KEY, Key: jandy.KEY_MENU}},
		{"key", []string{"select"}, Request{Kind: session.KIND_SEND_KEY, Key: jandy.KEY_PDA_SELECT}},
		{"key", []string{"0x1d"}, Request{Kind: session.KIND_SEND_KEY, Key: jandy.KEY_ENTER}},
		{"temps", nil, Request{Kind: session.KIND_GET_HEATER_TEMPS}},
		{"Get-Programs", nil, Request{Kind: session.KIND_GET_PROGRAMS}},
		{"time", []string{"now"}, Request{Kind: session.KIND_SET_TIME}},
	}

	for _, tt := range tests {
		t.Run(tt.op, func(t *testing.T) {
			got, err := ParseRequest(tt.op, tt.args...)
			if err != nil {
				t.Fatalf("ParseRequest(%q, %v) error = %v", tt.op, tt.args, err)
			}
			if got != tt.want {
				t.Errorf("ParseRequest(%q, %v) = %+v, want %+v", tt.op, tt.args, got, tt.want)
			}
		})
	}
}

func TestParseRequest_Time(t *testing.T) {
	got, err := ParseRequest("set_time", "2025-06-01", "14:30")
	if err != nil {
		t.Fatal(err)
	}
	want := time.Date(2025, 6, 1, 14, 30, 0, 0, time.Local)
	if !got.Time.Equal(want) {
		t.Errorf("Time = %v, want %v", got.Time, want)
	}
}

func TestParseRequest_Invalid(t *testing.T) {
	tests := []struct {
		op   string
		args []string
	}{
		{"", nil},
		{"pool_heater", nil},
		{"pool_heater", []string{"warm"}},
		{"aux1", nil},
		{"aux1", []string{"maybe"}},
		{"light", []string{"aux1"}},
		{"key", []string{"jump"}},
		{"time", []string{"noon"}},
	}

	for _, tt := range tests {
		_, err := ParseRequest(tt.op, tt.args...)
		if errcode.Of(err) != errcode.InvalidArgument {
			t.Errorf("ParseRequest(%q, %v) = %v, want invalid_argument", tt.op, tt.args, err)
		}
	}
}
