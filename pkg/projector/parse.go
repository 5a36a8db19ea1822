// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package projector

import (
	"strings"

	"github.com/Thermoquad/aquastat/pkg/devices"
	"github.com/Thermoquad/aquastat/pkg/jandy"
)

// atoi reads an optionally signed integer after leading spaces and stops at
// the first non-digit. It returns 0 when there is none.
func atoi(s string) int {
	i := 0
	for i < len(s) && (s[i] == ' ' || s[i] == '\t') {
		i++
	}
	neg := false
	if i < len(s) && (s[i] == '-' || s[i] == '+') {
		neg = s[i] == '-'
		i++
	}
	n := 0
	for ; i < len(s) && s[i] >= '0' && s[i] <= '9'; i++ {
		n = n*10 + int(s[i]-'0')
	}
	if neg {
		return -n
	}
	return n
}

// atoiAt is atoi on s[offset:], 0 when s is shorter
func atoiAt(s string, offset int) int {
	if offset >= len(s) {
		return 0
	}
	return atoi(s[offset:])
}

// intAfter finds key (ignoring case) and parses the integer after it
func intAfter(s, key string) (int, bool) {
	i := indexFold(s, key)
	if i < 0 {
		return 0, false
	}
	return atoi(s[i+len(key):]), true
}

// indexFold is strings.Index with ASCII letters matched in either case.
// Every other byte, including invalid UTF-8, compares exactly, so the
// result always indexes s.
func indexFold(s, key string) int {
	for i := 0; i+len(key) <= len(s); i++ {
		j := 0
		for j < len(key) && upper(s[i+j]) == upper(key[j]) {
			j++
		}
		if j == len(key) {
			return i
		}
	}
	return -1
}

func upper(c byte) byte {
	if c >= 'a' && c <= 'z' {
		return c - ('a' - 'A')
	}
	return c
}

// lastChar returns the character in the final display column
func lastChar(s string) byte {
	if len(s) < jandy.SCREEN_WIDTH {
		return ' '
	}
	return s[jandy.SCREEN_WIDTH-1]
}

// field returns s[from:to] clipped to the string
func field(s string, from, to int) string {
	if from >= len(s) {
		return ""
	}
	if to > len(s) {
		to = len(s)
	}
	return s[from:to]
}

// ledFromMarker maps the state column of a menu row
func ledFromMarker(c byte) devices.LEDState {
	switch c {
	case 'N':
		return devices.LED_ON
	case 'A':
		return devices.LED_ENABLE
	case '*':
		return devices.LED_FLASH
	default:
		return devices.LED_OFF
	}
}

// pumpHeader recognises a pump title such as "Intelliflo VS 1": a name, a
// space and a single digit pump number.
func pumpHeader(line string) (string, int, bool) {
	t := strings.TrimSpace(line)
	if len(t) < 3 {
		return "", 0, false
	}
	n := t[len(t)-1]
	if n < '1' || n > '0'+MAX_PUMP_NUMBER || t[len(t)-2] != ' ' {
		return "", 0, false
	}
	return strings.TrimSpace(t[:len(t)-2]), int(n - '0'), true
}
