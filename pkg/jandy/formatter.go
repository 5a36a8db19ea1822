// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package jandy

import (
	"fmt"
	"strings"
)

// FormatPacket formats a frame into a human-readable string. pda selects
// the PDA meaning of command bytes that are shared with keypads.
func FormatPacket(p *Packet, pda bool) string {
	timestamp := p.timestamp.Format("15:04:05.000")
	cmd := FormatCommand(p.command, pda)

	result := fmt.Sprintf("[%s] %s -> %s (0x%02X) len=%d\n",
		timestamp, cmd, FormatDevice(p.dest), p.command, len(p.data))

	if len(p.data) > 0 {
		result += FormatPayload(p.command, p.data, pda)
	}

	return result
}

// FormatCommand returns the human-readable name for a command byte
func FormatCommand(cmd uint8, pda bool) string {
	if pda {
		switch cmd {
		case CMD_PDA_HIGHLIGHT:
			return "PDA_HIGHLIGHT"
		case CMD_PDA_CLEAR:
			return "PDA_CLEAR"
		case CMD_PDA_SHIFTLINES:
			return "PDA_SHIFTLINES"
		case CMD_PDA_HIGHLIGHTCHARS:
			return "PDA_HIGHLIGHTCHARS"
		case CMD_PDA_0x1B:
			return "PDA_WAKE"
		}
	}

	switch cmd {
	case CMD_PROBE:
		return "PROBE"
	case CMD_ACK:
		return "ACK"
	case CMD_STATUS:
		return "STATUS"
	case CMD_MSG:
		return "MSG"
	case CMD_MSG_LONG:
		return "MSG_LONG"
	case CMD_MSG_LOOP_ST:
		return "MSG_LOOP_ST"
	default:
		return "UNKNOWN"
	}
}

// FormatDevice returns a short name for a bus address
func FormatDevice(id uint8) string {
	switch {
	case id == DEV_MASTER:
		return "MASTER"
	case id >= DEV_KEYPAD_MIN && id <= DEV_KEYPAD_MAX:
		return fmt.Sprintf("KEYPAD%d", id-DEV_KEYPAD_MIN)
	case id >= DEV_PDA_MIN && id <= DEV_PDA_MAX:
		return fmt.Sprintf("PDA%d", id-DEV_PDA_MIN)
	default:
		return fmt.Sprintf("0x%02X", id)
	}
}

// FormatKey returns the key name for a key code
func FormatKey(code uint8, pda bool) string {
	if pda {
		switch code {
		case KEY_PDA_PGUP:
			return "PGUP"
		case KEY_PDA_BACK:
			return "BACK"
		case KEY_PDA_PGDN:
			return "PGDN"
		case KEY_PDA_SELECT:
			return "SELECT"
		case KEY_PDA_DOWN:
			return "DOWN"
		case KEY_PDA_UP:
			return "UP"
		}
	}

	switch code {
	case KEY_NONE:
		return "NONE"
	case KEY_SPA:
		return "SPA"
	case KEY_PUMP:
		return "PUMP"
	case KEY_AUX1:
		return "AUX1"
	case KEY_AUX2:
		return "AUX2"
	case KEY_AUX3:
		return "AUX3"
	case KEY_AUX4:
		return "AUX4"
	case KEY_AUX5:
		return "AUX5"
	case KEY_AUX6:
		return "AUX6"
	case KEY_AUX7:
		return "AUX7"
	case KEY_MENU:
		return "MENU"
	case KEY_CANCEL:
		return "CANCEL"
	case KEY_POOL_HTR:
		return "POOL_HTR"
	case KEY_SPA_HTR:
		return "SPA_HTR"
	case KEY_SOLAR_HTR:
		return "SOLAR_HTR"
	case KEY_LEFT:
		return "LEFT"
	case KEY_RIGHT:
		return "RIGHT"
	case KEY_HOLD:
		return "HOLD"
	case KEY_OVERRIDE:
		return "OVERRIDE"
	case KEY_ENTER:
		return "ENTER"
	default:
		return fmt.Sprintf("0x%02X", code)
	}
}

// FormatPayload formats the data bytes based on command type
func FormatPayload(cmd uint8, data []byte, pda bool) string {
	switch cmd {
	case CMD_ACK:
		if len(data) >= 2 {
			return fmt.Sprintf("  Ack: 0x%02X  Key: %s\n", data[0], FormatKey(data[1], pda))
		}

	case CMD_MSG, CMD_MSG_LONG:
		if len(data) >= 1 {
			return fmt.Sprintf("  Line: 0x%02X  %q\n", data[0], printable(data[1:]))
		}

	case CMD_PDA_HIGHLIGHT:
		if pda && len(data) >= 1 {
			if data[0] >= SCREEN_LINES {
				return fmt.Sprintf("  Highlight: none (0x%02X)\n", data[0])
			}
			return fmt.Sprintf("  Highlight: line %d\n", data[0])
		}

	case CMD_PDA_HIGHLIGHTCHARS:
		if pda && len(data) >= 3 {
			return fmt.Sprintf("  Highlight: line %d chars %d-%d\n", data[0], data[1], data[2])
		}

	case CMD_PDA_SHIFTLINES:
		if pda && len(data) >= 3 {
			return fmt.Sprintf("  Shift: lines %d-%d by %d\n", data[0], data[1], int8(data[2]))
		}
	}

	return formatHex(data)
}

// printable trims at the first NUL and replaces control bytes with '.'
func printable(b []byte) string {
	var sb strings.Builder
	for _, c := range b {
		if c == 0 {
			break
		}
		if c < 0x20 || c > 0x7E {
			sb.WriteByte('.')
			continue
		}
		sb.WriteByte(c)
	}
	return sb.String()
}

func formatHex(data []byte) string {
	result := "  Data: "
	for i, b := range data {
		if i > 0 && i%16 == 0 {
			result += "\n        "
		}
		result += fmt.Sprintf("%02X ", b)
	}
	return result + "\n"
}
