// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package jandy

import "fmt"

// AnomalyType represents different types of frame anomalies
type AnomalyType int

const (
	ANOMALY_LENGTH_MISMATCH AnomalyType = iota
	ANOMALY_UNKNOWN_COMMAND
	ANOMALY_INVALID_LINE
	ANOMALY_INVALID_TEXT
	ANOMALY_CHECKSUM_ERROR
	ANOMALY_DECODE_ERROR
)

// ValidationError represents a frame validation failure
type ValidationError struct {
	Type    AnomalyType
	Message string
	Details map[string]interface{}
}

// Error implements the error interface
func (v *ValidationError) Error() string {
	return v.Message
}

// ValidatePacket validates frame structure and detects anomalies
// Returns a slice of validation errors (empty if the frame is valid)
func ValidatePacket(p *Packet) []ValidationError {
	errors := []ValidationError{}

	switch p.command {
	case CMD_PROBE, CMD_STATUS, CMD_PDA_CLEAR, CMD_PDA_0x1B:
		// Payload is optional or ignored
	case CMD_ACK:
		errors = append(errors, validateMinLength(p, 2, "ack")...)
	case CMD_MSG:
		errors = append(errors, validateMinLength(p, 1, "message")...)
		errors = append(errors, validateText(p, 1)...)
	case CMD_MSG_LONG:
		errors = append(errors, validateMessageLong(p)...)
	case CMD_PDA_HIGHLIGHT:
		errors = append(errors, validateMinLength(p, 1, "highlight")...)
	case CMD_PDA_HIGHLIGHTCHARS:
		errors = append(errors, validateMinLength(p, 1, "highlight chars")...)
	case CMD_PDA_SHIFTLINES:
		// Older panels send no range, newer send first, last, delta
		if len(p.data) != 0 && len(p.data) < 3 {
			errors = append(errors, ValidationError{
				Type:    ANOMALY_LENGTH_MISMATCH,
				Message: fmt.Sprintf("Shift lines payload has %d bytes (want 0 or >=3)", len(p.data)),
				Details: map[string]interface{}{"length": len(p.data)},
			})
		}
	default:
		errors = append(errors, ValidationError{
			Type:    ANOMALY_UNKNOWN_COMMAND,
			Message: fmt.Sprintf("Unknown command 0x%02X", p.command),
			Details: map[string]interface{}{"command": p.command},
		})
	}

	return errors
}

func validateMinLength(p *Packet, minimum int, what string) []ValidationError {
	if len(p.data) >= minimum {
		return nil
	}
	return []ValidationError{{
		Type:    ANOMALY_LENGTH_MISMATCH,
		Message: fmt.Sprintf("%s payload too short (minimum %d bytes)", what, minimum),
		Details: map[string]interface{}{"length": len(p.data), "minimum": minimum},
	}}
}

func validateMessageLong(p *Packet) []ValidationError {
	errors := validateMinLength(p, 1, "long message")
	if len(errors) > 0 {
		return errors
	}

	line := p.data[0]
	if line >= SCREEN_LINES && line != LINE_TIME && line != LINE_TEMPERATURE {
		errors = append(errors, ValidationError{
			Type:    ANOMALY_INVALID_LINE,
			Message: fmt.Sprintf("Long message line 0x%02X out of range", line),
			Details: map[string]interface{}{"line": line, "max": SCREEN_LINES - 1},
		})
	}
	return append(errors, validateText(p, 1)...)
}

// validateText flags control characters inside display text
func validateText(p *Packet, offset int) []ValidationError {
	if offset >= len(p.data) {
		return nil
	}
	for i, c := range p.data[offset:] {
		if c == 0 {
			break
		}
		if c < 0x20 || c > 0x7E {
			return []ValidationError{{
				Type:    ANOMALY_INVALID_TEXT,
				Message: fmt.Sprintf("Non-printable byte 0x%02X at text offset %d", c, i),
				Details: map[string]interface{}{"byte": c, "offset": i},
			}}
		}
	}
	return nil
}
