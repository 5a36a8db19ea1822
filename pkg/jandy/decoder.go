// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package jandy

import (
	"fmt"
	"time"
)

// Decoder implements the Jandy bus frame decoder state machine
type Decoder struct {
	state     int
	body      []byte // dest, cmd, data..., checksum (unescaped)
	rawBuffer []byte // Accumulate raw bytes including framing
}

// NewDecoder creates a new frame decoder
func NewDecoder() *Decoder {
	return &Decoder{
		state:     STATE_IDLE,
		body:      make([]byte, 0, MAX_FRAME_SIZE),
		rawBuffer: make([]byte, 0, MAX_FRAME_SIZE*2),
	}
}

// Reset resets the decoder state to idle
func (d *Decoder) Reset() {
	d.state = STATE_IDLE
	d.body = d.body[:0]
	d.rawBuffer = d.rawBuffer[:0]
}

// GetRawBytes returns the accumulated raw bytes since the last frame
func (d *Decoder) GetRawBytes() []byte {
	return d.rawBuffer
}

// DecodeByte processes a single byte through the decoder state machine
// Returns a completed packet, or nil if the frame is incomplete
// Returns an error if decoding fails
func (d *Decoder) DecodeByte(b byte) (*Packet, error) {
	d.rawBuffer = append(d.rawBuffer, b)

	switch d.state {
	case STATE_IDLE:
		if b == DLE {
			d.state = STATE_START
		} else {
			// Line noise between frames
			d.rawBuffer = d.rawBuffer[:0]
		}
		return nil, nil

	case STATE_START:
		switch b {
		case STX:
			d.body = d.body[:0]
			d.state = STATE_BODY
		case DLE:
			// Repeated DLE, keep waiting for STX
			d.rawBuffer = append(d.rawBuffer[:0], b)
		default:
			d.state = STATE_IDLE
			d.rawBuffer = d.rawBuffer[:0]
		}
		return nil, nil

	case STATE_BODY:
		if b == DLE {
			d.state = STATE_ESCAPE
			return nil, nil
		}
		if len(d.body) >= MAX_FRAME_SIZE {
			d.Reset()
			return nil, fmt.Errorf("buffer overflow: frame exceeds max size")
		}
		d.body = append(d.body, b)
		return nil, nil

	case STATE_ESCAPE:
		switch b {
		case DLE_STUFF:
			if len(d.body) >= MAX_FRAME_SIZE {
				d.Reset()
				return nil, fmt.Errorf("buffer overflow: frame exceeds max size")
			}
			d.body = append(d.body, DLE)
			d.state = STATE_BODY
			return nil, nil
		case ETX:
			return d.finish()
		case STX:
			// A new frame started before this one ended
			n := len(d.body)
			d.body = d.body[:0]
			d.rawBuffer = append(d.rawBuffer[:0], DLE, STX)
			d.state = STATE_BODY
			return nil, fmt.Errorf("truncated frame: restart after %d bytes", n)
		default:
			d.Reset()
			return nil, fmt.Errorf("invalid escape sequence: DLE 0x%02X", b)
		}

	default:
		d.Reset()
		return nil, fmt.Errorf("invalid state: %d", d.state)
	}
}

func (d *Decoder) finish() (*Packet, error) {
	if len(d.body) < 3 {
		n := len(d.body)
		d.Reset()
		return nil, fmt.Errorf("short frame: %d body bytes", n)
	}

	received := d.body[len(d.body)-1]
	sum := uint8(DLE + STX)
	sum += CalculateChecksum(d.body[:len(d.body)-1])
	if received != sum {
		d.Reset()
		return nil, fmt.Errorf("checksum mismatch: expected 0x%02X, got 0x%02X", sum, received)
	}

	data := make([]byte, len(d.body)-3)
	copy(data, d.body[2:len(d.body)-1])
	packet := &Packet{
		dest:      d.body[0],
		command:   d.body[1],
		data:      data,
		checksum:  received,
		timestamp: time.Now(),
	}

	d.state = STATE_IDLE
	d.body = d.body[:0]
	d.rawBuffer = d.rawBuffer[:0]
	return packet, nil
}
