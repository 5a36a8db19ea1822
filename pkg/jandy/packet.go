// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package jandy

import "time"

// Packet represents a decoded Jandy bus frame
type Packet struct {
	dest      uint8
	command   uint8
	data      []byte
	checksum  uint8
	timestamp time.Time
}

// NewPacket creates a new packet with the given fields
func NewPacket(dest uint8, command uint8, data []byte) *Packet {
	p := &Packet{
		dest:      dest,
		command:   command,
		data:      data,
		timestamp: time.Now(),
	}
	p.checksum = CalculateChecksum(p.Frame()[:PKT_DATA+len(data)])
	return p
}

// Dest returns the addressed device id
func (p *Packet) Dest() uint8 {
	return p.dest
}

// Command returns the command type byte
func (p *Packet) Command() uint8 {
	return p.command
}

// Data returns the data bytes following the command byte
func (p *Packet) Data() []byte {
	return p.data
}

// DataByte returns data[i], or 0 when the frame is shorter
func (p *Packet) DataByte(i int) uint8 {
	if i < 0 || i >= len(p.data) {
		return 0
	}
	return p.data[i]
}

// Checksum returns the frame checksum as received
func (p *Packet) Checksum() uint8 {
	return p.checksum
}

// Timestamp returns the packet's decode timestamp
func (p *Packet) Timestamp() time.Time {
	return p.timestamp
}

// Frame returns the unescaped frame: DLE STX dest cmd data... checksum DLE ETX
func (p *Packet) Frame() []byte {
	frame := make([]byte, 0, len(p.data)+7)
	frame = append(frame, DLE, STX, p.dest, p.command)
	frame = append(frame, p.data...)
	frame = append(frame, p.checksum, DLE, ETX)
	return frame
}

// Text returns the data bytes from offset as a display string, stopping at
// the first NUL byte.
func (p *Packet) Text(offset int) string {
	if offset >= len(p.data) {
		return ""
	}
	b := p.data[offset:]
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
