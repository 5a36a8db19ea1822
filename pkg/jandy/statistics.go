// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package jandy

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Statistics counts bus traffic. It is not safe for concurrent use.
type Statistics struct {
	StartTime      time.Time
	LastUpdateTime time.Time

	TotalPackets     uint64
	ValidPackets     uint64
	ChecksumErrors   uint64
	DecodeErrors     uint64
	MalformedPackets uint64
	LengthMismatches uint64
	UnknownCommands  uint64
	InvalidLines     uint64
	InvalidText      uint64

	ByCommand map[uint8]uint64
	ByDest    map[uint8]uint64

	// Replies we sent, and how many of them carried a key
	AcksSent uint64
	KeysSent uint64

	PacketRate float64 // frames/sec
	ErrorRate  float64 // errors/sec
}

func NewStatistics() *Statistics {
	now := time.Now()
	return &Statistics{
		StartTime:      now,
		LastUpdateTime: now,
		ByCommand:      make(map[uint8]uint64),
		ByDest:         make(map[uint8]uint64),
	}
}

// Update counts one decoder result. A decode error is counted on its own;
// anomalies count the frame as malformed.
func (s *Statistics) Update(packet *Packet, decodeErr error, validationErrors []ValidationError) {
	s.TotalPackets++
	s.LastUpdateTime = time.Now()

	if decodeErr != nil {
		if strings.HasPrefix(decodeErr.Error(), "checksum mismatch") {
			s.ChecksumErrors++
		} else {
			s.DecodeErrors++
		}
		return
	}
	if packet != nil {
		s.ByCommand[packet.command]++
		s.ByDest[packet.dest]++
	}

	if len(validationErrors) == 0 {
		s.ValidPackets++
		return
	}
	s.MalformedPackets++
	for _, err := range validationErrors {
		switch err.Type {
		case ANOMALY_LENGTH_MISMATCH:
			s.LengthMismatches++
		case ANOMALY_UNKNOWN_COMMAND:
			s.UnknownCommands++
		case ANOMALY_INVALID_LINE:
			s.InvalidLines++
		case ANOMALY_INVALID_TEXT:
			s.InvalidText++
		}
	}
}

// NoteAck counts a reply we put on the bus
func (s *Statistics) NoteAck(key uint8) {
	s.AcksSent++
	if key != KEY_NONE {
		s.KeysSent++
	}
}

func (s *Statistics) CalculateRates() {
	elapsed := time.Since(s.StartTime).Seconds()
	if elapsed <= 0 {
		return
	}
	s.PacketRate = float64(s.TotalPackets) / elapsed
	s.ErrorRate = float64(s.ChecksumErrors+s.DecodeErrors+s.MalformedPackets) / elapsed
}

func percent(n, total uint64) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) * 100 / float64(total)
}

// String renders a summary. The first line is a one-line overview.
func (s *Statistics) String() string {
	s.CalculateRates()

	var b strings.Builder
	fmt.Fprintf(&b, "%d frames (%.1f/s), %d bad, %d acks, %d keys\n",
		s.TotalPackets, s.PacketRate, s.TotalPackets-s.ValidPackets, s.AcksSent, s.KeysSent)

	fmt.Fprintf(&b, "Valid Frames:    %8d (%.1f%%)\n", s.ValidPackets, percent(s.ValidPackets, s.TotalPackets))
	rows := []struct {
		name string
		n    uint64
	}{
		{"Checksum Errors", s.ChecksumErrors},
		{"Decode Errors", s.DecodeErrors},
		{"Malformed", s.MalformedPackets},
		{"  Length Mismatch", s.LengthMismatches},
		{"  Unknown Command", s.UnknownCommands},
		{"  Invalid Line", s.InvalidLines},
		{"  Invalid Text", s.InvalidText},
	}
	for _, r := range rows {
		if r.n > 0 {
			fmt.Fprintf(&b, "%-17s%8d (%.1f%%)\n", r.name+":", r.n, percent(r.n, s.TotalPackets))
		}
	}
	fmt.Fprintf(&b, "Error Rate:      %8.1f errors/sec\n", s.ErrorRate)

	dests := make([]int, 0, len(s.ByDest))
	for d := range s.ByDest {
		dests = append(dests, int(d))
	}
	sort.Ints(dests)
	for _, d := range dests {
		fmt.Fprintf(&b, "  %-10s %8d\n", FormatDevice(uint8(d)), s.ByDest[uint8(d)])
	}
	return b.String()
}

func (s *Statistics) Reset() {
	*s = *NewStatistics()
}
