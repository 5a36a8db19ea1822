// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package jandy

// EncodePacket produces the on-wire bytes for a frame, stuffing any DLE in
// the body (including the checksum).
func EncodePacket(dest uint8, command uint8, data []byte) []byte {
	body := make([]byte, 0, len(data)+3)
	body = append(body, dest, command)
	body = append(body, data...)

	sum := uint8(DLE + STX)
	sum += CalculateChecksum(body)
	body = append(body, sum)

	out := make([]byte, 0, len(body)*2+4)
	out = append(out, DLE, STX)
	for _, b := range body {
		out = append(out, b)
		if b == DLE {
			out = append(out, DLE_STUFF)
		}
	}
	return append(out, DLE, ETX)
}

// EncodeAck builds the reply a remote sends after being addressed by the
// master. key is KEY_NONE when nothing is pending.
func EncodeAck(ackType uint8, key uint8) []byte {
	return EncodePacket(DEV_MASTER, CMD_ACK, []byte{ackType, key})
}
