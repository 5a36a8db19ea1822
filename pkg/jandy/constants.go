// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package jandy

// Protocol Framing Bytes
const (
	DLE = 0x10
	STX = 0x02
	ETX = 0x03

	// A DLE inside the frame body is sent as DLE followed by this byte
	DLE_STUFF = 0x00
)

// Frame Offsets (unescaped frame, including the leading DLE STX)
const (
	PKT_DEST = 2
	PKT_CMD  = 3
	PKT_DATA = 4
)

// Frame Size Limits
const (
	MAX_FRAME_SIZE = 128
	MAX_DATA_SIZE  = MAX_FRAME_SIZE - 7
)

// Device Addresses
const (
	DEV_MASTER = 0x00

	// Keypads answer on 0x08-0x0B, PDA remotes on 0x60-0x63
	DEV_KEYPAD_MIN = 0x08
	DEV_KEYPAD_MAX = 0x0B
	DEV_PDA_MIN    = 0x60
	DEV_PDA_MAX    = 0x63
)

// Command Types - common
const (
	CMD_PROBE    = 0x00
	CMD_ACK      = 0x01
	CMD_STATUS   = 0x02
	CMD_MSG      = 0x03
	CMD_MSG_LONG = 0x04
)

// Command Types - keypad
const (
	CMD_MSG_LOOP_ST = 0x08
)

// Command Types - PDA
const (
	CMD_PDA_HIGHLIGHT      = 0x08
	CMD_PDA_CLEAR          = 0x09
	CMD_PDA_SHIFTLINES     = 0x0F
	CMD_PDA_HIGHLIGHTCHARS = 0x10
	CMD_PDA_0x1B           = 0x1B
)

// Ack Types
const (
	ACK_NORMAL = 0x80
	ACK_PDA    = 0x40
)

// Message line ids carried in the first data byte of CMD_MSG_LONG
const (
	LINE_TIME        = 0x40
	LINE_TEMPERATURE = 0x82
)

// Key Codes - keypad
const (
	KEY_NONE      = 0x00
	KEY_SPA       = 0x01
	KEY_PUMP      = 0x02
	KEY_AUX1      = 0x05
	KEY_AUX4      = 0x06
	KEY_MENU      = 0x09
	KEY_AUX2      = 0x0A
	KEY_AUX5      = 0x0B
	KEY_CANCEL    = 0x0E
	KEY_AUX3      = 0x0F
	KEY_AUX6      = 0x10
	KEY_POOL_HTR  = 0x12
	KEY_LEFT      = 0x13
	KEY_AUX7      = 0x15
	KEY_SPA_HTR   = 0x17
	KEY_RIGHT     = 0x18
	KEY_HOLD      = 0x19
	KEY_SOLAR_HTR = 0x1C
	KEY_ENTER     = 0x1D
	KEY_OVERRIDE  = 0x1E
)

// Key Codes - PDA
const (
	KEY_PDA_PGUP   = 0x01
	KEY_PDA_BACK   = 0x02
	KEY_PDA_PGDN   = 0x03
	KEY_PDA_SELECT = 0x04
	KEY_PDA_DOWN   = 0x05
	KEY_PDA_UP     = 0x06
)

// Decoder States
const (
	STATE_IDLE = iota
	STATE_START
	STATE_BODY
	STATE_ESCAPE
)

// Display geometry
const (
	SCREEN_LINES = 10
	SCREEN_WIDTH = 16
)
