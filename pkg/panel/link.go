// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package panel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/Thermoquad/aquastat/pkg/arbiter"
	"github.com/Thermoquad/aquastat/pkg/jandy"
	"github.com/Thermoquad/aquastat/pkg/navigator"
)

// Link reads frames off the bus and answers polls addressed to our id.
// Every reply carries the arbiter's next key.
type Link struct {
	conn     io.ReadWriter
	handler  *Handler
	arb      *arbiter.Arbiter
	deviceID uint8
	mode     navigator.Mode

	mu    sync.Mutex
	stats *jandy.Statistics

	log logrus.FieldLogger
}

// NewLink creates a link over conn
func NewLink(conn io.ReadWriter, handler *Handler, arb *arbiter.Arbiter, deviceID uint8, mode navigator.Mode, log logrus.FieldLogger) *Link {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Link{
		conn:     conn,
		handler:  handler,
		arb:      arb,
		deviceID: deviceID,
		mode:     mode,
		stats:    jandy.NewStatistics(),
		log:      log.WithField("component", "link"),
	}
}

// Run decodes until the connection fails or ctx ends. A closable
// connection is closed when ctx ends so a blocked read returns.
func (l *Link) Run(ctx context.Context) error {
	if c, ok := l.conn.(io.Closer); ok {
		stop := context.AfterFunc(ctx, func() { c.Close() })
		defer stop()
	}

	decoder := jandy.NewDecoder()
	buf := make([]byte, 128)
	for {
		n, err := l.conn.Read(buf)
		for i := 0; i < n; i++ {
			packet, decodeErr := decoder.DecodeByte(buf[i])
			if decodeErr != nil {
				l.record(nil, decodeErr, nil)
				l.log.WithError(decodeErr).Debug("Bad frame")
				continue
			}
			if packet == nil {
				continue
			}
			if err := l.frame(packet); err != nil {
				return err
			}
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return fmt.Errorf("connection closed: %w", err)
			}
			return fmt.Errorf("read failed: %w", err)
		}
	}
}

// frame handles one decoded frame and replies when it is addressed to us
func (l *Link) frame(p *jandy.Packet) error {
	l.record(p, nil, jandy.ValidatePacket(p))

	if p.Dest() != l.deviceID {
		return nil
	}
	l.handler.Handle(p)

	ackType := uint8(jandy.ACK_NORMAL)
	if l.mode == navigator.MODE_PDA {
		if l.handler.ShouldSleep() {
			return nil
		}
		ackType = jandy.ACK_PDA
	}

	key, _ := l.arb.NextCommandToSend()
	if key != jandy.KEY_NONE {
		l.log.WithField("key", jandy.FormatKey(key, l.mode == navigator.MODE_PDA)).Debug("Sending key")
	}
	if _, err := l.conn.Write(jandy.EncodeAck(ackType, key)); err != nil {
		return fmt.Errorf("write ack: %w", err)
	}
	l.mu.Lock()
	l.stats.NoteAck(key)
	l.mu.Unlock()
	return nil
}

func (l *Link) record(p *jandy.Packet, decodeErr error, verrs []jandy.ValidationError) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stats.Update(p, decodeErr, verrs)
}

// Stats renders the frame counters
func (l *Link) Stats() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stats.String()
}
