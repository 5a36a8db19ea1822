// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Thermoquad/aquastat/pkg/panel"
)

const (
	minBackoff = 1 * time.Second
	maxBackoff = 30 * time.Second
)

// busEvent reports a connection change to whoever drives the UI
type busEvent struct {
	connected bool
	info      string
	err       error
}

// busManager keeps a driver attached to the bus, reconnecting with
// exponential backoff whenever the connection drops
type busManager struct {
	driver *panel.Driver
	conn   *connector
	notify func(busEvent)
	log    logrus.FieldLogger
}

func newBusManager(d *panel.Driver, c *connector, notify func(busEvent), log logrus.FieldLogger) *busManager {
	if notify == nil {
		notify = func(busEvent) {}
	}
	return &busManager{driver: d, conn: c, notify: notify, log: log.WithField("component", "bus")}
}

// run returns when ctx ends
func (b *busManager) run(ctx context.Context) {
	backoff := minBackoff
	for {
		conn, err := b.conn.open(ctx)
		if err != nil {
			b.log.WithError(err).Warnf("Connect failed, retrying in %s", backoff)
			b.notify(busEvent{err: err})
		} else {
			b.log.Infof("Connected (%s)", b.conn.describe())
			b.notify(busEvent{connected: true, info: b.conn.describe()})
			backoff = minBackoff

			err = b.driver.Run(ctx, conn)
			conn.Close()
			if ctx.Err() != nil {
				return
			}
			if err != nil && !errors.Is(err, context.Canceled) {
				b.log.WithError(err).Warn("Connection lost")
			}
			b.notify(busEvent{err: err})
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}
