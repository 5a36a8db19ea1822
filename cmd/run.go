// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Thermoquad/aquastat/pkg/habridge"
	"github.com/Thermoquad/aquastat/pkg/history"
	"github.com/Thermoquad/aquastat/pkg/mqttpub"
	"github.com/Thermoquad/aquastat/pkg/panel"
	"github.com/Thermoquad/aquastat/pkg/webui"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the remote as a daemon",
	Long: `Emulate a remote on the bus and serve the configured surfaces.

The driver reconnects on its own when the serial adapter or websocket
bridge goes away. Depending on the config file it also:
  - serves the JSON API and a websocket status stream (web.listen)
  - publishes state to an MQTT broker and accepts set requests (mqtt.broker)
  - pushes equipment state to a HA bridge (habridge.server)
  - records state changes to a SQLite database (history.path)

Stops on SIGINT or SIGTERM.`,
	RunE: runDaemon,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runDaemon(cmd *cobra.Command, args []string) error {
	c, err := newConnector()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := logrus.StandardLogger()
	d := panel.NewDriver(cfg.DriverOptions(), log)
	defer d.Close()

	// Open everything that can fail before starting any goroutine
	var rec *history.Recorder
	if cfg.History.Path != "" {
		store, err := history.Open(cfg.History.Path, log)
		if err != nil {
			return err
		}
		defer store.Close()
		rec = history.NewRecorder(store, d.State, cfg.History.Temperatures, log)
	}

	var pub *mqttpub.Publisher
	if cfg.MQTT.Broker != "" {
		var ready atomic.Pointer[mqttpub.Publisher]
		subscribe := func() {
			p := ready.Load()
			if p == nil {
				return
			}
			if err := p.Subscribe(); err != nil {
				log.WithError(err).Error("MQTT subscribe failed")
			}
			p.Resync()
		}

		client, err := mqttpub.Dial(cfg.MQTT.Broker, cfg.MQTT.ClientID, cfg.MQTT.Username, cfg.MQTT.Password, subscribe, log)
		if err != nil {
			return err
		}
		defer client.Disconnect(250)

		pub = mqttpub.New(client, d.State, d, cfg.MQTT.Prefix, log)
		ready.Store(pub)
		// the first connect may have completed before pub existed
		if client.IsConnected() {
			subscribe()
		}
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		newBusManager(d, c, nil, log).run(ctx)
		return nil
	})

	if cfg.Web.Listen != "" {
		srv := webui.New(d.State, d.Screen, d.Supervisor, d, log)
		g.Go(func() error { return srv.ListenAndServe(ctx, cfg.Web.Listen) })
	}

	if cfg.HABridge.Server != "" {
		bridge := habridge.New(d.State, habridge.Options{
			Server: cfg.HABridge.Server,
			User:   cfg.HABridge.User,
		}, log)
		g.Go(func() error { return ignoreCanceled(bridge.Run(ctx)) })
	}

	if pub != nil {
		g.Go(func() error { return ignoreCanceled(pub.Run(ctx)) })
	}

	if rec != nil {
		g.Go(func() error { return ignoreCanceled(rec.Run(ctx)) })
	}

	err = g.Wait()
	log.Info("Shutting down")
	return err
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
