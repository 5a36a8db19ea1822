// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/aquastat/pkg/errcode"
	"github.com/Thermoquad/aquastat/pkg/navigator"
	"github.com/Thermoquad/aquastat/pkg/panel"
	"github.com/Thermoquad/aquastat/pkg/webui"
)

var (
	setTimeout  time.Duration
	setShowJSON bool
)

var setCmd = &cobra.Command{
	Use:   "set <operation> [args...]",
	Short: "Run one operation and exit",
	Long: `Join the bus, run a single operation and print the resulting state.

Examples:
  aquastat set pool_heater 84
  aquastat set aux1 on
  aquastat set swg 40
  aquastat set light aux2 5
  aquastat set time now
  aquastat set key menu
  aquastat set temps

Exit codes:
  0 - Operation completed
  1 - Operation failed or timed out
  2 - Connection error`,
	Args: cobra.MinimumNArgs(1),
	Run:  runSet,
}

func init() {
	setCmd.Flags().DurationVarP(&setTimeout, "timeout", "t", 3*time.Minute, "Give up after this long")
	setCmd.Flags().BoolVar(&setShowJSON, "json", false, "Print the final state as JSON")
	rootCmd.AddCommand(setCmd)
}

func runSet(cmd *cobra.Command, args []string) {
	req, err := navigator.ParseRequest(args[0], args[1:]...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, setTimeout)
	defer cancel()

	conn, connInfo, err := OpenConnection(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}

	log := logrus.StandardLogger()
	d := panel.NewDriver(cfg.DriverOptions(), log)

	linkErr := make(chan error, 1)
	go func() { linkErr <- d.Run(ctx, conn) }()

	fmt.Fprintf(os.Stderr, "Joined bus on %s, waiting for the panel...\n", connInfo)
	code := 0
	if err := waitReady(ctx, d, linkErr); err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		code = 2
	} else if err := d.Do(ctx, req); err != nil {
		fmt.Fprintf(os.Stderr, "%s failed (%s): %v\n", req.Kind, errcode.Of(err), err)
		code = 1
	} else {
		printResult(d)
	}

	d.Close()
	cancel()
	conn.Close()
	os.Exit(code)
}

// waitReady blocks until the panel has polled us and, for a PDA, the
// startup init has been queued
func waitReady(ctx context.Context, d *panel.Driver, linkErr <-chan error) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		polled := !d.State.Snapshot().LastPacketAt.IsZero()
		if polled && (d.Engine.Mode() == navigator.MODE_KEYPAD || d.Handler.Initialized()) {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("no poll from the panel: %w", ctx.Err())
		case err := <-linkErr:
			return err
		case <-ticker.C:
		}
	}
}

func printResult(d *panel.Driver) {
	status := webui.NewStatus(d.State.Snapshot(), d.Screen.View(), d.Supervisor.Current())
	if setShowJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		enc.Encode(status)
		return
	}

	fmt.Println("OK")
	for _, dev := range status.Devices {
		fmt.Printf("  %-14s %s\n", dev.Label, dev.LED)
	}
	printTemp := func(name string, v *int) {
		if v != nil {
			fmt.Printf("  %-14s %d%s\n", name, *v, status.Units)
		}
	}
	printTemp("Air", status.AirTemp)
	printTemp("Pool", status.PoolTemp)
	printTemp("Spa", status.SpaTemp)
	printTemp("Pool setpoint", status.PoolSetpoint)
	printTemp("Spa setpoint", status.SpaSetpoint)
	printTemp("Freeze", status.FreezeSetpoint)
	if status.SWGPercent != nil {
		fmt.Printf("  %-14s %d%%\n", "SWG", *status.SWGPercent)
	}
}
