// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/aquastat/pkg/jandy"
)

var (
	rawLogDest     string
	rawLogValidate bool
	rawLogStats    bool
)

var rawLogCmd = &cobra.Command{
	Use:   "raw_log",
	Short: "Decode and print bus traffic",
	Long: `Passively decode and print every frame on the bus.

Nothing is transmitted. Command bytes shared between keypads and PDAs are
named according to panel.mode from the config file.

Supports both serial and WebSocket connections.`,
	RunE: runRawLog,
}

func init() {
	rawLogCmd.Flags().StringVar(&rawLogDest, "dest", "", "Only show frames for this device id (e.g. 0x60)")
	rawLogCmd.Flags().BoolVar(&rawLogValidate, "validate", false, "Print frame anomalies")
	rawLogCmd.Flags().BoolVar(&rawLogStats, "stats", false, "Print statistics on exit")
	rootCmd.AddCommand(rawLogCmd)
}

func runRawLog(cmd *cobra.Command, args []string) error {
	dest := -1
	if rawLogDest != "" {
		v, err := strconv.ParseUint(rawLogDest, 0, 8)
		if err != nil {
			return fmt.Errorf("invalid --dest %q", rawLogDest)
		}
		dest = int(v)
	}
	pda := cfg.Panel.Mode == "pda"

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	conn, connInfo, err := OpenConnection(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()
	// unblock the read on Ctrl+C
	stopClose := context.AfterFunc(ctx, func() { conn.Close() })
	defer stopClose()

	fmt.Printf("Aquastat - Raw Packet Log\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	stats := jandy.NewStatistics()
	defer func() {
		if rawLogStats {
			stats.CalculateRates()
			fmt.Printf("\n%s\n", stats)
		}
	}()

	decoder := jandy.NewDecoder()
	buf := make([]byte, 128)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, ErrConnectionClosed) || errors.Is(err, io.EOF) {
				logrus.Info("Connection closed")
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}

		for i := 0; i < n; i++ {
			packet, err := decoder.DecodeByte(buf[i])
			if err != nil {
				stats.Update(nil, err, nil)
				fmt.Printf("[ERROR] %v\n", err)
				continue
			}
			if packet == nil {
				continue
			}
			verrs := jandy.ValidatePacket(packet)
			stats.Update(packet, nil, verrs)
			if dest >= 0 && int(packet.Dest()) != dest {
				continue
			}
			fmt.Print(jandy.FormatPacket(packet, pda))
			if rawLogValidate {
				for _, v := range verrs {
					fmt.Printf("  [ANOMALY] %s\n", v.Error())
				}
			}
		}
	}
}
