// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/aquastat/pkg/jandy"
)

var (
	packetTestTimeout time.Duration
	packetTestDest    string
)

var packetTestCmd = &cobra.Command{
	Use:   "packet_test",
	Short: "Test the connection by waiting for a valid frame",
	Long: `Wait for a frame with a good checksum until timeout.

Bytes before the first frame are skipped. With --dest the frame must be
addressed to that device id, which checks that the panel is polling it.

Exit codes:
  0 - Frame received before timeout
  1 - Timeout reached without receiving a valid frame
  2 - Connection error`,
	Run: runPacketTest,
}

func init() {
	packetTestCmd.Flags().DurationVar(&packetTestTimeout, "timeout", 10*time.Second, "How long to wait for a frame")
	packetTestCmd.Flags().StringVar(&packetTestDest, "dest", "", "Require a frame for this device id (e.g. 0x60)")
	rootCmd.AddCommand(packetTestCmd)
}

func runPacketTest(cmd *cobra.Command, args []string) {
	dest := -1
	if packetTestDest != "" {
		v, err := strconv.ParseUint(packetTestDest, 0, 8)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid --dest %q\n", packetTestDest)
			os.Exit(2)
		}
		dest = int(v)
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), packetTestTimeout)
	defer cancel()

	conn, connInfo, err := OpenConnection(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer conn.Close()

	fmt.Printf("Aquastat - Packet Test\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Timeout: %s\n", packetTestTimeout)
	fmt.Printf("Waiting for a valid frame...\n\n")

	packetChan := make(chan *jandy.Packet, 1)
	errChan := make(chan error, 1)

	go func() {
		decoder := jandy.NewDecoder()
		buf := make([]byte, 128)
		skipped := 0
		for {
			n, err := conn.Read(buf)
			if err != nil {
				errChan <- err
				return
			}
			for i := 0; i < n; i++ {
				packet, decodeErr := decoder.DecodeByte(buf[i])
				if decodeErr != nil {
					skipped++
					continue
				}
				if packet == nil || (dest >= 0 && int(packet.Dest()) != dest) {
					continue
				}
				if skipped > 0 {
					fmt.Printf("(skipped %d bad frames before sync)\n", skipped)
				}
				packetChan <- packet
				return
			}
		}
	}()

	pda := cfg.Panel.Mode == "pda"
	select {
	case packet := <-packetChan:
		fmt.Printf("SUCCESS: Received valid frame\n")
		fmt.Printf("  Command: %s (0x%02X)\n", jandy.FormatCommand(packet.Command(), pda), packet.Command())
		fmt.Printf("  Dest: %s\n", jandy.FormatDevice(packet.Dest()))
		fmt.Printf("  Length: %d bytes\n", len(packet.Data()))
		fmt.Printf("  Checksum: 0x%02X\n", packet.Checksum())
		os.Exit(0)

	case err := <-errChan:
		fmt.Fprintf(os.Stderr, "Read error: %v\n", err)
		os.Exit(2)

	case <-ctx.Done():
		fmt.Fprintf(os.Stderr, "TIMEOUT: No valid frame received within %s\n", packetTestTimeout)
		os.Exit(1)
	}
}
