// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"io"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/aquastat/pkg/panel"
)

var controlCmd = &cobra.Command{
	Use:   "control",
	Short: "Interactive TUI for the panel",
	Long: `Drive the panel from an interactive terminal UI.

The TUI joins the bus as a remote and shows:
  - a live copy of the remote's display
  - every device with its indicator state
  - temperatures and setpoints
  - an event log of operations and connection changes

Tab switches between the device list and the request line. Enter on a
device switches it; the request line takes the same operations as
"aquastat set" (pool_heater 84, swg 40, key menu, ...).

The connection is re-established automatically when it drops.`,
	RunE: runControl,
}

func init() {
	rootCmd.AddCommand(controlCmd)
}

// teaHook forwards log entries to the TUI event log
type teaHook struct {
	p *tea.Program
}

func (h *teaHook) Levels() []logrus.Level {
	return []logrus.Level{logrus.ErrorLevel, logrus.WarnLevel, logrus.InfoLevel}
}

func (h *teaHook) Fire(e *logrus.Entry) error {
	h.p.Send(logMsg{text: e.Message, isError: e.Level <= logrus.WarnLevel})
	return nil
}

func runControl(cmd *cobra.Command, args []string) error {
	c, err := newConnector()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	// The terminal belongs to the TUI; log lines go to the event log
	log := logrus.New()
	log.SetOutput(io.Discard)
	log.SetLevel(logrus.GetLevel())

	d := panel.NewDriver(cfg.DriverOptions(), log)
	defer d.Close()

	m := initialControlModel(ctx, d, c.describe())
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion())
	log.AddHook(&teaHook{p: p})

	go newBusManager(d, c, func(ev busEvent) {
		if ev.connected {
			p.Send(reconnectedMsg{connInfo: ev.info})
		} else {
			p.Send(connectionLostMsg{err: ev.err})
		}
	}, log).run(ctx)

	go func() {
		changes, stop := d.State.Subscribe()
		defer stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-changes:
				p.Send(stateChangedMsg{})
			}
		}
	}()

	// Keep the PDA awake while someone is watching
	d.State.NoteViewer(1)
	defer d.State.NoteViewer(-1)

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}
