// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Thermoquad/aquastat/pkg/history"
)

var (
	historyDB       string
	historyLimit    int
	historyPoint    string
	historySnapshot int64
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recorded state changes",
	Long: `Print the most recent changes recorded by "aquastat run".

The database defaults to history.path from the config file. With
--snapshot the stored state at the time of an event is printed instead.`,
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().StringVar(&historyDB, "db", "", "History database (default: history.path)")
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Number of events to show")
	historyCmd.Flags().StringVar(&historyPoint, "point", "", "Only show this point (aux1, pool_setpoint, ...)")
	historyCmd.Flags().Int64Var(&historySnapshot, "snapshot", 0, "Print the snapshot with this id")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	path := historyDB
	if path == "" {
		path = cfg.History.Path
	}
	if path == "" {
		return errors.New("no database: pass --db or set history.path")
	}
	if _, err := os.Stat(path); err != nil {
		return err
	}

	store, err := history.Open(path, logrus.StandardLogger())
	if err != nil {
		return err
	}
	defer store.Close()

	if historySnapshot > 0 {
		snap, err := store.Snapshot(cmd.Context(), historySnapshot)
		if err != nil {
			return err
		}
		fmt.Printf("# snapshot %d taken %s\n", historySnapshot,
			time.Unix(0, snap.Taken).Local().Format(time.DateTime))
		enc := yaml.NewEncoder(os.Stdout)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(snap)
	}

	events, err := store.Recent(cmd.Context(), historyLimit, historyPoint)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		fmt.Println("No events recorded")
		return nil
	}

	headerStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")).Padding(0, 1)
	cellStyle := lipgloss.NewStyle().Padding(0, 1)

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("240"))).
		Headers("TIME", "POINT", "FROM", "TO", "KIND", "SNAPSHOT").
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	for _, e := range events {
		t.Row(
			e.Timestamp.Local().Format(time.DateTime),
			e.Point,
			e.Previous,
			e.New,
			e.Kind,
			strconv.FormatInt(e.SnapshotID, 10),
		)
	}
	fmt.Println(t)
	return nil
}
