// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// Aquastat - Jandy pool panel remote
//
// Emulates a keypad or PDA remote on the panel's RS-485 bus, mirrors its
// display and equipment state, and drives its menus on request.

package main

import (
	"os"

	"github.com/Thermoquad/aquastat/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
