// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// dxbridge - servo bus protocol bridge
//
// Runs the host-to-bus bridge daemon and provides host-side tools for
// talking to servos through it.

package main

import (
	"os"

	"github.com/Thermoquad/dxbridge/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
