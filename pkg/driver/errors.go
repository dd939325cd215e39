// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package driver

import (
	"fmt"

	"github.com/Thermoquad/dxbridge/pkg/dxl"
)

// StatusError is returned when a device, or the bridge, answers with error
// flags set.
type StatusError struct {
	ID     uint8
	Status uint8
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s reported %s", dxl.FormatID(e.ID), dxl.FormatStatus(e.Status))
}

// Rejected reports whether the bridge refused a bridge-local command
func (e *StatusError) Rejected() bool {
	return e.ID == dxl.IDBridge && e.Status&dxl.StatusInstructionError != 0
}
