// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bridge

import "fmt"

// TransactionError reports a failed single-device query.
type TransactionError struct {
	ID      uint8
	Address uint8
	Err     error
}

func (e *TransactionError) Error() string {
	return fmt.Sprintf("read of 0x%02X from device %d: %v", e.Address, e.ID, e.Err)
}

func (e *TransactionError) Unwrap() error {
	return e.Err
}
