// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Thermoquad/dxbridge/pkg/driver"
	"github.com/Thermoquad/dxbridge/pkg/dxl"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
)

var (
	controlIDs          string
	controlPollInterval time.Duration
)

var controlCmd = &cobra.Command{
	Use:   "control",
	Short: "Interactive TUI for monitoring and moving servos",
	Long: `Monitor and control servos through the bridge in an interactive terminal UI.

Features:
  - Servo discovery by ping over an id range
  - Live positions from aggregated SYNC_READ polling
  - Goal position and torque control for the selected servo
  - Poll statistics and event logging
  - Automatic reconnection on connection loss

The TUI discovers servos first before enabling control. Tab switches between
the servo list, goal position input and torque button. Arrow keys navigate
the servo list.

Supports both serial and WebSocket connections.`,
	RunE: runControl,
}

func init() {
	rootCmd.AddCommand(controlCmd)
	controlCmd.Flags().StringVar(&controlIDs, "ids", "0-20", "Ids to discover, e.g. 1-12 or 1,3,7")
	controlCmd.Flags().DurationVar(&controlPollInterval, "poll-interval", 100*time.Millisecond, "Position polling interval")
}

// connectionManager owns the client and handles polling and reconnection
type connectionManager struct {
	conn     Connection
	client   *driver.Client
	connInfo string
	ids      []uint8
	mu       sync.RWMutex
	p        *tea.Program
	done     chan struct{}
}

func (cm *connectionManager) getClient() *driver.Client {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.client
}

func (cm *connectionManager) setConn(conn Connection, connInfo string) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.conn = conn
	cm.client = driver.New(conn, driver.WithTimeout(replyTimeout))
	cm.connInfo = connInfo
}

func (cm *connectionManager) close() {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	if cm.conn != nil {
		cm.conn.Close()
	}
}

func runControl(cmd *cobra.Command, args []string) error {
	ids, err := parseIDList(controlIDs)
	if err != nil {
		return err
	}

	conn, connInfo, err := OpenConnection()
	if err != nil {
		return err
	}

	cm := &connectionManager{
		ids:  ids,
		done: make(chan struct{}),
	}
	cm.setConn(conn, connInfo)

	m := initialControlModel(cm, connInfo)

	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion())
	cm.p = p

	go cm.pollLoop()

	_, err = p.Run()
	close(cm.done)
	cm.close()
	if err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}

// pollLoop discovers servos, then polls their positions until the
// connection fails, reconnecting as needed
func (cm *connectionManager) pollLoop() {
	for {
		found, ok := cm.discover()
		if !ok {
			return
		}

		if !cm.poll(found) {
			return
		}

		cm.p.Send(connectionLostMsg{})
		if !cm.reconnect() {
			return
		}
	}
}

// discover pings every configured id and reports the servos that answer.
// Returns false if shutdown was requested.
func (cm *connectionManager) discover() ([]uint8, bool) {
	client := cm.getClient()
	found := []uint8{}

	for _, id := range cm.ids {
		select {
		case <-cm.done:
			return nil, false
		default:
		}

		err := client.Ping(context.Background(), id)
		var statusErr *driver.StatusError
		if err != nil && !errors.As(err, &statusErr) {
			if client.Err() != nil {
				break
			}
			continue
		}

		dev := servo{id: id, lastSeen: time.Now()}
		if statusErr != nil {
			dev.status = statusErr.Status
		}
		if torque, err := client.ReadRegister(context.Background(), id, dxl.AddrTorqueEnable, 1); err == nil {
			dev.torque = torque[0] != 0
		}
		found = append(found, id)
		cm.p.Send(servoFoundMsg{servo: dev})
	}

	cm.p.Send(discoveryCompleteMsg{})
	return found, true
}

// poll reads positions in groups of at most the SYNC_READ limit. Returns
// true when the connection was lost, false if shutdown was requested.
func (cm *connectionManager) poll(ids []uint8) bool {
	client := cm.getClient()

	ticker := time.NewTicker(controlPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-cm.done:
			return false
		case <-ticker.C:
		}

		if client.Err() != nil {
			return true
		}
		if len(ids) == 0 {
			continue
		}

		for start := 0; start < len(ids); start += dxl.MaxSyncReadTargets {
			end := min(start+dxl.MaxSyncReadTargets, len(ids))
			group := ids[start:end]

			begin := time.Now()
			result, err := client.SyncRead(context.Background(), group)
			cm.p.Send(positionsMsg{
				ids:     group,
				result:  result,
				err:     err,
				latency: time.Since(begin),
			})
		}
	}
}

// reconnect attempts to reconnect with exponential backoff
// Returns false if shutdown was requested during reconnection
func (cm *connectionManager) reconnect() bool {
	cm.close()

	backoff := 1 * time.Second
	maxBackoff := 30 * time.Second

	for {
		select {
		case <-cm.done:
			return false
		case <-time.After(backoff):
		}

		conn, connInfo, err := OpenConnection()
		if err == nil {
			cm.setConn(conn, connInfo)
			cm.p.Send(reconnectedMsg{connInfo: connInfo})
			return true
		}

		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}
