// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Thermoquad/dxbridge/pkg/dxl"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Error log entry
type errorLogEntry struct {
	timestamp time.Time
	message   string
	isError   bool // true for errors, false for warnings
}

// Last aggregated read seen on the stream
type positionData struct {
	timestamp time.Time
	uptime    uint32 // bridge milliseconds
	positions []uint16
}

// TUI model
type model struct {
	connInfo      string
	statsInterval int
	showAll       bool
	stats         *dxl.Statistics
	errorLog      []errorLogEntry
	maxLogEntries int
	synchronized  bool
	invalidBytes  int
	width         int
	height        int
	quitting      bool
	disconnected  bool
	lastPositions *positionData
	deviceStatus  map[uint8]uint8 // last status byte per replying id
}

// Messages
type tickMsg time.Time
type serialDataMsg struct {
	packet           *dxl.Packet
	decodeErr        error
	validationErrors []dxl.ValidationError
}
type syncMsg struct {
	invalidBytes int
}

// formatUptime formats uptime in milliseconds to human-friendly string
func formatUptime(ms uint64) string {
	if ms == 0 {
		return "0 seconds"
	}

	seconds := ms / 1000
	minutes := seconds / 60
	hours := minutes / 60
	days := hours / 24

	seconds %= 60
	minutes %= 60
	hours %= 24

	unit := func(n uint64, name string) string {
		if n == 1 {
			return "1 " + name
		}
		return fmt.Sprintf("%d %ss", n, name)
	}

	parts := []string{}
	if days > 0 {
		parts = append(parts, unit(days, "day"))
	}
	if hours > 0 {
		parts = append(parts, unit(hours, "hour"))
	}
	if minutes > 0 {
		parts = append(parts, unit(minutes, "minute"))
	}
	if seconds > 0 || len(parts) == 0 {
		parts = append(parts, unit(seconds, "second"))
	}

	// Join with commas and "and" for last item
	if len(parts) == 1 {
		return parts[0]
	}
	if len(parts) == 2 {
		return parts[0] + " and " + parts[1]
	}
	last := parts[len(parts)-1]
	rest := strings.Join(parts[:len(parts)-1], ", ")
	return rest + ", and " + last
}

func initialModel(connInfo string, statsInterval int, showAll bool) model {
	return model{
		connInfo:      connInfo,
		statsInterval: statsInterval,
		showAll:       showAll,
		stats:         dxl.NewStatistics(),
		errorLog:      make([]errorLogEntry, 0),
		maxLogEntries: 100,
		width:         80,
		height:        24,
		deviceStatus:  make(map[uint8]uint8),
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		tickCmd(),
		tea.EnterAltScreen,
	)
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "r":
			m.stats.Reset()
			m.addLogEntry("Statistics reset", false)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tickMsg:
		m.stats.CalculateRates()
		return m, tickCmd()

	case syncMsg:
		m.synchronized = true
		m.invalidBytes = msg.invalidBytes
		if msg.invalidBytes > 0 {
			m.addLogEntry(fmt.Sprintf("Synchronized after skipping %d invalid bytes", msg.invalidBytes), false)
		} else {
			m.addLogEntry("Synchronized", false)
		}

	case connectionLostMsg:
		m.disconnected = true
		m.addLogEntry("Connection closed", true)

	case serialDataMsg:
		if msg.decodeErr != nil {
			if m.synchronized {
				m.stats.Update(nil, msg.decodeErr, nil)
				m.addLogEntry(fmt.Sprintf("DECODE ERROR: %v", msg.decodeErr), true)
			}
		} else if msg.packet != nil {
			m.stats.Update(msg.packet, nil, msg.validationErrors)
			m.trackPacket(msg.packet)

			label := packetLabel(msg.packet)
			if len(msg.validationErrors) > 0 {
				for _, err := range msg.validationErrors {
					m.addLogEntry(fmt.Sprintf("%s: %s", label, err.Message), true)
				}
			} else if m.showAll {
				m.addLogEntry(fmt.Sprintf("%s (valid)", label), false)
			}
		}
	}

	return m, nil
}

func (m *model) addLogEntry(message string, isError bool) {
	entry := errorLogEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	}
	m.errorLog = append(m.errorLog, entry)

	// Keep only last N entries
	if len(m.errorLog) > m.maxLogEntries {
		m.errorLog = m.errorLog[len(m.errorLog)-m.maxLogEntries:]
	}
}

// trackPacket records device status and aggregated reads from reply streams
func (m *model) trackPacket(packet *dxl.Packet) {
	if !rawReplies || !packet.Valid() {
		return
	}

	if packet.ID() != dxl.IDBridge {
		m.deviceStatus[packet.ID()] = packet.Command()
		return
	}
	if r, err := dxl.DecodeSyncRead(packet); err == nil {
		m.lastPositions = &positionData{
			timestamp: time.Now(),
			uptime:    r.Timestamp,
			positions: r.Positions,
		}
	}
}

func (m model) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	// Styles
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12")).
		Background(lipgloss.Color("235")).
		Padding(0, 1)

	headerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	statsLabelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("12")).
		Bold(true)

	statsValueStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("10"))

	errorStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("9")).
		Bold(true)

	warningStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("11"))

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	// Header
	var s strings.Builder
	s.WriteString(titleStyle.Render("DXBRIDGE - ERROR DETECTION"))
	s.WriteString("\n")
	mode := "Errors only"
	if m.showAll {
		mode = "All packets"
	}
	stream := "requests"
	if rawReplies {
		stream = "replies"
	}
	s.WriteString(headerStyle.Render(fmt.Sprintf("%s | Stream: %s | Mode: %s | 'r' reset, 'q' quit",
		m.connInfo, stream, mode)))
	s.WriteString("\n\n")

	// Sync status
	switch {
	case m.disconnected:
		s.WriteString(errorStyle.Render("✗ Disconnected"))
		s.WriteString("\n\n")
	case !m.synchronized:
		s.WriteString(warningStyle.Render("⏳ Waiting for synchronization..."))
		s.WriteString("\n\n")
	default:
		s.WriteString(statsValueStyle.Render("✓ Synchronized"))
		if m.invalidBytes > 0 {
			s.WriteString(headerStyle.Render(fmt.Sprintf(" (skipped %d invalid bytes)", m.invalidBytes)))
		}
		s.WriteString("\n\n")
	}

	// Statistics
	m.stats.CalculateRates()
	var validPercent, errorPercent float64
	totalErrors := m.stats.Errors()
	if m.stats.TotalPackets > 0 {
		validPercent = float64(m.stats.ValidPackets) * 100.0 / float64(m.stats.TotalPackets)
		errorPercent = float64(totalErrors) * 100.0 / float64(m.stats.TotalPackets)
	}

	statsContent := strings.Builder{}
	statsContent.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n",
		statsLabelStyle.Render("Total:"), statsValueStyle.Render(fmt.Sprintf("%d", m.stats.TotalPackets)),
		statsLabelStyle.Render("Valid:"), statsValueStyle.Render(fmt.Sprintf("%d (%.1f%%)", m.stats.ValidPackets, validPercent)),
		statsLabelStyle.Render("Errors:"), errorStyle.Render(fmt.Sprintf("%d (%.1f%%)", totalErrors, errorPercent)),
	))

	if m.stats.ChecksumErrors > 0 || m.stats.FramingErrors > 0 {
		statsContent.WriteString(fmt.Sprintf("%s %s   %s %s\n",
			statsLabelStyle.Render("Checksum Errors:"), errorStyle.Render(fmt.Sprintf("%d", m.stats.ChecksumErrors)),
			statsLabelStyle.Render("Framing Errors:"), errorStyle.Render(fmt.Sprintf("%d", m.stats.FramingErrors)),
		))
	}

	if m.stats.MalformedPackets > 0 || m.stats.UnknownInstructions > 0 {
		statsContent.WriteString(fmt.Sprintf("%s %s   %s %s\n",
			statsLabelStyle.Render("Malformed:"), errorStyle.Render(fmt.Sprintf("%d", m.stats.MalformedPackets)),
			statsLabelStyle.Render("Unknown:"), errorStyle.Render(fmt.Sprintf("%d", m.stats.UnknownInstructions)),
		))
	}

	if m.stats.DeviceErrors > 0 {
		statsContent.WriteString(fmt.Sprintf("%s %s\n",
			statsLabelStyle.Render("Device Errors:"), warningStyle.Render(fmt.Sprintf("%d", m.stats.DeviceErrors)),
		))
	}

	statsContent.WriteString(fmt.Sprintf("%s %s   %s %s",
		statsLabelStyle.Render("Packet Rate:"), statsValueStyle.Render(fmt.Sprintf("%.1f pkts/s", m.stats.PacketRate)),
		statsLabelStyle.Render("Error Rate:"), func() string {
			if m.stats.ErrorRate > 0 {
				return errorStyle.Render(fmt.Sprintf("%.1f err/s", m.stats.ErrorRate))
			}
			return statsValueStyle.Render(fmt.Sprintf("%.1f err/s", m.stats.ErrorRate))
		}(),
	))

	s.WriteString(boxStyle.Render(statsContent.String()))
	s.WriteString("\n\n")

	// Servo section (reply streams only)
	if m.lastPositions != nil || len(m.deviceStatus) > 0 {
		s.WriteString(statsLabelStyle.Render("Servos:"))
		s.WriteString("\n")

		servoContent := strings.Builder{}
		if p := m.lastPositions; p != nil {
			servoContent.WriteString(fmt.Sprintf("%s %s (%s ago)\n",
				statsLabelStyle.Render("Bridge uptime:"), statsValueStyle.Render(formatUptime(uint64(p.uptime))),
				time.Since(p.timestamp).Round(time.Second),
			))
			for i, pos := range p.positions {
				servoContent.WriteString(fmt.Sprintf("%s %s\n",
					statsLabelStyle.Render(fmt.Sprintf("Position %d:", i)),
					statsValueStyle.Render(fmt.Sprintf("%d", pos)),
				))
			}
		}

		ids := make([]int, 0, len(m.deviceStatus))
		for id := range m.deviceStatus {
			ids = append(ids, int(id))
		}
		sort.Ints(ids)
		for _, id := range ids {
			status := m.deviceStatus[uint8(id)]
			style := statsValueStyle
			if status != dxl.StatusOK {
				style = warningStyle
			}
			servoContent.WriteString(fmt.Sprintf("%s %s\n",
				statsLabelStyle.Render(fmt.Sprintf("ID %d:", id)),
				style.Render(dxl.FormatStatus(status)),
			))
		}

		s.WriteString(boxStyle.Render(strings.TrimSuffix(servoContent.String(), "\n")))
		s.WriteString("\n\n")
	}

	// Error log
	s.WriteString(statsLabelStyle.Render("Recent Events:"))
	s.WriteString("\n")

	// Calculate how many log entries we can show
	logHeight := m.height - 15
	if logHeight < 5 {
		logHeight = 5
	}

	logContent := strings.Builder{}
	startIdx := len(m.errorLog) - logHeight
	if startIdx < 0 {
		startIdx = 0
	}

	if len(m.errorLog) == 0 {
		logContent.WriteString(headerStyle.Render("  (no events yet)"))
	} else {
		for i := startIdx; i < len(m.errorLog); i++ {
			entry := m.errorLog[i]
			timestamp := entry.timestamp.Format("01/02/06 15:04:05.000")
			if entry.isError {
				logContent.WriteString(fmt.Sprintf("%s %s\n",
					headerStyle.Render(timestamp),
					errorStyle.Render("✗ "+entry.message),
				))
			} else {
				logContent.WriteString(fmt.Sprintf("%s %s\n",
					headerStyle.Render(timestamp),
					warningStyle.Render("ℹ "+entry.message),
				))
			}
		}
	}

	s.WriteString(boxStyle.Width(m.width - 4).Render(logContent.String()))

	return s.String()
}
