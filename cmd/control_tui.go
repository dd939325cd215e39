// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Thermoquad/dxbridge/pkg/driver"
	"github.com/Thermoquad/dxbridge/pkg/dxl"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

//////////////////////////////////////////////////////////////
// Constants
//////////////////////////////////////////////////////////////

const (
	maxPosition = 1023
	staleAfter  = 2 * time.Second // A servo is stale if no position arrived for this long
)

// Focus states
const (
	focusServoList = iota
	focusGoalInput
	focusButton
)

//////////////////////////////////////////////////////////////
// Types
//////////////////////////////////////////////////////////////

// servo is one discovered bus device
type servo struct {
	id          uint8
	position    uint16
	hasPosition bool
	torque      bool
	status      uint8
	lastSeen    time.Time
}

// Implement list.Item interface
func (s servo) Title() string { return fmt.Sprintf("Servo %d", s.id) }
func (s servo) Description() string {
	torque := "free"
	if s.torque {
		torque = "torque"
	}
	if !s.hasPosition {
		return "--- " + torque
	}
	return fmt.Sprintf("%4d %s", s.position, torque)
}
func (s servo) FilterValue() string { return strconv.Itoa(int(s.id)) }

// pollStats tracks SYNC_READ polling
type pollStats struct {
	start       time.Time
	polls       uint64
	rejected    uint64
	failures    uint64
	lastLatency time.Duration
	pollRate    float64
}

func (s *pollStats) calculateRate() {
	if elapsed := time.Since(s.start).Seconds(); elapsed > 0 {
		s.pollRate = float64(s.polls) / elapsed
	}
}

// controlModel is the Bubble Tea model for the control TUI
type controlModel struct {
	// Connection manager (for sending commands and reconnection)
	connMgr  *connectionManager
	connInfo string

	// Servo tracking
	servos    []servo
	servoList list.Model

	// Discovery state
	discoveryDone bool

	// Monitoring
	stats         *pollStats
	errorLog      []errorLogEntry
	maxLogEntries int
	bridgeUptime  uint32
	hasUptime     bool

	// Control
	goalInput    textinput.Model
	focusedField int

	// UI state
	width          int
	height         int
	quitting       bool
	connectionLost bool
}

//////////////////////////////////////////////////////////////
// Messages
//////////////////////////////////////////////////////////////

type controlTickMsg time.Time

type servoFoundMsg struct {
	servo servo
}

type positionsMsg struct {
	ids     []uint8
	result  dxl.SyncReadResult
	err     error
	latency time.Duration
}

type commandResultMsg struct {
	id      uint8
	message string
	err     error
	torque  *bool // new torque state, if the command changed it
}

type discoveryCompleteMsg struct{}

type connectionLostMsg struct{}

type reconnectedMsg struct {
	connInfo string
}

//////////////////////////////////////////////////////////////
// Model Initialization
//////////////////////////////////////////////////////////////

func initialControlModel(connMgr *connectionManager, connInfo string) controlModel {
	ti := textinput.New()
	ti.Placeholder = "512"
	ti.CharLimit = 4
	ti.Width = 10

	delegate := list.NewDefaultDelegate()
	delegate.ShowDescription = true
	delegate.SetHeight(2)
	servoList := list.New([]list.Item{}, delegate, 30, 10)
	servoList.Title = "Servos"
	servoList.SetShowStatusBar(false)
	servoList.SetShowHelp(false)
	servoList.SetFilteringEnabled(false)

	return controlModel{
		connMgr:       connMgr,
		connInfo:      connInfo,
		servos:        make([]servo, 0),
		servoList:     servoList,
		stats:         &pollStats{start: time.Now()},
		errorLog:      make([]errorLogEntry, 0),
		maxLogEntries: 100,
		goalInput:     ti,
		focusedField:  focusServoList,
		width:         80,
		height:        24,
	}
}

//////////////////////////////////////////////////////////////
// Bubble Tea Interface
//////////////////////////////////////////////////////////////

func (m controlModel) Init() tea.Cmd {
	return controlTickCmd()
}

func controlTickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return controlTickMsg(t)
	})
}

func (m controlModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyMsg(msg)

	case tea.MouseMsg:
		return m.handleMouseMsg(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.updateListSize()

	case controlTickMsg:
		m.stats.calculateRate()
		for i := range m.servos {
			if m.servos[i].hasPosition && time.Since(m.servos[i].lastSeen) > staleAfter {
				m.servos[i].hasPosition = false
				m.addLogEntry(fmt.Sprintf("Servo %d: position stale", m.servos[i].id), true)
				m.updateServoList()
			}
		}
		return m, controlTickCmd()

	case servoFoundMsg:
		m.servos = append(m.servos, msg.servo)
		m.updateServoList()
		if msg.servo.status != dxl.StatusOK {
			m.addLogEntry(fmt.Sprintf("Servo %d discovered (%s)", msg.servo.id, dxl.FormatStatus(msg.servo.status)), true)
		} else {
			m.addLogEntry(fmt.Sprintf("Servo %d discovered", msg.servo.id), false)
		}

	case discoveryCompleteMsg:
		m.discoveryDone = true
		m.stats = &pollStats{start: time.Now()}
		m.addLogEntry(fmt.Sprintf("Discovery complete: %d servo(s)", len(m.servos)), false)

	case positionsMsg:
		m.handlePositions(msg)

	case commandResultMsg:
		if msg.err != nil {
			m.addLogEntry(fmt.Sprintf("Servo %d: %v", msg.id, msg.err), true)
			break
		}
		if msg.torque != nil {
			for i := range m.servos {
				if m.servos[i].id == msg.id {
					m.servos[i].torque = *msg.torque
				}
			}
			m.updateServoList()
		}
		m.addLogEntry(msg.message, false)

	case connectionLostMsg:
		m.connectionLost = true
		m.addLogEntry("Connection lost - reconnecting...", true)

	case reconnectedMsg:
		m.connectionLost = false
		m.connInfo = msg.connInfo
		m.resetDiscovery()
		m.addLogEntry("Reconnected - starting discovery", false)
	}

	// Update child components
	var cmd tea.Cmd
	if m.focusedField == focusGoalInput {
		m.goalInput, cmd = m.goalInput.Update(msg)
		cmds = append(cmds, cmd)
	}

	if m.focusedField == focusServoList {
		m.servoList, cmd = m.servoList.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m *controlModel) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.quitting = true
		return m, tea.Quit

	case "tab":
		return m.cycleFocus(1), nil

	case "shift+tab":
		return m.cycleFocus(-1), nil

	case "enter":
		if m.discoveryDone {
			return m.handleEnter()
		}

	case "up", "k", "down", "j":
		if m.focusedField == focusServoList {
			m.servoList, _ = m.servoList.Update(msg)
		}
	}

	// Pass through to focused component
	if m.focusedField == focusGoalInput {
		var cmd tea.Cmd
		m.goalInput, cmd = m.goalInput.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m *controlModel) handleMouseMsg(msg tea.MouseMsg) (tea.Model, tea.Cmd) {
	if msg.Action != tea.MouseActionRelease || msg.Button != tea.MouseButtonLeft {
		return m, nil
	}

	m.servoList, _ = m.servoList.Update(msg)
	return m, nil
}

func (m *controlModel) cycleFocus(delta int) *controlModel {
	if !m.discoveryDone {
		return m
	}

	maxFocus := focusButton
	if m.getSelectedServo() == nil {
		m.focusedField = focusServoList
		return m
	}

	m.focusedField = (m.focusedField + delta + maxFocus + 1) % (maxFocus + 1)

	if m.focusedField == focusGoalInput {
		m.goalInput.Focus()
	} else {
		m.goalInput.Blur()
	}

	return m
}

func (m *controlModel) handleEnter() (tea.Model, tea.Cmd) {
	if m.connectionLost {
		m.addLogEntry("Cannot send command: connection lost", true)
		return m, nil
	}

	selected := m.getSelectedServo()
	if selected == nil {
		return m, nil
	}

	switch m.focusedField {
	case focusGoalInput:
		return m.sendGoalCommand(selected)
	case focusButton:
		return m, m.torqueCommand(selected.id, !selected.torque)
	}
	return m, nil
}

func (m controlModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	var s strings.Builder

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

	focusedBoxStyle := boxStyle.
		BorderForeground(lipgloss.Color("12"))

	buttonStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("0")).
		Background(lipgloss.Color("12")).
		Padding(0, 2)

	focusedButtonStyle := buttonStyle.
		Background(lipgloss.Color("10"))

	// Header
	helpText := "q=quit"
	if m.discoveryDone {
		helpText = "q=quit Tab=switch"
	}
	s.WriteString(titleStyle.Render("DXBRIDGE CONTROL"))
	s.WriteString(" ")
	connStatus := m.connInfo
	if m.connectionLost {
		connStatus = warningStyle.Render("RECONNECTING...")
	}
	s.WriteString(headerStyle.Render(fmt.Sprintf("| %s | %s", connStatus, helpText)))
	s.WriteString("\n")

	if m.hasUptime {
		s.WriteString(fmt.Sprintf(" %s %s",
			statsLabelStyle.Render("Bridge Uptime:"),
			statsValueStyle.Render(formatUptime(uint64(m.bridgeUptime)))))
	}
	s.WriteString("\n\n")

	if !m.discoveryDone {
		s.WriteString(m.renderDiscoveryView(statsLabelStyle, warningStyle, boxStyle))
	} else {
		s.WriteString(m.renderControlView(statsLabelStyle, statsValueStyle, errorStyle, warningStyle, headerStyle, boxStyle, focusedBoxStyle, buttonStyle, focusedButtonStyle))
	}

	return s.String()
}

//////////////////////////////////////////////////////////////
// View Helpers
//////////////////////////////////////////////////////////////

func (m controlModel) renderDiscoveryView(statsLabelStyle, warningStyle, boxStyle lipgloss.Style) string {
	var s strings.Builder

	s.WriteString(warningStyle.Render("Discovering servos..."))
	s.WriteString("\n")
	s.WriteString(fmt.Sprintf("Found: %d servo(s)\n\n", len(m.servos)))

	s.WriteString(m.renderEventLog(statsLabelStyle, warningStyle, boxStyle))

	return s.String()
}

func (m controlModel) renderControlView(statsLabelStyle, statsValueStyle, errorStyle, warningStyle, headerStyle, boxStyle, focusedBoxStyle, buttonStyle, focusedButtonStyle lipgloss.Style) string {
	var s strings.Builder

	// Layout: left panel (servos) | right panel (control)
	leftWidth := 30
	rightWidth := m.width - leftWidth - 6

	listStyle := boxStyle.Width(leftWidth)
	if m.focusedField == focusServoList {
		listStyle = focusedBoxStyle.Width(leftWidth)
	}
	servoPanel := listStyle.Render(m.servoList.View())

	controlContent := m.renderControlPanel(statsLabelStyle, statsValueStyle, warningStyle, headerStyle, buttonStyle, focusedButtonStyle)
	controlPanel := boxStyle.Width(rightWidth).Render(controlContent)

	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, servoPanel, " ", controlPanel))
	s.WriteString("\n\n")

	s.WriteString(m.renderStatisticsBar(statsLabelStyle, statsValueStyle, errorStyle, boxStyle))
	s.WriteString("\n\n")

	s.WriteString(m.renderEventLog(statsLabelStyle, warningStyle, boxStyle))

	return s.String()
}

func (m controlModel) renderControlPanel(statsLabelStyle, statsValueStyle, warningStyle, headerStyle, buttonStyle, focusedButtonStyle lipgloss.Style) string {
	var s strings.Builder

	selected := m.getSelectedServo()
	if selected == nil {
		s.WriteString(headerStyle.Render("No servo selected"))
		return s.String()
	}

	s.WriteString(fmt.Sprintf("%s Servo %d\n", statsLabelStyle.Render("Selected:"), selected.id))

	position := "---"
	if selected.hasPosition {
		position = strconv.Itoa(int(selected.position))
	}
	s.WriteString(fmt.Sprintf("%s %s\n", statsLabelStyle.Render("Position:"), statsValueStyle.Render(position)))
	if selected.status != dxl.StatusOK {
		s.WriteString(fmt.Sprintf("%s %s\n", statsLabelStyle.Render("Status:"), warningStyle.Render(dxl.FormatStatus(selected.status))))
	}
	s.WriteString("\n")

	s.WriteString(statsLabelStyle.Render("Goal: "))
	if m.focusedField == focusGoalInput {
		s.WriteString(m.goalInput.View())
	} else {
		val := m.goalInput.Value()
		if val == "" {
			val = m.goalInput.Placeholder
		}
		s.WriteString(fmt.Sprintf("[%s]", val))
	}
	s.WriteString("\n\n")

	btnText := "[ Torque On ]"
	if selected.torque {
		btnText = "[ Torque Off ]"
	}
	if m.focusedField == focusButton {
		s.WriteString(focusedButtonStyle.Render(btnText))
	} else {
		s.WriteString(buttonStyle.Render(btnText))
	}

	return s.String()
}

func (m controlModel) renderStatisticsBar(statsLabelStyle, statsValueStyle, errorStyle, boxStyle lipgloss.Style) string {
	m.stats.calculateRate()

	var failPercent float64
	if m.stats.polls > 0 {
		failPercent = float64(m.stats.rejected+m.stats.failures) * 100.0 / float64(m.stats.polls)
	}

	content := fmt.Sprintf("%s %s  %s %s  %s %s  %s %s",
		statsLabelStyle.Render("Reads:"), statsValueStyle.Render(fmt.Sprintf("%d", m.stats.polls)),
		statsLabelStyle.Render("Failed:"), func() string {
			if failPercent > 0 {
				return errorStyle.Render(fmt.Sprintf("%.1f%% (%d rejected)", failPercent, m.stats.rejected))
			}
			return statsValueStyle.Render("0.0%")
		}(),
		statsLabelStyle.Render("Rate:"), statsValueStyle.Render(fmt.Sprintf("%.1f/s", m.stats.pollRate)),
		statsLabelStyle.Render("Latency:"), statsValueStyle.Render(m.stats.lastLatency.Round(100*time.Microsecond).String()),
	)

	return boxStyle.Width(m.width - 4).Render(content)
}

func (m controlModel) renderEventLog(statsLabelStyle, warningStyle, boxStyle lipgloss.Style) string {
	var s strings.Builder
	s.WriteString(statsLabelStyle.Render("EVENTS"))
	s.WriteString("\n")

	headerStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errorStyleLocal := lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)

	logHeight := 8
	if len(m.errorLog) < logHeight {
		logHeight = len(m.errorLog)
	}
	startIdx := len(m.errorLog) - logHeight

	if len(m.errorLog) == 0 {
		s.WriteString(headerStyle.Render("  (no events yet)"))
	} else {
		for i := startIdx; i < len(m.errorLog); i++ {
			entry := m.errorLog[i]
			timestamp := entry.timestamp.Format("15:04:05.000")
			icon := "i"
			style := warningStyle
			if entry.isError {
				icon = "x"
				style = errorStyleLocal
			}
			s.WriteString(fmt.Sprintf("%s %s %s\n",
				headerStyle.Render(timestamp),
				style.Render(icon),
				entry.message))
		}
	}

	return boxStyle.Width(m.width - 4).Render(s.String())
}

//////////////////////////////////////////////////////////////
// Data Processing
//////////////////////////////////////////////////////////////

func (m *controlModel) handlePositions(msg positionsMsg) {
	m.stats.polls++
	m.stats.lastLatency = msg.latency

	if msg.err != nil {
		var statusErr *driver.StatusError
		if errors.As(msg.err, &statusErr) && statusErr.Rejected() {
			m.stats.rejected++
			// Rejections repeat every poll while a servo is down; log only the first
			if m.stats.rejected == 1 {
				m.addLogEntry(fmt.Sprintf("Bridge rejected read of %v", msg.ids), true)
			}
			return
		}
		m.stats.failures++
		m.addLogEntry(fmt.Sprintf("Read failed: %v", msg.err), true)
		return
	}

	m.bridgeUptime = msg.result.Timestamp
	m.hasUptime = true

	now := time.Now()
	for i, id := range msg.ids {
		if i >= len(msg.result.Positions) {
			break
		}
		for j := range m.servos {
			if m.servos[j].id == id {
				m.servos[j].position = msg.result.Positions[i]
				m.servos[j].hasPosition = true
				m.servos[j].lastSeen = now
			}
		}
	}
	m.updateServoList()
}

//////////////////////////////////////////////////////////////
// Commands
//////////////////////////////////////////////////////////////

func (m *controlModel) sendGoalCommand(selected *servo) (tea.Model, tea.Cmd) {
	goalStr := m.goalInput.Value()
	if goalStr == "" {
		goalStr = m.goalInput.Placeholder
	}

	goal, err := strconv.Atoi(goalStr)
	if err != nil {
		m.addLogEntry(fmt.Sprintf("Invalid goal position: %s", goalStr), true)
		return m, nil
	}
	if goal < 0 || goal > maxPosition {
		m.addLogEntry(fmt.Sprintf("Goal must be between 0 and %d", maxPosition), true)
		return m, nil
	}

	client := m.connMgr.getClient()
	id := selected.id
	return m, func() tea.Msg {
		err := client.SetPosition(context.Background(), id, uint16(goal))
		return commandResultMsg{
			id:      id,
			message: fmt.Sprintf("Servo %d: goal %d", id, goal),
			err:     err,
		}
	}
}

func (m *controlModel) torqueCommand(id uint8, on bool) tea.Cmd {
	client := m.connMgr.getClient()
	return func() tea.Msg {
		var err error
		state := "off"
		if on {
			err = client.TorqueOn(context.Background(), id)
			state = "on"
		} else {
			err = client.TorqueOff(context.Background(), id)
		}
		return commandResultMsg{
			id:      id,
			message: fmt.Sprintf("Servo %d: torque %s", id, state),
			err:     err,
			torque:  &on,
		}
	}
}

//////////////////////////////////////////////////////////////
// Helpers
//////////////////////////////////////////////////////////////

func (m *controlModel) addLogEntry(message string, isError bool) {
	entry := errorLogEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	}
	m.errorLog = append(m.errorLog, entry)

	if len(m.errorLog) > m.maxLogEntries {
		m.errorLog = m.errorLog[len(m.errorLog)-m.maxLogEntries:]
	}
}

func (m *controlModel) getSelectedServo() *servo {
	if len(m.servos) == 0 {
		return nil
	}

	idx := m.servoList.Index()
	if idx < 0 || idx >= len(m.servos) {
		return nil
	}

	return &m.servos[idx]
}

func (m *controlModel) resetDiscovery() {
	m.discoveryDone = false
	m.servos = make([]servo, 0)
	m.hasUptime = false
	m.focusedField = focusServoList
	m.goalInput.Blur()
	m.updateServoList()
}

func (m *controlModel) updateServoList() {
	items := make([]list.Item, len(m.servos))
	for i, s := range m.servos {
		items[i] = s
	}
	m.servoList.SetItems(items)
}

func (m *controlModel) updateListSize() {
	listHeight := m.height / 3
	if listHeight < 5 {
		listHeight = 5
	}
	m.servoList.SetSize(28, listHeight)
}
