// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Thermoquad/aquastat/pkg/devices"
	"github.com/Thermoquad/aquastat/pkg/errcode"
	"github.com/Thermoquad/aquastat/pkg/navigator"
	"github.com/Thermoquad/aquastat/pkg/panel"
	"github.com/Thermoquad/aquastat/pkg/session"
	"github.com/Thermoquad/aquastat/pkg/state"
)

//////////////////////////////////////////////////////////////
// Constants
//////////////////////////////////////////////////////////////

const (
	refreshInterval = 250 * time.Millisecond
	maxLogEntries   = 200
	logHeight       = 8
)

// Focus states
const (
	focusDeviceList = iota
	focusRequest
	focusCount
)

//////////////////////////////////////////////////////////////
// Types
//////////////////////////////////////////////////////////////

// deviceItem is one row of the device list
type deviceItem struct {
	dev devices.Device
}

func (i deviceItem) Title() string       { return i.dev.Label }
func (i deviceItem) Description() string { return i.dev.LED.String() }
func (i deviceItem) FilterValue() string { return i.dev.Name }

type logEntry struct {
	timestamp time.Time
	message   string
	isError   bool
}

// controlModel is the Bubble Tea model for the control TUI
type controlModel struct {
	ctx      context.Context
	driver   *panel.Driver
	connInfo string

	deviceList list.Model
	request    textinput.Model
	eventLog   viewport.Model
	entries    []logEntry

	data    state.Data
	pending int

	focusedField   int
	width          int
	height         int
	quitting       bool
	connectionLost bool
}

//////////////////////////////////////////////////////////////
// Messages
//////////////////////////////////////////////////////////////

type controlTickMsg time.Time

type stateChangedMsg struct{}

type logMsg struct {
	text    string
	isError bool
}

type connectionLostMsg struct {
	err error
}

type reconnectedMsg struct {
	connInfo string
}

type taskDoneMsg struct {
	kind session.Kind
	err  error
	took time.Duration
}

//////////////////////////////////////////////////////////////
// Model Initialization
//////////////////////////////////////////////////////////////

func initialControlModel(ctx context.Context, d *panel.Driver, connInfo string) controlModel {
	ti := textinput.New()
	ti.Placeholder = "pool_heater 84"
	ti.CharLimit = 64
	ti.Width = 40
	ti.Prompt = "> "

	delegate := list.NewDefaultDelegate()
	delegate.ShowDescription = true
	delegate.SetHeight(2)
	deviceList := list.New([]list.Item{}, delegate, 28, 12)
	deviceList.Title = "Devices"
	deviceList.SetShowStatusBar(false)
	deviceList.SetShowHelp(false)
	deviceList.SetFilteringEnabled(false)

	m := controlModel{
		ctx:            ctx,
		driver:         d,
		connInfo:       connInfo,
		deviceList:     deviceList,
		request:        ti,
		eventLog:       viewport.New(76, logHeight),
		focusedField:   focusDeviceList,
		width:          80,
		height:         24,
		connectionLost: true,
	}
	m.refreshState()
	return m
}

//////////////////////////////////////////////////////////////
// Bubble Tea Interface
//////////////////////////////////////////////////////////////

func (m controlModel) Init() tea.Cmd {
	return controlTickCmd()
}

func controlTickCmd() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return controlTickMsg(t)
	})
}

func (m controlModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyMsg(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.updateSizes()

	case controlTickMsg:
		// The display has no change feed; redraw on a timer
		return m, controlTickCmd()

	case stateChangedMsg:
		m.refreshState()

	case logMsg:
		m.addLogEntry(msg.text, msg.isError)

	case connectionLostMsg:
		m.connectionLost = true
		if msg.err != nil {
			m.addLogEntry(fmt.Sprintf("Connection lost (%v), reconnecting...", msg.err), true)
		} else {
			m.addLogEntry("Connection lost, reconnecting...", true)
		}

	case reconnectedMsg:
		m.connectionLost = false
		m.connInfo = msg.connInfo
		m.addLogEntry("Connected: "+msg.connInfo, false)

	case taskDoneMsg:
		m.pending--
		if msg.err != nil {
			m.addLogEntry(fmt.Sprintf("%s failed (%s): %v", msg.kind, errcode.Of(msg.err), msg.err), true)
		} else {
			m.addLogEntry(fmt.Sprintf("%s done in %s", msg.kind, msg.took.Round(100*time.Millisecond)), false)
		}
	}

	var cmd tea.Cmd
	if m.focusedField == focusDeviceList {
		m.deviceList, cmd = m.deviceList.Update(msg)
		cmds = append(cmds, cmd)
	}
	m.eventLog, cmd = m.eventLog.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

func (m controlModel) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		m.quitting = true
		return m, tea.Quit

	case "q":
		if m.focusedField != focusRequest {
			m.quitting = true
			return m, tea.Quit
		}

	case "tab":
		m.cycleFocus(1)
		return m, nil

	case "shift+tab":
		m.cycleFocus(-1)
		return m, nil

	case "enter":
		return m.handleEnter()

	case "pgup", "pgdown":
		var cmd tea.Cmd
		m.eventLog, cmd = m.eventLog.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	switch m.focusedField {
	case focusRequest:
		m.request, cmd = m.request.Update(msg)
	case focusDeviceList:
		m.deviceList, cmd = m.deviceList.Update(msg)
	}
	return m, cmd
}

func (m *controlModel) cycleFocus(delta int) {
	m.focusedField = (m.focusedField + delta + focusCount) % focusCount
	if m.focusedField == focusRequest {
		m.request.Focus()
	} else {
		m.request.Blur()
	}
}

func (m controlModel) handleEnter() (tea.Model, tea.Cmd) {
	if m.connectionLost {
		m.addLogEntry("Cannot send request: not connected", true)
		return m, nil
	}

	switch m.focusedField {
	case focusDeviceList:
		item, ok := m.deviceList.SelectedItem().(deviceItem)
		if !ok {
			return m, nil
		}
		req := navigator.Request{
			Kind:   session.KIND_DEVICE_ON_OFF,
			Device: item.dev.Name,
			On:     !item.dev.LED.IsOn(),
		}
		word := "off"
		if req.On {
			word = "on"
		}
		m.addLogEntry(fmt.Sprintf("Switching %s %s", item.dev.Label, word), false)
		cmd := m.submit(req)
		return m, cmd

	case focusRequest:
		fields := strings.Fields(m.request.Value())
		if len(fields) == 0 {
			return m, nil
		}
		req, err := navigator.ParseRequest(fields[0], fields[1:]...)
		if err != nil {
			m.addLogEntry(err.Error(), true)
			return m, nil
		}
		m.request.Reset()
		m.addLogEntry("Running "+req.Kind.String(), false)
		cmd := m.submit(req)
		return m, cmd
	}
	return m, nil
}

// submit starts req and reports its result as a taskDoneMsg
func (m *controlModel) submit(req navigator.Request) tea.Cmd {
	task := m.driver.Submit(req)
	m.pending++
	ctx := m.ctx
	return func() tea.Msg {
		err := task.Wait(ctx)
		return taskDoneMsg{kind: task.Kind(), err: err, took: time.Since(task.Started())}
	}
}

//////////////////////////////////////////////////////////////
// View
//////////////////////////////////////////////////////////////

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")).Background(lipgloss.Color("235")).Padding(0, 1)
	headerStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	labelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	valueStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))

	boxStyle        = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240")).Padding(0, 1)
	focusedBoxStyle = boxStyle.BorderForeground(lipgloss.Color("12"))
)

func (m controlModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	var s strings.Builder

	s.WriteString(titleStyle.Render("AQUASTAT"))
	s.WriteString(" ")
	if m.connectionLost {
		s.WriteString(errorStyle.Render("DISCONNECTED"))
	} else {
		s.WriteString(headerStyle.Render(m.connInfo))
	}
	s.WriteString("  ")
	s.WriteString(headerStyle.Render(fmt.Sprintf("%s remote", m.driver.Engine.Mode())))
	s.WriteString("\n")

	listBox := boxStyle
	if m.focusedField == focusDeviceList {
		listBox = focusedBoxStyle
	}
	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		boxStyle.Render(m.renderScreen()),
		listBox.Render(m.deviceList.View()),
		boxStyle.Render(m.renderReadings()),
	))
	s.WriteString("\n")

	reqBox := boxStyle
	if m.focusedField == focusRequest {
		reqBox = focusedBoxStyle
	}
	s.WriteString(reqBox.Width(m.width - 4).Render(m.request.View()))
	s.WriteString("\n")

	s.WriteString(boxStyle.Width(m.width - 4).Render(labelStyle.Render("EVENTS") + "\n" + m.eventLog.View()))
	s.WriteString("\n")
	s.WriteString(headerStyle.Render("tab: focus  enter: switch/run  pgup/pgdn: scroll log  q: quit"))

	return s.String()
}

func (m controlModel) renderScreen() string {
	view := m.driver.Screen.View()
	var s strings.Builder
	s.WriteString(labelStyle.Render("DISPLAY"))
	s.WriteString(" ")
	s.WriteString(valueStyle.Render(view.Menu().String()))
	s.WriteString("\n")
	s.WriteString(view.String())
	if view.Message != "" {
		s.WriteString(warningStyle.Render(view.Message))
	}
	return s.String()
}

func (m controlModel) renderReadings() string {
	d := m.data
	var s strings.Builder
	row := func(label string, v int, suffix string) {
		value := "--"
		if v != state.TEMP_UNKNOWN {
			value = fmt.Sprintf("%d%s", v, suffix)
		}
		s.WriteString(fmt.Sprintf("%s %s\n", labelStyle.Render(fmt.Sprintf("%-9s", label)), valueStyle.Render(value)))
	}

	units := d.Units.String()
	s.WriteString(labelStyle.Render("READINGS"))
	s.WriteString("\n")
	row("Air", d.AirTemp, units)
	row("Pool", d.PoolTemp, units)
	row("Spa", d.SpaTemp, units)
	row("Pool set", d.PoolSetpoint, units)
	row("Spa set", d.SpaSetpoint, units)
	row("Freeze", d.FreezeSetpoint, units)
	row("SWG", d.SWGPercent, "%")
	row("Salt", d.SWGPPM, "ppm")

	for _, p := range d.Pumps {
		if p.Index == 0 {
			continue
		}
		s.WriteString(fmt.Sprintf("%s %s\n",
			labelStyle.Render(fmt.Sprintf("Pump %d", p.Index)),
			valueStyle.Render(fmt.Sprintf("%d rpm %d W", p.RPM, p.Watts))))
	}

	s.WriteString("\n")
	cur := m.driver.Supervisor.Current()
	if cur.Active {
		s.WriteString(warningStyle.Render(fmt.Sprintf("busy: %s %s", cur.Kind, cur.Elapsed.Round(time.Second))))
	} else {
		s.WriteString(headerStyle.Render("idle"))
	}
	if m.pending > 0 {
		s.WriteString(headerStyle.Render(fmt.Sprintf(" (%d pending)", m.pending)))
	}
	if stats := m.driver.Stats(); stats != "" {
		s.WriteString("\n")
		s.WriteString(headerStyle.Render(firstLine(stats)))
	}
	return s.String()
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

//////////////////////////////////////////////////////////////
// Helpers
//////////////////////////////////////////////////////////////

func (m *controlModel) refreshState() {
	m.data = m.driver.State.Snapshot()

	items := make([]list.Item, len(m.data.Devices))
	for i, dev := range m.data.Devices {
		items[i] = deviceItem{dev: dev}
	}
	m.deviceList.SetItems(items)
}

func (m *controlModel) addLogEntry(message string, isError bool) {
	m.entries = append(m.entries, logEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	})
	if len(m.entries) > maxLogEntries {
		m.entries = m.entries[len(m.entries)-maxLogEntries:]
	}

	var s strings.Builder
	for _, e := range m.entries {
		icon, style := "i", warningStyle
		if e.isError {
			icon, style = "x", errorStyle
		}
		s.WriteString(fmt.Sprintf("%s %s %s\n", headerStyle.Render(e.timestamp.Format("15:04:05.000")), style.Render(icon), e.message))
	}
	m.eventLog.SetContent(s.String())
	m.eventLog.GotoBottom()
}

func (m *controlModel) updateSizes() {
	listHeight := m.height - logHeight - 12
	if listHeight < 6 {
		listHeight = 6
	}
	m.deviceList.SetSize(28, listHeight)
	m.eventLog.Width = m.width - 8
	m.request.Width = m.width - 12
}
