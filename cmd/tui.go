// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Thermoquad/acio2emu/internal/config"
	"github.com/Thermoquad/acio2emu/pkg/iob"
	"github.com/Thermoquad/acio2emu/pkg/iob/firmware"
)

//////////////////////////////////////////////////////////////
// Constants
//////////////////////////////////////////////////////////////

const (
	eventFeedSize = 256
	maxLogEntries = 200
	nodeListWidth = 30
)

// Focus states
const (
	focusNodeList = iota
	focusStickInput
)

//////////////////////////////////////////////////////////////
// Styles
//////////////////////////////////////////////////////////////

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("12")).
			Background(lipgloss.Color("235")).
			Padding(0, 1)

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	statsLabelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("12")).
			Bold(true)

	statsValueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("10"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9")).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("11"))

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)

	focusedBoxStyle = boxStyle.
			BorderForeground(lipgloss.Color("12"))
)

//////////////////////////////////////////////////////////////
// Bus Events
//////////////////////////////////////////////////////////////

// busEvent is the part of a transaction the event log shows
type busEvent struct {
	time    time.Time
	slot    int
	tag     uint8
	cmd     uint16
	hasCmd  bool
	outcome iob.Outcome
	err     error
}

// eventFeed carries bus events from the pump goroutine to the TUI.
// Events that do not fit are dropped and counted, the bus never waits.
type eventFeed struct {
	events  chan busEvent
	showAll bool
	dropped atomic.Uint64
}

func newEventFeed(size int) *eventFeed {
	return &eventFeed{
		events:  make(chan busEvent, size),
		showAll: serveShowAll,
	}
}

func (f *eventFeed) hook(t *iob.Transaction) {
	if t.Outcome == iob.OutcomeReplied && !f.showAll {
		return
	}

	ev := busEvent{
		time:    t.Time,
		slot:    t.Slot,
		tag:     t.Request.Tag,
		outcome: t.Outcome,
		err:     t.Err,
	}
	ev.cmd, ev.hasCmd = commandCode(t.Request)

	select {
	case f.events <- ev:
	default:
		f.dropped.Add(1)
	}
}

func (e busEvent) String() string {
	s := fmt.Sprintf("%s slot=%d tag=0x%02X", e.outcome, e.slot, e.tag)
	if e.hasCmd {
		s += fmt.Sprintf(" cmd=0x%04X", e.cmd)
	}
	if e.err != nil {
		s += ": " + e.err.Error()
	}
	return s
}

//////////////////////////////////////////////////////////////
// Types
//////////////////////////////////////////////////////////////

// eventLogEntry is one line of the event log
type eventLogEntry struct {
	timestamp time.Time
	message   string
	isError   bool
}

// nodeItem is a configured node in the node list
type nodeItem struct {
	panel config.Panel
	state firmware.TBSState
}

// Implement list.Item interface
func (n nodeItem) Title() string       { return fmt.Sprintf("%2d  %s", n.panel.Slot, n.panel.Name) }
func (n nodeItem) Description() string { return switchSummary(n.state) }
func (n nodeItem) FilterValue() string { return n.panel.Name }

// serveModel is the Bubble Tea model for serve --tui
type serveModel struct {
	emu      *emulator
	feed     *eventFeed
	pumpErr  <-chan error
	connInfo string

	stats iob.Statistics

	nodeList     list.Model
	stickInput   textinput.Model
	stickAxis    string
	focusedField int

	eventLog viewport.Model
	entries  []eventLogEntry

	width          int
	height         int
	quitting       bool
	connectionLost bool
}

//////////////////////////////////////////////////////////////
// Messages
//////////////////////////////////////////////////////////////

type tickMsg time.Time

type busEventMsg busEvent

type connClosedMsg struct {
	err error
}

//////////////////////////////////////////////////////////////
// Model Initialization
//////////////////////////////////////////////////////////////

func initialServeModel(emu *emulator, feed *eventFeed, connInfo string, pumpErr <-chan error) serveModel {
	ti := textinput.New()
	ti.Placeholder = "0.50"
	ti.CharLimit = 6
	ti.Width = 8

	delegate := list.NewDefaultDelegate()
	delegate.ShowDescription = true
	delegate.SetHeight(2)
	nodeList := list.New(nodeItems(emu.panels), delegate, nodeListWidth, 10)
	nodeList.Title = "Nodes"
	nodeList.SetShowStatusBar(false)
	nodeList.SetShowHelp(false)
	nodeList.SetFilteringEnabled(false)

	m := serveModel{
		emu:          emu,
		feed:         feed,
		pumpErr:      pumpErr,
		connInfo:     connInfo,
		stats:        emu.statistics(),
		nodeList:     nodeList,
		stickInput:   ti,
		focusedField: focusNodeList,
		eventLog:     viewport.New(76, 8),
		entries:      make([]eventLogEntry, 0),
		width:        80,
		height:       24,
	}
	m.addLogEntry(fmt.Sprintf("Serving %s on %s", emu.cfg.Device, connInfo), false)
	return m
}

func nodeItems(panels []config.Panel) []list.Item {
	items := make([]list.Item, 0, len(panels))
	for _, p := range panels {
		items = append(items, nodeItem{panel: p, state: p.State.Snapshot()})
	}
	return items
}

//////////////////////////////////////////////////////////////
// Bubble Tea Interface
//////////////////////////////////////////////////////////////

func (m serveModel) Init() tea.Cmd {
	return tea.Batch(
		tickCmd(),
		waitForEvent(m.feed),
		waitForPump(m.pumpErr),
	)
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func waitForEvent(feed *eventFeed) tea.Cmd {
	return func() tea.Msg {
		return busEventMsg(<-feed.events)
	}
}

func waitForPump(pumpErr <-chan error) tea.Cmd {
	return func() tea.Msg {
		return connClosedMsg{err: <-pumpErr}
	}
}

func (m serveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyMsg(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.updateLayout()

	case tickMsg:
		m.refresh()
		return m, tickCmd()

	case busEventMsg:
		ev := busEvent(msg)
		m.addLogEntry(ev.String(), ev.outcome != iob.OutcomeReplied)
		return m, waitForEvent(m.feed)

	case connClosedMsg:
		m.connectionLost = true
		if isClosed(msg.err) {
			m.addLogEntry("Connection closed", true)
		} else {
			m.addLogEntry(fmt.Sprintf("Connection lost: %v", msg.err), true)
		}
	}

	return m, nil
}

func (m *serveModel) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.focusedField == focusStickInput {
		return m.handleStickKey(msg)
	}

	switch msg.String() {
	case "q", "ctrl+c":
		m.quitting = true
		return m, tea.Quit

	case "c":
		if p, ok := m.selectedPanel(); ok {
			p.State.InsertCoin()
			m.addLogEntry(fmt.Sprintf("Coin inserted on %s", p.Name), false)
		}

	case "t":
		m.updateSelected("Test", func(s *firmware.TBSState) bool {
			s.Test = !s.Test
			return s.Test
		})

	case "s":
		m.updateSelected("Service", func(s *firmware.TBSState) bool {
			s.Service = !s.Service
			return s.Service
		})

	case "1", "2", "3", "4":
		i := int(msg.String()[0] - '1')
		m.updateSelected(fmt.Sprintf("Button %d", i+1), func(s *firmware.TBSState) bool {
			s.Buttons[i] = !s.Buttons[i]
			return s.Buttons[i]
		})

	case "x", "y":
		if _, ok := m.selectedPanel(); ok {
			m.stickAxis = msg.String()
			m.focusedField = focusStickInput
			m.stickInput.SetValue("")
			return m, m.stickInput.Focus()
		}

	case "r":
		m.emu.bus.Do(func(h *iob.Handle) {
			h.Statistics().Reset()
		})
		m.addLogEntry("Statistics reset", false)

	case "pgup", "pgdown":
		var cmd tea.Cmd
		m.eventLog, cmd = m.eventLog.Update(msg)
		return m, cmd

	default:
		var cmd tea.Cmd
		m.nodeList, cmd = m.nodeList.Update(msg)
		return m, cmd
	}

	m.refresh()
	return m, nil
}

// handleStickKey edits the analog value of the selected node. An empty
// value returns the axis to the digital directions.
func (m *serveModel) handleStickKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.blurStickInput()
		return m, nil

	case "enter":
		axis, err := parseAxis(m.stickInput.Value())
		if err != nil {
			m.addLogEntry(err.Error(), true)
			return m, nil
		}

		name := "Stick " + strings.ToUpper(m.stickAxis)
		stickX := m.stickAxis == "x"
		if p, ok := m.selectedPanel(); ok {
			p.State.Update(func(s *firmware.TBSState) {
				if stickX {
					s.StickX = axis
				} else {
					s.StickY = axis
				}
			})
			if axis.Set {
				m.addLogEntry(fmt.Sprintf("%s on %s set to %.3f", name, p.Name, axis.Value), false)
			} else {
				m.addLogEntry(fmt.Sprintf("%s on %s released", name, p.Name), false)
			}
		}
		m.blurStickInput()
		m.refresh()
		return m, nil
	}

	var cmd tea.Cmd
	m.stickInput, cmd = m.stickInput.Update(msg)
	return m, cmd
}

func (m *serveModel) blurStickInput() {
	m.focusedField = focusNodeList
	m.stickInput.Blur()
}

func parseAxis(s string) (firmware.Axis, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return firmware.Axis{}, nil
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 || v > 1 {
		return firmware.Axis{}, fmt.Errorf("invalid stick value %q (0.0 to 1.0)", s)
	}
	return firmware.Axis{Value: v, Set: true}, nil
}

func (m serveModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	var s strings.Builder

	// Header
	s.WriteString(titleStyle.Render("ACIO2EMU SERVE"))
	s.WriteString(" ")
	connStatus := m.connInfo
	if m.connectionLost {
		connStatus = errorStyle.Render("CONNECTION LOST")
	}
	s.WriteString(headerStyle.Render(fmt.Sprintf("| %s | %s | q=quit", m.emu.cfg.Device, connStatus)))
	s.WriteString("\n")
	uptime := uint64(time.Since(m.stats.StartTime).Milliseconds())
	s.WriteString(fmt.Sprintf(" %s %s", statsLabelStyle.Render("Uptime:"), statsValueStyle.Render(formatUptime(uptime))))
	s.WriteString("\n\n")

	// Statistics
	s.WriteString(m.renderStatistics())
	s.WriteString("\n")

	// Layout: left panel (nodes) | right panel (selected node)
	listStyle := boxStyle.Width(nodeListWidth)
	if m.focusedField == focusNodeList {
		listStyle = focusedBoxStyle.Width(nodeListWidth)
	}
	nodePanel := listStyle.Render(m.nodeList.View())
	detailPanel := boxStyle.Width(m.width - nodeListWidth - 6).Render(m.renderNodeDetail())
	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, nodePanel, " ", detailPanel))
	s.WriteString("\n")

	// Event log
	s.WriteString(statsLabelStyle.Render("EVENTS"))
	s.WriteString("\n")
	s.WriteString(boxStyle.Width(m.width - 4).Render(m.eventLog.View()))
	s.WriteString("\n")
	s.WriteString(headerStyle.Render("c=coin  t=test  s=service  1-4=buttons  x/y=stick  r=reset stats  PgUp/PgDn=scroll"))

	return s.String()
}

//////////////////////////////////////////////////////////////
// View Helpers
//////////////////////////////////////////////////////////////

func (m serveModel) renderStatistics() string {
	st := m.stats

	var replyPercent float64
	if st.TotalRequests > 0 {
		replyPercent = float64(st.Replies) * 100.0 / float64(st.TotalRequests)
	}

	var content strings.Builder
	content.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n",
		statsLabelStyle.Render("Requests:"), statsValueStyle.Render(fmt.Sprintf("%d", st.TotalRequests)),
		statsLabelStyle.Render("Replies:"), statsValueStyle.Render(fmt.Sprintf("%d (%.1f%%)", st.Replies, replyPercent)),
		statsLabelStyle.Render("Dropped:"), func() string {
			if st.Errors() > 0 {
				return errorStyle.Render(fmt.Sprintf("%d", st.Errors()))
			}
			return statsValueStyle.Render("0")
		}(),
	))

	if st.Errors() > 0 {
		content.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n",
			statsLabelStyle.Render("Routing Misses:"), errorStyle.Render(fmt.Sprintf("%d", st.RoutingMisses)),
			statsLabelStyle.Render("Node Errors:"), errorStyle.Render(fmt.Sprintf("%d", st.NodeErrors)),
			statsLabelStyle.Render("Encode Errors:"), errorStyle.Render(fmt.Sprintf("%d", st.EncodeErrors)),
		))
	}

	if n := m.feed.dropped.Load(); n > 0 {
		content.WriteString(fmt.Sprintf("%s %s\n",
			statsLabelStyle.Render("Events not shown:"), warningStyle.Render(fmt.Sprintf("%d", n)),
		))
	}

	content.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s",
		statsLabelStyle.Render("Bytes In/Out:"), statsValueStyle.Render(fmt.Sprintf("%d / %d", st.BytesIn, st.BytesOut)),
		statsLabelStyle.Render("Rate:"), statsValueStyle.Render(fmt.Sprintf("%.1f req/s", st.RequestRate)),
		statsLabelStyle.Render("Error Rate:"), func() string {
			if st.ErrorRate > 0 {
				return errorStyle.Render(fmt.Sprintf("%.1f err/s", st.ErrorRate))
			}
			return statsValueStyle.Render(fmt.Sprintf("%.1f err/s", st.ErrorRate))
		}(),
	))

	return boxStyle.Width(m.width - 4).Render(content.String())
}

func (m serveModel) renderNodeDetail() string {
	item, ok := m.nodeList.SelectedItem().(nodeItem)
	if !ok {
		return headerStyle.Render("No nodes configured")
	}
	st := item.state

	var s strings.Builder
	s.WriteString(fmt.Sprintf("%s %s (slot %d)\n",
		statsLabelStyle.Render("Selected:"), item.panel.Name, item.panel.Slot))
	s.WriteString(fmt.Sprintf("%s %s\n",
		statsLabelStyle.Render("Requests:"), statsValueStyle.Render(fmt.Sprintf("%d", m.stats.NodeRequests[item.panel.Slot]))))
	s.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n",
		statsLabelStyle.Render("Test:"), onOff(st.Test),
		statsLabelStyle.Render("Service:"), onOff(st.Service),
		statsLabelStyle.Render("Coins pending:"), statsValueStyle.Render(fmt.Sprintf("%d", st.Coins)),
	))
	s.WriteString(fmt.Sprintf("%s %s %s %s %s\n",
		statsLabelStyle.Render("Buttons:"),
		onOff(st.Buttons[0]), onOff(st.Buttons[1]), onOff(st.Buttons[2]), onOff(st.Buttons[3]),
	))

	for _, axis := range []struct {
		name  string
		key   string
		value firmware.Axis
	}{
		{"Stick X:", "x", st.StickX},
		{"Stick Y:", "y", st.StickY},
	} {
		s.WriteString(statsLabelStyle.Render(axis.name))
		s.WriteString(" ")
		switch {
		case m.focusedField == focusStickInput && m.stickAxis == axis.key:
			s.WriteString(m.stickInput.View())
		case axis.value.Set:
			s.WriteString(statsValueStyle.Render(fmt.Sprintf("%.3f", axis.value.Value)))
		default:
			s.WriteString(headerStyle.Render("digital"))
		}
		s.WriteString("\n")
	}

	return strings.TrimSuffix(s.String(), "\n")
}

func onOff(v bool) string {
	if v {
		return warningStyle.Render("ON")
	}
	return headerStyle.Render("off")
}

// switchSummary lists the active switches of a node for the node list
func switchSummary(st firmware.TBSState) string {
	var parts []string
	if st.Test {
		parts = append(parts, "TEST")
	}
	if st.Service {
		parts = append(parts, "SERVICE")
	}
	if st.Coins > 0 {
		parts = append(parts, fmt.Sprintf("%d coin(s)", st.Coins))
	}
	if len(parts) == 0 {
		return "idle"
	}
	return strings.Join(parts, " ")
}

//////////////////////////////////////////////////////////////
// State Updates
//////////////////////////////////////////////////////////////

func (m *serveModel) selectedPanel() (config.Panel, bool) {
	item, ok := m.nodeList.SelectedItem().(nodeItem)
	if !ok {
		return config.Panel{}, false
	}
	return item.panel, true
}

// updateSelected toggles a switch on the selected node and logs its new state
func (m *serveModel) updateSelected(name string, fn func(s *firmware.TBSState) bool) {
	p, ok := m.selectedPanel()
	if !ok {
		return
	}

	var on bool
	p.State.Update(func(s *firmware.TBSState) { on = fn(s) })
	state := "off"
	if on {
		state = "on"
	}
	m.addLogEntry(fmt.Sprintf("%s %s on %s", name, state, p.Name), false)
}

// refresh pulls statistics and node state from the bus
func (m *serveModel) refresh() {
	m.stats = m.emu.statistics()
	m.nodeList.SetItems(nodeItems(m.emu.panels))
}

func (m *serveModel) updateLayout() {
	m.nodeList.SetSize(nodeListWidth, max(len(m.emu.panels)*3+2, 8))

	// header, statistics box and node panel take roughly 20 lines
	m.eventLog.Width = m.width - 8
	m.eventLog.Height = max(m.height-24, 5)
	m.eventLog.GotoBottom()
}

func (m *serveModel) addLogEntry(message string, isError bool) {
	m.entries = append(m.entries, eventLogEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	})

	// Keep only last N entries
	if len(m.entries) > maxLogEntries {
		m.entries = m.entries[len(m.entries)-maxLogEntries:]
	}

	following := m.eventLog.AtBottom()

	var s strings.Builder
	for _, entry := range m.entries {
		timestamp := entry.timestamp.Format("15:04:05.000")
		icon := warningStyle.Render("i")
		if entry.isError {
			icon = errorStyle.Render("x")
		}
		s.WriteString(fmt.Sprintf("%s %s %s\n", headerStyle.Render(timestamp), icon, entry.message))
	}
	m.eventLog.SetContent(strings.TrimSuffix(s.String(), "\n"))

	if following {
		m.eventLog.GotoBottom()
	}
}

//////////////////////////////////////////////////////////////
// Program
//////////////////////////////////////////////////////////////

// runServeTUI runs the serve TUI until the user quits or ctx is done
func runServeTUI(ctx context.Context, emu *emulator, feed *eventFeed, connInfo string, pumpErr <-chan error) error {
	m := initialServeModel(emu, feed, connInfo, pumpErr)
	p := tea.NewProgram(m, tea.WithAltScreen())

	go func() {
		<-ctx.Done()
		p.Quit()
	}()

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("TUI error: %v", err)
	}
	return nil
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

	parts := []string{}
	if days > 0 {
		parts = append(parts, plural(days, "day"))
	}
	if hours > 0 {
		parts = append(parts, plural(hours, "hour"))
	}
	if minutes > 0 {
		parts = append(parts, plural(minutes, "minute"))
	}
	if seconds > 0 || len(parts) == 0 {
		parts = append(parts, plural(seconds, "second"))
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

func plural(n uint64, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
