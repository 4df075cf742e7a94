// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Thermoquad/atbridge/pkg/console"
	"github.com/Thermoquad/atbridge/pkg/hspi"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

//////////////////////////////////////////////////////////////
// Constants
//////////////////////////////////////////////////////////////

const (
	maxConsoleLines = 1000
	chromeLines     = 6 // Title, status bar, output border, input, help
)

//////////////////////////////////////////////////////////////
// Types
//////////////////////////////////////////////////////////////

// consoleModel is the Bubble Tea model for the console TUI
type consoleModel struct {
	ctx    context.Context
	target consoleTarget

	input  textinput.Model
	output viewport.Model
	lines  []string

	mode     hspi.Mode
	busy     bool
	errors   int
	width    int
	height   int
	quitting bool
}

//////////////////////////////////////////////////////////////
// Messages
//////////////////////////////////////////////////////////////

type consoleTickMsg time.Time

type execResultMsg struct {
	line  string
	reply console.Reply
	err   error
	trace []string
}

//////////////////////////////////////////////////////////////
// Model Initialization
//////////////////////////////////////////////////////////////

func newConsoleModel(ctx context.Context, target consoleTarget) consoleModel {
	mode := target.exec.Mode()

	ti := textinput.New()
	ti.Prompt = console.Prompt(mode)
	ti.Placeholder = "AT"
	ti.CharLimit = console.LineSize - 1
	ti.Width = 60
	ti.Focus()

	m := consoleModel{
		ctx:    ctx,
		target: target,
		input:  ti,
		output: viewport.New(80, 24-chromeLines),
		mode:   mode,
		width:  80,
		height: 24,
	}
	m.appendLines(fmt.Sprintf("* Link: %s", target.info))
	return m
}

//////////////////////////////////////////////////////////////
// Bubble Tea Interface
//////////////////////////////////////////////////////////////

func (m consoleModel) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, consoleTickCmd())
}

func consoleTickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return consoleTickMsg(t)
	})
}

func (m consoleModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyMsg(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.output.Width = msg.Width - 2
		m.output.Height = max(msg.Height-chromeLines, 3)
		m.output.GotoBottom()
		return m, nil

	case consoleTickMsg:
		if m.target.stats != nil {
			m.target.stats.CalculateRates()
		}
		return m, consoleTickCmd()

	case execResultMsg:
		m.handleResult(msg)
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m consoleModel) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "esc":
		m.quitting = true
		return m, tea.Quit

	case "enter":
		if m.busy {
			return m, nil
		}
		line := m.input.Value()
		m.input.Reset()
		m.busy = true
		m.appendLines(m.input.Prompt + line)
		return m, m.execCmd(line)

	case "pgup", "pgdown", "up", "down":
		var cmd tea.Cmd
		m.output, cmd = m.output.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// execCmd runs the line off the UI goroutine
func (m consoleModel) execCmd(line string) tea.Cmd {
	ctx, exec, trace := m.ctx, m.target.exec, m.target.trace
	return func() tea.Msg {
		reply, err := exec.Exec(ctx, line)
		result := execResultMsg{line: line, reply: reply, err: err}
		if trace != nil {
			result.trace = trace.Drain()
		}
		return result
	}
}

func (m *consoleModel) handleResult(msg execResultMsg) {
	m.busy = false
	m.appendLines(msg.trace...)
	for _, line := range msg.reply.Lines() {
		m.appendLines(splitLines(line)...)
	}
	if msg.err != nil {
		m.errors++
		m.appendLines(fmt.Sprintf("[ERROR] %v", msg.err))
	}
	m.mode = msg.reply.Mode
	m.input.Prompt = console.Prompt(m.mode)
}

func (m consoleModel) View() string {
	if m.quitting {
		return ""
	}

	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12")).
		Background(lipgloss.Color("235")).
		Padding(0, 1)

	labelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("12")).
		Bold(true)

	valueStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("10"))

	warningStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("11"))

	errorStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("9")).
		Bold(true)

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240"))

	helpStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	var s strings.Builder
	s.WriteString(titleStyle.Render("atbridge - ESP32 AT Console"))
	s.WriteString("\n")
	s.WriteString(m.renderStatusBar(labelStyle, valueStyle, warningStyle, errorStyle))
	s.WriteString("\n")
	s.WriteString(boxStyle.Render(m.output.View()))
	s.WriteString("\n")
	if m.busy {
		s.WriteString(warningStyle.Render("waiting for ESP32..."))
	} else {
		s.WriteString(m.input.View())
	}
	s.WriteString("\n")
	s.WriteString(helpStyle.Render("enter: send  up/down/pgup/pgdown: scroll  esc: quit"))
	return s.String()
}

//////////////////////////////////////////////////////////////
// Rendering
//////////////////////////////////////////////////////////////

func (m consoleModel) renderStatusBar(labelStyle, valueStyle, warningStyle, errorStyle lipgloss.Style) string {
	modeStyle := valueStyle
	if m.mode != hspi.ModeOff {
		modeStyle = warningStyle
	}

	parts := []string{
		labelStyle.Render("Mode: ") + modeStyle.Render(m.mode.String()),
	}
	if stats := m.target.stats; stats != nil {
		c := stats.Snapshot()
		parts = append(parts,
			labelStyle.Render("Sent: ")+valueStyle.Render(fmt.Sprintf("%d", c.MessagesSent)),
			labelStyle.Render("Chunks: ")+valueStyle.Render(fmt.Sprintf("%d", c.Chunks)),
			labelStyle.Render("Handshakes: ")+valueStyle.Render(fmt.Sprintf("%d", c.HandshakeWaits)),
			labelStyle.Render("Rate: ")+valueStyle.Render(fmt.Sprintf("%.1f msg/s", c.MessageRate)),
		)
	}
	if m.errors > 0 {
		parts = append(parts, errorStyle.Render(fmt.Sprintf("Errors: %d", m.errors)))
	}
	return strings.Join(parts, "  ")
}

//////////////////////////////////////////////////////////////
// Helpers
//////////////////////////////////////////////////////////////

func (m *consoleModel) appendLines(lines ...string) {
	if len(lines) == 0 {
		return
	}
	m.lines = append(m.lines, lines...)
	if len(m.lines) > maxConsoleLines {
		m.lines = m.lines[len(m.lines)-maxConsoleLines:]
	}
	m.output.SetContent(strings.Join(m.lines, "\n"))
	m.output.GotoBottom()
}

// splitLines breaks a chunk into display lines without CR or a trailing
// empty line
func splitLines(s string) []string {
	s = strings.TrimRight(s, "\r\n")
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, "\r")
	}
	return lines
}

// runConsoleTUI runs the console in the alternate screen
func runConsoleTUI(ctx context.Context, target consoleTarget) error {
	p := tea.NewProgram(newConsoleModel(ctx, target), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	if showStats && target.stats != nil {
		fmt.Print(target.stats.String())
	}
	return nil
}
