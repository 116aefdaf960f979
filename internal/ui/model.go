// ABOUTME: Bubbletea model for the capture TUI
// ABOUTME: Defines meter state, update logic and rendering
package ui

import (
	"fmt"
	"strings"

	"github.com/Resonate-Protocol/resonate-capture/pkg/meter"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	valueStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("250"))
	faintStyle  = lipgloss.NewStyle().Faint(true)

	lowStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	midStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	highStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

// Meter segments above these levels change color
const (
	midLevel  = 24
	highLevel = 33
)

// Model represents the TUI state
type Model struct {
	// Stream
	connected bool
	target    string
	backend   string
	state     string
	format    string

	// Meter
	peaks  []float32
	levels []int

	// Stats
	processed uint64
	underruns uint64
	malformed uint64
	released  uint64

	// Feed
	feedAddr    string
	feedClients int

	// Debug
	showDebug  bool
	goroutines int
	memAlloc   uint64

	quitting bool
	controls *Controls

	// Dimensions
	width  int
	height int
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case StatusMsg:
		m.applyStatus(msg)
	}

	return m, nil
}

// View renders the TUI
func (m Model) View() string {
	if m.quitting {
		return "Stopping capture...\n"
	}
	if m.width == 0 {
		return "Loading..."
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("Resonate Capture"))
	b.WriteString("\n\n")
	b.WriteString(m.renderHeader())
	b.WriteString("\n")
	for _, row := range m.meterRows() {
		b.WriteString(row)
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(m.renderStats())

	if m.showDebug {
		b.WriteString(m.renderDebug())
	}

	b.WriteString("\n")
	b.WriteString(faintStyle.Render("d:Debug  q:Quit"))
	return b.String()
}

func field(name, value string) string {
	return headerStyle.Render(name+": ") + valueStyle.Render(value) + "\n"
}

// renderHeader renders the stream status
func (m Model) renderHeader() string {
	status := "Disconnected"
	if m.connected {
		status = "Connected"
		if m.state != "" {
			status = fmt.Sprintf("Connected (%s)", m.state)
		}
	}

	target := m.target
	if target == "" {
		target = "default source"
	}

	format := m.format
	if format == "" {
		format = "negotiating..."
	}

	s := field("Status", status)
	s += field("Source", fmt.Sprintf("%s via %s", target, m.backend))
	s += field("Format", format)
	if m.feedAddr != "" {
		s += field("Feed", fmt.Sprintf("%s (%d clients)", m.feedAddr, m.feedClients))
	}
	return s
}

// meterRows renders one bar per channel
func (m Model) meterRows() []string {
	if len(m.levels) == 0 {
		return []string{faintStyle.Render("  No signal")}
	}

	rows := make([]string, len(m.levels))
	for i, level := range m.levels {
		rows[i] = fmt.Sprintf("  ch%-2d %s %5.3f", i+1, renderBar(level), m.peaks[i])
	}
	return rows
}

// renderStats renders pump statistics
func (m Model) renderStats() string {
	return field("Buffers", fmt.Sprintf("metered %d  released %d  underruns %d  malformed %d",
		m.processed, m.released, m.underruns, m.malformed))
}

// renderDebug renders runtime information
func (m Model) renderDebug() string {
	return field("Goroutines", fmt.Sprintf("%d", m.goroutines)) +
		field("Heap", fmt.Sprintf("%.1f MiB", float64(m.memAlloc)/(1024*1024)))
}

// handleKey handles keyboard input
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.quitting = true
		if m.controls != nil {
			select {
			case m.controls.Quit <- struct{}{}:
			default:
			}
		}
		return m, tea.Quit
	case "d":
		m.showDebug = !m.showDebug
	}

	return m, nil
}

// applyStatus updates model from status message
func (m *Model) applyStatus(msg StatusMsg) {
	if msg.Connected != nil {
		m.connected = *msg.Connected
		if !m.connected {
			m.peaks = nil
			m.levels = nil
			m.format = ""
		}
	}
	if msg.Target != "" {
		m.target = msg.Target
	}
	if msg.Backend != "" {
		m.backend = msg.Backend
	}
	if msg.State != "" {
		m.state = msg.State
	}
	if msg.Format != "" {
		m.format = msg.Format
	}
	if msg.Peaks != nil {
		m.peaks = msg.Peaks
		m.levels = make([]int, len(msg.Peaks))
		for i, p := range msg.Peaks {
			m.levels[i] = meter.Quantize(p)
		}
	}
	if msg.Processed != 0 || msg.Underruns != 0 {
		m.processed = msg.Processed
		m.underruns = msg.Underruns
		m.malformed = msg.Malformed
		m.released = msg.Released
	}
	if msg.FeedAddr != "" {
		m.feedAddr = msg.FeedAddr
		m.feedClients = msg.FeedClients
	}
	if msg.Goroutines != 0 {
		m.goroutines = msg.Goroutines
		m.memAlloc = msg.MemAlloc
	}
}

// StatusMsg updates TUI state. Zero fields leave the current value.
type StatusMsg struct {
	Connected   *bool
	Target      string
	Backend     string
	State       string
	Format      string
	Peaks       []float32
	Processed   uint64
	Underruns   uint64
	Malformed   uint64
	Released    uint64
	FeedAddr    string
	FeedClients int
	Goroutines  int
	MemAlloc    uint64
}

// renderBar draws a meter of meter.MaxLevel segments with level lit
func renderBar(level int) string {
	if level < 0 {
		level = 0
	}
	if level > meter.MaxLevel {
		level = meter.MaxLevel
	}

	var lit strings.Builder
	for i := 0; i < level; i++ {
		switch {
		case i >= highLevel:
			lit.WriteString(highStyle.Render("█"))
		case i >= midLevel:
			lit.WriteString(midStyle.Render("█"))
		default:
			lit.WriteString(lowStyle.Render("█"))
		}
	}
	return lit.String() + faintStyle.Render(strings.Repeat("░", meter.MaxLevel-level))
}
