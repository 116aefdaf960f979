// ABOUTME: TUI initialization and control
// ABOUTME: Wraps bubbletea program for the capture meter
package ui

import (
	tea "github.com/charmbracelet/bubbletea"
)

// Controls holds channels for communication from the TUI
type Controls struct {
	Quit chan struct{}
}

// NewControls creates a new control handler
func NewControls() *Controls {
	return &Controls{
		Quit: make(chan struct{}, 1),
	}
}

// NewModel creates a new TUI model
func NewModel(ctrl *Controls) Model {
	return Model{
		state:    "idle",
		backend:  "malgo",
		controls: ctrl,
	}
}

// Run creates the TUI program; the caller runs it
func Run(ctrl *Controls) (*tea.Program, error) {
	p := tea.NewProgram(NewModel(ctrl), tea.WithAltScreen())
	return p, nil
}
