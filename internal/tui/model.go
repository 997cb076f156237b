package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/roach88/pnmtrack/internal/flow"
)

// Model is the kiosk's bubbletea model. All check-in state lives in the flow;
// the model holds only the cursor and the scan input.
type Model struct {
	ctx     context.Context
	checkIn *flow.CheckIn
	snap    flow.CheckInSnapshot

	cursor int
	input  textinput.Model

	width  int
	height int
}

// NewModel creates a kiosk model over c.
func NewModel(ctx context.Context, c *flow.CheckIn) Model {
	ti := textinput.New()
	ti.Placeholder = "Scan or type ID"
	ti.CharLimit = 64
	ti.Width = 24

	m := Model{
		ctx:     ctx,
		checkIn: c,
		snap:    c.Snapshot(),
		input:   ti,
	}
	// Start the cursor on a previously chosen event.
	for i, e := range m.snap.Events {
		if e == m.snap.Event {
			m.cursor = i
		}
	}
	return m
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

// Update processes messages and returns an updated model and commands.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case refreshMsg:
		return m, m.refresh()

	case submitDoneMsg:
		return m, m.refresh()

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// refresh re-reads the flow and focuses the input whenever scanning is possible.
func (m *Model) refresh() tea.Cmd {
	m.snap = m.checkIn.Snapshot()
	switch m.snap.Step {
	case flow.StepScanning, flow.StepSuccess:
		return m.input.Focus()
	default:
		m.input.Blur()
		return nil
	}
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, kioskKeys.Quit) {
		return m, tea.Quit
	}

	switch m.snap.Step {
	case flow.StepEventSelection:
		return m.handleEventKey(msg)

	case flow.StepSubmitting:
		// Input is disabled until the gateway answers.
		return m, nil

	default:
		switch {
		case key.Matches(msg, kioskKeys.Back):
			if err := m.checkIn.Reset(); err != nil {
				// A submission started elsewhere; wait for its outcome.
				return m, m.refresh()
			}
			m.input.Reset()
			return m, m.refresh()
		case key.Matches(msg, kioskKeys.Enter):
			raw := m.input.Value()
			m.input.Reset()
			m.snap.Step = flow.StepSubmitting
			m.input.Blur()
			return m, m.submitCmd(raw)
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}
}

func (m Model) handleEventKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, kioskKeys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
	case key.Matches(msg, kioskKeys.Down):
		if m.cursor < len(m.snap.Events)-1 {
			m.cursor++
		}
	case key.Matches(msg, kioskKeys.Enter):
		if len(m.snap.Events) == 0 {
			return m, nil
		}
		if err := m.checkIn.Start(m.snap.Events[m.cursor]); err != nil {
			m.snap.Error = err.Error()
			return m, nil
		}
		return m, m.refresh()
	}
	return m, nil
}

func (m Model) submitCmd(raw string) tea.Cmd {
	c := m.checkIn
	ctx := m.ctx
	return func() tea.Msg {
		snap, err := c.Submit(ctx, raw)
		return submitDoneMsg{snap: snap, err: err}
	}
}

// View renders the kiosk.
func (m Model) View() string {
	var body string
	switch m.snap.Step {
	case flow.StepEventSelection:
		body = m.viewEvents()
	case flow.StepSubmitting:
		body = m.viewHeader() + "\n\n" + itemStyle.Render("Checking in...")
	case flow.StepSuccess:
		body = m.viewSuccess()
	default:
		body = m.viewScanning()
	}

	panel := panelStyle.Render(body)
	if m.width > 0 && m.height > 0 {
		return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, panel)
	}
	return panel
}

func (m Model) viewHeader() string {
	return titleStyle.Render("PNM Check-in") + "\n" + eventStyle.Render(m.snap.Event)
}

func (m Model) viewEvents() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Select Event"))
	b.WriteString("\n")
	for i, e := range m.snap.Events {
		if i == m.cursor {
			b.WriteString(selectedItemStyle.Render("> " + e))
		} else {
			b.WriteString(itemStyle.Render("  " + e))
		}
		b.WriteString("\n")
	}
	if m.snap.Error != "" {
		b.WriteString("\n" + errorStyle.Render(m.snap.Error) + "\n")
	}
	b.WriteString(helpStyle.Render(helpLine(kioskKeys.Up, kioskKeys.Enter, kioskKeys.Quit)))
	return b.String()
}

func (m Model) viewScanning() string {
	var b strings.Builder
	b.WriteString(m.viewHeader())
	b.WriteString("\n\n")
	b.WriteString(m.input.View())
	if m.snap.Error != "" {
		b.WriteString("\n\n" + errorStyle.Render(m.snap.Error))
	}
	b.WriteString("\n")
	b.WriteString(helpStyle.Render(helpLine(kioskKeys.Enter, kioskKeys.Back, kioskKeys.Quit)))
	return b.String()
}

func (m Model) viewSuccess() string {
	var b strings.Builder
	b.WriteString(m.viewHeader())
	b.WriteString("\n\n")
	b.WriteString(successStyle.Render("Check-in successful!"))
	if m.snap.Name != "" {
		b.WriteString("\n" + itemStyle.Render(fmt.Sprintf("Welcome, %s", m.snap.Name)))
	}
	b.WriteString("\n\n")
	b.WriteString(m.input.View())
	return b.String()
}

func helpLine(bindings ...key.Binding) string {
	parts := make([]string, 0, len(bindings))
	for _, kb := range bindings {
		h := kb.Help()
		parts = append(parts, h.Key+" "+h.Desc)
	}
	return strings.Join(parts, "  ·  ")
}
