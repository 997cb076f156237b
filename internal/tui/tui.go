// Package tui implements the full-screen check-in kiosk.
package tui

import (
	"context"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/roach88/pnmtrack/internal/flow"
)

// programRef is a shared reference to the tea.Program for goroutine sends.
// It's set after tea.NewProgram but before p.Run().
type programRef struct {
	mu sync.Mutex
	p  *tea.Program
}

func (r *programRef) Set(p *tea.Program) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.p = p
}

func (r *programRef) Send(msg tea.Msg) {
	r.mu.Lock()
	p := r.p
	r.mu.Unlock()
	if p != nil {
		p.Send(msg)
	}
}

// Clear nils out the program reference, preventing post-exit sends.
func (r *programRef) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.p = nil
}

// Run shows the kiosk for c until the operator quits or ctx is done.
func Run(ctx context.Context, c *flow.CheckIn) error {
	ref := &programRef{}

	// Transitions can come from the event loop itself, so the send must not
	// block it. The model re-reads the flow on refresh, making order irrelevant.
	c.OnChange(func(flow.CheckInSnapshot) {
		go ref.Send(refreshMsg{})
	})

	p := tea.NewProgram(
		NewModel(ctx, c),
		tea.WithAltScreen(),
		tea.WithContext(ctx),
	)
	ref.Set(p)
	defer ref.Clear()

	_, err := p.Run()
	return err
}
