package tui

import "github.com/roach88/pnmtrack/internal/flow"

// refreshMsg asks the model to re-read the flow state.
type refreshMsg struct{}

// submitDoneMsg carries the outcome of a submission.
type submitDoneMsg struct {
	snap flow.CheckInSnapshot
	err  error
}
