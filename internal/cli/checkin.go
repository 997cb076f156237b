package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/roach88/pnmtrack/internal/flow"
	"github.com/roach88/pnmtrack/internal/tui"
)

// CheckInOptions holds flags for the checkin command.
type CheckInOptions struct {
	*RootOptions
	Event   string
	Plain   bool
	LogFile string
}

// NewCheckInCommand creates the checkin command.
func NewCheckInCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CheckInOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "checkin",
		Short: "Run the check-in kiosk",
		Long: `Run the check-in kiosk for one event.

On a terminal the kiosk is a full-screen interface: pick the event, then scan
or type IDs. With --plain, or when stdin is not a terminal, IDs are read one
per line and each outcome is printed.

Example:
  pnmtrack checkin
  pnmtrack checkin --event 2 --plain < scans.txt`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheckIn(opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Event, "event", "e", "", "event number or name (required with --plain)")
	cmd.Flags().BoolVar(&opts.Plain, "plain", false, "line mode instead of the full-screen kiosk")
	cmd.Flags().StringVar(&opts.LogFile, "log-file", "", "kiosk log file (default: <db>.log)")

	return cmd
}

func runCheckIn(opts *CheckInOptions, cmd *cobra.Command) error {
	interactive := !opts.Plain && isTerminal(cmd.InOrStdin())

	logw := cmd.ErrOrStderr()
	if interactive {
		// The full-screen kiosk owns the terminal, so logs go to a file.
		f, err := openKioskLog(opts)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open log file", err)
		}
		defer f.Close()
		logw = f
	}

	a, err := openApp(opts.RootOptions, cmd, logw)
	if err != nil {
		return err
	}
	defer a.Close()

	c := flow.NewCheckIn(a.deps(), a.cfg.CheckInSettings())

	if opts.Event != "" {
		event, err := resolveEvent(a.cfg.CheckIn.Events, opts.Event)
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid --event", err)
		}
		if err := c.Start(event); err != nil {
			return WrapExitError(ExitCommandError, "invalid --event", err)
		}
	}

	if interactive {
		if err := tui.Run(cmd.Context(), c); err != nil {
			return WrapExitError(ExitFailure, "kiosk error", err)
		}
		return nil
	}

	if opts.Event == "" {
		return NewExitError(ExitCommandError, "--event is required in line mode")
	}
	return scanLines(cmd.Context(), a, c, cmd.InOrStdin())
}

// CheckInResult is the JSON record printed for each scanned line.
type CheckInResult struct {
	ID    string `json:"id"`
	Event string `json:"event"`
	Name  string `json:"name,omitempty"`
}

// scanLines submits one check-in per input line. Failures are reported and
// scanning continues; the command fails if any line failed.
func scanLines(ctx context.Context, a *app, c *flow.CheckIn, in io.Reader) error {
	failed := 0
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		snap, err := c.Submit(ctx, scanner.Text())
		if err != nil {
			failed++
			_ = a.reportFlowError(err)
			continue
		}
		text := fmt.Sprintf("Check-in successful! %s (%s)", snap.LastID, snap.Event)
		if snap.Name != "" {
			text = fmt.Sprintf("Check-in successful! Welcome, %s (%s)", snap.Name, snap.LastID)
		}
		_ = a.out.Success(CheckInResult{ID: snap.LastID, Event: snap.Event, Name: snap.Name}, text)
	}
	if err := scanner.Err(); err != nil {
		return WrapExitError(ExitCommandError, "failed to read input", err)
	}
	if failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d check-in(s) failed", failed))
	}
	return nil
}

func isTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func openKioskLog(opts *CheckInOptions) (*os.File, error) {
	path := opts.LogFile
	if path == "" {
		db := opts.Database
		if db == "" {
			db = "pnmtrack.db"
		}
		path = db + ".log"
	}
	return os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
}
