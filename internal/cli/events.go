package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

// NewEventsCommand creates the events command.
func NewEventsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "events",
		Short: "List the configured recruitment events",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(rootOpts, cmd, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			var b strings.Builder
			for i, e := range a.cfg.CheckIn.Events {
				fmt.Fprintf(&b, "%d. %s\n", i+1, e)
			}
			return a.out.Success(a.cfg.CheckIn.Events, strings.TrimSuffix(b.String(), "\n"))
		},
	}
}

// resolveEvent accepts a 1-based index or an exact event name.
func resolveEvent(events []string, arg string) (string, error) {
	if n, err := strconv.Atoi(arg); err == nil {
		if n < 1 || n > len(events) {
			return "", fmt.Errorf("event %d out of range 1-%d", n, len(events))
		}
		return events[n-1], nil
	}
	for _, e := range events {
		if e == arg {
			return e, nil
		}
	}
	return "", fmt.Errorf("unknown event %q", arg)
}
