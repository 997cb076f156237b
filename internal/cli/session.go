package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/roach88/pnmtrack/internal/session"
)

// LoginOptions holds flags for the login command.
type LoginOptions struct {
	*RootOptions
	PasswordStdin bool
}

// NewLoginCommand creates the login command.
func NewLoginCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LoginOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Verify the shared password and save it for this device",
		Long: `Verify the shared recruitment password with the remote store and save it
as this device's session. Check-ins and registrations require a saved session.

Example:
  pnmtrack login
  echo "$PASSWORD" | pnmtrack login --password-stdin`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLogin(opts, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.PasswordStdin, "password-stdin", false, "read the password from stdin")

	return cmd
}

func runLogin(opts *LoginOptions, cmd *cobra.Command) error {
	a, err := openApp(opts.RootOptions, cmd, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.Close()

	password, err := readPassword(cmd, opts.PasswordStdin)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read password", err)
	}
	if password == "" {
		_ = a.out.Error("VALIDATION", "Please enter a password", nil)
		return NewExitError(ExitCommandError, "empty password")
	}

	if err := a.session.Login(cmd.Context(), a.gateway, password); err != nil {
		if errors.Is(err, session.ErrInvalidPassword) {
			_ = a.out.Error("INVALID_PASSWORD", "Invalid password", nil)
			return WrapExitError(ExitFailure, "login rejected", err)
		}
		_ = a.out.Error("LOGIN_FAILED", "Login failed. Please try again.", err.Error())
		return WrapExitError(ExitFailure, "login failed", err)
	}

	return a.out.Success(map[string]any{"logged_in": true}, "Logged in.")
}

// readPassword prompts without echo on a terminal, otherwise reads one line.
func readPassword(cmd *cobra.Command, fromStdin bool) (string, error) {
	in := cmd.InOrStdin()
	if f, ok := in.(*os.File); ok && !fromStdin && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(cmd.ErrOrStderr(), "Password: ")
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(cmd.ErrOrStderr())
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(b)), nil
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// NewLogoutCommand creates the logout command.
func NewLogoutCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the saved password on this device",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(rootOpts, cmd, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.session.Clear(cmd.Context()); err != nil {
				_ = a.out.Error("STORAGE", "Failed to clear session", err.Error())
				return WrapExitError(ExitCommandError, "logout failed", err)
			}
			return a.out.Success(map[string]any{"logged_in": false}, "Logged out.")
		},
	}
}
