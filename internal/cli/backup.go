package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/pnmtrack/internal/backup"
	"github.com/roach88/pnmtrack/internal/flow"
	"github.com/roach88/pnmtrack/internal/store"
)

// backupKeys maps short log names to storage keys.
var backupKeys = map[string]string{
	"checkin": flow.CheckInBackupKey,
	"ingest":  flow.IngestBackupKey,
}

func resolveBackupKey(name string) string {
	if key, ok := backupKeys[name]; ok {
		return key
	}
	return name
}

// NewBackupCommand creates the backup command group.
func NewBackupCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Inspect, export, or clear the local backup logs",
		Long: `Inspect, export, or clear the local backup logs.

A log is named "checkin", "ingest", or by its raw storage key.

Example:
  pnmtrack backup show checkin
  pnmtrack backup export ingest -o ingest.csv
  pnmtrack backup clear checkin`,
	}

	cmd.AddCommand(newBackupShowCommand(rootOpts))
	cmd.AddCommand(newBackupExportCommand(rootOpts))
	cmd.AddCommand(newBackupClearCommand(rootOpts))

	return cmd
}

// BackupSummary describes a stored backup.
type BackupSummary struct {
	Key     string   `json:"key"`
	Version int      `json:"version"`
	Headers []string `json:"headers"`
	Rows    int      `json:"rows"`
}

func newBackupShowCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <log>",
		Short: "Show a backup's headers and row count",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(rootOpts, cmd, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			key := resolveBackupKey(args[0])
			b, err := a.log.Read(cmd.Context(), key)
			if err != nil {
				return a.reportBackupError(key, err)
			}
			summary := BackupSummary{Key: key, Version: b.Version, Headers: b.Headers, Rows: len(b.Rows)}
			text := fmt.Sprintf("%s: version %d, %d row(s)\ncolumns: %v", key, b.Version, len(b.Rows), b.Headers)
			return a.out.Success(summary, text)
		},
	}
}

func newBackupExportCommand(rootOpts *RootOptions) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "export <log>",
		Short: "Write a backup as CSV",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(rootOpts, cmd, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			key := resolveBackupKey(args[0])
			csv, err := a.log.Export(cmd.Context(), key)
			if err != nil {
				return a.reportBackupError(key, err)
			}

			if output == "" {
				_, err := fmt.Fprint(cmd.OutOrStdout(), csv)
				return err
			}
			if err := os.WriteFile(output, []byte(csv), 0o600); err != nil {
				return WrapExitError(ExitCommandError, "failed to write export", err)
			}
			a.out.VerboseLog("wrote %s", output)
			return a.out.Success(map[string]string{"key": key, "path": output}, "Exported "+key+" to "+output)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default: stdout)")

	return cmd
}

func newBackupClearCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "clear <log>",
		Short: "Delete a backup",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(rootOpts, cmd, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			key := resolveBackupKey(args[0])
			if err := a.log.Clear(cmd.Context(), key); err != nil {
				return a.reportBackupError(key, err)
			}
			return a.out.Success(map[string]string{"cleared": key}, "Cleared "+key)
		},
	}
}

func (a *app) reportBackupError(key string, err error) error {
	switch {
	case errors.Is(err, backup.ErrNotFound):
		_ = a.out.Error("NOT_FOUND", "no backup stored at "+key, nil)
		return WrapExitError(ExitFailure, "backup not found", err)
	case errors.Is(err, store.ErrUnavailable):
		_ = a.out.Error("STORAGE_UNAVAILABLE", "local storage is unavailable", nil)
		return WrapExitError(ExitCommandError, "storage unavailable", err)
	default:
		_ = a.out.Error("BACKUP_UNREADABLE", err.Error(), nil)
		return WrapExitError(ExitFailure, "backup unreadable", err)
	}
}
