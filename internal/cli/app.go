package cli

import (
	"errors"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/pnmtrack/internal/backup"
	"github.com/roach88/pnmtrack/internal/config"
	"github.com/roach88/pnmtrack/internal/flow"
	"github.com/roach88/pnmtrack/internal/gateway"
	"github.com/roach88/pnmtrack/internal/session"
	"github.com/roach88/pnmtrack/internal/store"
)

// app holds the resources a command runs against.
type app struct {
	cfg     *config.Config
	store   *store.Store // nil when storage could not be opened
	log     *backup.Log
	session *session.Session
	gateway *gateway.Client
	logger  *slog.Logger
	out     *OutputFormatter
}

func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// openApp loads configuration and opens storage. Logs go to logw.
// A database that cannot be opened is not fatal: the backup log skips writes
// and the session reads as logged out.
func openApp(opts *RootOptions, cmd *cobra.Command, logw io.Writer) (*app, error) {
	logger := newLogger(logw, opts.Verbose)
	slog.SetDefault(logger)

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if opts.Database != "" {
		cfg.DB = opts.Database
	}

	st, err := store.Open(cfg.DB)
	if err != nil {
		logger.Warn("storage unavailable, backups disabled", "path", cfg.DB, "error", err)
		st = nil
	} else {
		logger.Debug("database ready", "path", cfg.DB)
	}

	a := &app{
		cfg:     cfg,
		store:   st,
		session: session.New(st, logger),
		gateway: gateway.NewClient(cfg.Gateway.URL,
			gateway.WithTimeout(cfg.Gateway.Timeout),
			gateway.WithLogger(logger),
		),
		logger: logger,
		out: &OutputFormatter{
			Format:    opts.Format,
			Writer:    cmd.OutOrStdout(),
			ErrWriter: cmd.ErrOrStderr(),
			Verbose:   opts.Verbose,
		},
	}
	a.log = backup.New(a.storage(), backup.WithLogger(logger))
	return a, nil
}

// storage returns the store as a backup.Storage, or nil when unavailable.
func (a *app) storage() backup.Storage {
	if a.store == nil {
		return nil
	}
	return a.store
}

func (a *app) deps() flow.Deps {
	return flow.Deps{
		Log:         a.log,
		Gateway:     a.gateway,
		Credentials: a.session,
		Logger:      a.logger,
	}
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.logger.Error("error closing database", "error", err)
	}
}

// reportFlowError prints a flow error and converts it to an ExitError.
func (a *app) reportFlowError(err error) error {
	var fe *flow.Error
	if !errors.As(err, &fe) {
		_ = a.out.Error("ERROR", err.Error(), nil)
		return WrapExitError(ExitFailure, "command failed", err)
	}

	var details any
	if fe.Err != nil {
		details = fe.Err.Error()
	}
	_ = a.out.Error(string(fe.Code), fe.Message, details)

	code := ExitFailure
	if fe.Code == flow.ErrCodeInvalidState {
		code = ExitCommandError
	}
	return WrapExitError(code, fe.Message, err)
}
