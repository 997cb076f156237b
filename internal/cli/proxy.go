package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/pnmtrack/internal/config"
	"github.com/roach88/pnmtrack/internal/gateway"
)

// ProxyOptions holds flags for the proxy command.
type ProxyOptions struct {
	*RootOptions
	Addr string

	// ready, when set, receives the bound address once listening (for testing).
	ready chan<- string
}

// NewProxyCommand creates the proxy command.
func NewProxyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ProxyOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "proxy",
		Short: "Serve the gateway proxy in front of the remote script",
		Long: `Serve POST/GET /api/proxy, forwarding requests to the remote script URL
(GOOGLE_SCRIPT_URL or proxy.script_url), plus /metrics and /healthz.

Example:
  GOOGLE_SCRIPT_URL=https://script.google.com/macros/s/.../exec pnmtrack proxy --addr :8080`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProxy(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "", "listen address (default from config)")

	return cmd
}

func runProxy(opts *ProxyOptions, cmd *cobra.Command) error {
	logger := newLogger(cmd.ErrOrStderr(), opts.Verbose)
	slog.SetDefault(logger)

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}
	addr := cfg.Proxy.Addr
	if opts.Addr != "" {
		addr = opts.Addr
	}
	if cfg.Proxy.ScriptURL == "" {
		logger.Warn("script URL not configured; proxy requests will fail", "env", config.EnvScriptURL)
	}

	proxy := gateway.NewProxy(cfg.Proxy.ScriptURL, &http.Client{Timeout: cfg.Gateway.Timeout}, logger)
	srv := &http.Server{
		Handler:           proxy.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to listen", err)
	}

	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	logger.Info("proxy listening", "addr", ln.Addr().String())
	fmt.Fprintf(cmd.OutOrStdout(), "Proxy listening on %s. Press Ctrl-C to stop.\n", ln.Addr())
	if opts.ready != nil {
		opts.ready <- ln.Addr().String()
	}

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return WrapExitError(ExitFailure, "proxy error", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return WrapExitError(ExitFailure, "proxy shutdown", err)
	}
	logger.Info("proxy stopped gracefully")
	return nil
}
