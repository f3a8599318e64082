package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/area/internal/httpapi"
	"github.com/roach88/area/internal/poller"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Addr      string
	NoPollers bool
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the service pollers",
		Long: `Run the HTTP API and, unless --no-pollers is given, one poller per
configured service in the same process. The pollers read tasks straight
from the database.

Example:
  area serve --config area.yaml
  area serve --db ./area.db --addr :9090 --no-pollers`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "", "listen address, overrides the config")
	cmd.Flags().BoolVar(&opts.NoPollers, "no-pollers", false, "do not start the service pollers")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	ctx, stop := signalContext(cmd)
	defer stop()

	a, err := openApp(ctx, opts.RootOptions)
	if err != nil {
		return err
	}
	defer a.close()

	eng, err := a.newEngine(ctx)
	if err != nil {
		return err
	}

	cfg := a.cfg
	addr := cfg.HTTP.Addr
	if opts.Addr != "" {
		addr = opts.Addr
	}
	srv := httpapi.New(eng, a.store, a.tasks,
		httpapi.WithMetrics(a.metrics),
		httpapi.WithRateLimit(cfg.HTTP.RateLimit, cfg.HTTP.Burst),
		httpapi.WithMaxBodyBytes(cfg.HTTP.MaxBodyBytes),
		httpapi.WithGitHubWebhookSecret(cfg.HTTP.WebhookSecret),
	)

	var pollers []*poller.Poller
	if !opts.NoPollers {
		workers, err := pollWorkers(cfg, a.clients)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to configure pollers", err)
		}
		for _, w := range workers {
			pollers = append(pollers, poller.New(a.tasks, w,
				poller.WithInterval(cfg.Poller.Interval),
				poller.WithMetrics(a.metrics),
			))
		}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Serving on %s with %d poller(s). Press Ctrl-C to stop.\n", addr, len(pollers))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	var (
		wg   sync.WaitGroup
		once sync.Once
		fail error
	)
	run := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("component stopped", "component", name, "error", err)
				once.Do(func() { fail = fmt.Errorf("%s: %w", name, err) })
				cancel()
			}
		}()
	}

	run("http", func(ctx context.Context) error { return srv.ListenAndServe(ctx, addr) })
	for _, p := range pollers {
		run("poller", p.Run)
	}
	wg.Wait()

	if fail != nil {
		return WrapExitError(ExitFailure, "server error", fail)
	}
	slog.Info("stopped gracefully")
	return nil
}

// signalContext derives a context from the command's that is cancelled on
// SIGINT or SIGTERM.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
