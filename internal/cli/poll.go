package cli

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/spf13/cobra"

	"github.com/roach88/area/internal/metrics"
	"github.com/roach88/area/internal/poller"
)

// PollOptions holds flags for the poll command.
type PollOptions struct {
	*RootOptions
	Services []string
	Once     bool
}

// NewPollCommand creates the poll command.
func NewPollCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PollOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "poll",
		Short: "Run service pollers against a remote API",
		Long: `Run the service pollers as a standalone process. Tasks are listed from
the API at poller.core_api, which also refreshes their OAuth tokens.

Example:
  area poll --config area.yaml
  area poll --service google --once`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPoll(opts, cmd)
		},
	}

	cmd.Flags().StringSliceVar(&opts.Services, "service", nil, "services to poll, overrides the config")
	cmd.Flags().BoolVar(&opts.Once, "once", false, "run a single cycle and exit")

	return cmd
}

func runPoll(opts *PollOptions, cmd *cobra.Command) error {
	ctx, stop := signalContext(cmd)
	defer stop()

	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return err
	}
	if len(opts.Services) > 0 {
		cfg.Poller.Services = slices.Clone(opts.Services)
	}

	workers, err := pollWorkers(cfg, newClients())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to configure pollers", err)
	}
	if len(workers) == 0 {
		return NewExitError(ExitCommandError, "no poller is configured")
	}

	src := poller.NewCoreAPI(cfg.Poller.CoreAPI, nil)
	m := metrics.New()
	pollers := make([]*poller.Poller, len(workers))
	for i, w := range workers {
		pollers[i] = poller.New(src, w, poller.WithInterval(cfg.Poller.Interval), poller.WithMetrics(m))
	}

	if opts.Once {
		var failed []string
		for i, p := range pollers {
			if err := p.Cycle(ctx); err != nil {
				slog.Error("poll cycle failed", "service", workers[i].Service(), "error", err)
				failed = append(failed, workers[i].Service())
			}
		}
		if len(failed) > 0 {
			return NewExitError(ExitFailure, fmt.Sprintf("poll failed for %v", failed))
		}
		return formatter(opts.RootOptions, cmd).Success(fmt.Sprintf("polled %d service(s)", len(pollers)))
	}

	slog.Info("pollers starting", "services", cfg.Poller.Services, "core_api", cfg.Poller.CoreAPI)
	var wg sync.WaitGroup
	for _, p := range pollers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = p.Run(ctx)
		}()
	}
	wg.Wait()
	slog.Info("pollers stopped")
	return nil
}
