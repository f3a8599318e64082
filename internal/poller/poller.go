package poller

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/roach88/area/internal/metrics"
	"github.com/roach88/area/internal/tasks"
)

// DefaultInterval is the pause between two cycles.
const DefaultInterval = 5 * time.Second

// ErrUnsupportedTrigger is returned by a Worker for tasks it has no work for.
var ErrUnsupportedTrigger = errors.New("unsupported trigger")

// Source lists the tasks of a service. *tasks.Service and *CoreAPI satisfy it.
type Source interface {
	ListForService(ctx context.Context, service string) ([]tasks.ServiceTask, error)
}

// Worker performs the provider work of one task.
type Worker interface {
	Service() string
	Handle(ctx context.Context, task tasks.ServiceTask) error
}

// Poller drives one Worker.
type Poller struct {
	source   Source
	worker   Worker
	interval time.Duration
	metrics  *metrics.Metrics
}

// Option configures a Poller.
type Option func(*Poller)

// WithInterval sets the pause between cycles.
func WithInterval(d time.Duration) Option {
	return func(p *Poller) {
		if d > 0 {
			p.interval = d
		}
	}
}

// WithMetrics enables cycle counters.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Poller) {
		p.metrics = m
	}
}

// New creates a Poller feeding the tasks of w.Service() to w.
func New(src Source, w Worker, opts ...Option) *Poller {
	p := &Poller{source: src, worker: w, interval: DefaultInterval}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run cycles until ctx is cancelled. Cancellation is observed between
// cycles only; it returns nil once the current cycle has finished.
func (p *Poller) Run(ctx context.Context) error {
	service := p.worker.Service()
	slog.Info("poller started", "service", service, "interval", p.interval)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("poller stopped", "service", service)
			return nil
		case <-timer.C:
		}

		// A started cycle finishes even when shutdown arrives mid-way.
		if err := p.Cycle(context.WithoutCancel(ctx)); err != nil {
			slog.Warn("poll cycle failed, retrying",
				"service", service,
				"retry_in", p.interval,
				"error", err,
			)
		}
		timer.Reset(p.interval)
	}
}

// Cycle fetches the service's tasks once and handles each of them. Only a
// fetch failure is returned; per-task failures are logged.
func (p *Poller) Cycle(ctx context.Context) error {
	service := p.worker.Service()

	items, err := p.source.ListForService(ctx, service)
	p.metrics.ObservePoll(service, err)
	if err != nil {
		return err
	}
	slog.Debug("poll cycle", "service", service, "tasks", len(items))

	for _, item := range items {
		p.handle(ctx, service, item)
	}
	return nil
}

func (p *Poller) handle(ctx context.Context, service string, item tasks.ServiceTask) {
	log := slog.With(
		"service", service,
		"task_id", item.ID,
		"owner_id", item.OwnerID,
		"trigger", item.Trigger,
	)

	if item.Error != "" {
		log.Warn("skipping task", "reason", item.Error)
		return
	}
	if item.RequiresOAuth && item.OAuthToken == "" {
		log.Warn("skipping task", "reason", "no oauth token")
		return
	}

	err := p.worker.Handle(ctx, item)
	switch {
	case err == nil:
	case errors.Is(err, ErrUnsupportedTrigger):
		log.Debug("no poller work for trigger")
	default:
		log.Error("poller task failed", "error", err)
	}
}
