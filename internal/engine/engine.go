package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/area/internal/catalog"
	"github.com/roach88/area/internal/ir"
	"github.com/roach88/area/internal/metrics"
	"github.com/roach88/area/internal/store"
)

const tracerName = "github.com/roach88/area/internal/engine"

// errDuplicate aborts the transaction of an already-processed message.
var errDuplicate = errors.New("message already processed")

// Result is the outcome of one pipeline run.
type Result struct {
	// EventID identifies the run in logs and traces.
	EventID string

	// Duplicate is true when the event's message was already processed for
	// its owner. Nothing was dispatched or recorded.
	Duplicate bool

	// LastReaction is the last reaction attempted, empty when no task matched.
	LastReaction string

	// Report holds the per-task outcomes.
	Report Report
}

// Engine runs the per-event pipeline: dedup, correlate, dispatch, audit.
type Engine struct {
	store      *store.Store
	correlator *Correlator
	dispatcher *Dispatcher
	clock      Clock
	ids        IDGenerator
	metrics    *metrics.Metrics
	tracer     trace.Tracer
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the clock used for ledger and audit timestamps.
func WithClock(c Clock) Option {
	return func(e *Engine) {
		e.clock = c
	}
}

// WithIDGenerator sets the event id generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(e *Engine) {
		e.ids = g
	}
}

// WithMetrics enables Prometheus instrumentation.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithTracerProvider sets the OpenTelemetry tracer provider. The global
// provider is used by default.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(e *Engine) {
		e.tracer = tp.Tracer(tracerName)
	}
}

// New creates an Engine over a store, a vocabulary, and a reaction registry.
func New(s *store.Store, cat *catalog.Catalog, reg *Registry, opts ...Option) *Engine {
	e := &Engine{
		store:      s,
		correlator: NewCorrelator(cat),
		clock:      SystemClock{},
		ids:        UUIDv7Generator{},
		tracer:     otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.dispatcher = NewDispatcher(reg, e.metrics, e.tracer)
	return e
}

// ValidateEvent rejects events missing a required field. A dedup block with
// both fields empty is treated as absent; a partial one is invalid, as is a
// non-numeric user id.
func ValidateEvent(ev ir.InboundEvent) error {
	if strings.TrimSpace(ev.TriggerName) == "" {
		return NewInvalidEventError("event_name", "is required")
	}
	if strings.TrimSpace(ev.Service) == "" {
		return NewInvalidEventError("service", "is required")
	}
	if ev.Dedup == nil || (ev.Dedup.MessageID == "" && ev.Dedup.UserID == "") {
		return nil
	}
	if ev.Dedup.MessageID == "" {
		return NewInvalidEventError("processed_message_info.message_id", "is required with user_id")
	}
	if ev.Dedup.UserID == "" {
		return NewInvalidEventError("processed_message_info.user_id", "is required with message_id")
	}
	if _, err := strconv.ParseInt(ev.Dedup.UserID, 10, 64); err != nil {
		return NewInvalidEventError("processed_message_info.user_id", "must be an integer")
	}
	return nil
}

// HandleEvent runs the pipeline for one inbound event.
//
// It returns an error only for invalid events (IsInvalidEvent), unknown
// reactions (IsUnknownReaction), a ctx cancelled before the run starts, and
// storage failures. Cancelling ctx after that has no effect. Reaction failures are
// reported in Result.Report and logged.
func (e *Engine) HandleEvent(ctx context.Context, ev ir.InboundEvent) (Result, error) {
	res := Result{EventID: e.ids.Generate()}

	ctx, span := e.tracer.Start(ctx, "area.event", trace.WithAttributes(
		attribute.String("area.event_id", res.EventID),
		attribute.String("area.trigger", ev.TriggerName),
		attribute.String("area.service", ev.Service),
	))
	defer span.End()

	log := slog.With("event_id", res.EventID, "trigger", ev.TriggerName, "service", ev.Service)

	if err := ValidateEvent(ev); err != nil {
		var re *RuntimeError
		if errors.As(err, &re) {
			re.EventID = res.EventID
		}
		e.metrics.ObserveEvent(ev.TriggerName, metrics.OutcomeInvalid)
		log.Warn("rejecting invalid event", "error", err)
		return res, err
	}
	if err := ctx.Err(); err != nil {
		return res, err
	}

	// From here the event runs to completion: a caller that goes away must
	// not roll back the claim and audit row of reactions that already ran.
	ctx = context.WithoutCancel(ctx)

	err := e.store.WithTx(ctx, func(tx *store.Tx) error {
		if ev.Dedup != nil && ev.Dedup.MessageID != "" {
			ownerID, _ := strconv.ParseInt(ev.Dedup.UserID, 10, 64)
			claimed, err := tx.ClaimMessage(ctx, ev.Dedup.MessageID, ownerID, e.clock.Now())
			if err != nil {
				return err
			}
			if !claimed {
				res.Duplicate = true
				return errDuplicate
			}
		}

		tasks, err := e.correlator.Correlate(ctx, tx, ev)
		if err != nil {
			return err
		}
		span.SetAttributes(attribute.Int("area.matched_tasks", len(tasks)))

		report, err := e.dispatcher.Dispatch(ctx, res.EventID, tx, tasks, ev.Service, ev.MergedParams())
		if err != nil {
			return err
		}
		res.Report = report
		res.LastReaction = report.LastReaction

		if _, err := tx.AppendLastEvent(ctx, ir.LastExecutedEvent{
			Trigger:      ev.TriggerName,
			ReactionName: report.LastReaction,
			Timestamp:    e.clock.Now(),
		}); err != nil {
			return err
		}
		return nil
	})

	switch {
	case errors.Is(err, errDuplicate):
		e.metrics.ObserveEvent(ev.TriggerName, metrics.OutcomeDuplicate)
		log.Info("message already processed, skipping event",
			"message_id", ev.Dedup.MessageID,
			"user_id", ev.Dedup.UserID,
		)
		return res, nil
	case err != nil:
		var re *RuntimeError
		if errors.As(err, &re) && re.EventID == "" {
			re.EventID = res.EventID
		}
		e.metrics.ObserveEvent(ev.TriggerName, metrics.OutcomeError)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Error("event handling failed", "error", err)
		return res, fmt.Errorf("handle event %s: %w", ev.TriggerName, err)
	}

	outcome := metrics.OutcomeDispatched
	if len(res.Report.Outcomes) == 0 {
		outcome = metrics.OutcomeNoMatch
	}
	e.metrics.ObserveEvent(ev.TriggerName, outcome)

	log.Info("event handled",
		"tasks", len(res.Report.Outcomes),
		"failed", len(res.Report.Failures()),
		"last_reaction", res.LastReaction,
	)
	return res, nil
}
