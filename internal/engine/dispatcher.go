package engine

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"runtime/debug"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/area/internal/ir"
	"github.com/roach88/area/internal/metrics"
)

// Outcome is the result of invoking one task's reaction.
type Outcome struct {
	TaskID   int64
	OwnerID  int64
	Reaction string
	Tier     string
	Elapsed  time.Duration
	Err      error
}

// Failed reports whether the reaction returned an error or panicked.
func (o Outcome) Failed() bool {
	return o.Err != nil
}

// Report collects the outcomes of one dispatch.
type Report struct {
	// LastReaction is the name of the last reaction attempted, empty when no
	// task ran. It is an audit value, not a success flag.
	LastReaction string

	Outcomes []Outcome
}

// Failures returns the failed outcomes.
func (r Report) Failures() []Outcome {
	var failed []Outcome
	for _, o := range r.Outcomes {
		if o.Failed() {
			failed = append(failed, o)
		}
	}
	return failed
}

// Dispatcher invokes the reactions of matched tasks.
type Dispatcher struct {
	registry *Registry
	metrics  *metrics.Metrics
	tracer   trace.Tracer
}

// NewDispatcher creates a Dispatcher. m may be nil.
func NewDispatcher(reg *Registry, m *metrics.Metrics, tracer trace.Tracer) *Dispatcher {
	return &Dispatcher{registry: reg, metrics: m, tracer: tracer}
}

// Dispatch resolves and invokes each task's reaction in order.
//
// Every task is resolved before any reaction runs. An unresolvable reaction
// is a configuration error and is returned as a RuntimeError with no side
// effects performed. Once invocation starts, a failing or panicking reaction
// is recorded in the Report and the next task still runs; Dispatch never
// returns an error for reaction failures.
func (d *Dispatcher) Dispatch(
	ctx context.Context,
	eventID string,
	sess Session,
	tasks []ir.Task,
	service string,
	params map[string]string,
) (Report, error) {
	resolved := make([]Resolution, len(tasks))
	for i, task := range tasks {
		res, ok := d.registry.Resolve(service, task.ReactionName)
		if !ok {
			err := NewUnknownReactionError(task.ID, task.ReactionName, service)
			err.EventID = eventID
			return Report{}, err
		}
		resolved[i] = res
	}

	report := Report{Outcomes: make([]Outcome, 0, len(tasks))}
	for i, task := range tasks {
		report.LastReaction = task.ReactionName
		report.Outcomes = append(report.Outcomes, d.invoke(ctx, eventID, sess, task, resolved[i], service, params))
	}
	return report, nil
}

// invoke runs one reaction, converting a panic into a failed Outcome.
func (d *Dispatcher) invoke(
	ctx context.Context,
	eventID string,
	sess Session,
	task ir.Task,
	res Resolution,
	service string,
	params map[string]string,
) (out Outcome) {
	ctx, span := d.tracer.Start(ctx, "area.reaction", trace.WithAttributes(
		attribute.String("area.reaction", task.ReactionName),
		attribute.String("area.tier", res.Tier),
		attribute.Int64("area.task_id", task.ID),
	))
	defer span.End()

	out = Outcome{
		TaskID:   task.ID,
		OwnerID:  task.OwnerID,
		Reaction: task.ReactionName,
		Tier:     res.Tier,
	}

	inv := Invocation{
		EventID: eventID,
		Task:    task,
		Session: sess,
		Params:  maps.Clone(params),
	}
	if res.Shared {
		inv.ServiceFrom = service
	}

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			out.Err = fmt.Errorf("reaction %s panicked: %v", task.ReactionName, r)
			slog.Error("reaction panicked",
				"event_id", eventID,
				"task_id", task.ID,
				"reaction", task.ReactionName,
				"panic", r,
				"stack", string(debug.Stack()),
			)
		}
		out.Elapsed = time.Since(start)
		d.metrics.ObserveReaction(task.ReactionName, out.Err, out.Elapsed)
		if out.Err != nil {
			span.RecordError(out.Err)
			span.SetStatus(codes.Error, out.Err.Error())
		}
	}()

	if err := res.Reaction.React(ctx, inv); err != nil {
		out.Err = err
		slog.Error("reaction failed",
			"event_id", eventID,
			"task_id", task.ID,
			"owner_id", task.OwnerID,
			"reaction", task.ReactionName,
			"tier", res.Tier,
			"service", service,
			"error", err,
		)
		return out
	}

	slog.Debug("reaction completed",
		"event_id", eventID,
		"task_id", task.ID,
		"reaction", task.ReactionName,
		"tier", res.Tier,
	)
	return out
}
