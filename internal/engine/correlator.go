package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/area/internal/catalog"
	"github.com/roach88/area/internal/ir"
)

// TaskFinder is the read side of the rule store used during correlation.
// *store.Store and *store.Tx satisfy it.
type TaskFinder interface {
	FindByFingerprint(ctx context.Context, fp string) ([]ir.Task, error)
	FindByTriggerAndOwnerEmail(ctx context.Context, trigger, email string) ([]ir.Task, error)
}

// Correlator computes the set of tasks an inbound event fires.
type Correlator struct {
	catalog *catalog.Catalog
}

// NewCorrelator creates a Correlator over the given vocabulary.
func NewCorrelator(cat *catalog.Catalog) *Correlator {
	return &Correlator{catalog: cat}
}

// Correlate returns the tasks to execute for ev: the tasks whose fingerprint
// equals fingerprint(trigger, values(params)), followed by the predicate
// matches when the trigger is special. Each task appears once, in that order.
// No match is not an error.
//
// Only params feed the fingerprint; context params never do.
func (c *Correlator) Correlate(ctx context.Context, finder TaskFinder, ev ir.InboundEvent) ([]ir.Task, error) {
	fp := ir.Fingerprint(ev.TriggerName, ir.ParamValues(ev.Params))

	tasks, err := finder.FindByFingerprint(ctx, fp)
	if err != nil {
		return nil, fmt.Errorf("correlate %s: %w", ev.TriggerName, err)
	}

	if !c.catalog.IsSpecial(ev.TriggerName) {
		return tasks, nil
	}

	matched, err := c.predicateMatches(ctx, finder, ev)
	if err != nil {
		return nil, fmt.Errorf("correlate %s: %w", ev.TriggerName, err)
	}
	return unionTasks(tasks, matched), nil
}

// predicateMatches fetches the owner's tasks for a special trigger and keeps
// those whose stored comparison value equals the event context field named by
// their marker. The candidate list is filtered into a new slice.
func (c *Correlator) predicateMatches(ctx context.Context, finder TaskFinder, ev ir.InboundEvent) ([]ir.Task, error) {
	p := c.catalog.Predicate()

	email := ev.Params[p.OwnerParam]
	if email == "" {
		slog.Debug("special trigger without owner email, skipping predicate match",
			"trigger", ev.TriggerName,
			"owner_param", p.OwnerParam,
		)
		return nil, nil
	}

	candidates, err := finder.FindByTriggerAndOwnerEmail(ctx, ev.TriggerName, email)
	if err != nil {
		return nil, err
	}

	var matched []ir.Task
	for _, task := range candidates {
		if c.matchesPredicate(task, ev) {
			matched = append(matched, task)
		}
	}
	return matched, nil
}

// matchesPredicate applies the positional predicate to one candidate. Tasks
// with too few arguments or an unknown marker never match.
func (c *Correlator) matchesPredicate(task ir.Task, ev ir.InboundEvent) bool {
	p := c.catalog.Predicate()

	if len(task.TriggerArgs) < p.MinArgs() {
		slog.Debug("task has insufficient trigger args for predicate",
			"task_id", task.ID,
			"args", len(task.TriggerArgs),
			"min_args", p.MinArgs(),
		)
		return false
	}

	marker := task.TriggerArgs[p.MarkerIndex]
	field, ok := c.catalog.MarkerContext(marker)
	if !ok {
		slog.Debug("task has no predicate marker",
			"task_id", task.ID,
			"marker", marker,
		)
		return false
	}

	got, present := ev.ContextParams[field]
	want := task.TriggerArgs[p.ValueIndex]
	if !present || got != want {
		slog.Debug("task predicate does not match",
			"task_id", task.ID,
			"field", field,
		)
		return false
	}
	return true
}

// unionTasks appends b to a, skipping tasks already present by id.
func unionTasks(a, b []ir.Task) []ir.Task {
	if len(b) == 0 {
		return a
	}
	seen := make(map[int64]bool, len(a)+len(b))
	out := make([]ir.Task, 0, len(a)+len(b))
	for _, t := range a {
		seen[t.ID] = true
		out = append(out, t)
	}
	for _, t := range b {
		if seen[t.ID] {
			continue
		}
		seen[t.ID] = true
		out = append(out, t)
	}
	return out
}
