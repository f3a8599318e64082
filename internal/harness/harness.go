package harness

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/roach88/area/internal/catalog"
	"github.com/roach88/area/internal/engine"
	"github.com/roach88/area/internal/ir"
	"github.com/roach88/area/internal/store"
	"github.com/roach88/area/internal/tasks"
	"github.com/roach88/area/internal/testutil"
)

// Harness is the scenario execution environment. Every Run builds a fresh
// one.
type Harness struct {
	store    *store.Store
	engine   *engine.Engine
	tasks    *tasks.Service
	recorder *recorder

	// owners maps usernames to identity ids.
	owners map[string]int64

	// names maps task ids to scenario task names.
	names map[int64]string
}

// recorder stands in for every reaction. It records invocations in order and
// fails or panics for the tasks the scenario marks.
type recorder struct {
	mu     sync.Mutex
	calls  []engine.Invocation
	fail   map[int64]string
	panics map[int64]string
}

func newRecorder() *recorder {
	return &recorder{fail: map[int64]string{}, panics: map[int64]string{}}
}

// React implements engine.Reaction.
func (r *recorder) React(_ context.Context, inv engine.Invocation) error {
	r.mu.Lock()
	r.calls = append(r.calls, inv)
	msg, fails := r.fail[inv.Task.ID]
	name, panics := r.panics[inv.Task.ID]
	r.mu.Unlock()

	if panics {
		panic(fmt.Sprintf("task %s exploded", name))
	}
	if fails {
		return errors.New(msg)
	}
	return nil
}

// since returns the invocations recorded after the first n.
func (r *recorder) since(n int) []engine.Invocation {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]engine.Invocation(nil), r.calls[n:]...)
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
// Deterministic helpers ensure reproducible results.
//
// Execution flow:
// 1. Create fresh in-memory database and engine
// 2. Create identities and tasks
// 3. Submit events, checking expect clauses
// 4. Evaluate assertions
//
// A returned error means the scenario could not be executed; failed
// expectations are reported in Result.Errors.
func Run(scenario *Scenario) (*Result, error) {
	ctx := context.Background()

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	cat, err := catalog.Default()
	if err != nil {
		return nil, fmt.Errorf("failed to compile vocabulary: %w", err)
	}

	rec := newRecorder()
	handlers := make(map[string]engine.Reaction)
	for _, ref := range cat.Reactions() {
		handlers[ref.Name] = rec
	}
	reg, err := engine.RegistryFromCatalog(cat, handlers)
	if err != nil {
		return nil, fmt.Errorf("failed to build registry: %w", err)
	}

	h := &Harness{
		store: st,
		engine: engine.New(st, cat, reg,
			engine.WithClock(testutil.NewStepClock(testutil.DefaultEpoch, 0)),
			engine.WithIDGenerator(testutil.NewSequentialIDs("evt")),
		),
		tasks:    tasks.New(st, cat, nil),
		recorder: rec,
		owners:   make(map[string]int64),
		names:    make(map[int64]string),
	}

	result := NewResult()
	if err := h.seed(ctx, scenario, result); err != nil {
		return nil, fmt.Errorf("failed to seed scenario: %w", err)
	}

	h.executeEvents(ctx, scenario.Events, result)

	actx := &AssertionContext{
		Store: st,
		Ctx:   ctx,
		Tasks: result.Tasks,
	}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}

	return result, nil
}

// seed creates the identities and tasks of the scenario.
func (h *Harness) seed(ctx context.Context, scenario *Scenario, result *Result) error {
	for i, step := range scenario.Identities {
		id, err := h.store.CreateIdentity(ctx, ir.Identity{
			Username:    step.Username,
			Email:       step.Email,
			PhoneNumber: step.PhoneNumber,
		})
		if err != nil {
			return fmt.Errorf("identities[%d]: %w", i, err)
		}
		h.owners[step.Username] = id.ID
	}

	for i, step := range scenario.Tasks {
		params := map[string]string{"service": step.Service}
		if step.OAuthToken != "" {
			params["oauth_token"] = step.OAuthToken
		}
		task, err := h.tasks.Create(ctx, tasks.CreateRequest{
			Trigger:      step.Trigger,
			TriggerArgs:  step.TriggerArgs,
			ReactionName: step.Reaction,
			ReactionArgs: step.ReactionArgs,
			OwnerID:      h.owners[step.Owner],
			Params:       params,
		})
		if err != nil {
			return fmt.Errorf("tasks[%d] %s: %w", i, step.Name, err)
		}

		h.names[task.ID] = step.Name
		result.Tasks[step.Name] = task.ID
		if step.Fail != "" {
			h.recorder.fail[task.ID] = step.Fail
		}
		if step.Panic {
			h.recorder.panics[task.ID] = step.Name
		}
	}
	return nil
}

// executeEvents submits every event and traces its handling.
func (h *Harness) executeEvents(ctx context.Context, events []EventStep, result *Result) {
	for i, step := range events {
		ev := ir.InboundEvent{
			TriggerName:   step.EventName,
			Service:       step.Service,
			Params:        step.Params,
			ContextParams: step.ContextParams,
		}
		if step.Message != nil {
			userID := step.Message.UserID
			if step.Message.Owner != "" {
				userID = strconv.FormatInt(h.owners[step.Message.Owner], 10)
			}
			ev.Dedup = &ir.DedupInfo{MessageID: step.Message.ID, UserID: userID}
		}

		mark := h.recorder.count()
		res, err := h.engine.HandleEvent(ctx, ev)

		line := TraceEvent{
			Type:         TypeEvent,
			EventID:      res.EventID,
			Trigger:      step.EventName,
			Service:      step.Service,
			LastReaction: res.LastReaction,
		}
		switch {
		case engine.IsInvalidEvent(err):
			line.Outcome = OutcomeInvalid
			line.Error = err.Error()
		case err != nil:
			line.Outcome = OutcomeError
			line.Error = err.Error()
		case res.Duplicate:
			line.Outcome = OutcomeDuplicate
		case len(res.Report.Outcomes) == 0:
			line.Outcome = OutcomeNoMatch
		default:
			line.Outcome = OutcomeDispatched
		}
		result.addTrace(line)

		calls := h.recorder.since(mark)
		for j, o := range res.Report.Outcomes {
			rl := TraceEvent{
				Type:     TypeReaction,
				EventID:  res.EventID,
				Task:     h.names[o.TaskID],
				TaskID:   o.TaskID,
				Reaction: o.Reaction,
				Tier:     o.Tier,
				Outcome:  OutcomeOK,
			}
			if j < len(calls) {
				rl.Params = calls[j].Params
				rl.From = calls[j].ServiceFrom
			}
			if o.Failed() {
				rl.Outcome = OutcomeFailed
				rl.Error = o.Err.Error()
			}
			result.addTrace(rl)
		}

		if step.Expect == nil {
			continue
		}
		if line.Outcome != step.Expect.Outcome {
			result.AddError(fmt.Sprintf("events[%d] %s: expected outcome %q, got %q %s",
				i, step.EventName, step.Expect.Outcome, line.Outcome, line.Error))
		}
		if step.Expect.LastReaction != "" && res.LastReaction != step.Expect.LastReaction {
			result.AddError(fmt.Sprintf("events[%d] %s: expected last reaction %q, got %q",
				i, step.EventName, step.Expect.LastReaction, res.LastReaction))
		}
	}
}
