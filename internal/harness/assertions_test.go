package harness

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/area/internal/ir"
	"github.com/roach88/area/internal/store"
	"github.com/roach88/area/internal/testutil"
)

func sampleTrace() []TraceEvent {
	return []TraceEvent{
		{Type: TypeEvent, Seq: 1, EventID: "evt-1", Trigger: "push_event", Outcome: OutcomeDispatched},
		{Type: TypeReaction, Seq: 2, EventID: "evt-1", Task: "broken", Reaction: "send_email", Outcome: OutcomeFailed,
			Params: map[string]string{"repo": "area", "branch": "main"}},
		{Type: TypeReaction, Seq: 3, EventID: "evt-1", Task: "notify", Reaction: "send_sms", Outcome: OutcomeOK,
			Params: map[string]string{"repo": "area", "branch": "main", "commit_msg": "Initial commit"}},
		{Type: TypeEvent, Seq: 4, EventID: "evt-2", Trigger: "push_event", Outcome: OutcomeDispatched},
		{Type: TypeReaction, Seq: 5, EventID: "evt-2", Task: "notify", Reaction: "send_sms", Outcome: OutcomeOK,
			Params: map[string]string{"repo": "area", "branch": "main"}},
	}
}

func TestAssertReactionCalled_Found(t *testing.T) {
	err := assertReactionCalled(sampleTrace(), Assertion{
		Type:   AssertReactionCalled,
		Task:   "notify",
		Params: map[string]string{"commit_msg": "Initial commit"},
	})
	assert.NoError(t, err)
}

func TestAssertReactionCalled_ByReactionName(t *testing.T) {
	err := assertReactionCalled(sampleTrace(), Assertion{Type: AssertReactionCalled, Reaction: "send_email"})
	assert.NoError(t, err)
}

func TestAssertReactionCalled_NotFound(t *testing.T) {
	err := assertReactionCalled(sampleTrace(), Assertion{Type: AssertReactionCalled, Task: "ghost"})
	require.Error(t, err)

	assertErr, ok := err.(*AssertionError)
	require.True(t, ok)
	assert.Equal(t, AssertReactionCalled, assertErr.Type)
	assert.Contains(t, assertErr.Expected, "task ghost")
	assert.Equal(t, "not found in trace", assertErr.Actual)
}

func TestAssertReactionCalled_WrongParams(t *testing.T) {
	err := assertReactionCalled(sampleTrace(), Assertion{
		Type:   AssertReactionCalled,
		Task:   "broken",
		Params: map[string]string{"branch": "dev"},
	})
	require.Error(t, err)
}

func TestAssertReactionOrder(t *testing.T) {
	assert.NoError(t, assertReactionOrder(sampleTrace(), Assertion{Tasks: []string{"broken", "notify"}}))

	err := assertReactionOrder(sampleTrace(), Assertion{Tasks: []string{"notify", "broken"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "notify (seq 3) should be before broken (seq 2)")

	err = assertReactionOrder(sampleTrace(), Assertion{Tasks: []string{"broken", "ghost"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "task ghost never invoked")
}

func TestAssertReactionCount(t *testing.T) {
	tests := []struct {
		name    string
		a       Assertion
		wantErr bool
	}{
		{name: "task exact", a: Assertion{Task: "notify", Count: 2}},
		{name: "reaction exact", a: Assertion{Reaction: "send_email", Count: 1}},
		{name: "zero", a: Assertion{Task: "ghost", Count: 0}},
		{name: "too few", a: Assertion{Task: "notify", Count: 3}, wantErr: true},
		{name: "too many", a: Assertion{Reaction: "send_sms", Count: 1}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := assertReactionCount(sampleTrace(), tt.a)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, AssertReactionCount, err.(*AssertionError).Type)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestMatchParams_SubsetSemantics(t *testing.T) {
	actual := map[string]string{"repo": "area", "branch": "main"}

	assert.True(t, matchParams(actual, nil))
	assert.True(t, matchParams(actual, map[string]string{"repo": "area"}))
	assert.False(t, matchParams(actual, map[string]string{"repo": "other"}))
	assert.False(t, matchParams(actual, map[string]string{"author": "pau"}))
	assert.False(t, matchParams(nil, map[string]string{"repo": "area"}))
}

func TestAssertionError_ErrorFormat(t *testing.T) {
	err := &AssertionError{
		Type:     AssertReactionCount,
		Expected: "1 invocations of task notify",
		Actual:   "2 invocations",
		Trace:    sampleTrace()[:2],
	}

	msg := err.Error()
	assert.Contains(t, msg, "Assertion failed: reaction_count")
	assert.Contains(t, msg, "Expected: 1 invocations of task notify")
	assert.Contains(t, msg, "Actual: 2 invocations")
	assert.Contains(t, msg, "[1] evt-1 push_event -> dispatched")
	assert.Contains(t, msg, "broken (send_email) failed")
}

func TestBuildWhereClause(t *testing.T) {
	sql, args, err := buildWhereClause(nil)
	require.NoError(t, err)
	assert.Empty(t, sql)
	assert.Nil(t, args)

	sql, args, err = buildWhereClause(map[string]any{"trigger_name": "push_event", "id": 3})
	require.NoError(t, err)
	assert.Equal(t, "id = ? AND trigger_name = ?", sql)
	assert.Equal(t, []any{3, "push_event"}, args)

	_, _, err = buildWhereClause(map[string]any{"id; DROP TABLE tasks": 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid column name")
}

func TestFormatWhereClause(t *testing.T) {
	assert.Equal(t, "(no conditions)", formatWhereClause(nil))
	assert.Equal(t, "a=1 AND b=x", formatWhereClause(map[string]any{"b": "x", "a": 1}))
}

func TestStateValuesEqual(t *testing.T) {
	at := time.Date(2024, 10, 28, 11, 0, 0, 0, time.UTC)

	assert.True(t, stateValuesEqual("push_event", "push_event"))
	assert.True(t, stateValuesEqual("push_event", []byte("push_event")))
	assert.True(t, stateValuesEqual(3, int64(3)))
	assert.True(t, stateValuesEqual(true, int64(1)))
	assert.False(t, stateValuesEqual(true, int64(0)))
	assert.True(t, stateValuesEqual("2024-10-28T11:00:00Z", at))
	assert.False(t, stateValuesEqual("not a time", at))
	assert.True(t, stateValuesEqual(nil, nil))
	assert.False(t, stateValuesEqual("value", nil))
	assert.False(t, stateValuesEqual("3", int64(3)))
}

// Integration tests against a real database

func setupTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func seedLastEvents(t *testing.T, st *store.Store) {
	t.Helper()
	ctx := context.Background()
	clock := testutil.NewStepClock(testutil.DefaultEpoch, 0)
	for _, ev := range []ir.LastExecutedEvent{
		{Trigger: "push_event", ReactionName: "send_email"},
		{Trigger: "push_event", ReactionName: "send_sms"},
		{Trigger: "email_received"},
	} {
		ev.Timestamp = clock.Now()
		_, err := st.AppendLastEvent(ctx, ev)
		require.NoError(t, err)
	}
}

func TestAssertRowCount(t *testing.T) {
	st := setupTestStore(t)
	seedLastEvents(t, st)
	ctx := context.Background()

	assert.NoError(t, assertRowCount(ctx, st, Assertion{Table: "last_events", Count: 3}))
	assert.NoError(t, assertRowCount(ctx, st, Assertion{
		Table: "last_events",
		Where: map[string]any{"trigger_name": "push_event"},
		Count: 2,
	}))

	err := assertRowCount(ctx, st, Assertion{Table: "processed_messages", Count: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "0 rows")

	err = assertRowCount(ctx, st, Assertion{Table: "no_such_table", Count: 0})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "query error")

	err = assertRowCount(ctx, st, Assertion{Table: "tasks; --", Count: 0})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid table name")
}

func TestAssertFinalState_RowFound_Pass(t *testing.T) {
	st := setupTestStore(t)
	seedLastEvents(t, st)

	err := assertFinalState(context.Background(), st, Assertion{
		Type:  AssertFinalState,
		Table: "last_events",
		Where: map[string]any{"action_name": "send_sms"},
		Expect: map[string]any{
			"id":           2,
			"trigger_name": "push_event",
			"timestamp":    "2024-10-28T11:00:01Z",
		},
	})
	assert.NoError(t, err)
}

func TestAssertFinalState_Failures(t *testing.T) {
	st := setupTestStore(t)
	seedLastEvents(t, st)

	tests := []struct {
		name    string
		a       Assertion
		wantErr string
	}{
		{
			name:    "row not found",
			a:       Assertion{Table: "last_events", Where: map[string]any{"action_name": "send_usdc"}, Expect: map[string]any{"id": 1}},
			wantErr: "row not found",
		},
		{
			name:    "ambiguous",
			a:       Assertion{Table: "last_events", Where: map[string]any{"trigger_name": "push_event"}, Expect: map[string]any{"id": 1}},
			wantErr: "multiple rows matched",
		},
		{
			name:    "value mismatch",
			a:       Assertion{Table: "last_events", Where: map[string]any{"id": 1}, Expect: map[string]any{"action_name": "send_sms"}},
			wantErr: `field "action_name" = send_sms`,
		},
		{
			name:    "missing column",
			a:       Assertion{Table: "last_events", Where: map[string]any{"id": 1}, Expect: map[string]any{"reaction": "send_email"}},
			wantErr: `field "reaction" not present`,
		},
		{
			name:    "unknown table",
			a:       Assertion{Table: "actions", Expect: map[string]any{"id": 1}},
			wantErr: "query error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := assertFinalState(context.Background(), st, tt.a)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestResolveTaskRefs(t *testing.T) {
	a := Assertion{Where: map[string]any{"id": "$task.notify", "user_id": 1, "service": "$task.ghost"}}

	got := resolveTaskRefs(a, map[string]int64{"notify": 7})

	assert.Equal(t, map[string]any{"id": int64(7), "user_id": 1, "service": "$task.ghost"}, got.Where)
	assert.Equal(t, "$task.notify", a.Where["id"], "input is not modified")
}

func TestEvaluateAssertions(t *testing.T) {
	st := setupTestStore(t)
	seedLastEvents(t, st)
	result := &Result{Trace: sampleTrace()}
	actx := &AssertionContext{Store: st, Ctx: context.Background()}

	errs := EvaluateAssertions(result, []Assertion{
		{Type: AssertReactionCount, Task: "notify", Count: 2},
		{Type: AssertRowCount, Table: "last_events", Count: 3},
		{Type: AssertReactionCalled, Task: "ghost"},
		{Type: "trace_contains"},
	}, actx)

	require.Len(t, errs, 2)
	assert.Contains(t, errs[0], "task ghost")
	assert.Contains(t, errs[1], `unknown assertion type "trace_contains"`)
}

func TestEvaluateAssertions_StateWithoutContext(t *testing.T) {
	errs := EvaluateAssertions(&Result{}, []Assertion{
		{Type: AssertRowCount, Table: "last_events"},
	}, nil)

	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "requires database context")
}
