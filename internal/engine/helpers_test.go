package engine

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/area/internal/catalog"
	"github.com/roach88/area/internal/ir"
	"github.com/roach88/area/internal/store"
	"github.com/roach88/area/internal/testutil"
)

func setupTestStore(t *testing.T) *store.Store {
	t.Helper()
	dir := t.TempDir()
	s, err := store.Open(dir + "/test.db")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// recorder is a Reaction that records invocations and fails or panics for
// selected tasks.
type recorder struct {
	mu     sync.Mutex
	calls  []Invocation
	fail   map[int64]error
	panics map[int64]bool
}

func newRecorder() *recorder {
	return &recorder{fail: map[int64]error{}, panics: map[int64]bool{}}
}

func (r *recorder) React(_ context.Context, inv Invocation) error {
	r.mu.Lock()
	r.calls = append(r.calls, inv)
	err := r.fail[inv.Task.ID]
	p := r.panics[inv.Task.ID]
	r.mu.Unlock()

	if p {
		panic(fmt.Sprintf("task %d exploded", inv.Task.ID))
	}
	return err
}

func (r *recorder) taskIDs() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]int64, len(r.calls))
	for i, c := range r.calls {
		ids[i] = c.Task.ID
	}
	return ids
}

// handlersFor maps every reaction of the default vocabulary to h.
func handlersFor(h Reaction) map[string]Reaction {
	handlers := make(map[string]Reaction)
	for _, ref := range catalog.MustDefault().Reactions() {
		handlers[ref.Name] = h
	}
	return handlers
}

type testEnv struct {
	store    *store.Store
	engine   *Engine
	recorder *recorder
	owner    ir.Identity
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	s := setupTestStore(t)
	cat := catalog.MustDefault()
	rec := newRecorder()

	reg, err := RegistryFromCatalog(cat, handlersFor(rec))
	require.NoError(t, err)

	owner, err := s.CreateIdentity(context.Background(), ir.Identity{Username: "pau", Email: "pau@example.com"})
	require.NoError(t, err)

	eng := New(s, cat, reg,
		WithClock(testutil.NewStepClock(testutil.DefaultEpoch, 0)),
		WithIDGenerator(testutil.NewSequentialIDs("evt")),
	)
	return &testEnv{store: s, engine: eng, recorder: rec, owner: owner}
}

func (e *testEnv) createTask(t *testing.T, trigger, reaction string, args ...string) ir.Task {
	t.Helper()
	task, err := e.store.CreateTask(context.Background(), ir.Task{
		OwnerID:      e.owner.ID,
		Trigger:      trigger,
		TriggerArgs:  args,
		ReactionName: reaction,
		Service:      "github",
	})
	require.NoError(t, err)
	return task
}

func (e *testEnv) ownerIDString() string {
	return strconv.FormatInt(e.owner.ID, 10)
}

func (e *testEnv) lastEvents(t *testing.T) []ir.LastExecutedEvent {
	t.Helper()
	events, err := e.store.ListLastEvents(context.Background())
	require.NoError(t, err)
	return events
}

func pushEvent() ir.InboundEvent {
	return ir.InboundEvent{
		TriggerName:   "push_event",
		Service:       "github",
		Params:        map[string]string{"repo": "area", "branch": "main"},
		ContextParams: map[string]string{"commit_msg": "Initial commit", "author": "pau"},
	}
}
