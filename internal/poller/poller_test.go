package poller

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/area/internal/ir"
	"github.com/roach88/area/internal/metrics"
	"github.com/roach88/area/internal/tasks"
)

// fakeSource serves canned listings, failing the first failures calls.
type fakeSource struct {
	mu       sync.Mutex
	items    []tasks.ServiceTask
	failures int
	calls    int
	services []string
}

func (s *fakeSource) ListForService(_ context.Context, service string) ([]tasks.ServiceTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.services = append(s.services, service)
	if s.calls <= s.failures {
		return nil, errors.New("connection refused")
	}
	return s.items, nil
}

func (s *fakeSource) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// fakeWorker records handled task ids and the context error each Handle
// call saw, and fails the ids in fail. onHandle, when set, runs first.
type fakeWorker struct {
	mu       sync.Mutex
	handled  []int64
	ctxErrs  []error
	fail     map[int64]error
	onHandle func(task tasks.ServiceTask)
}

func (w *fakeWorker) Service() string { return "github" }

func (w *fakeWorker) Handle(ctx context.Context, task tasks.ServiceTask) error {
	if w.onHandle != nil {
		w.onHandle(task)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handled = append(w.handled, task.ID)
	w.ctxErrs = append(w.ctxErrs, ctx.Err())
	return w.fail[task.ID]
}

func (w *fakeWorker) handledIDs() []int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]int64(nil), w.handled...)
}

func serviceTask(id int64, trigger string) tasks.ServiceTask {
	return tasks.ServiceTask{Task: ir.Task{
		ID:            id,
		OwnerID:       1,
		Trigger:       trigger,
		TriggerArgs:   []string{"octocat", "hello", "main"},
		Service:       "github",
		RequiresOAuth: true,
		OAuthToken:    "gho_abc",
	}}
}

func TestCycle_HandlesEveryUsableTask(t *testing.T) {
	failing := serviceTask(2, "push_event")
	withError := serviceTask(3, "push_event")
	withError.Error = "user does not have a github token"
	noToken := serviceTask(4, "push_event")
	noToken.OAuthToken = ""
	public := serviceTask(5, "push_event")
	public.RequiresOAuth = false
	public.OAuthToken = ""

	src := &fakeSource{items: []tasks.ServiceTask{
		serviceTask(1, "push_event"), failing, withError, noToken, public,
	}}
	w := &fakeWorker{fail: map[int64]error{2: errors.New("boom")}}

	err := New(src, w).Cycle(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 5}, w.handledIDs(), "a failing task does not stop the cycle")
	assert.Equal(t, []string{"github"}, src.services)
}

func TestCycle_ReturnsFetchError(t *testing.T) {
	m := metrics.New()
	src := &fakeSource{failures: 1}
	w := &fakeWorker{}

	err := New(src, w, WithMetrics(m)).Cycle(context.Background())

	require.Error(t, err)
	assert.Empty(t, w.handledIDs())
	n, err := testutil.GatherAndCount(m.Registry(), "area_poll_cycles_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRun_RetriesAfterFailureUntilCancelled(t *testing.T) {
	src := &fakeSource{failures: 2, items: []tasks.ServiceTask{serviceTask(1, "push_event")}}
	w := &fakeWorker{}
	p := New(src, w, WithInterval(time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	require.Eventually(t, func() bool { return len(w.handledIDs()) >= 2 }, 2*time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
	assert.GreaterOrEqual(t, src.callCount(), 4, "two failed fetches, then at least two good ones")
}

func TestRun_ReturnsImmediatelyWhenCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := New(&fakeSource{}, &fakeWorker{}).Run(ctx)

	assert.NoError(t, err)
}

func TestWithInterval_IgnoresNonPositive(t *testing.T) {
	p := New(&fakeSource{}, &fakeWorker{}, WithInterval(0))
	assert.Equal(t, DefaultInterval, p.interval)
}

func TestRun_ShutdownLetsCurrentCycleFinish(t *testing.T) {
	src := &fakeSource{items: []tasks.ServiceTask{
		serviceTask(1, "push_event"), serviceTask(2, "push_event"), serviceTask(3, "push_event"),
	}}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w := &fakeWorker{onHandle: func(task tasks.ServiceTask) {
		if task.ID == 1 {
			cancel()
		}
	}}

	err := New(src, w, WithInterval(time.Hour)).Run(ctx)

	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3}, w.handledIDs())
	assert.Equal(t, []error{nil, nil, nil}, w.ctxErrs, "workers run on a detached context")
	assert.Equal(t, 1, src.callCount(), "no new cycle starts after shutdown")
}
