package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/area/internal/catalog"
	"github.com/roach88/area/internal/engine"
	"github.com/roach88/area/internal/ir"
	"github.com/roach88/area/internal/metrics"
	"github.com/roach88/area/internal/store"
	"github.com/roach88/area/internal/tasks"
	"github.com/roach88/area/internal/testutil"
)

// calls records the tasks every reaction was invoked for.
type calls struct {
	mu  sync.Mutex
	ids []int64
}

func (c *calls) React(_ context.Context, inv engine.Invocation) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ids = append(c.ids, inv.Task.ID)
	return nil
}

func (c *calls) taskIDs() []int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]int64(nil), c.ids...)
}

type testEnv struct {
	store   *store.Store
	server  *Server
	calls   *calls
	owner   ir.Identity
	metrics *metrics.Metrics
}

func newTestEnv(t *testing.T, opts ...Option) *testEnv {
	t.Helper()
	s, err := store.Open(t.TempDir() + "/test.db")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	cat := catalog.MustDefault()
	rec := &calls{}
	handlers := make(map[string]engine.Reaction)
	for _, ref := range cat.Reactions() {
		handlers[ref.Name] = rec
	}
	reg, err := engine.RegistryFromCatalog(cat, handlers)
	require.NoError(t, err)

	m := metrics.New()
	eng := engine.New(s, cat, reg,
		engine.WithClock(testutil.NewStepClock(testutil.DefaultEpoch, 0)),
		engine.WithIDGenerator(testutil.NewSequentialIDs("evt")),
		engine.WithMetrics(m),
	)

	owner, err := s.CreateIdentity(context.Background(), ir.Identity{Username: "pau", Email: "pau@example.com"})
	require.NoError(t, err)

	srv := New(eng, s, tasks.New(s, cat, nil), append([]Option{WithMetrics(m)}, opts...)...)
	return &testEnv{store: s, server: srv, calls: rec, owner: owner, metrics: m}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(b))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rr, req)
	return rr
}

func (e *testEnv) createPushTask(t *testing.T) ir.Task {
	t.Helper()
	task, err := e.store.CreateTask(context.Background(), ir.Task{
		OwnerID:      e.owner.ID,
		Trigger:      "push_event",
		TriggerArgs:  []string{"pau", "area", "main"},
		ReactionName: "send_email",
		ReactionArgs: []string{},
		Service:      "github",
	})
	require.NoError(t, err)
	return task
}

func decodeBody[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}

func pushPayload() map[string]any {
	return map[string]any{
		"event_name": "push_event",
		"service":    "github",
		"params":     map[string]string{"owner": "pau", "repo": "area", "branch": "main"},
		"context_params": map[string]string{
			"commit_msg": "Initial commit",
		},
	}
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodGet, "/healthz", nil)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"healthy","version":"`+ir.EngineVersion+`"}`, rr.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.createPushTask(t)
	env.do(t, http.MethodPost, "/api/v1/events", pushPayload())

	rr := env.do(t, http.MethodGet, "/metrics", nil)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "area_events_total")
}

func TestPostEvent_DispatchesMatchingTask(t *testing.T) {
	env := newTestEnv(t)
	task := env.createPushTask(t)

	rr := env.do(t, http.MethodPost, "/api/v1/events", pushPayload())

	require.Equal(t, http.StatusAccepted, rr.Code, rr.Body.String())
	assert.Equal(t, "send_email", decodeBody[string](t, rr))
	assert.Equal(t, "evt-1", rr.Header().Get("X-Area-Event-Id"))
	assert.Equal(t, []int64{task.ID}, env.calls.taskIDs())
}

func TestPostEvent_NoMatchAnswersEmptyReaction(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodPost, "/api/v1/events", pushPayload())

	require.Equal(t, http.StatusAccepted, rr.Code)
	assert.Equal(t, "", decodeBody[string](t, rr))
	assert.Empty(t, env.calls.taskIDs())
}

func TestPostEvent_DuplicateMessageRunsOnce(t *testing.T) {
	env := newTestEnv(t)
	env.createPushTask(t)
	payload := pushPayload()
	payload["processed_message_info"] = map[string]string{
		"message_id": "msg-1",
		"user_id":    strconv.FormatInt(env.owner.ID, 10),
	}

	first := env.do(t, http.MethodPost, "/api/v1/events", payload)
	second := env.do(t, http.MethodPost, "/api/v1/events", payload)

	assert.Equal(t, "send_email", decodeBody[string](t, first))
	assert.Equal(t, http.StatusAccepted, second.Code)
	assert.Equal(t, "", decodeBody[string](t, second))
	assert.Len(t, env.calls.taskIDs(), 1)
}

func TestPostEvent_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		body   any
		status int
		code   string
	}{
		{
			name:   "not json",
			body:   "{",
			status: http.StatusUnprocessableEntity,
			code:   codeInvalidPayload,
		},
		{
			name:   "missing params",
			body:   map[string]any{"event_name": "push_event", "service": "github"},
			status: http.StatusUnprocessableEntity,
			code:   codeInvalidPayload,
		},
		{
			name:   "empty service",
			body:   map[string]any{"event_name": "push_event", "service": "", "params": map[string]string{}},
			status: http.StatusUnprocessableEntity,
			code:   codeInvalidPayload,
		},
		{
			name: "partial dedup block",
			body: map[string]any{
				"event_name":             "email_received",
				"service":                "google",
				"params":                 map[string]string{},
				"processed_message_info": map[string]string{"message_id": "m1"},
			},
			status: http.StatusUnprocessableEntity,
			code:   codeInvalidEvent,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)

			rr := env.do(t, http.MethodPost, "/api/v1/events", tt.body)

			assert.Equal(t, tt.status, rr.Code, rr.Body.String())
			assert.Equal(t, tt.code, decodeBody[errorBody](t, rr).Error)
		})
	}
}

func TestPostEvent_RateLimited(t *testing.T) {
	env := newTestEnv(t, WithRateLimit(0.001, 1))

	first := env.do(t, http.MethodPost, "/api/v1/events", pushPayload())
	second := env.do(t, http.MethodPost, "/api/v1/events", pushPayload())

	assert.Equal(t, http.StatusAccepted, first.Code)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Equal(t, "1", second.Header().Get("Retry-After"))
	assert.Equal(t, codeRateLimited, decodeBody[errorBody](t, second).Error)
}

func TestPostEvent_BodyTooLarge(t *testing.T) {
	env := newTestEnv(t, WithMaxBodyBytes(16))

	rr := env.do(t, http.MethodPost, "/api/v1/events", pushPayload())

	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	assert.Contains(t, decodeBody[errorBody](t, rr).Detail, "body exceeds 16 bytes")
}

func TestAuditEndpoints(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodGet, "/api/v1/events", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "No events found", decodeBody[errorBody](t, rr).Detail)

	rr = env.do(t, http.MethodGet, "/api/v1/events/list_messages", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "No messages found", decodeBody[errorBody](t, rr).Detail)

	env.createPushTask(t)
	payload := pushPayload()
	payload["processed_message_info"] = map[string]string{
		"message_id": "msg-1",
		"user_id":    strconv.FormatInt(env.owner.ID, 10),
	}
	env.do(t, http.MethodPost, "/api/v1/events", payload)

	rr = env.do(t, http.MethodGet, "/api/v1/events", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	events := decodeBody[[]ir.LastExecutedEvent](t, rr)
	require.Len(t, events, 1)
	assert.Equal(t, "push_event", events[0].Trigger)
	assert.Equal(t, "send_email", events[0].ReactionName)

	rr = env.do(t, http.MethodGet, "/api/v1/events/last", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "send_email", decodeBody[ir.LastExecutedEvent](t, rr).ReactionName)

	rr = env.do(t, http.MethodGet, "/api/v1/events/list_messages", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	records := decodeBody[[]ir.DedupRecord](t, rr)
	require.Len(t, records, 1)
	assert.Equal(t, "msg-1", records[0].MessageID)
}

func TestLastEvent_NotFoundWhenEmpty(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodGet, "/api/v1/events/last", nil)

	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestUnknownRoute(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodGet, "/api/v1/nope", nil)

	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, codeNotFound, decodeBody[errorBody](t, rr).Error)
}

func TestMethodNotAllowed(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		method string
		path   string
	}{
		{http.MethodDelete, "/api/v1/events"},
		{http.MethodPost, "/api/v1/events/last"},
		{http.MethodDelete, "/api/v1/tasks"},
		{http.MethodPost, "/api/v1/tasks/services"},
		{http.MethodPatch, "/api/v1/users"},
		{http.MethodPost, "/api/v1/users/1"},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			rr := env.do(t, tt.method, tt.path, nil)

			assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
			assert.Equal(t, codeBadRequest, decodeBody[errorBody](t, rr).Error)
		})
	}
}
