package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveEvent(t *testing.T) {
	m := New()

	m.ObserveEvent("push_event", OutcomeDispatched)
	m.ObserveEvent("push_event", OutcomeDispatched)
	m.ObserveEvent("push_event", OutcomeDuplicate)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.events.WithLabelValues("push_event", OutcomeDispatched)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.events.WithLabelValues("push_event", OutcomeDuplicate)))
}

func TestObserveReaction(t *testing.T) {
	m := New()

	m.ObserveReaction("send_email", nil, 10*time.Millisecond)
	m.ObserveReaction("send_email", errors.New("smtp down"), time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.reactions.WithLabelValues("send_email", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.reactions.WithLabelValues("send_email", "error")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.ObserveEvent("push_event", OutcomeDispatched)
		m.ObserveReaction("send_email", nil, time.Second)
		m.ObserveRefresh("google", nil)
		m.ObservePoll("github", nil)
		m.ObserveRateLimited()
	})
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.ObserveRefresh("google", errors.New("invalid_grant"))
	m.ObservePoll("github", nil)
	m.ObserveRateLimited()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `area_token_refreshes_total{provider="google",result="error"} 1`)
	assert.Contains(t, body, `area_poll_cycles_total{result="ok",service="github"} 1`)
	assert.Contains(t, body, `area_http_rate_limited_total 1`)
}
