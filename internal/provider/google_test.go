package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/gmail/v1"
)

func TestGoogle_InsertCalendarEvent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/calendar/v3/calendars/primary/events", r.URL.Path)
		assert.Equal(t, "Bearer ya29", r.Header.Get("Authorization"))

		var ev calendar.Event
		require.NoError(t, json.NewDecoder(r.Body).Decode(&ev))
		assert.Equal(t, "Team Meeting", ev.Summary)
		assert.Equal(t, "2024-10-10T10:00:00-07:00", ev.Start.DateTime)
		assert.Len(t, ev.Attendees, 2)

		_, _ = w.Write([]byte(`{"id":"ev1","htmlLink":"https://calendar.google.com/event?eid=ev1"}`))
	}))
	defer srv.Close()

	g := NewGoogle(srv.URL+"/calendar/v3", srv.URL, nil)
	created, err := g.InsertCalendarEvent(context.Background(), "ya29", &calendar.Event{
		Summary:   "Team Meeting",
		Start:     &calendar.EventDateTime{DateTime: "2024-10-10T10:00:00-07:00"},
		End:       &calendar.EventDateTime{DateTime: "2024-10-10T11:00:00-07:00"},
		Attendees: []*calendar.EventAttendee{{Email: "a@example.com"}, {Email: "b@example.com"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "ev1", created.Id)
	assert.Equal(t, "https://calendar.google.com/event?eid=ev1", created.HtmlLink)
}

func TestGoogle_WatchAndProfile(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /gmail/v1/users/me/watch", func(w http.ResponseWriter, r *http.Request) {
		var req gmail.WatchRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "projects/area/topics/mail", req.TopicName)
		assert.Equal(t, []string{"INBOX"}, req.LabelIds)
		_, _ = w.Write([]byte(`{"historyId":"99","expiration":"1730000000000"}`))
	})
	mux.HandleFunc("GET /gmail/v1/users/me/profile", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer ya29", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"emailAddress":"pau@example.com"}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	g := NewGoogle("", srv.URL, nil)
	resp, err := g.Watch(context.Background(), "ya29", &gmail.WatchRequest{
		TopicName: "projects/area/topics/mail", LabelIds: []string{"INBOX"}, LabelFilterBehavior: "include",
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(99), resp.HistoryId)
	assert.Equal(t, int64(1730000000000), resp.Expiration)

	p, err := g.Profile(context.Background(), "ya29")
	require.NoError(t, err)
	assert.Equal(t, "pau@example.com", p.EmailAddress)
}

func TestGoogle_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"code":401,"message":"Invalid Credentials"}}`))
	}))
	defer srv.Close()

	_, err := NewGoogle("", srv.URL, nil).Profile(context.Background(), "expired")
	require.Error(t, err)
	assert.True(t, IsStatus(err, http.StatusUnauthorized))
}
