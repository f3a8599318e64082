package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/roach88/area/internal/ir"
)

// handleEvent runs the pipeline for one inbound event and answers 202 with
// the name of the last reaction attempted, or "" when nothing ran.
func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	body, err := s.readBody(w, r)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	if err := validatePayload(schemaEvent, body); err != nil {
		writeErr(w, r, err)
		return
	}

	var ev ir.InboundEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, err.Error())
		return
	}
	s.dispatch(w, r, ev)
}

// dispatch hands ev to the engine and writes the result.
func (s *Server) dispatch(w http.ResponseWriter, r *http.Request, ev ir.InboundEvent) {
	res, err := s.engine.HandleEvent(r.Context(), ev)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	if res.Duplicate {
		slog.Debug("duplicate event acknowledged", "event_id", res.EventID, "trigger", ev.TriggerName)
	}
	w.Header().Set("X-Area-Event-Id", res.EventID)
	writeJSON(w, http.StatusAccepted, res.LastReaction)
}

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	events, err := s.store.ListLastEvents(r.Context())
	if err != nil {
		writeErr(w, r, err)
		return
	}
	if len(events) == 0 {
		writeError(w, http.StatusNotFound, codeNotFound, "No events found")
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func (s *Server) handleLastEvent(w http.ResponseWriter, r *http.Request) {
	ev, err := s.store.LatestLastEvent(r.Context())
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	records, err := s.store.ListProcessedMessages(r.Context())
	if err != nil {
		writeErr(w, r, err)
		return
	}
	if len(records) == 0 {
		writeError(w, http.StatusNotFound, codeNotFound, "No messages found")
		return
	}
	writeJSON(w, http.StatusOK, records)
}
