package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/roach88/area/internal/ir"
	"github.com/roach88/area/internal/tasks"
)

// decode validates body against schema and unmarshals it into v.
func decode(schema string, body []byte, v any) error {
	if err := validatePayload(schema, body); err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return &ValidationError{Problems: []string{err.Error()}}
	}
	return nil
}

func (s *Server) handleTasksForService(w http.ResponseWriter, r *http.Request) {
	service := r.URL.Query().Get("service")
	if service == "" {
		writeError(w, http.StatusUnprocessableEntity, codeInvalidPayload, "service: query parameter is required")
		return
	}
	items, err := s.tasks.ListForService(r.Context(), service)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	body, err := s.readBody(w, r)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	var req tasks.CreateRequest
	if err := decode(schemaTaskCreate, body, &req); err != nil {
		writeErr(w, r, err)
		return
	}

	task, err := s.tasks.Create(r.Context(), req)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"message": "Task created successfully",
		"task":    task,
	})
}

func (s *Server) handleTasksForOwner(w http.ResponseWriter, r *http.Request) {
	ownerID, err := pathID(r, "user_id")
	if err != nil {
		writeErr(w, r, err)
		return
	}
	list, err := s.tasks.ListForOwner(r.Context(), ownerID)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	if list == nil {
		list = []ir.Task{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "task_id")
	if err != nil {
		writeErr(w, r, err)
		return
	}
	task, err := s.tasks.Get(r.Context(), id)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) handleReplaceTask(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "task_id")
	if err != nil {
		writeErr(w, r, err)
		return
	}
	body, err := s.readBody(w, r)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	var req tasks.ReplaceRequest
	if err := decode(schemaTaskReplace, body, &req); err != nil {
		writeErr(w, r, err)
		return
	}

	task, err := s.tasks.Replace(r.Context(), id, req)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) handlePatchTask(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "task_id")
	if err != nil {
		writeErr(w, r, err)
		return
	}
	body, err := s.readBody(w, r)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	var req tasks.PatchRequest
	if err := decode(schemaTaskPatch, body, &req); err != nil {
		writeErr(w, r, err)
		return
	}

	task, err := s.tasks.Patch(r.Context(), id, req)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "task_id")
	if err != nil {
		writeErr(w, r, err)
		return
	}
	if err := s.tasks.Delete(r.Context(), id); err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Task deleted successfully"})
}

func (s *Server) handleServices(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, nonNilStrings(s.catalog.Services()))
}

func (s *Server) handleServicesWithReactions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, nonNilStrings(s.catalog.ServicesWithReactions()))
}

func (s *Server) handleServicesWithTriggers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, nonNilStrings(s.catalog.ServicesWithTriggers()))
}

func (s *Server) handleAllReactions(w http.ResponseWriter, r *http.Request) {
	refs := s.catalog.Reactions()
	if refs == nil {
		refs = []ir.ReactionRef{}
	}
	writeJSON(w, http.StatusOK, refs)
}

func (s *Server) handleReactionsOf(w http.ResponseWriter, r *http.Request) {
	names, err := s.catalog.ReactionsOf(mux.Vars(r)["service"])
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNilStrings(names))
}

func (s *Server) handleTriggersOf(w http.ResponseWriter, r *http.Request) {
	names, err := s.catalog.TriggersOf(mux.Vars(r)["service"])
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNilStrings(names))
}

func (s *Server) handleTriggerParams(w http.ResponseWriter, r *http.Request) {
	fields, err := s.tasks.TriggerParams(mux.Vars(r)["event"])
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, fields)
}

func (s *Server) handleReactionParams(w http.ResponseWriter, r *http.Request) {
	fields, err := s.tasks.ReactionParams(mux.Vars(r)["reaction"])
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, fields)
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
