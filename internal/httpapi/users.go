package httpapi

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/roach88/area/internal/ir"
)

func (s *Server) handleListIdentities(w http.ResponseWriter, r *http.Request) {
	ids, err := s.store.ListIdentities(r.Context())
	if err != nil {
		writeErr(w, r, err)
		return
	}
	if ids == nil {
		ids = []ir.Identity{}
	}
	writeJSON(w, http.StatusOK, ids)
}

func (s *Server) handleCreateIdentity(w http.ResponseWriter, r *http.Request) {
	body, err := s.readBody(w, r)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	var id ir.Identity
	if err := decode(schemaIdentity, body, &id); err != nil {
		writeErr(w, r, err)
		return
	}
	id.ID = 0

	created, err := s.store.CreateIdentity(r.Context(), id)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleGetIdentity(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "user_id")
	if err != nil {
		writeErr(w, r, err)
		return
	}
	identity, err := s.store.GetIdentity(r.Context(), id)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, identity)
}

// handleDeleteIdentity removes an identity together with its tasks, dedup
// records and tokens.
func (s *Server) handleDeleteIdentity(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "user_id")
	if err != nil {
		writeErr(w, r, err)
		return
	}
	if err := s.store.DeleteIdentity(r.Context(), id); err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "User deleted successfully"})
}

// tokenRequest is the body of PUT /users/{id}/tokens/{provider}.
type tokenRequest struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type"`
	Scope        string    `json:"scope"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// handlePutToken stores the provider credential an OAuth handshake produced.
func (s *Server) handlePutToken(w http.ResponseWriter, r *http.Request) {
	ownerID, err := pathID(r, "user_id")
	if err != nil {
		writeErr(w, r, err)
		return
	}
	provider := mux.Vars(r)["provider"]
	if provider != ir.ProviderGoogle && provider != ir.ProviderGitHub {
		writeError(w, http.StatusNotFound, codeNotFound, "unknown provider "+provider)
		return
	}
	if _, err := s.store.GetIdentity(r.Context(), ownerID); err != nil {
		writeErr(w, r, err)
		return
	}

	body, err := s.readBody(w, r)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	var req tokenRequest
	if err := decode(schemaToken, body, &req); err != nil {
		writeErr(w, r, err)
		return
	}

	tok := ir.OAuthToken{
		OwnerID:      ownerID,
		Provider:     provider,
		AccessToken:  req.AccessToken,
		RefreshToken: req.RefreshToken,
		TokenType:    req.TokenType,
		Scope:        req.Scope,
		ExpiresAt:    req.ExpiresAt.UTC(),
	}
	if err := s.store.PutToken(r.Context(), tok); err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user_id":    ownerID,
		"provider":   provider,
		"expires_at": tok.ExpiresAt,
	})
}
