package adminapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/searchbridge/mcp-gateway/internal/clienttoken"
)

type tokenResponse struct {
	ID           string     `json:"id"`
	Description  string     `json:"description,omitempty"`
	Prefix       string     `json:"prefix"`
	ExpiresAt    *time.Time `json:"expiresAt,omitempty"`
	RevokedAt    *time.Time `json:"revokedAt,omitempty"`
	AllowedTools []string   `json:"allowedTools,omitempty"`
	RateLimit    *int       `json:"rateLimit,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
}

func toTokenResponse(r *clienttoken.Record) tokenResponse {
	return tokenResponse{
		ID:           r.ID,
		Description:  r.Description,
		Prefix:       r.Prefix,
		ExpiresAt:    r.ExpiresAt,
		RevokedAt:    r.RevokedAt,
		AllowedTools: r.AllowedTools,
		RateLimit:    r.RateLimit,
		CreatedAt:    r.CreatedAt,
	}
}

func (s *Server) handleListTokens(w http.ResponseWriter, r *http.Request) {
	records, err := s.Tokens.List(r.Context())
	if err != nil {
		RespondError(w, http.StatusInternalServerError, "list_failed", err.Error())
		return
	}
	out := make([]tokenResponse, 0, len(records))
	for _, rec := range records {
		out = append(out, toTokenResponse(rec))
	}
	Respond(w, http.StatusOK, out)
}

type createTokenRequest struct {
	Description  string     `json:"description"`
	AllowedTools []string   `json:"allowedTools"`
	RateLimit    *int       `json:"rateLimit" validate:"omitempty,min=1"`
	ExpiresAt    *time.Time `json:"expiresAt"`
}

type createTokenResponse struct {
	Token string `json:"token"`
	tokenResponse
}

func (s *Server) handleCreateToken(w http.ResponseWriter, r *http.Request) {
	var req createTokenRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	tok, err := clienttoken.Generate()
	if err != nil {
		RespondError(w, http.StatusInternalServerError, "generate_failed", err.Error())
		return
	}

	record := &clienttoken.Record{
		ID:           uuid.NewString(),
		Description:  req.Description,
		Prefix:       tok.Prefix,
		SecretHash:   clienttoken.SecretHash(tok.Secret),
		ExpiresAt:    req.ExpiresAt,
		AllowedTools: req.AllowedTools,
		RateLimit:    req.RateLimit,
		CreatedAt:    time.Now(),
	}
	if err := s.Tokens.Insert(r.Context(), record); err != nil {
		RespondError(w, http.StatusInternalServerError, "insert_failed", err.Error())
		return
	}

	s.Audit.Record(r.Context(), auditEntry(r, "create_token", "client_token", record.ID, map[string]string{"prefix": record.Prefix}))
	Respond(w, http.StatusCreated, createTokenResponse{Token: tok.String(), tokenResponse: toTokenResponse(record)})
}

func (s *Server) handleRevokeToken(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.Tokens.Revoke(r.Context(), id, time.Now()); err != nil {
		RespondError(w, http.StatusInternalServerError, "revoke_failed", err.Error())
		return
	}
	s.Audit.Record(r.Context(), auditEntry(r, "revoke_token", "client_token", id, nil))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteToken(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.Tokens.Delete(r.Context(), id); err != nil {
		RespondError(w, http.StatusInternalServerError, "delete_failed", err.Error())
		return
	}
	s.Audit.Record(r.Context(), auditEntry(r, "delete_token", "client_token", id, nil))
	w.WriteHeader(http.StatusNoContent)
}
