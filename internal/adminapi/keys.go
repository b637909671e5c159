package adminapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/searchbridge/mcp-gateway/internal/keypool"
	"github.com/searchbridge/mcp-gateway/internal/postgres"
)

// keyResponse is the admin-facing view of a key: never the ciphertext.
type keyResponse struct {
	ID            string     `json:"id"`
	Provider      string     `json:"provider"`
	Label         string     `json:"label"`
	Masked        string     `json:"masked"`
	Status        string     `json:"status"`
	CooldownUntil *time.Time `json:"cooldownUntil,omitempty"`
	LastUsedAt    *time.Time `json:"lastUsedAt,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
	Remaining     *int64     `json:"remaining,omitempty"`
}

func toKeyResponse(k *keypool.Key) keyResponse {
	return keyResponse{
		ID:            k.ID,
		Provider:      string(k.Provider),
		Label:         k.Label,
		Masked:        k.Masked,
		Status:        string(k.Status),
		CooldownUntil: k.CooldownUntil,
		LastUsedAt:    k.LastUsedAt,
		CreatedAt:     k.CreatedAt,
		UpdatedAt:     k.UpdatedAt,
		Remaining:     k.Credits.ComputeRemaining(),
	}
}

// maskSecret returns a display-safe fragment: the first 4 and last 4
// characters, with the middle redacted.
func maskSecret(secret string) string {
	if len(secret) <= 8 {
		return "****"
	}
	return secret[:4] + "..." + secret[len(secret)-4:]
}

func (s *Server) poolFor(provider keypool.Provider) *keypool.Pool {
	if provider == keypool.ProviderBrave {
		return s.BravePool
	}
	return s.TavilyPool
}

func (s *Server) handleListKeys(provider keypool.Provider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		keys, err := s.Keys.ListCandidates(r.Context(), provider)
		if err != nil {
			RespondError(w, http.StatusInternalServerError, "list_failed", err.Error())
			return
		}
		out := make([]keyResponse, 0, len(keys))
		for _, k := range keys {
			out = append(out, toKeyResponse(k))
		}
		Respond(w, http.StatusOK, out)
	}
}

type createKeyRequest struct {
	Label  string `json:"label" validate:"required"`
	Secret string `json:"secret" validate:"required"`
}

func (s *Server) handleCreateKey(provider keypool.Provider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createKeyRequest
		if !decodeAndValidate(w, r, &req) {
			return
		}

		ciphertext, err := s.Vault.Encrypt([]byte(req.Secret))
		if err != nil {
			RespondError(w, http.StatusInternalServerError, "encrypt_failed", err.Error())
			return
		}

		key := &keypool.Key{
			ID:         uuid.NewString(),
			Provider:   provider,
			Label:      req.Label,
			Ciphertext: ciphertext,
			Masked:     maskSecret(req.Secret),
			Status:     keypool.StatusActive,
			CreatedAt:  time.Now(),
		}
		if err := s.Keys.InsertKey(r.Context(), key); err != nil {
			if postgres.IsLabelCollision(err) {
				RespondError(w, http.StatusConflict, "label_taken", "a key with this label already exists")
				return
			}
			RespondError(w, http.StatusInternalServerError, "insert_failed", err.Error())
			return
		}

		s.Audit.Record(r.Context(), auditEntry(r, "create_key", string(provider), key.ID, map[string]string{"label": key.Label}))
		Respond(w, http.StatusCreated, toKeyResponse(key))
	}
}

type patchKeyRequest struct {
	Status *string `json:"status" validate:"omitempty,oneof=active disabled"`
}

func (s *Server) handlePatchKey(provider keypool.Provider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		var req patchKeyRequest
		if !decodeAndValidate(w, r, &req) {
			return
		}
		if req.Status == nil {
			RespondError(w, http.StatusBadRequest, "bad_request", "no fields to update")
			return
		}

		if err := s.Keys.UpdateStatus(r.Context(), id, keypool.Status(*req.Status), nil); err != nil {
			RespondError(w, http.StatusInternalServerError, "update_failed", err.Error())
			return
		}
		s.Audit.Record(r.Context(), auditEntry(r, "update_key_status", string(provider), id, map[string]string{"status": *req.Status}))

		key, err := s.Keys.GetByID(r.Context(), id)
		if err != nil || key == nil {
			RespondError(w, http.StatusNotFound, "not_found", "key not found")
			return
		}
		Respond(w, http.StatusOK, toKeyResponse(key))
	}
}

func (s *Server) handleDeleteKey(provider keypool.Provider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if err := s.Keys.DeleteKey(r.Context(), id); err != nil {
			RespondError(w, http.StatusInternalServerError, "delete_failed", err.Error())
			return
		}
		s.Audit.Record(r.Context(), auditEntry(r, "delete_key", string(provider), id, nil))
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) handleRevealKey(provider keypool.Provider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if limit := s.RevealLimiter.CheckNow(clientIP(r)); !limit.OK {
			w.Header().Set("Retry-After", retryAfterSeconds(limit.RetryAfterMs))
			RespondError(w, http.StatusTooManyRequests, "rate_limited_local", "too many reveal requests")
			return
		}

		id := chi.URLParam(r, "id")
		key, err := s.Keys.GetByID(r.Context(), id)
		if err != nil {
			RespondError(w, http.StatusInternalServerError, "lookup_failed", err.Error())
			return
		}
		if key == nil || key.Provider != provider {
			RespondError(w, http.StatusNotFound, "not_found", "key not found")
			return
		}

		plaintext, err := s.Vault.Decrypt(key.Ciphertext)
		if err != nil {
			RespondError(w, http.StatusInternalServerError, "decrypt_failed", err.Error())
			return
		}

		s.Audit.Record(r.Context(), auditEntry(r, "reveal_key", string(provider), id, nil))
		Respond(w, http.StatusOK, map[string]string{"secret": string(plaintext)})
	}
}

func (s *Server) handleRefreshCredits(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.refreshOneKeyCredits(r.Context(), id); err != nil {
		if err == errLeaseHeld {
			RespondError(w, http.StatusConflict, "lease_held", "another refresh is already in progress")
			return
		}
		RespondError(w, http.StatusBadGateway, "refresh_failed", err.Error())
		return
	}

	key, err := s.Keys.GetByID(r.Context(), id)
	if err != nil || key == nil {
		RespondError(w, http.StatusNotFound, "not_found", "key not found")
		return
	}
	Respond(w, http.StatusOK, toKeyResponse(key))
}

func (s *Server) handleSyncCredits(w http.ResponseWriter, r *http.Request) {
	keys, err := s.Keys.ListCandidates(r.Context(), keypool.ProviderTavily)
	if err != nil {
		RespondError(w, http.StatusInternalServerError, "list_failed", err.Error())
		return
	}

	type result struct {
		ID     string `json:"id"`
		Status string `json:"status"`
		Error  string `json:"error,omitempty"`
	}
	results := make([]result, 0, len(keys))
	for _, k := range keys {
		if k.Status == keypool.StatusInvalid {
			continue
		}
		if err := s.refreshOneKeyCredits(r.Context(), k.ID); err != nil {
			results = append(results, result{ID: k.ID, Status: "error", Error: err.Error()})
			continue
		}
		results = append(results, result{ID: k.ID, Status: "ok"})
	}

	s.Audit.Record(r.Context(), auditEntry(r, "sync_credits", "tavily", "", map[string]int{"count": len(results)}))
	Respond(w, http.StatusOK, results)
}

func retryAfterSeconds(ms int64) string {
	secs := ms / 1000
	if ms%1000 != 0 {
		secs++
	}
	if secs < 1 {
		secs = 1
	}
	return strconv.FormatInt(secs, 10)
}
