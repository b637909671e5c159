package adminapi

import (
	"net/http"

	"github.com/searchbridge/mcp-gateway/internal/settingscache"
)

type serverInfoResponse struct {
	SelectionStrategy string `json:"selectionStrategy"`
	SearchSourceMode  string `json:"searchSourceMode"`
	ResearchEnabled   bool   `json:"researchEnabled"`
}

func (s *Server) handleGetServerInfo(w http.ResponseWriter, r *http.Request) {
	strategy, err := s.Settings.Get(r.Context(), settingscache.KeyTavilyKeySelectionStrategy)
	if err != nil {
		RespondError(w, http.StatusInternalServerError, "settings_unavailable", err.Error())
		return
	}
	mode, err := s.Settings.Get(r.Context(), settingscache.KeySearchSourceMode)
	if err != nil {
		RespondError(w, http.StatusInternalServerError, "settings_unavailable", err.Error())
		return
	}
	researchEnabled, err := s.Settings.Get(r.Context(), settingscache.KeyResearchEnabled)
	if err != nil {
		RespondError(w, http.StatusInternalServerError, "settings_unavailable", err.Error())
		return
	}

	Respond(w, http.StatusOK, serverInfoResponse{
		SelectionStrategy: strategy,
		SearchSourceMode:  mode,
		ResearchEnabled:   researchEnabled == "true",
	})
}

type patchServerInfoRequest struct {
	SelectionStrategy *string `json:"selectionStrategy" validate:"omitempty,oneof=round_robin random"`
	SearchSourceMode  *string `json:"searchSourceMode" validate:"omitempty,oneof=tavily_only brave_only combined brave_prefer_tavily_fallback"`
	ResearchEnabled   *bool   `json:"researchEnabled"`
}

func (s *Server) handlePatchServerInfo(w http.ResponseWriter, r *http.Request) {
	var req patchServerInfoRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	ctx := r.Context()
	if req.SelectionStrategy != nil {
		if err := s.Settings.Set(ctx, settingscache.KeyTavilyKeySelectionStrategy, *req.SelectionStrategy); err != nil {
			RespondError(w, http.StatusInternalServerError, "settings_write_failed", err.Error())
			return
		}
		s.Audit.Record(ctx, auditEntry(r, "update_setting", "setting", string(settingscache.KeyTavilyKeySelectionStrategy), *req.SelectionStrategy))
	}
	if req.SearchSourceMode != nil {
		if err := s.Settings.Set(ctx, settingscache.KeySearchSourceMode, *req.SearchSourceMode); err != nil {
			RespondError(w, http.StatusInternalServerError, "settings_write_failed", err.Error())
			return
		}
		s.Audit.Record(ctx, auditEntry(r, "update_setting", "setting", string(settingscache.KeySearchSourceMode), *req.SearchSourceMode))
	}
	if req.ResearchEnabled != nil {
		value := "false"
		if *req.ResearchEnabled {
			value = "true"
		}
		if err := s.Settings.Set(ctx, settingscache.KeyResearchEnabled, value); err != nil {
			RespondError(w, http.StatusInternalServerError, "settings_write_failed", err.Error())
			return
		}
		s.Audit.Record(ctx, auditEntry(r, "update_setting", "setting", string(settingscache.KeyResearchEnabled), value))
	}

	s.handleGetServerInfo(w, r)
}
