package adminapi

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/searchbridge/mcp-gateway/internal/keypool"
	"github.com/searchbridge/mcp-gateway/internal/postgres"
)

const exportSchemaVersion = 1

type exportedKey struct {
	Label  string `json:"label"`
	Secret string `json:"secret"`
}

type exportDocument struct {
	SchemaVersion int           `json:"schemaVersion"`
	ExportedAt    time.Time     `json:"exportedAt"`
	Tavily        []exportedKey `json:"tavily"`
	Brave         []exportedKey `json:"brave"`
}

func (s *Server) exportProvider(r *http.Request, provider keypool.Provider) ([]exportedKey, error) {
	keys, err := s.Keys.ListCandidates(r.Context(), provider)
	if err != nil {
		return nil, err
	}
	out := make([]exportedKey, 0, len(keys))
	for _, k := range keys {
		secret, err := s.Vault.Decrypt(k.Ciphertext)
		if err != nil {
			return nil, err
		}
		out = append(out, exportedKey{Label: k.Label, Secret: string(secret)})
	}
	return out, nil
}

func (s *Server) handleExportKeys(w http.ResponseWriter, r *http.Request) {
	tavilyKeys, err := s.exportProvider(r, keypool.ProviderTavily)
	if err != nil {
		RespondError(w, http.StatusInternalServerError, "export_failed", err.Error())
		return
	}
	braveKeys, err := s.exportProvider(r, keypool.ProviderBrave)
	if err != nil {
		RespondError(w, http.StatusInternalServerError, "export_failed", err.Error())
		return
	}

	s.Audit.Record(r.Context(), auditEntry(r, "export_keys", "upstream_key", "", map[string]int{"tavily": len(tavilyKeys), "brave": len(braveKeys)}))

	Respond(w, http.StatusOK, exportDocument{
		SchemaVersion: exportSchemaVersion,
		ExportedAt:    time.Now(),
		Tavily:        tavilyKeys,
		Brave:         braveKeys,
	})
}

type importResultEntry struct {
	Label        string `json:"label"`
	FinalLabel   string `json:"finalLabel"`
	LabelRenamed bool   `json:"labelRenamed"`
}

func (s *Server) importProvider(r *http.Request, provider keypool.Provider, entries []exportedKey) ([]importResultEntry, error) {
	pool := s.poolFor(provider)

	keys := make([]*keypool.Key, 0, len(entries))
	for _, e := range entries {
		ciphertext, err := s.Vault.Encrypt([]byte(e.Secret))
		if err != nil {
			return nil, err
		}
		keys = append(keys, &keypool.Key{
			ID:         uuid.NewString(),
			Provider:   provider,
			Label:      e.Label,
			Ciphertext: ciphertext,
			Masked:     maskSecret(e.Secret),
			Status:     keypool.StatusActive,
			CreatedAt:  time.Now(),
		})
	}

	results, err := pool.ImportKeys(r.Context(), keys, postgres.IsLabelCollision)
	if err != nil {
		return nil, err
	}

	out := make([]importResultEntry, 0, len(results))
	for _, res := range results {
		out = append(out, importResultEntry{
			Label:        res.Key.Label,
			FinalLabel:   res.FinalLabel,
			LabelRenamed: res.LabelRenamed,
		})
	}
	return out, nil
}

func (s *Server) handleImportKeys(w http.ResponseWriter, r *http.Request) {
	var doc exportDocument
	if !decodeAndValidate(w, r, &doc) {
		return
	}

	tavilyResults, err := s.importProvider(r, keypool.ProviderTavily, doc.Tavily)
	if err != nil {
		RespondError(w, http.StatusInternalServerError, "import_failed", err.Error())
		return
	}
	braveResults, err := s.importProvider(r, keypool.ProviderBrave, doc.Brave)
	if err != nil {
		RespondError(w, http.StatusInternalServerError, "import_failed", err.Error())
		return
	}

	s.Audit.Record(r.Context(), auditEntry(r, "import_keys", "upstream_key", "", map[string]int{"tavily": len(tavilyResults), "brave": len(braveResults)}))

	Respond(w, http.StatusOK, map[string][]importResultEntry{
		"tavily": tavilyResults,
		"brave":  braveResults,
	})
}
