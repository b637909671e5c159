package adminapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"testing"
)

func TestTokensCRUD(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	pool := getTestDB(t)
	defer pool.Close()

	srv := newTestServer(t, pool)
	router := srv.Routes()

	w := doRequest(t, router, http.MethodPost, "/admin/api/tokens", testAdminToken, createTokenRequest{
		Description:  "ci-bot",
		AllowedTools: []string{"tavily_search"},
		RateLimit:    ptr(60),
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("POST /admin/api/tokens = %d, want 201. Body: %s", w.Code, w.Body.String())
	}
	var created createTokenResponse
	if err := json.NewDecoder(w.Body).Decode(&created); err != nil {
		t.Fatalf("decode created token: %v", err)
	}
	if created.Token == "" {
		t.Fatal("created.Token is empty, want the bearer secret to be returned exactly once")
	}
	if created.Description != "ci-bot" {
		t.Fatalf("created.Description = %q, want ci-bot", created.Description)
	}

	w = doRequest(t, router, http.MethodGet, "/admin/api/tokens", testAdminToken, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /admin/api/tokens = %d, want 200", w.Code)
	}
	listBody := w.Body.String()
	var list []tokenResponse
	if err := json.NewDecoder(w.Body).Decode(&list); err != nil {
		t.Fatalf("decode token list: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("token list has %d entries, want 1", len(list))
	}
	if list[0].ID != created.ID {
		t.Fatalf("token list entry ID = %q, want %q", list[0].ID, created.ID)
	}
	if secret := created.Token[strings.Index(created.Token, ".")+1:]; strings.Contains(listBody, secret) {
		t.Fatal("token list exposes the bearer secret")
	}

	w = doRequest(t, router, http.MethodPost, fmt.Sprintf("/admin/api/tokens/%s/revoke", created.ID), testAdminToken, nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("POST revoke = %d, want 204", w.Code)
	}

	w = doRequest(t, router, http.MethodGet, "/admin/api/tokens", testAdminToken, nil)
	if err := json.NewDecoder(w.Body).Decode(&list); err != nil {
		t.Fatalf("decode token list after revoke: %v", err)
	}
	if len(list) != 1 || list[0].RevokedAt == nil {
		t.Fatalf("token list after revoke = %+v, want RevokedAt set", list)
	}

	w = doRequest(t, router, http.MethodDelete, fmt.Sprintf("/admin/api/tokens/%s", created.ID), testAdminToken, nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("DELETE = %d, want 204", w.Code)
	}

	w = doRequest(t, router, http.MethodGet, "/admin/api/tokens", testAdminToken, nil)
	if err := json.NewDecoder(w.Body).Decode(&list); err != nil {
		t.Fatalf("decode token list after delete: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("token list after delete has %d entries, want 0", len(list))
	}
}

func TestCreateToken_RejectsInvalidRateLimit(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	pool := getTestDB(t)
	defer pool.Close()

	srv := newTestServer(t, pool)
	router := srv.Routes()

	w := doRequest(t, router, http.MethodPost, "/admin/api/tokens", testAdminToken, createTokenRequest{
		Description: "bad-limit",
		RateLimit:   ptr(0),
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("POST with rateLimit=0 = %d, want 400", w.Code)
	}
}
