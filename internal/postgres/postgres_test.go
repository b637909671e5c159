package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/searchbridge/mcp-gateway/internal/clienttoken"
	"github.com/searchbridge/mcp-gateway/internal/keypool"
)

// getTestDB connects to TEST_DATABASE_URL and truncates every table this
// package touches, or skips if the variable isn't set.
func getTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()

	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping integration tests")
	}

	pool, err := Open(context.Background(), dbURL)
	if err != nil {
		t.Fatalf("failed to connect to test database: %v", err)
	}

	for _, table := range []string{"usage_log", "audit_log", "client_tokens", "upstream_keys", "settings"} {
		if _, err := pool.Exec(context.Background(), "DELETE FROM "+table); err != nil {
			t.Fatalf("failed to clean table %s: %v", table, err)
		}
	}

	return pool
}

func TestKeyStore_InsertAndListCandidates(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	pool := getTestDB(t)
	defer pool.Close()

	store := NewKeyStore(pool)
	ctx := context.Background()

	key := &keypool.Key{
		ID:        "key-1",
		Provider:  keypool.ProviderTavily,
		Label:     "primary",
		Ciphertext: []byte("ciphertext-bytes"),
		Masked:    "abcd...wxyz",
		Status:    keypool.StatusActive,
		CreatedAt: time.Now(),
	}
	if err := store.InsertKey(ctx, key); err != nil {
		t.Fatalf("InsertKey: %v", err)
	}

	keys, err := store.ListCandidates(ctx, keypool.ProviderTavily)
	if err != nil {
		t.Fatalf("ListCandidates: %v", err)
	}
	if len(keys) != 1 || keys[0].Label != "primary" {
		t.Fatalf("got %+v, want one key labelled primary", keys)
	}

	got, err := store.GetByID(ctx, "key-1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got == nil || got.Label != "primary" {
		t.Fatalf("GetByID = %+v, want primary", got)
	}

	if _, err := store.GetByID(ctx, "missing"); err != nil {
		t.Fatalf("GetByID(missing) returned error, want nil,nil: %v", err)
	}
}

func TestKeyStore_InsertKey_LabelCollision(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	pool := getTestDB(t)
	defer pool.Close()

	store := NewKeyStore(pool)
	ctx := context.Background()

	base := &keypool.Key{ID: "key-a", Provider: keypool.ProviderTavily, Label: "dup", Ciphertext: []byte("x"), Status: keypool.StatusActive, CreatedAt: time.Now()}
	if err := store.InsertKey(ctx, base); err != nil {
		t.Fatalf("InsertKey: %v", err)
	}

	dup := &keypool.Key{ID: "key-b", Provider: keypool.ProviderTavily, Label: "dup", Ciphertext: []byte("y"), Status: keypool.StatusActive, CreatedAt: time.Now()}
	err := store.InsertKey(ctx, dup)
	if err == nil {
		t.Fatal("InsertKey with duplicate label: want error, got nil")
	}
	if !IsLabelCollision(err) {
		t.Fatalf("IsLabelCollision(%v) = false, want true", err)
	}
}

func TestKeyStore_AcquireRefreshLease_ExclusiveUntilReleased(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	pool := getTestDB(t)
	defer pool.Close()

	store := NewKeyStore(pool)
	ctx := context.Background()

	key := &keypool.Key{ID: "key-lease", Provider: keypool.ProviderTavily, Label: "lease", Ciphertext: []byte("x"), Status: keypool.StatusActive, CreatedAt: time.Now()}
	if err := store.InsertKey(ctx, key); err != nil {
		t.Fatalf("InsertKey: %v", err)
	}

	ok, err := store.AcquireRefreshLease(ctx, "key-lease", "lease-1", time.Now().Add(time.Minute))
	if err != nil || !ok {
		t.Fatalf("first AcquireRefreshLease: ok=%v err=%v", ok, err)
	}

	ok, err = store.AcquireRefreshLease(ctx, "key-lease", "lease-2", time.Now().Add(time.Minute))
	if err != nil {
		t.Fatalf("second AcquireRefreshLease: %v", err)
	}
	if ok {
		t.Fatal("second AcquireRefreshLease succeeded while lease-1 still held, want false")
	}

	if err := store.ReleaseRefreshLease(ctx, "key-lease", "lease-1"); err != nil {
		t.Fatalf("ReleaseRefreshLease: %v", err)
	}

	ok, err = store.AcquireRefreshLease(ctx, "key-lease", "lease-2", time.Now().Add(time.Minute))
	if err != nil || !ok {
		t.Fatalf("AcquireRefreshLease after release: ok=%v err=%v", ok, err)
	}
}

func TestTokenStore_InsertLookupRevokeDelete(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	pool := getTestDB(t)
	defer pool.Close()

	store := NewTokenStore(pool)
	ctx := context.Background()

	tok, err := clienttoken.Generate()
	if err != nil {
		t.Fatalf("generating token: %v", err)
	}

	record := &clienttoken.Record{
		ID:         "token-1",
		Prefix:     tok.Prefix,
		SecretHash: clienttoken.SecretHash(tok.Secret),
		CreatedAt:  time.Now(),
	}
	if err := store.Insert(ctx, record); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	got, err := store.LookupByPrefix(ctx, record.Prefix)
	if err != nil {
		t.Fatalf("LookupByPrefix: %v", err)
	}
	if got.ID != record.ID {
		t.Fatalf("LookupByPrefix returned %+v, want id %s", got, record.ID)
	}

	if err := store.Revoke(ctx, record.ID, time.Now()); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	got, err = store.LookupByPrefix(ctx, record.Prefix)
	if err != nil {
		t.Fatalf("LookupByPrefix after revoke: %v", err)
	}
	if got.RevokedAt == nil {
		t.Fatal("expected RevokedAt to be set after Revoke")
	}

	if err := store.Delete(ctx, record.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := store.LookupByPrefix(ctx, record.Prefix); err != ErrTokenNotFound {
		t.Fatalf("LookupByPrefix after delete: err=%v, want ErrTokenNotFound", err)
	}
}

func TestSettingsStore_GetSetSetting(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	pool := getTestDB(t)
	defer pool.Close()

	store := NewSettingsStore(pool)
	ctx := context.Background()

	if err := store.SetSetting(ctx, "tavilyKeySelectionStrategy", "random"); err != nil {
		t.Fatalf("SetSetting: %v", err)
	}
	got, err := store.GetSetting(ctx, "tavilyKeySelectionStrategy")
	if err != nil {
		t.Fatalf("GetSetting: %v", err)
	}
	if got != "random" {
		t.Fatalf("GetSetting = %q, want %q", got, "random")
	}

	if err := store.SetSetting(ctx, "tavilyKeySelectionStrategy", "round_robin"); err != nil {
		t.Fatalf("SetSetting (update): %v", err)
	}
	got, err = store.GetSetting(ctx, "tavilyKeySelectionStrategy")
	if err != nil {
		t.Fatalf("GetSetting after update: %v", err)
	}
	if got != "round_robin" {
		t.Fatalf("GetSetting after update = %q, want %q", got, "round_robin")
	}
}
