package keypool

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeStore struct {
	mu   sync.Mutex
	keys map[string]*Key

	leaseUntil map[string]time.Time
	leaseID    map[string]string

	insertErrOnLabel map[string]bool
}

func newFakeStore(keys ...*Key) *fakeStore {
	s := &fakeStore{
		keys:             make(map[string]*Key),
		leaseUntil:       make(map[string]time.Time),
		leaseID:          make(map[string]string),
		insertErrOnLabel: make(map[string]bool),
	}
	for _, k := range keys {
		s.keys[k.ID] = k
	}
	return s
}

func (s *fakeStore) ListCandidates(ctx context.Context, provider Provider) ([]*Key, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Key
	for _, k := range s.keys {
		if k.Provider == provider {
			cp := *k
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *fakeStore) UpdateStatus(ctx context.Context, keyID string, status Status, cooldownUntil *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k, ok := s.keys[keyID]
	if !ok {
		return errors.New("not found")
	}
	k.Status = status
	k.CooldownUntil = cooldownUntil
	return nil
}

func (s *fakeStore) TouchLastUsed(ctx context.Context, keyID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k, ok := s.keys[keyID]
	if !ok {
		return errors.New("not found")
	}
	k.LastUsedAt = &at
	return nil
}

func (s *fakeStore) AcquireRefreshLease(ctx context.Context, keyID, leaseID string, lockUntil time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if until, ok := s.leaseUntil[keyID]; ok && until.After(time.Now()) {
		return false, nil
	}
	s.leaseUntil[keyID] = lockUntil
	s.leaseID[keyID] = leaseID
	return true, nil
}

func (s *fakeStore) ReleaseRefreshLease(ctx context.Context, keyID, leaseID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.leaseID[keyID] == leaseID {
		delete(s.leaseUntil, keyID)
		delete(s.leaseID, keyID)
	}
	return nil
}

func (s *fakeStore) UpdateCredits(ctx context.Context, keyID string, credits Credits) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k, ok := s.keys[keyID]
	if !ok {
		return errors.New("not found")
	}
	k.Credits = credits
	return nil
}

func (s *fakeStore) InsertKey(ctx context.Context, key *Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertErrOnLabel[key.Label] {
		return errors.New("label exists")
	}
	for _, existing := range s.keys {
		if existing.Label == key.Label {
			return errors.New("label exists")
		}
	}
	s.keys[key.ID] = key
	return nil
}

type fixedSettings struct{ strategy Strategy }

func (f fixedSettings) TavilyKeySelectionStrategy(ctx context.Context) Strategy { return f.strategy }

func TestSelectActive_SkipsCooldownAndInvalid(t *testing.T) {
	now := time.Now()
	cooldownUntil := now.Add(time.Hour)
	store := newFakeStore(
		&Key{ID: "k1", Provider: ProviderTavily, Label: "one", Status: StatusCooldown, CooldownUntil: &cooldownUntil, CreatedAt: now},
		&Key{ID: "k2", Provider: ProviderTavily, Label: "two", Status: StatusInvalid, CreatedAt: now},
		&Key{ID: "k3", Provider: ProviderTavily, Label: "three", Status: StatusActive, CreatedAt: now},
	)
	pool := New(ProviderTavily, store, fixedSettings{StrategyRoundRobin}, 1, 60000, 15000)

	got, err := pool.SelectActive(context.Background())
	if err != nil {
		t.Fatalf("SelectActive: %v", err)
	}
	if got.ID != "k3" {
		t.Errorf("selected %q, want k3", got.ID)
	}
}

func TestSelectActive_NoActiveKeys(t *testing.T) {
	store := newFakeStore()
	pool := New(ProviderTavily, store, fixedSettings{StrategyRoundRobin}, 1, 60000, 15000)

	_, err := pool.SelectActive(context.Background())
	if !errors.Is(err, ErrNoActiveKeys) {
		t.Fatalf("err = %v, want ErrNoActiveKeys", err)
	}
}

func TestSelectActive_RoundRobinPrefersNullLastUsed(t *testing.T) {
	now := time.Now()
	used := now.Add(-time.Minute)
	store := newFakeStore(
		&Key{ID: "used", Provider: ProviderTavily, Label: "used", Status: StatusActive, LastUsedAt: &used, CreatedAt: now},
		&Key{ID: "fresh", Provider: ProviderTavily, Label: "fresh", Status: StatusActive, CreatedAt: now},
	)
	pool := New(ProviderTavily, store, fixedSettings{StrategyRoundRobin}, 1, 60000, 15000)

	got, err := pool.SelectActive(context.Background())
	if err != nil {
		t.Fatalf("SelectActive: %v", err)
	}
	if got.ID != "fresh" {
		t.Errorf("selected %q, want fresh (null lastUsedAt sorts first)", got.ID)
	}
}

func TestSelectActive_CooldownExpiredBecomesCandidate(t *testing.T) {
	now := time.Now()
	expired := now.Add(-time.Minute)
	store := newFakeStore(
		&Key{ID: "k1", Provider: ProviderTavily, Label: "one", Status: StatusCooldown, CooldownUntil: &expired, CreatedAt: now},
	)
	pool := New(ProviderTavily, store, fixedSettings{StrategyRoundRobin}, 1, 60000, 15000)

	got, err := pool.SelectActive(context.Background())
	if err != nil {
		t.Fatalf("SelectActive: %v", err)
	}
	if got.ID != "k1" {
		t.Errorf("selected %q, want k1 (cooldown lazily expired)", got.ID)
	}
}

func TestRecordOutcome_RateLimitedTransitionsToCooldown(t *testing.T) {
	now := time.Now()
	store := newFakeStore(&Key{ID: "k1", Provider: ProviderTavily, Label: "one", Status: StatusActive, CreatedAt: now})
	pool := New(ProviderTavily, store, fixedSettings{StrategyRoundRobin}, 1, 60000, 15000)

	if err := pool.RecordOutcome(context.Background(), "k1", OutcomeRateLimited); err != nil {
		t.Fatalf("RecordOutcome: %v", err)
	}
	if store.keys["k1"].Status != StatusCooldown {
		t.Errorf("status = %v, want cooldown", store.keys["k1"].Status)
	}
	if store.keys["k1"].CooldownUntil == nil || !store.keys["k1"].CooldownUntil.After(now) {
		t.Error("cooldownUntil should be set to a time after now")
	}
}

func TestRecordOutcome_AuthFailedTransitionsToInvalid(t *testing.T) {
	now := time.Now()
	store := newFakeStore(&Key{ID: "k1", Provider: ProviderTavily, Label: "one", Status: StatusActive, CreatedAt: now})
	pool := New(ProviderTavily, store, fixedSettings{StrategyRoundRobin}, 1, 60000, 15000)

	if err := pool.RecordOutcome(context.Background(), "k1", OutcomeAuthFailed); err != nil {
		t.Fatalf("RecordOutcome: %v", err)
	}
	if store.keys["k1"].Status != StatusInvalid {
		t.Errorf("status = %v, want invalid", store.keys["k1"].Status)
	}
}

func TestRefreshLease_ExclusiveUntilReleased(t *testing.T) {
	now := time.Now()
	store := newFakeStore(&Key{ID: "k1", Provider: ProviderTavily, Label: "one", Status: StatusActive, CreatedAt: now})
	pool := New(ProviderTavily, store, fixedSettings{StrategyRoundRobin}, 1, 60000, 15000)

	lease1, err := pool.AcquireRefreshLease(context.Background(), "k1")
	if err != nil || lease1 == "" {
		t.Fatalf("expected lease acquired, got %q, err %v", lease1, err)
	}

	lease2, err := pool.AcquireRefreshLease(context.Background(), "k1")
	if err != nil {
		t.Fatalf("AcquireRefreshLease: %v", err)
	}
	if lease2 != "" {
		t.Error("second concurrent lease acquisition should fail while first is held")
	}

	if err := pool.ReleaseRefreshLease(context.Background(), "k1", lease1); err != nil {
		t.Fatalf("ReleaseRefreshLease: %v", err)
	}

	lease3, err := pool.AcquireRefreshLease(context.Background(), "k1")
	if err != nil || lease3 == "" {
		t.Fatalf("expected lease acquired after release, got %q, err %v", lease3, err)
	}
}

func TestImportKeys_RenamesOnLabelCollision(t *testing.T) {
	now := time.Now()
	store := newFakeStore(&Key{ID: "existing", Provider: ProviderTavily, Label: "prod", Status: StatusActive, CreatedAt: now})
	pool := New(ProviderTavily, store, fixedSettings{StrategyRoundRobin}, 1, 60000, 15000)

	newKey := &Key{ID: "new1", Provider: ProviderTavily, Label: "prod", Status: StatusActive, CreatedAt: now}
	results, err := pool.ImportKeys(context.Background(), []*Key{newKey}, func(err error) bool { return err != nil })
	if err != nil {
		t.Fatalf("ImportKeys: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("len(results) = %d, want 1", len(results))
	}
	if !results[0].LabelRenamed {
		t.Error("expected LabelRenamed = true")
	}
	if results[0].FinalLabel != "prod (import 2)" {
		t.Errorf("FinalLabel = %q, want %q", results[0].FinalLabel, "prod (import 2)")
	}
}

func TestComputeRemaining_NullAsInfinity(t *testing.T) {
	five := int64(5)
	c := Credits{KeyRemaining: &five}
	r := c.ComputeRemaining()
	if r == nil || *r != 5 {
		t.Fatalf("ComputeRemaining = %v, want 5", r)
	}

	ten := int64(10)
	c2 := Credits{KeyRemaining: &five, AccountRemaining: &ten}
	r2 := c2.ComputeRemaining()
	if r2 == nil || *r2 != 5 {
		t.Fatalf("ComputeRemaining min = %v, want 5", r2)
	}

	c3 := Credits{}
	if c3.ComputeRemaining() != nil {
		t.Error("ComputeRemaining with no fields set should be nil (infinity)")
	}
}
