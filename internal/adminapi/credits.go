package adminapi

import (
	"context"
	"errors"
	"time"

	"github.com/searchbridge/mcp-gateway/internal/keypool"
)

// errLeaseHeld signals that another refresh already holds the exclusive
// credit-refresh lease for a key.
var errLeaseHeld = errors.New("refresh lease already held")

// refreshOneKeyCredits acquires the exclusive refresh lease for keyID,
// decrypts its secret, calls the upstream credits endpoint, stores the
// snapshot, and releases the lease.
func (s *Server) refreshOneKeyCredits(ctx context.Context, keyID string) error {
	leaseID, err := s.TavilyPool.AcquireRefreshLease(ctx, keyID)
	if err != nil {
		return err
	}
	if leaseID == "" {
		return errLeaseHeld
	}
	defer s.TavilyPool.ReleaseRefreshLease(ctx, keyID, leaseID)

	key, err := s.Keys.GetByID(ctx, keyID)
	if err != nil {
		return err
	}
	if key == nil {
		return errors.New("key not found")
	}

	secret, err := s.Vault.Decrypt(key.Ciphertext)
	if err != nil {
		return err
	}

	snapshot, err := s.Tavily.GetCredits(ctx, string(secret))
	if err != nil {
		return err
	}

	now := time.Now()
	expiresAt := now.Add(s.CreditsCacheTTL)
	credits := keypool.Credits{
		KeyUsage:               snapshot.KeyUsage,
		KeyLimit:               snapshot.KeyLimit,
		KeyRemaining:           snapshot.KeyRemaining,
		AccountPlanUsage:       snapshot.AccountPlanUsage,
		AccountPlanLimit:       snapshot.AccountPlanLimit,
		AccountPayAsYouGoUsage: snapshot.AccountPayAsYouGoUsage,
		AccountPayAsYouGoLimit: snapshot.AccountPayAsYouGoLimit,
		AccountRemaining:       snapshot.AccountRemaining,
		CheckedAt:              &now,
		ExpiresAt:              &expiresAt,
	}
	return s.TavilyPool.RefreshCredits(ctx, keyID, credits)
}
