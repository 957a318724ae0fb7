package credits

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"server/internal/domain"
)

// Allocator tops up and resets account balances: the scheduled monthly
// freemium refresh, webhook-driven plan upgrades and paid top-ups. All credit
// additions go through the ledger store's atomic grant path.
type Allocator struct {
	registry *Registry
	accounts domain.AccountRepository
	store    domain.TransactionRepository
	logger   zerolog.Logger
	now      func() time.Time
}

// NewAllocator constructs an Allocator.
func NewAllocator(registry *Registry, accounts domain.AccountRepository, store domain.TransactionRepository, logger zerolog.Logger) *Allocator {
	return &Allocator{
		registry: registry,
		accounts: accounts,
		store:    store,
		logger:   logger.With().Str("component", "credit_allocator").Logger(),
		now:      time.Now,
	}
}

// RefreshStats summarizes one monthly refresh pass.
type RefreshStats struct {
	Downgraded int
	Refreshed  int
}

// RefreshResult is the outcome of a single-account refresh. Skipped is true
// when the account is not freemium or was already refreshed this month.
type RefreshResult struct {
	Skipped bool
	Reason  string
}

// RefreshMonthly downgrades lapsed subscriptions and resets every due
// freemium balance to the monthly allotment. The month guard lives in the
// store update, so running twice in the same month refreshes nothing the
// second time. Invoked daily by the worker.
func (a *Allocator) RefreshMonthly(ctx context.Context) (RefreshStats, error) {
	var stats RefreshStats

	downgraded, err := a.accounts.DowngradeLapsed(ctx)
	if err != nil {
		return stats, fmt.Errorf("downgrade lapsed subscriptions: %w", err)
	}
	stats.Downgraded = downgraded

	allotment, err := a.freemiumAllotment()
	if err != nil {
		return stats, err
	}
	refreshed, err := a.accounts.RefreshFreemium(ctx, allotment, a.now())
	if err != nil {
		return stats, fmt.Errorf("refresh freemium balances: %w", err)
	}
	stats.Refreshed = refreshed

	if downgraded > 0 || refreshed > 0 {
		a.logger.Info().
			Int("downgraded", downgraded).
			Int("refreshed", refreshed).
			Msg("monthly refresh applied")
	}
	return stats, nil
}

// RefreshAccount applies the monthly refresh to one account.
func (a *Allocator) RefreshAccount(ctx context.Context, userID string) (RefreshResult, error) {
	account, err := a.accounts.GetByID(ctx, userID)
	if err != nil {
		return RefreshResult{}, fmt.Errorf("load account: %w", err)
	}
	if !account.IsFreemium() {
		return RefreshResult{Skipped: true, Reason: "not freemium"}, nil
	}
	allotment, err := a.freemiumAllotment()
	if err != nil {
		return RefreshResult{}, err
	}
	refreshed, err := a.accounts.RefreshAccountIfDue(ctx, userID, allotment, a.now())
	if err != nil {
		return RefreshResult{}, fmt.Errorf("refresh account: %w", err)
	}
	if !refreshed {
		return RefreshResult{Skipped: true, Reason: "already refreshed this month"}, nil
	}
	a.logger.Info().Str("user_id", userID).Int("credits", allotment).Msg("freemium balance refreshed")
	return RefreshResult{}, nil
}

// ApplyUpgrade switches the account to the given paid plan and grants its
// monthly allotment. Idempotent on reference: a retried webhook delivery
// grants nothing the second time.
func (a *Allocator) ApplyUpgrade(ctx context.Context, userID string, plan domain.PlanType, reference string) (bool, error) {
	limits, err := a.registry.Limits(plan)
	if err != nil {
		return false, err
	}
	if plan == domain.PlanFreemium {
		return false, fmt.Errorf("cannot upgrade to freemium: %w", domain.ErrInvalidArgument)
	}
	if err := a.accounts.SetPlan(ctx, userID, plan, domain.SubscriptionActive); err != nil {
		return false, fmt.Errorf("set plan: %w", err)
	}
	if limits.Unlimited() {
		// Custom plans carry no fixed allotment; credits arrive as top-ups.
		return true, nil
	}
	grant := &domain.CreditGrant{
		ID:        uuid.NewString(),
		UserID:    userID,
		Amount:    *limits.MonthlyCredits,
		Kind:      domain.GrantUpgrade,
		Reference: reference,
		CreatedAt: a.now().UTC(),
	}
	_, applied, err := a.store.AddCredits(ctx, grant)
	if err != nil {
		return false, fmt.Errorf("grant upgrade credits: %w", err)
	}
	if !applied {
		a.logger.Debug().Str("user_id", userID).Str("reference", reference).Msg("upgrade grant already applied")
		return false, nil
	}
	a.logger.Info().
		Str("user_id", userID).
		Str("plan", string(plan)).
		Int("credits", grant.Amount).
		Msg("plan upgrade credited")
	return true, nil
}

// TopUp adds purchased credits. Idempotent on reference.
func (a *Allocator) TopUp(ctx context.Context, userID string, amount int, reference string) (bool, error) {
	if amount <= 0 {
		return false, fmt.Errorf("top-up amount must be positive, got %d: %w", amount, domain.ErrInvalidArgument)
	}
	grant := &domain.CreditGrant{
		ID:        uuid.NewString(),
		UserID:    userID,
		Amount:    amount,
		Kind:      domain.GrantTopUp,
		Reference: reference,
		CreatedAt: a.now().UTC(),
	}
	balance, applied, err := a.store.AddCredits(ctx, grant)
	if err != nil {
		return false, fmt.Errorf("grant top-up credits: %w", err)
	}
	if !applied {
		a.logger.Debug().Str("user_id", userID).Str("reference", reference).Msg("top-up already applied")
		return false, nil
	}
	a.logger.Info().
		Str("user_id", userID).
		Int("credits", amount).
		Int("new_balance", balance).
		Msg("top-up credited")
	return true, nil
}

// SweepStaleReservations lists reservations that have sat unresolved longer
// than the grace period. They indicate an orchestrator that died between
// reserve and commit/rollback; the worker logs them for operators, nothing is
// rolled back automatically.
func (a *Allocator) SweepStaleReservations(ctx context.Context, olderThan time.Duration, limit int) ([]domain.CreditTransaction, error) {
	cutoff := a.now().UTC().Add(-olderThan)
	stale, err := a.store.ListUnresolved(ctx, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("list unresolved reservations: %w", err)
	}
	for _, txn := range stale {
		a.logger.Warn().
			Str("transaction_id", txn.ID).
			Str("user_id", txn.UserID).
			Int("credits", txn.CreditsReserved).
			Time("created_at", txn.CreatedAt).
			Msg("reservation unresolved past grace period")
	}
	return stale, nil
}

func (a *Allocator) freemiumAllotment() (int, error) {
	limits, err := a.registry.Limits(domain.PlanFreemium)
	if err != nil {
		return 0, err
	}
	return *limits.MonthlyCredits, nil
}
