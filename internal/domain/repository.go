package domain

import (
	"context"
	"time"
)

// AccountRepository defines access methods for accounts. Balance-mutating
// operations live on TransactionRepository so that every credit movement goes
// through the ledger's atomic path.
type AccountRepository interface {
	UpsertByGoogleSub(ctx context.Context, account *Account) (*Account, error)
	GetByID(ctx context.Context, id string) (*Account, error)
	GetByGoogleSub(ctx context.Context, sub string) (*Account, error)
	SetPlan(ctx context.Context, id string, plan PlanType, status SubscriptionStatus) error

	// RefreshFreemium resets the balance of every freemium account whose last
	// refresh predates the current calendar month. The month guard lives inside
	// the update so a repeated run is a no-op. Returns the number of accounts
	// refreshed.
	RefreshFreemium(ctx context.Context, allotment int, now time.Time) (int, error)

	// RefreshAccountIfDue is the per-account variant of RefreshFreemium.
	// Reports false when the account is not freemium or was already refreshed
	// this month.
	RefreshAccountIfDue(ctx context.Context, id string, allotment int, now time.Time) (bool, error)

	// DowngradeLapsed moves paid accounts with a cancelled or inactive
	// subscription back to freemium. Returns the number of accounts changed.
	DowngradeLapsed(ctx context.Context) (int, error)
}

// TransactionRepository is the ledger's storage contract. Each method is a
// single atomic unit against the backing store: concurrent calls for the same
// user observe a linearizable balance.
type TransactionRepository interface {
	// ReserveCredits conditionally decrements the user's balance by
	// txn.CreditsReserved and persists txn with state reserved, all in one
	// transaction. Returns ErrInsufficientCredits when the balance does not
	// cover the reservation, leaving the balance untouched and reporting its
	// current value, or ErrNotFound for unknown users.
	ReserveCredits(ctx context.Context, txn *CreditTransaction) (newBalance int, err error)

	GetTransaction(ctx context.Context, id string) (*CreditTransaction, error)

	// CommitReservation flips state reserved -> committed. Reports false
	// without error when the transaction was not in the reserved state; the
	// caller classifies the terminal state it found instead.
	CommitReservation(ctx context.Context, id string) (flipped bool, err error)

	// RollbackReservation flips state reserved -> rolled_back and restores the
	// reserved credits to the user's balance within the same transaction.
	// Reports false when the transaction was already resolved.
	RollbackReservation(ctx context.Context, id string) (restored int, flipped bool, err error)

	// AddCredits atomically increments the user's balance and records the
	// grant. When grant.Reference collides with an existing grant the call is
	// a no-op and applied is false (webhook retry idempotency).
	AddCredits(ctx context.Context, grant *CreditGrant) (newBalance int, applied bool, err error)

	// ListUnresolved returns reservations still in the reserved state created
	// before the cutoff, oldest first.
	ListUnresolved(ctx context.Context, cutoff time.Time, limit int) ([]CreditTransaction, error)
}

// UsageRepository persists monthly consumption aggregates.
type UsageRepository interface {
	// IncrementMonthly additively updates the month's counters in a single
	// atomic write; concurrent increments must both be reflected.
	IncrementMonthly(ctx context.Context, userID, month string, words, credits int, meta UsageMetadata) (*MonthlyUsage, error)

	// GetMonthly returns a zero-valued record when no usage exists yet.
	GetMonthly(ctx context.Context, userID, month string) (*MonthlyUsage, error)

	// ListRecent returns up to limit months of usage, most recent first.
	ListRecent(ctx context.Context, userID string, limit int) ([]MonthlyUsage, error)
}

// ResultRepository persists tool result records.
type ResultRepository interface {
	Create(ctx context.Context, result *ToolResult) error
	GetResult(ctx context.Context, id string) (*ToolResult, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]ToolResult, error)
}
