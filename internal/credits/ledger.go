package credits

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"server/internal/domain"
)

// Ledger owns all movement of credits on and off account balances. Every
// mutation goes through the repository's atomic operations; the ledger layers
// the reservation state machine, conversion and audit logging on top.
//
// State machine per transaction: reserved -> committed | rolled_back, both
// terminal. Callers must resolve every reservation; the ledger never rolls
// back on its own.
type Ledger struct {
	registry *Registry
	store    domain.TransactionRepository
	logger   zerolog.Logger
	now      func() time.Time
}

// NewLedger constructs a Ledger with the injected store and registry.
func NewLedger(registry *Registry, store domain.TransactionRepository, logger zerolog.Logger) *Ledger {
	return &Ledger{
		registry: registry,
		store:    store,
		logger:   logger.With().Str("component", "credit_ledger").Logger(),
		now:      time.Now,
	}
}

// ReserveResult reports the outcome of a reservation attempt. Success false
// means insufficient credits: the balance was not touched and
// RequiredCredits/PreviousBalance describe the shortfall for user messaging.
type ReserveResult struct {
	Success         bool
	TransactionID   string
	CreditsDeducted int
	WordsAllocated  int
	NewBalance      int
	RequiredCredits int
	PreviousBalance int
}

// AdjustResult reports a reconciliation outcome. CreditsDelta is positive
// when extra credits were deducted for a shortfall, negative when surplus was
// refunded.
type AdjustResult struct {
	CreditsDelta            int
	AdditionalTransactionID string
	NewBalance              int
}

// Reserve places an atomic hold of creditsForWords(wordCount, tool) on the
// user's balance and records a reserved transaction. The insufficient-funds
// check and the decrement happen inside a single store transaction, so two
// concurrent reservations can never jointly overdraw the account.
func (l *Ledger) Reserve(ctx context.Context, userID string, wordCount int, plan domain.PlanType, tool domain.ToolType) (*ReserveResult, error) {
	if _, err := l.registry.Limits(plan); err != nil {
		return nil, err
	}
	cost, err := l.registry.CreditsForWords(wordCount, tool)
	if err != nil {
		return nil, err
	}

	txn := &domain.CreditTransaction{
		ID:              uuid.NewString(),
		UserID:          userID,
		Tool:            tool,
		CreditsReserved: cost,
		WordsAllocated:  wordCount,
		State:           domain.TransactionReserved,
		CreatedAt:       l.now().UTC(),
	}

	balance, err := l.store.ReserveCredits(ctx, txn)
	if errors.Is(err, domain.ErrInsufficientCredits) {
		l.logger.Info().
			Str("user_id", userID).
			Str("tool", string(tool)).
			Int("required", cost).
			Int("balance", balance).
			Msg("reservation rejected: insufficient credits")
		return &ReserveResult{
			Success:         false,
			RequiredCredits: cost,
			PreviousBalance: balance,
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reserve credits: %w", err)
	}

	l.logger.Info().
		Str("user_id", userID).
		Str("transaction_id", txn.ID).
		Str("tool", string(tool)).
		Int("credits", cost).
		Int("words", wordCount).
		Int("new_balance", balance).
		Msg("credits reserved")

	return &ReserveResult{
		Success:         true,
		TransactionID:   txn.ID,
		CreditsDeducted: cost,
		WordsAllocated:  wordCount,
		NewBalance:      balance,
	}, nil
}

// Commit finalizes a reservation. Committing an already-committed transaction
// is a no-op so retried confirmations are harmless; committing a rolled-back
// transaction is an orchestration bug and reported as
// domain.ErrTransactionRolledBack.
func (l *Ledger) Commit(ctx context.Context, transactionID string) error {
	flipped, err := l.store.CommitReservation(ctx, transactionID)
	if err != nil {
		return fmt.Errorf("commit reservation: %w", err)
	}
	if flipped {
		l.logger.Info().Str("transaction_id", transactionID).Msg("reservation committed")
		return nil
	}

	txn, err := l.getTransaction(ctx, transactionID)
	if err != nil {
		return err
	}
	switch txn.State {
	case domain.TransactionCommitted:
		l.logger.Debug().Str("transaction_id", transactionID).Msg("commit repeated, ignoring")
		return nil
	case domain.TransactionRolledBack:
		l.logger.Error().Str("transaction_id", transactionID).Msg("commit attempted on rolled-back transaction")
		return fmt.Errorf("commit %s: %w", transactionID, domain.ErrTransactionRolledBack)
	default:
		return fmt.Errorf("commit %s: transaction left in state %q", transactionID, txn.State)
	}
}

// Rollback reverses a reservation, restoring exactly the reserved amount.
// A second rollback is a no-op returning zero restored. Rolling back a
// committed transaction is reported as domain.ErrTransactionCommitted.
func (l *Ledger) Rollback(ctx context.Context, transactionID string) (int, error) {
	restored, flipped, err := l.store.RollbackReservation(ctx, transactionID)
	if err != nil {
		return 0, fmt.Errorf("rollback reservation: %w", err)
	}
	if flipped {
		l.logger.Info().
			Str("transaction_id", transactionID).
			Int("credits_restored", restored).
			Msg("reservation rolled back")
		return restored, nil
	}

	txn, err := l.getTransaction(ctx, transactionID)
	if err != nil {
		return 0, err
	}
	switch txn.State {
	case domain.TransactionRolledBack:
		return 0, nil
	case domain.TransactionCommitted:
		l.logger.Error().Str("transaction_id", transactionID).Msg("rollback attempted on committed transaction")
		return 0, fmt.Errorf("rollback %s: %w", transactionID, domain.ErrTransactionCommitted)
	default:
		return 0, fmt.Errorf("rollback %s: transaction left in state %q", transactionID, txn.State)
	}
}

// AdjustAfterActual reconciles a committed reservation against the words the
// provider actually produced. A shortfall is covered by a second, independent
// reservation committed immediately; a surplus is refunded through the grant
// path. The original transaction is never mutated, keeping the ledger an
// append-only audit trail.
func (l *Ledger) AdjustAfterActual(ctx context.Context, transactionID string, actualWordCount int) (*AdjustResult, error) {
	txn, err := l.getTransaction(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if txn.State != domain.TransactionCommitted {
		return nil, fmt.Errorf("adjust %s: transaction in state %q, want committed: %w",
			transactionID, txn.State, domain.ErrInvalidArgument)
	}

	actualCredits, err := l.registry.CreditsForWords(actualWordCount, txn.Tool)
	if err != nil {
		return nil, err
	}
	delta := actualCredits - txn.CreditsReserved
	if delta == 0 {
		return &AdjustResult{}, nil
	}

	if delta > 0 {
		extra := &domain.CreditTransaction{
			ID:              uuid.NewString(),
			UserID:          txn.UserID,
			Tool:            txn.Tool,
			CreditsReserved: delta,
			WordsAllocated:  actualWordCount - txn.WordsAllocated,
			State:           domain.TransactionReserved,
			CreatedAt:       l.now().UTC(),
		}
		balance, err := l.store.ReserveCredits(ctx, extra)
		if errors.Is(err, domain.ErrInsufficientCredits) {
			// The work is already done; the account simply cannot cover the
			// overage. Surface it so the caller can flag the account.
			return nil, fmt.Errorf("adjust %s: shortfall of %d credits: %w",
				transactionID, delta, domain.ErrInsufficientCredits)
		}
		if err != nil {
			return nil, fmt.Errorf("adjust %s: reserve shortfall: %w", transactionID, err)
		}
		if err := l.Commit(ctx, extra.ID); err != nil {
			return nil, err
		}
		l.logger.Info().
			Str("transaction_id", transactionID).
			Str("adjustment_id", extra.ID).
			Int("credits_delta", delta).
			Msg("reconciliation shortfall deducted")
		return &AdjustResult{CreditsDelta: delta, AdditionalTransactionID: extra.ID, NewBalance: balance}, nil
	}

	grant := &domain.CreditGrant{
		ID:                  uuid.NewString(),
		UserID:              txn.UserID,
		Amount:              -delta,
		Kind:                domain.GrantAdjustment,
		ReasonTransactionID: transactionID,
		CreatedAt:           l.now().UTC(),
	}
	balance, _, err := l.store.AddCredits(ctx, grant)
	if err != nil {
		return nil, fmt.Errorf("adjust %s: refund surplus: %w", transactionID, err)
	}
	l.logger.Info().
		Str("transaction_id", transactionID).
		Str("grant_id", grant.ID).
		Int("credits_delta", delta).
		Msg("reconciliation surplus refunded")
	return &AdjustResult{CreditsDelta: delta, NewBalance: balance}, nil
}

// RefundCredits unconditionally adds credits back to an account, outside the
// reserve/commit flow. Always recorded against a reason transaction.
func (l *Ledger) RefundCredits(ctx context.Context, userID string, amount int, reasonTransactionID string) (int, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("refund amount must be positive, got %d: %w", amount, domain.ErrInvalidArgument)
	}
	grant := &domain.CreditGrant{
		ID:                  uuid.NewString(),
		UserID:              userID,
		Amount:              amount,
		Kind:                domain.GrantRefund,
		ReasonTransactionID: reasonTransactionID,
		CreatedAt:           l.now().UTC(),
	}
	balance, _, err := l.store.AddCredits(ctx, grant)
	if err != nil {
		return 0, fmt.Errorf("refund credits: %w", err)
	}
	l.logger.Info().
		Str("user_id", userID).
		Str("grant_id", grant.ID).
		Str("reason_transaction_id", reasonTransactionID).
		Int("credits", amount).
		Msg("credits refunded")
	return balance, nil
}

// getTransaction reads a transaction, retrying transient failures once. Reads
// are idempotent so the retry is safe; reservation writes are never retried.
func (l *Ledger) getTransaction(ctx context.Context, id string) (*domain.CreditTransaction, error) {
	txn, err := l.store.GetTransaction(ctx, id)
	if err != nil && !errors.Is(err, domain.ErrNotFound) && ctx.Err() == nil {
		txn, err = l.store.GetTransaction(ctx, id)
	}
	if err != nil {
		return nil, fmt.Errorf("load transaction %s: %w", id, err)
	}
	return txn, nil
}
