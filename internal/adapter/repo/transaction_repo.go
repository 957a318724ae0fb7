package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"server/internal/domain"
)

// TransactionRepositoryPG implements domain.TransactionRepository backed by
// PostgreSQL. Each exported method is one database transaction; the
// conditional UPDATE guards make the check-then-act sequences atomic, so
// concurrent reservations against the same account observe a linearizable
// balance.
type TransactionRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewTransactionRepository creates a new TransactionRepositoryPG.
func NewTransactionRepository(pool *pgxpool.Pool) *TransactionRepositoryPG {
	return &TransactionRepositoryPG{pool: pool}
}

const transactionColumns = `id, user_id, tool_type, credits_reserved, words_allocated, state, created_at, resolved_at`

// ReserveCredits decrements the balance and records the reservation in a
// single transaction. The decrement only matches when the balance covers the
// cost, which is the invariant that prevents double-spend; the CHECK
// constraint on accounts.credits backs it up.
func (r *TransactionRepositoryPG) ReserveCredits(ctx context.Context, txn *domain.CreditTransaction) (int, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin reserve: %w", err)
	}
	defer tx.Rollback(ctx)

	var balance int
	err = tx.QueryRow(ctx, `
UPDATE accounts
SET credits = credits - $2, updated_at = NOW()
WHERE id = $1 AND credits >= $2
RETURNING credits;
`, txn.UserID, txn.CreditsReserved).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		// Guard did not match: either the account is unknown or the balance is
		// short. Read the balance to tell the two apart; the reservation path
		// mutated nothing.
		var current int
		readErr := tx.QueryRow(ctx, `SELECT credits FROM accounts WHERE id = $1`, txn.UserID).Scan(&current)
		if errors.Is(readErr, pgx.ErrNoRows) {
			return 0, domain.ErrNotFound
		}
		if readErr != nil {
			return 0, readErr
		}
		return current, domain.ErrInsufficientCredits
	}
	if err != nil {
		return 0, err
	}

	_, err = tx.Exec(ctx, `
INSERT INTO credit_transactions (id, user_id, tool_type, credits_reserved, words_allocated, state, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7);
`, txn.ID, txn.UserID, txn.Tool, txn.CreditsReserved, txn.WordsAllocated, txn.State, txn.CreatedAt)
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit reserve: %w", err)
	}
	return balance, nil
}

// GetTransaction fetches a ledger entry by ID.
func (r *TransactionRepositoryPG) GetTransaction(ctx context.Context, id string) (*domain.CreditTransaction, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+transactionColumns+` FROM credit_transactions WHERE id = $1`, id)
	return scanTransaction(row)
}

// CommitReservation flips a reserved transaction to committed. The state
// guard ensures the terminal write happens exactly once.
func (r *TransactionRepositoryPG) CommitReservation(ctx context.Context, id string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
UPDATE credit_transactions
SET state = 'committed', resolved_at = NOW()
WHERE id = $1 AND state = 'reserved';
`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// RollbackReservation flips a reserved transaction to rolled_back and
// restores the held credits within the same transaction.
func (r *TransactionRepositoryPG) RollbackReservation(ctx context.Context, id string) (int, bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, false, fmt.Errorf("begin rollback: %w", err)
	}
	defer tx.Rollback(ctx)

	var userID string
	var reserved int
	err = tx.QueryRow(ctx, `
UPDATE credit_transactions
SET state = 'rolled_back', resolved_at = NOW()
WHERE id = $1 AND state = 'reserved'
RETURNING user_id, credits_reserved;
`, id).Scan(&userID, &reserved)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}

	_, err = tx.Exec(ctx,
		`UPDATE accounts SET credits = credits + $2, updated_at = NOW() WHERE id = $1`,
		userID, reserved)
	if err != nil {
		return 0, false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, false, fmt.Errorf("commit rollback: %w", err)
	}
	return reserved, true, nil
}

// AddCredits records the grant and increments the balance atomically. A
// duplicate non-empty reference matches the unique index and turns the whole
// call into a no-op, which is what makes webhook retries safe.
func (r *TransactionRepositoryPG) AddCredits(ctx context.Context, grant *domain.CreditGrant) (int, bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, false, fmt.Errorf("begin grant: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
INSERT INTO credit_grants (id, user_id, amount, kind, reference, reason_transaction_id, created_at)
VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), $7)
ON CONFLICT (reference) WHERE reference IS NOT NULL DO NOTHING;
`, grant.ID, grant.UserID, grant.Amount, grant.Kind, grant.Reference, grant.ReasonTransactionID, grant.CreatedAt)
	if err != nil {
		return 0, false, err
	}
	if tag.RowsAffected() == 0 {
		var current int
		if err := tx.QueryRow(ctx, `SELECT credits FROM accounts WHERE id = $1`, grant.UserID).Scan(&current); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return 0, false, domain.ErrNotFound
			}
			return 0, false, err
		}
		return current, false, nil
	}

	var balance int
	err = tx.QueryRow(ctx,
		`UPDATE accounts SET credits = credits + $2, updated_at = NOW() WHERE id = $1 RETURNING credits`,
		grant.UserID, grant.Amount).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, domain.ErrNotFound
	}
	if err != nil {
		return 0, false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, false, fmt.Errorf("commit grant: %w", err)
	}
	return balance, true, nil
}

// ListUnresolved returns reservations still open past the cutoff, oldest
// first.
func (r *TransactionRepositoryPG) ListUnresolved(ctx context.Context, cutoff time.Time, limit int) ([]domain.CreditTransaction, error) {
	rows, err := r.pool.Query(ctx, `
SELECT `+transactionColumns+`
FROM credit_transactions
WHERE state = 'reserved' AND created_at < $1
ORDER BY created_at ASC
LIMIT $2;
`, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stale []domain.CreditTransaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		stale = append(stale, *txn)
	}
	return stale, rows.Err()
}

func scanTransaction(row pgx.Row) (*domain.CreditTransaction, error) {
	var t domain.CreditTransaction
	if err := row.Scan(&t.ID, &t.UserID, &t.Tool, &t.CreditsReserved, &t.WordsAllocated, &t.State, &t.CreatedAt, &t.ResolvedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}
