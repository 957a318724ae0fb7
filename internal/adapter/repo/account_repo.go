package repo

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"server/internal/domain"
)

// AccountRepositoryPG implements domain.AccountRepository backed by
// PostgreSQL. It never touches the credits column outside the refresh
// queries; balance movement belongs to TransactionRepositoryPG.
type AccountRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewAccountRepository creates a new AccountRepositoryPG.
func NewAccountRepository(pool *pgxpool.Pool) *AccountRepositoryPG {
	return &AccountRepositoryPG{pool: pool}
}

const accountColumns = `id, google_sub, email, name, locale, plan_type, credits, subscription_status, last_credit_refresh, created_at, updated_at`

// UpsertByGoogleSub inserts or updates an account based on the Google sub
// value. New accounts start on the freemium plan with the signup allotment.
func (r *AccountRepositoryPG) UpsertByGoogleSub(ctx context.Context, account *domain.Account) (*domain.Account, error) {
	query := `
INSERT INTO accounts (id, google_sub, email, name, locale, plan_type, credits, subscription_status, last_credit_refresh)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
ON CONFLICT (google_sub) DO UPDATE
SET email = EXCLUDED.email,
    name = EXCLUDED.name,
    locale = EXCLUDED.locale,
    updated_at = NOW()
RETURNING ` + accountColumns + `;
`

	row := r.pool.QueryRow(ctx, query,
		account.ID,
		account.GoogleSub,
		account.Email,
		account.Name,
		account.Locale,
		account.Plan,
		account.Credits,
		account.SubscriptionStatus,
	)

	return scanAccount(row)
}

// GetByID fetches an account by ID.
func (r *AccountRepositoryPG) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
	return scanAccount(row)
}

// GetByGoogleSub fetches an account by Google subject identifier.
func (r *AccountRepositoryPG) GetByGoogleSub(ctx context.Context, sub string) (*domain.Account, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE google_sub = $1`, sub)
	return scanAccount(row)
}

// SetPlan updates the plan tier and subscription status.
func (r *AccountRepositoryPG) SetPlan(ctx context.Context, id string, plan domain.PlanType, status domain.SubscriptionStatus) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE accounts SET plan_type = $2, subscription_status = $3, updated_at = NOW() WHERE id = $1`,
		id, plan, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// RefreshFreemium resets every due freemium balance to the allotment. The
// month guard sits in the WHERE clause so a repeat run within the same month
// matches no rows.
func (r *AccountRepositoryPG) RefreshFreemium(ctx context.Context, allotment int, now time.Time) (int, error) {
	tag, err := r.pool.Exec(ctx, `
UPDATE accounts
SET credits = $1, last_credit_refresh = $2, updated_at = NOW()
WHERE plan_type = 'freemium'
  AND last_credit_refresh < date_trunc('month', $2::timestamptz);
`, allotment, now.UTC())
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

// RefreshAccountIfDue applies the monthly refresh to a single account.
func (r *AccountRepositoryPG) RefreshAccountIfDue(ctx context.Context, id string, allotment int, now time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
UPDATE accounts
SET credits = $2, last_credit_refresh = $3, updated_at = NOW()
WHERE id = $1
  AND plan_type = 'freemium'
  AND last_credit_refresh < date_trunc('month', $3::timestamptz);
`, id, allotment, now.UTC())
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// DowngradeLapsed moves paid accounts with lapsed subscriptions back to
// freemium.
func (r *AccountRepositoryPG) DowngradeLapsed(ctx context.Context) (int, error) {
	tag, err := r.pool.Exec(ctx, `
UPDATE accounts
SET plan_type = 'freemium', updated_at = NOW()
WHERE plan_type <> 'freemium'
  AND subscription_status IN ('cancelled', 'inactive');
`)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func scanAccount(row pgx.Row) (*domain.Account, error) {
	var a domain.Account
	if err := row.Scan(&a.ID, &a.GoogleSub, &a.Email, &a.Name, &a.Locale, &a.Plan, &a.Credits, &a.SubscriptionStatus, &a.LastCreditRefresh, &a.CreatedAt, &a.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}
