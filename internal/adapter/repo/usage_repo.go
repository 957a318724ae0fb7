package repo

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"server/internal/domain"
)

// UsageRepositoryPG implements domain.UsageRepository backed by PostgreSQL.
// The additive ON CONFLICT upsert keeps concurrent increments from losing
// updates to a read-modify-write race.
type UsageRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewUsageRepository creates a new UsageRepositoryPG.
func NewUsageRepository(pool *pgxpool.Pool) *UsageRepositoryPG {
	return &UsageRepositoryPG{pool: pool}
}

const usageColumns = `user_id, month, total_words, total_credits, request_count, COALESCE(last_tool, ''), COALESCE(last_country, ''), updated_at`

// IncrementMonthly adds words and credits to the month's counters in one
// atomic statement, creating the record lazily on first usage.
func (r *UsageRepositoryPG) IncrementMonthly(ctx context.Context, userID, month string, words, creditsUsed int, meta domain.UsageMetadata) (*domain.MonthlyUsage, error) {
	row := r.pool.QueryRow(ctx, `
INSERT INTO monthly_usage (user_id, month, total_words, total_credits, request_count, last_tool, last_country, updated_at)
VALUES ($1, $2, $3, $4, 1, NULLIF($5, ''), NULLIF($6, ''), NOW())
ON CONFLICT (user_id, month) DO UPDATE
SET total_words = monthly_usage.total_words + EXCLUDED.total_words,
    total_credits = monthly_usage.total_credits + EXCLUDED.total_credits,
    request_count = monthly_usage.request_count + 1,
    last_tool = COALESCE(EXCLUDED.last_tool, monthly_usage.last_tool),
    last_country = COALESCE(EXCLUDED.last_country, monthly_usage.last_country),
    updated_at = NOW()
RETURNING `+usageColumns+`;
`, userID, month, words, creditsUsed, string(meta.Tool), meta.Country)

	return scanUsage(row)
}

// GetMonthly returns the month's aggregate, or a zero-valued record when no
// usage exists yet.
func (r *UsageRepositoryPG) GetMonthly(ctx context.Context, userID, month string) (*domain.MonthlyUsage, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+usageColumns+` FROM monthly_usage WHERE user_id = $1 AND month = $2`,
		userID, month)
	record, err := scanUsage(row)
	if errors.Is(err, domain.ErrNotFound) {
		return &domain.MonthlyUsage{UserID: userID, Month: month}, nil
	}
	return record, err
}

// ListRecent returns up to limit months of usage, most recent first.
func (r *UsageRepositoryPG) ListRecent(ctx context.Context, userID string, limit int) ([]domain.MonthlyUsage, error) {
	rows, err := r.pool.Query(ctx, `
SELECT `+usageColumns+`
FROM monthly_usage
WHERE user_id = $1
ORDER BY month DESC
LIMIT $2;
`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []domain.MonthlyUsage
	for rows.Next() {
		record, err := scanUsage(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *record)
	}
	return records, rows.Err()
}

func scanUsage(row pgx.Row) (*domain.MonthlyUsage, error) {
	var u domain.MonthlyUsage
	var lastTool string
	if err := row.Scan(&u.UserID, &u.Month, &u.TotalWords, &u.TotalCredits, &u.RequestCount, &lastTool, &u.LastCountry, &u.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	u.LastTool = domain.ToolType(lastTool)
	return &u, nil
}
