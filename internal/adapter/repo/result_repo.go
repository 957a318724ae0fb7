package repo

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"server/internal/domain"
)

// ResultRepositoryPG implements domain.ResultRepository backed by PostgreSQL.
type ResultRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewResultRepository creates a new ResultRepositoryPG.
func NewResultRepository(pool *pgxpool.Pool) *ResultRepositoryPG {
	return &ResultRepositoryPG{pool: pool}
}

const resultColumns = `id, user_id, tool_type, transaction_id, word_count, COALESCE(storage_key, ''), originality_score, properties, created_at`

// Create persists a tool result record.
func (r *ResultRepositoryPG) Create(ctx context.Context, result *domain.ToolResult) error {
	props := result.Properties
	if len(props) == 0 {
		props = []byte(`{}`)
	}
	_, err := r.pool.Exec(ctx, `
INSERT INTO tool_results (id, user_id, tool_type, transaction_id, word_count, storage_key, originality_score, properties, created_at)
VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, $8, $9);
`, result.ID, result.UserID, result.Tool, result.TransactionID, result.WordCount, result.StorageKey, result.OriginalityScore, props, result.CreatedAt)
	return err
}

// GetResult fetches a tool result by ID.
func (r *ResultRepositoryPG) GetResult(ctx context.Context, id string) (*domain.ToolResult, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+resultColumns+` FROM tool_results WHERE id = $1`, id)
	return scanResult(row)
}

// ListByUser returns the user's most recent results.
func (r *ResultRepositoryPG) ListByUser(ctx context.Context, userID string, limit int) ([]domain.ToolResult, error) {
	rows, err := r.pool.Query(ctx, `
SELECT `+resultColumns+`
FROM tool_results
WHERE user_id = $1
ORDER BY created_at DESC
LIMIT $2;
`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []domain.ToolResult
	for rows.Next() {
		result, err := scanResult(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, *result)
	}
	return results, rows.Err()
}

func scanResult(row pgx.Row) (*domain.ToolResult, error) {
	var t domain.ToolResult
	if err := row.Scan(&t.ID, &t.UserID, &t.Tool, &t.TransactionID, &t.WordCount, &t.StorageKey, &t.OriginalityScore, &t.Properties, &t.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}
