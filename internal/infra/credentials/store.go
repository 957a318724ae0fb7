// Package credentials stores provider API tokens in the database so they can
// be rotated without redeploying.
package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	ProviderGemini   = "gemini"
	ProviderOpenAI   = "openai"
	ProviderDetector = "detector"
)

// Store reads and writes integration tokens.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a Store over the given pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Token returns the stored token for the provider, or "" when none is set.
func (s *Store) Token(ctx context.Context, provider string) (string, error) {
	row := s.pool.QueryRow(ctx, `SELECT token FROM integration_tokens WHERE provider = $1`, provider)
	var token string
	if err := row.Scan(&token); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", err
	}
	return strings.TrimSpace(token), nil
}

// SetToken stores or rotates a provider token.
func (s *Store) SetToken(ctx context.Context, provider, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return errors.New("token is required")
	}
	return s.upsert(ctx, provider, token, nil)
}

func (s *Store) upsert(ctx context.Context, provider, token string, props map[string]any) error {
	payload := props
	if payload == nil {
		payload = map[string]any{}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
INSERT INTO integration_tokens (provider, token, properties, updated_at)
VALUES ($1, $2, $3, NOW())
ON CONFLICT (provider) DO UPDATE
SET token = EXCLUDED.token, properties = EXCLUDED.properties, updated_at = NOW();
`, provider, token, raw)
	return err
}
