package credits

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"server/internal/domain"
)

// Tracker maintains durable monotonic consumption counters per user per
// month. Recording is best-effort from the caller's perspective: a lost
// increment degrades reporting, never balance correctness.
type Tracker struct {
	usage  domain.UsageRepository
	logger zerolog.Logger
	now    func() time.Time
}

// NewTracker constructs a Tracker over the given usage repository.
func NewTracker(usage domain.UsageRepository, logger zerolog.Logger) *Tracker {
	return &Tracker{
		usage:  usage,
		logger: logger.With().Str("component", "usage_tracker").Logger(),
		now:    time.Now,
	}
}

// RecordUsage atomically adds the given words and credits to the current
// month's counters. Two simultaneous calls for the same user are both
// reflected; the repository performs the increment as a single atomic write.
func (t *Tracker) RecordUsage(ctx context.Context, userID string, words, creditsUsed int, meta domain.UsageMetadata) (*domain.MonthlyUsage, error) {
	if words < 0 || creditsUsed < 0 {
		return nil, fmt.Errorf("usage increments must be non-negative: %w", domain.ErrInvalidArgument)
	}
	month := domain.MonthKey(t.now())
	record, err := t.usage.IncrementMonthly(ctx, userID, month, words, creditsUsed, meta)
	if err != nil {
		return nil, fmt.Errorf("record usage: %w", err)
	}
	t.logger.Debug().
		Str("user_id", userID).
		Str("month", month).
		Int("words", words).
		Int("credits", creditsUsed).
		Msg("usage recorded")
	return record, nil
}

// MonthlyUsage returns the aggregate for the given month key ("2006-01").
// A month with no usage yet yields a zero-valued record, not an error.
func (t *Tracker) MonthlyUsage(ctx context.Context, userID, month string) (*domain.MonthlyUsage, error) {
	if _, err := time.Parse(domain.MonthKeyFormat, month); err != nil {
		return nil, fmt.Errorf("month %q is not in YYYY-MM form: %w", month, domain.ErrInvalidArgument)
	}
	record, err := t.usage.GetMonthly(ctx, userID, month)
	if err != nil {
		return nil, fmt.Errorf("get monthly usage: %w", err)
	}
	return record, nil
}

// CurrentUsage returns the aggregate for the current month.
func (t *Tracker) CurrentUsage(ctx context.Context, userID string) (*domain.MonthlyUsage, error) {
	return t.MonthlyUsage(ctx, userID, domain.MonthKey(t.now()))
}

// UsageHistory returns up to months of usage records, most recent first.
// months must be between 1 and 12.
func (t *Tracker) UsageHistory(ctx context.Context, userID string, months int) ([]domain.MonthlyUsage, error) {
	if months < 1 || months > 12 {
		return nil, fmt.Errorf("months must be between 1 and 12, got %d: %w", months, domain.ErrInvalidArgument)
	}
	records, err := t.usage.ListRecent(ctx, userID, months)
	if err != nil {
		return nil, fmt.Errorf("list usage history: %w", err)
	}
	return records, nil
}
