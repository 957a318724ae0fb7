package credits

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"server/internal/domain"
)

// Code identifies why a request was rejected during pre-flight validation.
type Code string

const (
	CodePlanNotFound        Code = "PLAN_NOT_FOUND"
	CodeInvalidPlan         Code = "INVALID_PLAN"
	CodeMonthlyLimitReached Code = "MONTHLY_CREDIT_LIMIT_REACHED"
	CodeInsufficientCredits Code = "INSUFFICIENT_CREDITS"
)

// Decision is the structured outcome of a pre-flight check. Rejections are
// results, not errors; Code and Message are user-facing.
type Decision struct {
	Valid            bool
	Plan             domain.PlanType
	EstimatedCredits int
	AvailableCredits int
	Code             Code
	Message          string
	MonthlyResetAt   time.Time
}

// Validator composes the registry, tracker and account store to answer
// whether a request may proceed. Strictly read-only: it never reserves, so a
// failed validation leaves no side effects.
type Validator struct {
	registry *Registry
	accounts domain.AccountRepository
	tracker  *Tracker
	logger   zerolog.Logger
	now      func() time.Time
}

// NewValidator constructs a Validator.
func NewValidator(registry *Registry, accounts domain.AccountRepository, tracker *Tracker, logger zerolog.Logger) *Validator {
	return &Validator{
		registry: registry,
		accounts: accounts,
		tracker:  tracker,
		logger:   logger.With().Str("component", "plan_validator").Logger(),
		now:      time.Now,
	}
}

// ValidateRequest runs the ordered pre-flight checks: account exists, plan is
// registered, freemium monthly cap, balance covers the estimate. The first
// failing check wins and later checks are not evaluated. wordCount may be
// zero for content-priced tools, in which case the word count is derived from
// content.
func (v *Validator) ValidateRequest(ctx context.Context, userID, content string, wordCount int, tool domain.ToolType) (*Decision, error) {
	words := wordCount
	if words <= 0 {
		words = CountWords(content)
	}
	if words <= 0 {
		return nil, fmt.Errorf("request has no word count and empty content: %w", domain.ErrInvalidArgument)
	}

	account, err := v.accounts.GetByID(ctx, userID)
	if errors.Is(err, domain.ErrNotFound) {
		return &Decision{
			Code:    CodePlanNotFound,
			Message: "no plan found for this account",
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load account: %w", err)
	}

	limits, err := v.registry.Limits(account.Plan)
	if errors.Is(err, domain.ErrUnknownPlan) {
		v.logger.Warn().Str("user_id", userID).Str("plan", string(account.Plan)).Msg("account carries unregistered plan")
		return &Decision{
			Plan:    account.Plan,
			Code:    CodeInvalidPlan,
			Message: fmt.Sprintf("plan %q is not recognized", account.Plan),
		}, nil
	}
	if err != nil {
		return nil, err
	}

	estimate, err := v.registry.CreditsForWords(words, tool)
	if err != nil {
		return nil, err
	}

	if account.IsFreemium() && !limits.Unlimited() {
		usage, err := v.tracker.CurrentUsage(ctx, userID)
		if err != nil {
			return nil, err
		}
		if usage.TotalCredits >= *limits.MonthlyCredits {
			reset := nextMonthStart(v.now())
			return &Decision{
				Plan:             account.Plan,
				EstimatedCredits: estimate,
				AvailableCredits: account.Credits,
				Code:             CodeMonthlyLimitReached,
				Message: fmt.Sprintf("monthly credit limit of %d reached; limit resets on %s or upgrade to pro",
					*limits.MonthlyCredits, reset.Format("2006-01-02")),
				MonthlyResetAt: reset,
			}, nil
		}
	}

	if account.Credits < estimate {
		return &Decision{
			Plan:             account.Plan,
			EstimatedCredits: estimate,
			AvailableCredits: account.Credits,
			Code:             CodeInsufficientCredits,
			Message: fmt.Sprintf("request needs %d credits but only %d are available; top up or upgrade your plan",
				estimate, account.Credits),
		}, nil
	}

	return &Decision{
		Valid:            true,
		Plan:             account.Plan,
		EstimatedCredits: estimate,
		AvailableCredits: account.Credits,
	}, nil
}

// CountWords counts whitespace-separated words in content.
func CountWords(content string) int {
	return len(strings.Fields(content))
}

func nextMonthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
}
