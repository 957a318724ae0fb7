package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"server/internal/credits"
	"server/internal/domain"
)

// Orchestrator runs the credit-gated flow shared by every tool:
// validate -> reserve -> provider call -> commit + reconcile | rollback ->
// persist result -> record usage. The ledger never rolls back on its own, so
// the orchestrator owns resolving every reservation, including on provider
// timeout.
type Orchestrator struct {
	validator   *credits.Validator
	ledger      *credits.Ledger
	tracker     *credits.Tracker
	results     domain.ResultRepository
	logger      zerolog.Logger
	callTimeout time.Duration
	now         func() time.Time
}

// NewOrchestrator constructs an Orchestrator. callTimeout bounds every
// provider call; a reservation is rolled back when the call exceeds it.
func NewOrchestrator(validator *credits.Validator, ledger *credits.Ledger, tracker *credits.Tracker, results domain.ResultRepository, logger zerolog.Logger, callTimeout time.Duration) *Orchestrator {
	if callTimeout <= 0 {
		callTimeout = 2 * time.Minute
	}
	return &Orchestrator{
		validator:   validator,
		ledger:      ledger,
		tracker:     tracker,
		results:     results,
		logger:      logger.With().Str("component", "tool_orchestrator").Logger(),
		callTimeout: callTimeout,
		now:         time.Now,
	}
}

// Request is the normalized tool invocation.
type Request struct {
	UserID    string
	Tool      domain.ToolType
	Content   string
	WordCount int
	Country   string
	RequestID string
}

// callOutput is what a tool's provider closure returns.
type callOutput struct {
	content          string
	wordCount        int
	storageKey       string
	originalityScore *float64
	issues           []string
	notes            []string
	provider         string
}

// Outcome reports a finished tool run. Rejection is non-nil when pre-flight
// validation or the reservation failed; in that case nothing was charged.
type Outcome struct {
	Rejection        *credits.Decision
	Content          string
	WordCount        int
	StorageKey       string
	OriginalityScore *float64
	Issues           []string
	Notes            []string
	CreditsCharged   int
	NewBalance       int
	TransactionID    string
	ResultID         string
}

// run executes the shared flow around the provider closure.
func (o *Orchestrator) run(ctx context.Context, req Request, call func(context.Context) (*callOutput, error)) (*Outcome, error) {
	decision, err := o.validator.ValidateRequest(ctx, req.UserID, req.Content, req.WordCount, req.Tool)
	if err != nil {
		return nil, err
	}
	if !decision.Valid {
		return &Outcome{Rejection: decision}, nil
	}

	words := req.WordCount
	if words <= 0 {
		words = credits.CountWords(req.Content)
	}
	reserved, err := o.ledger.Reserve(ctx, req.UserID, words, decision.Plan, req.Tool)
	if err != nil {
		return nil, err
	}
	if !reserved.Success {
		// Balance moved between validation and reservation; same user-facing
		// shape as a validation rejection.
		return &Outcome{Rejection: &credits.Decision{
			Plan:             decision.Plan,
			EstimatedCredits: reserved.RequiredCredits,
			AvailableCredits: reserved.PreviousBalance,
			Code:             credits.CodeInsufficientCredits,
			Message: fmt.Sprintf("request needs %d credits but only %d are available; top up or upgrade your plan",
				reserved.RequiredCredits, reserved.PreviousBalance),
		}}, nil
	}

	callCtx, cancel := context.WithTimeout(ctx, o.callTimeout)
	out, callErr := call(callCtx)
	cancel()
	if callErr != nil {
		if _, rbErr := o.ledger.Rollback(context.WithoutCancel(ctx), reserved.TransactionID); rbErr != nil {
			// A reservation we can neither fulfil nor roll back is exactly the
			// inconsistency the stale-reservation sweep exists for.
			o.logger.Error().Err(rbErr).
				Str("transaction_id", reserved.TransactionID).
				Msg("rollback failed after provider error")
		}
		o.logger.Warn().Err(callErr).
			Str("user_id", req.UserID).
			Str("tool", string(req.Tool)).
			Msg("provider call failed, reservation rolled back")
		return nil, fmt.Errorf("%w: %v", domain.ErrProviderFailure, callErr)
	}

	if err := o.ledger.Commit(ctx, reserved.TransactionID); err != nil {
		return nil, err
	}

	charged := reserved.CreditsDeducted
	balance := reserved.NewBalance
	if out.wordCount > 0 && out.wordCount != reserved.WordsAllocated {
		adjust, err := o.ledger.AdjustAfterActual(ctx, reserved.TransactionID, out.wordCount)
		switch {
		case errors.Is(err, domain.ErrInsufficientCredits):
			// Output overran an empty balance. The deliverable stands; the
			// shortfall is logged and the balance stays clamped at zero.
			o.logger.Warn().
				Str("transaction_id", reserved.TransactionID).
				Int("actual_words", out.wordCount).
				Msg("reconciliation shortfall exceeds balance")
		case err != nil:
			return nil, err
		default:
			charged += adjust.CreditsDelta
			if adjust.NewBalance > 0 || adjust.CreditsDelta != 0 {
				balance = adjust.NewBalance
			}
		}
	}

	result := &domain.ToolResult{
		ID:               uuid.NewString(),
		UserID:           req.UserID,
		Tool:             req.Tool,
		TransactionID:    reserved.TransactionID,
		WordCount:        out.wordCount,
		StorageKey:       out.storageKey,
		OriginalityScore: out.originalityScore,
		CreatedAt:        o.now().UTC(),
	}
	if props, err := json.Marshal(map[string]any{
		"provider":   out.provider,
		"request_id": req.RequestID,
		"country":    req.Country,
	}); err == nil {
		result.Properties = props
	}
	if err := o.results.Create(ctx, result); err != nil {
		o.logger.Error().Err(err).Str("result_id", result.ID).Msg("persist tool result failed")
	}

	// Best-effort: a lost aggregate degrades reporting, never balances.
	if _, err := o.tracker.RecordUsage(ctx, req.UserID, out.wordCount, charged, domain.UsageMetadata{
		Tool:      req.Tool,
		Country:   req.Country,
		RequestID: req.RequestID,
	}); err != nil {
		o.logger.Warn().Err(err).Str("user_id", req.UserID).Msg("record usage failed")
	}

	return &Outcome{
		Content:          out.content,
		WordCount:        out.wordCount,
		StorageKey:       out.storageKey,
		OriginalityScore: out.originalityScore,
		Issues:           out.issues,
		Notes:            out.notes,
		CreditsCharged:   charged,
		NewBalance:       balance,
		TransactionID:    reserved.TransactionID,
		ResultID:         result.ID,
	}, nil
}
