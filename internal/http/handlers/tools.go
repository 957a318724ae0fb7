package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"server/internal/credits"
	"server/internal/domain"
	"server/internal/middleware"
	"server/internal/tools"
)

type rejectionBody struct {
	Error            string `json:"error"`
	Code             string `json:"code"`
	Message          string `json:"message"`
	Plan             string `json:"plan,omitempty"`
	EstimatedCredits int    `json:"estimated_credits,omitempty"`
	AvailableCredits int    `json:"available_credits"`
	MonthlyResetAt   string `json:"monthly_reset_at,omitempty"`
}

type outcomeBody struct {
	Content          string   `json:"content,omitempty"`
	WordCount        int      `json:"word_count"`
	StorageKey       string   `json:"storage_key,omitempty"`
	OriginalityScore *float64 `json:"originality_score,omitempty"`
	Issues           []string `json:"issues,omitempty"`
	Notes            []string `json:"notes,omitempty"`
	CreditsCharged   int      `json:"credits_charged"`
	NewBalance       int      `json:"new_balance"`
	TransactionID    string   `json:"transaction_id"`
	ResultID         string   `json:"result_id"`
}

// writeOutcome renders either the rejection or the completed result.
func (a *App) writeOutcome(w http.ResponseWriter, outcome *tools.Outcome) {
	if rej := outcome.Rejection; rej != nil {
		status := http.StatusPaymentRequired
		if rej.Code == credits.CodePlanNotFound || rej.Code == credits.CodeInvalidPlan {
			status = http.StatusForbidden
		}
		body := rejectionBody{
			Error:            "rejected",
			Code:             string(rej.Code),
			Message:          rej.Message,
			Plan:             string(rej.Plan),
			EstimatedCredits: rej.EstimatedCredits,
			AvailableCredits: rej.AvailableCredits,
		}
		if !rej.MonthlyResetAt.IsZero() {
			body.MonthlyResetAt = rej.MonthlyResetAt.Format(time.RFC3339)
		}
		a.json(w, status, body)
		return
	}
	a.json(w, http.StatusOK, outcomeBody{
		Content:          outcome.Content,
		WordCount:        outcome.WordCount,
		StorageKey:       outcome.StorageKey,
		OriginalityScore: outcome.OriginalityScore,
		Issues:           outcome.Issues,
		Notes:            outcome.Notes,
		CreditsCharged:   outcome.CreditsCharged,
		NewBalance:       outcome.NewBalance,
		TransactionID:    outcome.TransactionID,
		ResultID:         outcome.ResultID,
	})
}

func (a *App) writeToolError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidArgument):
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
	case errors.Is(err, domain.ErrNotFound):
		a.error(w, http.StatusNotFound, "not_found", "account not found")
	case errors.Is(err, domain.ErrProviderFailure):
		a.error(w, http.StatusBadGateway, "provider_failure", "the provider could not complete the request; nothing was charged")
	case errors.Is(err, context.DeadlineExceeded):
		a.error(w, http.StatusGatewayTimeout, "timeout", "the request timed out; nothing was charged")
	default:
		a.Logger.Error().Err(err).Msg("tool request failed")
		a.error(w, http.StatusInternalServerError, "internal", "tool request failed")
	}
}

type writeRequest struct {
	Prompt    string `json:"prompt"`
	WordCount int    `json:"word_count"`
	Locale    string `json:"locale"`
}

// ToolWrite runs the writing tool.
func (a *App) ToolWrite(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	var req writeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	outcome, err := a.Writer.Write(r.Context(), userID, tools.WriteRequest{
		Prompt:    req.Prompt,
		WordCount: req.WordCount,
		Locale:    a.localeFor(r, req.Locale),
		Country:   middleware.CountryFromContext(r.Context()),
		RequestID: middleware.RequestIDFromContext(r.Context()),
	})
	if err != nil {
		a.writeToolError(w, err)
		return
	}
	a.writeOutcome(w, outcome)
}

type researchRequest struct {
	Topic     string   `json:"topic"`
	Sources   []string `json:"sources"`
	WordCount int      `json:"word_count"`
	Locale    string   `json:"locale"`
}

// ToolResearch runs the research synthesis tool.
func (a *App) ToolResearch(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	var req researchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	outcome, err := a.Researcher.Research(r.Context(), userID, tools.ResearchRequest{
		Topic:     req.Topic,
		Sources:   req.Sources,
		WordCount: req.WordCount,
		Locale:    a.localeFor(r, req.Locale),
		Country:   middleware.CountryFromContext(r.Context()),
		RequestID: middleware.RequestIDFromContext(r.Context()),
	})
	if err != nil {
		a.writeToolError(w, err)
		return
	}
	a.writeOutcome(w, outcome)
}

type detectTextRequest struct {
	Text string `json:"text"`
}

// ToolDetect scores submitted text for originality.
func (a *App) ToolDetect(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	var req detectTextRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	outcome, err := a.Detector.Detect(r.Context(), userID, tools.DetectRequest{
		Text:      req.Text,
		Country:   middleware.CountryFromContext(r.Context()),
		RequestID: middleware.RequestIDFromContext(r.Context()),
	})
	if err != nil {
		a.writeToolError(w, err)
		return
	}
	a.writeOutcome(w, outcome)
}

type humanizeRequest struct {
	Text      string `json:"text"`
	WordCount int    `json:"word_count"`
}

// ToolHumanize rewrites submitted text to read more naturally.
func (a *App) ToolHumanize(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	var req humanizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	outcome, err := a.Detector.Humanize(r.Context(), userID, tools.HumanizeRequest{
		Text:      req.Text,
		WordCount: req.WordCount,
		Country:   middleware.CountryFromContext(r.Context()),
		RequestID: middleware.RequestIDFromContext(r.Context()),
	})
	if err != nil {
		a.writeToolError(w, err)
		return
	}
	a.writeOutcome(w, outcome)
}

type optimizePromptRequest struct {
	Prompt    string `json:"prompt"`
	Objective string `json:"objective"`
	Locale    string `json:"locale"`
}

// ToolOptimizePrompt rewrites a user prompt for better model output.
func (a *App) ToolOptimizePrompt(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	var req optimizePromptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	outcome, err := a.PromptOptimizer.Optimize(r.Context(), userID, tools.OptimizeRequest{
		Prompt:    req.Prompt,
		Objective: req.Objective,
		Locale:    a.localeFor(r, req.Locale),
		Country:   middleware.CountryFromContext(r.Context()),
		RequestID: middleware.RequestIDFromContext(r.Context()),
	})
	if err != nil {
		a.writeToolError(w, err)
		return
	}
	a.writeOutcome(w, outcome)
}

func (a *App) localeFor(r *http.Request, override string) string {
	if override != "" {
		return override
	}
	return middleware.LocaleFromContext(r.Context())
}
