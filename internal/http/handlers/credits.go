package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"server/internal/domain"
)

type balanceResponse struct {
	Plan               string `json:"plan"`
	Credits            int    `json:"credits"`
	SubscriptionStatus string `json:"subscription_status"`
	MonthlyCredits     *int   `json:"monthly_credits,omitempty"`
}

// CreditBalance returns the authenticated user's spendable balance.
func (a *App) CreditBalance(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	account, err := a.Accounts.GetByID(r.Context(), userID)
	if err != nil {
		a.error(w, http.StatusNotFound, "not_found", "account not found")
		return
	}
	a.json(w, http.StatusOK, balanceResponse{
		Plan:               string(account.Plan),
		Credits:            account.Credits,
		SubscriptionStatus: string(account.SubscriptionStatus),
	})
}

type resultDTO struct {
	ID               string   `json:"id"`
	Tool             string   `json:"tool"`
	TransactionID    string   `json:"transaction_id"`
	WordCount        int      `json:"word_count"`
	StorageKey       string   `json:"storage_key,omitempty"`
	OriginalityScore *float64 `json:"originality_score,omitempty"`
	CreatedAt        string   `json:"created_at"`
}

func resultToDTO(res domain.ToolResult) resultDTO {
	return resultDTO{
		ID:               res.ID,
		Tool:             string(res.Tool),
		TransactionID:    res.TransactionID,
		WordCount:        res.WordCount,
		StorageKey:       res.StorageKey,
		OriginalityScore: res.OriginalityScore,
		CreatedAt:        res.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// ResultsList returns the user's recent tool results.
func (a *App) ResultsList(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	results, err := a.Results.ListByUser(r.Context(), userID, 50)
	if err != nil {
		a.Logger.Error().Err(err).Msg("list results failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to list results")
		return
	}
	out := make([]resultDTO, 0, len(results))
	for _, res := range results {
		out = append(out, resultToDTO(res))
	}
	a.json(w, http.StatusOK, map[string]any{"results": out})
}

// ResultGet returns one tool result owned by the user.
func (a *App) ResultGet(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	id := chi.URLParam(r, "id")
	result, err := a.Results.GetResult(r.Context(), id)
	if err != nil {
		a.error(w, http.StatusNotFound, "not_found", "result not found")
		return
	}
	if result.UserID != userID {
		a.error(w, http.StatusNotFound, "not_found", "result not found")
		return
	}
	a.json(w, http.StatusOK, resultToDTO(*result))
}
