package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"server/internal/domain"
)

type billingEvent struct {
	Type      string `json:"type"`
	UserID    string `json:"user_id"`
	Plan      string `json:"plan"`
	Amount    int    `json:"amount"`
	Reference string `json:"reference"`
}

// BillingWebhook processes billing provider events. Deliveries are retried by
// the provider, so grant application is idempotent on reference.
func (a *App) BillingWebhook(w http.ResponseWriter, r *http.Request) {
	var event billingEvent
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if event.UserID == "" || event.Reference == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "user_id and reference are required")
		return
	}

	switch event.Type {
	case "plan.upgraded":
		applied, err := a.Allocator.ApplyUpgrade(r.Context(), event.UserID, domain.PlanType(event.Plan), event.Reference)
		if err != nil {
			a.billingError(w, event, err)
			return
		}
		a.json(w, http.StatusOK, map[string]any{"applied": applied})
	case "credits.topup":
		applied, err := a.Allocator.TopUp(r.Context(), event.UserID, event.Amount, event.Reference)
		if err != nil {
			a.billingError(w, event, err)
			return
		}
		a.json(w, http.StatusOK, map[string]any{"applied": applied})
	default:
		// Unknown events are acknowledged so the provider stops retrying.
		a.Logger.Warn().Str("type", event.Type).Msg("unhandled billing event")
		a.json(w, http.StatusOK, map[string]any{"applied": false})
	}
}

func (a *App) billingError(w http.ResponseWriter, event billingEvent, err error) {
	switch {
	case errors.Is(err, domain.ErrUnknownPlan), errors.Is(err, domain.ErrInvalidArgument):
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
	case errors.Is(err, domain.ErrNotFound):
		a.error(w, http.StatusNotFound, "not_found", "account not found")
	default:
		a.Logger.Error().Err(err).Str("type", event.Type).Str("reference", event.Reference).Msg("billing event failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to apply billing event")
	}
}
