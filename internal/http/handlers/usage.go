package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"server/internal/domain"
	"server/pkg/zip"
)

type usageDTO struct {
	Month        string `json:"month"`
	TotalWords   int    `json:"total_words"`
	TotalCredits int    `json:"total_credits"`
	RequestCount int    `json:"request_count"`
	LastTool     string `json:"last_tool,omitempty"`
	LastCountry  string `json:"last_country,omitempty"`
	UpdatedAt    string `json:"updated_at,omitempty"`
}

func usageToDTO(u domain.MonthlyUsage) usageDTO {
	dto := usageDTO{
		Month:        u.Month,
		TotalWords:   u.TotalWords,
		TotalCredits: u.TotalCredits,
		RequestCount: u.RequestCount,
		LastTool:     string(u.LastTool),
		LastCountry:  u.LastCountry,
	}
	if !u.UpdatedAt.IsZero() {
		dto.UpdatedAt = u.UpdatedAt.UTC().Format(time.RFC3339)
	}
	return dto
}

// UsageCurrent returns the authenticated user's aggregate for this month.
func (a *App) UsageCurrent(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	usage, err := a.Tracker.CurrentUsage(r.Context(), userID)
	if err != nil {
		a.Logger.Error().Err(err).Msg("load current usage failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load usage")
		return
	}
	a.json(w, http.StatusOK, usageToDTO(*usage))
}

// UsageHistory returns up to ?months=N months of usage, most recent first.
func (a *App) UsageHistory(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	months := 6
	if v := r.URL.Query().Get("months"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 12 {
			a.error(w, http.StatusBadRequest, "bad_request", "months must be between 1 and 12")
			return
		}
		months = n
	}
	records, err := a.Tracker.UsageHistory(r.Context(), userID, months)
	if err != nil {
		a.Logger.Error().Err(err).Msg("load usage history failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load usage history")
		return
	}
	out := make([]usageDTO, 0, len(records))
	for _, rec := range records {
		out = append(out, usageToDTO(rec))
	}
	a.json(w, http.StatusOK, map[string]any{"months": out})
}

// UsageExport streams a zip archive of per-month CSV reports.
func (a *App) UsageExport(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	records, err := a.Tracker.UsageHistory(r.Context(), userID, 12)
	if err != nil {
		a.Logger.Error().Err(err).Msg("load usage for export failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load usage")
		return
	}
	assets := make([]zip.Asset, 0, len(records))
	for _, rec := range records {
		csv := fmt.Sprintf("month,total_words,total_credits,request_count\n%s,%d,%d,%d\n",
			rec.Month, rec.TotalWords, rec.TotalCredits, rec.RequestCount)
		assets = append(assets, zip.Asset{
			Filename: fmt.Sprintf("usage-%s.csv", rec.Month),
			MIME:     "text/csv",
			Data:     []byte(csv),
		})
	}
	archive := zip.ArchiveAssets(assets)
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", `attachment; filename="usage-export.zip"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(archive)
}
