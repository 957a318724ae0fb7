package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"server/internal/credits"
	"server/internal/domain"
	"server/internal/infra/google"
	"server/internal/middleware"
	"server/internal/storage"
	"server/internal/tools"
)

// App carries the wired services every handler needs.
type App struct {
	Logger    zerolog.Logger
	JWTSecret string

	GoogleVerifier *google.Verifier

	Accounts  domain.AccountRepository
	Results   domain.ResultRepository
	Validator *credits.Validator
	Ledger    *credits.Ledger
	Tracker   *credits.Tracker
	Allocator *credits.Allocator

	Writer          *tools.Writer
	Researcher      *tools.Researcher
	Detector        *tools.Detector
	PromptOptimizer *tools.PromptOptimizer

	FileStore *storage.FileStore
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, slug, message string) {
	a.json(w, code, errorBody{Error: slug, Message: message})
}

func (a *App) currentUserID(r *http.Request) string {
	return middleware.UserIDFromContext(r.Context())
}
