package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"server/internal/domain"
	"server/internal/middleware"
)

type googleVerifyRequest struct {
	IDToken string `json:"id_token"`
}

type googleVerifyResponse struct {
	Token string     `json:"token"`
	User  accountDTO `json:"user"`
}

type accountDTO struct {
	ID                 string `json:"id"`
	Email              string `json:"email"`
	Name               string `json:"name"`
	Locale             string `json:"locale"`
	Plan               string `json:"plan"`
	Credits            int    `json:"credits"`
	SubscriptionStatus string `json:"subscription_status"`
}

func accountToDTO(account *domain.Account) accountDTO {
	return accountDTO{
		ID:                 account.ID,
		Email:              account.Email,
		Name:               account.Name,
		Locale:             account.Locale,
		Plan:               string(account.Plan),
		Credits:            account.Credits,
		SubscriptionStatus: string(account.SubscriptionStatus),
	}
}

// AuthGoogleVerify exchanges a Google ID token for a session JWT, creating
// the account on first sign-in with the freemium signup allotment.
func (a *App) AuthGoogleVerify(w http.ResponseWriter, r *http.Request) {
	var req googleVerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if req.IDToken == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "id_token required")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()
	claims, err := a.GoogleVerifier.VerifyIDToken(ctx, req.IDToken)
	if err != nil {
		a.Logger.Error().Err(err).Msg("google verify failed")
		a.error(w, http.StatusUnauthorized, "unauthorized", "invalid google token")
		return
	}
	sub, _ := claims["sub"].(string)
	email, _ := claims["email"].(string)
	name, _ := claims["name"].(string)
	locale, _ := claims["locale"].(string)
	if locale == "" {
		locale = "en"
	}

	account, err := a.Accounts.UpsertByGoogleSub(r.Context(), &domain.Account{
		ID:                 uuid.NewString(),
		GoogleSub:          sub,
		Email:              email,
		Name:               name,
		Locale:             locale,
		Plan:               domain.PlanFreemium,
		Credits:            domain.FreemiumCredits,
		SubscriptionStatus: domain.SubscriptionActive,
	})
	if err != nil {
		a.Logger.Error().Err(err).Msg("upsert account failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to persist account")
		return
	}

	token, err := middleware.SignJWT(a.JWTSecret, middleware.TokenClaims{
		Sub:      account.ID,
		Plan:     string(account.Plan),
		Locale:   account.Locale,
		Exp:      time.Now().Add(24 * time.Hour).Unix(),
		Issuer:   "creditmeter",
		Audience: "creditmeter-clients",
	})
	if err != nil {
		a.Logger.Error().Err(err).Msg("sign jwt failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to sign token")
		return
	}
	a.json(w, http.StatusOK, googleVerifyResponse{Token: token, User: accountToDTO(account)})
}

// Me returns the authenticated account profile and balance.
func (a *App) Me(w http.ResponseWriter, r *http.Request) {
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
	a.json(w, http.StatusOK, accountToDTO(account))
}
