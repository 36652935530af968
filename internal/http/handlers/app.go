package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"orbitstudio/internal/domain"
	"orbitstudio/internal/i18n"
	"orbitstudio/internal/infra"
	"orbitstudio/internal/middleware"
)

// GenerationService is what the HTTP layer needs from the studio.
type GenerationService interface {
	Generate(ctx context.Context, surfaceID string, form domain.FormData, app *domain.AppContext) (*domain.Generation, error)
	Get(ctx context.Context, id string) (*domain.Generation, error)
	Cancel(userID, surfaceID string) error
}

type App struct {
	Generations GenerationService
	// GCSURI is the bucket prefix every user's outputs are written under.
	GCSURI string
	// Ready reports backing store health; nil means always ready.
	Ready  func(ctx context.Context) error
	Logger *infra.Logger
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// error writes the error envelope with message translated to the request
// locale.
func (a *App) error(w http.ResponseWriter, r *http.Request, code int, errCode, message string) {
	a.json(w, code, errorBody{Error: errorDetail{Code: errCode, Message: translate(r, message)}})
}

func translate(r *http.Request, message string) string {
	return i18n.Translate(middleware.LocaleFromContext(r.Context()), message)
}

// domainError maps a pipeline failure to a status code and error code.
func (a *App) domainError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := http.StatusInternalServerError, "internal"
	switch {
	case errors.Is(err, domain.ErrValidation):
		status, code = http.StatusBadRequest, "invalid_request"
	case errors.Is(err, domain.ErrConfiguration):
		status, code = http.StatusBadRequest, "missing_context"
	case errors.Is(err, domain.ErrRateLimit):
		status, code = http.StatusTooManyRequests, "rate_limited"
	case errors.Is(err, domain.ErrAuth):
		status, code = http.StatusBadGateway, "backend_auth"
	case errors.Is(err, domain.ErrTransport):
		status, code = http.StatusBadGateway, "backend_unavailable"
	case errors.Is(err, domain.ErrNotFound):
		status, code = http.StatusNotFound, "not_found"
	}
	if status >= http.StatusInternalServerError {
		a.logger(r).Error().Err(err).Msg("handlers: request failed")
	} else {
		a.logger(r).Warn().Err(err).Str("code", code).Msg("handlers: request rejected")
	}
	a.error(w, r, status, code, domain.UserMessage(err, "internal error"))
}

func (a *App) logger(r *http.Request) *infra.Logger {
	if l := infra.LoggerFromContext(r.Context()); l != nil {
		return l
	}
	return infra.LoggerOrDiscard(a.Logger)
}

// TooManyRequests is the body written by the rate limiter.
func (a *App) TooManyRequests(w http.ResponseWriter, r *http.Request) {
	a.error(w, r, http.StatusTooManyRequests, "rate_limited", "too many requests")
}

// Unauthorized is the body written for rejected bearer tokens.
func (a *App) Unauthorized(w http.ResponseWriter, r *http.Request) {
	a.error(w, r, http.StatusUnauthorized, "unauthorized", "invalid token")
}
