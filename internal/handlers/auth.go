package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/recipereels/backend/internal/authflow"
	"github.com/recipereels/backend/internal/identity"
	"github.com/recipereels/backend/internal/localstore"
	"github.com/recipereels/backend/internal/logging"
)

// AuthHandler exposes the sign-in, sign-up and verification screens over JSON.
type AuthHandler struct {
	Flows   AuthFlows
	Device  DeviceStore
	Limiter RateLimiter
}

// SignIn handles POST /api/v1/auth/signin requests.
func (h AuthHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	ctx, ok := h.begin(w, r, "signin")
	if !ok {
		return
	}
	logger := logging.FromContext(ctx)

	var form authflow.SignInForm
	if err := json.NewDecoder(r.Body).Decode(&form); err != nil {
		logger.Warn("invalid signin payload", "error", err)
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	res, err := h.Flows.For(form.Identifier).SignIn(ctx, form)
	if err != nil {
		respondFlowError(ctx, w, err)
		return
	}

	if res.State == authflow.StateAuthenticated && res.Tokens != nil {
		h.rememberUser(ctx, res.Tokens.IDToken)
	}
	respondResult(ctx, w, res)
}

// SignUp handles POST /api/v1/auth/signup requests.
func (h AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	ctx, ok := h.begin(w, r, "signup")
	if !ok {
		return
	}
	logger := logging.FromContext(ctx)

	var form authflow.SignUpForm
	if err := json.NewDecoder(r.Body).Decode(&form); err != nil {
		logger.Warn("invalid signup payload", "error", err)
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	res, err := h.Flows.For(form.Normalize().Username).SignUp(ctx, form)
	if err != nil {
		respondFlowError(ctx, w, err)
		return
	}
	respondResult(ctx, w, res)
}

// Verify handles POST /api/v1/auth/verify requests.
func (h AuthHandler) Verify(w http.ResponseWriter, r *http.Request) {
	ctx, ok := h.begin(w, r, "verify")
	if !ok {
		return
	}
	logger := logging.FromContext(ctx)

	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid verify payload", "error", err)
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	flow := h.Flows.For(req.Identifier)
	if res, _ := flow.BeginVerification(req.Identifier, req.Email); res.Err != nil {
		respondResult(ctx, w, res)
		return
	}

	res, err := flow.Confirm(ctx, req.Code)
	if err != nil {
		respondFlowError(ctx, w, err)
		return
	}
	respondResult(ctx, w, res)
}

// Resend handles POST /api/v1/auth/resend requests.
func (h AuthHandler) Resend(w http.ResponseWriter, r *http.Request) {
	ctx, ok := h.begin(w, r, "resend")
	if !ok {
		return
	}
	logger := logging.FromContext(ctx)

	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid resend payload", "error", err)
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	flow := h.Flows.For(req.Identifier)
	if res, _ := flow.BeginVerification(req.Identifier, req.Email); res.Err != nil {
		respondResult(ctx, w, res)
		return
	}

	res, err := flow.Resend(ctx)
	if err != nil {
		respondFlowError(ctx, w, err)
		return
	}
	respondResult(ctx, w, res)
}

// Abandon handles POST /api/v1/auth/abandon, sent when the user leaves an auth screen.
func (h AuthHandler) Abandon(w http.ResponseWriter, r *http.Request) {
	ctx, ok := h.begin(w, r, "")
	if !ok {
		return
	}

	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Identifier) == "" {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "identifier is required"})
		return
	}

	h.Flows.For(req.Identifier).Abandon()
	w.WriteHeader(http.StatusNoContent)
}

func (h AuthHandler) begin(w http.ResponseWriter, r *http.Request, scope string) (context.Context, bool) {
	ctx := r.Context()
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return ctx, false
	}

	if h.Flows == nil {
		logging.FromContext(ctx).Error("auth flow dependencies unavailable")
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "authentication services unavailable"})
		return ctx, false
	}

	if scope != "" && !allowRequest(h.Limiter, r, scope) {
		logging.FromContext(ctx).Warn("auth rate limit exceeded", "scope", scope)
		respondJSON(ctx, w, http.StatusTooManyRequests, map[string]string{"error": "too many requests"})
		return ctx, false
	}
	return ctx, true
}

// rememberUser records the last signed-in user's id on this device.
func (h AuthHandler) rememberUser(ctx context.Context, idToken string) {
	if h.Device == nil || idToken == "" {
		return
	}
	logger := logging.FromContext(ctx)

	sub, err := identity.SubjectFromIDToken(idToken)
	if err != nil {
		logger.Warn("could not read user id from id token", "error", err)
		return
	}
	if err := h.Device.Set(localstore.KeyUserID, sub); err != nil {
		logger.Error("failed to persist user id", "error", err)
	}
}

type verifyRequest struct {
	Identifier string `json:"identifier"`
	Email      string `json:"email"`
	Code       string `json:"code"`
}

type navigationResponse struct {
	Route   authflow.Route    `json:"route"`
	Params  map[string]string `json:"params,omitempty"`
	DelayMS int64             `json:"delayMs,omitempty"`
}

type tokenResponse struct {
	AccessToken  string    `json:"accessToken"`
	IDToken      string    `json:"idToken,omitempty"`
	RefreshToken string    `json:"refreshToken,omitempty"`
	TokenType    string    `json:"tokenType,omitempty"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

type flowResponse struct {
	State        string              `json:"state"`
	Verification string              `json:"verification,omitempty"`
	Message      string              `json:"message,omitempty"`
	Field        string              `json:"field,omitempty"`
	Navigation   *navigationResponse `json:"navigation,omitempty"`
	Tokens       *tokenResponse      `json:"tokens,omitempty"`
}

func renderResult(res authflow.Result) flowResponse {
	out := flowResponse{State: res.State.String(), Message: res.Message}
	if res.State == authflow.StateVerificationPending {
		out.Verification = res.Verification.String()
	}
	var verr *authflow.ValidationError
	if errors.As(res.Err, &verr) {
		out.Field = verr.Field
	}
	if nav := res.Navigation; nav != nil {
		out.Navigation = &navigationResponse{Route: nav.Route, Params: nav.Params, DelayMS: nav.Delay.Milliseconds()}
	}
	if t := res.Tokens; t != nil {
		out.Tokens = &tokenResponse{
			AccessToken:  t.AccessToken,
			IDToken:      t.IDToken,
			RefreshToken: t.RefreshToken,
			TokenType:    t.TokenType,
			ExpiresAt:    t.ExpiresAt,
		}
	}
	return out
}

// resultStatus picks the HTTP status for a settled flow result.
func resultStatus(res authflow.Result) int {
	if res.Err == nil {
		return http.StatusOK
	}

	var (
		verr *authflow.ValidationError
		serr *authflow.StateError
		perr *identity.ProviderError
	)
	switch {
	case errors.As(res.Err, &verr):
		return http.StatusBadRequest
	case errors.As(res.Err, &serr):
		return http.StatusConflict
	case errors.Is(res.Err, authflow.ErrInFlight):
		return http.StatusConflict
	case errors.As(res.Err, &perr):
		switch perr.Kind {
		case identity.KindUserNotFound, identity.KindNotAuthorized:
			return http.StatusUnauthorized
		case identity.KindUserNotConfirmed:
			return http.StatusForbidden
		case identity.KindUsernameTaken:
			return http.StatusConflict
		case identity.KindInvalidPassword, identity.KindInvalidParameter, identity.KindCodeMismatch, identity.KindCodeExpired:
			return http.StatusBadRequest
		}
		return http.StatusBadGateway
	}
	return http.StatusBadGateway
}

func respondResult(ctx context.Context, w http.ResponseWriter, res authflow.Result) {
	respondJSON(ctx, w, resultStatus(res), renderResult(res))
}

func respondFlowError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, authflow.ErrInFlight):
		respondJSON(ctx, w, http.StatusConflict, map[string]string{"error": "a request for this account is already in progress"})
	case errors.Is(err, authflow.ErrAbandoned):
		respondJSON(ctx, w, http.StatusConflict, map[string]string{"error": "the request was cancelled"})
	default:
		logging.FromContext(ctx).Error("auth flow failed", "error", err)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": authflow.MsgUnexpected})
	}
}

func respondJSON(ctx context.Context, w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logging.FromContext(ctx).Error("encode response body", "status", status, "error", err)
		return
	}

	logger := logging.FromContext(ctx)
	switch {
	case status >= http.StatusInternalServerError:
		logger.Error("request failed", "status", status, "response", payload)
	case status >= http.StatusBadRequest:
		logger.Warn("request returned client error", "status", status, "response", payload)
	}
}
