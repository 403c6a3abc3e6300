package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/hlog"

	"github.com/MrEthical07/authgate"
	"github.com/MrEthical07/authgate/middleware"
)

const (
	msgVerificationSent  = "Verification code sent to email"
	msgAlreadyVerified   = "Account already verified"
	msgNewCodeSent       = "New verification code sent to email"
	msgResetRequested    = "If an account exists with this email, a reset code has been sent."
	msgResetSuccessful   = "Password reset successful"
	detailInvalidBody    = "Invalid request body"
	detailUserExists     = "User with this email already exists"
	detailInvalidOTP     = "Invalid or expired OTP code"
	detailBadCredentials = "Incorrect email or password"
	detailInactiveUser   = "Inactive user"
	detailNotVerified    = "Account not verified. Please verify your email."
	detailUserNotFound   = "User not found"
	detailUnavailable    = "Service temporarily unavailable"
	detailInternal       = "Internal server error"
	detailMissingEmail   = "email query parameter is required"
	healthRateLimitOn    = "enabled"
	healthRateLimitOff   = "disabled"
)

type handler struct {
	svc     Service
	maxBody int64
}

type signupRequest struct {
	Email      string `json:"email"`
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	University string `json:"university"`
	Password   string `json:"password"`
}

type verifyOTPRequest struct {
	Email   string `json:"email"`
	OTPCode string `json:"otp_code"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

type resetPasswordRequest struct {
	Email       string `json:"email"`
	OTPCode     string `json:"otp_code"`
	NewPassword string `json:"new_password"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

type profileResponse struct {
	ID                string    `json:"id"`
	Email             string    `json:"email"`
	FirstName         string    `json:"first_name"`
	LastName          string    `json:"last_name"`
	University        string    `json:"university"`
	IsVerified        bool      `json:"is_verified"`
	IsStudentVerified bool      `json:"is_student_verified"`
	IsActive          bool      `json:"is_active"`
	CreatedAt         time.Time `json:"created_at"`
}

func (h *handler) healthz(w http.ResponseWriter, _ *http.Request) {
	state := healthRateLimitOff
	if h.svc != nil && h.svc.RateLimitEnabled() {
		state = healthRateLimitOn
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "rate_limit": state})
}

func (h *handler) signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if !h.decode(w, r, &req) {
		return
	}
	err := h.svc.Signup(r.Context(), authgate.SignupRequest{
		Email:      req.Email,
		FirstName:  req.FirstName,
		LastName:   req.LastName,
		University: req.University,
		Password:   req.Password,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, messageResponse{Message: msgVerificationSent})
}

func (h *handler) verifyOTP(w http.ResponseWriter, r *http.Request) {
	var req verifyOTPRequest
	if !h.decode(w, r, &req) {
		return
	}
	tok, err := h.svc.VerifyOTP(r.Context(), req.Email, req.OTPCode)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTokenResponse(tok))
}

func (h *handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !h.decode(w, r, &req) {
		return
	}
	tok, err := h.svc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTokenResponse(tok))
}

// resendOTP takes the address from the query string.
func (h *handler) resendOTP(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("email")
	if email == "" {
		middleware.WriteDetail(w, http.StatusUnprocessableEntity, detailMissingEmail)
		return
	}
	res, err := h.svc.ResendOTP(r.Context(), email)
	if err != nil {
		writeError(w, r, err)
		return
	}
	msg := msgNewCodeSent
	if res.AlreadyVerified {
		msg = msgAlreadyVerified
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: msg})
}

func (h *handler) forgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.svc.ForgotPassword(r.Context(), req.Email); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: msgResetRequested})
}

func (h *handler) resetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.svc.ResetPassword(r.Context(), req.Email, req.OTPCode, req.NewPassword); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: msgResetSuccessful})
}

func (h *handler) me(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		middleware.WriteDetail(w, http.StatusUnauthorized, middleware.UnauthorizedDetail)
		return
	}
	p, err := h.svc.Me(r.Context(), claims.Subject)
	if err != nil {
		if errors.Is(err, authgate.ErrUserNotFound) {
			// The token outlived its account.
			w.Header().Set("WWW-Authenticate", "Bearer")
			middleware.WriteDetail(w, http.StatusUnauthorized, middleware.UnauthorizedDetail)
			return
		}
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profileResponse{
		ID:                p.ID,
		Email:             p.Email,
		FirstName:         p.FirstName,
		LastName:          p.LastName,
		University:        p.University,
		IsVerified:        p.Verified,
		IsStudentVerified: p.StudentVerified,
		IsActive:          p.Active,
		CreatedAt:         p.CreatedAt,
	})
}

func (h *handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	body := http.MaxBytesReader(w, r.Body, h.maxBody)
	dec := json.NewDecoder(body)
	if err := dec.Decode(dst); err != nil {
		middleware.WriteDetail(w, http.StatusUnprocessableEntity, detailInvalidBody)
		return false
	}
	if _, err := dec.Token(); err != io.EOF {
		middleware.WriteDetail(w, http.StatusUnprocessableEntity, detailInvalidBody)
		return false
	}
	return true
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var rle *authgate.RateLimitError
	switch {
	case errors.As(err, &rle):
		middleware.WriteRateLimited(w, rle.RetryAfter.Seconds())
	case errors.Is(err, authgate.ErrInvalidRequest), errors.Is(err, authgate.ErrPasswordPolicy):
		middleware.WriteDetail(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, authgate.ErrUserExists):
		middleware.WriteDetail(w, http.StatusBadRequest, detailUserExists)
	case errors.Is(err, authgate.ErrInvalidOTP):
		middleware.WriteDetail(w, http.StatusBadRequest, detailInvalidOTP)
	case errors.Is(err, authgate.ErrInvalidCredentials):
		w.Header().Set("WWW-Authenticate", "Bearer")
		middleware.WriteDetail(w, http.StatusUnauthorized, detailBadCredentials)
	case errors.Is(err, authgate.ErrAccountInactive):
		middleware.WriteDetail(w, http.StatusUnauthorized, detailInactiveUser)
	case errors.Is(err, authgate.ErrAccountUnverified):
		middleware.WriteDetail(w, http.StatusForbidden, detailNotVerified)
	case errors.Is(err, authgate.ErrUserNotFound):
		middleware.WriteDetail(w, http.StatusNotFound, detailUserNotFound)
	case errors.Is(err, authgate.ErrUserStoreUnavailable),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		hlog.FromRequest(r).Error().Err(err).Msg("request failed")
		middleware.WriteDetail(w, http.StatusServiceUnavailable, detailUnavailable)
	default:
		hlog.FromRequest(r).Error().Err(err).Msg("request failed")
		middleware.WriteDetail(w, http.StatusInternalServerError, detailInternal)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func toTokenResponse(tok *authgate.TokenResult) tokenResponse {
	return tokenResponse{
		AccessToken: tok.AccessToken,
		TokenType:   tok.TokenType,
	}
}
