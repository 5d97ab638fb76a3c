package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/MrEthical07/siteauth"
	"github.com/MrEthical07/siteauth/middleware"
	"github.com/MrEthical07/siteauth/ratelimit"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	User                 siteauth.UserSummary    `json:"user"`
	Session              siteauth.SessionSummary `json:"session"`
	RequirePasswordReset bool                    `json:"require_password_reset"`
	CSRFToken            string                  `json:"csrf_token"`
	AccessExpiresAt      time.Time               `json:"access_expires_at"`
}

// tokenResponse answers every call that issues a new session. The tokens
// themselves travel in cookies.
type tokenResponse struct {
	CSRFToken        string    `json:"csrf_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

type meResponse struct {
	UserID               string `json:"user_id"`
	Email                string `json:"email"`
	Role                 string `json:"role"`
	SessionID            string `json:"session_id"`
	RequirePasswordReset bool   `json:"require_password_reset"`
}

type emailRequest struct {
	Email string `json:"email"`
}

type resetPasswordRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

type otpRequest struct {
	Email   string `json:"email"`
	Purpose string `json:"purpose"`
	Code    string `json:"code,omitempty"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

type completeResetRequest struct {
	NewPassword string `json:"new_password"`
}

type policyResponse struct {
	MinLength      int  `json:"min_length"`
	RequireUpper   bool `json:"require_upper"`
	RequireLower   bool `json:"require_lower"`
	RequireDigit   bool `json:"require_digit"`
	RequireSpecial bool `json:"require_special"`
}

// acceptedMessage is returned by forgot-password whatever the outcome of the
// account lookup.
const acceptedMessage = "if the address belongs to an account, a reset link has been sent"

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := s.engine.Login(r.Context(), req.Email, req.Password, deviceInfo(r))
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}

	middleware.SetSessionCookies(w, result.Tokens, s.engine.CookieConfig())
	middleware.WriteJSON(w, http.StatusOK, loginResponse{
		User:                 result.User,
		Session:              result.Session,
		RequirePasswordReset: result.RequirePasswordReset,
		CSRFToken:            result.Tokens.CSRFToken,
		AccessExpiresAt:      result.Tokens.AccessExpiresAt,
	})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(middleware.RefreshCookie)
	if err != nil || cookie.Value == "" {
		middleware.WriteError(w, http.StatusUnauthorized, middleware.CodeUnauthorized, "authentication required")
		return
	}
	if !middleware.ValidCSRF(r) {
		middleware.WriteError(w, http.StatusForbidden, middleware.CodeCSRFInvalid, "invalid csrf token")
		return
	}

	tokens, err := s.engine.RefreshSession(r.Context(), cookie.Value)
	if err != nil {
		if errors.Is(err, siteauth.ErrRefreshInvalid) {
			middleware.ClearSessionCookies(w, s.engine.CookieConfig())
		}
		s.writeEngineError(w, r, err)
		return
	}

	s.writeTokens(w, tokens)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	p, _ := middleware.PrincipalFromContext(r.Context())

	err := s.engine.Logout(r.Context(), p.SessionID)
	if err != nil && !errors.Is(err, siteauth.ErrSessionNotFound) {
		s.writeEngineError(w, r, err)
		return
	}

	middleware.ClearSessionCookies(w, s.engine.CookieConfig())
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := s.engine.RequestPasswordReset(r.Context(), req.Email); err != nil {
		s.writeEngineError(w, r, err)
		return
	}

	middleware.WriteJSON(w, http.StatusAccepted, map[string]string{"message": acceptedMessage})
}

func (s *Server) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := s.engine.ConfirmPasswordReset(r.Context(), req.Token, req.Password); err != nil {
		s.writeEngineError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleOTPRequest(w http.ResponseWriter, r *http.Request) {
	var req otpRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := s.engine.RequestOTP(r.Context(), req.Email, req.Purpose); err != nil {
		s.writeEngineError(w, r, err)
		return
	}

	middleware.WriteJSON(w, http.StatusAccepted, map[string]string{"message": "verification code sent"})
}

func (s *Server) handleOTPVerify(w http.ResponseWriter, r *http.Request) {
	var req otpRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := s.engine.VerifyOTP(r.Context(), req.Email, req.Purpose, req.Code); err != nil {
		s.writeEngineError(w, r, err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]bool{"verified": true})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	p, _ := middleware.PrincipalFromContext(r.Context())
	middleware.WriteJSON(w, http.StatusOK, meResponse{
		UserID:               p.UserID,
		Email:                p.Email,
		Role:                 p.Role.String(),
		SessionID:            p.SessionID,
		RequirePasswordReset: p.RequirePasswordReset,
	})
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	p, _ := middleware.PrincipalFromContext(r.Context())

	sessions, err := s.engine.ListSessions(r.Context(), p.UserID, p.SessionID)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	if sessions == nil {
		sessions = []siteauth.SessionSummary{}
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	p, _ := middleware.PrincipalFromContext(r.Context())

	tokens, err := s.engine.ChangePassword(r.Context(), p, req.CurrentPassword, req.NewPassword, deviceInfo(r))
	if err != nil {
		// The session is fine; only the current password was wrong.
		if errors.Is(err, siteauth.ErrInvalidCredentials) {
			middleware.WriteError(w, http.StatusBadRequest, codeInvalidCurrentPassword, "current password is incorrect")
			return
		}
		s.writeEngineError(w, r, err)
		return
	}

	s.writeTokens(w, tokens)
}

func (s *Server) handleCompleteReset(w http.ResponseWriter, r *http.Request) {
	var req completeResetRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	p, _ := middleware.PrincipalFromContext(r.Context())

	tokens, err := s.engine.CompleteForcedReset(r.Context(), p, req.NewPassword, deviceInfo(r))
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}

	s.writeTokens(w, tokens)
}

func (s *Server) handlePasswordPolicy(w http.ResponseWriter, _ *http.Request) {
	p := s.engine.PasswordPolicy()
	middleware.WriteJSON(w, http.StatusOK, policyResponse{
		MinLength:      p.MinLength,
		RequireUpper:   p.RequireUpper,
		RequireLower:   p.RequireLower,
		RequireDigit:   p.RequireDigit,
		RequireSpecial: p.RequireSpecial,
	})
}

func (s *Server) writeTokens(w http.ResponseWriter, tokens *siteauth.SessionTokens) {
	middleware.SetSessionCookies(w, tokens, s.engine.CookieConfig())
	middleware.WriteJSON(w, http.StatusOK, tokenResponse{
		CSRFToken:        tokens.CSRFToken,
		AccessExpiresAt:  tokens.AccessExpiresAt,
		RefreshExpiresAt: tokens.RefreshExpiresAt,
	})
}

func deviceInfo(r *http.Request) siteauth.DeviceInfo {
	return siteauth.DeviceInfo{
		UserAgent: r.UserAgent(),
		IP:        ratelimit.ClientIdentifier(r),
	}
}
