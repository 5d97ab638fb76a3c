package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/MrEthical07/siteauth"
	"github.com/MrEthical07/siteauth/middleware"
)

const (
	codeInvalidInput           = "invalid_input"
	codeInvalidCredentials     = "invalid_credentials"
	codeInvalidCurrentPassword = "invalid_current_password"
	codePasswordPolicy         = "password_policy"
	codePasswordReuse          = "password_reuse"
	codeInvalidToken           = "invalid_token"
	codeInvalidCode            = "invalid_code"
	codeSelfReset              = "self_reset"
	codeNotFound               = "not_found"
	codeDeliveryFailed         = "delivery_failed"
	codeInternal               = "internal_error"
)

// policyError is the 400 body for a rejected password; it lists every
// violated rule.
type policyError struct {
	middleware.Error
	Violations []string `json:"violations"`
}

// writeEngineError maps an engine error onto a status code. Unexpected
// errors are logged and answered with a generic 500.
func (s *Server) writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	var policy *siteauth.PolicyError
	if errors.As(err, &policy) {
		middleware.WriteJSON(w, http.StatusBadRequest, policyError{
			Error: middleware.Error{
				Status:  http.StatusBadRequest,
				Code:    codePasswordPolicy,
				Message: siteauth.ErrPasswordPolicy.Error(),
			},
			Violations: policy.Violations,
		})
		return
	}

	var limited *siteauth.RateLimitError
	if errors.As(err, &limited) {
		middleware.WriteRateLimited(w, limited.RetryAfter)
		return
	}

	switch {
	case errors.Is(err, siteauth.ErrInvalidInput):
		middleware.WriteError(w, http.StatusBadRequest, codeInvalidInput, "invalid input")
	case errors.Is(err, siteauth.ErrPasswordReuse):
		middleware.WriteError(w, http.StatusBadRequest, codePasswordReuse, err.Error())
	case errors.Is(err, siteauth.ErrResetTokenInvalid):
		middleware.WriteError(w, http.StatusUnauthorized, codeInvalidToken, siteauth.ErrResetTokenInvalid.Error())
	case errors.Is(err, siteauth.ErrOTPInvalid):
		middleware.WriteError(w, http.StatusUnauthorized, codeInvalidCode, siteauth.ErrOTPInvalid.Error())
	case errors.Is(err, siteauth.ErrInvalidCredentials):
		middleware.WriteError(w, http.StatusUnauthorized, codeInvalidCredentials, siteauth.ErrInvalidCredentials.Error())
	case errors.Is(err, siteauth.ErrUnauthorized), errors.Is(err, siteauth.ErrRefreshInvalid):
		middleware.WriteError(w, http.StatusUnauthorized, middleware.CodeUnauthorized, "authentication required")
	case errors.Is(err, siteauth.ErrSelfReset):
		middleware.WriteError(w, http.StatusForbidden, codeSelfReset, siteauth.ErrSelfReset.Error())
	case errors.Is(err, siteauth.ErrForbidden):
		middleware.WriteError(w, http.StatusForbidden, middleware.CodeForbidden, "forbidden")
	case errors.Is(err, siteauth.ErrPasswordResetRequired):
		middleware.WriteError(w, http.StatusForbidden, middleware.CodePasswordResetRequired, siteauth.ErrPasswordResetRequired.Error())
	case errors.Is(err, siteauth.ErrUserNotFound), errors.Is(err, siteauth.ErrPasswordResetDisabled):
		middleware.WriteError(w, http.StatusNotFound, codeNotFound, "not found")
	case errors.Is(err, siteauth.ErrDeliveryFailed):
		middleware.WriteError(w, http.StatusBadGateway, codeDeliveryFailed, "could not send email, try again later")
	default:
		s.logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "request_id", requestID(r.Context()), "error", err)
		middleware.WriteError(w, http.StatusInternalServerError, codeInternal, "internal server error")
	}
}

// decodeJSON reads a single JSON object into dst. On a bad body the error
// response is already written and false is returned.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			middleware.WriteError(w, http.StatusRequestEntityTooLarge, codeInvalidInput, "request body too large")
			return false
		}
		middleware.WriteError(w, http.StatusBadRequest, codeInvalidInput, "invalid request body")
		return false
	}
	return true
}
