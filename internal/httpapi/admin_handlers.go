package httpapi

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/MrEthical07/siteauth/middleware"
	"github.com/MrEthical07/siteauth/rbac"
)

type adminResetRequest struct {
	TemporaryPassword string `json:"temporary_password"`
}

type accessResponse struct {
	Path    string `json:"path"`
	Role    string `json:"role"`
	Allowed bool   `json:"allowed"`
}

func (s *Server) handleAdminResetPassword(w http.ResponseWriter, r *http.Request) {
	var req adminResetRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	admin, _ := middleware.PrincipalFromContext(r.Context())

	if err := s.engine.AdminResetPassword(r.Context(), admin, chi.URLParam(r, "id"), req.TemporaryPassword); err != nil {
		s.writeEngineError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleAdminAccess answers whether the caller's role may open an admin page,
// so the site can hide navigation it would refuse anyway.
func (s *Server) handleAdminAccess(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimSpace(r.URL.Query().Get("path"))
	if path == "" {
		middleware.WriteError(w, http.StatusBadRequest, codeInvalidInput, "path is required")
		return
	}
	p, _ := middleware.PrincipalFromContext(r.Context())

	middleware.WriteJSON(w, http.StatusOK, accessResponse{
		Path:    path,
		Role:    p.Role.String(),
		Allowed: rbac.CanAccessRoute(p.Role, path),
	})
}
