package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/MrEthical07/siteauth"
	"github.com/MrEthical07/siteauth/middleware"
	"github.com/MrEthical07/siteauth/rbac"
)

func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.bodySizeLimitMiddleware)
	r.Use(middleware.ClientIP)

	r.Get("/healthz", s.handleHealth)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}

	session := middleware.Options{}
	resetExempt := middleware.Options{ResetExempt: true}

	r.Route("/api/auth", func(r chi.Router) {
		r.With(middleware.RateLimit(s.engine, siteauth.BudgetLogin)).Post("/login", s.handleLogin)
		r.With(middleware.RateLimit(s.engine, siteauth.BudgetGeneral)).Post("/refresh", s.handleRefresh)
		r.Get("/password-policy", s.handlePasswordPolicy)

		r.With(middleware.RateLimit(s.engine, siteauth.BudgetReset)).Post("/forgot-password", s.handleForgotPassword)
		r.With(middleware.RateLimit(s.engine, siteauth.BudgetResetConfirm)).Post("/reset-password", s.handleResetPassword)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RateLimit(s.engine, siteauth.BudgetGeneral))
			r.Post("/otp/request", s.handleOTPRequest)
			r.Post("/otp/verify", s.handleOTPVerify)
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.Authenticate(s.engine, session))
			r.Get("/me", s.handleMe)
			r.Get("/sessions", s.handleSessions)
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.Authenticate(s.engine, resetExempt))
			r.Post("/logout", s.handleLogout)
			r.Post("/change-password", s.handleChangePassword)
			r.Post("/complete-reset", s.handleCompleteReset)
		})
	})

	r.Route("/api/admin", func(r chi.Router) {
		r.With(middleware.Authenticate(s.engine, middleware.Options{MinRole: rbac.RoleEditor})).
			Get("/access", s.handleAdminAccess)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Authenticate(s.engine, middleware.Options{AdminOnly: true}))
			r.Post("/users/{id}/reset-password", s.handleAdminResetPassword)
		})
	})

	return r
}
