package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/MrEthical07/siteauth/middleware"
)

const healthTimeout = 2 * time.Second

type healthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	err := s.engine.Ping(ctx)
	if err == nil && s.ready != nil {
		err = s.ready(ctx)
	}
	if err != nil {
		s.logger.WarnContext(ctx, "health check failed", "error", err)
		middleware.WriteJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "unavailable", Version: s.version})
		return
	}

	middleware.WriteJSON(w, http.StatusOK, healthResponse{Status: "ok", Version: s.version})
}
