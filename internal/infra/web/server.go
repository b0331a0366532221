package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"license-activation/internal/infra/logging"
	"license-activation/internal/infra/metrics"
	"license-activation/internal/usecase"
)

type Server struct {
	adminUC usecase.AdminUseCase
	auth    *AuthManager
	creds   Credentials
	log     *zerolog.Logger
}

func NewServer(adminUC usecase.AdminUseCase, auth *AuthManager, creds Credentials, logger *zerolog.Logger) *Server {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	l := logger.With().Str("component", "AdminAPI").Logger()
	return &Server{adminUC: adminUC, auth: auth, creds: creds, log: &l}
}

// Routes returns the admin API. Mount it under /admin; paths are relative.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		r.Post("/login", s.handleLogin)
		r.Post("/logout", s.handleLogout)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)
			r.Get("/codes", s.handleListCodes)
			r.Post("/codes", s.handleAddCodes)
			r.Post("/codes/generate", s.handleGenerateCodes)
			r.Delete("/codes/{type}/{code}", s.handleRemoveCode)
		})
	})
	return r
}

// authMiddleware accepts the session cookie or a Bearer token.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := s.auth.ParseFromRequest(r)
		if err != nil {
			metrics.IncAdminCommand("session", "unauthorized")
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		ctx := logging.WithAdmin(r.Context(), claims.Subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
