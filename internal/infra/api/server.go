package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"license-activation/internal/domain"
	"license-activation/internal/domain/model"
	"license-activation/internal/infra/logging"
	"license-activation/internal/infra/metrics"
	"license-activation/internal/usecase"
)

const maxBodyBytes = 16 << 10

// Options controls optional routes on the public router.
type Options struct {
	RequestTimeout time.Duration
	// Metrics exposes /metrics when non-nil.
	Metrics http.Handler
	// Admin is mounted under /admin when non-nil.
	Admin http.Handler
}

// Server is the public activation API used by client applications.
type Server struct {
	activations usecase.ActivationUseCase
	log         *zerolog.Logger
}

func NewServer(activations usecase.ActivationUseCase, logger *zerolog.Logger) *Server {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	l := logger.With().Str("component", "PublicAPI").Logger()
	return &Server{activations: activations, log: &l}
}

// Router builds the full handler tree with the standard middleware chain.
func (s *Server) Router(opts Options) http.Handler {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 15 * time.Second
	}
	r := chi.NewRouter()
	r.Use(TraceID(), Recover(s.log), RequestLog(s.log), Timeout(opts.RequestTimeout))

	r.Get("/health", s.handleHealth)
	r.Get("/status", s.handleStatus)
	r.Post("/activate", s.handleActivate)
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}
	if opts.Admin != nil {
		r.Mount("/admin", opts.Admin)
	}
	r.NotFound(s.handleRoot)
	r.MethodNotAllowed(s.handleRoot)
	return r
}

type statusResponse struct {
	Success bool `json:"success"`
	model.ActivationStatus
	Message string `json:"message"`
}

type activateRequest struct {
	DeviceID   string `json:"deviceId"`
	Code       string `json:"code"`
	BundleID   string `json:"bundleId"`
	DeviceName string `json:"deviceName"`
}

type errorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Kind    string `json:"kind"`
}

func failure(msg, kind string) errorResponse {
	return errorResponse{Success: false, Message: msg, Kind: kind}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleRoot answers every unrouted request so probes get a JSON body.
func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "message": "activation service up"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	st, err := s.activations.Status(r.Context(), q.Get("deviceId"), q.Get("bundleId"))
	if err != nil {
		metrics.IncStatusQuery("error")
		s.writeError(w, r, err)
		return
	}

	resp := statusResponse{Success: true, ActivationStatus: *st}
	switch {
	case st.Code == "":
		metrics.IncStatusQuery("none")
		resp.Message = "no activation stored for this device"
	case !st.Active:
		metrics.IncStatusQuery("inactive")
		resp.Message = "activation expired; enter a new code"
	default:
		metrics.IncStatusQuery("active")
		resp.Message = "activation is valid"
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleActivate(w http.ResponseWriter, r *http.Request) {
	var req activateRequest
	// a missing or malformed body is treated as empty, which fails validation
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		req = activateRequest{}
	}

	res, err := s.activations.Activate(r.Context(), usecase.ActivateRequest{
		DeviceID:   req.DeviceID,
		Code:       req.Code,
		BundleID:   req.BundleID,
		DeviceName: req.DeviceName,
	})
	if err != nil {
		metrics.IncActivation(domain.KindOf(err))
		s.writeError(w, r, err)
		return
	}

	resp := statusResponse{Success: true, ActivationStatus: res.ActivationStatus}
	if res.Reentry {
		metrics.IncActivation("reentry")
		resp.Message = "already activated on this device and still valid"
	} else {
		metrics.IncActivation("created")
		resp.Message = fmt.Sprintf("activated; %s code valid from now", res.Type)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := domain.KindOf(err)
	code := StatusCode(kind)
	msg := err.Error()
	if code == http.StatusInternalServerError {
		l := logging.With(r.Context(), s.log)
		l.Error().Err(err).Str("kind", kind).Msg("request failed")
		msg = "server error"
	}
	writeJSON(w, code, failure(msg, kind))
}

// StatusCode maps an error kind onto the HTTP status returned to clients.
func StatusCode(kind string) int {
	switch kind {
	case domain.KindInvalidInput, domain.KindInvalidCode:
		return http.StatusBadRequest
	case domain.KindForeignDeviceReuse, domain.KindCrossApplicationReuse, domain.KindExpiredActivation:
		return http.StatusForbidden
	case domain.KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
