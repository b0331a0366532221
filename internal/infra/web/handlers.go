package web

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"license-activation/internal/domain"
	"license-activation/internal/domain/model"
	"license-activation/internal/infra/logging"
	"license-activation/internal/infra/metrics"
)

const maxBodyBytes = 1 << 20

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type addCodesRequest struct {
	Type  string   `json:"type"`
	Codes []string `json:"codes"`
}

type generateRequest struct {
	Type  string `json:"type"`
	Count int    `json:"count"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !s.creds.Verify(req.Username, req.Password) {
		metrics.IncAdminCommand("login", "unauthorized")
		s.log.Warn().Str("username", req.Username).Msg("admin login rejected")
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	token, err := s.auth.Mint(w, req.Username)
	if err != nil {
		metrics.IncAdminCommand("login", "error")
		s.log.Error().Err(err).Msg("mint session")
		writeError(w, http.StatusInternalServerError, "could not create session")
		return
	}
	metrics.IncAdminCommand("login", "ok")
	s.log.Info().Str("username", req.Username).Msg("admin logged in")
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "token": token})
}

func (s *Server) handleLogout(w http.ResponseWriter, _ *http.Request) {
	s.auth.Clear(w)
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleListCodes(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	ov, err := s.adminUC.Overview(r.Context(), limit, q.Get("cursor"))
	if err != nil {
		s.fail(w, r, "list", err)
		return
	}
	metrics.IncAdminCommand("list", "ok")
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": ov})
}

func (s *Server) handleAddCodes(w http.ResponseWriter, r *http.Request) {
	var req addCodesRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	tier, err := model.ParseTier(req.Type)
	if err != nil {
		s.fail(w, r, "add", err)
		return
	}
	added, err := s.adminUC.AddCodes(r.Context(), tier, req.Codes)
	if err != nil {
		s.fail(w, r, "add", err)
		return
	}
	metrics.IncAdminCommand("add", "ok")
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "type": tier, "added": nonNil(added)})
}

func (s *Server) handleRemoveCode(w http.ResponseWriter, r *http.Request) {
	tier, err := model.ParseTier(chi.URLParam(r, "type"))
	if err != nil {
		s.fail(w, r, "remove", err)
		return
	}
	code := chi.URLParam(r, "code")
	if err := s.adminUC.RemoveCode(r.Context(), tier, code); err != nil {
		s.fail(w, r, "remove", err)
		return
	}
	metrics.IncAdminCommand("remove", "ok")
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "type": tier, "code": code})
}

func (s *Server) handleGenerateCodes(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	tier, err := model.ParseTier(req.Type)
	if err != nil {
		s.fail(w, r, "generate", err)
		return
	}
	codes, err := s.adminUC.GenerateCodes(r.Context(), tier, req.Count)
	if err != nil {
		s.fail(w, r, "generate", err)
		return
	}
	metrics.IncAdminCommand("generate", "ok")
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "type": tier, "codes": codes})
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, command string, err error) {
	metrics.IncAdminCommand(command, "error")
	switch domain.KindOf(err) {
	case domain.KindInvalidInput:
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		l := logging.With(r.Context(), s.log)
		l.Error().Err(err).Str("command", command).Msg("admin command failed")
		writeError(w, http.StatusInternalServerError, "server error")
	}
}

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("empty body")
		}
		return err
	}
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]any{"success": false, "message": msg})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
