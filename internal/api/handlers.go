package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mattjoyce/kpmd/internal/auth"
	"github.com/mattjoyce/kpmd/internal/kpm"
)

// maxCallBody bounds a call request body; the largest staged field is 1 KiB.
const maxCallBody = 64 << 10

// handleHealthz handles GET /healthz (no auth).
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, HealthzResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		HooksAttached: s.hooks.Attached(),
	})
}

// handleHooks handles GET /v1/hooks.
func (s *Server) handleHooks(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, HooksResponse{
		Attached: s.hooks.Attached(),
		Hooks:    s.hooks.Status(),
	})
}

// handleCall handles POST /v1/kpm/{command}. The body is staged into a fresh
// caller address space and dispatched through the envelope entry point, so
// HTTP callers see exactly what any other caller would.
func (s *Server) handleCall(w http.ResponseWriter, r *http.Request) {
	code, err := kpm.ParseCode(chi.URLParam(r, "command"))
	if err != nil {
		s.writeError(w, http.StatusNotFound, err.Error())
		return
	}

	principal, _ := auth.PrincipalFromContext(r.Context())
	if code.Mutating() && !principal.Allows(auth.ScopeWrite) {
		s.writeError(w, http.StatusForbidden, "insufficient scope for "+code.String())
		return
	}

	var body CallRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxCallBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	if body.Capacity < 0 || body.Capacity > kpm.MaxCapacity {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("capacity must be between 0 and %d", kpm.MaxCapacity))
		return
	}

	ctx := r.Context()
	if s.config.CallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.CallTimeout)
		defer cancel()
	}

	caller := "api:" + middleware.GetReqID(r.Context())
	oc, err := kpm.Invoke(ctx, s.caller, caller, s.config.AddressLimit, kpm.Request{
		Code:     code,
		Path:     body.Path,
		Name:     body.Name,
		Args:     body.Args,
		Capacity: body.Capacity,
	})
	if err != nil {
		s.logger.Error("dispatch failed", "command", code.String(), "caller", caller, "error", err)
		s.writeError(w, http.StatusInternalServerError, "dispatch failed: "+err.Error())
		return
	}

	respondJSON(w, http.StatusOK, CallResponse{
		Command:     code.String(),
		ControlCode: uint64(code),
		Result:      oc.Result,
		Errno:       oc.Errno,
		Output:      string(oc.Output),
	})
}

func (s *Server) handleOpenAPI(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, buildOpenAPIDoc())
}

func respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response
func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, ErrorResponse{Error: message})
}
