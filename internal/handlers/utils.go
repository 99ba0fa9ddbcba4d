package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/kvallam/MedVaultAPI/internal/adapter"
	"github.com/kvallam/MedVaultAPI/internal/config"
	"github.com/kvallam/MedVaultAPI/internal/domain/faults"
	"github.com/kvallam/MedVaultAPI/internal/domain/recordModel"
	"github.com/kvallam/MedVaultAPI/internal/middleware"
)

func traceIdFrom(r *http.Request) string {
	trace, _ := r.Context().Value(config.TRACE_ID_KEY).(string)
	return trace
}

// callerFrom returns the authenticated caller or writes a 401. The middleware
// chain always sets the caller on protected routes; a miss means the route was
// wired without it.
func (h *Handler) callerFrom(w http.ResponseWriter, r *http.Request) (recordModel.Caller, bool) {
	caller, ok := middleware.CallerFromContext(r.Context())
	if !ok {
		h.logger.Error("no caller on request context", "path", r.URL.Path)
		h.writeErrorCode(w, r, http.StatusUnauthorized, "missing caller identity")
	}
	return caller, ok
}

func (h *Handler) writeJsonResponse(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("could not encode response", "error", err)
	}
}

// writeError maps a pipeline error onto its HTTP status. Validation and access
// errors carry their message through; everything else gets a generic body so
// dependency internals stay out of responses.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := faults.HTTPStatus(err)
	message := err.Error()
	if status >= http.StatusInternalServerError {
		message = http.StatusText(status)
		h.logger.Error("request failed", "path", r.URL.Path, "error", err, "traceId", traceIdFrom(r))
	}
	h.writeJsonResponse(w, status, adapter.ToError(status, message, traceIdFrom(r)))
}

func (h *Handler) writeErrorCode(w http.ResponseWriter, r *http.Request, code int, message string) {
	h.writeJsonResponse(w, code, adapter.ToError(code, message, traceIdFrom(r)))
}
