package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/smukkama/fleet-analytics/internal/model"
)

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// writeJSON marshals v before writing the status. A value that cannot be
// encoded is logged and answered with a 500.
func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, v interface{}) {
	body, err := json.Marshal(v)
	if err != nil {
		s.logger.Error("api: encode response failed", "method", r.Method, "path", r.URL.Path, "err", err)
		status = http.StatusInternalServerError
		body, _ = json.Marshal(errorResponse{Error: "internal error", Kind: "internal"})
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(append(body, '\n')); err != nil {
		s.logger.Debug("api: write response failed", "path", r.URL.Path, "err", err)
	}
}

// writeError maps engine errors onto HTTP statuses: validation failures are
// the caller's fault (400), data that cannot be processed is 422, and
// anything else is logged and reported as 500.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, model.ErrValidation):
		s.writeJSON(w, r, http.StatusBadRequest, errorResponse{Error: err.Error(), Kind: "validation"})
	case errors.Is(err, model.ErrDataProcessing):
		s.writeJSON(w, r, http.StatusUnprocessableEntity, errorResponse{Error: err.Error(), Kind: "data_processing"})
	default:
		s.logger.Error("api: request failed", "method", r.Method, "path", r.URL.Path, "err", err)
		s.writeJSON(w, r, http.StatusInternalServerError, errorResponse{Error: "internal error", Kind: "internal"})
	}
}
