package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/aretw0/chatflow/internal/validator"
	"github.com/aretw0/chatflow/pkg/domain"
	"github.com/aretw0/chatflow/pkg/flows"
	"github.com/aretw0/chatflow/pkg/session"
)

// maxBodySize caps request bodies; flow imports are the largest payloads.
const maxBodySize = 4 << 20

type errorBody struct {
	Error    string                 `json:"error"`
	Errors   []validator.Diagnostic `json:"errors,omitempty"`
	Warnings []validator.Diagnostic `json:"warnings,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors to status codes. Unexpected errors are logged
// and reported without detail.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var vErr *flows.ValidationFailedError
	if errors.As(err, &vErr) {
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{Error: vErr.Message, Errors: vErr.Result.Errors, Warnings: vErr.Result.Warnings})
		return
	}

	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("Request failed", "method", r.Method, "path", r.URL.Path, "err", err)
		writeJSON(w, status, errorBody{Error: "internal server error"})
		return
	}
	writeJSON(w, status, errorBody{Error: err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrFlowNotFound),
		errors.Is(err, domain.ErrSessionNotFound),
		errors.Is(err, domain.ErrVersionNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrFlowNotActive),
		errors.Is(err, domain.ErrNoStartNode),
		errors.Is(err, domain.ErrNotWaitingForInput),
		errors.Is(err, domain.ErrInvalidInputNode),
		errors.Is(err, domain.ErrSessionExists):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvalidImport),
		errors.Is(err, flows.ErrInvalidStatus),
		errors.Is(err, session.ErrInputTooLarge),
		errors.Is(err, session.ErrInvalidUTF8),
		errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

var errBadRequest = errors.New("bad request")

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodySize))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: invalid request body: %v", errBadRequest, err)
	}
	return nil
}

// queryInt parses an optional positive integer query parameter.
func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %s must be a positive integer", errBadRequest, name)
	}
	return n, nil
}
