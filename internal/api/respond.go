package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/cory-johannsen/lobby/internal/lobby"
)

const maxBodyBytes = 1 << 20

// errorBody is the JSON body of every non-2xx response.
type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// requestError is a malformed or invalid request payload.
type requestError struct {
	msg string
}

func (e *requestError) Error() string { return e.msg }

func badRequest(msg string) error { return &requestError{msg: msg} }

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// decode reads a JSON body into dst and validates it.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		return badRequest("Malformed request body")
	}
	if err := h.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return badRequest("Invalid field: " + verrs[0].Field())
		}
		return badRequest("Invalid request")
	}
	return nil
}

// writeError maps err onto a status code and error body. Domain kinds are client
// errors; lock timeouts are 503; anything else is logged and reported as 500.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		reqErr    *requestError
		domainErr *lobby.Error
	)
	switch {
	case errors.As(err, &reqErr):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid_request", Message: reqErr.msg})
	case errors.As(err, &domainErr):
		writeJSON(w, statusForKind(domainErr.Kind), errorBody{Error: domainErr.Kind.String(), Message: domainErr.Message})
	case errors.Is(err, context.DeadlineExceeded):
		h.logger.Warn("request timed out", zap.String("path", r.URL.Path), zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "unavailable", Message: "The game is busy, try again"})
	default:
		h.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal", Message: "Internal server error"})
	}
}

func statusForKind(k lobby.Kind) int {
	switch k {
	case lobby.NotFound:
		return http.StatusNotFound
	case lobby.NotAuthorized:
		return http.StatusForbidden
	default:
		return http.StatusBadRequest
	}
}
