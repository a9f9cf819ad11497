package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/YelzhanWeb/orderflow/internal/adapter/logger"
	"github.com/YelzhanWeb/orderflow/internal/domain"
)

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type ErrorResponse struct {
	Error  string            `json:"error"`
	Code   domain.ErrorCode  `json:"code,omitempty"`
	Errors []ValidationError `json:"errors,omitempty"`
}

func respondJSON(w http.ResponseWriter, statusCode int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if body != nil {
		json.NewEncoder(w).Encode(body)
	}
}

// StatusFor maps an error to the HTTP status reported to the caller.
func StatusFor(err error) int {
	switch domain.CodeOf(err) {
	case domain.CodeNotFound:
		return http.StatusNotFound
	case domain.CodeForbidden:
		return http.StatusForbidden
	case domain.CodeConflict:
		return http.StatusConflict
	case domain.CodeInvalidTransition, domain.CodeTerminalOrder:
		return http.StatusUnprocessableEntity
	case domain.CodeTransport:
		return http.StatusBadGateway
	}
	if errors.Is(err, domain.ErrInvalidOrder) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func respondError(w http.ResponseWriter, r *http.Request, lgr logger.Logger, err error) {
	status := StatusFor(err)
	resp := ErrorResponse{Error: err.Error(), Code: domain.CodeOf(err)}

	var te *domain.TransitionError
	if errors.As(err, &te) {
		resp.Error = te.Message
	}
	if status == http.StatusInternalServerError {
		lgr.Error("request_failed", "Request failed", RequestID(r.Context()), map[string]interface{}{
			"path": r.URL.Path,
		}, err)
		resp.Error = "internal server error"
	}
	respondJSON(w, status, resp)
}

func respondBadRequest(w http.ResponseWriter, message string) {
	respondJSON(w, http.StatusBadRequest, ErrorResponse{Error: message})
}
