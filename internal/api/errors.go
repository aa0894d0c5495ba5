package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/house-audio/audionode/internal/node"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes.
const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeNotFound     = "not_found"
	ErrCodeUnauthorized = "unauthorised"
	ErrCodeConflict     = "conflict"
	ErrCodeUnavailable  = "unavailable"
	ErrCodeInternal     = "internal_error"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

// writeBadRequest writes a 400 error response.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// writeNotFound writes a 404 error response.
func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

// writeUnauthorized writes a 401 error response.
func writeUnauthorized(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeNodeError maps a node manager error to an HTTP response.
func writeNodeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, node.ErrDeviceNotFound),
		errors.Is(err, node.ErrOutputNotFound),
		errors.Is(err, node.ErrLinkNotFound):
		writeError(w, http.StatusNotFound, ErrCodeNotFound, err.Error())
	case errors.Is(err, node.ErrInvalidAddress),
		errors.Is(err, node.ErrInvalidVolume):
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
	case errors.Is(err, node.ErrDeviceNotConnected):
		writeError(w, http.StatusConflict, ErrCodeConflict, err.Error())
	case errors.Is(err, node.ErrNotRunning):
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, err.Error())
	case errors.Is(err, node.ErrOperationTimedOut):
		writeError(w, http.StatusGatewayTimeout, ErrCodeUnavailable, err.Error())
	case errors.Is(err, node.ErrBackendUnavailable),
		errors.Is(err, node.ErrLinkCreationFailed):
		writeError(w, http.StatusBadGateway, ErrCodeUnavailable, err.Error())
	default:
		writeError(w, http.StatusBadGateway, ErrCodeUnavailable, err.Error())
	}
}
