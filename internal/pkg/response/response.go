// Package response provides JSON response helpers for broker HTTP handlers.
package response

import (
	"encoding/json"
	"net/http"

	apierrors "github.com/banhbaoring/dns-broker/internal/pkg/errors"
)

// JSON writes an arbitrary JSON body with the given status code.
func JSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		http.Error(w, `{"description":"failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes an error response shaped per the broker contract: {"description": "..."}.
func Error(w http.ResponseWriter, err error) {
	apiErr := apierrors.AsAPIError(err)
	JSON(w, apiErr.StatusCode, brokerError{Description: apiErr.Message, Error: apiErr.Code})
}

// brokerError is the OSB-contract error body shape.
type brokerError struct {
	Description string `json:"description"`
	Error       string `json:"error,omitempty"`
}

// OK writes a 200 OK response.
func OK(w http.ResponseWriter, body any) {
	JSON(w, http.StatusOK, body)
}

// Accepted writes a 202 Accepted response, used for async provision/update/deprovision.
func Accepted(w http.ResponseWriter, body any) {
	JSON(w, http.StatusAccepted, body)
}

// NoContent writes a 204 No Content response.
func NoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}
