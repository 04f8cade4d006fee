package response

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/nkkko/simsub/internal/api/errors"
	"github.com/rs/zerolog/log"
)

// Response represents a standardized API response. Data carries the
// method's reply on success.
type Response struct {
	Success   bool             `json:"success"`
	RequestID string           `json:"request_id,omitempty"`
	Data      any              `json:"data,omitempty"`
	Error     *errors.APIError `json:"error,omitempty"`
}

// JSON sends a successful JSON response
func JSON(w http.ResponseWriter, r *http.Request, statusCode int, data any) {
	sendJSON(w, statusCode, Response{
		Success:   statusCode >= 200 && statusCode < 300,
		RequestID: middleware.GetReqID(r.Context()),
		Data:      data,
	})
}

// Error sends an error response. The status code follows the error type.
func Error(w http.ResponseWriter, r *http.Request, err error) {
	requestID := middleware.GetReqID(r.Context())
	apiErr := errors.FromError(err).WithRequestID(requestID)

	sendJSON(w, apiErr.HTTPCode, Response{
		Success:   false,
		RequestID: requestID,
		Error:     apiErr,
	})
}

func sendJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Headers are gone already
		log.Warn().Err(err).Str("component", "api").Msg("Failed to encode response")
	}
}
