package server

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"promptarena/embedding"
	"promptarena/imageprocessor"
	"promptarena/logging"
	"promptarena/similarity"
)

// Error types reported in the "type" field
const (
	ErrTypeInvalidMetric  = "invalid_metric"
	ErrTypeInvalidInput   = "invalid_input"
	ErrTypeInvalidWeights = "invalid_weights"
	ErrTypeUnavailable    = "unavailable"
	ErrTypeInternal       = "internal"
)

// APIError is the body of every error response
type APIError struct {
	Type      string `json:"type"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// classify maps an error to its HTTP status and type
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, similarity.ErrInvalidMetric):
		return http.StatusBadRequest, ErrTypeInvalidMetric
	case errors.Is(err, similarity.ErrInvalidWeights):
		return http.StatusBadRequest, ErrTypeInvalidWeights
	case errors.Is(err, similarity.ErrInvalidInput),
		errors.Is(err, imageprocessor.ErrDecode),
		errors.Is(err, errBadUpload):
		return http.StatusBadRequest, ErrTypeInvalidInput
	case errors.Is(err, embedding.ErrDisabled):
		return http.StatusServiceUnavailable, ErrTypeUnavailable
	}
	return http.StatusInternalServerError, ErrTypeInternal
}

// writeError writes a structured error response
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, errType := classify(err)
	if status >= http.StatusInternalServerError {
		logging.LogError("%s %s: %v", r.Method, r.URL.Path, err)
	} else {
		logging.DebugLog("%s %s: %v", r.Method, r.URL.Path, err)
	}
	s.writeJSON(w, status, APIError{
		Type:      errType,
		Message:   err.Error(),
		RequestID: middleware.GetReqID(r.Context()),
	})
}
