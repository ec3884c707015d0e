// Package api provides shared HTTP helpers for the planner API.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ashureev/studyplan/internal/domain"
)

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// StatusFor maps an error to the HTTP status reported for its kind.
func StatusFor(err error) int {
	switch domain.KindOf(err) {
	case domain.KindInvalidInput:
		return http.StatusBadRequest
	case domain.KindMissingPrerequisite:
		return http.StatusConflict
	case domain.KindExtractionParse:
		return http.StatusUnprocessableEntity
	case domain.KindPlanGeneration, domain.KindModelUnavailable:
		return http.StatusBadGateway
	case domain.KindStorageUnavailable:
		return http.StatusServiceUnavailable
	default:
		if errors.Is(err, context.DeadlineExceeded) {
			return http.StatusGatewayTimeout
		}
		return http.StatusInternalServerError
	}
}
