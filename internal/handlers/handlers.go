// Package handlers adapts the services to HTTP. Bodies are schema-checked by
// middleware before they reach a handler.
package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/genstudio/backend/internal/apperr"
	"github.com/genstudio/backend/internal/middleware"
)

func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: invalid JSON: %v", apperr.ErrValidation, err)
	}
	return nil
}

func currentUser(r *http.Request) (uuid.UUID, error) {
	id, ok := middleware.UserIDFromCtx(r.Context())
	if !ok {
		return uuid.Nil, apperr.ErrUnauthorized
	}
	return id, nil
}

// queryLimit parses ?limit. Missing means 0, which services treat as their default.
func queryLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: limit must be a non-negative integer", apperr.ErrValidation)
	}
	return n, nil
}
