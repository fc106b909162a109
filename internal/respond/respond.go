// Package respond writes JSON responses and maps errors to status codes.
package respond

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/genstudio/backend/internal/apperr"
)

type errorBody struct {
	Error string           `json:"error"`
	Code  apperr.ErrorCode `json:"code"`
}

func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Error writes err with the status apperr assigns it. Internal errors are
// logged and their detail hidden from the client.
func Error(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error) {
	status := apperr.HTTPStatus(err)
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		log.ErrorContext(r.Context(), "request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		if status == http.StatusInternalServerError {
			msg = "internal error"
		}
	}
	JSON(w, status, errorBody{Error: msg, Code: apperr.Code(err)})
}
