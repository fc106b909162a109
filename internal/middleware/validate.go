package middleware

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/genstudio/backend/internal/apperr"
	"github.com/genstudio/backend/internal/respond"
)

// MaxBodyBytes bounds request bodies. Generation requests may carry a base64
// input image.
const MaxBodyBytes = 16 << 20

// BodyValidator checks a raw JSON body against a named schema.
type BodyValidator interface {
	Validate(name string, body []byte) error
}

// ValidateBody rejects bodies that do not match the named schema. The body is
// read once and replaced so the handler can decode it again.
func ValidateBody(v BodyValidator, schemaName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bodyBytes, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
			r.Body.Close()
			if err != nil {
				var tooLarge *http.MaxBytesError
				if errors.As(err, &tooLarge) {
					badRequest(w, fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit))
					return
				}
				badRequest(w, "failed to read body")
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(bodyBytes))

			if err := v.Validate(schemaName, bodyBytes); err != nil {
				badRequest(w, err.Error())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func badRequest(w http.ResponseWriter, msg string) {
	respond.JSON(w, http.StatusBadRequest, map[string]string{
		"error": msg,
		"code":  string(apperr.CodeValidation),
	})
}
