package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/genstudio/backend/internal/apperr"
)

// ---------------------------------------------------------------------------
// Fakes
// ---------------------------------------------------------------------------

type stubTokens struct {
	userID uuid.UUID
	err    error
	got    string
}

func (s *stubTokens) ValidateToken(_ context.Context, token string) (uuid.UUID, error) {
	s.got = token
	return s.userID, s.err
}

type stubBodies struct {
	err error
}

func (s stubBodies) Validate(_ string, body []byte) error {
	if s.err != nil {
		return s.err
	}
	if !json.Valid(body) {
		return fmt.Errorf("%w: invalid JSON", apperr.ErrValidation)
	}
	return nil
}

// echoUser writes the authenticated user id.
var echoUser = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	id, ok := UserIDFromCtx(r.Context())
	if !ok {
		w.WriteHeader(http.StatusTeapot)
		return
	}
	_, _ = w.Write([]byte(id.String()))
})

// echoBody copies the request body to the response.
var echoBody = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	_, _ = io.Copy(w, r.Body)
})

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("error body is not JSON: %q", rec.Body.String())
	}
	return body
}

// ---------------------------------------------------------------------------
// Authenticate
// ---------------------------------------------------------------------------

func TestAuthenticate_ValidToken(t *testing.T) {
	user := uuid.New()
	tokens := &stubTokens{userID: user}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "bearer  tok-123 ")
	rec := httptest.NewRecorder()
	Authenticate(tokens)(echoUser).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec.Body.String() != user.String() {
		t.Errorf("expected user %s in context, got %q", user, rec.Body.String())
	}
	if tokens.got != "tok-123" {
		t.Errorf("token passed to validator = %q", tokens.got)
	}
}

func TestAuthenticate_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		header string
		err    error
	}{
		{"missing header", "", nil},
		{"basic scheme", "Basic dXNlcjpwYXNz", nil},
		{"empty bearer", "Bearer ", nil},
		{"invalid token", "Bearer forged", apperr.ErrUnauthorized},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			Authenticate(&stubTokens{err: tc.err})(echoUser).ServeHTTP(rec, req)

			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("expected 401, got %d", rec.Code)
			}
			if body := decodeError(t, rec); body["code"] != string(apperr.CodeUnauthorized) {
				t.Errorf("code = %q", body["code"])
			}
		})
	}
}

// ---------------------------------------------------------------------------
// ValidateBody
// ---------------------------------------------------------------------------

func TestValidateBody_PassesBodyThrough(t *testing.T) {
	body := `{"model":"flux-dev","prompt":"a lighthouse"}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	rec := httptest.NewRecorder()
	ValidateBody(stubBodies{}, "generation")(echoBody).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Body.String() != body {
		t.Errorf("handler saw %q, want the original body", rec.Body.String())
	}
}

func TestValidateBody_Rejects(t *testing.T) {
	tests := []struct {
		name string
		body string
		err  error
	}{
		{"schema failure", `{"model":1}`, fmt.Errorf("%w: model: expected string", apperr.ErrValidation)},
		{"not json", `{"model":`, nil},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tc.body))
			rec := httptest.NewRecorder()
			ValidateBody(stubBodies{err: tc.err}, "generation")(echoBody).ServeHTTP(rec, req)

			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", rec.Code)
			}
			if body := decodeError(t, rec); body["code"] != string(apperr.CodeValidation) {
				t.Errorf("code = %q", body["code"])
			}
		})
	}
}

func TestValidateBody_TooLarge(t *testing.T) {
	big := bytes.Repeat([]byte("a"), MaxBodyBytes+1)
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(big))
	rec := httptest.NewRecorder()
	ValidateBody(stubBodies{err: errors.New("must not be called")}, "generation")(echoBody).ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if body := decodeError(t, rec); !strings.Contains(body["error"], "exceeds") {
		t.Errorf("error = %q", body["error"])
	}
}

// ---------------------------------------------------------------------------
// RequestLogger
// ---------------------------------------------------------------------------

func TestRequestLogger_RecordsStatus(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&buf, nil))

	h := RequestLogger(log)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/v1/generations", nil))

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log line is not JSON: %q", buf.String())
	}
	if entry["status"] != float64(http.StatusCreated) || entry["path"] != "/api/v1/generations" {
		t.Errorf("unexpected log entry: %v", entry)
	}
}
