package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/genstudio/backend/internal/auth"
	"github.com/genstudio/backend/internal/respond"
)

// Accounts is the part of auth.Service the handler needs.
type Accounts interface {
	Register(ctx context.Context, email, password, name string) (*auth.User, error)
	Login(ctx context.Context, email, password string) (string, error)
}

// AuthHandler serves /auth endpoints.
type AuthHandler struct {
	Accounts Accounts
	Logger   *slog.Logger
}

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

// Register handles POST /api/v1/auth/register.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decode(r, &req); err != nil {
		respond.Error(w, r, h.Logger, err)
		return
	}
	user, err := h.Accounts.Register(r.Context(), req.Email, req.Password, req.Name)
	if err != nil {
		respond.Error(w, r, h.Logger, err)
		return
	}
	respond.JSON(w, http.StatusCreated, user)
}

// Login handles POST /api/v1/auth/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decode(r, &req); err != nil {
		respond.Error(w, r, h.Logger, err)
		return
	}
	token, err := h.Accounts.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		respond.Error(w, r, h.Logger, err)
		return
	}
	respond.JSON(w, http.StatusOK, tokenResponse{Token: token})
}
