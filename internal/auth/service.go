// Package auth registers users and issues the bearer tokens the API accepts.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/genstudio/backend/internal/apperr"
	"github.com/genstudio/backend/internal/ledger"
	"github.com/genstudio/backend/internal/models"
	"github.com/genstudio/backend/internal/notify"
)

const (
	tokenTTL          = 24 * time.Hour
	minPasswordLength = 8
	welcomeBonusDesc  = "Welcome bonus"
)

var (
	// ErrDuplicateEmail is returned when registering with an email that already exists.
	ErrDuplicateEmail     = fmt.Errorf("%w: email already registered", apperr.ErrConflict)
	ErrInvalidCredentials = fmt.Errorf("%w: invalid credentials", apperr.ErrUnauthorized)
	ErrInvalidToken       = fmt.Errorf("%w: invalid token", apperr.ErrUnauthorized)
)

type User struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type Service interface {
	Register(ctx context.Context, email, password, name string) (*User, error)
	Login(ctx context.Context, email, password string) (string, error)
	ValidateToken(ctx context.Context, token string) (uuid.UUID, error)
}

type service struct {
	users    UserStore
	ledger   ledger.Service
	notifier notify.Notifier
	secret   []byte
	bonus    int64
	log      *slog.Logger
	now      func() time.Time
}

// NewService builds the auth service. New users receive bonus credits; a
// zero bonus disables the grant.
func NewService(users UserStore, ledgerSvc ledger.Service, notifier notify.Notifier, secret string, bonus int64, log *slog.Logger) Service {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &service{
		users:    users,
		ledger:   ledgerSvc,
		notifier: notifier,
		secret:   []byte(secret),
		bonus:    bonus,
		log:      log,
		now:      time.Now,
	}
}

// Ensure service implements Service at compile time.
var _ Service = (*service)(nil)

func (s *service) Register(ctx context.Context, email, password, name string) (*User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, fmt.Errorf("%w: invalid email", apperr.ErrValidation)
	}
	if len(password) < minPasswordLength {
		return nil, fmt.Errorf("%w: password must be at least %d characters", apperr.ErrValidation, minPasswordLength)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	u := &User{ID: uuid.New(), Email: email, Name: strings.TrimSpace(name)}
	if err := s.users.Create(ctx, u, string(hash)); err != nil {
		return nil, err
	}
	s.log.InfoContext(ctx, "user registered", "user_id", u.ID)

	if s.bonus > 0 {
		if _, err := s.ledger.Credit(ctx, u.ID, s.bonus, welcomeBonusDesc, ledger.Metadata{Kind: models.TxPurchase}); err != nil {
			s.log.ErrorContext(ctx, "welcome bonus not granted", "user_id", u.ID, "error", err)
		}
	}

	msg := notify.SignupMessage(u.Name, u.Email, s.now())
	go func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		if err := s.notifier.Notify(ctx, msg); err != nil {
			s.log.WarnContext(ctx, "signup notification failed", "user_id", u.ID, "error", err)
		}
	}(context.WithoutCancel(ctx))
	return u, nil
}

func (s *service) Login(ctx context.Context, email, password string) (string, error) {
	u, hash, err := s.users.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if errors.Is(err, ErrUserNotFound) {
		return "", ErrInvalidCredentials
	}
	if err != nil {
		return "", err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}
	return s.issueToken(u.ID)
}

func (s *service) issueToken(userID uuid.UUID) (string, error) {
	now := s.now()
	c := jwt.RegisteredClaims{
		Subject:   userID.String(),
		ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL)),
		IssuedAt:  jwt.NewNumericDate(now),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.secret)
}

func (s *service) ValidateToken(_ context.Context, token string) (uuid.UUID, error) {
	c := &jwt.RegisteredClaims{}
	tok, err := jwt.ParseWithClaims(token, c, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !tok.Valid {
		return uuid.Nil, ErrInvalidToken
	}
	id, err := uuid.Parse(c.Subject)
	if err != nil {
		return uuid.Nil, ErrInvalidToken
	}
	return id, nil
}
