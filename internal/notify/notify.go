// Package notify sends operator notifications to LINE.
package notify

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const DefaultLineURL = "https://notify-api.line.me/api/notify"

type Notifier interface {
	Notify(ctx context.Context, message string) error
}

// Nop drops every message.
type Nop struct{}

func (Nop) Notify(context.Context, string) error { return nil }

// Line posts messages to LINE Notify.
type Line struct {
	token    string
	endpoint string
	http     *http.Client
	backoff  func() backoff.BackOff
	log      *slog.Logger
}

func NewLine(token string, client *http.Client, log *slog.Logger) *Line {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Line{
		token:    token,
		endpoint: DefaultLineURL,
		http:     client,
		backoff:  func() backoff.BackOff { return backoff.NewExponentialBackOff() },
		log:      log,
	}
}

func (l *Line) Notify(ctx context.Context, message string) error {
	form := url.Values{"message": {message}}.Encode()
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.endpoint, strings.NewReader(form))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set("Authorization", "Bearer "+l.token)

		resp, err := l.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			return nil
		}
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		err = fmt.Errorf("line notify returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return err
		}
		return backoff.Permanent(err)
	}
	return backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(l.backoff(), 2), ctx))
}

// SignupMessage formats the new-user announcement.
func SignupMessage(name, email string, at time.Time) string {
	if name == "" {
		name = "N/A"
	}
	if email == "" {
		email = "N/A"
	}
	if loc, err := time.LoadLocation("Asia/Bangkok"); err == nil {
		at = at.In(loc)
	}
	return fmt.Sprintf("🎉 New User Sign-up!\n\nName: %s\nEmail: %s\nTime: %s", name, email, at.Format("2006-01-02 15:04:05"))
}
