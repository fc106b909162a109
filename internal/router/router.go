package router

import (
	"log/slog"
	"net/http"

	"github.com/rs/cors"

	"github.com/genstudio/backend/internal/handlers"
	"github.com/genstudio/backend/internal/middleware"
	"github.com/genstudio/backend/internal/schema"
)

type Config struct {
	Auth        *handlers.AuthHandler
	Generations *handlers.GenerationHandler
	Credits     *handlers.CreditHandler
	Catalog     *handlers.CatalogHandler
	Tokens      middleware.TokenValidator
	Bodies      middleware.BodyValidator

	// AllowedOrigins for CORS. Empty allows none.
	AllowedOrigins []string
	Logger         *slog.Logger
}

// New returns an http.Handler that serves the API under /api/v1.
func New(cfg Config) http.Handler {
	mux := http.NewServeMux()
	base := "/api/v1"

	authed := middleware.Authenticate(cfg.Tokens)
	body := func(name string, h http.HandlerFunc) http.Handler {
		return middleware.ValidateBody(cfg.Bodies, name)(h)
	}

	mux.Handle("POST "+base+"/auth/register", body(schema.Register, cfg.Auth.Register))
	mux.Handle("POST "+base+"/auth/login", body(schema.Login, cfg.Auth.Login))

	mux.HandleFunc("GET "+base+"/models", cfg.Catalog.Models)
	mux.Handle("POST "+base+"/estimate", body(schema.Estimate, cfg.Catalog.Estimate))

	mux.Handle("POST "+base+"/generations", authed(body(schema.Generation, cfg.Generations.Create)))
	mux.Handle("GET "+base+"/generations", authed(http.HandlerFunc(cfg.Generations.List)))
	mux.Handle("GET "+base+"/generations/{id}", authed(http.HandlerFunc(cfg.Generations.Get)))

	mux.Handle("GET "+base+"/credits/balance", authed(http.HandlerFunc(cfg.Credits.Balance)))
	mux.Handle("GET "+base+"/credits/transactions", authed(http.HandlerFunc(cfg.Credits.Transactions)))
	mux.HandleFunc("GET "+base+"/credits/packages", cfg.Credits.Packages)
	mux.Handle("POST "+base+"/credits/purchase", authed(body(schema.Purchase, cfg.Credits.Purchase)))
	mux.Handle("POST "+base+"/credits/purchase/{chargeId}/confirm", authed(http.HandlerFunc(cfg.Credits.Confirm)))

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	var h http.Handler = mux
	if cfg.Logger != nil {
		h = middleware.RequestLogger(cfg.Logger)(h)
	}
	return cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}).Handler(h)
}
