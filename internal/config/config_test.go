package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "0123456789abcdef")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, StorePostgres, cfg.StoreBackend)
	assert.Equal(t, ProvidersSimulated, cfg.ProviderMode)
	assert.Equal(t, 5*time.Second, cfg.PollInterval)
	assert.Equal(t, 30*time.Minute, cfg.PollTimeout)
	assert.Equal(t, int64(100), cfg.SignupBonus)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.CORSAllowedOrigins)
	assert.False(t, cfg.PaymentsEnabled())
	assert.Equal(t, "0.0.0.0:8080", cfg.Addr())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "0123456789abcdef")
	t.Setenv("STORE_BACKEND", "memory")
	t.Setenv("POLL_INTERVAL", "2s")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example,https://b.example")
	t.Setenv("OMISE_PUBLIC_KEY", "pkey_test")
	t.Setenv("OMISE_SECRET_KEY", "skey_test")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, StoreMemory, cfg.StoreBackend)
	assert.Equal(t, 2*time.Second, cfg.PollInterval)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSAllowedOrigins)
	assert.True(t, cfg.PaymentsEnabled())
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			DatabaseURL:  "postgres://x",
			StoreBackend: StorePostgres,
			ProviderMode: ProvidersSimulated,
			JWTSecret:    "0123456789abcdef",
			PollInterval: 5 * time.Second,
			PollTimeout:  time.Minute,
		}
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"valid", func(*Config) {}, true},
		{"short secret", func(c *Config) { c.JWTSecret = "short" }, false},
		{"unknown store", func(c *Config) { c.StoreBackend = "sqlite" }, false},
		{"postgres without url", func(c *Config) { c.DatabaseURL = "" }, false},
		{"memory without url", func(c *Config) { c.StoreBackend = StoreMemory; c.DatabaseURL = "" }, true},
		{"live without keys", func(c *Config) { c.ProviderMode = ProvidersLive }, false},
		{"live with runware", func(c *Config) { c.ProviderMode = ProvidersLive; c.RunwareAPIKey = "k" }, true},
		{"half omise", func(c *Config) { c.OmisePublicKey = "pkey" }, false},
		{"timeout below interval", func(c *Config) { c.PollTimeout = time.Second }, false},
		{"negative bonus", func(c *Config) { c.SignupBonus = -1 }, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}
