package config

import (
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"PORT", "STORE_DRIVER", "STORE_PATH", "IDENTITY_PROVIDER_URL", "IDENTITY_PROVIDER_TIMEOUT",
		"AUTH_COOKIE_SECURE", "AUTH_LOGIN_RPS", "AUTH_LOGIN_BURST", "ARK_API_KEY", "ARK_ACCESS_KEY",
		"ARK_SECRET_KEY", "Model", "ARK_TEMPERATURE", "ARK_TOP_P", "ARK_MAX_TOKENS",
		"LOG_FILE", "LOG_LEVEL", "TRACING_ENABLED", "TRACE_FILE",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load err: %v", err)
	}
	if cfg.Server.Addr != ":8001" {
		t.Fatalf("addr = %q", cfg.Server.Addr)
	}
	if cfg.Store.Driver != StoreSQLite || cfg.Store.Path != "insights.db" {
		t.Fatalf("unexpected store config: %+v", cfg.Store)
	}
	if cfg.Auth.ProviderTimeout != 10*time.Second || !cfg.Auth.CookieSecure {
		t.Fatalf("unexpected auth config: %+v", cfg.Auth)
	}
	if cfg.Auth.LoginRPS != 5 || cfg.Auth.LoginBurst != 10 {
		t.Fatalf("unexpected login limits: %+v", cfg.Auth)
	}
	if cfg.AI.Enabled() {
		t.Fatal("AI should be disabled without credentials")
	}
	if cfg.Log.Level != "info" || cfg.Telemetry.TracingEnabled {
		t.Fatalf("unexpected log/telemetry config: %+v %+v", cfg.Log, cfg.Telemetry)
	}
}

func TestLoadOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "127.0.0.1:9000")
	t.Setenv("STORE_DRIVER", "Pebble")
	t.Setenv("IDENTITY_PROVIDER_TIMEOUT", "3")
	t.Setenv("AUTH_COOKIE_SECURE", "false")
	t.Setenv("ARK_API_KEY", "key")
	t.Setenv("Model", "ep-1")
	t.Setenv("ARK_MAX_TOKENS", "512")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load err: %v", err)
	}
	if cfg.Server.Addr != "127.0.0.1:9000" {
		t.Fatalf("addr = %q", cfg.Server.Addr)
	}
	if cfg.Store.Driver != StorePebble || cfg.Store.Path != "insights-data" {
		t.Fatalf("unexpected store config: %+v", cfg.Store)
	}
	if cfg.Auth.ProviderTimeout != 3*time.Second || cfg.Auth.CookieSecure {
		t.Fatalf("unexpected auth config: %+v", cfg.Auth)
	}
	if !cfg.AI.Enabled() || cfg.AI.MaxTokens == nil || *cfg.AI.MaxTokens != 512 {
		t.Fatalf("unexpected AI config: %+v", cfg.AI)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"STORE_DRIVER":       "postgres",
		"PORT":               "80 80",
		"AUTH_COOKIE_SECURE": "maybe",
		"AUTH_LOGIN_RPS":     "fast",
		"ARK_TEMPERATURE":    "hot",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(key, value)
			if _, err := Load(); err == nil {
				t.Fatalf("expected error for %s=%q", key, value)
			}
		})
	}
}
