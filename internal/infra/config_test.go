package infra

import (
	"testing"
	"time"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://example")
	t.Setenv("VEO_PROJECT_ID", "demo-project")
}

func TestLoadConfigPollingDefaults(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("POLL_INITIAL_INTERVAL", "")
	t.Setenv("POLL_MAX_ATTEMPTS", "")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.Polling.InitialInterval != 6*time.Second {
		t.Fatalf("InitialInterval = %s, want 6s", cfg.Polling.InitialInterval)
	}
	if cfg.Polling.MaxInterval != 60*time.Second {
		t.Fatalf("MaxInterval = %s, want 60s", cfg.Polling.MaxInterval)
	}
	if cfg.Polling.Multiplier != 1.2 || cfg.Polling.JitterFactor != 0.2 {
		t.Fatalf("backoff = %v/%v, want 1.2/0.2", cfg.Polling.Multiplier, cfg.Polling.JitterFactor)
	}
	if cfg.Polling.MaxAttempts != 30 {
		t.Fatalf("MaxAttempts = %d, want 30", cfg.Polling.MaxAttempts)
	}
	if !cfg.Polling.SurfaceExhaustion {
		t.Fatalf("SurfaceExhaustion should default to true")
	}
}

func TestLoadConfigDefaultVeoEndpoint(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("VEO_BASE_URL", "")
	t.Setenv("VEO_LOCATION", "europe-west4")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	expected := "https://europe-west4-aiplatform.googleapis.com/v1"
	if cfg.Veo.BaseURL != expected {
		t.Fatalf("Veo.BaseURL mismatch: got %q want %q", cfg.Veo.BaseURL, expected)
	}
	if cfg.Veo.Model != "veo-2.0-generate-exp" {
		t.Fatalf("Veo.Model = %q", cfg.Veo.Model)
	}
}

func TestLoadConfigDurationAcceptsMilliseconds(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("POLL_INITIAL_INTERVAL", "1500")
	t.Setenv("POLL_MAX_INTERVAL", "2m")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.Polling.InitialInterval != 1500*time.Millisecond {
		t.Fatalf("InitialInterval = %s, want 1.5s", cfg.Polling.InitialInterval)
	}
	if cfg.Polling.MaxInterval != 2*time.Minute {
		t.Fatalf("MaxInterval = %s, want 2m", cfg.Polling.MaxInterval)
	}
}

func TestLoadConfigRejectsUnknownAuthMode(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("VEO_AUTH", "apikey")

	if _, err := LoadConfig(); err == nil {
		t.Fatalf("expected error for unsupported auth mode")
	}
}

func TestLoadConfigRequiresProject(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://example")
	t.Setenv("VEO_PROJECT_ID", "")

	if _, err := LoadConfig(); err == nil {
		t.Fatalf("expected error when VEO_PROJECT_ID is missing")
	}
}

func TestLoadConfigSplitsCORSOrigins(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("CORS_ALLOWED_ORIGINS", " https://a.example , ,https://b.example")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if len(cfg.CORSOrigins) != 2 || cfg.CORSOrigins[0] != "https://a.example" || cfg.CORSOrigins[1] != "https://b.example" {
		t.Fatalf("CORSOrigins = %q", cfg.CORSOrigins)
	}
}

func TestLoadConfigProxyHeadersUntrustedByDefault(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("TRUST_PROXY_HEADERS", "")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.TrustProxyHeaders {
		t.Fatalf("TrustProxyHeaders should default to false")
	}
}
