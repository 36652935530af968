package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv           string
	Port             string
	DatabaseURL      string
	GCSURI           string
	GeoIPDBPath      string
	DefaultLocale    string
	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	RateLimitPerMin  int
	// TrustProxyHeaders takes the client address from X-Forwarded-For and
	// X-Real-IP. Enable only behind a proxy that overwrites them.
	TrustProxyHeaders bool
	// JWTSecret enables bearer token identity; when empty the X-User-ID
	// header is trusted.
	JWTSecret   string
	CORSOrigins []string

	Veo     VeoConfig
	Polling PollingConfig
}

// VeoConfig selects the video backend and how requests are authenticated.
type VeoConfig struct {
	BaseURL        string
	ProjectID      string
	Location       string
	Model          string
	Auth           string // "adc" for Google default credentials, "none" for the local emulator
	RequestTimeout time.Duration
}

// PollingConfig tunes the operation poller.
type PollingConfig struct {
	InitialInterval   time.Duration
	MaxInterval       time.Duration
	Multiplier        float64
	JitterFactor      float64
	MaxAttempts       int
	SurfaceExhaustion bool
	// ResumeLimit caps how many in-flight generations are picked up again
	// at startup.
	ResumeLimit int
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	port := getEnv("PORT", "8080")
	location := getEnv("VEO_LOCATION", "us-central1")
	cfg := &Config{
		AppEnv:            getEnv("APP_ENV", "development"),
		Port:              port,
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		GCSURI:            strings.TrimRight(os.Getenv("GCS_URI"), "/"),
		GeoIPDBPath:       os.Getenv("GEOIP_DB_PATH"),
		DefaultLocale:     getEnv("DEFAULT_LOCALE", "en"),
		HTTPReadTimeout:   time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout:  time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:   time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:   getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
		TrustProxyHeaders: getEnvBool("TRUST_PROXY_HEADERS", false),
		JWTSecret:         os.Getenv("AUTH_JWT_SECRET"),
		CORSOrigins:       splitList(os.Getenv("CORS_ALLOWED_ORIGINS")),
		Veo: VeoConfig{
			BaseURL:        getEnv("VEO_BASE_URL", fmt.Sprintf("https://%s-aiplatform.googleapis.com/v1", location)),
			ProjectID:      os.Getenv("VEO_PROJECT_ID"),
			Location:       location,
			Model:          getEnv("VEO_MODEL", "veo-2.0-generate-exp"),
			Auth:           strings.ToLower(getEnv("VEO_AUTH", "adc")),
			RequestTimeout: getEnvDuration("VEO_REQUEST_TIMEOUT", 60*time.Second),
		},
		Polling: PollingConfig{
			InitialInterval:   getEnvDuration("POLL_INITIAL_INTERVAL", 6*time.Second),
			MaxInterval:       getEnvDuration("POLL_MAX_INTERVAL", 60*time.Second),
			Multiplier:        getEnvFloat("POLL_BACKOFF_MULTIPLIER", 1.2),
			JitterFactor:      getEnvFloat("POLL_JITTER_FACTOR", 0.2),
			MaxAttempts:       getEnvInt("POLL_MAX_ATTEMPTS", 30),
			SurfaceExhaustion: getEnvBool("POLL_SURFACE_EXHAUSTION", true),
			ResumeLimit:       getEnvInt("POLL_RESUME_LIMIT", 100),
		},
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.Veo.ProjectID == "" {
		return nil, fmt.Errorf("VEO_PROJECT_ID is required")
	}
	switch cfg.Veo.Auth {
	case "adc", "none":
	default:
		return nil, fmt.Errorf("VEO_AUTH must be adc or none, got %q", cfg.Veo.Auth)
	}
	if cfg.Polling.MaxAttempts <= 0 {
		return nil, fmt.Errorf("POLL_MAX_ATTEMPTS must be positive")
	}

	return cfg, nil
}

// EmulatorConfig configures the local Veo backend emulator.
type EmulatorConfig struct {
	AppEnv       string
	Port         string
	StoragePath  string
	PendingPolls int
	MaxFinished  int
	MaxPending   int
}

// LoadEmulatorConfig loads the emulator settings; every value has a default.
func LoadEmulatorConfig() *EmulatorConfig {
	return &EmulatorConfig{
		AppEnv:       getEnv("APP_ENV", "development"),
		Port:         getEnv("VEOEMU_PORT", "5000"),
		StoragePath:  getEnv("VEOEMU_STORAGE_PATH", "./storage"),
		PendingPolls: getEnvInt("VEOEMU_PENDING_POLLS", 2),
		MaxFinished:  getEnvInt("VEOEMU_MAX_FINISHED", 256),
		MaxPending:   getEnvInt("VEOEMU_MAX_PENDING", 1024),
	}
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func splitList(v string) []string {
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

// getEnvDuration accepts Go duration strings ("6s") or bare milliseconds.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if ms, err := strconv.Atoi(v); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return fallback
}
