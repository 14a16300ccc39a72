package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr string

	// SessionValidity is the fixed window during which a session accepts
	// check-ins; GeofenceRadiusMeters bounds how far from the session
	// origin a check-in is accepted. Both are policy, not mechanism.
	SessionValidity      time.Duration
	GeofenceRadiusMeters float64

	SweepEnabled  bool
	SweepInterval time.Duration

	// FrontendURL is the base the QR payload points at; the scanner opens
	// <FrontendURL>/attend/<sessionId>.
	FrontendURL        string
	CORSAllowedOrigins []string
}

func Load() Config {
	// Optional .env for local development.
	_ = godotenv.Load()

	return Config{
		HTTPAddr:             getenv("HTTP_ADDR", ":8080"),
		SessionValidity:      getenvDuration("SESSION_VALIDITY", 10*time.Minute),
		GeofenceRadiusMeters: getenvFloat("GEOFENCE_RADIUS_METERS", 50),
		SweepEnabled:         getenvBool("SWEEP_ENABLED", true),
		SweepInterval:        getenvDuration("SWEEP_INTERVAL", time.Minute),
		FrontendURL:          getenv("FRONTEND_URL", "http://localhost:3000"),
		CORSAllowedOrigins:   getenvList("CORS_ALLOWED_ORIGINS", []string{"*"}),
	}
}

func getenv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if parsed, err := time.ParseDuration(val); err == nil {
			return parsed
		}
	}
	if val := os.Getenv(key + "_SECONDS"); val != "" {
		if seconds, err := strconv.Atoi(val); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return fallback
}

func getenvFloat(key string, fallback float64) float64 {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseFloat(val, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func getenvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseBool(val); err == nil {
			return parsed
		}
	}
	return fallback
}

func getenvList(key string, fallback []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
