package config

import (
	"log"
	"os"
	"strconv"
	"time"
)

// Config holds application configuration values.
type Config struct {
	BackendURL     string
	HTTPPort       string
	SessionDSN     string
	RequestTimeout time.Duration
	// DiagPINHash is the bcrypt hash of the diagnostics PIN. Empty disables
	// the diagnostics routes entirely.
	DiagPINHash string
}

// Load reads configuration from environment variables with reasonable defaults.
func Load() Config {
	backend := os.Getenv("BACKEND_URL")
	if backend == "" {
		backend = "http://localhost:8000/api/"
	}

	port := os.Getenv("HTTP_PORT")
	if port == "" {
		port = "8080"
	}

	dsn := os.Getenv("SESSION_DSN")
	if dsn == "" {
		dsn = "pharmex-session.db"
	}

	timeout := 15 * time.Second
	if raw := os.Getenv("REQUEST_TIMEOUT_SECONDS"); raw != "" {
		if secs, err := strconv.Atoi(raw); err == nil && secs > 0 {
			timeout = time.Duration(secs) * time.Second
		} else {
			log.Printf("invalid REQUEST_TIMEOUT_SECONDS value %q, defaulting to 15", raw)
		}
	}

	// Validate that port is numeric.
	if _, err := strconv.Atoi(port); err != nil {
		log.Printf("invalid HTTP_PORT value %q, defaulting to 8080", port)
		port = "8080"
	}

	return Config{
		BackendURL:     backend,
		HTTPPort:       port,
		SessionDSN:     dsn,
		RequestTimeout: timeout,
		DiagPINHash:    os.Getenv("DIAG_PIN_HASH"),
	}
}
