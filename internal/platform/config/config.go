package config

import (
	"os"
	"time"
)

// Server captures process-level configuration.
type Server struct {
	Addr        string
	DatabaseURL string
}

// ShutdownTimeout bounds graceful shutdown on SIGINT.
const ShutdownTimeout = 10 * time.Second

// RequestTimeout bounds a single reconcile request end to end.
const RequestTimeout = 30 * time.Second

// FromEnv builds a Server config from environment variables so main stays lean.
// An empty DATABASE_URL selects the in-memory contact store, which is only
// suitable for local development.
func FromEnv() Server {
	addr := os.Getenv("IDLINK_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	return Server{
		Addr:        addr,
		DatabaseURL: os.Getenv("DATABASE_URL"),
	}
}
