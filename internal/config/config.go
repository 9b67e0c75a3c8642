// Package config loads runtime settings from the environment, optionally
// seeded from .env files.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const prefix = "ROOMLEDGER_"

// Config holds all runtime configuration values.
type Config struct {
	Addr     string // HTTP listen address
	GRPCAddr string // gRPC health listen address; empty disables it

	PGDSN    string // PostgreSQL DSN; empty keeps funds in memory
	Currency string // settlement currency of every wallet and escrow

	AuthSecret    string
	TokenTTL      time.Duration
	AdminUser     string // bootstrap admin created at startup when set
	AdminPassword string

	RateBurst  int
	RatePerSec int
	MaxBody    int64
	Origins    []string // CORS allow-list

	LogFile  string
	LogLevel string

	AMQPURL      string
	AMQPExchange string
	RedisAddr    string
	RedisPass    string
	RedisDB      int
	RedisChannel string
}

// Load reads .env files (missing ones are ignored; real environment
// variables win) and then the ROOMLEDGER_* variables.
func Load(files ...string) (Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}

	var errs []error
	cfg := Config{
		Addr:          str("ADDR", ":8080"),
		GRPCAddr:      str("GRPC_ADDR", ":9090"),
		PGDSN:         str("PG_DSN", ""),
		Currency:      strings.ToUpper(str("CURRENCY", "EUR")),
		AuthSecret:    str("AUTH_SECRET", ""),
		TokenTTL:      duration("TOKEN_TTL", time.Hour, &errs),
		AdminUser:     str("ADMIN_USER", ""),
		AdminPassword: str("ADMIN_PASSWORD", ""),
		RateBurst:     integer("RATE_BURST", 20, &errs),
		RatePerSec:    integer("RATE_PER_SEC", 10, &errs),
		MaxBody:       int64(integer("MAX_BODY_BYTES", 1<<20, &errs)),
		Origins:       list("CORS_ORIGINS", []string{"http://localhost:3000"}),
		LogFile:       str("LOG_FILE", ""),
		LogLevel:      str("LOG_LEVEL", "info"),
		AMQPURL:       str("AMQP_URL", ""),
		AMQPExchange:  str("AMQP_EXCHANGE", "roomledger.events"),
		RedisAddr:     str("REDIS_ADDR", ""),
		RedisPass:     str("REDIS_PASSWORD", ""),
		RedisDB:       integer("REDIS_DB", 0, &errs),
		RedisChannel:  str("REDIS_CHANNEL", "roomledger:events"),
	}
	if cfg.AuthSecret == "" {
		errs = append(errs, errors.New(prefix+"AUTH_SECRET is required"))
	}
	if cfg.RateBurst <= 0 || cfg.RatePerSec <= 0 {
		errs = append(errs, errors.New("rate limits must be positive"))
	}
	if (cfg.AdminUser == "") != (cfg.AdminPassword == "") {
		errs = append(errs, errors.New(prefix+"ADMIN_USER and "+prefix+"ADMIN_PASSWORD must be set together"))
	}
	if err := errors.Join(errs...); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func str(key, def string) string {
	if v, ok := os.LookupEnv(prefix + key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return def
}

func integer(key string, def int, errs *[]error) int {
	raw := str(key, "")
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("invalid int for %s%s: %q", prefix, key, raw))
		return def
	}
	return n
}

func duration(key string, def time.Duration, errs *[]error) time.Duration {
	raw := str(key, "")
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		*errs = append(*errs, fmt.Errorf("invalid duration for %s%s: %q", prefix, key, raw))
		return def
	}
	return d
}

func list(key string, def []string) []string {
	raw := str(key, "")
	if raw == "" {
		return def
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
