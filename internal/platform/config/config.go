package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string
	JWTSigningKey   string
	JWTIssuer       string
	JWTAudience     string
	AdminTokenHash  string
	ShutdownTimeout time.Duration
}

// Ledger captures the ledger identities and confirmation policy.
type Ledger struct {
	SignerAddress  string
	AdminAddress   string
	ConfirmTimeout time.Duration
}

// Postgres selects the durable store. An empty DSN keeps the ledger in
// memory.
type Postgres struct {
	DSN string
}

// RedisConfig carries the optional statistics cache settings. An empty URL
// disables the cache.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Kafka carries the optional event mirror settings. No brokers disables the
// mirror.
type Kafka struct {
	Brokers      []string
	Topic        string
	PollInterval time.Duration
}

// Config is the full service configuration.
type Config struct {
	Server   Server
	Ledger   Ledger
	Postgres Postgres
	Redis    RedisConfig
	Kafka    Kafka
}

// FromEnv builds a Config from environment variables so main stays lean.
func FromEnv() Config {
	return Config{
		Server: Server{
			Addr:            envOr("LEDGERGUARD_ADDR", ":8080"),
			JWTSigningKey:   envOr("JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
			JWTIssuer:       envOr("JWT_ISSUER", "ledgerguard"),
			JWTAudience:     envOr("JWT_AUDIENCE", "ledgerguard"),
			AdminTokenHash:  os.Getenv("ADMIN_TOKEN_HASH"),
			ShutdownTimeout: envDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Ledger: Ledger{
			SignerAddress:  os.Getenv("LEDGER_SIGNER_ADDRESS"),
			AdminAddress:   os.Getenv("LEDGER_ADMIN_ADDRESS"),
			ConfirmTimeout: envDuration("LEDGER_CONFIRM_TIMEOUT", 10*time.Second),
		},
		Postgres: Postgres{
			DSN: os.Getenv("POSTGRES_DSN"),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     envInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  envDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: Kafka{
			Brokers:      envList("KAFKA_BROKERS"),
			Topic:        envOr("KAFKA_TOPIC", "ledgerguard.events"),
			PollInterval: envDuration("KAFKA_POLL_INTERVAL", time.Second),
		},
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
