package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"
)

// Config holds all application configuration
type Config struct {
	// Server
	Port            string
	EnableScheduler bool

	// Storage
	DBDriver    string
	DBPath      string
	DatabaseURL string
	ServersFile string

	// Redis (optional): run lock + event publishing
	RedisURL     string
	EventChannel string

	// Collection
	CollectInterval time.Duration
	CollectWorkers  int
	ProbeTimeout    time.Duration
	ProbeSRV        bool

	// Trigger authorization. Empty hash means the trigger is open.
	CronSecretHash []byte

	// Query cache; zero disables it
	CacheTTL time.Duration

	// Logging
	LogLevel  string
	LogFormat string
}

// Supported storage drivers
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Load reads configuration from environment variables, after loading .env if present
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:            getenv("PORT", "3000"),
		EnableScheduler: envBool("ENABLE_SCHEDULER", true),
		DBDriver:        strings.ToLower(getenv("DB_DRIVER", DriverSQLite)),
		DBPath:          getenv("DB_PATH", "./analytics.db"),
		DatabaseURL:     getenv("DATABASE_URL", ""),
		ServersFile:     getenv("SERVERS_FILE", ""),
		RedisURL:        getenv("REDIS_URL", ""),
		EventChannel:    getenv("EVENT_CHANNEL", "mcnetwork:collections"),
		CollectInterval: envDurSecs("COLLECT_INTERVAL_SECONDS", 300),
		CollectWorkers:  envInt("COLLECT_WORKERS", 8),
		ProbeTimeout:    envDurSecs("PROBE_TIMEOUT_SECONDS", 5),
		ProbeSRV:        envBool("PROBE_SRV", true),
		CacheTTL:        envDurSecs("CACHE_TTL_SECONDS", 30),
		LogLevel:        getenv("LOG_LEVEL", "info"),
		LogFormat:       getenv("LOG_FORMAT", "json"),
	}

	// Cron secret, either pre-hashed or plaintext hashed at startup
	if h := getenv("CRON_SECRET_BCRYPT", ""); h != "" {
		cfg.CronSecretHash = []byte(h)
	} else if secret := getenv("CRON_SECRET", ""); secret != "" {
		h, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("hash CRON_SECRET: %w", err)
		}
		cfg.CronSecretHash = h
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks option combinations that cannot work
func (c *Config) Validate() error {
	switch c.DBDriver {
	case DriverSQLite, DriverMemory:
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DB_DRIVER=postgres requires DATABASE_URL")
		}
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.DBDriver)
	}
	if c.CollectInterval <= 0 {
		return fmt.Errorf("COLLECT_INTERVAL_SECONDS must be positive")
	}
	if c.CollectWorkers < 1 {
		c.CollectWorkers = 1
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = 5 * time.Second
	}
	return nil
}

// TriggerOpen reports whether collection may be triggered without a secret
func (c *Config) TriggerOpen() bool {
	return len(c.CronSecretHash) == 0
}

// VerifyCronSecret checks a presented secret against the configured hash
func (c *Config) VerifyCronSecret(secret string) bool {
	if c.TriggerOpen() {
		return true
	}
	if secret == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword(c.CronSecretHash, []byte(secret)) == nil
}

// Helper functions
func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func envInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envBool(k string, def bool) bool {
	v := strings.ToLower(getenv(k, ""))
	if v == "" {
		return def
	}
	return v == "1" || v == "true" || v == "yes"
}

func envDurSecs(k string, def int) time.Duration {
	return time.Duration(envInt(k, def)) * time.Second
}
