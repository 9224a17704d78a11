// Package config loads the process configuration once at startup.
//
// Values come from the environment, after an optional .env file. Numeric,
// boolean and duration values that fail to parse fall back to their
// defaults instead of failing startup.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"elite-store-api/middleware/admission/domain"
	"elite-store-api/middleware/origin"
)

const ModeProduction = "production"

type Config struct {
	Env        string
	Port       string
	Serverless bool
	LogLevel   string

	DatabaseURL           string
	DatabaseURLProduction string
	ConnectTimeout        time.Duration
	ShutdownGrace         time.Duration

	Admission AdmissionConfig

	FrontendURL    string
	AllowedOrigins []string

	MetricsEnabled bool
	Stats          StatsConfig
}

type AdmissionConfig struct {
	Rule             domain.Rule
	SweepInterval    time.Duration
	TrustXFF         bool
	RateLimitHeaders bool
	MaxInFlight      int
	InFlightTimeout  time.Duration
}

// StatsConfig configures the optional Redis sink for admission statistics.
type StatsConfig struct {
	Enabled       bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	Prefix        string
	TTL           time.Duration
	Bucket        string
	TrackKeys     bool
}

// Load reads .env (if present) and the environment.
func Load() (Config, error) {
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv builds the configuration from the current environment only.
func FromEnv() (Config, error) {
	cfg := Config{}
	cfg.Env = strings.ToLower(getenvDefault("APP_ENV", "development"))
	cfg.Port = getenvDefault("PORT", "5000")
	cfg.Serverless = getenvBoolDefault("SERVERLESS", false)
	cfg.LogLevel = getenvDefault("LOG_LEVEL", "info")

	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	cfg.DatabaseURLProduction = strings.TrimSpace(os.Getenv("DATABASE_URL_PRODUCTION"))
	cfg.ConnectTimeout = getenvDurationDefault("DB_CONNECT_TIMEOUT", 10*time.Second)
	cfg.ShutdownGrace = getenvDurationDefault("SHUTDOWN_GRACE", 10*time.Second)

	cfg.Admission = AdmissionConfig{
		Rule: domain.Rule{
			Window:        getenvMillisDefault("RATE_LIMIT_WINDOW_MS", 15*time.Minute),
			MaxRequests:   getenvPositiveIntDefault("RATE_LIMIT_MAX_REQUESTS", 100),
			BlockDuration: getenvMillisDefault("BLOCK_DURATION_MS", 30*time.Minute),
		},
		SweepInterval:    getenvDurationDefault("BLOCK_SWEEP_INTERVAL", 0),
		TrustXFF:         getenvBoolDefault("TRUST_XFF", false),
		RateLimitHeaders: getenvBoolDefault("RATELIMIT_HEADERS", true),
		MaxInFlight:      getenvIntDefault("MAX_IN_FLIGHT", 0),
		InFlightTimeout:  getenvDurationDefault("IN_FLIGHT_TIMEOUT", 0),
	}

	cfg.FrontendURL = strings.TrimSpace(os.Getenv("FRONTEND_URL"))
	cfg.AllowedOrigins = splitCSV(os.Getenv("CORS_ALLOWED_ORIGINS"))

	cfg.MetricsEnabled = getenvBoolDefault("METRICS_ENABLED", true)
	cfg.Stats = StatsConfig{
		Enabled:       getenvBoolDefault("RATE_STATS_ENABLED", false),
		RedisAddr:     getenvDefault("RATE_STATS_REDIS_ADDR", ""),
		RedisPassword: os.Getenv("RATE_STATS_REDIS_PASSWORD"),
		RedisDB:       getenvIntDefault("RATE_STATS_REDIS_DB", 0),
		Prefix:        getenvDefault("RATE_STATS_PREFIX", "admission:stats"),
		TTL:           getenvDurationDefault("RATE_STATS_TTL", 24*time.Hour),
		Bucket:        getenvDefault("RATE_STATS_BUCKET", "minute"),
		TrackKeys:     getenvBoolDefault("RATE_STATS_TRACK_KEYS", false),
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.DatastoreTarget() == "" {
		if c.IsProduction() {
			return errors.New("DATABASE_URL_PRODUCTION is required when APP_ENV=production")
		}
		return errors.New("DATABASE_URL is required")
	}
	if c.Stats.Enabled && strings.TrimSpace(c.Stats.RedisAddr) == "" {
		return errors.New("RATE_STATS_REDIS_ADDR is required when RATE_STATS_ENABLED=true")
	}
	if c.Admission.MaxInFlight < 0 {
		return errors.New("MAX_IN_FLIGHT must be >= 0")
	}
	return nil
}

func (c Config) IsProduction() bool { return c.Env == ModeProduction }

// DatastoreTarget picks the connection string for the current mode.
func (c Config) DatastoreTarget() string {
	if c.IsProduction() {
		return c.DatabaseURLProduction
	}
	return c.DatabaseURL
}

// ListenAddr is empty in serverless mode, where no port is bound.
func (c Config) ListenAddr() string {
	if c.Serverless {
		return ""
	}
	return ":" + c.Port
}

// AllowList builds the origin allow-list; unset entries are dropped.
func (c Config) AllowList() origin.AllowList {
	return origin.NewAllowList(append([]string{c.FrontendURL}, c.AllowedOrigins...)...)
}

func getenvDefault(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func getenvIntDefault(k string, def int) int {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func getenvPositiveIntDefault(k string, def int) int {
	if i := getenvIntDefault(k, def); i > 0 {
		return i
	}
	return def
}

// getenvMillisDefault reads a whole number of milliseconds.
func getenvMillisDefault(k string, def time.Duration) time.Duration {
	ms := getenvIntDefault(k, 0)
	if ms <= 0 {
		return def
	}
	return time.Duration(ms) * time.Millisecond
}

func getenvBoolDefault(k string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getenvDurationDefault(k string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func splitCSV(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if item := strings.TrimSpace(p); item != "" {
			out = append(out, item)
		}
	}
	return out
}
