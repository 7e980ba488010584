package config

import (
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"
)

// LoggingConfig holds logging-related configuration.
type LoggingConfig struct {
	Level      string
	Pretty     bool
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// AxiomConfig holds Axiom logging configuration.
type AxiomConfig struct {
	Send          bool
	APIKey        string
	OrgID         string
	Dataset       string
	FlushInterval time.Duration
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Port            string
	ShutdownTimeout time.Duration
}

// RenderConfig bounds rasterisation.
type RenderConfig struct {
	MaxSide     int
	JPEGQuality int
	ThumbWidth  int
	Yield       time.Duration
	Workers     int // per run; >1 only helps reentrant documents
	Slots       int // process-wide concurrent rasterisations
}

// SessionConfig limits viewer sessions.
type SessionConfig struct {
	IdleTTL time.Duration
	Max     int
}

// StoreConfig selects where session progress is kept. An empty RedisURL keeps
// it in memory.
type StoreConfig struct {
	RedisURL  string
	StatusTTL time.Duration
}

// SourceConfig controls document fetching.
type SourceConfig struct {
	MaxBytes   int64
	Timeout    time.Duration
	AllowFiles bool
	S3Bucket   string
	S3Endpoint string
	S3Region   string
	AccessKey  string
	SecretKey  string
}

// RelayConfig controls the /api/proxy passthrough.
type RelayConfig struct {
	Timeout time.Duration
}

// Config is the top-level configuration.
type Config struct {
	Logging LoggingConfig
	Axiom   AxiomConfig
	Server  ServerConfig
	Render  RenderConfig
	Session SessionConfig
	Store   StoreConfig
	Source  SourceConfig
	Relay   RelayConfig
}

// FromEnv loads configuration from environment with sensible defaults.
func FromEnv() Config {
	cfg := Config{}

	// Logging defaults
	cfg.Logging = LoggingConfig{
		Level:      getEnv("LOG_LEVEL", "info"),
		Pretty:     parseBool(getEnv("LOG_PRETTY", devDefaultPretty())),
		File:       getEnv("LOG_FILE", "logs/flipbook.log"),
		MaxSizeMB:  parseInt(getEnv("LOG_MAX_SIZE_MB", "100"), 100),
		MaxBackups: parseInt(getEnv("LOG_MAX_BACKUPS", "10"), 10),
		MaxAgeDays: parseInt(getEnv("LOG_MAX_AGE_DAYS", "30"), 30),
		Compress:   parseBool(getEnv("LOG_COMPRESS", "true")),
	}

	// Axiom defaults
	baseDataset := getEnv("AXIOM_DATASET", "dev")
	cfg.Axiom = AxiomConfig{
		Send:          parseBool(getEnv("SEND_LOGS_TO_AXIOM", "0")),
		APIKey:        getEnv("AXIOM_API_KEY", ""),
		OrgID:         getEnv("AXIOM_ORG_ID", ""),
		Dataset:       baseDataset + "_flipbook",
		FlushInterval: parseDuration(getEnv("AXIOM_FLUSH_INTERVAL", "10s"), 10*time.Second),
	}

	cfg.Server = ServerConfig{
		Port:            getEnv("PORT", "8080"),
		ShutdownTimeout: parseDuration(getEnv("SHUTDOWN_TIMEOUT", "15s"), 15*time.Second),
	}

	// Render defaults
	slots := runtime.NumCPU()
	cfg.Render = RenderConfig{
		MaxSide:     parseInt(getEnv("RENDER_MAX_SIDE", "4000"), 4000),
		JPEGQuality: parseInt(getEnv("RENDER_JPEG_QUALITY", "92"), 92),
		ThumbWidth:  parseInt(getEnv("RENDER_THUMB_WIDTH", "160"), 160),
		Yield:       parseDuration(getEnv("RENDER_YIELD", "6ms"), 6*time.Millisecond),
		Workers:     parseInt(getEnv("RENDER_WORKERS", "1"), 1),
		Slots:       parseInt(getEnv("RENDER_SLOTS", strconv.Itoa(slots)), slots),
	}
	if cfg.Render.MaxSide <= 0 || cfg.Render.MaxSide > 4000 {
		cfg.Render.MaxSide = 4000
	}
	if cfg.Render.JPEGQuality <= 0 || cfg.Render.JPEGQuality > 100 {
		cfg.Render.JPEGQuality = 92
	}
	if cfg.Render.Workers <= 0 {
		cfg.Render.Workers = 1
	}
	if cfg.Render.Slots <= 0 {
		cfg.Render.Slots = slots
	}

	cfg.Session = SessionConfig{
		IdleTTL: parseDuration(getEnv("SESSION_IDLE_TTL", "30m"), 30*time.Minute),
		Max:     parseInt(getEnv("SESSION_MAX", "100"), 100),
	}

	cfg.Store = StoreConfig{
		RedisURL:  getEnv("REDIS_URL", ""),
		StatusTTL: parseDuration(getEnv("STATUS_TTL", "24h"), 24*time.Hour),
	}

	cfg.Source = SourceConfig{
		MaxBytes:   parseInt64(getEnv("SOURCE_MAX_BYTES", "104857600"), 100<<20),
		Timeout:    parseDuration(getEnv("SOURCE_TIMEOUT", "60s"), 60*time.Second),
		AllowFiles: parseBool(getEnv("SOURCE_ALLOW_FILES", "false")),
		S3Bucket:   getEnv("AWS_S3_BUCKET", ""),
		S3Endpoint: getEnv("S3_ENDPOINT", ""),
		S3Region:   getEnv("AWS_REGION", ""),
		AccessKey:  getEnv("S3_ACCESS_KEY", ""),
		SecretKey:  getEnv("S3_SECRET_KEY", ""),
	}

	cfg.Relay = RelayConfig{
		Timeout: parseDuration(getEnv("RELAY_TIMEOUT", "30s"), 30*time.Second),
	}

	return cfg
}

// S3Enabled reports whether enough is configured to build an S3 client.
func (c SourceConfig) S3Enabled() bool { return c.S3Bucket != "" || c.S3Endpoint != "" }

// Helpers
func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseInt(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

func parseInt64(s string, def int64) int64 {
	if s == "" {
		return def
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	return def
}

func parseFloat(s string, def float64) float64 {
	if s == "" {
		return def
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return def
}

func parseBool(s string) bool {
	v := strings.ToLower(strings.TrimSpace(s))
	return v == "1" || v == "true" || v == "yes" || v == "on"
}

func parseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}
	return def
}

func devDefaultPretty() string {
	env := strings.ToLower(os.Getenv("ENVIRONMENT"))
	if env == "dev" || env == "development" || env == "local" {
		return "true"
	}
	return "false"
}
