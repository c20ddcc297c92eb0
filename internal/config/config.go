package config

import (
	"os"
	"strconv"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds all configuration for one view process.
type Config struct {
	AppEnv string
	Debug  bool

	// ViewKind selects which controller this process mounts.
	ViewKind string

	BackendURL    string
	PlatformURL   string
	PlatformEmail string
	PlatformToken string
	Subdomain     string
	TicketID      string

	DBPath                string
	DBDriver              string
	RedisAddr             string
	RedisPassword         string
	GRPCPort              int
	GRPCReflectionEnabled bool

	RefreshInterval    time.Duration
	PageSize           int
	NavPageSize        int
	BackfillWorkers    int
	RetryAttempts      int
	ExclusionThreshold int
	ScoreCacheTTL      time.Duration
}

// LoadFromEnv loads configuration from environment variables.
func LoadFromEnv() *Config {
	subdomain := getEnv("SUBDOMAIN", "")

	return &Config{
		AppEnv:   getEnv("APP_ENV", "development"),
		Debug:    getEnvAsBool("DEBUG", false),
		ViewKind: getEnv("VIEW_KIND", "background"),

		BackendURL:    getEnv("BACKEND_URL", "https://api.silverstream.io/sentiment-checker"),
		PlatformURL:   getEnv("PLATFORM_URL", defaultPlatformURL(subdomain)),
		PlatformEmail: getEnv("PLATFORM_EMAIL", ""),
		PlatformToken: getEnv("PLATFORM_TOKEN", ""),
		Subdomain:     subdomain,
		TicketID:      getEnv("TICKET_ID", ""),

		DBPath:                getEnv("DB_PATH", "./data/sentiment.db"),
		DBDriver:              getEnv("DB_DRIVER", "sqlite3"),
		RedisAddr:             getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:         getEnv("REDIS_PASSWORD", ""),
		GRPCPort:              getEnvAsInt("GRPC_PORT", 50051),
		GRPCReflectionEnabled: getEnvAsBool("GRPC_REFLECTION_ENABLED", false),

		RefreshInterval:    getEnvAsDuration("REFRESH_INTERVAL", 45*time.Minute),
		PageSize:           getEnvAsInt("PAGE_SIZE", 100),
		NavPageSize:        getEnvAsInt("NAV_PAGE_SIZE", 25),
		BackfillWorkers:    getEnvAsInt("BACKFILL_WORKERS", 1),
		RetryAttempts:      getEnvAsInt("RETRY_ATTEMPTS", 3),
		ExclusionThreshold: getEnvAsInt("EXCLUSION_THRESHOLD", 100),
		ScoreCacheTTL:      getEnvAsDuration("SCORE_CACHE_TTL", 10*time.Minute),
	}
}

// NewLogger creates a new Zap logger based on the config.
func NewLogger(cfg *Config) (*zap.Logger, error) {
	if cfg.AppEnv == "production" {
		zcfg := zap.NewProductionConfig()
		if cfg.Debug {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		return zcfg.Build()
	}
	return zap.NewDevelopment()
}

func defaultPlatformURL(subdomain string) string {
	if subdomain == "" {
		return ""
	}
	return "https://" + subdomain + ".zendesk.com"
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	v, err := strconv.Atoi(getEnv(key, ""))
	if err != nil {
		return fallback
	}
	return v
}

func getEnvAsBool(key string, fallback bool) bool {
	v, err := strconv.ParseBool(getEnv(key, ""))
	if err != nil {
		return fallback
	}
	return v
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	v, err := time.ParseDuration(getEnv(key, ""))
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}
