package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds process-level configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string
	NodeID      int64

	OTLPEndpoint string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	PreviewRatePerSecond float64
	PreviewBurst         int

	SchedulerRunInterval       time.Duration
	SchedulerBatchSize         int
	SchedulerRecoveryThreshold time.Duration
	SchedulerJobs              []string

	AuthzEnabled bool
	RunMigration bool
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		AppName:                    getenv("APP_SERVICE", "payrollengine"),
		AppVersion:                 getenv("APP_VERSION", "0.1.0"),
		Environment:                getenv("ENVIRONMENT", "development"),
		HTTPAddr:                   getenv("HTTP_ADDR", ":8080"),
		NodeID:                     getenvInt64("NODE_ID", 1),
		OTLPEndpoint:               getenv("OTLP_ENDPOINT", "localhost:4317"),
		DBType:                     getenv("DATABASE_TYPE", "postgres"),
		DBHost:                     getenv("DATABASE_HOST", "localhost"),
		DBPort:                     getenv("DATABASE_PORT", "5432"),
		DBName:                     getenv("DATABASE_NAME", "payroll"),
		DBUser:                     getenv("DATABASE_USER", "postgres"),
		DBPassword:                 getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:                  getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:              int(getenvInt64("DATABASE_MAX_IDLE_CONN", 10)),
		DBMaxOpenConn:              int(getenvInt64("DATABASE_MAX_OPEN_CONN", 50)),
		DBConnMaxLifetime:          int(getenvInt64("DATABASE_CONN_MAX_LIFETIME", 1800)),
		DBConnMaxIdleTime:          int(getenvInt64("DATABASE_CONN_MAX_IDLE_TIME", 300)),
		RedisAddr:                  strings.TrimSpace(getenv("REDIS_ADDR", "")),
		RedisPassword:              getenv("REDIS_PASSWORD", ""),
		RedisDB:                    int(getenvInt64("REDIS_DB", 0)),
		PreviewRatePerSecond:       getenvFloat64("PREVIEW_RATE_PER_SECOND", 5),
		PreviewBurst:               int(getenvInt64("PREVIEW_BURST", 20)),
		SchedulerRunInterval:       time.Duration(getenvInt64("SCHEDULER_RUN_INTERVAL_SECONDS", 60)) * time.Second,
		SchedulerBatchSize:         int(getenvInt64("SCHEDULER_BATCH_SIZE", 50)),
		SchedulerRecoveryThreshold: time.Duration(getenvInt64("SCHEDULER_RECOVERY_THRESHOLD_MINUTES", 30)) * time.Minute,
		SchedulerJobs:              getenvList("SCHEDULER_JOBS"),
		AuthzEnabled:               getenvBool("AUTHZ_ENABLED", false),
		RunMigration:               getenvBool("RUN_MIGRATION", true),
	}
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), "production")
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt64(key string, def int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat64(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
