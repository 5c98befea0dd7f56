package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port        string
	JWTSecret   string
	MongoURI    string
	DBName      string
	SkipAuth    bool
	Environment string
	AppId       string

	RedisURL   string        // empty disables the per-config run lock
	RunLockTTL time.Duration // lease length, renewed while a run is alive
	VaultAddr  string
	VaultToken string

	DefaultBatchSize  int
	DeletionScanLimit int
	SchedulerEnabled  bool
	CORSOrigins       string
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	} else {
		log.Println("Loaded .env file successfully")
	}

	return &Config{
		Port:        getEnv("PORT", "8080"),
		JWTSecret:   getEnv("JWT_SECRET", "secret"),
		MongoURI:    getEnv("MONGO_URI", "mongodb://localhost:27017"),
		DBName:      getEnv("DB_NAME", "dbsync"),
		SkipAuth:    getEnv("SKIP_AUTH", "false") == "true",
		Environment: getEnv("ENVIRONMENT", "development"),
		AppId:       getEnv("APP_ID", "dbsync"),

		RedisURL:   getEnv("REDIS_URL", ""),
		RunLockTTL: getDuration("RUN_LOCK_TTL", 30*time.Second),
		VaultAddr:  getEnv("VAULT_ADDR", ""),
		VaultToken: getEnv("VAULT_TOKEN", ""),

		DefaultBatchSize:  getInt("DEFAULT_BATCH_SIZE", 100),
		DeletionScanLimit: getInt("DELETION_SCAN_LIMIT", 100000),
		SchedulerEnabled:  getEnv("SCHEDULER_ENABLED", "true") == "true",
		CORSOrigins:       getEnv("CORS_ORIGINS", "*"),
	}, nil
}

// IsProduction reports whether ENVIRONMENT is production.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v, err := strconv.Atoi(getEnv(key, ""))
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v, err := time.ParseDuration(getEnv(key, ""))
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}
