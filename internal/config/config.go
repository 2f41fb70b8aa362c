package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port                     string
	AllowedOrigin            string
	DatabaseURL              string
	RedisAddr                string
	RedisPassword            string
	RedisDB                  int
	LedgerCacheTTLSeconds    int
	AuthSecret               string
	AccessTokenTTLMinutes    int
	AdminUsername            string
	AdminPassword            string
	FirestoreProjectID       string
	FirestoreCredentialsFile string
	BusinessTimezone         string
	DayCloseOffsetSeconds    int
	FeedLookbackDays         int
	LogLevel                 string
	MetricsEnabled           bool
}

// Load reads the process environment. A .env file in the working directory
// is applied first when present and never overrides variables already set.
func Load() Config {
	_ = godotenv.Load()

	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))

	cfg := Config{
		Port:                     getEnv("PORT", "8080"),
		AllowedOrigin:            getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:3000"),
		DatabaseURL:              os.Getenv("DATABASE_URL"),
		RedisAddr:                os.Getenv("REDIS_ADDR"),
		RedisPassword:            os.Getenv("REDIS_PASSWORD"),
		RedisDB:                  redisDB,
		LedgerCacheTTLSeconds:    positiveInt("LEDGER_CACHE_TTL_SECONDS", 30),
		AuthSecret:               strings.TrimSpace(os.Getenv("AUTH_SECRET")),
		AccessTokenTTLMinutes:    positiveInt("ACCESS_TOKEN_TTL_MINUTES", 720),
		AdminUsername:            getEnv("ADMIN_USERNAME", "admin"),
		AdminPassword:            strings.TrimSpace(os.Getenv("ADMIN_PASSWORD")),
		FirestoreProjectID:       strings.TrimSpace(os.Getenv("FIRESTORE_PROJECT_ID")),
		FirestoreCredentialsFile: strings.TrimSpace(os.Getenv("FIRESTORE_CREDENTIALS_FILE")),
		BusinessTimezone:         getEnv("BUSINESS_TIMEZONE", "America/Bogota"),
		DayCloseOffsetSeconds:    positiveInt("DAY_CLOSE_OFFSET_SECONDS", 5),
		FeedLookbackDays:         nonNegativeInt("FEED_LOOKBACK_DAYS", 0),
		LogLevel:                 getEnv("LOG_LEVEL", "info"),
		MetricsEnabled:           strings.EqualFold(os.Getenv("METRICS_ENABLED"), "true"),
	}

	return cfg
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

// Location resolves the business timezone. Hosts without tzdata fall back to
// a fixed UTC-5, which is Bogotá year round.
func (c Config) Location() *time.Location {
	if loc, err := time.LoadLocation(c.BusinessTimezone); err == nil {
		return loc
	}
	return time.FixedZone("COT", -5*3600)
}

func (c Config) DayCloseOffset() time.Duration {
	return time.Duration(c.DayCloseOffsetSeconds) * time.Second
}

func (c Config) LedgerCacheTTL() time.Duration {
	return time.Duration(c.LedgerCacheTTLSeconds) * time.Second
}

func (c Config) AccessTokenTTL() time.Duration {
	return time.Duration(c.AccessTokenTTLMinutes) * time.Minute
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

func positiveInt(key string, fallback int) int {
	v, err := strconv.Atoi(getEnv(key, strconv.Itoa(fallback)))
	if err != nil || v < 1 {
		return fallback
	}
	return v
}

func nonNegativeInt(key string, fallback int) int {
	v, err := strconv.Atoi(getEnv(key, strconv.Itoa(fallback)))
	if err != nil || v < 0 {
		return fallback
	}
	return v
}
