package config

import (
	"os"
	"strconv"
	"strings"
)

// Settings holds process configuration read from the environment
type Settings struct {
	Port string

	DatabaseURL   string
	RedisURL      string
	RedisPassword string
	RedisDB       int

	AdminJWTSecret string
	AdminUserIDs   []string

	ReceiptPrivateKey string

	PredictAccessRequired bool
}

// Load reads Settings from environment variables, applying defaults.
// Call godotenv.Load first if a .env file should be honoured.
func Load() Settings {
	s := Settings{
		Port:                  getEnv("PORT", DefaultPort),
		DatabaseURL:           os.Getenv("DATABASE_URL"),
		RedisURL:              getEnv("REDIS_URL", "localhost:6379"),
		RedisPassword:         os.Getenv("REDIS_PASSWORD"),
		RedisDB:               getEnvInt("REDIS_DB", 0),
		AdminJWTSecret:        os.Getenv("ADMIN_JWT_SECRET"),
		AdminUserIDs:          splitList(os.Getenv("ADMIN_USER_IDS")),
		ReceiptPrivateKey:     os.Getenv("RECEIPT_PRIVATE_KEY"),
		PredictAccessRequired: getEnvBool("PREDICT_ACCESS_REQUIRED", true),
	}
	return s
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
