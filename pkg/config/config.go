package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds environment-driven settings for the trading engine.
type Config struct {
	Port string

	// Binance
	BinanceTestnet   bool
	BinanceAPIKey    string
	BinanceAPISecret string
	BinanceSymbols   []string
	EnableTrading    bool

	// Prediction oracle
	EnableOracle  bool
	OracleBaseURL string

	// Database
	DBPath string

	// Trading policy file (YAML); env values override file values.
	PolicyPath string

	// Auth
	JWTSecret         string
	AdminUser         string
	AdminPasswordHash string // bcrypt hash of the admin password
}

// Load reads environment variables (optionally via .env) into Config.
func Load() (*Config, error) {
	// Ignore error so the app still starts when .env is missing.
	_ = godotenv.Load()

	return &Config{
		Port:              getEnv("PORT", "8080"),
		BinanceTestnet:    getEnvBool("BINANCE_TESTNET", false),
		BinanceAPIKey:     os.Getenv("BINANCE_API_KEY"),
		BinanceAPISecret:  os.Getenv("BINANCE_API_SECRET"),
		BinanceSymbols:    splitAndTrim(getEnv("BINANCE_SYMBOLS", "")),
		EnableTrading:     getEnvBool("ENABLE_TRADING", false),
		EnableOracle:      getEnvBool("ENABLE_ORACLE", false),
		OracleBaseURL:     getEnv("ORACLE_BASE_URL", "http://localhost:8000"),
		DBPath:            getEnv("DB_PATH", "./data/trading.db"),
		PolicyPath:        getEnv("POLICY_PATH", "./policy.yaml"),
		JWTSecret:         getEnv("JWT_SECRET", "dev-secret"),
		AdminUser:         getEnv("ADMIN_USER", "admin"),
		AdminPasswordHash: os.Getenv("ADMIN_PASSWORD_HASH"),
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		return v == "true" || v == "1"
	}
	return def
}

func splitAndTrim(val string) []string {
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}
