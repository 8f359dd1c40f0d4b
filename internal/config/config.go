package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	AppMode  string
	Port     string
	LogLevel string
	Database DatabaseConfig
	JWT      JWTConfig
	Payment  PaymentConfig
	Redis    RedisConfig
	Expiry   ExpiryConfig
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	Secret           string
	RefreshSecret    string
	AccessTokenMins  int
	RefreshTokenDays int
}

// PaymentConfig holds mobile-money gateway configuration
type PaymentConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// RedisConfig holds the notification stream configuration
type RedisConfig struct {
	Addr     string
	Password string
	Stream   string
}

// ExpiryConfig holds the stale-request sweeper configuration
type ExpiryConfig struct {
	SweepSpec      string
	PaymentTimeout time.Duration
	PayoutTimeout  time.Duration
}

// Global config instance
var AppConfig *Config

// Load reads configuration from .env file and environment variables
func Load() (*Config, error) {
	// Load .env file (ignore error if file doesn't exist in production)
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found, using environment variables")
	}

	appMode := strings.TrimSpace(getEnv("APP_MODE", "dev"))
	if appMode != "dev" && appMode != "prod" {
		return nil, fmt.Errorf("invalid APP_MODE: '%s' (must be 'dev' or 'prod')", appMode)
	}

	config := &Config{
		AppMode:  appMode,
		Port:     getEnv("PORT", "3000"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		Database: loadDatabaseConfig(appMode),
		JWT:      loadJWTConfig(appMode),
		Payment:  loadPaymentConfig(),
		Redis:    loadRedisConfig(),
		Expiry:   loadExpiryConfig(),
	}

	AppConfig = config

	log.Printf("Configuration loaded [MODE: %s]", appMode)
	return config, nil
}

// loadDatabaseConfig loads database config based on mode
func loadDatabaseConfig(mode string) DatabaseConfig {
	prefix := "DEV_"
	if mode == "prod" {
		prefix = "PROD_"
	}

	return DatabaseConfig{
		Host:     getEnv(prefix+"DB_HOST", "localhost"),
		Port:     getEnv(prefix+"DB_PORT", "3306"),
		User:     getEnv(prefix+"DB_USER", "root"),
		Password: getEnv(prefix+"DB_PASS", ""),
		DBName:   getEnv(prefix+"DB_NAME", "tontiflex"),
	}
}

// loadJWTConfig loads JWT config based on mode
func loadJWTConfig(mode string) JWTConfig {
	prefix := "DEV_"
	if mode == "prod" {
		prefix = "PROD_"
	}

	accessMins, _ := strconv.Atoi(getEnv("ACCESS_TOKEN_MINUTES", "15"))
	refreshDays, _ := strconv.Atoi(getEnv("REFRESH_TOKEN_DAYS", "7"))

	return JWTConfig{
		Secret:           getEnv(prefix+"JWT_SECRET", "default_secret"),
		RefreshSecret:    getEnv(prefix+"JWT_REFRESH_SECRET", "default_refresh_secret"),
		AccessTokenMins:  accessMins,
		RefreshTokenDays: refreshDays,
	}
}

// loadPaymentConfig loads the mobile-money gateway config
func loadPaymentConfig() PaymentConfig {
	timeoutSecs, _ := strconv.Atoi(getEnv("PAYMENT_TIMEOUT_SECONDS", "10"))

	return PaymentConfig{
		BaseURL: getEnv("PAYMENT_BASE_URL", "http://localhost:8090"),
		APIKey:  getEnv("PAYMENT_API_KEY", ""),
		Timeout: time.Duration(timeoutSecs) * time.Second,
	}
}

// loadRedisConfig loads the notification stream config
func loadRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
		Password: getEnv("REDIS_PASSWORD", ""),
		Stream:   getEnv("NOTIFICATION_STREAM", "tontiflex:notifications"),
	}
}

// loadExpiryConfig loads the stale-request sweeper config
func loadExpiryConfig() ExpiryConfig {
	paymentMins, _ := strconv.Atoi(getEnv("PAYMENT_PENDING_TIMEOUT_MINUTES", "60"))
	payoutMins, _ := strconv.Atoi(getEnv("PAYOUT_PENDING_TIMEOUT_MINUTES", "1440"))

	return ExpiryConfig{
		SweepSpec:      getEnv("EXPIRE_SWEEP_CRON", "@every 5m"),
		PaymentTimeout: time.Duration(paymentMins) * time.Minute,
		PayoutTimeout:  time.Duration(payoutMins) * time.Minute,
	}
}

// getEnv gets environment variable with default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// IsDev returns true if running in development mode
func (c *Config) IsDev() bool {
	return c.AppMode == "dev"
}

// IsProd returns true if running in production mode
func (c *Config) IsProd() bool {
	return c.AppMode == "prod"
}

// GetAllowedOrigins returns allowed origins for CORS
func (c *Config) GetAllowedOrigins() string {
	origins := getEnv("ALLOWED_ORIGINS", "")
	if origins == "" {
		if c.IsDev() {
			return "*"
		}
		return "https://app.tontiflex.bj"
	}
	return origins
}
