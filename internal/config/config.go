// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port     string
	Env      string // "development", "staging", "production"
	LogLevel string

	// Database
	DatabaseURL string // PostgreSQL connection string (optional, uses in-memory if not set)

	// Stripe
	StripeSecretKey string
	Currency        string // ISO currency code for checkout sessions

	// Checkout redirect target (the web client)
	FrontendURL string

	// Secure-Pay settings
	BuyerFeeBPS int // buyer service fee in basis points, fixed at session creation

	// Boost settings
	BoostPriceCents int64 // flat boost price
	BoostHours      int   // boost visibility window

	// Tracing
	OTLPEndpoint string
}

// Defaults
const (
	DefaultPort            = "8080"
	DefaultEnv             = "development"
	DefaultLogLevel        = "info"
	DefaultCurrency        = "cad"
	DefaultFrontendURL     = "http://localhost:5173"
	DefaultBuyerFeeBPS     = 700 // 7%
	DefaultBoostPriceCents = 200 // $2.00
	DefaultBoostHours      = 48
)

// Load reads configuration from environment variables
// It loads .env file if present (for local development)
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	cfg := &Config{
		Port:            getEnv("PORT", DefaultPort),
		Env:             getEnv("ENV", DefaultEnv),
		LogLevel:        getEnv("LOG_LEVEL", DefaultLogLevel),
		DatabaseURL:     os.Getenv("DATABASE_URL"), // Optional, uses in-memory if not set
		StripeSecretKey: os.Getenv("STRIPE_SECRET_KEY"),
		Currency:        getEnv("CURRENCY", DefaultCurrency),
		FrontendURL:     getEnv("FRONTEND_URL", DefaultFrontendURL),
		BuyerFeeBPS:     int(getEnvInt64("BUYER_FEE_BPS", DefaultBuyerFeeBPS)),
		BoostPriceCents: getEnvInt64("BOOST_PRICE_CENTS", DefaultBoostPriceCents),
		BoostHours:      int(getEnvInt64("BOOST_HOURS", DefaultBoostHours)),
		OTLPEndpoint:    os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all required configuration is present
func (c *Config) Validate() error {
	if c.IsProduction() && c.StripeSecretKey == "" {
		return fmt.Errorf("STRIPE_SECRET_KEY is required in production")
	}
	if c.StripeSecretKey != "" && !strings.HasPrefix(c.StripeSecretKey, "sk_") {
		return fmt.Errorf("STRIPE_SECRET_KEY must be a secret key (sk_...)")
	}
	if c.BuyerFeeBPS < 0 || c.BuyerFeeBPS > 10000 {
		return fmt.Errorf("BUYER_FEE_BPS must be between 0 and 10000")
	}
	if c.BoostPriceCents <= 0 {
		return fmt.Errorf("BOOST_PRICE_CENTS must be positive")
	}
	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}
