package config

import (
	"fmt"
	"os"
	"time"
)

type Config struct {
	DBFile          string
	APIAddr         string
	JWTSecret       string
	UserServiceURL  string
	ProfileCacheTTL time.Duration
	TokenCacheTTL   time.Duration
}

func Load() (*Config, error) {
	profileTTL, err := time.ParseDuration(getEnv("PROFILE_CACHE_TTL", "5m"))
	if err != nil {
		return nil, fmt.Errorf("invalid PROFILE_CACHE_TTL: %w", err)
	}

	tokenTTL, err := time.ParseDuration(getEnv("TOKEN_CACHE_TTL", "1m"))
	if err != nil {
		return nil, fmt.Errorf("invalid TOKEN_CACHE_TTL: %w", err)
	}

	cfg := &Config{
		DBFile:          getEnv("LICHKA_DB", "lichka.db"),
		APIAddr:         getEnv("API_ADDR", ":4002"),
		JWTSecret:       os.Getenv("JWT_SECRET"),
		UserServiceURL:  getEnv("USER_SERVICE_URL", "http://localhost:4001"),
		ProfileCacheTTL: profileTTL,
		TokenCacheTTL:   tokenTTL,
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}

	if c.ProfileCacheTTL <= 0 {
		return fmt.Errorf("PROFILE_CACHE_TTL must be greater than 0")
	}

	if c.TokenCacheTTL <= 0 {
		return fmt.Errorf("TOKEN_CACHE_TTL must be greater than 0")
	}

	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
