package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration
type Config struct {
	Port     string `yaml:"port"`
	MongoURI string `yaml:"mongo_uri"`
	RedisURL string `yaml:"redis_url"`

	// JWTSecret verifies dashboard tokens issued by the identity provider
	JWTSecret string `yaml:"jwt_secret"`

	// Session-length refresh job
	RefreshEnabled  bool          `yaml:"refresh_enabled"`
	RefreshInterval time.Duration `yaml:"refresh_interval"`
}

// Load loads configuration from environment variables with defaults,
// then overlays the optional YAML file named by CONFIG_FILE.
func Load() *Config {
	cfg := &Config{
		Port:     getEnv("PORT", "8000"),
		MongoURI: getEnv("MONGODB_URI", ""),
		RedisURL: getEnv("REDIS_URL", ""),

		JWTSecret: getEnv("JWT_SECRET", ""),

		RefreshEnabled:  getBoolEnv("SESSION_LENGTH_REFRESH_ENABLED", true),
		RefreshInterval: time.Duration(getIntEnv("SESSION_LENGTH_REFRESH_MINUTES", 30)) * time.Minute,
	}

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.overlayFile(path); err != nil {
			// Bad overlay files are a deploy error worth failing loudly on
			panic(fmt.Sprintf("failed to load config file %s: %v", path, err))
		}
	}

	return cfg
}

// overlayFile merges a YAML config file over the environment-derived values
func (c *Config) overlayFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var overlay Config
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return fmt.Errorf("failed to parse config YAML: %w", err)
	}

	if overlay.Port != "" {
		c.Port = overlay.Port
	}
	if overlay.MongoURI != "" {
		c.MongoURI = overlay.MongoURI
	}
	if overlay.RedisURL != "" {
		c.RedisURL = overlay.RedisURL
	}
	if overlay.JWTSecret != "" {
		c.JWTSecret = overlay.JWTSecret
	}
	if overlay.RefreshInterval != 0 {
		c.RefreshInterval = overlay.RefreshInterval
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.ParseBool(value)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.Atoi(value)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}
