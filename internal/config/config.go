package config

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"time"
)

type Config struct {
	values map[string]string
}

func Load() (*Config, error) {
	cfg := &Config{
		values: make(map[string]string),
	}

	cfg.loadFromEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromMap builds a Config from explicit values instead of the environment.
func FromMap(values map[string]string) *Config {
	cfg := &Config{values: make(map[string]string, len(values))}
	for k, v := range values {
		if v != "" {
			cfg.values[k] = v
		}
	}
	return cfg
}

func (c *Config) loadFromEnv() {
	envVars := []string{
		"PORT",
		"GRPC_HEALTH_PORT",
		"POSTGRES_URL",
		"VISION_SERVICE_URL",
		"VISION_TIMEOUT",
		"COVERAGE_PER_UNIT",
		"IMAGE_STORE",
		"IMAGE_DIR",
		"S3_ENDPOINT",
		"S3_REGION",
		"S3_BUCKET",
		"S3_ACCESS_KEY_ID",
		"S3_SECRET_ACCESS_KEY",
		"S3_USE_PATH_STYLE",
		"LOG_LEVEL",
		"LOG_FORMAT",
		"LOG_OUTPUT",
		"LOG_DEVELOPMENT",
	}

	for _, envVar := range envVars {
		if value := os.Getenv(envVar); value != "" {
			c.values[envVar] = value
		}
	}
}

// Validate checks the settings the service cannot start without.
func (c *Config) Validate() error {
	if c.GetString("VISION_SERVICE_URL", "") == "" {
		return fmt.Errorf("required setting 'VISION_SERVICE_URL' is missing or empty")
	}
	if err := c.validateTyped(); err != nil {
		return err
	}
	if coverage := c.GetFloat("COVERAGE_PER_UNIT", 5.0); coverage <= 0 || math.IsInf(coverage, 0) || math.IsNaN(coverage) {
		return fmt.Errorf("COVERAGE_PER_UNIT must be a positive number, got %v", coverage)
	}
	switch store := c.GetString("IMAGE_STORE", "file"); store {
	case "file":
	case "s3":
		if c.GetString("S3_BUCKET", "") == "" {
			return fmt.Errorf("required setting 'S3_BUCKET' is missing for the s3 image store")
		}
	default:
		return fmt.Errorf("unknown IMAGE_STORE %q (valid: file, s3)", store)
	}
	return nil
}

func parseInt(v string) error      { _, err := strconv.Atoi(v); return err }
func parseFloat(v string) error    { _, err := strconv.ParseFloat(v, 64); return err }
func parseBool(v string) error     { _, err := strconv.ParseBool(v); return err }
func parseDuration(v string) error { _, err := time.ParseDuration(v); return err }

var typedSettings = []struct {
	key   string
	parse func(string) error
}{
	{"PORT", parseInt},
	{"GRPC_HEALTH_PORT", parseInt},
	{"COVERAGE_PER_UNIT", parseFloat},
	{"VISION_TIMEOUT", parseDuration},
	{"S3_USE_PATH_STYLE", parseBool},
	{"LOG_DEVELOPMENT", parseBool},
}

// validateTyped rejects typed settings that are present but do not parse.
func (c *Config) validateTyped() error {
	for _, setting := range typedSettings {
		value, exists := c.values[setting.key]
		if !exists {
			continue
		}
		if err := setting.parse(value); err != nil {
			return fmt.Errorf("invalid %s %q: %w", setting.key, value, err)
		}
	}
	return nil
}

func (c *Config) GetString(key, defaultValue string) string {
	if value, exists := c.values[key]; exists {
		return value
	}
	return defaultValue
}

func (c *Config) GetInt(key string, defaultValue int) int {
	if value, exists := c.values[key]; exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func (c *Config) GetFloat(key string, defaultValue float64) float64 {
	if value, exists := c.values[key]; exists {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func (c *Config) GetBool(key string, defaultValue bool) bool {
	if value, exists := c.values[key]; exists {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func (c *Config) GetDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := c.values[key]; exists {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
