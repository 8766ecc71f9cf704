// Package config loads demo-runner configuration from environment
// variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/3-electric-sheep/wisdk-go/wisdk"
)

// Config holds the demo runner configuration.
type Config struct {
	// Provider
	ProviderKey     string
	TestProviderKey string
	Environment     string
	PushProfile     string
	TestPushProfile string

	// Storage
	StorePath string

	// Location tuning
	RequireBackgroundLocation bool
	GeofenceRadius            float64
	UpdateInterval            time.Duration

	// Simulation
	SimulInterval time.Duration
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		ProviderKey:     getEnv("WI_PROVIDER_KEY", ""),
		TestProviderKey: getEnv("WI_TEST_PROVIDER_KEY", ""),
		Environment:     getEnv("WI_ENVIRONMENT", wisdk.EnvProd),
		PushProfile:     getEnv("WI_PUSH_PROFILE", ""),
		TestPushProfile: getEnv("WI_TEST_PUSH_PROFILE", ""),

		StorePath: getEnv("WI_STORE_PATH", "wisdk.db"),

		RequireBackgroundLocation: getEnvBool("WI_REQUIRE_BACKGROUND_LOCATION", true),
		GeofenceRadius:            getEnvFloat("WI_GEOFENCE_RADIUS", 20),
		UpdateInterval:            getEnvDuration("WI_UPDATE_INTERVAL", 10*time.Minute),

		SimulInterval: getEnvDuration("WI_SIMUL_INTERVAL", 30*time.Second),
	}

	if cfg.ProviderKey == "" {
		return nil, fmt.Errorf("WI_PROVIDER_KEY is required")
	}
	if cfg.Environment != wisdk.EnvProd && cfg.Environment != wisdk.EnvTest {
		return nil, fmt.Errorf("WI_ENVIRONMENT must be %q or %q", wisdk.EnvProd, wisdk.EnvTest)
	}

	return cfg, nil
}

// SDKConfig builds the SDK configuration from the runner settings.
func (c *Config) SDKConfig() *wisdk.Config {
	cfg := wisdk.NewConfig(c.ProviderKey, c.TestProviderKey)
	cfg.Environment = c.Environment
	cfg.PushProfile = c.PushProfile
	cfg.TestPushProfile = c.TestPushProfile
	cfg.RequireBackgroundLocation = c.RequireBackgroundLocation
	cfg.GeofenceRadius = c.GeofenceRadius
	cfg.UpdateInterval = c.UpdateInterval
	return cfg
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
