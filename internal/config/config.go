// Package config resolves the mock configuration from the process environment.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
)

// Environments with their own defaults
const (
	EnvDevelopment = "development"
	EnvTest        = "test"
	EnvProduction  = "production"
	EnvStorybook   = "storybook"
)

// Config decides whether interception is active and under which mode.
// Only the toggles are persisted; process settings stay environment-only.
type Config struct {
	Enabled           bool   `json:"enabled"`
	Mode              string `json:"mode"`
	DebugLogging      bool   `json:"debugLogging"`
	PersistRequestLog bool   `json:"persistRequestLog"`
	AutoStart         bool   `json:"autoStart"`

	Environment  string `json:"-"`
	Scenario     string `json:"-"`
	DBPath       string `json:"-"`
	LogLevel     string `json:"-"`
	OTLPEndpoint string `json:"-"`
}

var envDefaults = map[string]Config{
	EnvDevelopment: {Enabled: true, Mode: "development", DebugLogging: true, AutoStart: true},
	EnvTest:        {Enabled: true, Mode: "test", AutoStart: true},
	EnvProduction:  {Enabled: false, Mode: "demo", AutoStart: false},
	EnvStorybook:   {Enabled: true, Mode: "storybook", DebugLogging: true, AutoStart: true},
}

// Defaults returns the configuration for an environment. Unknown environments get the
// development defaults.
func Defaults(env string) Config {
	cfg, ok := envDefaults[env]
	if !ok {
		cfg = envDefaults[EnvDevelopment]
	}
	cfg.Environment = env
	return cfg
}

// Load reads the environment over the per-environment defaults
func Load() Config {
	env := getEnvString("NODE_ENV", EnvDevelopment)
	cfg := Defaults(env)

	cfg.Enabled = getEnvBool("USE_MOCKS", cfg.Enabled)
	cfg.Mode = getEnvString("MOCK_MODE", cfg.Mode)
	cfg.DebugLogging = getEnvBool("MOCK_DEBUG", cfg.DebugLogging)
	cfg.PersistRequestLog = getEnvBool("MOCK_PERSIST_LOG", cfg.PersistRequestLog)

	cfg.Scenario = os.Getenv("WS_MOCK_SCENARIO")
	cfg.DBPath = getEnvString("MOCK_DB_PATH", "quizmock.db")
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")
	cfg.OTLPEndpoint = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")

	return cfg
}

// Merge overlays saved toggles. Fields missing from data keep their current value.
func (c *Config) Merge(data []byte) error {
	if err := json.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse saved config: %w", err)
	}
	return nil
}

// Marshal encodes the persisted toggles
func (c Config) Marshal() ([]byte, error) {
	return json.Marshal(c)
}

func getEnvString(key string, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if boolVal, err := strconv.ParseBool(val); err == nil {
			return boolVal
		}
	}
	return defaultVal
}
