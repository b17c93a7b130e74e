package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

var globalConfig *Config
var viperInstance *viper.Viper

// Load reads the configuration using Viper. The result is cached for the
// lifetime of the process; use Reset() in tests.
func Load() (*Config, error) {
	if globalConfig != nil {
		return globalConfig, nil
	}

	v := initViper()

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(&config); err != nil {
		return nil, err
	}

	globalConfig = &config
	return globalConfig, nil
}

// LoadWithViper loads configuration from a provided Viper instance.
// Useful for tests that need isolated configuration.
func LoadWithViper(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := Validate(&config); err != nil {
		return nil, err
	}
	return &config, nil
}

// LoadFromFile loads configuration from a specific file path.
func LoadFromFile(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("toml")

	SetDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	return LoadWithViper(v)
}

// Reset clears the cached configuration (useful for testing).
func Reset() {
	globalConfig = nil
	viperInstance = nil
}

// initViper initializes Viper with configuration sources and defaults.
func initViper() *viper.Viper {
	if viperInstance != nil {
		return viperInstance
	}

	v := viper.New()

	v.SetEnvPrefix("STUPIFY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	BindSensitiveEnvVars(v)
	SetDefaults(v)

	// Precedence: user config (~/.stupify/config.toml) then UI overrides
	// (~/.stupify/config_from_ui.toml) then env vars.
	if dir := UserConfigDir(); dir != "" {
		for _, name := range []string{"config.toml", uiConfigFilename} {
			path := filepath.Join(dir, name)
			if _, err := os.Stat(path); err != nil {
				continue
			}
			v.SetConfigFile(path)
			v.SetConfigType("toml")
			v.MergeInConfig()
		}
	}

	viperInstance = v
	return v
}

// UserConfigDir returns ~/.stupify, or "" if the home directory is unknown.
func UserConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".stupify")
}
