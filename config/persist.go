package config

import (
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"

	"github.com/mdnaeem95/stupify-extension/errors"
)

// uiConfigFilename holds settings changed from the extension UI (e.g. the
// default complexity tier picked in the popup). Kept separate from the
// hand-edited config.toml so UI writes never clobber user edits.
const uiConfigFilename = "config_from_ui.toml"

// UIConfigPath returns the path to the UI-managed overrides file.
func UIConfigPath() string {
	dir := UserConfigDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, uiConfigFilename)
}

// UpdateDefaultComplexityTier persists the user's preferred tier.
func UpdateDefaultComplexityTier(tier string) error {
	switch tier {
	case "tier1", "tier2", "tier3":
	default:
		return errors.Newf("invalid complexity tier %q", tier)
	}
	return updateUIConfig("backend", "default_complexity_tier", tier)
}

// UpdateUsageLimit persists the user's explanation requests-per-minute limit.
func UpdateUsageLimit(requestsPerMinute int) error {
	if requestsPerMinute <= 0 {
		return errors.Newf("requests per minute must be positive, got %d", requestsPerMinute)
	}
	return updateUIConfig("backend", "requests_per_minute", requestsPerMinute)
}

// updateUIConfig sets section.key = value in the UI overrides file,
// preserving all other content.
func updateUIConfig(section, key string, value interface{}) error {
	overrides, configPath, err := loadOrInitializeUIConfig()
	if err != nil {
		return err
	}

	sec, ok := overrides[section].(map[string]interface{})
	if !ok {
		sec = make(map[string]interface{})
		overrides[section] = sec
	}
	sec[key] = value

	return saveUIConfig(overrides, configPath)
}

// loadOrInitializeUIConfig loads the UI overrides file, or starts an empty
// one if it doesn't exist.
func loadOrInitializeUIConfig() (map[string]interface{}, string, error) {
	configPath := UIConfigPath()
	if configPath == "" {
		return nil, "", errors.New("could not determine home directory")
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0750); err != nil {
		return nil, "", errors.Wrap(err, "failed to create config directory")
	}

	var overrides map[string]interface{}
	if data, err := os.ReadFile(configPath); err == nil {
		if err := toml.Unmarshal(data, &overrides); err != nil {
			return nil, "", errors.Wrap(err, "failed to parse UI config")
		}
	} else {
		overrides = make(map[string]interface{})
	}

	return overrides, configPath, nil
}

func saveUIConfig(overrides map[string]interface{}, configPath string) error {
	data, err := toml.Marshal(overrides)
	if err != nil {
		return errors.Wrap(err, "failed to marshal UI config")
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return errors.Wrap(err, "failed to write UI config")
	}

	return nil
}
