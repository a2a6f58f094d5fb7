package cli

import (
	"os"

	"def-gateway/src/config"
	"def-gateway/src/internal/common"
)

// LoadConfigWithFallback loads configuration with automatic fallback to the
// default config file and then to built-in defaults
func LoadConfigWithFallback(configPath string) *config.Config {
	if configPath != "" {
		cfg, err := config.LoadConfig(configPath)
		if err != nil {
			common.CLILogger.Warn("Failed to load config from %s, using defaults: %v", configPath, err)
			return config.GetDefaultConfig()
		}
		return cfg
	}

	defaultConfigPath := config.GetDefaultConfigPath()
	if _, err := os.Stat(defaultConfigPath); err == nil {
		cfg, err := config.LoadConfig(defaultConfigPath)
		if err != nil {
			common.CLILogger.Warn("Failed to load default config from %s, using defaults: %v", defaultConfigPath, err)
			return config.GetDefaultConfig()
		}
		return cfg
	}

	return config.GetDefaultConfig()
}
