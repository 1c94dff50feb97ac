// Package config loads kernel startup parameters with Viper, the way
// the original host tool loaded its device configuration: defaults
// first, then an optional file, then environment overrides.
package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// Config holds the parameters a booting node needs before it can
// mount a volume or answer remote-file requests.
type Config struct {
	NodeID       uint32 `mapstructure:"node_id"`
	MotherNode   uint32 `mapstructure:"mother_node"`
	StorageRoot  string `mapstructure:"storage_root"`
	LogPath      string `mapstructure:"log_path"`
	LogLevel     string `mapstructure:"log_level"`
	MaxRetries   int    `mapstructure:"max_retries"`
	RetryAdderMs int    `mapstructure:"retry_adder_ms"`
	RealPages    int    `mapstructure:"real_pages"`
	HintFilePath string `mapstructure:"hint_file_path"`
}

// Load reads kernel configuration from ./kernel-config.yaml (or the
// other search paths below), falling back to defaults when no file is
// present. Environment variables prefixed AEGIS_ override both.
func Load() (*Config, error) {
	viper.SetConfigName("kernel-config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("$HOME/.aegisos")
	viper.AddConfigPath("/etc/aegisos")

	viper.SetDefault("node_id", 1)
	viper.SetDefault("mother_node", 0)
	viper.SetDefault("storage_root", "./volumes")
	viper.SetDefault("log_path", "./kernel.log")
	viper.SetDefault("log_level", "info")
	viper.SetDefault("max_retries", 5)
	viper.SetDefault("retry_adder_ms", 50)
	viper.SetDefault("real_pages", 2048)
	viper.SetDefault("hint_file_path", "./hints.db")

	viper.SetEnvPrefix("AEGIS")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read kernel config: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal kernel config: %w", err)
	}
	return &cfg, nil
}
