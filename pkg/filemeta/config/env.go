package config

import (
	"fmt"

	"github.com/ilyakaznacheev/cleanenv"
)

// WithEnv overlays FILEMDM_* environment variables (and the AWS_*
// credentials of the s3 cache) onto the configuration. Unset variables
// leave the current values in place.
func WithEnv() Option {
	return func(c *Config) error {
		if err := cleanenv.ReadEnv(c); err != nil {
			return fmt.Errorf("failed to read environment: %w", err)
		}
		return nil
	}
}

// WithFile reads a YAML configuration file. Environment variables still
// take precedence over values from the file.
func WithFile(path string) Option {
	return func(c *Config) error {
		if path == "" {
			return nil
		}
		if err := cleanenv.ReadConfig(path, c); err != nil {
			return fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		return nil
	}
}

// EnvHelp describes the environment variables Config reads
func EnvHelp() (string, error) {
	header := "Environment variables:"
	var cfg Config
	return cleanenv.GetDescription(&cfg, &header)
}
