// Package config loads the environment-driven configuration snapshot for
// one invocation.
package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// License key source selector values.
const (
	SourceEnvironment    = "environment_var"
	SourceSSM            = "ssm"
	SourceSecretsManager = "secrets_manager"
)

// Config is an immutable snapshot of the recognized environment variables.
type Config struct {
	InfraEnabled   bool `mapstructure:"infra_enabled"`
	LoggingEnabled bool `mapstructure:"logging_enabled"`

	// LicenseKey holds the key itself, or a parameter path / secret id when
	// LicenseKeySource selects an external store.
	LicenseKey       string `mapstructure:"license_key"`
	LicenseKeySource string `mapstructure:"license_key_src"`
	CachingEnabled   bool   `mapstructure:"enable_caching"`

	InfraEndpoint   string `mapstructure:"nr_infra_endpoint"`
	LoggingEndpoint string `mapstructure:"nr_logging_endpoint"`

	Tags         string `mapstructure:"nr_tags"`
	TagDelimiter string `mapstructure:"nr_env_delimiter"`

	DebugLogging bool `mapstructure:"debug_logging_enabled"`

	LambdaLogGroupPrefix string `mapstructure:"nr_lambda_log_group_prefix"`
	VPCLogGroupPrefix    string `mapstructure:"nr_vpc_log_group_prefix"`
}

// Load reads the configuration from the environment.
func Load() (Config, error) {
	var cfg Config

	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("infra_enabled", true)
	v.SetDefault("logging_enabled", false)
	v.SetDefault("license_key", "")
	v.SetDefault("license_key_src", SourceEnvironment)
	v.SetDefault("enable_caching", false)
	v.SetDefault("nr_infra_endpoint", "")
	v.SetDefault("nr_logging_endpoint", "")
	v.SetDefault("nr_tags", "")
	v.SetDefault("nr_env_delimiter", ";")
	v.SetDefault("debug_logging_enabled", false)
	v.SetDefault("nr_lambda_log_group_prefix", "")
	v.SetDefault("nr_vpc_log_group_prefix", "")

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("reading environment configuration: %w", err)
	}

	switch cfg.LicenseKeySource {
	case SourceEnvironment, SourceSSM, SourceSecretsManager:
	default:
		// Unknown selectors behave like the environment source.
		cfg.LicenseKeySource = SourceEnvironment
	}
	return cfg, nil
}
