package config

import (
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Config controls the trace sink and framework defaults. Everything here is
// optional: the tool runs with built-in defaults when no config file or
// environment variables are present.
type Config struct {
	LogFormat             string `mapstructure:"log_format"`
	LogLevel              string `mapstructure:"log_level"`
	Trace                 bool   `mapstructure:"trace"`
	TraceFile             string `mapstructure:"trace_file"`
	DefaultTimeoutSeconds uint32 `mapstructure:"default_timeout_seconds"`
}

func Default() *Config {
	return &Config{
		LogFormat:             "text",
		LogLevel:              "warn",
		DefaultTimeoutSeconds: 30,
	}
}

// Load reads sess0run.yaml from the executable's directory or the working
// directory, then applies SESS0RUN_* environment overrides. A missing file
// is not an error.
func Load() (*Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigName("sess0run")
	v.SetConfigType("yaml")
	if exe, err := os.Executable(); err == nil {
		v.AddConfigPath(filepath.Dir(exe))
	}
	v.AddConfigPath(".")

	v.AutomaticEnv()
	v.SetEnvPrefix("SESS0RUN")
	// Unmarshal only sees keys viper knows about; bind each one so an
	// environment variable applies even when the file does not set the key.
	for _, key := range []string{"log_format", "log_level", "trace", "trace_file", "default_timeout_seconds"} {
		_ = v.BindEnv(key)
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}

	if cfg.Trace && cfg.LogLevel == "warn" {
		// trace=true with the warn level (default or explicit) means full detail
		cfg.LogLevel = "debug"
	}
	if cfg.DefaultTimeoutSeconds == 0 {
		cfg.DefaultTimeoutSeconds = 30
	}

	return cfg, nil
}
