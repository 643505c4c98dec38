package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/Brownie44l1/eeg-api/internal/errors"
)

// ConfigFileName is searched for from the working directory upwards.
const ConfigFileName = "eeg.toml"

// EnvPrefix prefixes environment overrides, e.g. EEG_SERVER_PORT.
const EnvPrefix = "EEG"

// Load reads configuration from defaults, the config file and the environment,
// in increasing precedence. An empty path searches for eeg.toml.
func Load(path string) (*Config, error) {
	return Read(NewViper(), path)
}

// Read is Load over a prepared viper instance, typically one from NewViper
// with command-line flags bound to it.
func Read(v *viper.Viper, path string) (*Config, error) {
	if path == "" {
		path = findConfigFile()
	}
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "failed to read config file %s", path)
		}
	}

	return fromViper(v)
}

// NewViper returns a viper instance with defaults and environment binding set up.
// Callers may bind command-line flags onto it before decoding with FromViper.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	SetDefaults(v)
	return v
}

// FromViper decodes and validates a configuration from v.
func FromViper(v *viper.Viper) (*Config, error) {
	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid config")
	}
	return &cfg, nil
}

// findConfigFile walks up from the working directory looking for eeg.toml.
func findConfigFile() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		candidate := filepath.Join(dir, ConfigFileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}
