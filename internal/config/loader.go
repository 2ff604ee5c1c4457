package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Loader handles configuration loading from multiple sources.
type Loader struct {
	configPath string
	envPrefix  string
	v          *viper.Viper
}

// NewLoader creates a config loader.
func NewLoader(configPath string) *Loader {
	return &Loader{
		configPath: configPath,
		envPrefix:  "STREAMFS",
		v:          viper.New(),
	}
}

// Viper exposes the underlying viper instance so commands can bind flags.
func (l *Loader) Viper() *viper.Viper {
	return l.v
}

// ConfigFileUsed returns the file the config was read from, if any.
func (l *Loader) ConfigFileUsed() string {
	return l.v.ConfigFileUsed()
}

// Load reads configuration from file and environment.
func (l *Loader) Load() (*Config, error) {
	// Start with defaults
	cfg := DefaultConfig()
	if err := l.setDefaults(cfg); err != nil {
		return nil, fmt.Errorf("set defaults: %w", err)
	}

	if l.configPath != "" {
		l.v.SetConfigFile(l.configPath)
	} else {
		l.v.SetConfigName("config")
		for _, dir := range l.defaultPaths() {
			l.v.AddConfigPath(dir)
		}
	}

	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if l.configPath != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	// Environment overrides: STREAMFS_API_BASE_URL, STREAMFS_LOG_LEVEL, ...
	l.v.SetEnvPrefix(l.envPrefix)
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	l.v.AutomaticEnv()

	if err := l.v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.Log.Level = strings.ToLower(cfg.Log.Level)
	cfg.Log.Format = strings.ToLower(cfg.Log.Format)

	// Validate final config
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// setDefaults registers every default key so AutomaticEnv can override it.
func (l *Loader) setDefaults(cfg *Config) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	var tree map[string]interface{}
	if err := json.Unmarshal(data, &tree); err != nil {
		return err
	}
	for section, values := range tree {
		fields, ok := values.(map[string]interface{})
		if !ok {
			continue
		}
		for key, value := range fields {
			l.v.SetDefault(section+"."+key, value)
		}
	}
	return nil
}

// defaultPaths returns default config file locations.
func (l *Loader) defaultPaths() []string {
	paths := []string{".", ".streamfs"}

	if homeDir, err := os.UserHomeDir(); err == nil {
		paths = append(paths,
			filepath.Join(homeDir, ".config", "streamfs"),
			filepath.Join(homeDir, ".streamfs"),
		)
	}

	return paths
}

// SaveExample writes an example config file.
func SaveExample(path string) error {
	cfg := DefaultConfig()

	v := viper.New()
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	var tree map[string]interface{}
	if err := json.Unmarshal(data, &tree); err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	for section, values := range tree {
		v.Set(section, values)
	}

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("write file: %w", err)
	}

	return nil
}
