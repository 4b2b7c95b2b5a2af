package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/nontawat9304/mali-chat/pkg/dotdir"
)

// InitViper returns a viper instance layered as:
//  1. CLI flags (after BindRegisteredFlags)
//  2. MALI_* environment variables (MALI_MEMORY_BACKEND, MALI_API_LISTEN, ...)
//  3. config.toml
//  4. NewDefaultConfig()
func InitViper(configDir string) (*viper.Viper, error) {
	v := viper.New()
	setViperDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("toml")

	target, err := dotdir.NewManager().Target(configDir)
	if err != nil {
		return nil, fmt.Errorf("resolving config dir: %w", err)
	}
	if target != "" {
		v.AddConfigPath(target)
	}

	if err := v.ReadInConfig(); err != nil {
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	v.SetEnvPrefix("MALI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v, nil
}

// setViperDefaults registers every key's default using the key table, so
// defaults.go stays the single source of truth.
func setViperDefaults(v *viper.Viper) {
	d := NewDefaultConfig()
	v.SetDefault("version", d.Version)
	for key, info := range configKeys {
		v.SetDefault(key, info.get(d))
	}
}

// FromViper materializes a Config from the resolved viper layers.
func FromViper(v *viper.Viper) (*Config, error) {
	cfg := NewDefaultConfig()
	for key, info := range configKeys {
		raw := viperString(v, key)
		if raw == "" {
			continue
		}
		if err := info.set(cfg, raw); err != nil {
			return nil, err
		}
	}
	applyDefaults(cfg)
	return cfg, nil
}

// viperString flattens a viper value to the string form the key table
// understands. TOML arrays arrive as []any.
func viperString(v *viper.Viper, key string) string {
	switch val := v.Get(key).(type) {
	case []string:
		return strings.Join(val, ",")
	case []any:
		parts := make([]string, 0, len(val))
		for _, p := range val {
			parts = append(parts, fmt.Sprint(p))
		}
		return strings.Join(parts, ",")
	default:
		return v.GetString(key)
	}
}
