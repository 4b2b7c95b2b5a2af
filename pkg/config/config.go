package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/nontawat9304/mali-chat/pkg/dotdir"
)

const (
	configFile = "config.toml"

	// v0 is the first config layout.
	v0 = 0

	// CurrentV is the supported config version.
	CurrentV = v0
)

type Configer struct {
	ddm        *dotdir.Manager
	targetDir  string
	targetPath string
}

func NewConfiger(override string) (*Configer, error) {
	cfger := &Configer{ddm: dotdir.NewManager()}

	target, err := cfger.ddm.Target(override)
	if err != nil {
		return nil, err
	}
	if target == "" {
		return cfger, nil
	}

	path := filepath.Join(target, configFile)
	if _, err := os.Stat(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfger.targetDir = target
	cfger.targetPath = path
	return cfger, nil
}

// ValidConfigKeys returns every supported key in display order.
func ValidConfigKeys() []string {
	result := make([]string, 0, len(configKeys))
	seen := make(map[string]bool, len(configKeys))
	for _, k := range orderedKeys {
		if _, ok := configKeys[k]; ok {
			result = append(result, k)
			seen[k] = true
		}
	}
	for k := range configKeys {
		if !seen[k] {
			result = append(result, k)
		}
	}
	return result
}

// IsValidConfigKey reports whether key is a supported configuration key.
func IsValidConfigKey(key string) bool {
	_, ok := configKeys[key]
	return ok
}

// GetTarget returns the config.toml path, or "" when none was resolved.
func (c *Configer) GetTarget() string {
	return c.targetPath
}

// GetDir returns the resolved .mali/ directory.
func (c *Configer) GetDir() string {
	return c.targetDir
}

// LoadConfig reads config.toml. A missing file yields NewDefaultConfig();
// fields left out of the file are filled from the defaults.
func (c *Configer) LoadConfig() (*Config, error) {
	if c.targetPath == "" {
		return NewDefaultConfig(), nil
	}

	data, err := os.ReadFile(c.targetPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return NewDefaultConfig(), nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg, err := ParseConfigTOML(data)
	if err != nil {
		return nil, err
	}

	applyDefaults(cfg)
	return cfg, nil
}

// SaveConfig writes cfg to config.toml.
func (c *Configer) SaveConfig(cfg *Config) error {
	if cfg == nil {
		return errors.New("cannot save nil config")
	}
	if c.targetPath == "" {
		return errors.New("cannot save empty target path")
	}

	raw, err := EncodeTOML(cfg)
	if err != nil {
		return err
	}

	if err := os.WriteFile(c.targetPath, raw, 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// SetConfigValue loads the config, sets key to value and saves it.
func (c *Configer) SetConfigValue(key string, value string) error {
	info, ok := configKeys[key]
	if !ok {
		return fmt.Errorf("unknown config key: %q", key)
	}

	cfg, err := c.LoadConfig()
	if err != nil {
		return err
	}
	if err := info.set(cfg, value); err != nil {
		return err
	}
	return c.SaveConfig(cfg)
}

// GetConfigValue loads the config and returns key's string form.
func (c *Configer) GetConfigValue(key string) (string, error) {
	info, ok := configKeys[key]
	if !ok {
		return "", fmt.Errorf("unknown config key: %q", key)
	}

	cfg, err := c.LoadConfig()
	if err != nil {
		return "", err
	}
	return info.get(cfg), nil
}

// PresetConfig returns defaults tuned for a named deployment:
//   - "cloud":  anthropic first, then the local ladder
//   - "local":  an OpenAI-compatible server on localhost, then ollama
//   - "ollama": ollama only, with ollama embeddings
func PresetConfig(name string) (*Config, error) {
	cfg := NewDefaultConfig()

	switch strings.ToLower(name) {
	case "cloud":
		cfg.Generation.Ladder = []string{"anthropic", "openai", "gemini", "local", "ollama"}
	case "local":
		cfg.Generation.Ladder = []string{"local", "ollama"}
	case "ollama":
		cfg.Generation.Ladder = []string{"ollama"}
		cfg.Embedding.Provider = "ollama"
		cfg.Embedding.Target = defaultOllamaTarget
	default:
		return nil, fmt.Errorf("unknown preset: %q (available: %s)", name, strings.Join(ValidPresetNames(), ", "))
	}

	return cfg, nil
}

// ValidPresetNames returns the recognized preset names.
func ValidPresetNames() []string {
	return []string{"cloud", "local", "ollama"}
}

// EncodeTOML renders cfg as config.toml contents.
func EncodeTOML(cfg *Config) ([]byte, error) {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return nil, fmt.Errorf("encoding config: %w", err)
	}
	return buf.Bytes(), nil
}

// ParseConfigTOML parses raw TOML into a Config without applying defaults.
func ParseConfigTOML(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config TOML: %w", err)
	}

	if cfg.Version != 0 && cfg.Version != CurrentV {
		return nil, fmt.Errorf("unsupported config version %d (expected %d)", cfg.Version, CurrentV)
	}
	return cfg, nil
}
