package config

import (
	"fmt"
	"strconv"
	"strings"
)

// Config is the persistent mali configuration stored as config.toml in the
// .mali/ directory. Sections group settings per subsystem.
type Config struct {
	Version    int              `toml:"version"`
	Storage    StorageConfig    `toml:"storage"`
	API        APIConfig        `toml:"api"`
	Client     ClientConfig     `toml:"client"`
	Memory     MemoryConfig     `toml:"memory"`
	Embedding  EmbeddingConfig  `toml:"embedding"`
	Generation GenerationConfig `toml:"generation"`
	Persona    PersonaConfig    `toml:"persona"`
	Data       DataConfig       `toml:"data"`
	History    HistoryConfig    `toml:"history"`
	Audio      AudioConfig      `toml:"audio"`
	Events     EventsConfig     `toml:"events"`
	Intent     IntentConfig     `toml:"intent"`
}

// StorageConfig selects where transcripts and profiles live.
type StorageConfig struct {
	Driver      string `toml:"driver,omitempty"`
	SQLitePath  string `toml:"sqlite_path,omitempty"`
	PostgresDSN string `toml:"postgres_dsn,omitempty"`
}

// APIConfig holds HTTP server settings.
type APIConfig struct {
	Listen string `toml:"listen,omitempty"`
	MCP    bool   `toml:"mcp,omitempty"`
}

// ClientConfig holds settings for CLI commands talking to a running server.
type ClientConfig struct {
	APITarget string `toml:"api_target,omitempty"`
}

// MemoryConfig configures the scoped memory segments.
type MemoryConfig struct {
	// Backend is one of chromem, sqlitevec, qdrant, chroma.
	Backend     string `toml:"backend,omitempty"`
	Target      string `toml:"target,omitempty"`
	SegmentsDir string `toml:"segments_dir,omitempty"`
	K           int    `toml:"k,omitempty"`
}

// EmbeddingConfig configures the embedder shared by every segment.
type EmbeddingConfig struct {
	Provider   string `toml:"provider,omitempty"`
	Target     string `toml:"target,omitempty"`
	Model      string `toml:"model,omitempty"`
	APIKey     string `toml:"api_key,omitempty"`
	Dimensions uint   `toml:"dimensions,omitempty"`
	CacheSize  int    `toml:"cache_size,omitempty"`
}

// GenerationConfig describes the provider ladder. Ladder lists rung names
// strongest first; each name refers to one of the provider sections.
type GenerationConfig struct {
	Ladder          []string       `toml:"ladder,omitempty"`
	TimeoutSec      int            `toml:"timeout_sec,omitempty"`
	OverrideTimeout int            `toml:"override_timeout_sec,omitempty"`
	Anthropic       ProviderConfig `toml:"anthropic"`
	OpenAI          ProviderConfig `toml:"openai"`
	Gemini          ProviderConfig `toml:"gemini"`
	Local           ProviderConfig `toml:"local"`
	Ollama          ProviderConfig `toml:"ollama"`
}

// ProviderConfig is one rung's endpoint and credentials.
type ProviderConfig struct {
	BaseURL string `toml:"base_url,omitempty"`
	Model   string `toml:"model,omitempty"`
	APIKey  string `toml:"api_key,omitempty"`
}

type PersonaConfig struct {
	Path    string `toml:"path,omitempty"`
	Default string `toml:"default,omitempty"`
}

type DataConfig struct {
	StoreDir string `toml:"store_dir,omitempty"`
	Include  string `toml:"include,omitempty"`
}

type HistoryConfig struct {
	Capacity int `toml:"capacity,omitempty"`
	Window   int `toml:"window,omitempty"`
}

// AudioConfig points at the transcription and synthesis collaborators.
// Empty URLs disable the feature.
type AudioConfig struct {
	TranscribeURL string `toml:"transcribe_url,omitempty"`
	SynthesizeURL string `toml:"synthesize_url,omitempty"`
	StaticDir     string `toml:"static_dir,omitempty"`
	Voice         string `toml:"voice,omitempty"`
	Rate          string `toml:"rate,omitempty"`
	Pitch         string `toml:"pitch,omitempty"`
}

// EventsConfig enables turn events on Kafka. No brokers means no events.
type EventsConfig struct {
	Brokers []string `toml:"brokers,omitempty"`
	Topic   string   `toml:"topic,omitempty"`
}

type IntentConfig struct {
	TriggersPath string `toml:"triggers_path,omitempty"`
}

// configKeyInfo maps a dotted key to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

func stringKey(field func(c *Config) *string) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return *field(c) },
		set: func(c *Config, v string) error { *field(c) = v; return nil },
	}
}

func intKey(name string, field func(c *Config) *int) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string {
			if *field(c) == 0 {
				return ""
			}
			return strconv.Itoa(*field(c))
		},
		set: func(c *Config, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", name, err)
			}
			*field(c) = n
			return nil
		},
	}
}

func boolKey(name string, field func(c *Config) *bool) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return strconv.FormatBool(*field(c)) },
		set: func(c *Config, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", name, err)
			}
			*field(c) = b
			return nil
		},
	}
}

// listKey exposes a string slice as a comma separated value.
func listKey(field func(c *Config) *[]string) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return strings.Join(*field(c), ",") },
		set: func(c *Config, v string) error { *field(c) = SplitList(v); return nil },
	}
}

// SplitList splits a comma separated list, dropping blanks.
func SplitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// configKeys is the authoritative map of supported config keys.
var configKeys = map[string]configKeyInfo{
	"storage.driver":       stringKey(func(c *Config) *string { return &c.Storage.Driver }),
	"storage.sqlite_path":  stringKey(func(c *Config) *string { return &c.Storage.SQLitePath }),
	"storage.postgres_dsn": stringKey(func(c *Config) *string { return &c.Storage.PostgresDSN }),

	"api.listen": stringKey(func(c *Config) *string { return &c.API.Listen }),
	"api.mcp":    boolKey("api.mcp", func(c *Config) *bool { return &c.API.MCP }),

	"client.api_target": stringKey(func(c *Config) *string { return &c.Client.APITarget }),

	"memory.backend":      stringKey(func(c *Config) *string { return &c.Memory.Backend }),
	"memory.target":       stringKey(func(c *Config) *string { return &c.Memory.Target }),
	"memory.segments_dir": stringKey(func(c *Config) *string { return &c.Memory.SegmentsDir }),
	"memory.k":            intKey("memory.k", func(c *Config) *int { return &c.Memory.K }),

	"embedding.provider": stringKey(func(c *Config) *string { return &c.Embedding.Provider }),
	"embedding.target":   stringKey(func(c *Config) *string { return &c.Embedding.Target }),
	"embedding.model":    stringKey(func(c *Config) *string { return &c.Embedding.Model }),
	"embedding.api_key":  stringKey(func(c *Config) *string { return &c.Embedding.APIKey }),
	"embedding.dimensions": {
		get: func(c *Config) string {
			if c.Embedding.Dimensions == 0 {
				return ""
			}
			return strconv.FormatUint(uint64(c.Embedding.Dimensions), 10)
		},
		set: func(c *Config, v string) error {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid value for embedding.dimensions: %w", err)
			}
			c.Embedding.Dimensions = uint(n)
			return nil
		},
	},
	"embedding.cache_size": intKey("embedding.cache_size", func(c *Config) *int { return &c.Embedding.CacheSize }),

	"generation.ladder":               listKey(func(c *Config) *[]string { return &c.Generation.Ladder }),
	"generation.timeout_sec":          intKey("generation.timeout_sec", func(c *Config) *int { return &c.Generation.TimeoutSec }),
	"generation.override_timeout_sec": intKey("generation.override_timeout_sec", func(c *Config) *int { return &c.Generation.OverrideTimeout }),
	"generation.anthropic.model":      stringKey(func(c *Config) *string { return &c.Generation.Anthropic.Model }),
	"generation.anthropic.api_key":    stringKey(func(c *Config) *string { return &c.Generation.Anthropic.APIKey }),
	"generation.openai.base_url":      stringKey(func(c *Config) *string { return &c.Generation.OpenAI.BaseURL }),
	"generation.openai.model":         stringKey(func(c *Config) *string { return &c.Generation.OpenAI.Model }),
	"generation.openai.api_key":       stringKey(func(c *Config) *string { return &c.Generation.OpenAI.APIKey }),
	"generation.gemini.model":         stringKey(func(c *Config) *string { return &c.Generation.Gemini.Model }),
	"generation.gemini.api_key":       stringKey(func(c *Config) *string { return &c.Generation.Gemini.APIKey }),
	"generation.local.base_url":       stringKey(func(c *Config) *string { return &c.Generation.Local.BaseURL }),
	"generation.local.model":          stringKey(func(c *Config) *string { return &c.Generation.Local.Model }),
	"generation.ollama.base_url":      stringKey(func(c *Config) *string { return &c.Generation.Ollama.BaseURL }),
	"generation.ollama.model":         stringKey(func(c *Config) *string { return &c.Generation.Ollama.Model }),

	"persona.path":    stringKey(func(c *Config) *string { return &c.Persona.Path }),
	"persona.default": stringKey(func(c *Config) *string { return &c.Persona.Default }),

	"data.store_dir": stringKey(func(c *Config) *string { return &c.Data.StoreDir }),
	"data.include":   stringKey(func(c *Config) *string { return &c.Data.Include }),

	"history.capacity": intKey("history.capacity", func(c *Config) *int { return &c.History.Capacity }),
	"history.window":   intKey("history.window", func(c *Config) *int { return &c.History.Window }),

	"audio.transcribe_url": stringKey(func(c *Config) *string { return &c.Audio.TranscribeURL }),
	"audio.synthesize_url": stringKey(func(c *Config) *string { return &c.Audio.SynthesizeURL }),
	"audio.static_dir":     stringKey(func(c *Config) *string { return &c.Audio.StaticDir }),
	"audio.voice":          stringKey(func(c *Config) *string { return &c.Audio.Voice }),
	"audio.rate":           stringKey(func(c *Config) *string { return &c.Audio.Rate }),
	"audio.pitch":          stringKey(func(c *Config) *string { return &c.Audio.Pitch }),

	"events.brokers": listKey(func(c *Config) *[]string { return &c.Events.Brokers }),
	"events.topic":   stringKey(func(c *Config) *string { return &c.Events.Topic }),

	"intent.triggers_path": stringKey(func(c *Config) *string { return &c.Intent.TriggersPath }),
}

// orderedKeys is the display order for `mali config list`, following the
// TOML section layout.
var orderedKeys = []string{
	"storage.driver", "storage.sqlite_path", "storage.postgres_dsn",
	"api.listen", "api.mcp",
	"client.api_target",
	"memory.backend", "memory.target", "memory.segments_dir", "memory.k",
	"embedding.provider", "embedding.target", "embedding.model", "embedding.api_key",
	"embedding.dimensions", "embedding.cache_size",
	"generation.ladder", "generation.timeout_sec", "generation.override_timeout_sec",
	"generation.anthropic.model", "generation.anthropic.api_key",
	"generation.openai.base_url", "generation.openai.model", "generation.openai.api_key",
	"generation.gemini.model", "generation.gemini.api_key",
	"generation.local.base_url", "generation.local.model",
	"generation.ollama.base_url", "generation.ollama.model",
	"persona.path", "persona.default",
	"data.store_dir", "data.include",
	"history.capacity", "history.window",
	"audio.transcribe_url", "audio.synthesize_url", "audio.static_dir",
	"audio.voice", "audio.rate", "audio.pitch",
	"events.brokers", "events.topic",
	"intent.triggers_path",
}
