package config

const (
	defaultStorageDriver = "sqlite"
	defaultSQLitePath    = "mali.db"
	defaultAPIListen     = ":8000"
	defaultAPITarget     = "http://localhost:8000"

	defaultMemoryBackend = "chromem"
	defaultSegmentsDir   = "segments"
	defaultMemoryK       = 3

	defaultOllamaTarget        = "http://localhost:11434"
	defaultEmbeddingProvider   = "ollama"
	defaultEmbeddingModel      = "nomic-embed-text"
	defaultEmbeddingDimensions = 768
	defaultEmbeddingCacheSize  = 4096

	defaultTimeoutSec         = 30
	defaultOverrideTimeoutSec = 60
	defaultAnthropicModel     = "claude-3-5-haiku-latest"
	defaultOpenAIBaseURL      = "https://api.openai.com/v1"
	defaultOpenAIModel        = "gpt-4o-mini"
	defaultGeminiModel        = "gemini-2.0-flash"
	defaultLocalBaseURL       = "http://localhost:8080/v1"
	defaultLocalModel         = "qwen2.5-1.5b-instruct"
	defaultOllamaModel        = "qwen2.5:1.5b"

	defaultPersonaPath = "persona.txt"
	defaultPersona     = "Mali-chan"

	defaultDataStoreDir = "data_store"
	defaultDataInclude  = "*.txt"

	defaultHistoryCapacity = 10
	defaultHistoryWindow   = 6

	defaultAudioDir   = "static_audio"
	defaultAudioVoice = "th-TH-PremwadeeNeural"
	defaultAudioRate  = "-5%"
	defaultAudioPitch = "+60Hz"

	defaultEventsTopic = "mali.turns"
)

// defaultLadder runs cloud first, then a local compatible server, then
// ollama. Rungs without credentials or endpoints drop out at startup.
var defaultLadder = []string{"anthropic", "local", "ollama"}

// NewDefaultConfig returns a Config with defaults for every field.
// It is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		Storage: StorageConfig{
			Driver:     defaultStorageDriver,
			SQLitePath: defaultSQLitePath,
		},
		API: APIConfig{
			Listen: defaultAPIListen,
			MCP:    true,
		},
		Client: ClientConfig{
			APITarget: defaultAPITarget,
		},
		Memory: MemoryConfig{
			Backend:     defaultMemoryBackend,
			SegmentsDir: defaultSegmentsDir,
			K:           defaultMemoryK,
		},
		Embedding: EmbeddingConfig{
			Provider:   defaultEmbeddingProvider,
			Target:     defaultOllamaTarget,
			Model:      defaultEmbeddingModel,
			Dimensions: defaultEmbeddingDimensions,
			CacheSize:  defaultEmbeddingCacheSize,
		},
		Generation: GenerationConfig{
			Ladder:          append([]string(nil), defaultLadder...),
			TimeoutSec:      defaultTimeoutSec,
			OverrideTimeout: defaultOverrideTimeoutSec,
			Anthropic:       ProviderConfig{Model: defaultAnthropicModel},
			OpenAI:          ProviderConfig{BaseURL: defaultOpenAIBaseURL, Model: defaultOpenAIModel},
			Gemini:          ProviderConfig{Model: defaultGeminiModel},
			Local:           ProviderConfig{BaseURL: defaultLocalBaseURL, Model: defaultLocalModel},
			Ollama:          ProviderConfig{BaseURL: defaultOllamaTarget, Model: defaultOllamaModel},
		},
		Persona: PersonaConfig{
			Path:    defaultPersonaPath,
			Default: defaultPersona,
		},
		Data: DataConfig{
			StoreDir: defaultDataStoreDir,
			Include:  defaultDataInclude,
		},
		History: HistoryConfig{
			Capacity: defaultHistoryCapacity,
			Window:   defaultHistoryWindow,
		},
		Audio: AudioConfig{
			StaticDir: defaultAudioDir,
			Voice:     defaultAudioVoice,
			Rate:      defaultAudioRate,
			Pitch:     defaultAudioPitch,
		},
		Events: EventsConfig{
			Topic: defaultEventsTopic,
		},
	}
}

// applyDefaults fills zero-value fields in cfg from NewDefaultConfig, so a
// sparse config.toml still yields a complete Config.
func applyDefaults(cfg *Config) {
	d := NewDefaultConfig()

	setString := func(dst *string, def string) {
		if *dst == "" {
			*dst = def
		}
	}
	setInt := func(dst *int, def int) {
		if *dst == 0 {
			*dst = def
		}
	}

	setString(&cfg.Storage.Driver, d.Storage.Driver)
	setString(&cfg.Storage.SQLitePath, d.Storage.SQLitePath)
	setString(&cfg.API.Listen, d.API.Listen)
	setString(&cfg.Client.APITarget, d.Client.APITarget)

	setString(&cfg.Memory.Backend, d.Memory.Backend)
	setString(&cfg.Memory.SegmentsDir, d.Memory.SegmentsDir)
	setInt(&cfg.Memory.K, d.Memory.K)

	setString(&cfg.Embedding.Provider, d.Embedding.Provider)
	setString(&cfg.Embedding.Target, d.Embedding.Target)
	setString(&cfg.Embedding.Model, d.Embedding.Model)
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = d.Embedding.Dimensions
	}
	setInt(&cfg.Embedding.CacheSize, d.Embedding.CacheSize)

	if len(cfg.Generation.Ladder) == 0 {
		cfg.Generation.Ladder = d.Generation.Ladder
	}
	setInt(&cfg.Generation.TimeoutSec, d.Generation.TimeoutSec)
	setInt(&cfg.Generation.OverrideTimeout, d.Generation.OverrideTimeout)
	setString(&cfg.Generation.Anthropic.Model, d.Generation.Anthropic.Model)
	setString(&cfg.Generation.OpenAI.BaseURL, d.Generation.OpenAI.BaseURL)
	setString(&cfg.Generation.OpenAI.Model, d.Generation.OpenAI.Model)
	setString(&cfg.Generation.Gemini.Model, d.Generation.Gemini.Model)
	setString(&cfg.Generation.Local.BaseURL, d.Generation.Local.BaseURL)
	setString(&cfg.Generation.Local.Model, d.Generation.Local.Model)
	setString(&cfg.Generation.Ollama.BaseURL, d.Generation.Ollama.BaseURL)
	setString(&cfg.Generation.Ollama.Model, d.Generation.Ollama.Model)

	setString(&cfg.Persona.Path, d.Persona.Path)
	setString(&cfg.Persona.Default, d.Persona.Default)

	setString(&cfg.Data.StoreDir, d.Data.StoreDir)
	setString(&cfg.Data.Include, d.Data.Include)

	setInt(&cfg.History.Capacity, d.History.Capacity)
	setInt(&cfg.History.Window, d.History.Window)

	setString(&cfg.Audio.StaticDir, d.Audio.StaticDir)
	setString(&cfg.Audio.Voice, d.Audio.Voice)
	setString(&cfg.Audio.Rate, d.Audio.Rate)
	setString(&cfg.Audio.Pitch, d.Audio.Pitch)

	setString(&cfg.Events.Topic, d.Events.Topic)
}
