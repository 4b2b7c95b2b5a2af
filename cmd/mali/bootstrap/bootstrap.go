// Package bootstrap turns a resolved config into the running assistant:
// storage, memory segments, the provider ladder, speech, events and the
// turn pipeline. serve, chat and memory all build through it.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/nontawat9304/mali-chat/api/mcp"
	"github.com/nontawat9304/mali-chat/pkg/assemble"
	"github.com/nontawat9304/mali-chat/pkg/audio"
	"github.com/nontawat9304/mali-chat/pkg/config"
	"github.com/nontawat9304/mali-chat/pkg/docstore"
	"github.com/nontawat9304/mali-chat/pkg/dotdir"
	embeddingutils "github.com/nontawat9304/mali-chat/pkg/embeddings/utils"
	"github.com/nontawat9304/mali-chat/pkg/eventstream"
	"github.com/nontawat9304/mali-chat/pkg/eventstream/kafka"
	"github.com/nontawat9304/mali-chat/pkg/eventstream/nop"
	"github.com/nontawat9304/mali-chat/pkg/history"
	"github.com/nontawat9304/mali-chat/pkg/intent"
	"github.com/nontawat9304/mali-chat/pkg/llm/chain"
	"github.com/nontawat9304/mali-chat/pkg/llm/provider"
	"github.com/nontawat9304/mali-chat/pkg/memory"
	"github.com/nontawat9304/mali-chat/pkg/persona"
	"github.com/nontawat9304/mali-chat/pkg/pipeline"
	"github.com/nontawat9304/mali-chat/pkg/storage"
	"github.com/nontawat9304/mali-chat/pkg/storage/inmemory"
	"github.com/nontawat9304/mali-chat/pkg/storage/postgres"
	"github.com/nontawat9304/mali-chat/pkg/storage/sqlite"
	vectorutils "github.com/nontawat9304/mali-chat/pkg/vector/utils"
	"github.com/nontawat9304/mali-chat/pkg/worker"
)

const (
	StorageInMemory = "inmemory"
	StorageSQLite   = "sqlite"
	StoragePostgres = "postgres"

	probeTimeout = 3 * time.Second
)

// apiKeyEnv is consulted when a rung has no key in config.
var apiKeyEnv = map[provider.Kind]string{
	provider.Anthropic: "ANTHROPIC_API_KEY",
	provider.OpenAI:    "OPENAI_API_KEY",
	provider.Gemini:    "GEMINI_API_KEY",
}

// LoadConfig resolves the config for cmd: flags in fs, then MALI_* env,
// then config.toml, then defaults. It also returns the .mali/ directory
// relative paths are anchored at.
func LoadConfig(cmd *cobra.Command, fs config.FlagSet) (*config.Config, string, error) {
	configDir, _ := cmd.Flags().GetString("config-dir")

	v, err := config.InitViper(configDir)
	if err != nil {
		return nil, "", err
	}
	config.BindRegisteredFlags(v, cmd, fs, fs.Keys())

	cfg, err := config.FromViper(v)
	if err != nil {
		return nil, "", fmt.Errorf("loading config: %w", err)
	}

	dir, err := dotdir.NewManager().Target(configDir)
	if err != nil {
		return nil, "", err
	}
	return cfg, dir, nil
}

// Stack is every long-lived collaborator of a running assistant.
type Stack struct {
	Config *config.Config
	Dir    string

	Storage      storage.Driver
	Sources      *docstore.Store
	Memory       *memory.Store
	Persona      *persona.Store
	Chain        *chain.Chain
	Workers      *worker.Pool
	Publisher    eventstream.Publisher
	Orchestrator *pipeline.Orchestrator

	// MCP is nil when api.mcp is off.
	MCP *mcp.Server

	// StaticDir holds synthesized audio.
	StaticDir string

	closers []func() error
	logger  *slog.Logger
}

// New builds the stack. On error everything built so far is closed.
func New(ctx context.Context, cfg *config.Config, dir string, logger *slog.Logger) (*Stack, error) {
	s := &Stack{Config: cfg, Dir: dir, logger: logger}
	if err := s.build(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// NewMemoryOnly builds the document store, memory segments and an
// orchestrator with an empty provider ladder, for commands that train,
// forget or inspect without generating.
func NewMemoryOnly(ctx context.Context, cfg *config.Config, dir string, logger *slog.Logger) (*Stack, error) {
	s := &Stack{Config: cfg, Dir: dir, logger: logger}
	if err := s.buildMemory(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}

	s.Chain = chain.New(ctx, nil, chain.WithLogger(logger), chain.WithProbe(false, 0))
	orch, err := pipeline.New(pipeline.Config{
		Router:    intent.NewRouter(intent.DefaultTriggers()),
		Memory:    s.Memory,
		Generator: s.Chain,
		Sources:   s.Sources,
		QueryK:    cfg.Memory.K,
		Logger:    logger.With("component", "pipeline"),
	})
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	s.Orchestrator = orch
	return s, nil
}

func (s *Stack) build(ctx context.Context) error {
	cfg := s.Config

	driver, err := NewStorageDriver(ctx, cfg.Storage, s.Dir, s.logger)
	if err != nil {
		return err
	}
	s.Storage = driver
	s.closers = append(s.closers, driver.Close)

	if err := s.buildMemory(ctx); err != nil {
		return err
	}

	s.Persona = persona.NewStore(dotdir.Resolve(s.Dir, cfg.Persona.Path))

	s.Chain = chain.New(ctx, Ladder(cfg.Generation, s.logger),
		chain.WithLogger(s.logger.With("component", "chain")),
		chain.WithProbe(true, probeTimeout),
		chain.WithOverrideTimeout(time.Duration(cfg.Generation.OverrideTimeout)*time.Second),
	)

	s.Publisher, err = NewPublisher(cfg.Events)
	if err != nil {
		return err
	}
	s.closers = append(s.closers, s.Publisher.Close)

	s.Workers, err = worker.NewPool(&worker.Config{
		Driver:    s.Storage,
		Publisher: s.Publisher,
		Logger:    s.logger.With("component", "worker"),
	})
	if err != nil {
		return fmt.Errorf("creating worker pool: %w", err)
	}
	// Drain the pool before the driver and publisher it writes to.
	s.closers = append(s.closers, func() error { s.Workers.Close(); return nil })

	triggers := intent.DefaultTriggers()
	if cfg.Intent.TriggersPath != "" {
		triggers, err = intent.LoadTriggers(dotdir.Resolve(s.Dir, cfg.Intent.TriggersPath))
		if err != nil {
			return err
		}
	}

	s.StaticDir, err = dotdir.Ensure(s.Dir, cfg.Audio.StaticDir)
	if err != nil {
		return err
	}
	transcriber, synthesizer := s.speech()

	s.Orchestrator, err = pipeline.New(pipeline.Config{
		Router:         intent.NewRouter(triggers),
		Memory:         s.Memory,
		Generator:      s.Chain,
		Sources:        s.Sources,
		History:        history.NewBuffer(cfg.History.Capacity),
		Assembler:      assemble.New(),
		Persona:        s.Persona,
		DefaultPersona: cfg.Persona.Default,
		Storage:        s.Storage,
		Workers:        s.Workers,
		Synthesizer:    synthesizer,
		Transcriber:    transcriber,
		QueryK:         cfg.Memory.K,
		Window:         cfg.History.Window,
		Logger:         s.logger.With("component", "pipeline"),
	})
	if err != nil {
		return err
	}

	if cfg.API.MCP {
		s.MCP, err = mcp.NewServer(mcp.Config{
			Memory: s.Memory,
			Logger: s.logger.With("component", "mcp"),
		})
		if err != nil {
			return fmt.Errorf("creating MCP server: %w", err)
		}
	}
	return nil
}

func (s *Stack) buildMemory(ctx context.Context) error {
	cfg := s.Config

	storeDir, err := dotdir.Ensure(s.Dir, cfg.Data.StoreDir)
	if err != nil {
		return err
	}
	s.Sources, err = docstore.New(storeDir, cfg.Data.Include, s.logger.With("component", "docstore"))
	if err != nil {
		return err
	}

	embedder, err := embeddingutils.NewEmbedder(ctx, &embeddingutils.NewEmbedderOpts{
		ProviderType: cfg.Embedding.Provider,
		TargetURL:    cfg.Embedding.Target,
		Model:        cfg.Embedding.Model,
		APIKey:       firstNonEmpty(cfg.Embedding.APIKey, os.Getenv(apiKeyEnv[provider.Gemini])),
		Dimensions:   cfg.Embedding.Dimensions,
		CacheSize:    cfg.Embedding.CacheSize,
		Logger:       s.logger.With("component", "embeddings"),
	})
	if err != nil {
		return fmt.Errorf("creating embedder: %w", err)
	}
	s.closers = append(s.closers, embedder.Close)

	opener, closeOpener, err := vectorutils.NewOpener(&vectorutils.NewOpenerOpts{
		Backend:     cfg.Memory.Backend,
		SegmentsDir: dotdir.Resolve(s.Dir, cfg.Memory.SegmentsDir),
		Target:      cfg.Memory.Target,
		Dimensions:  cfg.Embedding.Dimensions,
		Logger:      s.logger.With("component", "vector"),
	})
	if err != nil {
		return fmt.Errorf("creating segment opener: %w", err)
	}
	s.closers = append(s.closers, closeOpener)

	s.Memory, err = memory.NewStore(opener, embedder, s.logger.With("component", "memory"), memory.WithSources(s.Sources))
	if err != nil {
		return err
	}
	s.closers = append(s.closers, s.Memory.Close)
	return nil
}

func (s *Stack) speech() (audio.Transcriber, audio.Synthesizer) {
	cfg := s.Config.Audio
	var (
		t  audio.Transcriber = audio.Nop{}
		sy audio.Synthesizer = audio.Nop{}
	)
	if cfg.TranscribeURL != "" {
		t = audio.NewHTTPTranscriber(cfg.TranscribeURL, s.logger.With("component", "transcriber"))
	}
	if cfg.SynthesizeURL != "" {
		sy = audio.NewHTTPSynthesizer(audio.SynthesizerConfig{
			URL:       cfg.SynthesizeURL,
			StaticDir: s.StaticDir,
			Voice:     cfg.Voice,
			Rate:      cfg.Rate,
			Pitch:     cfg.Pitch,
			Logger:    s.logger.With("component", "synthesizer"),
		})
	}
	return t, sy
}

// RebuildAll re-indexes every segment present in the document store.
func (s *Stack) RebuildAll(ctx context.Context) error {
	segments, err := s.Sources.Segments()
	if err != nil {
		return err
	}
	var errs []error
	for _, name := range segments {
		scope, ok := memory.ParseSegment(name)
		if !ok {
			s.logger.Warn("skipping unrecognized segment", "segment", name)
			continue
		}
		if err := s.Memory.RebuildFromSources(ctx, scope); err != nil {
			errs = append(errs, fmt.Errorf("rebuilding %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// Close releases everything in reverse build order.
func (s *Stack) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}

// NewStorageDriver opens the configured transcript store.
func NewStorageDriver(ctx context.Context, c config.StorageConfig, dir string, logger *slog.Logger) (storage.Driver, error) {
	switch c.Driver {
	case StorageInMemory:
		logger.Info("using in-memory storage")
		return inmemory.NewDriver(), nil

	case StorageSQLite, "":
		path := dotdir.Resolve(dir, c.SQLitePath)
		driver, err := sqlite.NewDriver(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("failed to create SQLite storer: %w", err)
		}
		logger.Info("using SQLite storage", "path", path)
		return driver, nil

	case StoragePostgres:
		if c.PostgresDSN == "" {
			return nil, errors.New("postgres storage requires storage.postgres_dsn")
		}
		driver, err := postgres.NewDriver(ctx, c.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("failed to create PostgreSQL storer: %w", err)
		}
		logger.Info("using PostgreSQL storage")
		return driver, nil

	default:
		return nil, fmt.Errorf("unsupported storage driver: %s", c.Driver)
	}
}

// Ladder turns the configured rung names into provider configs. Unknown
// names and cloud rungs without a key are logged and left out.
func Ladder(g config.GenerationConfig, logger *slog.Logger) []provider.Config {
	timeout := time.Duration(g.TimeoutSec) * time.Second

	ladder := make([]provider.Config, 0, len(g.Ladder))
	for _, name := range g.Ladder {
		kind, err := provider.ParseKind(name)
		if err != nil || kind == provider.Remote {
			logger.Warn("skipping unknown ladder rung", "rung", name)
			continue
		}

		pc := rungConfig(g, kind)
		pc.Kind = kind
		pc.Timeout = timeout

		if env, ok := apiKeyEnv[kind]; ok {
			pc.APIKey = firstNonEmpty(pc.APIKey, os.Getenv(env))
			if pc.APIKey == "" {
				logger.Info("skipping ladder rung without api key", "rung", name)
				continue
			}
		}
		ladder = append(ladder, pc)
	}
	return ladder
}

func rungConfig(g config.GenerationConfig, kind provider.Kind) provider.Config {
	var p config.ProviderConfig
	switch kind {
	case provider.Anthropic:
		p = g.Anthropic
	case provider.OpenAI:
		p = g.OpenAI
	case provider.Gemini:
		p = g.Gemini
	case provider.Local:
		p = g.Local
	case provider.Ollama:
		p = g.Ollama
	}
	return provider.Config{BaseURL: p.BaseURL, APIKey: p.APIKey, Model: p.Model}
}

// NewPublisher returns a Kafka publisher, or a no-op one when no brokers are
// configured.
func NewPublisher(c config.EventsConfig) (eventstream.Publisher, error) {
	if len(c.Brokers) == 0 {
		return nop.NewPublisher(), nil
	}
	p, err := kafka.NewPublisher(kafka.Config{Brokers: c.Brokers, Topic: c.Topic})
	if err != nil {
		return nil, fmt.Errorf("creating kafka publisher: %w", err)
	}
	return p, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
