// Package servecmder provides the serve command running the assistant's
// HTTP API.
package servecmder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nontawat9304/mali-chat/api"
	"github.com/nontawat9304/mali-chat/cmd/mali/bootstrap"
	"github.com/nontawat9304/mali-chat/pkg/config"
	"github.com/nontawat9304/mali-chat/pkg/logger"
	"github.com/nontawat9304/mali-chat/pkg/memory"
)

type serveCommander struct {
	listen        string
	storage       string
	sqlitePath    string
	postgresDSN   string
	memoryBackend string
	memoryTarget  string
	embedProvider string
	embedTarget   string
	embedModel    string
	embedDims     uint
	ladder        string
	kafkaBrokers  string
	triggers      string

	watch    bool
	rebuild  bool
	jsonLogs bool
	debug    bool

	logger *slog.Logger
}

const serveLongDesc string = `Run the mali API server.

Serves chat, voice chat, persona, training and download endpoints, the
synthesized audio under /static/audio, and the MCP memory tools under /mcp.

Settings come from flags, MALI_* environment variables and config.toml, in
that order of precedence.

Examples:
  mali serve
  mali serve --listen :9000 --memory-backend qdrant --memory-target localhost:6334
  mali serve --ladder ollama --storage inmemory --watch`

const serveShortDesc string = "Run the mali API server"

func NewServeCmd() *cobra.Command {
	cmder := &serveCommander{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}

			cfg, dir, err := bootstrap.LoadConfig(cmd, config.ServeFlags)
			if err != nil {
				return err
			}
			return cmder.run(cfg, dir)
		},
	}

	cmder.registerFlags(cmd)
	cmd.Flags().BoolVar(&cmder.watch, "watch", false, "Rebuild a segment when its source files change on disk")
	cmd.Flags().BoolVar(&cmder.rebuild, "rebuild", false, "Re-index every segment from its sources before serving")
	cmd.Flags().BoolVar(&cmder.jsonLogs, "json-logs", false, "Write JSON logs instead of colorized text")

	return cmd
}

// registerFlags adds the server flags from the shared registry.
func (c *serveCommander) registerFlags(cmd *cobra.Command) {
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagAPIListen, &c.listen)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagStorageDriver, &c.storage)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagSQLite, &c.sqlitePath)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagPostgresDSN, &c.postgresDSN)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagMemoryBackend, &c.memoryBackend)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagMemoryTarget, &c.memoryTarget)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagEmbeddingProv, &c.embedProvider)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagEmbeddingTgt, &c.embedTarget)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagEmbeddingModel, &c.embedModel)
	config.AddUintFlag(cmd, config.ServeFlags, config.FlagEmbeddingDims, &c.embedDims)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagLadder, &c.ladder)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagKafkaBrokers, &c.kafkaBrokers)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagTriggers, &c.triggers)
}

func (c *serveCommander) run(cfg *config.Config, dir string) error {
	c.logger = logger.New(
		logger.WithDebug(c.debug),
		logger.WithJSON(c.jsonLogs),
		logger.WithPretty(!c.jsonLogs),
		logger.WithWriter(os.Stderr),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stack, err := bootstrap.New(ctx, cfg, dir, c.logger)
	if err != nil {
		return err
	}
	defer stack.Close()

	if c.rebuild {
		if err := stack.RebuildAll(ctx); err != nil {
			c.logger.Warn("rebuilding segments", "error", err)
		}
	}
	if c.watch {
		go c.watchSources(ctx, stack)
	}

	apiConfig := api.Config{
		ListenAddr: cfg.API.Listen,
		Sources:    stack.Sources,
		Persona:    stack.Persona,
		StaticDir:  stack.StaticDir,
	}
	if stack.MCP != nil {
		apiConfig.MCP = stack.MCP.Handler()
	}
	server := api.NewServer(apiConfig, stack.Orchestrator, c.logger)

	c.logger.Info("mali ready",
		"dir", dir,
		"ladder", stack.Chain.Sources(),
		"memory_backend", cfg.Memory.Backend,
		"storage", cfg.Storage.Driver,
		"mcp", stack.MCP != nil,
	)

	errChan := make(chan error, 1)
	go func() {
		if err := server.Run(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("API server error: %w", err)
		}
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		c.logger.Info("received signal, shutting down")
		return server.Shutdown()
	}
}

// watchSources rebuilds a segment whenever its files change outside mali.
func (c *serveCommander) watchSources(ctx context.Context, stack *bootstrap.Stack) {
	err := stack.Sources.Watch(ctx, func(segment string) {
		scope, ok := memory.ParseSegment(segment)
		if !ok {
			c.logger.Debug("ignoring change in unrecognized segment", "segment", segment)
			return
		}
		if err := stack.Memory.RebuildFromSources(ctx, scope); err != nil {
			c.logger.Warn("rebuilding changed segment", "segment", segment, "error", err)
			return
		}
		c.logger.Info("segment rebuilt after source change", "segment", segment)
	})
	if err != nil && ctx.Err() == nil {
		c.logger.Error("source watcher stopped", "error", err)
	}
}
