package api

import (
	"log/slog"
	"strings"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"

	"github.com/nontawat9304/mali-chat/pkg/audio"
	"github.com/nontawat9304/mali-chat/pkg/pipeline"
)

// Server is the API server for talking to and teaching the assistant.
type Server struct {
	config Config
	orch   *pipeline.Orchestrator
	logger *slog.Logger
	app    *fiber.App
}

// NewServer creates a new API server around orch.
func NewServer(config Config, orch *pipeline.Orchestrator, logger *slog.Logger) *Server {
	if config.BodyLimit <= 0 {
		config.BodyLimit = DefaultBodyLimit
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		BodyLimit:             config.BodyLimit,
	})

	s := &Server{
		config: config,
		orch:   orch,
		logger: logger,
		app:    app,
	}

	app.Get("/ping", s.handlePing)
	app.Post("/chat", s.handleChat)
	app.Post("/voice-chat", s.handleVoiceChat)
	app.Get("/persona", s.handleGetPersona)
	app.Post("/persona", s.handleSavePersona)
	app.Get("/history", s.handleHistory)
	app.Post("/forget", s.handleForget)
	app.Post("/train", s.handleTrain)
	app.Post("/train-text", s.handleTrainText)
	app.Get("/download/:filename", s.handleDownload)

	if config.StaticDir != "" {
		app.Static(strings.TrimSuffix(audio.URLPrefix, "/"), config.StaticDir)
	}
	if config.MCP != nil {
		h := adaptor.HTTPHandler(config.MCP)
		app.All("/mcp", h)
		app.All("/mcp/*", h)
	}

	return s
}

// App exposes the fiber app, mostly for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Run starts the API server on the configured address.
func (s *Server) Run() error {
	s.logger.Info("starting API server", "listen", s.config.ListenAddr)
	return s.app.Listen(s.config.ListenAddr)
}

// Shutdown gracefully shuts down the API server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
