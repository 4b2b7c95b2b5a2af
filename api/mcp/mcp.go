// Package mcp provides an MCP (Model Context Protocol) server exposing the
// assistant's scoped memory to agents.
package mcp

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/nontawat9304/mali-chat/pkg/memory"
	"github.com/nontawat9304/mali-chat/pkg/utils"
)

// Memory is the part of the memory store the tools use.
type Memory interface {
	Insert(ctx context.Context, text, source string, scope memory.ScopeKey, caller memory.Caller) (memory.Record, error)
	Query(ctx context.Context, text string, k int, caller memory.Caller) []memory.Result
}

type Config struct {
	// Memory backs memory_query and memory_remember
	Memory Memory

	// Noop for empty MCP server
	Noop bool

	// Logger is the configured slog logger
	Logger *slog.Logger
}

type Server struct {
	config    Config
	mcpServer *mcp.Server
	handler   *mcp.StreamableHTTPHandler
}

// NewServer creates a new MCP server with the memory tools.
func NewServer(c Config) (*Server, error) {
	s := &Server{
		config: c,
	}

	mcpServer := mcp.NewServer(
		&mcp.Implementation{
			Name:    "mali",
			Version: utils.Version,
		},
		&mcp.ServerOptions{},
	)

	if !c.Noop {
		if c.Memory == nil {
			return nil, errors.New("memory store is required")
		}
		if c.Logger == nil {
			return nil, errors.New("logger is required")
		}

		mcp.AddTool(mcpServer, &mcp.Tool{
			Name:        memoryQueryToolName,
			Description: memoryQueryDescription,
		}, s.handleMemoryQuery)

		mcp.AddTool(mcpServer, &mcp.Tool{
			Name:        memoryRememberToolName,
			Description: memoryRememberDescription,
		}, s.handleMemoryRemember)
	}

	s.mcpServer = mcpServer

	// Create a streamable HTTP net/http handler for stateless operations
	s.handler = mcp.NewStreamableHTTPHandler(
		func(_ *http.Request) *mcp.Server {
			return mcpServer
		},
		&mcp.StreamableHTTPOptions{
			Stateless: true,
		},
	)

	return s, nil
}

// Handler returns the HTTP handler for the MCP server.
func (s *Server) Handler() http.Handler {
	return s.handler
}
