// Package api provides the HTTP surface of the assistant: chat, voice chat,
// persona, training and the static audio files replies point at.
package api

import (
	"net/http"

	"github.com/nontawat9304/mali-chat/pkg/docstore"
	"github.com/nontawat9304/mali-chat/pkg/persona"
)

// DefaultBodyLimit bounds uploads (training files and recorded audio).
const DefaultBodyLimit = 16 * 1024 * 1024

// Config is the API server configuration.
type Config struct {
	// ListenAddr is the address to listen on (e.g., ":8000")
	ListenAddr string

	// Sources serves /history, /download and /forget. Optional.
	Sources *docstore.Store

	// Persona backs GET and POST /persona. Optional.
	Persona *persona.Store

	// StaticDir is served under /static/audio when set.
	StaticDir string

	// MCP is mounted at /mcp when set.
	MCP http.Handler

	// BodyLimit defaults to DefaultBodyLimit.
	BodyLimit int
}
