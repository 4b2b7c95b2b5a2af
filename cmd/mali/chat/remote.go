package chatcmder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/nontawat9304/mali-chat/api"
	"github.com/nontawat9304/mali-chat/api/header"
	"github.com/nontawat9304/mali-chat/pkg/dotdir"
)

// HTTPSender posts turns to a running server's /chat endpoint.
type HTTPSender struct {
	target string
	client *http.Client
}

func NewHTTPSender(target string) *HTTPSender {
	return &HTTPSender{
		target: strings.TrimSuffix(target, "/"),
		// LLM responses can be slow
		client: &http.Client{Timeout: 5 * time.Minute},
	}
}

func (h *HTTPSender) Send(ctx context.Context, message string, s *dotdir.SessionState) (Turn, error) {
	body, err := json.Marshal(api.ChatRequest{
		Message:      message,
		Persona:      s.Persona,
		MuteAudio:    s.MuteAudio,
		RemoteLLMURL: s.RemoteEndpoint,
	})
	if err != nil {
		return Turn{}, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.target+"/chat", bytes.NewReader(body))
	if err != nil {
		return Turn{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.Identity != "" {
		req.Header.Set(header.Identity, s.Identity)
	}
	if s.Privileged {
		req.Header.Set(header.Role, header.RoleAdmin)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return Turn{}, fmt.Errorf("sending request to server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var e api.ErrorResponse
		raw, _ := io.ReadAll(resp.Body)
		if json.Unmarshal(raw, &e) == nil && e.Error != "" {
			return Turn{}, fmt.Errorf("server returned status %d: %s", resp.StatusCode, e.Error)
		}
		return Turn{}, fmt.Errorf("server returned status %d: %s", resp.StatusCode, string(raw))
	}

	var out api.ChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Turn{}, fmt.Errorf("decoding response: %w", err)
	}
	return Turn{Text: out.Reply, Source: out.ModelSource}, nil
}
