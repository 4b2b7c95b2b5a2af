package audio

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// HTTPTranscriber posts raw audio to a speech-to-text service and expects
// {"text": "..."} back.
type HTTPTranscriber struct {
	url        string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewHTTPTranscriber(endpoint string, logger *slog.Logger) *HTTPTranscriber {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPTranscriber{
		url:        endpoint,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		logger:     logger,
	}
}

type transcribeResponse struct {
	Text string `json:"text"`
}

func (t *HTTPTranscriber) Transcribe(ctx context.Context, audio []byte, language string) (string, error) {
	if language == "" {
		language = DefaultLanguage
	}
	u, err := url.Parse(t.url)
	if err != nil {
		return "", fmt.Errorf("%w: parsing endpoint: %v", ErrTranscriptionFailed, err)
	}
	q := u.Query()
	q.Set("language", language)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(audio))
	if err != nil {
		return "", fmt.Errorf("%w: creating request: %v", ErrTranscriptionFailed, err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	start := time.Now()
	resp, err := t.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: sending request: %v", ErrTranscriptionFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("%w: status %d: %s", ErrTranscriptionFailed, resp.StatusCode, string(body))
	}

	var out transcribeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("%w: decoding response: %v", ErrTranscriptionFailed, err)
	}

	t.logger.Debug("transcribed audio", "bytes", len(audio), "language", language, "elapsed", time.Since(start))
	return out.Text, nil
}

// SynthesizerConfig configures HTTPSynthesizer.
type SynthesizerConfig struct {
	URL string

	// StaticDir receives the generated reply_<uuid>.mp3 files.
	StaticDir string

	Voice string
	Rate  string
	Pitch string

	Logger *slog.Logger
}

// HTTPSynthesizer posts {text, voice, rate, pitch} to a text-to-speech
// service and stores the returned audio under StaticDir.
type HTTPSynthesizer struct {
	cfg        SynthesizerConfig
	httpClient *http.Client
	logger     *slog.Logger
}

func NewHTTPSynthesizer(cfg SynthesizerConfig) *HTTPSynthesizer {
	if cfg.Voice == "" {
		cfg.Voice = DefaultVoice
	}
	if cfg.Rate == "" {
		cfg.Rate = DefaultRate
	}
	if cfg.Pitch == "" {
		cfg.Pitch = DefaultPitch
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPSynthesizer{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		logger:     logger,
	}
}

type synthesizeRequest struct {
	Text  string `json:"text"`
	Voice string `json:"voice"`
	Rate  string `json:"rate"`
	Pitch string `json:"pitch"`
}

func (s *HTTPSynthesizer) Synthesize(ctx context.Context, text string) (string, error) {
	payload, err := json.Marshal(synthesizeRequest{
		Text:  text,
		Voice: s.cfg.Voice,
		Rate:  s.cfg.Rate,
		Pitch: s.cfg.Pitch,
	})
	if err != nil {
		return "", fmt.Errorf("%w: marshaling request: %v", ErrSynthesisFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.URL, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("%w: creating request: %v", ErrSynthesisFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: sending request: %v", ErrSynthesisFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("%w: status %d: %s", ErrSynthesisFailed, resp.StatusCode, string(body))
	}

	if err := os.MkdirAll(s.cfg.StaticDir, 0o755); err != nil {
		return "", fmt.Errorf("%w: creating static dir: %v", ErrSynthesisFailed, err)
	}

	name := FileName()
	path := filepath.Join(s.cfg.StaticDir, name)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("%w: creating %s: %v", ErrSynthesisFailed, name, err)
	}
	n, err := io.Copy(f, resp.Body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil && n == 0 {
		err = fmt.Errorf("empty audio body")
	}
	if err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("%w: writing %s: %v", ErrSynthesisFailed, name, err)
	}

	s.logger.Debug("synthesized reply", "file", name, "bytes", n)
	return URLPrefix + name, nil
}

// FileName returns a fresh reply_<uuid>.mp3 name.
func FileName() string {
	return "reply_" + uuid.NewString() + ".mp3"
}

var (
	_ Transcriber = (*HTTPTranscriber)(nil)
	_ Synthesizer = (*HTTPSynthesizer)(nil)
)
