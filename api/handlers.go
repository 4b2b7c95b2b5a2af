package api

import (
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/url"

	"github.com/gofiber/fiber/v2"

	"github.com/nontawat9304/mali-chat/api/header"
	"github.com/nontawat9304/mali-chat/pkg/docstore"
	"github.com/nontawat9304/mali-chat/pkg/memory"
	"github.com/nontawat9304/mali-chat/pkg/pipeline"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// ChatRequest is the body of POST /chat.
type ChatRequest struct {
	Message      string `json:"message"`
	Persona      string `json:"persona,omitempty"`
	MuteAudio    bool   `json:"mute_audio"`
	RemoteLLMURL string `json:"remote_llm_url,omitempty"`
	Scope        string `json:"scope,omitempty"`
}

// ChatResponse is the answer to POST /chat.
type ChatResponse struct {
	Reply          string  `json:"reply"`
	AudioURL       *string `json:"audio_url"`
	AnimationState string  `json:"animation_state"`
	ModelSource    string  `json:"model_source"`
}

// VoiceChatResponse is the answer to POST /voice-chat.
type VoiceChatResponse struct {
	Transcription  string  `json:"transcription"`
	Reply          string  `json:"reply"`
	AudioURL       *string `json:"audio_url"`
	AnimationState string  `json:"animation_state"`
}

// PersonaRequest is the body of POST /persona.
type PersonaRequest struct {
	PersonaText string `json:"persona_text"`
}

// ForgetRequest is the body of POST /forget.
type ForgetRequest struct {
	Filename string `json:"filename"`
	Scope    string `json:"scope,omitempty"`
}

// TrainTextRequest is the body of POST /train-text.
type TrainTextRequest struct {
	Title string `json:"title"`
	Text  string `json:"text"`
	Scope string `json:"scope,omitempty"`
}

// TrainResponse is the answer to both training routes.
type TrainResponse struct {
	Filename string `json:"filename"`
	Status   string `json:"status"`
}

const trainedStatus = "Training completed"

// handlePing returns a simple health check response.
func (s *Server) handlePing(c *fiber.Ctx) error {
	return c.JSON("pong")
}

// detached returns a context that survives the client going away, so a
// started generation or write always completes.
func detached(c *fiber.Ctx) context.Context {
	return context.WithoutCancel(c.UserContext())
}

// fail maps pipeline and store errors onto status codes.
func (s *Server) fail(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	switch {
	case errors.Is(err, memory.ErrScopeViolation):
		status = fiber.StatusForbidden
	case errors.Is(err, pipeline.ErrEmptyUtterance),
		errors.Is(err, pipeline.ErrEmptySource),
		errors.Is(err, docstore.ErrInvalidFilename):
		status = fiber.StatusBadRequest
	case errors.Is(err, docstore.ErrNotFound):
		status = fiber.StatusNotFound
	default:
		s.logger.Error("request failed", "path", c.Path(), "error", err)
	}
	return c.Status(status).JSON(ErrorResponse{Error: err.Error()})
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: msg})
}

func audioURL(ref string) *string {
	if ref == "" {
		return nil
	}
	return &ref
}

// handleChat runs one text turn.
func (s *Server) handleChat(c *fiber.Ctx) error {
	var req ChatRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	reply, err := s.orch.Handle(detached(c), pipeline.Request{
		Utterance:      req.Message,
		Caller:         header.Caller(c, req.Scope),
		Persona:        req.Persona,
		MuteAudio:      req.MuteAudio,
		RemoteEndpoint: req.RemoteLLMURL,
	})
	if err != nil {
		return s.fail(c, err)
	}

	return c.JSON(ChatResponse{
		Reply:          reply.Text,
		AudioURL:       audioURL(reply.AudioRef),
		AnimationState: reply.Animation,
		ModelSource:    reply.Source,
	})
}

// handleVoiceChat transcribes the uploaded "file" and answers it.
func (s *Server) handleVoiceChat(c *fiber.Ctx) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return badRequest(c, "file is required")
	}
	data, err := readUpload(fh)
	if err != nil {
		return badRequest(c, "could not read file")
	}

	reply, err := s.orch.HandleVoice(detached(c), data, pipeline.Request{
		Caller:    header.Caller(c, c.FormValue("scope")),
		Persona:   c.FormValue("persona"),
		MuteAudio: c.FormValue("mute_audio") == "true",
	})
	if err != nil {
		return s.fail(c, err)
	}

	return c.JSON(VoiceChatResponse{
		Transcription:  reply.Transcription,
		Reply:          reply.Text,
		AudioURL:       audioURL(reply.AudioRef),
		AnimationState: reply.Animation,
	})
}

func (s *Server) handleGetPersona(c *fiber.Ctx) error {
	if s.config.Persona == nil {
		return c.JSON(fiber.Map{"persona": ""})
	}
	text, err := s.config.Persona.Load()
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{"persona": text})
}

func (s *Server) handleSavePersona(c *fiber.Ctx) error {
	if s.config.Persona == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(ErrorResponse{Error: "persona store is not configured"})
	}
	var req PersonaRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if err := s.config.Persona.Save(req.PersonaText); err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{"status": "Persona updated", "persona": req.PersonaText})
}

// handleHistory lists the training log entries the caller may see.
func (s *Server) handleHistory(c *fiber.Ctx) error {
	if s.config.Sources == nil {
		return c.JSON([]docstore.HistoryEntry{})
	}
	entries, err := s.config.Sources.History()
	if err != nil {
		return s.fail(c, err)
	}

	caller := header.Caller(c, "")
	visible := make([]docstore.HistoryEntry, 0, len(entries))
	for _, e := range entries {
		scope, ok := memory.ParseSegment(e.Scope)
		if !ok || caller.CanRead(scope) != nil {
			continue
		}
		visible = append(visible, e)
	}
	return c.JSON(visible)
}

func (s *Server) handleForget(c *fiber.Ctx) error {
	var req ForgetRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.Filename == "" {
		return badRequest(c, "filename is required")
	}

	if err := s.orch.Forget(detached(c), req.Filename, header.Caller(c, req.Scope)); err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{"status": "Forgotten", "filename": req.Filename})
}

// handleTrain indexes an uploaded text file.
func (s *Server) handleTrain(c *fiber.Ctx) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return badRequest(c, "file is required")
	}
	data, err := readUpload(fh)
	if err != nil {
		return badRequest(c, "could not read file")
	}

	entry, err := s.orch.Train(detached(c), pipeline.TrainRequest{
		Filename: fh.Filename,
		Text:     string(data),
		Caller:   header.Caller(c, c.FormValue("scope")),
	})
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(TrainResponse{Filename: entry.Filename, Status: trainedStatus})
}

func (s *Server) handleTrainText(c *fiber.Ctx) error {
	var req TrainTextRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	entry, err := s.orch.Train(detached(c), pipeline.TrainRequest{
		Title:  req.Title,
		Text:   req.Text,
		Caller: header.Caller(c, req.Scope),
	})
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(TrainResponse{Filename: entry.Filename, Status: trainedStatus})
}

// handleDownload sends a retained source from the caller's private segment,
// or from the global one with ?scope=global.
func (s *Server) handleDownload(c *fiber.Ctx) error {
	if s.config.Sources == nil {
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{Error: "File not found"})
	}
	filename := c.Params("filename")
	if unescaped, err := url.PathUnescape(filename); err == nil {
		filename = unescaped
	}

	caller := header.Caller(c, c.Query("scope"))
	scope := memory.Global
	if !caller.RequestGlobal && !caller.Identity.Anonymous() {
		scope = memory.Private(caller.Identity)
	}
	if err := caller.CanRead(scope); err != nil {
		return s.fail(c, err)
	}

	p, err := s.config.Sources.Path(scope.Segment(), filename)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{Error: "File not found"})
	}
	return c.Download(p, filename)
}

func readUpload(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}
