// Package pipeline runs one conversational turn end to end: route the
// utterance, remember or rename when asked, otherwise retrieve memories and
// history, assemble context, generate through the provider chain, sanitize,
// speak, and record the turn.
//
// Only two things surface as errors from a turn: an empty utterance and a
// scope violation. Everything else degrades to a weaker answer.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/nontawat9304/mali-chat/pkg/assemble"
	"github.com/nontawat9304/mali-chat/pkg/audio"
	"github.com/nontawat9304/mali-chat/pkg/docstore"
	"github.com/nontawat9304/mali-chat/pkg/eventstream"
	"github.com/nontawat9304/mali-chat/pkg/history"
	"github.com/nontawat9304/mali-chat/pkg/intent"
	"github.com/nontawat9304/mali-chat/pkg/llm/chain"
	"github.com/nontawat9304/mali-chat/pkg/llm/prompt"
	"github.com/nontawat9304/mali-chat/pkg/memory"
	"github.com/nontawat9304/mali-chat/pkg/persona"
	"github.com/nontawat9304/mali-chat/pkg/sanitize"
	"github.com/nontawat9304/mali-chat/pkg/storage"
	"github.com/nontawat9304/mali-chat/pkg/worker"
)

const (
	SourceMemory   = "System (Memory)"
	SourceProfile  = "System (Profile)"
	SourceFallback = "System (Fallback)"

	AnimationIdle    = "idle"
	AnimationTalking = "talking"

	// DefaultQueryK is how many memories each visible segment contributes.
	DefaultQueryK = 3

	// NotHeardReply answers a voice turn whose transcription came back empty.
	NotHeardReply = "Sorry, I could not hear you."

	// memoryTitleRunes is how much of a remembered sentence names its source.
	memoryTitleRunes = 30
)

var (
	// ErrEmptyUtterance is returned for blank input.
	ErrEmptyUtterance = errors.New("utterance is empty")

	// ErrNotConfigured is returned by New when a required collaborator is missing.
	ErrNotConfigured = errors.New("pipeline not configured")
)

// Memory is the subset of the memory store a turn needs.
type Memory interface {
	Insert(ctx context.Context, text, source string, scope memory.ScopeKey, caller memory.Caller) (memory.Record, error)
	Query(ctx context.Context, text string, k int, caller memory.Caller) []memory.Result
	ForgetSegment(ctx context.Context, scope memory.ScopeKey, source string, caller memory.Caller) error
}

// Generator produces a reply from a prompt, falling back across providers.
type Generator interface {
	Generate(ctx context.Context, req chain.Request) chain.Outcome
}

// Config wires the orchestrator's collaborators. Router, Memory and
// Generator are required; the rest are optional.
type Config struct {
	Router    *intent.Router
	Memory    Memory
	Generator Generator

	// Sources keeps the training log for remembered and trained texts.
	Sources *docstore.Store

	History   *history.Buffer
	Assembler *assemble.Assembler
	Persona   *persona.Store

	// DefaultPersona is used when neither the request nor the persona file
	// names one. Defaults to prompt.DefaultPersona.
	DefaultPersona string

	// Storage holds transcripts and profiles.
	Storage storage.Driver

	// Workers runs transcript appends and event publishing off the reply path.
	Workers *worker.Pool

	Synthesizer audio.Synthesizer
	Transcriber audio.Transcriber

	// QueryK defaults to DefaultQueryK.
	QueryK int

	// Window is the number of recent turns handed to the assembler.
	Window int

	Now    func() time.Time
	Logger *slog.Logger
}

// Request is one inbound turn.
type Request struct {
	Utterance string
	Caller    memory.Caller

	// Persona overrides the stored persona for this turn.
	Persona string

	MuteAudio bool

	// RemoteEndpoint is tried once before the provider ladder.
	RemoteEndpoint string
}

// Reply is the answer to a turn.
type Reply struct {
	Text      string
	AudioRef  string
	Animation string
	Source    string
	Intent    intent.Kind
}

// VoiceReply is the answer to a spoken turn.
type VoiceReply struct {
	Transcription string
	Reply
}

// Orchestrator runs turns.
type Orchestrator struct {
	router    *intent.Router
	memory    Memory
	generator Generator
	sources   *docstore.Store
	history   *history.Buffer
	assembler *assemble.Assembler
	persona   *persona.Store
	fallback  string
	storage   storage.Driver
	workers   *worker.Pool
	speaker   audio.Synthesizer
	listener  audio.Transcriber
	k         int
	window    int
	now       func() time.Time
	logger    *slog.Logger
}

// New validates c and returns an Orchestrator.
func New(c Config) (*Orchestrator, error) {
	if c.Router == nil || c.Memory == nil || c.Generator == nil {
		return nil, fmt.Errorf("%w: router, memory and generator are required", ErrNotConfigured)
	}

	o := &Orchestrator{
		router:    c.Router,
		memory:    c.Memory,
		generator: c.Generator,
		sources:   c.Sources,
		history:   c.History,
		assembler: c.Assembler,
		persona:   c.Persona,
		fallback:  strings.TrimSpace(c.DefaultPersona),
		storage:   c.Storage,
		workers:   c.Workers,
		speaker:   c.Synthesizer,
		listener:  c.Transcriber,
		k:         c.QueryK,
		window:    c.Window,
		now:       c.Now,
		logger:    c.Logger,
	}

	if o.history == nil {
		o.history = history.NewBuffer(history.DefaultCapacity)
	}
	if o.assembler == nil {
		o.assembler = assemble.New()
	}
	if o.speaker == nil {
		o.speaker = audio.Nop{}
	}
	if o.listener == nil {
		o.listener = audio.Nop{}
	}
	if o.fallback == "" {
		o.fallback = prompt.DefaultPersona
	}
	if o.k <= 0 {
		o.k = DefaultQueryK
	}
	if o.window <= 0 {
		o.window = assemble.DefaultWindow
	}
	if o.now == nil {
		o.now = time.Now
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	return o, nil
}

// Handle runs one text turn.
func (o *Orchestrator) Handle(ctx context.Context, req Request) (Reply, error) {
	utterance := strings.TrimSpace(req.Utterance)
	if utterance == "" {
		return Reply{}, ErrEmptyUtterance
	}
	req.Utterance = utterance

	in := o.router.Route(utterance, req.Caller)
	o.logger.Debug("turn routed", "identity", req.Caller.Identity, "intent", in.Kind.String())

	switch in.Kind {
	case intent.MemoryWrite:
		return o.remember(ctx, req, in)
	case intent.ProfileUpdate:
		return o.rename(ctx, req, in), nil
	default:
		return o.answer(ctx, req), nil
	}
}

// HandleVoice transcribes audio and runs the result as a text turn. An
// empty or failed transcription answers NotHeardReply without generating.
func (o *Orchestrator) HandleVoice(ctx context.Context, data []byte, req Request) (VoiceReply, error) {
	text, err := o.listener.Transcribe(ctx, data, audio.DefaultLanguage)
	if err != nil {
		o.logger.Warn("transcription failed", "identity", req.Caller.Identity, "error", err)
		text = ""
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return VoiceReply{Reply: Reply{Text: NotHeardReply, Animation: AnimationIdle}}, nil
	}

	req.Utterance = text
	reply, err := o.Handle(ctx, req)
	if err != nil {
		return VoiceReply{Transcription: text}, err
	}
	return VoiceReply{Transcription: text, Reply: reply}, nil
}

// Apology is the reply when no provider produced usable text.
func Apology(persona string) string {
	return persona + " ขอโทษค่ะ สมองหนูเบลอนิดหน่อย (LLM Error)"
}

// MemoryReply confirms a remembered sentence.
func MemoryReply(content string) string {
	return `รับทราบค่ะ! (* >ω<) มะลิจำได้แล้วว่า "` + content + `"`
}

// ProfileReply confirms a new display name.
func ProfileReply(name string) string {
	return `ได้เลยค่ะ! (* >ω<) ต่อไปนี้มะลิจะเรียกว่า "` + name + `" นะคะ`
}

func (o *Orchestrator) remember(ctx context.Context, req Request, in intent.Intent) (Reply, error) {
	title := memoryTitle(in.Content)
	source := docstore.SanitizeFilename(title)

	rec, err := o.memory.Insert(ctx, in.Content, source, in.Scope, req.Caller)
	switch {
	case err == nil:
	case errors.Is(err, memory.ErrScopeViolation):
		return Reply{}, err
	case rec.ID != "":
		// Retained but not indexed; a rebuild of the scope picks it up.
		o.logger.Error("memory indexing failed", "segment", in.Scope.Segment(), "source", source, "error", err)
	default:
		o.logger.Error("memory insert failed", "segment", in.Scope.Segment(), "error", err)
		reply := Reply{
			Text:      Apology(o.resolvePersona(req.Persona)),
			Animation: AnimationIdle,
			Source:    SourceFallback,
			Intent:    intent.MemoryWrite,
		}
		o.record(ctx, req, in.Kind, reply, nil)
		return reply, nil
	}
	if o.sources != nil {
		if _, err := o.sources.RecordHistory(in.Scope.Segment(), source, title, docstore.StatusMemory); err != nil {
			o.logger.Warn("recording training history failed", "source", source, "error", err)
		}
	}

	reply := Reply{
		Text:      MemoryReply(in.Content),
		Animation: AnimationIdle,
		Source:    SourceMemory,
		Intent:    intent.MemoryWrite,
	}
	o.record(ctx, req, in.Kind, reply, nil,
		history.Turn{Role: history.System, Text: "[Memory Recorded: " + in.Content + "]"},
	)
	return reply, nil
}

func memoryTitle(content string) string {
	if utf8.RuneCountInString(content) > memoryTitleRunes {
		content = string([]rune(content)[:memoryTitleRunes])
	}
	return "Chat: " + content + "..."
}

func (o *Orchestrator) rename(ctx context.Context, req Request, in intent.Intent) Reply {
	id := req.Caller.Identity
	switch {
	case o.storage == nil:
	case id.Anonymous():
		o.logger.Debug("profile update ignored for anonymous caller", "name", in.Name)
	default:
		profile, err := o.storage.GetProfile(ctx, id)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			o.logger.Warn("loading profile failed", "identity", id, "error", err)
		}
		profile.Identity = id
		profile.DisplayName = in.Name
		profile.UpdatedAt = o.now()
		if err := o.storage.SetProfile(ctx, profile); err != nil {
			o.logger.Error("saving profile failed", "identity", id, "error", err)
		}
	}

	reply := Reply{
		Text:      ProfileReply(in.Name),
		Animation: AnimationIdle,
		Source:    SourceProfile,
		Intent:    intent.ProfileUpdate,
	}
	o.record(ctx, req, in.Kind, reply, nil)
	return reply
}

func (o *Orchestrator) answer(ctx context.Context, req Request) Reply {
	who := o.resolvePersona(req.Persona)

	memories := o.memory.Query(ctx, req.Utterance, o.k, req.Caller)
	turns := o.recent(ctx, req.Caller.Identity)
	facts := o.facts(ctx, req.Caller.Identity)

	bundle := o.assembler.Assemble(req.Utterance, req.Caller.Identity, memories, turns, facts)
	p := prompt.Build(who, bundle.String(), req.Utterance)

	outcome := o.generator.Generate(ctx, chain.Request{Prompt: p, Override: req.RemoteEndpoint})

	reply := Reply{
		Animation: AnimationIdle,
		Source:    outcome.Source,
		Intent:    intent.Query,
	}
	if outcome.OK() {
		reply.Text = sanitize.Clean(outcome.Text)
	} else {
		o.logger.Warn("generation failed", "identity", req.Caller.Identity, "attempts", len(outcome.Attempts), "error", outcome.Err)
	}
	if reply.Text == "" {
		reply.Text = Apology(who)
		reply.Source = SourceFallback
	}

	if !req.MuteAudio {
		ref, err := o.speaker.Synthesize(ctx, reply.Text)
		switch {
		case err != nil:
			o.logger.Warn("speech synthesis failed", "error", err)
		case ref != "":
			reply.AudioRef = ref
			reply.Animation = AnimationTalking
		}
	}

	o.record(ctx, req, intent.Query, reply, outcome.Attempts)
	return reply
}

func (o *Orchestrator) resolvePersona(requested string) string {
	if o.persona == nil {
		if strings.TrimSpace(requested) != "" {
			return strings.TrimSpace(requested)
		}
		return o.fallback
	}
	return o.persona.Resolve(requested, o.fallback)
}

// recent returns the history window.
func (o *Orchestrator) recent(ctx context.Context, id memory.Identity) []history.Turn {
	o.warm(ctx, id)
	return o.history.Recent(id, o.window)
}

// warm seeds the buffer from durable transcripts the first time an identity
// is seen.
func (o *Orchestrator) warm(ctx context.Context, id memory.Identity) {
	if o.storage == nil || id.Anonymous() || o.history.Warmed(id) {
		return
	}
	turns, err := o.storage.RecentTurns(ctx, id, o.history.Capacity())
	if err != nil {
		o.logger.Warn("loading transcript failed", "identity", id, "error", err)
		return
	}
	o.history.Warm(id, turns)
}

func (o *Orchestrator) facts(ctx context.Context, id memory.Identity) assemble.Facts {
	if o.storage == nil || id.Anonymous() {
		return nil
	}
	profile, err := o.storage.GetProfile(ctx, id)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			o.logger.Warn("loading profile failed", "identity", id, "error", err)
		}
		return nil
	}
	return profile.Facts()
}

// record appends the turn to history and hands persistence and the event
// to the worker pool. extra turns go between the user and assistant lines.
// Anonymous transcripts are not persisted.
func (o *Orchestrator) record(ctx context.Context, req Request, kind intent.Kind, reply Reply, attempts []chain.Attempt, extra ...history.Turn) {
	now := o.now()
	id := req.Caller.Identity

	turns := make([]history.Turn, 0, len(extra)+2)
	turns = append(turns, history.Turn{Role: history.User, Text: req.Utterance})
	turns = append(turns, extra...)
	turns = append(turns, history.Turn{Role: history.Assistant, Text: reply.Text})
	for i := range turns {
		turns[i].Timestamp = now
		turns[i].Identity = id
	}

	o.warm(ctx, id)
	o.history.Append(id, turns...)

	if o.workers == nil {
		return
	}
	event := eventstream.NewTurnEvent(string(id), kind.String(), reply.Source, req.Utterance, reply.Text, now)
	for _, a := range attempts {
		meta := eventstream.AttemptMeta{Source: a.Source, ElapsedMs: a.Elapsed.Milliseconds()}
		if a.Err != nil {
			meta.Error = a.Err.Error()
		}
		event.Attempts = append(event.Attempts, meta)
	}
	job := worker.Job{Identity: id, Event: event}
	if !id.Anonymous() {
		job.Turns = turns
	}
	o.workers.Enqueue(job)
}
