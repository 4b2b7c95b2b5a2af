package pipeline_test

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/nontawat9304/mali-chat/pkg/assemble"
	"github.com/nontawat9304/mali-chat/pkg/docstore"
	"github.com/nontawat9304/mali-chat/pkg/eventstream"
	"github.com/nontawat9304/mali-chat/pkg/history"
	"github.com/nontawat9304/mali-chat/pkg/intent"
	"github.com/nontawat9304/mali-chat/pkg/llm"
	"github.com/nontawat9304/mali-chat/pkg/llm/chain"
	"github.com/nontawat9304/mali-chat/pkg/llm/provider"
	"github.com/nontawat9304/mali-chat/pkg/logger"
	"github.com/nontawat9304/mali-chat/pkg/memory"
	"github.com/nontawat9304/mali-chat/pkg/persona"
	"github.com/nontawat9304/mali-chat/pkg/pipeline"
	"github.com/nontawat9304/mali-chat/pkg/storage"
	"github.com/nontawat9304/mali-chat/pkg/storage/inmemory"
	testutils "github.com/nontawat9304/mali-chat/pkg/utils/test"
	"github.com/nontawat9304/mali-chat/pkg/worker"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []*eventstream.TurnEvent
}

func (r *recordingPublisher) PublishTurn(_ context.Context, e *eventstream.TurnEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recordingPublisher) Close() error { return nil }

func (r *recordingPublisher) Events() []*eventstream.TurnEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*eventstream.TurnEvent(nil), r.events...)
}

var _ = Describe("Orchestrator", func() {
	var (
		ctx       context.Context
		local     *testutils.MockGenerator
		remote    *testutils.MockGenerator
		speech    *testutils.MockSpeech
		docs      *docstore.Store
		embedder  *testutils.MockEmbedder
		store     *memory.Store
		buffer    *history.Buffer
		driver    *inmemory.Driver
		personas  *persona.Store
		publisher *recordingPublisher
		pool      *worker.Pool
		orch      *pipeline.Orchestrator

		clock = time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC)
		alice = memory.Caller{Identity: "alice"}
	)

	factory := func(_ context.Context, cfg provider.Config, _ *slog.Logger) (llm.Generator, error) {
		if cfg.Kind == provider.Remote {
			return remote, nil
		}
		return local, nil
	}

	lastPrompt := func() llm.Prompt {
		prompts := local.Prompts()
		ExpectWithOffset(1, prompts).NotTo(BeEmpty())
		return prompts[len(prompts)-1]
	}

	BeforeEach(func() {
		ctx = context.Background()
		now := func() time.Time { return clock }

		local = testutils.NewMockGenerator("tiny", "Answer: ได้เลยครับ")
		remote = testutils.NewMockGenerator("brain", "จากคลาวด์ค่ะ")
		speech = testutils.NewMockSpeech("", "/static/audio/reply_x.mp3")

		dir := GinkgoT().TempDir()
		var err error
		docs, err = docstore.New(filepath.Join(dir, "data"), "", logger.Nop(), docstore.WithClock(now))
		Expect(err).NotTo(HaveOccurred())

		embedder = testutils.NewMockEmbedder()
		store, err = memory.NewStore(testutils.NewMockOpener().Open, embedder, logger.Nop(),
			memory.WithSources(docs),
			memory.WithClock(now),
		)
		Expect(err).NotTo(HaveOccurred())

		buffer = history.NewBuffer(history.DefaultCapacity)
		driver = inmemory.NewDriver()
		personas = persona.NewStore(filepath.Join(dir, persona.FileName))
		publisher = &recordingPublisher{}

		pool, err = worker.NewPool(&worker.Config{
			Driver:     driver,
			Publisher:  publisher,
			NumWorkers: 1,
			Logger:     logger.Nop(),
		})
		Expect(err).NotTo(HaveOccurred())

		gen := chain.New(ctx, []provider.Config{{Kind: provider.Ollama}},
			chain.WithFactory(factory),
			chain.WithProbe(false, 0),
			chain.WithLogger(logger.Nop()),
		)

		orch, err = pipeline.New(pipeline.Config{
			Router:      intent.NewRouter(intent.DefaultTriggers()),
			Memory:      store,
			Generator:   gen,
			Sources:     docs,
			History:     buffer,
			Assembler:   assemble.New(assemble.WithClock(now)),
			Persona:     personas,
			Storage:     driver,
			Workers:     pool,
			Synthesizer: speech,
			Transcriber: speech,
			Now:         now,
			Logger:      logger.Nop(),
		})
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		pool.Close()
		Expect(store.Close()).To(Succeed())
	})

	It("requires a router, memory and generator", func() {
		_, err := pipeline.New(pipeline.Config{})
		Expect(err).To(MatchError(pipeline.ErrNotConfigured))
	})

	It("rejects a blank utterance", func() {
		_, err := orch.Handle(ctx, pipeline.Request{Utterance: "   ", Caller: alice})
		Expect(err).To(MatchError(pipeline.ErrEmptyUtterance))
		Expect(local.Calls()).To(BeZero())
	})

	Describe("queries", func() {
		It("answers through the chain and sanitizes the text", func() {
			reply, err := orch.Handle(ctx, pipeline.Request{Utterance: "ช่วยได้ไหม", Caller: alice})
			Expect(err).NotTo(HaveOccurred())
			Expect(reply.Text).To(Equal("ได้เลยค่ะ"))
			Expect(reply.Source).To(Equal("tiny"))
			Expect(reply.Intent).To(Equal(intent.Query))
			Expect(reply.AudioRef).To(Equal("/static/audio/reply_x.mp3"))
			Expect(reply.Animation).To(Equal(pipeline.AnimationTalking))
			Expect(speech.Spoken()).To(ConsistOf("ได้เลยค่ะ"))
		})

		It("skips synthesis when muted", func() {
			reply, err := orch.Handle(ctx, pipeline.Request{Utterance: "ช่วยได้ไหม", Caller: alice, MuteAudio: true})
			Expect(err).NotTo(HaveOccurred())
			Expect(reply.AudioRef).To(BeEmpty())
			Expect(reply.Animation).To(Equal(pipeline.AnimationIdle))
			Expect(speech.Spoken()).To(BeEmpty())
		})

		It("keeps the text when synthesis fails", func() {
			speech.Fail = true
			reply, err := orch.Handle(ctx, pipeline.Request{Utterance: "ช่วยได้ไหม", Caller: alice})
			Expect(err).NotTo(HaveOccurred())
			Expect(reply.Text).To(Equal("ได้เลยค่ะ"))
			Expect(reply.AudioRef).To(BeEmpty())
			Expect(reply.Animation).To(Equal(pipeline.AnimationIdle))
		})

		It("answers with the persona's apology when every provider fails", func() {
			local.Fail = true
			reply, err := orch.Handle(ctx, pipeline.Request{Utterance: "ช่วยได้ไหม", Caller: alice, MuteAudio: true})
			Expect(err).NotTo(HaveOccurred())
			Expect(reply.Text).To(Equal(pipeline.Apology("Mali-chan")))
			Expect(reply.Source).To(Equal(pipeline.SourceFallback))
		})

		It("apologizes when sanitizing leaves nothing", func() {
			local.Reply = "<think>still thinking"
			reply, err := orch.Handle(ctx, pipeline.Request{Utterance: "ช่วยได้ไหม", Caller: alice, MuteAudio: true})
			Expect(err).NotTo(HaveOccurred())
			Expect(reply.Text).To(Equal(pipeline.Apology("Mali-chan")))
		})

		It("prefers the request persona, then the stored one", func() {
			local.Fail = true
			Expect(personas.Save("Sakura")).To(Succeed())

			reply, err := orch.Handle(ctx, pipeline.Request{Utterance: "hi", Caller: alice, MuteAudio: true})
			Expect(err).NotTo(HaveOccurred())
			Expect(reply.Text).To(Equal(pipeline.Apology("Sakura")))

			reply, err = orch.Handle(ctx, pipeline.Request{Utterance: "hi", Caller: alice, Persona: "Yuki", MuteAudio: true})
			Expect(err).NotTo(HaveOccurred())
			Expect(reply.Text).To(Equal(pipeline.Apology("Yuki")))
		})

		It("tries the remote endpoint first", func() {
			reply, err := orch.Handle(ctx, pipeline.Request{
				Utterance:      "hi",
				Caller:         alice,
				MuteAudio:      true,
				RemoteEndpoint: "http://brain.local",
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(reply.Text).To(Equal("จากคลาวด์ค่ะ"))
			Expect(reply.Source).To(Equal("brain"))
			Expect(local.Calls()).To(BeZero())
			Expect(remote.Prompts()[0].Utterance).To(Equal("hi"))
		})

		It("puts the previous turns into the context", func() {
			_, err := orch.Handle(ctx, pipeline.Request{Utterance: "first question", Caller: alice, MuteAudio: true})
			Expect(err).NotTo(HaveOccurred())
			_, err = orch.Handle(ctx, pipeline.Request{Utterance: "second question", Caller: alice, MuteAudio: true})
			Expect(err).NotTo(HaveOccurred())

			p := lastPrompt()
			Expect(p.Context).To(ContainSubstring("[Current Time: 2026-01-02 15:04:05]"))
			Expect(p.Context).To(ContainSubstring(assemble.HistoryHeader + "\nUser: first question\nMali: ได้เลยค่ะ"))
			Expect(p.User).To(HaveSuffix("คำถาม: second question"))
		})

		It("seeds history from stored transcripts", func() {
			Expect(driver.AppendTurn(ctx, "alice", history.Turn{Role: history.User, Text: "before restart", Timestamp: clock})).To(Succeed())

			_, err := orch.Handle(ctx, pipeline.Request{Utterance: "hi", Caller: alice, MuteAudio: true})
			Expect(err).NotTo(HaveOccurred())
			Expect(lastPrompt().Context).To(ContainSubstring("User: before restart"))
		})

		It("persists the turn and publishes an event", func() {
			_, err := orch.Handle(ctx, pipeline.Request{Utterance: "hi", Caller: alice, MuteAudio: true})
			Expect(err).NotTo(HaveOccurred())
			pool.Close()

			turns, err := driver.RecentTurns(ctx, "alice", 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(turns).To(HaveLen(2))
			Expect(turns[0].Text).To(Equal("hi"))
			Expect(turns[1].Role).To(Equal(history.Assistant))

			events := publisher.Events()
			Expect(events).To(HaveLen(1))
			Expect(events[0].Intent).To(Equal("query"))
			Expect(events[0].Source).To(Equal("tiny"))
			Expect(events[0].Attempts).To(HaveLen(1))
		})

		It("does not persist anonymous transcripts", func() {
			_, err := orch.Handle(ctx, pipeline.Request{Utterance: "hi", MuteAudio: true})
			Expect(err).NotTo(HaveOccurred())
			pool.Close()

			turns, err := driver.RecentTurns(ctx, "", 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(turns).To(BeEmpty())
			Expect(publisher.Events()).To(HaveLen(1))
		})
	})

	Describe("memory writes", func() {
		It("remembers without calling a provider", func() {
			reply, err := orch.Handle(ctx, pipeline.Request{Utterance: "จำไว้ว่า พรุ่งนี้ประชุม 9 โมง", Caller: alice})
			Expect(err).NotTo(HaveOccurred())
			Expect(reply.Text).To(Equal(`รับทราบค่ะ! (* >ω<) มะลิจำได้แล้วว่า "พรุ่งนี้ประชุม 9 โมง"`))
			Expect(reply.Source).To(Equal(pipeline.SourceMemory))
			Expect(reply.Animation).To(Equal(pipeline.AnimationIdle))
			Expect(reply.AudioRef).To(BeEmpty())
			Expect(local.Calls()).To(BeZero())

			entries, err := docs.History()
			Expect(err).NotTo(HaveOccurred())
			Expect(entries).To(HaveLen(1))
			Expect(entries[0].Scope).To(Equal("user_alice"))
			Expect(entries[0].Status).To(Equal(docstore.StatusMemory))
		})

		It("makes the memory and the recording note visible to the next query", func() {
			_, err := orch.Handle(ctx, pipeline.Request{Utterance: "จำไว้ว่า พรุ่งนี้ประชุม 9 โมง", Caller: alice})
			Expect(err).NotTo(HaveOccurred())

			_, err = orch.Handle(ctx, pipeline.Request{Utterance: "พรุ่งนี้มีอะไร", Caller: alice, MuteAudio: true})
			Expect(err).NotTo(HaveOccurred())

			p := lastPrompt()
			Expect(p.Context).To(ContainSubstring("[Memory 2026-01-02]: พรุ่งนี้ประชุม 9 โมง"))
			Expect(p.Context).To(ContainSubstring("(Context: [Memory Recorded: พรุ่งนี้ประชุม 9 โมง])"))
		})

		It("keeps private memories away from other callers", func() {
			_, err := orch.Handle(ctx, pipeline.Request{Utterance: "จำไว้ว่า รหัสตู้คือ 1234", Caller: alice})
			Expect(err).NotTo(HaveOccurred())

			bob := memory.Caller{Identity: "bob"}
			_, err = orch.Handle(ctx, pipeline.Request{Utterance: "รหัสตู้คืออะไร", Caller: bob, MuteAudio: true})
			Expect(err).NotTo(HaveOccurred())
			Expect(lastPrompt().Context).NotTo(ContainSubstring("1234"))
		})

		It("rejects an anonymous write", func() {
			_, err := orch.Handle(ctx, pipeline.Request{Utterance: "จำไว้ว่า ทุกคนต้องรู้"})
			Expect(err).To(MatchError(memory.ErrScopeViolation))
		})

		It("rejects an unprivileged request for the global scope instead of going private", func() {
			bob := memory.Caller{Identity: "bob", RequestGlobal: true}
			_, err := orch.Handle(ctx, pipeline.Request{Utterance: "จำไว้ว่า ทุกคนหยุดวันศุกร์", Caller: bob})
			Expect(err).To(MatchError(memory.ErrScopeViolation))

			_, err = orch.Train(ctx, pipeline.TrainRequest{Title: "holiday", Text: "ทุกคนหยุดวันศุกร์", Caller: bob})
			Expect(err).To(MatchError(memory.ErrScopeViolation))

			Expect(docs.List("global")).To(BeEmpty())
			Expect(docs.List("user_bob")).To(BeEmpty())
			Expect(docs.History()).To(BeEmpty())
		})

		It("keeps the memory on disk when the embedder is down", func() {
			embedder.FailOn = "ประชุมบ่ายโมง"
			reply, err := orch.Handle(ctx, pipeline.Request{Utterance: "จำไว้ว่า ประชุมบ่ายโมง", Caller: alice})
			Expect(err).NotTo(HaveOccurred())
			Expect(reply.Source).To(Equal(pipeline.SourceMemory))

			sources, err := docs.List("user_alice")
			Expect(err).NotTo(HaveOccurred())
			Expect(sources).To(HaveLen(1))
			Expect(sources[0].Text).To(Equal("ประชุมบ่ายโมง"))

			embedder.FailOn = ""
			Expect(store.RebuildFromSources(ctx, memory.Private("alice"))).To(Succeed())
			_, err = orch.Handle(ctx, pipeline.Request{Utterance: "บ่ายนี้มีอะไร", Caller: alice, MuteAudio: true})
			Expect(err).NotTo(HaveOccurred())
			Expect(lastPrompt().Context).To(MatchRegexp(`\[Memory \d{4}-\d{2}-\d{2}\]: ประชุมบ่ายโมง`))
		})

		It("apologizes instead of confirming when nothing could be kept", func() {
			bare, err := memory.NewStore(testutils.NewMockOpener().Open, embedder, logger.Nop())
			Expect(err).NotTo(HaveOccurred())
			lossy, err := pipeline.New(pipeline.Config{
				Router:    intent.NewRouter(intent.DefaultTriggers()),
				Memory:    bare,
				Generator: chain.New(ctx, nil, chain.WithProbe(false, 0), chain.WithLogger(logger.Nop())),
				Sources:   docs,
				History:   buffer,
				Assembler: assemble.New(),
				Logger:    logger.Nop(),
			})
			Expect(err).NotTo(HaveOccurred())

			embedder.FailOn = "ประชุมบ่ายโมง"
			reply, err := lossy.Handle(ctx, pipeline.Request{Utterance: "จำไว้ว่า ประชุมบ่ายโมง", Caller: alice})
			Expect(err).NotTo(HaveOccurred())
			Expect(reply.Source).To(Equal(pipeline.SourceFallback))
			Expect(reply.Text).NotTo(ContainSubstring("จำได้แล้ว"))
			Expect(docs.History()).To(BeEmpty())
		})

		It("lets a privileged caller write the global scope", func() {
			admin := memory.Caller{Identity: "admin", Privileged: true, RequestGlobal: true}
			_, err := orch.Handle(ctx, pipeline.Request{Utterance: "remember that the office opens at 8", Caller: admin})
			Expect(err).NotTo(HaveOccurred())

			_, err = orch.Handle(ctx, pipeline.Request{Utterance: "when does the office open", Caller: alice, MuteAudio: true})
			Expect(err).NotTo(HaveOccurred())
			Expect(lastPrompt().Context).To(ContainSubstring("the office opens at 8"))
		})
	})

	Describe("profile updates", func() {
		It("stores the display name and uses it as a fact", func() {
			reply, err := orch.Handle(ctx, pipeline.Request{Utterance: "call me Nont", Caller: alice})
			Expect(err).NotTo(HaveOccurred())
			Expect(reply.Source).To(Equal(pipeline.SourceProfile))
			Expect(reply.Text).To(Equal(pipeline.ProfileReply("Nont")))

			profile, err := driver.GetProfile(ctx, "alice")
			Expect(err).NotTo(HaveOccurred())
			Expect(profile.DisplayName).To(Equal("Nont"))

			_, err = orch.Handle(ctx, pipeline.Request{Utterance: "hi", Caller: alice, MuteAudio: true})
			Expect(err).NotTo(HaveOccurred())
			Expect(lastPrompt().Context).To(ContainSubstring("name=Nont"))
		})

		It("does not store a profile for anonymous callers", func() {
			_, err := orch.Handle(ctx, pipeline.Request{Utterance: "call me Nont"})
			Expect(err).NotTo(HaveOccurred())

			_, err = driver.GetProfile(ctx, "")
			Expect(err).To(MatchError(storage.ErrNotFound))
		})
	})

	Describe("voice turns", func() {
		It("answers a fixed reply without generating when nothing was heard", func() {
			reply, err := orch.HandleVoice(ctx, []byte("RIFF"), pipeline.Request{Caller: alice})
			Expect(err).NotTo(HaveOccurred())
			Expect(reply.Text).To(Equal(pipeline.NotHeardReply))
			Expect(reply.Animation).To(Equal(pipeline.AnimationIdle))
			Expect(local.Calls()).To(BeZero())
		})

		It("treats a failed transcription as not heard", func() {
			speech.Fail = true
			reply, err := orch.HandleVoice(ctx, []byte("RIFF"), pipeline.Request{Caller: alice})
			Expect(err).NotTo(HaveOccurred())
			Expect(reply.Text).To(Equal(pipeline.NotHeardReply))
		})

		It("runs the transcription as a text turn", func() {
			speech.Transcript = "สวัสดี"
			reply, err := orch.HandleVoice(ctx, []byte("RIFF"), pipeline.Request{Caller: alice})
			Expect(err).NotTo(HaveOccurred())
			Expect(reply.Transcription).To(Equal("สวัสดี"))
			Expect(reply.Text).To(Equal("ได้เลยค่ะ"))
			Expect(reply.Animation).To(Equal(pipeline.AnimationTalking))
			Expect(lastPrompt().Utterance).To(Equal("สวัสดี"))
		})
	})

	Describe("training", func() {
		It("indexes pasted text under the caller's scope", func() {
			entry, err := orch.Train(ctx, pipeline.TrainRequest{Title: "ตารางงาน", Text: "วันศุกร์มีสอบ", Caller: alice})
			Expect(err).NotTo(HaveOccurred())
			Expect(entry.Filename).To(Equal("ตารางงาน.txt"))
			Expect(entry.Scope).To(Equal("user_alice"))
			Expect(entry.Status).To(Equal(docstore.StatusText))

			text, err := docs.Read("user_alice", "ตารางงาน.txt")
			Expect(err).NotTo(HaveOccurred())
			Expect(text).To(Equal("วันศุกร์มีสอบ"))
		})

		It("renames uploaded files to .txt sources", func() {
			entry, err := orch.Train(ctx, pipeline.TrainRequest{Filename: "notes.md", Text: "hello", Caller: alice})
			Expect(err).NotTo(HaveOccurred())
			Expect(entry.Filename).To(Equal("notes.txt"))
			Expect(entry.OriginalTitle).To(Equal("notes.md"))
			Expect(entry.Status).To(Equal(docstore.StatusFile))
		})

		It("rejects blank text", func() {
			_, err := orch.Train(ctx, pipeline.TrainRequest{Title: "x", Text: "  ", Caller: alice})
			Expect(err).To(MatchError(pipeline.ErrEmptySource))
		})

		It("forgets a source so later queries no longer see it", func() {
			_, err := orch.Train(ctx, pipeline.TrainRequest{Title: "keep", Text: "keep this", Caller: alice})
			Expect(err).NotTo(HaveOccurred())
			_, err = orch.Train(ctx, pipeline.TrainRequest{Title: "drop", Text: "drop this", Caller: alice})
			Expect(err).NotTo(HaveOccurred())

			Expect(orch.Forget(ctx, "drop.txt", alice)).To(Succeed())

			_, err = orch.Handle(ctx, pipeline.Request{Utterance: "what do you know", Caller: alice, MuteAudio: true})
			Expect(err).NotTo(HaveOccurred())
			Expect(lastPrompt().Context).To(ContainSubstring("keep this"))
			Expect(lastPrompt().Context).NotTo(ContainSubstring("drop this"))

			entries, err := docs.History()
			Expect(err).NotTo(HaveOccurred())
			Expect(entries).To(HaveLen(1))
			Expect(entries[0].Filename).To(Equal("keep.txt"))
		})

		It("refuses a global forget from an unprivileged caller", func() {
			err := orch.Forget(ctx, "x.txt", memory.Caller{})
			Expect(err).To(MatchError(memory.ErrScopeViolation))
		})
	})
})
