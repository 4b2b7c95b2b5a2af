package bootstrap_test

import (
	"context"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/nontawat9304/mali-chat/cmd/mali/bootstrap"
	"github.com/nontawat9304/mali-chat/pkg/config"
	"github.com/nontawat9304/mali-chat/pkg/eventstream/nop"
	"github.com/nontawat9304/mali-chat/pkg/llm/provider"
	"github.com/nontawat9304/mali-chat/pkg/logger"
	"github.com/nontawat9304/mali-chat/pkg/memory"
	"github.com/nontawat9304/mali-chat/pkg/pipeline"
	"github.com/nontawat9304/mali-chat/pkg/storage/inmemory"
)

var _ = Describe("Ladder", func() {
	BeforeEach(func() {
		for _, env := range []string{"ANTHROPIC_API_KEY", "OPENAI_API_KEY", "GEMINI_API_KEY"} {
			GinkgoT().Setenv(env, "")
		}
	})

	It("keeps the configured order and per-rung settings", func() {
		g := config.NewDefaultConfig().Generation
		g.Ladder = []string{"local", "ollama"}
		g.TimeoutSec = 12

		ladder := bootstrap.Ladder(g, logger.Nop())
		Expect(ladder).To(HaveLen(2))
		Expect(ladder[0].Kind).To(Equal(provider.Local))
		Expect(ladder[0].BaseURL).To(Equal(g.Local.BaseURL))
		Expect(ladder[1].Kind).To(Equal(provider.Ollama))
		Expect(ladder[1].Model).To(Equal(g.Ollama.Model))
		Expect(ladder[1].Timeout.Seconds()).To(BeNumerically("==", 12))
	})

	It("drops cloud rungs without a key", func() {
		g := config.NewDefaultConfig().Generation
		g.Ladder = []string{"anthropic", "ollama"}

		ladder := bootstrap.Ladder(g, logger.Nop())
		Expect(ladder).To(HaveLen(1))
		Expect(ladder[0].Kind).To(Equal(provider.Ollama))
	})

	It("takes a missing key from the environment", func() {
		GinkgoT().Setenv("ANTHROPIC_API_KEY", "sk-test")
		g := config.NewDefaultConfig().Generation
		g.Ladder = []string{"anthropic"}

		ladder := bootstrap.Ladder(g, logger.Nop())
		Expect(ladder).To(HaveLen(1))
		Expect(ladder[0].APIKey).To(Equal("sk-test"))
	})

	It("skips unknown and remote rung names", func() {
		g := config.NewDefaultConfig().Generation
		g.Ladder = []string{"bogus", "remote", "ollama"}

		ladder := bootstrap.Ladder(g, logger.Nop())
		Expect(ladder).To(HaveLen(1))
	})
})

var _ = Describe("NewPublisher", func() {
	It("returns the no-op publisher without brokers", func() {
		p, err := bootstrap.NewPublisher(config.EventsConfig{})
		Expect(err).NotTo(HaveOccurred())
		Expect(p).To(BeAssignableToTypeOf(&nop.Publisher{}))
	})

	It("builds a kafka publisher when brokers are set", func() {
		p, err := bootstrap.NewPublisher(config.EventsConfig{Brokers: []string{"127.0.0.1:9092"}, Topic: "t"})
		Expect(err).NotTo(HaveOccurred())
		Expect(p).NotTo(BeNil())
		Expect(p.Close()).To(Succeed())
	})
})

var _ = Describe("NewStorageDriver", func() {
	var dir string

	BeforeEach(func() {
		dir = GinkgoT().TempDir()
	})

	It("opens the in-memory driver", func() {
		d, err := bootstrap.NewStorageDriver(context.Background(), config.StorageConfig{Driver: "inmemory"}, dir, logger.Nop())
		Expect(err).NotTo(HaveOccurred())
		Expect(d).To(BeAssignableToTypeOf(&inmemory.Driver{}))
	})

	It("anchors a relative sqlite path at the state directory", func() {
		d, err := bootstrap.NewStorageDriver(context.Background(), config.StorageConfig{Driver: "sqlite", SQLitePath: "mali.db"}, dir, logger.Nop())
		Expect(err).NotTo(HaveOccurred())
		defer d.Close()

		_, err = os.Stat(filepath.Join(dir, "mali.db"))
		Expect(err).NotTo(HaveOccurred())
	})

	It("requires a DSN for postgres", func() {
		_, err := bootstrap.NewStorageDriver(context.Background(), config.StorageConfig{Driver: "postgres"}, dir, logger.Nop())
		Expect(err).To(MatchError(ContainSubstring("postgres_dsn")))
	})

	It("rejects unknown drivers", func() {
		_, err := bootstrap.NewStorageDriver(context.Background(), config.StorageConfig{Driver: "mysql"}, dir, logger.Nop())
		Expect(err).To(MatchError(ContainSubstring("unsupported storage driver")))
	})
})

var _ = Describe("Stack", func() {
	var (
		dir string
		cfg *config.Config
	)

	BeforeEach(func() {
		dir = GinkgoT().TempDir()
		cfg = config.NewDefaultConfig()
		cfg.Storage.Driver = "inmemory"
		cfg.Generation.Ladder = nil
		cfg.Embedding.Target = "http://127.0.0.1:1"
	})

	It("builds every collaborator and closes cleanly", func() {
		s, err := bootstrap.New(context.Background(), cfg, dir, logger.Nop())
		Expect(err).NotTo(HaveOccurred())

		Expect(s.Orchestrator).NotTo(BeNil())
		Expect(s.MCP).NotTo(BeNil())
		Expect(s.Chain.Sources()).To(BeEmpty())
		Expect(s.StaticDir).To(Equal(filepath.Join(dir, "static_audio")))
		Expect(filepath.Join(dir, "data_store")).To(BeADirectory())

		Expect(s.Close()).To(Succeed())
	})

	It("leaves MCP out when disabled", func() {
		cfg.API.MCP = false
		s, err := bootstrap.New(context.Background(), cfg, dir, logger.Nop())
		Expect(err).NotTo(HaveOccurred())
		defer s.Close()

		Expect(s.MCP).To(BeNil())
	})

	It("answers with the fallback apology when no provider survives", func() {
		cfg.Persona.Default = "Mali"
		s, err := bootstrap.New(context.Background(), cfg, dir, logger.Nop())
		Expect(err).NotTo(HaveOccurred())
		defer s.Close()

		reply, err := s.Orchestrator.Handle(context.Background(), pipeline.Request{
			Utterance: "hello",
			MuteAudio: true,
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(reply.Source).To(Equal(pipeline.SourceFallback))
		Expect(reply.Text).To(Equal(pipeline.Apology("Mali")))
	})

	It("rebuilds every recognized segment from the document store", func() {
		s, err := bootstrap.NewMemoryOnly(context.Background(), cfg, dir, logger.Nop())
		Expect(err).NotTo(HaveOccurred())
		defer s.Close()

		Expect(os.MkdirAll(filepath.Join(dir, "data_store", "not a segment"), 0o755)).To(Succeed())
		Expect(s.Sources.PutFile(memory.Global.Segment(), "empty.txt", "")).To(Succeed())

		Expect(s.RebuildAll(context.Background())).To(Succeed())
	})

	It("fails on an unknown segment backend", func() {
		cfg.Memory.Backend = "faiss"
		_, err := bootstrap.New(context.Background(), cfg, dir, logger.Nop())
		Expect(err).To(MatchError(ContainSubstring("unsupported vector backend")))
	})
})
