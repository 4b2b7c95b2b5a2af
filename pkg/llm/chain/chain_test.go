package chain_test

import (
	"context"
	"errors"
	"log/slog"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/goleak"

	"github.com/nontawat9304/mali-chat/pkg/llm"
	"github.com/nontawat9304/mali-chat/pkg/llm/chain"
	"github.com/nontawat9304/mali-chat/pkg/llm/provider"
	"github.com/nontawat9304/mali-chat/pkg/logger"
	testutils "github.com/nontawat9304/mali-chat/pkg/utils/test"
)

// probed is a generator whose probe result is scripted.
type probed struct {
	*testutils.MockGenerator
	probeErr error
}

func (p probed) Probe(context.Context) error { return p.probeErr }

var _ = Describe("Chain", func() {
	var (
		ctx        context.Context
		generators map[string]llm.Generator
		remote     *testutils.MockGenerator
		built      []provider.Config
	)

	// factory resolves a rung by its model name; the override resolves to remote.
	factory := func(_ context.Context, cfg provider.Config, _ *slog.Logger) (llm.Generator, error) {
		built = append(built, cfg)
		if cfg.Kind == provider.Remote {
			return remote, nil
		}
		g, ok := generators[cfg.Model]
		if !ok {
			return nil, errors.New("missing API key")
		}
		return g, nil
	}

	rungs := func(names ...string) []provider.Config {
		out := make([]provider.Config, 0, len(names))
		for _, n := range names {
			out = append(out, provider.Config{Kind: provider.Ollama, Model: n, Timeout: 200 * time.Millisecond})
		}
		return out
	}

	newChain := func(ladder []provider.Config, opts ...chain.Option) *chain.Chain {
		opts = append([]chain.Option{chain.WithFactory(factory), chain.WithLogger(logger.Nop())}, opts...)
		return chain.New(ctx, ladder, opts...)
	}

	BeforeEach(func() {
		ctx = context.Background()
		built = nil
		remote = testutils.NewMockGenerator("Cloud Brain (ThaiLLM)", "remote reply")
		generators = map[string]llm.Generator{
			"cloud": testutils.NewMockGenerator("cloud", "cloud reply"),
			"local": testutils.NewMockGenerator("local", "local reply"),
			"tiny":  testutils.NewMockGenerator("tiny", "tiny reply"),
		}
	})

	Describe("New", func() {
		It("skips rungs that fail to initialize", func() {
			c := newChain(rungs("cloud", "nokey", "tiny"))
			Expect(c.Sources()).To(Equal([]string{"cloud", "tiny"}))
		})

		It("skips rungs whose probe fails", func() {
			generators["local"] = probed{
				MockGenerator: testutils.NewMockGenerator("local", "x"),
				probeErr:      errors.New("connection refused"),
			}
			generators["tiny"] = probed{MockGenerator: testutils.NewMockGenerator("tiny", "y")}

			c := newChain(rungs("local", "tiny"))
			Expect(c.Sources()).To(Equal([]string{"tiny"}))
		})

		It("keeps probing optional", func() {
			generators["local"] = probed{
				MockGenerator: testutils.NewMockGenerator("local", "x"),
				probeErr:      errors.New("connection refused"),
			}
			c := newChain(rungs("local"), chain.WithProbe(false, 0))
			Expect(c.Sources()).To(Equal([]string{"local"}))
		})

		It("allows an empty ladder that always exhausts", func() {
			out := newChain(nil).Generate(ctx, chain.Request{})
			Expect(out.OK()).To(BeFalse())
			Expect(errors.Is(out.Err, llm.ErrProvidersExhausted)).To(BeTrue())
			Expect(out.Attempts).To(BeEmpty())
		})
	})

	Describe("Generate", func() {
		It("returns the first rung that answers", func() {
			out := newChain(rungs("cloud", "local")).Generate(ctx, chain.Request{Prompt: llm.Prompt{User: "hi"}})
			Expect(out.OK()).To(BeTrue())
			Expect(out.Text).To(Equal("cloud reply"))
			Expect(out.Source).To(Equal("cloud"))
			Expect(out.Attempts).To(HaveLen(1))
			Expect(generators["local"].(*testutils.MockGenerator).Calls()).To(BeZero())
		})

		It("falls through failures and empty replies in order", func() {
			generators["cloud"].(*testutils.MockGenerator).Fail = true
			generators["local"].(*testutils.MockGenerator).Reply = "   "

			out := newChain(rungs("cloud", "local", "tiny")).Generate(ctx, chain.Request{})
			Expect(out.Source).To(Equal("tiny"))
			Expect(out.Attempts).To(HaveLen(3))
			Expect(out.Attempts[0].Err).To(MatchError(testutils.ErrMockGenerate))
			Expect(errors.Is(out.Attempts[1].Err, llm.ErrProviderRejected)).To(BeTrue())
			Expect(out.Attempts[2].Err).NotTo(HaveOccurred())
		})

		It("reports exhaustion when every rung fails", func() {
			for _, g := range generators {
				g.(*testutils.MockGenerator).Fail = true
			}
			out := newChain(rungs("cloud", "local")).Generate(ctx, chain.Request{})
			Expect(out.OK()).To(BeFalse())
			Expect(errors.Is(out.Err, llm.ErrProvidersExhausted)).To(BeTrue())
			Expect(out.Attempts).To(HaveLen(2))
		})

		Context("with an override endpoint", func() {
			It("tries the override first", func() {
				out := newChain(rungs("cloud")).Generate(ctx, chain.Request{Override: "http://brain.local"})
				Expect(out.Text).To(Equal("remote reply"))
				Expect(out.Source).To(Equal("Cloud Brain (ThaiLLM)"))
				Expect(built[len(built)-1]).To(Equal(provider.Config{Kind: provider.Remote, BaseURL: "http://brain.local"}))
			})

			It("tries the override exactly once and then the ladder", func() {
				remote.Fail = true
				out := newChain(rungs("cloud")).Generate(ctx, chain.Request{Override: "http://brain.local"})
				Expect(out.Source).To(Equal("cloud"))
				Expect(remote.Calls()).To(Equal(1))
				Expect(out.Attempts).To(HaveLen(2))
			})

			It("ignores overrides that are not http URLs", func() {
				out := newChain(rungs("cloud")).Generate(ctx, chain.Request{Override: "brain.local"})
				Expect(out.Source).To(Equal("cloud"))
				Expect(remote.Calls()).To(BeZero())
			})

			It("falls through when the override times out", func() {
				remote.Hang = true
				c := newChain(rungs("cloud"), chain.WithOverrideTimeout(50*time.Millisecond))

				out := c.Generate(ctx, chain.Request{Override: "http://brain.local"})
				Expect(out.Source).To(Equal("cloud"))
				Expect(errors.Is(out.Attempts[0].Err, llm.ErrProviderTimeout)).To(BeTrue())
			})
		})

		Context("with a hanging provider", func() {
			var ignore goleak.Option

			BeforeEach(func() {
				ignore = goleak.IgnoreCurrent()
			})

			It("times the attempt out and leaves no goroutine behind", func() {
				generators["cloud"].(*testutils.MockGenerator).Hang = true

				start := time.Now()
				out := newChain(rungs("cloud", "local")).Generate(ctx, chain.Request{})
				Expect(time.Since(start)).To(BeNumerically("<", 2*time.Second))
				Expect(out.Source).To(Equal("local"))
				Expect(errors.Is(out.Attempts[0].Err, llm.ErrProviderTimeout)).To(BeTrue())

				Expect(goleak.Find(ignore)).To(Succeed())
			})

			It("stops when the caller's context ends", func() {
				generators["cloud"].(*testutils.MockGenerator).Hang = true
				c := newChain(rungs("cloud", "local"))

				cctx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
				defer cancel()
				out := c.Generate(cctx, chain.Request{})
				Expect(out.OK()).To(BeFalse())
				Expect(errors.Is(out.Err, context.DeadlineExceeded)).To(BeTrue())
				Expect(generators["local"].(*testutils.MockGenerator).Calls()).To(BeZero())

				Expect(goleak.Find(ignore)).To(Succeed())
			})
		})
	})
})
