package provider_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/nontawat9304/mali-chat/pkg/llm/provider"
	"github.com/nontawat9304/mali-chat/pkg/llm/provider/ollama"
	"github.com/nontawat9304/mali-chat/pkg/llm/provider/openai"
	"github.com/nontawat9304/mali-chat/pkg/logger"
)

var _ = Describe("New", func() {
	ctx := context.Background()

	It("builds every supported kind that has what it needs", func() {
		cfgs := map[provider.Kind]provider.Config{
			provider.Remote:    {Kind: provider.Remote, BaseURL: "http://brain.local"},
			provider.Anthropic: {Kind: provider.Anthropic, APIKey: "k"},
			provider.OpenAI:    {Kind: provider.OpenAI, APIKey: "k"},
			provider.Gemini:    {Kind: provider.Gemini, APIKey: "k"},
			provider.Local:     {Kind: provider.Local},
			provider.Ollama:    {Kind: provider.Ollama},
		}
		for _, k := range provider.SupportedKinds() {
			g, err := provider.New(ctx, cfgs[k], logger.Nop())
			Expect(err).NotTo(HaveOccurred(), string(k))
			Expect(g.Source()).NotTo(BeEmpty())
		}
	})

	It("labels local and ollama replies distinctly", func() {
		local, err := provider.New(ctx, provider.Config{Kind: provider.Local}, logger.Nop())
		Expect(err).NotTo(HaveOccurred())
		Expect(local.Source()).To(Equal(openai.LocalSource))

		o, err := provider.New(ctx, provider.Config{Kind: provider.Ollama}, logger.Nop())
		Expect(err).NotTo(HaveOccurred())
		Expect(o.Source()).To(Equal(ollama.Source))
		Expect(o).To(BeAssignableToTypeOf(&ollama.Generator{}))
	})

	It("fails when a cloud kind has no API key", func() {
		for _, k := range []provider.Kind{provider.Anthropic, provider.OpenAI, provider.Gemini} {
			_, err := provider.New(ctx, provider.Config{Kind: k}, logger.Nop())
			Expect(err).To(HaveOccurred(), string(k))
		}
	})

	It("rejects unknown kinds", func() {
		_, err := provider.New(ctx, provider.Config{Kind: "bedrock"}, logger.Nop())
		Expect(err).To(MatchError(ContainSubstring("unknown provider kind")))
	})
})

var _ = Describe("ParseKind", func() {
	It("accepts supported names", func() {
		k, err := provider.ParseKind("ollama")
		Expect(err).NotTo(HaveOccurred())
		Expect(k).To(Equal(provider.Ollama))
	})

	It("rejects others", func() {
		_, err := provider.ParseKind("vertex")
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("Config", func() {
	It("falls back to the default attempt timeout", func() {
		Expect(provider.Config{}.AttemptTimeout()).To(Equal(provider.DefaultTimeout))
		Expect(provider.Config{Timeout: time.Second}.AttemptTimeout()).To(Equal(time.Second))
	})
})
