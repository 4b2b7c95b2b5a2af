package logger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/nontawat9304/mali-chat/pkg/logger"
)

func decodeLine(buf *bytes.Buffer) map[string]any {
	var parsed map[string]any
	ExpectWithOffset(1, json.Unmarshal([]byte(strings.TrimSpace(buf.String())), &parsed)).To(Succeed())
	return parsed
}

var _ = Describe("Logger", func() {
	Describe("New", func() {
		It("writes text records with key/value pairs", func() {
			var buf bytes.Buffer
			l := logger.New(logger.WithWriter(&buf))
			l.Info("segment opened", "segment", "global")

			Expect(buf.String()).To(ContainSubstring("segment opened"))
			Expect(buf.String()).To(ContainSubstring("segment=global"))
		})

		It("hides debug records unless debug is enabled", func() {
			var quiet, loud bytes.Buffer
			logger.New(logger.WithWriter(&quiet)).Debug("hidden")
			logger.New(logger.WithWriter(&loud), logger.WithDebug(true)).Debug("shown")

			Expect(quiet.String()).To(BeEmpty())
			Expect(loud.String()).To(ContainSubstring("shown"))
		})

		It("writes JSON records", func() {
			var buf bytes.Buffer
			logger.New(logger.WithWriter(&buf), logger.WithJSON(true)).Info("turn", "attempts", 2)

			parsed := decodeLine(&buf)
			Expect(parsed["msg"]).To(Equal("turn"))
			Expect(parsed["attempts"]).To(BeNumerically("==", 2))
		})

		It("tags the component", func() {
			var buf bytes.Buffer
			logger.New(logger.WithWriter(&buf), logger.WithJSON(true), logger.WithComponent("chain")).Info("ready")

			Expect(decodeLine(&buf)["component"]).To(Equal("chain"))
		})

		It("renders pretty output", func() {
			var buf bytes.Buffer
			logger.New(logger.WithWriter(&buf), logger.WithPretty(true)).Info("pretty output")

			Expect(buf.String()).To(ContainSubstring("pretty output"))
		})

		It("writes to every writer", func() {
			var a, b bytes.Buffer
			logger.New(logger.WithWriters(&a, &b)).Info("both")

			Expect(a.String()).To(ContainSubstring("both"))
			Expect(b.String()).To(ContainSubstring("both"))
		})
	})

	Describe("Nop", func() {
		It("is disabled at every level", func() {
			l := logger.Nop()
			Expect(l.Handler().Enabled(context.Background(), slog.LevelError)).To(BeFalse())
			Expect(func() { l.With("k", "v").WithGroup("g").Error("x") }).NotTo(Panic())
		})

		It("backs a nil logger", func() {
			Expect(logger.OrNop(nil)).NotTo(BeNil())
		})
	})

	Describe("Multi", func() {
		It("fans out to all loggers", func() {
			var a, b bytes.Buffer
			m := logger.Multi(logger.New(logger.WithWriter(&a)), logger.New(logger.WithWriter(&b)), nil)
			m.Info("broadcast")

			Expect(a.String()).To(ContainSubstring("broadcast"))
			Expect(b.String()).To(ContainSubstring("broadcast"))
		})

		It("keeps groups and attrs", func() {
			var buf bytes.Buffer
			m := logger.Multi(logger.New(logger.WithWriter(&buf), logger.WithJSON(true)))
			m.With("identity", "nont").WithGroup("request").Info("processed", "route", "/chat")

			parsed := decodeLine(&buf)
			Expect(parsed["identity"]).To(Equal("nont"))
			Expect(parsed["request"]).To(HaveKeyWithValue("route", "/chat"))
		})
	})
})
