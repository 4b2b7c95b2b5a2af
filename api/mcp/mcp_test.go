package mcp_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/nontawat9304/mali-chat/api/mcp"
	"github.com/nontawat9304/mali-chat/pkg/logger"
	"github.com/nontawat9304/mali-chat/pkg/memory"
	testutils "github.com/nontawat9304/mali-chat/pkg/utils/test"
)

var _ = Describe("MCP Server", func() {
	var store *memory.Store

	BeforeEach(func() {
		var err error
		store, err = memory.NewStore(testutils.NewMockOpener().Open, testutils.NewMockEmbedder(), logger.Nop())
		Expect(err).NotTo(HaveOccurred())
	})

	Describe("NewServer", func() {
		It("returns an error when the memory store is nil", func() {
			_, err := mcp.NewServer(mcp.Config{Logger: logger.Nop()})
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("memory store is required"))
		})

		It("returns an error when logger is nil", func() {
			_, err := mcp.NewServer(mcp.Config{Memory: store})
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("logger is required"))
		})

		It("creates an empty server when noop", func() {
			server, err := mcp.NewServer(mcp.Config{Noop: true})
			Expect(err).NotTo(HaveOccurred())
			Expect(server.Handler()).NotTo(BeNil())
		})

		It("returns an HTTP handler", func() {
			server, err := mcp.NewServer(mcp.Config{Memory: store, Logger: logger.Nop()})
			Expect(err).NotTo(HaveOccurred())
			Expect(server.Handler()).NotTo(BeNil())
		})
	})
})
