package servecmder_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	servecmder "github.com/nontawat9304/mali-chat/cmd/mali/serve"
	"github.com/nontawat9304/mali-chat/pkg/config"
)

var _ = Describe("NewServeCmd", func() {
	It("creates a command with the correct use string", func() {
		Expect(servecmder.NewServeCmd().Use).To(Equal("serve"))
	})

	It("registers every shared server flag", func() {
		cmd := servecmder.NewServeCmd()
		for _, def := range config.ServeFlags {
			Expect(cmd.Flags().Lookup(def.Name)).NotTo(BeNil(), def.Name)
		}
	})

	It("defaults flags from the built-in config", func() {
		cmd := servecmder.NewServeCmd()
		Expect(cmd.Flags().Lookup("listen").DefValue).To(Equal(":8000"))
		Expect(cmd.Flags().Lookup("memory-backend").DefValue).To(Equal("chromem"))
		Expect(cmd.Flags().Lookup("embedding-dimensions").DefValue).To(Equal("768"))
		Expect(cmd.Flags().Lookup("ladder").DefValue).To(Equal("anthropic,local,ollama"))
	})

	It("has the watch, rebuild and json-logs switches", func() {
		cmd := servecmder.NewServeCmd()
		for _, name := range []string{"watch", "rebuild", "json-logs"} {
			f := cmd.Flags().Lookup(name)
			Expect(f).NotTo(BeNil(), name)
			Expect(f.DefValue).To(Equal("false"))
		}
	})

	It("rejects positional arguments", func() {
		cmd := servecmder.NewServeCmd()
		Expect(cmd.Args(cmd, []string{"extra"})).NotTo(Succeed())
	})
})
