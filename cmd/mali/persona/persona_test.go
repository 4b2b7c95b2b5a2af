package personacmder_test

import (
	"bytes"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	personacmder "github.com/nontawat9304/mali-chat/cmd/mali/persona"
)

var _ = Describe("Persona command", func() {
	var (
		maliDir string
		out     *bytes.Buffer
	)

	run := func(args ...string) error {
		cmd := personacmder.NewPersonaCmd()
		cmd.PersistentFlags().String("config-dir", maliDir, "")
		cmd.SetOut(out)
		cmd.SetArgs(args)
		return cmd.Execute()
	}

	BeforeEach(func() {
		maliDir = filepath.Join(GinkgoT().TempDir(), ".mali")
		out = &bytes.Buffer{}
	})

	It("prints the default persona before one is saved", func() {
		Expect(run("get")).To(Succeed())
		Expect(out.String()).To(ContainSubstring("Mali-chan"))
		Expect(out.String()).To(ContainSubstring("default"))
	})

	It("saves and prints a persona", func() {
		Expect(run("set", "  Mali, a helpful assistant  ")).To(Succeed())

		data, err := os.ReadFile(filepath.Join(maliDir, "persona.txt"))
		Expect(err).NotTo(HaveOccurred())
		Expect(string(data)).To(Equal("Mali, a helpful assistant"))

		out.Reset()
		Expect(run("get")).To(Succeed())
		Expect(out.String()).To(Equal("Mali, a helpful assistant\n"))
	})

	It("reads the persona from a file", func() {
		src := filepath.Join(GinkgoT().TempDir(), "p.txt")
		Expect(os.WriteFile(src, []byte("From a file\n"), 0o600)).To(Succeed())

		Expect(run("set", "--file", src)).To(Succeed())

		data, err := os.ReadFile(filepath.Join(maliDir, "persona.txt"))
		Expect(err).NotTo(HaveOccurred())
		Expect(string(data)).To(Equal("From a file"))
	})

	It("rejects an empty persona", func() {
		Expect(run("set", "   ")).To(MatchError(ContainSubstring("empty")))
	})

	It("rejects both an argument and --file", func() {
		Expect(run("set", "text", "--file", "x.txt")).To(HaveOccurred())
	})
})
