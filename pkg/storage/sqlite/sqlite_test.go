package sqlite_test

import (
	"context"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/nontawat9304/mali-chat/pkg/history"
	"github.com/nontawat9304/mali-chat/pkg/storage"
	"github.com/nontawat9304/mali-chat/pkg/storage/sqlite"
	"github.com/nontawat9304/mali-chat/pkg/storage/storagetest"
)

var _ = Describe("Driver", func() {
	var (
		driver *sqlite.Driver
		ctx    context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		var err error
		driver, err = sqlite.NewDriver(ctx, ":memory:")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		if driver != nil {
			driver.Close()
		}
	})

	storagetest.DriverBehaviors(func() storage.Driver { return driver })

	Describe("NewDriver", func() {
		It("creates a file database that survives reopening", func() {
			dbPath := filepath.Join(GinkgoT().TempDir(), "mali.db")

			s, err := sqlite.NewDriver(ctx, dbPath)
			Expect(err).NotTo(HaveOccurred())
			Expect(s.AppendTurn(ctx, "nont", history.Turn{Role: history.User, Text: "hello"})).To(Succeed())
			Expect(s.Close()).To(Succeed())

			_, err = os.Stat(dbPath)
			Expect(err).NotTo(HaveOccurred())

			s, err = sqlite.NewDriver(ctx, dbPath)
			Expect(err).NotTo(HaveOccurred())
			defer s.Close()
			turns, err := s.RecentTurns(ctx, "nont", 1)
			Expect(err).NotTo(HaveOccurred())
			Expect(turns).To(HaveLen(1))
			Expect(turns[0].Text).To(Equal("hello"))
		})
	})
})
