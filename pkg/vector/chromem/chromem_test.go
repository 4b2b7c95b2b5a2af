package chromem_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/nontawat9304/mali-chat/pkg/logger"
	"github.com/nontawat9304/mali-chat/pkg/vector"
	"github.com/nontawat9304/mali-chat/pkg/vector/chromem"
)

var _ vector.Driver = (*chromem.Driver)(nil)

var _ = Describe("Driver", func() {
	var (
		ctx    context.Context
		driver *chromem.Driver
	)

	BeforeEach(func() {
		ctx = context.Background()
		db, err := chromem.OpenDB(GinkgoT().TempDir(), false)
		Expect(err).NotTo(HaveOccurred())
		driver, err = chromem.NewDriver(db, "global", logger.Nop())
		Expect(err).NotTo(HaveOccurred())
	})

	It("requires a segment name", func() {
		db, err := chromem.OpenDB("", false)
		Expect(err).NotTo(HaveOccurred())
		_, err = chromem.NewDriver(db, "", logger.Nop())
		Expect(err).To(HaveOccurred())
	})

	It("returns nothing for an empty segment", func() {
		results, err := driver.Query(ctx, []float32{1, 0, 0}, 3)
		Expect(err).NotTo(HaveOccurred())
		Expect(results).To(BeEmpty())
	})

	It("caps results at the collection size", func() {
		Expect(driver.Add(ctx, []vector.Document{
			{ID: "a", Content: "ชื่อพี่นนท์", Metadata: map[string]string{"source": "a.txt"}, Embedding: []float32{1, 0, 0}},
			{ID: "b", Content: "ชอบกินข้าวมันไก่", Metadata: map[string]string{"source": "b.txt"}, Embedding: []float32{0, 1, 0}},
		})).To(Succeed())

		results, err := driver.Query(ctx, []float32{1, 0.1, 0}, 5)
		Expect(err).NotTo(HaveOccurred())
		Expect(results).To(HaveLen(2))
		Expect(results[0].ID).To(Equal("a"))
		Expect(results[0].Content).To(Equal("ชื่อพี่นนท์"))
		Expect(results[0].Metadata).To(HaveKeyWithValue("source", "a.txt"))
		Expect(results[0].Score).To(BeNumerically(">", results[1].Score))
	})

	It("deletes by id", func() {
		Expect(driver.Add(ctx, []vector.Document{
			{ID: "a", Content: "x", Embedding: []float32{1, 0, 0}},
			{ID: "b", Content: "y", Embedding: []float32{0, 1, 0}},
		})).To(Succeed())
		Expect(driver.Delete(ctx, []string{"a"})).To(Succeed())

		results, err := driver.Query(ctx, []float32{1, 0, 0}, 3)
		Expect(err).NotTo(HaveOccurred())
		Expect(results).To(HaveLen(1))
		Expect(results[0].ID).To(Equal("b"))
	})

	It("empties the segment on reset", func() {
		Expect(driver.Add(ctx, []vector.Document{
			{ID: "a", Content: "x", Embedding: []float32{1, 0, 0}},
		})).To(Succeed())
		Expect(driver.Reset(ctx)).To(Succeed())

		results, err := driver.Query(ctx, []float32{1, 0, 0}, 3)
		Expect(err).NotTo(HaveOccurred())
		Expect(results).To(BeEmpty())
	})
})
