package cache_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/nontawat9304/mali-chat/pkg/embeddings/cache"
	testutils "github.com/nontawat9304/mali-chat/pkg/utils/test"
)

var _ = Describe("Embedder", func() {
	var (
		ctx  context.Context
		mock *testutils.MockEmbedder
	)

	BeforeEach(func() {
		ctx = context.Background()
		mock = testutils.NewMockEmbedder()
	})

	It("returns the wrapped embedder when disabled", func() {
		e, err := cache.New(mock, 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(e).To(BeIdenticalTo(mock))
	})

	It("serves repeated texts from the cache", func() {
		e, err := cache.New(mock, 128)
		Expect(err).NotTo(HaveOccurred())
		defer e.Close()

		first, err := e.Embed(ctx, "ประชุมวันศุกร์")
		Expect(err).NotTo(HaveOccurred())
		e.(*cache.Embedder).Wait()

		second, err := e.Embed(ctx, "ประชุมวันศุกร์")
		Expect(err).NotTo(HaveOccurred())
		Expect(second).To(Equal(first))
		Expect(mock.Calls()).To(Equal(int64(1)))
	})

	It("does not cache failures", func() {
		mock.FailOn = "boom"
		e, err := cache.New(mock, 128)
		Expect(err).NotTo(HaveOccurred())
		defer e.Close()

		_, err = e.Embed(ctx, "boom")
		Expect(err).To(HaveOccurred())
		_, err = e.Embed(ctx, "boom")
		Expect(err).To(HaveOccurred())
		Expect(mock.Calls()).To(Equal(int64(2)))
	})
})
