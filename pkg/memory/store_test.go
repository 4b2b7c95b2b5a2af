package memory_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/nontawat9304/mali-chat/pkg/docstore"
	"github.com/nontawat9304/mali-chat/pkg/logger"
	"github.com/nontawat9304/mali-chat/pkg/memory"
	testutils "github.com/nontawat9304/mali-chat/pkg/utils/test"
)

var _ = Describe("Store", func() {
	var (
		ctx      context.Context
		opener   *testutils.MockOpener
		embedder *testutils.MockEmbedder
		docs     *docstore.Store
		store    *memory.Store

		admin = memory.Caller{Identity: "admin", Privileged: true}
		alice = memory.Caller{Identity: "alice"}
		bob   = memory.Caller{Identity: "bob"}
	)

	texts := func(rs []memory.Result) []string {
		out := make([]string, 0, len(rs))
		for _, r := range rs {
			out = append(out, r.Text)
		}
		return out
	}

	BeforeEach(func() {
		ctx = context.Background()
		opener = testutils.NewMockOpener()
		embedder = testutils.NewMockEmbedder()

		var err error
		docs, err = docstore.New(GinkgoT().TempDir(), "", logger.Nop())
		Expect(err).NotTo(HaveOccurred())

		clock := time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC)
		store, err = memory.NewStore(opener.Open, embedder, logger.Nop(),
			memory.WithSources(docs),
			memory.WithClock(func() time.Time { return clock }),
		)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		Expect(store.Close()).To(Succeed())
	})

	It("requires an opener and an embedder", func() {
		_, err := memory.NewStore(nil, embedder, logger.Nop())
		Expect(err).To(MatchError(memory.ErrNotConfigured))
	})

	Describe("Insert", func() {
		It("tags documents with source, date and scope and retains the source", func() {
			rec, err := store.Insert(ctx, "แมวชื่อส้ม", "Chat cat.txt", memory.Private("alice"), alice)
			Expect(err).NotTo(HaveOccurred())
			Expect(rec.ID).NotTo(BeEmpty())

			stored := opener.Driver("user_alice").Documents()
			Expect(stored).To(HaveLen(1))
			Expect(stored[0].Metadata).To(Equal(map[string]string{
				"source": "Chat cat.txt",
				"date":   "2026-01-02",
				"scope":  "user_alice",
			}))

			text, err := docs.Read("user_alice", "Chat cat.txt")
			Expect(err).NotTo(HaveOccurred())
			Expect(text).To(Equal("แมวชื่อส้ม"))
		})

		It("rejects global writes without privilege", func() {
			_, err := store.Insert(ctx, "x", "x.txt", memory.Global, alice)
			Expect(err).To(MatchError(memory.ErrScopeViolation))
			Expect(opener.Driver("global").Documents()).To(BeEmpty())
		})

		It("rejects writes into another identity's scope", func() {
			_, err := store.Insert(ctx, "x", "x.txt", memory.Private("bob"), alice)
			Expect(err).To(MatchError(memory.ErrScopeViolation))
		})

		It("surfaces index failures", func() {
			opener.Driver("user_alice").FailAdd = true
			_, err := store.Insert(ctx, "x", "x.txt", memory.Private("alice"), alice)
			Expect(err).To(MatchError(memory.ErrIndexUnavailable))
		})

		It("keeps the source when embedding fails so a rebuild recovers it", func() {
			embedder.FailOn = "ประชุมบ่ายโมง"
			rec, err := store.Insert(ctx, "ประชุมบ่ายโมง", "meeting.txt", memory.Private("alice"), alice)
			Expect(err).To(MatchError(memory.ErrIndexUnavailable))
			Expect(rec.ID).NotTo(BeEmpty())
			Expect(opener.Driver("user_alice").Documents()).To(BeEmpty())

			text, err := docs.Read("user_alice", "meeting.txt")
			Expect(err).NotTo(HaveOccurred())
			Expect(text).To(Equal("ประชุมบ่ายโมง"))

			embedder.FailOn = ""
			Expect(store.RebuildFromSources(ctx, memory.Private("alice"))).To(Succeed())
			Expect(texts(store.Query(ctx, "q", 3, alice))).To(ContainElement("ประชุมบ่ายโมง"))
		})

		It("keeps the source when the segment cannot be opened", func() {
			opener.FailOpen["user_alice"] = true
			rec, err := store.Insert(ctx, "note", "note.txt", memory.Private("alice"), alice)
			Expect(err).To(MatchError(memory.ErrIndexUnavailable))
			Expect(rec.ID).NotTo(BeEmpty())
			Expect(docs.Read("user_alice", "note.txt")).To(Equal("note"))
		})

		It("returns no record when nothing was retained", func() {
			bare, err := memory.NewStore(opener.Open, embedder, logger.Nop())
			Expect(err).NotTo(HaveOccurred())
			embedder.FailOn = "lost"
			rec, err := bare.Insert(ctx, "lost", "lost.txt", memory.Private("alice"), alice)
			Expect(err).To(MatchError(memory.ErrIndexUnavailable))
			Expect(rec.ID).To(BeEmpty())
		})
	})

	Describe("segment opening", func() {
		It("does not stall other segments while one open is slow", func() {
			release := opener.Hold("user_carol")
			defer release()

			done := make(chan []memory.Result, 1)
			go func() {
				defer GinkgoRecover()
				done <- store.Query(ctx, "anything", 3, memory.Caller{Identity: "carol"})
			}()
			Eventually(func() int { return opener.Opens("user_carol") }).Should(Equal(1))

			_, err := store.Insert(ctx, "bob's note", "bob.txt", memory.Private("bob"), bob)
			Expect(err).NotTo(HaveOccurred())
			Expect(texts(store.Query(ctx, "anything", 3, bob))).To(Equal([]string{"bob's note"}))

			release()
			Eventually(done).Should(Receive(BeEmpty()))
		})

		It("gives up on an open after the timeout and degrades", func() {
			quick, err := memory.NewStore(opener.Open, embedder, logger.Nop(),
				memory.WithOpenPolicy(20*time.Millisecond, time.Hour),
			)
			Expect(err).NotTo(HaveOccurred())
			release := opener.Hold("user_carol")
			defer release()

			carol := memory.Caller{Identity: "carol"}
			Expect(quick.Query(ctx, "anything", 3, carol)).To(BeEmpty())
			Expect(opener.Opens("user_carol")).To(Equal(1))

			By("answering from the remembered failure until the retry window passes")
			Expect(quick.Query(ctx, "anything", 3, carol)).To(BeEmpty())
			Expect(opener.Opens("user_carol")).To(Equal(1))
		})

		It("retries a failed open once the retry window has passed", func() {
			retrying, err := memory.NewStore(opener.Open, embedder, logger.Nop(),
				memory.WithOpenPolicy(time.Second, 0),
			)
			Expect(err).NotTo(HaveOccurred())
			opener.FailOpen["user_carol"] = true
			carol := memory.Caller{Identity: "carol"}
			Expect(retrying.Query(ctx, "anything", 3, carol)).To(BeEmpty())

			opener.FailOpen["user_carol"] = false
			_, err = retrying.Insert(ctx, "carol's note", "", memory.Private("carol"), carol)
			Expect(err).NotTo(HaveOccurred())
			Expect(opener.Opens("user_carol")).To(Equal(2))
		})
	})

	Describe("Query", func() {
		BeforeEach(func() {
			_, err := store.Insert(ctx, "office closes at 6", "office.txt", memory.Global, admin)
			Expect(err).NotTo(HaveOccurred())
			_, err = store.Insert(ctx, "alice likes mango", "mango.txt", memory.Private("alice"), alice)
			Expect(err).NotTo(HaveOccurred())
		})

		It("never shows a private record to another identity", func() {
			Expect(texts(store.Query(ctx, "anything", 3, bob))).To(Equal([]string{"office closes at 6"}))
		})

		It("returns global results first, then private", func() {
			got := store.Query(ctx, "anything", 3, alice)
			Expect(texts(got)).To(Equal([]string{"office closes at 6", "alice likes mango"}))
			Expect(got[0].Date).To(Equal("2026-01-02"))
			Expect(got[1].Scope).To(Equal(memory.Private("alice")))
		})

		It("probes only global for anonymous callers", func() {
			Expect(texts(store.Query(ctx, "anything", 3, memory.Caller{}))).To(Equal([]string{"office closes at 6"}))
		})

		It("truncates to twice k", func() {
			for _, t := range []string{"g1", "g2", "g3"} {
				_, err := store.Insert(ctx, t, t+".txt", memory.Global, admin)
				Expect(err).NotTo(HaveOccurred())
			}
			got := store.Query(ctx, "anything", 1, alice)
			Expect(got).To(HaveLen(2))
			Expect(got[1].Text).To(Equal("alice likes mango"))
		})

		It("does not deduplicate across segments", func() {
			_, err := store.Insert(ctx, "office closes at 6", "dup.txt", memory.Private("alice"), alice)
			Expect(err).NotTo(HaveOccurred())
			got := texts(store.Query(ctx, "anything", 1, alice))
			Expect(got).To(Equal([]string{"office closes at 6", "office closes at 6"}))
		})

		It("degrades to the healthy segment when one index fails", func() {
			opener.Driver("global").FailQuery = true
			Expect(texts(store.Query(ctx, "anything", 3, alice))).To(Equal([]string{"alice likes mango"}))
		})

		It("degrades to nothing when embedding fails", func() {
			embedder.FailOn = "anything"
			Expect(store.Query(ctx, "anything", 3, alice)).To(BeEmpty())
		})

		It("degrades when a segment cannot be opened", func() {
			opener.FailOpen["user_carol"] = true
			got := store.Query(ctx, "anything", 3, memory.Caller{Identity: "carol"})
			Expect(texts(got)).To(Equal([]string{"office closes at 6"}))
		})
	})

	Describe("ForgetSegment", func() {
		It("removes the source and keeps the rest retrievable", func() {
			_, err := store.Insert(ctx, "keep me", "keep.txt", memory.Private("alice"), alice)
			Expect(err).NotTo(HaveOccurred())
			_, err = store.Insert(ctx, "forget me", "forget.txt", memory.Private("alice"), alice)
			Expect(err).NotTo(HaveOccurred())

			Expect(store.ForgetSegment(ctx, memory.Private("alice"), "forget.txt", alice)).To(Succeed())

			got := texts(store.Query(ctx, "anything", 5, alice))
			Expect(got).To(ConsistOf("keep me"))
			Expect(opener.Driver("user_alice").Resets()).To(Equal(1))

			_, err = docs.Read("user_alice", "forget.txt")
			Expect(err).To(MatchError(docstore.ErrNotFound))
		})

		It("refuses to forget from a scope the caller does not own", func() {
			Expect(store.ForgetSegment(ctx, memory.Private("alice"), "x.txt", bob)).To(MatchError(memory.ErrScopeViolation))
		})

		It("needs a document store", func() {
			bare, err := memory.NewStore(opener.Open, embedder, logger.Nop())
			Expect(err).NotTo(HaveOccurred())
			Expect(bare.ForgetSegment(ctx, memory.Private("alice"), "x.txt", alice)).To(MatchError(memory.ErrNotConfigured))
		})
	})

	Describe("Rebuild", func() {
		It("replaces the segment contents", func() {
			_, err := store.Insert(ctx, "stale", "stale.txt", memory.Global, admin)
			Expect(err).NotTo(HaveOccurred())

			err = store.Rebuild(ctx, memory.Global, []memory.SourceText{
				{Filename: "a.txt", Text: "A"},
				{Filename: "b.txt", Text: "B"},
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(texts(store.Query(ctx, "q", 5, alice))).To(ConsistOf("A", "B"))
		})

		It("indexes what it can and reports the rest", func() {
			embedder.FailOn = "bad"
			err := store.Rebuild(ctx, memory.Global, []memory.SourceText{
				{Filename: "good.txt", Text: "good"},
				{Filename: "bad.txt", Text: "bad"},
			})
			Expect(err).To(MatchError(memory.ErrIndexUnavailable))
			Expect(texts(store.Query(ctx, "q", 5, alice))).To(ConsistOf("good"))
		})

		It("rebuilds from the document store", func() {
			Expect(docs.PutFile("global", "disk.txt", "from disk")).To(Succeed())
			Expect(store.RebuildFromSources(ctx, memory.Global)).To(Succeed())
			Expect(texts(store.Query(ctx, "q", 5, alice))).To(ConsistOf("from disk"))
		})
	})
})
