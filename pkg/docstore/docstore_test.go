package docstore_test

import (
	"context"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/nontawat9304/mali-chat/pkg/docstore"
	"github.com/nontawat9304/mali-chat/pkg/logger"
)

var _ = Describe("Store", func() {
	var (
		root  string
		store *docstore.Store
		clock time.Time
	)

	BeforeEach(func() {
		root = GinkgoT().TempDir()
		clock = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

		var err error
		store, err = docstore.New(root, "", logger.Nop(), docstore.WithClock(func() time.Time { return clock }))
		Expect(err).NotTo(HaveOccurred())
	})

	Describe("SanitizeFilename", func() {
		It("keeps letters, digits, space, dash and underscore", func() {
			Expect(docstore.SanitizeFilename("Chat: meeting @ 3pm!...")).To(Equal("Chat meeting  3pm.txt"))
			Expect(docstore.SanitizeFilename("  notes_v2-final ")).To(Equal("notes_v2-final.txt"))
		})

		It("keeps Thai vowels and tone marks", func() {
			Expect(docstore.SanitizeFilename("Chat: ประชุมบ่ายโมง...")).To(Equal("Chat ประชุมบ่ายโมง.txt"))
		})

		It("drops path separators", func() {
			Expect(docstore.SanitizeFilename("../../etc/passwd")).To(Equal("etcpasswd.txt"))
		})
	})

	Describe("sources", func() {
		It("writes under the segment directory", func() {
			name, err := store.Put("user_nont", "Chat: cat", "แมวชื่อส้ม")
			Expect(err).NotTo(HaveOccurred())
			Expect(name).To(Equal("Chat cat.txt"))

			raw, err := os.ReadFile(filepath.Join(root, "user_nont", name))
			Expect(err).NotTo(HaveOccurred())
			Expect(string(raw)).To(Equal("แมวชื่อส้ม"))
		})

		It("lists included files sorted by name", func() {
			Expect(store.PutFile("global", "b.txt", "B")).To(Succeed())
			Expect(store.PutFile("global", "a.txt", "A")).To(Succeed())
			Expect(os.WriteFile(filepath.Join(root, "global", "notes.md"), []byte("skip"), 0o644)).To(Succeed())

			list, err := store.List("global")
			Expect(err).NotTo(HaveOccurred())
			Expect(list).To(HaveLen(2))
			Expect(list[0].Filename).To(Equal("a.txt"))
			Expect(list[1].Text).To(Equal("B"))
		})

		It("lists nothing for an unknown segment", func() {
			list, err := store.List("user_ghost")
			Expect(err).NotTo(HaveOccurred())
			Expect(list).To(BeEmpty())
		})

		It("honors a custom include pattern", func() {
			s, err := docstore.New(root, "*.{txt,md}", logger.Nop())
			Expect(err).NotTo(HaveOccurred())
			Expect(s.PutFile("global", "a.md", "A")).To(Succeed())

			list, err := s.List("global")
			Expect(err).NotTo(HaveOccurred())
			Expect(list).To(HaveLen(1))
		})

		It("removes sources and tolerates missing ones", func() {
			Expect(store.PutFile("global", "a.txt", "A")).To(Succeed())
			Expect(store.Remove("global", "a.txt")).To(Succeed())
			Expect(store.Remove("global", "a.txt")).To(Succeed())

			_, err := store.Read("global", "a.txt")
			Expect(err).To(MatchError(docstore.ErrNotFound))
		})

		It("rejects names escaping the segment", func() {
			Expect(store.PutFile("global", "../x.txt", "x")).To(MatchError(docstore.ErrInvalidFilename))
			_, err := store.Read("../global", "a.txt")
			Expect(err).To(MatchError(docstore.ErrInvalidFilename))
		})
	})

	Describe("history", func() {
		It("starts empty", func() {
			h, err := store.History()
			Expect(err).NotTo(HaveOccurred())
			Expect(h).To(BeEmpty())
		})

		It("records and forgets entries per segment", func() {
			_, err := store.RecordHistory("global", "a.txt", "A", docstore.StatusText)
			Expect(err).NotTo(HaveOccurred())
			_, err = store.RecordHistory("user_nont", "a.txt", "", docstore.StatusFile)
			Expect(err).NotTo(HaveOccurred())

			h, err := store.History()
			Expect(err).NotTo(HaveOccurred())
			Expect(h).To(HaveLen(2))
			Expect(h[0].Timestamp).To(Equal("2026-03-14T09:30:00Z"))
			Expect(h[0].OriginalTitle).To(Equal("A"))

			Expect(store.ForgetHistory("global", "a.txt")).To(Succeed())
			h, err = store.History()
			Expect(err).NotTo(HaveOccurred())
			Expect(h).To(HaveLen(1))
			Expect(h[0].Scope).To(Equal("user_nont"))
		})
	})

	Describe("Watch", func() {
		It("reports external edits but not the store's own writes", func() {
			Expect(store.PutFile("user_nont", "a.txt", "A")).To(Succeed())

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			changed := make(chan string, 4)
			go func() {
				defer GinkgoRecover()
				Expect(store.Watch(ctx, func(seg string) { changed <- seg })).To(Succeed())
			}()

			// give the watcher time to register
			time.Sleep(200 * time.Millisecond)
			Expect(store.PutFile("user_nont", "b.txt", "B")).To(Succeed())
			Consistently(changed, 1500*time.Millisecond).ShouldNot(Receive())

			Expect(os.WriteFile(filepath.Join(root, "user_nont", "c.txt"), []byte("C"), 0o644)).To(Succeed())
			Eventually(changed, 3*time.Second).Should(Receive(Equal("user_nont")))
		})
	})
})
