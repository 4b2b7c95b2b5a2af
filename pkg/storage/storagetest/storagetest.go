// Package storagetest holds the behaviour every storage.Driver must share.
package storagetest

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/nontawat9304/mali-chat/pkg/history"
	"github.com/nontawat9304/mali-chat/pkg/memory"
	"github.com/nontawat9304/mali-chat/pkg/storage"
)

// DriverBehaviors registers the shared specs. driver is called inside each
// spec, after the caller's BeforeEach has set it up.
func DriverBehaviors(driver func() storage.Driver) {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
	})

	turn := func(role history.Role, text string, at time.Time) history.Turn {
		return history.Turn{Role: role, Text: text, Timestamp: at}
	}

	Describe("transcripts", func() {
		It("returns the latest turns oldest first", func() {
			d := driver()
			base := time.UnixMilli(1_700_000_000_000)
			for i, text := range []string{"a", "b", "c", "d"} {
				Expect(d.AppendTurn(ctx, "nont", turn(history.User, text, base.Add(time.Duration(i)*time.Second)))).To(Succeed())
			}

			turns, err := d.RecentTurns(ctx, "nont", 3)
			Expect(err).NotTo(HaveOccurred())
			Expect(turns).To(HaveLen(3))
			Expect(turns[0].Text).To(Equal("b"))
			Expect(turns[2].Text).To(Equal("d"))
			Expect(turns[2].Timestamp.UnixMilli()).To(Equal(base.Add(3 * time.Second).UnixMilli()))
			Expect(turns[0].Role).To(Equal(history.User))
		})

		It("keeps identities apart", func() {
			d := driver()
			Expect(d.AppendTurn(ctx, "nont", turn(history.User, "mine", time.Now()))).To(Succeed())
			Expect(d.AppendTurn(ctx, "ploy", turn(history.Assistant, "hers", time.Now()))).To(Succeed())

			turns, err := d.RecentTurns(ctx, "ploy", 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(turns).To(HaveLen(1))
			Expect(turns[0].Text).To(Equal("hers"))
		})

		It("returns nothing for an unknown identity", func() {
			turns, err := driver().RecentTurns(ctx, "nobody", 5)
			Expect(err).NotTo(HaveOccurred())
			Expect(turns).To(BeEmpty())
		})
	})

	Describe("profiles", func() {
		It("reports a missing profile as not found", func() {
			_, err := driver().GetProfile(ctx, "nobody")
			Expect(err).To(MatchError(storage.ErrNotFound))
			Expect(err).To(BeAssignableToTypeOf(storage.NotFoundError{}))
		})

		It("creates and then replaces a profile", func() {
			d := driver()
			id := memory.Identity("nont")
			Expect(d.SetProfile(ctx, storage.Profile{Identity: id, DisplayName: "Nont"})).To(Succeed())
			Expect(d.SetProfile(ctx, storage.Profile{Identity: id, DisplayName: "พี่นนท์", Role: "admin"})).To(Succeed())

			p, err := d.GetProfile(ctx, id)
			Expect(err).NotTo(HaveOccurred())
			Expect(p.Identity).To(Equal(id))
			Expect(p.DisplayName).To(Equal("พี่นนท์"))
			Expect(p.Role).To(Equal("admin"))
			Expect(p.UpdatedAt).NotTo(BeZero())
			Expect(p.Facts()).To(Equal(map[string]string{"name": "พี่นนท์", "role": "admin"}))
		})
	})
}
