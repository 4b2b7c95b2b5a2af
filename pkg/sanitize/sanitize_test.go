package sanitize_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/nontawat9304/mali-chat/pkg/sanitize"
)

var _ = Describe("Clean", func() {
	DescribeTable("literal before/after pairs",
		func(raw, want string) {
			Expect(sanitize.Clean(raw)).To(Equal(want))
		},
		Entry("keeps text after the last closing think tag",
			"<think>plan</think>draft</think> สวัสดีค่ะ", "สวัสดีค่ะ"),
		Entry("drops an unterminated reasoning block",
			"<think>let me think about the calendar", ""),
		Entry("drops a reasoning block opened mid-reply", "พรุ่งนี้ว่างค่ะ <think>wait", "พรุ่งนี้ว่างค่ะ"),
		Entry("drops a bare opening tag", "<think", ""),
		Entry("drops a tag cut off by the token limit", "ได้ค่ะ <thi", "ได้ค่ะ"),
		Entry("drops a label left in front of a reasoning block", "Answer: <think>x", ""),
		Entry("strips a single label", "Answer: พรุ่งนี้ว่างค่ะ", "พรุ่งนี้ว่างค่ะ"),
		Entry("strips stacked labels", "Mali: มะลิ: A: ได้เลยค่ะ", "ได้เลยค่ะ"),
		Entry("strips labels case-insensitively", "answer: ok", "ok"),
		Entry("truncates at an English leak marker",
			"วันนี้ว่างค่ะ User: แล้วพรุ่งนี้ล่ะ", "วันนี้ว่างค่ะ"),
		Entry("truncates at the earliest marker",
			"ok Note: x Question: y", "ok"),
		Entry("truncates at chat template tokens", "ค่ะ<|im_end|>junk", "ค่ะ"),
		Entry("does not treat FAQ: as a Q: marker", "see FAQ: item", "see FAQ: item"),
		Entry("replaces ครับ with ค่ะ", "ได้ครับ", "ได้ค่ะ"),
		Entry("replaces ครับผม as one token", "รับทราบครับผม", "รับทราบค่ะ"),
		Entry("replaces a standalone ผม", "ผมชื่อมะลิ", "หนูชื่อมะลิ"),
		Entry("replaces ผม after a tone mark", "แต่ผมว่าดี", "แต่หนูว่าดี"),
		Entry("keeps ผม inside a longer word", "ทรงผมสวย", "ทรงผมสวย"),
		Entry("keeps ผม inside เส้นผม", "เส้นผมยาว", "เส้นผมยาว"),
		Entry("keeps ผม before ร่วง", "ช่วงนี้ผมร่วงเยอะ", "ช่วงนี้ผมร่วงเยอะ"),
		Entry("replaces ผม after ของ", "ของผมชื่อมะลิ", "ของหนูชื่อมะลิ"),
		Entry("replaces ผม after กับ", "มากับผมไหม", "มากับหนูไหม"),
		Entry("replaces ผม after ที่", "สิ่งที่ผมชอบ", "สิ่งที่หนูชอบ"),
		Entry("replaces ผม after อะไร", "ทำอะไรผมก็ได้", "ทำอะไรหนูก็ได้"),
		Entry("removes AI disclaimers", "As an AI language model, I think it is sunny.", "I think it is sunny."),
		Entry("removes a disclaimer that hides a label", "I am an AI. Answer: hi", "hi"),
		Entry("trims surrounding whitespace", "  \n ค่ะ \n", "ค่ะ"),
	)

	DescribeTable("is idempotent",
		func(raw string) {
			once := sanitize.Clean(raw)
			Expect(sanitize.Clean(once)).To(Equal(once))
		},
		Entry("reasoning block", "<think>a</think>Answer: ผมไม่รู้ครับ User: x"),
		Entry("nested think", "</think><think>b"),
		Entry("labels and markers", "Mali: Answer: Q: hi"),
		Entry("substitution chain", "ครับผมผม ครับ"),
		Entry("disclaimer", "I'm an AI assistant! Mali: สวัสดีค่ะ"),
		Entry("label before an open reasoning block", "Answer: <think>x"),
		Entry("disclaimer before an open reasoning block", "I am an AI <think>x"),
		Entry("bare opening tag", "<think"),
		Entry("truncated tag", "<thi"),
		Entry("label exposed by a disclaimer", "As an AI, Mali: I'm an AI. ผมว่าได้ครับ"),
		Entry("plain", "พรุ่งนี้ไปหาหมอฟันนะคะ (* >ω<)"),
	)
})
