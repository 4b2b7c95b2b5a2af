// Package sanitize turns raw model output into a reply that stays in
// persona. Clean is a pure function and Clean(Clean(x)) == Clean(x).
package sanitize

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

const thinkClose = "</think>"

// Labels are reply prefixes models like to echo back.
var Labels = []string{"Assistant:", "Answer:", "คำตอบ:", "Mali:", "มะลิ:", "A:"}

// LeakMarkers start text the model invented past its own turn.
var LeakMarkers = []string{"User:", "Question:", "System:", "Note:", "Q:", "<|im_end|>", "<|im_start|>"}

type substitution struct {
	from, to string

	// The replacement is skipped when the token is preceded by one of
	// unlessAfter or followed by one of unlessBefore: those spell words in
	// which the token means something else.
	unlessAfter, unlessBefore []string
}

// hairStems precede ผม when it means hair rather than the pronoun.
var hairStems = []string{"ทรง", "เส้น", "ตัด", "สระ", "ย้อม", "หวี", "ราก", "ปลาย", "ช่างทำ", "ร้านทำ", "ที่คาด", "กิ๊บติด"}

// substitutions run in order. A replacement never introduces a later token.
var substitutions = []substitution{
	{from: "ครับผม", to: "ค่ะ"},
	{from: "ครับ", to: "ค่ะ"},
	{from: "ผม", to: "หนู", unlessAfter: hairStems, unlessBefore: []string{"ร่วง", "หงอก", "เปีย", "หยิก", "ม้า"}},
}

var (
	// thinkOpenAt finds an opening reasoning tag, closed or not, and
	// everything after it.
	thinkOpenAt = regexp.MustCompile(`(?is)<think\b.*$`)

	// thinkTail is a tag cut off by the token limit at the very end.
	thinkTail = regexp.MustCompile(`(?i)</?t(?:h(?:i(?:n(?:k)?)?)?)?$`)
)

// maxPasses bounds the loop in Clean. Substitutions never feed each other, so
// real input settles by the second pass.
const maxPasses = 4

var disclaimer = regexp.MustCompile(`(?i)\b(?:as an ai(?: language model| assistant)?|i(?: am|'m) (?:just )?an ai(?: language model| assistant)?)\b[,.!]?\s*`)

// Clean applies, in order: reasoning-block removal, label stripping, leak
// truncation, disclaimer removal, persona substitutions and a final trim. A
// later step can expose work for an earlier one, so the steps repeat until the
// text stops changing.
func Clean(raw string) string {
	s := raw
	for range maxPasses {
		next := clean(s)
		if next == s {
			break
		}
		s = next
	}
	return s
}

func clean(s string) string {
	if i := strings.LastIndex(s, thinkClose); i >= 0 {
		s = s[i+len(thinkClose):]
	}
	// Unterminated: the model ran out of tokens mid-reasoning.
	s = thinkOpenAt.ReplaceAllString(s, "")
	s = thinkTail.ReplaceAllString(s, "")

	s = stripLabels(s)
	s = truncateAtLeak(s)

	s = disclaimer.ReplaceAllString(s, "")
	for _, sub := range substitutions {
		s = replaceBounded(s, sub)
	}

	return stripLabels(s)
}

func stripLabels(s string) string {
	s = strings.TrimSpace(s)
	for {
		stripped := false
		for _, l := range Labels {
			if len(s) >= len(l) && strings.EqualFold(s[:len(l)], l) {
				s = strings.TrimSpace(s[len(l):])
				stripped = true
			}
		}
		if !stripped {
			return s
		}
	}
}

// truncateAtLeak cuts s at the earliest leak marker. ASCII markers only count
// at a word start, so "FAQ:" does not match "Q:".
func truncateAtLeak(s string) string {
	cut := len(s)
	for _, m := range LeakMarkers {
		from := 0
		for from < cut {
			i := strings.Index(s[from:], m)
			if i < 0 {
				break
			}
			i += from
			if i > 0 && isASCIILetter(s[i-1]) && isASCIILetter(m[0]) {
				from = i + len(m)
				continue
			}
			if i < cut {
				cut = i
			}
			break
		}
	}
	return strings.TrimSpace(s[:cut])
}

func replaceBounded(s string, sub substitution) string {
	if !strings.Contains(s, sub.from) {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))
	rest := s
	for {
		i := strings.Index(rest, sub.from)
		if i < 0 {
			b.WriteString(rest)
			return b.String()
		}
		end := i + len(sub.from)

		// The guard looks at what has already been written, so an earlier
		// replacement in this pass is what it sees.
		b.WriteString(rest[:i])
		next, _ := utf8.DecodeRuneInString(rest[end:])

		embedded := unicode.Is(unicode.Mn, next) ||
			hasAnySuffix(b.String(), sub.unlessAfter) ||
			hasAnyPrefix(rest[end:], sub.unlessBefore)
		if embedded {
			b.WriteString(sub.from)
		} else {
			b.WriteString(sub.to)
		}
		rest = rest[end:]
	}
}

func hasAnySuffix(s string, suffixes []string) bool {
	for _, x := range suffixes {
		if strings.HasSuffix(s, x) {
			return true
		}
	}
	return false
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, x := range prefixes {
		if strings.HasPrefix(s, x) {
			return true
		}
	}
	return false
}

func isASCIILetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
