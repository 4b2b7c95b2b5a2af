package intent

import (
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/nontawat9304/mali-chat/pkg/memory"
)

// Router classifies utterances against static trigger tables. It does no
// I/O and is safe for concurrent use.
type Router struct {
	memory  []string
	profile []string
}

// NewRouter builds a router. Memory triggers are ordered longest first so
// the most specific phrase wins; equal lengths keep table order.
func NewRouter(t Triggers) *Router {
	mem := make([]string, 0, len(t.Memory))
	for _, trig := range t.Memory {
		if trig = strings.TrimSpace(trig); trig != "" {
			mem = append(mem, trig)
		}
	}
	slices.SortStableFunc(mem, func(a, b string) int {
		return utf8.RuneCountInString(b) - utf8.RuneCountInString(a)
	})

	prof := make([]string, 0, len(t.Profile))
	for _, trig := range t.Profile {
		if trig = strings.TrimSpace(trig); trig != "" {
			prof = append(prof, trig)
		}
	}

	return &Router{memory: mem, profile: prof}
}

// Route classifies utterance for caller.
func (r *Router) Route(utterance string, caller memory.Caller) Intent {
	cleaned := clean(utterance)
	if cleaned == "" {
		return Intent{Kind: Query}
	}

	if content, ok := r.matchMemory(cleaned); ok {
		return Intent{
			Kind:    MemoryWrite,
			Content: content,
			Scope:   caller.WriteScope(),
		}
	}

	if name, ok := r.matchProfile(cleaned); ok {
		return Intent{Kind: ProfileUpdate, Name: name}
	}

	return Intent{Kind: Query}
}

func clean(s string) string {
	s = strings.TrimSpace(s)
	return strings.TrimLeftFunc(s, func(r rune) bool {
		return unicode.IsSpace(r) || strings.ContainsRune("-•*>", r)
	})
}

// hasPrefixFold reports whether s starts with prefix ignoring case, and
// returns the original-cased remainder.
func hasPrefixFold(s, prefix string) (string, bool) {
	n := utf8.RuneCountInString(prefix)
	i := 0
	for pos := range s {
		if i == n {
			return matchHead(s, prefix, pos)
		}
		i++
	}
	if i == n {
		return matchHead(s, prefix, len(s))
	}
	return "", false
}

func matchHead(s, prefix string, cut int) (string, bool) {
	if !strings.EqualFold(s[:cut], prefix) {
		return "", false
	}
	return s[cut:], true
}

func (r *Router) matchMemory(cleaned string) (string, bool) {
	for _, trig := range r.memory {
		rest, ok := hasPrefixFold(cleaned, trig)
		if !ok || !endsWord(trig, rest) {
			continue
		}
		// the longest matching trigger decides
		content := stripParticles(strings.TrimSpace(rest))
		return content, content != ""
	}
	return "", false
}

func (r *Router) matchProfile(cleaned string) (string, bool) {
	for _, trig := range r.profile {
		rest, ok := indexFold(cleaned, trig)
		if !ok {
			continue
		}

		fields := strings.Fields(rest)
		if len(fields) == 0 {
			continue
		}
		name := stripParticles(fields[0])
		if utf8.RuneCountInString(name) <= 1 {
			continue
		}
		return name, true
	}
	return "", false
}

// indexFold finds the first case-insensitive occurrence of sub in s and
// returns the text after it.
func indexFold(s, sub string) (string, bool) {
	for pos := range s {
		if rest, ok := hasPrefixFold(s[pos:], sub); ok && endsWord(sub, rest) {
			return rest, true
		}
	}
	return "", false
}

// endsWord reports whether a trigger ending in an ASCII letter or digit is
// followed by something other than one, so "mem" does not match "membership".
// Thai is written without spaces, so Thai triggers match at any position.
func endsWord(trig, rest string) bool {
	last, _ := utf8.DecodeLastRuneInString(trig)
	if last >= utf8.RuneSelf || !isWordRune(last) {
		return true
	}
	next, _ := utf8.DecodeRuneInString(rest)
	return !isWordRune(next)
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// stripParticles makes one ordered pass over Particles, removing each from
// the start of s when present.
func stripParticles(s string) string {
	for _, p := range Particles {
		if strings.HasPrefix(s, p) {
			s = strings.TrimSpace(strings.TrimPrefix(s, p))
		}
	}
	return s
}
