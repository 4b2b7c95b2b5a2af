// Package assemble builds the context block handed to a generation
// provider: time, identity facts, retrieved memories and recent history,
// always in that order.
package assemble

import (
	"sort"
	"strings"
	"time"

	"github.com/nontawat9304/mali-chat/pkg/history"
	"github.com/nontawat9304/mali-chat/pkg/memory"
)

const (
	// TimeLayout renders the current-time line.
	TimeLayout = "2006-01-02 15:04:05"

	// HistoryHeader introduces the recent dialogue.
	HistoryHeader = "ประวัติการคุยล่าสุด:"

	// DefaultWindow is how many recent turns are rendered.
	DefaultWindow = 6

	factsPrefix = "[Default Facts (override if newer memory or history says otherwise)]: "
)

// Facts are identity facts such as the preferred display name. They are
// defaults: anything newer in memory or history wins.
type Facts map[string]string

// Bundle is the request-scoped context. It is never persisted.
type Bundle struct {
	Time          string
	IdentityFacts string
	Memories      []string
	History       []string
}

// String renders the bundle as one text block.
func (b Bundle) String() string {
	lines := make([]string, 0, 2+len(b.Memories)+len(b.History)+1)
	lines = append(lines, "[Current Time: "+b.Time+"]")
	if b.IdentityFacts != "" {
		lines = append(lines, b.IdentityFacts)
	}
	lines = append(lines, b.Memories...)
	if len(b.History) > 0 {
		lines = append(lines, HistoryHeader)
		lines = append(lines, b.History...)
	}
	return strings.Join(lines, "\n")
}

// Assembler renders bundles with an injected clock.
type Assembler struct {
	now       func() time.Time
	assistant string
}

// Option configures an Assembler.
type Option func(*Assembler)

// WithClock injects the clock.
func WithClock(now func() time.Time) Option {
	return func(a *Assembler) { a.now = now }
}

// WithAssistantLabel sets the label of assistant turns. Default "Mali".
func WithAssistantLabel(label string) Option {
	return func(a *Assembler) { a.assistant = label }
}

func New(opts ...Option) *Assembler {
	a := &Assembler{now: time.Now, assistant: "Mali"}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Assemble builds the bundle. utterance and identity are accepted for
// symmetry with the pipeline but do not appear in the block; the prompt
// carries the utterance separately.
func (a *Assembler) Assemble(_ string, _ memory.Identity, memories []memory.Result, turns []history.Turn, facts Facts) Bundle {
	b := Bundle{
		Time:          a.now().Format(TimeLayout),
		IdentityFacts: renderFacts(facts),
	}

	for _, m := range memories {
		if m.Date != "" {
			b.Memories = append(b.Memories, "[Memory "+m.Date+"]: "+m.Text)
		} else {
			b.Memories = append(b.Memories, "[Memory]: "+m.Text)
		}
	}

	for _, t := range turns {
		switch t.Role {
		case history.System:
			b.History = append(b.History, "(Context: "+t.Text+")")
		case history.Assistant:
			b.History = append(b.History, a.assistant+": "+t.Text)
		default:
			b.History = append(b.History, "User: "+t.Text)
		}
	}
	return b
}

// renderFacts emits keys sorted so the line is deterministic.
func renderFacts(f Facts) string {
	keys := make([]string, 0, len(f))
	for k, v := range f {
		if v != "" {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return ""
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+f[k])
	}
	return factsPrefix + strings.Join(parts, ", ")
}
