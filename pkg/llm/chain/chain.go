// Package chain runs generation over an ordered ladder of providers. An
// optional per-request override endpoint is tried once first; after that each
// surviving rung gets one attempt, in order, until one produces text.
package chain

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nontawat9304/mali-chat/pkg/llm"
	"github.com/nontawat9304/mali-chat/pkg/llm/provider"
)

const (
	// DefaultOverrideTimeout bounds the single attempt against an override endpoint.
	DefaultOverrideTimeout = 60 * time.Second

	// DefaultProbeTimeout bounds each reachability probe at construction.
	DefaultProbeTimeout = 5 * time.Second
)

// Factory builds a generator from a rung config. provider.New is the default.
type Factory func(ctx context.Context, cfg provider.Config, logger *slog.Logger) (llm.Generator, error)

// Request is one generation request.
type Request struct {
	Prompt llm.Prompt

	// Override is a remote brain URL tried exactly once before the ladder.
	// It is ignored unless it starts with "http".
	Override string
}

// Attempt records one try against one generator.
type Attempt struct {
	Source  string
	Err     error
	Elapsed time.Duration
}

// Outcome is the result of a chain run. Attempts lists every try in order.
type Outcome struct {
	Text     string
	Source   string
	Attempts []Attempt

	// Err is ErrProvidersExhausted (or the caller's context error) when no
	// attempt produced text.
	Err error
}

// OK reports whether some generator produced text.
func (o Outcome) OK() bool {
	return o.Err == nil && o.Text != ""
}

type rung struct {
	gen     llm.Generator
	timeout time.Duration
}

// Chain is safe for concurrent use. The ladder is fixed after New.
type Chain struct {
	rungs           []rung
	factory         Factory
	overrideTimeout time.Duration
	probeTimeout    time.Duration
	probe           bool
	logger          *slog.Logger
}

// Option configures a Chain.
type Option func(*Chain)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Chain) { c.logger = logger }
}

func WithFactory(f Factory) Option {
	return func(c *Chain) { c.factory = f }
}

func WithOverrideTimeout(d time.Duration) Option {
	return func(c *Chain) {
		if d > 0 {
			c.overrideTimeout = d
		}
	}
}

// WithProbe toggles the reachability probe run against rungs that support it.
func WithProbe(enabled bool, timeout time.Duration) Option {
	return func(c *Chain) {
		c.probe = enabled
		if timeout > 0 {
			c.probeTimeout = timeout
		}
	}
}

// New initializes the ladder in order. A rung that fails to initialize or to
// answer its probe is logged and left out for the life of the chain. An empty
// ladder is valid; every Generate then exhausts.
func New(ctx context.Context, ladder []provider.Config, opts ...Option) *Chain {
	c := &Chain{
		factory:         provider.New,
		overrideTimeout: DefaultOverrideTimeout,
		probeTimeout:    DefaultProbeTimeout,
		probe:           true,
		logger:          slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}

	for i, cfg := range ladder {
		gen, err := c.factory(ctx, cfg, c.logger)
		if err != nil {
			c.logger.Warn("skipping generation provider", "rung", i, "kind", cfg.Kind, "error", err)
			continue
		}

		if p, ok := gen.(provider.Prober); ok && c.probe {
			pctx, cancel := context.WithTimeout(ctx, c.probeTimeout)
			err := p.Probe(pctx)
			cancel()
			if err != nil {
				c.logger.Warn("skipping unreachable generation provider",
					"rung", i,
					"kind", cfg.Kind,
					"source", gen.Source(),
					"error", err,
				)
				continue
			}
		}

		c.rungs = append(c.rungs, rung{gen: gen, timeout: cfg.AttemptTimeout()})
		c.logger.Info("generation provider ready", "rung", i, "kind", cfg.Kind, "source", gen.Source())
	}
	return c
}

// Sources lists the surviving ladder in order.
func (c *Chain) Sources() []string {
	out := make([]string, 0, len(c.rungs))
	for _, r := range c.rungs {
		out = append(out, r.gen.Source())
	}
	return out
}

// Generate tries the override, then the ladder, and returns the first text.
func (c *Chain) Generate(ctx context.Context, req Request) Outcome {
	var out Outcome

	if strings.HasPrefix(req.Override, "http") {
		gen, err := c.factory(ctx, provider.Config{Kind: provider.Remote, BaseURL: req.Override}, c.logger)
		if err != nil {
			out.Attempts = append(out.Attempts, Attempt{Source: req.Override, Err: err})
		} else if c.try(ctx, gen, c.overrideTimeout, req.Prompt, &out) {
			return out
		}
	}

	for _, r := range c.rungs {
		if ctx.Err() != nil {
			out.Err = ctx.Err()
			return out
		}
		if c.try(ctx, r.gen, r.timeout, req.Prompt, &out) {
			return out
		}
	}

	if ctx.Err() != nil {
		out.Err = ctx.Err()
	} else {
		out.Err = llm.ErrProvidersExhausted
	}
	c.logger.Warn("generation exhausted", "attempts", len(out.Attempts))
	return out
}

func (c *Chain) try(ctx context.Context, gen llm.Generator, timeout time.Duration, p llm.Prompt, out *Outcome) bool {
	start := time.Now()
	text, err := attempt(ctx, gen, timeout, p)
	a := Attempt{Source: gen.Source(), Err: err, Elapsed: time.Since(start)}
	out.Attempts = append(out.Attempts, a)

	if err != nil {
		c.logger.Warn("generation attempt failed", "source", a.Source, "elapsed", a.Elapsed, "error", err)
		return false
	}

	out.Text = text
	out.Source = a.Source
	c.logger.Debug("generation attempt succeeded", "source", a.Source, "elapsed", a.Elapsed)
	return true
}

type result struct {
	text string
	err  error
}

// attempt runs gen in its own goroutine and waits for the result, the
// timeout or the caller's context, whichever comes first. The attempt context
// is cancelled on return, and the result channel is buffered so an abandoned
// goroutine can always finish.
func attempt(ctx context.Context, gen llm.Generator, timeout time.Duration, p llm.Prompt) (string, error) {
	actx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan result, 1)
	go func() {
		text, err := gen.Generate(actx, p)
		done <- result{text: text, err: err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case r := <-done:
		if r.err != nil {
			return "", r.err
		}
		text := strings.TrimSpace(r.text)
		if text == "" {
			return "", fmt.Errorf("%w: empty reply", llm.ErrProviderRejected)
		}
		return text, nil
	case <-timer.C:
		return "", fmt.Errorf("%w after %s", llm.ErrProviderTimeout, timeout)
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
