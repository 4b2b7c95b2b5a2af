// Package cliui holds the terminal styling shared by mali commands: step
// spinners, key/value styles and glamour markdown rendering.
package cliui

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
)

var (
	SuccessMark = lipgloss.NewStyle().Foreground(lipgloss.Color("82")).Render("✓")
	FailMark    = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Render("✗")

	StepStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	KeyStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true)
	ValueStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("255"))
	DimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))

	// UserStyle and BotStyle label the two sides of a chat transcript.
	UserStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("213")).Bold(true)
	BotStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("117")).Bold(true)

	frameStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("117"))
)

const (
	frameInterval = 100 * time.Millisecond
	markdownWidth = 80
)

var frames = []string{"◐", "◓", "◑", "◒"}

// spinner redraws a single status line until stopped.
type spinner struct {
	mu   sync.Mutex
	w    io.Writer
	msg  string
	stop chan struct{}
	done chan struct{}
}

func startSpinner(w io.Writer, msg string) *spinner {
	s := &spinner{w: w, msg: msg, stop: make(chan struct{}), done: make(chan struct{})}
	go s.loop()
	return s
}

func (s *spinner) loop() {
	defer close(s.done)
	ticker := time.NewTicker(frameInterval)
	defer ticker.Stop()

	for i := 0; ; i++ {
		s.draw(frameStyle.Render(frames[i%len(frames)]), "")
		select {
		case <-s.stop:
			return
		case <-ticker.C:
		}
	}
}

func (s *spinner) draw(mark, suffix string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.w, "\r  %s %s%s", mark, s.msg, suffix)
}

// finish stops the animation and leaves the final mark on the line.
func (s *spinner) finish(err error, elapsed time.Duration) {
	close(s.stop)
	<-s.done
	s.draw(Mark(err), " "+StepStyle.Render("("+FormatDuration(elapsed)+")")+"\n")
}

// Step shows a spinner next to msg while fn runs, then replaces it with a
// ✓ or ✗ and the elapsed time. It returns fn's error.
func Step(w io.Writer, msg string, fn func() error) error {
	sp := startSpinner(w, msg)
	start := time.Now()
	err := fn()
	sp.finish(err, time.Since(start))
	return err
}

// Mark returns a ✓ for nil errors or ✗ for non-nil errors.
func Mark(err error) string {
	if err != nil {
		return FailMark
	}
	return SuccessMark
}

// FormatDuration formats a duration for display (e.g. "12ms" or "3.2s").
func FormatDuration(d time.Duration) string {
	if d >= time.Second {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%dms", d.Milliseconds())
}

// RenderMarkdown renders markdown for the terminal. On failure it returns
// the input unchanged alongside the error.
func RenderMarkdown(content string) (string, error) {
	r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(markdownWidth))
	if err != nil {
		return content, err
	}
	out, err := r.Render(content)
	if err != nil {
		return content, err
	}
	return out, nil
}
