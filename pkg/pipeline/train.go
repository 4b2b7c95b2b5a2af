package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/nontawat9304/mali-chat/pkg/docstore"
	"github.com/nontawat9304/mali-chat/pkg/memory"
)

// ErrEmptySource is returned when a training text is blank.
var ErrEmptySource = errors.New("training text is empty")

// TrainRequest teaches a whole text outside of conversation.
type TrainRequest struct {
	// Title names a pasted text. Filename names an uploaded file. One of
	// them is required; Filename wins.
	Title    string
	Filename string

	Text   string
	Caller memory.Caller
}

// Train stores text as a retained source and indexes it under the caller's
// write scope. It returns the training log entry.
func (o *Orchestrator) Train(ctx context.Context, req TrainRequest) (docstore.HistoryEntry, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return docstore.HistoryEntry{}, ErrEmptySource
	}

	title, status := req.Title, docstore.StatusText
	source := docstore.SanitizeFilename(title)
	if req.Filename != "" {
		title, status = req.Filename, docstore.StatusFile
		source = SourceName(req.Filename)
	}
	if source == ".txt" {
		return docstore.HistoryEntry{}, fmt.Errorf("%w: %q", docstore.ErrInvalidFilename, title)
	}

	scope := req.Caller.WriteScope()
	rec, err := o.memory.Insert(ctx, text, source, scope, req.Caller)
	if err != nil {
		if rec.ID == "" {
			return docstore.HistoryEntry{}, err
		}
		o.logger.Error("training indexing failed", "segment", scope.Segment(), "source", source, "error", err)
	}

	entry := docstore.HistoryEntry{Filename: source, OriginalTitle: title, Scope: scope.Segment(), Status: status}
	if o.sources != nil {
		recorded, err := o.sources.RecordHistory(scope.Segment(), source, title, status)
		if err != nil {
			o.logger.Warn("recording training history failed", "source", source, "error", err)
		} else {
			entry = recorded
		}
	}
	return entry, nil
}

// Forget drops filename from the caller's write scope and rebuilds it.
func (o *Orchestrator) Forget(ctx context.Context, filename string, caller memory.Caller) error {
	scope := caller.WriteScope()
	if err := o.memory.ForgetSegment(ctx, scope, filename, caller); err != nil {
		return err
	}
	if o.sources != nil {
		if err := o.sources.ForgetHistory(scope.Segment(), filename); err != nil {
			o.logger.Warn("updating training history failed", "source", filename, "error", err)
		}
	}
	return nil
}

// SourceName turns an uploaded file name into a retained source file name.
// An existing extension is replaced with .txt.
func SourceName(filename string) string {
	name := filepath.Base(strings.TrimSpace(filename))
	return docstore.SanitizeFilename(strings.TrimSuffix(name, filepath.Ext(name)))
}
