// Package vectorutils builds the segment opener for the configured backend.
package vectorutils

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/nontawat9304/mali-chat/pkg/vector"
	"github.com/nontawat9304/mali-chat/pkg/vector/chroma"
	"github.com/nontawat9304/mali-chat/pkg/vector/chromem"
	"github.com/nontawat9304/mali-chat/pkg/vector/qdrant"
	"github.com/nontawat9304/mali-chat/pkg/vector/sqlitevec"
)

const (
	BackendChromem   = "chromem"
	BackendSQLiteVec = "sqlitevec"
	BackendQdrant    = "qdrant"
	BackendChroma    = "chroma"
)

// Backends lists the supported segment backends.
var Backends = []string{BackendChromem, BackendSQLiteVec, BackendQdrant, BackendChroma}

type NewOpenerOpts struct {
	// Backend selects the index implementation.
	Backend string

	// SegmentsDir holds on-disk indexes for the embedded backends.
	SegmentsDir string

	// Target is the server address for qdrant and chroma.
	Target string
	APIKey string

	// Dimensions of the configured embedder.
	Dimensions uint

	Logger *slog.Logger
}

// NewOpener returns a vector.Opener for the backend plus a close func
// releasing anything shared between segments.
func NewOpener(o *NewOpenerOpts) (vector.Opener, func() error, error) {
	noClose := func() error { return nil }
	log := o.Logger.With("backend", o.Backend)

	switch o.Backend {
	case BackendChromem, "":
		db, err := chromem.OpenDB(o.SegmentsDir, true)
		if err != nil {
			return nil, nil, err
		}
		return func(_ context.Context, segment string) (vector.Driver, error) {
			return chromem.NewDriver(db, segment, log)
		}, noClose, nil

	case BackendSQLiteVec:
		if o.SegmentsDir == "" {
			return nil, nil, fmt.Errorf("%s backend requires a segments directory", o.Backend)
		}
		if err := os.MkdirAll(o.SegmentsDir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("creating segments directory: %w", err)
		}
		return func(_ context.Context, segment string) (vector.Driver, error) {
			return sqlitevec.NewDriver(sqlitevec.Config{
				DBPath:     filepath.Join(o.SegmentsDir, segment+".db"),
				Dimensions: o.Dimensions,
			}, log)
		}, noClose, nil

	case BackendQdrant:
		client, err := qdrant.NewClient(o.Target, o.APIKey)
		if err != nil {
			return nil, nil, err
		}
		return func(ctx context.Context, segment string) (vector.Driver, error) {
			return qdrant.NewDriver(ctx, client, qdrant.Config{
				Segment:    segment,
				Dimensions: o.Dimensions,
			}, log)
		}, client.Close, nil

	case BackendChroma:
		return func(_ context.Context, segment string) (vector.Driver, error) {
			return chroma.NewDriver(chroma.Config{URL: o.Target, Segment: segment}, log)
		}, noClose, nil

	default:
		return nil, nil, fmt.Errorf("unsupported vector backend: %s", o.Backend)
	}
}
