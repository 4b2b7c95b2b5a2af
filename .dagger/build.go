package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"dagger/mali/internal/dagger"
)

const modulePath = "github.com/nontawat9304/mali-chat"

// Build and return a directory holding the mali binary for linux.
func (m *Mali) Build(
	ctx context.Context,

	// Linker flags for go build
	// +optional
	// +default="-s -w"
	ldflags string,
) *dagger.Directory {
	// sqlite-vec needs cgo, so only the container's native arch is built
	path := "linux/"

	build := m.goContainer().
		WithExec([]string{"go", "build", "-ldflags", ldflags, "-o", path, "./cli/mali"})

	return dag.Directory().WithDirectory(path, build.Directory(path))
}

// BuildRelease compiles versioned release binaries with embedded version info
func (m *Mali) BuildRelease(
	ctx context.Context,

	// Version string of build
	version string,

	// Git commit SHA of build
	commit string,
) *dagger.Directory {
	buildtime := time.Now()

	ldflags := []string{
		"-s",
		"-w",
		fmt.Sprintf("-X '%s/pkg/utils.Version=%s'", modulePath, version),
		fmt.Sprintf("-X '%s/pkg/utils.Sha=%s'", modulePath, commit),
		fmt.Sprintf("-X '%s/pkg/utils.Buildtime=%s'", modulePath, buildtime),
	}

	return m.Build(ctx, strings.Join(ldflags, " "))
}
