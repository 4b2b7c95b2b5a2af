// Mali CI/CD
//
// Package main provides reproducible builds and tests locally and in GitHub actions.
package main

import (
	"context"

	"dagger/mali/internal/dagger"
)

// Mali is the main module for the Mali CI/CD pipeline
type Mali struct {
	// Project source directory
	//
	// +private
	Source *dagger.Directory
}

// New creates a new Mali CI/CD module instance
func New(
	// Project source directory.
	//
	// +defaultPath="/"
	// +ignore=[".git", ".mali", "build", "tmp", "_examples"]
	source *dagger.Directory,
) *Mali {
	return &Mali{
		Source: source,
	}
}

// goContainer returns a Debian Bookworm-based Go container with gcc and
// CGO enabled for sqlite-vec, with the project source mounted.
func (m *Mali) goContainer() *dagger.Container {
	return dag.Container().
		From("golang:1.25-bookworm").
		WithExec([]string{"apt-get", "update"}).
		WithExec([]string{"apt-get", "install", "-y", "gcc", "libsqlite3-dev"}).
		WithEnvVariable("CGO_ENABLED", "1").
		WithEnvVariable("PATH", "/go/bin:$PATH", dagger.ContainerWithEnvVariableOpts{Expand: true}).
		WithMountedCache("/go/pkg/mod", dag.CacheVolume("go-mod")).
		WithMountedCache("/root/.cache/go-build", dag.CacheVolume("go-build")).
		WithWorkdir("/src").
		WithDirectory("/src", m.Source)
}

// Test runs the mali unit tests via "go test"
func (m *Mali) Test(ctx context.Context) (string, error) {
	return m.goContainer().
		WithExec([]string{"go", "test", "-race", "./..."}).
		Stdout(ctx)
}
