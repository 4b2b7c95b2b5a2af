package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"dagger/mali/internal/dagger"
)

// CheckModules fails when go.mod names another module, when "go mod tidy"
// would change go.mod or go.sum, or when a downloaded module does not match
// go.sum.
//
// +check
func (m *Mali) CheckModules(ctx context.Context) (string, error) {
	ctr := m.goContainer()

	mod, err := ctr.WithExec([]string{"go", "list", "-m"}).Stdout(ctx)
	if err != nil {
		return "", fmt.Errorf("could not read module path: %w", err)
	}
	if got := strings.TrimSpace(mod); got != modulePath {
		return "", fmt.Errorf("go.mod declares %q, want %q", got, modulePath)
	}

	out, err := ctr.
		WithExec([]string{"cp", "go.mod", "go.mod.HEAD"}).
		WithExec([]string{"cp", "go.sum", "go.sum.HEAD"}).
		WithExec([]string{"go", "mod", "tidy"}).
		WithExec([]string{"sh", "-c", "diff -u go.mod.HEAD go.mod && diff -u go.sum.HEAD go.sum"}).
		WithExec([]string{"go", "mod", "verify"}).
		Stdout(ctx)

	var e *dagger.ExecError
	if errors.As(err, &e) {
		return "", fmt.Errorf("mali modules are not clean: run 'go mod tidy' and commit go.mod and go.sum\n\n%s%s", e.Stdout, e.Stderr)
	} else if err != nil {
		return "", fmt.Errorf("unexpected error: %w", err)
	}

	return fmt.Sprintf("%s modules are tidy and verified: %s", modulePath, out), nil
}
