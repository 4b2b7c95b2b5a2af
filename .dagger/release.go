package main

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"dagger/mali/internal/dagger"
)

// bucketRoot is the top-level prefix every mali artifact is stored under.
const bucketRoot = "mali"

// bucket holds the credentials for the S3-compatible artifact store.
type bucket struct {
	endpoint        *dagger.Secret
	name            *dagger.Secret
	accessKeyId     *dagger.Secret
	secretAccessKey *dagger.Secret
}

// Package builds the release binary and packs it as
// mali-<version>-linux-<arch>.tar.gz next to a sha256 checksum file.
func (m *Mali) Package(
	ctx context.Context,

	// Version string (e.g., "v1.0.0")
	version string,

	// Git commit SHA
	commit string,
) *dagger.Directory {
	bin := m.BuildRelease(ctx, version, commit)

	script := strings.Join([]string{
		`name="mali-${VERSION}-linux-$(uname -m)"`,
		`tar -czf "$name.tar.gz" -C linux mali`,
		`sha256sum "$name.tar.gz" > "$name.tar.gz.sha256"`,
		`rm -r linux`,
	}, " && ")

	return dag.Container().
		From("alpine:3.20").
		WithDirectory("/dist", bin).
		WithWorkdir("/dist").
		WithEnvVariable("VERSION", version).
		WithExec([]string{"sh", "-c", script}).
		Directory("/dist")
}

// upload copies artifacts to <bucketRoot>/<prefix>. When prune is set, files
// under the prefix that are not in artifacts are removed, which keeps moving
// prefixes like "latest" down to one build.
func (m *Mali) upload(ctx context.Context, b bucket, artifacts *dagger.Directory, prefix string, prune bool) error {
	bucketName, err := b.name.Plaintext(ctx)
	if err != nil {
		return fmt.Errorf("failed to get bucket name: %w", err)
	}

	endpointUrl, err := b.endpoint.Plaintext(ctx)
	if err != nil {
		return fmt.Errorf("failed to get endpoint: %w", err)
	}

	destination := "s3://" + path.Join(bucketName, bucketRoot, prefix)
	args := []string{"aws", "s3", "sync", ".", destination, "--endpoint-url", endpointUrl}
	if prune {
		args = append(args, "--delete")
	}

	_, err = dag.Container().
		From("amazon/aws-cli:latest").
		WithSecretVariable("AWS_ACCESS_KEY_ID", b.accessKeyId).
		WithSecretVariable("AWS_SECRET_ACCESS_KEY", b.secretAccessKey).
		WithEnvVariable("AWS_DEFAULT_REGION", "auto").
		WithDirectory("/artifacts", artifacts).
		WithWorkdir("/artifacts").
		WithExec(args).
		Sync(ctx)
	if err != nil {
		return fmt.Errorf("failed to upload artifacts to %s: %w", destination, err)
	}

	return nil
}

// Release packages a tagged build and uploads it to mali/releases/<version>
// and mali/releases/latest.
func (m *Mali) Release(
	ctx context.Context,

	// Version tag, must start with "v" (e.g., "v1.0.0")
	version string,

	// Git commit SHA
	commit string,

	// Bucket endpoint URL
	endpoint *dagger.Secret,

	// Bucket name
	bucketName *dagger.Secret,

	// Bucket access key ID
	accessKeyId *dagger.Secret,

	// Bucket secret access key
	secretAccessKey *dagger.Secret,
) (*dagger.Directory, error) {
	if !strings.HasPrefix(version, "v") {
		return nil, fmt.Errorf("release version %q must be a tag like v1.0.0", version)
	}

	b := bucket{endpoint: endpoint, name: bucketName, accessKeyId: accessKeyId, secretAccessKey: secretAccessKey}
	artifacts := m.Package(ctx, version, commit)

	if err := m.upload(ctx, b, artifacts, path.Join("releases", version), false); err != nil {
		return artifacts, err
	}
	if err := m.upload(ctx, b, artifacts, path.Join("releases", "latest"), true); err != nil {
		return artifacts, err
	}
	return artifacts, nil
}

// Nightly packages the current commit as nightly-<date>-<sha> and uploads it
// to mali/nightly/<date> and mali/nightly/latest.
func (m *Mali) Nightly(
	ctx context.Context,

	// Git commit SHA
	commit string,

	// Bucket endpoint URL
	endpoint *dagger.Secret,

	// Bucket name
	bucketName *dagger.Secret,

	// Bucket access key ID
	accessKeyId *dagger.Secret,

	// Bucket secret access key
	secretAccessKey *dagger.Secret,
) (*dagger.Directory, error) {
	date := time.Now().UTC().Format("2006-01-02")
	short := commit
	if len(short) > 7 {
		short = short[:7]
	}

	b := bucket{endpoint: endpoint, name: bucketName, accessKeyId: accessKeyId, secretAccessKey: secretAccessKey}
	artifacts := m.Package(ctx, fmt.Sprintf("nightly-%s-%s", date, short), commit)

	if err := m.upload(ctx, b, artifacts, path.Join("nightly", date), false); err != nil {
		return artifacts, err
	}
	if err := m.upload(ctx, b, artifacts, path.Join("nightly", "latest"), true); err != nil {
		return artifacts, err
	}
	return artifacts, nil
}
