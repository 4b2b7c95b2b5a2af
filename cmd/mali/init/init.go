// Package initcmder provides the init command for initializing a local .mali
// directory in the current working directory.
package initcmder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/nontawat9304/mali-chat/pkg/config"
)

const (
	dirName    = ".mali"
	configFile = "config.toml"

	fetchTimeout = 10 * time.Second
)

const initLongDesc string = `Initialize a new .mali/ directory in the current working directory.

Creates a local .mali/ directory that takes precedence over the default
~/.mali/ directory for configuration, the persona file, trained sources,
memory segments and synthesized audio.

A config.toml with default values is written when none exists. --preset
replaces it with a named preset (cloud, local, ollama) or with a config.toml
fetched from an http(s) URL.

Examples:
  mali init
  mali init --preset ollama
  mali init --preset https://example.com/mali/config.toml`

const initShortDesc string = "Initialize a local .mali/ directory"

func NewInitCmd() *cobra.Command {
	var preset string

	cmd := &cobra.Command{
		Use:   "init",
		Short: initShortDesc,
		Long:  initLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runInit(cmd.Context(), cmd.OutOrStdout(), preset)
		},
	}

	cmd.Flags().StringVar(&preset, "preset", "", "Preset name ("+strings.Join(config.ValidPresetNames(), ", ")+") or config.toml URL")

	return cmd
}

func runInit(ctx context.Context, w io.Writer, preset string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting current directory: %w", err)
	}
	dir := filepath.Join(cwd, dirName)

	// Resolve the preset before touching disk so a bad one leaves no trace.
	var raw []byte
	if preset != "" {
		raw, err = presetTOML(ctx, preset)
		if err != nil {
			return err
		}
	}

	info, err := os.Stat(dir)
	existed := err == nil && info.IsDir()
	if !existed {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating .mali directory: %w", err)
		}
	}

	target := filepath.Join(dir, configFile)
	if raw == nil {
		if _, err := os.Stat(target); err == nil {
			fmt.Fprintf(w, "Already initialized: %s\n", dir)
			return nil
		}
		raw, err = encode(config.NewDefaultConfig())
		if err != nil {
			return err
		}
	}

	if err := os.WriteFile(target, raw, 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	if existed {
		fmt.Fprintf(w, "Updated config in %s\n", dir)
	} else {
		fmt.Fprintf(w, "Initialized .mali directory: %s\n", dir)
	}
	return nil
}

// presetTOML returns config.toml contents for a preset name or URL.
func presetTOML(ctx context.Context, preset string) ([]byte, error) {
	if strings.HasPrefix(preset, "http://") || strings.HasPrefix(preset, "https://") {
		raw, err := fetch(ctx, preset)
		if err != nil {
			return nil, fmt.Errorf("fetching remote config: %w", err)
		}
		if _, err := config.ParseConfigTOML(raw); err != nil {
			return nil, err
		}
		return raw, nil
	}

	cfg, err := config.PresetConfig(preset)
	if err != nil {
		return nil, err
	}
	return encode(cfg)
}

func fetch(ctx context.Context, url string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, 1<<20))
}

func encode(cfg *config.Config) ([]byte, error) {
	if cfg == nil {
		return nil, errors.New("no config to write")
	}
	return config.EncodeTOML(cfg)
}
