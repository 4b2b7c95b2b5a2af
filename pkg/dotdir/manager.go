// Package dotdir resolves the .mali/ state directory.
//
// Everything mali persists lives under one directory: config.toml, the
// persona file, the document store, per-scope index segments and rendered
// audio. Layout:
//
//	.mali/
//	  config.toml
//	  persona.txt
//	  data_store/<segment>/*.txt
//	  segments/<segment>/...
//	  static_audio/reply_<uuid>.mp3
package dotdir

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	// dirName is the name of the mali state directory.
	dirName = ".mali"

	PersonaFile  = "persona.txt"
	DataStoreDir = "data_store"
	SegmentsDir  = "segments"
	AudioDir     = "static_audio"
)

type Manager struct{}

func NewManager() *Manager {
	return &Manager{}
}

// Target returns the absolute path of the .mali/ directory, creating it if
// needed. Precedence:
//  1. overrideDir
//  2. ./.mali/ in the working directory
//  3. ~/.mali/
func (m *Manager) Target(overrideDir string) (string, error) {
	var dir string

	switch {
	case overrideDir != "":
		dir = overrideDir

	case m.localDirExists():
		cwd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("getting current directory: %w", err)
		}
		dir = filepath.Join(cwd, dirName)

	default:
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("getting home directory: %w", err)
		}
		dir = filepath.Join(home, dirName)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating mali directory %s: %w", dir, err)
	}

	return filepath.Abs(dir)
}

// Resolve joins elem onto target. Relative config values such as
// "data_store" are anchored at the state directory; absolute ones are
// returned unchanged.
func Resolve(target, elem string) string {
	if elem == "" || filepath.IsAbs(elem) {
		return elem
	}
	return filepath.Join(target, elem)
}

// Ensure resolves elem against target and creates it as a directory.
func Ensure(target, elem string) (string, error) {
	dir := Resolve(target, elem)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating %s: %w", dir, err)
	}
	return dir, nil
}

func (m *Manager) localDirExists() bool {
	cwd, err := os.Getwd()
	if err != nil {
		return false
	}

	info, err := os.Stat(filepath.Join(cwd, dirName))
	return err == nil && info.IsDir()
}
