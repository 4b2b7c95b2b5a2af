package dotdir

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

const sessionFile = "session.json"

// SessionState is what `mali chat` remembers between runs: who is talking
// and where replies should be generated.
type SessionState struct {
	Identity       string `json:"identity,omitempty"`
	Privileged     bool   `json:"privileged,omitempty"`
	Persona        string `json:"persona,omitempty"`
	RemoteEndpoint string `json:"remote_endpoint,omitempty"`
	MuteAudio      bool   `json:"mute_audio,omitempty"`
}

// LoadSession reads session.json. A missing file yields nil, nil.
func (m *Manager) LoadSession(overrideDir string) (*SessionState, error) {
	dir, err := m.Target(overrideDir)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filepath.Join(dir, sessionFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading session state: %w", err)
	}

	state := &SessionState{}
	if err := json.Unmarshal(data, state); err != nil {
		return nil, fmt.Errorf("parsing session state: %w", err)
	}
	return state, nil
}

// SaveSession writes session.json.
func (m *Manager) SaveSession(state *SessionState, overrideDir string) error {
	if state == nil {
		return errors.New("cannot save nil session state")
	}

	dir, err := m.Target(overrideDir)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling session state: %w", err)
	}

	if err := os.WriteFile(filepath.Join(dir, sessionFile), data, 0o600); err != nil {
		return fmt.Errorf("writing session state: %w", err)
	}
	return nil
}

// ClearSession removes session.json. Missing files are not an error.
func (m *Manager) ClearSession(overrideDir string) error {
	dir, err := m.Target(overrideDir)
	if err != nil {
		return err
	}

	if err := os.Remove(filepath.Join(dir, sessionFile)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing session state: %w", err)
	}
	return nil
}
