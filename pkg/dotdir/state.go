package dotdir

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	stateFile = "rebuild.json"
)

// RebuildState records the outcome of the last successful rebuild. Commands
// that query the store read it to tell an empty database apart from one that
// was never built.
type RebuildState struct {
	// CompletedAt is when the rebuild finished.
	CompletedAt time.Time `json:"completed_at"`

	// Movies, Ratings, and Profiles are the record counts written.
	Movies   int `json:"movies"`
	Ratings  int `json:"ratings"`
	Profiles int `json:"profiles"`
}

// LoadRebuildState loads the state from a target .reel/rebuild.json.
// Returns nil, nil if no rebuild has ever completed.
// If overrideDir is non-empty, it is used instead of the default ~/.reel/ location.
func (m *Manager) LoadRebuildState(overrideDir string) (*RebuildState, error) {
	dir, err := m.Target(overrideDir)
	if err != nil {
		return nil, err
	}

	path := filepath.Join(dir, stateFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading rebuild state: %w", err)
	}

	state := &RebuildState{}
	if err := json.Unmarshal(data, state); err != nil {
		return nil, fmt.Errorf("parsing rebuild state: %w", err)
	}

	return state, nil
}

// SaveRebuildState persists the state to a target .reel/rebuild.json.
func (m *Manager) SaveRebuildState(state *RebuildState, overrideDir string) error {
	if state == nil {
		return errors.New("cannot save nil rebuild state")
	}

	dir, err := m.Target(overrideDir)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling rebuild state: %w", err)
	}

	path := filepath.Join(dir, stateFile)
	if err := os.WriteFile(path, data, 0o644); err != nil { //nolint:gosec
		return fmt.Errorf("writing rebuild state: %w", err)
	}

	return nil
}

// ClearRebuildState removes the state file. Returns nil if the file doesn't
// exist (already cleared).
func (m *Manager) ClearRebuildState(overrideDir string) error {
	dir, err := m.Target(overrideDir)
	if err != nil {
		return err
	}

	path := filepath.Join(dir, stateFile)
	if err := os.Remove(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("removing rebuild state: %w", err)
	}

	return nil
}
