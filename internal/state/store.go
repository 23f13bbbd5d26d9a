// Package state persists client preferences between runs.
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultProfile is the profile name used when none is given.
const DefaultProfile = "default"

// Preferences is what the client remembers about a profile between runs.
type Preferences struct {
	Profile        string    `json:"profile"`
	CurrentUser    string    `json:"current_user,omitempty"`
	LastModule     string    `json:"last_module,omitempty"`
	TicketsPerPage int       `json:"tickets_per_page,omitempty"`
	TicketPage     int       `json:"ticket_page,omitempty"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// FileStore persists preferences as JSON files under a base directory.
type FileStore struct {
	baseDir string
	now     func() time.Time
}

// NewFileStore creates a FileStore that saves preferences under baseDir.
func NewFileStore(baseDir string) *FileStore {
	return &FileStore{baseDir: baseDir, now: time.Now}
}

// Save writes prefs to <baseDir>/<profile>.json, replacing any previous file.
// An empty Profile is saved as DefaultProfile.
func (s *FileStore) Save(prefs Preferences) error {
	if prefs.Profile == "" {
		prefs.Profile = DefaultProfile
	}
	p, err := s.path(prefs.Profile)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(s.baseDir, 0o755); err != nil {
		return fmt.Errorf("state: creating directory: %w", err)
	}

	prefs.UpdatedAt = s.now().UTC()
	data, err := json.MarshalIndent(prefs, "", "  ")
	if err != nil {
		return fmt.Errorf("state: marshaling: %w", err)
	}

	tmp, err := os.CreateTemp(s.baseDir, prefs.Profile+".*.tmp")
	if err != nil {
		return fmt.Errorf("state: writing %s: %w", p, err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("state: writing %s: %w", p, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("state: writing %s: %w", p, err)
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		return fmt.Errorf("state: writing %s: %w", p, err)
	}
	return nil
}

// Load reads preferences for the given profile.
// Returns (prefs, true, nil) if found, (zero, false, nil) if not found.
func (s *FileStore) Load(profile string) (Preferences, bool, error) {
	if profile == "" {
		profile = DefaultProfile
	}
	p, err := s.path(profile)
	if err != nil {
		return Preferences{}, false, err
	}

	data, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Preferences{}, false, nil
		}
		return Preferences{}, false, fmt.Errorf("state: reading %s: %w", p, err)
	}

	var prefs Preferences
	if err := json.Unmarshal(data, &prefs); err != nil {
		return Preferences{}, false, fmt.Errorf("state: parsing %s: %w", p, err)
	}
	return prefs, true, nil
}

// Update loads the profile's preferences, applies fn, and saves the result.
// A missing file starts from zero preferences.
func (s *FileStore) Update(profile string, fn func(*Preferences)) error {
	prefs, _, err := s.Load(profile)
	if err != nil {
		return err
	}
	prefs.Profile = profile
	fn(&prefs)
	return s.Save(prefs)
}

// Remove deletes the preferences file for the given profile.
func (s *FileStore) Remove(profile string) error {
	p, err := s.path(profile)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("state: removing %s: %w", p, err)
	}
	return nil
}

// ErrInvalidID indicates a profile name is empty or contains path traversal components.
var ErrInvalidID = errors.New("state: invalid profile name")

// path returns the filesystem path for a profile's file.
// It rejects names that are empty, dot-segments, or contain path separators.
func (s *FileStore) path(id string) (string, error) {
	if id == "" || id == "." || id == ".." || id != filepath.Base(id) {
		return "", fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return filepath.Join(s.baseDir, id+".json"), nil
}
