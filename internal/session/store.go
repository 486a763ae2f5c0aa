package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/braidhq/braid/internal/errors"
	"github.com/braidhq/braid/internal/logger"
)

const metadataFileName = "metadata.json"

// Store persists session metadata under a root directory, one
// subdirectory per session.
type Store struct {
	root string
}

// DefaultRoot returns the default store location, ~/.braid/sessions.
func DefaultRoot() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".braid", "sessions"), nil
}

// NewStore creates a store rooted at dir. The directory is created if
// missing.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.E(errors.Op("session.NewStore"), errors.KindIO, fmt.Sprintf("failed to create store directory %s", dir), err)
	}
	return &Store{root: dir}, nil
}

// Root returns the store's root directory.
func (s *Store) Root() string {
	return s.root
}

func (s *Store) metadataPath(id string) string {
	return filepath.Join(s.root, id, metadataFileName)
}

// Save writes metadata atomically: marshal to a temp file in the session
// directory, then rename over the final path.
func (s *Store) Save(m *Metadata) error {
	const op = errors.Op("session.Save")

	if m.ID == "" {
		return errors.E(op, errors.KindInvalid, "metadata has empty session ID")
	}

	dir := filepath.Join(s.root, m.ID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.E(op, errors.KindIO, fmt.Sprintf("failed to create session directory %s", dir), err)
	}

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return errors.E(op, errors.KindIO, "failed to marshal metadata", err)
	}

	tmp, err := os.CreateTemp(dir, metadataFileName+".tmp-*")
	if err != nil {
		return errors.E(op, errors.KindIO, "failed to create temp file", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return errors.E(op, errors.KindIO, "failed to write metadata", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return errors.E(op, errors.KindIO, "failed to close temp file", err)
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		os.Remove(tmpPath)
		return errors.E(op, errors.KindIO, "failed to set permissions", err)
	}

	if err := os.Rename(tmpPath, s.metadataPath(m.ID)); err != nil {
		os.Remove(tmpPath)
		return errors.E(op, errors.KindIO, fmt.Sprintf("failed to replace %s", s.metadataPath(m.ID)), err)
	}
	return nil
}

// Load reads the metadata for a session. Missing files return a NotFound
// error; unreadable or unparseable files return a Corrupt error carrying
// the file path.
func (s *Store) Load(id string) (*Metadata, error) {
	path := s.metadataPath(id)

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, errors.SessionNotFound(id)
	}
	if err != nil {
		return nil, errors.MetadataCorrupt(path, err)
	}

	var m Metadata
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, errors.MetadataCorrupt(path, err)
	}

	m.migrate()
	if err := m.validate(); err != nil {
		return nil, errors.MetadataCorrupt(path, err)
	}
	return &m, nil
}

// Delete removes a session's directory and everything in it.
func (s *Store) Delete(id string) error {
	if err := os.RemoveAll(filepath.Join(s.root, id)); err != nil {
		return errors.E(errors.Op("session.Delete"), errors.KindIO, fmt.Sprintf("failed to delete session %s", id), err)
	}
	return nil
}

// CorruptEntry reports one metadata file that could not be loaded during a
// scan.
type CorruptEntry struct {
	ID   string
	Path string
	Err  error
}

// List loads all sessions in the store, sorted by last-active descending.
// Corrupt entries are collected and returned alongside the valid sessions
// so one bad file never hides the rest.
func (s *Store) List() ([]*Metadata, []CorruptEntry, error) {
	entries, err := os.ReadDir(s.root)
	if os.IsNotExist(err) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, errors.E(errors.Op("session.List"), errors.KindIO, fmt.Sprintf("failed to read store directory %s", s.root), err)
	}

	var sessions []*Metadata
	var corrupt []CorruptEntry
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		id := entry.Name()
		m, err := s.Load(id)
		if err != nil {
			if errors.Is(err, errors.KindNotFound) {
				// Directory without a metadata file; skip silently
				continue
			}
			logger.Warn("Session: skipping corrupt metadata for %s: %v", id, err)
			corrupt = append(corrupt, CorruptEntry{ID: id, Path: s.metadataPath(id), Err: err})
			continue
		}
		sessions = append(sessions, m)
	}

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].LastActive.After(sessions[j].LastActive)
	})
	return sessions, corrupt, nil
}
