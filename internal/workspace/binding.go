package workspace

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/braidhq/braid/internal/errors"
)

// bindingDirName is the engine's directory inside each worktree.
const bindingDirName = ".braid"

// bindingFileName holds the workspace binding inside the worktree.
const bindingFileName = "workspace.json"

// BindingPath returns the binding file location for a worktree.
func BindingPath(worktreePath string) string {
	return filepath.Join(worktreePath, bindingDirName, bindingFileName)
}

// PersistBinding writes the binding into its worktree atomically.
func (m *Manager) PersistBinding(b *Binding) error {
	const op = errors.Op("workspace.PersistBinding")

	dir := filepath.Join(b.Path, bindingDirName)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.E(op, errors.KindIO, fmt.Sprintf("failed to create %s", dir), err)
	}

	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return errors.E(op, errors.KindIO, "failed to marshal binding", err)
	}

	tmp, err := os.CreateTemp(dir, bindingFileName+".tmp-*")
	if err != nil {
		return errors.E(op, errors.KindIO, "failed to create temp file", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return errors.E(op, errors.KindIO, "failed to write binding", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return errors.E(op, errors.KindIO, "failed to close temp file", err)
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		os.Remove(tmpPath)
		return errors.E(op, errors.KindIO, "failed to set permissions", err)
	}

	if err := os.Rename(tmpPath, BindingPath(b.Path)); err != nil {
		os.Remove(tmpPath)
		return errors.E(op, errors.KindIO, fmt.Sprintf("failed to replace %s", BindingPath(b.Path)), err)
	}
	return nil
}

// LoadBinding reads a worktree's binding file. Missing files return a
// NotFound error; unreadable or unparseable files return a Corrupt error
// carrying the file path.
func (m *Manager) LoadBinding(worktreePath string) (*Binding, error) {
	const op = errors.Op("workspace.LoadBinding")
	path := BindingPath(worktreePath)

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, errors.E(op, errors.KindNotFound, fmt.Sprintf("no workspace binding at %s", path))
	}
	if err != nil {
		return nil, errors.E(op, errors.KindCorrupt, fmt.Sprintf("binding file %s is unreadable", path), err)
	}

	var b Binding
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, errors.E(op, errors.KindCorrupt, fmt.Sprintf("binding file %s is corrupt", path), err)
	}
	if b.Path == "" || b.Branch == "" || b.RepoRoot == "" {
		return nil, errors.E(op, errors.KindCorrupt, fmt.Sprintf("binding file %s is missing required fields", path))
	}
	return &b, nil
}
