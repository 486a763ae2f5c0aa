// Package session defines session metadata and its on-disk store.
//
// Each session is persisted as a single JSON document at
// <root>/<id>/metadata.json. Writes are atomic (temp file + rename) so a
// crash mid-write never leaves a half-written document behind. Reads
// distinguish missing files from corrupt ones: a corrupt file is reported
// with its path and never aborts a scan of the remaining sessions.
package session

import (
	"fmt"
	"regexp"
	"time"
)

// CurrentVersion is the metadata schema version written by this release.
const CurrentVersion = 1

// Status is the lifecycle state of a session.
type Status string

const (
	// StatusActive is the session currently holding the foreground.
	StatusActive Status = "active"
	// StatusBackground is a live session without the foreground.
	StatusBackground Status = "background"
	// StatusArchived is a terminated session kept for history.
	StatusArchived Status = "archived"
	// StatusCompleted is a terminated session whose work was merged back.
	StatusCompleted Status = "completed"
)

// IsTerminal reports whether the session has finished its lifecycle.
func (s Status) IsTerminal() bool {
	return s == StatusArchived || s == StatusCompleted
}

func (s Status) valid() bool {
	switch s {
	case StatusActive, StatusBackground, StatusArchived, StatusCompleted:
		return true
	}
	return false
}

// WorkspaceRef links a session to its git worktree workspace.
type WorkspaceRef struct {
	Path        string `json:"path"`
	Branch      string `json:"branch"`
	RepoRoot    string `json:"repo_root"`
	MergeTarget string `json:"merge_target,omitempty"`
	Temporary   bool   `json:"temporary,omitempty"` // Created by the engine; removable on cleanup
}

// StreamState captures an interrupted response so it can be resumed.
// PartialResponse holds the text streamed before preemption; Message is the
// original input that produced it.
type StreamState struct {
	Message         string    `json:"message"`
	PartialResponse string    `json:"partial_response"`
	InterruptedAt   time.Time `json:"interrupted_at"`
}

// Metadata is the persistent record of one session.
type Metadata struct {
	Version      int               `json:"version"`
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	Status       Status            `json:"status"`
	CreatedAt    time.Time         `json:"created_at"`
	LastActive   time.Time         `json:"last_active"`
	FirstMessage string            `json:"first_message,omitempty"`
	MessageCount int               `json:"message_count"`
	Workspace    *WorkspaceRef     `json:"workspace,omitempty"`
	Stream       *StreamState      `json:"stream,omitempty"`
	CustomFields map[string]string `json:"custom_fields,omitempty"`
}

// Touch updates the last-active timestamp.
func (m *Metadata) Touch() {
	m.LastActive = time.Now().UTC()
}

// validNameRegex matches session names: alphanumeric, dash, underscore.
var validNameRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// MaxNameLength is the maximum length for session names.
const MaxNameLength = 100

// ValidateName checks that a session name is acceptable: 1-100 characters,
// alphanumeric plus dash and underscore.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("session name cannot be empty")
	}
	if len(name) > MaxNameLength {
		return fmt.Errorf("session name too long (max %d characters)", MaxNameLength)
	}
	if !validNameRegex.MatchString(name) {
		return fmt.Errorf("session name contains invalid characters (use letters, numbers, -, _)")
	}
	return nil
}

// validate checks structural invariants after load.
func (m *Metadata) validate() error {
	if m.ID == "" {
		return fmt.Errorf("metadata has empty session ID")
	}
	if !m.Status.valid() {
		return fmt.Errorf("metadata has unknown status %q", m.Status)
	}
	if m.Version > CurrentVersion {
		return fmt.Errorf("metadata version %d is newer than supported version %d", m.Version, CurrentVersion)
	}
	return nil
}

// migrate upgrades older metadata documents in place.
// Version 0 documents predate the version field; they get the current
// version and default to archived status so stale sessions never resurrect
// as live ones.
func (m *Metadata) migrate() {
	if m.Version == 0 {
		m.Version = CurrentVersion
		if m.Status == "" {
			m.Status = StatusArchived
		}
	}
}
