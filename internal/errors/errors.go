// Package errors provides structured error types for the Braid engine.
// These errors provide context about what operation failed and where.
package errors

import (
	"errors"
	"fmt"
)

// Op describes an operation, usually as "package.function".
type Op string

// Kind categorizes the type of error.
type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindInvalid
	KindConflict
	KindPrecondition
	KindResourceLimit
	KindExternal
	KindCorrupt
	KindPermission
	KindIO
	KindConfig
	KindTimeout
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not found"
	case KindInvalid:
		return "invalid"
	case KindConflict:
		return "conflict"
	case KindPrecondition:
		return "precondition failed"
	case KindResourceLimit:
		return "resource limit reached"
	case KindExternal:
		return "external tool failure"
	case KindCorrupt:
		return "corrupt data"
	case KindPermission:
		return "permission denied"
	case KindIO:
		return "I/O error"
	case KindConfig:
		return "configuration error"
	case KindTimeout:
		return "timeout"
	default:
		return "unknown error"
	}
}

// Error is the structured error type for Braid.
type Error struct {
	Op      Op     // Operation that failed
	Kind    Kind   // Category of error
	Err     error  // Underlying error
	Context string // Additional context
}

// Error returns the error message.
func (e *Error) Error() string {
	if e.Context != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Context, e.Err)
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Err)
	}
	return e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// E creates a new Error. Arguments can be:
// - Op: the operation name
// - Kind: the error kind
// - string: context message
// - error: the underlying error
func E(args ...interface{}) error {
	e := &Error{}
	for _, arg := range args {
		switch a := arg.(type) {
		case Op:
			e.Op = a
		case Kind:
			e.Kind = a
		case string:
			e.Context = a
		case error:
			e.Err = a
		}
	}
	if e.Err == nil {
		e.Err = errors.New(e.Context)
		e.Context = ""
	}
	return e
}

// Is reports whether err is of the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// GetKind returns the Kind of an error.
func GetKind(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Session errors
func SessionNotFound(id string) error {
	return E(Op("coordinator.Get"), KindNotFound, fmt.Sprintf("session %s not found", id))
}

func SessionNameTaken(name string) error {
	return E(Op("coordinator.CreateSession"), KindConflict, fmt.Sprintf("session name %q already in use", name))
}

func SessionLimitReached(limit int) error {
	return E(Op("coordinator.CreateSession"), KindResourceLimit, fmt.Sprintf("maximum active sessions reached (%d)", limit))
}

// Metadata errors
func MetadataCorrupt(path string, err error) error {
	return E(Op("session.Load"), KindCorrupt, fmt.Sprintf("metadata file %s is corrupt", path), err)
}

// Workspace errors
func BranchExists(branch string) error {
	return E(Op("workspace.Create"), KindConflict, fmt.Sprintf("branch %s already exists", branch))
}

func WorkspaceExists(path string) error {
	return E(Op("workspace.Create"), KindConflict, fmt.Sprintf("workspace path %s already exists", path))
}

func UncommittedChanges(path string) error {
	return E(Op("workspace.PrepareMerge"), KindPrecondition, fmt.Sprintf("workspace %s has uncommitted changes", path))
}

func MergeConflicts(branch string, paths []string) error {
	return E(Op("workspace.Merge"), KindConflict, fmt.Sprintf("merging %s would conflict in %d file(s)", branch, len(paths)))
}

// Git errors
func GitNotRepo(path string) error {
	return E(Op("git.ValidateRepo"), KindInvalid, fmt.Sprintf("%s is not a git repository", path))
}

func GitFailed(op Op, detail string, err error) error {
	return E(op, KindExternal, detail, err)
}

// Config errors
func ConfigLoadFailed(path string, err error) error {
	return E(Op("config.Load"), KindConfig, fmt.Sprintf("failed to load config from %s", path), err)
}

func ConfigSaveFailed(path string, err error) error {
	return E(Op("config.Save"), KindConfig, fmt.Sprintf("failed to save config to %s", path), err)
}

func ConfigInvalid(reason string) error {
	return E(Op("config.Validate"), KindInvalid, reason)
}
