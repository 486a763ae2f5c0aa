// Package coordinator owns the session registry and the foreground
// pointer. Every session mutation - creation, switching, input, stream
// outcomes, termination - flows through here, so metadata writes are
// serialized and the registry lock is never held across git or filesystem
// I/O.
package coordinator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/braidhq/braid/internal/config"
	"github.com/braidhq/braid/internal/errors"
	"github.com/braidhq/braid/internal/history"
	"github.com/braidhq/braid/internal/logger"
	"github.com/braidhq/braid/internal/queue"
	"github.com/braidhq/braid/internal/session"
	"github.com/braidhq/braid/internal/stream"
	"github.com/braidhq/braid/internal/worker"
	"github.com/braidhq/braid/internal/workspace"
)

// TerminateMode selects what happens to a session's work on termination.
type TerminateMode string

const (
	// TerminateArchive keeps the workspace and archives the session.
	TerminateArchive TerminateMode = "archive"
	// TerminateCompleteAndMerge merges the workspace branch back into its
	// target, then marks the session completed.
	TerminateCompleteAndMerge TerminateMode = "complete-and-merge"
)

// CreateRequest describes a new session.
type CreateRequest struct {
	Name     string
	RepoPath string // Empty for sessions without a workspace
	Strategy workspace.Strategy
	// ExistingPath is the worktree to bind when the strategy is
	// use-existing.
	ExistingPath string
}

// Info pairs session metadata with its registry state.
type Info struct {
	Meta       *session.Metadata
	Foreground bool
}

// Coordinator wires the store, queue, worker, and workspace manager into
// one engine.
type Coordinator struct {
	store      *session.Store
	queue      *queue.Queue
	worker     *worker.Worker
	workspaces *workspace.Manager
	cfg        *config.Config
	archive    *history.Store // optional

	mu         sync.Mutex
	sessions   map[string]*session.Metadata
	bindings   map[string]*workspace.Binding
	foreground string
	reserved   map[string]bool // names being created, not yet registered
	pending    map[string]bool // sessions with a message queued or in flight
}

// New creates a coordinator. The archive store may be nil.
func New(store *session.Store, wsManager *workspace.Manager, streamer stream.Streamer, cfg *config.Config, archive *history.Store) *Coordinator {
	c := &Coordinator{
		store:      store,
		queue:      queue.New(),
		workspaces: wsManager,
		cfg:        cfg,
		archive:    archive,
		sessions:   make(map[string]*session.Metadata),
		bindings:   make(map[string]*workspace.Binding),
		reserved:   make(map[string]bool),
		pending:    make(map[string]bool),
	}
	c.worker = worker.New(c.queue, streamer, c)
	return c
}

// Start restores live sessions from the store and launches the worker.
// Interrupted streams are silently re-enqueued so they resume without any
// caller involvement.
func (c *Coordinator) Start(ctx context.Context) error {
	sessions, corrupt, err := c.store.List()
	if err != nil {
		return err
	}
	for _, entry := range corrupt {
		logger.Warn("Coordinator: ignoring corrupt session %s: %v", entry.ID, entry.Err)
	}

	c.mu.Lock()
	for _, m := range sessions {
		if m.Status.IsTerminal() {
			continue
		}
		c.sessions[m.ID] = m
		if m.Status == session.StatusActive {
			if c.foreground == "" {
				c.foreground = m.ID
			} else {
				// Two actives can only come from a crash mid-switch; demote
				m.Status = session.StatusBackground
			}
		}
	}
	live := make([]*session.Metadata, 0, len(c.sessions))
	for _, m := range c.sessions {
		live = append(live, m)
	}
	c.mu.Unlock()

	for _, m := range live {
		if m.Workspace != nil {
			binding, err := c.workspaces.LoadBinding(m.Workspace.Path)
			if err != nil {
				logger.Warn("Coordinator: session %s workspace binding unavailable: %v", m.ID, err)
			} else {
				c.mu.Lock()
				c.bindings[m.ID] = binding
				c.mu.Unlock()
			}
		}
		if m.Stream != nil {
			logger.Info("Coordinator: resuming interrupted stream for session %s", m.ID)
			c.mu.Lock()
			c.pending[m.ID] = true
			fg := c.foreground == m.ID
			c.mu.Unlock()
			prio := queue.PriorityLow
			if fg {
				prio = queue.PriorityHigh
			}
			c.queue.Enqueue(queue.Message{
				SessionID:    m.ID,
				Text:         m.Stream.Message,
				Priority:     prio,
				ResumePrefix: m.Stream.PartialResponse,
			})
		}
	}

	c.worker.Start(ctx)
	return nil
}

// Stop shuts the worker down.
func (c *Coordinator) Stop() {
	c.worker.Stop()
}

// Events returns the worker event channel for a session.
func (c *Coordinator) Events(sessionID string) <-chan worker.Event {
	return c.worker.Subscribe(sessionID)
}

// Foreground returns the foreground session ID, or empty if none.
func (c *Coordinator) Foreground() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.foreground
}

// ErrWorkspaceDecisionRequired is returned by CreateSession when the
// resolved strategy is Ask: the caller must decide and retry with an
// explicit strategy.
var ErrWorkspaceDecisionRequired = errors.E(errors.Op("coordinator.CreateSession"), errors.KindPrecondition, "workspace strategy is 'ask': choose create, use-existing, or never")

// CreateSession registers a new session. The first session created becomes
// foreground. Duplicate names are conflicts; the configured session limit
// is enforced before any workspace work happens.
func (c *Coordinator) CreateSession(ctx context.Context, req CreateRequest) (*session.Metadata, error) {
	const op = errors.Op("coordinator.CreateSession")

	if err := session.ValidateName(req.Name); err != nil {
		return nil, errors.E(op, errors.KindInvalid, err.Error())
	}

	// Reserve the name so concurrent creates cannot race past the
	// duplicate check while the workspace is being built.
	c.mu.Lock()
	if c.nameInUseLocked(req.Name) || c.reserved[req.Name] {
		c.mu.Unlock()
		return nil, errors.SessionNameTaken(req.Name)
	}
	if len(c.sessions) >= c.cfg.GetMaxActiveSessions() {
		c.mu.Unlock()
		return nil, errors.SessionLimitReached(c.cfg.GetMaxActiveSessions())
	}
	c.reserved[req.Name] = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.reserved, req.Name)
		c.mu.Unlock()
	}()

	id := uuid.New().String()
	now := time.Now().UTC()
	meta := &session.Metadata{
		Version:    session.CurrentVersion,
		ID:         id,
		Name:       req.Name,
		Status:     session.StatusBackground,
		CreatedAt:  now,
		LastActive: now,
	}

	var binding *workspace.Binding
	if req.RepoPath != "" {
		strategy, err := c.resolveStrategy(req)
		if err != nil {
			return nil, err
		}

		switch strategy {
		case workspace.StrategyAsk:
			return nil, ErrWorkspaceDecisionRequired
		case workspace.StrategyNever:
			// No workspace
		case workspace.StrategyUseExisting:
			binding, err = c.workspaces.UseExisting(ctx, req.RepoPath, id, req.ExistingPath)
			if err != nil {
				return nil, err
			}
		default:
			binding, err = c.workspaces.Create(ctx, req.RepoPath, id, req.Name)
			if err != nil {
				return nil, err
			}
		}
		if binding != nil {
			c.applyRepoMergeTarget(binding)
			meta.Workspace = binding.Ref()
		}
	}

	if err := c.store.Save(meta); err != nil {
		if binding != nil && binding.Temporary {
			if cerr := c.workspaces.Cleanup(ctx, binding, session.StatusArchived, true); cerr != nil {
				logger.Warn("Coordinator: failed to clean up workspace after save failure: %v", cerr)
			}
		}
		return nil, err
	}

	c.mu.Lock()
	c.sessions[id] = meta
	if binding != nil {
		c.bindings[id] = binding
	}
	becameForeground := c.foreground == ""
	if becameForeground {
		c.foreground = id
		meta.Status = session.StatusActive
	}
	c.mu.Unlock()

	if becameForeground {
		if err := c.store.Save(meta); err != nil {
			logger.Warn("Coordinator: failed to persist foreground status for %s: %v", id, err)
		}
	}

	logger.Info("Coordinator: session created id=%s name=%s foreground=%v", id, req.Name, becameForeground)
	return meta, nil
}

func (c *Coordinator) nameInUseLocked(name string) bool {
	for _, m := range c.sessions {
		if m.Name == name {
			return true
		}
	}
	return false
}

func (c *Coordinator) resolveStrategy(req CreateRequest) (workspace.Strategy, error) {
	settings, err := config.LoadRepoSettings(req.RepoPath)
	if err != nil {
		return "", errors.E(errors.Op("coordinator.CreateSession"), errors.KindConfig, err.Error())
	}
	return workspace.ResolveStrategy(req.Strategy, workspace.Strategy(settings.WorkspaceStrategy)), nil
}

func (c *Coordinator) applyRepoMergeTarget(binding *workspace.Binding) {
	settings, err := config.LoadRepoSettings(binding.RepoRoot)
	if err != nil {
		logger.Warn("Coordinator: ignoring repo settings: %v", err)
		return
	}
	if settings.MergeTarget != "" {
		binding.MergeTarget = settings.MergeTarget
		if err := c.workspaces.PersistBinding(binding); err != nil {
			logger.Warn("Coordinator: failed to persist merge target override: %v", err)
		}
	}
}

// SwitchTo makes the given session foreground. The previous foreground
// session keeps running in the background.
func (c *Coordinator) SwitchTo(ctx context.Context, id string) error {
	c.mu.Lock()
	meta, ok := c.sessions[id]
	if !ok {
		c.mu.Unlock()
		return errors.SessionNotFound(id)
	}
	if c.foreground == id {
		c.mu.Unlock()
		return nil
	}

	var prev *session.Metadata
	if c.foreground != "" {
		if p, ok := c.sessions[c.foreground]; ok {
			p.Status = session.StatusBackground
			prev = p
		}
	}
	c.foreground = id
	meta.Status = session.StatusActive
	meta.Touch()
	c.mu.Unlock()

	if prev != nil {
		if err := c.store.Save(prev); err != nil {
			logger.Warn("Coordinator: failed to persist background status for %s: %v", prev.ID, err)
		}
	}
	if err := c.store.Save(meta); err != nil {
		return err
	}

	logger.Info("Coordinator: foreground switched to %s", id)
	return nil
}

// SubmitInput enqueues a message for a session. Foreground input gets high
// priority, background input low. A session has at most one response in
// flight; submitting while one is pending is a conflict.
func (c *Coordinator) SubmitInput(ctx context.Context, id, text string) error {
	const op = errors.Op("coordinator.SubmitInput")

	c.mu.Lock()
	meta, ok := c.sessions[id]
	if !ok {
		c.mu.Unlock()
		return errors.SessionNotFound(id)
	}
	if c.pending[id] {
		c.mu.Unlock()
		return errors.E(op, errors.KindConflict, fmt.Sprintf("session %s already has a response in flight", id))
	}
	c.pending[id] = true

	prio := queue.PriorityLow
	if c.foreground == id {
		prio = queue.PriorityHigh
	}
	if meta.FirstMessage == "" {
		meta.FirstMessage = truncate(text, 200)
	}
	meta.Touch()
	c.mu.Unlock()

	if err := c.store.Save(meta); err != nil {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return err
	}

	c.queue.Enqueue(queue.Message{
		SessionID: id,
		Text:      text,
		Priority:  prio,
	})
	logger.Debug("Coordinator: input enqueued session=%s priority=%s", id, prio.String())
	return nil
}

// ListSessions returns all sessions known to the store, most recently
// active first, with the foreground flagged. Corrupt metadata files are
// reported alongside the valid entries.
func (c *Coordinator) ListSessions(ctx context.Context) ([]Info, []session.CorruptEntry, error) {
	sessions, corrupt, err := c.store.List()
	if err != nil {
		return nil, nil, err
	}

	c.mu.Lock()
	fg := c.foreground
	c.mu.Unlock()

	infos := make([]Info, 0, len(sessions))
	for _, m := range sessions {
		infos = append(infos, Info{Meta: m, Foreground: m.ID == fg})
	}
	return infos, corrupt, nil
}

// Get returns a session's metadata from the registry.
func (c *Coordinator) Get(id string) (*session.Metadata, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	meta, ok := c.sessions[id]
	if !ok {
		return nil, errors.SessionNotFound(id)
	}
	return meta, nil
}

// DetectConflicts dry-runs the merge for a session's workspace.
func (c *Coordinator) DetectConflicts(ctx context.Context, b *workspace.Binding) ([]string, error) {
	return c.workspaces.DetectConflicts(ctx, b)
}

// Binding returns the workspace binding for a session, if it has one.
func (c *Coordinator) Binding(id string) (*workspace.Binding, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.bindings[id]
	return b, ok
}

// truncate shortens s to at most n bytes.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
