package coordinator

import (
	"context"

	"github.com/braidhq/braid/internal/errors"
	"github.com/braidhq/braid/internal/logger"
	"github.com/braidhq/braid/internal/notify"
	"github.com/braidhq/braid/internal/session"
)

// Terminate ends a session. Archive keeps its workspace; CompleteAndMerge
// merges the workspace branch into its target first and fails - leaving
// the session live - if the merge cannot proceed cleanly.
//
// cleanupConfirmed additionally removes the workspace after a successful
// merge; cleanup never happens without it.
func (c *Coordinator) Terminate(ctx context.Context, id string, mode TerminateMode, cleanupConfirmed bool) error {
	const op = errors.Op("coordinator.Terminate")

	c.mu.Lock()
	meta, ok := c.sessions[id]
	if !ok {
		c.mu.Unlock()
		return errors.SessionNotFound(id)
	}
	binding := c.bindings[id]
	c.mu.Unlock()

	// Stop any in-flight or queued work before touching the workspace
	discarded := c.queue.DiscardSession(id)
	if discarded > 0 {
		logger.Debug("Coordinator: discarded %d queued message(s) for %s", discarded, id)
	}
	c.worker.CancelSession(id)

	switch mode {
	case TerminateArchive:
		meta.Status = session.StatusArchived

	case TerminateCompleteAndMerge:
		if binding == nil {
			return errors.E(op, errors.KindPrecondition, "session has no workspace to merge")
		}
		if err := c.workspaces.PrepareMerge(ctx, binding); err != nil {
			return err
		}
		conflicts, err := c.workspaces.DetectConflicts(ctx, binding)
		if err != nil {
			return err
		}
		if len(conflicts) > 0 {
			return errors.MergeConflicts(binding.Branch, conflicts)
		}
		if err := c.workspaces.Merge(ctx, binding); err != nil {
			return err
		}
		meta.Status = session.StatusCompleted

		if c.cfg.GetNotificationsEnabled() {
			notify.MergeComplete(meta.Name)
		}

	default:
		return errors.E(op, errors.KindInvalid, "unknown terminate mode")
	}

	meta.Stream = nil
	meta.Touch()
	if err := c.store.Save(meta); err != nil {
		return err
	}

	if c.archive != nil {
		if err := c.archive.ArchiveSession(meta); err != nil {
			logger.Warn("Coordinator: failed to archive session %s: %v", id, err)
		}
	}

	if mode == TerminateCompleteAndMerge && cleanupConfirmed && binding != nil {
		if err := c.workspaces.Cleanup(ctx, binding, meta.Status, true); err != nil {
			logger.Warn("Coordinator: workspace cleanup failed for %s: %v", id, err)
		}
	}

	c.mu.Lock()
	delete(c.sessions, id)
	delete(c.bindings, id)
	delete(c.pending, id)
	if c.foreground == id {
		c.foreground = ""
	}
	c.mu.Unlock()

	c.worker.Unsubscribe(id)
	logger.Info("Coordinator: session %s terminated mode=%s", id, mode)
	return nil
}
