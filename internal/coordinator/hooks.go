package coordinator

import (
	"time"

	"github.com/braidhq/braid/internal/logger"
	"github.com/braidhq/braid/internal/notify"
	"github.com/braidhq/braid/internal/session"
)

// The coordinator implements worker.Hooks: the worker reports stream
// outcomes here and all resulting metadata writes happen on the worker
// goroutine, outside the registry lock.

// OnPartial persists a preempted stream so the message resumes later with
// the partial text as a silent prefix. The session stays pending: its
// re-enqueued message is still the one response in flight.
func (c *Coordinator) OnPartial(sessionID, message, partial string) {
	c.mu.Lock()
	meta, ok := c.sessions[sessionID]
	if !ok {
		c.mu.Unlock()
		return
	}
	meta.Stream = &session.StreamState{
		Message:         message,
		PartialResponse: partial,
		InterruptedAt:   time.Now().UTC(),
	}
	meta.Touch()
	c.mu.Unlock()

	if err := c.store.Save(meta); err != nil {
		logger.Error("Coordinator: failed to persist partial response for %s: %v", sessionID, err)
	}
}

// OnComplete records a finished response: stream state cleared, message
// count bumped, response archived, and a desktop notification sent when
// the session is not foreground.
func (c *Coordinator) OnComplete(sessionID, message, response string) {
	c.mu.Lock()
	meta, ok := c.sessions[sessionID]
	if !ok {
		c.mu.Unlock()
		return
	}
	meta.Stream = nil
	meta.MessageCount++
	meta.Touch()
	seq := meta.MessageCount
	name := meta.Name
	foreground := c.foreground == sessionID
	delete(c.pending, sessionID)
	c.mu.Unlock()

	if err := c.store.Save(meta); err != nil {
		logger.Error("Coordinator: failed to persist completion for %s: %v", sessionID, err)
	}

	if c.archive != nil {
		if err := c.archive.ArchiveSession(meta); err != nil {
			logger.Warn("Coordinator: failed to index session %s: %v", sessionID, err)
		} else if err := c.archive.AddResponse(sessionID, seq, response); err != nil {
			logger.Warn("Coordinator: failed to archive response for %s: %v", sessionID, err)
		}
	}

	if !foreground && c.cfg.GetNotificationsEnabled() {
		notify.ResponseComplete(name)
	}
}

// OnError discards any partial state for a failed stream. Only preemption
// persists partial text; errors throw it away.
func (c *Coordinator) OnError(sessionID string, err error) {
	c.mu.Lock()
	meta, ok := c.sessions[sessionID]
	if !ok {
		c.mu.Unlock()
		return
	}
	meta.Stream = nil
	delete(c.pending, sessionID)
	c.mu.Unlock()

	if saveErr := c.store.Save(meta); saveErr != nil {
		logger.Error("Coordinator: failed to persist error state for %s: %v", sessionID, saveErr)
	}
}
