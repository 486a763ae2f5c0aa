// Package worker runs the engine's single background worker goroutine. It
// drains the priority queue, streams one response at a time, and checks
// between chunks whether higher-priority work should preempt the stream.
//
// Preemption is cooperative and chunk-granular: a low-priority response in
// flight yields as soon as high-priority work arrives. The partial text is
// persisted through the hooks and the message is silently re-enqueued with
// the partial as a resume prefix, so the session eventually receives one
// seamless response.
package worker

import (
	"context"
	"strings"
	"sync"

	"github.com/braidhq/braid/internal/logger"
	"github.com/braidhq/braid/internal/queue"
	"github.com/braidhq/braid/internal/stream"
)

// EventType identifies a worker event.
type EventType int

const (
	// EventChunk is a fragment of streamed response text.
	EventChunk EventType = iota
	// EventToolUse reports a tool invocation during streaming.
	EventToolUse
	// EventComplete carries the full response text for a finished message.
	EventComplete
	// EventError reports a failed stream; any partial text was discarded.
	EventError
	// EventInterrupted reports a preempted stream; the partial text was
	// persisted and the message re-enqueued.
	EventInterrupted
)

// Event is delivered to a session's subscriber channel.
type Event struct {
	SessionID string
	Type      EventType
	Text      string // Chunk text, or full response for EventComplete
	ToolName  string
	Err       error
}

// Hooks let the coordinator persist stream outcomes. All calls happen on
// the worker goroutine, outside any worker lock.
type Hooks interface {
	// OnPartial persists a preempted response so it can resume later.
	OnPartial(sessionID, message, partial string)
	// OnComplete persists a finished response.
	OnComplete(sessionID, message, response string)
	// OnError records a failed stream. Partial text is already discarded.
	OnError(sessionID string, err error)
}

// eventBuffer bounds each subscriber channel. Slow consumers drop events
// rather than stall the worker.
const eventBuffer = 64

// Worker processes queued messages one at a time.
type Worker struct {
	queue    *queue.Queue
	streamer stream.Streamer
	hooks    Hooks

	mu          sync.RWMutex
	subscribers map[string]chan Event
	current     string             // session ID of the in-flight message
	cancelCur   context.CancelFunc // cancels the in-flight stream
	killed      bool               // in-flight stream cancelled by CancelSession

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// New creates a worker over the given queue and streamer.
func New(q *queue.Queue, s stream.Streamer, hooks Hooks) *Worker {
	return &Worker{
		queue:       q,
		streamer:    s,
		hooks:       hooks,
		subscribers: make(map[string]chan Event),
		done:        make(chan struct{}),
	}
}

// Start begins the worker goroutine.
func (w *Worker) Start(ctx context.Context) {
	w.ctx, w.cancel = context.WithCancel(ctx)
	go w.run()
}

// Stop requests shutdown and waits for the worker to finish.
func (w *Worker) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.queue.Close()
	<-w.done
}

// Subscribe returns the event channel for a session, creating it if
// needed.
func (w *Worker) Subscribe(sessionID string) <-chan Event {
	w.mu.Lock()
	defer w.mu.Unlock()
	ch, ok := w.subscribers[sessionID]
	if !ok {
		ch = make(chan Event, eventBuffer)
		w.subscribers[sessionID] = ch
	}
	return ch
}

// Unsubscribe removes and closes a session's event channel.
func (w *Worker) Unsubscribe(sessionID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if ch, ok := w.subscribers[sessionID]; ok {
		delete(w.subscribers, sessionID)
		close(ch)
	}
}

// CancelSession aborts the in-flight stream for a session, if any.
// The aborted message is treated as an error (partial text discarded),
// not as a preemption.
func (w *Worker) CancelSession(sessionID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.current == sessionID && w.cancelCur != nil {
		w.killed = true
		w.cancelCur()
	}
}

// Busy reports whether a message for the session is currently in flight.
func (w *Worker) Busy(sessionID string) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current == sessionID
}

func (w *Worker) emit(ev Event) {
	w.mu.RLock()
	ch, ok := w.subscribers[ev.SessionID]
	w.mu.RUnlock()
	if !ok {
		return
	}
	select {
	case ch <- ev:
	default:
		logger.Warn("Worker: dropping event for slow subscriber, session=%s type=%d", ev.SessionID, ev.Type)
	}
}

func (w *Worker) run() {
	defer w.once.Do(func() { close(w.done) })

	log := logger.ComponentLogger("Worker")
	log.Info("worker started")

	for {
		msg, ok := w.queue.DequeueWait(w.ctx)
		if !ok {
			log.Info("worker stopping")
			return
		}
		w.process(msg)
		w.queue.Finish()
	}
}

// process streams one response, polling for preemption between chunks.
func (w *Worker) process(msg queue.Message) {
	log := logger.WithSession(msg.SessionID)
	log.Debug("processing message", "priority", msg.Priority.String(), "resuming", msg.ResumePrefix != "")

	streamCtx, cancelStream := context.WithCancel(w.ctx)
	defer cancelStream()

	w.mu.Lock()
	w.current = msg.SessionID
	w.cancelCur = cancelStream
	w.killed = false
	w.mu.Unlock()
	defer func() {
		w.mu.Lock()
		w.current = ""
		w.cancelCur = nil
		w.mu.Unlock()
	}()

	ch, err := w.streamer.Stream(streamCtx, stream.Request{
		SessionID:       msg.SessionID,
		Message:         msg.Text,
		AssistantPrefix: msg.ResumePrefix,
	})
	if err != nil {
		log.Error("failed to open stream", "error", err)
		w.hooks.OnError(msg.SessionID, err)
		w.emit(Event{SessionID: msg.SessionID, Type: EventError, Err: err})
		return
	}

	var streamed strings.Builder
	for chunk := range ch {
		if chunk.Err != nil {
			w.mu.RLock()
			killed := w.killed
			w.mu.RUnlock()
			if killed || w.ctx.Err() != nil {
				log.Debug("stream cancelled", "error", chunk.Err)
			} else {
				log.Error("stream failed", "error", chunk.Err)
			}
			// Errors discard the partial; only preemption persists it
			w.hooks.OnError(msg.SessionID, chunk.Err)
			w.emit(Event{SessionID: msg.SessionID, Type: EventError, Err: chunk.Err})
			drain(ch)
			return
		}

		if chunk.Done {
			response := msg.ResumePrefix + streamed.String()
			log.Debug("response complete", "chars", len(response))
			w.hooks.OnComplete(msg.SessionID, msg.Text, response)
			w.emit(Event{SessionID: msg.SessionID, Type: EventComplete, Text: response})
			return
		}

		switch chunk.Type {
		case stream.ChunkTypeText:
			streamed.WriteString(chunk.Text)
			w.emit(Event{SessionID: msg.SessionID, Type: EventChunk, Text: chunk.Text})
		case stream.ChunkTypeToolUse:
			w.emit(Event{SessionID: msg.SessionID, Type: EventToolUse, ToolName: chunk.ToolName})
		}

		if msg.Priority == queue.PriorityLow && w.queue.ShouldPreempt() {
			partial := msg.ResumePrefix + streamed.String()
			log.Info("preempting low-priority stream", "chars", len(partial))
			cancelStream()
			drain(ch)

			w.hooks.OnPartial(msg.SessionID, msg.Text, partial)
			w.emit(Event{SessionID: msg.SessionID, Type: EventInterrupted})

			// Silent resumption: re-enqueue with the partial as prefix so
			// the eventual response reads as one uninterrupted stream.
			w.queue.Enqueue(queue.Message{
				SessionID:    msg.SessionID,
				Text:         msg.Text,
				Priority:     msg.Priority,
				ResumePrefix: partial,
			})
			return
		}
	}

	// Channel closed without a Done chunk; treat as completion
	response := msg.ResumePrefix + streamed.String()
	w.hooks.OnComplete(msg.SessionID, msg.Text, response)
	w.emit(Event{SessionID: msg.SessionID, Type: EventComplete, Text: response})
}

func drain(ch <-chan stream.Chunk) {
	for range ch {
	}
}
