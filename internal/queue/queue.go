// Package queue implements the two-level priority message queue feeding the
// background worker. Foreground input enqueues at high priority, background
// input at low priority. High-priority work always drains first; within a
// level, messages leave in FIFO order.
package queue

import (
	"context"
	"sync"
	"time"
)

// Priority orders messages in the queue.
type Priority int

const (
	// PriorityHigh is used for input to the foreground session.
	PriorityHigh Priority = iota
	// PriorityLow is used for input to background sessions.
	PriorityLow
)

func (p Priority) String() string {
	if p == PriorityHigh {
		return "high"
	}
	return "low"
}

// Message is one unit of work for the worker.
type Message struct {
	SessionID string
	Text      string
	Priority  Priority
	// ResumePrefix carries a previously streamed partial response when a
	// preempted message is re-enqueued. The worker prepends it silently.
	ResumePrefix string
	EnqueuedAt   time.Time
}

// Queue is a two-level priority FIFO safe for concurrent use.
// It tracks the message currently being processed so preemption checks can
// compare its priority against waiting work.
type Queue struct {
	mu         sync.Mutex
	cond       *sync.Cond
	high       []Message
	low        []Message
	processing *Message
	closed     bool
}

// New creates an empty queue.
func New() *Queue {
	q := &Queue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Enqueue adds a message at its priority level.
func (q *Queue) Enqueue(msg Message) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if msg.EnqueuedAt.IsZero() {
		msg.EnqueuedAt = time.Now()
	}
	if msg.Priority == PriorityHigh {
		q.high = append(q.high, msg)
	} else {
		q.low = append(q.low, msg)
	}
	q.cond.Broadcast()
}

// Dequeue removes the next message without blocking. The returned message
// is marked as processing until Finish is called.
func (q *Queue) Dequeue() (Message, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dequeueLocked()
}

func (q *Queue) dequeueLocked() (Message, bool) {
	var msg Message
	switch {
	case len(q.high) > 0:
		msg = q.high[0]
		q.high = q.high[1:]
	case len(q.low) > 0:
		msg = q.low[0]
		q.low = q.low[1:]
	default:
		return Message{}, false
	}
	m := msg
	q.processing = &m
	return msg, true
}

// DequeueWait blocks until a message is available or the context is
// cancelled.
func (q *Queue) DequeueWait(ctx context.Context) (Message, bool) {
	// Wake the waiter when the context is cancelled.
	stop := context.AfterFunc(ctx, func() {
		q.mu.Lock()
		q.cond.Broadcast()
		q.mu.Unlock()
	})
	defer stop()

	q.mu.Lock()
	defer q.mu.Unlock()
	for {
		if msg, ok := q.dequeueLocked(); ok {
			return msg, true
		}
		if q.closed || ctx.Err() != nil {
			return Message{}, false
		}
		q.cond.Wait()
	}
}

// Finish clears the processing marker set by Dequeue.
func (q *Queue) Finish() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.processing = nil
}

// ShouldPreempt reports whether the in-flight message should yield: true
// only when a low-priority message is being processed and high-priority
// work is waiting.
func (q *Queue) ShouldPreempt() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.processing != nil && q.processing.Priority == PriorityLow && len(q.high) > 0
}

// Processing returns a copy of the message currently being processed.
func (q *Queue) Processing() (Message, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.processing == nil {
		return Message{}, false
	}
	return *q.processing, true
}

// Len returns the number of queued messages, not counting one in flight.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.high) + len(q.low)
}

// HighLen returns the number of queued high-priority messages.
func (q *Queue) HighLen() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.high)
}

// DiscardSession drops all queued messages for a session, returning how
// many were removed. Used when a session terminates.
func (q *Queue) DiscardSession(sessionID string) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	removed := 0
	filter := func(msgs []Message) []Message {
		kept := msgs[:0]
		for _, m := range msgs {
			if m.SessionID == sessionID {
				removed++
				continue
			}
			kept = append(kept, m)
		}
		return kept
	}
	q.high = filter(q.high)
	q.low = filter(q.low)
	return removed
}

// Close wakes all waiters; subsequent DequeueWait calls return immediately
// once the queue drains.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.cond.Broadcast()
}
