// Package eventbus is the in-process publish/subscribe fabric that
// fans inbound, planner, queue, and scheduler notifications out to any
// number of handlers, isolating their failures from each other and
// from the publisher.
package eventbus

import (
	"context"
	"sync"

	"github.com/hearthai/hearth/internal/observability"
	"github.com/hearthai/hearth/pkg/models"
)

// Handler reacts to one published Event. A Handler that returns an
// error is logged and counted; the error never propagates to the
// publisher and never stops sibling handlers from running.
type Handler func(ctx context.Context, event models.Event) error

// handlerEntry pairs a registered Handler with an opaque token so it
// can be found again for Unsubscribe without relying on Go's
// uncomparable function values.
type handlerEntry struct {
	token   int64
	handler Handler
}

// kindQueue serialises delivery for one event kind so that handlers
// observe per-kind FIFO order per publisher, as required by the bus's
// ordering contract; across kinds there is no ordering guarantee.
type kindQueue struct {
	mu       sync.Mutex
	handlers []handlerEntry
}

// Bus is a process-wide multi-producer, multi-consumer fan-out over
// the closed set of event kinds in models.EventKind.
type Bus struct {
	log *observability.Logger

	mu     sync.RWMutex
	queues map[models.EventKind]*kindQueue
	nextID int64

	failures   map[models.EventKind]int64
	failuresMu sync.Mutex

	// publishing tracks, per goroutine-free kind, whether a publish of
	// that kind is already unwinding through handler dispatch. It is
	// used only to support the cycle-break rule for log-kind events.
	inLogHandler bool
	inLogMu      sync.Mutex
}

// New creates an empty Bus.
func New(log *observability.Logger) *Bus {
	return &Bus{
		log:      log,
		queues:   make(map[models.EventKind]*kindQueue),
		failures: make(map[models.EventKind]int64),
	}
}

// Subscribe registers handler for kind and returns a token that
// Unsubscribe accepts. Subscribing is safe to call concurrently with
// Publish; a handler registered mid-publish is not guaranteed to see
// that particular in-flight publish.
func (b *Bus) Subscribe(kind models.EventKind, handler Handler) int64 {
	b.mu.Lock()
	q, ok := b.queues[kind]
	if !ok {
		q = &kindQueue{}
		b.queues[kind] = q
	}
	b.nextID++
	token := b.nextID
	b.mu.Unlock()

	q.mu.Lock()
	q.handlers = append(q.handlers, handlerEntry{token: token, handler: handler})
	q.mu.Unlock()
	return token
}

// Unsubscribe deregisters the handler identified by token for kind.
// An in-flight invocation of that handler completes; it is simply not
// invoked again afterwards.
func (b *Bus) Unsubscribe(kind models.EventKind, token int64) {
	b.mu.RLock()
	q, ok := b.queues[kind]
	b.mu.RUnlock()
	if !ok {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, e := range q.handlers {
		if e.token == token {
			q.handlers = append(q.handlers[:i], q.handlers[i+1:]...)
			return
		}
	}
}

// Publish fans event out to every handler subscribed to event.Kind.
// It returns once every handler for that kind has run (sequentially,
// per the fault-isolation contract); it does not wait for anything
// beyond that — in particular it never blocks on work a handler itself
// hands off asynchronously. A handler's error is logged and counted,
// never returned to the caller, and never prevents the remaining
// handlers from running.
func (b *Bus) Publish(ctx context.Context, event models.Event) {
	if models.IsLogKind(event.Kind) {
		b.inLogMu.Lock()
		alreadyInLogHandler := b.inLogHandler
		b.inLogMu.Unlock()
		if alreadyInLogHandler {
			// Cycle break: a log handler must never cause another
			// log-kind event to be published through the bus.
			return
		}
	}

	b.mu.RLock()
	q, ok := b.queues[event.Kind]
	b.mu.RUnlock()
	if !ok {
		return
	}

	q.mu.Lock()
	handlers := make([]handlerEntry, len(q.handlers))
	copy(handlers, q.handlers)
	q.mu.Unlock()

	isLog := models.IsLogKind(event.Kind)
	if isLog {
		b.inLogMu.Lock()
		b.inLogHandler = true
		b.inLogMu.Unlock()
		defer func() {
			b.inLogMu.Lock()
			b.inLogHandler = false
			b.inLogMu.Unlock()
		}()
	}

	for _, e := range handlers {
		b.invoke(ctx, event, e.handler)
	}
}

func (b *Bus) invoke(ctx context.Context, event models.Event, handler Handler) {
	defer func() {
		if r := recover(); r != nil {
			b.recordFailure(event.Kind)
			if b.log != nil {
				b.log.Error(ctx, "event handler panicked", "kind", event.Kind, "recover", r)
			}
		}
	}()
	if err := handler(ctx, event); err != nil {
		b.recordFailure(event.Kind)
		if b.log != nil {
			b.log.Warn(ctx, "event handler failed", "kind", event.Kind, "error", err)
		}
	}
}

func (b *Bus) recordFailure(kind models.EventKind) {
	b.failuresMu.Lock()
	b.failures[kind]++
	b.failuresMu.Unlock()
}

// FailureCount returns the number of handler failures recorded for
// kind since the bus was created, for diagnostics.
func (b *Bus) FailureCount(kind models.EventKind) int64 {
	b.failuresMu.Lock()
	defer b.failuresMu.Unlock()
	return b.failures[kind]
}
