// Package eventbus provides the in-process pub/sub backbone of the
// automation engine: pattern subscriptions, a bounded queue with
// dead-lettering, and failure-isolated concurrent handler dispatch.
package eventbus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrBusNotRunning is returned by Publish before Start or after Stop.
	ErrBusNotRunning = errors.New("event bus not running")

	// ErrEventDeadLettered signals that the queue did not accept the event
	// within the publish timeout and it was routed to the dead-letter queue.
	// Publishers should treat this as a warning, not a failure.
	ErrEventDeadLettered = errors.New("event routed to dead-letter queue")
)

// AutomationEvent is an ephemeral message on the bus. Events are owned by
// the queue until dispatched, then passed by reference to each handler.
type AutomationEvent struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Payload   map[string]any `json:"payload,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// NewEvent builds an event with a fresh id and timestamp.
func NewEvent(eventType string, payload map[string]any) AutomationEvent {
	return AutomationEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	}
}

// Handler consumes one event. Errors and timeouts are counted and logged by
// the bus; they never affect sibling handlers.
type Handler func(ctx context.Context, event AutomationEvent) error

// Config bounds the bus. Zero values fall back to the defaults below, with
// the exception of PublishTimeout, which may be explicitly negative to
// request a non-blocking publish.
type Config struct {
	QueueSize         int
	PublishTimeout    time.Duration
	HandlerTimeout    time.Duration
	DeadLetterRetries int
}

const (
	defaultQueueSize         = 1000
	defaultPublishTimeout    = 5 * time.Second
	defaultHandlerTimeout    = 30 * time.Second
	defaultDeadLetterRetries = 3
)

func (c Config) withDefaults() Config {
	if c.QueueSize <= 0 {
		c.QueueSize = defaultQueueSize
	}

	if c.PublishTimeout == 0 {
		c.PublishTimeout = defaultPublishTimeout
	}

	if c.HandlerTimeout <= 0 {
		c.HandlerTimeout = defaultHandlerTimeout
	}

	if c.DeadLetterRetries <= 0 {
		c.DeadLetterRetries = defaultDeadLetterRetries
	}

	return c
}

// Stats is a point-in-time snapshot of bus internals.
type Stats struct {
	QueueDepth       int
	DeadLetterDepth  int
	SubscriberCounts map[string]int
	EventCounts      map[string]int64
	ErrorCounts      map[string]int64
	Running          bool
}

type subscriber struct {
	key     uintptr
	handler Handler
}

// Bus is the in-process event bus. A single dispatcher goroutine pops
// events and fans each one out to all matching handlers concurrently.
type Bus struct {
	cfg    Config
	logger *slog.Logger

	queue  chan AutomationEvent
	stopCh chan struct{}
	doneCh chan struct{}

	mu          sync.RWMutex
	running     bool
	subscribers map[string][]subscriber
	deadLetters []AutomationEvent
	eventCounts map[string]int64
	errorCounts map[string]int64
}

// NewBus creates a stopped bus; call Start before publishing.
func NewBus(cfg Config, logger *slog.Logger) *Bus {
	cfg = cfg.withDefaults()

	return &Bus{
		cfg:         cfg,
		logger:      logger.With("module", "event_bus"),
		queue:       make(chan AutomationEvent, cfg.QueueSize),
		subscribers: make(map[string][]subscriber),
		eventCounts: make(map[string]int64),
		errorCounts: make(map[string]int64),
	}
}

// Subscribe registers a handler for a pattern: an exact event type, the
// lone wildcard "*", or a prefix wildcard like "workflow.*". Registering
// the same (pattern, handler) pair twice is a no-op.
func (b *Bus) Subscribe(pattern string, handler Handler) {
	key := handlerKey(handler)

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, sub := range b.subscribers[pattern] {
		if sub.key == key {
			return
		}
	}

	b.subscribers[pattern] = append(b.subscribers[pattern], subscriber{key: key, handler: handler})
	b.logger.Debug("Subscribed handler", "pattern", pattern)
}

// Unsubscribe removes a previously registered handler. Returns true when a
// registration was removed.
func (b *Bus) Unsubscribe(pattern string, handler Handler) bool {
	key := handlerKey(handler)

	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subscribers[pattern]
	for i, sub := range subs {
		if sub.key == key {
			b.subscribers[pattern] = append(subs[:i], subs[i+1:]...)
			if len(b.subscribers[pattern]) == 0 {
				delete(b.subscribers, pattern)
			}

			return true
		}
	}

	return false
}

// Publish enqueues the event. When the queue does not accept it within the
// publish timeout the event is dead-lettered and ErrEventDeadLettered is
// returned so the publisher is never blocked indefinitely.
func (b *Bus) Publish(event AutomationEvent) error {
	b.mu.RLock()
	running := b.running
	b.mu.RUnlock()

	if !running {
		return ErrBusNotRunning
	}

	if b.cfg.PublishTimeout < 0 {
		select {
		case b.queue <- event:
			b.countEvent(event.Type)

			return nil
		default:
			return b.deadLetter(event)
		}
	}

	timer := time.NewTimer(b.cfg.PublishTimeout)
	defer timer.Stop()

	select {
	case b.queue <- event:
		b.countEvent(event.Type)

		return nil
	case <-timer.C:
		b.logger.Warn("Event queue full", "event_id", event.ID, "event_type", event.Type)

		return b.deadLetter(event)
	}
}

// Start launches the dispatch loop. Starting a running bus is a no-op.
func (b *Bus) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.running {
		return nil
	}

	b.running = true
	b.stopCh = make(chan struct{})
	b.doneCh = make(chan struct{})

	go b.dispatch(ctx)

	b.logger.Info("Event bus started", "queue_size", b.cfg.QueueSize)

	return nil
}

// Stop halts the dispatcher and drains queued-but-undispatched events to the
// dead-letter queue so nothing is silently discarded.
func (b *Bus) Stop() error {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()

		return nil
	}

	b.running = false
	close(b.stopCh)
	done := b.doneCh
	b.mu.Unlock()

	<-done

	drained := 0

	for {
		select {
		case event := <-b.queue:
			_ = b.deadLetter(event)
			drained++
		default:
			b.logger.Info("Event bus stopped", "drained_to_dead_letter", drained)

			return nil
		}
	}
}

// RetryDeadLetters republishes up to the configured maximum of dead-lettered
// events, oldest first, stopping at the first republish failure. Returns the
// number republished.
func (b *Bus) RetryDeadLetters() int {
	retried := 0

	for retried < b.cfg.DeadLetterRetries {
		b.mu.Lock()
		if len(b.deadLetters) == 0 {
			b.mu.Unlock()

			break
		}

		event := b.deadLetters[0]
		b.deadLetters = b.deadLetters[1:]
		b.mu.Unlock()

		if err := b.Publish(event); err != nil {
			b.logger.Warn("Dead letter retry failed", "event_id", event.ID, "error", err)

			// A full queue re-records the event through deadLetter; any
			// other failure must put it back so nothing is discarded.
			if !errors.Is(err, ErrEventDeadLettered) {
				b.mu.Lock()
				b.deadLetters = append([]AutomationEvent{event}, b.deadLetters...)
				b.mu.Unlock()
			}

			break
		}

		retried++
	}

	return retried
}

// Stats returns a snapshot of queue depths, subscriber counts, and
// cumulative per-type counters.
func (b *Bus) Stats() Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	subscriberCounts := make(map[string]int, len(b.subscribers))
	for pattern, subs := range b.subscribers {
		subscriberCounts[pattern] = len(subs)
	}

	eventCounts := make(map[string]int64, len(b.eventCounts))
	for k, v := range b.eventCounts {
		eventCounts[k] = v
	}

	errorCounts := make(map[string]int64, len(b.errorCounts))
	for k, v := range b.errorCounts {
		errorCounts[k] = v
	}

	return Stats{
		QueueDepth:       len(b.queue),
		DeadLetterDepth:  len(b.deadLetters),
		SubscriberCounts: subscriberCounts,
		EventCounts:      eventCounts,
		ErrorCounts:      errorCounts,
		Running:          b.running,
	}
}

func (b *Bus) dispatch(ctx context.Context) {
	defer close(b.doneCh)

	for {
		select {
		case event := <-b.queue:
			b.dispatchEvent(ctx, event)
		case <-b.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// dispatchEvent fans one event out to the de-duplicated union of handlers
// across all matching patterns. Handlers run concurrently, each with its own
// timeout and error boundary.
func (b *Bus) dispatchEvent(ctx context.Context, event AutomationEvent) {
	handlers := b.matchingHandlers(event.Type)
	if len(handlers) == 0 {
		b.logger.Debug("No handlers for event", "event_type", event.Type)

		return
	}

	var wg sync.WaitGroup

	for _, handler := range handlers {
		wg.Add(1)

		go func(handler Handler) {
			defer wg.Done()

			if err := b.invokeHandler(ctx, handler, event); err != nil {
				b.countError(event.Type)
				b.logger.Error("Event handler failed",
					"event_id", event.ID,
					"event_type", event.Type,
					"error", err)
			}
		}(handler)
	}

	wg.Wait()
}

// invokeHandler runs one handler with its own timeout and panic boundary.
func (b *Bus) invokeHandler(ctx context.Context, handler Handler, event AutomationEvent) error {
	handlerCtx, cancel := context.WithTimeout(ctx, b.cfg.HandlerTimeout)
	defer cancel()

	errCh := make(chan error, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				errCh <- fmt.Errorf("handler panicked: %v", r)
			}
		}()

		errCh <- handler(handlerCtx, event)
	}()

	select {
	case err := <-errCh:
		return err
	case <-handlerCtx.Done():
		return fmt.Errorf("handler timed out after %s", b.cfg.HandlerTimeout)
	}
}

func (b *Bus) matchingHandlers(eventType string) []Handler {
	b.mu.RLock()
	defer b.mu.RUnlock()

	seen := make(map[uintptr]struct{})

	var handlers []Handler

	for pattern, subs := range b.subscribers {
		if !matchesPattern(eventType, pattern) {
			continue
		}

		for _, sub := range subs {
			if _, dup := seen[sub.key]; dup {
				continue
			}

			seen[sub.key] = struct{}{}
			handlers = append(handlers, sub.handler)
		}
	}

	return handlers
}

// matchesPattern reports whether an event type matches a subscription
// pattern: exact type, lone "*", or a prefix wildcard such as "task.*".
func matchesPattern(eventType, pattern string) bool {
	if pattern == "*" || pattern == eventType {
		return true
	}

	if i := strings.IndexByte(pattern, '*'); i >= 0 {
		return strings.HasPrefix(eventType, pattern[:i])
	}

	return false
}

func (b *Bus) deadLetter(event AutomationEvent) error {
	b.mu.Lock()
	b.deadLetters = append(b.deadLetters, event)
	b.mu.Unlock()

	b.logger.Warn("Moved event to dead-letter queue", "event_id", event.ID, "event_type", event.Type)

	return ErrEventDeadLettered
}

func (b *Bus) countEvent(eventType string) {
	b.mu.Lock()
	b.eventCounts[eventType]++
	b.mu.Unlock()
}

func (b *Bus) countError(eventType string) {
	b.mu.Lock()
	b.errorCounts[eventType]++
	b.mu.Unlock()
}

func handlerKey(handler Handler) uintptr {
	return reflect.ValueOf(handler).Pointer()
}
