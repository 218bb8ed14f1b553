// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

package eventbus

import (
	"cmp"
	"context"
	"log/slog"
	"reflect"
	"slices"
	"sync"

	"github.com/dotandev/eventaggregator/internal/errors"
	"github.com/dotandev/eventaggregator/internal/workerpool"
)

// Aggregator is a concurrency-safe registry of subscriptions keyed by event type.
// Multiple goroutines may call Publish, Subscribe and Unsubscribe simultaneously.
type Aggregator struct {
	mu sync.RWMutex
	// Each slice is sorted by priority and never modified after it is stored;
	// mutations replace it, so a slice read under the lock is a stable snapshot.
	subscriptions map[reflect.Type][]*Subscription
	mainThread    MainThreadContext

	logger        *slog.Logger
	observer      Observer
	scheduler     Scheduler
	ownsScheduler bool
}

// AggregatorOption configures New.
type AggregatorOption func(*Aggregator)

// WithLogger sets the logger that receives handler failures.
func WithLogger(logger *slog.Logger) AggregatorOption {
	return func(a *Aggregator) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithObserver installs tracing or metrics hooks.
func WithObserver(observer Observer) AggregatorOption {
	return func(a *Aggregator) {
		if observer != nil {
			a.observer = observer
		}
	}
}

// WithScheduler replaces the worker pool used for BackgroundThread handlers.
func WithScheduler(scheduler Scheduler) AggregatorOption {
	return func(a *Aggregator) {
		if !isNil(scheduler) {
			a.scheduler = scheduler
		}
	}
}

// WithMainThreadContext sets the main-thread context at construction time.
func WithMainThreadContext(ctx MainThreadContext) AggregatorOption {
	return func(a *Aggregator) {
		if !isNil(ctx) {
			a.mainThread = ctx
		}
	}
}

// New returns a ready-to-use Aggregator. Without WithScheduler, background
// handlers run on a worker pool sized to the number of CPUs.
func New(opts ...AggregatorOption) *Aggregator {
	a := &Aggregator{
		subscriptions: make(map[reflect.Type][]*Subscription),
		logger:        slog.Default(),
		observer:      nopObserver{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	if a.scheduler == nil {
		a.scheduler = workerpool.New(0, a.logger)
		a.ownsScheduler = true
	}
	return a
}

// SetMainThreadContext sets the context used by MainThread subscriptions.
// It must be called before the first such subscription is created.
func (a *Aggregator) SetMainThreadContext(ctx MainThreadContext) error {
	if isNil(ctx) {
		return errors.WrapInvalidArgument("context")
	}

	a.mu.Lock()
	a.mainThread = ctx
	a.mu.Unlock()
	return nil
}

// Subscribe registers handler for events of type T. Options are applied to
// DefaultOptions in order.
func Subscribe[T any](a *Aggregator, handler Handler[T], opts ...Option) (*Subscription, error) {
	options := DefaultOptions()
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&options); err != nil {
			return nil, err
		}
	}
	return SubscribeWithOptions(a, handler, options)
}

// SubscribeWithOptions registers handler for events of type T with explicit options.
func SubscribeWithOptions[T any](a *Aggregator, handler Handler[T], options Options) (*Subscription, error) {
	if a == nil {
		return nil, errors.WrapInvalidArgument("aggregator")
	}
	if handler == nil {
		return nil, errors.WrapInvalidArgument("handler")
	}
	if err := options.Validate(); err != nil {
		return nil, err
	}

	key := reflect.TypeFor[T]()
	if key.Kind() == reflect.Interface {
		if key.NumMethod() != 0 {
			return nil, errors.WrapInvalidOperation("events are routed by concrete type; " + key.String() + " never matches")
		}
		// any and Event both mean catch-all.
		key = eventType
		if options.threadTarget != PublisherThread {
			return nil, errors.WrapInvalidOperation("catch-all subscriptions must run on the publisher thread")
		}
	}

	a.mu.RLock()
	mainThread := a.mainThread
	a.mu.RUnlock()

	var sub *Subscription
	sub, err := NewSubscription(a.logger, handler, options, mainThread, a.scheduler, func() error {
		return a.remove(sub)
	})
	if err != nil {
		a.logger.Debug("subscription rejected",
			"code", errors.CodeEventSubscription,
			"event_type", key.String(),
			"error", err,
		)
		return nil, err
	}
	sub.eventType = key
	sub.observer = a.observer

	a.add(sub)
	return sub, nil
}

// Unsubscribe disposes sub, which removes it from the aggregator.
func (a *Aggregator) Unsubscribe(sub *Subscription) error {
	if sub == nil {
		return errors.WrapInvalidArgument("subscription")
	}
	return sub.Dispose()
}

// Publish sends event to every subscription of its dynamic type, then to the
// catch-all subscriptions, and returns the same value.
func Publish[T any](ctx context.Context, a *Aggregator, event T) (T, error) {
	if a == nil {
		return event, errors.WrapInvalidArgument("aggregator")
	}
	return event, a.Publish(ctx, event)
}

// Publish sends event to every subscription of its dynamic type, then to the
// catch-all subscriptions. PublisherThread handlers have finished when it
// returns; MainThread and BackgroundThread handlers have only been queued.
func (a *Aggregator) Publish(ctx context.Context, event any) error {
	if isNil(event) {
		return errors.WrapInvalidArgument("event")
	}

	t := reflect.TypeOf(event)
	ctx, end := a.observer.StartPublish(ctx, t)

	handled := a.dispatch(ctx, t, event)
	handled += a.dispatch(ctx, eventType, event)

	end(handled)
	return nil
}

func (a *Aggregator) dispatch(ctx context.Context, t reflect.Type, event any) int {
	a.mu.RLock()
	snapshot := a.subscriptions[t]
	a.mu.RUnlock()

	cancellable, _ := event.(CancellableEvent)

	handled := 0
	for _, sub := range snapshot {
		// Disposed while this dispatch was running.
		if sub.IsDisposed() {
			continue
		}
		if sub.options.ignoreCancelled && cancellable != nil && cancellable.Cancelled() {
			continue
		}

		if err := sub.Invoke(ctx, event); err != nil {
			a.logger.DebugContext(ctx, "subscription skipped during publish",
				"code", errors.CodeEventPublish,
				"event_type", t.String(),
				"subscription", sub.id.String(),
				"error", err,
			)
			continue
		}
		handled++
	}
	return handled
}

func (a *Aggregator) add(sub *Subscription) {
	a.mu.Lock()
	defer a.mu.Unlock()

	current := a.subscriptions[sub.eventType]
	next := make([]*Subscription, len(current), len(current)+1)
	copy(next, current)
	next = append(next, sub)
	slices.SortStableFunc(next, func(x, y *Subscription) int {
		return cmp.Compare(x.options.priority, y.options.priority)
	})

	a.subscriptions[sub.eventType] = next
}

func (a *Aggregator) remove(sub *Subscription) error {
	if sub.IsDisposed() {
		return errors.WrapDisposed("subscription " + sub.id.String() + " already removed")
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	current := a.subscriptions[sub.eventType]
	next := make([]*Subscription, 0, len(current))
	for _, s := range current {
		if s != sub {
			next = append(next, s)
		}
	}

	if len(next) == 0 {
		delete(a.subscriptions, sub.eventType)
		return nil
	}
	a.subscriptions[sub.eventType] = next
	return nil
}

// EventTypes returns the event types that currently have at least one subscriber.
func (a *Aggregator) EventTypes() []reflect.Type {
	a.mu.RLock()
	defer a.mu.RUnlock()

	types := make([]reflect.Type, 0, len(a.subscriptions))
	for t := range a.subscriptions {
		types = append(types, t)
	}
	return types
}

// SubscriberCount returns the number of active subscriptions for t.
// Use reflect.TypeFor[Event]() for the catch-all list.
func (a *Aggregator) SubscriberCount(t reflect.Type) int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.subscriptions[t])
}

// Close waits for queued background handlers. When the aggregator created its
// own worker pool, later background handlers are refused and Publish does not
// count them as handled.
func (a *Aggregator) Close() {
	if pool, ok := a.scheduler.(*workerpool.Pool); ok && a.ownsScheduler {
		pool.Close()
		return
	}
	if w, ok := a.scheduler.(interface{ Wait() }); ok {
		w.Wait()
	}
}
