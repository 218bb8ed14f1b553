// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

package eventbus

import (
	"context"
	"log/slog"
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/dotandev/eventaggregator/internal/errors"
)

// Handler handles one event. A returned error or a panic is logged and
// otherwise ignored.
type Handler[T any] func(ctx context.Context, event T) error

// MainThreadContext runs posted work on a single dedicated goroutine, such as
// a UI loop. Post must not block until fn has run.
type MainThreadContext interface {
	Post(fn func())
}

// Scheduler runs work asynchronously. Go must not block until fn has run.
type Scheduler interface {
	Go(fn func())
}

// Implementations that can refuse work (after shutdown) may also provide
// TryPost or TryGo returning false on refusal. Invoke then reports the
// handler as not run.
type (
	tryPoster interface{ TryPost(fn func()) bool }
	tryGoer   interface{ TryGo(fn func()) bool }
)

type goScheduler struct{}

func (goScheduler) Go(fn func()) { go fn() }

// Subscription binds a handler to an event type and execution options.
// It is created by Subscribe and stays registered until Dispose.
type Subscription struct {
	id        uuid.UUID
	eventType reflect.Type
	options   Options

	// bind type-checks an event and closes the handler over it.
	bind func(event any) (func(context.Context) error, bool)

	logger      *slog.Logger
	mainThread  MainThreadContext
	scheduler   Scheduler
	observer    Observer
	unsubscribe func() error

	disposeMu sync.Mutex
	disposed  atomic.Bool
}

// NewSubscription builds a subscription for event type T. unsubscribe is called
// once by Dispose and is expected to deregister the subscription.
//
// Data-changing event types are restricted to PublisherThread, and MainThread
// requires a non-nil mainThread context; both violations yield ErrInvalidOperation.
// A nil scheduler runs background handlers on fresh goroutines.
func NewSubscription[T any](
	logger *slog.Logger,
	handler Handler[T],
	options Options,
	mainThread MainThreadContext,
	scheduler Scheduler,
	unsubscribe func() error,
) (*Subscription, error) {
	if logger == nil {
		return nil, errors.WrapInvalidArgument("logger")
	}
	if handler == nil {
		return nil, errors.WrapInvalidArgument("handler")
	}
	if unsubscribe == nil {
		return nil, errors.WrapInvalidArgument("unsubscribe")
	}
	if err := options.Validate(); err != nil {
		return nil, err
	}
	if isNil(mainThread) {
		mainThread = nil
	}
	if isNil(scheduler) {
		scheduler = goScheduler{}
	}

	t := reflect.TypeFor[T]()
	if t.Implements(dataChangingType) && options.threadTarget != PublisherThread {
		return nil, errors.WrapInvalidOperation(t.String() + " changes data and must be handled on the publisher thread")
	}
	if options.threadTarget == MainThread && mainThread == nil {
		return nil, errors.WrapInvalidOperation("main thread context must be set before subscribing on the main thread")
	}

	return &Subscription{
		id:        uuid.New(),
		eventType: t,
		options:   options,
		bind: func(event any) (func(context.Context) error, bool) {
			e, ok := event.(T)
			if !ok {
				return nil, false
			}
			return func(ctx context.Context) error {
				return handler(ctx, e)
			}, true
		},
		logger:      logger,
		mainThread:  mainThread,
		scheduler:   scheduler,
		observer:    nopObserver{},
		unsubscribe: unsubscribe,
	}, nil
}

// ID returns the identity assigned at construction.
func (s *Subscription) ID() uuid.UUID { return s.id }

// EventType returns the registry key, reflect.TypeFor[Event]() for catch-all subscriptions.
func (s *Subscription) EventType() reflect.Type { return s.eventType }

// Options returns a copy of the subscription's options.
func (s *Subscription) Options() Options { return s.options }

// IsDisposed reports whether Dispose has succeeded.
func (s *Subscription) IsDisposed() bool { return s.disposed.Load() }

// Invoke runs the handler for event according to the thread target. Handler
// failures are logged, never returned; the returned error only reports misuse.
// MainThread and BackgroundThread handlers are queued and Invoke returns
// without waiting for them. If the context or scheduler refuses the work,
// Invoke returns ErrInvalidOperation.
func (s *Subscription) Invoke(ctx context.Context, event any) error {
	if s.IsDisposed() {
		return errors.WrapDisposed("cannot invoke subscription " + s.id.String())
	}
	if isNil(event) {
		return errors.WrapInvalidArgument("event")
	}

	run, ok := s.bind(event)
	if !ok {
		return errors.WrapTypeMismatch(s.eventType.String(), reflect.TypeOf(event).String())
	}

	switch s.options.threadTarget {
	case PublisherThread:
		s.execute(ctx, run)
	case MainThread:
		ctx = context.WithoutCancel(ctx)
		job := func() { s.execute(ctx, run) }
		if p, ok := s.mainThread.(tryPoster); ok {
			if !p.TryPost(job) {
				return errors.WrapInvalidOperation("main thread context refused subscription " + s.id.String())
			}
			return nil
		}
		s.mainThread.Post(job)
	case BackgroundThread:
		ctx = context.WithoutCancel(ctx)
		job := func() { s.execute(ctx, run) }
		if g, ok := s.scheduler.(tryGoer); ok {
			if !g.TryGo(job) {
				return errors.WrapInvalidOperation("scheduler refused subscription " + s.id.String())
			}
			return nil
		}
		s.scheduler.Go(job)
	default:
		return errors.WrapOutOfRange("threadTarget", int(s.options.threadTarget))
	}
	return nil
}

// Dispose deregisters the subscription. A second call returns ErrDisposed.
func (s *Subscription) Dispose() error {
	s.disposeMu.Lock()
	defer s.disposeMu.Unlock()

	if s.IsDisposed() {
		return errors.WrapDisposed("subscription " + s.id.String() + " already disposed")
	}
	if err := s.unsubscribe(); err != nil {
		return err
	}
	s.disposed.Store(true)
	return nil
}

func (s *Subscription) execute(ctx context.Context, run func(context.Context) error) {
	ctx, end := s.observer.StartInvoke(ctx, s)
	err := safeCall(ctx, run)
	end(err)

	if err != nil {
		s.logger.ErrorContext(ctx, "error during subscription execution",
			"code", errors.CodeSubscriptionExecution,
			"event_type", s.eventType.String(),
			"subscription", s.id.String(),
			"error", err,
		)
	}
}

func safeCall(ctx context.Context, run func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.WrapHandlerPanic(r)
		}
	}()

	if herr := run(ctx); herr != nil {
		return errors.WrapHandlerFailed(herr)
	}
	return nil
}
