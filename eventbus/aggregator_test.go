// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

package eventbus

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAggregator(t *testing.T, opts ...AggregatorOption) *Aggregator {
	t.Helper()
	logger, _ := newTestLogger()
	a := New(append([]AggregatorOption{WithLogger(logger)}, opts...)...)
	t.Cleanup(a.Close)
	return a
}

func TestPublish_PriorityOrder(t *testing.T) {
	a := newTestAggregator(t)
	ctx := context.Background()

	var order []int
	record := func(id int) Handler[*testEvent] {
		return func(context.Context, *testEvent) error {
			order = append(order, id)
			return nil
		}
	}

	// Subscribed out of order on purpose.
	_, err := Subscribe(a, record(5), WithPriority(PriorityHighest))
	require.NoError(t, err)
	_, err = Subscribe(a, record(1), WithPriority(PriorityLowest))
	require.NoError(t, err)
	_, err = Subscribe(a, record(6), WithPriority(PriorityMonitor))
	require.NoError(t, err)
	_, err = Subscribe(a, record(3), WithPriority(PriorityNormal))
	require.NoError(t, err)
	_, err = Subscribe(a, record(2), WithPriority(PriorityLow))
	require.NoError(t, err)
	_, err = Subscribe(a, record(4), WithPriority(PriorityHigh))
	require.NoError(t, err)

	_, err = Publish(ctx, a, &testEvent{})
	require.NoError(t, err)

	assert.Equal(t, []int{1, 2, 3, 4, 5, 6}, order)
}

func TestPublish_EqualPrioritiesKeepSubscriptionOrder(t *testing.T) {
	a := newTestAggregator(t)

	var order []string
	add := func(name string, p Priority) *Subscription {
		sub, err := Subscribe(a, func(context.Context, *testEvent) error {
			order = append(order, name)
			return nil
		}, WithPriority(p))
		require.NoError(t, err)
		return sub
	}

	add("n1", PriorityNormal)
	add("h1", PriorityHigh)
	n2 := add("n2", PriorityNormal)
	add("l1", PriorityLow)
	add("n3", PriorityNormal)
	add("h2", PriorityHigh)

	require.NoError(t, a.Publish(context.Background(), &testEvent{}))
	assert.Equal(t, []string{"l1", "n1", "n2", "n3", "h1", "h2"}, order)

	// Removal keeps the remaining order intact.
	require.NoError(t, n2.Dispose())
	order = nil
	require.NoError(t, a.Publish(context.Background(), &testEvent{}))
	assert.Equal(t, []string{"l1", "n1", "n3", "h1", "h2"}, order)
}

func TestPublish_HandlerFailureIsolation(t *testing.T) {
	logger, logs := newTestLogger()
	a := New(WithLogger(logger))
	defer a.Close()

	var first, third bool
	_, err := Subscribe(a, func(context.Context, *testEvent) error {
		first = true
		return nil
	}, WithPriority(PriorityLow))
	require.NoError(t, err)
	_, err = Subscribe(a, func(context.Context, *testEvent) error {
		panic("middle handler failed")
	})
	require.NoError(t, err)
	_, err = Subscribe(a, func(context.Context, *testEvent) error {
		third = true
		return errors.New("also failed, after doing its work")
	}, WithPriority(PriorityHigh))
	require.NoError(t, err)

	assert.NotPanics(t, func() {
		_, err = Publish(context.Background(), a, &testEvent{})
	})
	require.NoError(t, err)

	assert.True(t, first)
	assert.True(t, third)
	assert.Contains(t, logs.String(), "middle handler failed")
}

func TestPublish_IgnoreCancelledSkipsAfterCancel(t *testing.T) {
	a := newTestAggregator(t)

	var skipped, observed int
	_, err := Subscribe(a, func(_ context.Context, e *cancellableEvent) error {
		e.SetCancelled(true)
		return nil
	}, WithPriority(PriorityLow))
	require.NoError(t, err)

	_, err = Subscribe(a, func(context.Context, *cancellableEvent) error {
		skipped++
		return nil
	}, WithPriority(PriorityNormal), WithIgnoreCancelled(true))
	require.NoError(t, err)

	_, err = Subscribe(a, func(context.Context, *cancellableEvent) error {
		observed++
		return nil
	}, WithPriority(PriorityHigh), WithIgnoreCancelled(false))
	require.NoError(t, err)

	e, err := Publish(context.Background(), a, &cancellableEvent{})
	require.NoError(t, err)

	assert.True(t, e.Cancelled())
	assert.Equal(t, 0, skipped)
	assert.Equal(t, 1, observed)
}

func TestPublish_IgnoreCancelledRunsWhenNotCancelled(t *testing.T) {
	a := newTestAggregator(t)

	var calls int
	_, err := Subscribe(a, func(context.Context, *cancellableEvent) error {
		calls++
		return nil
	}, WithIgnoreCancelled(true))
	require.NoError(t, err)

	// Events that are not cancellable are never skipped.
	_, err = Subscribe(a, func(context.Context, *testEvent) error {
		calls++
		return nil
	}, WithIgnoreCancelled(true))
	require.NoError(t, err)

	require.NoError(t, a.Publish(context.Background(), &cancellableEvent{}))
	require.NoError(t, a.Publish(context.Background(), &testEvent{}))
	assert.Equal(t, 2, calls)
}

func TestPublish_HigherPriorityOverridesCancellation(t *testing.T) {
	a := newTestAggregator(t)

	_, err := Subscribe(a, func(_ context.Context, e *cancellableEvent) error {
		e.Calls = append(e.Calls, "low:cancel")
		e.SetCancelled(true)
		return nil
	}, WithPriority(PriorityLow))
	require.NoError(t, err)

	_, err = Subscribe(a, func(_ context.Context, e *cancellableEvent) error {
		e.Calls = append(e.Calls, "normal:skipped-if-cancelled")
		return nil
	}, WithPriority(PriorityNormal), WithIgnoreCancelled(true))
	require.NoError(t, err)

	opts, err := NewOptions(PriorityHighest, PublisherThread, false)
	require.NoError(t, err)
	_, err = SubscribeWithOptions(a, func(_ context.Context, e *cancellableEvent) error {
		e.Calls = append(e.Calls, "highest:uncancel")
		e.SetCancelled(false)
		return nil
	}, opts)
	require.NoError(t, err)

	_, err = Subscribe(a, func(_ context.Context, e *cancellableEvent) error {
		e.Calls = append(e.Calls, "monitor")
		return nil
	}, WithPriority(PriorityMonitor), WithIgnoreCancelled(true))
	require.NoError(t, err)

	e, err := Publish(context.Background(), a, &cancellableEvent{})
	require.NoError(t, err)

	assert.False(t, e.Cancelled())
	assert.Equal(t, []string{"low:cancel", "highest:uncancel", "monitor"}, e.Calls)
}

func TestPublish_DisposeRemovesFromDispatch(t *testing.T) {
	a := newTestAggregator(t)

	var count int
	sub, err := Subscribe(a, func(context.Context, *testEvent) error {
		count++
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, a.Publish(context.Background(), &testEvent{}))
	assert.Equal(t, 1, count)

	require.NoError(t, sub.Dispose())
	require.NoError(t, a.Publish(context.Background(), &testEvent{}))
	assert.Equal(t, 1, count)

	assert.Equal(t, 0, a.SubscriberCount(reflect.TypeFor[*testEvent]()))
}

func TestUnsubscribe(t *testing.T) {
	a := newTestAggregator(t)

	var count int
	sub, err := Subscribe(a, func(context.Context, *testEvent) error {
		count++
		return nil
	})
	require.NoError(t, err)

	require.ErrorIs(t, a.Unsubscribe(nil), ErrInvalidArgument)

	require.NoError(t, a.Unsubscribe(sub))
	assert.True(t, sub.IsDisposed())
	require.ErrorIs(t, a.Unsubscribe(sub), ErrDisposed)

	require.NoError(t, a.Publish(context.Background(), &testEvent{}))
	assert.Equal(t, 0, count)
}

func TestRemove_RejectsDisposedSubscription(t *testing.T) {
	a := newTestAggregator(t)

	sub, err := Subscribe(a, nopHandler[*testEvent])
	require.NoError(t, err)
	require.NoError(t, sub.Dispose())

	require.ErrorIs(t, a.remove(sub), ErrDisposed)
}

func TestPublish_TypeIsolation(t *testing.T) {
	a := newTestAggregator(t)

	var aCount, bCount int
	_, err := Subscribe(a, func(context.Context, *testEvent) error {
		aCount++
		return nil
	})
	require.NoError(t, err)
	_, err = Subscribe(a, func(context.Context, *otherEvent) error {
		bCount++
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, a.Publish(context.Background(), &otherEvent{}))
	require.NoError(t, a.Publish(context.Background(), &otherEvent{}))

	assert.Equal(t, 0, aCount)
	assert.Equal(t, 2, bCount)

	// Value and pointer types are distinct event types.
	require.NoError(t, a.Publish(context.Background(), testEvent{}))
	assert.Equal(t, 0, aCount)
}

func TestPublish_RoutesByDynamicType(t *testing.T) {
	a := newTestAggregator(t)

	var got *testEvent
	_, err := Subscribe(a, func(_ context.Context, e *testEvent) error {
		got = e
		return nil
	})
	require.NoError(t, err)

	var e Event = &testEvent{Value: 3}
	returned, err := Publish(context.Background(), a, e)
	require.NoError(t, err)

	assert.Same(t, e, returned)
	assert.Same(t, e.(*testEvent), got)
}

func TestPublish_ReturnsSameInstance(t *testing.T) {
	a := newTestAggregator(t)

	e := &testEvent{Value: 1}
	returned, err := Publish(context.Background(), a, e)
	require.NoError(t, err)
	assert.Same(t, e, returned)

	_, err = Subscribe(a, func(_ context.Context, ev *dataChangingEvent) error {
		ev.Amount *= 2
		return nil
	})
	require.NoError(t, err)

	dc := &dataChangingEvent{Amount: 21}
	out, err := Publish(context.Background(), a, dc)
	require.NoError(t, err)
	assert.Same(t, dc, out)
	assert.Equal(t, 42, out.Amount)
}

func TestPublish_NilEvent(t *testing.T) {
	a := newTestAggregator(t)

	require.ErrorIs(t, a.Publish(context.Background(), nil), ErrInvalidArgument)

	var nilEvent *testEvent
	_, err := Publish(context.Background(), a, nilEvent)
	require.ErrorIs(t, err, ErrInvalidArgument)

	_, err = Publish[*testEvent](context.Background(), nil, &testEvent{})
	require.ErrorIs(t, err, ErrInvalidArgument)
}

func TestSubscribe_DataChangingRejectsOtherThreads(t *testing.T) {
	a := newTestAggregator(t)
	require.NoError(t, a.SetMainThreadContext(&recordingContext{}))

	for _, target := range []ThreadTarget{MainThread, BackgroundThread} {
		_, err := Subscribe(a, nopHandler[*dataChangingEvent], WithThreadTarget(target))
		assert.ErrorIs(t, err, ErrInvalidOperation, "target %s", target)

		_, err = Subscribe(a, nopHandler[*cancellableEvent], WithThreadTarget(target))
		assert.ErrorIs(t, err, ErrInvalidOperation, "target %s", target)
	}

	assert.Empty(t, a.EventTypes())
}

func TestSubscribe_ArgumentValidation(t *testing.T) {
	a := newTestAggregator(t)

	_, err := Subscribe[*testEvent](a, nil)
	require.ErrorIs(t, err, ErrInvalidArgument)

	_, err = Subscribe(nil, nopHandler[*testEvent])
	require.ErrorIs(t, err, ErrInvalidArgument)

	_, err = Subscribe(a, nopHandler[*testEvent], WithPriority(Priority(-3)))
	require.ErrorIs(t, err, ErrOutOfRange)

	_, err = Subscribe(a, nopHandler[*testEvent], WithThreadTarget(ThreadTarget(17)))
	require.ErrorIs(t, err, ErrOutOfRange)

	_, err = SubscribeWithOptions(a, nopHandler[*testEvent], Options{threadTarget: 5})
	require.ErrorIs(t, err, ErrOutOfRange)

	_, err = Subscribe(a, nopHandler[*testEvent], nil)
	require.NoError(t, err)
}

func TestSubscribe_InterfaceTypes(t *testing.T) {
	a := newTestAggregator(t)

	_, err := Subscribe(a, nopHandler[CancellableEvent])
	require.ErrorIs(t, err, ErrInvalidOperation)

	_, err = Subscribe(a, nopHandler[Event], WithThreadTarget(BackgroundThread))
	require.ErrorIs(t, err, ErrInvalidOperation)
}

func TestSubscribe_MainThreadRequiresContext(t *testing.T) {
	a := newTestAggregator(t)

	_, err := Subscribe(a, nopHandler[*testEvent], WithThreadTarget(MainThread))
	require.ErrorIs(t, err, ErrInvalidOperation)

	require.ErrorIs(t, a.SetMainThreadContext(nil), ErrInvalidArgument)

	mainCtx := &recordingContext{}
	require.NoError(t, a.SetMainThreadContext(mainCtx))

	var calls int
	_, err = Subscribe(a, func(context.Context, *testEvent) error {
		calls++
		return nil
	}, WithThreadTarget(MainThread))
	require.NoError(t, err)

	require.NoError(t, a.Publish(context.Background(), &testEvent{}))
	assert.Equal(t, 1, mainCtx.PostCount())
	assert.Equal(t, 0, calls)

	mainCtx.Flush()
	assert.Equal(t, 1, calls)
}

func TestNew_WithMainThreadContext(t *testing.T) {
	a := newTestAggregator(t, WithMainThreadContext(&recordingContext{}))

	_, err := Subscribe(a, nopHandler[*testEvent], WithThreadTarget(MainThread))
	require.NoError(t, err)
}

func TestPublish_BackgroundDoesNotBlock(t *testing.T) {
	a := newTestAggregator(t)

	release := make(chan struct{})
	var done sync.WaitGroup
	done.Add(1)
	_, err := Subscribe(a, func(context.Context, *testEvent) error {
		defer done.Done()
		<-release
		return nil
	}, WithThreadTarget(BackgroundThread))
	require.NoError(t, err)

	require.NoError(t, a.Publish(context.Background(), &testEvent{}))

	close(release)
	done.Wait()
}

func TestPublish_BackgroundWithScheduler(t *testing.T) {
	sched := &recordingScheduler{}
	a := newTestAggregator(t, WithScheduler(sched))

	var calls int
	_, err := Subscribe(a, func(context.Context, *testEvent) error {
		calls++
		return nil
	}, WithThreadTarget(BackgroundThread))
	require.NoError(t, err)

	require.NoError(t, a.Publish(context.Background(), &testEvent{}))
	assert.Equal(t, 0, calls)
	assert.Equal(t, 1, sched.PostCount())

	sched.Flush()
	assert.Equal(t, 1, calls)
}

func TestClose_WaitsForBackgroundHandlers(t *testing.T) {
	logger, _ := newTestLogger()
	a := New(WithLogger(logger))

	var calls atomic.Int32
	_, err := Subscribe(a, func(context.Context, *testEvent) error {
		calls.Add(1)
		return nil
	}, WithThreadTarget(BackgroundThread))
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		require.NoError(t, a.Publish(context.Background(), &testEvent{}))
	}
	a.Close()

	assert.Equal(t, int32(20), calls.Load())
}

func TestPublish_SubscribeInsideHandler(t *testing.T) {
	a := newTestAggregator(t)

	var outer, inner int
	var once sync.Once
	_, err := Subscribe(a, func(context.Context, *testEvent) error {
		outer++
		once.Do(func() {
			_, err := Subscribe(a, func(context.Context, *testEvent) error {
				inner++
				return nil
			}, WithPriority(PriorityMonitor))
			require.NoError(t, err)
		})
		return nil
	}, WithPriority(PriorityLowest))
	require.NoError(t, err)

	require.NoError(t, a.Publish(context.Background(), &testEvent{}))
	assert.Equal(t, 1, outer)
	assert.Equal(t, 0, inner, "a subscription added during dispatch must wait for the next publish")

	require.NoError(t, a.Publish(context.Background(), &testEvent{}))
	assert.Equal(t, 2, outer)
	assert.Equal(t, 1, inner)
}

func TestPublish_UnsubscribeInsideHandler(t *testing.T) {
	a := newTestAggregator(t)

	var selfCalls, laterCalls int
	var later *Subscription

	var self *Subscription
	self, err := Subscribe(a, func(context.Context, *testEvent) error {
		selfCalls++
		require.NoError(t, self.Dispose())
		// Remove a subscription this dispatch has not reached yet.
		if later != nil && !later.IsDisposed() {
			require.NoError(t, later.Dispose())
		}
		return nil
	}, WithPriority(PriorityLow))
	require.NoError(t, err)

	later, err = Subscribe(a, func(context.Context, *testEvent) error {
		laterCalls++
		return nil
	}, WithPriority(PriorityHigh))
	require.NoError(t, err)

	require.NoError(t, a.Publish(context.Background(), &testEvent{}))
	require.NoError(t, a.Publish(context.Background(), &testEvent{}))

	assert.Equal(t, 1, selfCalls)
	assert.Equal(t, 0, laterCalls)
	assert.Empty(t, a.EventTypes())
}

func TestPublish_ReentrantPublish(t *testing.T) {
	a := newTestAggregator(t)

	var others int
	_, err := Subscribe(a, func(ctx context.Context, _ *testEvent) error {
		return a.Publish(ctx, &otherEvent{})
	})
	require.NoError(t, err)
	_, err = Subscribe(a, func(context.Context, *otherEvent) error {
		others++
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, a.Publish(context.Background(), &testEvent{}))
	assert.Equal(t, 1, others)
}

func TestPublish_CatchAll(t *testing.T) {
	a := newTestAggregator(t)

	var order []string
	_, err := Subscribe(a, func(_ context.Context, e Event) error {
		order = append(order, "all:"+reflect.TypeOf(e).String())
		return nil
	}, WithPriority(PriorityLowest))
	require.NoError(t, err)
	_, err = Subscribe(a, func(context.Context, any) error {
		order = append(order, "any")
		return nil
	}, WithPriority(PriorityMonitor))
	require.NoError(t, err)
	_, err = Subscribe(a, func(context.Context, *testEvent) error {
		order = append(order, "typed")
		return nil
	}, WithPriority(PriorityMonitor))
	require.NoError(t, err)

	require.NoError(t, a.Publish(context.Background(), &testEvent{}))
	require.NoError(t, a.Publish(context.Background(), &otherEvent{}))

	assert.Equal(t, []string{
		"typed", "all:*eventbus.testEvent", "any",
		"all:*eventbus.otherEvent", "any",
	}, order)
	assert.Equal(t, 2, a.SubscriberCount(reflect.TypeFor[Event]()))
}

func TestEventTypesAndSubscriberCount(t *testing.T) {
	a := newTestAggregator(t)

	assert.Empty(t, a.EventTypes())

	s1, err := Subscribe(a, nopHandler[*testEvent])
	require.NoError(t, err)
	_, err = Subscribe(a, nopHandler[*testEvent])
	require.NoError(t, err)
	_, err = Subscribe(a, nopHandler[*otherEvent])
	require.NoError(t, err)

	assert.Len(t, a.EventTypes(), 2)
	assert.Equal(t, 2, a.SubscriberCount(reflect.TypeFor[*testEvent]()))
	assert.Equal(t, 1, a.SubscriberCount(reflect.TypeFor[*otherEvent]()))
	assert.Equal(t, 0, a.SubscriberCount(reflect.TypeFor[*dataChangingEvent]()))

	require.NoError(t, s1.Dispose())
	assert.Equal(t, 1, a.SubscriberCount(reflect.TypeFor[*testEvent]()))
}

// TestConcurrentPublishAndUnsubscribe mirrors the bus regression test: the
// registry must survive publishes racing subscribe/dispose.
// Run with: go test -race ./eventbus/
func TestConcurrentPublishAndUnsubscribe(t *testing.T) {
	a := newTestAggregator(t)

	const goroutines = 50
	const iterations = 200

	var stable atomic.Int64
	_, err := Subscribe(a, func(context.Context, *testEvent) error {
		stable.Add(1)
		return nil
	}, WithPriority(PriorityMonitor))
	require.NoError(t, err)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < goroutines*iterations; i++ {
			_ = a.Publish(context.Background(), &testEvent{Value: i})
		}
	}()

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < iterations; j++ {
				sub, err := Subscribe(a, nopHandler[*testEvent], WithPriority(Priority(j%int(PriorityMonitor))))
				if err != nil {
					t.Error(err)
					return
				}
				if err := a.Unsubscribe(sub); err != nil {
					t.Error(err)
					return
				}
			}
		}()
	}

	wg.Wait()

	assert.Equal(t, int64(goroutines*iterations), stable.Load())
	assert.Equal(t, 1, a.SubscriberCount(reflect.TypeFor[*testEvent]()))
}

// TestConcurrentPublishers checks many goroutines publishing simultaneously.
func TestConcurrentPublishers(t *testing.T) {
	a := newTestAggregator(t)

	var counter atomic.Int64
	_, err := Subscribe(a, func(context.Context, *testEvent) error {
		counter.Add(1)
		return nil
	})
	require.NoError(t, err)

	const publishers = 20
	const publishesEach = 100

	var wg sync.WaitGroup
	for i := 0; i < publishers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < publishesEach; j++ {
				_ = a.Publish(context.Background(), &testEvent{})
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(publishers*publishesEach), counter.Load())
}

func TestPublish_AfterCloseDoesNotCountRefusedHandlers(t *testing.T) {
	logger, _ := newTestLogger()
	obs := &countingObserver{name: "obs"}
	a := New(WithLogger(logger), WithObserver(obs))

	_, err := Subscribe(a, nopHandler[*testEvent], WithThreadTarget(BackgroundThread))
	require.NoError(t, err)
	_, err = Subscribe(a, nopHandler[*testEvent])
	require.NoError(t, err)

	require.NoError(t, a.Publish(context.Background(), &testEvent{}))
	a.Close()
	require.NoError(t, a.Publish(context.Background(), &testEvent{}))

	obs.mu.Lock()
	defer obs.mu.Unlock()
	assert.Equal(t, []int{2, 1}, obs.handled)
}

func TestPublish_ClosedMainLoopNotCounted(t *testing.T) {
	logger, _ := newTestLogger()
	obs := &countingObserver{name: "obs"}
	mainCtx := &refusingContext{}
	a := New(WithLogger(logger), WithObserver(obs), WithMainThreadContext(mainCtx))
	t.Cleanup(a.Close)

	_, err := Subscribe(a, nopHandler[*testEvent], WithThreadTarget(MainThread))
	require.NoError(t, err)

	require.NoError(t, a.Publish(context.Background(), &testEvent{}))

	obs.mu.Lock()
	defer obs.mu.Unlock()
	assert.Equal(t, []int{0}, obs.handled)
	assert.Equal(t, 1, mainCtx.attempts)
}

type refusingContext struct{ attempts int }

func (c *refusingContext) Post(func()) { c.attempts++ }
func (c *refusingContext) TryPost(func()) bool { c.attempts++; return false }
