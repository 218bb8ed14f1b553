// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

// Package eventbus is an in-process event aggregator.
//
// Handlers subscribe to a static event type and are invoked whenever a value
// of that runtime type is published:
//
//	agg := eventbus.New(eventbus.WithLogger(logger))
//	sub, err := eventbus.Subscribe(agg, func(ctx context.Context, e *UserConnected) error {
//		return greet(ctx, e.Name)
//	}, eventbus.WithPriority(eventbus.PriorityHigh))
//	...
//	e, err := eventbus.Publish(ctx, agg, &UserConnected{Name: "ada"})
//
// Subscriptions of one event type run in ascending priority order, Lowest
// first and Monitor last; ties run in subscription order. Each Publish works
// on a snapshot of the subscriber list taken when it starts, so handlers may
// subscribe or unsubscribe while a dispatch is in flight. No lock is held
// while a handler runs.
//
// A handler that returns an error or panics is logged and otherwise ignored:
// it never affects other handlers or the publisher.
//
// Events implementing CancellableEvent can be cancelled by a handler; later
// subscriptions created with WithIgnoreCancelled(true) are then skipped.
// Events implementing DataChangingEvent may be mutated in place and can only
// be handled on the publisher's goroutine.
package eventbus
