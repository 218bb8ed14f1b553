// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

package eventbus

import "reflect"

// Event is any publishable value. Events are routed by their dynamic type.
// Subscribing with T = Event registers a catch-all subscription that sees
// every published event after the type-specific subscriptions.
type Event interface{}

// DataChangingEvent marks events whose handlers may mutate them in place.
// The publisher observes the mutations once Publish returns, which is why
// such events can only be handled on the publisher's goroutine.
type DataChangingEvent interface {
	ChangesData()
}

// CancellableEvent is a data-changing event carrying a cancelled flag.
type CancellableEvent interface {
	DataChangingEvent
	Cancelled() bool
	SetCancelled(cancelled bool)
}

// Cancellation implements CancellableEvent. Embed it in an event struct and
// publish a pointer to that struct.
type Cancellation struct {
	cancelled bool
}

func (c *Cancellation) ChangesData() {}

func (c *Cancellation) Cancelled() bool {
	return c.cancelled
}

func (c *Cancellation) SetCancelled(cancelled bool) {
	c.cancelled = cancelled
}

var (
	eventType        = reflect.TypeFor[Event]()
	dataChangingType = reflect.TypeFor[DataChangingEvent]()
)

// IsCancellable reports whether e implements CancellableEvent.
func IsCancellable(e any) bool {
	_, ok := e.(CancellableEvent)
	return ok
}

// IsDataChanging reports whether e implements DataChangingEvent.
func IsDataChanging(e any) bool {
	_, ok := e.(DataChangingEvent)
	return ok
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface:
		return rv.IsNil()
	}
	return false
}
