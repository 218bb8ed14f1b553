// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

package eventbus

import (
	"context"
	"reflect"
)

// Observer receives hook calls around every publish and handler execution.
// Implementations back tracing and metrics; they must be safe for concurrent use.
type Observer interface {
	// StartPublish is called when Publish begins. The returned function is
	// called with the number of subscriptions that were invoked.
	StartPublish(ctx context.Context, eventType reflect.Type) (context.Context, func(handled int))

	// StartInvoke is called on the goroutine that runs the handler, right
	// before it runs. The returned function receives the handler failure, if any.
	StartInvoke(ctx context.Context, sub *Subscription) (context.Context, func(err error))
}

type nopObserver struct{}

func (nopObserver) StartPublish(ctx context.Context, _ reflect.Type) (context.Context, func(int)) {
	return ctx, func(int) {}
}

func (nopObserver) StartInvoke(ctx context.Context, _ *Subscription) (context.Context, func(error)) {
	return ctx, func(error) {}
}

// MultiObserver fans hook calls out to several observers. Nil entries are ignored.
func MultiObserver(observers ...Observer) Observer {
	list := make(multiObserver, 0, len(observers))
	for _, o := range observers {
		if o != nil {
			list = append(list, o)
		}
	}
	switch len(list) {
	case 0:
		return nopObserver{}
	case 1:
		return list[0]
	}
	return list
}

type multiObserver []Observer

func (m multiObserver) StartPublish(ctx context.Context, eventType reflect.Type) (context.Context, func(int)) {
	ends := make([]func(int), len(m))
	for i, o := range m {
		ctx, ends[i] = o.StartPublish(ctx, eventType)
	}
	return ctx, func(handled int) {
		for i := len(ends) - 1; i >= 0; i-- {
			ends[i](handled)
		}
	}
}

func (m multiObserver) StartInvoke(ctx context.Context, sub *Subscription) (context.Context, func(error)) {
	ends := make([]func(error), len(m))
	for i, o := range m {
		ctx, ends[i] = o.StartInvoke(ctx, sub)
	}
	return ctx, func(err error) {
		for i := len(ends) - 1; i >= 0; i-- {
			ends[i](err)
		}
	}
}
