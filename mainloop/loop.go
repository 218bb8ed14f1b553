// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

// Package mainloop provides a single-goroutine work queue that can serve as the
// main-thread context of an event aggregator.
//
// Work handed to Post is queued without blocking and executed, in posting
// order, on whichever goroutine is running Run (or calling RunPending).
package mainloop

import (
	"context"
	"log/slog"
	"sync"

	"github.com/dotandev/eventaggregator/internal/errors"
)

// Loop is an unbounded FIFO of posted functions.
type Loop struct {
	mu     sync.Mutex
	queue  []func()
	closed bool
	wake   chan struct{}
	done   chan struct{}
	logger *slog.Logger
}

// New returns an empty loop. A nil logger uses slog.Default().
func New(logger *slog.Logger) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
		logger: logger,
	}
}

// Post queues fn for execution on the loop goroutine. It never blocks.
// Functions posted after Close are dropped.
func (l *Loop) Post(fn func()) {
	l.TryPost(fn)
}

// TryPost is Post that reports whether fn was queued.
func (l *Loop) TryPost(fn func()) bool {
	if fn == nil {
		return false
	}

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		l.logger.Debug("post to closed main loop dropped")
		return false
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return true
}

// Len returns the number of queued functions.
func (l *Loop) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}

// RunPending executes everything queued at the time of the call on the
// calling goroutine and returns how many functions ran.
func (l *Loop) RunPending() int {
	l.mu.Lock()
	batch := l.queue
	l.queue = nil
	l.mu.Unlock()

	for _, fn := range batch {
		l.run(fn)
	}
	return len(batch)
}

// Run executes posted functions until ctx is cancelled or Close is called.
// Work still queued at Close is executed before Run returns.
func (l *Loop) Run(ctx context.Context) error {
	for {
		l.RunPending()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.done:
			l.RunPending()
			return nil
		case <-l.wake:
		}
	}
}

// Close stops the loop. It is safe to call more than once.
func (l *Loop) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.closed = true
	close(l.done)
}

func (l *Loop) run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("main loop task panicked",
				"code", errors.CodeSubscriptionExecution,
				"error", errors.WrapHandlerPanic(r),
			)
		}
	}()
	fn()
}
