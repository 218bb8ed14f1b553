// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

package eventbus

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
)

type testEvent struct {
	Value int
}

type otherEvent struct{}

type dataChangingEvent struct {
	Amount int
}

func (e *dataChangingEvent) ChangesData() {}

type cancellableEvent struct {
	Cancellation
	Calls []string
}

// recordingContext mimics a UI loop: it only counts and queues posted work.
type recordingContext struct {
	mu     sync.Mutex
	posted []func()
}

func (c *recordingContext) Post(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.posted = append(c.posted, fn)
}

func (c *recordingContext) PostCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.posted)
}

func (c *recordingContext) Flush() {
	c.mu.Lock()
	posted := c.posted
	c.posted = nil
	c.mu.Unlock()
	for _, fn := range posted {
		fn()
	}
}

// recordingScheduler queues background work until Flush.
type recordingScheduler struct {
	recordingContext
}

func (s *recordingScheduler) Go(fn func()) { s.Post(fn) }

func newTestLogger() (*slog.Logger, *syncBuffer) {
	buf := &syncBuffer{}
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})), buf
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func noopUnsubscribe() error { return nil }

func nopHandler[T any](context.Context, T) error { return nil }
