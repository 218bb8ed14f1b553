// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

// Package workerpool runs fire-and-forget jobs with bounded concurrency.
package workerpool

import (
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/dotandev/eventaggregator/internal/errors"
)

// Pool schedules jobs onto goroutines while keeping at most Size of them
// running at once. Go never blocks the caller.
type Pool struct {
	sem    chan struct{}
	wg     sync.WaitGroup
	logger *slog.Logger

	pending atomic.Int64

	// mu orders wg.Add against the Wait in Close.
	mu     sync.Mutex
	closed bool
}

// New creates a pool. size <= 0 selects runtime.NumCPU().
func New(size int, logger *slog.Logger) *Pool {
	if size <= 0 {
		size = runtime.NumCPU()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{
		sem:    make(chan struct{}, size),
		logger: logger,
	}
}

// Size returns the concurrency limit.
func (p *Pool) Size() int {
	return cap(p.sem)
}

// Pending returns the number of submitted jobs that have not finished yet.
func (p *Pool) Pending() int64 {
	return p.pending.Load()
}

// Go submits job for asynchronous execution. Jobs submitted after Close are dropped.
func (p *Pool) Go(job func()) {
	p.TryGo(job)
}

// TryGo is Go that reports whether the job was accepted.
func (p *Pool) TryGo(job func()) bool {
	if job == nil {
		return false
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return false
	}
	p.wg.Add(1)
	p.pending.Add(1)
	p.mu.Unlock()

	go func() {
		defer p.wg.Done()
		defer p.pending.Add(-1)

		p.sem <- struct{}{}        // Acquire semaphore
		defer func() { <-p.sem }() // Release semaphore

		defer func() {
			if r := recover(); r != nil {
				p.logger.Error("worker job panicked",
					"code", errors.CodeSubscriptionExecution,
					"error", errors.WrapHandlerPanic(r),
				)
			}
		}()

		job()
	}()
	return true
}

// Wait blocks until every submitted job has finished.
func (p *Pool) Wait() {
	p.wg.Wait()
}

// Close stops accepting jobs and waits for the running ones.
func (p *Pool) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.wg.Wait()
}
