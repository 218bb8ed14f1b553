// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

package eventbus

import (
	"fmt"

	"github.com/dotandev/eventaggregator/internal/errors"
)

// Priority orders subscriptions of one event type. Lower priorities run first,
// so a higher priority handler sees (and may override) what lower ones did.
type Priority int

const (
	// PriorityLowest runs first and is never skipped by a cancellation.
	PriorityLowest Priority = iota
	PriorityLow
	PriorityNormal
	PriorityHigh
	// PriorityHighest is the last priority that should change event data.
	PriorityHighest
	// PriorityMonitor runs last. Monitor handlers observe the outcome and
	// should neither mutate nor cancel the event; this is not enforced.
	PriorityMonitor
)

func (p Priority) Valid() bool {
	return p >= PriorityLowest && p <= PriorityMonitor
}

func (p Priority) String() string {
	switch p {
	case PriorityLowest:
		return "lowest"
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	case PriorityHighest:
		return "highest"
	case PriorityMonitor:
		return "monitor"
	}
	return fmt.Sprintf("Priority(%d)", int(p))
}

// ThreadTarget selects where a handler runs.
type ThreadTarget int

const (
	// PublisherThread runs the handler inline on the goroutine calling Publish.
	PublisherThread ThreadTarget = iota
	// MainThread posts the handler to the aggregator's MainThreadContext.
	MainThread
	// BackgroundThread hands the handler to the aggregator's Scheduler.
	BackgroundThread
)

func (t ThreadTarget) Valid() bool {
	return t >= PublisherThread && t <= BackgroundThread
}

func (t ThreadTarget) String() string {
	switch t {
	case PublisherThread:
		return "publisher"
	case MainThread:
		return "main"
	case BackgroundThread:
		return "background"
	}
	return fmt.Sprintf("ThreadTarget(%d)", int(t))
}

// Options configures one subscription. The zero value is not the default;
// start from DefaultOptions or NewOptions.
type Options struct {
	priority        Priority
	threadTarget    ThreadTarget
	ignoreCancelled bool
}

// DefaultOptions returns normal priority on the publisher thread, not skipping
// cancelled events.
func DefaultOptions() Options {
	return Options{
		priority:     PriorityNormal,
		threadTarget: PublisherThread,
	}
}

// NewOptions returns validated options.
func NewOptions(priority Priority, target ThreadTarget, ignoreCancelled bool) (Options, error) {
	o := DefaultOptions()
	if err := o.SetPriority(priority); err != nil {
		return Options{}, err
	}
	if err := o.SetThreadTarget(target); err != nil {
		return Options{}, err
	}
	o.SetIgnoreCancelled(ignoreCancelled)
	return o, nil
}

// Priority returns the dispatch priority.
func (o Options) Priority() Priority { return o.priority }

// ThreadTarget returns where the handler runs.
func (o Options) ThreadTarget() ThreadTarget { return o.threadTarget }

// IgnoreCancelled reports whether the subscription is skipped for events
// that an earlier handler cancelled.
func (o Options) IgnoreCancelled() bool { return o.ignoreCancelled }

// SetPriority returns ErrOutOfRange for undefined priorities.
func (o *Options) SetPriority(p Priority) error {
	if !p.Valid() {
		return errors.WrapOutOfRange("priority", int(p))
	}
	o.priority = p
	return nil
}

// SetThreadTarget returns ErrOutOfRange for undefined thread targets.
func (o *Options) SetThreadTarget(t ThreadTarget) error {
	if !t.Valid() {
		return errors.WrapOutOfRange("threadTarget", int(t))
	}
	o.threadTarget = t
	return nil
}

// SetIgnoreCancelled sets whether cancelled events skip the subscription.
func (o *Options) SetIgnoreCancelled(ignore bool) {
	o.ignoreCancelled = ignore
}

// Validate checks both enum fields.
func (o Options) Validate() error {
	if !o.priority.Valid() {
		return errors.WrapOutOfRange("priority", int(o.priority))
	}
	if !o.threadTarget.Valid() {
		return errors.WrapOutOfRange("threadTarget", int(o.threadTarget))
	}
	return nil
}

// Option adjusts the default options passed to Subscribe.
type Option func(*Options) error

// WithPriority sets the dispatch priority.
func WithPriority(p Priority) Option {
	return func(o *Options) error {
		return o.SetPriority(p)
	}
}

// WithThreadTarget sets where the handler runs.
func WithThreadTarget(t ThreadTarget) Option {
	return func(o *Options) error {
		return o.SetThreadTarget(t)
	}
}

// WithIgnoreCancelled skips the subscription for events already cancelled.
func WithIgnoreCancelled(ignore bool) Option {
	return func(o *Options) error {
		o.SetIgnoreCancelled(ignore)
		return nil
	}
}
