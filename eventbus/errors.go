// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

package eventbus

import "github.com/dotandev/eventaggregator/internal/errors"

// Errors returned by the aggregator and its subscriptions. Compare with errors.Is.
var (
	// ErrInvalidArgument reports a nil handler, event, logger, callback or context.
	ErrInvalidArgument = errors.ErrInvalidArgument
	// ErrOutOfRange reports an undefined Priority or ThreadTarget.
	ErrOutOfRange = errors.ErrOutOfRange
	// ErrInvalidOperation reports structural misuse detected at subscribe time.
	ErrInvalidOperation = errors.ErrInvalidOperation
	// ErrDisposed reports an operation on a disposed subscription.
	ErrDisposed = errors.ErrDisposed
	// ErrTypeMismatch reports an event of the wrong type passed to Invoke.
	ErrTypeMismatch = errors.ErrTypeMismatch
	// ErrHandlerFailed wraps handler errors and panics. It is only ever
	// logged or reported to an Observer.
	ErrHandlerFailed = errors.ErrHandlerFailed
)
