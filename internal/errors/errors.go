// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for comparison with errors.Is
var (
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrOutOfRange       = errors.New("argument out of range")
	ErrInvalidOperation = errors.New("invalid operation")
	ErrDisposed         = errors.New("subscription disposed")
	ErrTypeMismatch     = errors.New("event type mismatch")
	ErrHandlerFailed    = errors.New("subscription handler failed")
	ErrConfig           = errors.New("configuration error")
	ErrValidation       = errors.New("validation error")
)

// Stable codes attached to log records as the "code" attribute.
const (
	CodeEventPublish          = 2000
	CodeEventSubscription     = 2001
	CodeSubscriptionExecution = 3000
	// CodeSubscriptionFilter is reserved for subscription filter failures. Filters
	// are not supported, so nothing logs it yet.
	CodeSubscriptionFilter    = 3001
)

// Wrap functions for consistent error wrapping
func WrapInvalidArgument(param string) error {
	return fmt.Errorf("%w: %s must not be nil", ErrInvalidArgument, param)
}

func WrapOutOfRange(param string, value any) error {
	return fmt.Errorf("%w: %s has undefined value %v", ErrOutOfRange, param, value)
}

func WrapInvalidOperation(msg string) error {
	return fmt.Errorf("%w: %s", ErrInvalidOperation, msg)
}

func WrapDisposed(what string) error {
	return fmt.Errorf("%w: %s", ErrDisposed, what)
}

func WrapTypeMismatch(want, got string) error {
	return fmt.Errorf("%w: expected %s, got %s", ErrTypeMismatch, want, got)
}

func WrapHandlerFailed(err error) error {
	return fmt.Errorf("%w: %w", ErrHandlerFailed, err)
}

// WrapHandlerPanic converts a recovered panic value into a handler failure.
func WrapHandlerPanic(r any) error {
	if err, ok := r.(error); ok {
		return fmt.Errorf("%w: panic: %w", ErrHandlerFailed, err)
	}
	return fmt.Errorf("%w: panic: %v", ErrHandlerFailed, r)
}

func WrapConfigError(msg string, err error) error {
	if err == nil {
		return fmt.Errorf("%w: %s", ErrConfig, msg)
	}
	return fmt.Errorf("%w: %s: %w", ErrConfig, msg, err)
}

func WrapValidationError(msg string) error {
	return fmt.Errorf("%w: %s", ErrValidation, msg)
}
