// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

package sample

import (
	"context"
	"errors"
	"log/slog"
	"math"

	"github.com/dotandev/eventaggregator/eventbus"
)

// CouponTenOff takes 10% off a purchase, rounded up.
const CouponTenOff = "10OFF"

// Service wires the chat-server rules onto an aggregator.
type Service struct {
	agg    *eventbus.Aggregator
	logger *slog.Logger

	// Superuser is granted every permission regardless of role.
	Superuser string

	subs []*eventbus.Subscription
}

func NewService(agg *eventbus.Aggregator, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{agg: agg, logger: logger, Superuser: "root"}
}

// Initialize registers the service's handlers.
func (s *Service) Initialize() error {
	var errs []error
	track := func(sub *eventbus.Subscription, err error) {
		if err != nil {
			errs = append(errs, err)
			return
		}
		s.subs = append(s.subs, sub)
	}

	track(eventbus.Subscribe(s.agg, s.onUserConnected))
	track(eventbus.Subscribe(s.agg, s.onGuestSendsMessage))
	track(eventbus.Subscribe(s.agg, s.onUserPurchasedItem))
	// Deny by default, then let the role and the superuser rules override.
	track(eventbus.Subscribe(s.agg, s.onPermissionRequest, eventbus.WithPriority(eventbus.PriorityLowest)))
	track(eventbus.Subscribe(s.agg, s.onAdminPermissionRequest))
	track(eventbus.Subscribe(s.agg, s.onSuperuserPermissionRequest, eventbus.WithPriority(eventbus.PriorityHighest)))

	if err := errors.Join(errs...); err != nil {
		_ = s.Close()
		return err
	}
	return nil
}

// Close disposes every subscription made by Initialize.
func (s *Service) Close() error {
	var errs []error
	for _, sub := range s.subs {
		if err := s.agg.Unsubscribe(sub); err != nil {
			errs = append(errs, err)
		}
	}
	s.subs = nil
	return errors.Join(errs...)
}

func (s *Service) Connect(ctx context.Context, username string) error {
	_, err := eventbus.Publish(ctx, s.agg, &UserConnected{Username: username})
	return err
}

// SendMessage reports whether the message was delivered.
func (s *Service) SendMessage(ctx context.Context, username, message string) (bool, error) {
	e, err := eventbus.Publish(ctx, s.agg, &UserSendMessage{Username: username, Message: message})
	if err != nil {
		return false, err
	}
	if e.Cancelled() {
		return false, nil
	}
	s.logger.InfoContext(ctx, "message", "user", e.Username, "text", e.Message)
	return true, nil
}

// PurchaseItem returns the price actually charged.
func (s *Service) PurchaseItem(ctx context.Context, username string, price int, coupon string) (int, error) {
	e, err := eventbus.Publish(ctx, s.agg, &UserPurchaseItem{Username: username, Price: price, UsedCoupon: coupon})
	if err != nil {
		return 0, err
	}
	s.logger.InfoContext(ctx, "item purchased", "user", e.Username, "coupon", e.UsedCoupon, "price", e.Price)
	return e.Price, nil
}

func (s *Service) HasPermission(ctx context.Context, username, role string) (bool, error) {
	e, err := eventbus.Publish(ctx, s.agg, &UserPermissionRequest{Username: username, Role: role})
	if err != nil {
		return false, err
	}
	return !e.Cancelled(), nil
}

func (s *Service) onUserConnected(ctx context.Context, e *UserConnected) error {
	s.logger.InfoContext(ctx, "user connected", "user", e.Username)
	return nil
}

func (s *Service) onGuestSendsMessage(_ context.Context, e *UserSendMessage) error {
	if e.Username == "Guest" {
		e.SetCancelled(true)
	}
	return nil
}

func (s *Service) onUserPurchasedItem(_ context.Context, e *UserPurchaseItem) error {
	if e.UsedCoupon == CouponTenOff {
		e.Price = int(math.Ceil(float64(e.Price) * 0.9))
	}
	return nil
}

func (s *Service) onPermissionRequest(_ context.Context, e *UserPermissionRequest) error {
	e.SetCancelled(true)
	return nil
}

func (s *Service) onAdminPermissionRequest(_ context.Context, e *UserPermissionRequest) error {
	if e.Role == "Admin" {
		e.SetCancelled(false)
	}
	return nil
}

func (s *Service) onSuperuserPermissionRequest(_ context.Context, e *UserPermissionRequest) error {
	if e.Username == s.Superuser {
		e.SetCancelled(false)
	}
	return nil
}
