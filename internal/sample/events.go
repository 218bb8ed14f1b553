// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

// Package sample is a small chat-server domain used by the eventagg demo.
package sample

import "github.com/dotandev/eventaggregator/eventbus"

// UserConnected is a plain notification.
type UserConnected struct {
	Username string
}

// UserSendMessage can be cancelled to suppress the message.
type UserSendMessage struct {
	eventbus.Cancellation
	Username string
	Message  string
}

// UserPurchaseItem lets handlers adjust the price before the purchase is booked.
type UserPurchaseItem struct {
	Username   string
	Price      int
	UsedCoupon string
}

func (e *UserPurchaseItem) ChangesData() {}

// UserPermissionRequest is denied when it is still cancelled after publishing.
type UserPermissionRequest struct {
	eventbus.Cancellation
	Username string
	Role     string
}

// Notification is delivered off the publisher thread.
type Notification struct {
	Number int
}
