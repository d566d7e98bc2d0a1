// Package services defines the business logic for demand capture, plan
// enforcement, notification, and restock webhooks. This file centralizes
// common service-level error values so that they can be consistently returned
// by service methods and checked by callers.
//
// These errors are intended for internal use by the service layer and
// translation into user-facing messages or HTTP status codes should be
// performed at the handler layer. All of them are expected business outcomes,
// not system failures; anything transient (delivery capability failure, DB
// error) propagates as-is.
package services

import "errors"

var (
	// ErrShopNotFound indicates that the requested shop does not exist or
	// could not be resolved from the given domain.
	ErrShopNotFound = errors.New("shop not found")

	// ErrVariantNotFound indicates that the requested variant does not
	// resolve under the given shop.
	ErrVariantNotFound = errors.New("variant not found")

	// ErrProductNotFound indicates that the requested product does not exist.
	ErrProductNotFound = errors.New("product not found")

	// ErrRequestNotFound indicates that the requested demand request does
	// not exist.
	ErrRequestNotFound = errors.New("demand request not found")

	// ErrInvalidContact is returned when a contact string fails the format
	// rule for its channel.
	ErrInvalidContact = errors.New("invalid contact for channel")

	// ErrUnsupportedChannel is returned when a channel string cannot be
	// normalized to a supported demand channel.
	ErrUnsupportedChannel = errors.New("unsupported channel")

	// ErrAlreadyNotified is returned when notify() targets a request that
	// has already been notified. Non-retryable no-op from the caller's view.
	ErrAlreadyNotified = errors.New("customer has already been notified")

	// ErrAlreadyConverted is returned when notify() targets a request that
	// has already converted to a purchase.
	ErrAlreadyConverted = errors.New("customer has already converted")

	// ErrQuotaExceeded is returned when the shop's monthly notification
	// limit is reached before any side effect of notify() occurs.
	ErrQuotaExceeded = errors.New("monthly notification limit reached")

	// ErrLinkNotFound is returned when a recovery token does not resolve to
	// a link.
	ErrLinkNotFound = errors.New("recovery link not found")

	// ErrLinkExpired is returned when a recovery token resolves to a link
	// past its expiry.
	ErrLinkExpired = errors.New("recovery link expired")

	// ErrDuplicateOrder is returned when an order id has already been
	// attributed. An order is attributed at most once.
	ErrDuplicateOrder = errors.New("order already attributed")
)
