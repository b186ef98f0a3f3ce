// Package services defines the business logic for allocating, claiming, and
// verifying donation links. This file centralizes common service-level error
// values so that they can be consistently returned by service methods and
// checked by callers.
//
// These errors are intended for internal use by the service layer and translation
// into user-facing messages or HTTP status codes should be performed at the
// handler/controller layer.
package services

import "errors"

var (
	// ErrInvalidAmount is returned when a request refers to a donation
	// amount outside the configured denomination set.
	ErrInvalidAmount = errors.New("unrecognized donation amount")

	// ErrNoAvailableLinks indicates the pool for the requested amount is
	// exhausted at this instant: every link is held, claimed, or retired.
	ErrNoAvailableLinks = errors.New("no links available for this amount")

	// ErrLinkNotFound indicates that the referenced widget URL has no
	// matching record in the pool.
	ErrLinkNotFound = errors.New("link not found")

	// ErrLinkRetired is returned when an operation targets a link that has
	// already been verified. Verified is terminal: the link can never be
	// claimed, cancelled, or re-offered.
	ErrLinkRetired = errors.New("link already verified and retired")

	// ErrLinkNotClaimed is returned when verification is requested for a
	// link that is not currently in the claimed state.
	ErrLinkNotClaimed = errors.New("link is not awaiting verification")

	// ErrOracleUnavailable indicates the balance oracle failed or timed out.
	// The link's state is deliberately left untouched so a later retry (via
	// the sweeper) can finalize it.
	ErrOracleUnavailable = errors.New("balance oracle unavailable")

	// ErrStoreConflict is returned after the bounded number of retries when
	// concurrent updates kept winning the race on the pool store.
	ErrStoreConflict = errors.New("pool store conflict, try again")
)
