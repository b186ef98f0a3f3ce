// Package handlers defines HTTP-layer error codes used across all API endpoints.
//
// This file centralizes symbolic error code constants that are mapped to HTTP
// responses (via the `fail()` helper in this package). Generic codes mirror
// common HTTP status semantics; domain-specific codes cover pool-allocation
// failures that a status alone cannot convey. Handlers select the most
// specific matching code and pass it to `fail()` with the corresponding
// status and message.
//
// Example response:
//
//	{
//	  "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//	  "code": "no_links_available",
//	  "message": "all links for this amount are currently reserved or used"
//	}
package handlers

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeNotFound         = "not_found"
	ErrCodeConflict         = "conflict"
	ErrCodeRateLimited      = "too_many_requests"
	ErrCodeInternal         = "internal_error"
	ErrCodeUnavailable      = "service_unavailable"
	ErrCodeMethodNotAllowed = "method_not_allowed"

	// Domain-specific:
	ErrCodeInvalidAmount = "invalid_amount"
	ErrCodeNoLinks       = "no_links_available"
	ErrCodeLinkRetired   = "link_retired"
	ErrCodeOracleDown    = "oracle_unavailable"
	ErrCodeSweepFailed   = "sweep_failed"
)
