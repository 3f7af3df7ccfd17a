// Package handlers defines HTTP-layer error codes used across all API endpoints.
//
// Codes are lowercase snake_case and stable: clients branch on them. Policy
// denials of an award are not errors and never use these codes; they come
// back as 200 with the denial reason in the award result.
//
// Example response:
//
//	{
//	  "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//	  "code": "user_not_found",
//	  "message": "user has no progression record"
//	}
package handlers

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeUnauthorized     = "unauthorized"
	ErrCodeForbidden        = "forbidden"
	ErrCodeNotFound         = "not_found"
	ErrCodeConflict         = "conflict"
	ErrCodeRateLimited      = "too_many_requests"
	ErrCodeInternal         = "internal_error"
	ErrCodeMethodNotAllowed = "method_not_allowed"

	// Domain-specific:
	ErrCodeUserNotFound   = "user_not_found"
	ErrCodeInvalidSource  = "invalid_source"
	ErrCodeInvalidAmount  = "invalid_amount"
	ErrCodeInvalidBoost   = "invalid_boost"
	ErrCodeAwardFailed    = "award_failed"
	ErrCodeListFailed     = "list_failed"
	ErrCodeTrackerStopped = "tracker_stopped"
)
