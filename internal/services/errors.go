// Package services implements the progression engine: the level curve,
// multiplier composition, the daily counter window, the anti-exploit guard,
// the XP award pipeline and the voice session tracker.
//
// This file centralizes service-level error values. Policy denials are not
// errors: they are reported through AwardResult.Denied and DenyReason.
package services

import "errors"

var (
	// ErrUserNotFound is returned by admin operations addressing a user that
	// has no progression record.
	ErrUserNotFound = errors.New("user not found")

	// ErrEmptyUserID is returned when an operation is called without a user.
	ErrEmptyUserID = errors.New("user id is required")

	// ErrInvalidSource is returned when an award names a source outside the
	// closed set or one that cannot be awarded directly.
	ErrInvalidSource = errors.New("invalid xp source")

	// ErrInvalidAmount is returned for negative overrides and non-positive
	// admin adjustments.
	ErrInvalidAmount = errors.New("xp amount must be positive")

	// ErrInvalidBoost is returned when a boost event has an empty window or a
	// non-positive multiplier.
	ErrInvalidBoost = errors.New("invalid boost event")

	// ErrTrackerStopped is returned by voice operations after Shutdown.
	ErrTrackerStopped = errors.New("voice tracker stopped")
)

// DenyReason is the typed reason attached to a denied award.
type DenyReason string

const (
	ReasonCooldown       DenyReason = "cooldown_active"
	ReasonDailyCap       DenyReason = "daily_cap"
	ReasonPenalized      DenyReason = "penalized"
	ReasonBurst          DenyReason = "burst_detected"
	ReasonDuplicate      DenyReason = "duplicate_content"
	ReasonLowPopulation  DenyReason = "insufficient_population"
	ReasonMuted          DenyReason = "muted"
	ReasonAlreadyClaimed DenyReason = "already_claimed"
)
