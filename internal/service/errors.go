package service

import "errors"

// Sentinel errors forming the failure taxonomy. The HTTP layer maps these to
// status codes; everything else surfaces as an upstream failure.
var (
	// ErrNotFound means the claim id or public id does not exist.
	ErrNotFound = errors.New("claim not found")
	// ErrForbidden means the claim exists but the supplied edit token does
	// not match.
	ErrForbidden = errors.New("edit token mismatch")
	// ErrTooLarge means an upload exceeds the configured size limit.
	ErrTooLarge = errors.New("file exceeds upload limit")
	// ErrBadTransition means a patch asked for a status change other than
	// draft to submitted.
	ErrBadTransition = errors.New("status transition not allowed")
	// ErrEmptyPatch means an update carried no changes.
	ErrEmptyPatch = errors.New("patch is empty")
)
