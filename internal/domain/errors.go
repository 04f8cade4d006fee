package domain

import "errors"

var (
	// ErrPermissionDenied is returned when the caller lacks the privilege
	// required by a remote operation
	ErrPermissionDenied = errors.New("permission denied")

	// ErrRemoteUnavailable is returned when a remote service cannot be reached
	ErrRemoteUnavailable = errors.New("remote service unavailable")

	// ErrNotFound is returned when a subscription record does not exist
	ErrNotFound = errors.New("subscription not found")

	// ErrUnusableSubscriptionID is returned before any remote call when an
	// operation requires a real subscription id
	ErrUnusableSubscriptionID = errors.New("subscription id is not usable")

	// ErrExecutorClosed is returned by an executor that no longer accepts work
	ErrExecutorClosed = errors.New("executor closed")

	// ErrInvalidArgument is returned for malformed remote requests
	ErrInvalidArgument = errors.New("invalid argument")
)
