// Package common defines shared constants and sentinel errors used across
// the CareKeeper sync components. Callers should use errors.Is to match
// these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound    = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")

	// Validation errors.
	ErrInvalidOwnerID    = errors.New("invalid owner id")
	ErrInvalidRecordType = errors.New("invalid record type")

	// Backup provider session is missing or was rejected. Callers branch to
	// re-authentication instead of retrying.
	ErrNotAuthenticated = errors.New("not authenticated")

	// Integrity errors.
	ErrChecksumMismatch   = errors.New("checksum mismatch")
	ErrVerificationFailed = errors.New("copy verification failed")

	// OAuth state errors.
	ErrInvalidState = errors.New("invalid oauth state")

	// A backup run is already in progress in this process.
	ErrBusy = errors.New("operation already in progress")
)
