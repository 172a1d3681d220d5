package apperrors

import "errors"

// Local OCR path. None of these are fatal: the coordinator recovers by
// falling through to the escalation-eligible state with zero matches.
var (
	ErrImageUnavailable    = errors.New("image unavailable")
	ErrImageEncodingFailed = errors.New("image encoding failed")
	ErrNoTextFound         = errors.New("no text found")
	ErrRequestFailed       = errors.New("recognition request failed")
)

// Fallback vision path. Surfaced to the caller but never reverts marks
// already applied by the local pass.
var (
	ErrCredentialMissing = errors.New("vision credential missing")
	ErrNetwork           = errors.New("network error")
	ErrInvalidResponse   = errors.New("invalid response")
	ErrNoNamesFound      = errors.New("no names found")
)

// Coordinator and storage.
var (
	ErrRecognitionBusy     = errors.New("recognition already in progress")
	ErrStaleAttempt        = errors.New("recognition attempt is stale")
	ErrNoPendingEscalation = errors.New("no pending escalation offer")
	ErrStoreAccess         = errors.New("store access error")
	ErrNotFound            = errors.New("not found")
	ErrConflict            = errors.New("conflict")
)
