package audio

import "errors"

// Sentinel errors for audio backend operations.
var (
	// ErrBackendUnavailable indicates the audio server is not reachable
	// (daemon down, binary missing).
	ErrBackendUnavailable = errors.New("audio: backend unavailable")

	// ErrOutputNotFound indicates the referenced output does not exist
	// in the current topology.
	ErrOutputNotFound = errors.New("audio: output not found")

	// ErrLinkFailed indicates link creation or teardown failed.
	ErrLinkFailed = errors.New("audio: link operation failed")

	// ErrInvalidVolume indicates a volume outside the 0.0-1.0 range.
	ErrInvalidVolume = errors.New("audio: volume out of range")

	// ErrCommandFailed indicates a backend tool exited non-zero.
	ErrCommandFailed = errors.New("audio: command failed")

	// ErrClosed indicates the backend has been shut down.
	ErrClosed = errors.New("audio: backend closed")
)
