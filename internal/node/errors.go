package node

import "errors"

// Sentinel errors for node manager operations.
//
// These can be checked with errors.Is() for specific handling; the API
// layer maps them to HTTP status codes.
var (
	// ErrDeviceNotFound indicates the address is not known to the node.
	ErrDeviceNotFound = errors.New("node: device not found")

	// ErrDeviceNotConnected indicates an operation that requires a
	// connected device (link management) was called on one that isn't.
	ErrDeviceNotConnected = errors.New("node: device not connected")

	// ErrNotAudioDevice indicates the device does not advertise an
	// audio profile and cannot be routed.
	ErrNotAudioDevice = errors.New("node: device has no audio profile")

	// ErrOutputNotFound indicates the referenced output is not present.
	ErrOutputNotFound = errors.New("node: output not found")

	// ErrLinkNotFound indicates no active link exists for the pair.
	ErrLinkNotFound = errors.New("node: link not found")

	// ErrInvalidVolume indicates a volume outside the 0.0-1.0 range.
	ErrInvalidVolume = errors.New("node: volume out of range")

	// ErrInvalidAddress indicates a malformed device address.
	ErrInvalidAddress = errors.New("node: invalid device address")

	// ErrNotRunning indicates the manager has not been started or has
	// been stopped.
	ErrNotRunning = errors.New("node: manager not running")

	// ErrBackendUnavailable indicates the audio or Bluetooth layer is
	// not reachable.
	ErrBackendUnavailable = errors.New("node: backend unavailable")

	// ErrOperationTimedOut indicates an adapter call exceeded its
	// deadline.
	ErrOperationTimedOut = errors.New("node: operation timed out")

	// ErrLinkCreationFailed indicates the backend rejected a link.
	ErrLinkCreationFailed = errors.New("node: link creation failed")
)
