package bluetooth

import "errors"

// Sentinel errors for Bluetooth operations.
//
// These can be checked with errors.Is() for specific handling:
//
//	if errors.Is(err, bluetooth.ErrConnectFailed) {
//	    // schedule a retry
//	}
var (
	// ErrInvalidAddress indicates a malformed Bluetooth hardware address.
	ErrInvalidAddress = errors.New("bluetooth: invalid device address")

	// ErrCommandFailed indicates bluetoothctl exited non-zero or its
	// output did not confirm success.
	ErrCommandFailed = errors.New("bluetooth: command failed")

	// ErrPairFailed indicates a pairing attempt was rejected or timed out.
	ErrPairFailed = errors.New("bluetooth: pairing failed")

	// ErrConnectFailed indicates a connection attempt did not complete.
	ErrConnectFailed = errors.New("bluetooth: connect failed")

	// ErrNotAvailable indicates the Bluetooth stack is not reachable
	// (bluetoothd down, adapter missing, binary not found).
	ErrNotAvailable = errors.New("bluetooth: stack not available")

	// ErrClosed indicates the adapter has been shut down.
	ErrClosed = errors.New("bluetooth: adapter closed")
)
