// Package node is the core of the audio node: it owns the device,
// output and link state and coordinates the Bluetooth and audio layers
// beneath it.
//
// The Manager runs a single event loop that owns all state. Public
// methods post operations to the loop and wait for the result, stack
// events (device connects, sink changes) feed the same loop, and slow
// subprocess work runs on worker goroutines that report back to it.
// Operations on the same device are serialized; devices never block
// each other.
//
// Devices move through an explicit lifecycle (discovered, pairing,
// paired, connecting, connected, disconnecting, disconnected, failed).
// An unexpected disconnect of a paired device triggers automatic
// reconnection with bounded exponential backoff; exhausting the budget
// parks the device in the failed state until an explicit request.
// Audio links follow connections: stored assignments are restored when
// a device connects, torn down when it disconnects, and healed when an
// output reappears after an audio server restart.
package node
