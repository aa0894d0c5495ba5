package node

import (
	"time"
)

// DeviceState is a device's position in the connection lifecycle.
type DeviceState string

const (
	// StateDiscovered: seen during a scan, never paired.
	StateDiscovered DeviceState = "discovered"

	// StatePairing: pairing exchange in progress.
	StatePairing DeviceState = "pairing"

	// StatePaired: pairing complete, not connected.
	StatePaired DeviceState = "paired"

	// StateConnecting: connection attempt in progress.
	StateConnecting DeviceState = "connecting"

	// StateConnected: connected and eligible for audio links.
	StateConnected DeviceState = "connected"

	// StateDisconnecting: explicit disconnect in progress.
	StateDisconnecting DeviceState = "disconnecting"

	// StateDisconnected: previously connected, currently not. Automatic
	// reconnection may be underway.
	StateDisconnected DeviceState = "disconnected"

	// StateFailed: an operation failed and the retry budget is spent.
	// Only an explicit request moves the device out of this state.
	StateFailed DeviceState = "failed"
)

// validTransitions is the device lifecycle graph. Transitions not listed
// here are bugs, with two exceptions handled by callers: creating a
// device sets its initial state directly, and same-state transitions are
// no-ops.
var validTransitions = map[DeviceState][]DeviceState{
	StateDiscovered:    {StatePairing},
	StatePairing:       {StatePaired, StateFailed},
	StatePaired:        {StateConnecting, StatePairing, StateConnected},
	StateConnecting:    {StateConnected, StateDisconnected, StateFailed},
	StateConnected:     {StateDisconnecting, StateDisconnected},
	StateDisconnecting: {StateDisconnected},
	StateDisconnected:  {StateConnecting, StateConnected, StateFailed},
	StateFailed:        {StateConnecting, StatePairing, StateConnected},
}

// CanTransition reports whether the lifecycle permits moving from one
// state to another. Same-state moves are always permitted.
func CanTransition(from, to DeviceState) bool {
	if from == to {
		return true
	}
	for _, allowed := range validTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Device is the node's view of a Bluetooth audio device.
type Device struct {
	Address      string      `json:"address"`
	Name         string      `json:"name"`
	Paired       bool        `json:"paired"`
	Trusted      bool        `json:"trusted"`
	AudioCapable bool        `json:"audio_capable"`
	State        DeviceState `json:"state"`

	// RSSI is the last sampled signal strength in dBm, valid only when
	// HasRSSI is true.
	RSSI    int  `json:"rssi,omitempty"`
	HasRSSI bool `json:"has_rssi"`

	// LastSeen is when the device last produced any stack activity.
	LastSeen time.Time `json:"last_seen"`

	// LastError describes the most recent failed operation, cleared on
	// the next success.
	LastError string `json:"last_error,omitempty"`

	// ReconnectAttempts counts consecutive automatic reconnect attempts
	// since the last successful connection.
	ReconnectAttempts int `json:"reconnect_attempts,omitempty"`
}

// Copy returns an independent copy of the device.
func (d *Device) Copy() Device {
	return *d
}

// Link is an active audio route from a connected device to an output.
type Link struct {
	// ID is a handle for API clients; it is not persisted.
	ID string `json:"id"`

	DeviceAddress string    `json:"device_address"`
	OutputID      string    `json:"output_id"`
	Volume        float64   `json:"volume"`
	CreatedAt     time.Time `json:"created_at"`
}

// Copy returns an independent copy of the link.
func (l *Link) Copy() Link {
	return *l
}

// linkKey identifies a link by its endpoints.
func linkKey(address, outputID string) string {
	return address + "\x00" + outputID
}

// Status is a point-in-time summary of the node.
type Status struct {
	NodeName         string        `json:"node_name"`
	Uptime           time.Duration `json:"uptime"`
	Discovering      bool          `json:"discovering"`
	DeviceCount      int           `json:"device_count"`
	ConnectedDevices int           `json:"connected_devices"`
	OutputCount      int           `json:"output_count"`
	LinkCount        int           `json:"link_count"`
}
