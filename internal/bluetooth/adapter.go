package bluetooth

import (
	"context"
	"regexp"
)

// addressPattern matches a Bluetooth hardware address (AA:BB:CC:DD:EE:FF).
var addressPattern = regexp.MustCompile(`^([0-9A-Fa-f]{2}:){5}[0-9A-Fa-f]{2}$`)

// ValidAddress reports whether s is a well-formed Bluetooth hardware address.
func ValidAddress(s string) bool {
	return addressPattern.MatchString(s)
}

// EventType classifies an asynchronous adapter event.
type EventType string

const (
	// EventDeviceFound fires when a new device appears during discovery.
	EventDeviceFound EventType = "device_found"

	// EventDeviceRemoved fires when BlueZ forgets a device.
	EventDeviceRemoved EventType = "device_removed"

	// EventConnected fires when a device's Connected property flips to yes.
	// This covers both our own connect calls and device-initiated connects.
	EventConnected EventType = "connected"

	// EventDisconnected fires when a device's Connected property flips to no,
	// for any reason (range, power off, explicit disconnect).
	EventDisconnected EventType = "disconnected"

	// EventPaired fires when a device's Paired property flips to yes.
	EventPaired EventType = "paired"

	// EventPropertyChanged carries any other device property change,
	// with Key and Value holding the raw property name and value.
	EventPropertyChanged EventType = "property_changed"
)

// Event is an asynchronous notification from the Bluetooth stack.
type Event struct {
	Type    EventType
	Address string

	// Name is set for device_found and device_removed events.
	Name string

	// Key and Value are set for property_changed events.
	Key   string
	Value string
}

// DeviceInfo is a snapshot of what BlueZ knows about a device.
type DeviceInfo struct {
	Address   string
	Name      string
	Alias     string
	Class     string
	Icon      string
	Paired    bool
	Trusted   bool
	Connected bool

	// RSSI is the signal strength in dBm. Only meaningful when HasRSSI
	// is true; BlueZ omits the property for idle devices.
	RSSI    int
	HasRSSI bool

	// AudioCapable reports whether the device advertises an A2DP audio
	// profile. Non-audio devices are visible but never auto-routed.
	AudioCapable bool
}

// Adapter abstracts the host Bluetooth stack.
//
// All methods are safe for concurrent use. Blocking calls honour ctx;
// a dead stack surfaces as ErrNotAvailable rather than a hang.
type Adapter interface {
	// Setup prepares the stack: registers a pairing agent and applies the
	// configured discoverable/pairable mode. Safe to call again after the
	// stack restarts.
	Setup(ctx context.Context) error

	// StartDiscovery begins scanning for nearby devices. Discovered
	// devices surface as EventDeviceFound events.
	StartDiscovery(ctx context.Context) error

	// StopDiscovery ends an active scan. No-op when not scanning.
	StopDiscovery(ctx context.Context) error

	// Devices returns every device BlueZ currently knows about.
	Devices(ctx context.Context) ([]DeviceInfo, error)

	// DeviceInfo returns the current properties of one device.
	DeviceInfo(ctx context.Context, address string) (DeviceInfo, error)

	// Pair performs the pairing exchange with a device.
	Pair(ctx context.Context, address string) error

	// Trust marks a device as trusted so it may reconnect on its own.
	Trust(ctx context.Context, address string) error

	// Remove deletes a device's pairing record.
	Remove(ctx context.Context, address string) error

	// Connect establishes a connection to a paired device.
	Connect(ctx context.Context, address string) error

	// Disconnect drops the connection to a device.
	Disconnect(ctx context.Context, address string) error

	// SignalStrength samples the current RSSI for a connected device.
	SignalStrength(ctx context.Context, address string) (int, error)

	// SetDiscoverable toggles whether this node is visible and pairable
	// to nearby devices.
	SetDiscoverable(ctx context.Context, enabled bool) error

	// Events returns the channel of asynchronous stack events. The
	// channel closes when the adapter shuts down.
	Events() <-chan Event

	// Close stops the monitor stream and releases resources.
	Close() error
}

// Logger defines the logging interface for the Bluetooth adapter.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
