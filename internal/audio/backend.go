package audio

import (
	"context"
	"strings"
)

// Output is a playback sink known to the audio server.
type Output struct {
	// ID is the stable node name (e.g., "alsa_output.platform-soc_sound.stereo-fallback").
	// Node IDs are reassigned across server restarts; names are not.
	ID string

	// NodeID is the current numeric PipeWire node id. Valid only until
	// the next server restart.
	NodeID int

	// Name is the human-readable description.
	Name string

	// Channels is the channel count. 1 means mono.
	Channels int

	// SampleRate is the configured sample rate in Hz.
	SampleRate int
}

// Mono reports whether the output is single-channel.
func (o Output) Mono() bool {
	return o.Channels == 1
}

// EventType classifies an asynchronous backend event.
type EventType string

const (
	// EventOutputAdded fires when a new sink appears in the topology.
	EventOutputAdded EventType = "output_added"

	// EventOutputRemoved fires when a sink disappears.
	EventOutputRemoved EventType = "output_removed"
)

// Event is an asynchronous notification from the audio server.
type Event struct {
	Type   EventType
	Output Output
}

// Backend abstracts the host audio server.
//
// All methods are safe for concurrent use. A dead server surfaces as
// ErrBackendUnavailable rather than a hang.
type Backend interface {
	// Outputs returns the current playback sinks.
	Outputs(ctx context.Context) ([]Output, error)

	// CreateLink routes a connected Bluetooth device's audio stream to
	// an output. Mono outputs receive only the left channel; the server
	// mixes the downstream signal.
	CreateLink(ctx context.Context, address string, outputID string) error

	// DestroyLink removes the routing between a device and an output.
	// Removing a link that does not exist is not an error.
	DestroyLink(ctx context.Context, address string, outputID string) error

	// LinkActive reports whether the device's stream is currently
	// routed to the output.
	LinkActive(ctx context.Context, address string, outputID string) (bool, error)

	// SetVolume sets an output's volume, range 0.0-1.0.
	SetVolume(ctx context.Context, outputID string, volume float64) error

	// Volume reads an output's current volume.
	Volume(ctx context.Context, outputID string) (float64, error)

	// Events returns the channel of topology change events. The channel
	// closes when the backend shuts down.
	Events() <-chan Event

	// Close stops the topology watcher and releases resources.
	Close() error
}

// SourceNode returns the PipeWire node name for a Bluetooth device's
// audio source stream (bluez_source.AA_BB_CC_DD_EE_FF).
func SourceNode(address string) string {
	return "bluez_source." + strings.ReplaceAll(address, ":", "_")
}

// Logger defines the logging interface for the audio backend.
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
