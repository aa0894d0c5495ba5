package bluetooth

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/house-audio/audionode/internal/infrastructure/config"
	"github.com/house-audio/audionode/internal/process"
)

// Default bounds for one-shot bluetoothctl invocations.
const (
	defaultCommandTimeout = 10 * time.Second
	defaultConnectTimeout = 15 * time.Second

	// eventBufferSize is the capacity of the Events channel. The monitor
	// stream is bursty during discovery; a full buffer drops events with
	// a warning rather than stalling the stream.
	eventBufferSize = 64
)

// Ctl is the bluetoothctl-backed implementation of Adapter.
//
// One-shot commands fork bluetoothctl per call. Asynchronous events come
// from a single supervised "bluetoothctl --monitor" subprocess whose
// stdout is parsed line by line.
type Ctl struct {
	cfg    config.BluetoothConfig
	logger Logger

	events  chan Event
	monitor *process.Manager

	// runCommand executes one bluetoothctl invocation. Replaceable in
	// tests so nothing forks.
	runCommand func(ctx context.Context, args ...string) (string, error)

	mu       sync.Mutex
	scanProc *process.Manager
	closed   bool
}

// NewCtl creates a bluetoothctl adapter from configuration.
func NewCtl(cfg config.BluetoothConfig, logger Logger) *Ctl {
	if logger == nil {
		logger = noopLogger{}
	}
	if cfg.CtlBinary == "" {
		cfg.CtlBinary = "bluetoothctl"
	}

	c := &Ctl{
		cfg:    cfg,
		logger: logger,
		events: make(chan Event, eventBufferSize),
	}
	c.runCommand = c.execCommand
	return c
}

// execCommand runs one bluetoothctl invocation and returns combined output.
func (c *Ctl) execCommand(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, c.cfg.CtlBinary, args...) //nolint:gosec // Binary path comes from validated config
	out, err := cmd.CombinedOutput()
	output := string(out)
	if err != nil {
		if execErr, ok := err.(*exec.Error); ok {
			return output, fmt.Errorf("%w: %v", ErrNotAvailable, execErr)
		}
		return output, fmt.Errorf("%w: bluetoothctl %s: %v", ErrCommandFailed, strings.Join(args, " "), err)
	}
	return output, nil
}

// commandTimeout returns the bound for simple one-shot commands.
func (c *Ctl) commandTimeout() time.Duration {
	return defaultCommandTimeout
}

// connectTimeout returns the bound for pair/connect attempts.
func (c *Ctl) connectTimeout() time.Duration {
	if c.cfg.ConnectTimeout > 0 {
		return time.Duration(c.cfg.ConnectTimeout) * time.Second
	}
	return defaultConnectTimeout
}

// run executes a command with the standard timeout applied.
func (c *Ctl) run(ctx context.Context, args ...string) (string, error) {
	runCtx, cancel := context.WithTimeout(ctx, c.commandTimeout())
	defer cancel()
	return c.runCommand(runCtx, args...)
}

// Setup prepares the stack for headless operation.
//
// It registers a NoInputNoOutput agent (speakers have no display, so
// pairing must be confirmation-free), makes it the default, and applies
// the configured discoverable mode. Individual failures are logged and
// tolerated; an unreachable stack is not.
func (c *Ctl) Setup(ctx context.Context) error {
	if _, err := c.run(ctx, "agent", "off"); err != nil {
		// An unregistered agent reports an error; only a missing stack matters.
		if errors.Is(err, ErrNotAvailable) {
			return err
		}
	}

	if _, err := c.run(ctx, "agent", "NoInputNoOutput"); err != nil {
		return fmt.Errorf("registering pairing agent: %w", err)
	}

	if _, err := c.run(ctx, "default-agent"); err != nil {
		c.logger.Warn("failed to set default agent, pairing may require confirmation", "error", err)
	}

	if err := c.SetDiscoverable(ctx, c.cfg.Discoverable); err != nil {
		return err
	}

	c.logger.Info("bluetooth stack ready",
		"adapter", c.cfg.Adapter,
		"discoverable", c.cfg.Discoverable,
	)
	return nil
}

// StartMonitor launches the supervised monitor subprocess that feeds the
// Events channel. Call once after Setup; the supervisor restarts the
// stream if bluetoothd drops it.
func (c *Ctl) StartMonitor(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if c.monitor != nil {
		return nil
	}

	mon := process.NewManager(process.Config{
		Name:             "bluetoothctl-monitor",
		Binary:           c.cfg.CtlBinary,
		Args:             []string{"--monitor"},
		RestartOnFailure: true,
		RestartDelay:     2 * time.Second,
		MaxRestartDelay:  time.Minute,
		OnLine: func(stream, line string) {
			if stream != "stdout" {
				return
			}
			event, ok := parseMonitorLine(line)
			if !ok {
				return
			}
			c.publish(event)
		},
	})
	mon.SetLogger(c.logger)

	if err := mon.Start(ctx); err != nil {
		return fmt.Errorf("%w: starting monitor: %v", ErrNotAvailable, err)
	}

	c.monitor = mon
	return nil
}

// publish delivers an event without blocking the monitor stream.
func (c *Ctl) publish(event Event) {
	select {
	case c.events <- event:
	default:
		c.logger.Warn("event buffer full, dropping event",
			"type", event.Type,
			"address", event.Address,
		)
	}
}

// StartDiscovery begins scanning via a background "scan on" subprocess.
// bluetoothctl keeps scanning only while the command runs, so the process
// stays alive until StopDiscovery.
func (c *Ctl) StartDiscovery(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if c.scanProc != nil && c.scanProc.IsRunning() {
		return nil
	}

	scan := process.NewManager(process.Config{
		Name:             "bluetoothctl-scan",
		Binary:           c.cfg.CtlBinary,
		Args:             []string{"scan", "on"},
		RestartOnFailure: false,
		GracefulTimeout:  3 * time.Second,
	})
	scan.SetLogger(c.logger)

	if err := scan.Start(ctx); err != nil {
		return fmt.Errorf("%w: starting scan: %v", ErrNotAvailable, err)
	}

	c.scanProc = scan
	c.logger.Info("discovery started")
	return nil
}

// StopDiscovery ends an active scan.
func (c *Ctl) StopDiscovery(ctx context.Context) error {
	c.mu.Lock()
	scan := c.scanProc
	c.scanProc = nil
	c.mu.Unlock()

	if scan == nil {
		return nil
	}
	if err := scan.Stop(); err != nil {
		return fmt.Errorf("stopping scan: %w", err)
	}
	c.logger.Info("discovery stopped")
	return nil
}

// Devices returns every device BlueZ currently knows about, enriched
// with per-device info for the paired/connected flags.
func (c *Ctl) Devices(ctx context.Context) ([]DeviceInfo, error) {
	out, err := c.run(ctx, "devices")
	if err != nil {
		return nil, err
	}

	listed := parseDeviceList(out)
	devices := make([]DeviceInfo, 0, len(listed))
	for _, d := range listed {
		info, err := c.DeviceInfo(ctx, d.Address)
		if err != nil {
			// Device vanished between list and info. Keep the listing data.
			c.logger.Debug("device info unavailable", "address", d.Address, "error", err)
			devices = append(devices, d)
			continue
		}
		if info.Name == "" {
			info.Name = d.Name
		}
		devices = append(devices, info)
	}
	return devices, nil
}

// DeviceInfo returns the current properties of one device.
func (c *Ctl) DeviceInfo(ctx context.Context, address string) (DeviceInfo, error) {
	if !ValidAddress(address) {
		return DeviceInfo{}, fmt.Errorf("%w: %q", ErrInvalidAddress, address)
	}
	out, err := c.run(ctx, "info", address)
	if err != nil {
		return DeviceInfo{}, err
	}
	return parseDeviceInfo(address, out), nil
}

// Pair performs the pairing exchange with a device.
func (c *Ctl) Pair(ctx context.Context, address string) error {
	if !ValidAddress(address) {
		return fmt.Errorf("%w: %q", ErrInvalidAddress, address)
	}

	pairCtx, cancel := context.WithTimeout(ctx, c.connectTimeout())
	defer cancel()

	out, err := c.runCommand(pairCtx, "pair", address)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrPairFailed, address, err)
	}
	if !strings.Contains(out, "Pairing successful") {
		return fmt.Errorf("%w: %s: %s", ErrPairFailed, address, firstFailureLine(out))
	}
	return nil
}

// Trust marks a device as trusted so it may reconnect on its own.
func (c *Ctl) Trust(ctx context.Context, address string) error {
	if !ValidAddress(address) {
		return fmt.Errorf("%w: %q", ErrInvalidAddress, address)
	}
	out, err := c.run(ctx, "trust", address)
	if err != nil {
		return err
	}
	if !strings.Contains(out, "trust succeeded") {
		return fmt.Errorf("%w: trust %s: %s", ErrCommandFailed, address, firstFailureLine(out))
	}
	return nil
}

// Remove deletes a device's pairing record.
func (c *Ctl) Remove(ctx context.Context, address string) error {
	if !ValidAddress(address) {
		return fmt.Errorf("%w: %q", ErrInvalidAddress, address)
	}
	out, err := c.run(ctx, "remove", address)
	if err != nil {
		return err
	}
	if !strings.Contains(out, "Device has been removed") && !strings.Contains(out, "not available") {
		return fmt.Errorf("%w: remove %s: %s", ErrCommandFailed, address, firstFailureLine(out))
	}
	return nil
}

// Connect establishes a connection to a paired device.
func (c *Ctl) Connect(ctx context.Context, address string) error {
	if !ValidAddress(address) {
		return fmt.Errorf("%w: %q", ErrInvalidAddress, address)
	}

	connectCtx, cancel := context.WithTimeout(ctx, c.connectTimeout())
	defer cancel()

	out, err := c.runCommand(connectCtx, "connect", address)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrConnectFailed, address, err)
	}
	if !strings.Contains(out, "Connection successful") {
		return fmt.Errorf("%w: %s: %s", ErrConnectFailed, address, firstFailureLine(out))
	}
	return nil
}

// Disconnect drops the connection to a device.
func (c *Ctl) Disconnect(ctx context.Context, address string) error {
	if !ValidAddress(address) {
		return fmt.Errorf("%w: %q", ErrInvalidAddress, address)
	}
	out, err := c.run(ctx, "disconnect", address)
	if err != nil {
		return err
	}
	// bluetoothctl reports "Successful disconnected"; already-disconnected
	// devices report "Device is not connected" which is fine too.
	if !strings.Contains(out, "Successful disconnected") && !strings.Contains(out, "not connected") {
		return fmt.Errorf("%w: disconnect %s: %s", ErrCommandFailed, address, firstFailureLine(out))
	}
	return nil
}

// SignalStrength samples the current RSSI for a connected device.
// Returns ErrCommandFailed when BlueZ has no RSSI for the device.
func (c *Ctl) SignalStrength(ctx context.Context, address string) (int, error) {
	info, err := c.DeviceInfo(ctx, address)
	if err != nil {
		return 0, err
	}
	if !info.HasRSSI {
		return 0, fmt.Errorf("%w: no RSSI for %s", ErrCommandFailed, address)
	}
	return info.RSSI, nil
}

// SetDiscoverable toggles whether this node is visible and pairable.
func (c *Ctl) SetDiscoverable(ctx context.Context, enabled bool) error {
	mode := "off"
	if enabled {
		mode = "on"
	}

	if _, err := c.run(ctx, "discoverable", mode); err != nil {
		return fmt.Errorf("setting discoverable %s: %w", mode, err)
	}
	if _, err := c.run(ctx, "pairable", mode); err != nil {
		return fmt.Errorf("setting pairable %s: %w", mode, err)
	}
	if enabled {
		// No timeout: the node stays discoverable for as long as it runs.
		if _, err := c.run(ctx, "discoverable-timeout", "0"); err != nil {
			c.logger.Warn("failed to clear discoverable timeout", "error", err)
		}
	}
	return nil
}

// Events returns the channel of asynchronous stack events.
func (c *Ctl) Events() <-chan Event {
	return c.events
}

// Close stops the monitor and scan subprocesses and closes Events.
func (c *Ctl) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	mon := c.monitor
	scan := c.scanProc
	c.monitor = nil
	c.scanProc = nil
	c.mu.Unlock()

	var firstErr error
	if scan != nil {
		if err := scan.Stop(); err != nil {
			firstErr = err
		}
	}
	if mon != nil {
		if err := mon.Stop(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	close(c.events)
	return firstErr
}

// firstFailureLine returns the first non-empty line of command output,
// which is where bluetoothctl puts its failure reason.
func firstFailureLine(output string) string {
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(stripANSI(line))
		if line != "" {
			return line
		}
	}
	return "no output"
}
