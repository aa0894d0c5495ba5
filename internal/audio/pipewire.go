package audio

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/house-audio/audionode/internal/infrastructure/config"
)

// Defaults for backend invocations and polling.
const (
	defaultCommandTimeout = 5 * time.Second
	defaultPollInterval   = 2 * time.Second

	// eventBufferSize is the capacity of the Events channel.
	eventBufferSize = 16
)

// PipeWire is the pw-link/wpctl-backed implementation of Backend.
type PipeWire struct {
	cfg    config.AudioConfig
	logger Logger

	events chan Event

	// runCommand executes one backend tool invocation. Replaceable in
	// tests so nothing forks.
	runCommand func(ctx context.Context, binary string, args ...string) (string, error)

	mu      sync.RWMutex
	outputs map[string]Output // keyed by stable node name
	closed  bool

	watchCancel context.CancelFunc
	watchDone   chan struct{}
}

// NewPipeWire creates a PipeWire backend from configuration.
func NewPipeWire(cfg config.AudioConfig, logger Logger) *PipeWire {
	if logger == nil {
		logger = noopLogger{}
	}
	if cfg.PWLinkBinary == "" {
		cfg.PWLinkBinary = "pw-link"
	}
	if cfg.WPCtlBinary == "" {
		cfg.WPCtlBinary = "wpctl"
	}
	if cfg.PWDumpBinary == "" {
		cfg.PWDumpBinary = "pw-dump"
	}

	p := &PipeWire{
		cfg:     cfg,
		logger:  logger,
		events:  make(chan Event, eventBufferSize),
		outputs: make(map[string]Output),
	}
	p.runCommand = p.execCommand
	return p
}

// execCommand runs one backend tool invocation and returns combined output.
func (p *PipeWire) execCommand(ctx context.Context, binary string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec // Binary paths come from validated config
	out, err := cmd.CombinedOutput()
	output := string(out)
	if err != nil {
		if _, ok := err.(*exec.Error); ok {
			return output, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
		}
		return output, fmt.Errorf("%w: %s %s: %v: %s", ErrCommandFailed, binary, strings.Join(args, " "), err, strings.TrimSpace(output))
	}
	return output, nil
}

func (p *PipeWire) commandTimeout() time.Duration {
	if p.cfg.CommandTimeout > 0 {
		return time.Duration(p.cfg.CommandTimeout) * time.Second
	}
	return defaultCommandTimeout
}

func (p *PipeWire) pollInterval() time.Duration {
	if p.cfg.PollInterval > 0 {
		return time.Duration(p.cfg.PollInterval) * time.Second
	}
	return defaultPollInterval
}

// run executes a command with the standard timeout applied.
func (p *PipeWire) run(ctx context.Context, binary string, args ...string) (string, error) {
	runCtx, cancel := context.WithTimeout(ctx, p.commandTimeout())
	defer cancel()
	return p.runCommand(runCtx, binary, args...)
}

// Start performs the initial topology read and launches the poll loop
// that keeps the output cache fresh and feeds the Events channel.
func (p *PipeWire) Start(ctx context.Context) error {
	if err := p.refreshOutputs(ctx); err != nil {
		return fmt.Errorf("initial topology read: %w", err)
	}

	watchCtx, cancel := context.WithCancel(ctx)
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		cancel()
		return ErrClosed
	}
	p.watchCancel = cancel
	p.watchDone = make(chan struct{})
	done := p.watchDone
	p.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(p.pollInterval())
		defer ticker.Stop()

		for {
			select {
			case <-watchCtx.Done():
				return
			case <-ticker.C:
				if err := p.refreshOutputs(watchCtx); err != nil {
					// Server restarting. Keep the last snapshot and retry
					// on the next tick.
					p.logger.Warn("topology refresh failed", "error", err)
				}
			}
		}
	}()

	p.logger.Info("audio backend started",
		"outputs", len(p.snapshot()),
		"poll_interval", p.pollInterval(),
	)
	return nil
}

// refreshOutputs re-reads the sink list and emits add/remove events for
// the difference against the cached topology.
func (p *PipeWire) refreshOutputs(ctx context.Context) error {
	out, err := p.run(ctx, p.cfg.PWDumpBinary)
	if err != nil {
		return err
	}

	fresh, err := parsePWDump([]byte(out))
	if err != nil {
		return fmt.Errorf("parsing pw-dump output: %w", err)
	}

	freshMap := make(map[string]Output, len(fresh))
	for _, o := range fresh {
		freshMap[o.ID] = o
	}

	p.mu.Lock()
	previous := p.outputs
	p.outputs = freshMap
	closed := p.closed
	p.mu.Unlock()

	if closed {
		return ErrClosed
	}

	for id, o := range freshMap {
		if _, ok := previous[id]; !ok {
			p.logger.Info("output appeared", "output", id, "name", o.Name)
			p.publish(Event{Type: EventOutputAdded, Output: o})
		}
	}
	for id, o := range previous {
		if _, ok := freshMap[id]; !ok {
			p.logger.Info("output disappeared", "output", id, "name", o.Name)
			p.publish(Event{Type: EventOutputRemoved, Output: o})
		}
	}

	return nil
}

// publish delivers an event without blocking the poll loop.
func (p *PipeWire) publish(event Event) {
	select {
	case p.events <- event:
	default:
		p.logger.Warn("event buffer full, dropping event",
			"type", event.Type,
			"output", event.Output.ID,
		)
	}
}

// snapshot returns a copy of the cached outputs.
func (p *PipeWire) snapshot() []Output {
	p.mu.RLock()
	defer p.mu.RUnlock()
	outputs := make([]Output, 0, len(p.outputs))
	for _, o := range p.outputs {
		outputs = append(outputs, o)
	}
	return outputs
}

// Outputs returns the current playback sinks.
//
// Before Start the cache is cold, so the topology is read on demand.
func (p *PipeWire) Outputs(ctx context.Context) ([]Output, error) {
	p.mu.RLock()
	cold := len(p.outputs) == 0
	p.mu.RUnlock()

	if cold {
		if err := p.refreshOutputs(ctx); err != nil {
			return nil, err
		}
	}
	return p.snapshot(), nil
}

// lookupOutput resolves an output by ID, refreshing the topology once
// if the cache misses.
func (p *PipeWire) lookupOutput(ctx context.Context, outputID string) (Output, error) {
	p.mu.RLock()
	o, ok := p.outputs[outputID]
	p.mu.RUnlock()
	if ok {
		return o, nil
	}

	if err := p.refreshOutputs(ctx); err != nil {
		return Output{}, err
	}

	p.mu.RLock()
	o, ok = p.outputs[outputID]
	p.mu.RUnlock()
	if !ok {
		return Output{}, fmt.Errorf("%w: %q", ErrOutputNotFound, outputID)
	}
	return o, nil
}

// CreateLink routes a device's stream to an output, one pw-link call per
// channel. Mono outputs get only the left channel; PipeWire mixes the
// downstream signal.
func (p *PipeWire) CreateLink(ctx context.Context, address string, outputID string) error {
	output, err := p.lookupOutput(ctx, outputID)
	if err != nil {
		return err
	}

	source := SourceNode(address)
	channels := []string{"FL"}
	if !output.Mono() {
		channels = append(channels, "FR")
	}

	for _, ch := range channels {
		from := source + ":monitor_" + ch
		to := outputID + ":playback_" + ch
		out, err := p.run(ctx, p.cfg.PWLinkBinary, from, to)
		if err != nil {
			// Re-linking existing ports reports "File exists".
			if strings.Contains(out, "File exists") {
				continue
			}
			return fmt.Errorf("%w: %s -> %s: %v", ErrLinkFailed, from, to, err)
		}
	}

	p.logger.Info("link created", "source", source, "output", outputID, "channels", len(channels))
	return nil
}

// DestroyLink removes the routing between a device and an output.
// Links that are already gone are not an error.
func (p *PipeWire) DestroyLink(ctx context.Context, address string, outputID string) error {
	source := SourceNode(address)

	for _, ch := range []string{"FL", "FR"} {
		from := source + ":monitor_" + ch
		to := outputID + ":playback_" + ch
		out, err := p.run(ctx, p.cfg.PWLinkBinary, "-d", from, to)
		if err != nil {
			if strings.Contains(out, "No such") || strings.Contains(out, "not found") {
				continue
			}
			return fmt.Errorf("%w: unlinking %s -> %s: %v", ErrLinkFailed, from, to, err)
		}
	}

	p.logger.Info("link destroyed", "source", source, "output", outputID)
	return nil
}

// LinkActive reports whether the device's stream is currently routed to
// the output, by inspecting the live link list.
func (p *PipeWire) LinkActive(ctx context.Context, address string, outputID string) (bool, error) {
	out, err := p.run(ctx, p.cfg.PWLinkBinary, "-l")
	if err != nil {
		return false, err
	}

	source := SourceNode(address)
	for _, link := range parseLinkList(out) {
		if strings.HasPrefix(link.From, source+":") && strings.HasPrefix(link.To, outputID+":") {
			return true, nil
		}
	}
	return false, nil
}

// SetVolume sets an output's volume via wpctl.
func (p *PipeWire) SetVolume(ctx context.Context, outputID string, volume float64) error {
	if volume < 0 || volume > 1 {
		return fmt.Errorf("%w: %v", ErrInvalidVolume, volume)
	}

	output, err := p.lookupOutput(ctx, outputID)
	if err != nil {
		return err
	}

	_, err = p.run(ctx, p.cfg.WPCtlBinary, "set-volume", fmt.Sprintf("%d", output.NodeID), fmt.Sprintf("%.2f", volume))
	if err != nil {
		return err
	}

	p.logger.Debug("volume set", "output", outputID, "volume", volume)
	return nil
}

// Volume reads an output's current volume via wpctl.
func (p *PipeWire) Volume(ctx context.Context, outputID string) (float64, error) {
	output, err := p.lookupOutput(ctx, outputID)
	if err != nil {
		return 0, err
	}

	out, err := p.run(ctx, p.cfg.WPCtlBinary, "get-volume", fmt.Sprintf("%d", output.NodeID))
	if err != nil {
		return 0, err
	}

	volume, ok := parseWPCtlVolume(out)
	if !ok {
		return 0, fmt.Errorf("%w: unexpected get-volume output: %q", ErrCommandFailed, strings.TrimSpace(out))
	}
	return volume, nil
}

// Events returns the channel of topology change events.
func (p *PipeWire) Events() <-chan Event {
	return p.events
}

// Close stops the topology watcher and closes Events.
func (p *PipeWire) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	cancel := p.watchCancel
	done := p.watchDone
	p.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}

	close(p.events)
	return nil
}
