package node

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/house-audio/audionode/internal/audio"
	"github.com/house-audio/audionode/internal/bluetooth"
	"github.com/house-audio/audionode/internal/infrastructure/config"
	"github.com/house-audio/audionode/internal/routing"
)

// opsBufferSize is the capacity of the manager's operation queue.
const opsBufferSize = 128

// workerTimeout bounds a single background stack interaction beyond the
// adapter's own command timeouts.
const workerTimeout = 60 * time.Second

// Logger defines the logging interface for the node manager.
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

// Telemetry receives best-effort metrics. Implemented by the influxdb
// client; a nil Telemetry disables recording.
type Telemetry interface {
	WriteSignalStrength(address string, rssi int)
	WriteDeviceEvent(address string, event string)
	WriteLinkEvent(address string, outputID string, event string, volume float64)
}

// Deps holds the manager's dependencies.
type Deps struct {
	Config      *config.Config
	Logger      Logger
	Adapter     bluetooth.Adapter
	Backend     audio.Backend
	Assignments routing.Repository

	// Telemetry is optional.
	Telemetry Telemetry
}

// Manager owns all device, output and link state and coordinates the
// Bluetooth and audio layers.
//
// Concurrency model: a single run loop owns the state maps. Public
// methods post closures onto the ops queue and wait for a result, so
// every state mutation is serialized. Stack interactions happen on
// worker goroutines that post their outcome back to the loop; the loop
// itself never blocks on a subprocess.
//
// Operations on the same device are additionally serialized through a
// per-device busy flag and pending queue, so a slow connect cannot
// interleave with a disconnect for the same speaker while devices stay
// independent of each other.
type Manager struct {
	cfg         *config.Config
	logger      Logger
	adapter     bluetooth.Adapter
	backend     audio.Backend
	assignments routing.Repository
	telemetry   Telemetry

	ops     chan func()
	runCtx  context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	events  *broadcaster
	started time.Time

	mu      sync.Mutex
	running bool

	// State below is owned by the run loop. No locks; only loop closures
	// touch it.
	devices      map[string]*Device
	outputs      map[string]audio.Output
	links        map[string]*Link
	linksPending map[string]bool
	busy         map[string]bool
	pending      map[string][]func()
	reconnects   map[string]*time.Timer
	discovering  bool
}

// NewManager creates a node manager. Start must be called before use.
func NewManager(deps Deps) (*Manager, error) {
	if deps.Config == nil {
		return nil, fmt.Errorf("node: config is required")
	}
	if deps.Adapter == nil {
		return nil, fmt.Errorf("node: bluetooth adapter is required")
	}
	if deps.Backend == nil {
		return nil, fmt.Errorf("node: audio backend is required")
	}
	if deps.Assignments == nil {
		return nil, fmt.Errorf("node: assignment repository is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = noopLogger{}
	}

	return &Manager{
		cfg:          deps.Config,
		logger:       logger,
		adapter:      deps.Adapter,
		backend:      deps.Backend,
		assignments:  deps.Assignments,
		telemetry:    deps.Telemetry,
		ops:          make(chan func(), opsBufferSize),
		events:       newBroadcaster(),
		devices:      make(map[string]*Device),
		outputs:      make(map[string]audio.Output),
		links:        make(map[string]*Link),
		linksPending: make(map[string]bool),
		busy:         make(map[string]bool),
		pending:      make(map[string][]func()),
		reconnects:   make(map[string]*time.Timer),
	}, nil
}

// Start prepares the stacks, seeds state from what they already know,
// and launches the run loop. Calling Start on a running manager is a
// no-op.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	if err := m.adapter.Setup(ctx); err != nil {
		return fmt.Errorf("preparing bluetooth stack: %w", err)
	}

	outputs, err := m.backend.Outputs(ctx)
	if err != nil {
		return fmt.Errorf("reading audio outputs: %w", err)
	}
	for _, o := range outputs {
		m.outputs[o.ID] = o
	}

	// Devices BlueZ already knows survive node restarts. Some may even
	// still be connected.
	var connected []string
	known, err := m.adapter.Devices(ctx)
	if err != nil {
		m.logger.Warn("could not list known devices, starting empty", "error", err)
	}
	for _, info := range known {
		state := StateDisconnected
		if !info.Paired {
			state = StateDiscovered
		}
		m.devices[info.Address] = &Device{
			Address:      info.Address,
			Name:         info.Name,
			Paired:       info.Paired,
			Trusted:      info.Trusted,
			AudioCapable: info.AudioCapable,
			State:        state,
			RSSI:         info.RSSI,
			HasRSSI:      info.HasRSSI,
			LastSeen:     time.Now(),
		}
		if info.Connected {
			connected = append(connected, info.Address)
		}
	}

	m.runCtx, m.cancel = context.WithCancel(context.Background())
	m.started = time.Now()

	m.mu.Lock()
	m.running = true
	m.mu.Unlock()

	m.wg.Add(1)
	go m.run()

	// Restore links for devices that were connected across our restart.
	for _, address := range connected {
		addr := address
		m.postAsync(func() { m.markConnected(addr) })
	}

	m.logger.Info("node manager started",
		"node", m.cfg.Node.Name,
		"devices", len(m.devices),
		"outputs", len(m.outputs),
	)
	return nil
}

// Stop shuts down the run loop and releases subscribers. Connected
// devices stay connected; the Bluetooth and audio layers are closed by
// their owners.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	m.mu.Unlock()

	m.cancel()
	m.wg.Wait()
	m.events.close()
	m.logger.Info("node manager stopped")
}

// Subscribe registers an event listener. The returned function
// unsubscribes and closes the channel.
func (m *Manager) Subscribe() (<-chan Event, func()) {
	return m.events.subscribe()
}

// run is the manager's single event loop.
func (m *Manager) run() {
	defer m.wg.Done()

	var rssiTick <-chan time.Time
	if m.cfg.Bluetooth.RSSIPollInterval > 0 {
		ticker := time.NewTicker(time.Duration(m.cfg.Bluetooth.RSSIPollInterval) * time.Second)
		defer ticker.Stop()
		rssiTick = ticker.C
	}

	adapterEvents := m.adapter.Events()
	backendEvents := m.backend.Events()

	defer func() {
		for address, timer := range m.reconnects {
			timer.Stop()
			delete(m.reconnects, address)
		}
	}()

	for {
		select {
		case <-m.runCtx.Done():
			return

		case op := <-m.ops:
			op()

		case event, ok := <-adapterEvents:
			if !ok {
				adapterEvents = nil
				continue
			}
			m.handleAdapterEvent(event)

		case event, ok := <-backendEvents:
			if !ok {
				backendEvents = nil
				continue
			}
			m.handleBackendEvent(event)

		case <-rssiTick:
			m.pollSignalStrength()
		}
	}
}

// postAsync queues a closure for the run loop, dropping it on shutdown.
func (m *Manager) postAsync(op func()) {
	select {
	case m.ops <- op:
	case <-m.runCtx.Done():
	}
}

// call posts a closure and waits for its result.
func (m *Manager) call(ctx context.Context, fn func(result chan<- error)) error {
	m.mu.Lock()
	running := m.running
	m.mu.Unlock()
	if !running {
		return ErrNotRunning
	}

	result := make(chan error, 1)
	select {
	case m.ops <- func() { fn(result) }:
	case <-ctx.Done():
		return ctx.Err()
	case <-m.runCtx.Done():
		return ErrNotRunning
	}

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-m.runCtx.Done():
		return ErrNotRunning
	}
}

// ============================================================================
// Per-device operation serialization
// ============================================================================

// enqueueDeviceOp runs op now if the device is free, otherwise queues it.
// Every op must eventually call finishDeviceOp exactly once.
func (m *Manager) enqueueDeviceOp(address string, op func()) {
	if m.busy[address] {
		m.pending[address] = append(m.pending[address], op)
		return
	}
	m.busy[address] = true
	op()
}

// finishDeviceOp releases the device and starts the next queued op.
func (m *Manager) finishDeviceOp(address string) {
	queue := m.pending[address]
	if len(queue) == 0 {
		delete(m.busy, address)
		delete(m.pending, address)
		return
	}
	next := queue[0]
	m.pending[address] = queue[1:]
	next()
}

// ============================================================================
// Device lifecycle
// ============================================================================

// setState applies a lifecycle transition and publishes it. Invalid
// transitions are logged and applied anyway; staying live matters more
// than the graph when the stack surprises us.
func (m *Manager) setState(dev *Device, to DeviceState) {
	if dev.State == to {
		return
	}
	if !CanTransition(dev.State, to) {
		m.logger.Warn("unexpected state transition",
			"address", dev.Address,
			"from", dev.State,
			"to", to,
		)
	}
	from := dev.State
	dev.State = to
	dev.LastSeen = time.Now()

	m.logger.Info("device state changed",
		"address", dev.Address,
		"name", dev.Name,
		"from", from,
		"to", to,
	)

	copy := dev.Copy()
	m.events.publish(Event{
		Kind:      EventDeviceStateChanged,
		Device:    &copy,
		Timestamp: time.Now(),
	})
}

// Connect establishes a connection to a device, pairing first when
// needed. Connecting an already connected device is a no-op.
func (m *Manager) Connect(ctx context.Context, address string) error {
	if !bluetooth.ValidAddress(address) {
		return fmt.Errorf("%w: %q", ErrInvalidAddress, address)
	}
	return m.call(ctx, func(result chan<- error) {
		dev := m.devices[address]
		if dev == nil {
			result <- fmt.Errorf("%w: %s", ErrDeviceNotFound, address)
			return
		}
		// An explicit request resets the reconnect budget and overrides
		// a failed state.
		m.cancelReconnect(address)
		dev.ReconnectAttempts = 0

		m.enqueueDeviceOp(address, m.connectOp(address, false, result))
	})
}

// connectOp builds the serialized connect operation. A nil-able result
// lets reconnect attempts share the path.
func (m *Manager) connectOp(address string, isReconnect bool, result chan<- error) func() {
	return func() {
		dev := m.devices[address]
		if dev == nil {
			m.finishDeviceOp(address)
			m.deliver(result, fmt.Errorf("%w: %s", ErrDeviceNotFound, address))
			return
		}
		if dev.State == StateConnected {
			m.finishDeviceOp(address)
			m.deliver(result, nil)
			return
		}

		needPair := !dev.Paired
		if needPair {
			m.setState(dev, StatePairing)
		} else {
			m.setState(dev, StateConnecting)
		}

		go m.performConnect(address, needPair, isReconnect, result)
	}
}

// performConnect runs the pair/trust/connect sequence on a worker
// goroutine and posts the outcome back to the loop.
func (m *Manager) performConnect(address string, needPair, isReconnect bool, result chan<- error) {
	ctx, cancel := context.WithTimeout(m.runCtx, workerTimeout)
	defer cancel()

	if needPair {
		if err := m.adapter.Pair(ctx, address); err != nil {
			m.postAsync(func() {
				if dev := m.devices[address]; dev != nil {
					dev.LastError = err.Error()
					m.setState(dev, StateFailed)
				}
				m.writeDeviceEvent(address, "pair_failed")
				m.finishDeviceOp(address)
				m.deliver(result, err)
			})
			return
		}
		if err := m.adapter.Trust(ctx, address); err != nil {
			m.logger.Warn("trust failed after pairing", "address", address, "error", err)
		}
		m.postAsync(func() {
			if dev := m.devices[address]; dev != nil {
				dev.Paired = true
				dev.Trusted = true
				m.setState(dev, StatePaired)
				m.setState(dev, StateConnecting)
			}
			m.writeDeviceEvent(address, "paired")
		})
	}

	err := m.adapter.Connect(ctx, address)

	m.postAsync(func() {
		dev := m.devices[address]
		if dev == nil {
			m.finishDeviceOp(address)
			m.deliver(result, fmt.Errorf("%w: %s", ErrDeviceNotFound, address))
			return
		}

		if err != nil {
			dev.LastError = err.Error()
			if isReconnect {
				// Back to disconnected; the backoff schedule decides
				// whether another attempt happens.
				m.setState(dev, StateDisconnected)
				m.finishDeviceOp(address)
				m.scheduleReconnect(address)
			} else {
				m.setState(dev, StateFailed)
				m.writeDeviceEvent(address, "connect_failed")
				m.finishDeviceOp(address)
			}
			m.deliver(result, err)
			return
		}

		m.finishDeviceOp(address)
		m.markConnected(address)
		m.deliver(result, nil)
	})
}

// deliver sends a result if anyone is waiting for one.
func (m *Manager) deliver(result chan<- error, err error) {
	if result != nil {
		result <- err
	}
}

// markConnected moves a device into the connected state and restores its
// audio links. Idempotent; both our own connect completions and
// device-initiated connection events funnel through here.
func (m *Manager) markConnected(address string) {
	dev := m.devices[address]
	if dev == nil || dev.State == StateConnected {
		return
	}

	dev.Paired = true
	dev.LastError = ""
	dev.ReconnectAttempts = 0
	m.cancelReconnect(address)
	m.setState(dev, StateConnected)
	m.writeDeviceEvent(address, "connected")

	m.restoreLinks(address)
}

// Disconnect drops a device's connection and tears down its links.
// The disconnect is explicit, so no automatic reconnection follows.
func (m *Manager) Disconnect(ctx context.Context, address string) error {
	if !bluetooth.ValidAddress(address) {
		return fmt.Errorf("%w: %q", ErrInvalidAddress, address)
	}
	return m.call(ctx, func(result chan<- error) {
		dev := m.devices[address]
		if dev == nil {
			result <- fmt.Errorf("%w: %s", ErrDeviceNotFound, address)
			return
		}
		m.cancelReconnect(address)
		dev.ReconnectAttempts = 0

		m.enqueueDeviceOp(address, func() {
			dev := m.devices[address]
			if dev == nil || dev.State != StateConnected && dev.State != StateConnecting {
				// Already down. Idempotent.
				m.finishDeviceOp(address)
				m.deliver(result, nil)
				return
			}

			m.setState(dev, StateDisconnecting)
			links := m.linksFor(address)

			go func() {
				workerCtx, cancel := context.WithTimeout(m.runCtx, workerTimeout)
				defer cancel()

				for _, link := range links {
					if err := m.backend.DestroyLink(workerCtx, address, link.OutputID); err != nil {
						m.logger.Warn("link teardown failed during disconnect",
							"address", address,
							"output", link.OutputID,
							"error", err,
						)
					}
				}

				err := m.adapter.Disconnect(workerCtx, address)

				m.postAsync(func() {
					// Local teardown is authoritative. A radio that
					// failed to acknowledge the disconnect will sort
					// itself out; routing state must not depend on it.
					if err != nil {
						m.logger.Warn("radio disconnect failed, local state torn down anyway",
							"address", address,
							"error", err,
						)
					}
					m.dropLinkRecords(address, "destroyed")
					if dev := m.devices[address]; dev != nil {
						if err != nil {
							dev.LastError = err.Error()
						}
						m.setState(dev, StateDisconnected)
					}
					m.writeDeviceEvent(address, "disconnected")
					m.finishDeviceOp(address)
					m.deliver(result, nil)
				})
			}()
		})
	})
}

// Pair performs the pairing exchange without connecting.
func (m *Manager) Pair(ctx context.Context, address string) error {
	if !bluetooth.ValidAddress(address) {
		return fmt.Errorf("%w: %q", ErrInvalidAddress, address)
	}
	return m.call(ctx, func(result chan<- error) {
		dev := m.devices[address]
		if dev == nil {
			result <- fmt.Errorf("%w: %s", ErrDeviceNotFound, address)
			return
		}
		if dev.Paired {
			result <- nil
			return
		}

		m.enqueueDeviceOp(address, func() {
			dev := m.devices[address]
			if dev == nil {
				m.finishDeviceOp(address)
				m.deliver(result, fmt.Errorf("%w: %s", ErrDeviceNotFound, address))
				return
			}
			m.setState(dev, StatePairing)

			go func() {
				workerCtx, cancel := context.WithTimeout(m.runCtx, workerTimeout)
				defer cancel()

				err := m.adapter.Pair(workerCtx, address)
				if err == nil {
					if terr := m.adapter.Trust(workerCtx, address); terr != nil {
						m.logger.Warn("trust failed after pairing", "address", address, "error", terr)
					}
				}

				m.postAsync(func() {
					if dev := m.devices[address]; dev != nil {
						if err != nil {
							dev.LastError = err.Error()
							m.setState(dev, StateFailed)
							m.writeDeviceEvent(address, "pair_failed")
						} else {
							dev.Paired = true
							dev.Trusted = true
							dev.LastError = ""
							m.setState(dev, StatePaired)
							m.writeDeviceEvent(address, "paired")
						}
					}
					m.finishDeviceOp(address)
					m.deliver(result, err)
				})
			}()
		})
	})
}

// RemoveDevice forgets a device entirely: disconnects it, deletes its
// pairing record and stored assignments.
func (m *Manager) RemoveDevice(ctx context.Context, address string) error {
	if !bluetooth.ValidAddress(address) {
		return fmt.Errorf("%w: %q", ErrInvalidAddress, address)
	}
	return m.call(ctx, func(result chan<- error) {
		dev := m.devices[address]
		if dev == nil {
			result <- fmt.Errorf("%w: %s", ErrDeviceNotFound, address)
			return
		}
		m.cancelReconnect(address)

		m.enqueueDeviceOp(address, func() {
			links := m.linksFor(address)
			wasConnected := false
			if dev := m.devices[address]; dev != nil {
				wasConnected = dev.State == StateConnected
			}

			go func() {
				workerCtx, cancel := context.WithTimeout(m.runCtx, workerTimeout)
				defer cancel()

				if wasConnected {
					for _, link := range links {
						_ = m.backend.DestroyLink(workerCtx, address, link.OutputID)
					}
					if err := m.adapter.Disconnect(workerCtx, address); err != nil {
						m.logger.Warn("disconnect before removal failed", "address", address, "error", err)
					}
				}

				err := m.adapter.Remove(workerCtx, address)

				if _, derr := m.assignments.DeleteForDevice(workerCtx, address); derr != nil {
					m.logger.Warn("could not delete stored assignments", "address", address, "error", derr)
				}

				m.postAsync(func() {
					m.dropLinkRecords(address, "destroyed")
					if dev := m.devices[address]; dev != nil {
						copy := dev.Copy()
						delete(m.devices, address)
						m.events.publish(Event{
							Kind:      EventDeviceRemoved,
							Device:    &copy,
							Timestamp: time.Now(),
						})
					}
					m.writeDeviceEvent(address, "removed")
					m.finishDeviceOp(address)
					m.deliver(result, err)
				})
			}()
		})
	})
}

// ============================================================================
// Discovery
// ============================================================================

// StartDiscovery begins scanning for nearby devices.
func (m *Manager) StartDiscovery(ctx context.Context) error {
	return m.call(ctx, func(result chan<- error) {
		if m.discovering {
			result <- nil
			return
		}
		go func() {
			workerCtx, cancel := context.WithTimeout(m.runCtx, workerTimeout)
			defer cancel()
			err := m.adapter.StartDiscovery(workerCtx)
			m.postAsync(func() {
				if err == nil {
					m.discovering = true
				}
				m.deliver(result, err)
			})
		}()
	})
}

// StopDiscovery ends an active scan.
func (m *Manager) StopDiscovery(ctx context.Context) error {
	return m.call(ctx, func(result chan<- error) {
		if !m.discovering {
			result <- nil
			return
		}
		go func() {
			workerCtx, cancel := context.WithTimeout(m.runCtx, workerTimeout)
			defer cancel()
			err := m.adapter.StopDiscovery(workerCtx)
			m.postAsync(func() {
				if err == nil {
					m.discovering = false
				}
				m.deliver(result, err)
			})
		}()
	})
}

// ============================================================================
// Link management
// ============================================================================

// linksFor returns the link records for a device.
func (m *Manager) linksFor(address string) []*Link {
	var links []*Link
	for _, link := range m.links {
		if link.DeviceAddress == address {
			links = append(links, link)
		}
	}
	return links
}

// dropLinkRecords removes all link records for a device and publishes
// their teardown. The backend links themselves are either already torn
// down or died with the source node.
func (m *Manager) dropLinkRecords(address, event string) {
	for key, link := range m.links {
		if link.DeviceAddress != address {
			continue
		}
		delete(m.links, key)
		copy := link.Copy()
		m.events.publish(Event{
			Kind:      EventLinkDestroyed,
			Link:      &copy,
			Timestamp: time.Now(),
		})
		m.writeLinkEvent(address, link.OutputID, event, link.Volume)
	}
}

// restoreLinks re-establishes a freshly connected device's audio links:
// stored assignments when present, otherwise the auto-assign policy.
func (m *Manager) restoreLinks(address string) {
	go func() {
		workerCtx, cancel := context.WithTimeout(m.runCtx, workerTimeout)
		defer cancel()

		stored, err := m.assignments.ListForDevice(workerCtx, address)
		if err != nil {
			m.logger.Warn("could not load stored assignments", "address", address, "error", err)
		}

		m.postAsync(func() {
			dev := m.devices[address]
			if dev == nil || dev.State != StateConnected {
				return
			}

			type target struct {
				outputID string
				volume   float64
			}
			var targets []target

			if len(stored) > 0 {
				for _, a := range stored {
					targets = append(targets, target{a.OutputID, a.Volume})
				}
			} else if m.cfg.Node.AutoAssign && dev.AudioCapable {
				// Auto-assign only routes devices that advertise an
				// audio profile; a keyboard connecting must not claim
				// the speakers.
				outputIDs := m.cfg.Node.DefaultOutputs
				if len(outputIDs) == 0 {
					for id := range m.outputs {
						outputIDs = append(outputIDs, id)
					}
					sort.Strings(outputIDs)
				}
				for _, id := range outputIDs {
					targets = append(targets, target{id, m.cfg.Node.DefaultVolume})
				}
			}

			for _, t := range targets {
				if _, ok := m.outputs[t.outputID]; !ok {
					m.logger.Warn("assigned output not present, skipping",
						"address", address,
						"output", t.outputID,
					)
					continue
				}
				m.establishLink(address, t.outputID, t.volume, nil)
			}
		})
	}()
}

// backendErr translates an adapter failure into the node error
// taxonomy. fallback, when non-nil, classifies errors that are neither
// timeouts nor unavailability.
func backendErr(fallback, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", ErrOperationTimedOut, err)
	case errors.Is(err, audio.ErrBackendUnavailable):
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	case fallback != nil:
		return fmt.Errorf("%w: %v", fallback, err)
	}
	return err
}

// establishLink creates a backend link and records it. Loop context.
func (m *Manager) establishLink(address, outputID string, volume float64, result chan<- error) {
	key := linkKey(address, outputID)
	if _, exists := m.links[key]; exists {
		m.deliver(result, nil)
		return
	}
	if m.linksPending[key] {
		m.deliver(result, nil)
		return
	}
	m.linksPending[key] = true

	go func() {
		workerCtx, cancel := context.WithTimeout(m.runCtx, workerTimeout)
		defer cancel()

		err := m.backend.CreateLink(workerCtx, address, outputID)
		if err == nil {
			if verr := m.backend.SetVolume(workerCtx, outputID, volume); verr != nil {
				m.logger.Warn("volume restore failed on new link",
					"address", address,
					"output", outputID,
					"error", verr,
				)
			}
		}

		m.postAsync(func() {
			delete(m.linksPending, key)

			if err != nil {
				m.logger.Error("link creation failed",
					"address", address,
					"output", outputID,
					"error", err,
				)
				m.writeLinkEvent(address, outputID, "failed", volume)
				m.deliver(result, backendErr(ErrLinkCreationFailed, err))
				return
			}

			link := &Link{
				ID:            uuid.NewString(),
				DeviceAddress: address,
				OutputID:      outputID,
				Volume:        volume,
				CreatedAt:     time.Now(),
			}
			m.links[key] = link

			copy := link.Copy()
			m.events.publish(Event{
				Kind:      EventLinkCreated,
				Link:      &copy,
				Timestamp: time.Now(),
			})
			m.writeLinkEvent(address, outputID, "created", volume)
			m.deliver(result, nil)
		})
	}()
}

// AssignOutput routes a connected device to an output and persists the
// assignment for future connections. A nil volume keeps the stored
// preference, falling back to the configured default.
func (m *Manager) AssignOutput(ctx context.Context, address, outputID string, volume *float64) error {
	if !bluetooth.ValidAddress(address) {
		return fmt.Errorf("%w: %q", ErrInvalidAddress, address)
	}
	if volume != nil && (*volume < 0 || *volume > 1) {
		return fmt.Errorf("%w: %v", ErrInvalidVolume, *volume)
	}
	return m.call(ctx, func(result chan<- error) {
		dev := m.devices[address]
		if dev == nil {
			result <- fmt.Errorf("%w: %s", ErrDeviceNotFound, address)
			return
		}
		if dev.State != StateConnected {
			result <- fmt.Errorf("%w: %s is %s", ErrDeviceNotConnected, address, dev.State)
			return
		}
		if _, ok := m.outputs[outputID]; !ok {
			result <- fmt.Errorf("%w: %q", ErrOutputNotFound, outputID)
			return
		}

		m.enqueueDeviceOp(address, func() {
			vol := m.cfg.Node.DefaultVolume
			if volume != nil {
				vol = *volume
			} else if link, ok := m.links[linkKey(address, outputID)]; ok {
				vol = link.Volume
			}

			go func() {
				workerCtx, cancel := context.WithTimeout(m.runCtx, workerTimeout)
				defer cancel()

				saveErr := m.assignments.Save(workerCtx, &routing.Assignment{
					DeviceAddress: address,
					OutputID:      outputID,
					Volume:        vol,
				})
				if saveErr != nil {
					m.logger.Warn("could not persist assignment",
						"address", address,
						"output", outputID,
						"error", saveErr,
					)
				}

				m.postAsync(func() {
					inner := make(chan error, 1)
					m.establishLink(address, outputID, vol, inner)
					go func() {
						err := <-inner
						m.postAsync(func() {
							m.finishDeviceOp(address)
							m.deliver(result, err)
						})
					}()
				})
			}()
		})
	})
}

// UnassignOutput removes the route between a device and an output and
// deletes the stored assignment.
func (m *Manager) UnassignOutput(ctx context.Context, address, outputID string) error {
	if !bluetooth.ValidAddress(address) {
		return fmt.Errorf("%w: %q", ErrInvalidAddress, address)
	}
	return m.call(ctx, func(result chan<- error) {
		if m.devices[address] == nil {
			result <- fmt.Errorf("%w: %s", ErrDeviceNotFound, address)
			return
		}

		m.enqueueDeviceOp(address, func() {
			key := linkKey(address, outputID)
			link := m.links[key]

			go func() {
				workerCtx, cancel := context.WithTimeout(m.runCtx, workerTimeout)
				defer cancel()

				var destroyErr error
				if link != nil {
					destroyErr = m.backend.DestroyLink(workerCtx, address, outputID)
				}

				deleteErr := m.assignments.Delete(workerCtx, address, outputID)
				if deleteErr != nil && !errors.Is(deleteErr, routing.ErrNotFound) {
					m.logger.Warn("could not delete stored assignment",
						"address", address,
						"output", outputID,
						"error", deleteErr,
					)
				}

				m.postAsync(func() {
					if link != nil {
						delete(m.links, key)
						copy := link.Copy()
						m.events.publish(Event{
							Kind:      EventLinkDestroyed,
							Link:      &copy,
							Timestamp: time.Now(),
						})
						m.writeLinkEvent(address, outputID, "destroyed", link.Volume)
					}

					var err error
					if link == nil && errors.Is(deleteErr, routing.ErrNotFound) {
						err = fmt.Errorf("%w: %s -> %s", ErrLinkNotFound, address, outputID)
					} else if destroyErr != nil {
						err = destroyErr
					}
					m.finishDeviceOp(address)
					m.deliver(result, err)
				})
			}()
		})
	})
}

// SetVolume changes an active link's volume. The in-memory record is
// updated only after the backend accepts the change.
func (m *Manager) SetVolume(ctx context.Context, address, outputID string, volume float64) error {
	if !bluetooth.ValidAddress(address) {
		return fmt.Errorf("%w: %q", ErrInvalidAddress, address)
	}
	if volume < 0 || volume > 1 {
		return fmt.Errorf("%w: %v", ErrInvalidVolume, volume)
	}
	return m.call(ctx, func(result chan<- error) {
		key := linkKey(address, outputID)
		if _, ok := m.links[key]; !ok {
			result <- fmt.Errorf("%w: %s -> %s", ErrLinkNotFound, address, outputID)
			return
		}

		m.enqueueDeviceOp(address, func() {
			go func() {
				workerCtx, cancel := context.WithTimeout(m.runCtx, workerTimeout)
				defer cancel()

				err := m.backend.SetVolume(workerCtx, outputID, volume)
				if err == nil {
					if serr := m.assignments.Save(workerCtx, &routing.Assignment{
						DeviceAddress: address,
						OutputID:      outputID,
						Volume:        volume,
					}); serr != nil {
						m.logger.Warn("could not persist volume",
							"address", address,
							"output", outputID,
							"error", serr,
						)
					}
				}

				m.postAsync(func() {
					if err == nil {
						if link, ok := m.links[key]; ok {
							link.Volume = volume
							copy := link.Copy()
							m.events.publish(Event{
								Kind:      EventLinkVolumeChanged,
								Link:      &copy,
								Timestamp: time.Now(),
							})
							m.writeLinkEvent(address, outputID, "volume", volume)
						}
					}
					m.finishDeviceOp(address)
					m.deliver(result, backendErr(nil, err))
				})
			}()
		})
	})
}

// ============================================================================
// Snapshots
// ============================================================================

// ListDevices returns a snapshot of all known devices, sorted by address.
func (m *Manager) ListDevices(ctx context.Context) ([]Device, error) {
	var devices []Device
	err := m.call(ctx, func(result chan<- error) {
		devices = make([]Device, 0, len(m.devices))
		for _, dev := range m.devices {
			devices = append(devices, dev.Copy())
		}
		sort.Slice(devices, func(i, j int) bool { return devices[i].Address < devices[j].Address })
		result <- nil
	})
	return devices, err
}

// GetDevice returns a snapshot of one device.
func (m *Manager) GetDevice(ctx context.Context, address string) (Device, error) {
	var device Device
	err := m.call(ctx, func(result chan<- error) {
		dev := m.devices[address]
		if dev == nil {
			result <- fmt.Errorf("%w: %s", ErrDeviceNotFound, address)
			return
		}
		device = dev.Copy()
		result <- nil
	})
	return device, err
}

// ListOutputs returns a snapshot of the known outputs, sorted by ID.
func (m *Manager) ListOutputs(ctx context.Context) ([]audio.Output, error) {
	var outputs []audio.Output
	err := m.call(ctx, func(result chan<- error) {
		outputs = make([]audio.Output, 0, len(m.outputs))
		for _, o := range m.outputs {
			outputs = append(outputs, o)
		}
		sort.Slice(outputs, func(i, j int) bool { return outputs[i].ID < outputs[j].ID })
		result <- nil
	})
	return outputs, err
}

// ListLinks returns a snapshot of the active links, sorted by device
// then output.
func (m *Manager) ListLinks(ctx context.Context) ([]Link, error) {
	var links []Link
	err := m.call(ctx, func(result chan<- error) {
		links = make([]Link, 0, len(m.links))
		for _, link := range m.links {
			links = append(links, link.Copy())
		}
		sort.Slice(links, func(i, j int) bool {
			if links[i].DeviceAddress != links[j].DeviceAddress {
				return links[i].DeviceAddress < links[j].DeviceAddress
			}
			return links[i].OutputID < links[j].OutputID
		})
		result <- nil
	})
	return links, err
}

// Status returns a point-in-time summary of the node.
func (m *Manager) Status(ctx context.Context) (Status, error) {
	var status Status
	err := m.call(ctx, func(result chan<- error) {
		connected := 0
		for _, dev := range m.devices {
			if dev.State == StateConnected {
				connected++
			}
		}
		status = Status{
			NodeName:         m.cfg.Node.Name,
			Uptime:           time.Since(m.started),
			Discovering:      m.discovering,
			DeviceCount:      len(m.devices),
			ConnectedDevices: connected,
			OutputCount:      len(m.outputs),
			LinkCount:        len(m.links),
		}
		result <- nil
	})
	return status, err
}

// ============================================================================
// Reconnection
// ============================================================================

// scheduleReconnect arms the backoff timer for the next automatic
// reconnect attempt, or fails the device when the budget is spent.
// Loop context.
func (m *Manager) scheduleReconnect(address string) {
	dev := m.devices[address]
	if dev == nil || !dev.Paired {
		return
	}

	maxAttempts := m.cfg.Reconnect.MaxAttempts
	if maxAttempts <= 0 {
		return
	}
	if dev.ReconnectAttempts >= maxAttempts {
		m.logger.Warn("reconnect budget exhausted",
			"address", address,
			"attempts", dev.ReconnectAttempts,
		)
		m.setState(dev, StateFailed)
		m.writeDeviceEvent(address, "reconnect_exhausted")
		return
	}

	dev.ReconnectAttempts++
	delay := m.reconnectDelay(dev.ReconnectAttempts)

	m.logger.Info("scheduling reconnect",
		"address", address,
		"attempt", dev.ReconnectAttempts,
		"max_attempts", maxAttempts,
		"delay", delay,
	)

	if timer, ok := m.reconnects[address]; ok {
		timer.Stop()
	}
	m.reconnects[address] = time.AfterFunc(delay, func() {
		m.postAsync(func() { m.attemptReconnect(address) })
	})
}

// reconnectDelay computes the backoff delay for the given attempt (1-based).
func (m *Manager) reconnectDelay(attempt int) time.Duration {
	delay := m.cfg.Reconnect.InitialReconnectDelay()
	maxDelay := m.cfg.Reconnect.MaxReconnectDelay()
	multiplier := m.cfg.Reconnect.Multiplier
	if multiplier < 1 {
		multiplier = 1
	}

	for i := 1; i < attempt; i++ {
		delay = time.Duration(float64(delay) * multiplier)
		if delay >= maxDelay {
			return maxDelay
		}
	}
	if delay > maxDelay {
		delay = maxDelay
	}
	return delay
}

// attemptReconnect fires one reconnect attempt if the device is still
// waiting for one. Loop context.
func (m *Manager) attemptReconnect(address string) {
	delete(m.reconnects, address)

	dev := m.devices[address]
	if dev == nil || dev.State != StateDisconnected {
		// An explicit operation or the device itself got there first.
		return
	}

	m.logger.Info("attempting reconnect", "address", address, "attempt", dev.ReconnectAttempts)
	m.enqueueDeviceOp(address, m.connectOp(address, true, nil))
}

// cancelReconnect stops a pending reconnect timer. Loop context.
func (m *Manager) cancelReconnect(address string) {
	if timer, ok := m.reconnects[address]; ok {
		timer.Stop()
		delete(m.reconnects, address)
	}
}

// ============================================================================
// Stack event handling
// ============================================================================

// handleAdapterEvent processes one Bluetooth stack event. Loop context.
func (m *Manager) handleAdapterEvent(event bluetooth.Event) {
	switch event.Type {
	case bluetooth.EventDeviceFound:
		m.handleDeviceFound(event)

	case bluetooth.EventDeviceRemoved:
		dev := m.devices[event.Address]
		if dev == nil {
			return
		}
		m.cancelReconnect(event.Address)
		m.dropLinkRecords(event.Address, "destroyed")
		copy := dev.Copy()
		delete(m.devices, event.Address)
		m.events.publish(Event{
			Kind:      EventDeviceRemoved,
			Device:    &copy,
			Timestamp: time.Now(),
		})

	case bluetooth.EventPaired:
		if dev := m.devices[event.Address]; dev != nil {
			dev.Paired = true
			dev.LastSeen = time.Now()
		}

	case bluetooth.EventConnected:
		if m.devices[event.Address] == nil {
			// A trusted device connected on its own before we ever
			// listed it. Register it, then treat it as connected.
			m.devices[event.Address] = &Device{
				Address:  event.Address,
				Paired:   true,
				State:    StatePaired,
				LastSeen: time.Now(),
			}
			m.enrichDevice(event.Address)
		}
		m.markConnected(event.Address)

	case bluetooth.EventDisconnected:
		dev := m.devices[event.Address]
		if dev == nil {
			return
		}
		switch dev.State {
		case StateConnected:
			// Unexpected drop: range, power off, interference.
			m.logger.Warn("device disconnected unexpectedly", "address", event.Address, "name", dev.Name)
			m.dropLinkRecords(event.Address, "destroyed")
			m.setState(dev, StateDisconnected)
			m.writeDeviceEvent(event.Address, "disconnected_unexpected")
			m.scheduleReconnect(event.Address)
		case StateDisconnecting, StateConnecting:
			// Expected, or a connect attempt that lost the race. The
			// in-flight operation's completion owns the state.
		default:
		}

	case bluetooth.EventPropertyChanged:
		if event.Key == "RSSI" {
			if dev := m.devices[event.Address]; dev != nil {
				if rssi, ok := bluetooth.ParseRSSIValue(event.Value); ok {
					dev.RSSI = rssi
					dev.HasRSSI = true
					dev.LastSeen = time.Now()
				}
			}
		}
	}
}

// handleDeviceFound registers a newly discovered device. Loop context.
func (m *Manager) handleDeviceFound(event bluetooth.Event) {
	if dev := m.devices[event.Address]; dev != nil {
		if dev.Name == "" {
			dev.Name = event.Name
		}
		dev.LastSeen = time.Now()
		return
	}

	dev := &Device{
		Address:  event.Address,
		Name:     event.Name,
		State:    StateDiscovered,
		LastSeen: time.Now(),
	}
	m.devices[event.Address] = dev

	copy := dev.Copy()
	m.events.publish(Event{
		Kind:      EventDeviceFound,
		Device:    &copy,
		Timestamp: time.Now(),
	})

	m.enrichDevice(event.Address)
}

// enrichDevice fills in properties the discovery event doesn't carry.
// Loop context; the info call runs on a worker.
func (m *Manager) enrichDevice(address string) {
	go func() {
		workerCtx, cancel := context.WithTimeout(m.runCtx, workerTimeout)
		defer cancel()

		info, err := m.adapter.DeviceInfo(workerCtx, address)
		if err != nil {
			m.logger.Debug("device enrichment failed", "address", address, "error", err)
			return
		}

		m.postAsync(func() {
			dev := m.devices[address]
			if dev == nil {
				return
			}
			if info.Name != "" {
				dev.Name = info.Name
			}
			dev.AudioCapable = info.AudioCapable
			dev.Trusted = info.Trusted
			if info.Paired {
				dev.Paired = true
			}
			if info.HasRSSI {
				dev.RSSI = info.RSSI
				dev.HasRSSI = true
			}
		})
	}()
}

// handleBackendEvent processes one audio server event. Loop context.
func (m *Manager) handleBackendEvent(event audio.Event) {
	switch event.Type {
	case audio.EventOutputAdded:
		m.outputs[event.Output.ID] = event.Output
		out := event.Output
		m.events.publish(Event{
			Kind:      EventOutputAdded,
			Output:    &out,
			Timestamp: time.Now(),
		})
		m.healLinksForOutput(event.Output.ID)

	case audio.EventOutputRemoved:
		delete(m.outputs, event.Output.ID)
		// Links into a vanished sink are gone, record-keeping only.
		for key, link := range m.links {
			if link.OutputID != event.Output.ID {
				continue
			}
			delete(m.links, key)
			copy := link.Copy()
			m.events.publish(Event{
				Kind:      EventLinkDestroyed,
				Link:      &copy,
				Timestamp: time.Now(),
			})
			m.writeLinkEvent(link.DeviceAddress, link.OutputID, "destroyed", link.Volume)
		}
		out := event.Output
		m.events.publish(Event{
			Kind:      EventOutputRemoved,
			Output:    &out,
			Timestamp: time.Now(),
		})
	}
}

// healLinksForOutput re-establishes links for connected devices with a
// stored assignment to an output that just (re)appeared. This is what
// brings audio back after the audio server restarts. Loop context.
func (m *Manager) healLinksForOutput(outputID string) {
	go func() {
		workerCtx, cancel := context.WithTimeout(m.runCtx, workerTimeout)
		defer cancel()

		stored, err := m.assignments.ListAll(workerCtx)
		if err != nil {
			m.logger.Warn("could not load assignments for link healing", "output", outputID, "error", err)
			return
		}

		m.postAsync(func() {
			if _, ok := m.outputs[outputID]; !ok {
				return
			}
			for _, a := range stored {
				if a.OutputID != outputID {
					continue
				}
				dev := m.devices[a.DeviceAddress]
				if dev == nil || dev.State != StateConnected {
					continue
				}
				m.establishLink(a.DeviceAddress, a.OutputID, a.Volume, nil)
			}
		})
	}()
}

// ============================================================================
// Signal strength
// ============================================================================

// pollSignalStrength samples RSSI for every connected device. Loop
// context; each sample runs on its own worker.
func (m *Manager) pollSignalStrength() {
	for address, dev := range m.devices {
		if dev.State != StateConnected {
			continue
		}
		addr := address
		go func() {
			workerCtx, cancel := context.WithTimeout(m.runCtx, workerTimeout)
			defer cancel()

			rssi, err := m.adapter.SignalStrength(workerCtx, addr)
			if err != nil {
				m.logger.Debug("signal strength unavailable", "address", addr, "error", err)
				return
			}

			if m.telemetry != nil {
				m.telemetry.WriteSignalStrength(addr, rssi)
			}

			m.postAsync(func() {
				dev := m.devices[addr]
				if dev == nil {
					return
				}
				dev.RSSI = rssi
				dev.HasRSSI = true

				// Advisory only. A weak signal never triggers a
				// disconnect.
				if rssi < m.cfg.Bluetooth.LowSignalThreshold {
					m.logger.Warn("weak bluetooth signal",
						"address", addr,
						"name", dev.Name,
						"rssi_dbm", rssi,
						"threshold_dbm", m.cfg.Bluetooth.LowSignalThreshold,
					)
				}
			})
		}()
	}
}

// ============================================================================
// Telemetry helpers
// ============================================================================

func (m *Manager) writeDeviceEvent(address, event string) {
	if m.telemetry != nil {
		m.telemetry.WriteDeviceEvent(address, event)
	}
}

func (m *Manager) writeLinkEvent(address, outputID, event string, volume float64) {
	if m.telemetry != nil {
		m.telemetry.WriteLinkEvent(address, outputID, event, volume)
	}
}

