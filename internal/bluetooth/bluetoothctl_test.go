package bluetooth

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/house-audio/audionode/internal/infrastructure/config"
)

// fakeRunner records invocations and replays canned responses keyed by
// the first argument (the bluetoothctl subcommand).
type fakeRunner struct {
	calls     [][]string
	responses map[string]string
	errs      map[string]error
}

func (f *fakeRunner) run(_ context.Context, args ...string) (string, error) {
	f.calls = append(f.calls, args)
	key := strings.Join(args, " ")
	if err, ok := f.errs[key]; ok {
		return f.responses[key], err
	}
	if out, ok := f.responses[key]; ok {
		return out, nil
	}
	return "", nil
}

func newTestCtl(t *testing.T, runner *fakeRunner) *Ctl {
	t.Helper()
	c := NewCtl(config.BluetoothConfig{
		Adapter:        "hci0",
		CtlBinary:      "bluetoothctl",
		ConnectTimeout: 1,
	}, nil)
	c.runCommand = runner.run
	return c
}

const testAddr = "AA:BB:CC:DD:EE:FF"

func TestPair_Success(t *testing.T) {
	runner := &fakeRunner{responses: map[string]string{
		"pair " + testAddr: "Attempting to pair with " + testAddr + "\nPairing successful\n",
	}}
	c := newTestCtl(t, runner)

	if err := c.Pair(context.Background(), testAddr); err != nil {
		t.Errorf("Pair() error = %v", err)
	}
}

func TestPair_Failure(t *testing.T) {
	runner := &fakeRunner{responses: map[string]string{
		"pair " + testAddr: "Failed to pair: org.bluez.Error.AuthenticationFailed\n",
	}}
	c := newTestCtl(t, runner)

	err := c.Pair(context.Background(), testAddr)
	if !errors.Is(err, ErrPairFailed) {
		t.Errorf("Pair() error = %v, want ErrPairFailed", err)
	}
}

func TestPair_InvalidAddress(t *testing.T) {
	c := newTestCtl(t, &fakeRunner{})

	err := c.Pair(context.Background(), "not-an-address")
	if !errors.Is(err, ErrInvalidAddress) {
		t.Errorf("Pair() error = %v, want ErrInvalidAddress", err)
	}
}

func TestConnect_Success(t *testing.T) {
	runner := &fakeRunner{responses: map[string]string{
		"connect " + testAddr: "Attempting to connect to " + testAddr + "\nConnection successful\n",
	}}
	c := newTestCtl(t, runner)

	if err := c.Connect(context.Background(), testAddr); err != nil {
		t.Errorf("Connect() error = %v", err)
	}
}

func TestConnect_Failure(t *testing.T) {
	runner := &fakeRunner{responses: map[string]string{
		"connect " + testAddr: "Failed to connect: org.bluez.Error.Failed br-connection-page-timeout\n",
	}}
	c := newTestCtl(t, runner)

	err := c.Connect(context.Background(), testAddr)
	if !errors.Is(err, ErrConnectFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectFailed", err)
	}
}

func TestDisconnect_AlreadyDisconnected(t *testing.T) {
	runner := &fakeRunner{responses: map[string]string{
		"disconnect " + testAddr: "Device is not connected\n",
	}}
	c := newTestCtl(t, runner)

	if err := c.Disconnect(context.Background(), testAddr); err != nil {
		t.Errorf("Disconnect() on disconnected device error = %v, want nil", err)
	}
}

func TestTrust_Success(t *testing.T) {
	runner := &fakeRunner{responses: map[string]string{
		"trust " + testAddr: "Changing " + testAddr + " trust succeeded\n",
	}}
	c := newTestCtl(t, runner)

	if err := c.Trust(context.Background(), testAddr); err != nil {
		t.Errorf("Trust() error = %v", err)
	}
}

func TestSignalStrength(t *testing.T) {
	runner := &fakeRunner{responses: map[string]string{
		"info " + testAddr: "Device " + testAddr + " (public)\n\tName: Speaker\n\tConnected: yes\n\tRSSI: -62\n",
	}}
	c := newTestCtl(t, runner)

	rssi, err := c.SignalStrength(context.Background(), testAddr)
	if err != nil {
		t.Fatalf("SignalStrength() error = %v", err)
	}
	if rssi != -62 {
		t.Errorf("SignalStrength() = %d, want -62", rssi)
	}
}

func TestSignalStrength_NoRSSI(t *testing.T) {
	runner := &fakeRunner{responses: map[string]string{
		"info " + testAddr: "Device " + testAddr + " (public)\n\tName: Speaker\n\tConnected: no\n",
	}}
	c := newTestCtl(t, runner)

	_, err := c.SignalStrength(context.Background(), testAddr)
	if !errors.Is(err, ErrCommandFailed) {
		t.Errorf("SignalStrength() error = %v, want ErrCommandFailed", err)
	}
}

func TestSetDiscoverable_On(t *testing.T) {
	runner := &fakeRunner{responses: map[string]string{}}
	c := newTestCtl(t, runner)

	if err := c.SetDiscoverable(context.Background(), true); err != nil {
		t.Fatalf("SetDiscoverable() error = %v", err)
	}

	want := [][]string{
		{"discoverable", "on"},
		{"pairable", "on"},
		{"discoverable-timeout", "0"},
	}
	if len(runner.calls) != len(want) {
		t.Fatalf("got %d calls, want %d: %v", len(runner.calls), len(want), runner.calls)
	}
	for i := range want {
		if strings.Join(runner.calls[i], " ") != strings.Join(want[i], " ") {
			t.Errorf("call %d = %v, want %v", i, runner.calls[i], want[i])
		}
	}
}

func TestDevices_MergesInfo(t *testing.T) {
	runner := &fakeRunner{responses: map[string]string{
		"devices":          "Device " + testAddr + " Kitchen Speaker\n",
		"info " + testAddr: "Device " + testAddr + " (public)\n\tName: Kitchen Speaker\n\tPaired: yes\n\tConnected: yes\n\tUUID: Audio Sink (0000110b-0000-1000-8000-00805f9b34fb)\n",
	}}
	c := newTestCtl(t, runner)

	devices, err := c.Devices(context.Background())
	if err != nil {
		t.Fatalf("Devices() error = %v", err)
	}
	if len(devices) != 1 {
		t.Fatalf("Devices() returned %d devices, want 1", len(devices))
	}
	d := devices[0]
	if !d.Paired || !d.Connected || !d.AudioCapable {
		t.Errorf("device = %+v, want paired connected audio-capable", d)
	}
}

func TestClose_Idempotent(t *testing.T) {
	c := newTestCtl(t, &fakeRunner{})

	if err := c.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}

	// Events channel is closed after Close.
	if _, open := <-c.Events(); open {
		t.Error("Events() channel still open after Close()")
	}
}
