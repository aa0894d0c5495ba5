package audio

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/house-audio/audionode/internal/infrastructure/config"
)

// fakeRunner replays canned responses keyed by "binary arg1 arg2 ...".
type fakeRunner struct {
	calls     []string
	responses map[string]string
	errs      map[string]error
}

func (f *fakeRunner) run(_ context.Context, binary string, args ...string) (string, error) {
	key := strings.Join(append([]string{binary}, args...), " ")
	f.calls = append(f.calls, key)
	if err, ok := f.errs[key]; ok {
		return f.responses[key], err
	}
	return f.responses[key], nil
}

func newTestBackend(t *testing.T, runner *fakeRunner) *PipeWire {
	t.Helper()
	p := NewPipeWire(config.AudioConfig{
		PWLinkBinary:   "pw-link",
		WPCtlBinary:    "wpctl",
		PWDumpBinary:   "pw-dump",
		CommandTimeout: 1,
	}, nil)
	p.runCommand = runner.run
	return p
}

const testAddr = "AA:BB:CC:DD:EE:FF"

func TestOutputs_ColdCache(t *testing.T) {
	runner := &fakeRunner{responses: map[string]string{
		"pw-dump": samplePWDump,
	}}
	p := newTestBackend(t, runner)

	outputs, err := p.Outputs(context.Background())
	if err != nil {
		t.Fatalf("Outputs() error = %v", err)
	}
	if len(outputs) != 2 {
		t.Fatalf("Outputs() returned %d, want 2", len(outputs))
	}
}

func TestCreateLink_Stereo(t *testing.T) {
	runner := &fakeRunner{responses: map[string]string{
		"pw-dump": samplePWDump,
	}}
	p := newTestBackend(t, runner)

	err := p.CreateLink(context.Background(), testAddr, "alsa_output.platform-soc_sound.stereo-fallback")
	if err != nil {
		t.Fatalf("CreateLink() error = %v", err)
	}

	wantCalls := []string{
		"pw-dump",
		"pw-link bluez_source.AA_BB_CC_DD_EE_FF:monitor_FL alsa_output.platform-soc_sound.stereo-fallback:playback_FL",
		"pw-link bluez_source.AA_BB_CC_DD_EE_FF:monitor_FR alsa_output.platform-soc_sound.stereo-fallback:playback_FR",
	}
	if len(runner.calls) != len(wantCalls) {
		t.Fatalf("got %d calls, want %d: %v", len(runner.calls), len(wantCalls), runner.calls)
	}
	for i, want := range wantCalls {
		if runner.calls[i] != want {
			t.Errorf("call %d = %q, want %q", i, runner.calls[i], want)
		}
	}
}

func TestCreateLink_MonoGetsOneChannel(t *testing.T) {
	runner := &fakeRunner{responses: map[string]string{
		"pw-dump": samplePWDump,
	}}
	p := newTestBackend(t, runner)

	err := p.CreateLink(context.Background(), testAddr, "alsa_output.usb-mono_amp")
	if err != nil {
		t.Fatalf("CreateLink() error = %v", err)
	}

	// One pw-dump plus exactly one pw-link (FL only).
	linkCalls := 0
	for _, call := range runner.calls {
		if strings.HasPrefix(call, "pw-link ") {
			linkCalls++
			if strings.Contains(call, "_FR") {
				t.Errorf("mono output got FR link: %q", call)
			}
		}
	}
	if linkCalls != 1 {
		t.Errorf("mono output got %d link calls, want 1", linkCalls)
	}
}

func TestCreateLink_ExistingLinkIsIdempotent(t *testing.T) {
	key := "pw-link bluez_source.AA_BB_CC_DD_EE_FF:monitor_FL alsa_output.usb-mono_amp:playback_FL"
	runner := &fakeRunner{
		responses: map[string]string{
			"pw-dump": samplePWDump,
			key:       "failed to link ports: File exists\n",
		},
		errs: map[string]error{
			key: ErrCommandFailed,
		},
	}
	p := newTestBackend(t, runner)

	if err := p.CreateLink(context.Background(), testAddr, "alsa_output.usb-mono_amp"); err != nil {
		t.Errorf("CreateLink() on existing link error = %v, want nil", err)
	}
}

func TestCreateLink_UnknownOutput(t *testing.T) {
	runner := &fakeRunner{responses: map[string]string{
		"pw-dump": samplePWDump,
	}}
	p := newTestBackend(t, runner)

	err := p.CreateLink(context.Background(), testAddr, "no-such-output")
	if !errors.Is(err, ErrOutputNotFound) {
		t.Errorf("CreateLink() error = %v, want ErrOutputNotFound", err)
	}
}

func TestDestroyLink_MissingLinkIsNotAnError(t *testing.T) {
	flKey := "pw-link -d bluez_source.AA_BB_CC_DD_EE_FF:monitor_FL alsa_output.usb-mono_amp:playback_FL"
	runner := &fakeRunner{
		responses: map[string]string{
			flKey: "No such link\n",
		},
		errs: map[string]error{
			flKey: ErrCommandFailed,
		},
	}
	p := newTestBackend(t, runner)

	if err := p.DestroyLink(context.Background(), testAddr, "alsa_output.usb-mono_amp"); err != nil {
		t.Errorf("DestroyLink() on missing link error = %v, want nil", err)
	}
}

func TestLinkActive(t *testing.T) {
	runner := &fakeRunner{responses: map[string]string{
		"pw-link -l": `bluez_source.AA_BB_CC_DD_EE_FF:monitor_FL
  |-> alsa_output.usb-mono_amp:playback_FL
`,
	}}
	p := newTestBackend(t, runner)

	active, err := p.LinkActive(context.Background(), testAddr, "alsa_output.usb-mono_amp")
	if err != nil {
		t.Fatalf("LinkActive() error = %v", err)
	}
	if !active {
		t.Error("LinkActive() = false, want true")
	}

	active, err = p.LinkActive(context.Background(), testAddr, "alsa_output.other")
	if err != nil {
		t.Fatalf("LinkActive() error = %v", err)
	}
	if active {
		t.Error("LinkActive() for unlinked output = true, want false")
	}
}

func TestSetVolume(t *testing.T) {
	runner := &fakeRunner{responses: map[string]string{
		"pw-dump": samplePWDump,
	}}
	p := newTestBackend(t, runner)

	if err := p.SetVolume(context.Background(), "alsa_output.usb-mono_amp", 0.7); err != nil {
		t.Fatalf("SetVolume() error = %v", err)
	}

	found := false
	for _, call := range runner.calls {
		if call == "wpctl set-volume 45 0.70" {
			found = true
		}
	}
	if !found {
		t.Errorf("wpctl set-volume not invoked as expected: %v", runner.calls)
	}
}

func TestSetVolume_OutOfRange(t *testing.T) {
	p := newTestBackend(t, &fakeRunner{})

	for _, v := range []float64{-0.1, 1.1, 2.0} {
		if err := p.SetVolume(context.Background(), "x", v); !errors.Is(err, ErrInvalidVolume) {
			t.Errorf("SetVolume(%v) error = %v, want ErrInvalidVolume", v, err)
		}
	}
}

func TestSetVolume_Boundaries(t *testing.T) {
	runner := &fakeRunner{responses: map[string]string{
		"pw-dump": samplePWDump,
	}}
	p := newTestBackend(t, runner)

	for _, v := range []float64{0.0, 1.0} {
		if err := p.SetVolume(context.Background(), "alsa_output.usb-mono_amp", v); err != nil {
			t.Errorf("SetVolume(%v) error = %v, want nil", v, err)
		}
	}
}

func TestVolume(t *testing.T) {
	runner := &fakeRunner{responses: map[string]string{
		"pw-dump":            samplePWDump,
		"wpctl get-volume 45": "Volume: 0.55",
	}}
	p := newTestBackend(t, runner)

	volume, err := p.Volume(context.Background(), "alsa_output.usb-mono_amp")
	if err != nil {
		t.Fatalf("Volume() error = %v", err)
	}
	if volume != 0.55 {
		t.Errorf("Volume() = %v, want 0.55", volume)
	}
}

func TestRefreshOutputs_EmitsEvents(t *testing.T) {
	runner := &fakeRunner{responses: map[string]string{
		"pw-dump": samplePWDump,
	}}
	p := newTestBackend(t, runner)

	if err := p.refreshOutputs(context.Background()); err != nil {
		t.Fatalf("refreshOutputs() error = %v", err)
	}

	// Two sinks appeared from a cold cache.
	added := 0
	for i := 0; i < 2; i++ {
		select {
		case event := <-p.Events():
			if event.Type != EventOutputAdded {
				t.Errorf("event %d type = %q, want %q", i, event.Type, EventOutputAdded)
			}
			added++
		default:
		}
	}
	if added != 2 {
		t.Fatalf("got %d output_added events, want 2", added)
	}

	// Second refresh with one sink gone emits a removal.
	runner.responses["pw-dump"] = `[
	  {
	    "id": 31,
	    "type": "PipeWire:Interface:Node",
	    "info": {
	      "props": {
	        "media.class": "Audio/Sink",
	        "node.name": "alsa_output.platform-soc_sound.stereo-fallback",
	        "node.description": "Built-in Audio Stereo"
	      }
	    }
	  }
	]`

	if err := p.refreshOutputs(context.Background()); err != nil {
		t.Fatalf("second refreshOutputs() error = %v", err)
	}

	select {
	case event := <-p.Events():
		if event.Type != EventOutputRemoved {
			t.Errorf("event type = %q, want %q", event.Type, EventOutputRemoved)
		}
		if event.Output.ID != "alsa_output.usb-mono_amp" {
			t.Errorf("removed output = %q", event.Output.ID)
		}
	default:
		t.Fatal("no output_removed event emitted")
	}
}

func TestClose_Idempotent(t *testing.T) {
	p := newTestBackend(t, &fakeRunner{})

	if err := p.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if err := p.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}

	if _, open := <-p.Events(); open {
		t.Error("Events() channel still open after Close()")
	}
}
