package audio

import "testing"

const samplePWDump = `[
  {
    "id": 31,
    "type": "PipeWire:Interface:Node",
    "info": {
      "props": {
        "media.class": "Audio/Sink",
        "node.name": "alsa_output.platform-soc_sound.stereo-fallback",
        "node.description": "Built-in Audio Stereo",
        "audio.channels": 2,
        "audio.rate": 48000
      }
    }
  },
  {
    "id": 45,
    "type": "PipeWire:Interface:Node",
    "info": {
      "props": {
        "media.class": "Audio/Sink",
        "node.name": "alsa_output.usb-mono_amp",
        "node.description": "Patio Amplifier",
        "audio.channels": "1"
      }
    }
  },
  {
    "id": 50,
    "type": "PipeWire:Interface:Node",
    "info": {
      "props": {
        "media.class": "Audio/Source",
        "node.name": "bluez_source.AA_BB_CC_DD_EE_FF"
      }
    }
  },
  {
    "id": 7,
    "type": "PipeWire:Interface:Port",
    "info": { "props": {} }
  }
]`

func TestParsePWDump(t *testing.T) {
	outputs, err := parsePWDump([]byte(samplePWDump))
	if err != nil {
		t.Fatalf("parsePWDump() error = %v", err)
	}
	if len(outputs) != 2 {
		t.Fatalf("parsePWDump() returned %d outputs, want 2", len(outputs))
	}

	stereo := outputs[0]
	if stereo.ID != "alsa_output.platform-soc_sound.stereo-fallback" {
		t.Errorf("outputs[0].ID = %q", stereo.ID)
	}
	if stereo.NodeID != 31 {
		t.Errorf("outputs[0].NodeID = %d, want 31", stereo.NodeID)
	}
	if stereo.Name != "Built-in Audio Stereo" {
		t.Errorf("outputs[0].Name = %q", stereo.Name)
	}
	if stereo.Channels != 2 || stereo.Mono() {
		t.Errorf("outputs[0] channels = %d, mono = %v", stereo.Channels, stereo.Mono())
	}
	if stereo.SampleRate != 48000 {
		t.Errorf("outputs[0].SampleRate = %d, want 48000", stereo.SampleRate)
	}

	mono := outputs[1]
	if !mono.Mono() {
		t.Errorf("outputs[1].Mono() = false, want true (quoted channel count)")
	}
	if mono.SampleRate != 44100 {
		t.Errorf("outputs[1].SampleRate = %d, want default 44100", mono.SampleRate)
	}
}

func TestParsePWDump_Invalid(t *testing.T) {
	if _, err := parsePWDump([]byte("not json")); err == nil {
		t.Error("parsePWDump() on garbage should return error")
	}
}

func TestParsePWDump_Empty(t *testing.T) {
	outputs, err := parsePWDump([]byte("[]"))
	if err != nil {
		t.Fatalf("parsePWDump() error = %v", err)
	}
	if len(outputs) != 0 {
		t.Errorf("parsePWDump([]) returned %d outputs, want 0", len(outputs))
	}
}

func TestParseLinkList(t *testing.T) {
	output := `bluez_source.AA_BB_CC_DD_EE_FF:monitor_FL
  |-> alsa_output.platform-soc_sound:playback_FL
bluez_source.AA_BB_CC_DD_EE_FF:monitor_FR
  |-> alsa_output.platform-soc_sound:playback_FR
alsa_output.platform-soc_sound:playback_FL
  |<- bluez_source.AA_BB_CC_DD_EE_FF:monitor_FL
`

	links := parseLinkList(output)
	if len(links) != 3 {
		t.Fatalf("parseLinkList() returned %d links, want 3", len(links))
	}

	want := portLink{
		From: "bluez_source.AA_BB_CC_DD_EE_FF:monitor_FL",
		To:   "alsa_output.platform-soc_sound:playback_FL",
	}
	if links[0] != want {
		t.Errorf("links[0] = %+v, want %+v", links[0], want)
	}
	// The |<- line describes the same link from the sink side.
	if links[2] != want {
		t.Errorf("links[2] = %+v, want %+v", links[2], want)
	}
}

func TestParseLinkList_WithIDColumn(t *testing.T) {
	output := `bluez_source.AA_BB_CC_DD_EE_FF:monitor_FL
  |->  102 alsa_output.platform-soc_sound:playback_FL
`

	links := parseLinkList(output)
	if len(links) != 1 {
		t.Fatalf("parseLinkList() returned %d links, want 1", len(links))
	}
	if links[0].To != "alsa_output.platform-soc_sound:playback_FL" {
		t.Errorf("links[0].To = %q", links[0].To)
	}
}

func TestParseLinkList_Empty(t *testing.T) {
	if links := parseLinkList(""); len(links) != 0 {
		t.Errorf("parseLinkList(\"\") returned %d links, want 0", len(links))
	}
}

func TestParseWPCtlVolume(t *testing.T) {
	tests := []struct {
		output string
		want   float64
		wantOK bool
	}{
		{"Volume: 0.75", 0.75, true},
		{"Volume: 1.00", 1.0, true},
		{"Volume: 0.40 [MUTED]", 0.40, true},
		{"Error: object not found", 0, false},
		{"", 0, false},
	}

	for _, tt := range tests {
		got, ok := parseWPCtlVolume(tt.output)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("parseWPCtlVolume(%q) = (%v, %v), want (%v, %v)", tt.output, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestSourceNode(t *testing.T) {
	got := SourceNode("AA:BB:CC:DD:EE:FF")
	want := "bluez_source.AA_BB_CC_DD_EE_FF"
	if got != want {
		t.Errorf("SourceNode() = %q, want %q", got, want)
	}
}
