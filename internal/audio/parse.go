package audio

import (
	"encoding/json"
	"strconv"
	"strings"
)

// pwNode is the subset of a pw-dump object the backend cares about.
type pwNode struct {
	ID   int    `json:"id"`
	Type string `json:"type"`
	Info struct {
		Props map[string]any `json:"props"`
	} `json:"info"`
}

// parsePWDump extracts the playback sinks from pw-dump JSON output.
func parsePWDump(data []byte) ([]Output, error) {
	var nodes []pwNode
	if err := json.Unmarshal(data, &nodes); err != nil {
		return nil, err
	}

	var outputs []Output
	for _, node := range nodes {
		if node.Type != "PipeWire:Interface:Node" {
			continue
		}
		props := node.Info.Props
		if props == nil || propString(props, "media.class") != "Audio/Sink" {
			continue
		}

		id := propString(props, "node.name")
		if id == "" {
			id = strconv.Itoa(node.ID)
		}
		name := propString(props, "node.description")
		if name == "" {
			name = id
		}

		channels := propInt(props, "audio.channels", 2)
		rate := propInt(props, "audio.rate", 44100)

		outputs = append(outputs, Output{
			ID:         id,
			NodeID:     node.ID,
			Name:       name,
			Channels:   channels,
			SampleRate: rate,
		})
	}

	return outputs, nil
}

// propString reads a string property, tolerating absent keys.
func propString(props map[string]any, key string) string {
	if v, ok := props[key].(string); ok {
		return v
	}
	return ""
}

// propInt reads a numeric property. pw-dump emits numbers as JSON
// numbers, but some builds quote them.
func propInt(props map[string]any, key string, fallback int) int {
	switch v := props[key].(type) {
	case float64:
		return int(v)
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

// portLink is one directed connection between two ports.
type portLink struct {
	From string
	To   string
}

// parseLinkList parses "pw-link -l" output into directed port links.
//
// The format is a port line followed by indented connection lines:
//
//	bluez_source.AA_BB_CC_DD_EE_FF:monitor_FL
//	  |-> alsa_output.platform-soc_sound:playback_FL
//	alsa_output.platform-soc_sound:playback_FL
//	  |<- bluez_source.AA_BB_CC_DD_EE_FF:monitor_FL
//
// Both directions describe the same link; each is recorded normalised
// as From (source port) and To (destination port).
func parseLinkList(output string) []portLink {
	var links []portLink
	var current string

	for _, raw := range strings.Split(output, "\n") {
		if raw == "" {
			continue
		}
		trimmed := strings.TrimSpace(raw)

		switch {
		case strings.HasPrefix(trimmed, "|->"):
			target := strings.TrimSpace(strings.TrimPrefix(trimmed, "|->"))
			if current != "" && target != "" {
				links = append(links, portLink{From: current, To: stripPortID(target)})
			}
		case strings.HasPrefix(trimmed, "|<-"):
			source := strings.TrimSpace(strings.TrimPrefix(trimmed, "|<-"))
			if current != "" && source != "" {
				links = append(links, portLink{From: stripPortID(source), To: current})
			}
		case !strings.HasPrefix(raw, " ") && !strings.HasPrefix(raw, "\t"):
			current = stripPortID(trimmed)
		}
	}

	return links
}

// stripPortID drops a leading numeric id column ("  42 node:port") that
// newer pw-link versions prepend.
func stripPortID(s string) string {
	fields := strings.Fields(s)
	if len(fields) >= 2 {
		if _, err := strconv.Atoi(fields[0]); err == nil {
			return strings.Join(fields[1:], " ")
		}
	}
	return s
}

// parseWPCtlVolume extracts the volume from "wpctl get-volume" output,
// which has the form "Volume: 0.75" or "Volume: 0.75 [MUTED]".
func parseWPCtlVolume(output string) (float64, bool) {
	fields := strings.Fields(strings.TrimSpace(output))
	if len(fields) < 2 || fields[0] != "Volume:" {
		return 0, false
	}
	volume, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return 0, false
	}
	return volume, true
}
