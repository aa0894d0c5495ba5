package bluetooth

import (
	"regexp"
	"strconv"
	"strings"
)

// ansiPattern matches the colour escapes and readline markers bluetoothctl
// wraps around its interactive output.
var ansiPattern = regexp.MustCompile(`\x01|\x02|\x1b\[[0-9;]*[A-Za-z]`)

// stripANSI removes terminal escape sequences from a bluetoothctl line.
func stripANSI(s string) string {
	return ansiPattern.ReplaceAllString(s, "")
}

// parseDeviceList parses the output of "bluetoothctl devices".
//
// Each line has the form:
//
//	Device AA:BB:CC:DD:EE:FF Some Device Name
func parseDeviceList(output string) []DeviceInfo {
	var devices []DeviceInfo
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(stripANSI(line))
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, " ", 3)
		if len(parts) < 3 || parts[0] != "Device" || !ValidAddress(parts[1]) {
			continue
		}
		devices = append(devices, DeviceInfo{
			Address: parts[1],
			Name:    parts[2],
		})
	}
	return devices
}

// parseDeviceInfo parses the output of "bluetoothctl info <address>".
//
// The output is a header line followed by indented "Key: Value" pairs:
//
//	Device AA:BB:CC:DD:EE:FF (public)
//	        Name: Kitchen Speaker
//	        Class: 0x00240404
//	        Icon: audio-card
//	        Paired: yes
//	        Trusted: yes
//	        Connected: yes
//	        UUID: Audio Sink  (0000110b-0000-1000-8000-00805f9b34fb)
//	        RSSI: -58
func parseDeviceInfo(address, output string) DeviceInfo {
	info := DeviceInfo{Address: address}

	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(stripANSI(line))
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)

		switch key {
		case "Name":
			info.Name = value
		case "Alias":
			info.Alias = value
		case "Class":
			info.Class = value
		case "Icon":
			info.Icon = value
		case "Paired":
			info.Paired = value == "yes"
		case "Trusted":
			info.Trusted = value == "yes"
		case "Connected":
			info.Connected = value == "yes"
		case "RSSI":
			// Newer bluetoothctl prints "RSSI: 0xffffffc6 (-58)".
			if rssi, ok := ParseRSSIValue(value); ok {
				info.RSSI = rssi
				info.HasRSSI = true
			}
		case "UUID":
			if strings.HasPrefix(value, "Audio Sink") || strings.HasPrefix(value, "Advanced Audio") {
				info.AudioCapable = true
			}
		}
	}

	// Class-based fallback for devices that don't enumerate UUIDs yet.
	// 0x24xxxx is the Audio/Video major service class.
	if !info.AudioCapable && strings.HasPrefix(info.Class, "0x") && len(info.Class) >= 4 {
		if info.Class[2:4] == "00" && len(info.Class) >= 6 && info.Class[4:6] == "24" {
			info.AudioCapable = true
		}
	}

	return info
}

// ParseRSSIValue extracts a dBm value from the RSSI property, which may be
// a plain integer ("-58") or hex with a parenthesised decimal
// ("0xffffffc6 (-58)"). The parenthesised value is checked first; naive
// integer parsing would read the leading "0" of the hex form.
func ParseRSSIValue(value string) (int, bool) {
	if open := strings.Index(value, "("); open >= 0 {
		if close := strings.Index(value[open:], ")"); close > 0 {
			value = value[open+1 : open+close]
		}
	}
	rssi, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0, false
	}
	return rssi, true
}

// parseMonitorLine converts one line of "bluetoothctl --monitor" output
// into an Event. Returns ok=false for lines that are not device events
// (prompt noise, adapter changes, agent chatter).
//
// Recognised forms:
//
//	[NEW] Device AA:BB:CC:DD:EE:FF Name
//	[DEL] Device AA:BB:CC:DD:EE:FF Name
//	[CHG] Device AA:BB:CC:DD:EE:FF Connected: yes
//	[CHG] Device AA:BB:CC:DD:EE:FF Paired: yes
//	[CHG] Device AA:BB:CC:DD:EE:FF RSSI: -55
func parseMonitorLine(line string) (Event, bool) {
	line = strings.TrimSpace(stripANSI(line))

	var tag string
	switch {
	case strings.HasPrefix(line, "[NEW]"):
		tag = "NEW"
	case strings.HasPrefix(line, "[DEL]"):
		tag = "DEL"
	case strings.HasPrefix(line, "[CHG]"):
		tag = "CHG"
	default:
		return Event{}, false
	}

	rest := strings.TrimSpace(line[len("[NEW]"):])
	if !strings.HasPrefix(rest, "Device ") {
		return Event{}, false
	}
	rest = strings.TrimSpace(rest[len("Device "):])

	parts := strings.SplitN(rest, " ", 2)
	if len(parts) == 0 || !ValidAddress(parts[0]) {
		return Event{}, false
	}
	address := parts[0]
	remainder := ""
	if len(parts) == 2 {
		remainder = strings.TrimSpace(parts[1])
	}

	switch tag {
	case "NEW":
		return Event{Type: EventDeviceFound, Address: address, Name: remainder}, true
	case "DEL":
		return Event{Type: EventDeviceRemoved, Address: address, Name: remainder}, true
	}

	// CHG: remainder is "Property: value"
	key, value, ok := strings.Cut(remainder, ":")
	if !ok {
		return Event{}, false
	}
	key = strings.TrimSpace(key)
	value = strings.TrimSpace(value)

	switch {
	case key == "Connected" && value == "yes":
		return Event{Type: EventConnected, Address: address}, true
	case key == "Connected" && value == "no":
		return Event{Type: EventDisconnected, Address: address}, true
	case key == "Paired" && value == "yes":
		return Event{Type: EventPaired, Address: address}, true
	default:
		return Event{Type: EventPropertyChanged, Address: address, Key: key, Value: value}, true
	}
}
