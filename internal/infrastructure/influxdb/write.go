package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteSignalStrength records an RSSI reading for a connected device.
//
// The write is non-blocking; data is batched and sent asynchronously.
//
// Parameters:
//   - address: Bluetooth hardware address (e.g., "AA:BB:CC:DD:EE:FF")
//   - rssi: Received signal strength in dBm (typically -30 to -100)
func (c *Client) WriteSignalStrength(address string, rssi int) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"signal_strength",
		map[string]string{
			"device_address": address,
		},
		map[string]interface{}{
			"rssi_dbm": rssi,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteDeviceEvent records a device lifecycle transition.
//
// Parameters:
//   - address: Bluetooth hardware address
//   - event: Transition name (e.g., "connected", "disconnected", "pair_failed")
func (c *Client) WriteDeviceEvent(address string, event string) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"device_events",
		map[string]string{
			"device_address": address,
			"event":          event,
		},
		map[string]interface{}{
			"count": 1,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteLinkEvent records an audio link lifecycle transition.
//
// Parameters:
//   - address: Source device address
//   - outputID: Destination output identifier
//   - event: Transition name (e.g., "created", "destroyed", "failed")
//   - volume: Link volume at the time of the event, 0.0-1.0
func (c *Client) WriteLinkEvent(address string, outputID string, event string, volume float64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"link_events",
		map[string]string{
			"device_address": address,
			"output_id":      outputID,
			"event":          event,
		},
		map[string]interface{}{
			"volume": volume,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for measurements that don't fit the helper methods.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}

// WritePointWithTime writes a custom point with a specific timestamp.
//
// Use this when the timestamp is not "now" (e.g., delayed data).
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, timestamp)
	c.writeAPI.WritePoint(point)
}
