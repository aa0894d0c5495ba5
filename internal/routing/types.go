package routing

import "time"

// Assignment is a persisted routing preference for one device/output pair.
type Assignment struct {
	DeviceAddress string    `json:"device_address"`
	OutputID      string    `json:"output_id"`
	Volume        float64   `json:"volume"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}
