package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/house-audio/audionode/internal/node"
)

// handleListDevices returns all known devices, with optional query filters.
//
// Query parameters:
//   - state: filter by lifecycle state (discovered, connected, failed, ...)
//   - audio: "true" limits the list to devices with an audio profile
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := s.node.ListDevices(r.Context())
	if err != nil {
		writeNodeError(w, err)
		return
	}

	if state := r.URL.Query().Get("state"); state != "" {
		devices = filterDevices(devices, func(d node.Device) bool {
			return d.State == node.DeviceState(state)
		})
	}
	if r.URL.Query().Get("audio") == "true" {
		devices = filterDevices(devices, func(d node.Device) bool {
			return d.AudioCapable
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{"devices": devices, "count": len(devices)})
}

func filterDevices(devices []node.Device, keep func(node.Device) bool) []node.Device {
	filtered := devices[:0]
	for _, d := range devices {
		if keep(d) {
			filtered = append(filtered, d)
		}
	}
	return filtered
}

// handleGetDevice returns a single device by address.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	dev, err := s.node.GetDevice(r.Context(), chi.URLParam(r, "address"))
	if err != nil {
		writeNodeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dev)
}

// handleRemoveDevice forgets a device: disconnects it and deletes its
// pairing record and stored assignments.
func (s *Server) handleRemoveDevice(w http.ResponseWriter, r *http.Request) {
	if err := s.node.RemoveDevice(r.Context(), chi.URLParam(r, "address")); err != nil {
		writeNodeError(w, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

// handlePairDevice performs the pairing exchange without connecting.
func (s *Server) handlePairDevice(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")
	if err := s.node.Pair(r.Context(), address); err != nil {
		writeNodeError(w, err)
		return
	}
	s.respondWithDevice(w, r, address)
}

// handleConnectDevice connects a device, pairing first if needed.
func (s *Server) handleConnectDevice(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")
	if err := s.node.Connect(r.Context(), address); err != nil {
		writeNodeError(w, err)
		return
	}
	s.respondWithDevice(w, r, address)
}

// handleDisconnectDevice drops a device's connection and its links.
func (s *Server) handleDisconnectDevice(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")
	if err := s.node.Disconnect(r.Context(), address); err != nil {
		writeNodeError(w, err)
		return
	}
	s.respondWithDevice(w, r, address)
}

// respondWithDevice writes the device's current snapshot after a
// lifecycle operation.
func (s *Server) respondWithDevice(w http.ResponseWriter, r *http.Request, address string) {
	dev, err := s.node.GetDevice(r.Context(), address)
	if err != nil {
		writeNodeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dev)
}

// handleStartDiscovery begins scanning for nearby devices.
func (s *Server) handleStartDiscovery(w http.ResponseWriter, r *http.Request) {
	if err := s.node.StartDiscovery(r.Context()); err != nil {
		writeNodeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"discovering": true})
}

// handleStopDiscovery ends an active scan.
func (s *Server) handleStopDiscovery(w http.ResponseWriter, r *http.Request) {
	if err := s.node.StopDiscovery(r.Context()); err != nil {
		writeNodeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"discovering": false})
}
