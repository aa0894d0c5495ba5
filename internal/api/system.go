package api

import (
	"net/http"
	"strconv"

	"github.com/house-audio/audionode/internal/journal"
)

// systemStatusResponse is the response body for GET /system/status.
type systemStatusResponse struct {
	NodeName         string `json:"node_name"`
	Version          string `json:"version"`
	UptimeSeconds    int64  `json:"uptime_seconds"`
	Discovering      bool   `json:"discovering"`
	DeviceCount      int    `json:"device_count"`
	ConnectedDevices int    `json:"connected_devices"`
	OutputCount      int    `json:"output_count"`
	LinkCount        int    `json:"link_count"`
	WSClients        int    `json:"ws_clients"`
}

// handleSystemStatus returns a point-in-time summary of the node.
func (s *Server) handleSystemStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.node.Status(r.Context())
	if err != nil {
		writeNodeError(w, err)
		return
	}

	clients := 0
	if s.hub != nil {
		clients = s.hub.ClientCount()
	}

	writeJSON(w, http.StatusOK, systemStatusResponse{
		NodeName:         status.NodeName,
		Version:          s.version,
		UptimeSeconds:    int64(status.Uptime.Seconds()),
		Discovering:      status.Discovering,
		DeviceCount:      status.DeviceCount,
		ConnectedDevices: status.ConnectedDevices,
		OutputCount:      status.OutputCount,
		LinkCount:        status.LinkCount,
		WSClients:        clients,
	})
}

// handleSystemEvents returns the journalled event history, most recent
// first. Supports ?kind=, ?address=, ?output=, ?limit= and ?offset=.
func (s *Server) handleSystemEvents(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "event history is not enabled")
		return
	}

	filter := journal.Filter{
		Kind:     r.URL.Query().Get("kind"),
		Address:  r.URL.Query().Get("address"),
		OutputID: r.URL.Query().Get("output"),
	}

	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			writeBadRequest(w, "limit must be an integer")
			return
		}
		filter.Limit = limit
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil {
			writeBadRequest(w, "offset must be an integer")
			return
		}
		filter.Offset = offset
	}

	result, err := s.journal.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("listing journal entries", "error", err)
		writeInternalError(w, "failed to list events")
		return
	}

	writeJSON(w, http.StatusOK, result)
}
