package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/house-audio/audionode/internal/node"
)

// createLinkRequest is the request body for POST /devices/{address}/links.
type createLinkRequest struct {
	OutputID string `json:"output_id"`

	// Volume is optional; a stored preference or the configured default
	// applies when omitted.
	Volume *float64 `json:"volume,omitempty"`
}

// volumeRequest is the request body for PUT /devices/{address}/links/{outputID}/volume.
type volumeRequest struct {
	Volume float64 `json:"volume"`
}

// handleCreateLink routes a connected device to an output and persists
// the assignment.
func (s *Server) handleCreateLink(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")

	var req createLinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.OutputID == "" {
		writeBadRequest(w, "output_id is required")
		return
	}

	if err := s.node.AssignOutput(r.Context(), address, req.OutputID, req.Volume); err != nil {
		writeNodeError(w, err)
		return
	}

	link, ok, err := s.findLink(r, address, req.OutputID)
	if err != nil {
		writeNodeError(w, err)
		return
	}
	if !ok {
		writeInternalError(w, "link not recorded after assignment")
		return
	}
	writeJSON(w, http.StatusCreated, link)
}

// handleDeleteLink removes the route between a device and an output.
func (s *Server) handleDeleteLink(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")
	outputID := chi.URLParam(r, "outputID")

	if err := s.node.UnassignOutput(r.Context(), address, outputID); err != nil {
		writeNodeError(w, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

// handleSetLinkVolume changes an active link's volume.
func (s *Server) handleSetLinkVolume(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")
	outputID := chi.URLParam(r, "outputID")

	var req volumeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if err := s.node.SetVolume(r.Context(), address, outputID, req.Volume); err != nil {
		writeNodeError(w, err)
		return
	}

	link, ok, err := s.findLink(r, address, outputID)
	if err != nil {
		writeNodeError(w, err)
		return
	}
	if !ok {
		writeNotFound(w, "link not found")
		return
	}
	writeJSON(w, http.StatusOK, link)
}

// handleListLinks returns every active link on the node.
func (s *Server) handleListLinks(w http.ResponseWriter, r *http.Request) {
	links, err := s.node.ListLinks(r.Context())
	if err != nil {
		writeNodeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"links": links, "count": len(links)})
}

// findLink looks up one link by its endpoints in the current snapshot.
func (s *Server) findLink(r *http.Request, address, outputID string) (node.Link, bool, error) {
	links, err := s.node.ListLinks(r.Context())
	if err != nil {
		return node.Link{}, false, err
	}
	for _, link := range links {
		if link.DeviceAddress == address && link.OutputID == outputID {
			return link, true, nil
		}
	}
	return node.Link{}, false, nil
}
