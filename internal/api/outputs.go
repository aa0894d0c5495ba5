package api

import "net/http"

// handleListOutputs returns the playback outputs the audio server
// currently exposes.
func (s *Server) handleListOutputs(w http.ResponseWriter, r *http.Request) {
	outputs, err := s.node.ListOutputs(r.Context())
	if err != nil {
		writeNodeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"outputs": outputs, "count": len(outputs)})
}
