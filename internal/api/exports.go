package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"playlist-exporter/internal/exports"
)

// handleExport queues an export. 201 means queued, not delivered.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	var req exports.Request
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	userID, err := s.caller(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.exports.Request(r.Context(), userID, chi.URLParam(r, "playlistId"), req); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusCreated, "Your request is being processed", nil)
}
