package api

import "net/http"

type collaborationRequest struct {
	PlaylistID string `json:"playlistId" validate:"required"`
	UserID     string `json:"userId" validate:"required"`
}

func (s *Server) handleAddCollaboration(w http.ResponseWriter, r *http.Request) {
	var req collaborationRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	userID, err := s.caller(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.guard.RequireOwner(r.Context(), req.PlaylistID, userID); err != nil {
		s.writeError(w, r, err)
		return
	}
	id, err := s.store.AddCollaboration(r.Context(), req.PlaylistID, req.UserID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusCreated, "", map[string]string{"collaborationId": id})
}

func (s *Server) handleDeleteCollaboration(w http.ResponseWriter, r *http.Request) {
	var req collaborationRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	userID, err := s.caller(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.guard.RequireOwner(r.Context(), req.PlaylistID, userID); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.store.DeleteCollaboration(r.Context(), req.PlaylistID, req.UserID); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Collaboration removed", nil)
}
