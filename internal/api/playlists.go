package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"playlist-exporter/internal/models"
)

type createPlaylistRequest struct {
	Name string `json:"name" validate:"required,max=255"`
}

type songRequest struct {
	SongID string `json:"songId" validate:"required"`
}

type playlistSummary struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Username string `json:"username"`
}

type playlistWithSongs struct {
	playlistSummary
	Songs []models.Song `json:"songs"`
}

func summarize(p models.Playlist) playlistSummary {
	return playlistSummary{ID: p.ID, Name: p.Name, Username: p.Username}
}

func (s *Server) handleCreatePlaylist(w http.ResponseWriter, r *http.Request) {
	var req createPlaylistRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	userID, err := s.caller(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	id, err := s.store.CreatePlaylist(r.Context(), req.Name, userID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusCreated, "", map[string]string{"playlistId": id})
}

func (s *Server) handleListPlaylists(w http.ResponseWriter, r *http.Request) {
	userID, err := s.caller(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	playlists, err := s.store.ListPlaylists(r.Context(), userID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]playlistSummary, 0, len(playlists))
	for _, p := range playlists {
		out = append(out, summarize(p))
	}
	writeSuccess(w, http.StatusOK, "", map[string]any{"playlists": out})
}

func (s *Server) handleDeletePlaylist(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "playlistId")
	userID, err := s.caller(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.guard.RequireOwner(r.Context(), id, userID); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.store.DeletePlaylist(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Playlist deleted", nil)
}

func (s *Server) handleAddSong(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "playlistId")
	var req songRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	userID, err := s.caller(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.guard.RequireAccess(r.Context(), id, userID); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.store.AddPlaylistSong(r.Context(), id, req.SongID, userID); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusCreated, "Song added to playlist", nil)
}

func (s *Server) handleListSongs(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "playlistId")
	userID, err := s.caller(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.guard.RequireAccess(r.Context(), id, userID); err != nil {
		s.writeError(w, r, err)
		return
	}
	p, err := s.store.GetPlaylist(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	songs, err := s.store.PlaylistSongs(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if songs == nil {
		songs = []models.Song{}
	}
	writeSuccess(w, http.StatusOK, "", map[string]any{"playlist": playlistWithSongs{playlistSummary: summarize(p), Songs: songs}})
}

func (s *Server) handleRemoveSong(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "playlistId")
	var req songRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	userID, err := s.caller(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.guard.RequireAccess(r.Context(), id, userID); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.store.RemovePlaylistSong(r.Context(), id, req.SongID, userID); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Song removed from playlist", nil)
}

func (s *Server) handleActivities(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "playlistId")
	userID, err := s.caller(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.guard.RequireAccess(r.Context(), id, userID); err != nil {
		s.writeError(w, r, err)
		return
	}
	activities, err := s.store.ListActivities(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "", map[string]any{"playlistId": id, "activities": activities})
}
