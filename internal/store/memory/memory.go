// Package memory is an in-process implementation of the playlist store used by
// tests and local experiments. It mirrors the Postgres store's error kinds.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"playlist-exporter/internal/apperr"
	"playlist-exporter/internal/models"
)

type entry struct {
	songID  string
	addedBy string
	addedAt time.Time
}

type activity struct {
	songID string
	userID string
	action string
	at     time.Time
}

// Store keeps users, songs, playlists and their relations in maps.
type Store struct {
	mu             sync.RWMutex
	now            func() time.Time
	users          map[string]string
	songs          map[string]models.Song
	playlists      map[string]models.Playlist
	order          []string
	collaborations map[string]map[string]string
	entries        map[string][]entry
	activities     map[string][]activity
}

// New returns an empty store.
func New() *Store {
	return &Store{
		now:            time.Now,
		users:          map[string]string{},
		songs:          map[string]models.Song{},
		playlists:      map[string]models.Playlist{},
		collaborations: map[string]map[string]string{},
		entries:        map[string][]entry{},
		activities:     map[string][]activity{},
	}
}

// AddUser registers a user id with its username.
func (s *Store) AddUser(id, username string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[id] = username
}

// AddSong registers a catalogue song.
func (s *Store) AddSong(song models.Song) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.songs[song.ID] = song
}

func (s *Store) CreatePlaylist(_ context.Context, name, ownerID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[ownerID]; !ok {
		return "", apperr.NotFound("user not found")
	}
	id := "playlist-" + uuid.NewString()
	s.playlists[id] = models.Playlist{ID: id, Name: name, OwnerID: ownerID, CreatedAt: s.now().UTC()}
	s.order = append(s.order, id)
	return id, nil
}

func (s *Store) GetPlaylist(_ context.Context, id string) (models.Playlist, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.playlists[id]
	if !ok {
		return models.Playlist{}, apperr.NotFound("playlist not found")
	}
	p.Username = s.users[p.OwnerID]
	return p, nil
}

func (s *Store) PlaylistOwner(_ context.Context, id string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.playlists[id]
	if !ok {
		return "", apperr.NotFound("playlist not found")
	}
	return p.OwnerID, nil
}

func (s *Store) ListPlaylists(_ context.Context, userID string) ([]models.Playlist, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []models.Playlist{}
	for _, id := range s.order {
		p, ok := s.playlists[id]
		if !ok {
			continue
		}
		_, collaborator := s.collaborations[id][userID]
		if p.OwnerID == userID || collaborator {
			p.Username = s.users[p.OwnerID]
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *Store) DeletePlaylist(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.playlists[id]; !ok {
		return apperr.NotFound("playlist not found")
	}
	delete(s.playlists, id)
	delete(s.collaborations, id)
	delete(s.entries, id)
	delete(s.activities, id)
	return nil
}

func (s *Store) PlaylistSongs(_ context.Context, playlistID string) ([]models.Song, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	songs := make([]models.Song, 0, len(s.entries[playlistID]))
	for _, e := range s.entries[playlistID] {
		if song, ok := s.songs[e.songID]; ok {
			songs = append(songs, song)
		}
	}
	return songs, nil
}

func (s *Store) AddPlaylistSong(_ context.Context, playlistID, songID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.playlists[playlistID]; !ok {
		return apperr.NotFound("playlist not found")
	}
	if _, ok := s.songs[songID]; !ok {
		return apperr.NotFound("song not found")
	}
	for _, e := range s.entries[playlistID] {
		if e.songID == songID {
			return apperr.Invariant("song is already in the playlist")
		}
	}
	now := s.now().UTC()
	s.entries[playlistID] = append(s.entries[playlistID], entry{songID: songID, addedBy: userID, addedAt: now})
	s.activities[playlistID] = append(s.activities[playlistID], activity{songID: songID, userID: userID, action: models.ActionAdd, at: now})
	return nil
}

func (s *Store) RemovePlaylistSong(_ context.Context, playlistID, songID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := s.entries[playlistID]
	for i, e := range entries {
		if e.songID != songID {
			continue
		}
		s.entries[playlistID] = append(entries[:i:i], entries[i+1:]...)
		s.activities[playlistID] = append(s.activities[playlistID], activity{songID: songID, userID: userID, action: models.ActionDelete, at: s.now().UTC()})
		return nil
	}
	return apperr.Invariant("song is not in the playlist")
}

func (s *Store) ListActivities(_ context.Context, playlistID string) ([]models.Activity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Activity, 0, len(s.activities[playlistID]))
	for _, a := range s.activities[playlistID] {
		username, ok := s.users[a.userID]
		if !ok {
			username = a.userID
		}
		title := a.songID
		if song, ok := s.songs[a.songID]; ok {
			title = song.Title
		}
		out = append(out, models.Activity{Username: username, Title: title, Action: a.action, Time: a.at})
	}
	return out, nil
}

func (s *Store) AddCollaboration(_ context.Context, playlistID, userID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.playlists[playlistID]; !ok {
		return "", apperr.NotFound("playlist not found")
	}
	if _, ok := s.users[userID]; !ok {
		return "", apperr.NotFound("user not found")
	}
	if _, exists := s.collaborations[playlistID][userID]; exists {
		return "", apperr.Invariant("user is already a collaborator")
	}
	if s.collaborations[playlistID] == nil {
		s.collaborations[playlistID] = map[string]string{}
	}
	id := "collab-" + uuid.NewString()
	s.collaborations[playlistID][userID] = id
	return id, nil
}

func (s *Store) DeleteCollaboration(_ context.Context, playlistID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.collaborations[playlistID][userID]; !exists {
		return apperr.Invariant("collaboration could not be removed")
	}
	delete(s.collaborations[playlistID], userID)
	return nil
}

func (s *Store) IsCollaborator(_ context.Context, playlistID, userID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.collaborations[playlistID][userID]
	return ok, nil
}
