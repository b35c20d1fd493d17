// Package snapshot assembles the playlist view that an export delivers.
package snapshot

import (
	"context"
	"encoding/json"
	"fmt"

	"playlist-exporter/internal/models"
)

// Store is the relational data a snapshot is built from. GetPlaylist must
// return an apperr NotFound error for unknown playlists.
type Store interface {
	GetPlaylist(ctx context.Context, playlistID string) (models.Playlist, error)
	PlaylistSongs(ctx context.Context, playlistID string) ([]models.Song, error)
}

// Reader builds snapshots at read time. Two reads are not isolated from
// concurrent edits; a song added between them may or may not appear.
type Reader struct {
	store Store
}

func NewReader(store Store) *Reader {
	return &Reader{store: store}
}

// Read joins playlist metadata with its current membership.
func (r *Reader) Read(ctx context.Context, playlistID string) (models.PlaylistSnapshot, error) {
	p, err := r.store.GetPlaylist(ctx, playlistID)
	if err != nil {
		return models.PlaylistSnapshot{}, err
	}
	songs, err := r.store.PlaylistSongs(ctx, playlistID)
	if err != nil {
		return models.PlaylistSnapshot{}, fmt.Errorf("read songs of %s: %w", playlistID, err)
	}
	if songs == nil {
		songs = []models.Song{}
	}
	return models.PlaylistSnapshot{ID: p.ID, Name: p.Name, Songs: songs}, nil
}

// Render serializes a snapshot as the indented document attached to the email.
func Render(s models.PlaylistSnapshot) ([]byte, error) {
	out, err := json.MarshalIndent(struct {
		Playlist models.PlaylistSnapshot `json:"playlist"`
	}{Playlist: s}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("render snapshot: %w", err)
	}
	return out, nil
}
