package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"playlist-exporter/internal/apperr"
	"playlist-exporter/internal/models"
)

// CreatePlaylist inserts a playlist owned by ownerID and returns its id.
func (s *Store) CreatePlaylist(ctx context.Context, name, ownerID string) (string, error) {
	id := "playlist-" + uuid.NewString()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO playlists (id, name, owner, created_at) VALUES ($1, $2, $3, $4)
	`, id, name, ownerID, time.Now().UTC())
	if err != nil {
		if pgCode(err) == codeForeignKeyViolation {
			return "", apperr.NotFound("user not found")
		}
		return "", fmt.Errorf("insert playlist: %w", err)
	}
	return id, nil
}

// GetPlaylist fetches playlist metadata together with the owner's username.
func (s *Store) GetPlaylist(ctx context.Context, id string) (models.Playlist, error) {
	var p models.Playlist
	var username *string
	err := s.pool.QueryRow(ctx, `
		SELECT p.id, p.name, p.owner, u.username, p.created_at
		FROM playlists p
		LEFT JOIN users u ON u.id = p.owner
		WHERE p.id = $1
	`, id).Scan(&p.ID, &p.Name, &p.OwnerID, &username, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Playlist{}, apperr.NotFound("playlist not found")
	}
	if err != nil {
		return models.Playlist{}, fmt.Errorf("scan playlist: %w", err)
	}
	if username != nil {
		p.Username = *username
	}
	return p, nil
}

// PlaylistOwner returns the owner id of a playlist.
func (s *Store) PlaylistOwner(ctx context.Context, id string) (string, error) {
	var owner string
	err := s.pool.QueryRow(ctx, `SELECT owner FROM playlists WHERE id = $1`, id).Scan(&owner)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", apperr.NotFound("playlist not found")
	}
	if err != nil {
		return "", fmt.Errorf("query playlist owner: %w", err)
	}
	return owner, nil
}

// ListPlaylists returns playlists the user owns or collaborates on.
func (s *Store) ListPlaylists(ctx context.Context, userID string) ([]models.Playlist, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT p.id, p.name, p.owner, COALESCE(u.username, ''), p.created_at
		FROM playlists p
		LEFT JOIN users u ON u.id = p.owner
		LEFT JOIN collaborations c ON c.playlist_id = p.id
		WHERE p.owner = $1 OR c.user_id = $1
		GROUP BY p.id, u.username
		ORDER BY p.created_at
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("query playlists: %w", err)
	}
	defer rows.Close()

	out := []models.Playlist{}
	for rows.Next() {
		var p models.Playlist
		if err := rows.Scan(&p.ID, &p.Name, &p.OwnerID, &p.Username, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan playlist: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// DeletePlaylist removes a playlist; collaborations, membership and activity rows cascade.
func (s *Store) DeletePlaylist(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM playlists WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete playlist: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("playlist not found")
	}
	return nil
}

// PlaylistSongs returns the current membership in insertion order.
func (s *Store) PlaylistSongs(ctx context.Context, playlistID string) ([]models.Song, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT s.id, s.title, s.performer
		FROM playlist_songs ps
		JOIN songs s ON s.id = ps.song_id
		WHERE ps.playlist_id = $1
		ORDER BY ps.added_at, ps.seq
	`, playlistID)
	if err != nil {
		return nil, fmt.Errorf("query playlist songs: %w", err)
	}
	defer rows.Close()

	songs := []models.Song{}
	for rows.Next() {
		var song models.Song
		if err := rows.Scan(&song.ID, &song.Title, &song.Performer); err != nil {
			return nil, fmt.Errorf("scan song: %w", err)
		}
		songs = append(songs, song)
	}
	return songs, rows.Err()
}

// AddPlaylistSong appends a song and records the activity in one transaction.
func (s *Store) AddPlaylistSong(ctx context.Context, playlistID, songID, userID string) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) // safe no-op on commit

	now := time.Now().UTC()
	_, err = tx.Exec(ctx, `
		INSERT INTO playlist_songs (playlist_id, song_id, added_by, added_at) VALUES ($1, $2, $3, $4)
	`, playlistID, songID, userID, now)
	if err != nil {
		switch pgCode(err) {
		case codeForeignKeyViolation:
			return apperr.NotFound("song not found")
		case codeUniqueViolation:
			return apperr.Invariant("song is already in the playlist")
		}
		return fmt.Errorf("insert playlist song: %w", err)
	}
	if err := appendActivity(ctx, tx, playlistID, songID, userID, models.ActionAdd, now); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// RemovePlaylistSong drops a song and records the activity in one transaction.
func (s *Store) RemovePlaylistSong(ctx context.Context, playlistID, songID, userID string) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) // safe no-op on commit

	tag, err := tx.Exec(ctx, `
		DELETE FROM playlist_songs WHERE playlist_id = $1 AND song_id = $2
	`, playlistID, songID)
	if err != nil {
		return fmt.Errorf("delete playlist song: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.Invariant("song is not in the playlist")
	}
	if err := appendActivity(ctx, tx, playlistID, songID, userID, models.ActionDelete, time.Now().UTC()); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func appendActivity(ctx context.Context, tx pgx.Tx, playlistID, songID, userID, action string, at time.Time) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO playlist_song_activities (playlist_id, song_id, user_id, action, time)
		VALUES ($1, $2, $3, $4, $5)
	`, playlistID, songID, userID, action, at)
	if err != nil {
		return fmt.Errorf("insert activity: %w", err)
	}
	return nil
}

// ListActivities returns the song activity log of a playlist, oldest first.
func (s *Store) ListActivities(ctx context.Context, playlistID string) ([]models.Activity, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT COALESCE(u.username, a.user_id), COALESCE(s.title, a.song_id), a.action, a.time
		FROM playlist_song_activities a
		LEFT JOIN users u ON u.id = a.user_id
		LEFT JOIN songs s ON s.id = a.song_id
		WHERE a.playlist_id = $1
		ORDER BY a.time, a.id
	`, playlistID)
	if err != nil {
		return nil, fmt.Errorf("query activities: %w", err)
	}
	defer rows.Close()

	out := []models.Activity{}
	for rows.Next() {
		var a models.Activity
		if err := rows.Scan(&a.Username, &a.Title, &a.Action, &a.Time); err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
