package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"playlist-exporter/internal/apperr"
)

// AddCollaboration grants userID access to a playlist. A pair can exist once.
func (s *Store) AddCollaboration(ctx context.Context, playlistID, userID string) (string, error) {
	id := "collab-" + uuid.NewString()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO collaborations (id, playlist_id, user_id) VALUES ($1, $2, $3)
	`, id, playlistID, userID)
	if err != nil {
		switch pgCode(err) {
		case codeUniqueViolation:
			return "", apperr.Invariant("user is already a collaborator")
		case codeForeignKeyViolation:
			return "", apperr.NotFound("user not found")
		}
		return "", fmt.Errorf("insert collaboration: %w", err)
	}
	return id, nil
}

// DeleteCollaboration revokes a collaboration.
func (s *Store) DeleteCollaboration(ctx context.Context, playlistID, userID string) error {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM collaborations WHERE playlist_id = $1 AND user_id = $2
	`, playlistID, userID)
	if err != nil {
		return fmt.Errorf("delete collaboration: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.Invariant("collaboration could not be removed")
	}
	return nil
}

// IsCollaborator reports whether a collaboration row exists for the pair.
func (s *Store) IsCollaborator(ctx context.Context, playlistID, userID string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM collaborations WHERE playlist_id = $1 AND user_id = $2)
	`, playlistID, userID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("query collaboration: %w", err)
	}
	return exists, nil
}
