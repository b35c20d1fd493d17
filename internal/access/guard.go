// Package access decides what a user may do with a playlist.
package access

import (
	"context"

	"playlist-exporter/internal/apperr"
)

// Role is a user's relationship to one playlist.
type Role int

const (
	RoleNone Role = iota
	RoleCollaborator
	RoleOwner
)

func (r Role) String() string {
	switch r {
	case RoleOwner:
		return "owner"
	case RoleCollaborator:
		return "collaborator"
	default:
		return "none"
	}
}

// Store is the relational data the guard reads. PlaylistOwner must return an
// apperr NotFound error for unknown playlists.
type Store interface {
	PlaylistOwner(ctx context.Context, playlistID string) (string, error)
	IsCollaborator(ctx context.Context, playlistID, userID string) (bool, error)
}

// Guard resolves roles and enforces the owner / collaborator tiers.
type Guard struct {
	store Store
}

func NewGuard(store Store) *Guard {
	return &Guard{store: store}
}

// ResolveRole checks playlist existence first, then ownership, then collaboration.
func (g *Guard) ResolveRole(ctx context.Context, playlistID, userID string) (Role, error) {
	owner, err := g.store.PlaylistOwner(ctx, playlistID)
	if err != nil {
		return RoleNone, err
	}
	if owner == userID {
		return RoleOwner, nil
	}
	ok, err := g.store.IsCollaborator(ctx, playlistID, userID)
	if err != nil {
		return RoleNone, err
	}
	if ok {
		return RoleCollaborator, nil
	}
	return RoleNone, nil
}

// RequireOwner fails unless userID owns the playlist.
func (g *Guard) RequireOwner(ctx context.Context, playlistID, userID string) error {
	role, err := g.ResolveRole(ctx, playlistID, userID)
	if err != nil {
		return err
	}
	if role != RoleOwner {
		return apperr.Authorization("you are not allowed to manage this playlist")
	}
	return nil
}

// RequireAccess fails unless userID owns or collaborates on the playlist.
func (g *Guard) RequireAccess(ctx context.Context, playlistID, userID string) error {
	role, err := g.ResolveRole(ctx, playlistID, userID)
	if err != nil {
		return err
	}
	if role == RoleNone {
		return apperr.Authorization("you are not allowed to access this playlist")
	}
	return nil
}
