package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"playlist-exporter/internal/access"
	"playlist-exporter/internal/auth"
	"playlist-exporter/internal/exports"
	"playlist-exporter/internal/models"
	"playlist-exporter/internal/telemetry"
)

// Store is the relational data the HTTP handlers read and mutate.
type Store interface {
	access.Store
	CreatePlaylist(ctx context.Context, name, ownerID string) (string, error)
	GetPlaylist(ctx context.Context, id string) (models.Playlist, error)
	ListPlaylists(ctx context.Context, userID string) ([]models.Playlist, error)
	DeletePlaylist(ctx context.Context, id string) error
	PlaylistSongs(ctx context.Context, playlistID string) ([]models.Song, error)
	AddPlaylistSong(ctx context.Context, playlistID, songID, userID string) error
	RemovePlaylistSong(ctx context.Context, playlistID, songID, userID string) error
	ListActivities(ctx context.Context, playlistID string) ([]models.Activity, error)
	AddCollaboration(ctx context.Context, playlistID, userID string) (string, error)
	DeleteCollaboration(ctx context.Context, playlistID, userID string) error
}

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

// Server wires HTTP handlers for the playlist API.
type Server struct {
	store    Store
	guard    *access.Guard
	exports  *exports.Gateway
	verifier auth.Verifier
	log      logrus.FieldLogger
	checks   map[string]HealthCheck
}

// New constructs the API server.
func New(st Store, gateway *exports.Gateway, verifier auth.Verifier, log logrus.FieldLogger) *Server {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Server{
		store:    st,
		guard:    access.NewGuard(st),
		exports:  gateway,
		verifier: verifier,
		log:      log,
		checks:   map[string]HealthCheck{},
	}
}

// WithHealthCheck adds a dependency probe to /healthz.
func (s *Server) WithHealthCheck(name string, check HealthCheck) *Server {
	s.checks[name] = check
	return s
}

// Router builds the HTTP router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Mount("/metrics", telemetry.Handler())

	r.Group(func(r chi.Router) {
		r.Use(s.requireBearer)

		r.Post("/playlists", s.handleCreatePlaylist)
		r.Get("/playlists", s.handleListPlaylists)
		r.Route("/playlists/{playlistId}", func(r chi.Router) {
			r.Delete("/", s.handleDeletePlaylist)
			r.Post("/songs", s.handleAddSong)
			r.Get("/songs", s.handleListSongs)
			r.Delete("/songs", s.handleRemoveSong)
			r.Get("/activities", s.handleActivities)
			r.Post("/export", s.handleExport)
		})
		r.Post("/export/playlists/{playlistId}", s.handleExport)

		r.Post("/collaborations", s.handleAddCollaboration)
		r.Delete("/collaborations", s.handleDeleteCollaboration)
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	failed := map[string]string{}
	for name, check := range s.checks {
		if err := check(ctx); err != nil {
			failed[name] = err.Error()
		}
	}
	if len(failed) > 0 {
		s.log.WithField("failed", failed).Warn("health check failed")
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable", "checks": failed})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
