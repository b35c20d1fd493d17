package snapshot

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"playlist-exporter/internal/apperr"
	"playlist-exporter/internal/models"
	"playlist-exporter/internal/store/memory"
)

func TestReadReflectsMembershipAtReadTime(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	st.AddUser("u1", "owner")
	st.AddSong(models.Song{ID: "song-1", Title: "Highway Star", Performer: "Deep Purple"})
	st.AddSong(models.Song{ID: "song-2", Title: "Roadrunner", Performer: "The Modern Lovers"})
	pl, err := st.CreatePlaylist(ctx, "Road Trip", "u1")
	require.NoError(t, err)

	reader := NewReader(st)
	snap, err := reader.Read(ctx, pl)
	require.NoError(t, err)
	require.Equal(t, "Road Trip", snap.Name)
	require.NotNil(t, snap.Songs)
	require.Empty(t, snap.Songs)

	require.NoError(t, st.AddPlaylistSong(ctx, pl, "song-2", "u1"))
	require.NoError(t, st.AddPlaylistSong(ctx, pl, "song-1", "u1"))

	snap, err = reader.Read(ctx, pl)
	require.NoError(t, err)
	require.Equal(t, []models.Song{
		{ID: "song-2", Title: "Roadrunner", Performer: "The Modern Lovers"},
		{ID: "song-1", Title: "Highway Star", Performer: "Deep Purple"},
	}, snap.Songs)
}

func TestReadMissingPlaylist(t *testing.T) {
	_, err := NewReader(memory.New()).Read(context.Background(), "playlist-gone")
	require.True(t, apperr.Is(err, apperr.KindNotFound), "got %v", err)
}

func TestRenderShape(t *testing.T) {
	out, err := Render(models.PlaylistSnapshot{
		ID:    "playlist-1",
		Name:  "Road Trip",
		Songs: []models.Song{{ID: "song-1", Title: "Highway Star", Performer: "Deep Purple"}},
	})
	require.NoError(t, err)

	var doc struct {
		Playlist struct {
			ID    string `json:"id"`
			Name  string `json:"name"`
			Songs []struct {
				ID        string `json:"id"`
				Title     string `json:"title"`
				Performer string `json:"performer"`
			} `json:"songs"`
		} `json:"playlist"`
	}
	require.NoError(t, json.Unmarshal(out, &doc))
	require.Equal(t, "Road Trip", doc.Playlist.Name)
	require.Len(t, doc.Playlist.Songs, 1)
	require.Equal(t, "Deep Purple", doc.Playlist.Songs[0].Performer)
	require.Contains(t, string(out), "\n  \"playlist\"")
}
