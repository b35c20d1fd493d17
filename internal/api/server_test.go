package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"playlist-exporter/internal/access"
	"playlist-exporter/internal/auth"
	"playlist-exporter/internal/config"
	"playlist-exporter/internal/exports"
	"playlist-exporter/internal/logging"
	"playlist-exporter/internal/models"
	"playlist-exporter/internal/queue"
	"playlist-exporter/internal/ratelimit"
	"playlist-exporter/internal/snapshot"
	"playlist-exporter/internal/store/memory"
	"playlist-exporter/internal/worker"
)

const tokenKey = "test-access-key"

type mail struct {
	to      string
	content []byte
}

type inbox struct {
	mu   sync.Mutex
	mail []mail
}

func (i *inbox) Send(_ context.Context, to string, content []byte) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.mail = append(i.mail, mail{to: to, content: content})
	return nil
}

type env struct {
	t      *testing.T
	st     *memory.Store
	q      *queue.RedisQueue
	router http.Handler
	worker *worker.Processor
	inbox  *inbox
}

func newEnv(t *testing.T, rateCapacity int) *env {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	st := memory.New()
	st.AddUser("u1", "alice")
	st.AddUser("u2", "bob")
	st.AddUser("u3", "carol")
	st.AddSong(models.Song{ID: "song-1", Title: "Highway Star", Performer: "Deep Purple"})
	st.AddSong(models.Song{ID: "song-2", Title: "Roadrunner", Performer: "The Modern Lovers"})

	log := logging.Discard()
	q := queue.NewRedisQueue(client, config.Config{}, log)
	limiter := ratelimit.NewTokenBucket(client, "ratelimit:export:", rateCapacity, 0, time.Hour)
	gateway := exports.NewGateway(access.NewGuard(st), q, limiter, log)
	server := New(st, gateway, auth.NewJWTVerifier(tokenKey, time.Hour), log).
		WithHealthCheck("redis", q.Ping)

	box := &inbox{}
	proc := worker.NewProcessor(config.Config{AckPolicy: config.AckAlways}, q, snapshot.NewReader(st), box, log)
	return &env{t: t, st: st, q: q, router: server.Router(), worker: proc, inbox: box}
}

func token(t *testing.T, userID string) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, auth.Claims{
		UserID:           userID,
		RegisteredClaims: jwt.RegisteredClaims{IssuedAt: jwt.NewNumericDate(time.Now())},
	}).SignedString([]byte(tokenKey))
	require.NoError(t, err)
	return signed
}

type reply struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (e *env) do(method, path, userID, body string) (int, reply) {
	e.t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("Authorization", "Bearer "+token(e.t, userID))
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)

	var out reply
	if rec.Body.Len() > 0 {
		require.NoError(e.t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	}
	return rec.Code, out
}

func (e *env) createPlaylist(owner, name string) string {
	e.t.Helper()
	code, out := e.do(http.MethodPost, "/playlists", owner, `{"name":"`+name+`"}`)
	require.Equal(e.t, http.StatusCreated, code, out.Message)
	var data struct {
		PlaylistID string `json:"playlistId"`
	}
	require.NoError(e.t, json.Unmarshal(out.Data, &data))
	require.NotEmpty(e.t, data.PlaylistID)
	return data.PlaylistID
}

func (e *env) depth() int64 {
	e.t.Helper()
	n, err := e.q.Depth(context.Background(), exports.QueueName)
	require.NoError(e.t, err)
	return n
}

func (e *env) runWorker() bool {
	e.t.Helper()
	delivered, err := e.q.ConsumeOnce(context.Background(), exports.QueueName, e.worker.Handle)
	require.NoError(e.t, err)
	return delivered
}

func TestRoadTripExportReachesCollaboratorFriend(t *testing.T) {
	e := newEnv(t, 10)
	pl := e.createPlaylist("u1", "Road Trip")

	code, _ := e.do(http.MethodPost, "/collaborations", "u1", `{"playlistId":"`+pl+`","userId":"u2"}`)
	require.Equal(t, http.StatusCreated, code)
	for _, song := range []string{"song-1", "song-2"} {
		code, out := e.do(http.MethodPost, "/playlists/"+pl+"/songs", "u2", `{"songId":"`+song+`"}`)
		require.Equal(t, http.StatusCreated, code, out.Message)
	}

	code, out := e.do(http.MethodPost, "/playlists/"+pl+"/export", "u2", `{"targetEmail":"friend@example.com"}`)
	require.Equal(t, http.StatusCreated, code)
	require.Equal(t, "success", out.Status)
	require.Equal(t, "Your request is being processed", out.Message)
	require.EqualValues(t, 1, e.depth())

	require.True(t, e.runWorker())
	require.Len(t, e.inbox.mail, 1)
	require.Equal(t, "friend@example.com", e.inbox.mail[0].to)

	var doc struct {
		Playlist models.PlaylistSnapshot `json:"playlist"`
	}
	require.NoError(t, json.Unmarshal(e.inbox.mail[0].content, &doc))
	require.Equal(t, pl, doc.Playlist.ID)
	require.Equal(t, "Road Trip", doc.Playlist.Name)
	require.Equal(t, []models.Song{
		{ID: "song-1", Title: "Highway Star", Performer: "Deep Purple"},
		{ID: "song-2", Title: "Roadrunner", Performer: "The Modern Lovers"},
	}, doc.Playlist.Songs)

	pending, err := e.q.Pending(context.Background(), exports.QueueName)
	require.NoError(t, err)
	require.Zero(t, pending)
}

func TestExportAliasRoute(t *testing.T) {
	e := newEnv(t, 10)
	pl := e.createPlaylist("u1", "Focus")

	code, _ := e.do(http.MethodPost, "/export/playlists/"+pl, "u1", `{"targetEmail":"me@example.com"}`)
	require.Equal(t, http.StatusCreated, code)
	require.EqualValues(t, 1, e.depth())
}

func TestExportRejections(t *testing.T) {
	e := newEnv(t, 10)
	pl := e.createPlaylist("u1", "Road Trip")

	cases := []struct {
		name   string
		user   string
		header string
		path   string
		body   string
		code   int
	}{
		{name: "stranger", user: "u3", path: "/playlists/" + pl + "/export", body: `{"targetEmail":"friend@example.com"}`, code: http.StatusForbidden},
		{name: "unknown playlist", user: "u1", path: "/playlists/playlist-nope/export", body: `{"targetEmail":"friend@example.com"}`, code: http.StatusNotFound},
		{name: "invalid email", user: "u1", path: "/playlists/" + pl + "/export", body: `{"targetEmail":"friend"}`, code: http.StatusBadRequest},
		{name: "missing email", user: "u1", path: "/playlists/" + pl + "/export", body: `{}`, code: http.StatusBadRequest},
		{name: "malformed json", user: "u1", path: "/playlists/" + pl + "/export", body: `{"targetEmail":`, code: http.StatusBadRequest},
		{name: "no header", path: "/playlists/" + pl + "/export", body: `{"targetEmail":"friend@example.com"}`, code: http.StatusUnauthorized},
		{name: "bad token", header: "Bearer nope", path: "/playlists/" + pl + "/export", body: `{"targetEmail":"friend@example.com"}`, code: http.StatusUnauthorized},
		{name: "bad token and bad body", header: "Bearer nope", path: "/playlists/" + pl + "/export", body: `{"targetEmail":"x"}`, code: http.StatusBadRequest},
		{name: "bad token and malformed json", header: "Bearer nope", path: "/playlists/" + pl + "/export", body: `{"targetEmail":`, code: http.StatusBadRequest},
		{name: "no header and bad body", path: "/playlists/" + pl + "/export", body: `{"targetEmail":"x"}`, code: http.StatusUnauthorized},
		{name: "wrong scheme", header: "Basic dTE6cGFzcw==", path: "/playlists/" + pl + "/export", body: `{"targetEmail":"friend@example.com"}`, code: http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, tc.path, strings.NewReader(tc.body))
			switch {
			case tc.header != "":
				req.Header.Set("Authorization", tc.header)
			case tc.user != "":
				req.Header.Set("Authorization", "Bearer "+token(t, tc.user))
			}
			rec := httptest.NewRecorder()
			e.router.ServeHTTP(rec, req)

			require.Equal(t, tc.code, rec.Code, rec.Body.String())
			var out reply
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
			require.Equal(t, "fail", out.Status)
			require.NotEmpty(t, out.Message)
			require.Zero(t, e.depth())
		})
	}
}

func TestDeletedPlaylistIsNotExported(t *testing.T) {
	e := newEnv(t, 10)
	pl := e.createPlaylist("u1", "Short Lived")

	code, _ := e.do(http.MethodPost, "/playlists/"+pl+"/export", "u1", `{"targetEmail":"friend@example.com"}`)
	require.Equal(t, http.StatusCreated, code)

	code, _ = e.do(http.MethodDelete, "/playlists/"+pl, "u1", "")
	require.Equal(t, http.StatusOK, code)

	require.True(t, e.runWorker())
	require.Empty(t, e.inbox.mail)
	pending, err := e.q.Pending(context.Background(), exports.QueueName)
	require.NoError(t, err)
	require.Zero(t, pending)

	code, _ = e.do(http.MethodPost, "/playlists/"+pl+"/export", "u1", `{"targetEmail":"friend@example.com"}`)
	require.Equal(t, http.StatusNotFound, code)
}

func TestExportIsRateLimitedPerCaller(t *testing.T) {
	e := newEnv(t, 2)
	pl := e.createPlaylist("u1", "Road Trip")
	code, _ := e.do(http.MethodPost, "/collaborations", "u1", `{"playlistId":"`+pl+`","userId":"u2"}`)
	require.Equal(t, http.StatusCreated, code)

	path := "/playlists/" + pl + "/export"
	for i := 0; i < 2; i++ {
		code, _ := e.do(http.MethodPost, path, "u1", `{"targetEmail":"friend@example.com"}`)
		require.Equal(t, http.StatusCreated, code)
	}
	code, out := e.do(http.MethodPost, path, "u1", `{"targetEmail":"friend@example.com"}`)
	require.Equal(t, http.StatusTooManyRequests, code)
	require.Equal(t, "fail", out.Status)

	code, _ = e.do(http.MethodPost, path, "u2", `{"targetEmail":"friend@example.com"}`)
	require.Equal(t, http.StatusCreated, code)
	require.EqualValues(t, 3, e.depth())
}

func TestCollaborationManagementIsOwnerOnly(t *testing.T) {
	e := newEnv(t, 10)
	pl := e.createPlaylist("u1", "Road Trip")
	body := `{"playlistId":"` + pl + `","userId":"u3"}`

	code, _ := e.do(http.MethodPost, "/collaborations", "u2", body)
	require.Equal(t, http.StatusForbidden, code)

	code, out := e.do(http.MethodPost, "/collaborations", "u1", body)
	require.Equal(t, http.StatusCreated, code)
	require.Contains(t, string(out.Data), "collaborationId")

	code, _ = e.do(http.MethodPost, "/collaborations", "u1", body)
	require.Equal(t, http.StatusBadRequest, code)

	code, _ = e.do(http.MethodGet, "/playlists/"+pl+"/songs", "u3", "")
	require.Equal(t, http.StatusOK, code)

	code, _ = e.do(http.MethodDelete, "/collaborations", "u1", body)
	require.Equal(t, http.StatusOK, code)
	code, _ = e.do(http.MethodDelete, "/collaborations", "u1", body)
	require.Equal(t, http.StatusBadRequest, code)

	code, _ = e.do(http.MethodGet, "/playlists/"+pl+"/songs", "u3", "")
	require.Equal(t, http.StatusForbidden, code)
}

func TestPlaylistSongsAndActivities(t *testing.T) {
	e := newEnv(t, 10)
	pl := e.createPlaylist("u1", "Road Trip")

	code, _ := e.do(http.MethodPost, "/playlists/"+pl+"/songs", "u1", `{"songId":"song-1"}`)
	require.Equal(t, http.StatusCreated, code)
	code, _ = e.do(http.MethodPost, "/playlists/"+pl+"/songs", "u1", `{"songId":"song-404"}`)
	require.Equal(t, http.StatusNotFound, code)
	code, _ = e.do(http.MethodDelete, "/playlists/"+pl+"/songs", "u1", `{"songId":"song-1"}`)
	require.Equal(t, http.StatusOK, code)

	code, out := e.do(http.MethodGet, "/playlists/"+pl+"/activities", "u1", "")
	require.Equal(t, http.StatusOK, code)
	var data struct {
		PlaylistID string            `json:"playlistId"`
		Activities []models.Activity `json:"activities"`
	}
	require.NoError(t, json.Unmarshal(out.Data, &data))
	require.Equal(t, pl, data.PlaylistID)
	require.Len(t, data.Activities, 2)
	require.Equal(t, models.ActionAdd, data.Activities[0].Action)
	require.Equal(t, models.ActionDelete, data.Activities[1].Action)
	require.Equal(t, "alice", data.Activities[0].Username)
	require.Equal(t, "Highway Star", data.Activities[0].Title)

	code, out = e.do(http.MethodGet, "/playlists", "u1", "")
	require.Equal(t, http.StatusOK, code)
	require.Contains(t, string(out.Data), "Road Trip")

	code, _ = e.do(http.MethodDelete, "/playlists/"+pl, "u2", "")
	require.Equal(t, http.StatusForbidden, code)
}

func TestHealthz(t *testing.T) {
	e := newEnv(t, 10)
	code, out := e.do(http.MethodGet, "/healthz", "", "")
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "ok", out.Status)

	down := New(e.st, nil, auth.NewJWTVerifier(tokenKey, 0), logging.Discard()).
		WithHealthCheck("postgres", func(context.Context) error { return errors.New("connection refused") })
	rec := httptest.NewRecorder()
	down.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Contains(t, rec.Body.String(), "connection refused")
}
