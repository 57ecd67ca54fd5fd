package apihttp

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"mradio/internal/domain"
	"mradio/internal/engine"
	"mradio/internal/resolver"
	"mradio/internal/store"
)

type fakePlayer struct {
	current  domain.Track
	elapsed  int
	playing  bool
	silence  bool
	previous domain.Track
	hasPrev  bool

	skipErr  error
	prevErr  error
	seekErr  error
	skipped  int
	seekedTo int
}

func (f *fakePlayer) Skip() error {
	if f.skipErr != nil {
		return f.skipErr
	}
	f.skipped++
	return nil
}

func (f *fakePlayer) Previous() error { return f.prevErr }

func (f *fakePlayer) SeekTo(seconds int) error {
	if f.seekErr != nil {
		return f.seekErr
	}
	f.seekedTo = seconds
	return nil
}

func (f *fakePlayer) Current() (domain.Track, int, bool) {
	return f.current, f.elapsed, f.playing
}

func (f *fakePlayer) PreviousTrack() (domain.Track, bool) { return f.previous, f.hasPrev }

func (f *fakePlayer) SilenceActive() bool { return f.silence }

type fakeSongResolver struct {
	songs     map[string]domain.QueueItem
	playlists map[string][]domain.QueueItem
}

func (f *fakeSongResolver) ResolveSong(_ context.Context, name string, _ domain.SourceType) (domain.QueueItem, error) {
	item, ok := f.songs[name]
	if !ok {
		return domain.QueueItem{}, resolver.ErrNoMatch
	}
	return item, nil
}

func (f *fakeSongResolver) ResolvePlaylist(_ context.Context, playlistID string, _ domain.SourceType) ([]domain.QueueItem, error) {
	items, ok := f.playlists[playlistID]
	if !ok {
		return nil, resolver.ErrNoMatch
	}
	return items, nil
}

type testEnv struct {
	srv       *Server
	player    *fakePlayer
	queue     *store.SongQueue
	blocks    *store.BlockList
	playlists *store.DefaultPlaylists
	metadata  *store.PlaylistMetadata
	tokens    *store.Tokens
	token     string
}

func newTestEnv(t *testing.T, res SongResolver) *testEnv {
	t.Helper()
	dir := t.TempDir()
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))

	queue, err := store.OpenSongQueue(filepath.Join(dir, "queue.json"), logger)
	if err != nil {
		t.Fatalf("open queue: %v", err)
	}
	blocks, err := store.OpenBlockList(filepath.Join(dir, "blocks.json"), logger)
	if err != nil {
		t.Fatalf("open blocks: %v", err)
	}
	playlists, err := store.OpenDefaultPlaylists(filepath.Join(dir, "playlists.json"), logger)
	if err != nil {
		t.Fatalf("open playlists: %v", err)
	}
	metadata, err := store.OpenPlaylistMetadata(filepath.Join(dir, "metadata.json"), logger)
	if err != nil {
		t.Fatalf("open metadata: %v", err)
	}
	config, err := store.OpenCommonConfig(filepath.Join(dir, "config.json"), logger)
	if err != nil {
		t.Fatalf("open config: %v", err)
	}
	tokens, err := store.OpenTokens(filepath.Join(dir, "tokens.json"), logger)
	if err != nil {
		t.Fatalf("open tokens: %v", err)
	}
	issued, err := tokens.Issue("tester")
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	player := &fakePlayer{}
	srv := NewServer(player,
		WithQueue(queue),
		WithBlockList(blocks),
		WithPlaylists(playlists, metadata),
		WithCommonConfig(config),
		WithTokens(tokens),
		WithResolver(res),
		WithAdminKeys("admin-token", "admin-api"),
		WithLogger(logger),
	)
	t.Cleanup(srv.Close)

	return &testEnv{
		srv:       srv,
		player:    player,
		queue:     queue,
		blocks:    blocks,
		playlists: playlists,
		metadata:  metadata,
		tokens:    tokens,
		token:     issued.Token,
	}
}

func (e *testEnv) do(t *testing.T, method, path string, body any, authed bool) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if authed {
		req.Header.Set("X-Token-Key", e.token)
	}
	rec := httptest.NewRecorder()
	e.srv.ServeHTTP(rec, req)
	return rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope: %v (body %q)", err, rec.Body.String())
	}
	return env
}

func TestAddSongQueues(t *testing.T) {
	env := newTestEnv(t, &fakeSongResolver{songs: map[string]domain.QueueItem{
		"tum hi ho": {Title: "Tum Hi Ho", URL: "https://cdn/song.mp3", Source: domain.SourceJioSaavn, Duration: "262"},
	}})

	rec := env.do(t, http.MethodPost, "/api/songs/add",
		map[string]string{"songName": "tum hi ho", "requestedBy": "dj"}, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", rec.Code, rec.Body.String())
	}
	env2 := decodeEnvelope(t, rec)
	if !env2.Success {
		t.Fatalf("success = false: %s", env2.Error)
	}
	items := env.queue.All()
	if len(items) != 1 || items[0].Title != "Tum Hi Ho" {
		t.Fatalf("queue = %+v, want single Tum Hi Ho", items)
	}
	if items[0].RequestedBy != "dj" {
		t.Fatalf("requestedBy = %q, want dj", items[0].RequestedBy)
	}
	if items[0].Duration != "04:22" {
		t.Fatalf("duration = %q, want 04:22", items[0].Duration)
	}
}

func TestAddSongRequiresToken(t *testing.T) {
	env := newTestEnv(t, &fakeSongResolver{})
	rec := env.do(t, http.MethodPost, "/api/songs/add", map[string]string{"songName": "x"}, false)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestAddSongRejectsBlocked(t *testing.T) {
	env := newTestEnv(t, &fakeSongResolver{songs: map[string]domain.QueueItem{
		"bad song": {Title: "Bad Song", URL: "https://cdn/bad.mp3"},
	}})
	env.blocks.Block("Bad Song", "dj")

	rec := env.do(t, http.MethodPost, "/api/songs/add", map[string]string{"songName": "bad song"}, true)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if env.queue.Len() != 0 {
		t.Fatalf("queue len = %d, want 0", env.queue.Len())
	}
}

func TestAddSongNoMatch(t *testing.T) {
	env := newTestEnv(t, &fakeSongResolver{})
	rec := env.do(t, http.MethodPost, "/api/songs/add", map[string]string{"songName": "nothing"}, true)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestAddSongDuplicate(t *testing.T) {
	env := newTestEnv(t, &fakeSongResolver{songs: map[string]domain.QueueItem{
		"song": {Title: "Song", URL: "https://cdn/song.mp3"},
	}})
	env.do(t, http.MethodPost, "/api/songs/add", map[string]string{"songName": "song"}, true)
	rec := env.do(t, http.MethodPost, "/api/songs/add", map[string]string{"songName": "song"}, true)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 on duplicate", rec.Code)
	}
}

func TestAddSongTopPrepends(t *testing.T) {
	env := newTestEnv(t, &fakeSongResolver{songs: map[string]domain.QueueItem{
		"first":  {Title: "First", URL: "https://cdn/1.mp3"},
		"second": {Title: "Second", URL: "https://cdn/2.mp3"},
	}})
	env.do(t, http.MethodPost, "/api/songs/add", map[string]string{"songName": "first"}, true)
	env.do(t, http.MethodPost, "/api/songs/add/top", map[string]string{"songName": "second"}, true)

	items := env.queue.All()
	if len(items) != 2 || items[0].Title != "Second" {
		t.Fatalf("queue = %+v, want Second first", items)
	}
}

func TestCurrentSong(t *testing.T) {
	env := newTestEnv(t, &fakeSongResolver{})
	env.player.playing = true
	env.player.current = domain.Track{Title: "Now", Duration: "03:00", RequestedBy: "dj"}
	env.player.elapsed = 65

	rec := env.do(t, http.MethodGet, "/api/songs/current", nil, false)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"elapsed":"01:05"`) {
		t.Fatalf("body = %s, want elapsed 01:05", rec.Body.String())
	}
}

func TestCurrentSongSilence(t *testing.T) {
	env := newTestEnv(t, &fakeSongResolver{})
	env.player.silence = true
	rec := env.do(t, http.MethodGet, "/api/songs/current", nil, false)
	env2 := decodeEnvelope(t, rec)
	if env2.Message != "nothing playing" {
		t.Fatalf("message = %q, want nothing playing", env2.Message)
	}
}

func TestSkipMapsTransitioning(t *testing.T) {
	env := newTestEnv(t, &fakeSongResolver{})
	env.player.skipErr = engine.ErrTransitioning
	rec := env.do(t, http.MethodGet, "/api/songs/skip", nil, true)
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
}

func TestPreviousWithoutHistory(t *testing.T) {
	env := newTestEnv(t, &fakeSongResolver{})
	env.player.prevErr = engine.ErrNoPrevious
	rec := env.do(t, http.MethodGet, "/api/songs/previous", nil, true)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestSeek(t *testing.T) {
	env := newTestEnv(t, &fakeSongResolver{})
	rec := env.do(t, http.MethodGet, "/api/songs/seek/90", nil, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d (body %s)", rec.Code, rec.Body.String())
	}
	if env.player.seekedTo != 90 {
		t.Fatalf("seekedTo = %d, want 90", env.player.seekedTo)
	}

	rec = env.do(t, http.MethodGet, "/api/songs/seek/abc", nil, true)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for non-numeric seek", rec.Code)
	}
}

func TestRemoveProtectsOnDeck(t *testing.T) {
	env := newTestEnv(t, &fakeSongResolver{})
	for _, title := range []string{"a", "b", "c"} {
		env.queue.Append(domain.QueueItem{Title: title, URL: "https://cdn/" + title})
	}

	rec := env.do(t, http.MethodDelete, "/api/songs/remove/1", nil, true)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for on-deck position", rec.Code)
	}

	rec = env.do(t, http.MethodDelete, "/api/songs/remove/3", nil, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", rec.Code, rec.Body.String())
	}
	if env.queue.Len() != 2 {
		t.Fatalf("queue len = %d, want 2", env.queue.Len())
	}

	rec = env.do(t, http.MethodDelete, "/api/songs/remove/9", nil, true)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404 past end", rec.Code)
	}
}

func TestRemoveLastRequested(t *testing.T) {
	env := newTestEnv(t, &fakeSongResolver{})
	env.queue.Append(domain.QueueItem{Title: "a", URL: "u1", RequestedBy: "dj"})
	env.queue.Append(domain.QueueItem{Title: "b", URL: "u2", RequestedBy: "dj"})

	rec := env.do(t, http.MethodDelete, "/api/songs/requests/last/dj", nil, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	items := env.queue.All()
	if len(items) != 1 || items[0].Title != "a" {
		t.Fatalf("queue = %+v, want only a", items)
	}

	rec = env.do(t, http.MethodDelete, "/api/songs/requests/last/stranger", nil, true)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404 for unknown requester", rec.Code)
	}
}

func TestBlockCurrentSkips(t *testing.T) {
	env := newTestEnv(t, &fakeSongResolver{})
	env.player.playing = true
	env.player.current = domain.Track{Title: "Annoying Song"}

	rec := env.do(t, http.MethodPost, "/api/songs/block/current", nil, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d (body %s)", rec.Code, rec.Body.String())
	}
	if !env.blocks.IsBlocked("Annoying Song") {
		t.Fatal("current song not blocked")
	}
	if env.player.skipped != 1 {
		t.Fatalf("skipped = %d, want 1", env.player.skipped)
	}
}

func TestBlockCheckAndUnblock(t *testing.T) {
	env := newTestEnv(t, &fakeSongResolver{})
	rec := env.do(t, http.MethodPost, "/api/songs/block",
		map[string]string{"songName": "Loud Song"}, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("block status = %d", rec.Code)
	}

	rec = env.do(t, http.MethodGet, "/api/songs/block/check?songName=loud+song", nil, false)
	if !strings.Contains(rec.Body.String(), `"blocked":true`) {
		t.Fatalf("check body = %s, want blocked true", rec.Body.String())
	}

	rec = env.do(t, http.MethodDelete, "/api/songs/block/name/Loud%20Song", nil, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("unblock status = %d", rec.Code)
	}
	if env.blocks.IsBlocked("Loud Song") {
		t.Fatal("still blocked after unblock")
	}
}

func TestUnblockAll(t *testing.T) {
	env := newTestEnv(t, &fakeSongResolver{})
	env.blocks.Block("one", "dj")
	env.blocks.Block("two two", "dj")

	rec := env.do(t, http.MethodDelete, "/api/songs/block/all", nil, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if env.blocks.Len() != 0 {
		t.Fatalf("block list len = %d, want 0", env.blocks.Len())
	}
}

func TestAddPlaylistQueuesTracks(t *testing.T) {
	env := newTestEnv(t, &fakeSongResolver{playlists: map[string][]domain.QueueItem{
		"pl1": {
			{Title: "One", URL: "u1", PlaylistID: "pl1"},
			{Title: "Two", URL: "u2", PlaylistID: "pl1"},
		},
	}})
	env.blocks.Block("Two", "dj")

	rec := env.do(t, http.MethodPost, "/api/playlist/add",
		map[string]string{"playlistId": "pl1"}, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d (body %s)", rec.Code, rec.Body.String())
	}
	items := env.queue.All()
	if len(items) != 1 || items[0].Title != "One" {
		t.Fatalf("queue = %+v, want blocked track filtered", items)
	}
}

func TestDefaultPlaylistLifecycle(t *testing.T) {
	env := newTestEnv(t, &fakeSongResolver{playlists: map[string][]domain.QueueItem{
		"pl1": {{Title: "One", URL: "u1", PlaylistID: "pl1"}},
		"pl2": {{Title: "Two", URL: "u2", PlaylistID: "pl2"}},
	}})

	for _, id := range []string{"pl1", "pl2"} {
		rec := env.do(t, http.MethodPost, "/api/playlist/default",
			map[string]any{"playlistId": id, "title": "List " + id, "genre": "Pop"}, true)
		if rec.Code != http.StatusOK {
			t.Fatalf("add %s status = %d (body %s)", id, rec.Code, rec.Body.String())
		}
	}
	if env.playlists.Len() != 2 {
		t.Fatalf("playlists len = %d, want 2", env.playlists.Len())
	}
	if len(env.metadata.ItemsFor([]string{"pl1"})) != 1 {
		t.Fatal("metadata for pl1 not materialised")
	}

	rec := env.do(t, http.MethodPut, "/api/playlist/default/2/status",
		map[string]bool{"isActive": false}, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("status update = %d (body %s)", rec.Code, rec.Body.String())
	}

	rec = env.do(t, http.MethodPut, "/api/playlist/default/1/status",
		map[string]bool{"isActive": false}, true)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("deactivating last active = %d, want 400", rec.Code)
	}

	rec = env.do(t, http.MethodDelete, "/api/playlist/default/2", nil, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("remove = %d (body %s)", rec.Code, rec.Body.String())
	}
	if len(env.metadata.ItemsFor([]string{"pl2"})) != 0 {
		t.Fatal("metadata for removed playlist kept")
	}

	rec = env.do(t, http.MethodDelete, "/api/playlist/default/1", nil, true)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("removing last playlist = %d, want 400", rec.Code)
	}
}

func TestConfigRoundTrip(t *testing.T) {
	env := newTestEnv(t, &fakeSongResolver{})

	rec := env.do(t, http.MethodGet, "/api/config", nil, false)
	if !strings.Contains(rec.Body.String(), store.GenreAll) {
		t.Fatalf("config body = %s, want default genre", rec.Body.String())
	}

	rec = env.do(t, http.MethodPost, "/api/config",
		map[string]string{"key": store.KeyDefaultPlaylistGenre, "value": "lofi"}, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("set status = %d (body %s)", rec.Code, rec.Body.String())
	}

	rec = env.do(t, http.MethodPost, "/api/config",
		map[string]string{"key": "bogus", "value": "x"}, true)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown key status = %d, want 400", rec.Code)
	}
}

func TestIssueTokenRequiresAdminHeaders(t *testing.T) {
	env := newTestEnv(t, &fakeSongResolver{})

	req := httptest.NewRequest(http.MethodPost, "/api/admin/token",
		bytes.NewReader([]byte(`{"username":"newdj"}`)))
	rec := httptest.NewRecorder()
	env.srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401 without admin headers", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/admin/token",
		bytes.NewReader([]byte(`{"username":"newdj"}`)))
	req.Header.Set("X-Admin-Token-Key", "admin-token")
	req.Header.Set("X-Admin-Api-Key", "admin-api")
	rec = httptest.NewRecorder()
	env.srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d (body %s)", rec.Code, rec.Body.String())
	}
	var env2 envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env2); err != nil {
		t.Fatalf("decode: %v", err)
	}
	raw, _ := json.Marshal(env2.Data)
	var token domain.AuthToken
	if err := json.Unmarshal(raw, &token); err != nil {
		t.Fatalf("decode token: %v", err)
	}
	if len(token.Token) != 64 {
		t.Fatalf("token length = %d, want 64", len(token.Token))
	}
	if !env.tokens.Valid(token.Token) {
		t.Fatal("issued token does not validate")
	}
}

func TestIcecastStatusDisabled(t *testing.T) {
	env := newTestEnv(t, &fakeSongResolver{})
	rec := env.do(t, http.MethodGet, "/api/icecast/status", nil, false)
	if !strings.Contains(rec.Body.String(), `"state":"disabled"`) {
		t.Fatalf("body = %s, want disabled state", rec.Body.String())
	}
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t, &fakeSongResolver{})
	rec := env.do(t, http.MethodGet, "/healthz", nil, false)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}
