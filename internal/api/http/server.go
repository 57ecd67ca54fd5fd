// Package apihttp exposes the station over HTTP: the live audio stream,
// the websocket event bus, and the JSON control API.
package apihttp

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"mradio/internal/domain"
	"mradio/internal/engine"
	"mradio/internal/icecast"
	"mradio/internal/store"
)

// PlaybackController is the engine surface the control API drives.
type PlaybackController interface {
	Skip() error
	Previous() error
	SeekTo(seconds int) error
	Current() (domain.Track, int, bool)
	PreviousTrack() (domain.Track, bool)
	SilenceActive() bool
}

// SongResolver turns names and playlist IDs into queueable items.
type SongResolver interface {
	ResolveSong(ctx context.Context, name string, preference domain.SourceType) (domain.QueueItem, error)
	ResolvePlaylist(ctx context.Context, playlistID string, src domain.SourceType) ([]domain.QueueItem, error)
}

// HistoryReader lists recently played tracks.
type HistoryReader interface {
	ListRecent(ctx context.Context, limit int) ([]domain.PlayRecord, error)
}

// IcecastReporter reports the upstream push status.
type IcecastReporter interface {
	Status() (icecast.State, int, int)
}

type Server struct {
	player      PlaybackController
	queue       *store.SongQueue
	blocks      *store.BlockList
	playlists   *store.DefaultPlaylists
	metadata    *store.PlaylistMetadata
	config      *store.CommonConfig
	tokens      *store.Tokens
	resolver    SongResolver
	broadcaster *engine.Broadcaster
	icecast     IcecastReporter
	history     HistoryReader

	minQueueSize   int
	adminTokenKey  string
	adminAPIKey    string
	allowedOrigins []string
	storageDirs    []string

	logger  *slog.Logger
	handler http.Handler
	wsHub   *wsHub
}

type ServerOption func(*Server)

func WithQueue(q *store.SongQueue) ServerOption {
	return func(s *Server) { s.queue = q }
}

func WithBlockList(b *store.BlockList) ServerOption {
	return func(s *Server) { s.blocks = b }
}

func WithPlaylists(p *store.DefaultPlaylists, m *store.PlaylistMetadata) ServerOption {
	return func(s *Server) {
		s.playlists = p
		s.metadata = m
	}
}

func WithCommonConfig(c *store.CommonConfig) ServerOption {
	return func(s *Server) { s.config = c }
}

func WithTokens(t *store.Tokens) ServerOption {
	return func(s *Server) { s.tokens = t }
}

func WithResolver(r SongResolver) ServerOption {
	return func(s *Server) { s.resolver = r }
}

func WithBroadcaster(b *engine.Broadcaster) ServerOption {
	return func(s *Server) { s.broadcaster = b }
}

func WithIcecast(reporter IcecastReporter) ServerOption {
	return func(s *Server) { s.icecast = reporter }
}

func WithHistory(h HistoryReader) ServerOption {
	return func(s *Server) { s.history = h }
}

func WithMinQueueSize(n int) ServerOption {
	return func(s *Server) { s.minQueueSize = n }
}

func WithAdminKeys(tokenKey, apiKey string) ServerOption {
	return func(s *Server) {
		s.adminTokenKey = tokenKey
		s.adminAPIKey = apiKey
	}
}

// WithStorageDirs lists the directories reported by the storage endpoint.
func WithStorageDirs(dirs ...string) ServerOption {
	return func(s *Server) { s.storageDirs = dirs }
}

// WithAllowedOrigins configures the CORS allowed origins whitelist.
// When empty (default), any origin is permitted (development mode).
func WithAllowedOrigins(origins []string) ServerOption {
	return func(s *Server) { s.allowedOrigins = origins }
}

func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) { s.logger = logger }
}

func NewServer(player PlaybackController, opts ...ServerOption) *Server {
	s := &Server{
		player:       player,
		minQueueSize: 2,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}

	s.wsHub = newWSHub(s.logger)
	go s.wsHub.run()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /stream", s.handleStream)
	mux.HandleFunc("GET /ws", s.handleWS)
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("POST /api/songs/add", s.auth(s.handleAddSong(false)))
	mux.HandleFunc("POST /api/songs/add/top", s.auth(s.handleAddSong(true)))
	mux.HandleFunc("GET /api/songs/queue", s.handleQueue)
	mux.HandleFunc("GET /api/songs/current", s.handleCurrent)
	mux.HandleFunc("GET /api/songs/upcoming", s.handleUpcoming)
	mux.HandleFunc("GET /api/songs/skip", s.auth(s.handleSkip))
	mux.HandleFunc("GET /api/songs/previous", s.auth(s.handlePrevious))
	mux.HandleFunc("GET /api/songs/seek/{seconds}", s.auth(s.handleSeek))
	mux.HandleFunc("DELETE /api/songs/remove/{index}", s.auth(s.handleRemove))
	mux.HandleFunc("DELETE /api/songs/requests/last/{requestedBy}", s.auth(s.handleRemoveLastRequest))
	mux.HandleFunc("GET /api/songs/history", s.handleHistory)

	mux.HandleFunc("POST /api/songs/block/current", s.auth(s.handleBlockCurrent))
	mux.HandleFunc("POST /api/songs/block", s.auth(s.handleBlock))
	mux.HandleFunc("GET /api/songs/block/list", s.handleBlockList)
	mux.HandleFunc("GET /api/songs/block/check", s.handleBlockCheck)
	mux.HandleFunc("DELETE /api/songs/block/name/{songName}", s.auth(s.handleUnblockByName))
	mux.HandleFunc("DELETE /api/songs/block/index/{index}", s.auth(s.handleUnblockByIndex))
	mux.HandleFunc("DELETE /api/songs/block/all", s.auth(s.handleUnblockAll))

	mux.HandleFunc("POST /api/playlist/add", s.auth(s.handleAddPlaylist(false)))
	mux.HandleFunc("POST /api/playlist/add/top", s.auth(s.handleAddPlaylist(true)))
	mux.HandleFunc("POST /api/playlist/default", s.auth(s.handleAddDefaultPlaylist))
	mux.HandleFunc("GET /api/playlist/default", s.handleListDefaultPlaylists)
	mux.HandleFunc("DELETE /api/playlist/default/{index}", s.auth(s.handleRemoveDefaultPlaylist))
	mux.HandleFunc("PUT /api/playlist/default/{index}/status", s.auth(s.handleDefaultPlaylistStatus))

	mux.HandleFunc("GET /api/config", s.handleConfigGet)
	mux.HandleFunc("POST /api/config", s.auth(s.handleConfigSet))
	mux.HandleFunc("POST /api/admin/token", s.handleIssueToken)
	mux.HandleFunc("GET /api/admin/storage", s.auth(s.handleStorageUsage))
	mux.HandleFunc("GET /api/icecast/status", s.handleIcecastStatus)

	traced := otelhttp.NewHandler(loggingMiddleware(s.logger, mux), "mradio",
		otelhttp.WithFilter(func(r *http.Request) bool {
			p := r.URL.Path
			return p != "/metrics" && p != "/healthz" && p != "/stream" && !strings.HasPrefix(p, "/ws")
		}),
	)
	s.handler = recoveryMiddleware(s.logger, rateLimitMiddleware(100, 200, metricsMiddleware(corsMiddleware(s.allowedOrigins, traced))))
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Close disconnects all websocket clients.
func (s *Server) Close() {
	if s.wsHub != nil {
		s.wsHub.Close()
	}
}

// auth guards mutating routes with the X-Token-Key header.
func (s *Server) auth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.tokens == nil || !s.tokens.Valid(r.Header.Get("X-Token-Key")) {
			writeFail(w, http.StatusUnauthorized, "missing or invalid token")
			return
		}
		next(w, r)
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// The server doubles as the engine's event publisher and one of its chunk
// sinks, both delegated to the websocket hub.

func (s *Server) TrackChanged(title, duration, requestedBy string) {
	s.wsHub.TrackChanged(title, duration, requestedBy)
}

func (s *Server) Progress(title string, elapsedSeconds int) {
	s.wsHub.Progress(title, elapsedSeconds)
}

func (s *Server) Name() string { return s.wsHub.Name() }

func (s *Server) WriteChunk(chunk []byte) { s.wsHub.WriteChunk(chunk) }

// SetBufferHeader seeds the header replayed to new websocket subscribers.
func (s *Server) SetBufferHeader(data any) { s.wsHub.SetBufferHeader(data) }
