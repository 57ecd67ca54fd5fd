package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.opentelemetry.io/contrib/instrumentation/go.mongodb.org/mongo-driver/mongo/otelmongo"

	apihttp "mradio/internal/api/http"
	"mradio/internal/app"
	"mradio/internal/cache"
	"mradio/internal/domain"
	"mradio/internal/engine"
	"mradio/internal/fetch"
	"mradio/internal/history"
	"mradio/internal/icecast"
	"mradio/internal/media"
	"mradio/internal/metrics"
	"mradio/internal/resolver"
	"mradio/internal/store"
	"mradio/internal/telemetry"
)

func main() {
	cfg := app.LoadConfig()
	logger := newLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)
	metrics.Register(prometheus.DefaultRegisterer)

	shutdownTracer, err := telemetry.Init(context.Background(), "mradio")
	if err != nil {
		logger.Warn("otel init failed", slog.String("error", err.Error()))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	logger.Info("configuration loaded",
		slog.String("service", "mradio"),
		slog.String("httpAddr", cfg.HTTPAddr),
		slog.String("logLevel", cfg.LogLevel),
		slog.String("logFormat", cfg.LogFormat),
		slog.String("dataDir", cfg.DataDir),
		slog.String("cacheDir", cfg.CacheDir),
		slog.Bool("icecast", cfg.IcecastEnabled),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	queue, err := store.OpenSongQueue(filepath.Join(cfg.DataDir, "queue.json"), logger)
	if err != nil {
		fatal(logger, "open song queue", err)
	}
	blocks, err := store.OpenBlockList(filepath.Join(cfg.DataDir, "blocklist.json"), logger)
	if err != nil {
		fatal(logger, "open block list", err)
	}
	playlists, err := store.OpenDefaultPlaylists(filepath.Join(cfg.DataDir, "playlists.json"), logger)
	if err != nil {
		fatal(logger, "open default playlists", err)
	}
	metadata, err := store.OpenPlaylistMetadata(filepath.Join(cfg.DataDir, "playlist_metadata.json"), logger)
	if err != nil {
		fatal(logger, "open playlist metadata", err)
	}
	commonCfg, err := store.OpenCommonConfig(filepath.Join(cfg.DataDir, "config.json"), logger)
	if err != nil {
		fatal(logger, "open common config", err)
	}
	tokens, err := store.OpenTokens(filepath.Join(cfg.DataDir, "tokens.json"), logger)
	if err != nil {
		fatal(logger, "open tokens", err)
	}

	// The fallback genre must name a registered genre or "all".
	commonCfg.Validate = func(key, value string) error {
		if key != store.KeyDefaultPlaylistGenre {
			return nil
		}
		if value == store.GenreAll {
			return nil
		}
		for _, g := range playlists.Genres() {
			if g == value {
				return nil
			}
		}
		return store.ErrInvalidValue
	}

	fileCache, err := cache.New(cfg.CacheDir, cfg.CacheMaxBytes, logger)
	if err != nil {
		fatal(logger, "open track cache", err)
	}

	downloader := &media.Downloader{
		FFmpegPath:  cfg.FFmpegPath,
		YtDlpPath:   cfg.YtDlpPath,
		CookiesPath: cfg.CookiesPath,
		WorkDir:     filepath.Join(cfg.DataDir, "tmp"),
		HTTPClient:  &http.Client{Timeout: 2 * time.Minute},
		Cache:       fileCache,
		Logger:      logger,
	}

	songResolver := resolver.New(logger)
	songResolver.Register(domain.SourceJioSaavn, &resolver.JioSaavn{
		Client: &http.Client{Timeout: 15 * time.Second},
		Logger: logger,
	})
	songResolver.Register(domain.SourceSoundCloud, resolver.StubSource{})
	songResolver.Register(domain.SourceYouTube, &resolver.YouTube{
		Path:   cfg.YtDlpPath,
		Logger: logger,
	})

	fetcher := &fetch.Fetcher{
		Queue:        queue,
		Blocks:       blocks,
		Playlists:    playlists,
		Metadata:     metadata,
		Config:       commonCfg,
		Downloader:   downloader,
		Resolver:     songResolver,
		FallbackDir:  cfg.FallbackDir,
		MinQueueSize: cfg.MinQueueSize,
		Logger:       logger,
	}

	fetcher.PreloadLocal(rootCtx, cfg.TracksDir, func(ctx context.Context, path string) int {
		return media.ProbeDuration(ctx, cfg.FFmpegPath, path, logger)
	})
	fetcher.Start(rootCtx)

	if cfg.InitialPlaylistID != "" && playlists.Len() == 0 {
		go seedInitialPlaylist(rootCtx, cfg, playlists, metadata, songResolver, logger)
	}

	broadcaster := engine.NewBroadcaster(logger)

	iceSink := icecast.New(icecast.Config{
		Enabled:     cfg.IcecastEnabled,
		Host:        cfg.IcecastHost,
		Port:        cfg.IcecastPort,
		Mount:       cfg.IcecastMount,
		Password:    cfg.IcecastPassword,
		Name:        cfg.IcecastName,
		Description: cfg.IcecastDescription,
		Genre:       cfg.IcecastGenre,
		FFmpegPath:  cfg.FFmpegPath,
	}, logger)
	go iceSink.Run(rootCtx)

	var recorder engine.HistoryRecorder = history.Noop{}
	var reader apihttp.HistoryReader = history.Noop{}
	var mongoDisconnect func(context.Context) error
	if cfg.MongoURI != "" {
		connectCtx, cancel := context.WithTimeout(rootCtx, 10*time.Second)
		client, err := history.Connect(connectCtx, cfg.MongoURI,
			options.Client().SetMonitor(otelmongo.NewMonitor()))
		if err == nil {
			err = client.Ping(connectCtx, readpref.Primary())
		}
		cancel()
		if err != nil {
			logger.Warn("history backend unavailable", slog.String("error", err.Error()))
		} else {
			repo := history.NewRepository(client, cfg.MongoDatabase, logger)
			if err := repo.EnsureIndexes(rootCtx); err != nil {
				logger.Warn("history ensure indexes failed", slog.String("error", err.Error()))
			}
			recorder = repo
			reader = repo
			mongoDisconnect = client.Disconnect
		}
	}

	audio := &engine.FFmpegAudio{Path: cfg.FFmpegPath, Logger: logger}
	eng := engine.New(fetcher, audio, nil, nil, recorder, logger)

	handler := apihttp.NewServer(eng,
		apihttp.WithQueue(queue),
		apihttp.WithBlockList(blocks),
		apihttp.WithPlaylists(playlists, metadata),
		apihttp.WithCommonConfig(commonCfg),
		apihttp.WithTokens(tokens),
		apihttp.WithResolver(songResolver),
		apihttp.WithBroadcaster(broadcaster),
		apihttp.WithIcecast(iceSink),
		apihttp.WithHistory(reader),
		apihttp.WithMinQueueSize(cfg.MinQueueSize),
		apihttp.WithAdminKeys(cfg.AdminTokenKey, cfg.AdminAPIKey),
		apihttp.WithAllowedOrigins(cfg.AllowedOrigins),
		apihttp.WithStorageDirs(cfg.CacheDir, cfg.FallbackDir, cfg.DataDir),
		apihttp.WithLogger(logger),
	)

	// The HTTP server is both an event publisher and a chunk sink; sink
	// order decides who sees a chunk first.
	eng.Events = handler
	eng.Sinks = []engine.ChunkSink{broadcaster, iceSink, handler}
	handler.SetBufferHeader(map[string]any{
		"frameSize": media.SilenceFrameSize,
		"bitrate":   domain.DefaultBitrate,
	})

	go func() {
		if err := eng.Run(rootCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("playback engine stopped", slog.String("error", err.Error()))
		}
	}()

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      0,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	logger.Info("server started", slog.String("addr", cfg.HTTPAddr))

	select {
	case <-rootCtx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	handler.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown error", slog.String("error", err.Error()))
	}
	if mongoDisconnect != nil {
		if err := mongoDisconnect(context.Background()); err != nil {
			logger.Warn("mongo disconnect error", slog.String("error", err.Error()))
		}
	}

	logger.Info("server stopped")
}

// seedInitialPlaylist registers the configured starter playlist on first
// boot so the station has something to play before any operator acts.
func seedInitialPlaylist(
	ctx context.Context,
	cfg app.Config,
	playlists *store.DefaultPlaylists,
	metadata *store.PlaylistMetadata,
	songResolver *resolver.Resolver,
	logger *slog.Logger,
) {
	items, err := songResolver.ResolvePlaylist(ctx, cfg.InitialPlaylistID, domain.SourceJioSaavn)
	if err != nil || len(items) == 0 {
		logger.Warn("initial playlist resolve failed",
			slog.String("playlistId", cfg.InitialPlaylistID), slog.Any("error", err))
		return
	}
	title := cfg.InitialPlaylistTitle
	if title == "" {
		title = cfg.InitialPlaylistID
	}
	playlists.Append(domain.DefaultPlaylist{
		PlaylistID: cfg.InitialPlaylistID,
		Title:      title,
		Source:     domain.SourceJioSaavn,
		Genre:      cfg.InitialPlaylistGenre,
		IsActive:   true,
	})
	stored := metadata.AppendMany(items)
	playlists.TouchMetadata(cfg.InitialPlaylistID)
	logger.Info("initial playlist seeded",
		slog.String("playlistId", cfg.InitialPlaylistID), slog.Int("tracks", stored))
}

func fatal(logger *slog.Logger, what string, err error) {
	logger.Error(what+" failed", slog.String("error", err.Error()))
	os.Exit(1)
}

func newLogger(levelRaw, formatRaw string) *slog.Logger {
	level := parseLogLevel(levelRaw)
	options := &slog.HandlerOptions{Level: level}
	format := strings.ToLower(strings.TrimSpace(formatRaw))
	if format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, options))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, options))
}

func parseLogLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
