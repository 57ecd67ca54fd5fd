// Package resolver turns free-text song requests and playlist IDs into
// queueable items by querying the upstream catalogs.
package resolver

import (
	"context"
	"errors"
	"log/slog"

	"mradio/internal/domain"
)

var (
	ErrNoMatch = errors.New("no acceptable match found")
	ErrTooLong = errors.New("track exceeds the duration limit")
)

// SongSource resolves requests against one upstream catalog.
type SongSource interface {
	// SearchSong finds the best match for a free-text name.
	SearchSong(ctx context.Context, name string) (domain.QueueItem, error)
	// PlaylistItems lists the tracks of one playlist.
	PlaylistItems(ctx context.Context, playlistID string) ([]domain.QueueItem, error)
}

// Resolver fans a request out across sources in preference order.
type Resolver struct {
	sources map[domain.SourceType]SongSource
	order   []domain.SourceType
	logger  *slog.Logger
}

// New builds a resolver trying SoundCloud, then the JioSaavn catalog, then
// YouTube. Sources without a registered implementation are skipped.
func New(logger *slog.Logger) *Resolver {
	return &Resolver{
		sources: map[domain.SourceType]SongSource{},
		order:   []domain.SourceType{domain.SourceSoundCloud, domain.SourceJioSaavn, domain.SourceYouTube},
		logger:  logger,
	}
}

// Register installs the implementation for one source.
func (r *Resolver) Register(src domain.SourceType, s SongSource) {
	r.sources[src] = s
}

// ResolveSong finds the best match for name. A non-empty preference pins
// the search to that source alone.
func (r *Resolver) ResolveSong(ctx context.Context, name string, preference domain.SourceType) (domain.QueueItem, error) {
	order := r.order
	if preference != "" {
		order = []domain.SourceType{preference}
	}
	finalErr := ErrNoMatch
	for _, src := range order {
		s, ok := r.sources[src]
		if !ok {
			continue
		}
		item, err := s.SearchSong(ctx, name)
		if err == nil {
			return item, nil
		}
		if errors.Is(err, ErrTooLong) {
			finalErr = ErrTooLong
			continue
		}
		if !errors.Is(err, ErrNoMatch) {
			r.logger.Warn("source search failed",
				slog.String("source", string(src)), slog.String("error", err.Error()))
		}
	}
	return domain.QueueItem{}, finalErr
}

// ResolvePlaylist lists the items of a playlist on the given source.
func (r *Resolver) ResolvePlaylist(ctx context.Context, playlistID string, src domain.SourceType) ([]domain.QueueItem, error) {
	s, ok := r.sources[src]
	if !ok {
		return nil, domain.ErrUnsupportedSource
	}
	return s.PlaylistItems(ctx, playlistID)
}
