package store

import (
	"log/slog"
	"strings"
	"time"

	"mradio/internal/domain"
)

// MetadataMaxAge is how long a playlist's materialised item list stays
// fresh before the fetcher schedules a refresh.
const MetadataMaxAge = 48 * time.Hour

// DefaultPlaylists is the operator-curated playlist registry the station
// falls back to when the request queue runs dry.
type DefaultPlaylists struct {
	*Store[domain.DefaultPlaylist]
	now func() time.Time
}

// OpenDefaultPlaylists loads the registry from path.
func OpenDefaultPlaylists(path string, logger *slog.Logger) (*DefaultPlaylists, error) {
	p := &DefaultPlaylists{now: time.Now}
	s, err := Open(path, Policy[domain.DefaultPlaylist]{
		Validate: func(pl domain.DefaultPlaylist) bool {
			return strings.TrimSpace(pl.PlaylistID) != "" &&
				strings.TrimSpace(pl.Title) != "" &&
				pl.Source != ""
		},
		Format: func(pl domain.DefaultPlaylist) domain.DefaultPlaylist {
			if pl.MetadataUpdatedAt == "" {
				pl.MetadataUpdatedAt = p.now().UTC().Format(time.RFC3339)
			}
			return pl
		},
		DedupKey: func(pl domain.DefaultPlaylist) string { return pl.PlaylistID },
	}, logger)
	if err != nil {
		return nil, err
	}
	p.Store = s
	return p, nil
}

// Active returns the playlists currently enabled for fallback rotation.
func (p *DefaultPlaylists) Active() []domain.DefaultPlaylist {
	return p.Filter(func(pl domain.DefaultPlaylist) bool { return pl.IsActive })
}

// Genres returns the distinct genres across all registered playlists.
func (p *DefaultPlaylists) Genres() []string {
	seen := map[string]bool{}
	var out []string
	for _, pl := range p.All() {
		g := strings.ToLower(strings.TrimSpace(pl.Genre))
		if g == "" || seen[g] {
			continue
		}
		seen[g] = true
		out = append(out, g)
	}
	return out
}

// Remove deletes the playlist at the 1-based index. The last remaining
// playlist cannot be removed: the station must always have a fallback.
func (p *DefaultPlaylists) Remove(index int) (domain.DefaultPlaylist, error) {
	if p.Len() <= 1 {
		return domain.DefaultPlaylist{}, ErrLastPlaylist
	}
	pl, ok := p.RemoveAt(index)
	if !ok {
		return domain.DefaultPlaylist{}, ErrIndexOutOfRange
	}
	return pl, nil
}

// SetStatus flips the active flag of the playlist at the 1-based index.
// Deactivating the only active playlist is refused.
func (p *DefaultPlaylists) SetStatus(index int, active bool) (domain.DefaultPlaylist, error) {
	all := p.All()
	i := index - 1
	if i < 0 || i >= len(all) {
		return domain.DefaultPlaylist{}, ErrIndexOutOfRange
	}
	if !active && all[i].IsActive && len(p.Active()) == 1 {
		return domain.DefaultPlaylist{}, ErrLastActivePlaylist
	}
	pl := all[i]
	pl.IsActive = active
	if !p.ReplaceAt(index, pl) {
		return domain.DefaultPlaylist{}, ErrIndexOutOfRange
	}
	return pl, nil
}

// TouchMetadata stamps the playlist's metadata refresh time to now.
func (p *DefaultPlaylists) TouchMetadata(playlistID string) bool {
	for i, pl := range p.All() {
		if pl.PlaylistID == playlistID {
			pl.MetadataUpdatedAt = p.now().UTC().Format(time.RFC3339)
			return p.ReplaceAt(i+1, pl)
		}
	}
	return false
}

// Stale returns the active playlists whose materialised metadata is older
// than MetadataMaxAge.
func (p *DefaultPlaylists) Stale() []domain.DefaultPlaylist {
	now := p.now()
	return p.Filter(func(pl domain.DefaultPlaylist) bool {
		return pl.IsActive && pl.MetadataStale(now, MetadataMaxAge)
	})
}

// PlaylistMetadata holds the materialised track lists of the default
// playlists, one QueueItem per track, unique by URL.
type PlaylistMetadata struct {
	*Store[domain.QueueItem]
}

// OpenPlaylistMetadata loads the metadata store from path.
func OpenPlaylistMetadata(path string, logger *slog.Logger) (*PlaylistMetadata, error) {
	s, err := Open(path, Policy[domain.QueueItem]{
		Validate: func(it domain.QueueItem) bool {
			return strings.TrimSpace(it.Title) != "" &&
				strings.TrimSpace(it.URL) != "" &&
				strings.TrimSpace(it.PlaylistID) != ""
		},
		Format: func(it domain.QueueItem) domain.QueueItem {
			it.Duration = domain.FormatDuration(it.Duration)
			return it
		},
		DedupKey: func(it domain.QueueItem) string { return it.URL },
	}, logger)
	if err != nil {
		return nil, err
	}
	return &PlaylistMetadata{Store: s}, nil
}

// ItemsFor returns the items belonging to any of the given playlist IDs.
func (m *PlaylistMetadata) ItemsFor(playlistIDs []string) []domain.QueueItem {
	allowed := make(map[string]bool, len(playlistIDs))
	for _, id := range playlistIDs {
		allowed[id] = true
	}
	return m.Filter(func(it domain.QueueItem) bool { return allowed[it.PlaylistID] })
}

// RemoveForPlaylist drops every item of one playlist, ahead of a refresh.
func (m *PlaylistMetadata) RemoveForPlaylist(playlistID string) int {
	removed := 0
	for {
		if _, ok := m.RemoveFirstMatch(func(it domain.QueueItem) bool {
			return it.PlaylistID == playlistID
		}); !ok {
			return removed
		}
		removed++
	}
}
