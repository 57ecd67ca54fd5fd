package domain

import "time"

// SourceType identifies where a track's audio is fetched from.
type SourceType string

const (
	SourceYouTube    SourceType = "youtube"
	SourceJioSaavn   SourceType = "jiosaavn"
	SourceSoundCloud SourceType = "soundcloud"
	SourceFallback   SourceType = "fallback"
	SourceLocal      SourceType = "local"
)

// DefaultBitrate is assumed when probing fails or has not run yet.
const DefaultBitrate = 128000

// AnonymousUser is the requester recorded when none is given.
const AnonymousUser = "anonymous"

// FallbackUser marks tracks the station injected from the fallback
// directory rather than any listener request.
const FallbackUser = "fallback"

// QueueItem is a requested track that has not been materialised yet.
// It is the unit persisted in the song queue and playlist metadata stores.
type QueueItem struct {
	Title       string     `json:"title"`
	URL         string     `json:"url"`
	Source      SourceType `json:"urlType"`
	Duration    string     `json:"duration"`
	RequestedBy string     `json:"requestedBy"`
	PlaylistID  string     `json:"playlistId,omitempty"`
}

// Track is a materialised, playable track. URL always points at a local
// file once the track reaches the engine. Bitrate is discovered lazily by
// probing the file and then frozen.
type Track struct {
	Title       string
	URL         string
	Source      SourceType
	Duration    string
	RequestedBy string
	Bitrate     int
}

// BlockEntry is one block-list record. Matching against it is fuzzy
// (token-set similarity), not exact.
type BlockEntry struct {
	SongName    string `json:"songName"`
	RequestedBy string `json:"requestedBy"`
	BlockedAt   string `json:"blockedAt"`
}

// DefaultPlaylist is an operator-curated playlist the station falls back to
// when the request queue is empty.
type DefaultPlaylist struct {
	PlaylistID        string     `json:"playlistId"`
	Title             string     `json:"title"`
	Source            SourceType `json:"source"`
	IsActive          bool       `json:"isActive"`
	Genre             string     `json:"genre"`
	MetadataUpdatedAt string     `json:"metadataUpdatedAt"`
}

// MetadataStale reports whether the playlist's materialised item list is
// older than maxAge and should be refreshed.
func (p DefaultPlaylist) MetadataStale(now time.Time, maxAge time.Duration) bool {
	updated, err := time.Parse(time.RFC3339, p.MetadataUpdatedAt)
	if err != nil {
		return true
	}
	return now.Sub(updated) > maxAge
}

// MetadataFilter narrows playlist metadata lookups. Nil fields are ignored.
type MetadataFilter struct {
	Source     *SourceType
	PlaylistID *string
	IsActive   *bool
	Genre      *string
}

// AuthToken is one issued API token.
type AuthToken struct {
	Token    string `json:"token"`
	Username string `json:"username"`
}

// PlayRecord is one entry of the optional play history.
type PlayRecord struct {
	Title       string     `json:"title"`
	RequestedBy string     `json:"requestedBy"`
	Source      SourceType `json:"source"`
	StartedAt   time.Time  `json:"startedAt"`
}
