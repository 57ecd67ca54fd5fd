package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"

	"mradio/internal/domain"
)

// YouTube resolves requests through yt-dlp's JSON dump mode. It only
// produces metadata; the actual audio download happens later in the media
// downloader, which also goes through yt-dlp.
type YouTube struct {
	Path   string
	Logger *slog.Logger

	// Run executes the binary and returns its stdout; replaced in tests.
	Run func(ctx context.Context, path string, args ...string) ([]byte, error)
}

func (y *YouTube) run(ctx context.Context, args ...string) ([]byte, error) {
	if y.Run != nil {
		return y.Run(ctx, y.Path, args...)
	}
	return exec.CommandContext(ctx, y.Path, args...).Output()
}

type ytEntry struct {
	Title      string  `json:"title"`
	Duration   float64 `json:"duration"`
	WebpageURL string  `json:"webpage_url"`
	URL        string  `json:"url"`
}

// link prefers the canonical watch URL; flat playlist dumps only carry the
// bare url field.
func (e ytEntry) link() string {
	if e.WebpageURL != "" {
		return e.WebpageURL
	}
	return e.URL
}

func (e ytEntry) item() domain.QueueItem {
	return domain.QueueItem{
		Title:    e.Title,
		URL:      e.link(),
		Source:   domain.SourceYouTube,
		Duration: strconv.Itoa(int(e.Duration)),
	}
}

// SearchSong takes yt-dlp's top search hit for name. Hits over the
// single-song duration cap are rejected rather than falling through to a
// worse match; YouTube's own ranking already did the matching.
func (y *YouTube) SearchSong(ctx context.Context, name string) (domain.QueueItem, error) {
	out, err := y.run(ctx, "--dump-single-json", "--flat-playlist", "ytsearch1:"+name)
	if err != nil {
		return domain.QueueItem{}, fmt.Errorf("yt-dlp search: %w", err)
	}
	var result struct {
		Entries []ytEntry `json:"entries"`
	}
	if err := json.Unmarshal(out, &result); err != nil {
		return domain.QueueItem{}, fmt.Errorf("yt-dlp search: %w", err)
	}
	if len(result.Entries) == 0 || result.Entries[0].link() == "" {
		return domain.QueueItem{}, ErrNoMatch
	}
	hit := result.Entries[0]
	if int(hit.Duration) > maxSongSeconds {
		y.Logger.Info("search hit rejected for length",
			slog.String("title", hit.Title), slog.Int("seconds", int(hit.Duration)))
		return domain.QueueItem{}, ErrTooLong
	}
	return hit.item(), nil
}

// PlaylistItems flat-lists a playlist, skipping entries without a link or
// over the playlist duration cap.
func (y *YouTube) PlaylistItems(ctx context.Context, playlistID string) ([]domain.QueueItem, error) {
	out, err := y.run(ctx, "--dump-single-json", "--flat-playlist",
		"https://www.youtube.com/playlist?list="+playlistID)
	if err != nil {
		return nil, fmt.Errorf("yt-dlp playlist: %w", err)
	}
	var result struct {
		Entries []ytEntry `json:"entries"`
	}
	if err := json.Unmarshal(out, &result); err != nil {
		return nil, fmt.Errorf("yt-dlp playlist: %w", err)
	}
	var items []domain.QueueItem
	for _, e := range result.Entries {
		if e.link() == "" || int(e.Duration) > maxPlaylistSeconds {
			continue
		}
		item := e.item()
		item.PlaylistID = playlistID
		items = append(items, item)
	}
	if len(items) == 0 {
		return nil, ErrNoMatch
	}
	return items, nil
}
