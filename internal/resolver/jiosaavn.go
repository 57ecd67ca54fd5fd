package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"mradio/internal/domain"
)

const (
	defaultCatalogBase = "https://www.jiosaavn.com/api.php"

	// Single requested songs are capped at 10 minutes; playlist entries
	// get a looser 15 minutes since operators curate them.
	maxSongSeconds     = 600
	maxPlaylistSeconds = 900
)

// JioSaavn resolves against the JioSaavn public catalog API.
type JioSaavn struct {
	BaseURL string
	Client  *http.Client
	Logger  *slog.Logger
}

func (j *JioSaavn) base() string {
	if j.BaseURL != "" {
		return j.BaseURL
	}
	return defaultCatalogBase
}

func (j *JioSaavn) client() *http.Client {
	if j.Client != nil {
		return j.Client
	}
	return http.DefaultClient
}

func (j *JioSaavn) get(ctx context.Context, params url.Values, out any) error {
	params.Set("_format", "json")
	params.Set("_marker", "0")
	params.Set("api_version", "4")
	params.Set("ctx", "web6dot0")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, j.base()+"?"+params.Encode(), nil)
	if err != nil {
		return err
	}
	resp, err := j.client().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("catalog status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

type catalogSong struct {
	Title    string `json:"title"`
	MoreInfo struct {
		Duration          string `json:"duration"`
		EncryptedMediaURL string `json:"encrypted_media_url"`
	} `json:"more_info"`
}

func (s catalogSong) seconds() int {
	n, _ := strconv.Atoi(s.MoreInfo.Duration)
	return n
}

func (s catalogSong) item() domain.QueueItem {
	return domain.QueueItem{
		Title:    html.UnescapeString(s.Title),
		URL:      s.MoreInfo.EncryptedMediaURL,
		Source:   domain.SourceJioSaavn,
		Duration: s.MoreInfo.Duration,
	}
}

// SearchSong picks the first search result whose title fuzzy-matches the
// request and fits the duration cap.
func (j *JioSaavn) SearchSong(ctx context.Context, name string) (domain.QueueItem, error) {
	params := url.Values{}
	params.Set("__call", "search.getResults")
	params.Set("q", name)
	params.Set("p", "1")
	params.Set("n", "10")

	var body struct {
		Results []catalogSong `json:"results"`
	}
	if err := j.get(ctx, params, &body); err != nil {
		return domain.QueueItem{}, err
	}
	rejectedForLength := false
	for _, song := range body.Results {
		title := html.UnescapeString(song.Title)
		if !domain.SimilarEnough(title, name, domain.ResolverMatchThreshold) {
			continue
		}
		if song.MoreInfo.EncryptedMediaURL == "" {
			continue
		}
		if song.seconds() > maxSongSeconds {
			j.Logger.Info("search hit rejected for length",
				slog.String("title", title), slog.String("duration", song.MoreInfo.Duration))
			rejectedForLength = true
			continue
		}
		return song.item(), nil
	}
	if rejectedForLength {
		return domain.QueueItem{}, ErrTooLong
	}
	return domain.QueueItem{}, ErrNoMatch
}

// PlaylistItems lists a playlist's tracks, skipping entries over the
// playlist duration cap or without a media link.
func (j *JioSaavn) PlaylistItems(ctx context.Context, playlistID string) ([]domain.QueueItem, error) {
	params := url.Values{}
	params.Set("__call", "playlist.getDetails")
	params.Set("listid", playlistID)

	var body struct {
		List []catalogSong `json:"list"`
	}
	if err := j.get(ctx, params, &body); err != nil {
		return nil, err
	}
	var items []domain.QueueItem
	for _, song := range body.List {
		if song.MoreInfo.EncryptedMediaURL == "" || song.seconds() > maxPlaylistSeconds {
			continue
		}
		item := song.item()
		item.PlaylistID = playlistID
		items = append(items, item)
	}
	if len(items) == 0 {
		return nil, ErrNoMatch
	}
	return items, nil
}

// StubSource is a placeholder for catalogs without an API integration yet;
// every lookup reports no match so resolution falls through to the next
// source in order.
type StubSource struct{}

func (StubSource) SearchSong(ctx context.Context, name string) (domain.QueueItem, error) {
	return domain.QueueItem{}, ErrNoMatch
}

func (StubSource) PlaylistItems(ctx context.Context, playlistID string) ([]domain.QueueItem, error) {
	return nil, ErrNoMatch
}
