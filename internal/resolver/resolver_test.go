package resolver

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"mradio/internal/domain"
)

func catalogServer(t *testing.T, searchBody, playlistBody string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("__call") {
		case "search.getResults":
			fmt.Fprint(w, searchBody)
		case "playlist.getDetails":
			fmt.Fprint(w, playlistBody)
		default:
			http.Error(w, "bad call", http.StatusBadRequest)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestJioSaavnSearchFuzzyAndDurationCap(t *testing.T) {
	search := `{"results": [
		{"title": "Totally Unrelated", "more_info": {"duration": "100", "encrypted_media_url": "enc0"}},
		{"title": "Bohemian Rhapsody (Live 3 Hours)", "more_info": {"duration": "10800", "encrypted_media_url": "enc1"}},
		{"title": "Bohemian Rhapsody &amp; More", "more_info": {"duration": "355", "encrypted_media_url": "enc2"}}
	]}`
	srv := catalogServer(t, search, "{}")
	j := &JioSaavn{BaseURL: srv.URL, Logger: slog.Default()}

	item, err := j.SearchSong(context.Background(), "Bohemian Rhapsody")
	if err != nil {
		t.Fatal(err)
	}
	// The first fuzzy match is over the cap, so the next one wins, with
	// its HTML entities unescaped.
	if item.URL != "enc2" {
		t.Errorf("url = %q, want enc2", item.URL)
	}
	if item.Title != "Bohemian Rhapsody & More" {
		t.Errorf("title = %q", item.Title)
	}
	if item.Source != domain.SourceJioSaavn {
		t.Errorf("source = %q", item.Source)
	}
}

func TestJioSaavnSearchNoMatch(t *testing.T) {
	srv := catalogServer(t, `{"results": []}`, "{}")
	j := &JioSaavn{BaseURL: srv.URL, Logger: slog.Default()}
	if _, err := j.SearchSong(context.Background(), "anything"); err != ErrNoMatch {
		t.Errorf("err = %v, want ErrNoMatch", err)
	}
}

func TestJioSaavnSearchOnlyOverlongMatches(t *testing.T) {
	search := `{"results": [
		{"title": "Bohemian Rhapsody (Full Concert)", "more_info": {"duration": "7200", "encrypted_media_url": "enc1"}}
	]}`
	srv := catalogServer(t, search, "{}")
	j := &JioSaavn{BaseURL: srv.URL, Logger: slog.Default()}
	if _, err := j.SearchSong(context.Background(), "Bohemian Rhapsody"); err != ErrTooLong {
		t.Errorf("err = %v, want ErrTooLong", err)
	}
}

func TestJioSaavnPlaylistItems(t *testing.T) {
	playlist := `{"list": [
		{"title": "Keeper", "more_info": {"duration": "240", "encrypted_media_url": "enc1"}},
		{"title": "Marathon Mix", "more_info": {"duration": "3600", "encrypted_media_url": "enc2"}},
		{"title": "No Media", "more_info": {"duration": "200", "encrypted_media_url": ""}}
	]}`
	srv := catalogServer(t, "{}", playlist)
	j := &JioSaavn{BaseURL: srv.URL, Logger: slog.Default()}

	items, err := j.PlaylistItems(context.Background(), "pl1")
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 || items[0].Title != "Keeper" {
		t.Fatalf("items = %+v, want only Keeper", items)
	}
	if items[0].PlaylistID != "pl1" {
		t.Errorf("playlistId = %q", items[0].PlaylistID)
	}
}

type fakeSource struct {
	item domain.QueueItem
	err  error
}

func (f fakeSource) SearchSong(ctx context.Context, name string) (domain.QueueItem, error) {
	return f.item, f.err
}

func (f fakeSource) PlaylistItems(ctx context.Context, playlistID string) ([]domain.QueueItem, error) {
	return nil, f.err
}

func TestResolverFallsThroughSourceOrder(t *testing.T) {
	r := New(slog.Default())
	r.Register(domain.SourceSoundCloud, StubSource{})
	r.Register(domain.SourceJioSaavn, fakeSource{item: domain.QueueItem{Title: "hit", Source: domain.SourceJioSaavn}})
	r.Register(domain.SourceYouTube, fakeSource{item: domain.QueueItem{Title: "wrong", Source: domain.SourceYouTube}})

	item, err := r.ResolveSong(context.Background(), "x", "")
	if err != nil {
		t.Fatal(err)
	}
	if item.Source != domain.SourceJioSaavn {
		t.Errorf("resolved from %q, want jiosaavn", item.Source)
	}
}

func TestResolverHonorsPreference(t *testing.T) {
	r := New(slog.Default())
	r.Register(domain.SourceJioSaavn, fakeSource{item: domain.QueueItem{Title: "saavn"}})
	r.Register(domain.SourceYouTube, fakeSource{item: domain.QueueItem{Title: "yt"}})

	item, err := r.ResolveSong(context.Background(), "x", domain.SourceYouTube)
	if err != nil {
		t.Fatal(err)
	}
	if item.Title != "yt" {
		t.Errorf("title = %q, want yt", item.Title)
	}

	// A pinned source that misses must not fall through.
	r2 := New(slog.Default())
	r2.Register(domain.SourceJioSaavn, fakeSource{item: domain.QueueItem{Title: "saavn"}})
	r2.Register(domain.SourceYouTube, fakeSource{err: ErrNoMatch})
	if _, err := r2.ResolveSong(context.Background(), "x", domain.SourceYouTube); err != ErrNoMatch {
		t.Errorf("err = %v, want ErrNoMatch", err)
	}
}
