// Package fetch decides what the station plays next. It tops the queue up
// from the default playlists when listeners stop requesting, downloads the
// upcoming queue heads in the background so track changes never wait on
// the network, and falls back to the local track directory when every
// upstream fails.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"mradio/internal/domain"
	"mradio/internal/resolver"
	"mradio/internal/store"
)

var (
	// ErrFetchFailed means neither the queue, the default playlists, nor
	// the fallback directory produced a playable track.
	ErrFetchFailed = errors.New("could not fetch a playable track")
	// ErrNotReady means the queue head has not finished downloading; the
	// caller should fill air and ask again.
	ErrNotReady = errors.New("next track is still downloading")
)

// maxHeadDrops bounds how many failed queue heads one materialiser pass
// burns through.
const maxHeadDrops = 3

// deckPoll is how often the materialiser re-checks the deck without being
// kicked.
const deckPoll = 5 * time.Second

// TrackFetcher materialises queue items into playable tracks.
type TrackFetcher interface {
	Fetch(ctx context.Context, item domain.QueueItem) (domain.Track, error)
}

// PlaylistResolver refreshes default playlist metadata from the catalog.
type PlaylistResolver interface {
	ResolvePlaylist(ctx context.Context, playlistID string, src domain.SourceType) ([]domain.QueueItem, error)
}

// Fetcher is the single supplier of next tracks for the playback engine.
type Fetcher struct {
	Queue      *store.SongQueue
	Blocks     *store.BlockList
	Playlists  *store.DefaultPlaylists
	Metadata   *store.PlaylistMetadata
	Config     *store.CommonConfig
	Downloader TrackFetcher
	Resolver   PlaylistResolver

	FallbackDir  string
	MinQueueSize int
	Logger       *slog.Logger

	// Shuffle picks fallback candidates; replaced in tests.
	Shuffle func(n int) int

	refilling     atomic.Bool
	materialising atomic.Bool

	// deck holds the downloaded tracks for the first MinQueueSize queue
	// entries, keyed by queue item URL.
	deckMu sync.Mutex
	deck   map[string]domain.Track

	wake chan struct{}
}

func (f *Fetcher) shuffle(n int) int {
	if f.Shuffle != nil {
		return f.Shuffle(n)
	}
	return rand.Intn(n)
}

// Start launches the background materialiser. It downloads the first
// MinQueueSize queue entries ahead of playback so Next can hand tracks
// over without waiting on the network. Call once, before the engine runs.
func (f *Fetcher) Start(ctx context.Context) {
	f.wake = make(chan struct{}, 1)
	go func() {
		f.Materialise(ctx)
		ticker := time.NewTicker(deckPoll)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-f.wake:
			case <-ticker.C:
			}
			f.Materialise(ctx)
		}
	}()
}

// kick nudges the materialiser without blocking. Safe before Start.
func (f *Fetcher) kick() {
	select {
	case f.wake <- struct{}{}:
	default:
	}
}

// Next serves the queue head off the deck of already-downloaded tracks.
// It never downloads: a head the materialiser has not finished yet yields
// ErrNotReady so the engine can fill air meanwhile. An empty queue falls
// back to the local fallback directory, which needs no download.
func (f *Fetcher) Next(ctx context.Context) (domain.Track, error) {
	f.EnsureQueue(ctx)

	if item, ok := f.Queue.First(); ok {
		track, ready := f.deckTake(item.URL)
		if !ready {
			f.kick()
			return domain.Track{}, ErrNotReady
		}
		f.Queue.RemoveFirstMatch(func(it domain.QueueItem) bool { return it.URL == item.URL })
		f.kick()
		return track, nil
	}

	item, err := f.fallbackPick()
	if err != nil {
		return domain.Track{}, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	track, err := f.Downloader.Fetch(ctx, item)
	if err != nil {
		return domain.Track{}, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	return track, nil
}

// Materialise runs one deck pass: top the queue up, drop heads whose
// download fails, and fetch whatever on-deck entries are still missing.
// Re-entrant calls while a pass is running are no-ops.
func (f *Fetcher) Materialise(ctx context.Context) {
	if !f.materialising.CompareAndSwap(false, true) {
		return
	}
	defer f.materialising.Store(false)

	f.EnsureQueue(ctx)

	drops := 0
	for drops < maxHeadDrops {
		item, ok := f.nextUnmaterialised()
		if !ok {
			break
		}
		track, err := f.Downloader.Fetch(ctx, item)
		if err != nil {
			f.Logger.Warn("on-deck download failed, dropping",
				slog.String("title", item.Title),
				slog.String("error", err.Error()))
			f.Queue.RemoveFirstMatch(func(it domain.QueueItem) bool { return it.URL == item.URL })
			drops++
			f.EnsureQueue(ctx)
			continue
		}
		f.deckPut(item.URL, track)
	}
	f.pruneDeck()
}

// nextUnmaterialised returns the first on-deck queue entry whose download
// has not happened yet.
func (f *Fetcher) nextUnmaterialised() (domain.QueueItem, bool) {
	heads := f.Queue.All()
	if len(heads) > f.MinQueueSize {
		heads = heads[:f.MinQueueSize]
	}
	f.deckMu.Lock()
	defer f.deckMu.Unlock()
	for _, item := range heads {
		if _, ok := f.deck[item.URL]; !ok {
			return item, true
		}
	}
	return domain.QueueItem{}, false
}

func (f *Fetcher) deckPut(url string, track domain.Track) {
	f.deckMu.Lock()
	if f.deck == nil {
		f.deck = map[string]domain.Track{}
	}
	f.deck[url] = track
	f.deckMu.Unlock()
}

func (f *Fetcher) deckTake(url string) (domain.Track, bool) {
	f.deckMu.Lock()
	defer f.deckMu.Unlock()
	track, ok := f.deck[url]
	if ok {
		delete(f.deck, url)
	}
	return track, ok
}

// pruneDeck forgets downloads whose queue entry is gone, e.g. removed
// through the control API.
func (f *Fetcher) pruneDeck() {
	queued := map[string]bool{}
	for _, item := range f.Queue.All() {
		queued[item.URL] = true
	}
	f.deckMu.Lock()
	for url := range f.deck {
		if !queued[url] {
			delete(f.deck, url)
		}
	}
	f.deckMu.Unlock()
}

// EnsureQueue tops the queue back up to MinQueueSize from the active
// default playlists, honoring the configured genre and the block list.
// Re-entrant calls while a refill is running are no-ops.
func (f *Fetcher) EnsureQueue(ctx context.Context) {
	if f.Queue.Len() >= f.MinQueueSize {
		return
	}
	if !f.refilling.CompareAndSwap(false, true) {
		return
	}
	defer f.refilling.Store(false)

	f.refreshStaleMetadata(ctx)

	active := f.activePlaylists()
	if len(active) == 0 {
		return
	}
	ids := make([]string, len(active))
	for i, pl := range active {
		ids[i] = pl.PlaylistID
	}
	candidates := f.Metadata.ItemsFor(ids)

	for len(candidates) > 0 && f.Queue.Len() < f.MinQueueSize {
		i := f.shuffle(len(candidates))
		item := candidates[i]
		candidates = append(candidates[:i], candidates[i+1:]...)

		if f.Blocks.IsBlocked(item.Title) {
			continue
		}
		item.RequestedBy = domain.AnonymousUser
		f.Queue.Append(item)
	}
}

// activePlaylists returns the active default playlists, narrowed by the
// configured genre unless it is "all".
func (f *Fetcher) activePlaylists() []domain.DefaultPlaylist {
	active := f.Playlists.Active()
	genre, err := f.Config.Get(store.KeyDefaultPlaylistGenre)
	if err != nil || genre == store.GenreAll {
		return active
	}
	var out []domain.DefaultPlaylist
	for _, pl := range active {
		if strings.EqualFold(pl.Genre, genre) {
			out = append(out, pl)
		}
	}
	return out
}

// refreshStaleMetadata re-materialises playlists whose item lists have
// aged out. A failed refresh keeps the old items in place.
func (f *Fetcher) refreshStaleMetadata(ctx context.Context) {
	for _, pl := range f.Playlists.Stale() {
		items, err := f.Resolver.ResolvePlaylist(ctx, pl.PlaylistID, pl.Source)
		if err != nil {
			if !errors.Is(err, resolver.ErrNoMatch) {
				f.Logger.Warn("playlist refresh failed",
					slog.String("playlist", pl.PlaylistID), slog.String("error", err.Error()))
			}
			continue
		}
		f.Metadata.RemoveForPlaylist(pl.PlaylistID)
		added := f.Metadata.AppendMany(items)
		f.Playlists.TouchMetadata(pl.PlaylistID)
		f.Logger.Info("playlist metadata refreshed",
			slog.String("playlist", pl.PlaylistID), slog.Int("items", added))
	}
}

// PreloadLocal enqueues the MP3 files already sitting in dir so a fresh
// station has material before any request or playlist seed lands. probe
// fills in each file's duration; nil leaves it blank. Returns how many
// tracks entered the queue; files already queued or block-listed are
// skipped.
func (f *Fetcher) PreloadLocal(ctx context.Context, dir string, probe func(ctx context.Context, path string) int) int {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			f.Logger.Warn("track directory unreadable",
				slog.String("dir", dir), slog.String("error", err.Error()))
		}
		return 0
	}
	var items []domain.QueueItem
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(strings.ToLower(e.Name()), ".mp3") {
			continue
		}
		title := strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))
		if f.Blocks.IsBlocked(title) {
			continue
		}
		item := domain.QueueItem{
			Title:       title,
			URL:         filepath.Join(dir, e.Name()),
			Source:      domain.SourceLocal,
			RequestedBy: domain.AnonymousUser,
		}
		if probe != nil {
			item.Duration = domain.FormatSeconds(probe(ctx, item.URL))
		}
		items = append(items, item)
	}
	added := f.Queue.AppendMany(items)
	if added > 0 {
		f.Logger.Info("local tracks preloaded",
			slog.String("dir", dir), slog.Int("count", added))
	}
	return added
}

// fallbackPick selects a random MP3 from the fallback directory.
func (f *Fetcher) fallbackPick() (domain.QueueItem, error) {
	entries, err := os.ReadDir(f.FallbackDir)
	if err != nil {
		return domain.QueueItem{}, err
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(strings.ToLower(e.Name()), ".mp3") {
			files = append(files, e.Name())
		}
	}
	if len(files) == 0 {
		return domain.QueueItem{}, errors.New("fallback directory is empty")
	}
	name := files[f.shuffle(len(files))]
	return domain.QueueItem{
		Title:       strings.TrimSuffix(name, filepath.Ext(name)),
		URL:         filepath.Join(f.FallbackDir, name),
		Source:      domain.SourceFallback,
		RequestedBy: domain.FallbackUser,
	}, nil
}
