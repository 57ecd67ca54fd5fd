package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"mradio/internal/cache"
	"mradio/internal/domain"
	"mradio/internal/metrics"
)

var ErrDownloadFailed = errors.New("track download failed")

// Downloader materialises queue items into playable local MP3 files. Cached
// titles are served without touching the network.
type Downloader struct {
	FFmpegPath  string
	YtDlpPath   string
	CookiesPath string
	WorkDir     string
	HTTPClient  *http.Client
	Cache       *cache.FileCache
	Logger      *slog.Logger
}

// Fetch returns a playable Track for item: cache hit, or download, convert
// and admit. The bitrate is probed once the file is local.
func (d *Downloader) Fetch(ctx context.Context, item domain.QueueItem) (domain.Track, error) {
	path, err := d.localPath(ctx, item)
	if err != nil {
		metrics.DownloadsTotal.WithLabelValues(string(item.Source), "error").Inc()
		return domain.Track{}, err
	}
	metrics.DownloadsTotal.WithLabelValues(string(item.Source), "ok").Inc()
	return domain.Track{
		Title:       item.Title,
		URL:         path,
		Source:      item.Source,
		Duration:    item.Duration,
		RequestedBy: item.RequestedBy,
		Bitrate:     ProbeBitrate(ctx, d.FFmpegPath, path, d.Logger),
	}, nil
}

func (d *Downloader) localPath(ctx context.Context, item domain.QueueItem) (string, error) {
	switch item.Source {
	case domain.SourceLocal, domain.SourceFallback:
		if _, err := os.Stat(item.URL); err != nil {
			return "", fmt.Errorf("%w: %v", ErrDownloadFailed, err)
		}
		return item.URL, nil
	}

	if cached, ok := d.Cache.Lookup(item.Title); ok {
		d.Logger.Info("cache hit", slog.String("title", item.Title))
		return cached, nil
	}
	if err := os.MkdirAll(d.WorkDir, 0o755); err != nil {
		return "", err
	}

	var (
		tmp string
		err error
	)
	switch item.Source {
	case domain.SourceYouTube, domain.SourceSoundCloud:
		tmp, err = d.downloadWithYtDlp(ctx, item)
	case domain.SourceJioSaavn:
		tmp, err = d.downloadFromCatalog(ctx, item)
	default:
		return "", fmt.Errorf("%w: %s", domain.ErrUnsupportedSource, item.Source)
	}
	if err != nil {
		return "", err
	}
	return d.Cache.Admit(item.Title, tmp)
}

// downloadWithYtDlp extracts MP3 audio via yt-dlp. The first attempt runs
// without cookies; bot-check rejections are retried with the configured
// cookie jar when it holds at least one usable line.
func (d *Downloader) downloadWithYtDlp(ctx context.Context, item domain.QueueItem) (string, error) {
	out := filepath.Join(d.WorkDir, cache.Sanitise(item.Title)+".mp3")
	args := []string{
		"-x", "--audio-format", "mp3",
		"--no-playlist",
		"-o", out,
		item.URL,
	}
	p, err := StartProcess(ctx, d.YtDlpPath, args, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}
	if err := p.Wait(); err == nil {
		return out, nil
	}
	d.Logger.Warn("yt-dlp failed without cookies",
		slog.String("title", item.Title), slog.String("stderr", p.Stderr()))

	if !d.cookiesUsable() {
		return "", fmt.Errorf("%w: %s", ErrDownloadFailed, p.Stderr())
	}
	p, err = StartProcess(ctx, d.YtDlpPath, append([]string{"--cookies", d.CookiesPath}, args...), nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}
	if err := p.Wait(); err != nil {
		return "", fmt.Errorf("%w: %s", ErrDownloadFailed, p.Stderr())
	}
	return out, nil
}

// cookiesUsable reports whether the cookie jar exists and contains at
// least one non-comment, non-blank line.
func (d *Downloader) cookiesUsable() bool {
	if d.CookiesPath == "" {
		return false
	}
	data, err := os.ReadFile(d.CookiesPath)
	if err != nil {
		return false
	}
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line != "" && !strings.HasPrefix(line, "#") {
			return true
		}
	}
	return false
}

// downloadFromCatalog decrypts the catalog media link, fetches the audio
// over HTTP and converts it to MP3.
func (d *Downloader) downloadFromCatalog(ctx context.Context, item domain.QueueItem) (string, error) {
	url := item.URL
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		decrypted, err := DecryptMediaLink(url)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrDownloadFailed, err)
		}
		url = decrypted
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}
	client := d.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: catalog fetch status %d", ErrDownloadFailed, resp.StatusCode)
	}

	raw := filepath.Join(d.WorkDir, cache.Sanitise(item.Title)+".m4a")
	f, err := os.Create(raw)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(raw)
		return "", fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}
	f.Close()
	defer os.Remove(raw)

	out := filepath.Join(d.WorkDir, cache.Sanitise(item.Title)+".mp3")
	p, err := StartProcess(ctx, d.FFmpegPath, TranscodeArgs(raw, out), nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}
	if err := p.Wait(); err != nil {
		return "", fmt.Errorf("%w: %s", ErrDownloadFailed, p.Stderr())
	}
	return out, nil
}
