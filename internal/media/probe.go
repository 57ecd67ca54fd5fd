package media

import (
	"bytes"
	"context"
	"log/slog"
	"os/exec"
	"regexp"
	"strconv"
	"time"

	"mradio/internal/domain"
)

const probeTimeout = 5 * time.Second

var (
	audioBitrateRe = regexp.MustCompile(`Audio:.* (\d+) kb/s`)
	durationRe     = regexp.MustCompile(`Duration: (\d+):(\d{2}):(\d{2})`)
)

// streamBanner decodes path to the null muxer and returns ffmpeg's stderr.
// The stream banner prints before any decode error, so a failed run can
// still yield usable metadata.
func streamBanner(ctx context.Context, ffmpegPath, path string) []byte {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, ffmpegPath, "-i", path, "-f", "null", "-")
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	_ = cmd.Run()
	return stderr.Bytes()
}

// ProbeBitrate discovers the audio bitrate of a local file in bits per
// second. Any failure falls back to domain.DefaultBitrate so playback can
// always proceed.
func ProbeBitrate(ctx context.Context, ffmpegPath, path string, logger *slog.Logger) int {
	banner := streamBanner(ctx, ffmpegPath, path)
	if m := audioBitrateRe.FindSubmatch(banner); m != nil {
		if kbps, err := strconv.Atoi(string(m[1])); err == nil && kbps > 0 {
			return kbps * 1000
		}
	}
	if logger != nil {
		logger.Warn("bitrate probe fell back to default", slog.String("path", path))
	}
	return domain.DefaultBitrate
}

// ProbeDuration returns the length of a local file in seconds, zero when
// the banner carries no duration.
func ProbeDuration(ctx context.Context, ffmpegPath, path string, logger *slog.Logger) int {
	banner := streamBanner(ctx, ffmpegPath, path)
	if m := durationRe.FindSubmatch(banner); m != nil {
		h, _ := strconv.Atoi(string(m[1]))
		min, _ := strconv.Atoi(string(m[2]))
		sec, _ := strconv.Atoi(string(m[3]))
		return h*3600 + min*60 + sec
	}
	if logger != nil {
		logger.Warn("duration probe found nothing", slog.String("path", path))
	}
	return 0
}
