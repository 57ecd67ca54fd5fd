package engine

import (
	"context"
	"log/slog"

	"mradio/internal/domain"
	"mradio/internal/media"
)

// FFmpegAudio encodes tracks and silence with a local ffmpeg binary.
type FFmpegAudio struct {
	Path   string
	Logger *slog.Logger
}

func (f *FFmpegAudio) Play(ctx context.Context, track domain.Track, seekSeconds int) (AudioStream, error) {
	bitrate := track.Bitrate
	if bitrate <= 0 {
		bitrate = domain.DefaultBitrate
	}
	return media.StartProcess(ctx, f.Path, media.PlayArgs(track.URL, seekSeconds, bitrate), nil)
}

func (f *FFmpegAudio) Silence(ctx context.Context) (AudioStream, error) {
	return media.StartProcess(ctx, f.Path, media.SilenceEncodeArgs(), media.SilencePCM{})
}
