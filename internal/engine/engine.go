// Package engine runs the station: it pulls tracks from the fetcher,
// encodes them at realtime pace, and fans the audio out to the sinks.
// Exactly one track (or the silence fallback) is on air at any moment.
package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"mradio/internal/domain"
	"mradio/internal/metrics"
)

var (
	ErrTransitioning  = errors.New("a transition is already in progress")
	ErrNoPrevious     = errors.New("no previous track available")
	ErrInvalidSeek    = errors.New("seek position must not be negative")
	ErrNothingPlaying = errors.New("nothing is playing")
)

// chunkSize is how much audio moves per fan-out step.
const chunkSize = 4096

// ChunkSink consumes broadcast audio. Implementations must not block; a
// failing sink is logged and skipped, never stalls the station.
type ChunkSink interface {
	Name() string
	WriteChunk(chunk []byte)
}

// AudioStream is one running encode whose Output carries MP3 bytes.
type AudioStream interface {
	Output() io.Reader
	Stop()
	Err() error
}

// AudioSource starts encodes for tracks and for the silence fallback.
type AudioSource interface {
	Play(ctx context.Context, track domain.Track, seekSeconds int) (AudioStream, error)
	Silence(ctx context.Context) (AudioStream, error)
}

// TrackSupplier provides the next track to put on air.
type TrackSupplier interface {
	Next(ctx context.Context) (domain.Track, error)
}

// EventPublisher receives playback lifecycle notifications.
type EventPublisher interface {
	TrackChanged(title, duration, requestedBy string)
	Progress(title string, elapsedSeconds int)
}

// HistoryRecorder persists what went on air. Optional.
type HistoryRecorder interface {
	Record(ctx context.Context, rec domain.PlayRecord)
}

type cmdKind int

const (
	cmdSkip cmdKind = iota
	cmdPrevious
	cmdSeek
)

type command struct {
	kind   cmdKind
	seekTo int
	reply  chan error
}

type moveKind int

const (
	moveNext moveKind = iota
	movePrevious
	moveSeek
	moveStop
)

type move struct {
	kind   moveKind
	seekTo int
}

// Engine is the playback loop. Construct with New, start with Run.
type Engine struct {
	Fetcher TrackSupplier
	Audio   AudioSource
	Sinks   []ChunkSink
	Events  EventPublisher
	History HistoryRecorder
	Logger  *slog.Logger

	// ProgressInterval spaces progress events; SilenceRetry spaces fetch
	// retries while dead air is on. Defaults applied by New.
	ProgressInterval time.Duration
	SilenceRetry     time.Duration

	cmds          chan command
	transitioning atomic.Bool

	stateMu  sync.Mutex
	current  *domain.Track
	previous *domain.Track
	elapsed  int
	silence  bool

	runCtx    context.Context
	runCancel context.CancelFunc
}

func New(fetcher TrackSupplier, audio AudioSource, sinks []ChunkSink, events EventPublisher, history HistoryRecorder, logger *slog.Logger) *Engine {
	return &Engine{
		Fetcher:          fetcher,
		Audio:            audio,
		Sinks:            sinks,
		Events:           events,
		History:          history,
		Logger:           logger,
		ProgressInterval: 5 * time.Second,
		SilenceRetry:     10 * time.Second,
		cmds:             make(chan command),
	}
}

// Run drives the station until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	e.stateMu.Lock()
	e.runCtx, e.runCancel = runCtx, cancel
	e.stateMu.Unlock()
	defer cancel()

	var queued *struct {
		track domain.Track
		seek  int
	}
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		var track domain.Track
		var startAt int
		if queued != nil {
			track, startAt = queued.track, queued.seek
			queued = nil
		} else {
			t, err := e.acquire(ctx)
			if err != nil {
				return err
			}
			track = t
		}

		switch m := e.playTrack(ctx, track, startAt); m.kind {
		case moveSeek:
			queued = &struct {
				track domain.Track
				seek  int
			}{track, m.seekTo}
		case movePrevious:
			prev := e.takePrevious(track)
			queued = &struct {
				track domain.Track
				seek  int
			}{prev, 0}
		case moveNext:
			e.setPrevious(track)
		case moveStop:
			return ctx.Err()
		}
	}
}

// acquire fetches the next track, keeping silence on air while every fetch
// fails.
func (e *Engine) acquire(ctx context.Context) (domain.Track, error) {
	track, err := e.Fetcher.Next(ctx)
	if err == nil {
		return track, nil
	}
	e.Logger.Warn("no track available, switching to silence", slog.String("error", err.Error()))
	e.setSilence(true)
	defer e.setSilence(false)

	for {
		stream, serr := e.Audio.Silence(ctx)
		if serr != nil {
			e.Logger.Error("silence encoder failed", slog.String("error", serr.Error()))
			select {
			case <-ctx.Done():
				return domain.Track{}, ctx.Err()
			case <-time.After(e.SilenceRetry):
			case cmd := <-e.cmds:
				// Controls must not hang on the retry sleep.
				cmd.reply <- ErrNothingPlaying
			}
			if track, err := e.Fetcher.Next(ctx); err == nil {
				return track, nil
			}
			continue
		}

		chunks := pumpChunks(stream)
		retry := time.NewTicker(e.SilenceRetry)
		restart := false
		for !restart {
			select {
			case <-ctx.Done():
				retry.Stop()
				stream.Stop()
				return domain.Track{}, ctx.Err()
			case chunk, ok := <-chunks:
				if !ok {
					restart = true
					break
				}
				e.fanOut(chunk)
			case <-retry.C:
				metrics.SilenceSecondsTotal.Add(e.SilenceRetry.Seconds())
				if track, err := e.Fetcher.Next(ctx); err == nil {
					retry.Stop()
					stream.Stop()
					return track, nil
				}
			case cmd := <-e.cmds:
				cmd.reply <- ErrNothingPlaying
			}
		}
		retry.Stop()
		stream.Stop()
	}
}

// playTrack keeps one track on air until it ends or a control command
// interrupts it, and reports what to do next.
func (e *Engine) playTrack(ctx context.Context, track domain.Track, startAt int) move {
	stream, err := e.Audio.Play(ctx, track, startAt)
	if err != nil {
		// Unplayable tracks are treated as instant end-of-track.
		e.Logger.Error("encode start failed",
			slog.String("title", track.Title), slog.String("error", err.Error()))
		return move{kind: moveNext}
	}
	defer stream.Stop()

	e.setCurrent(track, startAt)
	e.Events.TrackChanged(track.Title, track.Duration, track.RequestedBy)
	if startAt == 0 {
		metrics.TracksPlayedTotal.Inc()
		if e.History != nil {
			e.History.Record(ctx, domain.PlayRecord{
				Title:       track.Title,
				RequestedBy: track.RequestedBy,
				Source:      track.Source,
				StartedAt:   time.Now().UTC(),
			})
		}
		e.Logger.Info("now playing",
			slog.String("title", track.Title),
			slog.String("requestedBy", track.RequestedBy),
			slog.String("source", string(track.Source)))
	}

	chunks := pumpChunks(stream)
	progress := time.NewTicker(e.ProgressInterval)
	defer progress.Stop()
	started := time.Now()

	for {
		select {
		case <-ctx.Done():
			return move{kind: moveStop}
		case chunk, ok := <-chunks:
			if !ok {
				if err := stream.Err(); err != nil {
					e.Logger.Warn("encode ended with error",
						slog.String("title", track.Title), slog.String("error", err.Error()))
				}
				return move{kind: moveNext}
			}
			e.fanOut(chunk)
		case <-progress.C:
			elapsed := startAt + int(time.Since(started).Seconds())
			e.setElapsed(elapsed)
			e.Events.Progress(track.Title, elapsed)
		case cmd := <-e.cmds:
			switch cmd.kind {
			case cmdSkip:
				cmd.reply <- nil
				return move{kind: moveNext}
			case cmdSeek:
				cmd.reply <- nil
				return move{kind: moveSeek, seekTo: cmd.seekTo}
			case cmdPrevious:
				if !e.previousPlayable() {
					cmd.reply <- ErrNoPrevious
					continue
				}
				cmd.reply <- nil
				return move{kind: movePrevious}
			}
		}
	}
}

// pumpChunks reads the stream in fixed chunks on a separate goroutine so
// the control loop can keep selecting on commands.
func pumpChunks(stream AudioStream) <-chan []byte {
	out := make(chan []byte, 16)
	go func() {
		defer close(out)
		for {
			buf := make([]byte, chunkSize)
			n, err := stream.Output().Read(buf)
			if n > 0 {
				out <- buf[:n]
			}
			if err != nil {
				return
			}
		}
	}()
	return out
}

func (e *Engine) fanOut(chunk []byte) {
	for _, sink := range e.Sinks {
		sink.WriteChunk(chunk)
	}
	metrics.ChunksBroadcastTotal.Inc()
	metrics.BytesBroadcastTotal.Add(float64(len(chunk)))
}

// send delivers a command to the playback loop and waits for its verdict.
func (e *Engine) send(c command) error {
	e.stateMu.Lock()
	runCtx := e.runCtx
	e.stateMu.Unlock()
	if runCtx == nil {
		return ErrNothingPlaying
	}
	select {
	case e.cmds <- c:
		return <-c.reply
	case <-runCtx.Done():
		return ErrNothingPlaying
	}
}

// Skip ends the current track immediately.
func (e *Engine) Skip() error {
	if !e.transitioning.CompareAndSwap(false, true) {
		return ErrTransitioning
	}
	defer e.transitioning.Store(false)
	return e.send(command{kind: cmdSkip, reply: make(chan error, 1)})
}

// Previous replays the previously played track if its file is still on
// disk. The interrupted track becomes the new previous.
func (e *Engine) Previous() error {
	if !e.transitioning.CompareAndSwap(false, true) {
		return ErrTransitioning
	}
	defer e.transitioning.Store(false)
	return e.send(command{kind: cmdPrevious, reply: make(chan error, 1)})
}

// SeekTo restarts the current track at the given position in seconds.
func (e *Engine) SeekTo(seconds int) error {
	if seconds < 0 {
		return ErrInvalidSeek
	}
	if !e.transitioning.CompareAndSwap(false, true) {
		return ErrTransitioning
	}
	defer e.transitioning.Store(false)
	return e.send(command{kind: cmdSeek, seekTo: seconds, reply: make(chan error, 1)})
}

func (e *Engine) setCurrent(track domain.Track, elapsed int) {
	e.stateMu.Lock()
	e.current = &track
	e.elapsed = elapsed
	e.stateMu.Unlock()
}

func (e *Engine) setElapsed(elapsed int) {
	e.stateMu.Lock()
	e.elapsed = elapsed
	e.stateMu.Unlock()
}

func (e *Engine) setPrevious(track domain.Track) {
	e.stateMu.Lock()
	e.previous = &track
	e.stateMu.Unlock()
}

// takePrevious swaps: the interrupted track becomes previous, the old
// previous goes on air.
func (e *Engine) takePrevious(interrupted domain.Track) domain.Track {
	e.stateMu.Lock()
	prev := *e.previous
	e.previous = &interrupted
	e.stateMu.Unlock()
	return prev
}

func (e *Engine) previousPlayable() bool {
	e.stateMu.Lock()
	prev := e.previous
	e.stateMu.Unlock()
	if prev == nil {
		return false
	}
	_, err := os.Stat(prev.URL)
	return err == nil
}

func (e *Engine) setSilence(on bool) {
	e.stateMu.Lock()
	e.silence = on
	if on {
		e.current = nil
		e.elapsed = 0
	}
	e.stateMu.Unlock()
}

// Current returns the on-air track and elapsed seconds. ok is false during
// silence.
func (e *Engine) Current() (domain.Track, int, bool) {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	if e.current == nil {
		return domain.Track{}, 0, false
	}
	return *e.current, e.elapsed, true
}

// PreviousTrack returns the previously played track.
func (e *Engine) PreviousTrack() (domain.Track, bool) {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	if e.previous == nil {
		return domain.Track{}, false
	}
	return *e.previous, true
}

// SilenceActive reports whether the fallback silence stream is on air.
func (e *Engine) SilenceActive() bool {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	return e.silence
}
