// Package icecast pushes the station's MP3 stream to an upstream icecast
// mount, riding out outages with a bounded pending buffer and a capped
// reconnect loop.
package icecast

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"mradio/internal/media"
	"mradio/internal/metrics"
)

// State of the upstream connection.
type State string

const (
	StateDisabled     State = "disabled"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateDisconnected State = "disconnected"
	StateGaveUp       State = "gave_up"
)

const (
	// pendingBufSize bounds audio held across outages at 1 MiB; older
	// audio is dropped first.
	pendingBufSize = 1 << 20
	maxAttempts    = 10
	// A connection that survives this long counts as healthy and resets
	// the attempt counter.
	healthyAfter = 60 * time.Second
)

// Config describes the upstream mount.
type Config struct {
	Enabled     bool
	Host        string
	Port        int
	Mount       string
	Password    string
	Name        string
	Description string
	Genre       string
	FFmpegPath  string
}

// backoffDelay grows linearly with the attempt number, capped at 30s.
func backoffDelay(attempt int) time.Duration {
	d := time.Duration(5*attempt) * time.Second
	if d > 30*time.Second {
		d = 30 * time.Second
	}
	return d
}

// PushArgs builds the ffmpeg arguments relaying stdin MP3 to the mount.
func PushArgs(cfg Config) []string {
	target := fmt.Sprintf("icecast://source:%s@%s:%d%s", cfg.Password, cfg.Host, cfg.Port, cfg.Mount)
	return []string{
		"-re",
		"-f", "mp3",
		"-i", "pipe:0",
		"-c", "copy",
		"-content_type", "audio/mpeg",
		"-ice_name", cfg.Name,
		"-ice_description", cfg.Description,
		"-ice_genre", cfg.Genre,
		"-ice_public", "1",
		"-f", "mp3",
		target,
	}
}

// Sink is a ChunkSink pushing to icecast. WriteChunk never blocks.
type Sink struct {
	cfg     Config
	logger  *slog.Logger
	pending *pendingBuffer

	mu       sync.Mutex
	state    State
	attempts int
}

func New(cfg Config, logger *slog.Logger) *Sink {
	state := StateDisabled
	if cfg.Enabled {
		state = StateDisconnected
	}
	return &Sink{
		cfg:     cfg,
		logger:  logger,
		pending: newPendingBuffer(pendingBufSize),
		state:   state,
	}
}

// Name implements engine.ChunkSink.
func (s *Sink) Name() string { return "icecast" }

// WriteChunk queues audio for the upstream push.
func (s *Sink) WriteChunk(chunk []byte) {
	if !s.cfg.Enabled {
		return
	}
	s.pending.Write(chunk)
	metrics.IcecastBufferedBytes.Set(float64(s.pending.Buffered()))
}

// Status reports the connection state, attempt count and buffered bytes.
func (s *Sink) Status() (State, int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, s.attempts, s.pending.Buffered()
}

func (s *Sink) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
	if st == StateConnected {
		metrics.IcecastConnected.Set(1)
	} else {
		metrics.IcecastConnected.Set(0)
	}
}

// Run drives the connect/retry loop until ctx is cancelled or the attempt
// budget is spent. No-op when the sink is disabled.
func (s *Sink) Run(ctx context.Context) {
	if !s.cfg.Enabled {
		return
	}
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		s.mu.Lock()
		s.attempts = attempt
		s.mu.Unlock()
		s.setState(StateConnecting)
		metrics.IcecastReconnectsTotal.Inc()

		started := time.Now()
		feed := s.pending.newFeeder()
		proc, err := media.StartProcess(ctx, s.cfg.FFmpegPath, PushArgs(s.cfg), feed)
		if err == nil {
			s.setState(StateConnected)
			s.logger.Info("icecast push started",
				slog.String("host", s.cfg.Host), slog.String("mount", s.cfg.Mount))
			select {
			case <-ctx.Done():
				proc.Stop()
				feed.Close()
				s.setState(StateDisconnected)
				return
			case <-proc.Done():
			}
			s.logger.Warn("icecast push exited", slog.String("stderr", proc.Stderr()))
		} else {
			s.logger.Warn("icecast push failed to start", slog.String("error", err.Error()))
		}
		// The dead process's stdin goroutine must be gone before the next
		// one spawns, or it could steal a chunk meant for the reconnect.
		feed.Close()
		s.setState(StateDisconnected)
		if time.Since(started) >= healthyAfter {
			attempt = 0
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoffDelay(attempt)):
		}
	}
	s.setState(StateGaveUp)
	s.logger.Error("icecast push gave up", slog.Int("attempts", maxAttempts))
}

// pendingBuffer is a byte ring with oldest-drop writes, shared between the
// fan-out path and the ffmpeg stdin feeders. Each push process reads it
// through its own feeder so a dead connection's reader can be torn down.
type pendingBuffer struct {
	mu     sync.Mutex
	buf    []byte
	rPos   int
	wPos   int
	count  int
	dataCh chan struct{}
}

func newPendingBuffer(size int) *pendingBuffer {
	return &pendingBuffer{buf: make([]byte, size), dataCh: make(chan struct{}, 1)}
}

func (b *pendingBuffer) signal() {
	select {
	case b.dataCh <- struct{}{}:
	default:
	}
}

// Write copies chunk in, overwriting the oldest bytes when full. Never
// blocks or fails.
func (b *pendingBuffer) Write(chunk []byte) {
	b.mu.Lock()
	if len(chunk) > len(b.buf) {
		chunk = chunk[len(chunk)-len(b.buf):]
	}
	if overflow := b.count + len(chunk) - len(b.buf); overflow > 0 {
		b.rPos = (b.rPos + overflow) % len(b.buf)
		b.count -= overflow
	}
	for len(chunk) > 0 {
		space := len(b.buf) - b.wPos
		if space > len(chunk) {
			space = len(chunk)
		}
		copy(b.buf[b.wPos:], chunk[:space])
		b.wPos = (b.wPos + space) % len(b.buf)
		b.count += space
		chunk = chunk[space:]
	}
	b.signal()
	b.mu.Unlock()
}

// readLocked copies buffered bytes into p. Caller holds b.mu.
func (b *pendingBuffer) readLocked(p []byte) int {
	n := 0
	for len(p) > 0 && b.count > 0 {
		avail := len(b.buf) - b.rPos
		if avail > b.count {
			avail = b.count
		}
		if avail > len(p) {
			avail = len(p)
		}
		copy(p[:avail], b.buf[b.rPos:b.rPos+avail])
		b.rPos = (b.rPos + avail) % len(b.buf)
		b.count -= avail
		n += avail
		p = p[avail:]
	}
	return n
}

// Buffered returns the bytes currently queued.
func (b *pendingBuffer) Buffered() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// feeder is one push process's stdin view of the buffer. Read blocks until
// audio arrives; after Close it reports io.EOF so the feed goroutine of a
// dead connection exits instead of lingering on the shared buffer.
type feeder struct {
	buf  *pendingBuffer
	done chan struct{}
	once sync.Once
}

func (b *pendingBuffer) newFeeder() *feeder {
	return &feeder{buf: b, done: make(chan struct{})}
}

func (f *feeder) Close() error {
	f.once.Do(func() { close(f.done) })
	return nil
}

func (f *feeder) Read(p []byte) (int, error) {
	b := f.buf
	for {
		select {
		case <-f.done:
			return 0, io.EOF
		default:
		}
		b.mu.Lock()
		if b.count > 0 {
			n := b.readLocked(p)
			b.mu.Unlock()
			return n, nil
		}
		b.mu.Unlock()
		select {
		case <-f.done:
			return 0, io.EOF
		case <-b.dataCh:
			select {
			case <-f.done:
				// Hand the wake-up back so a successor feeder sees the
				// data this one will never deliver.
				b.signal()
				return 0, io.EOF
			default:
			}
		}
	}
}

var _ io.ReadCloser = (*feeder)(nil)
