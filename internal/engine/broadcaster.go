package engine

import (
	"io"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"mradio/internal/metrics"
)

// listenerBufSize is the per-listener ring capacity. A listener that stops
// draining loses its oldest audio, never the station's cadence.
const listenerBufSize = 1 << 20

// Listener is one attached stream consumer. Read blocks until audio is
// available; the engine writes through the owning Broadcaster.
type Listener struct {
	id string

	mu     sync.Mutex
	buf    []byte
	rPos   int
	wPos   int
	count  int
	closed bool
	dataCh chan struct{}
}

// ID is the listener's session identifier.
func (l *Listener) ID() string { return l.id }

func (l *Listener) signal() {
	select {
	case l.dataCh <- struct{}{}:
	default:
	}
}

// write copies chunk into the ring, overwriting the oldest bytes when full.
// Never blocks.
func (l *Listener) write(chunk []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	// A chunk larger than the ring keeps only its tail.
	if len(chunk) > len(l.buf) {
		chunk = chunk[len(chunk)-len(l.buf):]
	}
	// Drop oldest buffered bytes to make room.
	if overflow := l.count + len(chunk) - len(l.buf); overflow > 0 {
		l.rPos = (l.rPos + overflow) % len(l.buf)
		l.count -= overflow
	}
	for len(chunk) > 0 {
		space := len(l.buf) - l.wPos
		if space > len(chunk) {
			space = len(chunk)
		}
		copy(l.buf[l.wPos:], chunk[:space])
		l.wPos = (l.wPos + space) % len(l.buf)
		l.count += space
		chunk = chunk[space:]
	}
	l.signal()
}

// Read implements io.Reader, blocking until audio arrives or the listener
// is closed.
func (l *Listener) Read(p []byte) (int, error) {
	l.mu.Lock()
	for l.count == 0 && !l.closed {
		l.mu.Unlock()
		<-l.dataCh
		l.mu.Lock()
	}
	if l.closed && l.count == 0 {
		l.mu.Unlock()
		return 0, io.EOF
	}
	n := 0
	for len(p) > 0 && l.count > 0 {
		avail := len(l.buf) - l.rPos
		if avail > l.count {
			avail = l.count
		}
		if avail > len(p) {
			avail = len(p)
		}
		copy(p[:avail], l.buf[l.rPos:l.rPos+avail])
		l.rPos = (l.rPos + avail) % len(l.buf)
		l.count -= avail
		n += avail
		p = p[avail:]
	}
	l.mu.Unlock()
	return n, nil
}

func (l *Listener) close() {
	l.mu.Lock()
	l.closed = true
	l.signal()
	l.mu.Unlock()
}

// Broadcaster fans audio chunks out to every attached listener. Writes
// never block: a slow listener overwrites its own oldest audio.
type Broadcaster struct {
	mu        sync.RWMutex
	listeners map[string]*Listener
	logger    *slog.Logger
}

func NewBroadcaster(logger *slog.Logger) *Broadcaster {
	return &Broadcaster{listeners: map[string]*Listener{}, logger: logger}
}

// Subscribe attaches a new listener.
func (b *Broadcaster) Subscribe() *Listener {
	l := &Listener{
		id:     uuid.NewString(),
		buf:    make([]byte, listenerBufSize),
		dataCh: make(chan struct{}, 1),
	}
	b.mu.Lock()
	b.listeners[l.id] = l
	n := len(b.listeners)
	b.mu.Unlock()
	metrics.ListenersConnected.Set(float64(n))
	b.logger.Info("listener attached", slog.String("id", l.id), slog.Int("listeners", n))
	return l
}

// Unsubscribe detaches a listener and unblocks its pending Read.
func (b *Broadcaster) Unsubscribe(l *Listener) {
	b.mu.Lock()
	delete(b.listeners, l.id)
	n := len(b.listeners)
	b.mu.Unlock()
	l.close()
	metrics.ListenersConnected.Set(float64(n))
	b.logger.Info("listener detached", slog.String("id", l.id), slog.Int("listeners", n))
}

// Count returns the number of attached listeners.
func (b *Broadcaster) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners)
}

// Name implements ChunkSink.
func (b *Broadcaster) Name() string { return "listeners" }

// WriteChunk implements ChunkSink.
func (b *Broadcaster) WriteChunk(chunk []byte) {
	b.mu.RLock()
	for _, l := range b.listeners {
		l.write(chunk)
	}
	b.mu.RUnlock()
}
