package apihttp

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"mradio/internal/engine"
)

func newStreamServer(t *testing.T) (*Server, *engine.Broadcaster, *httptest.Server) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	broadcaster := engine.NewBroadcaster(logger)
	srv := NewServer(&fakePlayer{},
		WithBroadcaster(broadcaster),
		WithLogger(logger),
	)
	ts := httptest.NewServer(srv)
	t.Cleanup(func() {
		ts.Close()
		srv.Close()
	})
	return srv, broadcaster, ts
}

func TestStreamDeliversChunks(t *testing.T) {
	_, broadcaster, ts := newStreamServer(t)

	resp, err := http.Get(ts.URL + "/stream")
	if err != nil {
		t.Fatalf("get stream: %v", err)
	}
	defer resp.Body.Close()

	if got := resp.Header.Get("Content-Type"); got != "audio/mp3" {
		t.Fatalf("Content-Type = %q, want audio/mp3", got)
	}
	if got := resp.Header.Get("Cache-Control"); !strings.Contains(got, "no-store") {
		t.Fatalf("Cache-Control = %q, want no-store", got)
	}

	// The listener registers before the handler writes headers, but give
	// the subscription a moment under race detectors.
	deadline := time.Now().Add(2 * time.Second)
	for broadcaster.Count() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("stream listener never subscribed")
		}
		time.Sleep(5 * time.Millisecond)
	}

	want := []byte("mp3-audio-chunk")
	broadcaster.WriteChunk(want)

	got := make([]byte, len(want))
	if _, err := io.ReadFull(resp.Body, got); err != nil {
		t.Fatalf("read stream: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("stream bytes = %q, want %q", got, want)
	}
}

func TestStreamUnavailableWithoutBroadcaster(t *testing.T) {
	env := newTestEnv(t, &fakeSongResolver{})
	rec := env.do(t, http.MethodGet, "/stream", nil, false)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}

func dialWS(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial ws: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readWSMessage(t *testing.T, conn *websocket.Conn) (int, wsMessage, []byte) {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	messageType, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read ws: %v", err)
	}
	var msg wsMessage
	if messageType == websocket.TextMessage {
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("decode ws message: %v (raw %q)", err, data)
		}
	}
	return messageType, msg, data
}

func TestWSReplaysBufferHeader(t *testing.T) {
	srv, _, ts := newStreamServer(t)
	srv.SetBufferHeader(map[string]any{"frameSize": 417})

	conn := dialWS(t, ts)
	_, msg, _ := readWSMessage(t, conn)
	if msg.Type != "bufferHeader" {
		t.Fatalf("first message type = %q, want bufferHeader", msg.Type)
	}
	if !strings.Contains(string(msg.Data), "417") {
		t.Fatalf("header data = %s, want frame size", msg.Data)
	}
}

func TestWSBroadcastsEvents(t *testing.T) {
	srv, _, ts := newStreamServer(t)
	conn := dialWS(t, ts)

	// Registration is asynchronous; poll until the event lands.
	deadline := time.Now().Add(2 * time.Second)
	for {
		srv.TrackChanged("New Song", "03:30", "dj")
		_ = conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
		_, data, err := conn.ReadMessage()
		if err == nil {
			var msg wsMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if msg.Type != "trackChanged" {
				t.Fatalf("type = %q, want trackChanged", msg.Type)
			}
			if !strings.Contains(string(msg.Data), "New Song") {
				t.Fatalf("data = %s, want title", msg.Data)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("trackChanged event never received")
		}
	}
}

func TestWSRelaysBinaryChunks(t *testing.T) {
	srv, _, ts := newStreamServer(t)
	conn := dialWS(t, ts)

	chunk := []byte{0xFF, 0xFB, 0x90, 0x00, 0x01, 0x02}
	deadline := time.Now().Add(2 * time.Second)
	for {
		srv.WriteChunk(chunk)
		_ = conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
		messageType, data, err := conn.ReadMessage()
		if err == nil {
			if messageType != websocket.BinaryMessage {
				t.Fatalf("message type = %d, want binary", messageType)
			}
			if !bytes.Equal(data, chunk) {
				t.Fatalf("chunk = %v, want %v", data, chunk)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("binary chunk never received")
		}
	}
}

func TestWSPingPong(t *testing.T) {
	_, _, ts := newStreamServer(t)
	conn := dialWS(t, ts)

	if err := conn.WriteJSON(wsMessage{Type: "ping"}); err != nil {
		t.Fatalf("write ping: %v", err)
	}
	_, msg, _ := readWSMessage(t, conn)
	if msg.Type != "pong" {
		t.Fatalf("reply type = %q, want pong", msg.Type)
	}
}

func TestWSClientReseedsBufferHeader(t *testing.T) {
	_, _, ts := newStreamServer(t)
	seeder := dialWS(t, ts)

	header := json.RawMessage(`{"frameSize":417,"bitrate":128000}`)
	if err := seeder.WriteJSON(wsMessage{Type: "bufferHeader", Data: header}); err != nil {
		t.Fatalf("seed header: %v", err)
	}

	// A client connecting later should get the seeded header replayed.
	deadline := time.Now().Add(2 * time.Second)
	for {
		late := dialWS(t, ts)
		_ = late.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
		_, data, err := late.ReadMessage()
		late.Close()
		if err == nil {
			var msg wsMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if msg.Type == "bufferHeader" && strings.Contains(string(msg.Data), "128000") {
				return
			}
		}
		if time.Now().After(deadline) {
			t.Fatal("seeded bufferHeader never replayed")
		}
	}
}
