package engine

import (
	"bytes"
	"io"
	"log/slog"
	"testing"
	"time"
)

func TestBroadcasterFansOutToAllListeners(t *testing.T) {
	b := NewBroadcaster(slog.Default())
	l1 := b.Subscribe()
	l2 := b.Subscribe()
	if b.Count() != 2 {
		t.Fatalf("count = %d", b.Count())
	}

	b.WriteChunk([]byte("hello "))
	b.WriteChunk([]byte("radio"))

	for _, l := range []*Listener{l1, l2} {
		buf := make([]byte, 64)
		n, err := l.Read(buf)
		if err != nil {
			t.Fatal(err)
		}
		if got := string(buf[:n]); got != "hello radio" {
			t.Errorf("listener %s read %q", l.ID(), got)
		}
	}
}

func TestListenerReadBlocksUntilAudioArrives(t *testing.T) {
	b := NewBroadcaster(slog.Default())
	l := b.Subscribe()

	got := make(chan string, 1)
	go func() {
		buf := make([]byte, 16)
		n, err := l.Read(buf)
		if err != nil {
			got <- "err:" + err.Error()
			return
		}
		got <- string(buf[:n])
	}()

	select {
	case v := <-got:
		t.Fatalf("read returned %q before any write", v)
	case <-time.After(50 * time.Millisecond):
	}

	b.WriteChunk([]byte("beat"))
	select {
	case v := <-got:
		if v != "beat" {
			t.Errorf("read %q", v)
		}
	case <-time.After(time.Second):
		t.Fatal("read did not wake up")
	}
}

func TestSlowListenerDropsOldestAudio(t *testing.T) {
	b := NewBroadcaster(slog.Default())
	l := b.Subscribe()

	// Overfill the ring without draining: 1 MiB capacity plus one extra
	// chunk. The very first chunk must be gone, the newest retained.
	first := bytes.Repeat([]byte{0x01}, chunkSize)
	filler := bytes.Repeat([]byte{0x02}, chunkSize)
	last := bytes.Repeat([]byte{0x03}, chunkSize)

	b.WriteChunk(first)
	for written := chunkSize; written < listenerBufSize; written += chunkSize {
		b.WriteChunk(filler)
	}
	b.WriteChunk(last)

	all := make([]byte, 0, listenerBufSize)
	buf := make([]byte, 64*1024)
	for len(all) < listenerBufSize {
		n, err := l.Read(buf)
		if err != nil {
			t.Fatal(err)
		}
		all = append(all, buf[:n]...)
	}
	if bytes.Contains(all[:chunkSize], []byte{0x01}) {
		t.Error("oldest chunk survived the overflow")
	}
	if !bytes.Equal(all[len(all)-chunkSize:], last) {
		t.Error("newest chunk was lost")
	}
}

func TestUnsubscribeUnblocksPendingRead(t *testing.T) {
	b := NewBroadcaster(slog.Default())
	l := b.Subscribe()

	done := make(chan error, 1)
	go func() {
		_, err := l.Read(make([]byte, 16))
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	b.Unsubscribe(l)

	select {
	case err := <-done:
		if err != io.EOF {
			t.Errorf("err = %v, want io.EOF", err)
		}
	case <-time.After(time.Second):
		t.Fatal("read still blocked after unsubscribe")
	}
	if b.Count() != 0 {
		t.Errorf("count = %d", b.Count())
	}

	// Writes to a closed listener must be dropped, not panic.
	b.WriteChunk([]byte("late"))
}
