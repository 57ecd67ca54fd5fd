package cache

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestSanitiseStripsUnsafeCharacters(t *testing.T) {
	got := Sanitise(`AC/DC: "Back<>In|Black"?*\`)
	want := "ACDC BackInBlack"
	if got != want {
		t.Errorf("Sanitise = %q, want %q", got, want)
	}
}

func writeTrack(t *testing.T, dir, name string, size int, touched time.Time) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, make([]byte, size), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Chtimes(path, touched, touched); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLookupMissAndHit(t *testing.T) {
	dir := t.TempDir()
	c, err := New(dir, 0, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := c.Lookup("ghost"); ok {
		t.Error("lookup hit for missing file")
	}

	src := writeTrack(t, t.TempDir(), "dl.mp3", 10, time.Now())
	cached, err := c.Admit("My Song", src)
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(cached) != "My Song.mp3" {
		t.Errorf("cached as %q", cached)
	}
	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Error("source file still present after admit")
	}
	if got, ok := c.Lookup("My Song"); !ok || got != cached {
		t.Errorf("lookup = %q, %v", got, ok)
	}
}

func TestEvictionDropsOldestFirst(t *testing.T) {
	dir := t.TempDir()
	c, err := New(dir, 1000, nil)
	if err != nil {
		t.Fatal(err)
	}
	old := time.Now().Add(-2 * time.Hour)
	writeTrack(t, dir, "oldest.mp3", 400, old)
	writeTrack(t, dir, "middle.mp3", 400, old.Add(30*time.Minute))
	writeTrack(t, dir, "newest.mp3", 400, old.Add(time.Hour))

	src := writeTrack(t, t.TempDir(), "dl.mp3", 400, time.Now())
	if _, err := c.Admit("incoming", src); err != nil {
		t.Fatal(err)
	}

	if _, err := os.Stat(filepath.Join(dir, "oldest.mp3")); !os.IsNotExist(err) {
		t.Error("oldest file survived eviction")
	}
	if _, err := os.Stat(filepath.Join(dir, "middle.mp3")); !os.IsNotExist(err) {
		t.Error("middle file survived eviction")
	}
	if _, err := os.Stat(filepath.Join(dir, "newest.mp3")); err != nil {
		t.Error("newest file evicted")
	}
	if _, err := os.Stat(filepath.Join(dir, "incoming.mp3")); err != nil {
		t.Error("just-admitted file evicted")
	}
	size, err := c.Size()
	if err != nil {
		t.Fatal(err)
	}
	if size > 1000 {
		t.Errorf("size = %d, want <= 1000", size)
	}
}

func TestEvictionBreaksEqualTimestampsByPath(t *testing.T) {
	dir := t.TempDir()
	c, err := New(dir, 1000, nil)
	if err != nil {
		t.Fatal(err)
	}
	// Coarse filesystem timestamps can leave several files with the same
	// mtime; eviction must still pick the same victims every run.
	stamp := time.Now().Add(-time.Hour)
	writeTrack(t, dir, "c.mp3", 400, stamp)
	writeTrack(t, dir, "a.mp3", 400, stamp)
	writeTrack(t, dir, "b.mp3", 400, stamp)

	src := writeTrack(t, t.TempDir(), "dl.mp3", 400, time.Now())
	if _, err := c.Admit("incoming", src); err != nil {
		t.Fatal(err)
	}

	for _, gone := range []string{"a.mp3", "b.mp3"} {
		if _, err := os.Stat(filepath.Join(dir, gone)); !os.IsNotExist(err) {
			t.Errorf("%s survived eviction", gone)
		}
	}
	if _, err := os.Stat(filepath.Join(dir, "c.mp3")); err != nil {
		t.Error("c.mp3 evicted despite path tie-break")
	}
}

func TestConcurrentAdmitsStayWithinLimit(t *testing.T) {
	dir := t.TempDir()
	c, err := New(dir, 2000, nil)
	if err != nil {
		t.Fatal(err)
	}
	srcs := make([]string, 8)
	for i := range srcs {
		srcs[i] = writeTrack(t, t.TempDir(), "dl.mp3", 400, time.Now())
	}
	var wg sync.WaitGroup
	for i, src := range srcs {
		wg.Add(1)
		go func(i int, src string) {
			defer wg.Done()
			if _, err := c.Admit(fmt.Sprintf("track %d", i), src); err != nil {
				t.Errorf("admit %d: %v", i, err)
			}
		}(i, src)
	}
	wg.Wait()

	size, err := c.Size()
	if err != nil {
		t.Fatal(err)
	}
	if size > 2000 {
		t.Errorf("size = %d, want <= 2000", size)
	}
}

func TestLookupRefreshesAccessOrder(t *testing.T) {
	dir := t.TempDir()
	c, err := New(dir, 1000, nil)
	if err != nil {
		t.Fatal(err)
	}
	old := time.Now().Add(-2 * time.Hour)
	writeTrack(t, dir, "a.mp3", 400, old)
	writeTrack(t, dir, "b.mp3", 400, old.Add(time.Minute))

	// Playing "a" must protect it from the next eviction round.
	if _, ok := c.Lookup("a"); !ok {
		t.Fatal("lookup miss")
	}

	src := writeTrack(t, t.TempDir(), "dl.mp3", 400, time.Now())
	if _, err := c.Admit("c", src); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(dir, "a.mp3")); err != nil {
		t.Error("recently played file evicted")
	}
	if _, err := os.Stat(filepath.Join(dir, "b.mp3")); !os.IsNotExist(err) {
		t.Error("least recently used file survived")
	}
}
