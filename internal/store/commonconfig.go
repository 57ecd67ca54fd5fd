package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/renameio/v2"
)

// KeyDefaultPlaylistGenre selects which default playlists feed the fallback
// rotation: "all" or one of the registered playlist genres.
const KeyDefaultPlaylistGenre = "defaultPlaylistGenre"

// GenreAll disables genre filtering of the fallback rotation.
const GenreAll = "all"

// CommonConfig is the small persisted key/value record of runtime-tunable
// settings. Unlike the list stores it serialises as a JSON object.
type CommonConfig struct {
	mu     sync.Mutex
	path   string
	values map[string]string
	logger *slog.Logger

	// Validate vets a key/value pair before it is stored. Set by the
	// wiring code; nil accepts known keys with any value.
	Validate func(key, value string) error
}

// OpenCommonConfig loads the config record from path, seeding defaults for
// missing keys.
func OpenCommonConfig(path string, logger *slog.Logger) (*CommonConfig, error) {
	if logger == nil {
		logger = slog.Default()
	}
	c := &CommonConfig{path: path, values: map[string]string{}, logger: logger}

	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	if err == nil {
		if err := json.Unmarshal(data, &c.values); err != nil {
			return nil, err
		}
	}
	if c.values[KeyDefaultPlaylistGenre] == "" {
		c.values[KeyDefaultPlaylistGenre] = GenreAll
	}
	return c, nil
}

// Get returns the value for key.
func (c *CommonConfig) Get(key string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.values[key]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrInvalidKey, key)
	}
	return v, nil
}

// Set validates and stores key=value, rewriting the backing file.
func (c *CommonConfig) Set(key, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.values[key]; !ok {
		return fmt.Errorf("%w: %s", ErrInvalidKey, key)
	}
	if c.Validate != nil {
		if err := c.Validate(key, value); err != nil {
			return err
		}
	}
	c.values[key] = value
	return c.persistLocked()
}

// All returns a copy of the whole record.
func (c *CommonConfig) All() map[string]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]string, len(c.values))
	for k, v := range c.values {
		out[k] = v
	}
	return out
}

func (c *CommonConfig) persistLocked() error {
	data, err := json.MarshalIndent(c.values, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(c.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	if err := renameio.WriteFile(c.path, data, 0o644); err != nil {
		c.logger.Error("config write failed", slog.String("path", c.path), slog.String("error", err.Error()))
		return err
	}
	return nil
}
