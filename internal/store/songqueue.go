package store

import (
	"log/slog"
	"strings"

	"mradio/internal/domain"
)

// SongQueue is the persisted request queue. Items are unique by URL and
// must carry a title; durations are normalised to MM:SS on the way in.
type SongQueue struct {
	*Store[domain.QueueItem]
}

// OpenSongQueue loads the queue from path.
func OpenSongQueue(path string, logger *slog.Logger) (*SongQueue, error) {
	s, err := Open(path, Policy[domain.QueueItem]{
		Validate: func(it domain.QueueItem) bool {
			return strings.TrimSpace(it.Title) != "" && strings.TrimSpace(it.URL) != ""
		},
		Format: func(it domain.QueueItem) domain.QueueItem {
			it.Duration = domain.FormatDuration(it.Duration)
			if it.RequestedBy == "" {
				it.RequestedBy = domain.AnonymousUser
			}
			return it
		},
		DedupKey: func(it domain.QueueItem) string { return it.URL },
	}, logger)
	if err != nil {
		return nil, err
	}
	return &SongQueue{Store: s}, nil
}

// RemoveLastRequestedBy removes the newest queue entry requested by user.
func (q *SongQueue) RemoveLastRequestedBy(user string) (domain.QueueItem, bool) {
	return q.RemoveLastMatch(func(it domain.QueueItem) bool {
		return it.RequestedBy == user
	})
}
