package store

import (
	"log/slog"
	"strings"
	"time"

	"mradio/internal/domain"
)

// BlockList holds the names operators have banned from the station.
// Membership checks are fuzzy: a candidate title counts as blocked when its
// token-set similarity to any entry reaches domain.BlockMatchThreshold.
type BlockList struct {
	*Store[domain.BlockEntry]
	now func() time.Time
}

// OpenBlockList loads the block list from path.
func OpenBlockList(path string, logger *slog.Logger) (*BlockList, error) {
	b := &BlockList{now: time.Now}
	s, err := Open(path, Policy[domain.BlockEntry]{
		Validate: func(e domain.BlockEntry) bool {
			return strings.TrimSpace(e.SongName) != ""
		},
		Format: func(e domain.BlockEntry) domain.BlockEntry {
			if e.RequestedBy == "" {
				e.RequestedBy = domain.AnonymousUser
			}
			if e.BlockedAt == "" {
				e.BlockedAt = b.now().UTC().Format(time.RFC3339)
			}
			return e
		},
	}, logger)
	if err != nil {
		return nil, err
	}
	b.Store = s
	return b, nil
}

// Block adds an entry unless a fuzzy-equal name is already listed.
func (b *BlockList) Block(songName, requestedBy string) bool {
	if _, blocked := b.Match(songName); blocked {
		return false
	}
	return b.Append(domain.BlockEntry{SongName: songName, RequestedBy: requestedBy})
}

// Match returns the first entry fuzzy-matching songName.
func (b *BlockList) Match(songName string) (domain.BlockEntry, bool) {
	for _, e := range b.All() {
		if domain.SimilarEnough(e.SongName, songName, domain.BlockMatchThreshold) {
			return e, true
		}
	}
	return domain.BlockEntry{}, false
}

// IsBlocked reports whether songName fuzzy-matches any entry.
func (b *BlockList) IsBlocked(songName string) bool {
	_, blocked := b.Match(songName)
	return blocked
}

// UnblockByName removes the first entry fuzzy-matching songName.
func (b *BlockList) UnblockByName(songName string) (domain.BlockEntry, bool) {
	return b.RemoveFirstMatch(func(e domain.BlockEntry) bool {
		return domain.SimilarEnough(e.SongName, songName, domain.BlockMatchThreshold)
	})
}

// UnblockAt removes the entry at the 1-based index.
func (b *BlockList) UnblockAt(index int) (domain.BlockEntry, bool) {
	return b.RemoveAt(index)
}
