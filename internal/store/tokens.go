package store

import (
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"strings"

	"mradio/internal/domain"
)

// Tokens is the persisted API token registry. Tokens and usernames are
// both unique.
type Tokens struct {
	*Store[domain.AuthToken]
}

// OpenTokens loads the token store from path.
func OpenTokens(path string, logger *slog.Logger) (*Tokens, error) {
	s, err := Open(path, Policy[domain.AuthToken]{
		Validate: func(t domain.AuthToken) bool {
			return strings.TrimSpace(t.Token) != "" && strings.TrimSpace(t.Username) != ""
		},
		DedupKey: func(t domain.AuthToken) string { return t.Token },
	}, logger)
	if err != nil {
		return nil, err
	}
	return &Tokens{Store: s}, nil
}

// Issue mints a 256-bit hex token for username and persists it. One token
// per username.
func (t *Tokens) Issue(username string) (domain.AuthToken, error) {
	for _, existing := range t.All() {
		if existing.Username == username {
			return domain.AuthToken{}, ErrDuplicateUsername
		}
	}
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return domain.AuthToken{}, err
	}
	tok := domain.AuthToken{Token: hex.EncodeToString(raw), Username: username}
	if !t.Append(tok) {
		return domain.AuthToken{}, ErrDuplicateToken
	}
	return tok, nil
}

// Valid reports whether token is a known issued token.
func (t *Tokens) Valid(token string) bool {
	for _, existing := range t.All() {
		if existing.Token == token {
			return true
		}
	}
	return false
}
