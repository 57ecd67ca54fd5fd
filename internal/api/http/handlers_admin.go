package apihttp

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"mradio/internal/app"
	"mradio/internal/icecast"
	"mradio/internal/store"
)

func (s *Server) handleConfigGet(w http.ResponseWriter, r *http.Request) {
	if key := strings.TrimSpace(r.URL.Query().Get("key")); key != "" {
		value, err := s.config.Get(key)
		if err != nil {
			writeFail(w, http.StatusBadRequest, "unknown config key")
			return
		}
		writeOK(w, "config value", map[string]string{key: value})
		return
	}
	writeOK(w, "config", s.config.All())
}

type configSetRequest struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

func (s *Server) handleConfigSet(w http.ResponseWriter, r *http.Request) {
	var req configSetRequest
	if !decodeBody(w, r, &req) {
		return
	}
	key := strings.TrimSpace(req.Key)
	if key == "" {
		writeFail(w, http.StatusBadRequest, "key is required")
		return
	}
	if err := s.config.Set(key, req.Value); err != nil {
		switch {
		case errors.Is(err, store.ErrInvalidKey):
			writeFail(w, http.StatusBadRequest, "unknown config key")
		case errors.Is(err, store.ErrInvalidValue):
			writeFail(w, http.StatusBadRequest, err.Error())
		default:
			writeFail(w, http.StatusInternalServerError, "config update failed")
		}
		return
	}
	writeOK(w, "config updated", map[string]string{key: req.Value})
}

type issueTokenRequest struct {
	Username string `json:"username"`
}

// handleIssueToken mints an API token for a named user. Guarded by the
// station's admin header pair rather than an issued token.
func (s *Server) handleIssueToken(w http.ResponseWriter, r *http.Request) {
	if !s.adminAuthorized(r) {
		writeFail(w, http.StatusUnauthorized, "admin credentials required")
		return
	}
	var req issueTokenRequest
	if !decodeBody(w, r, &req) {
		return
	}
	username := strings.TrimSpace(req.Username)
	if username == "" {
		writeFail(w, http.StatusBadRequest, "username is required")
		return
	}
	token, err := s.tokens.Issue(username)
	if err != nil {
		if errors.Is(err, store.ErrDuplicateUsername) {
			writeFail(w, http.StatusBadRequest, "username already has a token")
			return
		}
		writeFail(w, http.StatusInternalServerError, "token issue failed")
		return
	}
	writeOK(w, "token issued", token)
}

func (s *Server) adminAuthorized(r *http.Request) bool {
	if s.adminTokenKey == "" || s.adminAPIKey == "" {
		return false
	}
	tokenOK := subtle.ConstantTimeCompare(
		[]byte(r.Header.Get("X-Admin-Token-Key")), []byte(s.adminTokenKey)) == 1
	apiOK := subtle.ConstantTimeCompare(
		[]byte(r.Header.Get("X-Admin-Api-Key")), []byte(s.adminAPIKey)) == 1
	return tokenOK && apiOK
}

func (s *Server) handleStorageUsage(w http.ResponseWriter, r *http.Request) {
	usages := make([]app.StorageUsage, 0, len(s.storageDirs))
	for _, dir := range s.storageDirs {
		usages = append(usages, app.ScanStorageUsage(dir))
	}
	writeOK(w, "storage usage", usages)
}

func (s *Server) handleIcecastStatus(w http.ResponseWriter, r *http.Request) {
	if s.icecast == nil {
		writeOK(w, "icecast status", map[string]any{"state": icecast.StateDisabled})
		return
	}
	state, attempts, buffered := s.icecast.Status()
	writeOK(w, "icecast status", map[string]any{
		"state":         state,
		"attempts":      attempts,
		"bufferedBytes": buffered,
	})
}
