package apihttp

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"mradio/internal/domain"
)

// envelope is the uniform control API response shape.
type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeOK(w http.ResponseWriter, message string, data any) {
	writeJSON(w, http.StatusOK, envelope{Success: true, Message: message, Data: data})
}

func writeFail(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, envelope{Success: false, Message: message, Error: message})
}

func decodeBody(w http.ResponseWriter, r *http.Request, into any) bool {
	if err := json.NewDecoder(r.Body).Decode(into); err != nil {
		writeFail(w, http.StatusBadRequest, "malformed request body")
		return false
	}
	return true
}

// decodeOptionalBody tolerates an empty body for routes where the
// payload only carries optional fields.
func decodeOptionalBody(r *http.Request, into any) error {
	err := json.NewDecoder(r.Body).Decode(into)
	if err == io.EOF {
		return nil
	}
	return err
}

// pathIndex parses a 1-based index path segment.
func pathIndex(r *http.Request, name string) (int, error) {
	raw := strings.TrimSpace(r.PathValue(name))
	index, err := strconv.Atoi(raw)
	if err != nil || index < 1 {
		return 0, errors.New("index must be a positive integer")
	}
	return index, nil
}

func parseSource(raw string) (domain.SourceType, error) {
	switch domain.SourceType(strings.ToLower(strings.TrimSpace(raw))) {
	case "":
		return "", nil
	case domain.SourceYouTube:
		return domain.SourceYouTube, nil
	case domain.SourceJioSaavn:
		return domain.SourceJioSaavn, nil
	case domain.SourceSoundCloud:
		return domain.SourceSoundCloud, nil
	default:
		return "", domain.ErrUnsupportedSource
	}
}

func requester(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return domain.AnonymousUser
	}
	return raw
}
