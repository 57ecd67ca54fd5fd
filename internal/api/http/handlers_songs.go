package apihttp

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"mradio/internal/domain"
	"mradio/internal/engine"
	"mradio/internal/resolver"
)

type addSongRequest struct {
	SongName    string `json:"songName"`
	RequestedBy string `json:"requestedBy"`
	Force       bool   `json:"force"`
	Preference  string `json:"preference"`
}

func (s *Server) handleAddSong(top bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req addSongRequest
		if !decodeBody(w, r, &req) {
			return
		}
		name := strings.TrimSpace(req.SongName)
		if name == "" {
			writeFail(w, http.StatusBadRequest, "songName is required")
			return
		}
		if s.blocks.IsBlocked(name) {
			writeFail(w, http.StatusBadRequest, "song is block-listed")
			return
		}
		preference, err := parseSource(req.Preference)
		if err != nil {
			writeFail(w, http.StatusBadRequest, "unknown source preference")
			return
		}
		if !req.Force {
			preference = ""
		}

		item, err := s.resolver.ResolveSong(r.Context(), name, preference)
		if err != nil {
			switch {
			case errors.Is(err, resolver.ErrNoMatch):
				writeFail(w, http.StatusNotFound, "no match found for song")
			case errors.Is(err, resolver.ErrTooLong):
				writeFail(w, http.StatusBadRequest, "matched song exceeds the duration limit")
			default:
				writeFail(w, http.StatusBadGateway, "song lookup failed")
			}
			return
		}
		if s.blocks.IsBlocked(item.Title) {
			writeFail(w, http.StatusBadRequest, "song is block-listed")
			return
		}
		item.RequestedBy = requester(req.RequestedBy)

		added := false
		if top {
			added = s.queue.Prepend(item)
		} else {
			added = s.queue.Append(item)
		}
		if !added {
			writeFail(w, http.StatusBadRequest, "song is already queued")
			return
		}
		writeOK(w, "song queued", item)
	}
}

func (s *Server) handleQueue(w http.ResponseWriter, r *http.Request) {
	writeOK(w, "song queue", s.queue.All())
}

func (s *Server) handleCurrent(w http.ResponseWriter, r *http.Request) {
	track, elapsed, ok := s.player.Current()
	if !ok {
		writeOK(w, "nothing playing", map[string]any{"silence": s.player.SilenceActive()})
		return
	}
	writeOK(w, "current song", map[string]any{
		"title":       track.Title,
		"duration":    track.Duration,
		"elapsed":     domain.FormatSeconds(elapsed),
		"requestedBy": track.RequestedBy,
		"source":      track.Source,
	})
}

func (s *Server) handleUpcoming(w http.ResponseWriter, r *http.Request) {
	item, ok := s.queue.First()
	if !ok {
		writeOK(w, "queue is empty", nil)
		return
	}
	writeOK(w, "up next", item)
}

func (s *Server) writePlaybackError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, engine.ErrTransitioning):
		writeFail(w, http.StatusConflict, "another transition is in progress")
	case errors.Is(err, engine.ErrNoPrevious):
		writeFail(w, http.StatusBadRequest, "no previous song available")
	case errors.Is(err, engine.ErrInvalidSeek):
		writeFail(w, http.StatusBadRequest, "seek position must not be negative")
	case errors.Is(err, engine.ErrNothingPlaying):
		writeFail(w, http.StatusBadRequest, "nothing is playing")
	default:
		writeFail(w, http.StatusInternalServerError, "playback control failed")
	}
}

func (s *Server) handleSkip(w http.ResponseWriter, r *http.Request) {
	if err := s.player.Skip(); err != nil {
		s.writePlaybackError(w, err)
		return
	}
	writeOK(w, "skipped", nil)
}

func (s *Server) handlePrevious(w http.ResponseWriter, r *http.Request) {
	if err := s.player.Previous(); err != nil {
		s.writePlaybackError(w, err)
		return
	}
	writeOK(w, "replaying previous song", nil)
}

func (s *Server) handleSeek(w http.ResponseWriter, r *http.Request) {
	seconds, err := strconv.Atoi(strings.TrimSpace(r.PathValue("seconds")))
	if err != nil {
		writeFail(w, http.StatusBadRequest, "seconds must be an integer")
		return
	}
	if err := s.player.SeekTo(seconds); err != nil {
		s.writePlaybackError(w, err)
		return
	}
	writeOK(w, fmt.Sprintf("seeked to %s", domain.FormatSeconds(seconds)), nil)
}

// handleRemove deletes a queue entry by its 1-based position. The first
// minQueueSize positions are on deck (already materialised for playback)
// and cannot be removed.
func (s *Server) handleRemove(w http.ResponseWriter, r *http.Request) {
	index, err := pathIndex(r, "index")
	if err != nil {
		writeFail(w, http.StatusBadRequest, err.Error())
		return
	}
	if index <= s.minQueueSize {
		writeFail(w, http.StatusBadRequest,
			fmt.Sprintf("positions 1-%d are on deck and cannot be removed", s.minQueueSize))
		return
	}
	removed, ok := s.queue.RemoveAt(index)
	if !ok {
		writeFail(w, http.StatusNotFound, "no song at that position")
		return
	}
	writeOK(w, "song removed", removed)
}

func (s *Server) handleRemoveLastRequest(w http.ResponseWriter, r *http.Request) {
	user := strings.TrimSpace(r.PathValue("requestedBy"))
	if user == "" {
		writeFail(w, http.StatusBadRequest, "requestedBy is required")
		return
	}
	removed, ok := s.queue.RemoveLastRequestedBy(user)
	if !ok {
		writeFail(w, http.StatusNotFound, "no queued song for that requester")
		return
	}
	writeOK(w, "last request removed", removed)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeOK(w, "history not configured", []domain.PlayRecord{})
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeFail(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}
	records, err := s.history.ListRecent(r.Context(), limit)
	if err != nil {
		writeFail(w, http.StatusInternalServerError, "history lookup failed")
		return
	}
	if records == nil {
		records = []domain.PlayRecord{}
	}
	writeOK(w, "recently played", records)
}
