package apihttp

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"mradio/internal/domain"
	"mradio/internal/store"
)

type addPlaylistRequest struct {
	PlaylistID  string `json:"playlistId"`
	Source      string `json:"source"`
	RequestedBy string `json:"requestedBy"`
}

// handleAddPlaylist resolves every track of a playlist and queues them.
func (s *Server) handleAddPlaylist(top bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req addPlaylistRequest
		if !decodeBody(w, r, &req) {
			return
		}
		playlistID := strings.TrimSpace(req.PlaylistID)
		if playlistID == "" {
			writeFail(w, http.StatusBadRequest, "playlistId is required")
			return
		}
		src, err := parseSource(req.Source)
		if err != nil {
			writeFail(w, http.StatusBadRequest, "unknown source")
			return
		}
		if src == "" {
			src = domain.SourceJioSaavn
		}

		items, err := s.resolver.ResolvePlaylist(r.Context(), playlistID, src)
		if err != nil {
			if errors.Is(err, domain.ErrUnsupportedSource) {
				writeFail(w, http.StatusBadRequest, "source does not support playlists")
				return
			}
			writeFail(w, http.StatusBadGateway, "playlist lookup failed")
			return
		}
		if len(items) == 0 {
			writeFail(w, http.StatusNotFound, "playlist has no playable tracks")
			return
		}

		by := requester(req.RequestedBy)
		queueable := make([]domain.QueueItem, 0, len(items))
		for _, item := range items {
			if s.blocks.IsBlocked(item.Title) {
				continue
			}
			item.RequestedBy = by
			queueable = append(queueable, item)
		}

		added := 0
		if top {
			added = s.queue.PrependMany(queueable)
		} else {
			added = s.queue.AppendMany(queueable)
		}
		writeOK(w, fmt.Sprintf("queued %d of %d playlist tracks", added, len(items)),
			map[string]int{"queued": added, "resolved": len(items)})
	}
}

type defaultPlaylistRequest struct {
	PlaylistID string `json:"playlistId"`
	Title      string `json:"title"`
	Source     string `json:"source"`
	Genre      string `json:"genre"`
	IsActive   *bool  `json:"isActive"`
}

// handleAddDefaultPlaylist registers a curated playlist and materialises
// its track metadata so autoplay can draw from it immediately.
func (s *Server) handleAddDefaultPlaylist(w http.ResponseWriter, r *http.Request) {
	var req defaultPlaylistRequest
	if !decodeBody(w, r, &req) {
		return
	}
	playlistID := strings.TrimSpace(req.PlaylistID)
	if playlistID == "" {
		writeFail(w, http.StatusBadRequest, "playlistId is required")
		return
	}
	src, err := parseSource(req.Source)
	if err != nil {
		writeFail(w, http.StatusBadRequest, "unknown source")
		return
	}
	if src == "" {
		src = domain.SourceJioSaavn
	}

	items, err := s.resolver.ResolvePlaylist(r.Context(), playlistID, src)
	if err != nil {
		if errors.Is(err, domain.ErrUnsupportedSource) {
			writeFail(w, http.StatusBadRequest, "source does not support playlists")
			return
		}
		writeFail(w, http.StatusBadGateway, "playlist lookup failed")
		return
	}
	if len(items) == 0 {
		writeFail(w, http.StatusNotFound, "playlist has no playable tracks")
		return
	}

	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}
	playlist := domain.DefaultPlaylist{
		PlaylistID: playlistID,
		Title:      strings.TrimSpace(req.Title),
		Source:     src,
		Genre:      strings.ToLower(strings.TrimSpace(req.Genre)),
		IsActive:   active,
	}
	if playlist.Title == "" {
		playlist.Title = playlistID
	}
	if !s.playlists.Append(playlist) {
		writeFail(w, http.StatusBadRequest, "playlist is already registered")
		return
	}

	s.metadata.RemoveForPlaylist(playlistID)
	stored := s.metadata.AppendMany(items)
	s.playlists.TouchMetadata(playlistID)

	writeOK(w, "default playlist added", map[string]any{
		"playlist": playlist,
		"tracks":   stored,
	})
}

func (s *Server) handleListDefaultPlaylists(w http.ResponseWriter, r *http.Request) {
	writeOK(w, "default playlists", s.playlists.All())
}

func (s *Server) handleRemoveDefaultPlaylist(w http.ResponseWriter, r *http.Request) {
	index, err := pathIndex(r, "index")
	if err != nil {
		writeFail(w, http.StatusBadRequest, err.Error())
		return
	}
	removed, err := s.playlists.Remove(index)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrLastPlaylist):
			writeFail(w, http.StatusBadRequest, "cannot remove the last default playlist")
		case errors.Is(err, store.ErrIndexOutOfRange):
			writeFail(w, http.StatusNotFound, "no playlist at that position")
		default:
			writeFail(w, http.StatusInternalServerError, "playlist removal failed")
		}
		return
	}
	s.metadata.RemoveForPlaylist(removed.PlaylistID)
	writeOK(w, "default playlist removed", removed)
}

type playlistStatusRequest struct {
	IsActive bool `json:"isActive"`
}

func (s *Server) handleDefaultPlaylistStatus(w http.ResponseWriter, r *http.Request) {
	index, err := pathIndex(r, "index")
	if err != nil {
		writeFail(w, http.StatusBadRequest, err.Error())
		return
	}
	var req playlistStatusRequest
	if !decodeBody(w, r, &req) {
		return
	}
	updated, err := s.playlists.SetStatus(index, req.IsActive)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrLastActivePlaylist):
			writeFail(w, http.StatusBadRequest, "cannot deactivate the only active playlist")
		case errors.Is(err, store.ErrIndexOutOfRange):
			writeFail(w, http.StatusNotFound, "no playlist at that position")
		default:
			writeFail(w, http.StatusInternalServerError, "playlist update failed")
		}
		return
	}
	writeOK(w, "playlist status updated", updated)
}
