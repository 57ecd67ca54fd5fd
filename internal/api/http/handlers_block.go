package apihttp

import (
	"net/http"
	"strings"
)

type blockSongRequest struct {
	SongName    string `json:"songName"`
	RequestedBy string `json:"requestedBy"`
}

// handleBlockCurrent blocks whatever is playing right now and skips it.
func (s *Server) handleBlockCurrent(w http.ResponseWriter, r *http.Request) {
	track, _, ok := s.player.Current()
	if !ok {
		writeFail(w, http.StatusBadRequest, "nothing is playing")
		return
	}
	var req blockSongRequest
	_ = decodeOptionalBody(r, &req)
	if !s.blocks.Block(track.Title, requester(req.RequestedBy)) {
		writeFail(w, http.StatusBadRequest, "song is already block-listed")
		return
	}
	if err := s.player.Skip(); err != nil {
		s.logger.Warn("skip after block failed", "title", track.Title, "error", err)
	}
	writeOK(w, "current song blocked and skipped", map[string]string{"songName": track.Title})
}

func (s *Server) handleBlock(w http.ResponseWriter, r *http.Request) {
	var req blockSongRequest
	if !decodeBody(w, r, &req) {
		return
	}
	name := strings.TrimSpace(req.SongName)
	if name == "" {
		writeFail(w, http.StatusBadRequest, "songName is required")
		return
	}
	if !s.blocks.Block(name, requester(req.RequestedBy)) {
		writeFail(w, http.StatusBadRequest, "song is already block-listed")
		return
	}
	writeOK(w, "song blocked", map[string]string{"songName": name})
}

func (s *Server) handleBlockList(w http.ResponseWriter, r *http.Request) {
	writeOK(w, "block list", s.blocks.All())
}

func (s *Server) handleBlockCheck(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(r.URL.Query().Get("songName"))
	if name == "" {
		writeFail(w, http.StatusBadRequest, "songName query parameter is required")
		return
	}
	entry, blocked := s.blocks.Match(name)
	data := map[string]any{"blocked": blocked}
	if blocked {
		data["match"] = entry
	}
	writeOK(w, "block check", data)
}

func (s *Server) handleUnblockByName(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(r.PathValue("songName"))
	if name == "" {
		writeFail(w, http.StatusBadRequest, "songName is required")
		return
	}
	removed, ok := s.blocks.UnblockByName(name)
	if !ok {
		writeFail(w, http.StatusNotFound, "no matching block-list entry")
		return
	}
	writeOK(w, "song unblocked", removed)
}

func (s *Server) handleUnblockByIndex(w http.ResponseWriter, r *http.Request) {
	index, err := pathIndex(r, "index")
	if err != nil {
		writeFail(w, http.StatusBadRequest, err.Error())
		return
	}
	removed, ok := s.blocks.UnblockAt(index)
	if !ok {
		writeFail(w, http.StatusNotFound, "no block-list entry at that position")
		return
	}
	writeOK(w, "song unblocked", removed)
}

func (s *Server) handleUnblockAll(w http.ResponseWriter, r *http.Request) {
	count := s.blocks.Len()
	s.blocks.Clear()
	writeOK(w, "block list cleared", map[string]int{"removed": count})
}
