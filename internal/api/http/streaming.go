package apihttp

import (
	"log/slog"
	"net/http"
)

// handleStream attaches an HTTP listener to the live broadcast. The
// response never ends on its own; the client hangs up when done.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if s.broadcaster == nil {
		writeFail(w, http.StatusServiceUnavailable, "stream not available")
		return
	}
	listener := s.broadcaster.Subscribe()
	defer s.broadcaster.Unsubscribe(listener)

	// Unblock the pending Read when the client goes away.
	go func() {
		<-r.Context().Done()
		s.broadcaster.Unsubscribe(listener)
	}()

	w.Header().Set("Content-Type", "audio/mp3")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "0")
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	buf := make([]byte, 4096)
	for {
		n, err := listener.Read(buf)
		if err != nil {
			return
		}
		if _, err := w.Write(buf[:n]); err != nil {
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("ws upgrade failed", slog.String("error", err.Error()))
		return
	}
	client := &wsClient{
		hub:  s.wsHub,
		conn: conn,
		send: make(chan wsFrame, 256),
	}
	s.wsHub.register <- client
	go client.writePump()
	go client.readPump()
}
