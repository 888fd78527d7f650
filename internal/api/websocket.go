package api

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"refractoriq/internal/dashboard"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsPingInterval = 30 * time.Second
)

// WSMessage is a message pushed to websocket clients.
type WSMessage struct {
	Type string              `json:"type"` // "snapshot"
	Data *dashboard.Snapshot `json:"data,omitempty"`
}

// handleWebSocket pushes the session snapshot on connect and after every
// change until the client goes away.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     allowedOrigin,
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("Websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(s.feeds)
	defer cancel()

	// The client sends nothing we act on; reading detects the close.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	s.logger.Debug("Websocket client connected", "remote_addr", r.RemoteAddr)
	defer s.logger.Debug("Websocket client disconnected", "remote_addr", r.RemoteAddr)

	ping := time.NewTicker(wsPingInterval)
	defer ping.Stop()
	updates := s.session.Watch(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout)); err != nil {
				return
			}
		case snap, ok := <-updates:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(WSMessage{Type: "snapshot", Data: &snap}); err != nil {
				return
			}
		}
	}
}

// allowedOrigin accepts non-browser clients and pages served from the same
// host or from localhost.
func allowedOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if strings.EqualFold(u.Host, r.Host) {
		return true
	}
	switch u.Hostname() {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	return false
}
