package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/couchcryptid/flood-risk-engine/internal/distribution"
)

// Websocket limits.
const (
	maxMessageBytes = 4096
	pongWait        = 60 * time.Second
	pingPeriod      = pongWait * 9 / 10
	writeWait       = 10 * time.Second
)

// handleWebSocket runs one distribution session per connection. Messages are
// handled strictly in order; the session is dropped when the connection
// closes.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err, "remote", r.RemoteAddr)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(s.sessions)
	defer cancel()

	s.api.Metrics.ActiveSessions.Inc()
	defer s.api.Metrics.ActiveSessions.Dec()
	s.logger.Debug("session opened", "remote", r.RemoteAddr)

	conn.SetReadLimit(maxMessageBytes)
	conn.SetReadDeadline(time.Now().Add(pongWait)) //nolint:errcheck // surfaced by the next read
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	go s.keepAlive(ctx, conn)

	session := distribution.NewSession(s.api.Snapshots, s.api.Bounds, s.api.Clock)
	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && ctx.Err() == nil {
				s.logger.Debug("session read failed", "error", err, "remote", r.RemoteAddr)
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(pongWait)) //nolint:errcheck // surfaced by the next read
		if kind != websocket.TextMessage {
			s.api.Metrics.SessionMessages.WithLabelValues("protocol_error").Inc()
			continue
		}

		out, err := session.Handle(ctx, data)
		switch {
		case errors.Is(err, distribution.ErrProtocol):
			s.api.Metrics.SessionMessages.WithLabelValues("protocol_error").Inc()
			s.logger.Debug("ignoring client message", "error", err, "state", session.State())
			continue
		case err != nil:
			s.logger.Warn("session query failed", "error", err, "state", session.State())
			continue
		case out == nil:
			s.api.Metrics.SessionMessages.WithLabelValues("empty").Inc()
			continue
		}

		s.api.Metrics.SessionMessages.WithLabelValues(out.Type).Inc()
		conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck // surfaced by WriteJSON
		if err := conn.WriteJSON(out); err != nil {
			s.logger.Debug("session write failed", "error", err)
			return
		}
	}
}

// keepAlive pings the client until ctx is done, then closes the connection so
// the read loop returns.
func (s *Server) keepAlive(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
			conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait)) //nolint:errcheck // closing anyway
			conn.Close()
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
