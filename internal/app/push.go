package app

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// UpdateSignal is the only message the push channel ever carries.
const UpdateSignal = "update"

var pushUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Any origin may observe; the signal carries no data.
	CheckOrigin: func(*http.Request) bool { return true },
}

// handleUpdates registers the connection as an observer and writes one
// UpdateSignal text frame per invalidation until either side goes away.
// Registration happens before the handshake completes, so a commit the
// client makes right after connecting is always signalled.
func (s *HTTPServer) handleUpdates(w http.ResponseWriter, r *http.Request) {
	observer, err := s.hub.Register()
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "SHUTTING_DOWN", "server is shutting down", nil)
		return
	}
	defer s.hub.Unregister(observer)

	conn, err := pushUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("push upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()
	logger := s.logger.With(zap.String("observer", observer.ID()), zap.String("request_id", RequestID(r.Context())))
	logger.Debug("push connected")

	// Reading is required for control frames; clients send nothing else.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(2 * s.cfg.PingInterval))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(2 * s.cfg.PingInterval))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(s.cfg.PingInterval)
	defer ping.Stop()

	for {
		select {
		case <-closed:
			logger.Debug("push disconnected")
			return
		case _, ok := <-observer.Signals():
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
					time.Now().Add(s.cfg.WriteTimeout))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, []byte(UpdateSignal)); err != nil {
				logger.Debug("push write failed", zap.Error(err))
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.cfg.WriteTimeout)); err != nil {
				logger.Debug("push ping failed", zap.Error(err))
				return
			}
		}
	}
}
