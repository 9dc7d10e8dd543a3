package server

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const writeWait = 5 * time.Second

// handleStream pushes corrected time to a websocket client on every stream
// interval until the client goes away. Clients never send anything; reads
// only serve to notice the close.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("Websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()
	s.logger.Debug("Time stream opened", zap.String("remote", r.RemoteAddr))

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	send := func() error {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteJSON(TimeResponse{Time: formatTime(s.record.Now())})
	}
	if err := send(); err != nil {
		return
	}

	ticker := time.NewTicker(s.streamInterval)
	defer ticker.Stop()
	for {
		select {
		case <-closed:
			s.logger.Debug("Time stream closed", zap.String("remote", r.RemoteAddr))
			return
		case <-ticker.C:
			if err := send(); err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					s.logger.Debug("Time stream write failed", zap.Error(err))
				}
				return
			}
		}
	}
}
