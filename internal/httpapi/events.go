package httpapi

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

const eventWriteTimeout = 5 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(_ *http.Request) bool { return true },
}

// handleEvents upgrades to websocket and streams feed events until the
// client disconnects.
func (s *Server) handleEvents(c echo.Context) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return fmt.Errorf("upgrade websocket: %w", err)
	}
	go s.streamEvents(conn)
	return nil
}

func (s *Server) streamEvents(conn *websocket.Conn) {
	defer conn.Close()

	sub, cancel := s.feed.Subscribe()
	defer cancel()

	// The feed is write-only; the read loop exists to detect disconnects,
	// and cancel ends the range below by closing the subscription.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				cancel()
				return
			}
		}
	}()

	for ev := range sub {
		_ = conn.SetWriteDeadline(time.Now().Add(eventWriteTimeout))
		if err := conn.WriteJSON(ev); err != nil {
			return
		}
	}
}
