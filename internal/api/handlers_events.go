package api

import (
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

const eventWriteTimeout = 10 * time.Second

// handleEventStream upgrades the connection and streams change events until
// the client disconnects. A client that cannot keep up silently loses
// events rather than stalling other subscribers.
func (s *Server) handleEventStream(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[API] websocket upgrade failed: %v", err)
		return
	}

	id, events := s.events.Subscribe()
	log.Printf("[API] event stream subscriber %s connected from %s", id, r.RemoteAddr)

	// Reader goroutine: detect client disconnect and drain control frames
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	defer func() {
		s.events.Unsubscribe(id)
		conn.Close()
		log.Printf("[API] event stream subscriber %s disconnected", id)
	}()

	for {
		select {
		case <-done:
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(eventWriteTimeout))
			if err := conn.WriteJSON(event); err != nil {
				log.Printf("[API] event stream write to %s failed: %v", id, err)
				return
			}
		}
	}
}
