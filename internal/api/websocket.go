package api

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"spottrader/internal/events"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type wsEnvelope struct {
	Topic   string `json:"topic"`
	Payload any    `json:"payload"`
}

// websocket relays every bus topic to the client until it disconnects.
func (s *Server) websocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("ws upgrade error: %v", err)
		return
	}
	defer conn.Close()

	if s.Bus == nil {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"bus not ready"}`))
		return
	}

	merged := make(chan wsEnvelope, 100)
	done := make(chan struct{})

	// Read pump: the client sends nothing we use, but reading is how a
	// dropped connection is noticed before the next outbound event.
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for _, topic := range events.All() {
		stream, unsub := s.Bus.Subscribe(topic, 100)
		go func(topic events.Event, stream <-chan any, unsub func()) {
			defer unsub()
			for {
				select {
				case <-done:
					return
				case msg, ok := <-stream:
					if !ok {
						return
					}
					select {
					case merged <- wsEnvelope{Topic: string(topic), Payload: msg}:
					default:
						// Slow client: drop rather than stall the bus.
					}
				}
			}
		}(topic, stream, unsub)
	}

	for {
		select {
		case <-done:
			return
		case env := <-merged:
			if err := conn.WriteJSON(env); err != nil {
				log.Printf("ws write error: %v", err)
				return
			}
		}
	}
}
