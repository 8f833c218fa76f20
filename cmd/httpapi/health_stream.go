package main

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/qorzen/kernel/internal/kernel"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// newHealthStream exposes watch_health() as a websocket: every manager FSM
// transition the supervisor broadcasts is forwarded as a JSON message
// until the client disconnects.
func newHealthStream(orch *kernel.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Printf("health stream upgrade failed: %v", err)
			return
		}
		defer conn.Close()

		events := orch.Supervisor.WatchHealth()
		ctx := c.Request.Context()
		for {
			select {
			case ev := <-events:
				if err := conn.WriteJSON(ev); err != nil {
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}
}
