package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/storagepod/storagepod/internal/task"
)

// wsPollInterval is how often a connection re-reads the task snapshot.
const wsPollInterval = 500 * time.Millisecond

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// TaskStream upgrades the connection and pushes task snapshots until the task
// reaches a terminal state or the client goes away. Unknown and expired tasks
// get one final snapshot before the connection closes.
func (h *Handlers) TaskStream(c *gin.Context) {
	taskID := c.Param("id")

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	// Reads are discarded; they only surface client disconnects.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(wsPollInterval)
	defer ticker.Stop()

	var last task.Task
	for {
		snapshot := h.registry.Get(taskID)
		if snapshot != last {
			if err := conn.WriteJSON(snapshot); err != nil {
				return
			}
			last = snapshot
		}
		if done(snapshot.Status) {
			deadline := time.Now().Add(time.Second)
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, string(snapshot.Status)),
				deadline)
			return
		}

		select {
		case <-closed:
			return
		case <-c.Request.Context().Done():
			return
		case <-ticker.C:
		}
	}
}

func done(s task.Status) bool {
	return s.Terminal() || s == task.StatusNotFound || s == task.StatusExpired
}
