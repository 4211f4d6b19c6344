package realtime

import (
	"encoding/json"
	"log"

	"github.com/gofiber/contrib/websocket"
)

// controlMessage is the client→server protocol: subscribe/unsubscribe
// to a channel, or ping.
type controlMessage struct {
	Action  string `json:"action"`
	Channel string `json:"channel"`
}

// ServeSession runs the read loop for one websocket connection until
// the client goes away. Teardown is idempotent — the deferred
// disconnect is a no-op if a failed broadcast already removed us.
func ServeSession(m *Manager, conn *websocket.Conn, userID string) {
	session := m.Connect(conn, userID)
	defer m.Disconnect(session)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("⚠️  Session %s read error: %v", session.ID, err)
			}
			return
		}

		handleControl(m, session, data)
	}
}

// handleControl dispatches one client control frame.
func handleControl(m *Manager, session *Session, data []byte) {
	var msg controlMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		writeControl(session, map[string]string{"type": "error", "message": "invalid message"})
		return
	}

	switch msg.Action {
	case "subscribe":
		if err := m.Subscribe(session, msg.Channel); err != nil {
			writeControl(session, map[string]string{"type": "error", "message": err.Error()})
			return
		}
		writeControl(session, map[string]string{"type": "subscribed", "channel": msg.Channel})

	case "unsubscribe":
		if err := m.Unsubscribe(session, msg.Channel); err != nil {
			writeControl(session, map[string]string{"type": "error", "message": err.Error()})
			return
		}
		writeControl(session, map[string]string{"type": "unsubscribed", "channel": msg.Channel})

	case "ping":
		writeControl(session, map[string]string{"type": "pong"})

	default:
		writeControl(session, map[string]string{"type": "error", "message": "unknown action"})
	}
}

func writeControl(session *Session, payload map[string]string) {
	data, _ := json.Marshal(payload)
	if err := session.write(data); err != nil {
		log.Printf("⚠️  Control write failed to session %s: %v", session.ID, err)
	}
}
