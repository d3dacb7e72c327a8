package handler

import (
	"net/http"
	"time"

	"snapvision/internal/logger"
	"snapvision/internal/middleware"
	"snapvision/internal/service/events"

	"github.com/gorilla/websocket"
)

const writeWait = 10 * time.Second

// NewUpgrader upgrades HTTP connections to WebSocket. Browsers must send an
// origin allowed by policy; clients without an Origin header are accepted.
func NewUpgrader(policy *middleware.OriginPolicy) *websocket.Upgrader {
	return &websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || policy.Allows(origin)
		},
	}
}

// ViewWebsocketHandler sends every detection event as a JSON text message
// to a viewer connected over WebSocket.
func ViewWebsocketHandler(hub *events.Hub, upgrader *websocket.Upgrader, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		connection, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Error("WebSocket upgrade error: %v", err)
			return
		}
		defer connection.Close()

		subscription := hub.Subscribe()
		defer hub.Unsubscribe(subscription.ID)

		logger.Info("Viewer %s connected", subscription.ID)

		// Viewers never send data; reading only detects the close.
		closed := make(chan struct{})
		go func() {
			defer close(closed)
			for {
				if _, _, err := connection.ReadMessage(); err != nil {
					if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
						logger.Info("Viewer %s disconnected normally", subscription.ID)
					} else {
						logger.Error("Viewer %s disconnected with error: %v", subscription.ID, err)
					}
					return
				}
			}
		}()

		for {
			select {
			case <-closed:
				return

			case event, ok := <-subscription.Events:
				if !ok {
					message := websocket.FormatCloseMessage(websocket.CloseGoingAway, "subscription ended")
					connection.WriteControl(websocket.CloseMessage, message, time.Now().Add(writeWait))
					return
				}

				data, err := event.MarshalJSON()
				if err != nil {
					logger.Error("Error encoding event: %v", err)
					continue
				}

				connection.SetWriteDeadline(time.Now().Add(writeWait))
				if err := connection.WriteMessage(websocket.TextMessage, data); err != nil {
					logger.Error("Error sending message to viewer %s: %v", subscription.ID, err)
					return
				}
			}
		}
	}
}
