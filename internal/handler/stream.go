package handler

import (
	"net/http"

	"snapvision/internal/logger"
	"snapvision/internal/service/events"
)

// StreamHandler serves detection events as Server-Sent Events. Each
// client gets only the events published after it connected.
func StreamHandler(hub *events.Hub, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
			return
		}

		subscription := hub.Subscribe()
		defer hub.Unsubscribe(subscription.ID)

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")
		w.WriteHeader(http.StatusOK)
		flusher.Flush()

		logger.Info("Stream subscriber %s connected", subscription.ID)

		for {
			select {
			case <-r.Context().Done():
				logger.Info("Stream subscriber %s disconnected", subscription.ID)
				return

			case event, ok := <-subscription.Events:
				if !ok {
					logger.Warning("Stream subscriber %s dropped by the hub", subscription.ID)
					return
				}

				message, err := event.SSE()
				if err != nil {
					logger.Error("Error encoding event: %v", err)
					continue
				}
				if _, err := w.Write(message); err != nil {
					logger.Info("Stream subscriber %s write failed: %v", subscription.ID, err)
					return
				}
				flusher.Flush()
			}
		}
	}
}
