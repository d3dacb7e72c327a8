package handler

import (
	"encoding/json"
	"net/http"

	"snapvision/internal/logger"
)

// StatsHandler returns the counters gathered by collect as JSON.
func StatsHandler(collect func() map[string]interface{}, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-cache")
		if err := json.NewEncoder(w).Encode(collect()); err != nil {
			logger.Error("Error encoding stats: %v", err)
		}
	}
}

// HealthcheckHandler reports that the server is up.
func HealthcheckHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("OK"))
}
