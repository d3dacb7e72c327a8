package route

import (
	"net/http"

	"snapvision/internal/config"
	"snapvision/internal/handler"
	"snapvision/internal/logger"
	"snapvision/internal/middleware"
	"snapvision/internal/service/events"
)

// Services groups what the HTTP layer needs from the running application.
type Services struct {
	Hub        *events.Hub
	Classifier handler.CardClassifier
	Stats      func() map[string]interface{}
}

// SetupRoutes registers the event streams, the classification endpoint and
// the operational endpoints behind the CORS middleware. Log files are only
// served when enabled and never to cross-origin callers.
func SetupRoutes(services Services, cfg *config.Config, logger *logger.Logger) http.Handler {
	api := http.NewServeMux()
	policy := middleware.NewOriginPolicy(cfg.AllowedOrigins)

	// Event streams
	api.HandleFunc("/stream", handler.StreamHandler(services.Hub, logger))
	api.HandleFunc("/api/view", handler.ViewWebsocketHandler(services.Hub, handler.NewUpgrader(policy), logger))

	// Classification
	api.HandleFunc("/classify_card", handler.ClassifyCardHandler(services.Classifier, logger))

	// Operations
	api.HandleFunc("/api/stats", handler.StatsHandler(services.Stats, logger))
	api.HandleFunc("/healthcheck", handler.HealthcheckHandler)

	mux := http.NewServeMux()
	mux.Handle("/", middleware.CORSMiddleware(policy, api))

	if cfg.ExposeLogs {
		mux.HandleFunc("/logs/info", handler.LogFileHandler(cfg.LogDirectory, "info.log"))
		mux.HandleFunc("/logs/warning", handler.LogFileHandler(cfg.LogDirectory, "warning.log"))
		mux.HandleFunc("/logs/error", handler.LogFileHandler(cfg.LogDirectory, "error.log"))
	}

	return mux
}
