package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"snapvision/internal/config"
	"snapvision/internal/logger"
	"snapvision/internal/repository/sqlite"
	"snapvision/internal/route"
	"snapvision/internal/service/ai"
	"snapvision/internal/service/certs"
	"snapvision/internal/service/classify"
	"snapvision/internal/service/events"
	"snapvision/internal/service/mqtt"
	"snapvision/internal/service/pipeline"
	"snapvision/internal/service/storage"

	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

type App struct {
	config *config.Config
	logger *logger.Logger

	db         *sqlite.DB
	frames     *storage.FrameCache
	hub        *events.Hub
	capture    *ai.Capture
	detector   *ai.YOLODetector
	classifier *ai.YOLOClassifier
	sampler    *pipeline.Sampler
	classify   *classify.Service
	certs      *certs.Reloader
	sink       *mqtt.Sink
	server     *http.Server
}

// New opens the card store, loads both networks and the class name table,
// and wires the sampling pipeline to the HTTP layer.
func New(cfg *config.Config, logger *logger.Logger) (*App, error) {
	a := &App{config: cfg, logger: logger}

	names, err := classify.LoadClassNames(cfg.ClassNamesPath)
	if err != nil {
		return nil, err
	}

	a.db, err = sqlite.New(cfg.CardsDBPath)
	if err != nil {
		return nil, err
	}
	cards := sqlite.NewCardRepository(a.db)
	if count, err := cards.Count(); err == nil {
		logger.Info("Card store %s holds %d cards", cfg.CardsDBPath, count)
	}
	if missing, err := cards.MissingNames(names.All()); err == nil && len(missing) > 0 {
		logger.Warning("%d classes have no card record, e.g. %q", len(missing), missing[0])
	}

	a.detector, err = ai.NewYOLODetector(cfg.DetectModelPath, logger)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to load detection model: %w", err)
	}
	a.classifier, err = ai.NewYOLOClassifier(cfg.ClassifyModel, logger)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to load classification model: %w", err)
	}

	if cfg.TLSEnabled() {
		a.certs, err = certs.NewReloader(cfg.CertFile, cfg.KeyFile, logger)
		if err != nil {
			a.Close()
			return nil, err
		}
	}

	a.frames = storage.NewFrameCache(storage.DefaultFrameCacheLimit)
	a.hub = events.NewHub(cfg.SubscriberBuffer, logger)
	a.capture = ai.NewCapture(cfg.StreamURL, cfg.StreamWidth, cfg.StreamHeight, ai.NewTwitchResolver(cfg.StreamQuality), logger)
	a.sampler = pipeline.NewSampler(a.capture, a.detector, a.frames, a.hub, logger)
	a.classify = classify.NewService(a.frames, a.classifier, names, cards, cfg.ClassifyTimeout, logger)

	if cfg.MQTTBroker != "" {
		client := mqtt.NewClient(cfg.MQTTBroker, cfg.MQTTClientID, logger)
		a.sink = mqtt.NewSink(client, cfg.MQTTTopic, a.hub, logger)
	}

	services := route.Services{
		Hub:        a.hub,
		Classifier: a.classify,
		Stats:      a.stats,
	}
	a.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           route.SetupRoutes(services, cfg, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}
	if a.certs != nil {
		a.server.TLSConfig = a.certs.TLSConfig()
	}

	return a, nil
}

// Run starts capture, sampling and serving, and blocks until ctx is
// cancelled or one of them fails.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return a.capture.Run(ctx) })
	g.Go(func() error { return a.sampler.Run(ctx) })
	if a.certs != nil {
		g.Go(func() error { return a.certs.Run(ctx) })
	}
	if a.sink != nil {
		g.Go(func() error { return a.sink.Run(ctx) })
	}

	g.Go(func() error {
		a.logger.Info("Stream: %s", a.config.StreamURL)
		a.logger.Info("Detection model: %s", a.config.DetectModelPath)
		a.logger.Info("Classification model: %s", a.config.ClassifyModel)

		var err error
		if a.certs != nil {
			a.logger.Info("Listening on https://localhost%s", a.server.Addr)
			err = a.server.ListenAndServeTLS("", "")
		} else {
			a.logger.Info("Listening on http://localhost%s", a.server.Addr)
			err = a.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		a.logger.Info("Shutting down server...")

		// Ending the subscriptions first lets stream handlers return.
		a.hub.Close()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("Server shutdown failed: %v", err)
			return err
		}
		a.logger.Info("Server stopped")
		return nil
	})

	return g.Wait()
}

// Close releases the networks and the card store.
func (a *App) Close() error {
	var errs []error
	if a.detector != nil {
		errs = append(errs, a.detector.Close())
	}
	if a.classifier != nil {
		errs = append(errs, a.classifier.Close())
	}
	if a.db != nil {
		errs = append(errs, a.db.Close())
	}
	return errors.Join(errs...)
}

func (a *App) stats() map[string]interface{} {
	stats := map[string]interface{}{
		"cache":   a.frames.Stats(),
		"hub":     a.hub.Stats(),
		"sampler": a.sampler.Stats(),
		"capture": a.capture.Stats(),
	}
	if a.sink != nil {
		stats["mqtt"] = a.sink.Stats()
	}
	if a.certs != nil {
		stats["certificate_loads"] = a.certs.Reloads()
	}
	return stats
}
