package mqtt

import (
	"context"
	"fmt"
	"sync"
	"time"

	"snapvision/internal/dto"
	"snapvision/internal/logger"
	"snapvision/internal/service/events"

	paho "github.com/eclipse/paho.mqtt.golang"
)

const (
	connectTimeout    = 5 * time.Second
	publishTimeout    = 2 * time.Second
	disconnectQuiesce = 250
)

// SinkStats is a snapshot of Sink counters.
type SinkStats struct {
	Connected bool   `json:"connected"`
	Published uint64 `json:"published"`
	Skipped   uint64 `json:"skipped"`
	Errors    uint64 `json:"errors"`
}

// NewClient builds a paho client that keeps reconnecting to broker on its own.
func NewClient(broker, clientID string, logger *logger.Logger) paho.Client {
	opts := paho.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(clientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = func(c paho.Client) {
		logger.Info("MQTT connection to %s established", broker)
	}
	opts.OnConnectionLost = func(c paho.Client, err error) {
		logger.Warning("MQTT connection to %s lost, reconnecting: %v", broker, err)
	}

	return paho.NewClient(opts)
}

// Sink republishes detection events to an MQTT topic. It reads from the hub
// like any stream client, so a stalled broker only costs the sink events.
type Sink struct {
	client paho.Client
	topic  string
	hub    *events.Hub

	published uint64
	skipped   uint64
	errors    uint64
	mutex     sync.Mutex
	logger    *logger.Logger
}

func NewSink(client paho.Client, topic string, hub *events.Hub, logger *logger.Logger) *Sink {
	return &Sink{
		client: client,
		topic:  topic,
		hub:    hub,
		logger: logger,
	}
}

// Run connects and forwards events until ctx is cancelled.
func (s *Sink) Run(ctx context.Context) error {
	token := s.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		s.logger.Warning("MQTT broker not reachable yet, retrying in background")
	} else if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connection failed: %w", err)
	}
	defer s.client.Disconnect(disconnectQuiesce)

	for {
		subscription := s.hub.Subscribe()
		stop := s.forward(ctx, subscription)
		s.hub.Unsubscribe(subscription.ID)
		if stop {
			return nil
		}
		s.logger.Warning("MQTT sink fell behind the event stream, resubscribing")
	}
}

// forward drains one subscription; it reports true when the sink should stop.
func (s *Sink) forward(ctx context.Context, subscription *events.Subscription) bool {
	for {
		select {
		case <-ctx.Done():
			return true
		case event, ok := <-subscription.Events:
			if !ok {
				return ctx.Err() != nil || s.hub.Closed()
			}
			if err := s.Publish(event); err != nil {
				s.logger.Error("MQTT publish failed: %v", err)
			}
		}
	}
}

// Publish sends one event. Events produced while the broker is unreachable
// are skipped rather than queued.
func (s *Sink) Publish(event dto.DetectionEvent) error {
	if !s.client.IsConnected() {
		s.count(func() { s.skipped++ })
		return nil
	}

	payload, err := event.MarshalJSON()
	if err != nil {
		s.count(func() { s.errors++ })
		return fmt.Errorf("failed to encode event: %w", err)
	}

	token := s.client.Publish(s.topic, 0, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		s.count(func() { s.errors++ })
		return fmt.Errorf("publish timeout")
	}
	if err := token.Error(); err != nil {
		s.count(func() { s.errors++ })
		return fmt.Errorf("publish failed: %w", err)
	}

	s.count(func() { s.published++ })
	return nil
}

func (s *Sink) count(update func()) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	update()
}

func (s *Sink) Stats() SinkStats {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return SinkStats{
		Connected: s.client.IsConnected(),
		Published: s.published,
		Skipped:   s.skipped,
		Errors:    s.errors,
	}
}
