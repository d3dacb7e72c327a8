package pipeline

import (
	"context"
	"image"
	"sync"
	"time"

	"snapvision/internal/dto"
	"snapvision/internal/logger"
	"snapvision/internal/model"
)

const (
	// SampleInterval is the minimum slack between two accepted frames.
	SampleInterval = time.Second
	// IdleDelay is how long the loop yields after discarding a frame.
	IdleDelay = 10 * time.Millisecond
)

// FrameSource yields the most recent frame of the feed, if any.
type FrameSource interface {
	Read() (image.Image, bool)
}

// FrameStore receives every accepted frame.
type FrameStore interface {
	Put(timestamp float64, frame model.Frame)
}

// Publisher receives every detection event.
type Publisher interface {
	Publish(event dto.DetectionEvent)
}

// SamplerStats is a snapshot of Sampler counters.
type SamplerStats struct {
	Accepted  uint64 `json:"accepted"`
	Empty     uint64 `json:"empty"`
	Failed    uint64 `json:"failed"`
	Published uint64 `json:"published"`
}

// Sampler reads the frame source at full speed but accepts at most one frame
// per SampleInterval. The interval restarts after detection finishes, so the
// effective cadence is SampleInterval plus detection latency.
type Sampler struct {
	source    FrameSource
	detector  Detector
	store     FrameStore
	publisher Publisher
	logger    *logger.Logger

	interval time.Duration
	idle     time.Duration
	now      func() time.Time

	stats   SamplerStats
	statsMu sync.Mutex
}

func NewSampler(source FrameSource, detector Detector, store FrameStore, publisher Publisher, logger *logger.Logger) *Sampler {
	return &Sampler{
		source:    source,
		detector:  detector,
		store:     store,
		publisher: publisher,
		logger:    logger,
		interval:  SampleInterval,
		idle:      IdleDelay,
		now:       time.Now,
	}
}

// Run loops until ctx is cancelled. Detection failures are logged and the
// loop carries on with the next interval.
func (s *Sampler) Run(ctx context.Context) error {
	s.logger.Info("Sampler started - accepting one frame every %v", s.interval)
	lastAccepted := s.now()

	for {
		if err := ctx.Err(); err != nil {
			s.logger.Info("Sampler stopped")
			return nil
		}

		current := s.now()
		img, ok := s.source.Read()

		if current.Sub(lastAccepted) < s.interval {
			s.sleep(ctx, s.idle)
			continue
		}

		if !ok || img == nil {
			s.count(func(st *SamplerStats) { st.Empty++ })
			s.sleep(ctx, s.idle)
			continue
		}

		s.accept(ctx, model.Timestamp(current), model.Frame{Image: img})
		lastAccepted = s.now()
	}
}

func (s *Sampler) accept(ctx context.Context, ts float64, frame model.Frame) {
	s.store.Put(ts, frame)
	s.count(func(st *SamplerStats) { st.Accepted++ })

	event, err := DetectFrame(ctx, s.detector, ts, frame)
	if err != nil {
		s.count(func(st *SamplerStats) { st.Failed++ })
		s.logger.Error("Frame %.6f: %v", ts, err)
		return
	}

	s.publisher.Publish(event)
	s.count(func(st *SamplerStats) { st.Published++ })
}

func (s *Sampler) sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

func (s *Sampler) count(update func(*SamplerStats)) {
	s.statsMu.Lock()
	update(&s.stats)
	s.statsMu.Unlock()
}

func (s *Sampler) Stats() SamplerStats {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	return s.stats
}
