package classify

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"time"

	"snapvision/internal/logger"
	"snapvision/internal/model"

	"golang.org/x/sync/semaphore"
)

var (
	// ErrInvalidRegion means the requested rectangle has no pixels inside the frame.
	ErrInvalidRegion = errors.New("region does not intersect the frame")
	// ErrClassifyTimeout means the classifier did not answer in time.
	ErrClassifyTimeout = errors.New("classification timed out")
)

const (
	// DefaultTimeout bounds a single classifier call.
	DefaultTimeout = 5 * time.Second
	// MaxPendingClassifications bounds engine calls in flight, including
	// calls abandoned after a timeout that have not returned yet.
	MaxPendingClassifications = 2
)

// FrameReader looks up cached frames by timestamp.
type FrameReader interface {
	Get(timestamp float64) (model.Frame, bool)
}

// Classifier returns the top-1 class index for a cropped card image.
type Classifier interface {
	Classify(ctx context.Context, img image.Image) (int, error)
}

// CardStore resolves card names to their records; a missing card is (nil, nil).
type CardStore interface {
	GetByName(name string) (*model.Card, error)
}

// Service reunites a classification request with the frame it refers to.
type Service struct {
	frames     FrameReader
	classifier Classifier
	names      *ClassNames
	cards      CardStore
	timeout    time.Duration
	pending    *semaphore.Weighted
	logger     *logger.Logger
}

func NewService(frames FrameReader, classifier Classifier, names *ClassNames, cards CardStore, timeout time.Duration, logger *logger.Logger) *Service {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Service{
		frames:     frames,
		classifier: classifier,
		names:      names,
		cards:      cards,
		timeout:    timeout,
		pending:    semaphore.NewWeighted(MaxPendingClassifications),
		logger:     logger,
	}
}

// Classify returns the card shown in req.Region of the frame captured at
// req.Time. A nil card with a nil error means there is nothing to report:
// the frame has left the cache or the card is unknown to the store.
func (s *Service) Classify(ctx context.Context, req model.ClassificationRequest) (*model.Card, error) {
	frame, ok := s.frames.Get(req.Time)
	if !ok {
		return nil, nil
	}

	crop, err := Crop(frame.Image, req.Region)
	if err != nil {
		return nil, err
	}

	index, err := s.classify(ctx, crop)
	if err != nil {
		return nil, err
	}

	name, err := s.names.Name(index)
	if err != nil {
		s.logger.Error("Classifier and class name table disagree: %v", err)
		return nil, err
	}

	card, err := s.cards.GetByName(name)
	if err != nil {
		return nil, fmt.Errorf("failed to look up card %q: %w", name, err)
	}
	if card == nil {
		s.logger.Warning("Class %q has no card record", name)
	}
	return card, nil
}

// classify runs the classifier under the service timeout. The engine call
// itself cannot be interrupted, so on timeout its result is discarded. Its
// pending slot is released only once it returns.
func (s *Service) classify(ctx context.Context, crop image.Image) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.pending.Acquire(ctx, 1); err != nil {
		return 0, s.interrupted(ctx, "waiting for the classifier")
	}

	type result struct {
		index int
		err   error
	}
	done := make(chan result, 1)
	go func() {
		defer s.pending.Release(1)
		index, err := s.classifier.Classify(ctx, crop)
		done <- result{index, err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			s.logger.Error("Classification failed: %v", r.err)
			return 0, fmt.Errorf("classification failed: %w", r.err)
		}
		return r.index, nil
	case <-ctx.Done():
		return 0, s.interrupted(ctx, "classifying")
	}
}

// interrupted maps an ended context to ErrClassifyTimeout on deadline and to
// the context error when the caller went away.
func (s *Service) interrupted(ctx context.Context, stage string) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		s.logger.Error("Classification timed out after %v while %s", s.timeout, stage)
		return ErrClassifyTimeout
	}
	s.logger.Info("Classification cancelled while %s", stage)
	return ctx.Err()
}

// Crop returns the part of img inside region, clamped to the image bounds.
// The frame itself is never modified.
func Crop(img image.Image, region image.Rectangle) (image.Image, error) {
	if img == nil || region.Empty() {
		return nil, ErrInvalidRegion
	}
	clamped := region.Intersect(img.Bounds())
	if clamped.Empty() {
		return nil, ErrInvalidRegion
	}

	if sub, ok := img.(interface {
		SubImage(r image.Rectangle) image.Image
	}); ok {
		return sub.SubImage(clamped), nil
	}

	dst := image.NewRGBA(image.Rect(0, 0, clamped.Dx(), clamped.Dy()))
	draw.Draw(dst, dst.Bounds(), img, clamped.Min, draw.Src)
	return dst, nil
}
