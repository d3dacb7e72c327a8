package pipeline

import (
	"context"
	"fmt"
	"image"
	"math"

	"snapvision/internal/dto"
	"snapvision/internal/model"
)

const (
	// IoUThreshold is the overlap above which the engine suppresses duplicate boxes.
	IoUThreshold = 0.1
	// ConfidenceThreshold is the minimum score for a box to be reported.
	ConfidenceThreshold = 0.5
)

// Detector finds card rectangles in a frame.
type Detector interface {
	Detect(ctx context.Context, img image.Image, iou, conf float64) ([]model.RectF, error)
}

// DetectFrame runs the detector on one frame and builds its event.
func DetectFrame(ctx context.Context, detector Detector, ts float64, frame model.Frame) (dto.DetectionEvent, error) {
	rects, err := detector.Detect(ctx, frame.Image, IoUThreshold, ConfidenceThreshold)
	if err != nil {
		return dto.DetectionEvent{}, fmt.Errorf("detection failed: %w", err)
	}
	return dto.NewDetectionEvent(ts, NormalizeBoxes(rects)), nil
}

// NormalizeBoxes rounds every coordinate on its own (half to even) and
// numbers the boxes from 0 in engine order.
func NormalizeBoxes(rects []model.RectF) []model.Box {
	boxes := make([]model.Box, len(rects))
	for i, r := range rects {
		boxes[i] = model.Box{
			Index:  i,
			Left:   roundPixel(r.X1),
			Top:    roundPixel(r.Y1),
			Right:  roundPixel(r.X2),
			Bottom: roundPixel(r.Y2),
		}
	}
	return boxes
}

func roundPixel(v float64) int {
	return int(math.RoundToEven(v))
}
