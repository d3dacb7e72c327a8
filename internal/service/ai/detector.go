package ai

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"math"
	"sync"

	"snapvision/internal/logger"
	"snapvision/internal/model"

	"gocv.io/x/gocv"
)

// DetectInputSize is the square input of the YOLOv8 detection export.
const DetectInputSize = 640

// padColor is the gray ultralytics fills letterbox borders with.
var padColor = color.RGBA{R: 114, G: 114, B: 114, A: 0}

// YOLODetector runs a YOLOv8 detection network over whole frames.
type YOLODetector struct {
	net       gocv.Net
	modelPath string
	mu        sync.Mutex
	logger    *logger.Logger
}

// NewYOLODetector loads the detection network from modelPath.
func NewYOLODetector(modelPath string, logger *logger.Logger) (*YOLODetector, error) {
	net, err := loadNet(modelPath)
	if err != nil {
		return nil, err
	}
	logger.Info("Detection network loaded from %s", modelPath)
	return &YOLODetector{net: net, modelPath: modelPath, logger: logger}, nil
}

// Detect returns the card rectangles in img, in frame pixels, after
// confidence filtering and non-maximum suppression.
func (d *YOLODetector) Detect(ctx context.Context, img image.Image, iou, conf float64) ([]model.RectF, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return nil, fmt.Errorf("failed to convert frame: %w", err)
	}
	defer mat.Close()
	if mat.Empty() {
		return nil, fmt.Errorf("frame is empty")
	}

	// Pad to a square at the bottom and right so the aspect ratio survives
	// the resize and boxes only need scaling back.
	side, scale := letterbox(mat.Cols(), mat.Rows())
	input := mat
	if side != mat.Cols() || side != mat.Rows() {
		padded := gocv.NewMat()
		defer padded.Close()
		gocv.CopyMakeBorder(mat, &padded, 0, side-mat.Rows(), 0, side-mat.Cols(), gocv.BorderConstant, padColor)
		input = padded
	}

	blob := gocv.BlobFromImage(input, 1.0/255.0, image.Pt(DetectInputSize, DetectInputSize), gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.net.Empty() {
		return nil, ErrNetNotLoaded
	}
	d.net.SetInput(blob, "")
	output := d.net.Forward("")
	defer output.Close()

	// Output is [1, 4+classes, candidates]: cx, cy, w, h then one score per class.
	sizes := output.Size()
	if len(sizes) != 3 || sizes[1] <= 4 {
		return nil, fmt.Errorf("unexpected detection output shape %v", sizes)
	}
	values, err := output.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("failed to read detection output: %w", err)
	}

	rects, scores := decodeCandidates(values, sizes[1], sizes[2], scale, scale, conf)
	if len(rects) == 0 {
		return nil, nil
	}
	for i := range rects {
		rects[i] = clipRect(rects[i], mat.Cols(), mat.Rows())
	}

	boxes := make([]image.Rectangle, len(rects))
	for i, r := range rects {
		boxes[i] = image.Rect(int(math.Round(r.X1)), int(math.Round(r.Y1)), int(math.Round(r.X2)), int(math.Round(r.Y2)))
	}
	keep := gocv.NMSBoxes(boxes, scores, float32(conf), float32(iou))

	results := make([]model.RectF, 0, len(keep))
	for _, i := range keep {
		results = append(results, rects[i])
	}
	return results, nil
}

// Close releases the network.
func (d *YOLODetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.net.Close()
}

// letterbox returns the side of the square a cols x rows frame is padded to
// and the factor from network input pixels back to frame pixels.
func letterbox(cols, rows int) (int, float64) {
	side := cols
	if rows > side {
		side = rows
	}
	return side, float64(side) / DetectInputSize
}

// clipRect keeps a rectangle inside the frame; boxes may reach into the padding.
func clipRect(r model.RectF, width, height int) model.RectF {
	clamp := func(v float64, limit int) float64 {
		return math.Max(0, math.Min(v, float64(limit)))
	}
	return model.RectF{
		X1: clamp(r.X1, width),
		Y1: clamp(r.Y1, height),
		X2: clamp(r.X2, width),
		Y2: clamp(r.Y2, height),
	}
}

// decodeCandidates turns the row-major [attrs][count] output into frame
// rectangles whose best class score reaches conf.
func decodeCandidates(values []float32, attrs, count int, scaleX, scaleY, conf float64) ([]model.RectF, []float32) {
	var rects []model.RectF
	var scores []float32

	if len(values) < attrs*count {
		return nil, nil
	}

	at := func(attr, i int) float64 { return float64(values[attr*count+i]) }

	for i := 0; i < count; i++ {
		best := float32(0)
		for c := 4; c < attrs; c++ {
			if s := values[c*count+i]; s > best {
				best = s
			}
		}
		if float64(best) < conf {
			continue
		}

		cx, cy, w, h := at(0, i), at(1, i), at(2, i), at(3, i)
		rects = append(rects, model.RectF{
			X1: (cx - w/2) * scaleX,
			Y1: (cy - h/2) * scaleY,
			X2: (cx + w/2) * scaleX,
			Y2: (cy + h/2) * scaleY,
		})
		scores = append(scores, best)
	}

	return rects, scores
}
