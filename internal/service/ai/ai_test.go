package ai

import (
	"image"
	"testing"

	"snapvision/internal/logger"
	"snapvision/internal/model"
)

// column lays candidates out the way the network does: one row per attribute.
func column(candidates ...[]float32) ([]float32, int, int) {
	attrs := len(candidates[0])
	count := len(candidates)
	values := make([]float32, attrs*count)
	for i, c := range candidates {
		for a, v := range c {
			values[a*count+i] = v
		}
	}
	return values, attrs, count
}

func TestDecodeCandidates_ScalesAndFilters(t *testing.T) {
	values, attrs, count := column(
		[]float32{320, 320, 64, 32, 0.9},
		[]float32{100, 100, 10, 10, 0.2},
		[]float32{50, 60, 20, 40, 0.6},
	)

	rects, scores := decodeCandidates(values, attrs, count, 2, 1, 0.5)

	if len(rects) != 2 || len(scores) != 2 {
		t.Fatalf("Expected 2 candidates, got %d", len(rects))
	}
	expected := model.RectF{X1: 576, Y1: 304, X2: 704, Y2: 336}
	if rects[0] != expected {
		t.Errorf("Expected %+v, got %+v", expected, rects[0])
	}
	if scores[1] != 0.6 {
		t.Errorf("Expected score 0.6, got %v", scores[1])
	}
}

func TestDecodeCandidates_BestClassWins(t *testing.T) {
	values, attrs, count := column([]float32{10, 10, 4, 4, 0.1, 0.7, 0.3})

	_, scores := decodeCandidates(values, attrs, count, 1, 1, 0.5)
	if len(scores) != 1 || scores[0] != 0.7 {
		t.Errorf("Expected best class score 0.7, got %v", scores)
	}
}

func TestLetterbox(t *testing.T) {
	tests := []struct {
		cols, rows int
		side       int
		scale      float64
	}{
		{1280, 720, 1280, 2},
		{720, 1280, 1280, 2},
		{640, 640, 640, 1},
		{320, 200, 320, 0.5},
	}

	for _, tt := range tests {
		side, scale := letterbox(tt.cols, tt.rows)
		if side != tt.side || scale != tt.scale {
			t.Errorf("letterbox(%d, %d) = %d, %v; expected %d, %v", tt.cols, tt.rows, side, scale, tt.side, tt.scale)
		}
	}
}

func TestDecodeCandidates_LetterboxedFrameKeepsAspect(t *testing.T) {
	// A 1280x720 frame padded to 1280x1280: a card at (200,100)-(400,400)
	// appears at (100,50)-(200,200) in network pixels.
	values, attrs, count := column([]float32{150, 125, 100, 150, 0.9})
	_, scale := letterbox(1280, 720)

	rects, _ := decodeCandidates(values, attrs, count, scale, scale, 0.5)

	expected := model.RectF{X1: 200, Y1: 100, X2: 400, Y2: 400}
	if len(rects) != 1 || rects[0] != expected {
		t.Errorf("Expected %+v, got %+v", expected, rects)
	}
}

func TestClipRect(t *testing.T) {
	got := clipRect(model.RectF{X1: -4, Y1: 700, X2: 1300, Y2: 760}, 1280, 720)
	expected := model.RectF{X1: 0, Y1: 700, X2: 1280, Y2: 720}
	if got != expected {
		t.Errorf("Expected %+v, got %+v", expected, got)
	}
}

func TestDecodeCandidates_ShortOutput(t *testing.T) {
	rects, _ := decodeCandidates(make([]float32, 3), 5, 2, 1, 1, 0.5)
	if rects != nil {
		t.Errorf("Expected no candidates for truncated output, got %v", rects)
	}
}

func TestNewYOLODetector_MissingModel(t *testing.T) {
	if _, err := NewYOLODetector("/nonexistent/detect.onnx", logger.Discard()); err == nil {
		t.Error("Expected error for missing model")
	}
	if _, err := NewYOLOClassifier("/nonexistent/classify.onnx", logger.Discard()); err == nil {
		t.Error("Expected error for missing model")
	}
}

func TestCapture_ReadBeforeFirstFrame(t *testing.T) {
	capture := NewCapture("rtsp://example.invalid/live", 1280, 720, nil, logger.Discard())

	if img, ok := capture.Read(); ok || img != nil {
		t.Error("Expected no frame before the stream is consumed")
	}

	capture.latest = image.NewRGBA(image.Rect(0, 0, 4, 4))
	if _, ok := capture.Read(); !ok {
		t.Error("Expected latest frame to be returned")
	}
	if stats := capture.Stats(); stats.Connected {
		t.Error("Capture should not report connected")
	}
}
