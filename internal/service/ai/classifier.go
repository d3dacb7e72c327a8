package ai

import (
	"context"
	"fmt"
	"image"
	"sync"

	"snapvision/internal/logger"

	"gocv.io/x/gocv"
)

// ClassifyInputSize is the square input of the YOLOv8 classification export.
const ClassifyInputSize = 224

// YOLOClassifier runs a YOLOv8 classification network over card crops.
type YOLOClassifier struct {
	net    gocv.Net
	mu     sync.Mutex
	logger *logger.Logger
}

func NewYOLOClassifier(modelPath string, logger *logger.Logger) (*YOLOClassifier, error) {
	net, err := loadNet(modelPath)
	if err != nil {
		return nil, err
	}
	logger.Info("Classification network loaded from %s", modelPath)
	return &YOLOClassifier{net: net, logger: logger}, nil
}

// Classify returns the index of the highest scoring class for img.
func (c *YOLOClassifier) Classify(ctx context.Context, img image.Image) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return 0, fmt.Errorf("failed to convert crop: %w", err)
	}
	defer mat.Close()
	if mat.Empty() {
		return 0, fmt.Errorf("crop is empty")
	}

	blob := gocv.BlobFromImage(mat, 1.0/255.0, image.Pt(ClassifyInputSize, ClassifyInputSize), gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.net.Empty() {
		return 0, ErrNetNotLoaded
	}
	c.net.SetInput(blob, "")
	probs := c.net.Forward("")
	defer probs.Close()

	if probs.Total() == 0 {
		return 0, fmt.Errorf("classifier returned no scores")
	}

	// probs is [1, classes]; the column of the maximum is the class index.
	_, _, _, maxLoc := gocv.MinMaxLoc(probs)
	return maxLoc.X, nil
}

func (c *YOLOClassifier) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.net.Close()
}
