package model

import (
	"image"
	"time"
)

// Frame is one still image captured from the video feed.
type Frame struct {
	Image image.Image
}

// Timestamp converts t to the float seconds used to key cached frames and events.
func Timestamp(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

// ClassificationRequest points at a region of a previously published frame.
type ClassificationRequest struct {
	Time   float64
	Region image.Rectangle
}
