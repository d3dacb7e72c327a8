package dto

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"math"

	"snapvision/internal/model"
)

// ErrMalformedRequest marks a classification body that cannot be decoded.
var ErrMalformedRequest = errors.New("malformed classification request")

// ClassifyRequest is the body of POST /classify_card.
type ClassifyRequest struct {
	Time        *float64  `json:"time"`
	Coordinates []float64 `json:"coordinates"`
}

// DecodeClassifyRequest parses a request body. Browser clients post the
// object already passed through JSON.stringify, so a JSON string holding the
// object is unwrapped once.
func DecodeClassifyRequest(body []byte) (model.ClassificationRequest, error) {
	body = bytes.TrimSpace(body)
	if len(body) > 0 && body[0] == '"' {
		var inner string
		if err := json.Unmarshal(body, &inner); err != nil {
			return model.ClassificationRequest{}, fmt.Errorf("%w: %v", ErrMalformedRequest, err)
		}
		body = []byte(inner)
	}

	var req ClassifyRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return model.ClassificationRequest{}, fmt.Errorf("%w: %v", ErrMalformedRequest, err)
	}
	if req.Time == nil {
		return model.ClassificationRequest{}, fmt.Errorf("%w: missing time", ErrMalformedRequest)
	}
	if len(req.Coordinates) != 4 {
		return model.ClassificationRequest{}, fmt.Errorf("%w: expected 4 coordinates, got %d", ErrMalformedRequest, len(req.Coordinates))
	}

	c := req.Coordinates
	for _, v := range c {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return model.ClassificationRequest{}, fmt.Errorf("%w: non-finite coordinate", ErrMalformedRequest)
		}
	}
	// Not image.Rect: an inverted rectangle must stay empty instead of being swapped.
	region := image.Rectangle{
		Min: image.Pt(roundPixel(c[0]), roundPixel(c[1])),
		Max: image.Pt(roundPixel(c[2]), roundPixel(c[3])),
	}

	return model.ClassificationRequest{Time: *req.Time, Region: region}, nil
}

func roundPixel(v float64) int {
	return int(math.RoundToEven(v))
}
