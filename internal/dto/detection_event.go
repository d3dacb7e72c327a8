package dto

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"snapvision/internal/model"
)

// DetectionEvent is the set of boxes found in one sampled frame.
type DetectionEvent struct {
	Time  float64
	Boxes []model.Box
}

// NewDetectionEvent copies boxes so the event cannot change after construction.
func NewDetectionEvent(ts float64, boxes []model.Box) DetectionEvent {
	owned := make([]model.Box, len(boxes))
	copy(owned, boxes)
	return DetectionEvent{Time: ts, Boxes: owned}
}

// MarshalJSON writes {"time": <seconds>, "<index>": [l, t, r, b], ...} with
// the time first and boxes in index order.
func (e DetectionEvent) MarshalJSON() ([]byte, error) {
	ts, err := formatSeconds(e.Time)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.WriteString(`{"time":`)
	buf.WriteString(ts)
	for _, box := range e.Boxes {
		coords, err := json.Marshal(box.Coordinates())
		if err != nil {
			return nil, err
		}
		buf.WriteString(`,"`)
		buf.WriteString(strconv.Itoa(box.Index))
		buf.WriteString(`":`)
		buf.Write(coords)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON is the inverse of MarshalJSON, used by stream consumers.
func (e *DetectionEvent) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}

	raw, ok := fields["time"]
	if !ok {
		return fmt.Errorf("detection event without time")
	}
	var ts float64
	if err := json.Unmarshal(raw, &ts); err != nil {
		return fmt.Errorf("invalid time: %w", err)
	}

	boxes := make([]model.Box, 0, len(fields)-1)
	for key, value := range fields {
		if key == "time" {
			continue
		}
		index, err := strconv.Atoi(key)
		if err != nil {
			return fmt.Errorf("invalid box key %q", key)
		}
		var c [4]int
		if err := json.Unmarshal(value, &c); err != nil {
			return fmt.Errorf("invalid box %q: %w", key, err)
		}
		boxes = append(boxes, model.Box{Index: index, Left: c[0], Top: c[1], Right: c[2], Bottom: c[3]})
	}
	sort.Slice(boxes, func(i, j int) bool { return boxes[i].Index < boxes[j].Index })

	e.Time = ts
	e.Boxes = boxes
	return nil
}

// SSE frames the event as one server-sent event message.
func (e DetectionEvent) SSE() ([]byte, error) {
	payload, err := e.MarshalJSON()
	if err != nil {
		return nil, err
	}
	msg := make([]byte, 0, len(payload)+8)
	msg = append(msg, "data: "...)
	msg = append(msg, payload...)
	msg = append(msg, "\n\n"...)
	return msg, nil
}

// formatSeconds always keeps a fractional part so 1000 is written as 1000.0.
func formatSeconds(v float64) (string, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "", fmt.Errorf("unsupported time value %v", v)
	}
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s, nil
}
