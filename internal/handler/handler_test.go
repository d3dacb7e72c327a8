package handler

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"image"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"snapvision/internal/dto"
	"snapvision/internal/logger"
	"snapvision/internal/middleware"
	"snapvision/internal/model"
	"snapvision/internal/service/classify"
	"snapvision/internal/service/events"

	"github.com/gorilla/websocket"
)

// ========================================
// Test Setup Helpers
// ========================================

type stubClassifier struct {
	card *model.Card
	err  error
	got  model.ClassificationRequest
}

func (s *stubClassifier) Classify(ctx context.Context, req model.ClassificationRequest) (*model.Card, error) {
	s.got = req
	return s.card, s.err
}

func waitForSubscribers(t *testing.T, hub *events.Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.Count() != n {
		if time.Now().After(deadline) {
			t.Fatalf("Expected %d subscribers, have %d", n, hub.Count())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func sampleEvent() dto.DetectionEvent {
	return dto.NewDetectionEvent(1000.5, []model.Box{{Index: 0, Left: 1, Top: 2, Right: 3, Bottom: 4}})
}

// ========================================
// Classify Card Handler Tests
// ========================================

func TestClassifyCardHandler_ReturnsCard(t *testing.T) {
	classifier := &stubClassifier{card: &model.Card{Name: "Hulk", Cost: 6, Description: "HULK SMASH!", Image: "hulk.webp"}}
	handler := ClassifyCardHandler(classifier, logger.Discard())

	body := `{"time":1000.5,"coordinates":[10,20,110,170]}`
	req := httptest.NewRequest(http.MethodPost, "/classify_card", strings.NewReader(body))
	w := httptest.NewRecorder()
	handler(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Expected JSON content type, got %q", ct)
	}

	var resp map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp["name"] != "Hulk" || resp["description"] != "HULK SMASH!" || resp["image"] != "hulk.webp" {
		t.Errorf("Unexpected response %v", resp)
	}
	if _, ok := resp["cost"]; ok {
		t.Error("Response must only carry name, description and image")
	}

	if classifier.got.Time != 1000.5 || classifier.got.Region != image.Rect(10, 20, 110, 170) {
		t.Errorf("Unexpected request passed to classifier: %+v", classifier.got)
	}
}

func TestClassifyCardHandler_AcceptsStringifiedBody(t *testing.T) {
	classifier := &stubClassifier{card: &model.Card{Name: "Hulk"}}
	handler := ClassifyCardHandler(classifier, logger.Discard())

	body := `"{\"time\":1000.5,\"coordinates\":[10,20,110,170]}"`
	req := httptest.NewRequest(http.MethodPost, "/classify_card", strings.NewReader(body))
	w := httptest.NewRecorder()
	handler(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
}

func TestClassifyCardHandler_StatusCodes(t *testing.T) {
	valid := `{"time":1,"coordinates":[0,0,5,5]}`

	tests := []struct {
		name       string
		method     string
		body       string
		classifier *stubClassifier
		expected   int
	}{
		{"no result", http.MethodPost, valid, &stubClassifier{}, http.StatusNoContent},
		{"wrong method", http.MethodGet, "", &stubClassifier{}, http.StatusMethodNotAllowed},
		{"malformed body", http.MethodPost, `{"time":`, &stubClassifier{}, http.StatusBadRequest},
		{"missing coordinates", http.MethodPost, `{"time":1}`, &stubClassifier{}, http.StatusBadRequest},
		{"invalid region", http.MethodPost, valid, &stubClassifier{err: classify.ErrInvalidRegion}, http.StatusBadRequest},
		{"timeout", http.MethodPost, valid, &stubClassifier{err: classify.ErrClassifyTimeout}, http.StatusGatewayTimeout},
		{"unknown class", http.MethodPost, valid, &stubClassifier{err: classify.ErrUnknownClass}, http.StatusInternalServerError},
		{"engine failure", http.MethodPost, valid, &stubClassifier{err: errors.New("boom")}, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := ClassifyCardHandler(tt.classifier, logger.Discard())
			req := httptest.NewRequest(tt.method, "/classify_card", strings.NewReader(tt.body))
			w := httptest.NewRecorder()
			handler(w, req)

			if w.Code != tt.expected {
				t.Errorf("Expected %d, got %d: %s", tt.expected, w.Code, w.Body.String())
			}
		})
	}
}

func TestClassifyCardHandler_CancelledRequestWritesNothing(t *testing.T) {
	handler := ClassifyCardHandler(&stubClassifier{err: context.Canceled}, logger.Discard())

	body := `{"time":1,"coordinates":[0,0,5,5]}`
	req := httptest.NewRequest(http.MethodPost, "/classify_card", strings.NewReader(body))
	w := httptest.NewRecorder()
	handler(w, req)

	if w.Code == http.StatusGatewayTimeout || w.Body.Len() != 0 {
		t.Errorf("Expected no response for a departed client, got %d %q", w.Code, w.Body.String())
	}
}

func TestClassifyCardHandler_BodyTooLarge(t *testing.T) {
	handler := ClassifyCardHandler(&stubClassifier{}, logger.Discard())

	body := `{"time":1,"coordinates":[0,0,5,5],"pad":"` + strings.Repeat("x", MaxClassifyBodySize) + `"}`
	req := httptest.NewRequest(http.MethodPost, "/classify_card", strings.NewReader(body))
	w := httptest.NewRecorder()
	handler(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", w.Code)
	}
}

// ========================================
// Stream Handler Tests
// ========================================

func TestStreamHandler_SendsEvents(t *testing.T) {
	hub := events.NewHub(4, logger.Discard())
	server := httptest.NewServer(StreamHandler(hub, logger.Discard()))
	defer server.Close()

	resp, err := http.Get(server.URL)
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Expected text/event-stream, got %q", ct)
	}

	waitForSubscribers(t, hub, 1)
	hub.Publish(sampleEvent())

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	if err != nil {
		t.Fatalf("Failed to read event: %v", err)
	}
	expected := "data: {\"time\":1000.5,\"0\":[1,2,3,4]}\n"
	if line != expected {
		t.Errorf("Expected %q, got %q", expected, line)
	}
	if blank, _ := reader.ReadString('\n'); blank != "\n" {
		t.Errorf("Expected blank line terminating the event, got %q", blank)
	}
}

func TestStreamHandler_UnsubscribesOnDisconnect(t *testing.T) {
	hub := events.NewHub(4, logger.Discard())
	server := httptest.NewServer(StreamHandler(hub, logger.Discard()))
	defer server.Close()

	resp, err := http.Get(server.URL)
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	waitForSubscribers(t, hub, 1)

	resp.Body.Close()
	// The handler notices the disconnect on its next write at the latest.
	deadline := time.Now().Add(2 * time.Second)
	for hub.Count() != 0 && time.Now().Before(deadline) {
		hub.Publish(sampleEvent())
		time.Sleep(10 * time.Millisecond)
	}
	if hub.Count() != 0 {
		t.Errorf("Expected subscriber to be removed, %d left", hub.Count())
	}
}

func TestStreamHandler_RejectsPost(t *testing.T) {
	hub := events.NewHub(4, logger.Discard())
	req := httptest.NewRequest(http.MethodPost, "/stream", nil)
	w := httptest.NewRecorder()
	StreamHandler(hub, logger.Discard())(w, req)

	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405, got %d", w.Code)
	}
}

// ========================================
// WebSocket Handler Tests
// ========================================

func TestViewWebsocketHandler_SendsEvents(t *testing.T) {
	hub := events.NewHub(4, logger.Discard())
	upgrader := NewUpgrader(middleware.NewOriginPolicy([]string{"https://*.ext-twitch.tv"}))
	server := httptest.NewServer(ViewWebsocketHandler(hub, upgrader, logger.Discard()))
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Failed to dial: %v", err)
	}
	defer conn.Close()

	waitForSubscribers(t, hub, 1)
	hub.Publish(sampleEvent())

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	messageType, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("Failed to read message: %v", err)
	}
	if messageType != websocket.TextMessage {
		t.Errorf("Expected text message, got %d", messageType)
	}

	var event dto.DetectionEvent
	if err := json.Unmarshal(data, &event); err != nil {
		t.Fatalf("Failed to decode event: %v", err)
	}
	if event.Time != 1000.5 || len(event.Boxes) != 1 {
		t.Errorf("Unexpected event %+v", event)
	}
}

func TestViewWebsocketHandler_RejectsForeignOrigin(t *testing.T) {
	hub := events.NewHub(4, logger.Discard())
	upgrader := NewUpgrader(middleware.NewOriginPolicy([]string{"https://*.ext-twitch.tv"}))
	server := httptest.NewServer(ViewWebsocketHandler(hub, upgrader, logger.Discard()))
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	header := http.Header{"Origin": []string{"https://evil.com"}}
	if _, _, err := websocket.DefaultDialer.Dial(url, header); err == nil {
		t.Error("Expected handshake to fail for a foreign origin")
	}
	if hub.Count() != 0 {
		t.Error("Rejected viewer must not subscribe")
	}
}

// ========================================
// Stats, Health and Log Handler Tests
// ========================================

func TestStatsHandler(t *testing.T) {
	collect := func() map[string]interface{} {
		return map[string]interface{}{"hub": events.HubStats{Subscribers: 2}}
	}
	req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	w := httptest.NewRecorder()
	StatsHandler(collect, logger.Discard())(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	var resp map[string]map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode stats: %v", err)
	}
	if resp["hub"]["subscribers"] != float64(2) {
		t.Errorf("Unexpected stats %v", resp)
	}
}

func TestHealthcheckHandler(t *testing.T) {
	w := httptest.NewRecorder()
	HealthcheckHandler(w, httptest.NewRequest(http.MethodGet, "/healthcheck", nil))

	if w.Code != http.StatusOK || w.Body.String() != "OK" {
		t.Errorf("Unexpected healthcheck response %d %q", w.Code, w.Body.String())
	}
}

func TestLogFileHandler(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "info.log"), []byte("INFO: started\n"), 0644); err != nil {
		t.Fatalf("Failed to write log: %v", err)
	}

	w := httptest.NewRecorder()
	LogFileHandler(dir, "info.log")(w, httptest.NewRequest(http.MethodGet, "/logs/info", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "started") {
		t.Errorf("Unexpected log response %d %q", w.Code, w.Body.String())
	}

	w = httptest.NewRecorder()
	LogFileHandler(dir, "error.log")(w, httptest.NewRequest(http.MethodGet, "/logs/error", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for missing log, got %d", w.Code)
	}
}
