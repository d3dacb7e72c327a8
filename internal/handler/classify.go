package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"snapvision/internal/dto"
	"snapvision/internal/logger"
	"snapvision/internal/model"
	"snapvision/internal/service/classify"
)

// MaxClassifyBodySize bounds the classification request body.
const MaxClassifyBodySize = 64 << 10

// CardClassifier resolves a region of a recently published frame to a card.
type CardClassifier interface {
	Classify(ctx context.Context, req model.ClassificationRequest) (*model.Card, error)
}

// ClassifyCardHandler classifies the card inside a published detection box.
// It answers 200 with the card, or 204 when the frame has left the cache
// or the card is unknown.
func ClassifyCardHandler(classifier CardClassifier, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxClassifyBodySize))
		if err != nil {
			http.Error(w, "Error reading body", http.StatusBadRequest)
			return
		}

		req, err := dto.DecodeClassifyRequest(body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		card, err := classifier.Classify(r.Context(), req)
		switch {
		case errors.Is(err, classify.ErrInvalidRegion):
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		case errors.Is(err, classify.ErrClassifyTimeout):
			http.Error(w, "Classification timed out", http.StatusGatewayTimeout)
			return
		case errors.Is(err, context.Canceled):
			// The client is gone; nobody reads the response.
			return
		case err != nil:
			logger.Error("Error classifying card at %v: %v", req.Time, err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		if card == nil {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(dto.NewCardResponse(card)); err != nil {
			logger.Error("Error encoding card response: %v", err)
		}
	}
}
