package dto

import "snapvision/internal/model"

// CardResponse is the classification result sent to clients.
type CardResponse struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Image       string `json:"image"`
}

func NewCardResponse(card *model.Card) CardResponse {
	return CardResponse{
		Name:        card.Name,
		Description: card.Description,
		Image:       card.Image,
	}
}
