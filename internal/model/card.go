package model

// Card is the descriptive record resolved for a classified card.
type Card struct {
	Name        string `json:"name" yaml:"name"`
	Cost        int    `json:"cost" yaml:"cost"`
	Power       int    `json:"power" yaml:"power"`
	Description string `json:"description" yaml:"description"`
	Image       string `json:"image" yaml:"image"`
}
