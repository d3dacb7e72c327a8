package repository

import "snapvision/internal/model"

// CardRepository defines the interface for card metadata operations.
type CardRepository interface {
	// Create operations
	Upsert(card *model.Card) error
	UpsertBatch(cards []model.Card) error

	// Read operations
	GetByName(name string) (*model.Card, error)
	MissingNames(names []string) ([]string, error)
	Count() (int, error)
}
