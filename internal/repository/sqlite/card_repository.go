package sqlite

import (
	"database/sql"
	"errors"
	"fmt"

	"snapvision/internal/model"
)

const upsertCard = `
	INSERT INTO cards (name, cost, power, description, image)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(name) DO UPDATE SET
		cost = excluded.cost,
		power = excluded.power,
		description = excluded.description,
		image = excluded.image
`

// CardRepository implements repository.CardRepository for SQLite.
type CardRepository struct {
	db *DB
}

// NewCardRepository creates a new SQLite card repository.
func NewCardRepository(db *DB) *CardRepository {
	return &CardRepository{db: db}
}

// Upsert inserts a card or replaces the stored record with the same name.
func (r *CardRepository) Upsert(card *model.Card) error {
	r.db.Lock()
	defer r.db.Unlock()

	if _, err := r.db.Conn().Exec(upsertCard, card.Name, card.Cost, card.Power, card.Description, card.Image); err != nil {
		return fmt.Errorf("failed to upsert card: %w", err)
	}
	return nil
}

// UpsertBatch stores multiple cards in a single transaction.
func (r *CardRepository) UpsertBatch(cards []model.Card) error {
	r.db.Lock()
	defer r.db.Unlock()

	tx, err := r.db.Conn().Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(upsertCard)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, card := range cards {
		if card.Name == "" {
			return fmt.Errorf("failed to upsert card: empty name")
		}
		if _, err := stmt.Exec(card.Name, card.Cost, card.Power, card.Description, card.Image); err != nil {
			return fmt.Errorf("failed to upsert card %q: %w", card.Name, err)
		}
	}

	return tx.Commit()
}

// GetByName returns the card with the given name, or nil when there is none.
func (r *CardRepository) GetByName(name string) (*model.Card, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	var card model.Card
	err := r.db.Conn().QueryRow(`
		SELECT name, cost, power, description, image
		FROM cards WHERE name = ?
	`, name).Scan(&card.Name, &card.Cost, &card.Power, &card.Description, &card.Image)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query card: %w", err)
	}

	return &card, nil
}

// MissingNames returns the names that have no card record, in input order.
func (r *CardRepository) MissingNames(names []string) ([]string, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	var missing []string
	for _, name := range names {
		var exists int
		err := r.db.Conn().QueryRow(`SELECT COUNT(1) FROM cards WHERE name = ?`, name).Scan(&exists)
		if err != nil {
			return nil, fmt.Errorf("failed to check card %q: %w", name, err)
		}
		if exists == 0 {
			missing = append(missing, name)
		}
	}

	return missing, nil
}

// Count returns the number of stored cards.
func (r *CardRepository) Count() (int, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	var count int
	if err := r.db.Conn().QueryRow(`SELECT COUNT(*) FROM cards`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count cards: %w", err)
	}
	return count, nil
}
